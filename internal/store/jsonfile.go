package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"raffle/internal/models"
)

// fileData is the on-disk shape: participants keyed by name under
// "employees", the layout the dashboard has always written.
type fileData struct {
	Participants map[string]fileParticipant `json:"employees"`
}

type fileParticipant struct {
	Entries    int            `json:"entries"`
	Activities []fileActivity `json:"activities"`
	CreatedAt  string         `json:"created_at,omitempty"`
	Imported   bool           `json:"imported_from_excel,omitempty"`
}

type fileActivity struct {
	ID       string `json:"id,omitempty"`
	Activity string `json:"activity"`
	Entries  int    `json:"entries"`
	Date     string `json:"date"`
}

// legacyTimeLayout is the zone-less ISO form found in older data files.
const legacyTimeLayout = "2006-01-02T15:04:05.999999"

func parseFileTime(s string) (time.Time, error) {
	if t, err := parseTime(s); err == nil {
		return t, nil
	}
	return time.ParseInLocation(legacyTimeLayout, s, time.Local)
}

// JSONFile stores the ledger in a single JSON document.
type JSONFile struct {
	mu   sync.Mutex
	path string
}

// OpenJSONFile returns a store backed by the file at path, creating its directory.
func OpenJSONFile(path string) (*JSONFile, error) {
	if path == "" {
		return nil, fmt.Errorf("empty json store path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &JSONFile{path: path}, nil
}

// Load reads the file. A missing file is an empty ledger.
func (s *JSONFile) Load(context.Context) ([]models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeLedger(b)
}

// Save rewrites the file atomically.
func (s *JSONFile) Save(_ context.Context, participants []models.Participant) error {
	b, err := encodeLedger(participants)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// Close is a no-op; the file is not held open.
func (s *JSONFile) Close() error { return nil }

func encodeLedger(participants []models.Participant) ([]byte, error) {
	data := fileData{Participants: make(map[string]fileParticipant, len(participants))}
	for _, p := range participants {
		fp := fileParticipant{
			Entries:    p.Entries,
			Activities: make([]fileActivity, 0, len(p.Activities)),
			Imported:   p.Imported,
		}
		for _, a := range p.Activities {
			fp.Activities = append(fp.Activities, fileActivity{
				ID:       a.ID,
				Activity: a.Label,
				Entries:  a.EntryCount,
				Date:     a.RecordedAt.Format(timeLayout),
			})
		}
		if !p.CreatedAt.IsZero() {
			fp.CreatedAt = p.CreatedAt.Format(timeLayout)
		}
		data.Participants[p.Name] = fp
	}
	return json.MarshalIndent(data, "", "  ")
}

func decodeLedger(b []byte) ([]models.Participant, error) {
	var data fileData
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("decode ledger: %w", err)
	}
	out := make([]models.Participant, 0, len(data.Participants))
	for name, fp := range data.Participants {
		p := models.Participant{
			Name:       name,
			Entries:    fp.Entries,
			Activities: make([]models.Activity, 0, len(fp.Activities)),
			Imported:   fp.Imported,
		}
		for i, fa := range fp.Activities {
			a := models.Activity{ID: fa.ID, Label: fa.Activity, EntryCount: fa.Entries}
			if fa.Date != "" {
				t, err := parseFileTime(fa.Date)
				if err != nil {
					return nil, fmt.Errorf("decode ledger: %s activity %d date: %w", name, i, err)
				}
				a.RecordedAt = t
			}
			p.Activities = append(p.Activities, a)
		}
		if fp.CreatedAt != "" {
			t, err := parseFileTime(fp.CreatedAt)
			if err != nil {
				return nil, fmt.Errorf("decode ledger: %s created_at: %w", name, err)
			}
			p.CreatedAt = t
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
