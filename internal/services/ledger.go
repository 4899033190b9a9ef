package services

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"raffle/internal/models"
)

// Ledger owns every participant and their activity history.
// All methods are safe for concurrent use; readers always receive copies.
type Ledger struct {
	mu           sync.RWMutex
	participants map[string]*models.Participant // Key: trimmed name
	now          func() time.Time
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		participants: make(map[string]*models.Participant),
		now:          time.Now,
	}
}

// normalizeName trims surrounding whitespace; names stay case-sensitive.
func normalizeName(name string) string {
	return strings.TrimSpace(name)
}

// AddParticipant creates a participant with no entries.
func (l *Ledger) AddParticipant(name string) (models.Participant, error) {
	return l.addParticipant(name, false)
}

func (l *Ledger) addParticipant(name string, imported bool) (models.Participant, error) {
	key := normalizeName(name)
	if key == "" {
		return models.Participant{}, models.ErrInvalidName
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.participants[key]; exists {
		return models.Participant{}, fmt.Errorf("%w: %q", models.ErrDuplicateName, key)
	}
	p := &models.Participant{
		Name:       key,
		Activities: make([]models.Activity, 0),
		CreatedAt:  l.now(),
		Imported:   imported,
	}
	l.participants[key] = p
	return p.Clone(), nil
}

// AddEntry records an activity for a participant and credits its entries.
func (l *Ledger) AddEntry(name, activityLabel string, entryCount int) (models.Participant, error) {
	key := normalizeName(name)
	label := strings.TrimSpace(activityLabel)

	l.mu.Lock()
	defer l.mu.Unlock()

	p, exists := l.participants[key]
	if !exists {
		return models.Participant{}, fmt.Errorf("%w: %q", models.ErrNotFound, key)
	}
	if entryCount <= 0 {
		return models.Participant{}, fmt.Errorf("%w: got %d", models.ErrInvalidEntryCount, entryCount)
	}
	if entryCount > math.MaxInt-p.Entries {
		return models.Participant{}, fmt.Errorf("%w: %d more entries would overflow %d", models.ErrInvalidEntryCount, entryCount, p.Entries)
	}
	if label == "" {
		return models.Participant{}, models.ErrInvalidActivityLabel
	}

	p.Activities = append(p.Activities, models.Activity{
		ID:         uuid.NewString(),
		Label:      label,
		EntryCount: entryCount,
		RecordedAt: l.now(),
	})
	p.Entries += entryCount
	return p.Clone(), nil
}

// ResetParticipant zeroes a participant's entries and discards its history.
func (l *Ledger) ResetParticipant(name string) (models.Participant, error) {
	key := normalizeName(name)

	l.mu.Lock()
	defer l.mu.Unlock()

	p, exists := l.participants[key]
	if !exists {
		return models.Participant{}, fmt.Errorf("%w: %q", models.ErrNotFound, key)
	}
	p.Entries = 0
	p.Activities = make([]models.Activity, 0)
	return p.Clone(), nil
}

// RemoveParticipant deletes a participant and its history.
func (l *Ledger) RemoveParticipant(name string) error {
	key := normalizeName(name)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.participants[key]; !exists {
		return fmt.Errorf("%w: %q", models.ErrNotFound, key)
	}
	delete(l.participants, key)
	return nil
}

// ResetAll removes every participant.
func (l *Ledger) ResetAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.participants = make(map[string]*models.Participant)
}

// Get returns a copy of one participant.
func (l *Ledger) Get(name string) (models.Participant, error) {
	key := normalizeName(name)

	l.mu.RLock()
	defer l.mu.RUnlock()

	p, exists := l.participants[key]
	if !exists {
		return models.Participant{}, fmt.Errorf("%w: %q", models.ErrNotFound, key)
	}
	return p.Clone(), nil
}

// ListParticipants returns a point-in-time copy of the ledger ordered by name.
func (l *Ledger) ListParticipants() []models.Participant {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.Participant, 0, len(l.participants))
	for _, p := range l.participants {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// EligibleForDrawing returns the participants holding at least one entry.
// An empty result is not an error here; the drawing setup decides that.
func (l *Ledger) EligibleForDrawing() []models.Participant {
	all := l.ListParticipants()
	eligible := make([]models.Participant, 0, len(all))
	for _, p := range all {
		if p.Entries > 0 {
			eligible = append(eligible, p)
		}
	}
	return eligible
}

// Stats returns participant and entry totals.
func (l *Ledger) Stats() models.LedgerStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var st models.LedgerStats
	for _, p := range l.participants {
		st.Participants++
		st.TotalEntries += p.Entries
		if p.Entries > 0 {
			st.Eligible++
		}
	}
	return st
}

// Restore replaces the ledger contents with persisted participants.
// Nothing changes unless every participant passes validation.
func (l *Ledger) Restore(participants []models.Participant) error {
	next := make(map[string]*models.Participant, len(participants))
	for i := range participants {
		p := participants[i].Clone()
		if err := validateRestored(&p); err != nil {
			return err
		}
		if _, dup := next[p.Name]; dup {
			return fmt.Errorf("%w: %q", models.ErrDuplicateName, p.Name)
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = l.now()
		}
		next[p.Name] = &p
	}

	l.mu.Lock()
	l.participants = next
	l.mu.Unlock()
	return nil
}

func validateRestored(p *models.Participant) error {
	if normalizeName(p.Name) != p.Name || p.Name == "" {
		return fmt.Errorf("%w: %q", models.ErrInvalidName, p.Name)
	}
	sum := 0
	for i, a := range p.Activities {
		if a.EntryCount <= 0 {
			return fmt.Errorf("%s activity %d: %w", p.Name, i, models.ErrInvalidEntryCount)
		}
		if strings.TrimSpace(a.Label) == "" {
			return fmt.Errorf("%s activity %d: %w", p.Name, i, models.ErrInvalidActivityLabel)
		}
		if a.EntryCount > math.MaxInt-sum {
			return fmt.Errorf("%s activity %d: %w: history overflows", p.Name, i, models.ErrInvalidEntryCount)
		}
		if a.ID == "" {
			p.Activities[i].ID = uuid.NewString()
		}
		sum += a.EntryCount
	}
	if sum != p.Entries {
		return fmt.Errorf("%w: %s has %d entries but history sums to %d", models.ErrInvalidState, p.Name, p.Entries, sum)
	}
	return nil
}
