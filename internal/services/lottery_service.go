package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/logger"

	"raffle/internal/models"
	"raffle/internal/store"
)

// ErrStorage marks a mutation that could not be saved. The ledger is rolled
// back, so the call can be retried as is.
var ErrStorage = errors.New("storage failure")

// Publisher receives events for presentation clients.
type Publisher interface {
	Publish(kind string, payload any)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, any) {}

// LotteryService ties the ledger, the drawing engine and persistence together.
type LotteryService struct {
	// mu serialises mutations with their save so stores see them in order.
	mu sync.Mutex

	ledger *Ledger
	engine *Engine
	store  store.Store
	events Publisher

	resultsMu sync.RWMutex
	results   []models.DrawResult
}

// NewLotteryService creates a service. A nil publisher drops events.
func NewLotteryService(ledger *Ledger, engine *Engine, st store.Store, events Publisher) *LotteryService {
	if events == nil {
		events = nopPublisher{}
	}
	return &LotteryService{
		ledger:  ledger,
		engine:  engine,
		store:   st,
		events:  events,
		results: make([]models.DrawResult, 0),
	}
}

// Load replaces the ledger with the store's contents.
func (s *LotteryService) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	participants, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	if err := s.ledger.Restore(participants); err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}
	logger.Infof("Loaded %d participants", len(participants))
	return nil
}

// Restore seeds both the ledger and the store from a backup.
func (s *LotteryService) Restore(ctx context.Context, participants []models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.ledger.ListParticipants()
	if err := s.ledger.Restore(participants); err != nil {
		return err
	}
	return s.persistLocked(ctx, before)
}

// persistLocked saves the ledger. If the save fails the ledger is put back
// to before, so a failed call leaves no trace.
func (s *LotteryService) persistLocked(ctx context.Context, before []models.Participant) error {
	snapshot := s.ledger.ListParticipants()
	if err := s.store.Save(ctx, snapshot); err != nil {
		logger.Errorf("Saving ledger failed: %v", err)
		if rerr := s.ledger.Restore(before); rerr != nil {
			logger.Errorf("Rolling back ledger failed: %v", rerr)
		}
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	s.events.Publish("ledger", s.ledger.Stats())
	return nil
}

// CreateParticipant adds a participant with no entries.
func (s *LotteryService) CreateParticipant(ctx context.Context, name string) (models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.ledger.ListParticipants()
	p, err := s.ledger.AddParticipant(name)
	if err != nil {
		return p, err
	}
	if err := s.persistLocked(ctx, before); err != nil {
		return models.Participant{}, err
	}
	return p, nil
}

// GetParticipant returns one participant.
func (s *LotteryService) GetParticipant(name string) (models.Participant, error) {
	return s.ledger.Get(name)
}

// ListParticipants returns everyone, most entries first.
func (s *LotteryService) ListParticipants() []models.Participant {
	list := s.ledger.ListParticipants()
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Entries != list[j].Entries {
			return list[i].Entries > list[j].Entries
		}
		return list[i].Name < list[j].Name
	})
	return list
}

// AddEntry credits entries to a participant for an activity.
func (s *LotteryService) AddEntry(ctx context.Context, name, activity string, entries int) (models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.ledger.ListParticipants()
	p, err := s.ledger.AddEntry(name, activity, entries)
	if err != nil {
		return p, err
	}
	if err := s.persistLocked(ctx, before); err != nil {
		return models.Participant{}, err
	}
	return p, nil
}

// ResetParticipant zeroes a participant's entries and history.
func (s *LotteryService) ResetParticipant(ctx context.Context, name string) (models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.ledger.ListParticipants()
	p, err := s.ledger.ResetParticipant(name)
	if err != nil {
		return p, err
	}
	if err := s.persistLocked(ctx, before); err != nil {
		return models.Participant{}, err
	}
	return p, nil
}

// RemoveParticipant deletes a participant.
func (s *LotteryService) RemoveParticipant(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.ledger.ListParticipants()
	if err := s.ledger.RemoveParticipant(name); err != nil {
		return err
	}
	return s.persistLocked(ctx, before)
}

// ResetAll wipes every participant.
func (s *LotteryService) ResetAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.ledger.ListParticipants()
	s.ledger.ResetAll()
	if err := s.persistLocked(ctx, before); err != nil {
		return err
	}
	logger.Infof("Ledger wiped")
	return nil
}

// Stats returns dashboard totals.
func (s *LotteryService) Stats() models.LedgerStats {
	return s.ledger.Stats()
}

// Import applies externally parsed rows one by one. Existing participants are
// reused, new ones are created, and each row succeeds or fails on its own.
// If the final save fails none of the rows are kept.
func (s *LotteryService) Import(ctx context.Context, rows []models.ImportRow) (models.ImportReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.ledger.ListParticipants()
	report := models.ImportReport{Rows: make([]models.ImportRowResult, 0, len(rows))}
	changed := false

	for i, row := range rows {
		line := row.Line
		if line == 0 {
			line = i + 1
		}
		res := models.ImportRowResult{Line: line, Name: strings.TrimSpace(row.Name)}

		created, err := s.importRow(row)
		res.Created = created
		if created {
			report.NewParticipants++
		}
		if created || err == nil {
			changed = true
		}
		if err != nil {
			res.Error = err.Error()
			res.Kind = models.ErrorKind(err)
			report.Failed++
			logger.Infof("Skipping import row %d: %v", line, err)
		} else {
			res.OK = true
			report.Imported++
		}
		report.Rows = append(report.Rows, res)
	}

	if !changed {
		return report, nil
	}
	return report, s.persistLocked(ctx, before)
}

func (s *LotteryService) importRow(row models.ImportRow) (bool, error) {
	participantOnly := strings.TrimSpace(row.Activity) == "" && row.Entries == 0
	if !participantOnly {
		// Check the entry first so a bad row never leaves a stray participant behind.
		if row.Entries <= 0 {
			return false, fmt.Errorf("%w: got %d", models.ErrInvalidEntryCount, row.Entries)
		}
		if strings.TrimSpace(row.Activity) == "" {
			return false, models.ErrInvalidActivityLabel
		}
	}

	created := true
	if _, err := s.ledger.addParticipant(row.Name, true); err != nil {
		if !errors.Is(err, models.ErrDuplicateName) {
			return false, err
		}
		created = false
	}
	if participantOnly {
		return created, nil
	}
	if _, err := s.ledger.AddEntry(row.Name, row.Activity, row.Entries); err != nil {
		return created, err
	}
	return created, nil
}

// Arm prepares a drawing from the participants currently holding entries.
func (s *LotteryService) Arm() (SessionStatus, error) {
	snapshot := CandidatesOf(s.ledger.EligibleForDrawing())
	if err := s.engine.Arm(snapshot); err != nil {
		return SessionStatus{}, err
	}
	st := s.engine.Status()
	s.events.Publish("armed", st)
	return st, nil
}

// Draw commits a winner without disclosing it.
func (s *LotteryService) Draw() (models.DrawHandle, error) {
	h, err := s.engine.Draw()
	if err != nil {
		return h, err
	}
	s.events.Publish("drawing", h)
	return h, nil
}

// Reveal discloses the committed winner and records the result.
func (s *LotteryService) Reveal() (models.DrawResult, error) {
	res, err := s.engine.Reveal()
	if err != nil {
		return res, err
	}

	s.resultsMu.Lock()
	s.results = append(s.results, res)
	s.resultsMu.Unlock()

	logger.Infof("Drawing %s won by %s (%d of %d entries)", res.DrawingID, res.WinnerName, res.Entries, res.TotalEntries)
	s.events.Publish("resolved", res)
	return res, nil
}

// ResetSession re-arms from the ledger's current state, abandoning any
// unrevealed drawing.
func (s *LotteryService) ResetSession() (SessionStatus, error) {
	snapshot := CandidatesOf(s.ledger.EligibleForDrawing())
	if err := s.engine.ResetSession(snapshot); err != nil {
		return SessionStatus{}, err
	}
	st := s.engine.Status()
	s.events.Publish("reset", st)
	return st, nil
}

// Teardown closes the drawing session.
func (s *LotteryService) Teardown() {
	s.engine.Teardown()
	s.events.Publish("teardown", nil)
}

// Status returns the drawing session view.
func (s *LotteryService) Status() SessionStatus {
	return s.engine.Status()
}

// Results returns every revealed result, oldest first.
func (s *LotteryService) Results() []models.DrawResult {
	s.resultsMu.RLock()
	defer s.resultsMu.RUnlock()

	out := make([]models.DrawResult, len(s.results))
	copy(out, s.results)
	return out
}

// CleanUpInactiveSession drops a drawing session idle for longer than maxIdle.
func (s *LotteryService) CleanUpInactiveSession(maxIdle time.Duration) {
	if s.engine.TeardownIfIdle(maxIdle) {
		logger.Infof("Tore down drawing session idle for over %s", maxIdle)
		s.events.Publish("teardown", nil)
	}
}

// Backup writes a compressed copy of the ledger into dir.
func (s *LotteryService) Backup(dir string, keep int) (string, error) {
	path, err := store.WriteBackup(dir, s.ledger.ListParticipants(), time.Now(), keep)
	if err != nil {
		return path, err
	}
	logger.Infof("Wrote ledger backup %s", path)
	return path, nil
}
