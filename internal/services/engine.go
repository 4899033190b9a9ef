package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"raffle/internal/models"
)

// DrawState is the lifecycle position of the engine's drawing session.
type DrawState int

const (
	StateEmpty DrawState = iota
	StateArmed
	StateDrawing
	StateResolved
)

func (s DrawState) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateArmed:
		return "armed"
	case StateDrawing:
		return "drawing"
	case StateResolved:
		return "resolved"
	}
	return fmt.Sprintf("DrawState(%d)", int(s))
}

// MarshalText lets the state appear by name in JSON.
func (s DrawState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *DrawState) UnmarshalText(b []byte) error {
	for _, st := range []DrawState{StateEmpty, StateArmed, StateDrawing, StateResolved} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown draw state %q", b)
}

// SessionStatus is a read-only view of the engine.
type SessionStatus struct {
	State        DrawState          `json:"state"`
	Participants []models.Odds      `json:"participants"`
	TotalEntries int                `json:"total_entries"`
	ArmedAt      time.Time          `json:"armed_at"`
	DrawingID    string             `json:"drawing_id,omitempty"`
	Result       *models.DrawResult `json:"result,omitempty"`
}

// Engine runs one weighted drawing at a time over a fixed snapshot.
// It never touches the ledger; callers hand it snapshots.
type Engine struct {
	mu  sync.Mutex
	src RandSource
	now func() time.Time

	state        DrawState
	snapshot     []models.Candidate
	total        int
	armedAt      time.Time
	drawingID    string
	drawnAt      time.Time
	winner       int
	result       *models.DrawResult
	lastActivity time.Time
}

// NewEngine creates an engine in the empty state. A nil src uses crypto/rand.
func NewEngine(src RandSource) *Engine {
	if src == nil {
		src = CryptoSource{}
	}
	return &Engine{src: src, now: time.Now, winner: -1}
}

// Arm fixes the snapshot for the next drawing.
func (e *Engine) Arm(snapshot []models.Candidate) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateDrawing:
		return models.ErrAlreadyDrawing
	case StateArmed:
		return fmt.Errorf("%w: session is already armed", models.ErrInvalidState)
	}
	return e.armLocked(snapshot)
}

// ResetSession re-arms from any state, discarding an unrevealed drawing.
// On error the current session is left as it was.
func (e *Engine) ResetSession(snapshot []models.Candidate) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.armLocked(snapshot)
}

func (e *Engine) armLocked(snapshot []models.Candidate) error {
	if len(snapshot) == 0 {
		return models.ErrNoEligibleParticipants
	}
	total, err := totalEntries(snapshot)
	if err != nil {
		return err
	}

	fixed := make([]models.Candidate, len(snapshot))
	copy(fixed, snapshot)

	now := e.now()
	e.state = StateArmed
	e.snapshot = fixed
	e.total = total
	e.armedAt = now
	e.drawingID = ""
	e.drawnAt = time.Time{}
	e.winner = -1
	e.result = nil
	e.lastActivity = now
	return nil
}

// Draw commits the winner and moves to the drawing state without disclosing it.
func (e *Engine) Draw() (models.DrawHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateDrawing:
		return models.DrawHandle{}, models.ErrAlreadyDrawing
	case StateArmed:
	default:
		return models.DrawHandle{}, fmt.Errorf("%w: cannot draw while %s", models.ErrInvalidState, e.state)
	}

	idx, err := selectWeighted(e.snapshot, e.total, e.src)
	if err != nil {
		return models.DrawHandle{}, err
	}

	now := e.now()
	e.winner = idx
	e.drawingID = uuid.NewString()
	e.drawnAt = now
	e.state = StateDrawing
	e.lastActivity = now

	return models.DrawHandle{
		DrawingID:    e.drawingID,
		Participants: len(e.snapshot),
		TotalEntries: e.total,
		DrawnAt:      now,
	}, nil
}

// Reveal discloses the winner chosen by the last Draw.
func (e *Engine) Reveal() (models.DrawResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateDrawing {
		return models.DrawResult{}, models.ErrNotDrawing
	}
	if e.winner < 0 || e.winner >= len(e.snapshot) {
		return models.DrawResult{}, fmt.Errorf("%w: no committed winner", models.ErrInvalidState)
	}

	w := e.snapshot[e.winner]
	now := e.now()
	res := models.DrawResult{
		DrawingID:    e.drawingID,
		WinnerName:   w.Name,
		Entries:      w.Entries,
		TotalEntries: e.total,
		Probability:  float64(w.Entries) / float64(e.total),
		Participants: len(e.snapshot),
		DrawnAt:      e.drawnAt,
		RevealedAt:   now,
	}
	e.result = &res
	e.state = StateResolved
	e.lastActivity = now
	return res, nil
}

// Teardown drops the session entirely.
func (e *Engine) Teardown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.teardownLocked()
}

func (e *Engine) teardownLocked() {
	e.state = StateEmpty
	e.snapshot = nil
	e.total = 0
	e.armedAt = time.Time{}
	e.drawingID = ""
	e.drawnAt = time.Time{}
	e.winner = -1
	e.result = nil
	e.lastActivity = time.Time{}
}

// TeardownIfIdle drops a session untouched for longer than maxIdle.
// It reports whether a session was dropped.
func (e *Engine) TeardownIfIdle(maxIdle time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateEmpty || e.now().Sub(e.lastActivity) <= maxIdle {
		return false
	}
	e.teardownLocked()
	return true
}

// State returns the current lifecycle state.
func (e *Engine) State() DrawState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Status returns the session snapshot with odds. The winner only appears once revealed.
func (e *Engine) Status() SessionStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := SessionStatus{
		State:        e.state,
		Participants: Odds(e.snapshot, e.total),
		TotalEntries: e.total,
		ArmedAt:      e.armedAt,
		DrawingID:    e.drawingID,
	}
	if e.result != nil {
		r := *e.result
		st.Result = &r
	}
	return st
}

// Odds converts a snapshot into chance percentages rounded to one decimal.
func Odds(snapshot []models.Candidate, total int) []models.Odds {
	out := make([]models.Odds, 0, len(snapshot))
	if total <= 0 {
		return out
	}
	hundred := decimal.NewFromInt(100)
	t := decimal.NewFromInt(int64(total))
	for _, c := range snapshot {
		out = append(out, models.Odds{
			Name:    c.Name,
			Entries: c.Entries,
			Chance:  decimal.NewFromInt(int64(c.Entries)).Mul(hundred).Div(t).Round(1),
		})
	}
	return out
}

// CandidatesOf turns eligible participants into a drawing snapshot.
func CandidatesOf(participants []models.Participant) []models.Candidate {
	out := make([]models.Candidate, 0, len(participants))
	for _, p := range participants {
		out = append(out, models.Candidate{Name: p.Name, Entries: p.Entries})
	}
	return out
}
