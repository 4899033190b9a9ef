package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Activity is one recorded activity that earned raffle entries.
// Activities are never edited after they are recorded.
type Activity struct {
	ID         string    `json:"id"`
	Label      string    `json:"activity"`
	EntryCount int       `json:"entries"`
	RecordedAt time.Time `json:"date"`
}

// Participant is a named person collecting raffle entries.
// Entries always equals the sum of EntryCount over Activities.
type Participant struct {
	Name       string     `json:"name"`
	Entries    int        `json:"entries"`
	Activities []Activity `json:"activities"`
	CreatedAt  time.Time  `json:"created_at"`
	Imported   bool       `json:"imported_from_excel,omitempty"`
}

// Clone returns a deep copy so callers never share the activity slice.
func (p Participant) Clone() Participant {
	c := p
	c.Activities = make([]Activity, len(p.Activities))
	copy(c.Activities, p.Activities)
	return c
}

// Candidate is one line of a drawing snapshot.
type Candidate struct {
	Name    string `json:"name"`
	Entries int    `json:"entries"`
}

// Odds is a candidate together with its chance of winning, in percent.
type Odds struct {
	Name    string          `json:"name"`
	Entries int             `json:"entries"`
	Chance  decimal.Decimal `json:"chance"`
}

// LedgerStats are the aggregate numbers shown on the dashboard header.
type LedgerStats struct {
	Participants int `json:"total_employees"`
	Eligible     int `json:"eligible_employees"`
	TotalEntries int `json:"total_entries"`
}

// DrawHandle is returned by a draw before the winner is disclosed.
type DrawHandle struct {
	DrawingID    string    `json:"drawing_id"`
	Participants int       `json:"participants"`
	TotalEntries int       `json:"total_entries"`
	DrawnAt      time.Time `json:"drawn_at"`
}

// DrawResult stores the outcome of a revealed drawing.
type DrawResult struct {
	DrawingID    string    `json:"drawing_id"`
	WinnerName   string    `json:"winner_name"`
	Entries      int       `json:"entries"`
	TotalEntries int       `json:"total_entries"`
	Probability  float64   `json:"probability"`
	Participants int       `json:"participants"`
	DrawnAt      time.Time `json:"drawn_at"`
	RevealedAt   time.Time `json:"revealed_at"`
}

// ImportRow is one (name, activity, entries) triple produced by an importer.
// An empty Activity with zero Entries only registers the participant.
type ImportRow struct {
	Line     int    `json:"line,omitempty"`
	Name     string `json:"name"`
	Activity string `json:"activity"`
	Entries  int    `json:"entries"`
}

// ImportRowResult reports what happened to a single imported row.
type ImportRowResult struct {
	Line    int    `json:"line"`
	Name    string `json:"name"`
	Created bool   `json:"created"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

// ImportReport summarises an import run.
type ImportReport struct {
	Rows            []ImportRowResult `json:"rows"`
	Imported        int               `json:"imported"`
	Failed          int               `json:"failed"`
	NewParticipants int               `json:"new_employees_added"`
}
