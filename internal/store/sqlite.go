package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"raffle/internal/models"
)

const timeLayout = time.RFC3339Nano

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// SQLite stores the ledger in two tables: participants and activities.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS participants (
			name TEXT PRIMARY KEY,
			entries INTEGER NOT NULL CHECK (entries >= 0),
			created_at TEXT NOT NULL,
			imported INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS activities (
			id TEXT PRIMARY KEY,
			participant TEXT NOT NULL REFERENCES participants(name) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			label TEXT NOT NULL,
			entries INTEGER NOT NULL CHECK (entries > 0),
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_activities_participant_seq ON activities(participant, seq);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Load returns every participant with its ordered history.
func (s *SQLite) Load(ctx context.Context) ([]models.Participant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, entries, created_at, imported FROM participants ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Participant
	index := make(map[string]int)
	for rows.Next() {
		var (
			p       models.Participant
			created string
		)
		if err := rows.Scan(&p.Name, &p.Entries, &created, &p.Imported); err != nil {
			return nil, err
		}
		if p.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("participant %s created_at: %w", p.Name, err)
		}
		p.Activities = []models.Activity{}
		index[p.Name] = len(out)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	arows, err := s.db.QueryContext(ctx, `SELECT id, participant, label, entries, recorded_at FROM activities ORDER BY participant, seq`)
	if err != nil {
		return nil, err
	}
	defer arows.Close()

	for arows.Next() {
		var (
			a        models.Activity
			owner    string
			recorded string
		)
		if err := arows.Scan(&a.ID, &owner, &a.Label, &a.EntryCount, &recorded); err != nil {
			return nil, err
		}
		if a.RecordedAt, err = parseTime(recorded); err != nil {
			return nil, fmt.Errorf("activity %s recorded_at: %w", a.ID, err)
		}
		i, ok := index[owner]
		if !ok {
			return nil, fmt.Errorf("activity %s references unknown participant %q", a.ID, owner)
		}
		out[i].Activities = append(out[i].Activities, a)
	}
	return out, arows.Err()
}

// Save replaces the stored ledger in one transaction.
func (s *SQLite) Save(ctx context.Context, participants []models.Participant) error {
	return Transact(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM activities`); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM participants`); err != nil {
			return err
		}

		pstmt, err := tx.PrepareContext(ctx, `INSERT INTO participants(name, entries, created_at, imported) VALUES(?,?,?,?)`)
		if err != nil {
			return err
		}
		defer pstmt.Close()
		astmt, err := tx.PrepareContext(ctx, `INSERT INTO activities(id, participant, seq, label, entries, recorded_at) VALUES(?,?,?,?,?,?)`)
		if err != nil {
			return err
		}
		defer astmt.Close()

		for _, p := range participants {
			if _, err := pstmt.ExecContext(ctx, p.Name, p.Entries, p.CreatedAt.UTC().Format(timeLayout), p.Imported); err != nil {
				return fmt.Errorf("insert participant %s: %w", p.Name, err)
			}
			for seq, a := range p.Activities {
				if _, err := astmt.ExecContext(ctx, a.ID, p.Name, seq, a.Label, a.EntryCount, a.RecordedAt.UTC().Format(timeLayout)); err != nil {
					return fmt.Errorf("insert activity %s: %w", a.ID, err)
				}
			}
		}
		return nil
	})
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
