package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"raffle/internal/config"
	"raffle/internal/models"
)

// Store persists the full ledger state. Save always replaces what was stored.
type Store interface {
	Load(ctx context.Context) ([]models.Participant, error)
	Save(ctx context.Context, participants []models.Participant) error
	Close() error
}

// Open builds the store selected by cfg.Driver.
func Open(cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "json":
		return OpenJSONFile(cfg.Path)
	case "sqlite":
		return OpenSQLite(cfg.Path)
	case "postgres":
		return OpenPostgres(cfg.DSN)
	case "memory":
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

// Transact runs fn inside a transaction, rolling back on any error.
func Transact(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return err
	}
	return nil
}

func cloneAll(participants []models.Participant) []models.Participant {
	out := make([]models.Participant, len(participants))
	for i, p := range participants {
		out[i] = p.Clone()
	}
	return out
}

// Memory keeps the ledger in process memory.
type Memory struct {
	mu    sync.Mutex
	state []models.Participant
	saves int
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Load returns a copy of the last saved ledger.
func (m *Memory) Load(context.Context) ([]models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneAll(m.state), nil
}

// Save keeps a copy of participants.
func (m *Memory) Save(_ context.Context, participants []models.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = cloneAll(participants)
	m.saves++
	return nil
}

// Saves reports how many times Save has been called.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
