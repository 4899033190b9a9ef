package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/robfig/cron/v3"

	"raffle/internal/services"
	"raffle/internal/store"
)

func TestBackupJob(t *testing.T) {
	service := services.NewLotteryService(services.NewLedger(), services.NewEngine(nil), store.NewMemory(), nil)
	if _, err := service.CreateParticipant(context.Background(), "Alice"); err != nil {
		t.Fatalf("setup: %v", err)
	}

	dir := t.TempDir()
	NewBackupJob(service, dir, 2).Run()

	paths, err := store.ListBackups(dir)
	if err != nil {
		t.Fatalf("ListBackups: %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("Expected 1 backup, but got %d", len(paths))
	}
}

func TestSessionJanitorJob(t *testing.T) {
	ctx := context.Background()
	service := services.NewLotteryService(services.NewLedger(), services.NewEngine(nil), store.NewMemory(), nil)
	_, _ = service.CreateParticipant(ctx, "Alice")
	_, _ = service.AddEntry(ctx, "Alice", "demo", 1)
	if _, err := service.Arm(); err != nil {
		t.Fatalf("setup: %v", err)
	}

	NewSessionJanitorJob(service, time.Hour).Run()
	if service.Status().State != services.StateArmed {
		t.Errorf("Expected a fresh session to survive the janitor")
	}
}

func TestSchedule(t *testing.T) {
	c := cron.New()
	job := cron.FuncJob(func() {})

	if err := Schedule(c, "", job); err != nil {
		t.Errorf("Expected an empty schedule to be skipped, but got %v", err)
	}
	if err := Schedule(c, "@every 1m", job); err != nil {
		t.Errorf("Expected no error, but got %v", err)
	}
	if err := Schedule(c, "not a schedule", job); err == nil {
		t.Errorf("Expected an error for a bad schedule")
	}
	if got := len(c.Entries()); got != 1 {
		t.Errorf("Expected 1 scheduled entry, but got %d", got)
	}
}
