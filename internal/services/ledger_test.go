package services

import (
	"errors"
	"math"
	"sync"
	"testing"

	"raffle/internal/models"
)

func sumHistory(p models.Participant) int {
	sum := 0
	for _, a := range p.Activities {
		sum += a.EntryCount
	}
	return sum
}

func TestLedger_AddParticipant(t *testing.T) {
	l := NewLedger()

	t.Run("Test trimmed name is stored", func(t *testing.T) {
		p, err := l.AddParticipant("  Alice ")
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		if p.Name != "Alice" {
			t.Errorf("Expected name Alice, but got %q", p.Name)
		}
		if p.Entries != 0 || len(p.Activities) != 0 {
			t.Errorf("Expected a fresh participant, but got %+v", p)
		}
	})

	t.Run("Test duplicate after trimming is rejected", func(t *testing.T) {
		_, err := l.AddParticipant("Alice\t")
		if !errors.Is(err, models.ErrDuplicateName) {
			t.Fatalf("Expected ErrDuplicateName, but got %v", err)
		}
	})

	t.Run("Test names are case-sensitive", func(t *testing.T) {
		if _, err := l.AddParticipant("alice"); err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		if got := len(l.ListParticipants()); got != 2 {
			t.Errorf("Expected 2 participants, but got %d", got)
		}
	})

	t.Run("Test blank name is rejected", func(t *testing.T) {
		_, err := l.AddParticipant("   ")
		if !errors.Is(err, models.ErrInvalidName) {
			t.Fatalf("Expected ErrInvalidName, but got %v", err)
		}
	})
}

func TestLedger_AddEntry(t *testing.T) {
	l := NewLedger()
	if _, err := l.AddParticipant("Alice"); err != nil {
		t.Fatalf("setup: %v", err)
	}

	t.Run("Test entries accumulate with history", func(t *testing.T) {
		if _, err := l.AddEntry("Alice", "demo", 3); err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		p, err := l.AddEntry("Alice", "demo2", 2)
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		if p.Entries != 5 {
			t.Errorf("Expected 5 entries, but got %d", p.Entries)
		}
		if len(p.Activities) != 2 {
			t.Fatalf("Expected 2 activities, but got %d", len(p.Activities))
		}
		if p.Activities[0].Label != "demo" || p.Activities[1].Label != "demo2" {
			t.Errorf("Expected history in append order, but got %+v", p.Activities)
		}
		if p.Activities[0].ID == "" || p.Activities[0].RecordedAt.IsZero() {
			t.Errorf("Expected activity id and timestamp, but got %+v", p.Activities[0])
		}
	})

	t.Run("Test invalid input leaves the ledger unchanged", func(t *testing.T) {
		before, _ := l.Get("Alice")

		cases := []struct {
			name, label string
			count       int
			want        error
		}{
			{"Bob", "demo", 1, models.ErrNotFound},
			{"Alice", "demo", 0, models.ErrInvalidEntryCount},
			{"Alice", "demo", -4, models.ErrInvalidEntryCount},
			{"Alice", "  ", 2, models.ErrInvalidActivityLabel},
		}
		for _, tc := range cases {
			_, err := l.AddEntry(tc.name, tc.label, tc.count)
			if !errors.Is(err, tc.want) {
				t.Errorf("AddEntry(%q, %q, %d): expected %v, but got %v", tc.name, tc.label, tc.count, tc.want, err)
			}
		}

		after, _ := l.Get("Alice")
		if after.Entries != before.Entries || len(after.Activities) != len(before.Activities) {
			t.Errorf("Expected no change, but got %+v", after)
		}
	})

	t.Run("Test entries always equal history sum", func(t *testing.T) {
		for i := 1; i <= 20; i++ {
			p, err := l.AddEntry("Alice", "shift", i)
			if err != nil {
				t.Fatalf("Expected no error, but got %v", err)
			}
			if p.Entries != sumHistory(p) {
				t.Fatalf("Expected entries %d to equal history sum %d", p.Entries, sumHistory(p))
			}
		}
	})
}

func TestLedger_ResetAndRemove(t *testing.T) {
	l := NewLedger()
	_, _ = l.AddParticipant("Alice")
	_, _ = l.AddEntry("Alice", "demo", 3)
	_, _ = l.AddEntry("Alice", "demo2", 2)

	t.Run("Test reset clears entries and history", func(t *testing.T) {
		p, err := l.ResetParticipant("Alice")
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		if p.Entries != 0 || len(p.Activities) != 0 {
			t.Errorf("Expected zero entries and empty history, but got %+v", p)
		}
	})

	t.Run("Test reset of unknown participant", func(t *testing.T) {
		if _, err := l.ResetParticipant("Nobody"); !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("Expected ErrNotFound, but got %v", err)
		}
	})

	t.Run("Test removing unknown participant changes nothing", func(t *testing.T) {
		if err := l.RemoveParticipant("Nobody"); !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("Expected ErrNotFound, but got %v", err)
		}
		if got := len(l.ListParticipants()); got != 1 {
			t.Errorf("Expected 1 participant, but got %d", got)
		}
	})

	t.Run("Test remove then wipe", func(t *testing.T) {
		_, _ = l.AddParticipant("Bob")
		if err := l.RemoveParticipant("Alice"); err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		if _, err := l.Get("Alice"); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("Expected Alice to be gone, but got %v", err)
		}
		l.ResetAll()
		if got := len(l.ListParticipants()); got != 0 {
			t.Errorf("Expected empty ledger, but got %d participants", got)
		}
	})
}

func TestLedger_EligibleForDrawing(t *testing.T) {
	l := NewLedger()
	_, _ = l.AddParticipant("Alice")
	_, _ = l.AddParticipant("Bob")
	_, _ = l.AddEntry("Alice", "demo", 2)

	eligible := l.EligibleForDrawing()
	if len(eligible) != 1 || eligible[0].Name != "Alice" {
		t.Fatalf("Expected only Alice, but got %+v", eligible)
	}

	l.ResetAll()
	if got := l.EligibleForDrawing(); len(got) != 0 {
		t.Errorf("Expected empty eligible set, but got %+v", got)
	}

	st := l.Stats()
	if st.Participants != 0 || st.TotalEntries != 0 {
		t.Errorf("Expected zero stats, but got %+v", st)
	}
}

func TestLedger_ListReturnsCopies(t *testing.T) {
	l := NewLedger()
	_, _ = l.AddParticipant("Alice")
	_, _ = l.AddEntry("Alice", "demo", 1)

	list := l.ListParticipants()
	list[0].Activities[0].Label = "tampered"
	list[0].Entries = 99

	p, _ := l.Get("Alice")
	if p.Entries != 1 || p.Activities[0].Label != "demo" {
		t.Errorf("Expected the ledger to be unaffected, but got %+v", p)
	}
}

func TestLedger_ConcurrentAddEntry(t *testing.T) {
	l := NewLedger()
	_, _ = l.AddParticipant("Alice")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, _ = l.AddEntry("Alice", "shift", 1)
				for _, p := range l.ListParticipants() {
					if p.Entries != sumHistory(p) {
						t.Errorf("Observed partial update: entries=%d history=%d", p.Entries, sumHistory(p))
						return
					}
				}
			}
		}()
	}
	wg.Wait()

	p, _ := l.Get("Alice")
	if p.Entries != 1000 || len(p.Activities) != 1000 {
		t.Errorf("Expected 1000 entries, but got %d (%d activities)", p.Entries, len(p.Activities))
	}
}

func TestLedger_Restore(t *testing.T) {
	l := NewLedger()
	_, _ = l.AddParticipant("Existing")

	t.Run("Test inconsistent state is rejected", func(t *testing.T) {
		bad := []models.Participant{{
			Name:       "Alice",
			Entries:    4,
			Activities: []models.Activity{{Label: "demo", EntryCount: 3}},
		}}
		if err := l.Restore(bad); !errors.Is(err, models.ErrInvalidState) {
			t.Fatalf("Expected ErrInvalidState, but got %v", err)
		}
		if _, err := l.Get("Existing"); err != nil {
			t.Errorf("Expected the ledger to be untouched, but got %v", err)
		}
	})

	t.Run("Test valid state replaces the ledger", func(t *testing.T) {
		good := []models.Participant{{
			Name:       "Alice",
			Entries:    3,
			Activities: []models.Activity{{Label: "demo", EntryCount: 3}},
		}}
		if err := l.Restore(good); err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		p, err := l.Get("Alice")
		if err != nil {
			t.Fatalf("Expected Alice, but got %v", err)
		}
		if p.Activities[0].ID == "" {
			t.Errorf("Expected a generated activity id")
		}
		if _, err := l.Get("Existing"); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("Expected Existing to be replaced, but got %v", err)
		}
	})

	t.Run("Test duplicate names are rejected", func(t *testing.T) {
		dup := []models.Participant{{Name: "A"}, {Name: "A"}}
		if err := l.Restore(dup); !errors.Is(err, models.ErrDuplicateName) {
			t.Fatalf("Expected ErrDuplicateName, but got %v", err)
		}
	})
}

func TestLedger_AddEntryOverflow(t *testing.T) {
	l := NewLedger()
	_, _ = l.AddParticipant("Alice")
	if _, err := l.AddEntry("Alice", "big", math.MaxInt); err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}

	_, err := l.AddEntry("Alice", "one", 1)
	if !errors.Is(err, models.ErrInvalidEntryCount) {
		t.Fatalf("Expected ErrInvalidEntryCount, but got %v", err)
	}
	p, _ := l.Get("Alice")
	if p.Entries != math.MaxInt || len(p.Activities) != 1 {
		t.Errorf("Expected the ledger to be unchanged, but got entries=%d history=%d", p.Entries, len(p.Activities))
	}
}

func TestLedger_RestoreRejectsOverflowingHistory(t *testing.T) {
	l := NewLedger()
	bad := []models.Participant{{
		Name:    "Alice",
		Entries: math.MinInt,
		Activities: []models.Activity{
			{Label: "big", EntryCount: math.MaxInt},
			{Label: "one", EntryCount: 1},
		},
	}}
	if err := l.Restore(bad); !errors.Is(err, models.ErrInvalidEntryCount) {
		t.Fatalf("Expected ErrInvalidEntryCount, but got %v", err)
	}
}
