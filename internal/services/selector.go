package services

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"

	"raffle/internal/models"
)

// RandSource yields uniform integers in [0, n).
// *math/rand.Rand satisfies it, which is what tests use for repeatable draws.
type RandSource interface {
	Int63n(n int64) int64
}

// CryptoSource draws from crypto/rand.
type CryptoSource struct{}

// Int63n returns a uniform value in [0, n). It panics if n <= 0 or the
// system random source fails, matching math/rand semantics.
func (CryptoSource) Int63n(n int64) int64 {
	if n <= 0 {
		panic("invalid argument to Int63n")
	}
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		panic(fmt.Sprintf("crypto/rand: %v", err))
	}
	return v.Int64()
}

// totalEntries sums the snapshot weights, rejecting non-positive entries.
func totalEntries(snapshot []models.Candidate) (int, error) {
	total := 0
	for _, c := range snapshot {
		if c.Entries <= 0 {
			return 0, fmt.Errorf("%w: %s has %d", models.ErrInvalidEntryCount, c.Name, c.Entries)
		}
		if c.Entries > math.MaxInt-total {
			return 0, fmt.Errorf("%w: total entries overflow at %s", models.ErrInvalidEntryCount, c.Name)
		}
		total += c.Entries
	}
	return total, nil
}

// selectWeighted picks index i with probability snapshot[i].Entries / total.
// The partition boundaries depend only on cumulative weight, so the order of
// the snapshot never biases the outcome.
func selectWeighted(snapshot []models.Candidate, total int, src RandSource) (int, error) {
	if len(snapshot) == 1 {
		return 0, nil
	}
	if total <= 0 {
		return 0, fmt.Errorf("%w: total entries %d", models.ErrInvalidState, total)
	}

	r := src.Int63n(int64(total))
	var cumulative int64
	for i, c := range snapshot {
		cumulative += int64(c.Entries)
		if r < cumulative {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: draw %d fell outside %d entries", models.ErrInvalidState, r, total)
}
