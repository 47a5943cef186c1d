package gtloader

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/golang/geo/r3"
)

// Store holds the current ground-truth snapshot. Readers never see a partly
// built snapshot: rebuilds construct a complete Snapshot and swap it in.
type Store struct {
	indexer *Indexer
	current atomic.Pointer[Snapshot]
	// build serializes rebuilds.
	build sync.Mutex
}

// NewStore returns an empty store backed by indexer.
func NewStore(indexer *Indexer) *Store {
	return &Store{indexer: indexer}
}

// Snapshot returns the current snapshot, or nil before the first Rebuild.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Rebuild indexes scenario and publishes the result. On error the previous
// snapshot stays current.
func (s *Store) Rebuild(ctx context.Context, scenario Scenario) (*Snapshot, error) {
	s.build.Lock()
	defer s.build.Unlock()
	return s.rebuildLocked(ctx, scenario)
}

func (s *Store) rebuildLocked(ctx context.Context, scenario Scenario) (*Snapshot, error) {
	snap, err := s.indexer.Build(ctx, scenario)
	if err != nil {
		return nil, err
	}
	s.current.Store(snap)
	return snap, nil
}

// Randomize draws new plant positions for the current scenario and rebuilds.
// On ErrPlacementInfeasible, or any rebuild failure, the current snapshot is kept.
func (s *Store) Randomize(ctx context.Context, rng *rand.Rand, p Placement) (*Snapshot, error) {
	s.build.Lock()
	defer s.build.Unlock()

	cur := s.current.Load()
	if cur == nil {
		return nil, fmt.Errorf("no scenario loaded: %w", ErrNotFound)
	}
	positions, err := RandomizePositions(rng, len(cur.scenario.Plants), p)
	if err != nil {
		return nil, err
	}
	scenario, err := cur.scenario.WithPositions(positions)
	if err != nil {
		return nil, err
	}
	return s.rebuildLocked(ctx, scenario)
}

// Placement bounds plant positions during randomization.
type Placement struct {
	Min, Max r3.Vector
	// MinDist is the minimum center-to-center distance between plants.
	MinDist float64
	// MaxAttempts is the draw budget per plant; zero means DefaultMaxPlacementAttempts.
	MaxAttempts int
}

// DefaultMaxPlacementAttempts is the per-plant draw budget used when none is set.
const DefaultMaxPlacementAttempts = 1000

// RandomizePositions draws n positions uniformly inside [Min, Max], rejecting
// draws closer than MinDist to an already placed position.
func RandomizePositions(rng *rand.Rand, n int, p Placement) ([]r3.Vector, error) {
	if p.Max.X < p.Min.X || p.Max.Y < p.Min.Y || p.Max.Z < p.Min.Z {
		return nil, fmt.Errorf("bounds min %v exceed max %v: %w", p.Min, p.Max, ErrPlacementInfeasible)
	}
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxPlacementAttempts
	}

	placed := make([]r3.Vector, 0, n)
	for i := 0; i < n; i++ {
		ok := false
		for a := 0; a < attempts && !ok; a++ {
			cand := r3.Vector{
				X: p.Min.X + rng.Float64()*(p.Max.X-p.Min.X),
				Y: p.Min.Y + rng.Float64()*(p.Max.Y-p.Min.Y),
				Z: p.Min.Z + rng.Float64()*(p.Max.Z-p.Min.Z),
			}
			if farFromAll(cand, placed, p.MinDist) {
				placed = append(placed, cand)
				ok = true
			}
		}
		if !ok {
			return nil, fmt.Errorf("plant %d of %d after %d attempts: %w", i+1, n, attempts, ErrPlacementInfeasible)
		}
	}
	return placed, nil
}

func farFromAll(cand r3.Vector, placed []r3.Vector, minDist float64) bool {
	for _, p := range placed {
		if cand.Distance(p) < minDist {
			return false
		}
	}
	return true
}
