package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"pairwatch/internal/market"
)

// MemStore keeps the tick log in per-symbol ascending slices guarded by a
// read-write mutex. It backs tests and DSN-less runs; queries return copies so
// callers never observe concurrent mutation.
type MemStore struct {
	mu    sync.RWMutex
	ticks map[string][]market.Tick

	now func() time.Time
}

// NewMemStore creates an empty in-memory tick store.
func NewMemStore() *MemStore {
	return &MemStore{
		ticks: make(map[string][]market.Tick),
		now:   time.Now,
	}
}

// Append validates and inserts one tick, keeping the symbol's slice sorted even
// when reconnect overlap delivers an out-of-order timestamp.
func (s *MemStore) Append(_ context.Context, tick market.Tick) error {
	if err := validate(tick); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	symTicks := s.ticks[tick.Symbol]
	n := len(symTicks)
	if n == 0 || symTicks[n-1].Ts <= tick.Ts {
		s.ticks[tick.Symbol] = append(symTicks, tick)
		return nil
	}
	idx := sort.Search(n, func(i int) bool { return symTicks[i].Ts > tick.Ts })
	symTicks = append(symTicks, market.Tick{})
	copy(symTicks[idx+1:], symTicks[idx:])
	symTicks[idx] = tick
	s.ticks[tick.Symbol] = symTicks
	return nil
}

// TicksSince returns all ticks for symbol with Ts >= since, ascending.
func (s *MemStore) TicksSince(_ context.Context, symbol string, since float64) ([]market.Tick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	symTicks := s.ticks[symbol]
	idx := sort.Search(len(symTicks), func(i int) bool { return symTicks[i].Ts >= since })
	out := make([]market.Tick, len(symTicks)-idx)
	copy(out, symTicks[idx:])
	return out, nil
}

// LatestTicks returns the most recent limit ticks for symbol, ascending. A
// non-positive limit yields an empty result.
func (s *MemStore) LatestTicks(_ context.Context, symbol string, limit int) ([]market.Tick, error) {
	if limit <= 0 {
		return []market.Tick{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	symTicks := s.ticks[symbol]
	if limit > len(symTicks) {
		limit = len(symTicks)
	}
	out := make([]market.Tick, limit)
	copy(out, symTicks[len(symTicks)-limit:])
	return out, nil
}

// Prune deletes ticks older than now-maxAge across all symbols. Idempotent.
func (s *MemStore) Prune(_ context.Context, maxAge time.Duration) (int64, error) {
	cutoff := float64(s.now().Add(-maxAge).UnixMilli()) / 1000

	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for symbol, symTicks := range s.ticks {
		idx := sort.Search(len(symTicks), func(i int) bool { return symTicks[i].Ts >= cutoff })
		if idx == 0 {
			continue
		}
		deleted += int64(idx)
		kept := make([]market.Tick, len(symTicks)-idx)
		copy(kept, symTicks[idx:])
		s.ticks[symbol] = kept
	}
	return deleted, nil
}

// Close is a no-op for the in-memory store.
func (s *MemStore) Close() error { return nil }

var _ Store = (*MemStore)(nil)
