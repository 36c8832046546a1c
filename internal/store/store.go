// Package store persists the tick log and serves windowed range queries over it.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pairwatch/internal/market"
)

var (
	// ErrInvalidTick rejects malformed ticks at the storage boundary; they are never stored.
	ErrInvalidTick = errors.New("invalid tick")
	// ErrStorageUnavailable wraps I/O failures of the durable layer. The ingestion
	// path treats it as a per-tick failure (drop and log), never as fatal.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Store is the durable, concurrency-safe tick log. Appends and prunes are
// mutually exclusive; queries see a point-in-time snapshot and return ticks in
// ascending timestamp order.
type Store interface {
	Append(ctx context.Context, tick market.Tick) error
	// TicksSince returns all ticks for symbol with Ts >= since (epoch seconds).
	TicksSince(ctx context.Context, symbol string, since float64) ([]market.Tick, error)
	// LatestTicks returns the most recent limit ticks, ascending. A limit of
	// zero or less yields an empty result, not the whole series.
	LatestTicks(ctx context.Context, symbol string, limit int) ([]market.Tick, error)
	// Prune deletes ticks older than now-maxAge and reports how many went.
	Prune(ctx context.Context, maxAge time.Duration) (int64, error)
	Close() error
}

func validate(t market.Tick) error {
	if t.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidTick)
	}
	if t.Price <= 0 {
		return fmt.Errorf("%w: price %v", ErrInvalidTick, t.Price)
	}
	if t.Quantity <= 0 {
		return fmt.Errorf("%w: quantity %v", ErrInvalidTick, t.Quantity)
	}
	if t.Ts <= 0 {
		return fmt.Errorf("%w: timestamp %v", ErrInvalidTick, t.Ts)
	}
	return nil
}
