package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pairwatch/internal/market"
)

func btc(ts, price, qty float64) market.Tick {
	return market.Tick{Ts: ts, Symbol: "BTCUSDT", Price: price, Quantity: qty}
}

func TestMemStoreAppendRejectsInvalid(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	cases := []market.Tick{
		{Ts: 1, Symbol: "", Price: 100, Quantity: 1},
		{Ts: 1, Symbol: "BTCUSDT", Price: 0, Quantity: 1},
		{Ts: 1, Symbol: "BTCUSDT", Price: -5, Quantity: 1},
		{Ts: 1, Symbol: "BTCUSDT", Price: 100, Quantity: 0},
		{Ts: 1, Symbol: "BTCUSDT", Price: 100, Quantity: -1},
		{Ts: 0, Symbol: "BTCUSDT", Price: 100, Quantity: 1},
		{Ts: -3, Symbol: "BTCUSDT", Price: 100, Quantity: 1},
	}
	for _, tk := range cases {
		err := s.Append(ctx, tk)
		require.ErrorIs(t, err, ErrInvalidTick, "tick %+v", tk)
	}

	ticks, err := s.TicksSince(ctx, "BTCUSDT", 0)
	require.NoError(t, err)
	require.Empty(t, ticks)
}

func TestMemStoreTicksSince(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	for _, ts := range []float64{10, 20, 30, 40} {
		require.NoError(t, s.Append(ctx, btc(ts, 100+ts, 1)))
	}

	ticks, err := s.TicksSince(ctx, "BTCUSDT", 20)
	require.NoError(t, err)
	require.Len(t, ticks, 3)
	require.Equal(t, 20.0, ticks[0].Ts)
	require.Equal(t, 40.0, ticks[2].Ts)

	ticks, err = s.TicksSince(ctx, "BTCUSDT", 41)
	require.NoError(t, err)
	require.Empty(t, ticks)

	ticks, err = s.TicksSince(ctx, "ETHUSDT", 0)
	require.NoError(t, err)
	require.Empty(t, ticks)
}

func TestMemStoreOutOfOrderAppendKeepsSorted(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	// Reconnect overlap can deliver older timestamps after newer ones.
	for _, ts := range []float64{30, 10, 20, 20, 5} {
		require.NoError(t, s.Append(ctx, btc(ts, 100, 1)))
	}

	ticks, err := s.TicksSince(ctx, "BTCUSDT", 0)
	require.NoError(t, err)
	require.Len(t, ticks, 5)
	for i := 1; i < len(ticks); i++ {
		require.LessOrEqual(t, ticks[i-1].Ts, ticks[i].Ts)
	}
}

func TestMemStoreLatestTicks(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	for _, ts := range []float64{10, 20, 30} {
		require.NoError(t, s.Append(ctx, btc(ts, 100, 1)))
	}

	ticks, err := s.LatestTicks(ctx, "BTCUSDT", 2)
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	require.Equal(t, 20.0, ticks[0].Ts)
	require.Equal(t, 30.0, ticks[1].Ts)

	// Limit larger than available returns everything.
	ticks, err = s.LatestTicks(ctx, "BTCUSDT", 10)
	require.NoError(t, err)
	require.Len(t, ticks, 3)

	// A non-positive limit is empty, never the whole series.
	for _, limit := range []int{0, -1} {
		ticks, err = s.LatestTicks(ctx, "BTCUSDT", limit)
		require.NoError(t, err)
		require.Empty(t, ticks)
	}
}

func TestMemStorePrune(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }

	for _, ts := range []float64{100, 500, 900, 950} {
		require.NoError(t, s.Append(ctx, btc(ts, 100, 1)))
	}

	deleted, err := s.Prune(ctx, 200*time.Second)
	require.NoError(t, err)
	require.Equal(t, int64(2), deleted)

	ticks, err := s.TicksSince(ctx, "BTCUSDT", 0)
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	require.Equal(t, 900.0, ticks[0].Ts)

	// Second sweep with no new writes is a no-op.
	deleted, err = s.Prune(ctx, 200*time.Second)
	require.NoError(t, err)
	require.Zero(t, deleted)
}

func TestMemStoreConcurrentAccess(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				_ = s.Append(ctx, btc(float64(w*1000+i+1), 100, 1))
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				ticks, err := s.TicksSince(ctx, "BTCUSDT", 0)
				if err != nil {
					t.Error(err)
					return
				}
				for j := 1; j < len(ticks); j++ {
					if ticks[j-1].Ts > ticks[j].Ts {
						t.Error("snapshot not sorted")
						return
					}
				}
			}
		}()
	}
	wg.Wait()

	ticks, err := s.TicksSince(ctx, "BTCUSDT", 0)
	require.NoError(t, err)
	require.Len(t, ticks, 1000)
}

func TestValidateWrapsSentinel(t *testing.T) {
	err := validate(market.Tick{Symbol: "BTCUSDT", Price: -1, Quantity: 1})
	if !errors.Is(err, ErrInvalidTick) {
		t.Fatalf("expected ErrInvalidTick, got %v", err)
	}
}
