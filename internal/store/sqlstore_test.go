package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pairwatch/internal/market"
)

type fakeDB struct {
	execSQL  []string
	execArgs [][]any
	execErr  error
	affected int64

	querySQL  []string
	queryArgs [][]any
	queryErr  error
	rows      *fakeRows
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (int64, error) {
	f.execSQL = append(f.execSQL, sql)
	f.execArgs = append(f.execArgs, args)
	if f.execErr != nil {
		return 0, f.execErr
	}
	return f.affected, nil
}

func (f *fakeDB) Query(_ context.Context, sql string, args ...any) (rowSet, error) {
	f.querySQL = append(f.querySQL, sql)
	f.queryArgs = append(f.queryArgs, args)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.rows == nil {
		f.rows = &fakeRows{}
	}
	return f.rows, nil
}

func (f *fakeDB) Close() {}

type fakeRows struct {
	ticks  []market.Tick
	pos    int
	closed bool
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.ticks) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	t := r.ticks[r.pos-1]
	*dest[0].(*time.Time) = epochToTime(t.Ts)
	*dest[1].(*string) = t.Symbol
	*dest[2].(*float64) = t.Price
	*dest[3].(*float64) = t.Quantity
	return nil
}

func (r *fakeRows) Err() error { return nil }
func (r *fakeRows) Close()     { r.closed = true }

func TestSQLStoreAppend(t *testing.T) {
	db := &fakeDB{}
	s := newSQLStore(db)

	err := s.Append(context.Background(), market.Tick{Ts: 1700000000.5, Symbol: "BTCUSDT", Price: 42000, Quantity: 0.25})
	require.NoError(t, err)
	require.Len(t, db.execSQL, 1)
	require.Contains(t, db.execSQL[0], "INSERT INTO ticks")
	require.Equal(t, epochToTime(1700000000.5), db.execArgs[0][0])
	require.Equal(t, "BTCUSDT", db.execArgs[0][1])
}

func TestSQLStoreAppendRejectsInvalidBeforeIO(t *testing.T) {
	db := &fakeDB{}
	s := newSQLStore(db)

	err := s.Append(context.Background(), market.Tick{Ts: 1, Symbol: "BTCUSDT", Price: 0, Quantity: 1})
	require.ErrorIs(t, err, ErrInvalidTick)
	require.Empty(t, db.execSQL, "invalid tick must not reach the database")
}

func TestSQLStoreAppendWrapsStorageError(t *testing.T) {
	db := &fakeDB{execErr: errors.New("connection refused")}
	s := newSQLStore(db)

	err := s.Append(context.Background(), market.Tick{Ts: 1, Symbol: "BTCUSDT", Price: 100, Quantity: 1})
	require.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestSQLStoreTicksSince(t *testing.T) {
	db := &fakeDB{rows: &fakeRows{ticks: []market.Tick{
		{Ts: 10, Symbol: "BTCUSDT", Price: 100, Quantity: 1},
		{Ts: 20, Symbol: "BTCUSDT", Price: 110, Quantity: 2},
	}}}
	s := newSQLStore(db)

	ticks, err := s.TicksSince(context.Background(), "BTCUSDT", 10)
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	require.Equal(t, 10.0, ticks[0].Ts)
	require.Equal(t, 110.0, ticks[1].Price)
	require.True(t, db.rows.closed)

	require.Contains(t, db.querySQL[0], "ts >= $2")
	require.Contains(t, db.querySQL[0], "ORDER BY ts ASC")
	require.Equal(t, "BTCUSDT", db.queryArgs[0][0])
}

func TestSQLStoreLatestTicksFlipsAscending(t *testing.T) {
	// The SQL comes back newest-first.
	db := &fakeDB{rows: &fakeRows{ticks: []market.Tick{
		{Ts: 30, Symbol: "BTCUSDT", Price: 120, Quantity: 1},
		{Ts: 20, Symbol: "BTCUSDT", Price: 110, Quantity: 1},
		{Ts: 10, Symbol: "BTCUSDT", Price: 100, Quantity: 1},
	}}}
	s := newSQLStore(db)

	ticks, err := s.LatestTicks(context.Background(), "BTCUSDT", 3)
	require.NoError(t, err)
	require.Len(t, ticks, 3)
	require.Equal(t, 10.0, ticks[0].Ts)
	require.Equal(t, 30.0, ticks[2].Ts)
	require.Contains(t, db.querySQL[0], "ORDER BY ts DESC")

	// A non-positive limit is empty and never touches the database.
	ticks, err = s.LatestTicks(context.Background(), "BTCUSDT", 0)
	require.NoError(t, err)
	require.Empty(t, ticks)
	require.Len(t, db.querySQL, 1)
}

func TestSQLStorePrune(t *testing.T) {
	db := &fakeDB{affected: 7}
	s := newSQLStore(db)
	now := time.Unix(10_000, 0).UTC()
	s.now = func() time.Time { return now }

	deleted, err := s.Prune(context.Background(), time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(7), deleted)
	require.True(t, strings.HasPrefix(db.execSQL[0], "DELETE FROM ticks"))
	require.Equal(t, now.Add(-time.Hour), db.execArgs[0][0])
}

func TestEpochTimeRoundTrip(t *testing.T) {
	for _, ts := range []float64{0, 1700000000, 1700000000.123, 1_000_000.999} {
		got := timeToEpoch(epochToTime(ts))
		require.InDelta(t, ts, got, 0.0005, "ts %v", ts)
	}
}
