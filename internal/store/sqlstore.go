package store

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"pairwatch/internal/market"
)

// SQLStore persists ticks in a single append-only table over the postgres wire
// protocol (Postgres or QuestDB). The schema is one row per trade:
//
//	ticks(ts TIMESTAMPTZ, symbol TEXT, price DOUBLE PRECISION, quantity DOUBLE PRECISION)
//
// indexed on (ts, symbol) for range scans.
type SQLStore struct {
	db database

	now func() time.Time
}

// database abstracts the pgx pool behind the few calls the store needs so unit
// tests can substitute a fake.
type database interface {
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
	Query(ctx context.Context, sql string, args ...any) (rowSet, error)
	Close()
}

// rowSet is the subset of pgx.Rows the store consumes.
type rowSet interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

type pgxDatabase struct {
	pool *pgxpool.Pool
}

func (d pgxDatabase) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := d.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (d pgxDatabase) Query(ctx context.Context, sql string, args ...any) (rowSet, error) {
	rows, err := d.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (d pgxDatabase) Close() { d.pool.Close() }

// Open connects the pool, verifies the connection, and ensures the tick table exists.
func Open(ctx context.Context, dsn string) (*SQLStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: parse dsn: %w", ErrStorageUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %w", ErrStorageUnavailable, err)
	}
	s := newSQLStore(pgxDatabase{pool: pool})
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func newSQLStore(db database) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

func (s *SQLStore) ensureSchema(ctx context.Context) error {
	const createTable = `CREATE TABLE IF NOT EXISTS ticks (
		ts TIMESTAMPTZ NOT NULL,
		symbol TEXT NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		quantity DOUBLE PRECISION NOT NULL
	)`
	if _, err := s.db.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("%w: create table: %w", ErrStorageUnavailable, err)
	}
	// QuestDB maintains its own timestamp index and rejects CREATE INDEX, so a
	// failure here is not fatal.
	const createIndex = `CREATE INDEX IF NOT EXISTS idx_ticks_ts_symbol ON ticks (ts, symbol)`
	_, _ = s.db.Exec(ctx, createIndex)
	return nil
}

// Append validates and inserts one tick.
func (s *SQLStore) Append(ctx context.Context, tick market.Tick) error {
	if err := validate(tick); err != nil {
		return err
	}
	const insert = `INSERT INTO ticks (ts, symbol, price, quantity) VALUES ($1, $2, $3, $4)`
	if _, err := s.db.Exec(ctx, insert, epochToTime(tick.Ts), tick.Symbol, tick.Price, tick.Quantity); err != nil {
		return fmt.Errorf("%w: insert tick: %w", ErrStorageUnavailable, err)
	}
	return nil
}

// TicksSince returns all ticks for symbol with Ts >= since, ascending.
func (s *SQLStore) TicksSince(ctx context.Context, symbol string, since float64) ([]market.Tick, error) {
	const query = `SELECT ts, symbol, price, quantity FROM ticks
		WHERE symbol = $1 AND ts >= $2 ORDER BY ts ASC`
	rows, err := s.db.Query(ctx, query, symbol, epochToTime(since))
	if err != nil {
		return nil, fmt.Errorf("%w: query since: %w", ErrStorageUnavailable, err)
	}
	return scanTicks(rows)
}

// LatestTicks returns the most recent limit ticks for symbol, ascending.
func (s *SQLStore) LatestTicks(ctx context.Context, symbol string, limit int) ([]market.Tick, error) {
	if limit <= 0 {
		return []market.Tick{}, nil
	}
	const query = `SELECT ts, symbol, price, quantity FROM ticks
		WHERE symbol = $1 ORDER BY ts DESC LIMIT $2`
	rows, err := s.db.Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query latest: %w", ErrStorageUnavailable, err)
	}
	ticks, err := scanTicks(rows)
	if err != nil {
		return nil, err
	}
	// The scan came back newest-first; flip to ascending.
	for i, j := 0, len(ticks)-1; i < j; i, j = i+1, j-1 {
		ticks[i], ticks[j] = ticks[j], ticks[i]
	}
	return ticks, nil
}

// Prune deletes ticks older than now-maxAge.
func (s *SQLStore) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := s.now().Add(-maxAge)
	deleted, err := s.db.Exec(ctx, `DELETE FROM ticks WHERE ts < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: prune: %w", ErrStorageUnavailable, err)
	}
	return deleted, nil
}

// Close releases the connection pool.
func (s *SQLStore) Close() error {
	s.db.Close()
	return nil
}

func scanTicks(rows rowSet) ([]market.Tick, error) {
	defer rows.Close()

	ticks := []market.Tick{}
	for rows.Next() {
		var ts time.Time
		var t market.Tick
		if err := rows.Scan(&ts, &t.Symbol, &t.Price, &t.Quantity); err != nil {
			return nil, fmt.Errorf("%w: scan tick: %w", ErrStorageUnavailable, err)
		}
		t.Ts = timeToEpoch(ts)
		ticks = append(ticks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate rows: %w", ErrStorageUnavailable, err)
	}
	return ticks, nil
}

func epochToTime(ts float64) time.Time {
	return time.UnixMilli(int64(math.Round(ts * 1000))).UTC()
}

func timeToEpoch(t time.Time) float64 {
	return float64(t.UnixMilli()) / 1000
}

var _ Store = (*SQLStore)(nil)
