// Package monitor is the consumer-facing surface of the pipeline: windowed
// tick queries, on-demand pair signals, and the retention sweep.
package monitor

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pairwatch/internal/analytics"
	"pairwatch/internal/config"
	"pairwatch/internal/market"
	"pairwatch/internal/metrics"
	"pairwatch/internal/store"
)

// Monitor composes the store, resampler, and pair analytics behind the query
// contract the presentation layer depends on. Signal computation is pure and
// synchronous; only the prune loop runs in the background.
type Monitor struct {
	cfg   *config.Config
	store store.Store
	log   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once

	now func() time.Time
}

// New wires a monitor over the given store.
func New(cfg *config.Config, st store.Store, log zerolog.Logger) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		cfg:    cfg,
		store:  st,
		log:    log.With().Str("component", "monitor").Logger(),
		ctx:    ctx,
		cancel: cancel,
		now:    time.Now,
	}
}

// TicksSince exposes the raw tick window for one symbol.
func (m *Monitor) TicksSince(ctx context.Context, symbol string, since float64) ([]market.Tick, error) {
	return m.store.TicksSince(ctx, symbol, since)
}

// LatestTicks exposes the most recent ticks for one symbol, ascending.
func (m *Monitor) LatestTicks(ctx context.Context, symbol string, limit int) ([]market.Tick, error) {
	return m.store.LatestTicks(ctx, symbol, limit)
}

// Signal recomputes the pair snapshot for (symbolY, symbolX) from the recent
// tick window. Insufficient or non-overlapping data degrades to a neutral
// snapshot rather than an error; storage read failures do propagate, since a
// failed query has no safe silent default.
func (m *Monitor) Signal(ctx context.Context, symbolY, symbolX string, interval time.Duration, window int) (market.PairSignal, error) {
	sig := market.PairSignal{
		SymbolY: symbolY,
		SymbolX: symbolX,
		ZScore:  math.NaN(),
	}

	since := float64(m.now().Add(-m.cfg.Analytics.Lookback()).UnixMilli()) / 1000
	ticksY, err := m.store.TicksSince(ctx, symbolY, since)
	if err != nil {
		return sig, err
	}
	ticksX, err := m.store.TicksSince(ctx, symbolX, since)
	if err != nil {
		return sig, err
	}

	barsY := analytics.Resample(ticksY, interval)
	barsX := analytics.Resample(ticksX, interval)
	ts, closeY, closeX := analytics.AlignBars(barsY, barsX)
	if len(ts) == 0 {
		return sig, nil
	}

	spread, zscore, beta := analytics.SpreadZScore(closeY, closeX, window)
	corr := analytics.RollingCorrelation(closeY, closeX, window)

	sig.HedgeRatio = beta
	sig.Spread = analytics.Latest(spread)
	sig.ZScore = analytics.Latest(zscore)
	sig.Correlation = analytics.Latest(corr)
	sig.AsOf = ts[len(ts)-1]

	if !math.IsNaN(sig.ZScore) && math.Abs(sig.ZScore) >= m.cfg.Analytics.ZScoreThreshold {
		sig.Alert = true
		metrics.AlertsTotal.WithLabelValues(symbolY + "/" + symbolX).Inc()
		m.log.Warn().
			Str("pair", symbolY+"/"+symbolX).
			Float64("zscore", sig.ZScore).
			Float64("spread", sig.Spread).
			Msg("z-score crossed alert threshold")
	}
	return sig, nil
}

// Start launches the periodic retention sweep. Idempotent.
func (m *Monitor) Start() {
	m.startOnce.Do(func() {
		m.wg.Add(1)
		go m.pruneLoop()
	})
}

// Stop halts the retention sweep. Idempotent; pair with Join.
func (m *Monitor) Stop() {
	m.stopOnce.Do(m.cancel)
}

// Join blocks until the background sweep has fully exited.
func (m *Monitor) Join() {
	m.wg.Wait()
}

func (m *Monitor) pruneLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Store.PruneInterval())
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.pruneOnce()
		}
	}
}

func (m *Monitor) pruneOnce() {
	deleted, err := m.store.Prune(m.ctx, m.cfg.Store.Retention())
	if err != nil {
		m.log.Warn().Err(err).Msg("retention sweep failed")
		return
	}
	metrics.TicksPruned.Add(float64(deleted))
	if deleted > 0 {
		m.log.Info().Int64("deleted", deleted).Msg("pruned old ticks")
	}
}
