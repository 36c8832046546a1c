package main

import (
	"context"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"pairwatch/internal/config"
	"pairwatch/internal/ingest"
	"pairwatch/internal/metrics"
	"pairwatch/internal/monitor"
	"pairwatch/internal/store"
	"pairwatch/internal/util"
)

const defaultConfigPath = "internal/config/config.yaml"

func main() {
	_ = godotenv.Load()

	path := os.Getenv("PAIRWATCH_CONFIG")
	if path == "" {
		path = defaultConfigPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		cfg = config.Default()
	}
	log := util.NewLogger(cfg.App.LogLevel)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("config not loaded, using defaults")
	}

	_ = metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer st.Close()

	ig := ingest.New(cfg.Exchange, st, log)
	ig.Start()

	mon := monitor.New(cfg, st, log)
	mon.Start()

	log.Info().Strs("symbols", cfg.Exchange.Symbols).Msg("pairwatch started")
	runSignalLoop(ctx, cfg, mon, log)

	log.Info().Msg("shutting down")
	ig.Stop()
	ig.Join()
	mon.Stop()
	mon.Join()
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Store.DSN == "" {
		return store.NewMemStore(), nil
	}
	return store.Open(ctx, cfg.Store.DSN)
}

// runSignalLoop periodically recomputes and logs the signal for the first
// configured pair until the context is canceled. A richer consumer (dashboard,
// alerting sink) would call Monitor.Signal itself on its own cadence.
func runSignalLoop(ctx context.Context, cfg *config.Config, mon *monitor.Monitor, log zerolog.Logger) {
	if len(cfg.Exchange.Symbols) < 2 {
		<-ctx.Done()
		return
	}
	symY, symX := cfg.Exchange.Symbols[0], cfg.Exchange.Symbols[1]

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sig, err := mon.Signal(ctx, symY, symX, cfg.Analytics.BarInterval(), cfg.Analytics.RollingWindow)
			if err != nil {
				log.Warn().Err(err).Msg("signal computation failed")
				continue
			}
			log.Info().
				Str("pair", symY+"/"+symX).
				Float64("hedge_ratio", sig.HedgeRatio).
				Float64("spread", sig.Spread).
				Float64("zscore", sig.ZScore).
				Float64("correlation", sig.Correlation).
				Bool("alert", sig.Alert).
				Msg("pair signal")
		}
	}
}
