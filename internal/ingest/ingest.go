// Package ingest keeps a live trade feed flowing into the tick store,
// surviving disconnects for as long as the process runs.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"pairwatch/internal/config"
	"pairwatch/internal/market"
	"pairwatch/internal/metrics"
	"pairwatch/internal/store"
)

// State is the connection lifecycle phase of the ingester.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const (
	initialBackoff    = time.Second
	maxBackoff        = 30 * time.Second
	backoffFactor     = 1.8
	readDeadline      = 30 * time.Second
	pingInterval      = 15 * time.Second
	handshakeTimeout  = 10 * time.Second
	storeWriteTimeout = 500 * time.Millisecond
)

// Ingester owns one multiplexed websocket connection covering the configured
// symbol set and appends every parsed trade to the store. Transport failures
// are recovered internally with bounded backoff; they never escape.
type Ingester struct {
	wsURL   string
	symbols []string
	store   store.Store
	log     zerolog.Logger

	state  atomic.Int32
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// New builds an ingester for the configured exchange. Call Start to begin.
func New(cfg config.Exchange, st store.Store, log zerolog.Logger) *Ingester {
	ctx, cancel := context.WithCancel(context.Background())
	return &Ingester{
		wsURL:   strings.TrimSuffix(cfg.WSURL, "/"),
		symbols: append([]string(nil), cfg.Symbols...),
		store:   st,
		log:     log.With().Str("component", "ingest").Logger(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the connect loop in the background. Idempotent.
func (ig *Ingester) Start() {
	ig.startOnce.Do(func() {
		ig.wg.Add(1)
		go ig.run()
	})
}

// Stop asks the connect loop to terminate, closing any open connection to
// unblock a pending read. Idempotent; pair with Join to wait for completion.
func (ig *Ingester) Stop() {
	ig.stopOnce.Do(ig.cancel)
}

// Join blocks until the background loop has fully exited. After Stop followed
// by Join, no further store writes will be attempted.
func (ig *Ingester) Join() {
	ig.wg.Wait()
}

// State reports the current lifecycle phase.
func (ig *Ingester) State() State {
	return State(ig.state.Load())
}

func (ig *Ingester) setState(s State) {
	ig.state.Store(int32(s))
}

func (ig *Ingester) run() {
	defer ig.wg.Done()
	defer ig.setState(StateStopped)

	url := ig.streamURL()
	backoff := initialBackoff
	for {
		if ig.ctx.Err() != nil {
			return
		}
		ig.setState(StateConnecting)
		connected, err := ig.consume(ig.ctx, url)
		if ig.ctx.Err() != nil {
			return
		}
		if connected {
			backoff = initialBackoff
		}
		ig.setState(StateDisconnected)
		metrics.ReconnectsTotal.Inc()
		ig.log.Warn().Err(err).Dur("backoff", backoff).Msg("feed disconnected, reconnecting")
		select {
		case <-time.After(backoff):
		case <-ig.ctx.Done():
			return
		}
		if next := time.Duration(float64(backoff) * backoffFactor); next < maxBackoff {
			backoff = next
		} else {
			backoff = maxBackoff
		}
	}
}

func (ig *Ingester) streamURL() string {
	streams := make([]string, len(ig.symbols))
	for i, sym := range ig.symbols {
		streams[i] = strings.ToLower(sym) + "@trade"
	}
	return fmt.Sprintf("%s/stream?streams=%s", ig.wsURL, strings.Join(streams, "/"))
}

// consume dials the combined stream and reads messages until the connection
// drops or the context is canceled. The returned bool reports whether the dial
// succeeded, so the caller can reset its backoff.
func (ig *Ingester) consume(ctx context.Context, url string) (bool, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	ig.setState(StateConnected)
	ig.log.Info().Strs("symbols", ig.symbols).Msg("connected trade feed")

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	connCtx, connCancel := context.WithCancel(ctx)
	defer connCancel()
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-connCtx.Done():
				// Unblocks the pending read so Stop takes effect promptly.
				conn.Close()
				return
			}
		}
	}()

	for {
		if ctx.Err() != nil {
			return true, ctx.Err()
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		ig.handleMessage(ctx, message)
	}
}

type streamEnvelope struct {
	Stream string     `json:"stream"`
	Data   tradeEvent `json:"data"`
}

type tradeEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
}

// handleMessage parses one feed message and appends the trade. A malformed
// message is logged and skipped; it must never tear down the connection.
func (ig *Ingester) handleMessage(ctx context.Context, message []byte) {
	var env streamEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		ig.log.Warn().Err(err).Msg("failed to decode feed message")
		return
	}
	if env.Data.TradeTime == 0 && env.Data.Price == "" {
		// Subscription acks and other non-trade frames.
		return
	}

	symbol := env.Data.Symbol
	if symbol == "" {
		symbol = parseStreamSymbol(env.Stream)
	}
	price, err := strconv.ParseFloat(env.Data.Price, 64)
	if err != nil {
		ig.log.Warn().Err(err).Str("symbol", symbol).Msg("invalid price in feed message")
		return
	}
	qty, err := strconv.ParseFloat(env.Data.Quantity, 64)
	if err != nil {
		ig.log.Warn().Err(err).Str("symbol", symbol).Msg("invalid quantity in feed message")
		return
	}
	if env.Data.TradeTime <= 0 {
		metrics.TicksDropped.WithLabelValues(symbol, "invalid").Inc()
		ig.log.Warn().Str("symbol", symbol).Int64("trade_time", env.Data.TradeTime).Msg("missing trade time in feed message")
		return
	}

	tick := market.Tick{
		Ts:       float64(env.Data.TradeTime) / 1000,
		Symbol:   symbol,
		Price:    price,
		Quantity: qty,
	}
	// The store write must stay fast and local; a slow or failing write
	// drops the tick rather than stalling the read loop.
	writeCtx, cancel := context.WithTimeout(ctx, storeWriteTimeout)
	defer cancel()
	if err := ig.store.Append(writeCtx, tick); err != nil {
		switch {
		case errors.Is(err, store.ErrInvalidTick):
			metrics.TicksDropped.WithLabelValues(symbol, "invalid").Inc()
			ig.log.Debug().Err(err).Str("symbol", symbol).Msg("rejected tick")
		default:
			metrics.TicksDropped.WithLabelValues(symbol, "storage").Inc()
			ig.log.Warn().Err(err).Str("symbol", symbol).Msg("dropped tick, storage write failed")
		}
		return
	}
	metrics.TicksTotal.WithLabelValues(symbol).Inc()
}

func parseStreamSymbol(stream string) string {
	parts := strings.Split(stream, "@")
	if len(parts) == 0 || parts[0] == "" {
		return strings.ToUpper(stream)
	}
	return strings.ToUpper(parts[0])
}
