// Package market standardizes payloads shared between ingestion, storage, and analytics layers.
package market

// Tick models one executed trade as delivered by the exchange feed.
// Ts is epoch seconds; the feed reports milliseconds and the ingester converts.
type Tick struct {
	Ts       float64
	Symbol   string
	Price    float64
	Quantity float64
}

// Bar is an OHLCV summary of the ticks falling in one fixed interval bucket.
type Bar struct {
	Start  float64 // epoch seconds, aligned to the interval
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// PairSignal is the stat-arb snapshot consumers act on. It is recomputed per
// request window and never persisted.
type PairSignal struct {
	SymbolY     string
	SymbolX     string
	HedgeRatio  float64
	Spread      float64
	ZScore      float64
	Correlation float64
	AsOf        float64 // epoch seconds of the last aligned bar
	Alert       bool    // |ZScore| reached the configured threshold
}
