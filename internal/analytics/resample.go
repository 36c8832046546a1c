// Package analytics derives OHLCV bars and pair trading statistics from raw
// tick sequences. Everything here is a pure function; callers own the data.
package analytics

import (
	"math"
	"sort"
	"time"

	"pairwatch/internal/market"
)

// Resample buckets ticks into fixed-interval OHLCV bars. Buckets with no ticks
// produce no bar. Input is expected ascending by timestamp but is re-sorted
// defensively, since a corrupted ordering would silently scramble buckets.
func Resample(ticks []market.Tick, interval time.Duration) []market.Bar {
	return ResampleFill(ticks, interval, false)
}

// ResampleFill is Resample with optional forward fill: gap buckets between real
// bars repeat the prior close with zero volume, for series continuity. Gaps are
// only filled between observed data, never extended past either end.
func ResampleFill(ticks []market.Tick, interval time.Duration, forwardFill bool) []market.Bar {
	secs := interval.Seconds()
	if len(ticks) == 0 || secs <= 0 {
		return []market.Bar{}
	}

	if !sort.SliceIsSorted(ticks, func(i, j int) bool { return ticks[i].Ts < ticks[j].Ts }) {
		sorted := make([]market.Tick, len(ticks))
		copy(sorted, ticks)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Ts < sorted[j].Ts })
		ticks = sorted
	}

	bars := []market.Bar{}
	var cur *market.Bar
	for _, tk := range ticks {
		start := math.Floor(tk.Ts/secs) * secs
		if cur != nil && start == cur.Start {
			if tk.Price > cur.High {
				cur.High = tk.Price
			}
			if tk.Price < cur.Low {
				cur.Low = tk.Price
			}
			cur.Close = tk.Price
			cur.Volume += tk.Quantity
			continue
		}
		if cur != nil {
			bars = append(bars, *cur)
		}
		cur = &market.Bar{
			Start:  start,
			Open:   tk.Price,
			High:   tk.Price,
			Low:    tk.Price,
			Close:  tk.Price,
			Volume: tk.Quantity,
		}
	}
	bars = append(bars, *cur)

	if forwardFill {
		bars = fillGaps(bars, secs)
	}
	return bars
}

func fillGaps(bars []market.Bar, secs float64) []market.Bar {
	if len(bars) < 2 {
		return bars
	}
	filled := make([]market.Bar, 0, len(bars))
	filled = append(filled, bars[0])
	for _, bar := range bars[1:] {
		prev := filled[len(filled)-1]
		for start := prev.Start + secs; start < bar.Start; start += secs {
			filled = append(filled, market.Bar{
				Start: start,
				Open:  prev.Close,
				High:  prev.Close,
				Low:   prev.Close,
				Close: prev.Close,
			})
		}
		filled = append(filled, bar)
	}
	return filled
}
