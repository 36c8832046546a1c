package analytics

import (
	"math"

	"pairwatch/internal/market"
)

// AlignBars intersects two bar series on their interval-start timestamps and
// returns the common timestamps with the corresponding closes, ascending. An
// empty intersection yields empty slices, not an error.
func AlignBars(y, x []market.Bar) (ts, closeY, closeX []float64) {
	ts = []float64{}
	closeY = []float64{}
	closeX = []float64{}

	xByStart := make(map[float64]float64, len(x))
	for _, bar := range x {
		xByStart[bar.Start] = bar.Close
	}
	for _, bar := range y {
		if cx, ok := xByStart[bar.Start]; ok {
			ts = append(ts, bar.Start)
			closeY = append(closeY, bar.Close)
			closeX = append(closeX, cx)
		}
	}
	return ts, closeY, closeX
}

// HedgeRatio estimates beta in y = beta*x + alpha by ordinary least squares
// over the whole series. This is a deliberately static, whole-window estimate;
// the z-score windowing downstream assumes a single beta per request window.
// Fewer than 2 points, mismatched lengths, or zero x-variance return 0.0 so the
// pipeline keeps producing a displayable value.
func HedgeRatio(y, x []float64) float64 {
	n := len(y)
	if n != len(x) || n < 2 {
		return 0.0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i := 0; i < n; i++ {
		sumX += x[i]
		sumY += y[i]
		sumXY += x[i] * y[i]
		sumXX += x[i] * x[i]
	}
	denom := float64(n)*sumXX - sumX*sumX
	if denom == 0 {
		return 0.0
	}
	return (float64(n)*sumXY - sumX*sumY) / denom
}

// SpreadZScore computes spread[t] = y[t] - beta*x[t] with the whole-window
// hedge ratio, then z-scores the spread against its rolling mean and sample
// standard deviation. The first window-1 points are NaN by construction; a
// zero-variance window also yields NaN rather than a division blowup.
func SpreadZScore(y, x []float64, window int) (spread, zscore []float64, beta float64) {
	n := len(y)
	if n != len(x) || n == 0 {
		return []float64{}, []float64{}, 0.0
	}
	beta = HedgeRatio(y, x)

	spread = make([]float64, n)
	for i := 0; i < n; i++ {
		spread[i] = y[i] - beta*x[i]
	}

	zscore = make([]float64, n)
	for i := 0; i < n; i++ {
		if window < 2 || i < window-1 {
			zscore[i] = math.NaN()
			continue
		}
		mean, std := meanStd(spread[i-window+1 : i+1])
		if std == 0 || math.IsNaN(std) {
			zscore[i] = math.NaN()
			continue
		}
		zscore[i] = (spread[i] - mean) / std
	}
	return spread, zscore, beta
}

// RollingCorrelation computes the Pearson correlation between the two series'
// percentage-change returns over a trailing window. The first return is
// undefined, so the first window points are NaN.
func RollingCorrelation(y, x []float64, window int) []float64 {
	n := len(y)
	if n != len(x) {
		return []float64{}
	}
	retY := pctChange(y)
	retX := pctChange(x)

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		// A full window of returns needs window observations after index 0.
		if window < 2 || i < window {
			out[i] = math.NaN()
			continue
		}
		out[i] = pearson(retY[i-window+1:i+1], retX[i-window+1:i+1])
	}
	return out
}

// pctChange returns series[i]/series[i-1] - 1, NaN for the first element and
// wherever the prior value is zero.
func pctChange(series []float64) []float64 {
	out := make([]float64, len(series))
	for i := range series {
		if i == 0 || series[i-1] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = series[i]/series[i-1] - 1
	}
	return out
}

// meanStd returns the mean and sample standard deviation (n-1 divisor).
func meanStd(window []float64) (mean, std float64) {
	n := float64(len(window))
	if n < 2 {
		return 0, math.NaN()
	}
	var sum float64
	for _, v := range window {
		sum += v
	}
	mean = sum / n
	var ss float64
	for _, v := range window {
		d := v - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / (n - 1))
}

func pearson(a, b []float64) float64 {
	n := float64(len(a))
	if n < 2 {
		return math.NaN()
	}
	var sumA, sumB, sumAB, sumAA, sumBB float64
	for i := range a {
		if math.IsNaN(a[i]) || math.IsNaN(b[i]) {
			return math.NaN()
		}
		sumA += a[i]
		sumB += b[i]
		sumAB += a[i] * b[i]
		sumAA += a[i] * a[i]
		sumBB += b[i] * b[i]
	}
	cov := sumAB - sumA*sumB/n
	varA := sumAA - sumA*sumA/n
	varB := sumBB - sumB*sumB/n
	if varA <= 0 || varB <= 0 {
		return math.NaN()
	}
	return cov / math.Sqrt(varA*varB)
}

// Latest returns the last element of a series, or NaN when it is empty.
func Latest(series []float64) float64 {
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}
