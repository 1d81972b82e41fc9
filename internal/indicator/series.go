package indicator

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Every function here returns a slice the length of its input. Positions
// inside an indicator's warm-up period are NaN.

func nans(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMA computes the simple moving average over period.
func SMA(values []float64, period int) []float64 {
	out := nans(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA computes the exponential moving average with alpha 2/(period+1),
// seeded with the SMA of the first period finite values.
func EMA(values []float64, period int) []float64 {
	out := nans(len(values))
	start := 0
	for start < len(values) && math.IsNaN(values[start]) {
		start++
	}
	if period <= 0 || len(values)-start < period {
		return out
	}
	seed := 0.0
	for _, v := range values[start : start+period] {
		seed += v
	}
	prev := seed / float64(period)
	out[start+period-1] = prev
	alpha := 2.0 / float64(period+1)
	for i := start + period; i < len(values); i++ {
		prev = alpha*values[i] + (1-alpha)*prev
		out[i] = prev
	}
	return out
}

// RSI computes Wilder's relative strength index. The first value is at
// index period.
func RSI(closes []float64, period int) []float64 {
	out := nans(len(closes))
	if period <= 0 || len(closes) < period+1 {
		return out
	}
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		g, l := gainLoss(closes[i] - closes[i-1])
		avgGain += g
		avgLoss += l
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		g, l := gainLoss(closes[i] - closes[i-1])
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func gainLoss(change float64) (gain, loss float64) {
	if change > 0 {
		return change, 0
	}
	return 0, -change
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	return 100 - 100/(1+avgGain/avgLoss)
}

// MACD returns the MACD line, its signal line and the histogram.
func MACD(closes []float64, fast, slow, signal int) (line, sig, hist []float64) {
	fastEMA, slowEMA := EMA(closes, fast), EMA(closes, slow)
	line = make([]float64, len(closes))
	for i := range closes {
		line[i] = fastEMA[i] - slowEMA[i]
	}
	sig = EMA(line, signal)
	hist = make([]float64, len(closes))
	for i := range closes {
		hist[i] = line[i] - sig[i]
	}
	return line, sig, hist
}

// Bollinger returns the upper and lower bands at width sample standard
// deviations around the SMA, and %B of the close within them.
func Bollinger(closes []float64, period int, width float64) (upper, lower, pctB []float64) {
	mid := SMA(closes, period)
	upper, lower, pctB = nans(len(closes)), nans(len(closes)), nans(len(closes))
	if period < 2 {
		return upper, lower, pctB
	}
	for i := period - 1; i < len(closes); i++ {
		_, sd := stat.MeanStdDev(closes[i-period+1:i+1], nil)
		upper[i] = mid[i] + width*sd
		lower[i] = mid[i] - width*sd
		if span := upper[i] - lower[i]; span > 0 {
			pctB[i] = (closes[i] - lower[i]) / span
		}
	}
	return upper, lower, pctB
}

// ATR computes Wilder's average true range.
func ATR(high, low, closes []float64, period int) []float64 {
	n := len(closes)
	out := nans(n)
	if period <= 0 || n < period {
		return out
	}
	tr := make([]float64, n)
	for i := range closes {
		tr[i] = high[i] - low[i]
		if i > 0 {
			tr[i] = math.Max(tr[i], math.Max(math.Abs(high[i]-closes[i-1]), math.Abs(low[i]-closes[i-1])))
		}
	}
	sum := 0.0
	for _, v := range tr[:period] {
		sum += v
	}
	prev := sum / float64(period)
	out[period-1] = prev
	for i := period; i < n; i++ {
		prev = (prev*float64(period-1) + tr[i]) / float64(period)
		out[i] = prev
	}
	return out
}

// OBV computes on-balance volume starting from zero.
func OBV(closes, volume []float64) []float64 {
	out := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		switch {
		case closes[i] > closes[i-1]:
			out[i] = out[i-1] + volume[i]
		case closes[i] < closes[i-1]:
			out[i] = out[i-1] - volume[i]
		default:
			out[i] = out[i-1]
		}
	}
	return out
}

// Returns computes the one-day percentage change. Non-finite results are NaN.
func Returns(closes []float64) []float64 {
	out := nans(len(closes))
	for i := 1; i < len(closes); i++ {
		r := 100 * (closes[i] - closes[i-1]) / closes[i-1]
		if !math.IsNaN(r) && !math.IsInf(r, 0) {
			out[i] = r
		}
	}
	return out
}
