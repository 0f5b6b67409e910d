package indicator

import (
	"fmt"
	"math"
)

// RSI is a Wilder-style relative strength oscillator bounded to [0,100].
type RSI struct {
	Period int
}

func (r RSI) Name() string { return fmt.Sprintf("RSI_%d", r.Period) }

func (r RSI) Calculate(values []float64) []float64 {
	return CalculateRSI(values, r.Period)
}

// CalculateRSI smooths gains and losses with alpha = 1/period, seeded from
// the first price change. The first period-1 positions are NaN.
func CalculateRSI(prices []float64, period int) []float64 {
	rsi := nanSlice(len(prices))
	if len(prices) < period || period <= 1 {
		return rsi
	}

	alpha := 1 / float64(period)
	var avgGain, avgLoss float64

	for i := 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		gain := math.Max(change, 0)
		loss := math.Max(-change, 0)

		if i == 1 {
			avgGain, avgLoss = gain, loss
		} else {
			avgGain = (1-alpha)*avgGain + alpha*gain
			avgLoss = (1-alpha)*avgLoss + alpha*loss
		}

		if i < period-1 {
			continue
		}

		switch {
		case avgLoss == 0 && avgGain == 0:
			rsi[i] = 50
		case avgLoss == 0:
			rsi[i] = 100
		default:
			rs := avgGain / avgLoss
			rsi[i] = 100 - (100 / (1 + rs))
		}
	}

	return rsi
}
