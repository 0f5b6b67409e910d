package indicator

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"
)

// SMA is the arithmetic mean of the trailing Period values.
type SMA struct {
	Period int
}

func (s SMA) Name() string { return fmt.Sprintf("SMA_%d", s.Period) }

func (s SMA) Calculate(values []float64) []float64 {
	return CalculateSMA(values, s.Period)
}

// CalculateSMA returns the simple moving average of values. Leading NaN
// inputs are skipped; the first period-1 defined positions stay NaN.
func CalculateSMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 {
		return out
	}

	start := 0
	for start < len(values) && math.IsNaN(values[start]) {
		start++
	}
	series := values[start:]
	if len(series) < period {
		return out
	}

	if period == 1 {
		copy(out[start:], series)
		return out
	}

	sma := talib.Sma(series, period)
	for i := period - 1; i < len(series); i++ {
		out[start+i] = sma[i]
	}
	return out
}
