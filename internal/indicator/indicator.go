package indicator

import "math"

// Indicator is the interface for all technical indicators.
// Positions without enough history hold NaN.
type Indicator interface {
	Name() string
	Calculate(values []float64) []float64
}

// Defined reports whether v carries a computed value.
func Defined(v float64) bool {
	return !math.IsNaN(v)
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
