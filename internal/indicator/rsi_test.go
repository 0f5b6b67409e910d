package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateRSI(t *testing.T) {
	tests := []struct {
		name     string
		prices   []float64
		period   int
		expected []float64
	}{
		{
			name:     "All increasing prices",
			prices:   []float64{10, 11, 12, 13, 14, 15, 16},
			period:   3,
			expected: []float64{math.NaN(), math.NaN(), 100, 100, 100, 100, 100},
		},
		{
			name:     "All decreasing prices",
			prices:   []float64{20, 19, 18, 17, 16, 15},
			period:   3,
			expected: []float64{math.NaN(), math.NaN(), 0, 0, 0, 0},
		},
		{
			name:     "Flat prices",
			prices:   []float64{5, 5, 5, 5},
			period:   2,
			expected: []float64{math.NaN(), 50, 50, 50},
		},
		{
			name:     "Alternating prices",
			prices:   []float64{10, 12, 10, 12},
			period:   2,
			expected: []float64{math.NaN(), 100, 50, 75},
		},
		{
			name:     "Insufficient data",
			prices:   []float64{10, 11},
			period:   5,
			expected: []float64{math.NaN(), math.NaN()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculateRSI(tt.prices, tt.period)
			assert.Len(t, result, len(tt.expected))
			for i := range tt.expected {
				if math.IsNaN(tt.expected[i]) {
					assert.True(t, math.IsNaN(result[i]), "index %d should be NaN, got %v", i, result[i])
					continue
				}
				assert.InDelta(t, tt.expected[i], result[i], 0.01, "index %d", i)
			}
		})
	}
}

func TestCalculateRSI_Bounded(t *testing.T) {
	prices := make([]float64, 200)
	p := 100.0
	for i := range prices {
		p += math.Sin(float64(i)/3) * 2
		prices[i] = p
	}

	result := RSI{Period: 14}.Calculate(prices)
	for i, v := range result {
		if i < 13 {
			assert.True(t, math.IsNaN(v))
			continue
		}
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
	}
}
