package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/amirphl/option-sim/internal/candle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ist = time.FixedZone("IST", 5*3600+30*60)

func makeBars(n int, start time.Time, step time.Duration) []candle.Candle {
	bars := make([]candle.Candle, n)
	for i := range bars {
		c := 100 + 10*math.Sin(float64(i)/4) + float64(i)*0.1
		bars[i] = candle.Candle{
			Timestamp: start.Add(time.Duration(i) * step),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Symbol:    "NIFTY",
			Timeframe: "5m",
		}
	}
	return bars
}

func TestParams_Validate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())
	assert.NoError(t, IndexParams().Validate())
	assert.Error(t, Params{FastPeriod: 20, SlowPeriod: 5, OscPeriod: 9}.Validate())
	assert.Error(t, Params{FastPeriod: 5, SlowPeriod: 20, OscPeriod: 1}.Validate())
	assert.Error(t, Params{FastPeriod: 5, SlowPeriod: 20, OscPeriod: 9, OscSmoothing: -1}.Validate())
}

func TestBuild(t *testing.T) {
	start := time.Date(2023, 12, 26, 9, 15, 0, 0, ist)
	raw := makeBars(60, start, time.Minute)

	f, err := Build(raw, "5m", DefaultParams())
	require.NoError(t, err)
	require.Equal(t, 12, f.Len())
	assert.Len(t, f.FastMA, 12)
	assert.Len(t, f.OscAvg, 12)
	assert.True(t, math.IsNaN(f.SlowMA[11]), "slow MA needs 20 bars")
	assert.False(t, math.IsNaN(f.FastMA[4]))
	assert.True(t, math.IsNaN(f.Osc[7]))
	assert.False(t, math.IsNaN(f.Osc[8]))
	assert.True(t, math.IsNaN(f.OscAvg[9]))
	assert.False(t, math.IsNaN(f.OscAvg[10]))

	_, err = Build(raw, "7m", DefaultParams())
	assert.Error(t, err)

	raw[7].Open = 0
	f, err = Build(raw, "5m", DefaultParams())
	require.NoError(t, err, "a malformed bar does not fail the frame")
	assert.Equal(t, 12, f.Len())
}

func TestFrame_IndicatorsBeforeTruncation(t *testing.T) {
	start := time.Date(2023, 12, 26, 9, 15, 0, 0, ist)
	bars := makeBars(100, start, 5*time.Minute)
	p := DefaultParams()

	full := Compute(bars, "5m", p).Between(bars[40].Timestamp, time.Time{})
	truncated := Compute(bars[40:], "5m", p)
	require.Equal(t, full.Len(), truncated.Len())

	check := func(name string, fullVals, truncVals []float64, window int) {
		for i := range truncVals {
			if i < window-1 {
				assert.True(t, math.IsNaN(truncVals[i]), "%s index %d should lack warm-up", name, i)
				assert.False(t, math.IsNaN(fullVals[i]), "%s index %d should be warmed up", name, i)
				continue
			}
			assert.InDelta(t, fullVals[i], truncVals[i], 1e-9, "%s index %d", name, i)
		}
	}
	check("fast", full.FastMA, truncated.FastMA, p.FastPeriod)
	check("slow", full.SlowMA, truncated.SlowMA, p.SlowPeriod)
}

func TestFrame_Truncations(t *testing.T) {
	start := time.Date(2023, 12, 26, 9, 15, 0, 0, ist)
	f := Compute(makeBars(30, start, 5*time.Minute), "5m", DefaultParams())

	before := f.Before(start.Add(50 * time.Minute))
	assert.Equal(t, 10, before.Len())

	tail := f.Tail(5)
	require.Equal(t, 5, tail.Len())
	assert.Equal(t, f.Candles[25], tail.Candles[0])
	assert.Equal(t, f.SlowMA[29], tail.SlowMA[4])

	between := f.Between(start.Add(10*time.Minute), start.Add(30*time.Minute))
	assert.Equal(t, 4, between.Len())

	assert.Equal(t, 3, f.Index(start.Add(15*time.Minute)))
	assert.Equal(t, -1, f.Index(start.Add(16*time.Minute)))
	assert.Equal(t, 30, f.Tail(0).Len())
}

func TestFrame_Chart(t *testing.T) {
	start := time.Date(2023, 12, 26, 9, 15, 0, 0, ist)
	f := Compute(makeBars(25, start, 5*time.Minute), "5m", DefaultParams())

	missing := f.Chart(UndefinedMissing)
	assert.Len(t, missing.Candles, 25)
	assert.Len(t, missing.SMA5, 21)
	assert.Len(t, missing.SMA20, 6)
	assert.Len(t, missing.RSIBase, 17)
	assert.Len(t, missing.RSIAvg, 15)

	zero := f.Chart(UndefinedZero)
	assert.Len(t, zero.SMA20, 6, "moving averages never zero fill")
	require.Len(t, zero.RSIBase, 25)
	assert.Equal(t, 0.0, zero.RSIBase[0].Value)
	assert.Equal(t, start.Unix(), zero.RSIBase[0].Time)
	assert.Equal(t, start.Format(time.RFC3339), zero.From)

	_, err := ParseUndefinedPolicy("bogus")
	assert.Error(t, err)
	p, err := ParseUndefinedPolicy("")
	require.NoError(t, err)
	assert.Equal(t, UndefinedMissing, p)
}
