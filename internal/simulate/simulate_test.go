package simulate

import (
	"testing"
	"time"

	"github.com/amirphl/option-sim/internal/candle"
	"github.com/amirphl/option-sim/internal/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ist = time.FixedZone("IST", 5*3600+30*60)
	day = time.Date(2023, 12, 26, 0, 0, 0, 0, ist)
)

func at(hh, mm int) time.Time {
	return time.Date(2023, 12, 26, hh, mm, 0, 0, ist)
}

func bar(ts time.Time, high, low float64) candle.Candle {
	mid := (high + low) / 2
	return candle.Candle{Timestamp: ts, Open: mid, High: high, Low: low, Close: mid}
}

func TestSimulate_Outcomes(t *testing.T) {
	// the buying candle for a 10:30 entry is 10:25
	tests := []struct {
		name    string
		later   []candle.Candle
		outcome Outcome
		hit     time.Time
	}{
		{
			name:    "Target first",
			later:   []candle.Candle{bar(at(10, 30), 110, 90), bar(at(10, 35), 121, 85), bar(at(10, 40), 100, 79)},
			outcome: OutcomeTarget,
			hit:     at(10, 35),
		},
		{
			name:    "Stop first",
			later:   []candle.Candle{bar(at(10, 30), 119, 90), bar(at(10, 35), 110, 79), bar(at(10, 40), 125, 100)},
			outcome: OutcomeStop,
			hit:     at(10, 35),
		},
		{
			name:    "Neither",
			later:   []candle.Candle{bar(at(10, 30), 119, 81), bar(at(10, 35), 115, 85)},
			outcome: OutcomeNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bars := append([]candle.Candle{bar(at(10, 20), 95, 90), bar(at(10, 25), 100, 95)}, tt.later...)

			rec, err := Simulate(bars, at(10, 30), DefaultParams())
			require.NoError(t, err)
			assert.Equal(t, at(10, 25), rec.BuyCandleTS)
			assert.Equal(t, 100.0, rec.BuyPrice)
			assert.Equal(t, 120.0, rec.TargetPrice)
			assert.Equal(t, 80.0, rec.StopPrice)
			assert.Equal(t, tt.outcome, rec.Outcome)
			if tt.hit.IsZero() {
				assert.Nil(t, rec.HitTime)
			} else {
				require.NotNil(t, rec.HitTime)
				assert.Equal(t, tt.hit, *rec.HitTime)
			}
		})
	}
}

func TestSimulate_SameCandleTie(t *testing.T) {
	bars := []candle.Candle{bar(at(10, 25), 100, 95), bar(at(10, 30), 125, 75)}

	rec, err := Simulate(bars, at(10, 30), DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, OutcomeTarget, rec.Outcome)

	p := DefaultParams()
	p.TieBreak = TieStop
	rec, err = Simulate(bars, at(10, 30), p)
	require.NoError(t, err)
	assert.Equal(t, OutcomeStop, rec.Outcome)
}

func TestSimulate_BuyingCandleIsScanned(t *testing.T) {
	// a buying candle with a long lower wick stops out on itself
	bars := []candle.Candle{{Timestamp: at(10, 25), Open: 95, High: 100, Low: 78, Close: 90}}
	rec, err := Simulate(bars, at(10, 32), DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, OutcomeStop, rec.Outcome)
	assert.Equal(t, at(10, 25), *rec.HitTime)
}

func TestBuyingCandle(t *testing.T) {
	bars := []candle.Candle{bar(at(10, 0), 10, 9), bar(at(10, 10), 10, 9), bar(at(10, 30), 10, 9)}

	// 10:25 is missing, fall back to 10:10
	i, err := BuyingCandle(bars, at(10, 33), 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, i)

	i, err = BuyingCandle(bars, at(10, 5), 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, i)

	_, err = BuyingCandle(bars, at(10, 4), 5*time.Minute)
	assert.ErrorIs(t, err, ErrNoBuyingCandle)
}

func TestSimulate_Errors(t *testing.T) {
	_, err := Simulate(nil, at(10, 30), DefaultParams())
	assert.ErrorIs(t, err, ErrEmptySeries)

	_, err = Simulate([]candle.Candle{bar(at(11, 0), 10, 9)}, at(10, 30), DefaultParams())
	assert.ErrorIs(t, err, ErrNoBuyingCandle)
}

func TestParams_Validate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())

	bad := []Params{
		{TargetPoints: 0, StopPoints: 20, Interval: "5m", TieBreak: TieTarget},
		{TargetPoints: 20, StopPoints: 20, Interval: "7m", TieBreak: TieTarget},
		{TargetPoints: 20, StopPoints: 20, Interval: "5m", TieBreak: "coin"},
	}
	for _, p := range bad {
		assert.Error(t, p.Validate())
	}
}

func TestRun_RestrictsToDayAndResamples(t *testing.T) {
	id := option.Identifier{Strike: 21400, Type: option.Call}
	var raw []candle.Candle
	// previous day data that would otherwise be picked as buying candle
	raw = append(raw, bar(time.Date(2023, 12, 22, 15, 25, 0, 0, ist), 500, 400))
	for m := 0; m < 15; m++ {
		raw = append(raw, bar(at(10, 20+m), 100+float64(m), 95))
	}

	c := option.Candidate{ID: id, EntryTime: at(10, 30)}
	rec, err := Run(raw, c, time.Time{}, ist, DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, "2023-12-26", rec.Day)
	assert.Equal(t, at(10, 25), rec.BuyCandleTS)
	assert.Equal(t, 109.0, rec.BuyPrice, "high of the aggregated 10:25 bucket")
	assert.Equal(t, OutcomeNone, rec.Outcome)

	c.EntryTime = time.Date(2023, 12, 27, 10, 30, 0, 0, ist)
	_, err = Run(raw, c, time.Time{}, ist, DefaultParams())
	assert.ErrorIs(t, err, ErrEmptySeries)

	_, err = Run(raw, option.Candidate{ID: id, EntryTime: at(10, 30)}, day, ist, DefaultParams())
	assert.NoError(t, err)
}

func TestRun_MalformedBarIsDropped(t *testing.T) {
	id := option.Identifier{Strike: 21400, Type: option.Call}
	var raw []candle.Candle
	for m := 0; m < 120; m++ {
		raw = append(raw, bar(at(9, 15).Add(time.Duration(m)*time.Minute), 101, 99))
	}
	raw[3].Low = raw[3].Open + 0.05

	c := option.Candidate{ID: id, EntryTime: at(10, 30)}
	rec, err := Run(raw, c, time.Time{}, ist, DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, at(10, 25), rec.BuyCandleTS)
	assert.Equal(t, 101.0, rec.BuyPrice)
	assert.Equal(t, OutcomeNone, rec.Outcome)
}
