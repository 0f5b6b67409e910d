// Package simulate evaluates a target/stop trade on an option's bar series.
package simulate

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/amirphl/option-sim/internal/candle"
	"github.com/amirphl/option-sim/internal/option"
	"github.com/amirphl/option-sim/internal/tfutils"
)

var (
	ErrEmptySeries    = errors.New("empty series")
	ErrNoBuyingCandle = errors.New("no buying candle at or before entry")
)

// TieBreak decides the outcome when one candle reaches both levels.
type TieBreak string

const (
	TieTarget TieBreak = "target"
	TieStop   TieBreak = "stop"
)

type Outcome string

const (
	OutcomeTarget Outcome = "target"
	OutcomeStop   Outcome = "stoploss"
	OutcomeNone   Outcome = "none"
)

type Params struct {
	TargetPoints float64  `yaml:"target_points"`
	StopPoints   float64  `yaml:"stop_points"`
	Interval     string   `yaml:"interval"`
	TieBreak     TieBreak `yaml:"tie_break"`
}

func DefaultParams() Params {
	return Params{TargetPoints: 20, StopPoints: 20, Interval: "5m", TieBreak: TieTarget}
}

func (p Params) Validate() error {
	if p.TargetPoints <= 0 || p.StopPoints <= 0 {
		return errors.New("target and stop points must be positive")
	}
	if !tfutils.IsValidTimeframe(p.Interval) {
		return fmt.Errorf("invalid simulation interval %q", p.Interval)
	}
	switch p.TieBreak {
	case TieTarget, TieStop:
		return nil
	default:
		return fmt.Errorf("invalid tie break %q", p.TieBreak)
	}
}

// Record is the result of one simulated trade.
type Record struct {
	ID          option.Identifier `json:"id"`
	SignalTime  time.Time         `json:"signal_time"`
	Day         string            `json:"day"`
	BuyCandleTS time.Time         `json:"buy_candle_ts"`
	BuyPrice    float64           `json:"buy_price"`
	TargetPrice float64           `json:"target_price"`
	StopPrice   float64           `json:"stop_price"`
	Outcome     Outcome           `json:"outcome"`
	HitTime     *time.Time        `json:"hit_time"`
}

// BuyingCandle returns the index of the bar one interval before the bucket
// holding entry, or of the latest bar before that when it is missing.
func BuyingCandle(bars []candle.Candle, entry time.Time, interval time.Duration) (int, error) {
	want := tfutils.Floor(entry, interval).Add(-interval)
	// first bar after want, then step back
	i := sort.Search(len(bars), func(i int) bool {
		return bars[i].Timestamp.After(want)
	})
	if i == 0 {
		return -1, fmt.Errorf("%w: %s", ErrNoBuyingCandle, want.Format(time.RFC3339))
	}
	return i - 1, nil
}

// Simulate runs one trade over bars already aggregated to p.Interval. The
// scan is strictly sequential from the buying candle, inclusive.
func Simulate(bars []candle.Candle, entry time.Time, p Params) (Record, error) {
	if len(bars) == 0 {
		return Record{}, ErrEmptySeries
	}
	interval, err := tfutils.ParseTimeframe(p.Interval)
	if err != nil {
		return Record{}, err
	}

	start, err := BuyingCandle(bars, entry, interval)
	if err != nil {
		return Record{}, err
	}

	buy := bars[start]
	rec := Record{
		SignalTime:  entry,
		BuyCandleTS: buy.Timestamp,
		BuyPrice:    buy.High,
		TargetPrice: buy.High + p.TargetPoints,
		StopPrice:   buy.High - p.StopPoints,
		Outcome:     OutcomeNone,
	}

	for _, c := range bars[start:] {
		hitTarget := c.High >= rec.TargetPrice
		hitStop := c.Low <= rec.StopPrice
		if !hitTarget && !hitStop {
			continue
		}

		switch {
		case hitTarget && hitStop:
			rec.Outcome = OutcomeTarget
			if p.TieBreak == TieStop {
				rec.Outcome = OutcomeStop
			}
		case hitTarget:
			rec.Outcome = OutcomeTarget
		default:
			rec.Outcome = OutcomeStop
		}
		hit := c.Timestamp
		rec.HitTime = &hit
		break
	}

	return rec, nil
}

// DayBounds returns local midnight of day and of the following day.
func DayBounds(day time.Time, loc *time.Location) (time.Time, time.Time) {
	d := day.In(loc)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// Run restricts a raw option series to one trading day, aggregates it to
// p.Interval and simulates the candidate. A zero day means the day of the
// entry time.
func Run(raw []candle.Candle, c option.Candidate, day time.Time, loc *time.Location, p Params) (Record, error) {
	if day.IsZero() {
		day = c.EntryTime
	}
	from, to := DayBounds(day, loc)

	dayBars := candle.Between(candle.InLocation(raw, loc), from, to)
	if len(dayBars) == 0 {
		return Record{}, fmt.Errorf("no data on %s: %w", from.Format(option.ExpiryLayout), ErrEmptySeries)
	}
	bars, err := candle.Resample(dayBars, p.Interval)
	if err != nil {
		return Record{}, err
	}

	rec, err := Simulate(bars, c.EntryTime.In(loc), p)
	if err != nil {
		return Record{}, err
	}
	rec.ID = c.ID
	rec.Day = from.Format(option.ExpiryLayout)
	return rec, nil
}
