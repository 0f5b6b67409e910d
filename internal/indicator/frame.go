package indicator

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/amirphl/option-sim/internal/candle"
)

// Params selects the moving average windows and oscillator settings.
// OscSmoothing of 0 leaves the oscillator unsmoothed.
type Params struct {
	FastPeriod   int `yaml:"fast_period"`
	SlowPeriod   int `yaml:"slow_period"`
	OscPeriod    int `yaml:"osc_period"`
	OscSmoothing int `yaml:"osc_smoothing"`
}

// DefaultParams are the option chart settings.
func DefaultParams() Params {
	return Params{FastPeriod: 5, SlowPeriod: 20, OscPeriod: 9, OscSmoothing: 3}
}

// IndexParams are the index-level settings: 14 period, unsmoothed.
func IndexParams() Params {
	return Params{FastPeriod: 5, SlowPeriod: 20, OscPeriod: 14}
}

func (p Params) Validate() error {
	if p.FastPeriod <= 0 || p.SlowPeriod <= 0 {
		return errors.New("moving average periods must be positive")
	}
	if p.FastPeriod >= p.SlowPeriod {
		return fmt.Errorf("fast period %d must be shorter than slow period %d", p.FastPeriod, p.SlowPeriod)
	}
	if p.OscPeriod <= 1 {
		return errors.New("oscillator period must be greater than 1")
	}
	if p.OscSmoothing < 0 {
		return errors.New("oscillator smoothing cannot be negative")
	}
	return nil
}

// Frame is a resampled bar series with indicator columns aligned by index.
type Frame struct {
	Timeframe string
	Params    Params
	Candles   []candle.Candle
	FastMA    []float64
	SlowMA    []float64
	Osc       []float64
	OscAvg    []float64
}

// Build resamples raw to timeframe and computes every indicator over the
// full resampled series. Truncate the returned frame, never the input.
func Build(raw []candle.Candle, timeframe string, p Params) (*Frame, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	bars, err := candle.Resample(raw, timeframe)
	if err != nil {
		return nil, fmt.Errorf("failed to resample to %s: %w", timeframe, err)
	}
	return Compute(bars, timeframe, p), nil
}

// Compute attaches indicators to already resampled bars.
func Compute(bars []candle.Candle, timeframe string, p Params) *Frame {
	closes := candle.Closes(bars)
	f := &Frame{
		Timeframe: timeframe,
		Params:    p,
		Candles:   bars,
		FastMA:    SMA{Period: p.FastPeriod}.Calculate(closes),
		SlowMA:    SMA{Period: p.SlowPeriod}.Calculate(closes),
		Osc:       RSI{Period: p.OscPeriod}.Calculate(closes),
	}
	if p.OscSmoothing > 0 {
		f.OscAvg = SMA{Period: p.OscSmoothing}.Calculate(f.Osc)
	} else {
		f.OscAvg = nanSlice(len(bars))
	}
	return f
}

func (f *Frame) Len() int { return len(f.Candles) }

func (f *Frame) slice(i, j int) *Frame {
	return &Frame{
		Timeframe: f.Timeframe,
		Params:    f.Params,
		Candles:   f.Candles[i:j],
		FastMA:    f.FastMA[i:j],
		SlowMA:    f.SlowMA[i:j],
		Osc:       f.Osc[i:j],
		OscAvg:    f.OscAvg[i:j],
	}
}

// search returns the first index whose timestamp is not before ts.
func (f *Frame) search(ts time.Time) int {
	return sort.Search(len(f.Candles), func(i int) bool {
		return !f.Candles[i].Timestamp.Before(ts)
	})
}

// Between keeps bars with from <= timestamp < to; zero bounds are open.
func (f *Frame) Between(from, to time.Time) *Frame {
	i, j := 0, f.Len()
	if !from.IsZero() {
		i = f.search(from)
	}
	if !to.IsZero() {
		j = f.search(to)
	}
	if j < i {
		j = i
	}
	return f.slice(i, j)
}

// Before keeps bars strictly earlier than ts.
func (f *Frame) Before(ts time.Time) *Frame {
	return f.slice(0, f.search(ts))
}

// Tail keeps the last n bars.
func (f *Frame) Tail(n int) *Frame {
	if n <= 0 || n >= f.Len() {
		return f.slice(0, f.Len())
	}
	return f.slice(f.Len()-n, f.Len())
}

// Index returns the position of the bar stamped ts, or -1.
func (f *Frame) Index(ts time.Time) int {
	i := f.search(ts)
	if i < f.Len() && f.Candles[i].Timestamp.Equal(ts) {
		return i
	}
	return -1
}
