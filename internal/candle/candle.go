// Package candle
package candle

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/amirphl/option-sim/internal/tfutils"
	"github.com/amirphl/option-sim/internal/utils"
)

type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Source    string    `json:"source"`
}

// Validate checks if a candle has valid data
func (c *Candle) Validate() error {
	if c.Timestamp.IsZero() {
		return errors.New("candle timestamp is zero")
	}
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return errors.New("candle prices must be positive")
	}
	if c.High < c.Low {
		return errors.New("candle high cannot be less than low")
	}
	if c.Open < c.Low || c.Open > c.High {
		return errors.New("candle open price must be between high and low")
	}
	if c.Close < c.Low || c.Close > c.High {
		return errors.New("candle close price must be between high and low")
	}
	if c.Volume < 0 {
		return errors.New("candle volume cannot be negative")
	}
	return nil
}

// SortAndDedupe orders candles by timestamp and keeps the first candle seen
// for every timestamp. The input slice is not modified.
func SortAndDedupe(candles []Candle) []Candle {
	if len(candles) == 0 {
		return nil
	}

	out := make([]Candle, len(candles))
	copy(out, candles)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	n := 1
	for i := 1; i < len(out); i++ {
		if out[i].Timestamp.Equal(out[n-1].Timestamp) {
			continue
		}
		out[n] = out[i]
		n++
	}
	return out[:n]
}

// Between returns candles with from <= timestamp < to. A zero bound is open.
func Between(candles []Candle, from, to time.Time) []Candle {
	var out []Candle
	for _, c := range candles {
		if !from.IsZero() && c.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && !c.Timestamp.Before(to) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// InLocation re-labels every timestamp into loc without changing the instant.
func InLocation(candles []Candle, loc *time.Location) []Candle {
	out := make([]Candle, len(candles))
	for i, c := range candles {
		c.Timestamp = c.Timestamp.In(loc)
		out[i] = c
	}
	return out
}

// Resample groups candles into timeframe buckets floored on the local wall
// clock: open=first, high=max, low=min, close=last. Buckets without data are
// not emitted. Candles failing Validate are dropped with a warning.
func Resample(candles []Candle, timeframe string) ([]Candle, error) {
	if len(candles) == 0 {
		return nil, nil
	}

	dur, err := tfutils.ParseTimeframe(timeframe)
	if err != nil {
		return nil, fmt.Errorf("invalid timeframe %s: %w", timeframe, err)
	}

	sorted := SortAndDedupe(candles)

	var result []Candle
	var agg *Candle
	dropped := 0
	var firstErr error
	for _, c := range sorted {
		if err := c.Validate(); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("candle at %s: %w", c.Timestamp, err)
			}
			dropped++
			continue
		}

		bucket := tfutils.Floor(c.Timestamp, dur)
		if agg != nil && agg.Timestamp.Equal(bucket) {
			if c.High > agg.High {
				agg.High = c.High
			}
			if c.Low < agg.Low {
				agg.Low = c.Low
			}
			agg.Close = c.Close
			agg.Volume += c.Volume
			continue
		}

		if agg != nil {
			result = append(result, *agg)
		}
		agg = &Candle{
			Timestamp: bucket,
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
			Symbol:    c.Symbol,
			Timeframe: timeframe,
			Source:    "constructed",
		}
	}
	if agg != nil {
		result = append(result, *agg)
	}

	if dropped > 0 {
		log := utils.Component("candle")
		log.Warn().Err(firstErr).Int("dropped", dropped).Int("total", len(sorted)).
			Str("symbol", sorted[0].Symbol).Str("timeframe", timeframe).Msg("dropped invalid candles while resampling")
	}
	return result, nil
}

// Closes extracts close prices in order.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
