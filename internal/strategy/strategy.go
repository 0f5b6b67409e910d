// Package strategy
package strategy

import (
	"fmt"
	"time"

	"github.com/amirphl/option-sim/internal/indicator"
)

// Direction of a crossover signal.
type Direction int8

const (
	Hold Direction = 0
	Buy  Direction = 1
	Sell Direction = -1
)

func (d Direction) String() string {
	switch d {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "HOLD"
	}
}

type Signal struct {
	Time         time.Time `json:"time"`
	Direction    Direction `json:"direction"`
	Reason       string    `json:"reason"`
	StrategyName string    `json:"strategy_name"`
	TriggerPrice float64   `json:"trigger_price"` // close of the signal bar
	EntryTime    time.Time `json:"entry_time"`    // zero when the entry bar is not in the series yet
	EntryPrice   float64   `json:"entry_price"`   // close of the entry bar
}

// HasEntry reports whether the entry bar was available.
func (s Signal) HasEntry() bool {
	return !s.EntryTime.IsZero()
}

// Rule picks the pair of series whose crossing produces a signal.
// ZeroFill reports whether the detector's undefined policy may substitute
// zero for its series; rules that return false always skip undefined values.
type Rule interface {
	Name() string
	Series(f *indicator.Frame) (a, b []float64, err error)
	ZeroFill() bool
}

const (
	RuleMACross         = "ma-cross"
	RuleOscillatorCross = "oscillator-cross"
)

// NewRule returns the rule registered under name.
func NewRule(name string) (Rule, error) {
	switch name {
	case RuleMACross:
		return MACross{}, nil
	case RuleOscillatorCross:
		return OscillatorCross{}, nil
	default:
		return nil, fmt.Errorf("unknown signal rule %q", name)
	}
}
