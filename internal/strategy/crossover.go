package strategy

import (
	"errors"
	"time"

	"github.com/amirphl/option-sim/internal/indicator"
)

// MACross compares the fast moving average against the slow one.
type MACross struct{}

func (MACross) Name() string { return RuleMACross }

func (MACross) Series(f *indicator.Frame) ([]float64, []float64, error) {
	return f.FastMA, f.SlowMA, nil
}

// ZeroFill is false: both averages must be defined at both bars.
func (MACross) ZeroFill() bool { return false }

// OscillatorCross compares the oscillator against its smoothed average.
type OscillatorCross struct{}

func (OscillatorCross) Name() string { return RuleOscillatorCross }

func (OscillatorCross) Series(f *indicator.Frame) ([]float64, []float64, error) {
	if f.Params.OscSmoothing <= 0 {
		return nil, nil, errors.New("oscillator cross needs a smoothed oscillator")
	}
	return f.Osc, f.OscAvg, nil
}

func (OscillatorCross) ZeroFill() bool { return true }

// Detector scans consecutive bar pairs with a single rule. From/To restrict
// which bars may emit a signal; indicator values outside that window are
// still read as the prior sample.
type Detector struct {
	Rule        Rule
	From        time.Time
	To          time.Time
	Undefined   indicator.UndefinedPolicy
	EntryOffset int
}

func (d *Detector) inRange(ts time.Time) bool {
	if !d.From.IsZero() && ts.Before(d.From) {
		return false
	}
	if !d.To.IsZero() && !ts.Before(d.To) {
		return false
	}
	return true
}

// Cross classifies the move of a relative to b between two samples.
func Cross(prevA, prevB, curA, curB float64) Direction {
	switch {
	case prevA <= prevB && curA > curB:
		return Buy
	case prevA >= prevB && curA < curB:
		return Sell
	default:
		return Hold
	}
}

// Detect returns signals in bar order.
func (d *Detector) Detect(f *indicator.Frame) ([]Signal, error) {
	if d.Rule == nil {
		return nil, errors.New("detector has no rule")
	}
	a, b, err := d.Rule.Series(f)
	if err != nil {
		return nil, err
	}

	policy := indicator.UndefinedMissing
	if d.Rule.ZeroFill() {
		policy = d.Undefined
	}

	var signals []Signal
	for i := 1; i < f.Len(); i++ {
		bar := f.Candles[i]
		if !d.inRange(bar.Timestamp) {
			continue
		}

		prevA, ok1 := policy.Apply(a[i-1])
		prevB, ok2 := policy.Apply(b[i-1])
		curA, ok3 := policy.Apply(a[i])
		curB, ok4 := policy.Apply(b[i])
		if !ok1 || !ok2 || !ok3 || !ok4 {
			continue
		}

		dir := Cross(prevA, prevB, curA, curB)
		if dir == Hold {
			continue
		}

		sig := Signal{
			Time:         bar.Timestamp,
			Direction:    dir,
			Reason:       d.Rule.Name() + " " + dir.String(),
			StrategyName: d.Rule.Name(),
			TriggerPrice: bar.Close,
		}
		if j := i + d.EntryOffset; j < f.Len() {
			sig.EntryTime = f.Candles[j].Timestamp
			sig.EntryPrice = f.Candles[j].Close
		}
		signals = append(signals, sig)
	}

	return signals, nil
}
