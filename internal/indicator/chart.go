package indicator

import (
	"fmt"
	"time"
)

// UndefinedPolicy decides how positions without warm-up history are
// presented: omitted, or replaced by zero.
type UndefinedPolicy string

const (
	UndefinedMissing UndefinedPolicy = "missing"
	UndefinedZero    UndefinedPolicy = "zero"
)

func ParseUndefinedPolicy(s string) (UndefinedPolicy, error) {
	switch UndefinedPolicy(s) {
	case "", UndefinedMissing:
		return UndefinedMissing, nil
	case UndefinedZero:
		return UndefinedZero, nil
	default:
		return "", fmt.Errorf("unknown undefined policy %q", s)
	}
}

// Apply returns the value to use and whether the position is usable at all.
func (p UndefinedPolicy) Apply(v float64) (float64, bool) {
	if Defined(v) {
		return v, true
	}
	if p == UndefinedZero {
		return 0, true
	}
	return 0, false
}

type ChartCandle struct {
	Time  int64   `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

type ChartPoint struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// Chart is the display payload of a frame.
type Chart struct {
	Candles []ChartCandle `json:"candles"`
	SMA5    []ChartPoint  `json:"sma5"`
	SMA20   []ChartPoint  `json:"sma20"`
	RSIBase []ChartPoint  `json:"rsi_base"`
	RSIAvg  []ChartPoint  `json:"rsi_avg"`
	Rows    int           `json:"rows"`
	From    string        `json:"from,omitempty"`
	To      string        `json:"to,omitempty"`
}

// Chart renders the frame. Moving averages always omit undefined points;
// oscillator lines follow policy.
func (f *Frame) Chart(policy UndefinedPolicy) Chart {
	ch := Chart{
		Candles: make([]ChartCandle, 0, f.Len()),
		SMA5:    []ChartPoint{},
		SMA20:   []ChartPoint{},
		RSIBase: []ChartPoint{},
		RSIAvg:  []ChartPoint{},
		Rows:    f.Len(),
	}

	for i, c := range f.Candles {
		ts := c.Timestamp.Unix()
		ch.Candles = append(ch.Candles, ChartCandle{Time: ts, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close})

		if v, ok := UndefinedMissing.Apply(f.FastMA[i]); ok {
			ch.SMA5 = append(ch.SMA5, ChartPoint{Time: ts, Value: v})
		}
		if v, ok := UndefinedMissing.Apply(f.SlowMA[i]); ok {
			ch.SMA20 = append(ch.SMA20, ChartPoint{Time: ts, Value: v})
		}
		if v, ok := policy.Apply(f.Osc[i]); ok {
			ch.RSIBase = append(ch.RSIBase, ChartPoint{Time: ts, Value: v})
		}
		if v, ok := policy.Apply(f.OscAvg[i]); ok {
			ch.RSIAvg = append(ch.RSIAvg, ChartPoint{Time: ts, Value: v})
		}
	}

	if f.Len() > 0 {
		ch.From = f.Candles[0].Timestamp.Format(time.RFC3339)
		ch.To = f.Candles[f.Len()-1].Timestamp.Format(time.RFC3339)
	}
	return ch
}
