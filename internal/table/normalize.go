package table

import (
	"errors"
	"strings"
	"time"

	"github.com/amirphl/option-sim/internal/candle"
)

var (
	ErrNoDatetimeColumn = errors.New("no datetime column")
	ErrMissingOHLC      = errors.New("missing OHLC columns")
)

var (
	datetimeNames = []string{"datetime", "timestamp", "date", "time", "ts", "__index_level_0__"}
	openNames     = []string{"open", "o"}
	highNames     = []string{"high", "h"}
	lowNames      = []string{"low", "l"}
	closeNames    = []string{"close", "c", "last", "lastprice", "ltp"}
)

// DatetimeCol picks the timestamp column: a conventional name first, then any
// name containing "date", then the first column holding time values.
func (t *Table) DatetimeCol() int {
	if i := t.FirstCol(datetimeNames...); i >= 0 {
		return i
	}
	for i, c := range t.Columns {
		if strings.Contains(strings.ToLower(c), "date") {
			return i
		}
	}
	for i := range t.Columns {
		for _, r := range t.Rows {
			if r[i] == nil {
				continue
			}
			if _, ok := r[i].(time.Time); ok {
				return i
			}
			break
		}
	}
	return -1
}

// ToCandles normalizes a bar-like table into candles sorted by time with
// duplicate timestamps removed. Rows with unreadable time or prices are
// dropped.
func ToCandles(t *Table, loc *time.Location) ([]candle.Candle, error) {
	if loc == nil {
		loc = time.UTC
	}

	dt := t.DatetimeCol()
	if dt < 0 {
		return nil, ErrNoDatetimeColumn
	}
	o, h, l, c := t.FirstCol(openNames...), t.FirstCol(highNames...), t.FirstCol(lowNames...), t.FirstCol(closeNames...)
	if o < 0 || h < 0 || l < 0 || c < 0 {
		return nil, ErrMissingOHLC
	}
	vol := t.Col("volume")
	sym := t.Col("symbol")

	out := make([]candle.Candle, 0, len(t.Rows))
	for _, r := range t.Rows {
		ts, ok := AsTime(r[dt], loc)
		if !ok {
			continue
		}
		open, ok1 := AsFloat(r[o])
		high, ok2 := AsFloat(r[h])
		low, ok3 := AsFloat(r[l])
		cl, ok4 := AsFloat(r[c])
		if !ok1 || !ok2 || !ok3 || !ok4 {
			continue
		}

		k := candle.Candle{Timestamp: ts, Open: open, High: high, Low: low, Close: cl, Source: "table"}
		if vol >= 0 {
			k.Volume, _ = AsFloat(r[vol])
		}
		if sym >= 0 {
			k.Symbol = AsString(r[sym])
		}
		out = append(out, k)
	}

	return candle.SortAndDedupe(out), nil
}

// FromCandles renders candles in the layout ToCandles reads back.
func FromCandles(candles []candle.Candle) *Table {
	t := New("datetime", "open", "high", "low", "close", "volume", "symbol")
	t.Rows = make([][]any, 0, len(candles))
	for _, c := range candles {
		t.Rows = append(t.Rows, []any{c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume, c.Symbol})
	}
	return t
}
