// Package table holds loosely typed columnar data as read from parquet or CSV
// files whose layout is not known in advance.
package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Table is a row-major table. Cell values are nil, bool, int64, float64,
// string or time.Time.
type Table struct {
	Columns []string
	Rows    [][]any
}

func New(columns ...string) *Table {
	return &Table{Columns: columns}
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Col finds a column by name, ignoring case. Returns -1 when absent.
func (t *Table) Col(name string) int {
	for i, c := range t.Columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

// FirstCol returns the first of names present in the table.
func (t *Table) FirstCol(names ...string) int {
	for _, n := range names {
		if i := t.Col(n); i >= 0 {
			return i
		}
	}
	return -1
}

// Append adds a row; short rows are padded with nil.
func (t *Table) Append(values ...any) {
	row := make([]any, len(t.Columns))
	copy(row, values)
	t.Rows = append(t.Rows, row)
}

// Filter returns a table with the rows keep accepts. Rows are shared, the
// receiver is not modified.
func (t *Table) Filter(keep func(row []any) bool) *Table {
	out := &Table{Columns: t.Columns}
	for _, r := range t.Rows {
		if keep(r) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// IsText reports whether the column holds strings.
func (t *Table) IsText(col int) bool {
	for _, r := range t.Rows {
		switch r[col].(type) {
		case nil:
			continue
		case string:
			return true
		default:
			return false
		}
	}
	return false
}

func AsFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, !math.IsNaN(x)
	case float32:
		return float64(x), !math.IsNaN(float64(x))
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case int:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil && !math.IsNaN(f)
	default:
		return 0, false
	}
}

func AsString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02-01-2006 15:04:05",
	"02-01-2006 15:04",
}

// ParseTime reads a timestamp; text without a zone is wall clock in loc.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if ts, err := time.ParseInLocation(layout, s, loc); err == nil {
			return ts.In(loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// epoch converts an integer timestamp, guessing the unit from its magnitude.
func epoch(n int64) time.Time {
	switch {
	case n > 1e17 || n < -1e17:
		return time.Unix(0, n)
	case n > 1e14 || n < -1e14:
		return time.UnixMicro(n)
	case n > 1e11 || n < -1e11:
		return time.UnixMilli(n)
	default:
		return time.Unix(n, 0)
	}
}

// AsTime converts a cell to a timestamp in loc.
func AsTime(v any, loc *time.Location) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x.In(loc), !x.IsZero()
	case int64:
		return epoch(x).In(loc), true
	case string:
		ts, err := ParseTime(x, loc)
		return ts, err == nil
	default:
		return time.Time{}, false
	}
}
