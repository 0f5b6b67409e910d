package resolver

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/option-sim/internal/candle"
	"github.com/amirphl/option-sim/internal/option"
	"github.com/amirphl/option-sim/internal/table"
)

// SymbolPattern matches symbol text such as "21400CE", "21400 CE",
// "21400-CE" or "NIFTY23DEC21400CE" for one contract.
type SymbolPattern struct {
	patterns []*regexp.Regexp
}

func NewSymbolPattern(strike int, typ option.Type) *SymbolPattern {
	s := strconv.Itoa(strike)
	c := regexp.QuoteMeta(strings.ToUpper(string(typ)))
	return &SymbolPattern{patterns: []*regexp.Regexp{
		regexp.MustCompile(`(?:^|[^0-9])` + s + `\s*` + c + `(?:[^A-Z]|$)`),
		regexp.MustCompile(`(?:^|[^0-9])` + s + `[^0-9].*\b` + c + `\b`),
	}}
}

func (p *SymbolPattern) Match(v string) bool {
	s := strings.ToUpper(v)
	s = strings.NewReplacer("-", " ", "_", " ").Replace(s)
	for _, re := range p.patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// RowFilter selects the rows of a combined table that belong to one
// contract. ok is false when the filter cannot apply to the table.
type RowFilter interface {
	Name() string
	Filter(t *table.Table, id option.Identifier) (*table.Table, bool)
}

func matchColumn(t *table.Table, col int, p *SymbolPattern) *table.Table {
	return t.Filter(func(r []any) bool {
		return r[col] != nil && p.Match(table.AsString(r[col]))
	})
}

// SymbolColumn matches symbol-like text in a conventional symbol column.
type SymbolColumn struct {
	Columns []string
}

func (SymbolColumn) Name() string { return "symbol_column" }

func (f SymbolColumn) Filter(t *table.Table, id option.Identifier) (*table.Table, bool) {
	p := NewSymbolPattern(id.Strike, id.Type)
	for _, name := range f.Columns {
		col := t.Col(name)
		if col < 0 {
			continue
		}
		if sub := matchColumn(t, col, p); sub.Len() > 0 {
			return sub, true
		}
	}
	return nil, false
}

// StrikeTypeColumns matches a numeric strike column, and a type column when
// one exists.
type StrikeTypeColumns struct{}

func (StrikeTypeColumns) Name() string { return "strike_type_columns" }

func typeColumn(t *table.Table) int {
	for i, c := range t.Columns {
		lc := strings.ToLower(c)
		for _, k := range []string{"optiontype", "optype", "opt_type", "option_type", "type"} {
			if strings.Contains(lc, k) {
				return i
			}
		}
	}
	return -1
}

func (StrikeTypeColumns) Filter(t *table.Table, id option.Identifier) (*table.Table, bool) {
	strikeCol := -1
	for i, c := range t.Columns {
		if strings.Contains(strings.ToLower(c), "strike") {
			strikeCol = i
			break
		}
	}
	if strikeCol < 0 {
		return nil, false
	}
	typeCol := typeColumn(t)
	code := strings.ToUpper(string(id.Type))

	sub := t.Filter(func(r []any) bool {
		v, ok := table.AsFloat(r[strikeCol])
		if !ok || v != float64(id.Strike) {
			return false
		}
		if typeCol < 0 {
			return true
		}
		return strings.Contains(strings.ToUpper(table.AsString(r[typeCol])), code)
	})
	return sub, sub.Len() > 0
}

// TextColumns scans every text column for a symbol-like match.
type TextColumns struct{}

func (TextColumns) Name() string { return "text_columns" }

func (TextColumns) Filter(t *table.Table, id option.Identifier) (*table.Table, bool) {
	p := NewSymbolPattern(id.Strike, id.Type)
	for col := range t.Columns {
		if !t.IsText(col) {
			continue
		}
		if sub := matchColumn(t, col, p); sub.Len() > 0 {
			return sub, true
		}
	}
	return nil, false
}

// narrowExpiry keeps rows whose expiry equals the identifier's. Rows without
// a readable expiry are kept.
func narrowExpiry(t *table.Table, id option.Identifier, loc *time.Location) *table.Table {
	col := t.Col("expiry")
	if col < 0 || id.Expiry.IsZero() {
		return t
	}
	want := id.ExpiryString()
	return t.Filter(func(r []any) bool {
		ts, ok := table.AsTime(r[col], loc)
		if !ok {
			return true
		}
		return ts.Format(option.ExpiryLayout) == want
	})
}

// CombinedMatcher filters the combined multi-symbol cache.
type CombinedMatcher struct {
	Source   func(ctx context.Context) (*table.Table, error)
	Filters  []RowFilter
	Location *time.Location
}

func DefaultFilters() []RowFilter {
	return []RowFilter{
		SymbolColumn{Columns: []string{"symbol", "ticker", "instrument", "name"}},
		StrikeTypeColumns{},
		TextColumns{},
	}
}

func (m *CombinedMatcher) Name() string { return TierCombinedCache }

func (m *CombinedMatcher) Match(ctx context.Context, id option.Identifier) ([]candle.Candle, bool, error) {
	t, err := m.Source(ctx)
	if err != nil {
		return nil, false, err
	}
	if t == nil || t.Len() == 0 {
		return nil, false, nil
	}
	if t.DatetimeCol() < 0 {
		return nil, false, fmt.Errorf("combined cache: %w", table.ErrNoDatetimeColumn)
	}

	for _, f := range m.Filters {
		sub, ok := f.Filter(t, id)
		if !ok {
			continue
		}
		sub = narrowExpiry(sub, id, m.Location)
		if sub.Len() == 0 {
			continue
		}
		candles, err := table.ToCandles(sub, m.Location)
		if err != nil {
			return nil, false, err
		}
		if len(candles) > 0 {
			return candles, true, nil
		}
	}
	return nil, false, nil
}
