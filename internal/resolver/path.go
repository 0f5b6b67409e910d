package resolver

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/option-sim/internal/blobstore"
	"github.com/amirphl/option-sim/internal/candle"
	"github.com/amirphl/option-sim/internal/option"
	"github.com/amirphl/option-sim/internal/table"
)

// Expand fills {underlying}, {expiry}, {strike} and {type} in a key template.
func Expand(tmpl, underlying string, id option.Identifier) string {
	return strings.NewReplacer(
		"{underlying}", underlying,
		"{expiry}", id.ExpiryString(),
		"{strike}", strconv.Itoa(id.Strike),
		"{type}", string(id.Type),
	).Replace(tmpl)
}

// PathMatcher tries fixed key templates in order.
type PathMatcher struct {
	Tier       string
	Store      blobstore.Store
	Templates  []string
	Underlying string
	Location   *time.Location
}

func (m *PathMatcher) Name() string { return m.Tier }

func (m *PathMatcher) Match(ctx context.Context, id option.Identifier) ([]candle.Candle, bool, error) {
	var lastErr error
	for _, tmpl := range m.Templates {
		key := Expand(tmpl, m.Underlying, id)
		t, err := m.Store.ReadTable(ctx, key)
		if errors.Is(err, blobstore.ErrNotExist) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, false, ctx.Err()
			}
			lastErr = err
			continue
		}

		candles, err := table.ToCandles(t, m.Location)
		if err != nil {
			lastErr = err
			continue
		}
		if len(candles) > 0 {
			return candles, true, nil
		}
	}
	return nil, false, lastErr
}

// ListingMatcher lists {prefix}/{expiry}/ and takes the first object, in key
// order, whose file name mentions both the strike and the type code.
type ListingMatcher struct {
	Tier     string
	Store    blobstore.Store
	Prefix   string
	Location *time.Location
}

func (m *ListingMatcher) Name() string { return m.Tier }

func (m *ListingMatcher) Match(ctx context.Context, id option.Identifier) ([]candle.Candle, bool, error) {
	prefix := strings.TrimSuffix(m.Prefix, "/") + "/" + id.ExpiryString() + "/"
	objs, err := m.Store.List(ctx, prefix)
	if err != nil {
		return nil, false, err
	}

	keys := make([]string, 0, len(objs))
	for _, o := range objs {
		keys = append(keys, o.Key)
	}

	strike := strconv.Itoa(id.Strike)
	code := strings.ToUpper(string(id.Type))
	var lastErr error
	for _, key := range table.SortedKeys(keys) {
		name := strings.ToUpper(key[strings.LastIndex(key, "/")+1:])
		if !strings.Contains(name, strike) || !strings.Contains(name, code) {
			continue
		}

		t, err := m.Store.ReadTable(ctx, key)
		if err != nil {
			if ctx.Err() != nil {
				return nil, false, ctx.Err()
			}
			lastErr = err
			continue
		}
		candles, err := table.ToCandles(t, m.Location)
		if err != nil {
			lastErr = err
			continue
		}
		if len(candles) > 0 {
			return candles, true, nil
		}
	}
	return nil, false, lastErr
}
