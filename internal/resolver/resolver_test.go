package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amirphl/option-sim/internal/blobstore"
	"github.com/amirphl/option-sim/internal/option"
	"github.com/amirphl/option-sim/internal/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ist    = time.FixedZone("IST", 5*3600+30*60)
	base   = time.Date(2023, 12, 26, 9, 15, 0, 0, ist)
	expiry = time.Date(2023, 12, 28, 0, 0, 0, 0, ist)
	ce     = option.Identifier{Strike: 21400, Type: option.Call, Expiry: expiry}
)

// bars returns a short series whose every price equals sentinel.
func bars(sentinel float64) *table.Table {
	t := table.New("datetime", "open", "high", "low", "close")
	for i := 0; i < 3; i++ {
		t.Append(base.Add(time.Duration(i)*time.Minute), sentinel, sentinel, sentinel, sentinel)
	}
	return t
}

func combinedWith(symbol string, sentinel float64, exp any) *table.Table {
	t := table.New("datetime", "open", "high", "low", "close", "symbol", "expiry")
	for i := 0; i < 3; i++ {
		t.Append(base.Add(time.Duration(i)*time.Minute), sentinel, sentinel, sentinel, sentinel, symbol, exp)
	}
	return t
}

func static(t *table.Table) func(context.Context) (*table.Table, error) {
	return func(context.Context) (*table.Table, error) { return t, nil }
}

func chain(local, remote *blobstore.Memory, combined *table.Table) *Resolver {
	return New(time.Second, Chain(ChainConfig{
		Local:        local,
		Combined:     static(combined),
		Remote:       remote,
		Underlying:   "NIFTY",
		OptionPrefix: "desiquant/data/candles/NIFTY",
		Location:     ist,
	})...)
}

func TestResolve_FirstTierWins(t *testing.T) {
	local := blobstore.NewMemory()
	remote := blobstore.NewMemory()
	local.Put("desiquant/data/candles/NIFTY/2023-12-28/21400CE.parquet", bars(111), time.Now())
	remote.Put("desiquant/data/candles/NIFTY/2023-12-28/21400CE.parquet.gz", bars(333), time.Now())
	combined := combinedWith("21400CE", 222, "2023-12-28")

	res, err := chain(local, remote, combined).Resolve(context.Background(), ce)
	require.NoError(t, err)
	assert.Equal(t, TierLocalPath, res.Tier)
	require.NotEmpty(t, res.Candles)
	assert.Equal(t, 111.0, res.Candles[0].Close)
	assert.Equal(t, 0, remote.Reads("desiquant/data/candles/NIFTY/2023-12-28/21400CE.parquet.gz"))
}

func TestResolve_FallsThroughTiers(t *testing.T) {
	ctx := context.Background()

	t.Run("combined cache", func(t *testing.T) {
		res, err := chain(blobstore.NewMemory(), blobstore.NewMemory(), combinedWith("NIFTY23DEC21400CE", 222, "2023-12-28")).Resolve(ctx, ce)
		require.NoError(t, err)
		assert.Equal(t, TierCombinedCache, res.Tier)
		assert.Equal(t, 222.0, res.Candles[0].Close)
	})

	t.Run("remote key with space", func(t *testing.T) {
		remote := blobstore.NewMemory()
		remote.Put("desiquant/data/candles/NIFTY/2023-12-28/21400 CE.parquet", bars(333), time.Now())
		res, err := chain(blobstore.NewMemory(), remote, nil).Resolve(ctx, ce)
		require.NoError(t, err)
		assert.Equal(t, TierRemotePath, res.Tier)
		assert.Equal(t, 333.0, res.Candles[0].Close)
	})

	t.Run("remote listing", func(t *testing.T) {
		remote := blobstore.NewMemory()
		remote.Put("desiquant/data/candles/NIFTY/2023-12-28/nifty_21400_pe.parquet", bars(1), time.Now())
		remote.Put("desiquant/data/candles/NIFTY/2023-12-28/nifty_21400_ce.parquet", bars(444), time.Now())
		res, err := chain(blobstore.NewMemory(), remote, nil).Resolve(ctx, ce)
		require.NoError(t, err)
		assert.Equal(t, TierRemoteListing, res.Tier)
		assert.Equal(t, 444.0, res.Candles[0].Close)
	})

	t.Run("failing tier is skipped", func(t *testing.T) {
		local := blobstore.NewMemory()
		local.FailOn("desiquant/data/candles/NIFTY/2023-12-28/21400CE.parquet", errors.New("disk error"))
		res, err := chain(local, blobstore.NewMemory(), combinedWith("21400CE", 222, nil)).Resolve(ctx, ce)
		require.NoError(t, err)
		assert.Equal(t, TierCombinedCache, res.Tier)
	})
}

func TestResolve_NotFound(t *testing.T) {
	remote := blobstore.NewMemory()
	remote.FailOn("desiquant/data/candles/NIFTY/2023-12-28/", errors.New("timeout"))
	_, err := chain(blobstore.NewMemory(), remote, combinedWith("21450CE", 1, nil)).Resolve(context.Background(), ce)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "timeout")

	_, err = New(0).Resolve(context.Background(), ce)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCombinedMatcher_ExpiryNarrowing(t *testing.T) {
	combined := combinedWith("21400CE", 1, "2023-12-21")
	combined.Rows = append(combined.Rows, combinedWith("21400CE", 2, "2023-12-28").Rows...)
	rows := combined.Len()

	m := &CombinedMatcher{Source: static(combined), Filters: DefaultFilters(), Location: ist}
	candles, ok, err := m.Match(context.Background(), ce)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2.0, candles[0].Close)
	assert.Equal(t, rows, combined.Len(), "source is not modified")
}

func TestRowFilters(t *testing.T) {
	t.Run("strike and type columns", func(t *testing.T) {
		tbl := table.New("datetime", "open", "high", "low", "close", "strike_price", "option_type")
		tbl.Append(base, 5.0, 5.0, 5.0, 5.0, int64(21400), "PE")
		tbl.Append(base, 7.0, 7.0, 7.0, 7.0, 21400.0, "CE")
		tbl.Append(base, 9.0, 9.0, 9.0, 9.0, "21450", "CE")

		sub, ok := StrikeTypeColumns{}.Filter(tbl, ce)
		require.True(t, ok)
		require.Equal(t, 1, sub.Len())
		assert.Equal(t, 7.0, sub.Rows[0][4])

		_, ok = SymbolColumn{Columns: []string{"symbol"}}.Filter(tbl, ce)
		assert.False(t, ok)
	})

	t.Run("any text column", func(t *testing.T) {
		tbl := table.New("datetime", "close", "descr")
		tbl.Append(base, 1.0, "NIFTY 28DEC 21400 CE")
		tbl.Append(base, 2.0, "NIFTY 28DEC 21400 PE")

		sub, ok := TextColumns{}.Filter(tbl, ce)
		require.True(t, ok)
		require.Equal(t, 1, sub.Len())
		assert.Equal(t, 1.0, sub.Rows[0][1])
	})
}

func TestSymbolPattern(t *testing.T) {
	p := NewSymbolPattern(21400, option.Call)
	for _, s := range []string{"21400CE", "21400 CE", "21400-ce", "NIFTY23DEC21400CE", "21400CE.NFO", "NIFTY_21400_CE", "21400 28DEC CE"} {
		assert.True(t, p.Match(s), s)
	}
	for _, s := range []string{"21400PE", "121400CE", "214000CE", "21450CE", "21400CEX", ""} {
		assert.False(t, p.Match(s), s)
	}
}

func TestExpand(t *testing.T) {
	assert.Equal(t, "a/NIFTY/2023-12-28/21400CE.parquet", Expand("a/{underlying}/{expiry}/{strike}{type}.parquet", "NIFTY", ce))
	assert.Equal(t, []string{
		"p/{expiry}/{strike}{type}.parquet.gz",
		"p/{expiry}/{strike}{type}.parquet",
		"p/{expiry}/{strike} {type}.parquet.gz",
		"p/{expiry}/{strike} {type}.parquet",
	}, RemoteTemplates("p/"))
}
