package option

import (
	"testing"
	"time"

	"github.com/amirphl/option-sim/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ist    = time.FixedZone("IST", 5*3600+30*60)
	expiry = time.Date(2023, 12, 28, 0, 0, 0, 0, ist)
)

func strikesOf(ids []Identifier) []int {
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = id.Strike
	}
	return out
}

func TestDeriver_Identifiers(t *testing.T) {
	d := DefaultDeriver()

	tests := []struct {
		name    string
		dir     strategy.Direction
		price   float64
		typ     Type
		strikes []int
	}{
		{"Buy rounds down", strategy.Buy, 21437, Call, []int{21400, 21350, 21300}},
		{"Sell rounds up", strategy.Sell, 21437, Put, []int{21450, 21500, 21550}},
		{"Buy on step", strategy.Buy, 21400, Call, []int{21400, 21350, 21300}},
		{"Sell on step", strategy.Sell, 21400, Put, []int{21400, 21450, 21500}},
		{"Fractional price", strategy.Sell, 21400.05, Put, []int{21450, 21500, 21550}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ, ok := TypeFor(tt.dir)
			require.True(t, ok)
			ids := d.identifiers(typ, tt.price, expiry)
			require.Len(t, ids, 3)
			assert.Equal(t, tt.strikes, strikesOf(ids))
			for _, id := range ids {
				assert.Equal(t, tt.typ, id.Type)
				assert.Equal(t, expiry, id.Expiry)
			}
		})
	}

	_, ok := TypeFor(strategy.Hold)
	assert.False(t, ok)
}

func TestDeriver_Validate(t *testing.T) {
	assert.NoError(t, DefaultDeriver().Validate())
	assert.Error(t, Deriver{Step: 0, Count: 3}.Validate())
	assert.Error(t, Deriver{Step: 50, Count: 0}.Validate())
	assert.Nil(t, Deriver{Step: 50, Count: 3}.Strikes(Call, 0))
}

func TestParseType(t *testing.T) {
	for in, want := range map[string]Type{"ce": Call, "CALL": Call, " PE ": Put, "put": Put} {
		got, err := ParseType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseType("FUT")
	assert.Error(t, err)
	assert.Equal(t, "CALL", Call.Name())
}

func TestIdentifier(t *testing.T) {
	id := Identifier{Strike: 21400, Type: Call, Expiry: expiry}
	assert.Equal(t, "21400CE", id.Key())
	assert.Equal(t, "2023-12-28", id.ExpiryString())
	assert.Equal(t, "21400CE@2023-12-28", id.String())
	assert.True(t, Identifier{Strike: 21400, Type: Call}.Less(Identifier{Strike: 21400, Type: Put}))
	assert.True(t, Identifier{Strike: 21350, Type: Put}.Less(Identifier{Strike: 21400, Type: Call}))
}

func TestDeriver_Plan(t *testing.T) {
	d := DefaultDeriver()
	t1 := time.Date(2023, 12, 26, 10, 0, 0, 0, ist)
	t2 := time.Date(2023, 12, 26, 11, 0, 0, 0, ist)

	reqs := []Request{
		{Type: Call, Price: 21437, Time: t1},
		{Type: Call, Price: 21437, Time: t1}, // exact repeat
		{Type: Call, Price: 21380, Time: t2}, // overlaps 21350 and 21300
		{Type: Put, Price: 21437, Time: t2},
	}

	cands, ids := d.Plan(reqs, expiry)
	assert.Len(t, cands, 9)
	assert.Equal(t, []int{21250, 21300, 21350, 21400, 21450, 21500, 21550}, strikesOf(ids))

	// 21350CE and 21300CE keep both originating entry times
	var times []time.Time
	for _, c := range cands {
		if c.ID.Key() == "21350CE" {
			times = append(times, c.EntryTime)
		}
	}
	assert.Equal(t, []time.Time{t1, t2}, times)

	for i := 1; i < len(cands); i++ {
		assert.False(t, cands[i].ID.Less(cands[i-1].ID), "candidates ordered by strike and type")
	}
}
