package option

import (
	"errors"
	"sort"
	"time"

	"github.com/amirphl/option-sim/internal/strategy"
	"github.com/shopspring/decimal"
)

// Deriver turns a directional reference price into candidate strikes.
type Deriver struct {
	Step  int
	Count int
}

func DefaultDeriver() Deriver {
	return Deriver{Step: 50, Count: 3}
}

func (d Deriver) Validate() error {
	if d.Step <= 0 {
		return errors.New("strike step must be positive")
	}
	if d.Count < 1 {
		return errors.New("strike count must be at least 1")
	}
	return nil
}

// TypeFor maps a signal direction to the contract bought on it.
func TypeFor(dir strategy.Direction) (Type, bool) {
	switch dir {
	case strategy.Buy:
		return Call, true
	case strategy.Sell:
		return Put, true
	default:
		return "", false
	}
}

// Strikes rounds price down to the step for calls and walks further down,
// or rounds up for puts and walks further up.
func (d Deriver) Strikes(typ Type, price float64) []int {
	if d.Step <= 0 || d.Count < 1 || price <= 0 {
		return nil
	}

	step := decimal.NewFromInt(int64(d.Step))
	units := decimal.NewFromFloat(price).Div(step)

	var base int64
	var dir int64
	switch typ {
	case Call:
		base = units.Floor().Mul(step).IntPart()
		dir = -1
	case Put:
		base = units.Ceil().Mul(step).IntPart()
		dir = 1
	default:
		return nil
	}

	out := make([]int, d.Count)
	for i := range out {
		out[i] = int(base + dir*int64(i)*int64(d.Step))
	}
	return out
}

func (d Deriver) identifiers(typ Type, price float64, expiry time.Time) []Identifier {
	strikes := d.Strikes(typ, price)
	out := make([]Identifier, len(strikes))
	for i, s := range strikes {
		out[i] = Identifier{Strike: s, Type: typ, Expiry: expiry}
	}
	return out
}

// Request is one upstream entry to plan candidates for.
type Request struct {
	Type  Type
	Price float64
	Time  time.Time
}

// Candidate ties an identifier to the entry time it is simulated from.
type Candidate struct {
	ID        Identifier
	EntryTime time.Time
	RefPrice  float64
}

// Plan expands requests into candidates, dropping repeated
// (strike, type, entry time) triples. It also returns every distinct
// identifier once, ordered by strike and type, so each series is resolved
// a single time.
func (d Deriver) Plan(reqs []Request, expiry time.Time) ([]Candidate, []Identifier) {
	type tripleKey struct {
		strike int
		typ    Type
		at     int64
	}

	seen := make(map[tripleKey]bool)
	ids := make(map[string]Identifier)
	var cands []Candidate

	for _, r := range reqs {
		for _, id := range d.identifiers(r.Type, r.Price, expiry) {
			k := tripleKey{id.Strike, id.Type, r.Time.UnixNano()}
			if seen[k] {
				continue
			}
			seen[k] = true
			ids[id.Key()] = id
			cands = append(cands, Candidate{ID: id, EntryTime: r.Time, RefPrice: r.Price})
		}
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.ID != b.ID {
			return a.ID.Less(b.ID)
		}
		return a.EntryTime.Before(b.EntryTime)
	})

	unique := make([]Identifier, 0, len(ids))
	for _, id := range ids {
		unique = append(unique, id)
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i].Less(unique[j]) })

	return cands, unique
}
