// Package resolver locates the price series of an option contract across
// local files, the combined cache and the remote blob store.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/option-sim/internal/candle"
	"github.com/amirphl/option-sim/internal/metrics"
	"github.com/amirphl/option-sim/internal/option"
	"github.com/amirphl/option-sim/internal/utils"
	"github.com/rs/zerolog"
)

var ErrNotFound = errors.New("option series not found")

// Matcher is one lookup strategy. It reports ok=false when it has nothing for
// the identifier; an error means the tier itself failed. Matchers never
// modify their source.
type Matcher interface {
	Name() string
	Match(ctx context.Context, id option.Identifier) ([]candle.Candle, bool, error)
}

type Result struct {
	ID      option.Identifier
	Tier    string
	Candles []candle.Candle
}

// Resolver tries its matchers in order and stops at the first non-empty
// series.
type Resolver struct {
	matchers []Matcher
	timeout  time.Duration
	log      zerolog.Logger
}

// New builds a resolver. A positive timeout bounds each tier attempt.
func New(timeout time.Duration, matchers ...Matcher) *Resolver {
	return &Resolver{matchers: matchers, timeout: timeout, log: utils.Component("resolver")}
}

func (r *Resolver) attempt(ctx context.Context, m Matcher, id option.Identifier) ([]candle.Candle, bool, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return m.Match(ctx, id)
}

func (r *Resolver) Resolve(ctx context.Context, id option.Identifier) (Result, error) {
	var tierErrs []error
	for _, m := range r.matchers {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		candles, ok, err := r.attempt(ctx, m, id)
		if err != nil {
			r.log.Debug().Err(err).Str("tier", m.Name()).Str("id", id.String()).Msg("tier failed")
			tierErrs = append(tierErrs, fmt.Errorf("%s: %w", m.Name(), err))
			continue
		}
		if !ok || len(candles) == 0 {
			continue
		}

		metrics.ResolverHits.WithLabelValues(m.Name()).Inc()
		r.log.Debug().Str("tier", m.Name()).Str("id", id.String()).Int("rows", len(candles)).Msg("series resolved")
		return Result{ID: id, Tier: m.Name(), Candles: candles}, nil
	}

	if len(tierErrs) > 0 {
		return Result{}, fmt.Errorf("%s: %w (%w)", id, ErrNotFound, errors.Join(tierErrs...))
	}
	return Result{}, fmt.Errorf("%s: %w", id, ErrNotFound)
}
