// Package backtest
package backtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/amirphl/option-sim/internal/candle"
	"github.com/amirphl/option-sim/internal/config"
	"github.com/amirphl/option-sim/internal/db"
	"github.com/amirphl/option-sim/internal/entrypoint"
	"github.com/amirphl/option-sim/internal/journal"
	"github.com/amirphl/option-sim/internal/metrics"
	"github.com/amirphl/option-sim/internal/notifier"
	"github.com/amirphl/option-sim/internal/option"
	"github.com/amirphl/option-sim/internal/resolver"
	"github.com/amirphl/option-sim/internal/simulate"
	"github.com/amirphl/option-sim/internal/utils"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Skip reasons.
const (
	ReasonNotFound       = "not_found"
	ReasonResolveError   = "resolve_error"
	ReasonEmptySeries    = "empty_series"
	ReasonNoBuyingCandle = "no_buying_candle"
	ReasonSimulateError  = "simulate_error"
)

// IndexSource provides the raw underlying index series.
type IndexSource interface {
	Index(ctx context.Context) ([]candle.Candle, error)
}

// SeriesResolver finds the raw series of one option contract.
type SeriesResolver interface {
	Resolve(ctx context.Context, id option.Identifier) (resolver.Result, error)
}

// Runner executes the signal stage and the option backtest. Storage and
// Notifier are optional.
type Runner struct {
	cfg      config.Config
	index    IndexSource
	resolver SeriesResolver
	storage  db.Storage
	notifier notifier.Notifier
	log      zerolog.Logger
}

func NewRunner(cfg config.Config, index IndexSource, res SeriesResolver, storage db.Storage, n notifier.Notifier) *Runner {
	if n == nil {
		n = notifier.Nop{}
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Runner{
		cfg:      cfg,
		index:    index,
		resolver: res,
		storage:  storage,
		notifier: n,
		log:      utils.Component("backtest"),
	}
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, resolver.ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, simulate.ErrEmptySeries):
		return ReasonEmptySeries
	case errors.Is(err, simulate.ErrNoBuyingCandle):
		return ReasonNoBuyingCandle
	default:
		return ReasonSimulateError
	}
}

// Backtest simulates every candidate planned from entries. Each distinct
// identifier is resolved once; failures become skips, never errors.
func (r *Runner) Backtest(ctx context.Context, entries []entrypoint.Entry) (*ResultSet, error) {
	started := time.Now()
	cands, ids := r.cfg.Strikes.Plan(entrypoint.Requests(entries), r.cfg.ExpiryDate)
	r.log.Info().Int("entries", len(entries)).Int("candidates", len(cands)).Int("series", len(ids)).
		Str("expiry", r.cfg.Expiry).Msg("starting backtest")

	byID := make(map[string][]option.Candidate, len(ids))
	for _, c := range cands {
		byID[c.ID.String()] = append(byID[c.ID.String()], c)
	}

	rs := newResultSet(r.cfg.Expiry)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for _, id := range ids {
		g.Go(func() error {
			res, err := r.resolver.Resolve(gctx, id)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				reason := ReasonResolveError
				if errors.Is(err, resolver.ErrNotFound) {
					reason = ReasonNotFound
				}
				mu.Lock()
				for _, c := range byID[id.String()] {
					rs.skip(c, reason, err)
				}
				mu.Unlock()
				return nil
			}

			for _, c := range byID[id.String()] {
				rec, err := simulate.Run(res.Candles, c, r.cfg.DayDate, r.cfg.Location, r.cfg.Simulation)
				mu.Lock()
				if err != nil {
					rs.skip(c, skipReason(err), err)
				} else {
					rs.add(rec)
				}
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rs.finish()
	rs.StartedAt, rs.FinishedAt = started, time.Now()
	for _, s := range rs.Skipped {
		r.log.Warn().Int("strike", s.ID.Strike).Str("type", string(s.ID.Type)).Str("expiry", s.ID.ExpiryString()).
			Time("entry_time", s.EntryTime).Str("reason", s.Reason).Err(s.Err).Msg("candidate skipped")
		metrics.Skips.WithLabelValues(s.Reason).Inc()
	}
	for outcome, n := range rs.Counts {
		metrics.Outcomes.WithLabelValues(outcome).Add(float64(n))
	}
	r.log.Info().Str("run_id", rs.RunID.String()).Int("records", len(rs.Records)).Int("skipped", len(rs.Skipped)).
		Interface("counts", rs.Counts).Msg("backtest finished")
	return rs, nil
}

// RunBacktest reads the entry feed and runs the backtest with outputs.
func (r *Runner) RunBacktest(ctx context.Context) (*ResultSet, error) {
	entries, err := entrypoint.Read(r.cfg.EntryFile, r.cfg.Location)
	if err != nil {
		return nil, err
	}
	return r.backtestAndReport(ctx, entries)
}

// RunPipeline detects signals, writes the feed and backtests it.
func (r *Runner) RunPipeline(ctx context.Context) (*ResultSet, error) {
	entries, err := r.RunSignals(ctx)
	if err != nil {
		return nil, err
	}
	return r.backtestAndReport(ctx, entries)
}

func (r *Runner) backtestAndReport(ctx context.Context, entries []entrypoint.Entry) (*ResultSet, error) {
	rs, err := r.Backtest(ctx, entries)
	if err != nil {
		return nil, err
	}

	if r.cfg.OutputFile != "" {
		if err := rs.WriteCSV(r.cfg.OutputFile, r.cfg.Location); err != nil {
			return nil, err
		}
		r.log.Info().Str("path", r.cfg.OutputFile).Msg("saved results")
	}
	if r.cfg.SummaryFile != "" {
		if err := rs.WriteSummary(r.cfg.SummaryFile); err != nil {
			return nil, err
		}
	}

	if err := r.persist(ctx, rs); err != nil {
		return nil, err
	}

	if err := r.notifier.SendWithRetry(rs.Message()); err != nil {
		r.log.Error().Err(err).Msg("failed to send run summary")
	}
	return rs, nil
}

func (r *Runner) runParams() map[string]any {
	return map[string]any{
		"target_points": r.cfg.Simulation.TargetPoints,
		"stop_points":   r.cfg.Simulation.StopPoints,
		"interval":      r.cfg.Simulation.Interval,
		"tie_break":     string(r.cfg.Simulation.TieBreak),
		"strike_step":   r.cfg.Strikes.Step,
		"strike_count":  r.cfg.Strikes.Count,
		"day":           r.cfg.Day,
	}
}

func (r *Runner) persist(ctx context.Context, rs *ResultSet) error {
	if r.storage == nil {
		return nil
	}

	run := db.Run{
		ID:         rs.RunID,
		Mode:       r.cfg.Mode,
		Expiry:     rs.Expiry,
		StartedAt:  rs.StartedAt,
		FinishedAt: rs.FinishedAt,
		Params:     r.runParams(),
		Counts:     rs.Counts,
		Skipped:    len(rs.Skipped),
	}
	if err := r.storage.SaveRun(ctx, run, rs.Records); err != nil {
		return fmt.Errorf("failed to save run %s: %w", rs.RunID, err)
	}

	for _, s := range rs.Skipped {
		ev := journal.Event{
			Time:        rs.FinishedAt,
			Type:        journal.TypeSkip,
			Description: s.Reason,
			Data: map[string]any{
				"run_id":     rs.RunID.String(),
				"strike":     s.ID.Strike,
				"type":       string(s.ID.Type),
				"expiry":     s.ID.ExpiryString(),
				"entry_time": s.EntryTime.Format(time.RFC3339),
				"error":      errString(s.Err),
			},
		}
		if err := r.storage.LogEvent(ctx, ev); err != nil {
			r.log.Error().Err(err).Msg("failed to journal skip")
		}
	}
	return r.storage.LogEvent(ctx, journal.Event{
		Time:        rs.FinishedAt,
		Type:        journal.TypeRun,
		Description: "backtest finished",
		Data:        map[string]any{"run_id": rs.RunID.String(), "records": len(rs.Records), "skipped": len(rs.Skipped)},
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
