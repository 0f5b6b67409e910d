package backtest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/amirphl/option-sim/internal/entrypoint"
	"github.com/amirphl/option-sim/internal/indicator"
	"github.com/amirphl/option-sim/internal/strategy"
)

// Signals detects crossovers on the index series and turns the ones with an
// entry bar into feed rows. The frame is returned for charting.
func (r *Runner) Signals(ctx context.Context) ([]entrypoint.Entry, *indicator.Frame, error) {
	raw, err := r.index.Index(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load index series: %w", err)
	}

	sc := r.cfg.Signals
	frame, err := indicator.Build(raw, sc.Interval, sc.Params)
	if err != nil {
		return nil, nil, err
	}
	rule, err := strategy.NewRule(sc.Rule)
	if err != nil {
		return nil, nil, err
	}

	det := strategy.Detector{
		Rule:        rule,
		From:        r.cfg.From,
		To:          r.cfg.To,
		Undefined:   r.cfg.UndefinedPolicy(),
		EntryOffset: sc.EntryOffset,
	}
	signals, err := det.Detect(frame)
	if err != nil {
		return nil, nil, err
	}

	entries := make([]entrypoint.Entry, 0, len(signals))
	for _, sig := range signals {
		e, ok := entrypoint.FromSignal(sig)
		if !ok {
			r.log.Warn().Time("signal_time", sig.Time).Str("direction", sig.Direction.String()).
				Int("entry_offset", sc.EntryOffset).Msg("dropping signal without entry bar")
			continue
		}
		entries = append(entries, e)
	}

	r.log.Info().Int("bars", frame.Len()).Int("signals", len(signals)).Int("entries", len(entries)).
		Str("rule", sc.Rule).Str("interval", sc.Interval).Msg("signals detected")
	return entries, frame, nil
}

// RunSignals runs Signals and writes the feed and, when configured, the chart.
func (r *Runner) RunSignals(ctx context.Context) ([]entrypoint.Entry, error) {
	entries, frame, err := r.Signals(ctx)
	if err != nil {
		return nil, err
	}

	if r.cfg.EntryFile != "" {
		if err := entrypoint.Write(r.cfg.EntryFile, entries); err != nil {
			return nil, err
		}
		r.log.Info().Str("path", r.cfg.EntryFile).Int("rows", len(entries)).Msg("saved entry feed")
	}

	if r.cfg.Signals.ChartFile != "" {
		window := frame.Between(r.cfg.From, r.cfg.To)
		if r.cfg.Signals.ChartTail > 0 {
			window = window.Tail(r.cfg.Signals.ChartTail)
		}
		chart := window.Chart(r.cfg.UndefinedPolicy())
		f, err := create(r.cfg.Signals.ChartFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create chart file: %w", err)
		}
		defer f.Close()
		if err := json.NewEncoder(f).Encode(chart); err != nil {
			return nil, fmt.Errorf("failed to write chart: %w", err)
		}
	}
	return entries, nil
}
