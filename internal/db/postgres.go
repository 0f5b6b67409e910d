package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/amirphl/option-sim/internal/db/conf"
	"github.com/amirphl/option-sim/internal/option"
	"github.com/amirphl/option-sim/internal/simulate"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Transaction context key
type txKey struct{}

// WithTransaction adds a transaction to the context
func WithTransaction(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// GetTransaction retrieves a transaction from context, or returns nil if not present
func GetTransaction(ctx context.Context) *sql.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return nil
}

// executeWithTransaction executes a function with proper transaction management
// If a transaction exists in context, it uses that. Otherwise, it creates a new one.
func (p *Default) executeWithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	if tx := GetTransaction(ctx); tx != nil {
		return fn(tx)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if fnErr := fn(tx); fnErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction rollback failed: %w (original error: %v)", rbErr, fnErr)
		}
		return fnErr
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("transaction commit failed: %w", commitErr)
	}

	return nil
}

// queryWithTransaction executes a query using transaction from context if available
func (p *Default) queryWithTransaction(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if tx := GetTransaction(ctx); tx != nil {
		return tx.QueryContext(ctx, query, args...)
	}
	return p.db.QueryContext(ctx, query, args...)
}

type Default struct {
	db *sql.DB
}

func New(c conf.Config) (*Default, error) {
	if c.DB == nil {
		return nil, fmt.Errorf("nil database handle")
	}
	return &Default{db: c.DB}, nil
}

func (p *Default) GetDB() *sql.DB {
	return p.db
}

func price(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

// SaveRun stores the run row and all of its records in one transaction.
func (p *Default) SaveRun(ctx context.Context, run Run, records []simulate.Record) error {
	params, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("failed to encode run params: %w", err)
	}
	counts, err := json.Marshal(run.Counts)
	if err != nil {
		return fmt.Errorf("failed to encode run counts: %w", err)
	}

	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, mode, expiry, started_at, finished_at, params, counts, skipped)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			run.ID, run.Mode, run.Expiry, run.StartedAt, run.FinishedAt, params, counts, run.Skipped)
		if err != nil {
			return fmt.Errorf("failed to save run %s: %w", run.ID, err)
		}

		if len(records) == 0 {
			return nil
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO simulation_records (run_id, seq, strike, option_type, expiry, day, signal_time,
				buy_candle_ts, buy_price, target_price, stop_price, outcome, hit_time)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert statement: %w", err)
		}
		defer stmt.Close()

		for i, r := range records {
			var hit sql.NullTime
			if r.HitTime != nil {
				hit = sql.NullTime{Time: *r.HitTime, Valid: true}
			}
			_, err := stmt.ExecContext(ctx,
				run.ID, i, r.ID.Strike, string(r.ID.Type), r.ID.ExpiryString(), r.Day, r.SignalTime,
				r.BuyCandleTS, price(r.BuyPrice), price(r.TargetPrice), price(r.StopPrice), string(r.Outcome), hit)
			if err != nil {
				return fmt.Errorf("failed to save record %d (%s): %w", i, r.ID, err)
			}
		}
		return nil
	})
}

func (p *Default) GetRun(ctx context.Context, id uuid.UUID) (Run, error) {
	rows, err := p.queryWithTransaction(ctx, `
		SELECT id, mode, expiry, started_at, finished_at, params, counts, skipped
		FROM runs WHERE id=$1`, id)
	if err != nil {
		return Run{}, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("%s: %w", id, ErrRunNotFound)
	}

	var r Run
	var params, counts []byte
	if err := rows.Scan(&r.ID, &r.Mode, &r.Expiry, &r.StartedAt, &r.FinishedAt, &params, &counts, &r.Skipped); err != nil {
		return Run{}, err
	}
	if err := json.Unmarshal(params, &r.Params); err != nil {
		return Run{}, fmt.Errorf("failed to decode run params: %w", err)
	}
	if err := json.Unmarshal(counts, &r.Counts); err != nil {
		return Run{}, fmt.Errorf("failed to decode run counts: %w", err)
	}
	return r, nil
}

func (p *Default) GetRecords(ctx context.Context, runID uuid.UUID) ([]simulate.Record, error) {
	rows, err := p.queryWithTransaction(ctx, `
		SELECT strike, option_type, expiry, day, signal_time, buy_candle_ts,
			buy_price, target_price, stop_price, outcome, hit_time
		FROM simulation_records WHERE run_id=$1 ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []simulate.Record
	for rows.Next() {
		var (
			r                 simulate.Record
			typ, expiry, outc string
			buy, target, stop decimal.Decimal
			hit               sql.NullTime
		)
		if err := rows.Scan(&r.ID.Strike, &typ, &expiry, &r.Day, &r.SignalTime, &r.BuyCandleTS,
			&buy, &target, &stop, &outc, &hit); err != nil {
			return nil, err
		}
		r.ID.Type = option.Type(typ)
		if expiry != "" {
			if ts, err := time.Parse(option.ExpiryLayout, expiry); err == nil {
				r.ID.Expiry = ts
			}
		}
		r.BuyPrice = buy.InexactFloat64()
		r.TargetPrice = target.InexactFloat64()
		r.StopPrice = stop.InexactFloat64()
		r.Outcome = simulate.Outcome(outc)
		if hit.Valid {
			ts := hit.Time
			r.HitTime = &ts
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Default) LogEvent(ctx context.Context, event Event) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to encode event data: %w", err)
	}
	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO events (time, type, description, data) VALUES ($1,$2,$3,$4)`,
			event.Time, event.Type, event.Description, data)
		if err != nil {
			return fmt.Errorf("failed to log event: %w", err)
		}
		return nil
	})
}

func (p *Default) GetEvents(ctx context.Context, eventType string, start, end time.Time) ([]Event, error) {
	rows, err := p.queryWithTransaction(ctx, `SELECT time, type, description, data FROM events WHERE type=$1 AND time >= $2 AND time < $3 ORDER BY time ASC, id ASC`, eventType, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var data []byte
		if err := rows.Scan(&e.Time, &e.Type, &e.Description, &data); err != nil {
			return nil, err
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &e.Data); err != nil {
				return nil, fmt.Errorf("failed to decode event data: %w", err)
			}
		}
		e.Time = e.Time.UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}
