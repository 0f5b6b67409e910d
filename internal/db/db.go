// Package db
package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/amirphl/option-sim/internal/journal"
	"github.com/amirphl/option-sim/internal/simulate"
	"github.com/google/uuid"
)

var ErrRunNotFound = errors.New("run not found")

type Event = journal.Event

// Run describes one backtest invocation.
type Run struct {
	ID         uuid.UUID
	Mode       string
	Expiry     string
	StartedAt  time.Time
	FinishedAt time.Time
	Params     map[string]any
	Counts     map[string]int
	Skipped    int
}

// RunStorage persists runs together with their records.
type RunStorage interface {
	SaveRun(ctx context.Context, run Run, records []simulate.Record) error
	GetRun(ctx context.Context, id uuid.UUID) (Run, error)
	GetRecords(ctx context.Context, runID uuid.UUID) ([]simulate.Record, error)
}

// Storage is the interface for all persistent storage.
type Storage interface {
	GetDB() *sql.DB
	RunStorage
	journal.Journaler
}
