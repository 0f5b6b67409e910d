package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/amirphl/option-sim/internal/simulate"
	"github.com/google/uuid"
)

type MemoryStorage struct {
	mu sync.RWMutex

	runs    map[uuid.UUID]Run
	records map[uuid.UUID][]simulate.Record

	// Events (append-only)
	events []Event
}

func NewMemory() *MemoryStorage {
	return &MemoryStorage{
		runs:    make(map[uuid.UUID]Run),
		records: make(map[uuid.UUID][]simulate.Record),
		events:  make([]Event, 0, 1024),
	}
}

// GetDB returns nil for in-memory storage (no SQL database)
func (m *MemoryStorage) GetDB() *sql.DB { return nil }

func (m *MemoryStorage) SaveRun(ctx context.Context, run Run, records []simulate.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; ok {
		return fmt.Errorf("run %s already saved", run.ID)
	}
	m.runs[run.ID] = run
	m.records[run.ID] = append([]simulate.Record(nil), records...)
	return nil
}

func (m *MemoryStorage) GetRun(ctx context.Context, id uuid.UUID) (Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return Run{}, fmt.Errorf("%s: %w", id, ErrRunNotFound)
	}
	return r, nil
}

func (m *MemoryStorage) GetRecords(ctx context.Context, runID uuid.UUID) ([]simulate.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]simulate.Record(nil), m.records[runID]...), nil
}

func (m *MemoryStorage) LogEvent(ctx context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	event.Time = event.Time.UTC()
	m.events = append(m.events, event)
	return nil
}

func (m *MemoryStorage) GetEvents(ctx context.Context, eventType string, start, end time.Time) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	start = start.UTC()
	end = end.UTC()
	var out []Event
	for _, e := range m.events {
		if e.Type == eventType && !e.Time.Before(start) && e.Time.Before(end) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}
