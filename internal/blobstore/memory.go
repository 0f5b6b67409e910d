package blobstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/amirphl/option-sim/internal/table"
)

type memObject struct {
	tbl      *table.Table
	modified time.Time
}

// Memory is an in-process Store.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]memObject
	reads   map[string]int
	fail    map[string]error
}

func NewMemory() *Memory {
	return &Memory{
		objects: make(map[string]memObject),
		reads:   make(map[string]int),
		fail:    make(map[string]error),
	}
}

// Put stores t under key with an explicit modification time.
func (m *Memory) Put(key string, t *table.Table, modified time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memObject{tbl: t, modified: modified}
}

// FailOn makes every call touching key return err.
func (m *Memory) FailOn(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[key] = err
}

// Reads returns how many times key was read.
func (m *Memory) Reads(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reads[key]
}

func (m *Memory) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err, ok := m.fail[prefix]; ok {
		return nil, err
	}

	var out []ObjectInfo
	for k, o := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, ObjectInfo{Key: k, Size: int64(o.tbl.Len()), LastModified: o.modified})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *Memory) ReadTable(ctx context.Context, key string) (*table.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads[key]++
	if err, ok := m.fail[key]; ok {
		return nil, err
	}
	o, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotExist)
	}
	return o.tbl, nil
}

func (m *Memory) WriteTable(ctx context.Context, key string, t *table.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.Put(key, t, time.Now())
	return nil
}
