// Package blobstore provides the object store capability used for market data:
// list objects under a prefix, read an object as a table, write a table.
package blobstore

import (
	"context"
	"errors"
	"time"

	"github.com/amirphl/option-sim/internal/table"
)

var ErrNotExist = errors.New("object does not exist")

type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Store must be safe for concurrent use.
type Store interface {
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	ReadTable(ctx context.Context, key string) (*table.Table, error)
	WriteTable(ctx context.Context, key string, t *table.Table) error
}

// Latest returns the most recently modified object.
func Latest(objects []ObjectInfo) (ObjectInfo, bool) {
	var best ObjectInfo
	found := false
	for _, o := range objects {
		if !found || o.LastModified.After(best.LastModified) {
			best = o
			found = true
		}
	}
	return best, found
}
