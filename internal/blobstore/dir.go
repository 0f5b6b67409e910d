package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/amirphl/option-sim/internal/table"
)

// Dir serves keys as slash separated paths below Root. Writes go through a
// temporary file and a rename, so readers see the old or the new content.
type Dir struct {
	Root     string
	Location *time.Location
}

func NewDir(root string, loc *time.Location) *Dir {
	return &Dir{Root: root, Location: loc}
}

func (d *Dir) Path(key string) string {
	return filepath.Join(d.Root, filepath.FromSlash(key))
}

// Stat describes a single key.
func (d *Dir) Stat(key string) (ObjectInfo, error) {
	fi, err := os.Stat(d.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return ObjectInfo{}, fmt.Errorf("%s: %w", key, ErrNotExist)
	}
	if err != nil {
		return ObjectInfo{}, err
	}
	return ObjectInfo{Key: key, Size: fi.Size(), LastModified: fi.ModTime()}, nil
}

func (d *Dir) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	start := d.Path(prefix)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		start = filepath.Dir(start)
	}

	var out []ObjectInfo
	err := filepath.WalkDir(start, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.Root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		fi, err := e.Info()
		if err != nil {
			return err
		}
		out = append(out, ObjectInfo{Key: key, Size: fi.Size(), LastModified: fi.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (d *Dir) ReadTable(ctx context.Context, key string) (*table.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(d.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotExist)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := table.ReadParquet(f, table.Gzipped(key), d.Location)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return t, nil
}

func (d *Dir) WriteTable(ctx context.Context, key string, t *table.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst := d.Path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-"+filepath.Base(dst)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := table.WriteParquet(tmp, t, table.Gzipped(key)); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
