package blobstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/amirphl/option-sim/internal/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ist = time.FixedZone("IST", 5*3600+30*60)

func bars() *table.Table {
	t := table.New("datetime", "open", "high", "low", "close")
	t.Append(time.Date(2023, 12, 26, 9, 15, 0, 0, ist), 100.0, 101.0, 99.0, 100.5)
	return t
}

func TestDir(t *testing.T) {
	ctx := context.Background()
	d := NewDir(t.TempDir(), ist)

	require.NoError(t, d.WriteTable(ctx, "NIFTY/2023-12-28/21400CE.parquet.gz", bars()))
	require.NoError(t, d.WriteTable(ctx, "NIFTY/2023-12-28/21400PE.parquet", bars()))
	require.NoError(t, d.WriteTable(ctx, "NIFTY/2023-12-21/21400PE.parquet", bars()))

	got, err := d.ReadTable(ctx, "NIFTY/2023-12-28/21400CE.parquet.gz")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Len())

	_, err = d.ReadTable(ctx, "NIFTY/2023-12-28/21450CE.parquet")
	assert.ErrorIs(t, err, ErrNotExist)

	objs, err := d.List(ctx, "NIFTY/2023-12-28/")
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "NIFTY/2023-12-28/21400CE.parquet.gz", objs[0].Key)

	objs, err = d.List(ctx, "NIFTY/2023-12")
	require.NoError(t, err)
	assert.Len(t, objs, 3)

	objs, err = d.List(ctx, "BANKNIFTY/")
	require.NoError(t, err)
	assert.Empty(t, objs)

	info, err := d.Stat("NIFTY/2023-12-28/21400PE.parquet")
	require.NoError(t, err)
	assert.Positive(t, info.Size)

	leftovers, err := filepath.Glob(filepath.Join(d.Root, "NIFTY", "2023-12-28", ".tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestDir_CorruptObject(t *testing.T) {
	d := NewDir(t.TempDir(), ist)
	path := d.Path("x/broken.parquet")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	_, err := d.ReadTable(context.Background(), "x/broken.parquet")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotExist)
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	old := time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)
	m.Put("idx/a.parquet", bars(), old)
	m.Put("idx/b.parquet", bars(), old.Add(time.Hour))
	m.FailOn("idx/c.parquet", errors.New("boom"))

	objs, err := m.List(ctx, "idx/")
	require.NoError(t, err)
	latest, ok := Latest(objs)
	require.True(t, ok)
	assert.Equal(t, "idx/b.parquet", latest.Key)

	_, err = m.ReadTable(ctx, "idx/missing.parquet")
	assert.ErrorIs(t, err, ErrNotExist)
	_, err = m.ReadTable(ctx, "idx/c.parquet")
	assert.EqualError(t, err, "boom")
	assert.Equal(t, 1, m.Reads("idx/c.parquet"))

	_, ok = Latest(nil)
	assert.False(t, ok)
}

func TestNewS3_RequiresEndpoint(t *testing.T) {
	_, err := NewS3(S3Config{Bucket: "data"})
	assert.Error(t, err)

	s, err := NewS3(S3Config{Endpoint: "localhost:9000", Bucket: "data", RPS: 5, Timeout: time.Second})
	require.NoError(t, err)
	assert.NotNil(t, s)
}
