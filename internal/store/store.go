// Package store reads OHLC series through local cache files backed by the
// remote blob store.
package store

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/amirphl/option-sim/internal/blobstore"
	"github.com/amirphl/option-sim/internal/candle"
	"github.com/amirphl/option-sim/internal/table"
	"github.com/amirphl/option-sim/internal/utils"
	"github.com/rs/zerolog"
)

type Config struct {
	Local            *blobstore.Dir
	Remote           blobstore.Store
	IndexCacheKey    string
	IndexPrefix      string
	CombinedCacheKey string
	OptionPrefix     string
	TTL              time.Duration
	Location         *time.Location
	Now              func() time.Time
}

type Store struct {
	cfg   Config
	log   zerolog.Logger
	locks sync.Map // key -> *sync.Mutex

	combinedMu     sync.Mutex
	combined       *table.Table
	combinedLoaded bool
}

func New(cfg Config) *Store {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Store{cfg: cfg, log: utils.Component("store")}
}

func (s *Store) lock(key string) func() {
	v, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// fresh reports whether the local key exists and is within the TTL.
func (s *Store) fresh(key string) (exists, fresh bool) {
	info, err := s.cfg.Local.Stat(key)
	if err != nil {
		return false, false
	}
	return true, s.cfg.Now().Sub(info.LastModified) <= s.cfg.TTL
}

func (s *Store) writeLocal(ctx context.Context, key string, t *table.Table) error {
	unlock := s.lock(key)
	defer unlock()
	return s.cfg.Local.WriteTable(ctx, key, t)
}

func (s *Store) readLocal(ctx context.Context, key string) (*table.Table, error) {
	unlock := s.lock(key)
	defer unlock()
	return s.cfg.Local.ReadTable(ctx, key)
}

// Index returns the full underlying index series. A fresh cache file is used
// as is; otherwise the newest remote object under the index prefix replaces
// it. When the refresh fails a stale cache is still served.
func (s *Store) Index(ctx context.Context) ([]candle.Candle, error) {
	exists, fresh := s.fresh(s.cfg.IndexCacheKey)
	if fresh {
		t, err := s.readLocal(ctx, s.cfg.IndexCacheKey)
		if err == nil {
			s.log.Debug().Str("key", s.cfg.IndexCacheKey).Msg("index cache hit")
			return table.ToCandles(t, s.cfg.Location)
		}
		s.log.Warn().Err(err).Msg("unreadable index cache, refreshing")
	}

	candles, err := s.refreshIndex(ctx)
	if err == nil {
		return candles, nil
	}
	if !exists {
		return nil, err
	}

	s.log.Warn().Err(err).Str("key", s.cfg.IndexCacheKey).Msg("index refresh failed, using stale cache")
	t, rerr := s.readLocal(ctx, s.cfg.IndexCacheKey)
	if rerr != nil {
		return nil, fmt.Errorf("index refresh failed (%v) and stale cache unreadable: %w", err, rerr)
	}
	return table.ToCandles(t, s.cfg.Location)
}

func (s *Store) refreshIndex(ctx context.Context) ([]candle.Candle, error) {
	if s.cfg.Remote == nil {
		return nil, errors.New("no remote store configured")
	}
	objs, err := s.cfg.Remote.List(ctx, s.cfg.IndexPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list index objects: %w", err)
	}
	var parquet []blobstore.ObjectInfo
	for _, o := range objs {
		if table.IsParquetKey(o.Key) {
			parquet = append(parquet, o)
		}
	}
	latest, ok := blobstore.Latest(parquet)
	if !ok {
		return nil, fmt.Errorf("no index objects under %s: %w", s.cfg.IndexPrefix, blobstore.ErrNotExist)
	}

	t, err := s.cfg.Remote.ReadTable(ctx, latest.Key)
	if err != nil {
		return nil, err
	}
	candles, err := table.ToCandles(t, s.cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("index object %s: %w", latest.Key, err)
	}

	if err := s.writeLocal(ctx, s.cfg.IndexCacheKey, table.FromCandles(candles)); err != nil {
		s.log.Warn().Err(err).Msg("failed to write index cache")
	}
	s.log.Info().Str("key", latest.Key).Int("rows", len(candles)).Msg("index cache refreshed")
	return candles, nil
}

// Combined returns the combined option cache, loading it once. A missing
// cache yields a nil table; a stale one is served with a warning.
func (s *Store) Combined(ctx context.Context) (*table.Table, error) {
	s.combinedMu.Lock()
	defer s.combinedMu.Unlock()
	if s.combinedLoaded {
		return s.combined, nil
	}

	exists, fresh := s.fresh(s.cfg.CombinedCacheKey)
	if !exists {
		s.combinedLoaded = true
		return nil, nil
	}
	if !fresh {
		s.log.Warn().Str("key", s.cfg.CombinedCacheKey).Msg("combined cache is stale, run refresh-cache")
	}

	t, err := s.readLocal(ctx, s.cfg.CombinedCacheKey)
	if err != nil {
		return nil, err
	}
	s.combined = t
	s.combinedLoaded = true
	return t, nil
}

// RefreshCombined rebuilds the combined option cache from every parquet
// object under {option prefix}/{month}. Files that cannot be read or
// normalized are skipped.
func (s *Store) RefreshCombined(ctx context.Context, month string) (int, error) {
	if s.cfg.Remote == nil {
		return 0, errors.New("no remote store configured")
	}
	prefix := path.Join(s.cfg.OptionPrefix, month)
	objs, err := s.cfg.Remote.List(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("failed to list %s: %w", prefix, err)
	}

	keys := make([]string, 0, len(objs))
	for _, o := range objs {
		keys = append(keys, o.Key)
	}
	keys = table.SortedKeys(keys)

	type row struct {
		symbol string
		expiry string
		c      candle.Candle
	}
	var rows []row
	used := 0
	for _, key := range keys {
		t, err := s.cfg.Remote.ReadTable(ctx, key)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			s.log.Warn().Err(err).Str("key", key).Msg("skipping unreadable file")
			continue
		}
		candles, err := table.ToCandles(t, s.cfg.Location)
		if err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("skipping file without bar columns")
			continue
		}
		sym, exp := SymbolFromKey(key)
		for _, c := range candles {
			rows = append(rows, row{symbol: sym, expiry: exp, c: c})
		}
		used++
	}
	if used == 0 {
		return 0, fmt.Errorf("no usable files under %s", prefix)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].c.Timestamp.Before(rows[j].c.Timestamp)
	})

	type dedupeKey struct {
		symbol string
		expiry string
		at     int64
	}
	seen := make(map[dedupeKey]bool, len(rows))
	out := table.New("datetime", "open", "high", "low", "close", "volume", "symbol", "expiry")
	for _, r := range rows {
		k := dedupeKey{r.symbol, r.expiry, r.c.Timestamp.UnixNano()}
		if seen[k] {
			continue
		}
		seen[k] = true
		var expiry any
		if r.expiry != "" {
			expiry = r.expiry
		}
		out.Append(r.c.Timestamp, r.c.Open, r.c.High, r.c.Low, r.c.Close, r.c.Volume, r.symbol, expiry)
	}

	if err := s.writeLocal(ctx, s.cfg.CombinedCacheKey, out); err != nil {
		return 0, fmt.Errorf("failed to write combined cache: %w", err)
	}

	s.combinedMu.Lock()
	s.combined, s.combinedLoaded = out, true
	s.combinedMu.Unlock()

	s.log.Info().Int("files", used).Int("skipped", len(keys)-used).Int("rows", out.Len()).Msg("combined cache rebuilt")
	return out.Len(), nil
}

// SymbolFromKey derives the symbol from the file name and the expiry from
// a date shaped parent directory, e.g. ".../2023-12-28/21400CE.parquet.gz"
// gives ("21400CE", "2023-12-28").
func SymbolFromKey(key string) (symbol, expiry string) {
	base := path.Base(key)
	base = strings.TrimSuffix(base, ".gz")
	base = strings.TrimSuffix(base, ".parquet")

	parent := path.Base(path.Dir(key))
	if _, err := time.Parse("2006-01-02", parent); err == nil {
		expiry = parent
	}
	return base, expiry
}
