package resolver

import (
	"context"
	"strings"
	"time"

	"github.com/amirphl/option-sim/internal/blobstore"
	"github.com/amirphl/option-sim/internal/table"
)

const (
	TierLocalPath     = "local_path"
	TierCombinedCache = "combined_cache"
	TierRemotePath    = "remote_path"
	TierRemoteListing = "remote_listing"
)

var LocalTemplates = []string{
	"desiquant/data/candles/{underlying}/{expiry}/{strike}{type}.parquet",
	"desiquant/data/candles/{underlying}/{expiry}/{strike}{type}.parquet.gz",
	"{expiry}_{strike}{type}.parquet",
	"{strike}{type}.parquet",
}

var remoteTemplates = []string{
	"{expiry}/{strike}{type}.parquet.gz",
	"{expiry}/{strike}{type}.parquet",
	"{expiry}/{strike} {type}.parquet.gz",
	"{expiry}/{strike} {type}.parquet",
}

// RemoteTemplates roots the remote key templates at prefix.
func RemoteTemplates(prefix string) []string {
	prefix = strings.TrimSuffix(prefix, "/")
	out := make([]string, len(remoteTemplates))
	for i, t := range remoteTemplates {
		out[i] = prefix + "/" + t
	}
	return out
}

type ChainConfig struct {
	Local        blobstore.Store
	Combined     func(ctx context.Context) (*table.Table, error)
	Remote       blobstore.Store
	Underlying   string
	OptionPrefix string
	Location     *time.Location
}

// Chain returns the matchers in lookup order: local files, combined cache,
// remote keys, remote listing. Sources left nil are not consulted.
func Chain(cfg ChainConfig) []Matcher {
	var out []Matcher
	if cfg.Local != nil {
		out = append(out, &PathMatcher{
			Tier:       TierLocalPath,
			Store:      cfg.Local,
			Templates:  LocalTemplates,
			Underlying: cfg.Underlying,
			Location:   cfg.Location,
		})
	}
	if cfg.Combined != nil {
		out = append(out, &CombinedMatcher{Source: cfg.Combined, Filters: DefaultFilters(), Location: cfg.Location})
	}
	if cfg.Remote != nil {
		out = append(out,
			&PathMatcher{
				Tier:       TierRemotePath,
				Store:      cfg.Remote,
				Templates:  RemoteTemplates(cfg.OptionPrefix),
				Underlying: cfg.Underlying,
				Location:   cfg.Location,
			},
			&ListingMatcher{Tier: TierRemoteListing, Store: cfg.Remote, Prefix: cfg.OptionPrefix, Location: cfg.Location},
		)
	}
	return out
}
