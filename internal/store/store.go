// Package store implements the two-tier cache abstraction over Redis:
// strings with TTL for cached responses, a set for the allowlist, a
// sorted set for view counts, a hash for crawl seeds, a list for the
// crawl log ring, and pub/sub for the config reload channel.
package store

import (
	"context"
	"sort"
	"time"

	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/model"
)

// Store is the Cache Store surface used by the request pipeline, the
// crawler, and the admin handlers.
type Store interface {
	// Get consults curated before hot. A curated hit wins even when a
	// hot entry for the same URL also exists.
	Get(ctx context.Context, url string) (resp *model.CachedResponse, tier model.Tier, err error)
	PutHot(ctx context.Context, url string, resp *model.CachedResponse, ttl time.Duration) error
	PutCurated(ctx context.Context, url string, resp *model.CachedResponse) error
	Delete(ctx context.Context, url string, tier model.Tier) error
	Clear(ctx context.Context, tier model.Tier) error
	Stats(ctx context.Context) (model.CacheStats, error)

	// ListEntries returns a paginated, optionally tier-filtered and
	// search-filtered listing of individual entries, for spec.md §4.6's
	// "Paginated listing by tier with search" admin operation.
	ListEntries(ctx context.Context, q model.CacheListQuery) (model.CacheListResult, error)

	// AllCurated returns every curated-tier entry, for cold-storage
	// export. Not part of spec.md's §4.1 surface; an addition for the
	// supplemented S3 export feature (see SPEC_FULL.md §10).
	AllCurated(ctx context.Context) ([]model.CachedResponse, error)

	TrackView(ctx context.Context, url string) error
	TopViews(ctx context.Context, n int) ([]model.ViewCount, error)

	AllowlistCheck(ctx context.Context, url string) (bool, error)
	AllowlistSet(ctx context.Context, patterns []string) error
	AllowlistPatterns(ctx context.Context) ([]string, error)

	Seeds(ctx context.Context) ([]model.CrawlSeed, error)
	PutSeed(ctx context.Context, seed model.CrawlSeed) error
	DeleteSeed(ctx context.Context, url string) error

	AppendLog(ctx context.Context, line string) error
	TailLog(ctx context.Context, n int) ([]string, error)

	PublishReload(ctx context.Context) error
	SubscribeReload(ctx context.Context) (<-chan struct{}, func())
}

const crawlLogMaxLen = 200

const (
	defaultCacheListLimit = 50
	maxCacheListLimit     = 500
)

// paginate sorts entries by URL then tier for a stable order across
// calls, and slices out the requested page, clamping limit into
// [1, maxCacheListLimit] and offset into [0, len(entries)].
func paginate(entries []model.CacheEntry, offset, limit int) model.CacheListResult {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].URL != entries[j].URL {
			return entries[i].URL < entries[j].URL
		}
		return entries[i].Tier < entries[j].Tier
	})

	total := len(entries)
	if limit <= 0 {
		limit = defaultCacheListLimit
	}
	if limit > maxCacheListLimit {
		limit = maxCacheListLimit
	}
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return model.CacheListResult{Entries: entries[offset:end], Total: total}
}
