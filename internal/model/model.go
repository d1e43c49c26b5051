// Package model holds the data types shared across the proxy, the cache
// store, the crawler, and the admin surface, so none of those packages
// needs to import another just to pass a record around.
package model

import (
	"net/http"
	"time"
)

// Tier identifies which half of the two-tier cache a response lives in.
type Tier string

const (
	Curated Tier = "curated"
	Hot     Tier = "hot"
)

// CachedResponse is a serializable snapshot of an archived page, stored
// decoded (content-decoded, not transfer-encoded) so it can be replayed
// to a client without re-contacting the archive.
type CachedResponse struct {
	StatusCode  int
	Header      http.Header
	Body        []byte
	ContentType string
	StoredAt    time.Time
	SourceURL   string
	ArchiveDate string // YYYYMMDD
}

// CacheStats summarizes the current size of both tiers.
type CacheStats struct {
	CuratedCount int
	HotCount     int
	ApproxBytes  int64
}

// CacheEntry is one row of the paginated /_admin/cache listing.
type CacheEntry struct {
	URL         string    `json:"url"`
	Tier        Tier      `json:"tier"`
	ArchiveDate string    `json:"archive_date"`
	StoredAt    time.Time `json:"stored_at"`
	Size        int       `json:"size"`
}

// CacheListQuery selects a page of CacheEntry rows. Tier "" means both
// tiers; Search "" means no filtering by URL substring.
type CacheListQuery struct {
	Tier   Tier
	Search string
	Offset int
	Limit  int
}

// CacheListResult is one page of entries plus the total count matching
// the query, so a caller can compute further pages without re-querying.
type CacheListResult struct {
	Entries []CacheEntry `json:"entries"`
	Total   int          `json:"total"`
}

// ViewCount is one row of the views:urls leaderboard.
type ViewCount struct {
	Domain string
	Count  int64
}

// CrawlSeed is a starting point for the crawler's frontier.
type CrawlSeed struct {
	URL   string `json:"url"`
	Depth int    `json:"depth"`
}

// CrawlState is the crawler's lifecycle state.
type CrawlState string

const (
	CrawlIdle     CrawlState = "idle"
	CrawlRunning  CrawlState = "running"
	CrawlStopping CrawlState = "stopping"
)

// CrawlStatus is a point-in-time snapshot of the crawler, safe to copy
// and hand to an admin HTTP handler.
type CrawlStatus struct {
	State       CrawlState
	StartedAt   time.Time
	URLsSeen    int
	URLsFetched int
	URLsFailed  int
	CurrentDepth int
	CurrentURL  string
}
