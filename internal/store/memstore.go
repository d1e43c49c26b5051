package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/allowlist"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/model"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/urlkey"
)

// entry is a stored response plus its expiry (zero Time means no TTL).
type entry struct {
	resp      *model.CachedResponse
	expiresAt time.Time
}

func (e entry) expired() bool {
	return !e.expiresAt.IsZero() && time.Now().After(e.expiresAt)
}

// MemStore is an in-process Store used by tests in place of Redis.
// Grounded on the teacher's lruCache shape (mutex-guarded maps with a
// per-entry expiry) but without LRU eviction, since tests need every
// key they write to stay put.
type MemStore struct {
	mu        sync.Mutex
	curated   map[string]entry
	hot       map[string]entry
	allowlist []string
	views     map[string]int64
	seeds     map[string]model.CrawlSeed
	log       []string

	subMu sync.Mutex
	subs  []chan struct{}
}

// NewMemStore returns an empty in-memory Store.
func NewMemStore() *MemStore {
	return &MemStore{
		curated: map[string]entry{},
		hot:     map[string]entry{},
		views:   map[string]int64{},
		seeds:   map[string]model.CrawlSeed{},
	}
}

func (m *MemStore) Get(_ context.Context, rawURL string) (*model.CachedResponse, model.Tier, error) {
	normalized, err := urlkey.Normalize(rawURL)
	if err != nil {
		return nil, "", err
	}
	hash := urlkey.Hash(normalized)

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.curated[hash]; ok && !e.expired() {
		return e.resp, model.Curated, nil
	}
	if e, ok := m.hot[hash]; ok && !e.expired() {
		return e.resp, model.Hot, nil
	}
	return nil, "", nil
}

func (m *MemStore) PutHot(_ context.Context, rawURL string, resp *model.CachedResponse, ttl time.Duration) error {
	if ttl <= 0 {
		return nil // hot_ttl_days=0 means hot writes are no-ops, per spec.md
	}
	normalized, err := urlkey.Normalize(rawURL)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hot[urlkey.Hash(normalized)] = entry{resp: resp, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (m *MemStore) PutCurated(_ context.Context, rawURL string, resp *model.CachedResponse) error {
	normalized, err := urlkey.Normalize(rawURL)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.curated[urlkey.Hash(normalized)] = entry{resp: resp}
	return nil
}

func (m *MemStore) Delete(_ context.Context, rawURL string, tier model.Tier) error {
	normalized, err := urlkey.Normalize(rawURL)
	if err != nil {
		return err
	}
	hash := urlkey.Hash(normalized)
	m.mu.Lock()
	defer m.mu.Unlock()
	if tier == model.Curated {
		delete(m.curated, hash)
	} else {
		delete(m.hot, hash)
	}
	return nil
}

func (m *MemStore) Clear(_ context.Context, tier model.Tier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tier == model.Curated {
		m.curated = map[string]entry{}
	} else {
		m.hot = map[string]entry{}
	}
	return nil
}

func (m *MemStore) Stats(_ context.Context) (model.CacheStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var bytes int64
	for _, e := range m.curated {
		bytes += int64(len(e.resp.Body))
	}
	for _, e := range m.hot {
		bytes += int64(len(e.resp.Body))
	}
	return model.CacheStats{
		CuratedCount: len(m.curated),
		HotCount:     len(m.hot),
		ApproxBytes:  bytes,
	}, nil
}

// AllCurated returns every curated-tier entry currently held, for the
// cold-storage export job.
func (m *MemStore) AllCurated(_ context.Context) ([]model.CachedResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.CachedResponse, 0, len(m.curated))
	for _, e := range m.curated {
		if e.expired() {
			continue
		}
		out = append(out, *e.resp)
	}
	return out, nil
}

// ListEntries implements the paginated/searchable cache listing over
// both in-memory maps. See RedisStore.ListEntries for the Redis twin.
func (m *MemStore) ListEntries(_ context.Context, q model.CacheListQuery) (model.CacheListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []model.CacheEntry
	collect := func(tier model.Tier, tbl map[string]entry) {
		for _, e := range tbl {
			if e.expired() {
				continue
			}
			if q.Search != "" && !strings.Contains(strings.ToLower(e.resp.SourceURL), strings.ToLower(q.Search)) {
				continue
			}
			all = append(all, model.CacheEntry{
				URL:         e.resp.SourceURL,
				Tier:        tier,
				ArchiveDate: e.resp.ArchiveDate,
				StoredAt:    e.resp.StoredAt,
				Size:        len(e.resp.Body),
			})
		}
	}
	if q.Tier == "" || q.Tier == model.Curated {
		collect(model.Curated, m.curated)
	}
	if q.Tier == "" || q.Tier == model.Hot {
		collect(model.Hot, m.hot)
	}
	return paginate(all, q.Offset, q.Limit), nil
}

func (m *MemStore) TrackView(_ context.Context, rawURL string) error {
	domain, err := urlkey.RegistrableDomain(rawURL)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.views[domain]++
	return nil
}

func (m *MemStore) TopViews(_ context.Context, n int) ([]model.ViewCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	views := make([]model.ViewCount, 0, len(m.views))
	for domain, count := range m.views {
		views = append(views, model.ViewCount{Domain: domain, Count: count})
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].Count != views[j].Count {
			return views[i].Count > views[j].Count
		}
		return views[i].Domain < views[j].Domain
	})
	if n < len(views) {
		views = views[:n]
	}
	return views, nil
}

func (m *MemStore) AllowlistCheck(_ context.Context, rawURL string) (bool, error) {
	normalized, err := urlkey.Normalize(rawURL)
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	patterns := append([]string(nil), m.allowlist...)
	m.mu.Unlock()
	return allowlist.Matches(patterns, normalized), nil
}

func (m *MemStore) AllowlistSet(_ context.Context, patterns []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowlist = append([]string(nil), patterns...)
	return nil
}

func (m *MemStore) AllowlistPatterns(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.allowlist...), nil
}

func (m *MemStore) Seeds(_ context.Context) ([]model.CrawlSeed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seeds := make([]model.CrawlSeed, 0, len(m.seeds))
	for _, s := range m.seeds {
		seeds = append(seeds, s)
	}
	return seeds, nil
}

func (m *MemStore) PutSeed(_ context.Context, seed model.CrawlSeed) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seeds[seed.URL] = seed
	return nil
}

func (m *MemStore) DeleteSeed(_ context.Context, rawURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seeds, rawURL)
	return nil
}

func (m *MemStore) AppendLog(_ context.Context, line string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log = append([]string{line}, m.log...)
	if len(m.log) > crawlLogMaxLen {
		m.log = m.log[:crawlLogMaxLen]
	}
	return nil
}

func (m *MemStore) TailLog(_ context.Context, n int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > len(m.log) {
		n = len(m.log)
	}
	return append([]string(nil), m.log[:n]...), nil
}

func (m *MemStore) PublishReload(_ context.Context) error {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

func (m *MemStore) SubscribeReload(_ context.Context) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	m.subMu.Lock()
	m.subs = append(m.subs, ch)
	m.subMu.Unlock()

	cancel := func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		for i, c := range m.subs {
			if c == ch {
				m.subs = append(m.subs[:i], m.subs[i+1:]...)
				break
			}
		}
		close(ch)
	}
	return ch, cancel
}
