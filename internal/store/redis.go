package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/allowlist"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/applog"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/metrics"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/model"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/urlkey"
)

const (
	allowlistKey  = "allowlist:urls"
	viewsKey      = "views:urls"
	seedsKey      = "crawl:seeds"
	crawlLogKey   = "crawl:log"
	reloadChannel = "wayback:config:reload"
)

// RedisStore is the Store implementation backed by Redis, grounded on
// the pack's redis.Client-based cache handler pattern.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore wraps an already-configured *redis.Client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func tierKey(tier model.Tier, hash string) string {
	return string(tier) + ":" + hash
}

// degraded reports whether err is a Redis connectivity failure (as
// opposed to redis.Nil, a normal cache miss), logging a rate-limited
// warning and bumping the unavailability counter when it is.
func degraded(op string, err error) bool {
	if err == nil || errors.Is(err, redis.Nil) {
		return false
	}
	metrics.CacheStoreUnavailableInc()
	applog.WarnOncePerMinute("cache-store-unavailable", fmt.Sprintf("CACHE store unavailable during %s: %v", op, err))
	return true
}

func (s *RedisStore) Get(ctx context.Context, rawURL string) (*model.CachedResponse, model.Tier, error) {
	normalized, err := urlkey.Normalize(rawURL)
	if err != nil {
		return nil, "", err
	}
	hash := urlkey.Hash(normalized)

	for _, tier := range []model.Tier{model.Curated, model.Hot} {
		raw, err := s.rdb.Get(ctx, tierKey(tier, hash)).Bytes()
		if err != nil {
			if degraded("get", err) {
				return nil, "", nil
			}
			continue // redis.Nil: not in this tier, try the next
		}
		resp, err := decodeResponse(raw)
		if err != nil {
			return nil, "", err
		}
		return resp, tier, nil
	}
	return nil, "", nil
}

func (s *RedisStore) PutHot(ctx context.Context, rawURL string, resp *model.CachedResponse, ttl time.Duration) error {
	return s.put(ctx, model.Hot, rawURL, resp, ttl)
}

func (s *RedisStore) PutCurated(ctx context.Context, rawURL string, resp *model.CachedResponse) error {
	return s.put(ctx, model.Curated, rawURL, resp, 0)
}

func (s *RedisStore) put(ctx context.Context, tier model.Tier, rawURL string, resp *model.CachedResponse, ttl time.Duration) error {
	normalized, err := urlkey.Normalize(rawURL)
	if err != nil {
		return err
	}
	raw, err := encodeResponse(resp)
	if err != nil {
		return err
	}
	hash := urlkey.Hash(normalized)
	if err := s.rdb.Set(ctx, tierKey(tier, hash), raw, ttl).Err(); err != nil {
		degraded("put", err)
		return nil
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, rawURL string, tier model.Tier) error {
	normalized, err := urlkey.Normalize(rawURL)
	if err != nil {
		return err
	}
	if err := s.rdb.Del(ctx, tierKey(tier, urlkey.Hash(normalized))).Err(); err != nil {
		degraded("delete", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, tier model.Tier) error {
	var cursor uint64
	pattern := string(tier) + ":*"
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, pattern, 500).Result()
		if err != nil {
			degraded("clear", err)
			return nil
		}
		if len(keys) > 0 {
			if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
				degraded("clear", err)
				return nil
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// AllCurated scans the whole curated keyspace and decodes every entry.
// Intended for the cold-storage export job, run infrequently, so a
// full SCAN sweep is acceptable.
func (s *RedisStore) AllCurated(ctx context.Context) ([]model.CachedResponse, error) {
	var out []model.CachedResponse
	var cursor uint64
	pattern := string(model.Curated) + ":*"
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, pattern, 500).Result()
		if err != nil {
			if degraded("all-curated", err) {
				return out, nil
			}
			return out, err
		}
		for _, k := range keys {
			raw, err := s.rdb.Get(ctx, k).Bytes()
			if err != nil {
				continue
			}
			resp, err := decodeResponse(raw)
			if err != nil {
				continue
			}
			out = append(out, *resp)
		}
		cursor = next
		if cursor == 0 {
			return out, nil
		}
	}
}

// ListEntries scans the requested tier(s) (or both, if q.Tier is
// unset), decoding each entry to apply the search filter, then slices
// out the requested page. Mirrors AllCurated's full-sweep-per-call
// approach: admin traffic is infrequent enough that a SCAN per request
// is acceptable.
func (s *RedisStore) ListEntries(ctx context.Context, q model.CacheListQuery) (model.CacheListResult, error) {
	tiers := []model.Tier{model.Curated, model.Hot}
	if q.Tier != "" {
		tiers = []model.Tier{q.Tier}
	}

	var all []model.CacheEntry
	for _, tier := range tiers {
		var cursor uint64
		pattern := string(tier) + ":*"
		for {
			keys, next, err := s.rdb.Scan(ctx, cursor, pattern, 500).Result()
			if err != nil {
				if degraded("list-entries", err) {
					return model.CacheListResult{}, nil
				}
				return model.CacheListResult{}, err
			}
			for _, k := range keys {
				raw, err := s.rdb.Get(ctx, k).Bytes()
				if err != nil {
					continue
				}
				resp, err := decodeResponse(raw)
				if err != nil {
					continue
				}
				if q.Search != "" && !strings.Contains(strings.ToLower(resp.SourceURL), strings.ToLower(q.Search)) {
					continue
				}
				all = append(all, model.CacheEntry{
					URL:         resp.SourceURL,
					Tier:        tier,
					ArchiveDate: resp.ArchiveDate,
					StoredAt:    resp.StoredAt,
					Size:        len(resp.Body),
				})
			}
			cursor = next
			if cursor == 0 {
				break
			}
		}
	}

	return paginate(all, q.Offset, q.Limit), nil
}

func (s *RedisStore) Stats(ctx context.Context) (model.CacheStats, error) {
	var stats model.CacheStats
	curated, err := s.countAndSize(ctx, model.Curated)
	if err != nil {
		degraded("stats", err)
		return stats, nil
	}
	hot, err := s.countAndSize(ctx, model.Hot)
	if err != nil {
		degraded("stats", err)
		return stats, nil
	}
	stats.CuratedCount = curated.count
	stats.HotCount = hot.count
	stats.ApproxBytes = curated.bytes + hot.bytes
	return stats, nil
}

type countSize struct {
	count int
	bytes int64
}

func (s *RedisStore) countAndSize(ctx context.Context, tier model.Tier) (countSize, error) {
	var result countSize
	var cursor uint64
	pattern := string(tier) + ":*"
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, pattern, 500).Result()
		if err != nil {
			return result, err
		}
		for _, k := range keys {
			n, err := s.rdb.StrLen(ctx, k).Result()
			if err == nil {
				result.bytes += n
			}
		}
		result.count += len(keys)
		cursor = next
		if cursor == 0 {
			return result, nil
		}
	}
}

func (s *RedisStore) TrackView(ctx context.Context, rawURL string) error {
	domain, err := urlkey.RegistrableDomain(rawURL)
	if err != nil {
		return err
	}
	if err := s.rdb.ZIncrBy(ctx, viewsKey, 1, domain).Err(); err != nil {
		degraded("track-view", err)
	}
	return nil
}

func (s *RedisStore) TopViews(ctx context.Context, n int) ([]model.ViewCount, error) {
	results, err := s.rdb.ZRevRangeWithScores(ctx, viewsKey, 0, int64(n)-1).Result()
	if err != nil {
		if degraded("top-views", err) {
			return nil, nil
		}
		return nil, err
	}
	views := make([]model.ViewCount, 0, len(results))
	for _, z := range results {
		domain, _ := z.Member.(string)
		views = append(views, model.ViewCount{Domain: domain, Count: int64(z.Score)})
	}
	return views, nil
}

// AllowlistCheck reports whether rawURL matches any stored allowlist
// pattern. Callers only invoke this when access mode is "allowlist";
// in "open" mode the proxy skips the check entirely, so an empty
// pattern set here always means deny (per spec.md's boundary case).
func (s *RedisStore) AllowlistCheck(ctx context.Context, rawURL string) (bool, error) {
	normalized, err := urlkey.Normalize(rawURL)
	if err != nil {
		return false, err
	}
	patterns, err := s.AllowlistPatterns(ctx)
	if err != nil {
		return false, err
	}
	return allowlist.Matches(patterns, normalized), nil
}

func (s *RedisStore) AllowlistSet(ctx context.Context, patterns []string) error {
	if err := s.rdb.Del(ctx, allowlistKey).Err(); err != nil {
		degraded("allowlist-set", err)
		return nil
	}
	if len(patterns) == 0 {
		return nil
	}
	members := make([]interface{}, len(patterns))
	for i, p := range patterns {
		members[i] = p
	}
	if err := s.rdb.SAdd(ctx, allowlistKey, members...).Err(); err != nil {
		degraded("allowlist-set", err)
	}
	return nil
}

func (s *RedisStore) AllowlistPatterns(ctx context.Context) ([]string, error) {
	patterns, err := s.rdb.SMembers(ctx, allowlistKey).Result()
	if err != nil {
		if degraded("allowlist-patterns", err) {
			return nil, nil
		}
		return nil, err
	}
	return patterns, nil
}

func (s *RedisStore) Seeds(ctx context.Context) ([]model.CrawlSeed, error) {
	raw, err := s.rdb.HGetAll(ctx, seedsKey).Result()
	if err != nil {
		if degraded("seeds", err) {
			return nil, nil
		}
		return nil, err
	}
	seeds := make([]model.CrawlSeed, 0, len(raw))
	for _, v := range raw {
		var seed model.CrawlSeed
		if err := json.Unmarshal([]byte(v), &seed); err != nil {
			continue
		}
		seeds = append(seeds, seed)
	}
	return seeds, nil
}

func (s *RedisStore) PutSeed(ctx context.Context, seed model.CrawlSeed) error {
	raw, err := json.Marshal(seed)
	if err != nil {
		return err
	}
	if err := s.rdb.HSet(ctx, seedsKey, seed.URL, raw).Err(); err != nil {
		degraded("put-seed", err)
	}
	return nil
}

func (s *RedisStore) DeleteSeed(ctx context.Context, rawURL string) error {
	if err := s.rdb.HDel(ctx, seedsKey, rawURL).Err(); err != nil {
		degraded("delete-seed", err)
	}
	return nil
}

func (s *RedisStore) AppendLog(ctx context.Context, line string) error {
	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, crawlLogKey, line)
	pipe.LTrim(ctx, crawlLogKey, 0, crawlLogMaxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		degraded("append-log", err)
	}
	return nil
}

func (s *RedisStore) TailLog(ctx context.Context, n int) ([]string, error) {
	lines, err := s.rdb.LRange(ctx, crawlLogKey, 0, int64(n)-1).Result()
	if err != nil {
		if degraded("tail-log", err) {
			return nil, nil
		}
		return nil, err
	}
	return lines, nil
}

func (s *RedisStore) PublishReload(ctx context.Context) error {
	if err := s.rdb.Publish(ctx, reloadChannel, "reload").Err(); err != nil {
		degraded("publish-reload", err)
	}
	return nil
}

// SubscribeReload returns a channel that receives a value on every
// reload notification, and a cancel func that unsubscribes and closes
// the channel. The returned channel is closed, never the caller's job.
//
// cancel waits for the forwarding goroutine to actually exit before
// closing out: closing done alone only stops the goroutine from
// picking a new case next iteration, but a goroutine already inside
// its (non-blocking) send into out would otherwise race a close(out)
// with that send.
func (s *RedisStore) SubscribeReload(ctx context.Context) (<-chan struct{}, func()) {
	sub := s.rdb.Subscribe(ctx, reloadChannel)
	out := make(chan struct{}, 1)
	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		ch := sub.Channel()
		for {
			select {
			case _, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			case <-done:
				return
			}
		}
	}()

	cancel := func() {
		close(done)
		sub.Close()
		wg.Wait()
		close(out)
	}
	return out, cancel
}
