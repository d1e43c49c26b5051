// Package crawler runs the single-instance background prefetch worker:
// breadth-first over a seed set, storing results into the curated
// tier, bounded to a configurable number of concurrent fetchers.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/applog"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/metrics"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/model"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/store"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/transform"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/urlkey"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/wayback"
)

const defaultConcurrency = 4

// Crawler is the crawl lifecycle manager: start/stop/recrawl/status/log.
type Crawler struct {
	Store       store.Store
	Wayback     *wayback.Client
	Concurrency int
	DefaultDepth int
	TargetDate  string // YYYYMMDD, the date crawled pages are fetched for
	// TransformRules is applied to every fetched page before it is
	// stored in the curated tier, same as the proxy applies to a
	// cache-miss fetch. Taken once at construction; a config reload's
	// updated transform section only takes effect on the next crawl the
	// caller starts with a fresh Crawler, since a running crawl does
	// not watch the live config.
	TransformRules transform.Rules

	mu       sync.Mutex
	status   model.CrawlStatus
	running  bool
	frontier *queue // set by run() for the duration of a crawl, so Stop can wake blocked workers
}

// New builds a Crawler. concurrency <= 0 defaults to 4.
func New(s store.Store, wb *wayback.Client, concurrency, defaultDepth int, targetDate string, rules transform.Rules) *Crawler {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Crawler{
		Store:          s,
		Wayback:        wb,
		Concurrency:    concurrency,
		DefaultDepth:   defaultDepth,
		TargetDate:     targetDate,
		TransformRules: rules,
		status:         model.CrawlStatus{State: model.CrawlIdle},
	}
}

// Start launches a crawl over the seed set if one isn't already
// running. depthOverride, if non-nil, replaces each seed's configured
// depth for this run only.
func (c *Crawler) Start(ctx context.Context, depthOverride *int) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("crawl already running")
	}
	// The crawl outlives the (admin request) context that started it.
	runCtx := context.WithoutCancel(ctx)
	c.running = true
	c.status = model.CrawlStatus{State: model.CrawlRunning, StartedAt: time.Now()}
	c.mu.Unlock()

	metrics.CrawlRunningSet(true)

	seeds, err := c.Store.Seeds(ctx)
	if err != nil {
		c.finish()
		return err
	}

	go c.run(runCtx, seeds, depthOverride)
	return nil
}

// Stop requests the crawl stop after in-flight fetches complete: it
// flips the running state and wakes every worker blocked waiting on
// the frontier, so no new URLs are dequeued, but does not cancel
// fetches already underway.
func (c *Crawler) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.status.State = model.CrawlStopping
	frontier := c.frontier
	c.mu.Unlock()

	if frontier != nil {
		frontier.stop()
	}
}

// Recrawl clears the hot tier, then starts a fresh crawl.
func (c *Crawler) Recrawl(ctx context.Context, depthOverride *int) error {
	if err := c.Store.Clear(ctx, model.Hot); err != nil {
		return err
	}
	return c.Start(ctx, depthOverride)
}

// Status returns a point-in-time snapshot, safe to copy.
func (c *Crawler) Status() model.CrawlStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Log returns the last n crawl log lines, newest first.
func (c *Crawler) Log(ctx context.Context, n int) ([]string, error) {
	return c.Store.TailLog(ctx, n)
}

func (c *Crawler) finish() {
	c.mu.Lock()
	c.running = false
	c.status.State = model.CrawlIdle
	c.frontier = nil
	c.mu.Unlock()
	metrics.CrawlRunningSet(false)
}

func (c *Crawler) isStopping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status.State == model.CrawlStopping
}

func (c *Crawler) updateStatus(mutate func(*model.CrawlStatus)) {
	c.mu.Lock()
	mutate(&c.status)
	c.mu.Unlock()
}

func (c *Crawler) run(ctx context.Context, seeds []model.CrawlSeed, depthOverride *int) {
	defer c.finish()

	frontier := newQueue()
	seen := newVisitedSet()
	c.mu.Lock()
	c.frontier = frontier
	c.mu.Unlock()

	for _, seed := range seeds {
		depth := seed.Depth
		if depthOverride != nil {
			depth = *depthOverride
		}
		normalized, err := urlkey.Normalize(seed.URL)
		if err != nil {
			continue
		}
		if seen.markVisited(normalized) {
			continue
		}
		frontier.push(item{url: seed.URL, depthRemaining: depth})
		c.updateStatus(func(s *model.CrawlStatus) { s.URLsSeen++ })
	}

	var wg sync.WaitGroup
	for i := 0; i < c.Concurrency; i++ {
		wg.Add(1)
		go c.worker(ctx, frontier, seen, &wg)
	}
	wg.Wait()
}

func (c *Crawler) worker(ctx context.Context, frontier *queue, seen *visitedSet, wg *sync.WaitGroup) {
	defer wg.Done()
	backoff := newBackoff()

	for {
		if c.isStopping() {
			return
		}
		it, ok := frontier.pop()
		if !ok {
			return
		}

		c.updateStatus(func(s *model.CrawlStatus) {
			s.CurrentURL = it.url
			s.CurrentDepth = it.depthRemaining
		})

		children, err := c.fetchOne(ctx, it)
		if err != nil {
			c.updateStatus(func(s *model.CrawlStatus) { s.URLsFailed++ })
			metrics.CrawlURLFailed()
			line := applog.CrawlLine("CRAWL failed url=%s err=%v", it.url, err)
			c.Store.AppendLog(ctx, line)
			if errors.Is(err, wayback.ErrUpstreamUnavailable) {
				backoff.wait(ctx)
			}
			frontier.done()
			continue
		}
		backoff.reset()

		c.updateStatus(func(s *model.CrawlStatus) { s.URLsFetched++ })
		metrics.CrawlURLFetched()
		line := applog.CrawlLine("CRAWL fetched url=%s depth_remaining=%d", it.url, it.depthRemaining)
		c.Store.AppendLog(ctx, line)

		if it.depthRemaining > 0 {
			for _, child := range children {
				normalized, err := urlkey.Normalize(child)
				if err != nil {
					continue
				}
				if seen.markVisited(normalized) {
					continue
				}
				frontier.push(item{url: child, depthRemaining: it.depthRemaining - 1})
				c.updateStatus(func(s *model.CrawlStatus) { s.URLsSeen++ })
			}
		}
		frontier.done()
	}
}

// fetchOne fetches and stores one frontier item, returning same-origin
// child URLs to enqueue when the result is HTML.
func (c *Crawler) fetchOne(ctx context.Context, it item) ([]string, error) {
	resp, err := c.Wayback.FetchSnapshot(ctx, it.url, c.TargetDate)
	if err != nil {
		return nil, err
	}

	meta := transform.Meta{ContentType: resp.ContentType, OriginalURL: it.url}
	body, _ := transform.Transform(resp.Body, meta, c.TransformRules)
	resp.Body = body

	if err := c.Store.PutCurated(ctx, it.url, resp); err != nil {
		return nil, err
	}

	if !transform.IsHTML(resp.ContentType) {
		return nil, nil
	}
	return extractSameOriginLinks(it.url, resp.Body)
}
