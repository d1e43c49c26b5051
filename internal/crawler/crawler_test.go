package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/model"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/store"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/transform"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/wayback"
)

var allTransformRules = transform.Rules{
	RemoveWaybackToolbar: true,
	RemoveWaybackScripts: true,
	FixBaseTags:          true,
	FixAssetURLs:         true,
	NormalizeLinks:       true,
}

// page maps a served URL to its snapshot body; used by a stub archive
// server so the crawler can be driven end to end without live Redis
// or live web.archive.org.
type page struct {
	body string
	ct   string
}

func newStubArchive(pages map[string]page) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// archiveURL form: /web/{date}id_/{originalURL}
		const prefix = "/web/"
		path := r.URL.Path
		idx := len(prefix)
		rest := path[idx:]
		// rest = "{date}id_/{originalURL}"
		slash := indexByte(rest, '/')
		originalURL := rest[slash+1:]
		if r.URL.RawQuery != "" {
			originalURL += "?" + r.URL.RawQuery
		}
		p, ok := pages[originalURL]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", p.ct)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(p.body))
	}))
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func newTestCrawler(srv *httptest.Server, concurrency, defaultDepth int) (*Crawler, *store.MemStore) {
	s := store.NewMemStore()
	wb := wayback.New(0, "", 0)
	wb.HTTPClient = srv.Client()
	wb.BaseURL = srv.URL
	return New(s, wb, concurrency, defaultDepth, "20010915", allTransformRules), s
}

func waitIdle(t *testing.T, c *Crawler) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Status().State == model.CrawlIdle {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("crawl did not finish in time, status=%+v", c.Status())
}

func TestDepthZeroFetchesOnlySeed(t *testing.T) {
	srv := newStubArchive(map[string]page{
		"http://example.com/": {body: `<html><body><a href="/child">child</a></body></html>`, ct: "text/html"},
		"http://example.com/child": {body: "child page", ct: "text/html"},
	})
	defer srv.Close()

	c, s := newTestCrawler(srv, 2, 0)
	s.PutSeed(context.Background(), model.CrawlSeed{URL: "http://example.com/", Depth: 0})

	if err := c.Start(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, c)

	if _, tier, _ := s.Get(context.Background(), "http://example.com/"); tier != model.Curated {
		t.Fatalf("expected seed stored in curated tier")
	}
	if _, tier, _ := s.Get(context.Background(), "http://example.com/child"); tier == model.Curated {
		t.Fatalf("depth 0 must not fetch children")
	}
}

func TestCrawlerFollowsLinksWithinDepth(t *testing.T) {
	srv := newStubArchive(map[string]page{
		"http://example.com/":      {body: `<html><body><a href="/child">child</a></body></html>`, ct: "text/html"},
		"http://example.com/child": {body: "child page", ct: "text/plain"},
	})
	defer srv.Close()

	c, s := newTestCrawler(srv, 2, 0)
	s.PutSeed(context.Background(), model.CrawlSeed{URL: "http://example.com/", Depth: 1})

	if err := c.Start(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, c)

	if _, tier, _ := s.Get(context.Background(), "http://example.com/child"); tier != model.Curated {
		t.Fatalf("expected child fetched at depth 1")
	}
	status := c.Status()
	if status.URLsFetched != 2 {
		t.Fatalf("expected 2 URLs fetched, got %d", status.URLsFetched)
	}
}

func TestRecrawlClearsHotTierFirst(t *testing.T) {
	srv := newStubArchive(map[string]page{
		"http://example.com/": {body: "hello", ct: "text/plain"},
	})
	defer srv.Close()

	c, s := newTestCrawler(srv, 1, 0)
	s.PutHot(context.Background(), "http://example.com/", &model.CachedResponse{Body: []byte("stale-hot")}, time.Hour)
	s.PutSeed(context.Background(), model.CrawlSeed{URL: "http://example.com/", Depth: 0})

	if err := c.Recrawl(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, c)

	if _, tier, _ := s.Get(context.Background(), "http://example.com/"); tier != model.Curated {
		t.Fatalf("expected recrawl to have stored the seed in curated")
	}
}

func TestStartTwiceWhileRunningFails(t *testing.T) {
	srv := newStubArchive(map[string]page{"http://example.com/": {body: "hi", ct: "text/plain"}})
	defer srv.Close()

	c, s := newTestCrawler(srv, 1, 0)
	for i := 0; i < 50; i++ {
		s.PutSeed(context.Background(), model.CrawlSeed{URL: fmt.Sprintf("http://example.com/?%d", i), Depth: 0})
	}

	if err := c.Start(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(context.Background(), nil); err == nil {
		t.Fatalf("expected second Start to fail while a crawl is running")
	}
	waitIdle(t, c)
}

func TestCrawlLogAppended(t *testing.T) {
	srv := newStubArchive(map[string]page{"http://example.com/": {body: "hi", ct: "text/plain"}})
	defer srv.Close()

	c, s := newTestCrawler(srv, 1, 0)
	s.PutSeed(context.Background(), model.CrawlSeed{URL: "http://example.com/", Depth: 0})

	if err := c.Start(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, c)

	lines, err := s.TailLog(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) == 0 {
		t.Fatalf("expected at least one crawl log line")
	}
}
