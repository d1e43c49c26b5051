package store

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/model"
)

func sample(body string) *model.CachedResponse {
	return &model.CachedResponse{
		StatusCode:  200,
		Header:      http.Header{"Content-Type": []string{"text/html"}},
		Body:        []byte(body),
		ContentType: "text/html",
		StoredAt:    time.Now(),
		SourceURL:   "http://example.com/",
		ArchiveDate: "20010915",
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := sample("<html>hi</html>")
	raw, err := encodeResponse(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := decodeResponse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if string(out.Body) != string(in.Body) || out.ContentType != in.ContentType {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestCuratedWinsOverHot(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	url := "http://example.com/"

	if err := s.PutHot(ctx, url, sample("hot"), time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := s.PutCurated(ctx, url, sample("curated")); err != nil {
		t.Fatal(err)
	}

	resp, tier, err := s.Get(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	if tier != model.Curated || string(resp.Body) != "curated" {
		t.Fatalf("expected curated hit, got tier=%v body=%q", tier, resp.Body)
	}
}

func TestDeleteCuratedLeavesNoEntryWithoutHot(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	url := "http://example.com/"
	s.PutCurated(ctx, url, sample("curated"))

	if err := s.Delete(ctx, url, model.Curated); err != nil {
		t.Fatal(err)
	}
	resp, _, err := s.Get(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	if resp != nil {
		t.Fatalf("expected miss after deleting the only entry, got %+v", resp)
	}
}

func TestZeroTTLHotWriteIsNoop(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	url := "http://example.com/"
	if err := s.PutHot(ctx, url, sample("hot"), 0); err != nil {
		t.Fatal(err)
	}
	resp, _, err := s.Get(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	if resp != nil {
		t.Fatalf("expected hot_ttl_days=0 to no-op, got a stored entry")
	}
}

func TestWritesToOneTierDoNotTouchTheOther(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	url := "http://example.com/"
	s.PutCurated(ctx, url, sample("curated"))
	s.PutHot(ctx, url, sample("hot"), time.Hour)
	s.Delete(ctx, url, model.Curated)

	resp, tier, err := s.Get(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	if tier != model.Hot || string(resp.Body) != "hot" {
		t.Fatalf("expected hot entry to survive curated delete, got tier=%v", tier)
	}
}

func TestAllCuratedReturnsEveryCuratedEntryButNotHot(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	s.PutCurated(ctx, "http://a.test/", sample("a"))
	s.PutCurated(ctx, "http://b.test/", sample("b"))
	s.PutHot(ctx, "http://c.test/", sample("c"), time.Hour)

	all, err := s.AllCurated(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 curated entries, got %d", len(all))
	}
	for _, resp := range all {
		if string(resp.Body) == "c" {
			t.Fatalf("AllCurated must not include hot-tier entries")
		}
	}
}

func sampleAt(rawURL, body string) *model.CachedResponse {
	r := sample(body)
	r.SourceURL = rawURL
	return r
}

func TestListEntriesFiltersByTierAndSearch(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	s.PutCurated(ctx, "http://museum.art/", sampleAt("http://museum.art/", "a"))
	s.PutCurated(ctx, "http://example.com/", sampleAt("http://example.com/", "b"))
	s.PutHot(ctx, "http://example.com/other", sampleAt("http://example.com/other", "c"), time.Hour)

	all, err := s.ListEntries(ctx, model.CacheListQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if all.Total != 3 || len(all.Entries) != 3 {
		t.Fatalf("expected 3 total entries, got %+v", all)
	}

	curatedOnly, err := s.ListEntries(ctx, model.CacheListQuery{Tier: model.Curated})
	if err != nil {
		t.Fatal(err)
	}
	if curatedOnly.Total != 2 {
		t.Fatalf("expected 2 curated entries, got %+v", curatedOnly)
	}

	searched, err := s.ListEntries(ctx, model.CacheListQuery{Search: "museum"})
	if err != nil {
		t.Fatal(err)
	}
	if searched.Total != 1 || searched.Entries[0].URL != "http://museum.art/" {
		t.Fatalf("expected search to isolate museum.art, got %+v", searched)
	}
}

func TestListEntriesPaginates(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	urls := []string{"http://a.test/", "http://b.test/", "http://c.test/"}
	for _, u := range urls {
		s.PutCurated(ctx, u, sampleAt(u, "x"))
	}

	page, err := s.ListEntries(ctx, model.CacheListQuery{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 3 || len(page.Entries) != 2 {
		t.Fatalf("expected a 2-entry page out of 3 total, got %+v", page)
	}
	if page.Entries[0].URL != "http://a.test/" || page.Entries[1].URL != "http://b.test/" {
		t.Fatalf("expected alphabetical order, got %+v", page.Entries)
	}

	rest, err := s.ListEntries(ctx, model.CacheListQuery{Offset: 2, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(rest.Entries) != 1 || rest.Entries[0].URL != "http://c.test/" {
		t.Fatalf("expected the last entry on the second page, got %+v", rest.Entries)
	}
}

func TestTrackViewAndTopViews(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	s.TrackView(ctx, "http://a.example.com/x")
	s.TrackView(ctx, "http://b.example.com/y")
	s.TrackView(ctx, "http://b.example.com/z")

	top, err := s.TopViews(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 1 || top[0].Domain != "example.com" || top[0].Count != 3 {
		t.Fatalf("unexpected top views: %+v", top)
	}
}

func TestAllowlistEmptyDeniesEverything(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	ok, err := s.AllowlistCheck(ctx, "http://example.com/")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatalf("expected empty allowlist to deny")
	}

	s.AllowlistSet(ctx, []string{"http://*.art/**"})
	ok, err = s.AllowlistCheck(ctx, "http://museum.art/room1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatalf("expected allowlisted pattern to match")
	}
}

func TestCrawlLogRingTruncates(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	for i := 0; i < crawlLogMaxLen+10; i++ {
		s.AppendLog(ctx, "line")
	}
	lines, err := s.TailLog(ctx, crawlLogMaxLen+10)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != crawlLogMaxLen {
		t.Fatalf("expected ring capped at %d, got %d", crawlLogMaxLen, len(lines))
	}
}

func TestSeedsPutAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	s.PutSeed(ctx, model.CrawlSeed{URL: "http://example.com/", Depth: 2})
	seeds, err := s.Seeds(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(seeds) != 1 || seeds[0].Depth != 2 {
		t.Fatalf("unexpected seeds: %+v", seeds)
	}
	s.DeleteSeed(ctx, "http://example.com/")
	seeds, _ = s.Seeds(ctx)
	if len(seeds) != 0 {
		t.Fatalf("expected seed removed, got %+v", seeds)
	}
}

func TestSubscribeReloadReceivesPublish(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	ch, cancel := s.SubscribeReload(ctx)
	defer cancel()

	s.PublishReload(ctx)

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for reload notification")
	}
}
