package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/model"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/store"
)

func newTestHandler(t *testing.T) (*Handler, *store.MemStore) {
	t.Helper()
	s := store.NewMemStore()
	return NewHandler(s, nil, nil, "secret"), s
}

func authedRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.SetBasicAuth("admin", "secret")
	return req
}

func TestHandleCacheListSearches(t *testing.T) {
	h, s := newTestHandler(t)
	ctx := context.Background()
	s.PutCurated(ctx, "http://museum.art/", &model.CachedResponse{SourceURL: "http://museum.art/"})
	s.PutCurated(ctx, "http://example.com/", &model.CachedResponse{SourceURL: "http://example.com/"})
	s.PutHot(ctx, "http://example.com/x", &model.CachedResponse{SourceURL: "http://example.com/x"}, time.Hour)

	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, authedRequest(http.MethodGet, "/_admin/cache?q=museum"))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var result model.CacheListResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.Total != 1 || len(result.Entries) != 1 || result.Entries[0].URL != "http://museum.art/" {
		t.Fatalf("expected search to isolate museum.art, got %+v", result)
	}
}

func TestHandleCacheListRequiresAuth(t *testing.T) {
	h, _ := newTestHandler(t)
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/_admin/cache", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", w.Code)
	}
}
