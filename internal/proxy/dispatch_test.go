package proxy

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/config"
)

func TestDispatchRoutesAdminPrefixOnOwnHost(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	called := false
	srv.Admin = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodGet, "/_admin/", nil)
	req.Host = "proxy.local:8080"
	srv.ServeHTTP(httptest.NewRecorder(), req)

	if !called {
		t.Fatalf("expected admin handler to be invoked for /_admin/ on own host")
	}
}

func TestDispatchTreatsAdminPrefixOnForeignHostAsBadRequest(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	called := false
	srv.Admin = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodGet, "/_admin/", nil)
	req.Host = "some-other-host.example:80"
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if called {
		t.Fatalf("admin handler must not run for a path-only request with a foreign Host")
	}
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a non-absolute, non-admin, non-root request, got %d", w.Code)
	}
}

func TestDispatchServesLandingPageAtRoot(t *testing.T) {
	srv, _, live := newTestServer(t, nil)
	cfg := *live.Get()
	cfg.LandingPage = true
	srv.Live = config.NewLive(&cfg)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for landing page, got %d", w.Code)
	}
}

func TestDispatchRejectsNonAbsoluteNonRootRequest(t *testing.T) {
	srv, _, live := newTestServer(t, nil)
	cfg := *live.Get()
	cfg.LandingPage = false
	srv.Live = config.NewLive(&cfg)

	req := httptest.NewRequest(http.MethodGet, "/favicon.ico", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
