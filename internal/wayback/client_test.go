package wayback

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// archiveStub simulates a web.archive.org-shaped redirect chain.
type archiveStub struct {
	redirects map[string]string // path -> Location
	finalBody []byte
	finalCT   string
	notFound  bool
}

func (s *archiveStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if loc, ok := s.redirects[r.URL.Path]; ok {
			w.Header().Set("Location", loc)
			w.WriteHeader(http.StatusFound)
			return
		}
		if s.notFound {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if s.finalCT != "" {
			w.Header().Set("Content-Type", s.finalCT)
		}
		w.WriteHeader(http.StatusOK)
		w.Write(s.finalBody)
	}
}

func chainOfLength(n int) map[string]string {
	redirects := map[string]string{}
	for i := 0; i < n; i++ {
		from := fmt.Sprintf("/web/%08did_/http://example.com/", 20010915+i)
		to := fmt.Sprintf("/web/%08did_/http://example.com/", 20010915+i+1)
		redirects[from] = to
	}
	return redirects
}

func TestParseArchiveRedirectInternal(t *testing.T) {
	date, url, ok := parseArchiveRedirect("/web/20010915id_/http://example.com/")
	if !ok || date != "20010915" || url != "http://example.com/" {
		t.Fatalf("got date=%q url=%q ok=%v", date, url, ok)
	}
}

func TestParseArchiveRedirectLiveWeb(t *testing.T) {
	if _, _, ok := parseArchiveRedirect("http://example.com/"); ok {
		t.Fatalf("expected live-web redirect to be terminal (ok=false)")
	}
}

func TestRedirectChainOfTenSucceeds(t *testing.T) {
	stub := &archiveStub{redirects: chainOfLength(10), finalBody: []byte("<html>ok</html>"), finalCT: "text/html"}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	c := New(0, "", 0)
	c.HTTPClient = srv.Client()
	c.BaseURL = srv.URL

	resp, err := c.FetchSnapshot(context.Background(), "http://example.com/", "20010915")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if string(resp.Body) != "<html>ok</html>" {
		t.Fatalf("unexpected body %q", resp.Body)
	}
	if resp.ArchiveDate != "20010925" {
		t.Fatalf("expected final served date 20010925, got %q", resp.ArchiveDate)
	}
}

func TestRedirectChainOfElevenFails(t *testing.T) {
	stub := &archiveStub{redirects: chainOfLength(11), finalBody: []byte("<html>ok</html>"), finalCT: "text/html"}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	c := New(0, "", 0)
	c.HTTPClient = srv.Client()
	c.BaseURL = srv.URL

	_, err := c.FetchSnapshot(context.Background(), "http://example.com/", "20010915")
	if !errors.Is(err, ErrTooManyRedirects) {
		t.Fatalf("expected ErrTooManyRedirects, got %v", err)
	}
}

func TestFetchNotArchived404(t *testing.T) {
	stub := &archiveStub{notFound: true}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	c := New(0, "", 0)
	c.HTTPClient = srv.Client()
	c.BaseURL = srv.URL

	_, err := c.FetchSnapshot(context.Background(), "http://example.com/", "20010915")
	if !errors.Is(err, ErrNotArchived) {
		t.Fatalf("expected ErrNotArchived, got %v", err)
	}
}

func TestFetchRedirectToLiveWebIsNotArchived(t *testing.T) {
	stub := &archiveStub{redirects: map[string]string{
		"/web/20010915id_/http://example.com/": "http://example.com/",
	}}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	c := New(0, "", 0)
	c.HTTPClient = srv.Client()
	c.BaseURL = srv.URL

	_, err := c.FetchSnapshot(context.Background(), "http://example.com/", "20010915")
	if !errors.Is(err, ErrNotArchived) {
		t.Fatalf("expected ErrNotArchived, got %v", err)
	}
}

func TestFetchLoopDetected(t *testing.T) {
	stub := &archiveStub{redirects: map[string]string{
		"/web/20010915id_/http://example.com/": "/web/20010916id_/http://example.com/",
		"/web/20010916id_/http://example.com/": "/web/20010915id_/http://example.com/",
	}}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	c := New(0, "", 0)
	c.HTTPClient = srv.Client()
	c.BaseURL = srv.URL

	_, err := c.FetchSnapshot(context.Background(), "http://example.com/", "20010915")
	if !errors.Is(err, ErrLoopDetected) {
		t.Fatalf("expected ErrLoopDetected, got %v", err)
	}
}

func TestOutcomeForMapsSentinels(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{ErrNotArchived, "not-archived"},
		{ErrTooManyRedirects, "too-many-redirects"},
		{ErrLoopDetected, "loop"},
		{ErrUpstreamUnavailable, "upstream-unavailable"},
	}
	for _, c := range cases {
		if got := outcomeFor(c.err); got != c.want {
			t.Fatalf("outcomeFor(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}
