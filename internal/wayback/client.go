// Package wayback resolves a single (url, date) pair to the closest
// archived snapshot the Internet Archive's Wayback Machine has for it,
// following the archive's own redirect chain manually so a "no snapshot"
// answer (redirect back out to the live web) can be told apart from a
// "snapshot moved" answer (redirect to another archive timestamp).
package wayback

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/applog"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/metrics"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/model"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/urlkey"
)

const (
	defaultUserAgent = "WaybackCacheProxy/1.0 (+exhibition kiosk)"
	maxRedirects     = 10
	archiveHost      = "web.archive.org"
)

// hopHeaders are stripped from archive responses before they reach the
// cache or the client, per RFC 7230.
var hopHeaders = []string{
	"Connection", "Keep-Alive", "Transfer-Encoding", "Te", "Trailer", "Upgrade",
	"Proxy-Authenticate", "Proxy-Authorization",
}

// internalRedirect matches the archive's own "/web/{date}/{url}" or
// "/web/{date}id_/{url}" redirect form.
var internalRedirect = regexp.MustCompile(`^/web/(\d{1,14})[a-z_]*/(.+)$`)

// Client fetches archived snapshots from web.archive.org.
type Client struct {
	HTTPClient    *http.Client
	UserAgent     string
	ToleranceDays int
	// BaseURL overrides the archive origin; defaults to
	// "https://web.archive.org" and exists so tests can point the
	// client at an httptest server.
	BaseURL string
}

// New builds a Client with a connect/read timeout (default 30s).
func New(timeout time.Duration, userAgent string, toleranceDays int) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		HTTPClient:    &http.Client{Timeout: timeout},
		UserAgent:     userAgent,
		ToleranceDays: toleranceDays,
		BaseURL:       "https://" + archiveHost,
	}
}

type visitedKey struct {
	date string
	url  string
}

// FetchSnapshot resolves (targetURL, date) to a CachedResponse, following
// up to 10 archive-internal redirects. date is YYYYMMDD.
func (c *Client) FetchSnapshot(ctx context.Context, targetURL, date string) (*model.CachedResponse, error) {
	start := time.Now()
	resp, err := c.fetch(ctx, targetURL, date)
	outcome := "ok"
	if err != nil {
		outcome = outcomeFor(err)
	}
	metrics.ObserveWaybackFetch(outcome, time.Since(start))
	return resp, err
}

func outcomeFor(err error) string {
	switch {
	case err == ErrNotArchived:
		return "not-archived"
	case err == ErrTooManyRedirects:
		return "too-many-redirects"
	case err == ErrLoopDetected:
		return "loop"
	default:
		return "upstream-unavailable"
	}
}

func (c *Client) fetch(ctx context.Context, targetURL, date string) (*model.CachedResponse, error) {
	normalized, err := urlkey.Normalize(targetURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	currentDate, currentURL := date, normalized
	visited := map[visitedKey]bool{}

	for redirectCount := 0; ; redirectCount++ {
		key := visitedKey{currentDate, currentURL}
		if visited[key] {
			return nil, ErrLoopDetected
		}
		visited[key] = true

		archiveURL := fmt.Sprintf("%s/web/%sid_/%s", c.BaseURL, currentDate, currentURL)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, archiveURL, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		}
		req.Header.Set("User-Agent", c.UserAgent)

		// Redirects are handled by this loop, not by net/http.
		httpClient := *c.HTTPClient
		httpClient.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
		resp, err := httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
		}

		if resp.StatusCode >= 300 && resp.StatusCode < 400 {
			resp.Body.Close()
			if redirectCount >= maxRedirects {
				return nil, ErrTooManyRedirects
			}
			location := resp.Header.Get("Location")
			nextDate, nextURL, ok := parseArchiveRedirect(location)
			if !ok {
				// Redirect points at the live web: the archive has no snapshot.
				return nil, ErrNotArchived
			}
			currentDate, currentURL = nextDate, nextURL
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			return nil, ErrNotArchived
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			return nil, ErrUpstreamUnavailable
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: unexpected status %d", ErrUpstreamUnavailable, resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
		}

		header := sanitizeHeaders(resp.Header)
		contentType := header.Get("Content-Type")
		if contentType == "" {
			contentType = sniff(body)
			header.Set("Content-Type", contentType)
		}

		applog.Emit("info", "wayback", map[string]string{"url": currentURL, "date": currentDate}, fmt.Sprintf("WAYBACK fetched url=%s requested_date=%s served_date=%s status=%d bytes=%d", currentURL, date, currentDate, resp.StatusCode, len(body)))

		return &model.CachedResponse{
			StatusCode:  resp.StatusCode,
			Header:      header,
			Body:        body,
			ContentType: mediaType(contentType),
			StoredAt:    time.Now(),
			SourceURL:   currentURL,
			ArchiveDate: currentDate,
		}, nil
	}
}

// parseArchiveRedirect reports whether location is an archive-internal
// redirect ("/web/{date}/{url}" form, absolute or host-relative), and if
// so returns the date and url to continue with.
func parseArchiveRedirect(location string) (date, url string, ok bool) {
	path := location
	if strings.HasPrefix(location, "http://"+archiveHost) || strings.HasPrefix(location, "https://"+archiveHost) {
		if idx := strings.Index(location, "/web/"); idx >= 0 {
			path = location[idx:]
		}
	} else if !strings.HasPrefix(location, "/web/") {
		// Any other absolute URL, or a path outside /web/, is the archive
		// handing us back to the live web: no snapshot exists.
		return "", "", false
	}
	m := internalRedirect.FindStringSubmatch(path)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

func sanitizeHeaders(h http.Header) http.Header {
	out := h.Clone()
	for _, hop := range hopHeaders {
		out.Del(hop)
	}
	return out
}

func mediaType(contentType string) string {
	t, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return contentType
	}
	return t
}

func sniff(body []byte) string {
	n := len(body)
	if n > 512 {
		n = 512
	}
	return http.DetectContentType(body[:n])
}
