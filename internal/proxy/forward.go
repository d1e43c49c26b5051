package proxy

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/applog"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/metrics"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/model"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/throttle"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/transform"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/urlkey"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/wayback"
)

const upstreamTimeout = 30 * time.Second

// handleForward implements spec.md §4.7's forward-proxy path: allowlist
// gate, cache lookup, Wayback fetch on miss, transform, throttle+inject
// while streaming to the client.
func (s *Server) handleForward(w http.ResponseWriter, r *http.Request, requestID string) {
	start := time.Now()
	cfg := s.Live.Get()
	targetURL := r.URL.String()

	normalized, err := urlkey.Normalize(targetURL)
	if err != nil {
		applog.ErrorLine(r.Method, targetURL, http.StatusBadRequest, requestID, err)
		s.badRequest(w, "could not parse target URL")
		return
	}

	ctx := r.Context()

	if cfg.Access.Mode == "allowlist" {
		allowed, err := s.Store.AllowlistCheck(ctx, normalized)
		if err != nil {
			applog.ErrorLine(r.Method, targetURL, http.StatusBadRequest, requestID, err)
			s.badRequest(w, "could not evaluate allowlist")
			return
		}
		if !allowed {
			s.renderError(w, http.StatusForbidden, "Forbidden", "This URL is not on the configured allowlist.")
			metrics.ObserveProxyResponse(r.Method, http.StatusForbidden, "", time.Since(start))
			return
		}
	}

	applog.RequestLine(r.Method, targetURL, "pending", requestID)

	resp, tier, err := s.Store.Get(ctx, normalized)
	if err != nil {
		applog.ErrorLine(r.Method, targetURL, http.StatusInternalServerError, requestID, err)
	}

	wasHit := resp != nil
	if !wasHit {
		fetchCtx, cancel := context.WithTimeout(ctx, upstreamTimeout)
		defer cancel()

		fetched, ferr := s.Wayback.FetchSnapshot(fetchCtx, normalized, cfg.Proxy.TargetDate)
		if ferr != nil {
			s.handleFetchError(w, r, targetURL, requestID, ferr, start)
			return
		}

		meta := transform.Meta{ContentType: fetched.ContentType, OriginalURL: normalized}
		rules := transform.Rules{
			RemoveWaybackToolbar: cfg.Transform.RemoveWaybackToolbar,
			RemoveWaybackScripts: cfg.Transform.RemoveWaybackScripts,
			FixBaseTags:          cfg.Transform.FixBaseTags,
			FixAssetURLs:         cfg.Transform.FixAssetURLs,
			NormalizeLinks:       cfg.Transform.NormalizeLinks,
		}
		body, _ := transform.Transform(fetched.Body, meta, rules)
		fetched.Body = body

		hotTTL := time.Duration(cfg.Cache.HotTTLDays) * 24 * time.Hour
		if err := s.Store.PutHot(ctx, normalized, fetched, hotTTL); err != nil {
			applog.ErrorLine(r.Method, targetURL, 0, requestID, err)
		}

		resp = fetched
		tier = model.Hot
	}

	if err := s.Store.TrackView(ctx, normalized); err != nil {
		applog.ErrorLine(r.Method, targetURL, 0, requestID, err)
	}

	cacheOutcome := cacheOutcomeHeader(tier, wasHit)
	s.streamResponse(w, r, resp, cacheOutcome, requestID, start)
}

func (s *Server) handleFetchError(w http.ResponseWriter, r *http.Request, targetURL, requestID string, err error, start time.Time) {
	switch {
	case errors.Is(err, wayback.ErrNotArchived):
		applog.Emit("info", "proxy", map[string]string{"request_id": requestID}, "NOT-ARCHIVED url="+targetURL)
		s.renderError(w, http.StatusNotFound, "Not Archived", "The Wayback Machine has no snapshot of this URL for the configured date.")
		metrics.ObserveProxyResponse(r.Method, http.StatusNotFound, "", time.Since(start))
	case errors.Is(err, context.DeadlineExceeded):
		applog.ErrorLine(r.Method, targetURL, http.StatusGatewayTimeout, requestID, err)
		s.renderError(w, http.StatusGatewayTimeout, "Upstream Timeout", "The Wayback Machine did not respond in time.")
		metrics.ObserveProxyResponse(r.Method, http.StatusGatewayTimeout, "", time.Since(start))
	default:
		applog.ErrorLine(r.Method, targetURL, http.StatusBadGateway, requestID, err)
		s.renderError(w, http.StatusBadGateway, "Upstream Unavailable", "Could not reach the Wayback Machine.")
		metrics.ObserveProxyResponse(r.Method, http.StatusBadGateway, "", time.Since(start))
	}
}

// streamResponse applies the header bar and throttle stages, then
// writes the (possibly injected) body to the client at the effective
// configured rate.
func (s *Server) streamResponse(w http.ResponseWriter, r *http.Request, resp *model.CachedResponse, cacheOutcome, requestID string, start time.Time) {
	cfg := s.Live.Get()
	body := resp.Body

	if cfg.HeaderBar.Enabled && transform.IsHTML(resp.ContentType) {
		var speedOptions []throttle.Speed
		if cfg.HeaderBar.SpeedSelector {
			speedOptions = []throttle.Speed{
				throttle.Speed144k, throttle.Speed288k, throttle.Speed56k,
				throttle.SpeedISDN, throttle.SpeedDSL, throttle.SpeedUnlimited,
			}
		}
		fragment, err := throttle.RenderHeaderBar(throttle.HeaderBarFields{
			URL:          resp.SourceURL,
			ArchiveDate:  resp.ArchiveDate,
			BrandText:    cfg.HeaderBar.Text,
			SpeedOptions: speedOptions,
		})
		if err == nil {
			body = throttle.InjectHeaderBar(body, fragment)
		}
	}

	writeCachedHeaders(w, resp, cacheOutcome, len(body))
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(resp.StatusCode)

	speed := throttle.EffectiveSpeed(r, cfg.HeaderBar.SpeedSelector, throttle.Speed(cfg.Throttle.Speed))
	n, err := throttle.WriteThrottled(r.Context(), w, body, speed)
	dur := time.Since(start)
	applog.ResponseLine(r.Method, resp.SourceURL, cacheOutcome, resp.StatusCode, n, dur, requestID)
	metrics.ObserveProxyResponse(r.Method, resp.StatusCode, cacheOutcome, dur)
	if err != nil {
		applog.ErrorLine(r.Method, resp.SourceURL, resp.StatusCode, requestID, err)
	}
}
