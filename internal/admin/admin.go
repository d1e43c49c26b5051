// Package admin implements the HTTP-mounted management surface: a
// status dashboard, seed management, crawl control, and cache
// inspection, all gated behind HTTP Basic Auth.
package admin

import (
	"context"
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/crawler"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/model"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/store"
)

// ColdStore exports the curated tier to durable storage. Implemented
// by internal/coldstore.Exporter; an interface here so admin never
// imports the AWS SDK directly.
type ColdStore interface {
	Export(ctx context.Context) error
}

// Handler serves every /_admin/ route.
type Handler struct {
	Store     store.Store
	Crawler   *crawler.Crawler
	ColdStore ColdStore // nil disables /_admin/cache/export
	Password  string

	exportMu     sync.Mutex
	exporting    bool
	lastExportAt time.Time
	lastExportErr error
}

// NewHandler builds an admin Handler. If password is empty, every
// route responds 401 (spec.md §4.6: "if unset, the surface refuses to
// serve and logs a warning" — the warning is logged by the caller at
// startup, since only it knows whether this is expected).
func NewHandler(s store.Store, cr *crawler.Crawler, cold ColdStore, password string) *Handler {
	return &Handler{Store: s, Crawler: cr, ColdStore: cold, Password: password}
}

// Routes returns the admin mux. The caller (internal/proxy) passes the
// request through unchanged, so routes here carry the full /_admin/ path.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/_admin/", requireBasicAuth(h.Password, h.handleDashboard))
	mux.HandleFunc("/_admin/seeds", requireBasicAuth(h.Password, h.handleSeeds))
	mux.HandleFunc("/_admin/crawl/start", requireBasicAuth(h.Password, h.handleCrawlStart))
	mux.HandleFunc("/_admin/crawl/stop", requireBasicAuth(h.Password, h.handleCrawlStop))
	mux.HandleFunc("/_admin/crawl/recrawl", requireBasicAuth(h.Password, h.handleCrawlRecrawl))
	mux.HandleFunc("/_admin/cache", requireBasicAuth(h.Password, h.handleCacheList))
	mux.HandleFunc("/_admin/cache/delete", requireBasicAuth(h.Password, h.handleCacheDelete))
	mux.HandleFunc("/_admin/cache/clear", requireBasicAuth(h.Password, h.handleCacheClear))
	mux.HandleFunc("/_admin/cache/export", requireBasicAuth(h.Password, h.handleCacheExport))
	mux.HandleFunc("/_admin/log", requireBasicAuth(h.Password, h.handleLog))
	mux.HandleFunc("/_admin/status.json", requireBasicAuth(h.Password, h.handleStatusJSON))
	return mux
}

var dashboardTemplate = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html><head><title>Wayback Cache Proxy Admin</title></head>
<body>
<h1>Wayback Cache Proxy</h1>
<p>Crawl state: {{.Crawl.State}}</p>
<p>Curated: {{.Cache.CuratedCount}} entries, Hot: {{.Cache.HotCount}} entries, ~{{.Cache.ApproxBytes}} bytes</p>
</body></html>
`))

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/_admin/" {
		http.NotFound(w, r)
		return
	}
	ctx := r.Context()
	stats, err := h.Store.Stats(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	data := struct {
		Cache model.CacheStats
		Crawl model.CrawlStatus
	}{Cache: stats, Crawl: h.Crawler.Status()}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	dashboardTemplate.Execute(w, data)
}

func (h *Handler) handleSeeds(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		URL    string `json:"url"`
		Depth  int    `json:"depth"`
		Remove bool   `json:"remove"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	if req.Remove {
		if err := h.Store.DeleteSeed(ctx, req.URL); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	} else if err := h.Store.PutSeed(ctx, model.CrawlSeed{URL: req.URL, Depth: req.Depth}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleCrawlStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var depthOverride *int
	if v := r.URL.Query().Get("depth"); v != "" {
		if d, err := strconv.Atoi(v); err == nil {
			depthOverride = &d
		}
	}
	if err := h.Crawler.Start(r.Context(), depthOverride); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) handleCrawlStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.Crawler.Stop()
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleCrawlRecrawl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.Crawler.Recrawl(r.Context(), nil); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleCacheList implements spec.md §4.6's "Paginated listing by tier
// with search": ?tier=curated|hot (omit for both), ?q=<substring>,
// ?offset=, ?limit= (capped server-side).
func (h *Handler) handleCacheList(w http.ResponseWriter, r *http.Request) {
	q := model.CacheListQuery{
		Tier:   model.Tier(r.URL.Query().Get("tier")),
		Search: r.URL.Query().Get("q"),
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			q.Offset = n
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			q.Limit = n
		}
	}

	result, err := h.Store.ListEntries(r.Context(), q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (h *Handler) handleCacheDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		URL  string `json:"url"`
		Tier string `json:"tier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.Store.Delete(r.Context(), req.URL, model.Tier(req.Tier)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Tier string `json:"tier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.Store.Clear(r.Context(), model.Tier(req.Tier)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleCacheExport triggers an async export of the curated tier to
// cold storage and returns immediately; progress is visible in
// status.json. Not named in spec.md itself (see SPEC_FULL.md §10).
func (h *Handler) handleCacheExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.ColdStore == nil {
		http.Error(w, "cold storage export not configured", http.StatusNotImplemented)
		return
	}
	h.exportMu.Lock()
	if h.exporting {
		h.exportMu.Unlock()
		http.Error(w, "export already in progress", http.StatusConflict)
		return
	}
	h.exporting = true
	h.exportMu.Unlock()

	go func() {
		err := h.ColdStore.Export(context.Background())
		h.exportMu.Lock()
		h.exporting = false
		h.lastExportAt = time.Now()
		h.lastExportErr = err
		h.exportMu.Unlock()
	}()

	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) handleLog(w http.ResponseWriter, r *http.Request) {
	n := 200
	if v := r.URL.Query().Get("n"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			n = parsed
		}
	}
	lines, err := h.Store.TailLog(r.Context(), n)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(lines)
}

func (h *Handler) handleStatusJSON(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.Store.Stats(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.exportMu.Lock()
	exportStatus := struct {
		Exporting    bool      `json:"exporting"`
		LastFinished time.Time `json:"last_finished,omitempty"`
		LastError    string    `json:"last_error,omitempty"`
	}{Exporting: h.exporting, LastFinished: h.lastExportAt}
	if h.lastExportErr != nil {
		exportStatus.LastError = h.lastExportErr.Error()
	}
	h.exportMu.Unlock()

	resp := struct {
		Crawl  model.CrawlStatus `json:"crawl"`
		Cache  model.CacheStats  `json:"cache"`
		Export interface{}       `json:"cold_store_export"`
	}{Crawl: h.Crawler.Status(), Cache: stats, Export: exportStatus}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
