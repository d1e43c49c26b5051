package proxy

import (
	"net/http"
	"strconv"

	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/model"
)

const serverHeaderValue = "WaybackCacheProxy"

// cacheOutcomeHeader maps a tier (or "" for a cache miss that was just
// fetched) to the X-Cache value spec.md §6 requires.
func cacheOutcomeHeader(tier model.Tier, wasHit bool) string {
	switch {
	case wasHit && tier == model.Curated:
		return "hit-curated"
	case wasHit && tier == model.Hot:
		return "hit-hot"
	default:
		return "miss"
	}
}

// writeCachedHeaders copies the stored response's headers onto w, then
// overlays the proxy's own identifying headers. Hop-by-hop headers were
// already stripped by the Wayback client before storage.
//
// Content-Length is deliberately dropped here: the stored value reflects
// the archived body's original size, but the transform stage (run before
// storage, after the archive's headers were captured) and the header-bar
// stage (run after storage) both change the body length. bodyLen must be
// set by the caller once the final, possibly-injected body is known.
func writeCachedHeaders(w http.ResponseWriter, resp *model.CachedResponse, cacheOutcome string, bodyLen int) {
	h := w.Header()
	for k, vs := range resp.Header {
		if http.CanonicalHeaderKey(k) == "Content-Length" {
			continue
		}
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	if resp.ContentType != "" {
		h.Set("Content-Type", resp.ContentType)
	}
	h.Set("Server", serverHeaderValue)
	h.Set("X-Archive-Date", resp.ArchiveDate)
	h.Set("X-Cache", cacheOutcome)
	h.Set("Content-Length", strconv.Itoa(bodyLen))
}
