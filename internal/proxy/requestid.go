package proxy

import (
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/applog"
)

var requestCounter int64

// requestIDPrefix marks IDs this server minted, so a log line's request
// ID alone shows whether it came in from a client or was generated here.
const requestIDPrefix = "wb"

// ensureRequestID sets X-Request-ID on req if missing and returns it.
// A freshly minted ID is logged at debug level tagged with the request's
// method and path, which a client-supplied ID skips since whatever
// issued it already had the chance to log the same correlation.
func ensureRequestID(req *http.Request) string {
	requestID := strings.TrimSpace(req.Header.Get("X-Request-ID"))
	if requestID == "" {
		requestID = fmt.Sprintf("%s-%d-%d", requestIDPrefix, time.Now().UnixNano(), atomic.AddInt64(&requestCounter, 1))
		req.Header.Set("X-Request-ID", requestID)
		applog.Emit("debug", "proxy", map[string]string{"request_id": requestID}, "REQUEST-ID minted method="+req.Method+" path="+req.URL.Path)
	}
	return requestID
}
