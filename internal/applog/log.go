// Package applog is the proxy's structured logging layer: concise
// stdlib-logger lines for the terminal, plus an optional fire-and-forget
// push of the same lines to a Loki-compatible endpoint so an exhibition
// install can ship logs off-box. Level toggles and the Loki URL change
// only through SetLevels; nothing in this module calls it, so the
// defaults apply: info and error on, debug off, no Loki push.
package applog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Level toggles, swapped under levelMu by SetLevels.
var (
	levelMu      sync.RWMutex
	infoEnabled  = true
	debugEnabled = false
	errorEnabled = true
	lokiURL      string
)

// SetLevels updates which log levels are emitted and where Loki pushes go.
// Safe to call from the reload listener at any time.
func SetLevels(info, debug, errorLvl bool, loki string) {
	levelMu.Lock()
	defer levelMu.Unlock()
	infoEnabled, debugEnabled, errorEnabled = info, debug, errorLvl
	lokiURL = normalizeLokiURL(loki)
}

func normalizeLokiURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "/loki/api/v1/push") {
		raw = strings.TrimRight(raw, "/") + "/loki/api/v1/push"
	}
	return raw
}

func levelEnabled(level string) bool {
	levelMu.RLock()
	defer levelMu.RUnlock()
	switch level {
	case "debug":
		return debugEnabled
	case "error":
		return errorEnabled
	default:
		return infoEnabled
	}
}

func currentLokiURL() string {
	levelMu.RLock()
	defer levelMu.RUnlock()
	return lokiURL
}

var lokiClient = &http.Client{Timeout: 200 * time.Millisecond}

// Emit prints line locally (if the level is enabled) and fire-and-forgets
// it to Loki with the given labels plus "level" and "app".
func Emit(level, app string, labels map[string]string, line string) {
	level = strings.ToLower(level)
	if levelEnabled(level) {
		log.Print(line)
	}
	pushLoki(level, app, labels, line)
}

func pushLoki(level, app string, labels map[string]string, line string) {
	url := currentLokiURL()
	if url == "" || !levelEnabled(level) {
		return
	}
	lbls := map[string]string{"app": app, "level": level}
	for k, v := range labels {
		if strings.TrimSpace(k) != "" {
			lbls[k] = v
		}
	}
	ts := strconv.FormatInt(time.Now().UnixNano(), 10)
	payload := struct {
		Streams []struct {
			Stream map[string]string `json:"stream"`
			Values [][2]string        `json:"values"`
		} `json:"streams"`
	}{
		Streams: []struct {
			Stream map[string]string `json:"stream"`
			Values [][2]string        `json:"values"`
		}{{Stream: lbls, Values: [][2]string{{ts, line}}}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := lokiClient.Do(req)
	if err == nil {
		resp.Body.Close()
	}
}

// MustHostname returns the host's name, or "unknown" if unavailable.
func MustHostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown"
	}
	return h
}

// RequestLine logs a forward-proxy request about to be dispatched. The
// forward path calls it before the cache lookup and passes "pending";
// the final outcome appears on the matching ResponseLine.
func RequestLine(method, targetURL, cacheOutcome, requestID string) {
	labels := map[string]string{
		"method": method, "cache": cacheOutcome, "host": MustHostname(), "request_id": requestID, "url": targetURL,
	}
	Emit("info", "proxy", labels, fmt.Sprintf("REQ method=%s url=%s cache=%s req_id=%s", method, targetURL, cacheOutcome, requestID))
}

// ResponseLine logs the final response sent to the client.
func ResponseLine(method, targetURL, cacheOutcome string, status int, bytesWritten int, dur time.Duration, requestID string) {
	labels := map[string]string{
		"method": method, "cache": cacheOutcome, "status": strconv.Itoa(status), "host": MustHostname(), "request_id": requestID, "url": targetURL,
	}
	line := fmt.Sprintf("RESP status=%d bytes=%d dur=%s cache=%s method=%s url=%s req_id=%s",
		status, bytesWritten, dur.String(), cacheOutcome, method, targetURL, requestID)
	Emit("info", "proxy", labels, line)
	if status >= 400 {
		Emit("error", "proxy", labels, line)
	}
}

// ErrorLine logs a request that failed before a response could be built.
func ErrorLine(method, targetURL string, status int, requestID string, err error) {
	labels := map[string]string{
		"method": method, "status": strconv.Itoa(status), "host": MustHostname(), "request_id": requestID, "url": targetURL,
	}
	Emit("error", "proxy", labels, fmt.Sprintf("ERROR status=%d method=%s url=%s err=%v req_id=%s", status, method, targetURL, err, requestID))
}

// CrawlLine logs a single crawler event; it is also the line appended to
// the crawl:log ring so the admin dashboard and the terminal see the
// same text.
func CrawlLine(format string, args ...any) string {
	line := fmt.Sprintf(format, args...)
	Emit("info", "crawler", map[string]string{"host": MustHostname()}, line)
	return line
}
