// Package throttle shapes a response after it leaves the cache: a
// header bar is spliced into HTML bodies, and the body is written to
// the client at a configured bytes/second rate.
package throttle

import (
	"context"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/metrics"
)

// Speed is a named bandwidth profile.
type Speed string

const (
	Speed144k      Speed = "14.4k"
	Speed288k      Speed = "28.8k"
	Speed56k       Speed = "56k"
	SpeedISDN      Speed = "isdn"
	SpeedDSL       Speed = "dsl"
	SpeedUnlimited Speed = "unlimited"
)

// bytesPerSecond is the spec.md §4.4 speed profile table.
var bytesPerSecond = map[Speed]int{
	Speed144k: 1800,
	Speed288k: 3600,
	Speed56k:  7000,
	SpeedISDN: 16000,
	SpeedDSL:  128000,
}

const chunkSize = 4096

// BytesPerSecond returns the configured rate for speed, or 0 for
// "unlimited" and any unrecognized name (treated as unlimited).
func BytesPerSecond(speed Speed) int {
	return bytesPerSecond[speed]
}

// CookieName is the client-side cookie the header bar's speed selector
// writes, read here to override the config default per request.
const CookieName = "wayback_speed"

// EffectiveSpeed resolves the speed to throttle at for one request:
// the cookie value when selector mode is on and the cookie names a
// known profile, else the configured default.
func EffectiveSpeed(r *http.Request, selectorEnabled bool, configDefault Speed) Speed {
	if !selectorEnabled {
		return configDefault
	}
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return configDefault
	}
	speed := Speed(cookie.Value)
	if speed == SpeedUnlimited {
		return speed
	}
	if _, known := bytesPerSecond[speed]; known {
		return speed
	}
	return configDefault
}

// WriteThrottled writes body to w in chunkSize pieces, rate-limited to
// the bytes/second implied by speed. Cancellation of ctx (the client
// connection closing) aborts the wait between chunks immediately.
// Returns the number of bytes written before success, error, or
// cancellation.
func WriteThrottled(ctx context.Context, w io.Writer, body []byte, speed Speed) (int, error) {
	bps := BytesPerSecond(speed)
	if bps <= 0 {
		n, err := w.Write(body)
		metrics.ThrottleBytesAdd(n)
		return n, err
	}

	limiter := rate.NewLimiter(rate.Limit(bps), chunkSize)
	// A fresh limiter starts with its burst full, which would let the
	// first chunk through for free and undershoot the target rate over
	// the whole body. Draining it up front makes WaitN pace every chunk,
	// including the first, at the configured rate.
	limiter.AllowN(time.Now(), chunkSize)
	written := 0
	for written < len(body) {
		end := written + chunkSize
		if end > len(body) {
			end = len(body)
		}
		n := end - written
		if err := limiter.WaitN(ctx, n); err != nil {
			return written, err
		}
		wn, err := w.Write(body[written:end])
		written += wn
		metrics.ThrottleBytesAdd(wn)
		if err != nil {
			return written, err
		}
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
	}
	return written, nil
}
