package wayback

import "errors"

// Sentinel error kinds, matched with errors.Is by callers.
var (
	// ErrNotArchived means the archive's terminal answer for (url, date)
	// was a 404, or a redirect pointing back out to the live web.
	ErrNotArchived = errors.New("wayback: not archived")
	// ErrUpstreamUnavailable covers network failures, timeouts, and 5xx
	// terminal responses from the archive.
	ErrUpstreamUnavailable = errors.New("wayback: upstream unavailable")
	// ErrTooManyRedirects means the archive issued more than 10 redirects.
	ErrTooManyRedirects = errors.New("wayback: too many redirects")
	// ErrLoopDetected means the same (date, url) pair was visited twice
	// while following archive-internal redirects.
	ErrLoopDetected = errors.New("wayback: redirect loop detected")
)
