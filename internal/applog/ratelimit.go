package applog

import (
	"sync"
	"time"
)

// onceAMinute de-duplicates repeated warnings so a prolonged Redis
// outage produces one log line per key per minute instead of one per
// request.
var (
	onceAMinuteMu   sync.Mutex
	onceAMinuteSeen = map[string]time.Time{}
)

// WarnOncePerMinute emits an error-level line for key at most once every
// 60 seconds, regardless of how often it is called.
func WarnOncePerMinute(key, line string) {
	onceAMinuteMu.Lock()
	last, ok := onceAMinuteSeen[key]
	now := time.Now()
	if ok && now.Sub(last) < time.Minute {
		onceAMinuteMu.Unlock()
		return
	}
	onceAMinuteSeen[key] = now
	onceAMinuteMu.Unlock()

	Emit("error", "store", map[string]string{"host": MustHostname()}, line)
}
