package config

import (
	"context"
	"sync/atomic"

	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/applog"
)

// Live holds the current Config behind an atomic pointer so readers
// (server, crawler, throttle) never see a partially-mutated record;
// the reload listener installs a wholly new *Config on every swap.
type Live struct {
	ptr atomic.Pointer[Config]
}

// NewLive wraps an initial Config.
func NewLive(initial *Config) *Live {
	l := &Live{}
	l.ptr.Store(initial)
	return l
}

// Get returns the current Config. Callers must not mutate the result.
func (l *Live) Get() *Config {
	return l.ptr.Load()
}

// Reloader subscribes to the reload channel and swaps in a freshly
// parsed Config whenever a notification arrives. If the file fails to
// parse, the previous Config is kept and a warning logged, per
// spec.md §7's reload failure semantics.
type Reloader struct {
	live *Live
	sub  <-chan struct{}
	stop func()
}

// NewReloader starts listening on sub for change notifications. Call
// Run in its own goroutine.
func NewReloader(live *Live, sub <-chan struct{}, stop func()) *Reloader {
	return &Reloader{live: live, sub: sub, stop: stop}
}

// Run blocks until ctx is canceled, reloading on every notification.
func (r *Reloader) Run(ctx context.Context) {
	defer r.stop()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-r.sub:
			if !ok {
				return
			}
			r.reloadOnce()
		}
	}
}

func (r *Reloader) reloadOnce() {
	cur := r.live.Get()
	if cur.ConfigPath == "" {
		applog.Emit("error", "config", nil, "reload notification received but no --config file was loaded, ignoring")
		return
	}
	next := defaults()
	if err := loadYAMLInto(next, cur.ConfigPath); err != nil {
		applog.Emit("error", "config", nil, "reload failed, keeping previous config: "+err.Error())
		return
	}
	applyEnv(next)
	next.ConfigPath = cur.ConfigPath
	if err := Validate(next); err != nil {
		applog.Emit("error", "config", nil, "reloaded config failed validation, keeping previous config: "+err.Error())
		return
	}
	r.live.ptr.Store(next)
	applog.Emit("info", "config", nil, "config reloaded from "+cur.ConfigPath)
}
