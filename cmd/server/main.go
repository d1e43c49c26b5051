package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/admin"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/coldstore"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/config"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/crawler"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/proxy"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/store"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/transform"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/wayback"
)

const shutdownGrace = 5 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, sub, unsub := newStore(cfg)

	live := config.NewLive(cfg)
	reloader := config.NewReloader(live, sub, unsub)
	go reloader.Run(ctx)

	wb := wayback.New(30*time.Second, "WaybackCacheProxy/1.0", cfg.Proxy.DateToleranceDays)
	rules := transform.Rules{
		RemoveWaybackToolbar: cfg.Transform.RemoveWaybackToolbar,
		RemoveWaybackScripts: cfg.Transform.RemoveWaybackScripts,
		FixBaseTags:          cfg.Transform.FixBaseTags,
		FixAssetURLs:         cfg.Transform.FixAssetURLs,
		NormalizeLinks:       cfg.Transform.NormalizeLinks,
	}
	cr := crawler.New(st, wb, 0, 2, cfg.Proxy.TargetDate, rules)

	var cold admin.ColdStore
	if cfg.ColdStore.Enabled {
		exporter, err := coldstore.New(ctx, st, cfg.ColdStore.Bucket, cfg.ColdStore.Prefix, cfg.ColdStore.Region)
		if err != nil {
			log.Fatalf("coldstore: %v", err)
		}
		cold = exporter
	}

	var adminHandler http.Handler
	if cfg.Admin.Enabled {
		if cfg.Admin.Password == "" {
			log.Print("admin: no admin password configured; every /_admin/ request will be refused with 401")
		}
		adminHandler = admin.NewHandler(st, cr, cold, cfg.Admin.Password).Routes()
	}

	srv := proxy.NewServer(live, st, wb, adminHandler)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", srv)

	httpServer := &http.Server{
		Addr:    formatAddr(cfg),
		Handler: mux,
	}

	go func() {
		log.Printf("listening on %s (target date %s, admin=%v, access=%s)",
			httpServer.Addr, cfg.Proxy.TargetDate, cfg.Admin.Enabled, cfg.Access.Mode)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Print("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func formatAddr(cfg *config.Config) string {
	host := cfg.Proxy.Host
	if host == "0.0.0.0" {
		host = ""
	}
	return host + ":" + strconv.Itoa(cfg.Proxy.Port)
}

// newStore builds either a Redis-backed or in-memory Store depending on
// whether cfg.Cache.RedisURL parses, and returns the reload pub/sub
// subscription the config.Reloader listens on alongside it.
func newStore(cfg *config.Config) (store.Store, <-chan struct{}, func()) {
	opts, err := redis.ParseURL(cfg.Cache.RedisURL)
	if err != nil {
		log.Printf("cache.redis_url %q invalid (%v), falling back to in-memory store", cfg.Cache.RedisURL, err)
		mem := store.NewMemStore()
		sub, unsub := mem.SubscribeReload(context.Background())
		return mem, sub, unsub
	}
	rdb := redis.NewClient(opts)
	rs := store.NewRedisStore(rdb)
	sub, unsub := rs.SubscribeReload(context.Background())
	return rs, sub, unsub
}
