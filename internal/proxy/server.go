// Package proxy is the request pipeline: the TCP-accepting HTTP
// server that dispatches between the admin surface, the forward-proxy
// path, and the landing page, per spec.md §4.7.
package proxy

import (
	"html/template"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/config"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/store"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/wayback"
)

const adminPrefix = "/_admin/"

// Server is the single http.Handler mounted on the listener.
type Server struct {
	Live       *config.Live
	Store      store.Store
	Wayback    *wayback.Client
	Admin      http.Handler // nil disables the admin surface entirely
	ErrorPages ErrorPages
}

// NewServer builds a Server ready to be passed to http.Serve.
func NewServer(live *config.Live, st store.Store, wb *wayback.Client, admin http.Handler) *Server {
	return &Server{Live: live, Store: st, Wayback: wb, Admin: admin}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	cfg := s.Live.Get()

	switch {
	case strings.HasPrefix(r.URL.Path, adminPrefix) && isOwnHost(r.Host, cfg):
		if s.Admin == nil {
			s.renderError(w, http.StatusNotFound, "Not Found", "The admin surface is not enabled.")
			return
		}
		s.Admin.ServeHTTP(w, r)
	case r.URL.IsAbs():
		s.handleForward(w, r, requestID)
	case r.URL.Path == "/" && cfg.LandingPage:
		s.handleLanding(w, r, cfg)
	default:
		s.badRequest(w, "request-URI is neither an admin path, an absolute-form proxy URL, nor the landing page root")
	}
}

// isOwnHost decides whether host (the request's Host header) names
// this proxy process itself rather than a forward-proxy target. The
// source's exact disambiguation rule is an open question (spec.md §9);
// this implementation accepts the configured proxy.host, plus the
// common loopback aliases, each paired with the configured port.
func isOwnHost(host string, cfg *config.Config) bool {
	hostOnly, port, err := net.SplitHostPort(host)
	if err != nil {
		hostOnly, port = host, ""
	}
	if port != "" && port != strconv.Itoa(cfg.Proxy.Port) {
		return false
	}
	switch hostOnly {
	case cfg.Proxy.Host, "localhost", "127.0.0.1", "0.0.0.0", "":
		return true
	default:
		return false
	}
}

var landingTemplate = template.Must(template.New("landing").Parse(`<!DOCTYPE html>
<html><head><title>Wayback Cache Proxy</title></head>
<body style="font-family:Georgia,serif;background:#f4f1ea;color:#222;text-align:center;padding-top:10%;">
<h1>Wayback Cache Proxy</h1>
<p>Configure this host as your HTTP proxy to browse the web as it looked on {{.TargetDate}}.</p>
</body></html>
`))

func (s *Server) handleLanding(w http.ResponseWriter, r *http.Request, cfg *config.Config) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	landingTemplate.Execute(w, struct{ TargetDate string }{cfg.Proxy.TargetDate})
}
