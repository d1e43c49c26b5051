package proxy

import (
	"fmt"
	"html/template"
	"net/http"
)

// ErrorPages renders the themed error page for a failed request. The
// real HTML presentation is an external collaborator (§1's "out of
// scope" boundary); this default implementation is the fallback used
// when no external template directory is configured.
type ErrorPages interface {
	Render(w http.ResponseWriter, status int, title, message string)
}

// DefaultErrorPages is a minimal period-styled error page good enough
// to exercise the pipeline without an external template set.
type DefaultErrorPages struct{}

var errorPageTemplate = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html><head><title>{{.Status}} {{.Title}}</title></head>
<body style="font-family:Georgia,serif;background:#f4f1ea;color:#222;text-align:center;padding-top:10%;">
<h1>{{.Status}} — {{.Title}}</h1>
<p>{{.Message}}</p>
</body></html>
`))

// Render writes status with a themed HTML body.
func (DefaultErrorPages) Render(w http.ResponseWriter, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	errorPageTemplate.Execute(w, struct {
		Status  int
		Title   string
		Message string
	}{status, title, message})
}

func (s *Server) renderError(w http.ResponseWriter, status int, title, message string) {
	pages := s.ErrorPages
	if pages == nil {
		pages = DefaultErrorPages{}
	}
	pages.Render(w, status, title, message)
}

func (s *Server) badRequest(w http.ResponseWriter, why string) {
	s.renderError(w, http.StatusBadRequest, "Bad Request", fmt.Sprintf("The request could not be understood: %s.", why))
}
