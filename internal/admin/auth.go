package admin

import (
	"crypto/subtle"
	"net/http"
)

// requireBasicAuth wraps next with HTTP Basic Auth against a fixed
// password (the admin surface has no username concept, only a shared
// password). Grounded on the pack's gh-proxy admin auth pattern
// (net/http.Request.BasicAuth + crypto/subtle constant-time compare);
// the username is ignored, so operators can use curl -u admin:<password>
// or any other username.
func requireBasicAuth(password string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if password == "" {
			w.Header().Set("WWW-Authenticate", `Basic realm="wayback-admin"`)
			http.Error(w, "admin surface disabled: no password configured", http.StatusUnauthorized)
			return
		}
		_, pass, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(pass), []byte(password)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="wayback-admin"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
