package gateway

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// authMiddleware guards the API routes. A request passes with a matching
// bearer token or, when both basic credentials are set, matching basic
// auth. Rejections carry a JSON error body and a WWW-Authenticate
// challenge for the preferred scheme.
func authMiddleware(cfg AuthConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	challenge := "Bearer"
	if cfg.BearerToken == "" {
		challenge = `Basic realm="llmrelay"`
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.allows(r) {
				next.ServeHTTP(w, r)
				return
			}
			logger.Warn("gateway: unauthorized request",
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
				"request_id", middleware.GetReqID(r.Context()),
				"missing_header", r.Header.Get("Authorization") == "",
			)
			w.Header().Set("WWW-Authenticate", challenge)
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid credentials")
		})
	}
}

// allows reports whether r presents credentials matching c.
func (c AuthConfig) allows(r *http.Request) bool {
	if c.BearerToken != "" {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if ok && secureEqual(token, c.BearerToken) {
			return true
		}
	}
	if c.BasicUser != "" && c.BasicPass != "" {
		user, pass, ok := r.BasicAuth()
		// Evaluate both comparisons so timing does not reveal which one failed.
		userOK := secureEqual(user, c.BasicUser)
		passOK := secureEqual(pass, c.BasicPass)
		return ok && userOK && passOK
	}
	return false
}

func secureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
