package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/wazgo/internal/session"
	pkghttp "github.com/BradenHooton/wazgo/pkg/http"
)

// CSRFHeader carries the synchronizer token on state-changing requests.
const CSRFHeader = "X-CSRF-Token"

// CSRFProtection rejects state-changing requests whose X-CSRF-Token header
// does not match the token stored in the session. Clients obtain the token
// from GET /auth/csrf. Must run after the session middleware.
func CSRFProtection(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isStateChangingMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			provided := r.Header.Get(CSRFHeader)
			var expected string
			if sess := session.FromContext(r.Context()); sess != nil {
				expected = sess.State.CSRFToken
			}

			if provided == "" || expected == "" ||
				subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
				logger.Warn("CSRF token validation failed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Bool("token_present", provided != ""))
				pkghttp.WriteError(w, http.StatusForbidden, "csrf_invalid", "CSRF token missing or invalid")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isStateChangingMethod checks if the HTTP method modifies state
func isStateChangingMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return true
	default:
		return false
	}
}
