package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/wazgo/internal/models"
	"github.com/BradenHooton/wazgo/internal/session"
	pkghttp "github.com/BradenHooton/wazgo/pkg/http"
)

// AccountReader fetches the account behind a session.
type AccountReader interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
}

// RequireAuthenticated rejects requests whose session has no identity. A
// session still waiting for its second factor is not authenticated.
func RequireAuthenticated() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := session.FromContext(r.Context())
			if sess == nil || !sess.State.Authenticated() {
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole re-reads the session's account and enforces role against the
// stored value, so a deleted or changed account loses access immediately.
// Must be used after RequireAuthenticated.
func RequireRole(accounts AccountReader, role string, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := session.FromContext(r.Context())
			if sess == nil || !sess.State.Authenticated() {
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}

			account, err := accounts.GetByID(r.Context(), sess.State.Identity.AccountID)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					pkghttp.WriteUnauthorized(w, "Authentication required")
					return
				}
				logger.Error("failed to load account for role check", slog.Any("error", err))
				pkghttp.WriteInternalError(w, "Internal server error")
				return
			}

			if account.Role != role {
				pkghttp.WriteForbidden(w, "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
