package session

import (
	"log/slog"
	"net/http"

	pkghttp "github.com/BradenHooton/wazgo/pkg/http"
)

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Name     string
	Domain   string // empty means current host only
	Secure   bool
	SameSite http.SameSite
}

func (m *Manager) setCookie(w http.ResponseWriter, s *Session, cfg CookieConfig) {
	cookie := &http.Cookie{
		Name:     cfg.Name,
		Value:    s.Token,
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: cfg.SameSite,
	}
	if s.destroyed {
		cookie.Value = ""
		cookie.MaxAge = -1
	}
	http.SetCookie(w, cookie)
}

// cookieWriter writes the session cookie just before the response header.
type cookieWriter struct {
	http.ResponseWriter
	write       func()
	wroteHeader bool
}

func (cw *cookieWriter) WriteHeader(code int) {
	if !cw.wroteHeader {
		cw.wroteHeader = true
		cw.write()
	}
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *cookieWriter) Write(b []byte) (int, error) {
	if !cw.wroteHeader {
		cw.WriteHeader(http.StatusOK)
	}
	return cw.ResponseWriter.Write(b)
}

func (cw *cookieWriter) Unwrap() http.ResponseWriter {
	return cw.ResponseWriter
}

// Middleware loads the session named by the request cookie into the request
// context and emits the cookie when the session was saved, rotated or
// destroyed by the handler.
func (m *Manager) Middleware(cfg CookieConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var token string
			if c, err := r.Cookie(cfg.Name); err == nil {
				token = c.Value
			}

			s, err := m.Load(r.Context(), token)
			if err != nil {
				logger.Error("failed to load session", slog.String("error", err.Error()))
				pkghttp.WriteInternalError(w, "Internal server error")
				return
			}

			cw := &cookieWriter{ResponseWriter: w}
			cw.write = func() {
				if s.changed && (!s.destroyed || token != "") {
					m.setCookie(w, s, cfg)
				}
			}

			next.ServeHTTP(cw, r.WithContext(WithSession(r.Context(), s)))
		})
	}
}
