package middleware

import (
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/wazgo/pkg/http"
	pkglogger "github.com/BradenHooton/wazgo/pkg/logger"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// LoginRateLimit applies to password logins.
func LoginRateLimit() RateLimitConfig {
	return RateLimitConfig{Requests: 10, Window: time.Minute}
}

// CodeRateLimit applies to verification code submissions. The per-account
// code lockout still applies underneath.
func CodeRateLimit() RateLimitConfig {
	return RateLimitConfig{Requests: 10, Window: time.Minute}
}

// ManagementLoginRateLimit applies to admin management re-authentication.
func ManagementLoginRateLimit() RateLimitConfig {
	return RateLimitConfig{Requests: 5, Window: time.Minute}
}

// RateLimitByIP limits requests per client IP. The IP comes from
// ClientContext, so forwarding headers are only trusted from known proxies.
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.Requests,
		config.Window,
		httprate.WithKeyFuncs(clientIPKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "Too many requests. Please try again later.")
		}),
	)
}

func clientIPKey(r *http.Request) (string, error) {
	if ip := pkglogger.ClientFrom(r.Context()).IPAddress; ip != "" {
		return ip, nil
	}
	return httprate.KeyByIP(r)
}
