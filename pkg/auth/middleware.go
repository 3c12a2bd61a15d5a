package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rhuss/podexec/pkg/api"
	"github.com/rhuss/podexec/pkg/debug"
	"github.com/rhuss/podexec/pkg/observability"
	"github.com/rhuss/podexec/pkg/storage"
)

// DefaultBypassPaths skip authentication.
var DefaultBypassPaths = []string{"/healthz", "/metrics"}

// Middleware authenticates every request not in bypass, rate-limits it
// when limiter is non-nil, and stores the identity and tenant in the
// request context.
func Middleware(chain *Chain, limiter Limiter, bypass []string) func(http.Handler) http.Handler {
	skip := make(map[string]struct{}, len(bypass))
	for _, p := range bypass {
		skip[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			res := chain.Authenticate(r.Context(), r)
			if res.Decision != Yes || res.Identity == nil {
				slog.Warn("authentication failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"error", res.Err,
				)
				writeError(w, api.NewAuthenticationError(ErrUnauthenticated.Error()))
				return
			}

			id := res.Identity
			if id.Subject == "" {
				slog.Error("authenticator returned identity without subject")
				writeError(w, api.NewServerError("internal authentication error"))
				return
			}
			debug.Log("auth", "authenticated", "subject", id.Subject, "tenant", id.Tenant, "path", r.URL.Path)

			if limiter != nil {
				if err := limiter.Allow(r.Context(), id); err != nil {
					slog.Warn("rate limit exceeded", "subject", id.Subject, "tier", tierOf(id))
					observability.RateLimitRejectedTotal.WithLabelValues(tierOf(id)).Inc()
					writeError(w, api.NewTooManyRequestsError(err.Error()))
					return
				}
			}

			ctx := WithIdentity(r.Context(), id)
			if id.Tenant != "" {
				ctx = storage.SetTenant(ctx, id.Tenant)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeError(w http.ResponseWriter, apiErr *api.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.StatusCode())
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: apiErr})
}
