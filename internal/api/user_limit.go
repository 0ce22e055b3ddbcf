package api

import (
	"net/http"
	"strconv"
	"time"

	"shareit/internal/config"
	"shareit/internal/domain"

	"github.com/rs/zerolog"
)

// UserRateLimit bounds requests per acting user in a fixed window. It must run
// after IdentityResolver.Middleware. Limiter failures let the request through.
func UserRateLimit(limiter domain.RateLimiter, cfg config.UserRateLimit, logger *zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.Enabled || limiter == nil || cfg.Requests <= 0 {
			return next
		}
		window := time.Duration(cfg.WindowSeconds) * time.Second

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			allowed, err := limiter.CheckRateLimit(r.Context(), "user:"+strconv.FormatInt(userID, 10), cfg.Requests, window)
			if err != nil {
				if logger != nil {
					logger.Warn().Err(err).Int64("user_id", userID).Msg("Rate limiter unavailable")
				}
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				writeError(w, http.StatusTooManyRequests, errRateLimited.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
