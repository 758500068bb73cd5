package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"postservice/pkg/auth"
	"postservice/pkg/common"
	apperrors "postservice/pkg/errors"
)

var rateLimitExempt = []string{"/health", "/ready", "/metrics"}

var rateLimitExemptPrefixes = []string{"/internal/", "/api/internal/"}

// RateLimit admits requests through the sliding window limiter. Authenticated
// callers are limited per user and anonymous ones per client address.
func RateLimit(limiter auth.RateLimiter, logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Enabled() || exempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			identity := auth.IPIdentity(ClientIP(r))
			if userID := auth.UserIDFromContext(r.Context()); userID != "" {
				identity = auth.UserIdentity(userID)
			}
			class := auth.ClassForMethod(r.Method)

			decision := limiter.Check(r.Context(), identity, class)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Unix()+decision.ResetSeconds, 10))

			if !decision.Allowed {
				logger.Debug("Rate limit exceeded",
					zap.String("identity", identity.String()),
					zap.String("class", string(class)),
					zap.String("path", r.URL.Path),
				)
				h.Set("X-RateLimit-Remaining", "0")
				h.Set("Retry-After", strconv.FormatInt(decision.ResetSeconds, 10))

				// the error body keeps its established {error, message} shape rather than the AppError envelope
				appErr := apperrors.NewRateLimitError(decision.Limit, decision.ResetSeconds).
					WithCode(apperrors.CodeRateLimitExceeded)
				common.RespondJSON(w, appErr.HTTPStatus, map[string]string{
					"error":   "Rate limit exceeded",
					"message": appErr.Message,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func exempt(path string) bool {
	for _, p := range rateLimitExempt {
		if path == p {
			return true
		}
	}
	for _, p := range rateLimitExemptPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
