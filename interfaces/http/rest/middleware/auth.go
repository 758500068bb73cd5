package middleware

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"postservice/pkg/auth"
	apperrors "postservice/pkg/errors"
)

// Authenticator resolves the caller from a bearer token. Behind API Gateway
// the token is already validated and the caller arrives in headers.
type Authenticator struct {
	validator    *auth.JWTValidator
	trustGateway bool
	errors       *apperrors.ErrorHandler
	logger       *zap.Logger
}

// NewAuthenticator creates the authentication middleware factory
func NewAuthenticator(validator *auth.JWTValidator, trustGateway bool, errorHandler *apperrors.ErrorHandler, logger *zap.Logger) *Authenticator {
	return &Authenticator{
		validator:    validator,
		trustGateway: trustGateway,
		errors:       errorHandler,
		logger:       logger,
	}
}

// Optional attaches the caller when a valid token is present and lets
// anonymous requests through. An invalid token is still rejected.
func (a *Authenticator) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := a.resolve(r)
		if errors.Is(err, auth.ErrMissingToken) {
			next.ServeHTTP(w, r)
			return
		}
		if err != nil {
			a.reject(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.SetUserInContext(r.Context(), user)))
	})
}

// Required rejects requests without a valid caller
func (a *Authenticator) Required(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Optional may already have resolved the caller
		if _, err := auth.GetUserFromContext(r.Context()); err == nil {
			next.ServeHTTP(w, r)
			return
		}

		user, err := a.resolve(r)
		if err != nil {
			a.reject(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.SetUserInContext(r.Context(), user)))
	})
}

func (a *Authenticator) resolve(r *http.Request) (*auth.UserContext, error) {
	if a.trustGateway && r.Header.Get("X-API-Gateway-Authorized") == "true" {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			return nil, auth.ErrInvalidClaims
		}
		return &auth.UserContext{
			UserID:   userID,
			Username: r.Header.Get("X-User-Name"),
			Email:    r.Header.Get("X-User-Email"),
		}, nil
	}

	token := extractToken(r)
	if token == "" {
		return nil, auth.ErrMissingToken
	}

	claims, err := a.validator.ValidateToken(token)
	if err != nil {
		a.logger.Debug("Invalid token",
			zap.Error(err),
			zap.String("ip", ClientIP(r)),
			zap.String("path", r.URL.Path),
		)
		return nil, err
	}

	return &auth.UserContext{
		UserID:   claims.UserID,
		Username: claims.Username,
		Email:    claims.Email,
	}, nil
}

func (a *Authenticator) reject(w http.ResponseWriter, r *http.Request, err error) {
	var message string
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		message = "Missing authentication token"
	case errors.Is(err, auth.ErrExpiredToken):
		message = "Token has expired"
	case errors.Is(err, auth.ErrInvalidSignature):
		message = "Invalid token signature"
	default:
		message = "Invalid token"
	}
	a.errors.Handle(w, r, apperrors.NewUnauthorizedError(message))
}

// extractToken reads a bearer token from the Authorization header
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// ClientIP returns the first X-Forwarded-For entry, then X-Real-IP, then the
// host part of RemoteAddr
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}
