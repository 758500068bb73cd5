package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"postservice/pkg/common"
	"postservice/pkg/utils"
)

// Check reports whether one dependency is usable
type Check func(ctx context.Context) error

// HealthHandler serves liveness and readiness checks
type HealthHandler struct {
	checks map[string]Check
	logger *zap.Logger
}

// NewHealthHandler creates a health handler over the named readiness checks
func NewHealthHandler(checks map[string]Check, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, logger: logger}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	common.RespondJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": utils.NowRFC3339(),
	})
}

// Ready handles GET /ready. Any failing check makes the service not ready.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("check", name), zap.Error(err))
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}
	common.RespondJSON(w, status, map[string]interface{}{
		"status":    state,
		"checks":    results,
		"timestamp": utils.NowRFC3339(),
	})
}
