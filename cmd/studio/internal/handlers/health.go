package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/circuitbreaker"
)

const serviceName = "aim-studio"

// Check is a named readiness probe
type Check struct {
	Name     string
	Optional bool
	Probe    func(ctx context.Context) error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	checks   []Check
	breakers func() map[string]circuitbreaker.State
	version  string
	logger   *zap.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, logger *zap.Logger, checks ...Check) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		version: version,
		logger:  logger,
	}
}

// WithBreakers adds circuit breaker states to readiness responses.
func (h *HealthHandler) WithBreakers(states func() map[string]circuitbreaker.State) *HealthHandler {
	h.breakers = states
	return h
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Version string            `json:"version,omitempty"`
	Time    time.Time         `json:"time"`
	Checks  map[string]string `json:"checks,omitempty"`

	Breakers map[string]string `json:"breakers,omitempty"`
}

// APIHealth handles GET /api/health
func (h *HealthHandler) APIHealth(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, map[string]string{"status": "healthy", "service": serviceName}, http.StatusOK)
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, HealthResponse{
		Status:  "healthy",
		Service: serviceName,
		Version: h.version,
		Time:    time.Now().UTC(),
		Checks:  map[string]string{"server": "ok"},
	}, http.StatusOK)
}

// Readiness handles GET /readiness. A failing optional check degrades the
// report without failing it.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:  "ready",
		Service: serviceName,
		Version: h.version,
		Time:    time.Now().UTC(),
		Checks:  make(map[string]string, len(h.checks)),
	}
	code := http.StatusOK

	for _, c := range h.checks {
		if err := c.Probe(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("check", c.Name), zap.Error(err))
			if c.Optional {
				response.Checks[c.Name] = "degraded"
				continue
			}
			response.Checks[c.Name] = "failed"
			response.Status = "not ready"
			code = http.StatusServiceUnavailable
			continue
		}
		response.Checks[c.Name] = "ok"
	}

	if h.breakers != nil {
		states := h.breakers()
		response.Breakers = make(map[string]string, len(states))
		for name, state := range states {
			response.Breakers[name] = state.String()
		}
	}

	sendJSON(w, response, code)
}
