package handler

import (
	"net/http"
	"sort"
	"time"

	"github.com/safeout/safeout/internal/api/models"
	"github.com/safeout/safeout/internal/api/response"
	"github.com/safeout/safeout/internal/provider/resilience"
)

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	registry  *resilience.Registry
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(version, buildTime string, registry *resilience.Registry) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		registry:  registry,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check.
// Ready means every upstream circuit is closed; a single open circuit
// degrades readiness but the service keeps answering (partial results
// are a feature, not an outage).
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	status := models.HealthStatusOK
	for _, src := range h.registry.AllHealth() {
		if src.IsUnhealthy() {
			status = models.HealthStatusDegraded
			break
		}
	}

	health := models.Health{
		Status: status,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"sources": h.registry.SourceCount(),
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - per-provider circuit health.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	all := h.registry.AllHealth()
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })

	overall := models.HealthStatusOK
	providers := make([]models.ProviderStatus, 0, len(all))
	for _, src := range all {
		providers = append(providers, providerStatus(src))
		if src.IsUnhealthy() {
			overall = models.HealthStatusDegraded
		}
	}

	status := models.SystemStatus{
		Status:    overall,
		Time:      models.Timestamp(time.Now()),
		Providers: providers,
	}
	response.JSON(w, r, http.StatusOK, status)
}

func providerStatus(src *resilience.SourceHealth) models.ProviderStatus {
	status := models.HealthStatusOK
	switch {
	case src.IsUnhealthy():
		status = models.HealthStatusFail
	case src.IsDegraded():
		status = models.HealthStatusDegraded
	}

	ps := models.ProviderStatus{
		Provider:     src.Name,
		Status:       status,
		CircuitState: src.CircuitState.String(),
	}
	if src.LastSuccessAt != nil {
		t := models.Timestamp(*src.LastSuccessAt)
		ps.LastSuccessAt = &t
	}
	if src.LastFailureAt != nil {
		t := models.Timestamp(*src.LastFailureAt)
		ps.LastFailureAt = &t
	}
	if src.LastError != "" {
		msg := src.LastError
		ps.Message = &msg
	}
	return ps
}
