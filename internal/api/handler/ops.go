// Package handler provides the HTTP handlers of the console API.
package handler

import (
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/openrag/opsconsole/internal/api/models"
	"github.com/openrag/opsconsole/internal/api/response"
	"github.com/openrag/opsconsole/internal/health"
	"github.com/openrag/opsconsole/internal/probe"
	"github.com/openrag/opsconsole/internal/resilience"
)

// CycleSource exposes the published health cycle.
type CycleSource interface {
	Latest() health.Cycle
	Ready() bool
}

// OpsHandler handles the console's own operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	cycles    CycleSource
	registry  *resilience.Registry
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(version, buildTime string, cycles CycleSource, registry *resilience.Registry) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		cycles:    cycles,
		registry:  registry,
	}
}

// HealthCheck handles GET /v1/ops/health.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   time.Now().UTC(),
		Details: map[string]any{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready. The console is ready once the
// first health cycle has completed.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if !h.cycles.Ready() {
		response.ServiceUnavailable(w, r, "no health cycle has completed yet")
		return
	}
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   time.Now().UTC(),
	})
}

// SystemStatus handles GET /v1/ops/status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	cycle := h.cycles.Latest()

	status := models.SystemStatus{
		Status:    cycleStatus(cycle),
		Time:      time.Now().UTC(),
		Cycle:     cycle,
		Upstreams: []models.UpstreamStatus{},
	}
	if h.registry != nil {
		for _, u := range h.registry.AllHealth() {
			us := models.UpstreamStatus{
				Name:                u.Name,
				Status:              circuitStatus(u.CircuitState),
				CircuitState:        u.CircuitState.String(),
				ConsecutiveFailures: u.Counts.ConsecutiveFailures,
				LastSuccessAt:       u.LastSuccessAt,
				LastFailureAt:       u.LastFailureAt,
				LastError:           u.LastError,
			}
			if us.Status != models.HealthStatusOK && status.Status == models.HealthStatusOK {
				status.Status = models.HealthStatusDegraded
			}
			status.Upstreams = append(status.Upstreams, us)
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func cycleStatus(c health.Cycle) models.HealthStatus {
	switch c.Overall() {
	case probe.StateUnreachable:
		return models.HealthStatusFail
	case probe.StateDegraded, probe.StatePending:
		return models.HealthStatusDegraded
	}
	return models.HealthStatusOK
}

func circuitStatus(s gobreaker.State) models.HealthStatus {
	switch s {
	case gobreaker.StateOpen:
		return models.HealthStatusFail
	case gobreaker.StateHalfOpen:
		return models.HealthStatusDegraded
	}
	return models.HealthStatusOK
}
