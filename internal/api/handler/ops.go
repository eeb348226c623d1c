// Package handler provides HTTP handlers for the console API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/byze/byze-console/internal/api/models"
	"github.com/byze/byze-console/internal/api/response"
	"github.com/byze/byze-console/internal/health"
	"github.com/byze/byze-console/internal/resilience"
)

// EngineHealth is the engine health store as seen by the ops endpoints.
type EngineHealth interface {
	Check(ctx context.Context) bool
	Snapshot() health.Snapshot
}

// ActiveCounter reports the number of running downloads.
type ActiveCounter interface {
	Active() int
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	health    EngineHealth
	registry  *resilience.Registry
	downloads ActiveCounter
	now       func() time.Time
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(h EngineHealth, registry *resilience.Registry, downloads ActiveCounter) *OpsHandler {
	return &OpsHandler{
		health:    h,
		registry:  registry,
		downloads: downloads,
		now:       time.Now,
	}
}

// Liveness handles GET /health. It reports the console itself, never the
// engine.
func (h *OpsHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{Status: health.StatusUp})
}

// SystemStatus handles GET /v1/ops/status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	snap := h.health.Snapshot()
	status := models.SystemStatus{
		Status:   models.HealthStatusOK,
		Time:     models.Timestamp(h.now()),
		Engine:   engineHealth(snap),
		Services: []models.ServiceStatus{},
	}
	if !snap.IsUp {
		status.Status = models.HealthStatusFail
	}

	if h.registry != nil {
		for _, svc := range h.registry.GetAllHealth() {
			s := serviceStatus(svc)
			if s.Status != models.HealthStatusOK && status.Status == models.HealthStatusOK {
				status.Status = models.HealthStatusDegraded
			}
			status.Services = append(status.Services, s)
		}
	}
	if h.downloads != nil {
		status.ActiveDownloads = h.downloads.Active()
	}

	response.JSON(w, r, http.StatusOK, status)
}

// CheckEngine handles POST /v1/engine/health:check. It probes the engine now
// and returns the resulting snapshot.
func (h *OpsHandler) CheckEngine(w http.ResponseWriter, r *http.Request) {
	h.health.Check(r.Context())
	response.JSON(w, r, http.StatusOK, engineHealth(h.health.Snapshot()))
}

func engineHealth(snap health.Snapshot) models.EngineHealth {
	return models.EngineHealth{
		IsUp:          snap.IsUp,
		Loading:       snap.Loading,
		LastCheckedAt: models.TimestampPtr(snap.LastCheckedAt),
	}
}

func serviceStatus(svc *resilience.ServiceHealth) models.ServiceStatus {
	s := models.ServiceStatus{
		Name:          svc.Name,
		Status:        models.HealthStatusOK,
		CircuitState:  svc.CircuitState,
		LastSuccessAt: models.TimestampPtr(svc.LastSuccessAt),
		LastFailureAt: models.TimestampPtr(svc.LastFailureAt),
	}
	switch {
	case svc.IsDegraded():
		s.Status = models.HealthStatusDegraded
	case !svc.IsHealthy():
		s.Status = models.HealthStatusFail
	}
	if svc.LastError != "" {
		msg := svc.LastError
		s.Message = &msg
	}
	return s
}
