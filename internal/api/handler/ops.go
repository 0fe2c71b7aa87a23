// Package handler provides HTTP handlers for the CleanRoute API.
package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/breatheroute/cleanroute/internal/airquality"
	"github.com/breatheroute/cleanroute/internal/api/models"
	"github.com/breatheroute/cleanroute/internal/api/response"
	"github.com/breatheroute/cleanroute/internal/exposure"
	"github.com/breatheroute/cleanroute/internal/provider/resilience"
)

// Degradation flags reported by SystemStatus.
const (
	FlagModelNotReady      = "MODEL_NOT_READY"
	FlagRoutingDegraded    = "ROUTING_DEGRADED"
	FlagRoutingUnavailable = "ROUTING_UNAVAILABLE"
	FlagDatabaseDown       = "DATABASE_UNAVAILABLE"
)

// ModelStatusSource reports the interpolation model build state.
type ModelStatusSource interface {
	Status() airquality.Status
}

// ProviderHealthSource reports circuit breaker state per provider.
type ProviderHealthSource interface {
	GetAllHealth() []*resilience.ProviderHealth
}

// CacheStatsSource reports exposure score cache usage.
type CacheStatsSource interface {
	CacheStats() exposure.CacheStats
}

// Pinger checks connectivity to a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OpsConfig configures an OpsHandler. Only Version and BuildTime are
// required; nil sources are left out of the status report.
type OpsConfig struct {
	Version   string
	BuildTime string
	Model     ModelStatusSource
	Providers ProviderHealthSource
	Cache     CacheStatsSource
	Database  Pinger
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
	now func() time.Time
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{
		cfg: cfg,
		now: time.Now,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
		Details: map[string]interface{}{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready. It returns 503 until the
// interpolation model has been published.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Model != nil {
		if st := h.cfg.Model.Status(); !st.Ready {
			w.Header().Set("Retry-After", fmt.Sprint(modelRetryAfter))
			response.JSON(w, r, http.StatusServiceUnavailable, models.Health{
				Status: models.HealthStatusFail,
				Time:   models.Timestamp(h.now()),
				Details: map[string]interface{}{
					"model":    "building",
					"attempts": st.Attempts,
				},
			})
			return
		}
	}

	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
	})
}

// SystemStatus handles GET /v1/ops/status - model, provider and subsystem status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(h.now()),
		Subsystems: []models.SubsystemStatus{},
		Providers:  []models.ProviderStatus{},
	}

	if h.cfg.Model != nil {
		st := h.cfg.Model.Status()
		status.Model = toModelStatus(st)

		sub := models.SubsystemStatus{Name: "air-quality-model", Status: models.HealthStatusOK}
		if !st.Ready {
			sub.Status = models.HealthStatusFail
			if st.LastError != "" {
				sub.Detail = &st.LastError
			}
			status.ActiveDegradationFlags = append(status.ActiveDegradationFlags, FlagModelNotReady)
		}
		status.Subsystems = append(status.Subsystems, sub)
	}

	if h.cfg.Cache != nil {
		stats := h.cfg.Cache.CacheStats()
		detail := fmt.Sprintf("%d entries, %d hits, %d misses", stats.Entries, stats.Hits, stats.Misses)
		status.Subsystems = append(status.Subsystems, models.SubsystemStatus{
			Name:   "exposure-cache",
			Status: models.HealthStatusOK,
			Detail: &detail,
		})
	}

	if h.cfg.Database != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := h.cfg.Database.Ping(ctx)
		cancel()

		sub := models.SubsystemStatus{Name: "postgres", Status: models.HealthStatusOK}
		if err != nil {
			msg := err.Error()
			sub.Status = models.HealthStatusFail
			sub.Detail = &msg
			status.ActiveDegradationFlags = append(status.ActiveDegradationFlags, FlagDatabaseDown)
		}
		status.Subsystems = append(status.Subsystems, sub)
	}

	if h.cfg.Providers != nil {
		var degraded, down bool
		for _, ph := range h.cfg.Providers.GetAllHealth() {
			ps := toProviderStatus(ph)
			switch ps.Status {
			case models.HealthStatusDegraded:
				degraded = true
			case models.HealthStatusFail:
				down = true
			}
			status.Providers = append(status.Providers, ps)
		}
		if down {
			status.ActiveDegradationFlags = append(status.ActiveDegradationFlags, FlagRoutingUnavailable)
		} else if degraded {
			status.ActiveDegradationFlags = append(status.ActiveDegradationFlags, FlagRoutingDegraded)
		}
	}

	status.Status = overallStatus(status)
	response.JSON(w, r, http.StatusOK, status)
}

// overallStatus is FAIL when the model or any subsystem is down, DEGRADED
// when a provider is not closed, and OK otherwise.
func overallStatus(s models.SystemStatus) models.HealthStatus {
	result := models.HealthStatusOK
	for _, sub := range s.Subsystems {
		if sub.Status == models.HealthStatusFail {
			return models.HealthStatusFail
		}
	}
	for _, p := range s.Providers {
		if p.Status != models.HealthStatusOK {
			result = models.HealthStatusDegraded
		}
	}
	return result
}

func toModelStatus(st airquality.Status) models.ModelStatus {
	out := models.ModelStatus{
		Ready:       st.Ready,
		Source:      st.Source,
		Attempts:    st.Attempts,
		SensorCount: st.SensorCount,
		Rejected:    st.Rejected,
		BuiltAt:     models.TimestampPtr(st.BuiltAt),
		LatestHour:  models.TimestampPtr(st.LatestHour),
	}
	if st.LastError != "" {
		msg := st.LastError
		out.LastError = &msg
	}
	return out
}

func toProviderStatus(ph *resilience.ProviderHealth) models.ProviderStatus {
	ps := models.ProviderStatus{
		Provider: ph.Name,
		Status:   models.HealthStatusOK,
	}
	switch {
	case ph.IsUnhealthy():
		ps.Status = models.HealthStatusFail
	case ph.IsDegraded():
		ps.Status = models.HealthStatusDegraded
	}
	if ph.LastSuccessAt != nil {
		ps.LastSuccessAt = models.TimestampPtr(*ph.LastSuccessAt)
	}
	if ph.LastFailureAt != nil {
		ps.LastFailureAt = models.TimestampPtr(*ph.LastFailureAt)
	}
	if ph.LastError != "" {
		msg := ph.LastError
		ps.Message = &msg
	}
	return ps
}
