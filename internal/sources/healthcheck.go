// Package sources contains the per-source adapters: HTTP health checks,
// host resource sampling, the relational org store, and snapshot/bootstrap
// files. Each adapter fetches and normalizes one category of data.
package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mlegrand/fleetdeck/internal/config"
	"github.com/mlegrand/fleetdeck/internal/models"
)

const maxHealthBodyBytes = 4096

// HealthChecker probes service /health endpoints and classifies each
// component as healthy, degraded, or offline. Probe failures are mapped to
// a status, never returned as errors.
type HealthChecker struct {
	client *http.Client
	selfID string
}

// NewHealthChecker creates a checker with the given per-probe timeout.
func NewHealthChecker(timeout time.Duration, selfID string) *HealthChecker {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HealthChecker{
		client: &http.Client{Timeout: timeout},
		selfID: selfID,
	}
}

// Check probes a single endpoint. The hosting process itself never makes a
// network round trip: it is always reported healthy via SelfCheck.
func (hc *HealthChecker) Check(ctx context.Context, endpoint config.ServiceEndpoint) models.ServiceStatus {
	if endpoint.ID == hc.selfID {
		return hc.SelfCheck(endpoint)
	}

	status := models.ServiceStatus{
		ID:        endpoint.ID,
		Name:      endpoint.Name,
		Port:      endpoint.Port,
		LastCheck: time.Now(),
	}

	url := endpoint.BaseURL() + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		status.Status = models.StatusOffline
		status.Error = err.Error()
		return status
	}

	start := time.Now()
	resp, err := hc.client.Do(req)
	status.ResponseTime = time.Since(start)
	if err != nil {
		status.Status = models.StatusOffline
		status.Error = err.Error()
		log.Debug().Str("service", endpoint.ID).Err(err).Msg("Health check unreachable")
		return status
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxHealthBodyBytes))

	if resp.StatusCode == http.StatusOK {
		status.Status = models.StatusHealthy
		status.Details = strings.TrimSpace(string(body))
	} else {
		status.Status = models.StatusDegraded
		status.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		log.Debug().
			Str("service", endpoint.ID).
			Int("httpStatus", resp.StatusCode).
			Msg("Health check degraded")
	}
	return status
}

// SelfCheck reports the hosting service itself. The process answering is
// proof enough of life, so no network probe is made.
func (hc *HealthChecker) SelfCheck(endpoint config.ServiceEndpoint) models.ServiceStatus {
	return models.ServiceStatus{
		ID:        endpoint.ID,
		Name:      endpoint.Name,
		Port:      endpoint.Port,
		Status:    models.StatusHealthy,
		Details:   "self-check",
		LastCheck: time.Now(),
	}
}
