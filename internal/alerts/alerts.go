// Package alerts derives threshold and status alerts from the current
// snapshot. Evaluation is pure: it reads the snapshot and produces alerts
// without side effects.
package alerts

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mlegrand/fleetdeck/internal/config"
	"github.com/mlegrand/fleetdeck/internal/models"
)

// Alert types.
const (
	TypeThreshold = "threshold"
	TypeService   = "service"
	TypeAgent     = "agent"
)

// Alert severities.
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert is one derived finding over the current snapshot.
type Alert struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Subject   string    `json:"subject"`
	Status    string    `json:"status"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Value     float64   `json:"value,omitempty"`
	Threshold float64   `json:"threshold,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Evaluator scans snapshots against configured thresholds.
type Evaluator struct {
	thresholds config.Thresholds
}

// NewEvaluator creates an evaluator with the given thresholds.
func NewEvaluator(thresholds config.Thresholds) *Evaluator {
	return &Evaluator{thresholds: thresholds}
}

// Evaluate scans system metrics against thresholds and service/agent
// statuses for non-healthy entries.
func (e *Evaluator) Evaluate(snap models.Snapshot) []Alert {
	now := time.Now()
	alerts := []Alert{}

	metricChecks := []struct {
		name      string
		value     float64
		threshold float64
	}{
		{"cpu", snap.System.CPUPercent, e.thresholds.CPU},
		{"memory", snap.System.MemPercent, e.thresholds.Memory},
		{"disk", snap.System.DiskPercent, e.thresholds.Disk},
	}
	for _, check := range metricChecks {
		if check.threshold <= 0 || check.value < check.threshold {
			continue
		}
		alerts = append(alerts, Alert{
			ID:        uuid.NewString(),
			Type:      TypeThreshold,
			Subject:   check.name,
			Status:    models.StatusDegraded,
			Severity:  thresholdSeverity(check.value, check.threshold),
			Message:   fmt.Sprintf("%s usage %.1f%% exceeds threshold %.1f%%", check.name, check.value, check.threshold),
			Value:     check.value,
			Threshold: check.threshold,
			Timestamp: now,
		})
	}

	for _, svc := range snap.Services {
		if svc.Status == models.StatusHealthy || svc.Status == models.StatusStarting {
			continue
		}
		alerts = append(alerts, Alert{
			ID:        uuid.NewString(),
			Type:      TypeService,
			Subject:   svc.ID,
			Status:    svc.Status,
			Severity:  statusSeverity(svc.Status),
			Message:   fmt.Sprintf("service %s is %s", svc.ID, svc.Status),
			Timestamp: now,
		})
	}

	for _, agent := range snap.Agents {
		if agent.Health == models.StatusHealthy || agent.Health == "" {
			continue
		}
		alerts = append(alerts, Alert{
			ID:        uuid.NewString(),
			Type:      TypeAgent,
			Subject:   agent.ID,
			Status:    agent.Health,
			Severity:  statusSeverity(agent.Health),
			Message:   fmt.Sprintf("agent %s is %s", agent.ID, agent.Health),
			Timestamp: now,
		})
	}

	return alerts
}

// thresholdSeverity escalates to critical when the value is well past the
// threshold.
func thresholdSeverity(value, threshold float64) string {
	if value >= threshold+5 {
		return SeverityCritical
	}
	return SeverityWarning
}

func statusSeverity(status string) string {
	if status == models.StatusOffline {
		return SeverityCritical
	}
	return SeverityWarning
}
