package refresh

import (
	"github.com/mlegrand/fleetdeck/internal/models"
	"github.com/mlegrand/fleetdeck/internal/scorecard"
)

// synchronize recomputes roll-up summaries after a cycle and projects the
// canonical state into the aggregate-metrics collaborator. The legacy
// flattened view is derived on demand from snapshots and needs no push.
func (o *Orchestrator) synchronize(outcome *models.RefreshOutcome) {
	if o.scorecard == nil {
		return
	}

	summary := o.state.Summary()
	o.scorecard.UpdateCategory(string(models.CategoryServices), scorecard.CategoryFields{
		Healthy: summary.Services.Healthy,
		Total:   summary.Services.Total,
	})
	o.scorecard.UpdateCategory(string(models.CategoryAgents), scorecard.CategoryFields{
		Healthy: summary.Agents.Healthy,
		Total:   summary.Agents.Total,
	})

	db := o.state.DatabaseHealth()
	o.scorecard.UpdateCategory(string(models.CategoryDatabase), scorecard.CategoryFields{
		Ratio: statusRatio(db.Status),
	})

	system := o.state.SystemMetrics()
	o.scorecard.UpdateCategory(string(models.CategorySystem), scorecard.CategoryFields{
		Ratio: systemRatio(system),
	})

	org := o.state.OrgMetrics()
	o.scorecard.UpdateCategory(string(models.CategoryOrgMetrics), scorecard.CategoryFields{
		Ratio: org.Agents.Percentage / 100,
	})

	o.scorecard.UpdateMetric("refresh.duration_seconds", outcome.Duration.Seconds())
	o.scorecard.UpdateMetric("refresh.failed_components", float64(len(outcome.Failed)))
	o.scorecard.UpdateMetric("system.cpu_percent", system.CPUPercent)
	o.scorecard.UpdateMetric("system.memory_percent", system.MemPercent)
	o.scorecard.UpdateMetric("system.disk_percent", system.DiskPercent)
}

func statusRatio(status string) float64 {
	switch status {
	case models.StatusHealthy:
		return 1
	case models.StatusDegraded:
		return 0.5
	default:
		return 0
	}
}

// systemRatio treats resource headroom as health: full utilisation on any
// axis counts against the score.
func systemRatio(m models.SystemMetrics) float64 {
	worst := m.CPUPercent
	if m.MemPercent > worst {
		worst = m.MemPercent
	}
	if m.DiskPercent > worst {
		worst = m.DiskPercent
	}
	ratio := 1 - worst/100
	if ratio < 0 {
		return 0
	}
	return ratio
}
