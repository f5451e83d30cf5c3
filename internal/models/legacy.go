package models

import "time"

// LegacyService is the flattened service shape consumed by older call sites.
type LegacyService struct {
	Name         string `json:"name"`
	Port         int    `json:"port"`
	Status       string `json:"status"`
	ResponseMs   int64  `json:"response_ms"`
	LastUpdate   int64  `json:"last_update"` // JavaScript timestamp
	Details      string `json:"details,omitempty"`
}

// LegacyAgent is the flattened agent shape consumed by older call sites.
type LegacyAgent struct {
	Name       string  `json:"name"`
	Status     string  `json:"status"`
	PID        int32   `json:"pid"`
	CPUPercent float64 `json:"cpu_percent"`
	MemPercent float64 `json:"mem_percent"`
	Health     string  `json:"health"`
}

// LegacyView is the backward-compatible projection of the snapshot:
// services and agents keyed by ID, metrics flattened to plain numbers.
type LegacyView struct {
	Services      map[string]LegacyService `json:"services"`
	Agents        map[string]LegacyAgent   `json:"agents"`
	SystemMetrics map[string]float64       `json:"system_metrics"`
	OverallStatus string                   `json:"overall_status"`
	HealthyRatio  float64                  `json:"healthy_ratio"`
	LastUpdate    int64                    `json:"last_update"` // JavaScript timestamp
}

// ToLegacy converts a Snapshot into the legacy flattened view.
func (s Snapshot) ToLegacy() LegacyView {
	services := make(map[string]LegacyService, len(s.Services))
	healthy := 0
	for _, svc := range s.Services {
		services[svc.ID] = LegacyService{
			Name:       svc.Name,
			Port:       svc.Port,
			Status:     svc.Status,
			ResponseMs: svc.ResponseTime.Milliseconds(),
			LastUpdate: jsTimestamp(svc.LastCheck),
			Details:    svc.Details,
		}
		if svc.Status == StatusHealthy {
			healthy++
		}
	}

	agents := make(map[string]LegacyAgent, len(s.Agents))
	for _, agent := range s.Agents {
		agents[agent.ID] = LegacyAgent{
			Name:       agent.Name,
			Status:     agent.Status,
			PID:        agent.PID,
			CPUPercent: agent.CPU,
			MemPercent: agent.Memory,
			Health:     agent.Health,
		}
	}

	ratio := 0.0
	if len(s.Services) > 0 {
		ratio = float64(healthy) / float64(len(s.Services))
	}

	return LegacyView{
		Services: services,
		Agents:   agents,
		SystemMetrics: map[string]float64{
			"cpu_percent":   s.System.CPUPercent,
			"memory_percent": s.System.MemPercent,
			"disk_percent":  s.System.DiskPercent,
			"connections":   float64(s.System.Connections),
			"process_count": float64(s.System.ProcessCount),
		},
		OverallStatus: OverallStatus(ratio),
		HealthyRatio:  ratio,
		LastUpdate:    jsTimestamp(s.LastRefresh),
	}
}

func jsTimestamp(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix() * 1000
}
