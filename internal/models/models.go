// Package models defines the canonical in-memory snapshot of the fleet:
// one typed record per refreshable category plus bounded bookkeeping.
package models

import (
	"time"
)

// Category names every refreshable slice of the snapshot.
type Category string

const (
	CategoryServices     Category = "services_status"
	CategoryAgents       Category = "agents_status"
	CategorySystem       Category = "system_metrics"
	CategoryDatabase     Category = "database_health"
	CategoryRegistry     Category = "registry_data"
	CategoryDepartments  Category = "departments_data"
	CategoryOrganization Category = "organizational_data"
	CategoryOrgMetrics   Category = "organizational_metrics"
)

// AllCategories lists every known category in refresh order.
func AllCategories() []Category {
	return []Category{
		CategorySystem,
		CategoryDatabase,
		CategoryServices,
		CategoryAgents,
		CategoryOrganization,
		CategoryDepartments,
		CategoryOrgMetrics,
		CategoryRegistry,
	}
}

// Service status values.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	StatusOffline  = "offline"
	StatusStarting = "starting"
	StatusUnknown  = "unknown"
)

// Agent run states.
const (
	AgentRunning = "running"
	AgentStopped = "stopped"
)

// Overall system status values derived from the healthy ratio.
const (
	SystemOnline  = "online"
	SystemWarning = "warning"
	SystemOffline = "offline"
)

// ServiceStatus describes one monitored service endpoint.
type ServiceStatus struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Port         int           `json:"port"`
	Status       string        `json:"status"`
	ResponseTime time.Duration `json:"responseTime"`
	LastCheck    time.Time     `json:"lastCheck"`
	Details      string        `json:"details,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// AgentStatus describes one worker process.
type AgentStatus struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"` // running or stopped
	PID       int32     `json:"pid"`
	CPU       float64   `json:"cpu"`
	Memory    float64   `json:"memory"`
	Health    string    `json:"health"` // healthy, degraded, offline
	StartTime time.Time `json:"startTime,omitempty"`
}

// SystemMetrics is a point-in-time sample of host resource utilisation.
type SystemMetrics struct {
	CPUPercent   float64   `json:"cpuPercent"`
	MemPercent   float64   `json:"memPercent"`
	MemUsedGB    float64   `json:"memUsedGb"`
	MemTotalGB   float64   `json:"memTotalGb"`
	DiskPercent  float64   `json:"diskPercent"`
	DiskUsedGB   float64   `json:"diskUsedGb"`
	DiskTotalGB  float64   `json:"diskTotalGb"`
	Connections  int       `json:"connections"`
	ProcessCount int       `json:"processCount"`
	SampledAt    time.Time `json:"sampledAt"`
}

// DatabaseHealth summarizes the relational store probe.
type DatabaseHealth struct {
	Status       string         `json:"status"`
	ResponseTime time.Duration  `json:"responseTime"`
	TableCounts  map[string]int `json:"tableCounts,omitempty"`
	SizeBytes    int64          `json:"sizeBytes"`
	LastCheck    time.Time      `json:"lastCheck"`
	Error        string         `json:"error,omitempty"`
}

// RegistryData summarizes what the service registry reports.
type RegistryData struct {
	Status       string    `json:"status"`
	ServiceCount int       `json:"serviceCount"`
	AgentCount   int       `json:"agentCount"`
	LastCheck    time.Time `json:"lastCheck"`
}

// Department is one row of the departments table.
type Department struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DivisionID string `json:"divisionId"`
	Active     bool   `json:"active"`
}

// DepartmentsData holds the departments category.
type DepartmentsData struct {
	Departments []Department `json:"departments"`
	Total       int          `json:"total"`
	Active      int          `json:"active"`
	LastRefresh time.Time    `json:"lastRefresh"`
}

// Division is one row of the divisions table.
type Division struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// OrganizationalData holds the raw organizational structure.
type OrganizationalData struct {
	Divisions   []Division `json:"divisions"`
	LeaderCount int        `json:"leaderCount"`
	AgentCount  int        `json:"agentCount"`
	LastRefresh time.Time  `json:"lastRefresh"`
}

// EntityMetrics is the total/active/percentage triple computed per entity type.
type EntityMetrics struct {
	Total      int     `json:"total"`
	Active     int     `json:"active"`
	Percentage float64 `json:"percentage"`
}

// DivisionBreakdown carries per-division rollups.
type DivisionBreakdown struct {
	DivisionID   string        `json:"divisionId"`
	DivisionName string        `json:"divisionName"`
	Departments  EntityMetrics `json:"departments"`
	Leaders      EntityMetrics `json:"leaders"`
}

// OrganizationalMetrics aggregates counts/percentages over the org store.
type OrganizationalMetrics struct {
	Divisions   EntityMetrics       `json:"divisions"`
	Departments EntityMetrics       `json:"departments"`
	Leaders     EntityMetrics       `json:"leaders"`
	Agents      EntityMetrics       `json:"agents"`
	ByDivision  []DivisionBreakdown `json:"byDivision"`
	ComputedAt  time.Time           `json:"computedAt"`
}

// RefreshEvent records one completed refresh cycle.
type RefreshEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthHistoryEntry records one component health observation.
type HealthHistoryEntry struct {
	Component Category  `json:"component"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ComponentError pairs a failed component with its error message.
type ComponentError struct {
	Component string `json:"component"`
	Error     string `json:"error"`
}

// Refresh outcome statuses.
const (
	OutcomeSuccess        = "success"
	OutcomePartialSuccess = "partial_success"
	OutcomeError          = "error"
)

// RefreshOutcome describes one refresh cycle: which components succeeded,
// which failed, which were skipped as unknown, and how long the cycle took.
type RefreshOutcome struct {
	Refreshed []string         `json:"refreshed"`
	Failed    []ComponentError `json:"failed"`
	Skipped   []string         `json:"skipped,omitempty"`
	Status    string           `json:"status"`
	Message   string           `json:"message,omitempty"`
	Duration  time.Duration    `json:"duration"`
	StartedAt time.Time        `json:"startedAt"`
}

// Overall derives the outcome status from the success/failure tallies.
func (o *RefreshOutcome) Overall() string {
	switch {
	case len(o.Failed) == 0:
		return OutcomeSuccess
	case len(o.Refreshed) > 0:
		return OutcomePartialSuccess
	default:
		return OutcomeError
	}
}

// Stats tracks process-level bookkeeping across cycles.
type Stats struct {
	RefreshCycles     int64     `json:"refreshCycles"`
	LastCycleDuration float64   `json:"lastCycleDuration"` // seconds
	UptimeSeconds     int64     `json:"uptimeSeconds"`
	StartTime         time.Time `json:"startTime"`
}

// ServiceSummary groups service health counts.
type ServiceSummary struct {
	Total    int `json:"total"`
	Healthy  int `json:"healthy"`
	Degraded int `json:"degraded"`
	Offline  int `json:"offline"`
	Starting int `json:"starting"`
	Unknown  int `json:"unknown"`
}

// AgentSummary groups agent run-state counts.
type AgentSummary struct {
	Total   int `json:"total"`
	Running int `json:"running"`
	Healthy int `json:"healthy"`
}

// Summary is the read-only roll-up view over current category values.
type Summary struct {
	Services      ServiceSummary `json:"services"`
	Agents        AgentSummary   `json:"agents"`
	HealthyRatio  float64        `json:"healthyRatio"`
	OverallStatus string         `json:"overallStatus"`
	GeneratedAt   time.Time      `json:"generatedAt"`
}
