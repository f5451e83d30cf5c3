package models

import (
	"sync"
	"sync/atomic"
	"time"
)

// State is the canonical mutable snapshot shared by the refresh
// orchestrator, the source adapters, and all readers. Every category is
// seeded with a default value at construction so readers never observe a
// missing slice. Writes replace whole category values under the mutex;
// readers get deep copies via GetSnapshot.
type State struct {
	mu sync.RWMutex

	services     []ServiceStatus
	agents       []AgentStatus
	system       SystemMetrics
	database     DatabaseHealth
	registry     RegistryData
	departments  DepartmentsData
	organization OrganizationalData
	orgMetrics   OrganizationalMetrics

	stats       Stats
	lastRefresh time.Time

	refreshing atomic.Bool
}

// NewState constructs a State with defaults for every category.
func NewState() *State {
	return &State{
		services:     []ServiceStatus{},
		agents:       []AgentStatus{},
		database:     DatabaseHealth{Status: StatusUnknown},
		registry:     RegistryData{Status: StatusUnknown},
		departments:  DepartmentsData{Departments: []Department{}},
		organization: OrganizationalData{Divisions: []Division{}},
		orgMetrics:   ZeroOrganizationalMetrics(),
		stats:        Stats{StartTime: time.Now()},
	}
}

// TryBeginRefresh atomically flips the in-progress flag. It returns false
// when another cycle already holds it.
func (s *State) TryBeginRefresh() bool {
	return s.refreshing.CompareAndSwap(false, true)
}

// EndRefresh clears the in-progress flag and stamps the refresh time.
// Called on every cycle exit path, including failure.
func (s *State) EndRefresh() {
	s.mu.Lock()
	now := time.Now()
	if now.After(s.lastRefresh) {
		s.lastRefresh = now
	}
	s.mu.Unlock()
	s.refreshing.Store(false)
}

// RefreshInProgress reports whether a cycle is currently running.
func (s *State) RefreshInProgress() bool {
	return s.refreshing.Load()
}

// UpdateServices replaces the services category.
func (s *State) UpdateServices(services []ServiceStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services = services
}

// UpdateService replaces a single service entry by ID, appending it when
// not yet present.
func (s *State) UpdateService(svc ServiceStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.services {
		if s.services[i].ID == svc.ID {
			s.services[i] = svc
			return
		}
	}
	s.services = append(s.services, svc)
}

// UpdateAgents replaces the agents category.
func (s *State) UpdateAgents(agents []AgentStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents = agents
}

// UpdateSystemMetrics replaces the system metrics category.
func (s *State) UpdateSystemMetrics(m SystemMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.system = m
}

// UpdateDatabaseHealth replaces the database health category.
func (s *State) UpdateDatabaseHealth(h DatabaseHealth) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.database = h
}

// UpdateRegistry replaces the registry category.
func (s *State) UpdateRegistry(r RegistryData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry = r
}

// UpdateDepartments replaces the departments category.
func (s *State) UpdateDepartments(d DepartmentsData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.departments = d
}

// UpdateOrganization replaces the organizational structure category.
func (s *State) UpdateOrganization(o OrganizationalData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.organization = o
}

// UpdateOrgMetrics replaces the derived organizational metrics category.
func (s *State) UpdateOrgMetrics(m OrganizationalMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orgMetrics = m
}

// RecordCycle updates process stats after a completed cycle.
func (s *State) RecordCycle(duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.RefreshCycles++
	s.stats.LastCycleDuration = duration.Seconds()
	s.stats.UptimeSeconds = int64(time.Since(s.stats.StartTime).Seconds())
}

// Services returns a copy of the services category.
func (s *State) Services() []ServiceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ServiceStatus{}, s.services...)
}

// Agents returns a copy of the agents category.
func (s *State) Agents() []AgentStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]AgentStatus{}, s.agents...)
}

// SystemMetrics returns the system metrics category.
func (s *State) SystemMetrics() SystemMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.system
}

// DatabaseHealth returns the database health category.
func (s *State) DatabaseHealth() DatabaseHealth {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyDatabaseHealth(s.database)
}

// OrgMetrics returns the derived organizational metrics category.
func (s *State) OrgMetrics() OrganizationalMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyOrgMetrics(s.orgMetrics)
}

// LastRefresh returns the timestamp of the last completed cycle.
func (s *State) LastRefresh() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRefresh
}

// Summary derives roll-up counts from current category values without
// mutating anything.
func (s *State) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var svc ServiceSummary
	svc.Total = len(s.services)
	for _, entry := range s.services {
		switch entry.Status {
		case StatusHealthy:
			svc.Healthy++
		case StatusDegraded:
			svc.Degraded++
		case StatusOffline:
			svc.Offline++
		case StatusStarting:
			svc.Starting++
		default:
			svc.Unknown++
		}
	}

	var ag AgentSummary
	ag.Total = len(s.agents)
	for _, agent := range s.agents {
		if agent.Status == AgentRunning {
			ag.Running++
		}
		if agent.Health == StatusHealthy {
			ag.Healthy++
		}
	}

	ratio := 0.0
	if svc.Total > 0 {
		ratio = float64(svc.Healthy) / float64(svc.Total)
	}

	return Summary{
		Services:      svc,
		Agents:        ag,
		HealthyRatio:  ratio,
		OverallStatus: OverallStatus(ratio),
		GeneratedAt:   time.Now(),
	}
}

// OverallStatus maps a healthy ratio to the overall system status.
func OverallStatus(healthyRatio float64) string {
	switch {
	case healthyRatio > 0.7:
		return SystemOnline
	case healthyRatio > 0:
		return SystemWarning
	default:
		return SystemOffline
	}
}
