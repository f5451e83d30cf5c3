package models

import "time"

// Snapshot represents a deep copy of the state without the mutex. This is
// what readers, the API, and the websocket hub consume.
type Snapshot struct {
	Services          []ServiceStatus       `json:"services"`
	Agents            []AgentStatus         `json:"agents"`
	System            SystemMetrics         `json:"systemMetrics"`
	Database          DatabaseHealth        `json:"databaseHealth"`
	Registry          RegistryData          `json:"registryData"`
	Departments       DepartmentsData       `json:"departmentsData"`
	Organization      OrganizationalData    `json:"organizationalData"`
	OrgMetrics        OrganizationalMetrics `json:"organizationalMetrics"`
	Stats             Stats                 `json:"stats"`
	LastRefresh       time.Time             `json:"lastRefresh"`
	RefreshInProgress bool                  `json:"refreshInProgress"`
}

// GetSnapshot returns a deep copy of the current state.
func (s *State) GetSnapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		Services:          append([]ServiceStatus{}, s.services...),
		Agents:            append([]AgentStatus{}, s.agents...),
		System:            s.system,
		Database:          copyDatabaseHealth(s.database),
		Registry:          s.registry,
		Departments:       copyDepartments(s.departments),
		Organization:      copyOrganization(s.organization),
		OrgMetrics:        copyOrgMetrics(s.orgMetrics),
		Stats:             s.stats,
		LastRefresh:       s.lastRefresh,
		RefreshInProgress: s.refreshing.Load(),
	}
}

func copyDatabaseHealth(h DatabaseHealth) DatabaseHealth {
	out := h
	if h.TableCounts != nil {
		out.TableCounts = make(map[string]int, len(h.TableCounts))
		for k, v := range h.TableCounts {
			out.TableCounts[k] = v
		}
	}
	return out
}

func copyDepartments(d DepartmentsData) DepartmentsData {
	out := d
	out.Departments = append([]Department{}, d.Departments...)
	return out
}

func copyOrganization(o OrganizationalData) OrganizationalData {
	out := o
	out.Divisions = append([]Division{}, o.Divisions...)
	return out
}

func copyOrgMetrics(m OrganizationalMetrics) OrganizationalMetrics {
	out := m
	out.ByDivision = append([]DivisionBreakdown{}, m.ByDivision...)
	return out
}
