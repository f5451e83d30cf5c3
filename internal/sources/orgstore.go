package sources

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/mlegrand/fleetdeck/internal/models"
)

// Entity tables aggregated by the org store.
var orgEntityTables = []string{"divisions", "departments", "department_leaders", "agents"}

// OrgStore reads the organizational database: divisions, departments,
// department_leaders, and agents. Access is read-only; the connection pool
// is opened once and shared across refresh cycles.
type OrgStore struct {
	db   *sql.DB
	path string
}

// NewOrgStore opens the organizational database in read-only WAL mode.
func NewOrgStore(path string) (*OrgStore, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open org database: %w", err)
	}

	// SQLite works best with few connections; reads never need more.
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(0)

	log.Info().Str("path", path).Msg("Org store opened")
	return &OrgStore{db: db, path: path}, nil
}

// Health pings the database and captures response time and file size.
func (o *OrgStore) Health(ctx context.Context) models.DatabaseHealth {
	health := models.DatabaseHealth{LastCheck: time.Now()}

	start := time.Now()
	if err := o.db.PingContext(ctx); err != nil {
		health.Status = models.StatusOffline
		health.Error = err.Error()
		health.ResponseTime = time.Since(start)
		return health
	}

	health.Status = models.StatusHealthy
	health.ResponseTime = time.Since(start)
	if fi, err := os.Stat(o.path); err == nil {
		health.SizeBytes = fi.Size()
	}
	return health
}

// TableCounts gathers per-table row counts for the detail view.
func (o *OrgStore) TableCounts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int, len(orgEntityTables))
	for _, table := range orgEntityTables {
		var count int
		// Table names come from the fixed list above, never from input.
		if err := o.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		counts[table] = count
	}
	return counts, nil
}

// CollectMetrics runs the aggregate count/active queries per entity type
// plus the per-division rollup join.
func (o *OrgStore) CollectMetrics(ctx context.Context) (models.OrganizationalMetrics, error) {
	metrics := models.OrganizationalMetrics{
		ByDivision: []models.DivisionBreakdown{},
		ComputedAt: time.Now(),
	}

	entities := []struct {
		table string
		dest  *models.EntityMetrics
	}{
		{"divisions", &metrics.Divisions},
		{"departments", &metrics.Departments},
		{"department_leaders", &metrics.Leaders},
		{"agents", &metrics.Agents},
	}

	for _, e := range entities {
		var total, active int
		query := "SELECT COUNT(*), COUNT(*) FILTER (WHERE active = 1) FROM " + e.table
		if err := o.db.QueryRowContext(ctx, query).Scan(&total, &active); err != nil {
			return models.OrganizationalMetrics{}, fmt.Errorf("aggregate %s: %w", e.table, err)
		}
		*e.dest = models.NewEntityMetrics(total, active)
	}

	breakdown, err := o.collectDivisionBreakdown(ctx)
	if err != nil {
		return models.OrganizationalMetrics{}, err
	}
	metrics.ByDivision = breakdown

	return metrics, nil
}

// collectDivisionBreakdown produces department/leader rollups per division.
func (o *OrgStore) collectDivisionBreakdown(ctx context.Context) ([]models.DivisionBreakdown, error) {
	rows, err := o.db.QueryContext(ctx, `
		SELECT
			d.id,
			d.name,
			COUNT(DISTINCT dep.id),
			COUNT(DISTINCT CASE WHEN dep.active = 1 THEN dep.id END),
			COUNT(DISTINCT l.id),
			COUNT(DISTINCT CASE WHEN l.active = 1 THEN l.id END)
		FROM divisions d
		LEFT JOIN departments dep ON dep.division_id = d.id
		LEFT JOIN department_leaders l ON l.division_id = d.id
		GROUP BY d.id, d.name
		ORDER BY d.name
	`)
	if err != nil {
		return nil, fmt.Errorf("division breakdown: %w", err)
	}
	defer rows.Close()

	breakdown := []models.DivisionBreakdown{}
	for rows.Next() {
		var (
			id, name                                   string
			depTotal, depActive, leadTotal, leadActive int
		)
		if err := rows.Scan(&id, &name, &depTotal, &depActive, &leadTotal, &leadActive); err != nil {
			return nil, fmt.Errorf("scan division row: %w", err)
		}
		breakdown = append(breakdown, models.DivisionBreakdown{
			DivisionID:   id,
			DivisionName: name,
			Departments:  models.NewEntityMetrics(depTotal, depActive),
			Leaders:      models.NewEntityMetrics(leadTotal, leadActive),
		})
	}
	return breakdown, rows.Err()
}

// FetchOrganization reads the raw organizational structure.
func (o *OrgStore) FetchOrganization(ctx context.Context) (models.OrganizationalData, error) {
	data := models.OrganizationalData{
		Divisions:   []models.Division{},
		LastRefresh: time.Now(),
	}

	rows, err := o.db.QueryContext(ctx, `SELECT id, name, active FROM divisions ORDER BY name`)
	if err != nil {
		return models.OrganizationalData{}, fmt.Errorf("fetch divisions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var div models.Division
		if err := rows.Scan(&div.ID, &div.Name, &div.Active); err != nil {
			return models.OrganizationalData{}, fmt.Errorf("scan division: %w", err)
		}
		data.Divisions = append(data.Divisions, div)
	}
	if err := rows.Err(); err != nil {
		return models.OrganizationalData{}, err
	}

	if err := o.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM department_leaders`).Scan(&data.LeaderCount); err != nil {
		return models.OrganizationalData{}, fmt.Errorf("count leaders: %w", err)
	}
	if err := o.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM agents`).Scan(&data.AgentCount); err != nil {
		return models.OrganizationalData{}, fmt.Errorf("count agents: %w", err)
	}
	return data, nil
}

// FetchDepartments reads the departments table.
func (o *OrgStore) FetchDepartments(ctx context.Context) (models.DepartmentsData, error) {
	data := models.DepartmentsData{
		Departments: []models.Department{},
		LastRefresh: time.Now(),
	}

	rows, err := o.db.QueryContext(ctx, `SELECT id, name, division_id, active FROM departments ORDER BY name`)
	if err != nil {
		return models.DepartmentsData{}, fmt.Errorf("fetch departments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var dep models.Department
		if err := rows.Scan(&dep.ID, &dep.Name, &dep.DivisionID, &dep.Active); err != nil {
			return models.DepartmentsData{}, fmt.Errorf("scan department: %w", err)
		}
		data.Departments = append(data.Departments, dep)
		data.Total++
		if dep.Active {
			data.Active++
		}
	}
	return data, rows.Err()
}

// Close releases the connection pool.
func (o *OrgStore) Close() error {
	return o.db.Close()
}
