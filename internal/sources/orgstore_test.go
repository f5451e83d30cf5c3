package sources

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/mlegrand/fleetdeck/internal/models"
)

// seedOrgDB creates the org schema and a small fixture set: 9 divisions
// (7 active), departments and leaders concentrated in the first division.
func seedOrgDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "org.db")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open seed db: %v", err)
	}
	defer db.Close()

	schema := `
		CREATE TABLE divisions (id TEXT PRIMARY KEY, name TEXT NOT NULL, active INTEGER NOT NULL);
		CREATE TABLE departments (id TEXT PRIMARY KEY, name TEXT NOT NULL, division_id TEXT NOT NULL, active INTEGER NOT NULL);
		CREATE TABLE department_leaders (id TEXT PRIMARY KEY, name TEXT NOT NULL, division_id TEXT NOT NULL, active INTEGER NOT NULL);
		CREATE TABLE agents (id TEXT PRIMARY KEY, name TEXT NOT NULL, active INTEGER NOT NULL);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	for i := 0; i < 9; i++ {
		active := 1
		if i >= 7 {
			active = 0
		}
		if _, err := db.Exec(`INSERT INTO divisions VALUES (?, ?, ?)`,
			"div-"+string(rune('a'+i)), "Division "+string(rune('A'+i)), active); err != nil {
			t.Fatal(err)
		}
	}

	inserts := []string{
		`INSERT INTO departments VALUES ('dep-1', 'Engineering', 'div-a', 1)`,
		`INSERT INTO departments VALUES ('dep-2', 'Research', 'div-a', 0)`,
		`INSERT INTO departments VALUES ('dep-3', 'Operations', 'div-b', 1)`,
		`INSERT INTO department_leaders VALUES ('lead-1', 'Lead One', 'div-a', 1)`,
		`INSERT INTO department_leaders VALUES ('lead-2', 'Lead Two', 'div-a', 1)`,
		`INSERT INTO agents VALUES ('agent-1', 'Agent One', 1)`,
		`INSERT INTO agents VALUES ('agent-2', 'Agent Two', 1)`,
		`INSERT INTO agents VALUES ('agent-3', 'Agent Three', 0)`,
	}
	for _, stmt := range inserts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func TestCollectMetrics(t *testing.T) {
	store, err := NewOrgStore(seedOrgDB(t))
	if err != nil {
		t.Fatalf("NewOrgStore: %v", err)
	}
	defer store.Close()

	metrics, err := store.CollectMetrics(context.Background())
	if err != nil {
		t.Fatalf("CollectMetrics: %v", err)
	}

	if metrics.Divisions.Total != 9 || metrics.Divisions.Active != 7 {
		t.Fatalf("divisions = %+v", metrics.Divisions)
	}
	if metrics.Divisions.Percentage != 77.8 {
		t.Fatalf("divisions percentage = %v, want 77.8", metrics.Divisions.Percentage)
	}
	if metrics.Departments.Total != 3 || metrics.Departments.Active != 2 {
		t.Fatalf("departments = %+v", metrics.Departments)
	}
	if metrics.Agents.Total != 3 || metrics.Agents.Active != 2 {
		t.Fatalf("agents = %+v", metrics.Agents)
	}

	if len(metrics.ByDivision) != 9 {
		t.Fatalf("expected 9 division breakdowns, got %d", len(metrics.ByDivision))
	}
	// ORDER BY name puts Division A first.
	divA := metrics.ByDivision[0]
	if divA.DivisionID != "div-a" {
		t.Fatalf("first breakdown = %+v", divA)
	}
	if divA.Departments.Total != 2 || divA.Departments.Active != 1 {
		t.Fatalf("div-a departments = %+v", divA.Departments)
	}
	if divA.Leaders.Total != 2 || divA.Leaders.Active != 2 {
		t.Fatalf("div-a leaders = %+v", divA.Leaders)
	}
	// Division with no departments/leaders still appears with zeros.
	divC := metrics.ByDivision[2]
	if divC.Departments.Total != 0 || divC.Leaders.Percentage != 0 {
		t.Fatalf("empty division breakdown = %+v", divC)
	}
}

func TestHealth(t *testing.T) {
	store, err := NewOrgStore(seedOrgDB(t))
	if err != nil {
		t.Fatalf("NewOrgStore: %v", err)
	}
	defer store.Close()

	health := store.Health(context.Background())
	if health.Status != models.StatusHealthy {
		t.Fatalf("status = %q (%s)", health.Status, health.Error)
	}
	if health.SizeBytes == 0 {
		t.Fatal("database size not captured")
	}

	counts, err := store.TableCounts(context.Background())
	if err != nil {
		t.Fatalf("TableCounts: %v", err)
	}
	if counts["divisions"] != 9 || counts["agents"] != 3 {
		t.Fatalf("table counts = %+v", counts)
	}
}

func TestTableCountsErrorsOnMissingSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	store, err := NewOrgStore(path)
	if err != nil {
		t.Fatalf("NewOrgStore: %v", err)
	}
	defer store.Close()

	if _, err := store.TableCounts(context.Background()); err == nil {
		t.Fatal("expected error for missing schema")
	}
}

func TestFetchOrganizationAndDepartments(t *testing.T) {
	store, err := NewOrgStore(seedOrgDB(t))
	if err != nil {
		t.Fatalf("NewOrgStore: %v", err)
	}
	defer store.Close()

	org, err := store.FetchOrganization(context.Background())
	if err != nil {
		t.Fatalf("FetchOrganization: %v", err)
	}
	if len(org.Divisions) != 9 || org.LeaderCount != 2 || org.AgentCount != 3 {
		t.Fatalf("org = %+v", org)
	}

	deps, err := store.FetchDepartments(context.Background())
	if err != nil {
		t.Fatalf("FetchDepartments: %v", err)
	}
	if deps.Total != 3 || deps.Active != 2 {
		t.Fatalf("departments = %+v", deps)
	}
}
