package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlegrand/fleetdeck/internal/alerts"
	"github.com/mlegrand/fleetdeck/internal/config"
	"github.com/mlegrand/fleetdeck/internal/history"
	"github.com/mlegrand/fleetdeck/internal/models"
	"github.com/mlegrand/fleetdeck/internal/scorecard"
)

// fakeHealth classifies endpoints by the contents of the offline set.
type fakeHealth struct {
	mu      sync.Mutex
	offline map[string]bool
	checked []string
}

func (f *fakeHealth) Check(_ context.Context, endpoint config.ServiceEndpoint) models.ServiceStatus {
	f.mu.Lock()
	f.checked = append(f.checked, endpoint.ID)
	f.mu.Unlock()

	status := models.StatusHealthy
	errMsg := ""
	if f.offline[endpoint.ID] {
		status = models.StatusOffline
		errMsg = "connection refused"
	}
	return models.ServiceStatus{
		ID: endpoint.ID, Name: endpoint.Name, Port: endpoint.Port,
		Status: status, Error: errMsg, LastCheck: time.Now(),
	}
}

func (f *fakeHealth) SelfCheck(endpoint config.ServiceEndpoint) models.ServiceStatus {
	return models.ServiceStatus{
		ID: endpoint.ID, Name: endpoint.Name, Port: endpoint.Port,
		Status: models.StatusHealthy, Details: "self-check", LastCheck: time.Now(),
	}
}

type fakeSystem struct {
	metrics models.SystemMetrics
	err     error
	panics  bool
}

func (f *fakeSystem) Sample(context.Context) (models.SystemMetrics, error) {
	if f.panics {
		panic("sampler exploded")
	}
	return f.metrics, f.err
}

type fakeAgents struct{}

func (fakeAgents) Sample(_ context.Context, agents []models.AgentStatus) []models.AgentStatus {
	out := make([]models.AgentStatus, len(agents))
	for i, agent := range agents {
		agent.Status = models.AgentRunning
		agent.Health = models.StatusHealthy
		out[i] = agent
	}
	return out
}

type fakeOrg struct {
	healthStatus string
	metricsErr   error
	orgErr       error
}

func (f *fakeOrg) Health(context.Context) models.DatabaseHealth {
	status := f.healthStatus
	if status == "" {
		status = models.StatusHealthy
	}
	return models.DatabaseHealth{Status: status, LastCheck: time.Now()}
}

func (f *fakeOrg) TableCounts(context.Context) (map[string]int, error) {
	return map[string]int{"divisions": 2, "agents": 5}, nil
}

func (f *fakeOrg) CollectMetrics(context.Context) (models.OrganizationalMetrics, error) {
	if f.metricsErr != nil {
		return models.OrganizationalMetrics{}, f.metricsErr
	}
	return models.OrganizationalMetrics{
		Divisions:  models.NewEntityMetrics(9, 7),
		Agents:     models.NewEntityMetrics(5, 5),
		ByDivision: []models.DivisionBreakdown{},
		ComputedAt: time.Now(),
	}, nil
}

func (f *fakeOrg) FetchOrganization(context.Context) (models.OrganizationalData, error) {
	if f.orgErr != nil {
		return models.OrganizationalData{}, f.orgErr
	}
	return models.OrganizationalData{Divisions: []models.Division{{ID: "div-a", Name: "A", Active: true}}}, nil
}

func (f *fakeOrg) FetchDepartments(context.Context) (models.DepartmentsData, error) {
	return models.DepartmentsData{Departments: []models.Department{}, LastRefresh: time.Now()}, nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.RefreshInterval = time.Hour
	cfg.SnapshotInterval = time.Hour
	cfg.SnapshotPath = ""
	cfg.BootstrapPath = ""
	return cfg
}

func newTestOrchestrator(t *testing.T, mutate func(*Deps)) (*Orchestrator, *models.State) {
	t.Helper()
	state := models.NewState()
	deps := Deps{
		State:     state,
		Config:    testConfig(),
		Health:    &fakeHealth{},
		System:    &fakeSystem{metrics: models.SystemMetrics{CPUPercent: 25, MemPercent: 40, DiskPercent: 30}},
		Agents:    fakeAgents{},
		Org:       &fakeOrg{},
		Recorder:  history.NewRecorder(100, 100),
		Evaluator: alerts.NewEvaluator(config.Default().Thresholds),
		Scorecard: scorecard.NewCollector(nil),
	}
	if mutate != nil {
		mutate(&deps)
	}
	return New(deps), state
}

func TestFullCycleSuccess(t *testing.T) {
	o, state := newTestOrchestrator(t, nil)

	outcome := o.RunFullCycle(context.Background(), nil)

	assert.Equal(t, models.OutcomeSuccess, outcome.Status)
	assert.Empty(t, outcome.Failed)
	assert.NotEmpty(t, outcome.Refreshed)

	snap := state.GetSnapshot()
	assert.False(t, snap.RefreshInProgress)
	assert.False(t, snap.LastRefresh.IsZero())
	assert.Equal(t, 25.0, snap.System.CPUPercent)
	assert.Equal(t, models.StatusHealthy, snap.Database.Status)
	assert.Equal(t, map[string]int{"divisions": 2, "agents": 5}, snap.Database.TableCounts)
	assert.Equal(t, int64(1), snap.Stats.RefreshCycles)
}

func TestInProgressFlagClearedEvenWhenStepPanics(t *testing.T) {
	o, state := newTestOrchestrator(t, func(d *Deps) {
		d.System = &fakeSystem{panics: true}
	})

	flagDuringCycle := false
	outcome := o.RunFullCycle(context.Background(), ProgressFunc(func(e ProgressEvent) {
		if state.RefreshInProgress() {
			flagDuringCycle = true
		}
	}))

	assert.True(t, flagDuringCycle, "flag should be true strictly during execution")
	assert.False(t, state.RefreshInProgress(), "flag must clear after the cycle")
	assert.Equal(t, models.OutcomePartialSuccess, outcome.Status)

	require.Len(t, outcome.Failed, 1)
	assert.Equal(t, "system_metrics", outcome.Failed[0].Component)
	assert.Contains(t, outcome.Failed[0].Error, "sampler exploded")
}

func TestFailingStepDoesNotStopTheCycle(t *testing.T) {
	o, state := newTestOrchestrator(t, func(d *Deps) {
		d.Org = &fakeOrg{orgErr: errors.New("query timeout")}
	})

	outcome := o.RunFullCycle(context.Background(), nil)

	assert.Equal(t, models.OutcomePartialSuccess, outcome.Status)
	require.Len(t, outcome.Failed, 1)
	assert.Equal(t, "organizational_data", outcome.Failed[0].Component)

	// Steps after the failing one still executed.
	assert.Contains(t, outcome.Refreshed, "departments_data")
	assert.Contains(t, outcome.Refreshed, "registry_data")
	assert.False(t, state.GetSnapshot().Registry.LastCheck.IsZero())
}

func TestFullCycleStepCountMatchesOutcome(t *testing.T) {
	o, _ := newTestOrchestrator(t, func(d *Deps) {
		d.System = &fakeSystem{err: errors.New("proc unavailable")}
	})

	outcome := o.RunFullCycle(context.Background(), nil)

	total := len(o.fullCycleSteps())
	assert.Equal(t, total, len(outcome.Refreshed)+len(outcome.Failed))
	assert.Len(t, outcome.Failed, 1)
	assert.Equal(t, models.OutcomePartialSuccess, outcome.Status)
}

func TestFullCycleProgressEvents(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)

	var events []ProgressEvent
	o.RunFullCycle(context.Background(), func(e ProgressEvent) {
		events = append(events, e)
	})

	total := len(o.fullCycleSteps())
	require.Len(t, events, total)
	for i, e := range events {
		assert.Equal(t, KindStep, e.Kind)
		assert.Equal(t, i+1, e.Index)
		assert.Equal(t, total, e.Total)
		assert.NotEmpty(t, e.Label)
	}
}

func TestSelfStatusAlwaysHealthyDespiteNetworkFailure(t *testing.T) {
	// Every network probe fails; the self entry must still be healthy.
	offline := map[string]bool{}
	for _, svc := range config.DefaultServices() {
		offline[svc.ID] = true
	}
	o, state := newTestOrchestrator(t, func(d *Deps) {
		d.Health = &fakeHealth{offline: offline}
	})

	o.RunFullCycle(context.Background(), nil)

	var self models.ServiceStatus
	for _, svc := range state.Services() {
		if svc.ID == "self" {
			self = svc
		}
	}
	assert.Equal(t, models.StatusHealthy, self.Status)
}

func TestSelectiveRefreshSkipsUnknownComponents(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)

	outcome := o.RefreshComponents(context.Background(), []string{"agents_status", "bogus_component"}, nil)

	assert.Equal(t, []string{"agents_status"}, outcome.Refreshed)
	assert.Equal(t, []string{"bogus_component"}, outcome.Skipped)
	assert.Empty(t, outcome.Failed)
	assert.Equal(t, models.OutcomeSuccess, outcome.Status)
}

func TestSelectiveRefreshDefaultSubset(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)

	outcome := o.RefreshComponents(context.Background(), nil, nil)

	assert.ElementsMatch(t, DefaultComponents(), outcome.Refreshed)
	assert.Equal(t, models.OutcomeSuccess, outcome.Status)
}

func TestSelectiveRefreshProgressSequence(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)

	var events []ProgressEvent
	o.RefreshComponents(context.Background(), []string{"system_metrics", "database_health"}, func(e ProgressEvent) {
		events = append(events, e)
	})

	require.Len(t, events, 4)
	assert.Equal(t, ComponentRunning, events[0].Status)
	assert.Equal(t, ComponentCompleted, events[1].Status)
	assert.Equal(t, "system_metrics", events[0].Component)
	assert.Equal(t, KindComponent, events[0].Kind)
	assert.Equal(t, 50.0, events[0].Percent)
	assert.Equal(t, 100.0, events[2].Percent)
	assert.LessOrEqual(t, events[0].Percent, events[2].Percent)
}

func TestSelectiveRefreshReportsComponentError(t *testing.T) {
	o, _ := newTestOrchestrator(t, func(d *Deps) {
		d.System = &fakeSystem{err: errors.New("sample failed")}
	})

	var events []ProgressEvent
	outcome := o.RefreshComponents(context.Background(), []string{"system_metrics"}, func(e ProgressEvent) {
		events = append(events, e)
	})

	assert.Equal(t, models.OutcomeError, outcome.Status)
	require.Len(t, outcome.Failed, 1)
	require.Len(t, events, 2)
	assert.Equal(t, ComponentError, events[1].Status)
	assert.Contains(t, events[1].Error, "sample failed")
}

func TestTenServicesEightHealthyTwoOffline(t *testing.T) {
	services := make([]config.ServiceEndpoint, 0, 10)
	for i := 0; i < 10; i++ {
		services = append(services, config.ServiceEndpoint{
			ID: fmt.Sprintf("svc-%d", i), Name: fmt.Sprintf("Service %d", i), Port: 9000 + i,
		})
	}
	o, state := newTestOrchestrator(t, func(d *Deps) {
		d.Config.Services = services
		d.Config.SelfID = "none-of-these"
		d.Health = &fakeHealth{offline: map[string]bool{"svc-8": true, "svc-9": true}}
	})

	outcome := o.RefreshComponents(context.Background(), []string{"services_status"}, nil)
	require.Equal(t, models.OutcomeSuccess, outcome.Status)

	sum := state.Summary()
	assert.Equal(t, 10, sum.Services.Total)
	assert.Equal(t, 8, sum.Services.Healthy)
	assert.Equal(t, 2, sum.Services.Offline)
	assert.Equal(t, models.SystemOnline, sum.OverallStatus)
}

func TestOrgMetricsFailureFallsBackToZero(t *testing.T) {
	o, state := newTestOrchestrator(t, func(d *Deps) {
		d.Org = &fakeOrg{metricsErr: errors.New("aggregation broke")}
	})

	outcome := o.RefreshComponents(context.Background(), []string{"organizational_metrics"}, nil)

	// The failure is absorbed, not propagated.
	assert.Equal(t, models.OutcomeSuccess, outcome.Status)
	assert.Contains(t, outcome.Refreshed, "organizational_metrics")

	metrics := state.OrgMetrics()
	assert.Equal(t, 0, metrics.Divisions.Total)
	assert.Equal(t, 0.0, metrics.Agents.Percentage)
}

func TestOverlappingCyclesAreRejected(t *testing.T) {
	o, state := newTestOrchestrator(t, nil)

	require.True(t, state.TryBeginRefresh())
	defer state.EndRefresh()

	outcome := o.RunFullCycle(context.Background(), nil)
	assert.Equal(t, models.OutcomeError, outcome.Status)
	assert.Equal(t, "refresh already in progress", outcome.Message)

	selective := o.RefreshComponents(context.Background(), []string{"system_metrics"}, nil)
	assert.Equal(t, models.OutcomeError, selective.Status)
}

func TestCycleRecordsEventAndAlerts(t *testing.T) {
	rec := history.NewRecorder(100, 100)
	o, _ := newTestOrchestrator(t, func(d *Deps) {
		d.Recorder = rec
		d.Health = &fakeHealth{offline: map[string]bool{"payment": true}}
	})

	o.RunFullCycle(context.Background(), nil)

	events := rec.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, "refresh_success", events[len(events)-1].Type)
	require.NotEmpty(t, rec.ComponentHealth(models.CategoryServices))

	found := false
	for _, alert := range o.Alerts() {
		if alert.Subject == "payment" {
			found = true
		}
	}
	assert.True(t, found, "offline service should produce an alert after the cycle")
}

func TestCycleUpdatesScorecard(t *testing.T) {
	collector := scorecard.NewCollector(nil)
	o, _ := newTestOrchestrator(t, func(d *Deps) {
		d.Scorecard = collector
	})

	o.RunFullCycle(context.Background(), nil)

	assert.Greater(t, collector.CalculateHealthScore(), 0.0)
	if _, ok := collector.Metric("refresh.duration_seconds"); !ok {
		t.Fatal("cycle duration metric not pushed")
	}
}

func TestLastOutcomeIsCopied(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)
	o.RunFullCycle(context.Background(), nil)

	first := o.LastOutcome()
	require.NotNil(t, first)
	first.Status = "mangled"

	second := o.LastOutcome()
	assert.NotEqual(t, "mangled", second.Status)
}
