// Package refresh drives the refresh cycles: a full ordered pass over
// every category, or a selective pass over named components. Per-step
// failures are isolated and recorded; only a defect in the orchestrator
// itself surfaces as a cycle-level error.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mlegrand/fleetdeck/internal/alerts"
	"github.com/mlegrand/fleetdeck/internal/config"
	"github.com/mlegrand/fleetdeck/internal/history"
	"github.com/mlegrand/fleetdeck/internal/models"
	"github.com/mlegrand/fleetdeck/internal/scorecard"
)

// HealthProbe checks service health endpoints.
type HealthProbe interface {
	Check(ctx context.Context, endpoint config.ServiceEndpoint) models.ServiceStatus
	SelfCheck(endpoint config.ServiceEndpoint) models.ServiceStatus
}

// SystemProbe samples host resource utilisation.
type SystemProbe interface {
	Sample(ctx context.Context) (models.SystemMetrics, error)
}

// AgentProbe re-evaluates agent processes.
type AgentProbe interface {
	Sample(ctx context.Context, agents []models.AgentStatus) []models.AgentStatus
}

// OrgReader reads the organizational store.
type OrgReader interface {
	Health(ctx context.Context) models.DatabaseHealth
	TableCounts(ctx context.Context) (map[string]int, error)
	CollectMetrics(ctx context.Context) (models.OrganizationalMetrics, error)
	FetchOrganization(ctx context.Context) (models.OrganizationalData, error)
	FetchDepartments(ctx context.Context) (models.DepartmentsData, error)
}

// Collaborator is the external aggregate-metrics sink.
type Collaborator interface {
	UpdateCategory(name string, fields scorecard.CategoryFields)
	UpdateMetric(path string, value float64)
	CalculateHealthScore() float64
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	State     *models.State
	Config    *config.Config
	Health    HealthProbe
	System    SystemProbe
	Agents    AgentProbe
	Org       OrgReader
	Recorder  *history.Recorder
	Evaluator *alerts.Evaluator
	Scorecard Collaborator
}

// Orchestrator sequences refresh cycles over the shared state store.
type Orchestrator struct {
	state     *models.State
	cfg       *config.Config
	health    HealthProbe
	system    SystemProbe
	agents    AgentProbe
	org       OrgReader
	recorder  *history.Recorder
	evaluator *alerts.Evaluator
	scorecard Collaborator

	mu           sync.RWMutex
	activeAlerts []alerts.Alert
	lastOutcome  *models.RefreshOutcome
	onCycle      CycleCallback
}

// New creates an orchestrator.
func New(deps Deps) *Orchestrator {
	return &Orchestrator{
		state:     deps.State,
		cfg:       deps.Config,
		health:    deps.Health,
		system:    deps.System,
		agents:    deps.Agents,
		org:       deps.Org,
		recorder:  deps.Recorder,
		evaluator: deps.Evaluator,
		scorecard: deps.Scorecard,
	}
}

// step is one independently-isolated unit of a full cycle.
type step struct {
	name  string
	label string
	run   func(ctx context.Context) error
}

// RunFullCycle executes the fixed ordered step list. Each step is
// independently recovered; a failing step is logged and skipped. The
// in-progress flag is cleared on every exit path.
func (o *Orchestrator) RunFullCycle(ctx context.Context, progress ProgressFunc) (outcome models.RefreshOutcome) {
	outcome.StartedAt = time.Now()

	if !o.state.TryBeginRefresh() {
		log.Debug().Msg("Refresh already in progress, skipping full cycle")
		outcome.Status = models.OutcomeError
		outcome.Message = "refresh already in progress"
		return outcome
	}

	start := time.Now()
	defer func() {
		// Outer recover: only an orchestrator defect lands here, never a
		// single source failure.
		if r := recover(); r != nil {
			outcome.Status = models.OutcomeError
			outcome.Message = fmt.Sprintf("refresh cycle panic: %v", r)
			log.Error().Interface("panic", r).Msg("Refresh cycle failed")
		}
		outcome.Duration = time.Since(start)
		o.finishCycle(&outcome)
	}()

	o.clearCaches()

	steps := o.fullCycleSteps()
	total := len(steps)
	for i, st := range steps {
		progress.emit(ProgressEvent{Kind: KindStep, Index: i + 1, Total: total, Label: st.label})

		if err := o.runIsolated(ctx, st); err != nil {
			outcome.Failed = append(outcome.Failed, models.ComponentError{Component: st.name, Error: err.Error()})
			log.Warn().Err(err).Str("step", st.name).Msg("Refresh step failed, continuing")
			continue
		}
		outcome.Refreshed = append(outcome.Refreshed, st.name)
	}

	outcome.Status = outcome.Overall()
	return outcome
}

// fullCycleSteps builds the ordered step list: system metrics, database
// health, database detail, self-status, each remote health check, agent
// status, organizational data, departments, metrics aggregation, registry
// summary.
func (o *Orchestrator) fullCycleSteps() []step {
	steps := []step{
		{name: "system_metrics", label: "Sampling system metrics", run: o.refreshSystemMetrics},
		{name: "database_health", label: "Checking database health", run: o.refreshDatabaseHealth},
		{name: "database_detail", label: "Reading database detail", run: o.refreshDatabaseDetail},
		{name: "self_status", label: "Recording self status", run: o.refreshSelfStatus},
	}

	for _, endpoint := range o.cfg.Services {
		if endpoint.ID == o.cfg.SelfID {
			continue
		}
		ep := endpoint
		steps = append(steps, step{
			name:  "service:" + ep.ID,
			label: "Checking " + ep.Name,
			run: func(ctx context.Context) error {
				o.state.UpdateService(o.health.Check(ctx, ep))
				return nil
			},
		})
	}

	steps = append(steps,
		step{name: "agents_status", label: "Sampling agent processes", run: o.refreshAgents},
		step{name: "organizational_data", label: "Refreshing organizational data", run: o.refreshOrganization},
		step{name: "departments_data", label: "Refreshing departments", run: o.refreshDepartments},
		step{name: "organizational_metrics", label: "Aggregating organizational metrics", run: o.refreshOrgMetrics},
		step{name: "registry_data", label: "Summarizing registry", run: o.refreshRegistry},
	)
	return steps
}

// runIsolated executes one step, converting panics into step errors so the
// cycle proceeds.
func (o *Orchestrator) runIsolated(ctx context.Context, st step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step panic: %v", r)
		}
	}()
	return st.run(ctx)
}

// DefaultComponents is the standard selective-refresh subset.
func DefaultComponents() []string {
	return []string{
		string(models.CategoryServices),
		string(models.CategoryAgents),
		string(models.CategorySystem),
		string(models.CategoryDatabase),
	}
}

// RefreshComponents refreshes an explicit list of named components.
// Unknown names are logged and reported as skipped, not errors. Progress
// events use the component shape.
func (o *Orchestrator) RefreshComponents(ctx context.Context, components []string, progress ProgressFunc) (outcome models.RefreshOutcome) {
	outcome.StartedAt = time.Now()

	if len(components) == 0 {
		components = DefaultComponents()
	}

	if !o.state.TryBeginRefresh() {
		outcome.Status = models.OutcomeError
		outcome.Message = "refresh already in progress"
		return outcome
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			outcome.Status = models.OutcomeError
			outcome.Message = fmt.Sprintf("refresh cycle panic: %v", r)
			log.Error().Interface("panic", r).Msg("Selective refresh failed")
		}
		outcome.Duration = time.Since(start)
		o.finishCycle(&outcome)
	}()

	o.clearCaches()

	table := o.componentTable()
	total := len(components)
	for i, name := range components {
		percent := float64(i+1) / float64(total) * 100

		fn, ok := table[name]
		if !ok {
			log.Warn().Str("component", name).Msg("Unknown refresh component, skipping")
			outcome.Skipped = append(outcome.Skipped, name)
			progress.emit(ProgressEvent{
				Kind: KindComponent, Component: name, Status: ComponentError,
				Percent: percent, Error: "unknown component",
			})
			continue
		}

		progress.emit(ProgressEvent{
			Kind: KindComponent, Component: name, Status: ComponentRunning,
			Percent: percent, Message: "refreshing " + name,
		})

		stepStart := time.Now()
		if err := o.runIsolated(ctx, step{name: name, run: fn}); err != nil {
			outcome.Failed = append(outcome.Failed, models.ComponentError{Component: name, Error: err.Error()})
			progress.emit(ProgressEvent{
				Kind: KindComponent, Component: name, Status: ComponentError,
				Percent: percent, Error: err.Error(), Duration: time.Since(stepStart),
			})
			continue
		}

		outcome.Refreshed = append(outcome.Refreshed, name)
		progress.emit(ProgressEvent{
			Kind: KindComponent, Component: name, Status: ComponentCompleted,
			Percent: percent, Duration: time.Since(stepStart),
		})
	}

	outcome.Status = outcome.Overall()
	return outcome
}

// componentTable maps selective-refresh names to their refresh functions.
func (o *Orchestrator) componentTable() map[string]func(ctx context.Context) error {
	return map[string]func(ctx context.Context) error{
		string(models.CategoryServices):     o.refreshServices,
		string(models.CategoryAgents):       o.refreshAgents,
		string(models.CategorySystem):       o.refreshSystemMetrics,
		string(models.CategoryDatabase):     o.refreshDatabaseHealth,
		string(models.CategoryRegistry):     o.refreshRegistry,
		string(models.CategoryDepartments):  o.refreshDepartments,
		string(models.CategoryOrganization): o.refreshOrganization,
		string(models.CategoryOrgMetrics):   o.refreshOrgMetrics,
	}
}

// refreshServices probes every configured endpoint with bounded
// concurrency, then replaces the category whole in declaration order.
func (o *Orchestrator) refreshServices(ctx context.Context) error {
	endpoints := o.cfg.Services
	results := make([]models.ServiceStatus, len(endpoints))

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.HealthConcurrency)
	for i, endpoint := range endpoints {
		i, endpoint := i, endpoint
		g.Go(func() error {
			results[i] = o.health.Check(groupCtx, endpoint)
			return nil
		})
	}
	// Probe failures become statuses, never errors.
	_ = g.Wait()

	o.state.UpdateServices(results)
	for _, svc := range results {
		o.recorder.RecordHealth(models.CategoryServices, svc.ID, svc.Status, svc.Details)
	}
	return nil
}

func (o *Orchestrator) refreshSelfStatus(context.Context) error {
	endpoint, ok := o.cfg.ServiceByID(o.cfg.SelfID)
	if !ok {
		return fmt.Errorf("self endpoint %q not configured", o.cfg.SelfID)
	}
	status := o.health.SelfCheck(endpoint)
	o.state.UpdateService(status)
	o.recorder.RecordHealth(models.CategoryServices, status.ID, status.Status, status.Details)
	return nil
}

func (o *Orchestrator) refreshSystemMetrics(ctx context.Context) error {
	metrics, err := o.system.Sample(ctx)
	if err != nil {
		return fmt.Errorf("sample system metrics: %w", err)
	}
	o.state.UpdateSystemMetrics(metrics)
	o.recorder.RecordHealth(models.CategorySystem, "host", models.StatusHealthy,
		fmt.Sprintf("cpu=%.1f%% mem=%.1f%% disk=%.1f%%", metrics.CPUPercent, metrics.MemPercent, metrics.DiskPercent))
	return nil
}

func (o *Orchestrator) refreshDatabaseHealth(ctx context.Context) error {
	if o.org == nil {
		return fmt.Errorf("org store not configured")
	}
	health := o.org.Health(ctx)
	o.state.UpdateDatabaseHealth(health)
	o.recorder.RecordHealth(models.CategoryDatabase, "org", health.Status, health.Error)
	if health.Status == models.StatusOffline {
		return fmt.Errorf("org database offline: %s", health.Error)
	}
	return nil
}

// refreshDatabaseDetail enriches the database category with per-table
// counts.
func (o *Orchestrator) refreshDatabaseDetail(ctx context.Context) error {
	if o.org == nil {
		return fmt.Errorf("org store not configured")
	}
	counts, err := o.org.TableCounts(ctx)
	if err != nil {
		return fmt.Errorf("table counts: %w", err)
	}
	health := o.state.DatabaseHealth()
	health.TableCounts = counts
	o.state.UpdateDatabaseHealth(health)
	return nil
}

func (o *Orchestrator) refreshAgents(ctx context.Context) error {
	sampled := o.agents.Sample(ctx, o.state.Agents())
	o.state.UpdateAgents(sampled)
	for _, agent := range sampled {
		o.recorder.RecordHealth(models.CategoryAgents, agent.ID, agent.Health, agent.Status)
	}
	return nil
}

func (o *Orchestrator) refreshOrganization(ctx context.Context) error {
	if o.org == nil {
		return fmt.Errorf("org store not configured")
	}
	data, err := o.org.FetchOrganization(ctx)
	if err != nil {
		return fmt.Errorf("fetch organization: %w", err)
	}
	o.state.UpdateOrganization(data)
	return nil
}

func (o *Orchestrator) refreshDepartments(ctx context.Context) error {
	if o.org == nil {
		return fmt.Errorf("org store not configured")
	}
	data, err := o.org.FetchDepartments(ctx)
	if err != nil {
		return fmt.Errorf("fetch departments: %w", err)
	}
	o.state.UpdateDepartments(data)
	return nil
}

// refreshOrgMetrics aggregates counts/percentages. An aggregation failure
// is replaced with an all-zero metrics object rather than propagated.
func (o *Orchestrator) refreshOrgMetrics(ctx context.Context) error {
	if o.org == nil {
		o.state.UpdateOrgMetrics(models.ZeroOrganizationalMetrics())
		return nil
	}
	metrics, err := o.org.CollectMetrics(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Organizational metrics aggregation failed, using zero defaults")
		o.state.UpdateOrgMetrics(models.ZeroOrganizationalMetrics())
		o.recorder.RecordHealth(models.CategoryOrgMetrics, "aggregation", models.StatusDegraded, err.Error())
		return nil
	}
	o.state.UpdateOrgMetrics(metrics)
	o.recorder.RecordHealth(models.CategoryOrgMetrics, "aggregation", models.StatusHealthy, "")
	return nil
}

// refreshRegistry summarizes the registry view from the registry service
// entry plus current counts.
func (o *Orchestrator) refreshRegistry(context.Context) error {
	services := o.state.Services()
	status := models.StatusUnknown
	for _, svc := range services {
		if svc.ID == "registry" {
			status = svc.Status
			break
		}
	}
	o.state.UpdateRegistry(models.RegistryData{
		Status:       status,
		ServiceCount: len(services),
		AgentCount:   len(o.state.Agents()),
		LastCheck:    time.Now(),
	})
	return nil
}

// clearCaches drops derived values before a cycle starts.
func (o *Orchestrator) clearCaches() {
	o.mu.Lock()
	o.activeAlerts = nil
	o.lastOutcome = nil
	o.mu.Unlock()
}

// finishCycle runs on every cycle exit path: clears the in-progress flag,
// stamps bookkeeping, synchronizes projections, evaluates alerts, and
// records the cycle event.
func (o *Orchestrator) finishCycle(outcome *models.RefreshOutcome) {
	o.state.EndRefresh()
	o.state.RecordCycle(outcome.Duration)

	o.synchronize(outcome)

	snap := o.state.GetSnapshot()
	evaluated := o.evaluator.Evaluate(snap)

	o.mu.Lock()
	o.activeAlerts = evaluated
	copied := *outcome
	o.lastOutcome = &copied
	o.mu.Unlock()

	o.recorder.RecordEvent("refresh_"+outcome.Status,
		fmt.Sprintf("refreshed=%d failed=%d skipped=%d in %s",
			len(outcome.Refreshed), len(outcome.Failed), len(outcome.Skipped), outcome.Duration.Round(time.Millisecond)))

	log.Info().
		Str("status", outcome.Status).
		Int("refreshed", len(outcome.Refreshed)).
		Int("failed", len(outcome.Failed)).
		Dur("duration", outcome.Duration).
		Msg("Refresh cycle finished")
}

// Alerts returns the alerts computed at the end of the last cycle.
func (o *Orchestrator) Alerts() []alerts.Alert {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]alerts.Alert{}, o.activeAlerts...)
}

// LastOutcome returns the outcome of the most recent cycle, if any.
func (o *Orchestrator) LastOutcome() *models.RefreshOutcome {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.lastOutcome == nil {
		return nil
	}
	copied := *o.lastOutcome
	return &copied
}
