package refresh

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mlegrand/fleetdeck/internal/models"
	"github.com/mlegrand/fleetdeck/internal/sources"
)

// CycleCallback receives the finished snapshot and outcome after each
// timer-driven cycle, used for websocket broadcasting.
type CycleCallback func(snapshot models.Snapshot, outcome models.RefreshOutcome)

// SetCycleCallback installs the post-cycle hook. Must be called before
// Start.
func (o *Orchestrator) SetCycleCallback(cb CycleCallback) {
	o.mu.Lock()
	o.onCycle = cb
	o.mu.Unlock()
}

func (o *Orchestrator) cycleCallback() CycleCallback {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.onCycle
}

// Start drives periodic full cycles and snapshot persistence until the
// context is cancelled. An immediate cycle runs on startup.
func (o *Orchestrator) Start(ctx context.Context) {
	log.Info().
		Dur("refreshInterval", o.cfg.RefreshInterval).
		Dur("snapshotInterval", o.cfg.SnapshotInterval).
		Msg("Starting refresh loop")

	refreshTicker := time.NewTicker(o.cfg.RefreshInterval)
	defer refreshTicker.Stop()

	persistTicker := time.NewTicker(o.cfg.SnapshotInterval)
	defer persistTicker.Stop()

	o.runTimerCycle(ctx)

	for {
		select {
		case <-refreshTicker.C:
			o.runTimerCycle(ctx)

		case <-persistTicker.C:
			o.persistSnapshot()

		case <-ctx.Done():
			o.persistSnapshot()
			log.Info().Msg("Refresh loop stopped")
			return
		}
	}
}

// runTimerCycle runs one full cycle in a goroutine so a slow source never
// blocks the ticker. Overlap with an on-demand cycle is prevented by the
// in-progress guard.
func (o *Orchestrator) runTimerCycle(ctx context.Context) {
	go func() {
		outcome := o.RunFullCycle(ctx, nil)
		if cb := o.cycleCallback(); cb != nil && outcome.Message != "refresh already in progress" {
			cb(o.state.GetSnapshot(), outcome)
		}
	}()
}

// persistSnapshot writes the current snapshot to disk.
func (o *Orchestrator) persistSnapshot() {
	if o.cfg.SnapshotPath == "" {
		return
	}
	snap := o.state.GetSnapshot()
	err := sources.SaveSnapshot(o.cfg.SnapshotPath, sources.PersistedSnapshot{
		LastUpdate:    snap.LastRefresh,
		Services:      snap.Services,
		Agents:        snap.Agents,
		SystemMetrics: snap.System,
		HealthHistory: o.recorder.Health(),
	})
	if err != nil {
		log.Warn().Err(err).Str("path", o.cfg.SnapshotPath).Msg("Failed to persist snapshot")
		return
	}
	log.Debug().Str("path", o.cfg.SnapshotPath).Msg("Snapshot persisted")
}

// SeedFromFiles pre-seeds state from the persisted snapshot and the
// launcher bootstrap file. Missing files are skipped silently; unreadable
// files are logged and skipped.
func (o *Orchestrator) SeedFromFiles() {
	if o.cfg.SnapshotPath != "" {
		snap, err := sources.LoadSnapshot(o.cfg.SnapshotPath)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("Failed to load persisted snapshot")
		case snap != nil:
			if len(snap.Services) > 0 {
				o.state.UpdateServices(snap.Services)
			}
			if len(snap.Agents) > 0 {
				o.state.UpdateAgents(snap.Agents)
			}
			o.state.UpdateSystemMetrics(snap.SystemMetrics)
			o.recorder.Seed(snap.HealthHistory)
		}
	}

	o.SeedFromBootstrap()
}

// SeedFromBootstrap applies the launcher bootstrap file on top of current
// state. Also used by the bootstrap file watcher on change.
func (o *Orchestrator) SeedFromBootstrap() {
	if o.cfg.BootstrapPath == "" {
		return
	}
	state, err := sources.LoadBootstrap(o.cfg.BootstrapPath)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load bootstrap file")
		return
	}
	if state == nil {
		return
	}
	for _, svc := range state.Services {
		o.state.UpdateService(svc)
	}
	if len(state.Agents) > 0 {
		o.state.UpdateAgents(state.Agents)
	}
}
