package sources

import (
	"context"
	"time"

	goproc "github.com/shirou/gopsutil/v4/process"

	"github.com/mlegrand/fleetdeck/internal/models"
)

// Process probe wrappers for testing
var (
	pidExists  = goproc.PidExistsWithContext
	newProcess = goproc.NewProcessWithContext
)

// AgentSampler refreshes agent run state and resource usage from the local
// process table.
type AgentSampler struct{}

// NewAgentSampler creates an agent sampler.
func NewAgentSampler() *AgentSampler {
	return &AgentSampler{}
}

// Sample re-evaluates each known agent against the process table. An agent
// whose PID is gone is reported stopped/offline; per-agent probe errors
// never fail the whole sample.
func (a *AgentSampler) Sample(ctx context.Context, agents []models.AgentStatus) []models.AgentStatus {
	out := make([]models.AgentStatus, 0, len(agents))
	for _, agent := range agents {
		out = append(out, a.sampleOne(ctx, agent))
	}
	return out
}

func (a *AgentSampler) sampleOne(ctx context.Context, agent models.AgentStatus) models.AgentStatus {
	if agent.PID <= 0 {
		return stoppedAgent(agent)
	}

	exists, err := pidExists(ctx, agent.PID)
	if err != nil || !exists {
		return stoppedAgent(agent)
	}

	agent.Status = models.AgentRunning
	agent.Health = models.StatusHealthy

	proc, err := newProcess(ctx, agent.PID)
	if err != nil {
		// Running but unreadable: keep the run state, degrade health.
		agent.Health = models.StatusDegraded
		return agent
	}

	if cpu, err := proc.CPUPercentWithContext(ctx); err == nil {
		agent.CPU = cpu
	}
	if mem, err := proc.MemoryPercentWithContext(ctx); err == nil {
		agent.Memory = float64(mem)
	}
	if createMs, err := proc.CreateTimeWithContext(ctx); err == nil && createMs > 0 {
		agent.StartTime = time.UnixMilli(createMs)
	}
	return agent
}

func stoppedAgent(agent models.AgentStatus) models.AgentStatus {
	agent.Status = models.AgentStopped
	agent.Health = models.StatusOffline
	agent.CPU = 0
	agent.Memory = 0
	return agent
}
