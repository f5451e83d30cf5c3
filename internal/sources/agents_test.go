package sources

import (
	"context"
	"os"
	"testing"

	"github.com/mlegrand/fleetdeck/internal/models"
)

func TestSampleStoppedWithoutPID(t *testing.T) {
	sampler := NewAgentSampler()
	out := sampler.Sample(context.Background(), []models.AgentStatus{
		{ID: "worker-1", Name: "Worker 1", PID: 0},
	})

	if out[0].Status != models.AgentStopped || out[0].Health != models.StatusOffline {
		t.Fatalf("agent without pid = %+v", out[0])
	}
}

func TestSampleStoppedWhenPIDGone(t *testing.T) {
	prev := pidExists
	pidExists = func(ctx context.Context, pid int32) (bool, error) { return false, nil }
	defer func() { pidExists = prev }()

	sampler := NewAgentSampler()
	out := sampler.Sample(context.Background(), []models.AgentStatus{
		{ID: "worker-1", PID: 99999, CPU: 55, Memory: 12},
	})

	if out[0].Status != models.AgentStopped {
		t.Fatalf("status = %q, want stopped", out[0].Status)
	}
	if out[0].CPU != 0 || out[0].Memory != 0 {
		t.Fatalf("stopped agent should report zero usage: %+v", out[0])
	}
}

func TestSampleRunningAgent(t *testing.T) {
	// The test process itself is the one PID guaranteed to exist.
	sampler := NewAgentSampler()
	out := sampler.Sample(context.Background(), []models.AgentStatus{
		{ID: "self-test", PID: int32(os.Getpid())},
	})

	if out[0].Status != models.AgentRunning {
		t.Fatalf("status = %q, want running", out[0].Status)
	}
	if out[0].Health == models.StatusOffline {
		t.Fatalf("health = %q for a live process", out[0].Health)
	}
}

func TestSamplePreservesOrder(t *testing.T) {
	prev := pidExists
	pidExists = func(ctx context.Context, pid int32) (bool, error) { return false, nil }
	defer func() { pidExists = prev }()

	sampler := NewAgentSampler()
	in := []models.AgentStatus{
		{ID: "a", PID: 1111},
		{ID: "b", PID: 2222},
		{ID: "c"},
	}
	out := sampler.Sample(context.Background(), in)
	if len(out) != 3 || out[0].ID != "a" || out[2].ID != "c" {
		t.Fatalf("order not preserved: %+v", out)
	}
}
