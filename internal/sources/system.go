package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	gocpu "github.com/shirou/gopsutil/v4/cpu"
	godisk "github.com/shirou/gopsutil/v4/disk"
	gomem "github.com/shirou/gopsutil/v4/mem"
	gonet "github.com/shirou/gopsutil/v4/net"
	goproc "github.com/shirou/gopsutil/v4/process"

	"github.com/mlegrand/fleetdeck/internal/models"
)

const bytesPerGB = 1024 * 1024 * 1024

// System call wrappers for testing
var (
	cpuPercent     = gocpu.PercentWithContext
	virtualMemory  = gomem.VirtualMemoryWithContext
	diskUsage      = godisk.UsageWithContext
	netConnections = gonet.ConnectionsWithContext
	processPids    = goproc.PidsWithContext
)

// SystemSampler reads host resource utilisation from the OS.
type SystemSampler struct {
	diskPath string
}

// NewSystemSampler creates a sampler measuring disk usage at the given
// mount point ("/" when empty).
func NewSystemSampler(diskPath string) *SystemSampler {
	if diskPath == "" {
		diskPath = "/"
	}
	return &SystemSampler{diskPath: diskPath}
}

// Sample gathers a point-in-time resource snapshot. Individual probe
// failures degrade to zero values instead of failing the whole sample;
// only a memory read failure is treated as fatal.
func (s *SystemSampler) Sample(ctx context.Context) (models.SystemMetrics, error) {
	sampleCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	metrics := models.SystemMetrics{SampledAt: time.Now()}

	if percentages, err := cpuPercent(sampleCtx, time.Second, false); err == nil && len(percentages) > 0 {
		metrics.CPUPercent = clampPercent(percentages[0])
	}

	memStats, err := virtualMemory(sampleCtx)
	if err != nil {
		return models.SystemMetrics{}, fmt.Errorf("memory stats: %w", err)
	}
	metrics.MemPercent = memStats.UsedPercent
	metrics.MemUsedGB = float64(memStats.Used) / bytesPerGB
	metrics.MemTotalGB = float64(memStats.Total) / bytesPerGB

	if usage, err := diskUsage(sampleCtx, s.diskPath); err == nil && usage.Total > 0 {
		metrics.DiskPercent = usage.UsedPercent
		metrics.DiskUsedGB = float64(usage.Used) / bytesPerGB
		metrics.DiskTotalGB = float64(usage.Total) / bytesPerGB
	}

	metrics.Connections = s.countConnections(sampleCtx)

	if pids, err := processPids(sampleCtx); err == nil {
		metrics.ProcessCount = len(pids)
	}

	return metrics, nil
}

// countConnections enumerates TCP connections. Enumerating every socket
// can fail without elevated permissions; in that case fall back to a
// narrower listening-sockets-only count rather than failing the sample.
func (s *SystemSampler) countConnections(ctx context.Context) int {
	conns, err := netConnections(ctx, "tcp")
	if err == nil {
		return len(conns)
	}

	log.Debug().Err(err).Msg("Full connection enumeration failed, counting listening sockets only")

	listening, err := netConnections(ctx, "tcp4")
	if err != nil {
		return 0
	}
	count := 0
	for _, conn := range listening {
		if conn.Status == "LISTEN" {
			count++
		}
	}
	return count
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
