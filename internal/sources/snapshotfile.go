package sources

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mlegrand/fleetdeck/internal/models"
)

const snapshotFilePerm = 0o644

// PersistedSnapshot is the on-disk snapshot format, written periodically
// and read once at startup to pre-seed state.
type PersistedSnapshot struct {
	LastUpdate    time.Time                   `json:"lastUpdate"`
	Services      []models.ServiceStatus      `json:"services"`
	Agents        []models.AgentStatus        `json:"agents"`
	SystemMetrics models.SystemMetrics        `json:"systemMetrics"`
	HealthHistory []models.HealthHistoryEntry `json:"healthHistory"`
	Timestamp     time.Time                   `json:"timestamp"`
}

// LoadSnapshot reads a previously persisted snapshot file. A missing file
// is not an error; it simply yields nil.
func LoadSnapshot(path string) (*PersistedSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snap PersistedSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", path, err)
	}

	log.Info().
		Str("path", path).
		Int("services", len(snap.Services)).
		Int("agents", len(snap.Agents)).
		Time("savedAt", snap.Timestamp).
		Msg("Loaded persisted snapshot")
	return &snap, nil
}

// SaveSnapshot writes the snapshot atomically via a temp file and rename.
func SaveSnapshot(path string, snap PersistedSnapshot) error {
	snap.Timestamp = time.Now()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, snapshotFilePerm); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// bootstrapEntry is one service or agent record of the bootstrap file
// produced by the launcher process.
type bootstrapEntry struct {
	Status  string `json:"status"`
	Details struct {
		Port int   `json:"port"`
		PID  int32 `json:"pid"`
	} `json:"details"`
	LastUpdate time.Time `json:"lastUpdate"`
}

// bootstrapFile mirrors the launcher's output shape.
type bootstrapFile struct {
	Services   map[string]bootstrapEntry `json:"services"`
	MCPServers map[string]bootstrapEntry `json:"mcpServers"`
	Agents     map[string]bootstrapEntry `json:"agents"`
}

// BootstrapState is the normalized result of reading the bootstrap file.
type BootstrapState struct {
	Services []models.ServiceStatus
	Agents   []models.AgentStatus
}

// NormalizeStatus maps launcher status values onto service health values.
func NormalizeStatus(status string) string {
	switch status {
	case "running":
		return models.StatusHealthy
	case "starting":
		return models.StatusStarting
	case "offline":
		return models.StatusOffline
	default:
		return status
	}
}

// LoadBootstrap reads the launcher bootstrap file and normalizes its
// status values. A missing file is not an error.
func LoadBootstrap(path string) (*BootstrapState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read bootstrap: %w", err)
	}

	var file bootstrapFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse bootstrap %s: %w", path, err)
	}

	state := &BootstrapState{}

	for name, entry := range file.Services {
		state.Services = append(state.Services, models.ServiceStatus{
			ID:        name,
			Name:      name,
			Port:      entry.Details.Port,
			Status:    NormalizeStatus(entry.Status),
			LastCheck: entry.LastUpdate,
		})
	}
	// MCP servers surface alongside regular services.
	for name, entry := range file.MCPServers {
		state.Services = append(state.Services, models.ServiceStatus{
			ID:        name,
			Name:      name,
			Port:      entry.Details.Port,
			Status:    NormalizeStatus(entry.Status),
			LastCheck: entry.LastUpdate,
		})
	}

	for name, entry := range file.Agents {
		status := models.AgentStopped
		health := models.StatusOffline
		if entry.Status == "running" {
			status = models.AgentRunning
			health = models.StatusHealthy
		}
		state.Agents = append(state.Agents, models.AgentStatus{
			ID:     name,
			Name:   name,
			Status: status,
			PID:    entry.Details.PID,
			Health: health,
		})
	}

	log.Info().
		Str("path", path).
		Int("services", len(state.Services)).
		Int("agents", len(state.Agents)).
		Msg("Loaded bootstrap state")
	return state, nil
}
