// Package config loads FleetDeck configuration from defaults, an optional
// JSON file, a .env file, and FLEETDECK_* environment overrides, in that
// order of precedence.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const envPrefix = "FLEETDECK_"

// ServiceEndpoint is one entry of the static health-check table.
type ServiceEndpoint struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Host string `json:"host,omitempty"`
	Port int    `json:"port"`
}

// Thresholds holds the alert evaluation thresholds (percent).
type Thresholds struct {
	CPU    float64 `json:"cpu"`
	Memory float64 `json:"memory"`
	Disk   float64 `json:"disk"`
}

// Config holds all application configuration.
type Config struct {
	// Server settings
	ListenHost string `json:"listenHost"`
	ListenPort int    `json:"listenPort"`
	DataPath   string `json:"dataPath"`

	// Refresh settings
	RefreshInterval    time.Duration `json:"refreshInterval"`
	HealthCheckTimeout time.Duration `json:"healthCheckTimeout"`
	SnapshotInterval   time.Duration `json:"snapshotInterval"`
	HealthConcurrency  int           `json:"healthConcurrency"`

	// Sources
	Services      []ServiceEndpoint `json:"services"`
	SelfID        string            `json:"selfId"`
	OrgDBPath     string            `json:"orgDbPath"`
	BootstrapPath string            `json:"bootstrapPath"`
	SnapshotPath  string            `json:"snapshotPath"`

	// History buffers
	HistoryCap int `json:"historyCap"`
	EventCap   int `json:"eventCap"`

	// Alerting
	Thresholds Thresholds `json:"thresholds"`

	// Logging settings
	LogLevel  string `json:"logLevel"`
	LogFormat string `json:"logFormat"`
}

// DefaultServices is the static component/port table of the fleet.
func DefaultServices() []ServiceEndpoint {
	return []ServiceEndpoint{
		{ID: "registry", Name: "Service Registry", Port: 8000},
		{ID: "filesystem", Name: "Filesystem Service", Port: 8001},
		{ID: "llm", Name: "LLM Service", Port: 8005},
		{ID: "payment", Name: "Payment Service", Port: 8006},
		{ID: "analytics", Name: "Analytics Service", Port: 8007},
		{ID: "customer", Name: "Customer Service", Port: 8008},
		{ID: "database", Name: "Database Service", Port: 8010},
		{ID: "screenshot", Name: "Screenshot Service", Port: 8011},
		{ID: "self", Name: "FleetDeck Core", Port: 8888},
		{ID: "cortex-ui", Name: "Cortex UI", Port: 8889},
		{ID: "comms-center", Name: "Comms Center", Port: 8890},
	}
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		ListenHost:         "0.0.0.0",
		ListenPort:         8888,
		DataPath:           "/var/lib/fleetdeck",
		RefreshInterval:    30 * time.Second,
		HealthCheckTimeout: 15 * time.Second,
		SnapshotInterval:   60 * time.Second,
		HealthConcurrency:  5,
		Services:           DefaultServices(),
		SelfID:             "self",
		HistoryCap:         100,
		EventCap:           100,
		Thresholds: Thresholds{
			CPU:    90,
			Memory: 90,
			Disk:   90,
		},
		LogLevel:  "info",
		LogFormat: "auto",
	}
}

// Load builds the configuration from all sources.
func Load() (*Config, error) {
	cfg := Default()

	// .env is optional; missing files are fine.
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("Loaded environment from .env")
	}

	if path := os.Getenv(envPrefix + "CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	} else if err := cfg.loadFile(filepath.Join(cfg.DataPath, "fleetdeck.json")); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Failed to load config file, using defaults")
	}

	cfg.applyEnv()

	if cfg.OrgDBPath == "" {
		cfg.OrgDBPath = filepath.Join(cfg.DataPath, "org.db")
	}
	if cfg.SnapshotPath == "" {
		cfg.SnapshotPath = filepath.Join(cfg.DataPath, "snapshot.json")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	log.Info().Str("path", path).Msg("Loaded configuration file")
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(envPrefix + "LISTEN_HOST"); v != "" {
		c.ListenHost = v
	}
	if v := os.Getenv(envPrefix + "LISTEN_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.ListenPort = port
		}
	}
	if v := os.Getenv(envPrefix + "DATA_PATH"); v != "" {
		c.DataPath = v
	}
	if v := os.Getenv(envPrefix + "REFRESH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RefreshInterval = d
		}
	}
	if v := os.Getenv(envPrefix + "HEALTH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HealthCheckTimeout = d
		}
	}
	if v := os.Getenv(envPrefix + "ORG_DB"); v != "" {
		c.OrgDBPath = v
	}
	if v := os.Getenv(envPrefix + "BOOTSTRAP_FILE"); v != "" {
		c.BootstrapPath = v
	}
	if v := os.Getenv(envPrefix + "SNAPSHOT_FILE"); v != "" {
		c.SnapshotPath = v
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(envPrefix + "LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
}

// Validate checks the final configuration for plainly unusable values.
func (c *Config) Validate() error {
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("invalid listen port %d", c.ListenPort)
	}
	if c.RefreshInterval < time.Second {
		return fmt.Errorf("refresh interval %s too short, minimum 1s", c.RefreshInterval)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("health check timeout must be positive")
	}
	if c.HistoryCap < 1 || c.EventCap < 1 {
		return fmt.Errorf("buffer caps must be at least 1")
	}
	if c.HealthConcurrency < 1 {
		return fmt.Errorf("health concurrency must be at least 1")
	}
	seen := make(map[string]struct{}, len(c.Services))
	for _, svc := range c.Services {
		if strings.TrimSpace(svc.ID) == "" {
			return fmt.Errorf("service with empty id in service table")
		}
		if _, dup := seen[svc.ID]; dup {
			return fmt.Errorf("duplicate service id %q", svc.ID)
		}
		seen[svc.ID] = struct{}{}
	}
	return nil
}

// ServiceByID looks up a configured service endpoint.
func (c *Config) ServiceByID(id string) (ServiceEndpoint, bool) {
	for _, svc := range c.Services {
		if svc.ID == id {
			return svc, true
		}
	}
	return ServiceEndpoint{}, false
}

// BaseURL returns the probe URL base for an endpoint.
func (e ServiceEndpoint) BaseURL() string {
	host := e.Host
	if host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, e.Port)
}
