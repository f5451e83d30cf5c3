package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if len(cfg.Services) != 11 {
		t.Fatalf("expected 11 default services, got %d", len(cfg.Services))
	}
	if _, ok := cfg.ServiceByID("self"); !ok {
		t.Fatal("self endpoint missing from default table")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"bad port":         func(c *Config) { c.ListenPort = 0 },
		"short interval":   func(c *Config) { c.RefreshInterval = 100 * time.Millisecond },
		"zero timeout":     func(c *Config) { c.HealthCheckTimeout = 0 },
		"zero history cap": func(c *Config) { c.HistoryCap = 0 },
		"duplicate id":     func(c *Config) { c.Services = append(c.Services, ServiceEndpoint{ID: "self", Port: 9999}) },
		"empty id":         func(c *Config) { c.Services = append(c.Services, ServiceEndpoint{Port: 9999}) },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FLEETDECK_LISTEN_PORT", "9001")
	t.Setenv("FLEETDECK_REFRESH_INTERVAL", "45s")
	t.Setenv("FLEETDECK_LOG_LEVEL", "debug")

	cfg := Default()
	cfg.applyEnv()

	if cfg.ListenPort != 9001 {
		t.Fatalf("port override not applied: %d", cfg.ListenPort)
	}
	if cfg.RefreshInterval != 45*time.Second {
		t.Fatalf("interval override not applied: %s", cfg.RefreshInterval)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level override not applied: %s", cfg.LogLevel)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fleetdeck.json")
	payload := `{"listenPort": 7777, "services": [{"id": "registry", "name": "Registry", "port": 8000}]}`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		t.Fatalf("loadFile: %v", err)
	}
	if cfg.ListenPort != 7777 {
		t.Fatalf("port from file not applied: %d", cfg.ListenPort)
	}
	if len(cfg.Services) != 1 || cfg.Services[0].ID != "registry" {
		t.Fatalf("services from file not applied: %+v", cfg.Services)
	}
}

func TestBaseURL(t *testing.T) {
	e := ServiceEndpoint{ID: "registry", Port: 8000}
	if e.BaseURL() != "http://localhost:8000" {
		t.Fatalf("BaseURL = %s", e.BaseURL())
	}
	e.Host = "10.0.0.5"
	if e.BaseURL() != "http://10.0.0.5:8000" {
		t.Fatalf("BaseURL with host = %s", e.BaseURL())
	}
}

func TestBootstrapWatcherDetectsRewrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bootstrap.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	changed := make(chan string, 1)
	bw, err := NewBootstrapWatcher(path, func(p string) { changed <- p })
	if err != nil {
		t.Fatalf("NewBootstrapWatcher: %v", err)
	}
	defer bw.Stop()
	bw.Start()

	// ModTime granularity can be coarse; make sure the rewrite is newer.
	time.Sleep(1100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{"services":{}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-changed:
		if p != path {
			t.Fatalf("callback path = %s, want %s", p, path)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report the rewrite")
	}
}
