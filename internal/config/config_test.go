package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if !cfg.Kernel.AutoStart {
		t.Error("expected auto_start default true")
	}
	if cfg.Kernel.MaxConcurrency != 10 {
		t.Errorf("expected max_concurrency 10, got %d", cfg.Kernel.MaxConcurrency)
	}
	if cfg.Kernel.CallTimeoutMs != 30000 {
		t.Errorf("expected call_timeout_ms 30000, got %d", cfg.Kernel.CallTimeoutMs)
	}
	if cfg.Router.DefaultConfidenceThreshold != 0.6 {
		t.Errorf("expected default confidence 0.6, got %v", cfg.Router.DefaultConfidenceThreshold)
	}
	if !cfg.Router.DepthAwareRouting {
		t.Error("expected depth_aware_routing default true")
	}
	if cfg.Journal.Enabled {
		t.Error("expected journal disabled by default")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level info, got %q", cfg.Logging.Level)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
kernel:
  max_concurrency: 4
  tracing: true
router:
  learning_rate: 0.2
journal:
  enabled: true
  database_path: /tmp/j.db
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Kernel.MaxConcurrency != 4 {
		t.Errorf("expected max_concurrency 4, got %d", cfg.Kernel.MaxConcurrency)
	}
	if !cfg.Kernel.Tracing {
		t.Error("expected tracing enabled")
	}
	// Untouched fields keep defaults.
	if cfg.Kernel.CallTimeoutMs != 30000 {
		t.Errorf("expected default call_timeout_ms, got %d", cfg.Kernel.CallTimeoutMs)
	}
	if cfg.Router.LearningRate != 0.2 {
		t.Errorf("expected learning_rate 0.2, got %v", cfg.Router.LearningRate)
	}
	if cfg.Router.MaxCascadeDepth != 5 {
		t.Errorf("expected default max_cascade_depth, got %d", cfg.Router.MaxCascadeDepth)
	}
	if !cfg.Journal.Enabled || cfg.Journal.DatabasePath != "/tmp/j.db" {
		t.Errorf("unexpected journal config %+v", cfg.Journal)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"negative concurrency", "kernel:\n  max_concurrency: -1\n"},
		{"zero learning rate", "router:\n  learning_rate: 0\n"},
		{"confidence above one", "router:\n  default_confidence_threshold: 1.5\n"},
		{"bad log level", "logging:\n  level: loud\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tc.yaml), 0644); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Kernel.MaxConcurrency = 7
	cfg.Logging.Level = "debug"

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := Save(cfg, path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Kernel.MaxConcurrency != 7 || loaded.Logging.Level != "debug" {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Kernel.CallTimeoutMs = 5000

	registry := cfg.RegistryConfig()
	if registry.CallTimeout.Milliseconds() != 5000 {
		t.Errorf("expected 5s call timeout, got %v", registry.CallTimeout)
	}
	if registry.MaxConcurrency != cfg.Kernel.MaxConcurrency {
		t.Errorf("concurrency mismatch: %d vs %d", registry.MaxConcurrency, cfg.Kernel.MaxConcurrency)
	}

	router := cfg.RouterConfig()
	if router.DefaultConfidenceThreshold != cfg.Router.DefaultConfidenceThreshold {
		t.Error("confidence threshold not carried over")
	}
	if !router.DepthAwareRouting {
		t.Error("expected depth-aware routing carried over")
	}
}

func TestBuildLogger(t *testing.T) {
	cfg := Default()
	logger, err := cfg.BuildLogger()
	if err != nil {
		t.Fatalf("build logger failed: %v", err)
	}
	logger.Sync()

	cfg.Logging.Level = "nope"
	if _, err := cfg.BuildLogger(); err == nil {
		t.Fatal("expected error for bad level")
	}
}
