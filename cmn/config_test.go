package cmn_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/catzilla-go/catzilla/cmn"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := cmn.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config failed validation: %v", err)
	}
}

func TestLoadConfigOverlaysFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"net":{"port":9999},"cache":{"cache_size_mb":512}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := cmn.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Net.Port != 9999 {
		t.Errorf("expected overlaid port 9999, got %d", cfg.Net.Port)
	}
	if cfg.Cache.SizeMB != 512 {
		t.Errorf("expected overlaid cache size 512, got %d", cfg.Cache.SizeMB)
	}
	// un-overlaid fields keep their defaults
	if cfg.Tasks.MinWorkers != cmn.DefaultConfig().Tasks.MinWorkers {
		t.Errorf("expected default min_workers to survive a partial overlay")
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("CATZILLA_PORT", "7000")
	cfg, err := cmn.LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Net.Port != 7000 {
		t.Errorf("expected env override port 7000, got %d", cfg.Net.Port)
	}
}

func TestValidateRejectsBadWorkerBounds(t *testing.T) {
	cfg := cmn.DefaultConfig()
	cfg.Tasks.MinWorkers = 10
	cfg.Tasks.MaxWorkers = 2
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for min > max workers")
	}
}
