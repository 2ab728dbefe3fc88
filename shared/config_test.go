package shared

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// TestLoadConfigDefaults verifies defaults when nothing is configured.
func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.UploadFolder != DefaultUploadFolder || cfg.StemsFolder != DefaultStemsFolder {
		t.Fatalf("folders = %s, %s", cfg.UploadFolder, cfg.StemsFolder)
	}
	if !IsMemoryURL(cfg.BrokerURL) || !IsMemoryURL(cfg.BackendURL) {
		t.Fatalf("expected in-memory backends, got %s / %s", cfg.BrokerURL, cfg.BackendURL)
	}
	if cfg.MaxWorkers != DefaultMaxWorkers {
		t.Fatalf("max workers = %d, want %d", cfg.MaxWorkers, DefaultMaxWorkers)
	}
	if !reflect.DeepEqual(cfg.AllowedOrigins, []string{"*"}) {
		t.Fatalf("allowed origins = %v", cfg.AllowedOrigins)
	}
	if cfg.UnknownTaskAsPending {
		t.Fatal("unknown tasks should 404 by default")
	}
}

// TestLoadConfigFileThenEnv checks YAML values and env precedence.
func TestLoadConfigFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kmusic.yaml")
	yaml := `
upload_folder: /data/audio
stems_folder: /data/stems
broker_url: redis://localhost:6379/1
max_workers: 8
result_ttl: 2h
allowed_origins: ["https://example.github.io"]
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MAX_WORKERS", "5")
	t.Setenv("STEMS_FOLDER", "/override/stems")
	t.Setenv("UNKNOWN_TASK_AS_PENDING", "true")
	t.Setenv("SIMULATED_DELAY", "0s")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.UploadFolder != "/data/audio" {
		t.Errorf("upload folder = %s", cfg.UploadFolder)
	}
	if cfg.StemsFolder != "/override/stems" {
		t.Errorf("stems folder = %s, want env override", cfg.StemsFolder)
	}
	if cfg.BrokerURL != "redis://localhost:6379/1" || IsMemoryURL(cfg.BrokerURL) {
		t.Errorf("broker = %s", cfg.BrokerURL)
	}
	if !IsMemoryURL(cfg.BackendURL) {
		t.Errorf("backend = %s, want default", cfg.BackendURL)
	}
	if cfg.MaxWorkers != 5 {
		t.Errorf("max workers = %d, want 5", cfg.MaxWorkers)
	}
	if cfg.ResultTTL != 2*time.Hour {
		t.Errorf("result ttl = %s", cfg.ResultTTL)
	}
	if cfg.SimulatedDelay != 0 {
		t.Errorf("simulated delay = %s", cfg.SimulatedDelay)
	}
	if !cfg.UnknownTaskAsPending {
		t.Error("expected UNKNOWN_TASK_AS_PENDING to apply")
	}
	if !reflect.DeepEqual(cfg.AllowedOrigins, []string{"https://example.github.io"}) {
		t.Errorf("allowed origins = %v", cfg.AllowedOrigins)
	}
}

// TestLoadConfigBadFile reports unreadable or malformed files.
func TestLoadConfigBadFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("max_workers: [oops"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}

// TestSplitAndClean trims entries and drops empties.
func TestSplitAndClean(t *testing.T) {
	got := splitAndClean(" a.com, ,b.com ,")
	if !reflect.DeepEqual(got, []string{"a.com", "b.com"}) {
		t.Fatalf("got %v", got)
	}
	if got := splitAndClean(" , "); !reflect.DeepEqual(got, []string{"*"}) {
		t.Fatalf("empty list = %v, want [*]", got)
	}
}
