package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://localhost:8000" {
		t.Fatalf("expected default api url, got %q", cfg.APIURL)
	}
	if cfg.SearchDebounce != 300*time.Millisecond {
		t.Fatalf("expected 300ms debounce, got %s", cfg.SearchDebounce)
	}
	if cfg.PageSize != 50 {
		t.Fatalf("expected page size 50, got %d", cfg.PageSize)
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.APIURL = "https://todo.example.com"
	cfg.DBPath = "/tmp/lazytodo.db"
	cfg.SearchDebounce = 500 * time.Millisecond
	cfg.HTTPTimeout = 15 * time.Second
	cfg.ServerSearch = true

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.APIURL != cfg.APIURL {
		t.Fatalf("expected api url %q, got %q", cfg.APIURL, loaded.APIURL)
	}
	if loaded.SearchDebounce != cfg.SearchDebounce {
		t.Fatalf("expected debounce %s, got %s", cfg.SearchDebounce, loaded.SearchDebounce)
	}
	if loaded.HTTPTimeout != cfg.HTTPTimeout {
		t.Fatalf("expected timeout %s, got %s", cfg.HTTPTimeout, loaded.HTTPTimeout)
	}
	if !loaded.ServerSearch {
		t.Fatalf("expected server search to survive the round trip")
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("api_url: http://file.example\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("LAZYTODO_API_URL", "http://env.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://env.example" {
		t.Fatalf("expected env override, got %q", cfg.APIURL)
	}
}

func TestReadFileIgnoresEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("api_url: http://file.example\nsearch_debounce: 450ms\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("LAZYTODO_API_URL", "http://env.example")
	t.Setenv("LAZYTODO_PAGE_SIZE", "20")

	cfg, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if cfg.APIURL != "http://file.example" {
		t.Fatalf("expected file api url, got %q", cfg.APIURL)
	}
	if cfg.PageSize != 50 {
		t.Fatalf("expected default page size, got %d", cfg.PageSize)
	}
	if cfg.SearchDebounce != 450*time.Millisecond {
		t.Fatalf("expected 450ms debounce, got %s", cfg.SearchDebounce)
	}
}

func TestReadFileMissingUsesDefaults(t *testing.T) {
	cfg, err := ReadFile(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestWebHostDefaultsToLoopback(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WebHost != "127.0.0.1" {
		t.Fatalf("expected loopback web host, got %q", cfg.WebHost)
	}
}
