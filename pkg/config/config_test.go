package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cardgate.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Listen != ":8080" {
		t.Errorf("expected :8080, got %s", cfg.Listen)
	}
	if cfg.RateLimit.Limit.Capacity != 8 || cfg.RateLimit.Limit.RefillRate != 8 {
		t.Errorf("expected 8 tokens at 8/s, got %+v", cfg.RateLimit.Limit)
	}
	if cfg.Cache.TTL.Search != 10*time.Minute {
		t.Errorf("expected 10m search TTL, got %v", cfg.Cache.TTL.Search)
	}
	if cfg.Cache.TTL.Card != time.Hour {
		t.Errorf("expected 1h card TTL, got %v", cfg.Cache.TTL.Card)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_REDIS_PASSWORD", "s3cret")

	path := writeConfig(t, `
listen: ":9090"
log:
  level: debug
  format: json
catalog:
  base_url: http://localhost:9999
  timeout: 3s
rate_limit:
  key: catalog
  capacity: 2
  refill_per_sec: 0.5
  backend: redis
  redis:
    addr: redis:6379
    password: ${TEST_REDIS_PASSWORD}
cache:
  max_entries: 100
  ttl:
    search: 30s
ledger:
  enabled: true
  db_path: test.db
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Listen != ":9090" {
		t.Errorf("expected :9090, got %s", cfg.Listen)
	}
	if cfg.RateLimit.Redis.Password != "s3cret" {
		t.Errorf("env var not expanded: got %s", cfg.RateLimit.Redis.Password)
	}
	if cfg.RateLimit.Limit.Capacity != 2 || cfg.RateLimit.Limit.RefillRate != 0.5 {
		t.Errorf("unexpected limit %+v", cfg.RateLimit.Limit)
	}
	if cfg.Catalog.Timeout != 3*time.Second {
		t.Errorf("expected 3s timeout, got %v", cfg.Catalog.Timeout)
	}
	if cfg.Catalog.UserAgent != "mtg-app/1.0 (+local)" {
		t.Errorf("expected default user agent to survive, got %q", cfg.Catalog.UserAgent)
	}
	if cfg.Cache.TTL.Search != 30*time.Second {
		t.Errorf("expected 30s search TTL, got %v", cfg.Cache.TTL.Search)
	}
	if cfg.Cache.TTL.Prints != time.Hour {
		t.Errorf("expected default prints TTL, got %v", cfg.Cache.TTL.Prints)
	}
	if !cfg.Ledger.Enabled {
		t.Error("expected ledger enabled")
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/cardgate.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}

	cfg, err := LoadOrDefault("/nonexistent/cardgate.yaml")
	if err != nil {
		t.Fatalf("expected defaults for missing file, got %v", err)
	}
	if cfg.Listen != ":8080" {
		t.Errorf("expected default listen, got %s", cfg.Listen)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"zero capacity", "rate_limit:\n  capacity: 0\n", "capacity"},
		{"unknown backend", "rate_limit:\n  backend: etcd\n", "backend"},
		{"unknown log format", "log:\n  format: xml\n", "format"},
		{"empty base url", "catalog:\n  base_url: \"\"\n", "base_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestExampleConfigMatchesDefaults(t *testing.T) {
	t.Setenv("CARDGATE_REDIS_PASSWORD", "")
	cfg, err := Load(filepath.Join("..", "..", "cardgate.example.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("example config drifted from defaults:\n got  %+v\n want %+v", cfg, Default())
	}
}
