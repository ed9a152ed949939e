package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// Test helper to create temp config files
func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "greenhouse.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create temp config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantErr     bool
		errContains string
		validate    func(*testing.T, *Config)
	}{
		{
			name:    "empty file gets built-in profiles",
			content: "version: 1\n",
			validate: func(t *testing.T, cfg *Config) {
				want := []string{"api", "default", "ui"}
				if diff := cmp.Diff(want, cfg.ProfileNames()); diff != "" {
					t.Errorf("profiles mismatch (-want +got):\n%s", diff)
				}
				ui, _ := cfg.Profile(ProfileUI)
				if ui.Tags != "@UI" {
					t.Errorf("expected ui tags @UI, got %q", ui.Tags)
				}
				if ui.Format != defaultFormat {
					t.Errorf("expected default format, got %q", ui.Format)
				}
				if cfg.Settings.Concurrency != 1 {
					t.Errorf("expected concurrency 1, got %d", cfg.Settings.Concurrency)
				}
				if !cfg.Settings.IsStrict() {
					t.Error("expected strict by default")
				}
			},
		},
		{
			name: "custom profile and settings",
			content: `
version: 1
settings:
  concurrency: 3
  fail_fast: true
  strict: false
  screenshots: "on"
  ready_timeout: 5s
profiles:
  smoke:
    paths: [features/api]
    tags: "@API and @smoke"
    format: "progress,cucumber:reports/smoke.json"
`,
			validate: func(t *testing.T, cfg *Config) {
				smoke, err := cfg.Profile("smoke")
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				want := Profile{Paths: []string{"features/api"}, Tags: "@API and @smoke", Format: "progress,cucumber:reports/smoke.json"}
				if diff := cmp.Diff(want, smoke); diff != "" {
					t.Errorf("profile mismatch (-want +got):\n%s", diff)
				}
				if cfg.Settings.IsStrict() {
					t.Error("expected strict false")
				}
				if cfg.Settings.ReadyTimeout != 5*time.Second {
					t.Errorf("expected ready timeout 5s, got %v", cfg.Settings.ReadyTimeout)
				}
			},
		},
		{
			name: "containers with target and hooks",
			content: `
version: 1
containers:
  db:
    image: postgres:15
    ports: ["5432/tcp"]
  app:
    image: nursery/app:latest
    ports: ["8081/tcp"]
    depends_on: [db]
target:
  container: app
  port: "8081/tcp"
database:
  dsn: postgres://qa:qa@localhost:5432/nursery?sslmode=disable
hooks:
  before_all:
    - sql: "DELETE FROM sales"
  after_scenario:
    - exec: "echo done"
      container: app
`,
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Target.Scheme != "http" {
					t.Errorf("expected default scheme http, got %q", cfg.Target.Scheme)
				}
				if len(cfg.Hooks.BeforeAll) != 1 || cfg.Hooks.BeforeAll[0].SQL == "" {
					t.Errorf("expected one sql hook, got %+v", cfg.Hooks.BeforeAll)
				}
			},
		},
		{
			name:        "wrong version",
			content:     "version: 2\n",
			wantErr:     true,
			errContains: "unsupported config version",
		},
		{
			name: "unknown dependency",
			content: `
containers:
  app:
    image: app
    depends_on: [db]
`,
			wantErr:     true,
			errContains: "unknown container",
		},
		{
			name: "target without container",
			content: `
target:
  container: app
  port: "8081/tcp"
`,
			wantErr:     true,
			errContains: "target references unknown container",
		},
		{
			name: "hook with two actions",
			content: `
database:
  dsn: postgres://x
hooks:
  before_scenario:
    - sql: "SELECT 1"
      sql_file: seed.sql
`,
			wantErr:     true,
			errContains: "exactly one of",
		},
		{
			name: "sql hook without dsn",
			content: `
hooks:
  before_all:
    - sql: "SELECT 1"
`,
			wantErr:     true,
			errContains: "database.dsn",
		},
		{
			name: "invalid screenshots mode",
			content: `
settings:
  screenshots: sometimes
`,
			wantErr:     true,
			errContains: "invalid screenshots mode",
		},
		{
			name:        "invalid yaml",
			content:     "settings: [",
			wantErr:     true,
			errContains: "parsing config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := createTempConfig(t, tt.content)
			cfg, err := Load(path)

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("error %q should contain %q", err.Error(), tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.validate != nil {
				tt.validate(t, cfg)
			}
		})
	}
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("GREENHOUSE_TEST_DSN", "postgres://expanded")
	path := createTempConfig(t, "database:\n  dsn: ${GREENHOUSE_TEST_DSN}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.DSN != "postgres://expanded" {
		t.Errorf("expected expanded dsn, got %q", cfg.Database.DSN)
	}
}

func TestLoadOrDefault(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("missing default file should not fail: %v", err)
	}
	if _, err := cfg.Profile(ProfileAPI); err != nil {
		t.Errorf("expected api profile: %v", err)
	}

	if _, err := LoadOrDefault("missing.yml"); err == nil {
		t.Error("expected error for explicit missing file")
	}
}

func TestProfile_Unknown(t *testing.T) {
	_, err := Default().Profile("nightly")
	if err == nil || !strings.Contains(err.Error(), "unknown profile") {
		t.Errorf("expected unknown profile error, got %v", err)
	}
}

func TestLoad_SampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", DefaultFile))
	if err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
	want := []string{"api", "default", "smoke", "ui"}
	if diff := cmp.Diff(want, cfg.ProfileNames()); diff != "" {
		t.Errorf("profiles mismatch (-want +got):\n%s", diff)
	}
	api, err := cfg.Profile(ProfileAPI)
	if err != nil {
		t.Fatal(err)
	}
	if api.Tags != "@API" || !strings.Contains(api.Format, "cucumber:reports/api-report.json") {
		t.Errorf("api profile = %+v", api)
	}
	if cfg.Target != nil || len(cfg.Containers) != 0 {
		t.Error("sample config should not start containers")
	}
}
