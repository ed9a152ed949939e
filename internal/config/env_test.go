package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEnv_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	env, err := LoadEnv("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	checks := map[string][2]string{
		"APIBaseURL":         {"http://localhost:8081", env.APIBaseURL},
		"UIBaseURL":          {"http://localhost:8081", env.UIBaseURL},
		"Endpoints.Login":    {"/api/auth/login", env.Endpoints.Login},
		"Endpoints.Sales":    {"/api/sales", env.Endpoints.Sales},
		"Routes.Dashboard":   {"/ui/dashboard", env.Routes.Dashboard},
		"Routes.Plants":      {"/ui/plants", env.Routes.Plants},
		"Browser":            {"chromium", env.Browser},
		"ReportsDir":         {"reports", env.ReportsDir},
		"Credentials[admin]": {"admin", env.Credentials[RoleAdmin].Username},
		"Credentials[user]":  {"user", env.Credentials[RoleUser].Username},
	}
	for field, c := range checks {
		if c[0] != c[1] {
			t.Errorf("%s: expected %q, got %q", field, c[0], c[1])
		}
	}
	if env.DefaultTimeout != 600*time.Second {
		t.Errorf("expected default timeout 600s, got %v", env.DefaultTimeout)
	}
	if env.ExpectTimeout != 5*time.Second {
		t.Errorf("expected expect timeout 5s, got %v", env.ExpectTimeout)
	}
	if env.Headed {
		t.Error("expected headless by default")
	}
}

func TestLoadEnv_Overrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("API_BASE_URL", "http://nursery.test:9000/")
	t.Setenv("API_PLANTS", "/v2/plants")
	t.Setenv("HEADED", "true")
	t.Setenv("USER_PASSWORD", "s3cret")

	env, err := LoadEnv("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.APIBaseURL != "http://nursery.test:9000" {
		t.Errorf("expected trailing slash trimmed, got %q", env.APIBaseURL)
	}
	if got := env.APIURL(env.Endpoints.Plants); got != "http://nursery.test:9000/v2/plants" {
		t.Errorf("unexpected plants url %q", got)
	}
	if !env.Headed {
		t.Error("expected headed")
	}
	cred, err := env.Credential("USER")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cred.Password != "s3cret" {
		t.Errorf("expected overridden password, got %q", cred.Password)
	}
}

func TestLoadEnv_MalformedTimeoutFallsBack(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"not a number", "ten minutes"},
		{"negative", "-5"},
		{"zero", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv("DEFAULT_TIMEOUT", tt.value)

			env, err := LoadEnv("")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if env.DefaultTimeout != 600*time.Second {
				t.Errorf("expected fallback to 600s, got %v", env.DefaultTimeout)
			}
		})
	}
}

func TestLoadEnv_File(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "staging.env")
	content := "UI_BASE_URL=http://staging.local\nEXPECT_TIMEOUT=1500\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	// godotenv.Load sets process variables; clear them after the test.
	t.Setenv("UI_BASE_URL", "")
	os.Unsetenv("UI_BASE_URL")
	t.Setenv("EXPECT_TIMEOUT", "")
	os.Unsetenv("EXPECT_TIMEOUT")

	env, err := LoadEnv(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.UIBaseURL != "http://staging.local" {
		t.Errorf("expected UI base from file, got %q", env.UIBaseURL)
	}
	if env.ExpectTimeout != 1500*time.Millisecond {
		t.Errorf("expected 1.5s, got %v", env.ExpectTimeout)
	}

	if _, err := LoadEnv(filepath.Join(dir, "missing.env")); err == nil {
		t.Error("expected error for explicit missing env file")
	}
}

func TestCredential_UnknownRole(t *testing.T) {
	env := &Env{Credentials: map[string]Credential{RoleAdmin: {"a", "b"}}}
	if _, err := env.Credential("guest"); err == nil {
		t.Error("expected error for unknown role")
	}
}
