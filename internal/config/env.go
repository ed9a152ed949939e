package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Roles known to the nursery application.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// DefaultEnvFile is loaded when no explicit env file is given; its absence is fine.
const DefaultEnvFile = ".env"

var envDefaults = map[string]string{
	"API_BASE_URL":           "http://localhost:8081",
	"UI_BASE_URL":            "http://localhost:8081",
	"API_AUTH_LOGIN":         "/api/auth/login",
	"API_AUTH_LOGOUT":        "/api/auth/logout",
	"API_CATEGORIES":         "/api/categories",
	"API_PLANTS":             "/api/plants",
	"API_SALES":              "/api/sales",
	"API_HEALTH":             "/api/health",
	"UI_LOGIN":               "/ui/login",
	"UI_DASHBOARD":           "/ui/dashboard",
	"UI_CATEGORIES":          "/ui/categories",
	"UI_PLANTS":              "/ui/plants",
	"UI_SALES":               "/ui/sales",
	"DEFAULT_TIMEOUT":        "600000",
	"EXPECT_TIMEOUT":         "5000",
	"ADMIN_USERNAME":         "admin",
	"ADMIN_PASSWORD":         "admin123",
	"USER_USERNAME":          "user",
	"USER_PASSWORD":          "user123",
	"BROWSER":                "chromium",
	"HEADED":                 "false",
	"SLOW_MO":                "0",
	"REPORTS_DIR":            "reports",
	"FIXTURE_LOCK_REDIS_URL": "",
}

// Endpoints are the API paths relative to APIBaseURL.
type Endpoints struct {
	Login      string
	Logout     string
	Categories string
	Plants     string
	Sales      string
	Health     string
}

// Routes are the UI paths relative to UIBaseURL.
type Routes struct {
	Login      string
	Dashboard  string
	Categories string
	Plants     string
	Sales      string
}

// Credential is a username/password pair for one role.
type Credential struct {
	Username string
	Password string
}

// Env holds the process-wide settings resolved from the environment.
// It is read-only after LoadEnv returns.
type Env struct {
	APIBaseURL string
	UIBaseURL  string
	Endpoints  Endpoints
	Routes     Routes

	DefaultTimeout time.Duration
	ExpectTimeout  time.Duration

	Credentials map[string]Credential

	Browser string
	Headed  bool
	SlowMo  time.Duration

	ReportsDir   string
	LockRedisURL string
}

// LoadEnv reads an optional dotenv file and resolves every setting as
// "environment value if present, else default".
func LoadEnv(envFile string) (*Env, error) {
	path := envFile
	if path == "" {
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if envFile != "" || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading env file %s: %w", path, err)
		}
		log.Debug().Str("file", path).Msg("no env file, using process environment")
	}

	v := viper.New()
	for key, value := range envDefaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	return NewEnv(v), nil
}

// NewEnv builds an Env from an already configured viper instance.
func NewEnv(v *viper.Viper) *Env {
	return &Env{
		APIBaseURL: strings.TrimRight(v.GetString("API_BASE_URL"), "/"),
		UIBaseURL:  strings.TrimRight(v.GetString("UI_BASE_URL"), "/"),
		Endpoints: Endpoints{
			Login:      v.GetString("API_AUTH_LOGIN"),
			Logout:     v.GetString("API_AUTH_LOGOUT"),
			Categories: v.GetString("API_CATEGORIES"),
			Plants:     v.GetString("API_PLANTS"),
			Sales:      v.GetString("API_SALES"),
			Health:     v.GetString("API_HEALTH"),
		},
		Routes: Routes{
			Login:      v.GetString("UI_LOGIN"),
			Dashboard:  v.GetString("UI_DASHBOARD"),
			Categories: v.GetString("UI_CATEGORIES"),
			Plants:     v.GetString("UI_PLANTS"),
			Sales:      v.GetString("UI_SALES"),
		},
		DefaultTimeout: millis(v, "DEFAULT_TIMEOUT", false),
		ExpectTimeout:  millis(v, "EXPECT_TIMEOUT", false),
		Credentials: map[string]Credential{
			RoleAdmin: {Username: v.GetString("ADMIN_USERNAME"), Password: v.GetString("ADMIN_PASSWORD")},
			RoleUser:  {Username: v.GetString("USER_USERNAME"), Password: v.GetString("USER_PASSWORD")},
		},
		Browser:      strings.ToLower(v.GetString("BROWSER")),
		Headed:       v.GetBool("HEADED"),
		SlowMo:       millis(v, "SLOW_MO", true),
		ReportsDir:   v.GetString("REPORTS_DIR"),
		LockRedisURL: v.GetString("FIXTURE_LOCK_REDIS_URL"),
	}
}

// Credential returns the credentials configured for role.
func (e *Env) Credential(role string) (Credential, error) {
	c, ok := e.Credentials[strings.ToLower(role)]
	if !ok {
		return Credential{}, fmt.Errorf("unknown role %q (expected %q or %q)", role, RoleAdmin, RoleUser)
	}
	return c, nil
}

// APIURL joins the API base URL with path.
func (e *Env) APIURL(path string) string {
	return e.APIBaseURL + path
}

// UIURL joins the UI base URL with path.
func (e *Env) UIURL(path string) string {
	return e.UIBaseURL + path
}

// millis parses a millisecond value. Malformed or out-of-range values fall
// back to the default instead of failing.
func millis(v *viper.Viper, key string, allowZero bool) time.Duration {
	raw := strings.TrimSpace(v.GetString(key))
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || (n == 0 && !allowZero) {
		log.Debug().Str("key", key).Str("value", raw).Msg("invalid duration, using default")
		n, _ = strconv.Atoi(envDefaults[key])
	}
	return time.Duration(n) * time.Millisecond
}
