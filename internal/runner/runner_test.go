package runner

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cucumber/godog"
	messages "github.com/cucumber/messages/go/v21"
	"github.com/google/go-cmp/cmp"
	"github.com/playwright-community/playwright-go"

	"github.com/greenhouse-qa/greenhouse/internal/config"
	"github.com/greenhouse-qa/greenhouse/internal/world"
)

// Mock implementations

type mockAPI struct {
	waitReadyErr error
	timeout      time.Duration
}

func (m *mockAPI) WaitReady(ctx context.Context, timeout time.Duration) error {
	m.timeout = timeout
	return m.waitReadyErr
}

// mockSteps registers a passing and a failing step and records worlds.
type mockSteps struct {
	mu     sync.Mutex
	worlds []*world.World
}

func (m *mockSteps) Register(sc *godog.ScenarioContext) {
	sc.Step(`^the nursery is reachable$`, func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("step has no deadline")
		}
		return nil
	})
	sc.Step(`^the nursery is on fire$`, func() error { return errors.New("fire") })
}

func (m *mockSteps) Begin(ctx context.Context, w *world.World) context.Context {
	m.mu.Lock()
	m.worlds = append(m.worlds, w)
	m.mu.Unlock()
	return world.WithWorld(ctx, w)
}

func (m *mockSteps) last() *world.World {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.worlds) == 0 {
		return nil
	}
	return m.worlds[len(m.worlds)-1]
}

// mockDriver fails every launch, so Init reports that a browser was requested.
type mockDriver struct {
	mu       sync.Mutex
	launches int
	stopped  int
}

var errNoBrowser = errors.New("no browser in tests")

func (m *mockDriver) Launch(ctx context.Context, opts world.LaunchOptions) (playwright.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.launches++
	return nil, errNoBrowser
}

func (m *mockDriver) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped++
	return nil
}

type mockContainerExecutor struct {
	execExitCode int
	execOutput   string
	execErr      error
	execCalls    []execCall
}

type execCall struct {
	name string
	cmd  []string
}

func (m *mockContainerExecutor) Exec(ctx context.Context, name string, cmd []string) (int, string, error) {
	m.execCalls = append(m.execCalls, execCall{name: name, cmd: cmd})
	return m.execExitCode, m.execOutput, m.execErr
}

type mockDB struct {
	mu          sync.Mutex
	queries     []string
	files       []string
	execSQLErr  error
	execFileErr error
}

func (m *mockDB) ExecSQL(ctx context.Context, query string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, query)
	return 1, m.execSQLErr
}

func (m *mockDB) ExecSQLFile(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files = append(m.files, path)
	return m.execFileErr
}

func (m *mockDB) recorded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}

type mockArtifacts struct{ requested []string }

func (m *mockArtifacts) ScreenshotPath(scenario string) string {
	m.requested = append(m.requested, scenario)
	return filepath.Join(os.TempDir(), "shot.png")
}

// capturingScenarioContext captures registered hooks for testing
type capturingScenarioContext struct {
	beforeHook godog.BeforeScenarioHook
	afterHook  godog.AfterScenarioHook
}

func (c *capturingScenarioContext) Before(h godog.BeforeScenarioHook) { c.beforeHook = h }
func (c *capturingScenarioContext) After(h godog.AfterScenarioHook)   { c.afterHook = h }

// Test helper functions

func newTestConfig() *config.Config {
	cfg := config.Default()
	cfg.Settings.ReadyTimeout = time.Second
	return cfg
}

func newTestEnv() *config.Env {
	return &config.Env{
		APIBaseURL:     "http://nursery.test",
		UIBaseURL:      "http://nursery.test",
		DefaultTimeout: 5 * time.Second,
		ExpectTimeout:  time.Second,
	}
}

func scenario(name string, tags ...string) *godog.Scenario {
	sc := &godog.Scenario{Name: name}
	for _, tag := range tags {
		sc.Tags = append(sc.Tags, &messages.PickleTag{Name: tag})
	}
	return sc
}

// Tests for newRunner

func TestNewRunner(t *testing.T) {
	tests := []struct {
		name        string
		config      func() *config.Config
		opts        Options
		errContains string
		wantRegex   string
	}{
		{
			name:   "defaults",
			config: newTestConfig,
		},
		{
			name: "scenario regex from settings",
			config: func() *config.Config {
				cfg := newTestConfig()
				cfg.Settings.Scenario = "^Admin"
				return cfg
			},
			wantRegex: "^Admin",
		},
		{
			name: "scenario regex option wins",
			config: func() *config.Config {
				cfg := newTestConfig()
				cfg.Settings.Scenario = "^Admin"
				return cfg
			},
			opts:      Options{Scenario: "^User"},
			wantRegex: "^User",
		},
		{
			name:        "invalid scenario regex",
			config:      newTestConfig,
			opts:        Options{Scenario: "[invalid"},
			errContains: "invalid scenario filter regex",
		},
		{
			name:        "unknown profile",
			config:      newTestConfig,
			opts:        Options{Profile: "nightly"},
			errContains: `unknown profile "nightly"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := newRunner(tt.config(), newTestEnv(), Deps{API: &mockAPI{}, Steps: &mockSteps{}}, tt.opts)
			if tt.errContains != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errContains) {
					t.Fatalf("expected error containing %q, got %v", tt.errContains, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := ""
			if r.scenarioRegex != nil {
				got = r.scenarioRegex.String()
			}
			if got != tt.wantRegex {
				t.Errorf("scenario regex = %q, want %q", got, tt.wantRegex)
			}
		})
	}
}

// Tests for godog options

func TestGodogOptions(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		name    string
		profile string
		opts    Options
		modify  func(*config.Config)
		want    godog.Options
	}{
		{
			name:    "default profile",
			profile: config.ProfileDefault,
			want: godog.Options{
				Format:      "progress,html:reports/cucumber-report.html",
				Paths:       []string{"features"},
				Strict:      true,
				Concurrency: 1,
			},
		},
		{
			name:    "api profile tags",
			profile: config.ProfileAPI,
			want: godog.Options{
				Format:      "progress,html:reports/cucumber-report.html",
				Paths:       []string{"features"},
				Tags:        "@API",
				Strict:      true,
				Concurrency: 1,
			},
		},
		{
			name:    "overrides",
			profile: config.ProfileUI,
			opts: Options{
				Tags:        "@smoke",
				Format:      "pretty,cucumber:out/json/report.json",
				Paths:       []string{"features/sales"},
				Concurrency: 4,
				FailFast:    true,
				Randomize:   true,
			},
			want: godog.Options{
				Format:        "pretty,cucumber:out/json/report.json",
				Paths:         []string{"features/sales"},
				Tags:          "(@UI) && (@smoke)",
				StopOnFailure: true,
				Strict:        true,
				Concurrency:   4,
				Randomize:     -1,
			},
		},
		{
			name:    "settings",
			profile: config.ProfileDefault,
			modify: func(cfg *config.Config) {
				strict := false
				cfg.Settings.Strict = &strict
				cfg.Settings.FailFast = true
				cfg.Settings.Concurrency = 2
			},
			want: godog.Options{
				Format:        "progress,html:reports/cucumber-report.html",
				Paths:         []string{"features"},
				StopOnFailure: true,
				Concurrency:   2,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newTestConfig()
			if tt.modify != nil {
				tt.modify(cfg)
			}
			tt.opts.Profile = tt.profile
			r, err := newRunner(cfg, newTestEnv(), Deps{API: &mockAPI{}, Steps: &mockSteps{}}, tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			got, err := r.godogOptions()
			if err != nil {
				t.Fatal(err)
			}
			compare := func(o godog.Options) []any {
				return []any{o.Format, o.Paths, o.Tags, o.StopOnFailure, o.Strict, o.Concurrency, o.Randomize}
			}
			if diff := cmp.Diff(compare(tt.want), compare(*got)); diff != "" {
				t.Errorf("options mismatch (-want +got):\n%s", diff)
			}
		})
	}

	for _, dir := range []string{"reports", filepath.Join("out", "json")} {
		if st, err := os.Stat(dir); err != nil || !st.IsDir() {
			t.Errorf("expected report directory %s to exist", dir)
		}
	}
}

func TestCombineTags(t *testing.T) {
	tests := []struct{ profile, extra, want string }{
		{"", "", ""},
		{"@UI", "", "@UI"},
		{"", "@smoke", "@smoke"},
		{"@UI", "~@wip", "(@UI) && (~@wip)"},
	}
	for _, tt := range tests {
		if got := combineTags(tt.profile, tt.extra); got != tt.want {
			t.Errorf("combineTags(%q, %q) = %q, want %q", tt.profile, tt.extra, got, tt.want)
		}
	}
}

// Tests for hooks

func TestExecuteHook(t *testing.T) {
	tests := []struct {
		name        string
		hook        config.Hook
		db          *mockDB
		container   *mockContainerExecutor
		errContains string
	}{
		{
			name: "sql",
			hook: config.Hook{SQL: "DELETE FROM sales"},
			db:   &mockDB{},
		},
		{
			name:        "sql error",
			hook:        config.Hook{SQL: "DELETE FROM sales"},
			db:          &mockDB{execSQLErr: errors.New("syntax")},
			errContains: "executing SQL: syntax",
		},
		{
			name:        "sql without database",
			hook:        config.Hook{SQL: "DELETE FROM sales"},
			errContains: "no database is connected",
		},
		{
			name: "sql file",
			hook: config.Hook{SQLFile: "seed.sql"},
			db:   &mockDB{},
		},
		{
			name:        "sql file error",
			hook:        config.Hook{SQLFile: "seed.sql"},
			db:          &mockDB{execFileErr: errors.New("missing")},
			errContains: "executing SQL file: missing",
		},
		{
			name:      "exec",
			hook:      config.Hook{Exec: "reset-db", Container: "app"},
			container: &mockContainerExecutor{},
		},
		{
			name:        "exec non-zero exit",
			hook:        config.Hook{Exec: "reset-db", Container: "app"},
			container:   &mockContainerExecutor{execExitCode: 2, execOutput: "no such table\n"},
			errContains: "exited with 2: no such table",
		},
		{
			name:        "exec error",
			hook:        config.Hook{Exec: "reset-db", Container: "app"},
			container:   &mockContainerExecutor{execErr: errors.New("container gone")},
			errContains: "executing command in app: container gone",
		},
		{
			name:        "exec without containers",
			hook:        config.Hook{Exec: "reset-db", Container: "app"},
			errContains: "no containers are running",
		},
		{
			name: "empty hook is a no-op",
			hook: config.Hook{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := Deps{API: &mockAPI{}, Steps: &mockSteps{}}
			if tt.db != nil {
				deps.DB = tt.db
			}
			if tt.container != nil {
				deps.Containers = tt.container
			}
			r, err := newRunner(newTestConfig(), newTestEnv(), deps, Options{})
			if err != nil {
				t.Fatal(err)
			}

			err = r.executeHook(context.Background(), tt.hook)
			if tt.errContains != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errContains) {
					t.Fatalf("expected error containing %q, got %v", tt.errContains, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.container != nil {
				want := []execCall{{name: "app", cmd: []string{"sh", "-c", "reset-db"}}}
				if diff := cmp.Diff(want, tt.container.execCalls, cmp.AllowUnexported(execCall{})); diff != "" {
					t.Errorf("exec calls mismatch (-want +got):\n%s", diff)
				}
			}
		})
	}
}

func TestRunHooks_StopsAtFirstFailure(t *testing.T) {
	db := &mockDB{execSQLErr: errors.New("boom")}
	r, err := newRunner(newTestConfig(), newTestEnv(), Deps{API: &mockAPI{}, Steps: &mockSteps{}, DB: db}, Options{})
	if err != nil {
		t.Fatal(err)
	}

	err = r.runHooks(context.Background(), []config.Hook{{SQL: "one"}, {SQL: "two"}})
	if err == nil {
		t.Fatal("expected an error")
	}
	if got := db.recorded(); len(got) != 1 || got[0] != "one" {
		t.Errorf("expected only the first hook to run, got %v", got)
	}
}

// Tests for scenario hooks

func TestScenarioBefore(t *testing.T) {
	tests := []struct {
		name         string
		profile      string
		filter       string
		scenario     *godog.Scenario
		beforeHooks  []config.Hook
		db           *mockDB
		wantSkip     bool
		wantErr      string
		wantLaunches int
	}{
		{
			name:         "default profile launches a browser",
			profile:      config.ProfileDefault,
			scenario:     scenario("Admin adds a plant", "@UI"),
			wantErr:      errNoBrowser.Error(),
			wantLaunches: 1,
		},
		{
			name:     "api tagged scenario runs without a browser",
			profile:  config.ProfileDefault,
			scenario: scenario("List plants", "@API"),
		},
		{
			name:     "api profile never launches",
			profile:  config.ProfileAPI,
			scenario: scenario("Sell a plant", "@UI"),
		},
		{
			name:     "filtered out",
			profile:  config.ProfileAPI,
			filter:   "^Admin",
			scenario: scenario("User views plants"),
			wantSkip: true,
		},
		{
			name:        "before_scenario hooks run",
			profile:     config.ProfileAPI,
			filter:      "^Admin",
			scenario:    scenario("Admin deletes a sale"),
			beforeHooks: []config.Hook{{SQL: "DELETE FROM sales"}},
			db:          &mockDB{},
		},
		{
			name:        "before_scenario hook failure",
			profile:     config.ProfileAPI,
			scenario:    scenario("Admin deletes a sale"),
			beforeHooks: []config.Hook{{SQL: "DELETE FROM sales"}},
			db:          &mockDB{execSQLErr: errors.New("locked")},
			wantErr:     "before_scenario hooks failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newTestConfig()
			cfg.Hooks.BeforeScenario = tt.beforeHooks
			driver := &mockDriver{}
			steps := &mockSteps{}
			deps := Deps{
				API:    &mockAPI{},
				Steps:  steps,
				Driver: func() (BrowserDriver, error) { return driver, nil },
			}
			if tt.db != nil {
				deps.DB = tt.db
			}
			r, err := newRunner(cfg, newTestEnv(), deps, Options{Profile: tt.profile, Scenario: tt.filter})
			if err != nil {
				t.Fatal(err)
			}

			hooks := &capturingScenarioContext{}
			r.setupScenarioHooks(hooks)
			ctx, err := hooks.beforeHook(context.Background(), tt.scenario)

			switch {
			case tt.wantSkip:
				if !errors.Is(err, godog.ErrSkip) {
					t.Fatalf("expected ErrSkip, got %v", err)
				}
				if steps.last() != nil {
					t.Error("skipped scenario should not get a world")
				}
				return
			case tt.wantErr != "":
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
			case err != nil:
				t.Fatalf("unexpected error: %v", err)
			}

			if driver.launches != tt.wantLaunches {
				t.Errorf("launches = %d, want %d", driver.launches, tt.wantLaunches)
			}
			w := world.FromContext(ctx)
			if w == nil || w != steps.last() {
				t.Fatal("expected the scenario world in the context")
			}
			if w.HasBrowser() {
				t.Error("no browser should be attached")
			}
			if tt.db != nil && len(tt.db.recorded()) != len(tt.beforeHooks) {
				t.Errorf("expected %d hook queries, got %v", len(tt.beforeHooks), tt.db.recorded())
			}
		})
	}
}

func TestScenarioBefore_FreshWorldPerScenario(t *testing.T) {
	steps := &mockSteps{}
	r, err := newRunner(newTestConfig(), newTestEnv(), Deps{API: &mockAPI{}, Steps: steps}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	hooks := &capturingScenarioContext{}
	r.setupScenarioHooks(hooks)

	first, _ := hooks.beforeHook(context.Background(), scenario("one"))
	world.FromContext(first).Token = "secret"
	second, _ := hooks.beforeHook(context.Background(), scenario("two"))

	if world.FromContext(first) == world.FromContext(second) {
		t.Fatal("scenarios share a world")
	}
	if world.FromContext(second).Token != "" {
		t.Error("token leaked into the next scenario")
	}
}

func TestScenarioAfter(t *testing.T) {
	tests := []struct {
		name        string
		screenshots string
		scenarioErr error
		afterErr    error
	}{
		{name: "passed", screenshots: "only-on-failure"},
		{name: "failed", screenshots: "only-on-failure", scenarioErr: errors.New("step failed")},
		{name: "after hook failure is only logged", screenshots: "off", afterErr: errors.New("cleanup failed")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newTestConfig()
			cfg.Settings.Screenshots = tt.screenshots
			cfg.Hooks.AfterScenario = []config.Hook{{SQL: "DELETE FROM sales"}}
			db := &mockDB{execSQLErr: tt.afterErr}
			artifacts := &mockArtifacts{}
			r, err := newRunner(cfg, newTestEnv(), Deps{API: &mockAPI{}, Steps: &mockSteps{}, DB: db, Artifacts: artifacts}, Options{})
			if err != nil {
				t.Fatal(err)
			}
			hooks := &capturingScenarioContext{}
			r.setupScenarioHooks(hooks)

			sc := scenario("Admin deletes a sale")
			ctx, err := hooks.beforeHook(context.Background(), sc)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := hooks.afterHook(ctx, sc, tt.scenarioErr); err != nil {
				t.Errorf("after hook should return nil, got %v", err)
			}
			if len(db.recorded()) != 1 {
				t.Errorf("expected the after_scenario hook to run once, got %v", db.recorded())
			}
			if len(artifacts.requested) != 0 {
				t.Errorf("no screenshot without a browser, got %v", artifacts.requested)
			}
		})
	}
}

func TestScenarioAfter_WithoutWorld(t *testing.T) {
	r, err := newRunner(newTestConfig(), newTestEnv(), Deps{API: &mockAPI{}, Steps: &mockSteps{}}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	hooks := &capturingScenarioContext{}
	r.setupScenarioHooks(hooks)

	if _, err := hooks.afterHook(context.Background(), scenario("skipped"), nil); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestWantScreenshot(t *testing.T) {
	failed := errors.New("failed")
	tests := []struct {
		mode string
		err  error
		want bool
	}{
		{"off", failed, false},
		{"only-on-failure", nil, false},
		{"only-on-failure", failed, true},
		{"on", nil, true},
	}
	for _, tt := range tests {
		cfg := newTestConfig()
		cfg.Settings.Screenshots = tt.mode
		r := &Runner{config: cfg}
		if got := r.wantScreenshot(tt.err); got != tt.want {
			t.Errorf("wantScreenshot(%s, %v) = %v, want %v", tt.mode, tt.err, got, tt.want)
		}
	}
}

// Tests for the step deadline

func TestStepDeadline(t *testing.T) {
	r := &Runner{}
	w := world.New(newTestEnv(), nil, nil)
	parent := world.WithWorld(context.Background(), w)
	step := &godog.Step{Text: "the nursery is reachable"}

	stepCtx, err := r.beforeStep(parent, step)
	if err != nil {
		t.Fatal(err)
	}
	deadline, ok := stepCtx.Deadline()
	if !ok {
		t.Fatal("expected a step deadline")
	}
	if remaining := time.Until(deadline); remaining <= 0 || remaining > w.StepTimeout() {
		t.Errorf("unexpected deadline in %v", remaining)
	}

	next, err := r.afterStep(stepCtx, step, godog.StepPassed, nil)
	if err != nil {
		t.Fatal(err)
	}
	if stepCtx.Err() == nil {
		t.Error("step context should be cancelled after the step")
	}
	if next != parent {
		t.Error("the next step should continue from the scenario context")
	}
	if next.Err() != nil {
		t.Error("scenario context must stay usable")
	}
}

func TestStepDeadline_WithoutWorld(t *testing.T) {
	r := &Runner{}
	ctx := context.Background()

	got, err := r.beforeStep(ctx, &godog.Step{})
	if err != nil || got != ctx {
		t.Errorf("expected the context unchanged, got %v, %v", got, err)
	}
	got, err = r.afterStep(ctx, &godog.Step{}, godog.StepPassed, nil)
	if err != nil || got != ctx {
		t.Errorf("expected the context unchanged, got %v, %v", got, err)
	}
}

// Tests for the lazy driver

func TestLazyDriver(t *testing.T) {
	starts := 0
	driver := &mockDriver{}
	l := &lazyDriver{start: func() (BrowserDriver, error) {
		starts++
		return driver, nil
	}}

	if err := l.Stop(); err != nil {
		t.Fatal(err)
	}
	if driver.stopped != 0 {
		t.Error("stopping an unstarted driver should be a no-op")
	}

	for range 3 {
		l.Launch(context.Background(), world.LaunchOptions{})
	}
	if starts != 1 || driver.launches != 3 {
		t.Errorf("starts = %d, launches = %d", starts, driver.launches)
	}
	if err := l.Stop(); err != nil {
		t.Fatal(err)
	}
	if driver.stopped != 1 {
		t.Errorf("stopped = %d, want 1", driver.stopped)
	}
}

func TestLazyDriver_StartFailure(t *testing.T) {
	l := &lazyDriver{start: func() (BrowserDriver, error) { return nil, errors.New("playwright missing") }}
	if _, err := l.Launch(context.Background(), world.LaunchOptions{}); err == nil {
		t.Fatal("expected the start error")
	}
}

func TestDriverFactory(t *testing.T) {
	tests := []struct {
		name        string
		browser     string
		install     bool
		installErr  error
		wantInstall []string
		wantStarts  int
		wantErr     bool
	}{
		{name: "no install", browser: "firefox", wantStarts: 1},
		{name: "install default engine", browser: "", install: true, wantInstall: []string{"chromium"}, wantStarts: 1},
		{name: "install maps safari", browser: "safari", install: true, wantInstall: []string{"webkit"}, wantStarts: 1},
		{name: "install failure", browser: "chrome", install: true, installErr: errors.New("offline"), wantInstall: []string{"chromium"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var installed []string
			starts := 0
			factory := driverFactory(tt.browser, tt.install,
				func(browsers ...string) error {
					installed = append(installed, browsers...)
					return tt.installErr
				},
				func() (BrowserDriver, error) {
					starts++
					return &mockDriver{}, nil
				})

			_, err := factory()
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.wantInstall, installed); diff != "" {
				t.Errorf("installed mismatch (-want +got):\n%s", diff)
			}
			if starts != tt.wantStarts {
				t.Errorf("starts = %d, want %d", starts, tt.wantStarts)
			}
		})
	}
}

// Tests for Run

func writeFeature(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	writeFeature(t, dir, "health.feature", `
@API
Feature: Health
  Scenario: The nursery answers
    Given the nursery is reachable
`)
	writeFeature(t, dir, "broken.feature", `
@API
Feature: Broken
  Scenario: The nursery burns
    Given the nursery is on fire
`)

	tests := []struct {
		name        string
		api         *mockAPI
		onlyPassing bool
		beforeAll   error
		errContains string
	}{
		{
			name:        "passing scenarios",
			api:         &mockAPI{},
			onlyPassing: true,
		},
		{
			name:        "failing scenario",
			api:         &mockAPI{},
			errContains: "tests failed with status 1",
		},
		{
			name:        "api not ready",
			api:         &mockAPI{waitReadyErr: errors.New("connection refused")},
			errContains: "nursery api not ready",
		},
		{
			name:        "before_all failure",
			api:         &mockAPI{},
			beforeAll:   errors.New("seed failed"),
			errContains: "before_all hooks failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newTestConfig()
			cfg.Hooks.BeforeAll = []config.Hook{{SQLFile: "seed.sql"}}
			cfg.Hooks.AfterAll = []config.Hook{{SQL: "DELETE FROM sales"}}
			db := &mockDB{execFileErr: tt.beforeAll}
			driver := &mockDriver{}
			steps := &mockSteps{}

			paths := []string{dir}
			if tt.onlyPassing {
				paths = []string{filepath.Join(dir, "health.feature")}
			}
			r, err := newRunner(cfg, newTestEnv(), Deps{
				API:    tt.api,
				Steps:  steps,
				DB:     db,
				Driver: func() (BrowserDriver, error) { return driver, nil },
			}, Options{Paths: paths, Format: "progress", Output: io.Discard})
			if err != nil {
				t.Fatal(err)
			}

			err = r.Run(context.Background())
			if tt.errContains != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errContains) {
					t.Fatalf("expected error containing %q, got %v", tt.errContains, err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if tt.api.timeout != cfg.Settings.ReadyTimeout {
				t.Errorf("ready timeout = %v, want %v", tt.api.timeout, cfg.Settings.ReadyTimeout)
			}
			if tt.api.waitReadyErr != nil || tt.beforeAll != nil {
				if steps.last() != nil {
					t.Error("no scenario should run after a setup failure")
				}
				return
			}
			if steps.last() == nil {
				t.Fatal("expected scenarios to run")
			}
			if got := db.recorded(); len(got) != 1 || got[0] != "DELETE FROM sales" {
				t.Errorf("expected after_all hook to run once, got %v", got)
			}
			if driver.launches != 0 {
				t.Errorf("@API scenarios should not launch a browser, got %d launches", driver.launches)
			}
		})
	}
}
