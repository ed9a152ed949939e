package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/cucumber/godog"
	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog/log"

	"github.com/greenhouse-qa/greenhouse/internal/config"
	"github.com/greenhouse-qa/greenhouse/internal/container"
	"github.com/greenhouse-qa/greenhouse/internal/database"
	"github.com/greenhouse-qa/greenhouse/internal/fixtures"
	_ "github.com/greenhouse-qa/greenhouse/internal/formatter" // Register html and stream formatters
	"github.com/greenhouse-qa/greenhouse/internal/nursery"
	"github.com/greenhouse-qa/greenhouse/internal/runlog"
	"github.com/greenhouse-qa/greenhouse/internal/steps"
	"github.com/greenhouse-qa/greenhouse/internal/world"
)

// APITag marks scenarios that never need a browser.
const APITag = "@API"

// Options override the profile and settings for one run. Zero values keep
// the configured behavior.
type Options struct {
	Profile     string
	Tags        string
	Format      string
	Paths       []string
	Concurrency int
	Scenario    string
	FailFast    bool
	Randomize   bool
	// Output receives formatter output without a file target. Defaults to stdout.
	Output io.Writer

	// InstallBrowsers downloads the Playwright driver and the configured
	// browser before the driver first starts.
	InstallBrowsers bool
}

// Deps are the collaborators of a run.
type Deps struct {
	API        API
	Steps      StepSuite
	Driver     DriverFactory
	Containers ContainerExecutor
	DB         SQLExecutor
	Artifacts  Screenshotter
}

// Runner executes the feature files of one profile
type Runner struct {
	config        *config.Config
	env           *config.Env
	profileName   string
	profile       config.Profile
	deps          Deps
	opts          Options
	scenarioRegex *regexp.Regexp
	driver        *lazyDriver
	closers       []io.Closer

	// ctx is the run context, used by suite-level hooks that godog calls
	// without one.
	ctx context.Context
}

// New wires the nursery client, fixtures, steps, browser driver and hook
// executors for a real run. Close releases what New opened.
func New(ctx context.Context, cfg *config.Config, env *config.Env, run *runlog.Run, cm *container.Manager, opts Options) (*Runner, error) {
	client := nursery.New(env)

	var closers []io.Closer
	var locker fixtures.Locker
	if env.LockRedisURL != "" {
		rl, err := fixtures.NewRedisLocker(ctx, env.LockRedisURL)
		if err != nil {
			return nil, fmt.Errorf("connecting fixture lock: %w", err)
		}
		locker = rl
		closers = append(closers, rl)
	}

	deps := Deps{
		API:   client,
		Steps: steps.New(env, client, fixtures.New(client, locker)),
		Driver: driverFactory(env.Browser, opts.InstallBrowsers, world.InstallBrowsers, startDriver),
	}
	if run != nil {
		deps.Artifacts = run
	}
	if cm != nil {
		deps.Containers = cm
	}
	if cfg.Database.DSN != "" {
		db, err := database.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			closeAll(closers)
			return nil, err
		}
		deps.DB = db
		closers = append(closers, db)
	}

	r, err := newRunner(cfg, env, deps, opts)
	if err != nil {
		closeAll(closers)
		return nil, err
	}
	r.closers = closers
	return r, nil
}

// newRunner is the internal constructor that allows dependency injection for testing
func newRunner(cfg *config.Config, env *config.Env, deps Deps, opts Options) (*Runner, error) {
	name := opts.Profile
	if name == "" {
		name = config.ProfileDefault
	}
	profile, err := cfg.Profile(name)
	if err != nil {
		return nil, err
	}

	r := &Runner{
		config:      cfg,
		env:         env,
		profileName: name,
		profile:     profile,
		deps:        deps,
		opts:        opts,
		ctx:         context.Background(),
	}
	if deps.Driver != nil {
		r.driver = &lazyDriver{start: deps.Driver}
	}

	pattern := cfg.Settings.Scenario
	if opts.Scenario != "" {
		pattern = opts.Scenario
	}
	if pattern != "" {
		log.Debug().Str("pattern", pattern).Msg("compiling scenario filter regex")
		regex, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid scenario filter regex: %w", err)
		}
		r.scenarioRegex = regex
		log.Info().Str("pattern", pattern).Msg("scenario filter active")
	}

	return r, nil
}

// Run executes every scenario of the profile. A failing scenario makes Run
// return an error.
func (r *Runner) Run(ctx context.Context) error {
	r.ctx = ctx

	log.Debug().Str("url", r.env.APIBaseURL).Msg("waiting for the nursery api")
	if err := r.deps.API.WaitReady(ctx, r.config.Settings.ReadyTimeout); err != nil {
		return fmt.Errorf("nursery api not ready: %w", err)
	}

	if err := r.runHooks(ctx, r.config.Hooks.BeforeAll); err != nil {
		return fmt.Errorf("before_all hooks failed: %w", err)
	}

	opts, err := r.godogOptions()
	if err != nil {
		return err
	}
	log.Info().
		Str("profile", r.profileName).
		Strs("paths", opts.Paths).
		Str("tags", opts.Tags).
		Str("format", opts.Format).
		Int("concurrency", opts.Concurrency).
		Msg("running features")

	suite := godog.TestSuite{
		Name:                 "greenhouse",
		TestSuiteInitializer: r.initializeSuite,
		ScenarioInitializer:  r.initializeScenario,
		Options:              opts,
	}
	status := suite.Run()

	if status != 0 {
		return fmt.Errorf("tests failed with status %d", status)
	}
	return nil
}

// Close releases the database and lock connections opened by New.
func (r *Runner) Close() error {
	return closeAll(r.closers)
}

func (r *Runner) godogOptions() (*godog.Options, error) {
	paths := r.profile.Paths
	if len(r.opts.Paths) > 0 {
		paths = r.opts.Paths
	}

	format := r.profile.Format
	if r.opts.Format != "" {
		format = r.opts.Format
	}
	if err := prepareReportDirs(format); err != nil {
		return nil, err
	}

	concurrency := r.config.Settings.Concurrency
	if r.opts.Concurrency > 0 {
		concurrency = r.opts.Concurrency
	}

	opts := &godog.Options{
		Format:        format,
		Paths:         paths,
		Tags:          combineTags(r.profile.Tags, r.opts.Tags),
		StopOnFailure: r.config.Settings.FailFast || r.opts.FailFast,
		Strict:        r.config.Settings.IsStrict(),
		Concurrency:   concurrency,
		Output:        r.opts.Output,
	}
	if r.config.Settings.Randomize || r.opts.Randomize {
		opts.Randomize = -1
	}
	return opts, nil
}

// combineTags ANDs the profile tag expression with an extra one.
func combineTags(profile, extra string) string {
	switch {
	case profile == "":
		return extra
	case extra == "":
		return profile
	}
	return fmt.Sprintf("(%s) && (%s)", profile, extra)
}

// prepareReportDirs creates the directories of formatter output files, as
// in "html:reports/cucumber-report.html".
func prepareReportDirs(format string) error {
	for _, f := range strings.Split(format, ",") {
		_, path, ok := strings.Cut(strings.TrimSpace(f), ":")
		if !ok || path == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("creating report directory: %w", err)
		}
	}
	return nil
}

func (r *Runner) initializeSuite(ctx *godog.TestSuiteContext) {
	ctx.AfterSuite(func() {
		if err := r.runHooks(r.ctx, r.config.Hooks.AfterAll); err != nil {
			log.Warn().Err(err).Msg("after_all hooks failed")
		}
		if r.driver != nil {
			if err := r.driver.Stop(); err != nil {
				log.Warn().Err(err).Msg("stopping browser driver")
			}
		}
	})
}

func (r *Runner) initializeScenario(ctx *godog.ScenarioContext) {
	r.setupScenarioHooks(ctx)
	ctx.StepContext().Before(r.beforeStep)
	ctx.StepContext().After(r.afterStep)
	r.deps.Steps.Register(ctx)
}

// setupScenarioHooks sets up before/after hooks on the scenario context
// This internal method accepts an interface for testability
func (r *Runner) setupScenarioHooks(ctx ScenarioContext) {
	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		// Skip scenarios that don't match the filter regex
		if r.scenarioRegex != nil && !r.scenarioRegex.MatchString(sc.Name) {
			log.Info().Str("scenario", sc.Name).Msg("skipping scenario (doesn't match filter)")
			return ctx, godog.ErrSkip
		}

		tags := scenarioTags(sc)
		w := world.New(r.env, r.launcherFor(tags), tags)
		ctx = r.deps.Steps.Begin(ctx, w)

		log.Debug().Str("scenario", sc.Name).Strs("tags", tags).Bool("browser", r.launcherFor(tags) != nil).Msg("starting scenario")
		if err := w.Init(ctx); err != nil {
			w.Dispose()
			return ctx, err
		}

		if err := r.runHooks(ctx, r.config.Hooks.BeforeScenario); err != nil {
			w.Dispose()
			return ctx, fmt.Errorf("before_scenario hooks failed: %w", err)
		}

		return ctx, nil
	})

	ctx.After(func(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		w := world.FromContext(ctx)
		if w == nil {
			return ctx, nil
		}
		defer func() {
			if disposeErr := w.Dispose(); disposeErr != nil {
				log.Warn().Err(disposeErr).Str("scenario", sc.Name).Msg("disposing browser session")
			}
		}()

		if r.wantScreenshot(err) && w.HasBrowser() && r.deps.Artifacts != nil {
			path := r.deps.Artifacts.ScreenshotPath(sc.Name)
			if shotErr := w.Screenshot(path); shotErr != nil {
				log.Warn().Err(shotErr).Str("scenario", sc.Name).Msg("capturing screenshot")
			} else {
				log.Info().Str("scenario", sc.Name).Str("path", path).Msg("screenshot saved")
			}
		}

		if hookErr := r.runHooks(ctx, r.config.Hooks.AfterScenario); hookErr != nil {
			log.Warn().Err(hookErr).Msg("after_scenario hooks failed")
		}
		return ctx, nil
	})
}

func (r *Runner) wantScreenshot(scenarioErr error) bool {
	switch r.config.Settings.Screenshots {
	case "on":
		return true
	case "only-on-failure":
		return scenarioErr != nil
	}
	return false
}

// launcherFor returns nil when the scenario runs without a browser.
func (r *Runner) launcherFor(tags []string) world.Launcher {
	if r.driver == nil || r.profileName == config.ProfileAPI {
		return nil
	}
	if hasTag(tags, APITag) && !hasTag(tags, world.UITag) {
		return nil
	}
	return r.driver
}

func scenarioTags(sc *godog.Scenario) []string {
	tags := make([]string, 0, len(sc.Tags))
	for _, t := range sc.Tags {
		tags = append(tags, t.Name)
	}
	return tags
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

type stepDeadlineKey struct{}

type stepDeadline struct {
	parent context.Context
	cancel context.CancelFunc
}

// beforeStep bounds the step by the world's step timeout.
func (r *Runner) beforeStep(ctx context.Context, st *godog.Step) (context.Context, error) {
	w := world.FromContext(ctx)
	if w == nil || w.StepTimeout() <= 0 {
		return ctx, nil
	}
	stepCtx, cancel := context.WithTimeout(ctx, w.StepTimeout())
	return context.WithValue(stepCtx, stepDeadlineKey{}, stepDeadline{parent: ctx, cancel: cancel}), nil
}

// afterStep cancels the step deadline and hands the next step the context
// from before it.
func (r *Runner) afterStep(ctx context.Context, st *godog.Step, status godog.StepResultStatus, err error) (context.Context, error) {
	d, ok := ctx.Value(stepDeadlineKey{}).(stepDeadline)
	if !ok {
		return ctx, nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		log.Warn().Str("step", st.Text).Msg("step exceeded its timeout")
	}
	d.cancel()
	return d.parent, nil
}

func (r *Runner) runHooks(ctx context.Context, hooks []config.Hook) error {
	for _, hook := range hooks {
		if err := r.executeHook(ctx, hook); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) executeHook(ctx context.Context, hook config.Hook) error {
	switch {
	case hook.SQL != "":
		if r.deps.DB == nil {
			return errors.New("sql hook configured but no database is connected")
		}
		if _, err := r.deps.DB.ExecSQL(ctx, hook.SQL); err != nil {
			return fmt.Errorf("executing SQL: %w", err)
		}

	case hook.SQLFile != "":
		if r.deps.DB == nil {
			return errors.New("sql_file hook configured but no database is connected")
		}
		if err := r.deps.DB.ExecSQLFile(ctx, hook.SQLFile); err != nil {
			return fmt.Errorf("executing SQL file: %w", err)
		}

	case hook.Exec != "":
		if r.deps.Containers == nil {
			return fmt.Errorf("exec hook needs container %q, but no containers are running", hook.Container)
		}
		code, out, err := r.deps.Containers.Exec(ctx, hook.Container, []string{"sh", "-c", hook.Exec})
		if err != nil {
			return fmt.Errorf("executing command in %s: %w", hook.Container, err)
		}
		if code != 0 {
			return fmt.Errorf("command in %s exited with %d: %s", hook.Container, code, strings.TrimSpace(out))
		}
	}

	return nil
}

func startDriver() (BrowserDriver, error) {
	d, err := world.StartDriver()
	if err != nil {
		return nil, err
	}
	return d, nil
}

// driverFactory installs the engine of browser first when install is set.
func driverFactory(browser string, install bool, installFn func(...string) error, start DriverFactory) DriverFactory {
	return func() (BrowserDriver, error) {
		if install {
			engine := world.Engine(browser)
			log.Info().Str("browser", engine).Msg("installing playwright driver and browser")
			if err := installFn(engine); err != nil {
				return nil, err
			}
		}
		return start()
	}
}

// lazyDriver starts the browser driver on the first launch, so runs whose
// scenarios are all API-only never start Playwright.
type lazyDriver struct {
	start DriverFactory

	mu     sync.Mutex
	driver BrowserDriver
}

func (l *lazyDriver) Launch(ctx context.Context, opts world.LaunchOptions) (playwright.Browser, error) {
	l.mu.Lock()
	if l.driver == nil {
		d, err := l.start()
		if err != nil {
			l.mu.Unlock()
			return nil, err
		}
		l.driver = d
	}
	d := l.driver
	l.mu.Unlock()
	return d.Launch(ctx, opts)
}

func (l *lazyDriver) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.driver == nil {
		return nil
	}
	err := l.driver.Stop()
	l.driver = nil
	return err
}

func closeAll(closers []io.Closer) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
