package runner

import (
	"context"
	"time"

	"github.com/cucumber/godog"

	"github.com/greenhouse-qa/greenhouse/internal/world"
)

// API abstracts the nursery client calls the runner makes itself
type API interface {
	WaitReady(ctx context.Context, timeout time.Duration) error
}

// StepSuite abstracts steps.Suite for testing
type StepSuite interface {
	Register(sc *godog.ScenarioContext)
	Begin(ctx context.Context, w *world.World) context.Context
}

// BrowserDriver launches browsers and owns the Playwright driver process
type BrowserDriver interface {
	world.Launcher
	Stop() error
}

// DriverFactory starts the browser driver
type DriverFactory func() (BrowserDriver, error)

// ContainerExecutor abstracts container execution for testing
type ContainerExecutor interface {
	Exec(ctx context.Context, name string, cmd []string) (int, string, error)
}

// SQLExecutor abstracts database.DB for testing
type SQLExecutor interface {
	ExecSQL(ctx context.Context, query string) (int64, error)
	ExecSQLFile(ctx context.Context, path string) error
}

// Screenshotter names screenshot files for failed scenarios
type Screenshotter interface {
	ScreenshotPath(scenario string) string
}

// ScenarioContext abstracts godog.ScenarioContext for testing
type ScenarioContext interface {
	Before(h godog.BeforeScenarioHook)
	After(h godog.AfterScenarioHook)
}
