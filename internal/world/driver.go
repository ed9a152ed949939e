package world

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog/log"
)

// LaunchOptions selects and configures the browser for one scenario.
type LaunchOptions struct {
	Browser  string
	Headless bool
	SlowMo   time.Duration
}

// Launcher starts a browser. Driver is the production implementation.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (playwright.Browser, error)
}

// Driver owns the Playwright driver process for the whole run.
type Driver struct {
	pw *playwright.Playwright
}

// StartDriver starts the Playwright driver. The driver and browsers must
// already be installed, see InstallBrowsers.
func StartDriver() (*Driver, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("starting playwright: %w", err)
	}
	log.Debug().Msg("playwright driver started")
	return &Driver{pw: pw}, nil
}

// InstallBrowsers downloads the driver and the named browsers.
func InstallBrowsers(browsers ...string) error {
	if err := playwright.Install(&playwright.RunOptions{Browsers: browsers}); err != nil {
		return fmt.Errorf("installing playwright browsers: %w", err)
	}
	return nil
}

// Engine maps a configured browser name to the Playwright engine that
// runs it.
func Engine(browser string) string {
	switch browser {
	case "", "chrome":
		return "chromium"
	case "safari":
		return "webkit"
	}
	return browser
}

func (d *Driver) Launch(ctx context.Context, opts LaunchOptions) (playwright.Browser, error) {
	var bt playwright.BrowserType
	switch Engine(opts.Browser) {
	case "chromium":
		bt = d.pw.Chromium
	case "firefox":
		bt = d.pw.Firefox
	case "webkit":
		bt = d.pw.WebKit
	default:
		return nil, fmt.Errorf("unknown browser %q (expected chromium, firefox or webkit)", opts.Browser)
	}

	launch := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	}
	if opts.SlowMo > 0 {
		launch.SlowMo = playwright.Float(float64(opts.SlowMo.Milliseconds()))
	}

	type result struct {
		browser playwright.Browser
		err     error
	}
	done := make(chan result, 1)
	go func() {
		b, err := bt.Launch(launch)
		done <- result{b, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("launching %s: %w", bt.Name(), r.err)
		}
		return r.browser, nil
	case <-ctx.Done():
		go func() {
			if r := <-done; r.browser != nil {
				r.browser.Close()
			}
		}()
		return nil, fmt.Errorf("launching %s: %w", bt.Name(), ctx.Err())
	}
}

// Stop shuts the driver down.
func (d *Driver) Stop() error {
	if err := d.pw.Stop(); err != nil {
		return fmt.Errorf("stopping playwright: %w", err)
	}
	log.Debug().Msg("playwright driver stopped")
	return nil
}
