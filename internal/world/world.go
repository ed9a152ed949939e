// Package world holds the per-scenario execution context: the browser
// session and the typed scratch state steps share within one scenario.
package world

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog/log"

	"github.com/greenhouse-qa/greenhouse/internal/config"
	"github.com/greenhouse-qa/greenhouse/internal/nursery"
)

// UITag marks scenarios that may run with a visible browser.
const UITag = "@UI"

// World is created fresh for every scenario and never shared between them.
type World struct {
	Env      *config.Env
	launcher Launcher
	tags     []string

	Browser playwright.Browser
	Context playwright.BrowserContext
	Page    playwright.Page

	// Token is the bearer token API "When" steps send.
	Token        string
	Tokens       map[string]string
	LastResponse *nursery.Response

	Categories        map[string]nursery.Category
	Plants            map[string]nursery.Plant
	SaleID            int64
	InitialSalesCount int
	SearchTerm        string
	LastNavigation    string

	disposed bool
}

// New creates a world for a scenario with the given tags. A nil launcher
// gives a world without a browser, for API-only runs.
func New(env *config.Env, launcher Launcher, tags []string) *World {
	return &World{
		Env:        env,
		launcher:   launcher,
		tags:       tags,
		Tokens:     make(map[string]string),
		Categories: make(map[string]nursery.Category),
		Plants:     make(map[string]nursery.Plant),
	}
}

// HasTag reports whether the scenario carries tag (with or without '@').
func (w *World) HasTag(tag string) bool {
	tag = "@" + strings.TrimPrefix(tag, "@")
	for _, t := range w.tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Headless reports whether the browser for this scenario runs headless.
func (w *World) Headless() bool {
	return !(w.Env.Headed && w.HasTag(UITag))
}

// HasBrowser reports whether Init acquired a page.
func (w *World) HasBrowser() bool {
	return w.Page != nil
}

// Init launches a browser, opens an isolated context and a page. Whatever
// was acquired before a failure is released again.
func (w *World) Init(ctx context.Context) error {
	if w.launcher == nil {
		return nil
	}

	browser, err := w.launcher.Launch(ctx, LaunchOptions{
		Browser:  w.Env.Browser,
		Headless: w.Headless(),
		SlowMo:   w.Env.SlowMo,
	})
	if err != nil {
		return fmt.Errorf("acquiring browser: %w", err)
	}
	w.Browser = browser

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: 1280, Height: 720},
	})
	if err != nil {
		w.release()
		return fmt.Errorf("creating browser context: %w", err)
	}
	w.Context = bctx

	page, err := bctx.NewPage()
	if err != nil {
		w.release()
		return fmt.Errorf("opening page: %w", err)
	}
	page.SetDefaultTimeout(float64(w.Env.ExpectTimeout.Milliseconds()))
	page.SetDefaultNavigationTimeout(float64(w.Env.DefaultTimeout.Milliseconds()))
	w.Page = page

	log.Debug().Str("browser", w.Env.Browser).Bool("headless", w.Headless()).Msg("browser session ready")
	return nil
}

// Dispose closes the browser, which closes its context and page. It is safe
// to call more than once and after a failed or skipped Init.
func (w *World) Dispose() error {
	if w.disposed {
		return nil
	}
	w.disposed = true
	return w.release()
}

func (w *World) release() error {
	var errs []error
	if w.Context != nil {
		if err := w.Context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing context: %w", err))
		}
	}
	if w.Browser != nil {
		if err := w.Browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing browser: %w", err))
		}
	}
	w.Page, w.Context, w.Browser = nil, nil, nil
	return errors.Join(errs...)
}

// Screenshot writes a full-page PNG to path.
func (w *World) Screenshot(path string) error {
	if w.Page == nil {
		return errors.New("no page to capture")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating screenshot dir: %w", err)
	}
	if _, err := w.Page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	}); err != nil {
		return fmt.Errorf("taking screenshot: %w", err)
	}
	return nil
}

// StepTimeout bounds a single step.
func (w *World) StepTimeout() time.Duration {
	return w.Env.DefaultTimeout
}

type ctxKey struct{}

// WithWorld stores w in ctx.
func WithWorld(ctx context.Context, w *World) context.Context {
	return context.WithValue(ctx, ctxKey{}, w)
}

// FromContext returns the world stored by WithWorld, or nil.
func FromContext(ctx context.Context) *World {
	w, _ := ctx.Value(ctxKey{}).(*World)
	return w
}
