// Package pages holds one page object per screen of the nursery UI. Each
// screen embeds a Session, which owns the page handle and the timeouts.
//
// Operations come in two kinds. Probe* answers "is it there" and only a
// timeout counts as "no". Expect* fails with an error when the
// expectation is not met within the expect timeout.
package pages

import (
	"errors"
	"fmt"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog/log"

	"github.com/greenhouse-qa/greenhouse/internal/config"
)

// probeTimeout bounds Probe* when no timeout is configured.
const probeTimeout = 5 * time.Second

// Session wraps the page for one scenario.
type Session struct {
	Page playwright.Page
	Env  *config.Env

	expect       playwright.PlaywrightAssertions
	acceptDialog atomic.Bool
}

// NewSession binds a session to page. Dialogs are dismissed unless
// AcceptNextDialog was called first.
func NewSession(page playwright.Page, env *config.Env) *Session {
	s := &Session{
		Page:   page,
		Env:    env,
		expect: playwright.NewPlaywrightAssertions(float64(env.ExpectTimeout.Milliseconds())),
	}
	page.OnDialog(func(d playwright.Dialog) {
		if s.acceptDialog.Swap(false) {
			log.Debug().Str("message", d.Message()).Msg("accepting dialog")
			d.Accept()
			return
		}
		d.Dismiss()
	})
	return s
}

// Navigate opens route relative to the UI base URL.
func (s *Session) Navigate(route string) error {
	return s.Goto(s.Env.UIURL(route))
}

// Goto opens an absolute URL.
func (s *Session) Goto(url string) error {
	if _, err := s.Page.Goto(url); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return nil
}

func (s *Session) URL() string {
	return s.Page.URL()
}

func (s *Session) Locator(selector string) playwright.Locator {
	return s.Page.Locator(selector)
}

// Rows returns the table body rows containing every one of texts.
func (s *Session) Rows(texts ...string) playwright.Locator {
	rows := s.Page.Locator("tbody tr")
	for _, t := range texts {
		rows = rows.Filter(playwright.LocatorFilterOptions{HasText: t})
	}
	return rows
}

// Probe reports whether selector becomes visible within the probe timeout.
func (s *Session) Probe(selector string) (bool, error) {
	return s.ProbeLocator(s.Page.Locator(selector).First())
}

// ProbeLocator is Probe for an already built locator.
func (s *Session) ProbeLocator(l playwright.Locator) (bool, error) {
	timeout := s.Env.ExpectTimeout
	if timeout <= 0 {
		timeout = probeTimeout
	}
	err := l.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err == nil {
		return true, nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return false, nil
	}
	return false, err
}

// ExpectVisible fails unless l becomes visible. what names it in the error.
func (s *Session) ExpectVisible(l playwright.Locator, what string) error {
	if err := s.expect.Locator(l).ToBeVisible(); err != nil {
		return fmt.Errorf("expected %s to be visible: %w", what, err)
	}
	return nil
}

// ExpectHidden fails unless l is hidden or absent.
func (s *Session) ExpectHidden(l playwright.Locator, what string) error {
	if err := s.expect.Locator(l).Not().ToBeVisible(); err != nil {
		return fmt.Errorf("expected %s not to be visible: %w", what, err)
	}
	return nil
}

// ExpectCount fails unless l matches exactly n elements.
func (s *Session) ExpectCount(l playwright.Locator, n int, what string) error {
	if err := s.expect.Locator(l).ToHaveCount(n); err != nil {
		return fmt.Errorf("expected %d %s: %w", n, what, err)
	}
	return nil
}

// ExpectURL fails unless the page URL matches re.
func (s *Session) ExpectURL(re *regexp.Regexp) error {
	if err := s.expect.Page(s.Page).ToHaveURL(re); err != nil {
		return fmt.Errorf("expected URL matching %s, at %s: %w", re, s.Page.URL(), err)
	}
	return nil
}

// ExpectURLEquals fails unless the page URL is exactly url.
func (s *Session) ExpectURLEquals(url string) error {
	if err := s.expect.Page(s.Page).ToHaveURL(url); err != nil {
		return fmt.Errorf("expected URL %s, at %s: %w", url, s.Page.URL(), err)
	}
	return nil
}

// AcceptNextDialog accepts the next confirm/alert the page raises.
func (s *Session) AcceptNextDialog() {
	s.acceptDialog.Store(true)
}

// WaitIdle waits for the network to go quiet.
func (s *Session) WaitIdle() error {
	if err := s.Page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State: playwright.LoadStateNetworkidle,
	}); err != nil {
		return fmt.Errorf("waiting for network idle: %w", err)
	}
	return nil
}

// Click clicks the first element matching selector.
func (s *Session) Click(selector string) error {
	if err := s.Page.Locator(selector).First().Click(); err != nil {
		return fmt.Errorf("clicking %s: %w", selector, err)
	}
	return nil
}

// Fill types value into the first element matching selector.
func (s *Session) Fill(selector, value string) error {
	if err := s.Page.Locator(selector).First().Fill(value); err != nil {
		return fmt.Errorf("filling %s: %w", selector, err)
	}
	return nil
}

// SelectLabel picks the option with the visible label in a select.
func (s *Session) SelectLabel(selector, label string) error {
	if _, err := s.Page.Locator(selector).First().SelectOption(playwright.SelectOptionValues{
		Labels: &[]string{label},
	}); err != nil {
		return fmt.Errorf("selecting %q in %s: %w", label, selector, err)
	}
	return nil
}

// SelectValue picks the option with value in a select.
func (s *Session) SelectValue(selector, value string) error {
	if _, err := s.Page.Locator(selector).First().SelectOption(playwright.SelectOptionValues{
		Values: &[]string{value},
	}); err != nil {
		return fmt.Errorf("selecting value %q in %s: %w", value, selector, err)
	}
	return nil
}

// ClickButton clicks the first link or button labelled text.
func (s *Session) ClickButton(text string) error {
	return s.Click(fmt.Sprintf(`a:has-text(%q), button:has-text(%q)`, text, text))
}
