package pages

import (
	"fmt"
	"regexp"
	"strings"
)

var dashboardURL = regexp.MustCompile(`/ui/dashboard`)

// LoginPage is the sign-in form.
type LoginPage struct {
	*Session
}

const (
	loginUsername = `input[type="text"]`
	loginPassword = `input[type="password"]`
	loginSubmit   = `button:visible`
)

// Login signs in and waits for the dashboard.
func (p *LoginPage) Login(username, password string) error {
	if !strings.Contains(p.URL(), p.Env.Routes.Login) {
		if err := p.Navigate(p.Env.Routes.Login); err != nil {
			return err
		}
	}
	if err := p.Fill(loginUsername, username); err != nil {
		return err
	}
	if err := p.Fill(loginPassword, password); err != nil {
		return err
	}
	if err := p.Click(loginSubmit); err != nil {
		return err
	}
	if err := p.ExpectURL(dashboardURL); err != nil {
		return fmt.Errorf("login as %q: %w", username, err)
	}
	return nil
}

func (p *LoginPage) IsLoggedIn() bool {
	return strings.Contains(p.URL(), p.Env.Routes.Dashboard)
}
