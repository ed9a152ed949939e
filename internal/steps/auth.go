package steps

import (
	"context"

	"github.com/rs/zerolog/log"
)

func (s *Suite) authSteps() StepCategory {
	return StepCategory{
		Name:        "Authentication",
		Description: "Log in through the UI or obtain an API token for a role",
		Surface:     SurfaceAPI,
		Steps: []StepDef{
			{
				Group:       "Givens",
				Pattern:     `^I am logged in as "([^"]*)"$`,
				Description: "Log in through the login form and land on the dashboard",
				Example:     `I am logged in as "admin"`,
				Handler:     s.loggedInAs,
			},
			{
				Group:       "Givens",
				Pattern:     `^I have a valid "([^"]*)" token$`,
				Description: "Log in through the API; later API steps send this token",
				Example:     `I have a valid "user" token`,
				Handler:     s.validToken,
			},
		},
	}
}

func (s *Suite) loggedInAs(ctx context.Context, role string) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	app, err := sc.pages()
	if err != nil {
		return err
	}
	cred, err := s.env.Credential(normalizeRole(role))
	if err != nil {
		return err
	}
	return app.Login.Login(cred.Username, cred.Password)
}

func (s *Suite) validToken(ctx context.Context, role string) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	role = normalizeRole(role)
	if token, ok := sc.Tokens[role]; ok {
		sc.Token = token
		return nil
	}
	token, err := s.client.LoginAs(ctx, role)
	if err != nil {
		return err
	}
	log.Debug().Str("role", role).Msg("token acquired")
	sc.Tokens[role] = token
	sc.Token = token
	return nil
}
