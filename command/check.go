package command

import (
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/greenhouse-qa/greenhouse/internal/config"
	"github.com/greenhouse-qa/greenhouse/internal/nursery"
)

var checkCommand = &cli.Command{
	Name:  "check",
	Usage: "Check that the nursery API is reachable and the credentials work",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "env-file",
			Aliases: []string{"e"},
			Usage:   "dotenv file with the nursery settings (default: .env when present)",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "how long to wait for the API to become healthy",
			Value: 10 * time.Second,
		},
	},
	Action: runCheck,
}

var errCheckFailed = errors.New("nursery check failed")

func runCheck(c *cli.Context) error {
	env, err := config.LoadEnv(c.String("env-file"))
	if err != nil {
		return err
	}
	client := nursery.New(env)
	out := c.App.Writer

	fmt.Fprintln(out, titleStyle.Render("Nursery check"))
	fmt.Fprintf(out, "  API %s\n  UI  %s\n\n", env.APIBaseURL, env.UIBaseURL)

	failed := false
	report := func(name string, err error) {
		if err != nil {
			failed = true
			fmt.Fprintf(out, "%s %s: %v\n", errorStyle.Render("✗"), name, err)
			return
		}
		fmt.Fprintf(out, "%s %s\n", successStyle.Render("✓"), name)
	}

	report("health "+env.Endpoints.Health, client.WaitReady(c.Context, c.Duration("timeout")))

	for _, role := range []string{config.RoleAdmin, config.RoleUser} {
		cred, err := env.Credential(role)
		if err != nil {
			report(role+" login", err)
			continue
		}
		token, err := client.LoginAs(c.Context, role)
		if err == nil {
			_, err = client.Logout(c.Context, token)
		}
		report(fmt.Sprintf("%s login as %q", role, cred.Username), err)
	}

	if failed {
		return errCheckFailed
	}
	return nil
}
