// Package command implements the greenhouse CLI.
package command

import (
	"github.com/urfave/cli/v2"

	"github.com/greenhouse-qa/greenhouse/internal/version"
)

// Run runs the CLI with the given arguments
func Run(args []string) error {
	return newApp().Run(args)
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "greenhouse",
		Usage:   "End-to-end test suite for the QA Training nursery application",
		Version: version.Version,
		Description: `Greenhouse drives the nursery application through its REST API and its
web UI with Gherkin features. Profiles select the surface: "api" runs
the @API scenarios without a browser, "ui" runs the @UI scenarios in
Playwright, and "default" runs everything.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level (trace, debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			return setupLogging(c.App.ErrWriter, c.String("log-level"))
		},
		Commands: []*cli.Command{
			initCommand,
			newCommand,
			runCommand,
			checkCommand,
			validateCommand,
			stepsCommand,
			docsCommand,
			runsCommand,
			uiCommand,
			versionCommand,
		},
	}
}
