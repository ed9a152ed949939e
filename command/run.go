package command

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/greenhouse-qa/greenhouse/internal/config"
	"github.com/greenhouse-qa/greenhouse/internal/container"
	"github.com/greenhouse-qa/greenhouse/internal/runlog"
	"github.com/greenhouse-qa/greenhouse/internal/runner"
)

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "Run the feature files of a profile",
	ArgsUsage: "[paths...]",
	Description: `Runs the scenarios selected by the profile. Paths given as arguments
replace the profile paths. Reports go to the profile formats; failure
screenshots and logs go to reports/runs/<timestamp>_<id>/.`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "profile",
			Aliases: []string{"p"},
			Usage:   "profile to run (default, ui, api or one from greenhouse.yml)",
			Value:   config.ProfileDefault,
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "path to greenhouse.yml",
			Value:   config.DefaultFile,
		},
		&cli.StringFlag{
			Name:    "env-file",
			Aliases: []string{"e"},
			Usage:   "dotenv file with the nursery settings (default: .env when present)",
		},
		&cli.StringFlag{
			Name:    "tags",
			Aliases: []string{"t"},
			Usage:   "tag expression, combined with the profile tags",
		},
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "godog formats, e.g. progress,html:reports/report.html,cucumber:reports/report.json",
		},
		&cli.IntFlag{
			Name:  "concurrency",
			Usage: "number of scenarios to run in parallel",
		},
		&cli.StringFlag{
			Name:    "scenario",
			Aliases: []string{"s"},
			Usage:   "run only scenarios whose name matches this regex",
		},
		&cli.BoolFlag{
			Name:  "headed",
			Usage: "show the browser window",
		},
		&cli.BoolFlag{
			Name:  "fail-fast",
			Usage: "stop at the first failing scenario",
		},
		&cli.BoolFlag{
			Name:  "randomize",
			Usage: "run scenarios in random order",
		},
		&cli.BoolFlag{
			Name:    "install-browsers",
			EnvVars: []string{"INSTALL_BROWSERS"},
			Usage:   "download the Playwright driver and browser before the first UI scenario",
		},
	},
	Action: runFeatures,
}

func runFeatures(c *cli.Context) error {
	cfg, err := config.LoadOrDefault(c.String("config"))
	if err != nil {
		return err
	}
	env, err := config.LoadEnv(c.String("env-file"))
	if err != nil {
		return err
	}
	if c.Bool("headed") {
		env.Headed = true
	}

	run, err := runlog.New(env.ReportsDir)
	if err != nil {
		return err
	}
	closeLog, err := logToRun(run)
	if err != nil {
		return err
	}
	defer closeLog()
	log.Info().Str("dir", run.Dir).Msg("run started")

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cm, err := startContainers(ctx, cfg, env, run)
	if err != nil {
		return err
	}
	if cm != nil {
		defer cm.Cleanup()
	}

	r, err := runner.New(ctx, cfg, env, run, cm, runner.Options{
		Profile:     c.String("profile"),
		Tags:        c.String("tags"),
		Format:      c.String("format"),
		Paths:       c.Args().Slice(),
		Concurrency: c.Int("concurrency"),
		Scenario:    c.String("scenario"),
		FailFast:    c.Bool("fail-fast"),
		Randomize:   c.Bool("randomize"),
		Output:      c.App.Writer,

		InstallBrowsers: c.Bool("install-browsers"),
	})
	if err != nil {
		return err
	}
	defer r.Close()

	return r.Run(ctx)
}

// startContainers brings up the containers of greenhouse.yml, if any, and
// points env at the target container.
func startContainers(ctx context.Context, cfg *config.Config, env *config.Env, run *runlog.Run) (*container.Manager, error) {
	if len(cfg.Containers) == 0 {
		return nil, nil
	}
	if err := container.CheckDockerAvailable(); err != nil {
		return nil, err
	}

	cm, err := container.NewManager(cfg.Containers)
	if err != nil {
		return nil, err
	}
	cm.SetRun(run)

	log.Info().Str("containers", strings.Join(cm.Order(), ", ")).Msg("starting containers")
	if err := cm.StartAll(ctx); err != nil {
		cm.Cleanup()
		return nil, err
	}
	if err := cm.ResolveTarget(ctx, cfg.Target, env); err != nil {
		cm.Cleanup()
		return nil, err
	}

	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		var b strings.Builder
		cm.WriteConnectionInfo(ctx, &b)
		log.Debug().Msgf("container ports:\n%s", b.String())
	}
	return cm, nil
}
