package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/greenhouse-qa/greenhouse/internal/runlog"
)

var runsCommand = &cli.Command{
	Name:  "runs",
	Usage: "List previous runs and their artifacts",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "reports-dir",
			Usage:   "directory holding the runs",
			Value:   "reports",
			EnvVars: []string{"REPORTS_DIR"},
		},
		&cli.IntFlag{
			Name:    "limit",
			Aliases: []string{"n"},
			Usage:   "show at most this many runs",
			Value:   10,
		},
	},
	Action: func(c *cli.Context) error {
		runs, err := runlog.ListRuns(c.String("reports-dir"))
		if err != nil {
			return err
		}
		out := c.App.Writer
		if len(runs) == 0 {
			fmt.Fprintln(out, helpStyle.Render("No runs yet."))
			return nil
		}

		if limit := c.Int("limit"); limit > 0 && len(runs) > limit {
			runs = runs[:limit]
		}
		for _, r := range runs {
			fmt.Fprintf(out, "%s  %s\n", selectedStyle.Render(r.Name), helpStyle.Render(r.Dir))
			fmt.Fprintf(out, "    %d screenshots, logs: %v\n", r.Screenshots, r.Logs)
		}
		return nil
	},
}
