package command

import (
	"fmt"
	"sort"

	"github.com/urfave/cli/v2"

	"github.com/greenhouse-qa/greenhouse/internal/version"
)

var versionCommand = &cli.Command{
	Name:  "version",
	Usage: "Print version information",
	Action: func(c *cli.Context) error {
		info := version.Info()
		keys := make([]string, 0, len(info))
		for k := range info {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Fprintf(c.App.Writer, "greenhouse %s\n", version.Version)
		for _, k := range keys {
			fmt.Fprintf(c.App.Writer, "  %-10s %s\n", k+":", info[k])
		}
		return nil
	},
}
