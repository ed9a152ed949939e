package command

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/greenhouse-qa/greenhouse/internal/steps"
)

var stepsCommand = &cli.Command{
	Name:  "steps",
	Usage: "List available Gherkin steps",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "filter",
			Aliases: []string{"f"},
			Usage:   "Filter steps by keyword",
		},
		&cli.StringFlag{
			Name:    "group",
			Aliases: []string{"g"},
			Usage:   "Filter by category (authentication, categories, plants, sales, dashboard, api)",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output in JSON format",
		},
	},
	Action: runSteps,
}

func runSteps(c *cli.Context) error {
	categories := steps.New(nil, nil, nil).Registry().Filter(c.String("group"), c.String("filter"))
	out := c.App.Writer

	if c.Bool("json") {
		if categories == nil {
			categories = []steps.StepCategory{}
		}
		output, err := json.MarshalIndent(categories, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(out, string(output))
		return nil
	}

	if len(categories) == 0 {
		fmt.Fprintln(out, helpStyle.Render("No steps match."))
		return nil
	}

	for _, cat := range categories {
		fmt.Fprintf(out, "\n%s %s\n", titleStyle.UnsetMarginBottom().Render(cat.Name), helpStyle.Render("["+cat.Surface+"]"))
		fmt.Fprintln(out, helpStyle.Render(cat.Description))

		for _, group := range cat.Groups() {
			if group != "" {
				fmt.Fprintf(out, "\n  %s\n", subtitleStyle.UnsetMarginBottom().Render(group))
			}
			for _, step := range cat.Steps {
				if step.Group != group {
					continue
				}
				fmt.Fprintf(out, "\n  %s\n", selectedStyle.Render(step.Description))
				fmt.Fprintf(out, "  %s\n", patternStyle.Render(step.Pattern))
				if step.Example != "" {
					fmt.Fprintf(out, "  %s\n", helpStyle.Render("Example: "+strings.SplitN(step.Example, "\n", 2)[0]))
				}
			}
		}
	}
	fmt.Fprintln(out)

	return nil
}
