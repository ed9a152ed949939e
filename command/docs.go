package command

import (
	"fmt"
	htmltemplate "html/template"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/urfave/cli/v2"

	"github.com/greenhouse-qa/greenhouse/internal/steps"
)

var docsCommand = &cli.Command{
	Name:   "docs",
	Usage:  "Generate documentation for the available steps",
	Hidden: true,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output directory for mkdocs format, or file for other formats",
		},
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Value:   "mkdocs",
			Usage:   "Output format: mkdocs (generates docs/steps/), markdown (single file), html",
		},
	},
	Action: runDocs,
}

func runDocs(c *cli.Context) error {
	format := c.String("format")
	output := c.String("output")
	categories := steps.New(nil, nil, nil).Registry().Categories()

	if format == "mkdocs" {
		if output == "" {
			output = filepath.Join("docs", "steps")
		}
		return generateMkDocs(c.App.Writer, output, categories)
	}

	var generate func(io.Writer, []steps.StepCategory) error
	switch format {
	case "markdown":
		generate = generateMarkdown
	case "html":
		generate = generateHTML
	default:
		return fmt.Errorf("unknown format: %s", format)
	}

	w := c.App.Writer
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return generate(w, categories)
}

// GroupedStep is a step with processed fields for docs
type GroupedStep struct {
	Example     string
	Description string
}

// StepGroup groups steps by their group name
type StepGroup struct {
	Name  string
	Steps []GroupedStep
}

// CategoryWithGroups is a category with steps grouped
type CategoryWithGroups struct {
	Name        string
	Description string
	Surface     string
	File        string
	Groups      []StepGroup
}

// DocsData is the data structure for the docs templates
type DocsData struct {
	Categories []CategoryWithGroups
}

func buildCategoryWithGroups(cat steps.StepCategory) CategoryWithGroups {
	out := CategoryWithGroups{
		Name:        cat.Name,
		Description: cat.Description,
		Surface:     strings.ToUpper(cat.Surface),
		File:        strings.ToLower(strings.ReplaceAll(cat.Name, " ", "-")) + ".md",
	}
	for _, group := range cat.Groups() {
		name := group
		if name == "" {
			name = "General"
		}
		sg := StepGroup{Name: name}
		for _, step := range cat.Steps {
			if step.Group == group {
				sg.Steps = append(sg.Steps, GroupedStep{
					Example:     firstLine(step.Example),
					Description: step.Description,
				})
			}
		}
		out.Groups = append(out.Groups, sg)
	}
	return out
}

func docsData(categories []steps.StepCategory) DocsData {
	data := DocsData{Categories: make([]CategoryWithGroups, 0, len(categories))}
	for _, cat := range categories {
		data.Categories = append(data.Categories, buildCategoryWithGroups(cat))
	}
	return data
}

const mkdocsCategoryTemplate = `# {{.Name}}

{{.Description}} ({{.Surface}})
{{range .Groups}}
## {{.Name}}

| Step | Description |
|------|-------------|
{{range .Steps}}| ` + "`" + `{{.Example}}` + "`" + ` | {{.Description}} |
{{end}}{{end}}`

const mkdocsIndexTemplate = `# Step reference

| Area | Surface | Description |
|------|---------|-------------|
{{range .Categories}}| [{{.Name}}]({{.File}}) | {{.Surface}} | {{.Description}} |
{{end}}
## Unique names

Step arguments may contain placeholders. The same text expands to the same
value for the whole scenario, so a name created in a Given step can be
asserted in a Then step.

| Placeholder | Example output |
|-------------|----------------|
| ` + "`{{\"{{\"}}random:N{{\"}}\"}}`" + ` | ` + "`A8kL`" + ` |
| ` + "`{{\"{{\"}}random:N:numeric{{\"}}\"}}`" + ` | ` + "`8472`" + ` |
| ` + "`{{\"{{\"}}uuid{{\"}}\"}}`" + ` | ` + "`f47ac10b-58cc-4372-a567-0e02b2c3d479`" + ` |
| ` + "`{{\"{{\"}}timestamp{{\"}}\"}}`" + ` | ` + "`2024-01-15T10:30:00Z`" + ` |
| ` + "`{{\"{{\"}}timestamp:unix{{\"}}\"}}`" + ` | ` + "`1705315800`" + ` |
| ` + "`{{\"{{\"}}sequence:name{{\"}}\"}}`" + ` | ` + "`1`, `2`, `3`" + ` |

` + "```gherkin" + `
Given a category exists via API named "Rose{{"{{"}}random:4{{"}}"}}"
When I delete category "Rose{{"{{"}}random:4{{"}}"}}" via API
Then a search for category "Rose{{"{{"}}random:4{{"}}"}}" via API returns 0 matches
` + "```" + `
`

func generateMkDocs(out io.Writer, outputDir string, categories []steps.StepCategory) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	catTmpl, err := template.New("category").Parse(mkdocsCategoryTemplate)
	if err != nil {
		return fmt.Errorf("parsing category template: %w", err)
	}
	indexTmpl, err := template.New("index").Parse(mkdocsIndexTemplate)
	if err != nil {
		return fmt.Errorf("parsing index template: %w", err)
	}

	data := docsData(categories)
	for _, cat := range data.Categories {
		path := filepath.Join(outputDir, cat.File)
		if err := executeToFile(catTmpl, path, cat); err != nil {
			return err
		}
		fmt.Fprintf(out, "Generated %s\n", path)
	}

	indexPath := filepath.Join(outputDir, "index.md")
	if err := executeToFile(indexTmpl, indexPath, data); err != nil {
		return err
	}
	fmt.Fprintf(out, "Generated %s\n", indexPath)
	return nil
}

func executeToFile(tmpl *template.Template, path string, data any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating file %s: %w", path, err)
	}
	if err := tmpl.Execute(f, data); err != nil {
		f.Close()
		return fmt.Errorf("executing template for %s: %w", path, err)
	}
	return f.Close()
}

const markdownTemplate = `# Greenhouse step reference

> This document is generated from the step registry.
{{range .Categories}}
---

## {{.Name}} ({{.Surface}})

{{.Description}}
{{range .Groups}}
### {{.Name}}

| Step | Description |
|------|-------------|
{{range .Steps}}| ` + "`" + `{{.Example}}` + "`" + ` | {{.Description}} |
{{end}}{{end}}{{end}}`

func generateMarkdown(w io.Writer, categories []steps.StepCategory) error {
	tmpl, err := template.New("docs").Parse(markdownTemplate)
	if err != nil {
		return fmt.Errorf("parsing template: %w", err)
	}
	return tmpl.Execute(w, docsData(categories))
}

const htmlTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>Greenhouse Step Reference</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 900px; margin: 0 auto; padding: 20px; }
        h1 { color: #2e7d32; }
        h2 { color: #2c3e50; border-bottom: 2px solid #2e7d32; padding-bottom: 10px; }
        table { border-collapse: collapse; width: 100%; margin-bottom: 20px; }
        th, td { border: 1px solid #ddd; padding: 8px; text-align: left; }
        th { background-color: #f8f9fa; }
        code { background: #f8f9fa; padding: 2px 6px; border-radius: 4px; font-family: monospace; }
        .surface { font-size: 0.7em; color: #666; }
    </style>
</head>
<body>
    <h1>Greenhouse Step Reference</h1>
    {{range .Categories}}
    <h2>{{.Name}} <span class="surface">{{.Surface}}</span></h2>
    <p>{{.Description}}</p>
    {{range .Groups}}
    <h3>{{.Name}}</h3>
    <table>
        <tr><th>Step</th><th>Description</th></tr>
        {{range .Steps}}<tr><td><code>{{.Example}}</code></td><td>{{.Description}}</td></tr>
        {{end}}
    </table>
    {{end}}
    {{end}}
</body>
</html>`

func generateHTML(w io.Writer, categories []steps.StepCategory) error {
	tmpl, err := htmltemplate.New("docs").Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("parsing template: %w", err)
	}
	return tmpl.Execute(w, docsData(categories))
}
