package formatter

import (
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/cucumber/godog/formatters"
	messages "github.com/cucumber/messages/go/v21"
)

// HTMLFormatter collects results and writes one HTML document on Summary.
type HTMLFormatter struct {
	*collector
	out io.Writer
}

// HTMLFormatterFunc creates a new HTMLFormatter
func HTMLFormatterFunc(suite string, out io.Writer) formatters.Formatter {
	return &HTMLFormatter{collector: newCollector(suite), out: out}
}

func (f *HTMLFormatter) TestRunStarted() { f.runStarted() }

func (f *HTMLFormatter) Feature(doc *messages.GherkinDocument, uri string, content []byte) {
	f.feature(doc, uri)
}

func (f *HTMLFormatter) Pickle(pickle *messages.Pickle) { f.pickle(pickle) }

func (f *HTMLFormatter) Defined(pickle *messages.Pickle, step *messages.PickleStep, def *formatters.StepDefinition) {
	f.stepStarted(pickle, step)
}

func (f *HTMLFormatter) Passed(pickle *messages.Pickle, step *messages.PickleStep, def *formatters.StepDefinition) {
	f.step(pickle, step, StatusPassed, nil)
}

func (f *HTMLFormatter) Failed(pickle *messages.Pickle, step *messages.PickleStep, def *formatters.StepDefinition, err error) {
	f.step(pickle, step, StatusFailed, err)
}

func (f *HTMLFormatter) Skipped(pickle *messages.Pickle, step *messages.PickleStep, def *formatters.StepDefinition) {
	f.step(pickle, step, StatusSkipped, nil)
}

func (f *HTMLFormatter) Undefined(pickle *messages.Pickle, step *messages.PickleStep, def *formatters.StepDefinition) {
	f.step(pickle, step, StatusUndefined, nil)
}

func (f *HTMLFormatter) Pending(pickle *messages.Pickle, step *messages.PickleStep, def *formatters.StepDefinition) {
	f.step(pickle, step, StatusPending, nil)
}

func (f *HTMLFormatter) Ambiguous(pickle *messages.Pickle, step *messages.PickleStep, def *formatters.StepDefinition, err error) {
	f.step(pickle, step, StatusAmbiguous, err)
}

func (f *HTMLFormatter) Summary() {
	f.finish()
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := RenderHTML(f.out, &f.report); err != nil {
		fmt.Fprintf(f.out, "<!-- rendering report: %s -->\n", template.HTMLEscapeString(err.Error()))
	}
}

// RenderHTML writes report as a standalone HTML page.
func RenderHTML(w io.Writer, report *Report) error {
	return reportTemplate.Execute(w, report)
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"lower": func(s Status) string { return strings.ToLower(string(s)) },
	"join":  strings.Join,
}).Parse(reportHTML))

const reportHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Suite}} report</title>
<style>
body { font-family: -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; margin: 2rem; color: #1f2933; }
h1 { margin-bottom: 0.25rem; }
.meta { color: #616e7c; margin-bottom: 1.5rem; }
.totals span { display: inline-block; margin-right: 1rem; padding: 0.25rem 0.6rem; border-radius: 4px; background: #f0f4f8; }
section { margin-top: 2rem; }
details { border: 1px solid #d9e2ec; border-radius: 4px; margin: 0.5rem 0; padding: 0.5rem 0.75rem; }
summary { cursor: pointer; font-weight: 600; }
ol { margin: 0.5rem 0 0 1rem; padding: 0; }
li { margin: 0.2rem 0; }
pre { white-space: pre-wrap; background: #fff5f5; padding: 0.5rem; border-radius: 4px; }
.tag { font-size: 0.8rem; color: #486581; margin-left: 0.5rem; }
.dur { color: #9aa5b1; font-size: 0.8rem; margin-left: 0.5rem; }
.passed { color: #2f8132; }
.failed, .ambiguous { color: #c62828; }
.skipped { color: #7b8794; }
.undefined, .pending { color: #b7791f; }
</style>
</head>
<body>
<h1>{{.Suite}}</h1>
{{- $c := .Counts}}
<div class="meta">Started {{.StartedAt.Format "2006-01-02 15:04:05"}}, took {{.Duration}}</div>
<div class="totals">
<span>{{$c.Total}} scenarios</span>
<span class="passed">{{index $c.Scenarios "passed"}} passed</span>
<span class="failed">{{index $c.Scenarios "failed"}} failed</span>
<span class="skipped">{{index $c.Scenarios "skipped"}} skipped</span>
<span class="undefined">{{index $c.Scenarios "undefined"}} undefined</span>
<span>{{$c.StepTotal}} steps</span>
</div>
{{- range .Features}}{{if .Scenarios}}
<section>
<h2>{{.Name}}</h2>
<div class="meta">{{.URI}}</div>
{{- range .Scenarios}}
{{if ne .Status "passed"}}<details open>{{else}}<details>{{end}}
<summary class="{{lower .Status}}">{{.Name}} ({{.Status}}){{if .Tags}}<span class="tag">{{join .Tags " "}}</span>{{end}}</summary>
<ol>
{{- range .Steps}}
<li class="{{lower .Status}}">{{.Text}}<span class="dur">{{.Duration}}</span>{{if .Error}}<pre>{{.Error}}</pre>{{end}}</li>
{{- end}}
</ol>
</details>
{{- end}}
</section>
{{- end}}{{end}}
</body>
</html>
`
