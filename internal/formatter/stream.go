package formatter

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/cucumber/godog/formatters"
	messages "github.com/cucumber/messages/go/v21"
)

// EventPrefix starts every event line so consumers can pick them out of
// mixed output.
const EventPrefix = "GREENHOUSE_EVENT:"

// Event types for structured output
const (
	EventFeatureStart  = "feature_start"
	EventScenarioStart = "scenario_start"
	EventScenarioEnd   = "scenario_end"
	EventStepEnd       = "step_end"
	EventSummary       = "summary"
)

// Event represents a structured test event
type Event struct {
	Type       string `json:"type"`
	Feature    string `json:"feature,omitempty"`
	Scenario   string `json:"scenario,omitempty"`
	Step       string `json:"step,omitempty"`
	Status     string `json:"status,omitempty"`
	Error      string `json:"error,omitempty"`
	File       string `json:"file,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`

	// Summary fields
	Total     int `json:"total,omitempty"`
	Passed    int `json:"passed,omitempty"`
	Failed    int `json:"failed,omitempty"`
	Skipped   int `json:"skipped,omitempty"`
	Undefined int `json:"undefined,omitempty"`
}

// StreamFormatter writes one JSON event per line as the run progresses and
// a short human summary at the end.
type StreamFormatter struct {
	*collector
	out io.Writer
	wmu sync.Mutex
}

// StreamFormatterFunc creates a new StreamFormatter
func StreamFormatterFunc(suite string, out io.Writer) formatters.Formatter {
	return &StreamFormatter{collector: newCollector(suite), out: out}
}

func (f *StreamFormatter) emit(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	f.wmu.Lock()
	defer f.wmu.Unlock()
	fmt.Fprintf(f.out, "%s%s\n", EventPrefix, data)
}

func (f *StreamFormatter) TestRunStarted() { f.runStarted() }

func (f *StreamFormatter) Feature(doc *messages.GherkinDocument, uri string, content []byte) {
	feat := f.feature(doc, uri)
	f.emit(Event{Type: EventFeatureStart, Feature: feat.Name, File: uri})
}

func (f *StreamFormatter) Pickle(pickle *messages.Pickle) {
	sc := f.pickle(pickle)
	f.emit(Event{Type: EventScenarioStart, Feature: sc.Feature, Scenario: sc.Name, File: pickle.Uri})
	if sc.expected == 0 {
		f.scenarioEnd(sc)
	}
}

func (f *StreamFormatter) scenarioEnd(sc *ScenarioResult) {
	f.emit(Event{
		Type:     EventScenarioEnd,
		Feature:  sc.Feature,
		Scenario: sc.Name,
		Status:   string(sc.Status()),
		Error:    sc.Error(),
	})
}

func (f *StreamFormatter) record(pickle *messages.Pickle, step *messages.PickleStep, status Status, err error) {
	res, done := f.step(pickle, step, status, err)
	f.emit(Event{
		Type:       EventStepEnd,
		Scenario:   pickle.Name,
		Step:       res.Text,
		Status:     string(res.Status),
		Error:      res.Error,
		DurationMS: res.Duration.Milliseconds(),
	})
	if done != nil {
		f.scenarioEnd(done)
	}
}

func (f *StreamFormatter) Defined(pickle *messages.Pickle, step *messages.PickleStep, def *formatters.StepDefinition) {
	f.stepStarted(pickle, step)
}

func (f *StreamFormatter) Passed(pickle *messages.Pickle, step *messages.PickleStep, def *formatters.StepDefinition) {
	f.record(pickle, step, StatusPassed, nil)
}

func (f *StreamFormatter) Failed(pickle *messages.Pickle, step *messages.PickleStep, def *formatters.StepDefinition, err error) {
	f.record(pickle, step, StatusFailed, err)
}

func (f *StreamFormatter) Skipped(pickle *messages.Pickle, step *messages.PickleStep, def *formatters.StepDefinition) {
	f.record(pickle, step, StatusSkipped, nil)
}

func (f *StreamFormatter) Undefined(pickle *messages.Pickle, step *messages.PickleStep, def *formatters.StepDefinition) {
	f.record(pickle, step, StatusUndefined, nil)
}

func (f *StreamFormatter) Pending(pickle *messages.Pickle, step *messages.PickleStep, def *formatters.StepDefinition) {
	f.record(pickle, step, StatusPending, nil)
}

func (f *StreamFormatter) Ambiguous(pickle *messages.Pickle, step *messages.PickleStep, def *formatters.StepDefinition, err error) {
	f.record(pickle, step, StatusAmbiguous, err)
}

// Summary closes any scenario that never finished and emits the totals.
func (f *StreamFormatter) Summary() {
	for _, sc := range f.finish() {
		f.scenarioEnd(sc)
	}

	f.mu.Lock()
	c := f.report.Counts()
	f.mu.Unlock()

	f.emit(Event{
		Type:      EventSummary,
		Total:     c.Total,
		Passed:    c.Scenarios[string(StatusPassed)],
		Failed:    c.Scenarios[string(StatusFailed)] + c.Scenarios[string(StatusAmbiguous)],
		Skipped:   c.Scenarios[string(StatusSkipped)],
		Undefined: c.Scenarios[string(StatusUndefined)] + c.Scenarios[string(StatusPending)],
	})

	f.wmu.Lock()
	defer f.wmu.Unlock()
	fmt.Fprintln(f.out)
	writeTally(f.out, "scenarios", c.Total, c.Scenarios)
	writeTally(f.out, "steps", c.StepTotal, c.Steps)
}

func writeTally(w io.Writer, noun string, total int, by map[string]int) {
	fmt.Fprintf(w, "%d %s (%d passed", total, noun, by[string(StatusPassed)])
	for _, s := range []Status{StatusFailed, StatusAmbiguous, StatusUndefined, StatusPending, StatusSkipped} {
		if n := by[string(s)]; n > 0 {
			fmt.Fprintf(w, ", %d %s", n, s)
		}
	}
	fmt.Fprintln(w, ")")
}
