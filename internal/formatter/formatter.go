// Package formatter provides the godog formatters greenhouse adds: a
// self-contained HTML report and a line-oriented JSON event stream.
package formatter

import (
	"sync"
	"time"

	"github.com/cucumber/godog"
	messages "github.com/cucumber/messages/go/v21"
)

func init() {
	godog.Format("html", "Self-contained HTML report", HTMLFormatterFunc)
	godog.Format("stream", "Structured JSON events, one per line", StreamFormatterFunc)
}

// Status of a step or scenario
type Status string

const (
	StatusPassed    Status = "passed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusUndefined Status = "undefined"
	StatusPending   Status = "pending"
	StatusAmbiguous Status = "ambiguous"
)

// Report is everything a run produced, grouped by feature.
type Report struct {
	Suite      string
	StartedAt  time.Time
	FinishedAt time.Time
	Features   []*FeatureResult
}

type FeatureResult struct {
	URI       string
	Name      string
	Scenarios []*ScenarioResult
}

type ScenarioResult struct {
	ID      string
	Feature string
	Name    string
	Tags    []string
	Steps   []StepResult

	// expected is the number of steps godog will report on.
	expected int
}

type StepResult struct {
	Text     string
	Status   Status
	Error    string
	Duration time.Duration
}

// Status folds the step results: any failure wins, then undefined and
// pending steps. A scenario whose steps were all skipped is skipped.
func (s *ScenarioResult) Status() Status {
	seen := map[Status]bool{}
	for _, st := range s.Steps {
		seen[st.Status] = true
	}
	for _, status := range []Status{StatusFailed, StatusAmbiguous, StatusUndefined, StatusPending} {
		if seen[status] {
			return status
		}
	}
	if seen[StatusSkipped] && !seen[StatusPassed] {
		return StatusSkipped
	}
	return StatusPassed
}

// Error returns the first step error.
func (s *ScenarioResult) Error() string {
	for _, st := range s.Steps {
		if st.Error != "" {
			return st.Error
		}
	}
	return ""
}

func (s *ScenarioResult) done() bool {
	return len(s.Steps) >= s.expected
}

// Counts tallies scenarios and steps by status name.
type Counts struct {
	Scenarios map[string]int
	Steps     map[string]int
	Total     int
	StepTotal int
}

func (r *Report) Counts() Counts {
	c := Counts{Scenarios: map[string]int{}, Steps: map[string]int{}}
	for _, f := range r.Features {
		for _, sc := range f.Scenarios {
			c.Total++
			c.Scenarios[string(sc.Status())]++
			for _, st := range sc.Steps {
				c.StepTotal++
				c.Steps[string(st.Status)]++
			}
		}
	}
	return c
}

// Duration of the run
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond)
}

// collector builds a Report from formatter callbacks. godog calls
// formatters from concurrent scenarios, so every method locks.
type collector struct {
	mu        sync.Mutex
	report    Report
	features  map[string]*FeatureResult
	scenarios map[string]*ScenarioResult
	started   map[string]time.Time
	now       func() time.Time
}

func newCollector(suite string) *collector {
	return &collector{
		report:    Report{Suite: suite},
		features:  make(map[string]*FeatureResult),
		scenarios: make(map[string]*ScenarioResult),
		started:   make(map[string]time.Time),
		now:       time.Now,
	}
}

func (c *collector) runStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.report.StartedAt = c.now()
}

func (c *collector) feature(doc *messages.GherkinDocument, uri string) *FeatureResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.featureLocked(uri, doc)
}

func (c *collector) featureLocked(uri string, doc *messages.GherkinDocument) *FeatureResult {
	f, ok := c.features[uri]
	if !ok {
		f = &FeatureResult{URI: uri, Name: uri}
		c.features[uri] = f
		c.report.Features = append(c.report.Features, f)
	}
	if doc != nil && doc.Feature != nil {
		f.Name = doc.Feature.Name
	}
	return f
}

func (c *collector) pickle(p *messages.Pickle) *ScenarioResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	f := c.featureLocked(p.Uri, nil)
	sc := &ScenarioResult{ID: p.Id, Feature: f.Name, Name: p.Name, expected: len(p.Steps)}
	for _, t := range p.Tags {
		sc.Tags = append(sc.Tags, t.Name)
	}
	f.Scenarios = append(f.Scenarios, sc)
	c.scenarios[p.Id] = sc
	return sc
}

func (c *collector) stepStarted(p *messages.Pickle, step *messages.PickleStep) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started[p.Id+"/"+step.Id] = c.now()
}

// step records a result. The returned scenario is non-nil once all of its
// steps have reported.
func (c *collector) step(p *messages.Pickle, step *messages.PickleStep, status Status, err error) (StepResult, *ScenarioResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := StepResult{Text: step.Text, Status: status}
	if err != nil {
		res.Error = err.Error()
	}
	key := p.Id + "/" + step.Id
	if start, ok := c.started[key]; ok {
		res.Duration = c.now().Sub(start)
		delete(c.started, key)
	}

	sc, ok := c.scenarios[p.Id]
	if !ok {
		return res, nil
	}
	sc.Steps = append(sc.Steps, res)
	if sc.done() {
		return res, sc
	}
	return res, nil
}

// finish stamps the end time and returns the scenarios that never reported
// all of their steps.
func (c *collector) finish() []*ScenarioResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.report.FinishedAt = c.now()
	var open []*ScenarioResult
	for _, f := range c.report.Features {
		for _, sc := range f.Scenarios {
			if !sc.done() {
				open = append(open, sc)
			}
		}
	}
	return open
}
