package formatter

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cucumber/godog"
	messages "github.com/cucumber/messages/go/v21"
)

func testPickle(uri, id, name string, steps ...string) *messages.Pickle {
	p := &messages.Pickle{Id: id, Uri: uri, Name: name}
	for i, text := range steps {
		p.Steps = append(p.Steps, &messages.PickleStep{Id: id + "-" + string(rune('a'+i)), Text: text})
	}
	return p
}

func testDoc(name string) *messages.GherkinDocument {
	return &messages.GherkinDocument{Feature: &messages.Feature{Name: name}}
}

func TestScenarioStatus(t *testing.T) {
	tests := []struct {
		name  string
		steps []Status
		want  Status
	}{
		{"all passed", []Status{StatusPassed, StatusPassed}, StatusPassed},
		{"failure wins", []Status{StatusPassed, StatusFailed, StatusSkipped}, StatusFailed},
		{"undefined", []Status{StatusPassed, StatusUndefined, StatusSkipped}, StatusUndefined},
		{"pending", []Status{StatusPending, StatusSkipped}, StatusPending},
		{"ambiguous", []Status{StatusAmbiguous}, StatusAmbiguous},
		{"all skipped", []Status{StatusSkipped, StatusSkipped}, StatusSkipped},
		{"no steps", nil, StatusPassed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := &ScenarioResult{}
			for _, s := range tt.steps {
				sc.Steps = append(sc.Steps, StepResult{Status: s})
			}
			if got := sc.Status(); got != tt.want {
				t.Errorf("Status() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCollector(t *testing.T) {
	c := newCollector("greenhouse")
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	c.runStarted()
	c.feature(testDoc("Plants"), "features/plants.feature")

	ok := testPickle("features/plants.feature", "1", "Create plant", "admin token", "create plant")
	bad := testPickle("features/plants.feature", "2", "Invalid price", "admin token", "create plant", "status is 400")
	c.pickle(ok)
	c.pickle(bad)

	c.stepStarted(ok, ok.Steps[0])
	clock = clock.Add(120 * time.Millisecond)
	res, done := c.step(ok, ok.Steps[0], StatusPassed, nil)
	if res.Duration != 120*time.Millisecond {
		t.Errorf("duration = %v, want 120ms", res.Duration)
	}
	if done != nil {
		t.Fatal("scenario reported done after its first step")
	}
	if _, done = c.step(ok, ok.Steps[1], StatusPassed, nil); done == nil {
		t.Fatal("scenario not reported done after its last step")
	}

	c.step(bad, bad.Steps[0], StatusPassed, nil)
	c.step(bad, bad.Steps[1], StatusFailed, errors.New("expected status 400, got 201"))

	clock = clock.Add(time.Second)
	open := c.finish()
	if len(open) != 1 || open[0].Name != "Invalid price" {
		t.Fatalf("open scenarios = %v, want [Invalid price]", open)
	}

	counts := c.report.Counts()
	if counts.Total != 2 || counts.StepTotal != 4 {
		t.Errorf("totals = %d scenarios, %d steps; want 2, 4", counts.Total, counts.StepTotal)
	}
	if counts.Scenarios["passed"] != 1 || counts.Scenarios["failed"] != 1 {
		t.Errorf("scenario counts = %v", counts.Scenarios)
	}
	if got := open[0].Error(); got != "expected status 400, got 201" {
		t.Errorf("Error() = %q", got)
	}
	if got := c.report.Duration(); got != 1120*time.Millisecond {
		t.Errorf("Duration() = %v, want 1.12s", got)
	}
	if c.report.Features[0].Name != "Plants" || open[0].Feature != "Plants" {
		t.Errorf("feature name not carried onto results")
	}
}

func TestRenderHTML_Escapes(t *testing.T) {
	report := &Report{
		Suite:     "greenhouse",
		StartedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Features: []*FeatureResult{{
			URI:  "features/categories.feature",
			Name: "Categories",
			Scenarios: []*ScenarioResult{{
				Name: "Name <script>alert(1)</script>",
				Tags: []string{"@API", "@smoke"},
				Steps: []StepResult{
					{Text: `I create category "<b>"`, Status: StatusFailed, Error: "status 400 & <oops>"},
				},
			}},
		}},
	}

	var buf bytes.Buffer
	if err := RenderHTML(&buf, report); err != nil {
		t.Fatalf("RenderHTML() error = %v", err)
	}
	out := buf.String()

	for _, raw := range []string{"<script>alert(1)</script>", "<b>", "<oops>"} {
		if strings.Contains(out, raw) {
			t.Errorf("output contains unescaped %q", raw)
		}
	}
	for _, want := range []string{
		"&lt;script&gt;",
		"@API @smoke",
		"<details open>",
		`class="failed"`,
		"1 failed",
		"features/categories.feature",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestStreamFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := StreamFormatterFunc("greenhouse", &buf)

	p := testPickle("features/sales.feature", "1", "Delete sale", "admin token", "delete sale")
	empty := testPickle("features/sales.feature", "2", "Nothing to do")

	f.TestRunStarted()
	f.Feature(testDoc("Sales"), "features/sales.feature", nil)
	f.Pickle(p)
	f.Defined(p, p.Steps[0], nil)
	f.Passed(p, p.Steps[0], nil)
	f.Defined(p, p.Steps[1], nil)
	f.Failed(p, p.Steps[1], nil, errors.New("sale not found"))
	f.Pickle(empty)
	f.Summary()

	var events []Event
	var human []string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		data, ok := strings.CutPrefix(line, EventPrefix)
		if !ok {
			human = append(human, line)
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			t.Fatalf("invalid event %q: %v", line, err)
		}
		events = append(events, ev)
	}

	var types []string
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	want := []string{
		EventFeatureStart,
		EventScenarioStart, EventStepEnd, EventStepEnd, EventScenarioEnd,
		EventScenarioStart, EventScenarioEnd,
		EventSummary,
	}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Fatalf("event types = %v, want %v", types, want)
	}

	end := events[4]
	if end.Scenario != "Delete sale" || end.Status != "failed" || end.Error != "sale not found" {
		t.Errorf("scenario_end = %+v", end)
	}
	if end.Feature != "Sales" {
		t.Errorf("scenario_end feature = %q, want Sales", end.Feature)
	}

	summary := events[len(events)-1]
	if summary.Total != 2 || summary.Passed != 1 || summary.Failed != 1 {
		t.Errorf("summary = %+v", summary)
	}

	text := strings.Join(human, "\n")
	if !strings.Contains(text, "2 scenarios (1 passed, 1 failed)") {
		t.Errorf("human summary = %q", text)
	}
	if !strings.Contains(text, "2 steps (1 passed, 1 failed)") {
		t.Errorf("human summary = %q", text)
	}
}

func TestHTMLFormatter_RegisteredWithGodog(t *testing.T) {
	var buf bytes.Buffer

	status := godog.TestSuite{
		Name: "greenhouse",
		ScenarioInitializer: func(sc *godog.ScenarioContext) {
			sc.Step(`^the nursery is open$`, func() error { return nil })
			sc.Step(`^a plant is missing$`, func() error { return errors.New("plant \"Fern\" not found") })
		},
		Options: &godog.Options{
			Format:   "html",
			Output:   &buf,
			NoColors: true,
			FeatureContents: []godog.Feature{{
				Name: "nursery.feature",
				Contents: []byte(`Feature: Nursery
  Scenario: Open
    Given the nursery is open

  Scenario: Missing plant
    Given the nursery is open
    Then a plant is missing
`),
			}},
		},
	}.Run()

	if status == 0 {
		t.Fatal("expected a failing status")
	}
	out := buf.String()
	for _, want := range []string{"<!DOCTYPE html>", "Nursery", "Missing plant", "plant &#34;Fern&#34; not found", "2 scenarios"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q", want)
		}
	}
}
