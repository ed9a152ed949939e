package command

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gherkin "github.com/cucumber/gherkin/go/v26"
	messages "github.com/cucumber/messages/go/v21"
)

// FeatureJSON is a parsed feature file as shown by the web UI.
type FeatureJSON struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	FilePath    string         `json:"filePath"`
	Background  []StepJSON     `json:"background,omitempty"`
	Scenarios   []ScenarioJSON `json:"scenarios"`
}

type ScenarioJSON struct {
	Name      string        `json:"name"`
	Tags      []string      `json:"tags,omitempty"`
	Steps     []StepJSON    `json:"steps"`
	IsOutline bool          `json:"isOutline,omitempty"`
	Examples  []ExampleJSON `json:"examples,omitempty"`
}

type StepJSON struct {
	Keyword   string     `json:"keyword"`
	Text      string     `json:"text"`
	DocString string     `json:"docString,omitempty"`
	Table     [][]string `json:"table,omitempty"`
}

type ExampleJSON struct {
	Name string     `json:"name,omitempty"`
	Rows [][]string `json:"rows"`
}

// findFeatureFiles walks root and returns its .feature files in sorted
// order. A root that is itself a feature file is returned as is.
func findFeatureFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if strings.HasSuffix(root, ".feature") {
			return []string{root}, nil
		}
		return nil, nil
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".feature") {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// parseFeature parses a feature file into its Gherkin document and the
// pickles godog would run for it.
func parseFeature(path string) (*messages.GherkinDocument, []*messages.Pickle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	ids := &messages.Incrementing{}
	doc, err := gherkin.ParseGherkinDocument(f, ids.NewId)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if doc.Feature == nil {
		return doc, nil, nil
	}
	return doc, gherkin.Pickles(*doc, path, ids.NewId), nil
}

func featureJSON(path string, doc *messages.GherkinDocument) *FeatureJSON {
	feature := doc.Feature
	fd := &FeatureJSON{
		Name:        feature.Name,
		Description: strings.TrimSpace(feature.Description),
		FilePath:    path,
		Tags:        tagNames(feature.Tags),
	}

	for _, child := range feature.Children {
		if child.Background != nil {
			fd.Background = stepsJSON(child.Background.Steps)
		}
		if child.Scenario == nil {
			continue
		}
		sc := child.Scenario
		sd := ScenarioJSON{
			Name:      sc.Name,
			Tags:      tagNames(sc.Tags),
			Steps:     stepsJSON(sc.Steps),
			IsOutline: len(sc.Examples) > 0,
		}
		for _, ex := range sc.Examples {
			ed := ExampleJSON{Name: ex.Name}
			if ex.TableHeader != nil {
				ed.Rows = append(ed.Rows, cellValues(ex.TableHeader))
			}
			for _, row := range ex.TableBody {
				ed.Rows = append(ed.Rows, cellValues(row))
			}
			sd.Examples = append(sd.Examples, ed)
		}
		fd.Scenarios = append(fd.Scenarios, sd)
	}
	return fd
}

func stepsJSON(steps []*messages.Step) []StepJSON {
	out := make([]StepJSON, 0, len(steps))
	for _, step := range steps {
		st := StepJSON{Keyword: strings.TrimSpace(step.Keyword), Text: step.Text}
		if step.DocString != nil {
			st.DocString = step.DocString.Content
		}
		if step.DataTable != nil {
			for _, row := range step.DataTable.Rows {
				st.Table = append(st.Table, cellValues(row))
			}
		}
		out = append(out, st)
	}
	return out
}

func cellValues(row *messages.TableRow) []string {
	cells := make([]string, 0, len(row.Cells))
	for _, c := range row.Cells {
		cells = append(cells, c.Value)
	}
	return cells
}

func tagNames(tags []*messages.Tag) []string {
	var out []string
	for _, t := range tags {
		out = append(out, t.Name)
	}
	return out
}
