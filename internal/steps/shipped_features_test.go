package steps

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	gherkin "github.com/cucumber/gherkin/go/v26"
	messages "github.com/cucumber/messages/go/v21"
)

func TestShippedFeaturesUseKnownSteps(t *testing.T) {
	var files []string
	for _, dir := range []string{"api", "ui"} {
		matches, err := filepath.Glob(filepath.Join("..", "..", "features", dir, "*.feature"))
		if err != nil {
			t.Fatal(err)
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		t.Fatal("no feature files found")
	}

	patterns := compiled(t, New(nil, nil, nil).Registry().AllSteps())
	ids := &messages.Incrementing{}

	for _, path := range files {
		t.Run(filepath.Base(filepath.Dir(path))+"/"+filepath.Base(path), func(t *testing.T) {
			f, err := os.Open(path)
			if err != nil {
				t.Fatal(err)
			}
			defer f.Close()

			doc, err := gherkin.ParseGherkinDocument(f, ids.NewId)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			pickles := gherkin.Pickles(*doc, path, ids.NewId)
			if len(pickles) == 0 {
				t.Fatal("feature has no scenarios")
			}

			for _, p := range pickles {
				if len(p.Tags) == 0 {
					t.Errorf("%s: scenario %q has no surface tag", path, p.Name)
				}
				for _, step := range p.Steps {
					if n := countMatches(patterns, step.Text); n != 1 {
						t.Errorf("%s: %q matches %d step definitions", p.Name, step.Text, n)
					}
				}
			}
		})
	}
}

func countMatches(patterns []*regexp.Regexp, text string) int {
	n := 0
	for _, re := range patterns {
		if re.MatchString(text) {
			n++
		}
	}
	return n
}
