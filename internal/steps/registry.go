package steps

import (
	"sort"
	"strings"

	"github.com/cucumber/godog"
)

// StepDef is one Gherkin sentence bound to a handler.
type StepDef struct {
	// Group is the sub-heading within a category, e.g. "Givens" or "Assertions".
	Group string `json:"group,omitempty"`

	// Pattern is the anchored regular expression godog matches against.
	Pattern string `json:"pattern"`

	Description string `json:"description"`

	// Example is a step text that Pattern matches.
	Example string `json:"example,omitempty"`

	Handler any `json:"-"`
}

// StepCategory groups the steps of one area of the application.
type StepCategory struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Surface     string    `json:"surface"`
	Steps       []StepDef `json:"steps"`
}

// Surfaces a category drives.
const (
	SurfaceAPI = "api"
	SurfaceUI  = "ui"
)

// Registry holds every step category.
type Registry struct {
	categories []StepCategory
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) AddCategory(category StepCategory) {
	r.categories = append(r.categories, category)
}

func (r *Registry) Categories() []StepCategory {
	return r.categories
}

// AllSteps returns the steps of every category in registration order.
func (r *Registry) AllSteps() []StepDef {
	var all []StepDef
	for _, cat := range r.categories {
		all = append(all, cat.Steps...)
	}
	return all
}

// Filter returns the categories whose name contains category (case-insensitive)
// and, within them, the steps whose pattern, description or example contain
// text. Empty arguments match everything.
func (r *Registry) Filter(category, text string) []StepCategory {
	var out []StepCategory
	for _, cat := range r.categories {
		if category != "" && !strings.Contains(strings.ToLower(cat.Name), strings.ToLower(category)) {
			continue
		}
		filtered := cat
		filtered.Steps = nil
		for _, s := range cat.Steps {
			if text == "" || matchesText(s, text) {
				filtered.Steps = append(filtered.Steps, s)
			}
		}
		if len(filtered.Steps) > 0 {
			out = append(out, filtered)
		}
	}
	return out
}

// Groups lists the distinct groups of a category, sorted.
func (c StepCategory) Groups() []string {
	seen := map[string]bool{}
	var groups []string
	for _, s := range c.Steps {
		if !seen[s.Group] {
			seen[s.Group] = true
			groups = append(groups, s.Group)
		}
	}
	sort.Strings(groups)
	return groups
}

// RegisterToGodog binds every step to a godog scenario context.
func (r *Registry) RegisterToGodog(ctx *godog.ScenarioContext) {
	for _, cat := range r.categories {
		for _, step := range cat.Steps {
			ctx.Step(step.Pattern, step.Handler)
		}
	}
}

func matchesText(s StepDef, text string) bool {
	text = strings.ToLower(text)
	return strings.Contains(strings.ToLower(s.Pattern), text) ||
		strings.Contains(strings.ToLower(s.Description), text) ||
		strings.Contains(strings.ToLower(s.Example), text)
}
