// Package steps binds Gherkin sentences to the nursery API client, the
// fixtures and the page objects.
//
// Handlers are methods of Suite and never keep scenario state on it. The
// state lives in a scenario value carried by the step context, which Begin
// installs before the first step of every scenario.
package steps

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cucumber/godog"
	"github.com/stretchr/testify/assert"

	"github.com/greenhouse-qa/greenhouse/internal/config"
	"github.com/greenhouse-qa/greenhouse/internal/fixtures"
	"github.com/greenhouse-qa/greenhouse/internal/nursery"
	"github.com/greenhouse-qa/greenhouse/internal/pages"
	"github.com/greenhouse-qa/greenhouse/internal/world"
)

// Suite holds the process-wide collaborators of the step handlers.
type Suite struct {
	env      *config.Env
	client   *nursery.Client
	fixtures *fixtures.Service
	registry *Registry
}

// New creates the step suite. Listing steps needs no collaborators, so nil
// values are accepted as long as no handler runs.
func New(env *config.Env, client *nursery.Client, fx *fixtures.Service) *Suite {
	s := &Suite{env: env, client: client, fixtures: fx}
	s.registry = NewRegistry()
	for _, cat := range []StepCategory{
		s.authSteps(),
		s.categoryAPISteps(),
		s.categoryUISteps(),
		s.plantAPISteps(),
		s.plantUISteps(),
		s.saleAPISteps(),
		s.saleUISteps(),
		s.dashboardUISteps(),
		s.apiSteps(),
	} {
		s.registry.AddCategory(cat)
	}
	return s
}

// Registry returns every step definition.
func (s *Suite) Registry() *Registry {
	return s.registry
}

// Register binds the steps to a godog scenario context.
func (s *Suite) Register(sc *godog.ScenarioContext) {
	s.registry.RegisterToGodog(sc)
}

// Begin attaches a fresh scenario for w to ctx.
func (s *Suite) Begin(ctx context.Context, w *world.World) context.Context {
	ctx = world.WithWorld(ctx, w)
	return context.WithValue(ctx, scenarioKey{}, &scenario{World: w, vars: NewVariables()})
}

type scenarioKey struct{}

// scenario is the typed state steps share within one scenario.
type scenario struct {
	*world.World
	vars *Variables
	app  *pages.App
}

var errNoScenario = errors.New("no scenario in step context")

func current(ctx context.Context) (*scenario, error) {
	sc, ok := ctx.Value(scenarioKey{}).(*scenario)
	if !ok {
		return nil, errNoScenario
	}
	return sc, nil
}

func currentUI(ctx context.Context) (*scenario, *pages.App, error) {
	sc, err := current(ctx)
	if err != nil {
		return nil, nil, err
	}
	app, err := sc.pages()
	if err != nil {
		return nil, nil, err
	}
	return sc, app, nil
}

// pages returns the page objects, building them on first use.
func (sc *scenario) pages() (*pages.App, error) {
	if sc.app != nil {
		return sc.app, nil
	}
	if !sc.HasBrowser() {
		return nil, errors.New("this step needs a browser, but the scenario has none (run it with the ui or default profile)")
	}
	sc.app = pages.NewApp(sc.Page, sc.Env)
	return sc.app, nil
}

func (sc *scenario) expand(s string) string {
	return sc.vars.Replace(s)
}

// token is the bearer token of the last "I have a valid ... token" step.
func (sc *scenario) token() (string, error) {
	if sc.Token == "" {
		return "", errors.New(`no token in this scenario; add a step like: Given I have a valid "admin" token`)
	}
	return sc.Token, nil
}

func (sc *scenario) response() (*nursery.Response, error) {
	if sc.LastResponse == nil {
		return nil, errors.New("no response received yet")
	}
	return sc.LastResponse, nil
}

func (sc *scenario) record(resp *nursery.Response, err error) error {
	if err != nil {
		return err
	}
	sc.LastResponse = resp
	return nil
}

func (sc *scenario) category(name string) (nursery.Category, error) {
	c, ok := sc.Categories[name]
	if !ok {
		return c, fmt.Errorf("category %q was not set up in this scenario", name)
	}
	return c, nil
}

func (sc *scenario) plant(name string) (nursery.Plant, error) {
	p, ok := sc.Plants[name]
	if !ok {
		return p, fmt.Errorf("plant %q was not set up in this scenario", name)
	}
	return p, nil
}

// collector is an assert.TestingT that keeps failures as errors.
type collector struct {
	errs []error
}

func (c *collector) Errorf(format string, args ...any) {
	c.errs = append(c.errs, fmt.Errorf(format, args...))
}

// verify runs testify assertions and returns their failures as one error.
func verify(fn func(t assert.TestingT)) error {
	var c collector
	fn(&c)
	return errors.Join(c.errs...)
}

// normalizeRole maps the role names used in feature files to configured roles.
func normalizeRole(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "normal", "standard", "normal user", "testuser":
		return config.RoleUser
	}
	return strings.ToLower(strings.TrimSpace(role))
}

// tableRecord turns a header row plus one value row into a map.
func tableRecord(table *godog.Table) (map[string]string, error) {
	if table == nil || len(table.Rows) < 2 {
		return nil, errors.New("expected a table with a header row and a value row")
	}
	header, values := table.Rows[0].Cells, table.Rows[1].Cells
	if len(header) != len(values) {
		return nil, fmt.Errorf("table header has %d columns, values have %d", len(header), len(values))
	}
	rec := make(map[string]string, len(header))
	for i, cell := range header {
		rec[strings.ToLower(strings.TrimSpace(cell.Value))] = values[i].Value
	}
	return rec, nil
}

// tableCells flattens every cell of a table.
func tableCells(table *godog.Table) []string {
	if table == nil {
		return nil
	}
	var out []string
	for _, row := range table.Rows {
		for _, cell := range row.Cells {
			if v := strings.TrimSpace(cell.Value); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

// jsonValue sends numeric text as a JSON number and anything else as a
// string, so invalid input still reaches the server's validation.
func jsonValue(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
