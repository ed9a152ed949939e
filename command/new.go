package command

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v2"

	"github.com/greenhouse-qa/greenhouse/internal/steps"
)

var newCommand = &cli.Command{
	Name:  "new",
	Usage: "Create a new feature file interactively",
	Description: `Guided wizard that builds a feature file from the registered steps.
Pick the surface (API or UI), name the scenarios and choose their steps;
the example text of every step is inserted and can be edited afterwards.`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "dir",
			Value: "features",
			Usage: "directory the feature file is written to",
		},
		&cli.BoolFlag{
			Name:  "force",
			Usage: "overwrite an existing feature file",
		},
	},
	Action: newFeature,
}

type newStep int

const (
	newStepFeatureName newStep = iota
	newStepFeatureDesc
	newStepSurface
	newStepScenarioName
	newStepAddMore
	newStepSelectCategory
	newStepSelectAction
	newStepAddScenario
	newStepConfirm
	newStepDone
	newStepCancelled
)

var surfaces = []string{steps.SurfaceAPI, steps.SurfaceUI}

var stepKeywords = []string{"Given", "When", "Then"}

type stepAction struct {
	keyword string
	text    string
}

type scenario struct {
	name  string
	steps []stepAction
}

type newModel struct {
	step        newStep
	cursor      int
	textInputs  []textinput.Model
	activeInput int

	categories []steps.StepCategory

	featureName string
	featureDesc string
	surface     string
	scenarios   []scenario

	current         scenario
	currentKeyword  string
	currentCategory steps.StepCategory
}

func newInitialModel(categories []steps.StepCategory) newModel {
	placeholders := []string{
		"Plant inventory",
		"As an admin, I want to manage plants so that the catalogue stays current",
		"Admin adds a plant",
	}
	inputs := make([]textinput.Model, len(placeholders))
	for i, p := range placeholders {
		inputs[i] = textinput.New()
		inputs[i].Placeholder = p
		inputs[i].Width = 60
	}
	inputs[0].Focus()

	return newModel{
		step:       newStepFeatureName,
		textInputs: inputs,
		categories: categories,
	}
}

func (m newModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m newModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c":
			m.step = newStepCancelled
			return m, tea.Quit
		case "up":
			if m.isSelectStep() && m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		case "down":
			if m.isSelectStep() && m.cursor < m.maxCursor() {
				m.cursor++
			}
			return m, nil
		case "enter":
			return m.handleEnter()
		case "esc":
			if m.step == newStepSelectAction {
				m.step = newStepSelectCategory
				m.cursor = 0
			} else if m.step == newStepSelectCategory {
				m.step = newStepAddMore
				m.cursor = 0
			}
			return m, nil
		}
	}

	if m.isTextInputStep() {
		var cmd tea.Cmd
		m.textInputs[m.activeInput], cmd = m.textInputs[m.activeInput].Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m newModel) isTextInputStep() bool {
	return m.step == newStepFeatureName || m.step == newStepFeatureDesc || m.step == newStepScenarioName
}

func (m newModel) isSelectStep() bool {
	return !m.isTextInputStep() && m.step != newStepDone && m.step != newStepCancelled
}

// surfaceCategories returns the categories usable on the chosen surface.
// Authentication steps serve both.
func (m newModel) surfaceCategories() []steps.StepCategory {
	var out []steps.StepCategory
	for _, c := range m.categories {
		if c.Surface == m.surface || c.Name == "Authentication" {
			out = append(out, c)
		}
	}
	return out
}

func (m newModel) maxCursor() int {
	switch m.step {
	case newStepSurface:
		return len(surfaces) - 1
	case newStepAddMore:
		return len(stepKeywords)
	case newStepSelectCategory:
		return len(m.surfaceCategories()) - 1
	case newStepSelectAction:
		return len(m.currentCategory.Steps) - 1
	case newStepAddScenario, newStepConfirm:
		return 1
	}
	return 0
}

func (m newModel) focus(i int) newModel {
	m.textInputs[m.activeInput].Blur()
	m.activeInput = i
	m.textInputs[i].Focus()
	return m
}

func (m newModel) handleEnter() (tea.Model, tea.Cmd) {
	switch m.step {
	case newStepFeatureName:
		m.featureName = strings.TrimSpace(m.textInputs[0].Value())
		if m.featureName == "" {
			m.featureName = "New feature"
		}
		m.step = newStepFeatureDesc
		m = m.focus(1)

	case newStepFeatureDesc:
		m.featureDesc = strings.TrimSpace(m.textInputs[1].Value())
		m.textInputs[1].Blur()
		m.step = newStepSurface
		m.cursor = 0

	case newStepSurface:
		m.surface = surfaces[m.cursor]
		m.step = newStepScenarioName
		m = m.focus(2)

	case newStepScenarioName:
		name := strings.TrimSpace(m.textInputs[2].Value())
		if name == "" {
			name = "New scenario"
		}
		m.current = scenario{name: name}
		m.textInputs[2].Blur()
		m.step = newStepAddMore
		m.cursor = 0

	case newStepAddMore:
		if m.cursor < len(stepKeywords) {
			m.currentKeyword = stepKeywords[m.cursor]
			m.step = newStepSelectCategory
		} else {
			m.scenarios = append(m.scenarios, m.current)
			m.step = newStepAddScenario
		}
		m.cursor = 0

	case newStepSelectCategory:
		cats := m.surfaceCategories()
		if m.cursor < len(cats) {
			m.currentCategory = cats[m.cursor]
			m.step = newStepSelectAction
			m.cursor = 0
		}

	case newStepSelectAction:
		if m.cursor < len(m.currentCategory.Steps) {
			keyword := m.currentKeyword
			if m.lastKeyword() == keyword {
				keyword = "And"
			}
			m.current.steps = append(m.current.steps, stepAction{
				keyword: keyword,
				text:    m.currentCategory.Steps[m.cursor].Example,
			})
			m.step = newStepAddMore
			m.cursor = 0
		}

	case newStepAddScenario:
		if m.cursor == 0 {
			m.textInputs[2].SetValue("")
			m.step = newStepScenarioName
			m = m.focus(2)
		} else {
			m.step = newStepConfirm
		}
		m.cursor = 0

	case newStepConfirm:
		if m.cursor == 0 {
			m.step = newStepDone
		} else {
			m.step = newStepCancelled
		}
		return m, tea.Quit
	}

	return m, nil
}

// lastKeyword is the Given, When or Then an "And" continues.
func (m newModel) lastKeyword() string {
	for i := len(m.current.steps) - 1; i >= 0; i-- {
		if k := m.current.steps[i].keyword; k != "And" {
			return k
		}
	}
	return ""
}

func (m newModel) View() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("New feature"))
	s.WriteString("\n")

	options := func(opts []string) {
		for i, opt := range opts {
			cursor, style := "  ", unselectedStyle
			if i == m.cursor {
				cursor, style = "> ", selectedStyle
			}
			s.WriteString(cursor + style.Render(opt) + "\n")
		}
	}

	switch m.step {
	case newStepFeatureName:
		s.WriteString(subtitleStyle.Render("What's the name of your feature?") + "\n\n")
		s.WriteString(m.textInputs[0].View() + "\n")
		s.WriteString(helpStyle.Render("Press Enter to continue"))

	case newStepFeatureDesc:
		s.WriteString(subtitleStyle.Render("Describe the feature (optional)") + "\n\n")
		s.WriteString(m.textInputs[1].View() + "\n")
		s.WriteString(helpStyle.Render("Press Enter to continue"))

	case newStepSurface:
		s.WriteString(subtitleStyle.Render("Which surface does the feature drive?") + "\n\n")
		options([]string{"API (tagged @API, no browser)", "UI (tagged @UI, runs in the browser)"})

	case newStepScenarioName:
		s.WriteString(subtitleStyle.Render("What's the name of your scenario?") + "\n\n")
		s.WriteString(m.textInputs[2].View() + "\n")
		s.WriteString(helpStyle.Render("Press Enter to continue"))

	case newStepAddMore:
		s.WriteString(subtitleStyle.Render("Scenario: "+m.current.name) + "\n\n")
		if len(m.current.steps) > 0 {
			s.WriteString("Current steps:\n")
			for _, st := range m.current.steps {
				s.WriteString(fmt.Sprintf("  %s %s\n", st.keyword, firstLine(st.text)))
			}
			s.WriteString("\n")
		}
		s.WriteString("Add a step:\n")
		options([]string{"Given (setup)", "When (action)", "Then (assertion)", "Done with this scenario"})

	case newStepSelectCategory:
		s.WriteString(subtitleStyle.Render(fmt.Sprintf("Select the area for the %s step", m.currentKeyword)) + "\n\n")
		var names []string
		for _, c := range m.surfaceCategories() {
			names = append(names, c.Name)
		}
		options(names)
		s.WriteString("\n" + helpStyle.Render("esc: back"))

	case newStepSelectAction:
		s.WriteString(subtitleStyle.Render("Select a step from "+m.currentCategory.Name) + "\n\n")
		var texts []string
		for _, def := range m.currentCategory.Steps {
			texts = append(texts, firstLine(def.Example))
		}
		options(texts)
		s.WriteString("\n" + helpStyle.Render("Edit the quoted values after generating. esc: back"))

	case newStepAddScenario:
		s.WriteString(subtitleStyle.Render("Scenario added") + "\n\n")
		options([]string{"Add another scenario", "Done - generate feature file"})

	case newStepConfirm:
		s.WriteString(subtitleStyle.Render("Ready to create the feature file") + "\n\n")
		s.WriteString(helpStyle.Render(m.generateFeatureFile()) + "\n")
		options([]string{"Create feature file", "Cancel"})
	}

	return s.String()
}

func firstLine(s string) string {
	return strings.SplitN(s, "\n", 2)[0]
}

func (m newModel) generateFeatureFile() string {
	var s strings.Builder

	s.WriteString("@" + strings.ToUpper(m.surface) + "\n")
	s.WriteString("Feature: " + m.featureName + "\n")
	if m.featureDesc != "" {
		s.WriteString("  " + m.featureDesc + "\n")
	}

	for _, sc := range m.scenarios {
		s.WriteString("\n  Scenario: " + sc.name + "\n")
		for _, st := range sc.steps {
			lines := strings.Split(st.text, "\n")
			s.WriteString(fmt.Sprintf("    %s %s\n", st.keyword, lines[0]))
			for _, extra := range lines[1:] {
				s.WriteString("      " + strings.TrimSpace(extra) + "\n")
			}
		}
	}
	return s.String()
}

var nonWord = regexp.MustCompile(`[^a-z0-9]+`)

func featureFileName(name string) string {
	slug := strings.Trim(nonWord.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if slug == "" {
		slug = "new_feature"
	}
	return slug + ".feature"
}

var errFeatureExists = errors.New("feature file already exists (use --force to overwrite)")

// writeFeature writes the generated feature into dir/<surface>/.
func writeFeature(dir string, m newModel, force bool) (string, error) {
	target := filepath.Join(dir, m.surface)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", fmt.Errorf("creating features directory: %w", err)
	}
	path := filepath.Join(target, featureFileName(m.featureName))
	if _, err := os.Stat(path); err == nil && !force {
		return path, errFeatureExists
	}
	if err := os.WriteFile(path, []byte(m.generateFeatureFile()), 0o644); err != nil {
		return "", fmt.Errorf("writing feature file: %w", err)
	}
	return path, nil
}

func newFeature(c *cli.Context) error {
	m := newInitialModel(steps.New(nil, nil, nil).Registry().Categories())
	result, err := tea.NewProgram(m, tea.WithOutput(c.App.Writer)).Run()
	if err != nil {
		return fmt.Errorf("error running wizard: %w", err)
	}

	final := result.(newModel)
	out := c.App.Writer
	if final.step != newStepDone {
		fmt.Fprintln(out, "\nCancelled.")
		return nil
	}

	path, err := writeFeature(c.String("dir"), final, c.Bool("force"))
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "\n"+successStyle.Render("✓ Created "+path))
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  1. Edit the quoted example values")
	fmt.Fprintln(out, "  2. Run "+selectedStyle.Render("greenhouse validate")+" and "+selectedStyle.Render("greenhouse run --profile "+final.surface))
	fmt.Fprintln(out)
	return nil
}
