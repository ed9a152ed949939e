package command

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v2"

	"github.com/greenhouse-qa/greenhouse/internal/config"
)

var initCommand = &cli.Command{
	Name:  "init",
	Usage: "Create greenhouse.yml, .env and an example feature",
	Description: `Create the suite configuration interactively.

Asks for the nursery API and UI addresses, the browser and the profiles
to write out, then creates greenhouse.yml, .env and
features/example.feature.`,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    "force",
			Aliases: []string{"f"},
			Usage:   "overwrite existing files",
		},
	},
	Action: runInit,
}

type initStep int

const (
	stepURLs initStep = iota
	stepBrowser
	stepProfiles
	stepConfirm
)

var browsers = []string{"chromium", "firefox", "webkit"}

type profileChoice struct {
	name        string
	description string
}

var profileChoices = []profileChoice{
	{config.ProfileDefault, "every scenario, API and UI"},
	{config.ProfileAPI, "@API scenarios only, no browser"},
	{config.ProfileUI, "@UI scenarios only"},
}

type initModel struct {
	step   initStep
	cursor int

	// URL fields; cursor 0 edits the API URL, 1 the UI URL.
	apiURL string
	uiURL  string

	browser  string
	profiles map[string]bool

	done      bool
	cancelled bool
}

func initialInitModel() initModel {
	return initModel{
		step:     stepURLs,
		apiURL:   "http://localhost:8081",
		uiURL:    "http://localhost:8081",
		browser:  browsers[0],
		profiles: map[string]bool{config.ProfileDefault: true, config.ProfileAPI: true, config.ProfileUI: true},
	}
}

func (m initModel) Init() tea.Cmd {
	return nil
}

func (m initModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	if key.String() == "ctrl+c" {
		m.cancelled = true
		return m, tea.Quit
	}
	if m.step == stepURLs {
		return m.handleURLInput(key)
	}

	switch key.String() {
	case "q", "esc":
		m.cancelled = true
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < m.maxCursor() {
			m.cursor++
		}

	case " ", "x":
		if m.step == stepProfiles {
			name := profileChoices[m.cursor].name
			m.profiles[name] = !m.profiles[name]
		}

	case "enter":
		return m.handleEnter()
	}

	return m, nil
}

func (m initModel) handleURLInput(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	field := &m.apiURL
	if m.cursor == 1 {
		field = &m.uiURL
	}

	switch key.Type {
	case tea.KeyEsc:
		m.cancelled = true
		return m, tea.Quit
	case tea.KeyUp, tea.KeyShiftTab:
		m.cursor = 0
	case tea.KeyDown, tea.KeyTab:
		m.cursor = 1
	case tea.KeyEnter:
		if m.cursor == 0 {
			m.cursor = 1
			return m, nil
		}
		m.apiURL = strings.TrimRight(strings.TrimSpace(m.apiURL), "/")
		m.uiURL = strings.TrimRight(strings.TrimSpace(m.uiURL), "/")
		m.step = stepBrowser
		m.cursor = 0
	case tea.KeyBackspace:
		if len(*field) > 0 {
			*field = (*field)[:len(*field)-1]
		}
	case tea.KeyCtrlU:
		*field = ""
	case tea.KeyRunes:
		*field += string(key.Runes)
	}
	return m, nil
}

func (m initModel) maxCursor() int {
	switch m.step {
	case stepBrowser:
		return len(browsers) - 1
	case stepProfiles:
		return len(profileChoices) - 1
	case stepConfirm:
		return 1 // Create, Cancel
	default:
		return 0
	}
}

func (m initModel) handleEnter() (tea.Model, tea.Cmd) {
	switch m.step {
	case stepBrowser:
		m.browser = browsers[m.cursor]
		m.step = stepProfiles
		m.cursor = 0

	case stepProfiles:
		m.step = stepConfirm
		m.cursor = 0

	case stepConfirm:
		if m.cursor == 0 {
			m.done = true
		} else {
			m.cancelled = true
		}
		return m, tea.Quit
	}

	return m, nil
}

func (m initModel) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("Greenhouse init"))
	s.WriteString("\n")

	switch m.step {
	case stepURLs:
		s.WriteString(subtitleStyle.Render("Where does the nursery application run?"))
		s.WriteString("\n\n")
		for i, f := range []struct{ label, value string }{{"API base URL", m.apiURL}, {"UI base URL ", m.uiURL}} {
			cursor, style, caret := "  ", unselectedStyle, ""
			if i == m.cursor {
				cursor, style, caret = "> ", selectedStyle, "█"
			}
			s.WriteString(fmt.Sprintf("%s%s  %s%s\n", cursor, style.Render(f.label), f.value, caret))
		}
		s.WriteString("\n")
		s.WriteString(helpStyle.Render("TAB switch field • ENTER continue • ESC cancel"))

	case stepBrowser:
		s.WriteString(subtitleStyle.Render("Which browser should the UI scenarios use?"))
		s.WriteString("\n\n")
		for i, b := range browsers {
			s.WriteString(m.option(i, b, ""))
		}
		s.WriteString("\n")
		s.WriteString(helpStyle.Render("ENTER select"))

	case stepProfiles:
		s.WriteString(subtitleStyle.Render("Which profiles should greenhouse.yml spell out?"))
		s.WriteString("\n\n")
		for i, p := range profileChoices {
			checked := "[ ]"
			if m.profiles[p.name] {
				checked = checkStyle.Render("[✓]")
			}
			s.WriteString(m.option(i, checked+" "+p.name, p.description))
		}
		s.WriteString("\n")
		s.WriteString(helpStyle.Render("SPACE toggle • ENTER continue"))

	case stepConfirm:
		s.WriteString(subtitleStyle.Render("Ready to create configuration"))
		s.WriteString("\n\n")
		s.WriteString(fmt.Sprintf("  API:      %s\n", m.apiURL))
		s.WriteString(fmt.Sprintf("  UI:       %s\n", m.uiURL))
		s.WriteString(fmt.Sprintf("  Browser:  %s\n", m.browser))
		s.WriteString(fmt.Sprintf("  Profiles: %s\n\n", strings.Join(m.selectedProfiles(), ", ")))
		for i, opt := range []string{"Create greenhouse.yml and .env", "Cancel"} {
			s.WriteString(m.option(i, opt, ""))
		}
	}

	return s.String()
}

func (m initModel) option(i int, label, desc string) string {
	cursor, style := "  ", unselectedStyle
	if i == m.cursor {
		cursor, style = "> ", selectedStyle
	}
	line := cursor + style.Render(label)
	if desc != "" && i == m.cursor {
		line += helpStyle.Render("  " + desc)
	}
	return line + "\n"
}

func (m initModel) selectedProfiles() []string {
	var names []string
	for _, p := range profileChoices {
		if m.profiles[p.name] {
			names = append(names, p.name)
		}
	}
	return names
}

func runInit(c *cli.Context) error {
	force := c.Bool("force")
	if _, err := os.Stat(config.DefaultFile); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", config.DefaultFile)
	}

	p := tea.NewProgram(initialInitModel(), tea.WithInput(c.App.Reader), tea.WithOutput(c.App.Writer))
	result, err := p.Run()
	if err != nil {
		return fmt.Errorf("error running init: %w", err)
	}

	final := result.(initModel)
	if final.cancelled || !final.done {
		fmt.Fprintln(c.App.Writer, "\nCancelled.")
		return nil
	}

	created, err := writeProject(".", final, force)
	if err != nil {
		return err
	}
	printCreated(c.App.Writer, created)
	return nil
}

// writeProject writes the files chosen in the wizard under dir and returns
// the ones it created. .env and the example feature are only overwritten
// with force.
func writeProject(dir string, m initModel, force bool) ([]string, error) {
	files := []struct {
		path    string
		content string
		always  bool
	}{
		{config.DefaultFile, generateConfig(m), true},
		{config.DefaultEnvFile, generateEnv(m), false},
		{filepath.Join("features", "example.feature"), exampleFeature, false},
	}

	var created []string
	for _, f := range files {
		path := filepath.Join(dir, f.path)
		if _, err := os.Stat(path); err == nil && !f.always && !force {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return created, fmt.Errorf("creating %s: %w", filepath.Dir(f.path), err)
		}
		if err := os.WriteFile(path, []byte(f.content), 0o644); err != nil {
			return created, fmt.Errorf("creating %s: %w", f.path, err)
		}
		created = append(created, f.path)
	}
	return created, nil
}

func printCreated(w io.Writer, created []string) {
	fmt.Fprintln(w)
	for _, f := range created {
		fmt.Fprintln(w, successStyle.Render("✓ Created "+f))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Next steps:")
	fmt.Fprintln(w, "  1. Check the connection with "+selectedStyle.Render("greenhouse check"))
	fmt.Fprintln(w, "  2. Write your feature files")
	fmt.Fprintln(w, "  3. Run "+selectedStyle.Render("greenhouse run --profile api"))
	fmt.Fprintln(w)
}

func generateConfig(m initModel) string {
	var s strings.Builder

	s.WriteString("version: 1\n\n")

	s.WriteString("settings:\n")
	s.WriteString("  concurrency: 1\n")
	s.WriteString("  fail_fast: false\n")
	s.WriteString("  screenshots: only-on-failure\n")
	s.WriteString("  ready_timeout: 30s\n\n")

	selected := m.selectedProfiles()
	if len(selected) > 0 {
		s.WriteString("profiles:\n")
		for _, name := range selected {
			s.WriteString(fmt.Sprintf("  %s:\n", name))
			s.WriteString("    paths:\n")
			s.WriteString("      - features\n")
			switch name {
			case config.ProfileAPI:
				s.WriteString("    tags: \"@API\"\n")
			case config.ProfileUI:
				s.WriteString("    tags: \"@UI\"\n")
			}
			report := "cucumber-report"
			if name != config.ProfileDefault {
				report = name + "-report"
			}
			s.WriteString(fmt.Sprintf("    format: progress,html:reports/%s.html,cucumber:reports/%s.json\n", report, report))
		}
		s.WriteString("\n")
	}

	s.WriteString("# Start the nursery in Docker instead of testing a running instance:\n")
	s.WriteString("# containers:\n")
	s.WriteString("#   nursery:\n")
	s.WriteString("#     image: qa-training/nursery:latest\n")
	s.WriteString("#     ports: [\"8080/tcp\"]\n")
	s.WriteString("#     wait_for: {type: http, target: \"8080/tcp\", path: /api/health}\n")
	s.WriteString("# target:\n")
	s.WriteString("#   container: nursery\n")
	s.WriteString("#   port: \"8080/tcp\"\n\n")

	s.WriteString("hooks:\n")
	s.WriteString("  before_all: []\n")
	s.WriteString("  after_all: []\n")
	s.WriteString("  before_scenario: []\n")
	s.WriteString("  after_scenario: []\n")

	return s.String()
}

func generateEnv(m initModel) string {
	var s strings.Builder
	s.WriteString(fmt.Sprintf("API_BASE_URL=%s\n", m.apiURL))
	s.WriteString(fmt.Sprintf("UI_BASE_URL=%s\n", m.uiURL))
	s.WriteString(fmt.Sprintf("BROWSER=%s\n", m.browser))
	s.WriteString("HEADED=false\n")
	s.WriteString("DEFAULT_TIMEOUT=600000\n")
	s.WriteString("EXPECT_TIMEOUT=5000\n")
	s.WriteString("ADMIN_USERNAME=admin\n")
	s.WriteString("ADMIN_PASSWORD=admin123\n")
	s.WriteString("USER_USERNAME=user\n")
	s.WriteString("USER_PASSWORD=user123\n")
	return s.String()
}

const exampleFeature = `Feature: Nursery smoke test
  As a QA engineer
  I want a quick check of the nursery API
  So that I know the environment is ready for the full suite

  @API
  Scenario: Health endpoint answers without a token
    When I send a GET request to "/api/health" without authentication
    Then the response status should be 200
    And the response should contain health status

  @API
  Scenario: Admin can create a category
    Given I have a valid "admin" token
    When I create a category via API with name "Ex{{random:4}}"
    Then the response status should be 201
`
