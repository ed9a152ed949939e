package command

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	messages "github.com/cucumber/messages/go/v21"
	"github.com/urfave/cli/v2"

	"github.com/greenhouse-qa/greenhouse/internal/config"
	"github.com/greenhouse-qa/greenhouse/internal/steps"
)

var validateCommand = &cli.Command{
	Name:  "validate",
	Usage: "Validate the configuration, the environment and the feature files",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Value:   config.DefaultFile,
			Usage:   "config file path",
		},
		&cli.StringFlag{
			Name:    "env-file",
			Aliases: []string{"e"},
			Usage:   "dotenv file with the nursery settings (default: .env when present)",
		},
		&cli.BoolFlag{
			Name:  "plain",
			Usage: "disable colors and interactive UI (for CI)",
		},
	},
	Action: runValidate,
}

const (
	statusOK      = "ok"
	statusWarning = "warning"
	statusError   = "error"
)

// ValidationResult holds the result of a validation check
type ValidationResult struct {
	Category   string
	Item       string
	Status     string
	Message    string
	Suggestion string
}

// Validator performs all validation checks
type Validator struct {
	configPath string
	envFile    string
	config     *config.Config
	results    []ValidationResult
	patterns   []*regexp.Regexp
}

var errValidationFailed = errors.New("validation failed")

func runValidate(c *cli.Context) error {
	v := &Validator{
		configPath: c.String("config"),
		envFile:    c.String("env-file"),
	}

	if c.Bool("plain") || !isTerminal(c.App.Writer) {
		return v.runPlain(c.App.Writer)
	}
	return v.runInteractive(c.App.Writer)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

func (v *Validator) add(category, item, status, message, suggestion string) {
	v.results = append(v.results, ValidationResult{
		Category:   category,
		Item:       item,
		Status:     status,
		Message:    message,
		Suggestion: suggestion,
	})
}

func (v *Validator) counts() (ok, warnings, errs int) {
	for _, r := range v.results {
		switch r.Status {
		case statusOK:
			ok++
		case statusWarning:
			warnings++
		case statusError:
			errs++
		}
	}
	return ok, warnings, errs
}

// grouped returns the categories in the order they were first reported.
func (v *Validator) grouped() ([]string, map[string][]ValidationResult) {
	var order []string
	byCategory := make(map[string][]ValidationResult)
	for _, r := range v.results {
		if _, ok := byCategory[r.Category]; !ok {
			order = append(order, r.Category)
		}
		byCategory[r.Category] = append(byCategory[r.Category], r)
	}
	return order, byCategory
}

func (v *Validator) runPlain(out io.Writer) error {
	fmt.Fprintln(out, "Validating greenhouse configuration...")
	fmt.Fprintln(out)

	v.validate()

	order, byCategory := v.grouped()
	for _, category := range order {
		fmt.Fprintf(out, "[%s]\n", category)
		for _, r := range byCategory[category] {
			icon := "✓"
			switch r.Status {
			case statusError:
				icon = "✗"
			case statusWarning:
				icon = "!"
			}
			fmt.Fprintf(out, "  %s %s", icon, r.Item)
			if r.Message != "" {
				fmt.Fprintf(out, ": %s", r.Message)
			}
			fmt.Fprintln(out)
			if r.Suggestion != "" {
				fmt.Fprintf(out, "    → %s\n", r.Suggestion)
			}
		}
		fmt.Fprintln(out)
	}

	ok, warnings, errs := v.counts()
	fmt.Fprintf(out, "Summary: %d passed, %d warnings, %d errors\n", ok, warnings, errs)
	if errs > 0 {
		return fmt.Errorf("%w with %d error(s)", errValidationFailed, errs)
	}
	return nil
}

func (v *Validator) runInteractive(out io.Writer) error {
	m, err := tea.NewProgram(newValidateModel(v), tea.WithOutput(out)).Run()
	if err != nil {
		return err
	}
	if m.(validateModel).hasErrors {
		return errValidationFailed
	}
	return nil
}

func (v *Validator) validate() {
	for _, def := range steps.New(nil, nil, nil).Registry().AllSteps() {
		if re, err := regexp.Compile(def.Pattern); err == nil {
			v.patterns = append(v.patterns, re)
		}
	}

	v.validateConfig()
	v.validateEnv()
	if v.config == nil {
		return
	}
	v.validateProfiles()
	v.validateContainers()
	v.validateFeatureFiles()
}

func (v *Validator) validateConfig() {
	cfg, err := config.Load(v.configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist) && v.configPath == config.DefaultFile:
		v.config = config.Default()
		v.add("Config", v.configPath, statusWarning, "not found, using the built-in profiles",
			"Run 'greenhouse init' to create one")
	case err != nil:
		v.add("Config", v.configPath, statusError, err.Error(), "Check the config file syntax and structure")
	default:
		v.config = cfg
		v.add("Config", v.configPath, statusOK, "valid configuration", "")
	}
}

func (v *Validator) validateEnv() {
	env, err := config.LoadEnv(v.envFile)
	if err != nil {
		v.add("Environment", "env file", statusError, err.Error(), "")
		return
	}

	for _, setting := range [][2]string{{"API_BASE_URL", env.APIBaseURL}, {"UI_BASE_URL", env.UIBaseURL}} {
		name, raw := setting[0], setting[1]
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			v.add("Environment", name, statusError, fmt.Sprintf("%q is not an absolute URL", raw),
				"Use a URL like http://localhost:8081")
			continue
		}
		v.add("Environment", name, statusOK, raw, "")
	}

	for _, role := range []string{config.RoleAdmin, config.RoleUser} {
		cred, _ := env.Credential(role)
		if cred.Username == "" || cred.Password == "" {
			v.add("Environment", role+" credentials", statusError, "username or password is empty",
				fmt.Sprintf("Set %s_USERNAME and %s_PASSWORD", strings.ToUpper(role), strings.ToUpper(role)))
			continue
		}
		v.add("Environment", role+" credentials", statusOK, cred.Username, "")
	}

	switch env.Browser {
	case "", "chromium", "chrome", "firefox", "webkit", "safari":
	default:
		v.add("Environment", "BROWSER", statusError, fmt.Sprintf("unknown browser %q", env.Browser),
			"Use chromium, firefox or webkit")
	}
}

var knownFormats = map[string]bool{
	"pretty": true, "progress": true, "junit": true, "cucumber": true, "events": true,
	"html": true, "stream": true,
}

func (v *Validator) validateProfiles() {
	for _, name := range v.config.ProfileNames() {
		p := v.config.Profiles[name]
		for _, path := range p.Paths {
			if _, err := os.Stat(path); err != nil {
				v.add("Profiles", fmt.Sprintf("%s: %s", name, path), statusWarning, "path does not exist",
					fmt.Sprintf("Create the directory: mkdir -p %s", path))
			}
		}

		bad := false
		for _, f := range strings.Split(p.Format, ",") {
			formatter, _, _ := strings.Cut(strings.TrimSpace(f), ":")
			if !knownFormats[formatter] {
				bad = true
				v.add("Profiles", name, statusError, fmt.Sprintf("unknown formatter %q", formatter),
					"Valid formatters: progress, pretty, junit, cucumber, html, stream")
			}
		}
		if !bad {
			msg := "all scenarios"
			if p.Tags != "" {
				msg = "tags " + p.Tags
			}
			v.add("Profiles", name, statusOK, msg, "")
		}
	}
}

func (v *Validator) validateContainers() {
	names := make([]string, 0, len(v.config.Containers))
	for name := range v.config.Containers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cont := v.config.Containers[name]
		if cont.Image == "" {
			v.add("Containers", name, statusError, "missing image", "Add 'image: <image:tag>'")
			continue
		}
		if cont.WaitFor.Type == "" {
			v.add("Containers", name, statusWarning, "no wait_for strategy defined",
				`Add wait_for to ensure the container is ready: wait_for: {type: port, target: "8080"}`)
			continue
		}
		v.add("Containers", name, statusOK, "image: "+cont.Image, "")
	}
}

func (v *Validator) validateFeatureFiles() {
	seen := map[string]bool{}
	var files []string
	for _, name := range v.config.ProfileNames() {
		for _, path := range v.config.Profiles[name].Paths {
			found, _ := findFeatureFiles(path)
			for _, f := range found {
				if !seen[f] {
					seen[f] = true
					files = append(files, f)
				}
			}
		}
	}

	if len(files) == 0 {
		v.add("Features", "(none)", statusWarning, "no feature files found",
			"Create .feature files in your features directory")
		return
	}
	for _, file := range files {
		v.validateFeatureFile(file)
	}
}

func (v *Validator) validateFeatureFile(path string) {
	doc, pickles, err := parseFeature(path)
	if err != nil {
		v.add("Features", path, statusError, err.Error(),
			"Check Gherkin syntax: https://cucumber.io/docs/gherkin/reference/")
		return
	}
	if doc.Feature == nil {
		v.add("Features", path, statusError, "no Feature found in file", "Add 'Feature: <name>' at the top of the file")
		return
	}

	var undefined, ambiguous []string
	untagged := 0
	for _, p := range pickles {
		if !hasSurfaceTag(p.Tags) {
			untagged++
		}
		for _, step := range p.Steps {
			switch v.matches(step.Text) {
			case 0:
				undefined = appendUnique(undefined, step.Text)
			case 1:
			default:
				ambiguous = appendUnique(ambiguous, step.Text)
			}
		}
	}

	switch {
	case len(undefined) > 0:
		v.add("Features", path, statusError,
			fmt.Sprintf("%d undefined step(s): %s", len(undefined), firstFew(undefined)),
			"Run 'greenhouse steps' to see available steps")
	case len(ambiguous) > 0:
		v.add("Features", path, statusError,
			fmt.Sprintf("%d ambiguous step(s): %s", len(ambiguous), firstFew(ambiguous)), "")
	case untagged > 0:
		v.add("Features", path, statusWarning,
			fmt.Sprintf("%d scenario(s) without @API or @UI", untagged),
			"Untagged scenarios only run with the default profile")
	default:
		v.add("Features", path, statusOK, fmt.Sprintf("%d scenario(s)", len(pickles)), "")
	}
}

func (v *Validator) matches(text string) int {
	n := 0
	for _, re := range v.patterns {
		if re.MatchString(text) {
			n++
		}
	}
	return n
}

func hasSurfaceTag(tags []*messages.PickleTag) bool {
	for _, t := range tags {
		if t.Name == "@API" || t.Name == "@UI" {
			return true
		}
	}
	return false
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}

func firstFew(list []string) string {
	if len(list) > 3 {
		list = list[:3]
	}
	quoted := make([]string, len(list))
	for i, s := range list {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(quoted, ", ")
}

type validateModel struct {
	validator   *Validator
	spinner     spinner.Model
	done        bool
	hasErrors   bool
	hasWarnings bool
}

type validationDoneMsg struct{}

func newValidateModel(v *Validator) validateModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = checkStyle
	return validateModel{validator: v, spinner: s}
}

func (m validateModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		func() tea.Msg {
			m.validator.validate()
			return validationDoneMsg{}
		},
	)
}

func (m validateModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case validationDoneMsg:
		m.done = true
		_, warnings, errs := m.validator.counts()
		m.hasWarnings = warnings > 0
		m.hasErrors = errs > 0
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m validateModel) View() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("Greenhouse validator"))
	s.WriteString("\n")

	if !m.done {
		s.WriteString(m.spinner.View() + " Validating...\n")
		return s.String()
	}

	order, byCategory := m.validator.grouped()
	for _, category := range order {
		s.WriteString(subtitleStyle.UnsetMarginBottom().Render(category) + "\n")
		for _, r := range byCategory[category] {
			icon := successStyle.Render("✓")
			switch r.Status {
			case statusWarning:
				icon = patternStyle.Render("!")
			case statusError:
				icon = errorStyle.Render("✗")
			}
			s.WriteString(fmt.Sprintf("  %s %s", icon, r.Item))
			if r.Message != "" {
				s.WriteString(": " + r.Message)
			}
			s.WriteString("\n")
			if r.Suggestion != "" {
				s.WriteString("    " + helpStyle.Render("→ "+r.Suggestion) + "\n")
			}
		}
		s.WriteString("\n")
	}

	ok, warnings, errs := m.validator.counts()
	s.WriteString(fmt.Sprintf("Summary: %d passed, %d warnings, %d errors\n", ok, warnings, errs))
	switch {
	case m.hasErrors:
		s.WriteString(errorStyle.Render("✗ Validation failed") + "\n")
	case m.hasWarnings:
		s.WriteString(patternStyle.Render("! Validation passed with warnings") + "\n")
	default:
		s.WriteString(successStyle.Render("✓ Validation passed") + "\n")
	}
	return s.String()
}
