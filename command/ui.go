package command

import (
	"bufio"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/greenhouse-qa/greenhouse/internal/config"
	"github.com/greenhouse-qa/greenhouse/internal/formatter"
	"github.com/greenhouse-qa/greenhouse/internal/runlog"
)

//go:embed ui_assets/*
var uiAssets embed.FS

var uiCommand = &cli.Command{
	Name:  "ui",
	Usage: "Web UI to browse the features and watch runs live",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Value:   config.DefaultFile,
			Usage:   "Path to configuration file",
		},
		&cli.StringFlag{
			Name:    "profile",
			Aliases: []string{"p"},
			Value:   config.ProfileDefault,
			Usage:   "profile the Run button uses",
		},
		&cli.StringFlag{
			Name:    "reports-dir",
			Value:   "reports",
			EnvVars: []string{"REPORTS_DIR"},
			Usage:   "directory holding the runs",
		},
		&cli.IntFlag{
			Name:  "port",
			Value: 0,
			Usage: "Port to run the UI server (default: random available port)",
		},
		&cli.BoolFlag{
			Name:  "no-browser",
			Usage: "Don't open the browser automatically",
		},
	},
	Action: runWebUI,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSMessage is pushed to every connected browser.
type WSMessage struct {
	Type         string           `json:"type"`
	Features     []FeatureJSON    `json:"features,omitempty"`
	ChangedFiles []string         `json:"changedFiles,omitempty"`
	Error        string           `json:"error,omitempty"`
	Feature      string           `json:"feature,omitempty"`
	Scenario     string           `json:"scenario,omitempty"`
	Status       string           `json:"status,omitempty"`
	Output       string           `json:"output,omitempty"`
	Runs         []runlog.RunInfo `json:"runs,omitempty"`
	Summary      *formatter.Event `json:"summary,omitempty"`
}

// UIServer serves the web UI and relays run events over websockets.
type UIServer struct {
	featurePaths []string
	configPath   string
	profile      string
	reportsDir   string

	clients    map[*websocket.Conn]bool
	clientsMux sync.Mutex

	watcher *fsnotify.Watcher

	runningMux sync.Mutex
	isRunning  bool
	runningCmd *exec.Cmd

	// command builds the child process for a run; tests replace it.
	command func(args ...string) (*exec.Cmd, error)
}

func newUIServer(featurePaths []string, configPath, profile, reportsDir string) *UIServer {
	return &UIServer{
		featurePaths: featurePaths,
		configPath:   configPath,
		profile:      profile,
		reportsDir:   reportsDir,
		clients:      make(map[*websocket.Conn]bool),
		command: func(args ...string) (*exec.Cmd, error) {
			self, err := os.Executable()
			if err != nil {
				return nil, err
			}
			return exec.Command(self, args...), nil
		},
	}
}

func runWebUI(c *cli.Context) error {
	cfg, err := config.LoadOrDefault(c.String("config"))
	if err != nil {
		return err
	}
	profile, err := cfg.Profile(c.String("profile"))
	if err != nil {
		return err
	}

	server := newUIServer(profile.Paths, c.String("config"), c.String("profile"), c.String("reports-dir"))

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()
	server.watcher = watcher
	for _, path := range server.featurePaths {
		if err := server.watchPath(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("cannot watch feature path")
		}
	}
	go server.watchLoop()

	handler, err := server.routes()
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", c.Int("port")))
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	url := fmt.Sprintf("http://%s", listener.Addr().String())

	out := c.App.Writer
	fmt.Fprintf(out, "%s Greenhouse UI running at %s\n", successStyle.Render("●"), url)
	fmt.Fprintf(out, "%s Watching %s\n", helpStyle.Render("●"), strings.Join(server.featurePaths, ", "))
	fmt.Fprintf(out, "%s Press Ctrl+C to stop\n\n", helpStyle.Render("●"))

	if !c.Bool("no-browser") {
		go openBrowser(url)
	}

	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-c.Context.Done()
		srv.Close()
	}()
	if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *UIServer) routes() (http.Handler, error) {
	assets, err := fs.Sub(uiAssets, "ui_assets")
	if err != nil {
		return nil, fmt.Errorf("failed to setup assets: %w", err)
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/features", s.handleFeatures).Methods(http.MethodGet)
	r.HandleFunc("/api/config", s.handleConfig).Methods(http.MethodGet)
	r.HandleFunc("/api/run", s.handleRun).Methods(http.MethodPost)
	r.HandleFunc("/api/stop", s.handleStop).Methods(http.MethodPost)
	r.HandleFunc("/api/runs", s.handleRuns).Methods(http.MethodGet)
	r.HandleFunc("/api/runs/{run}/logs/{log}", s.handleRunLog).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebSocket)
	r.PathPrefix("/").Handler(http.FileServer(http.FS(assets)))
	return r, nil
}

func (s *UIServer) watchPath(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return s.watcher.Add(filepath.Dir(path))
	}
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return s.watcher.Add(p)
		}
		return nil
	})
}

// watchLoop batches feature file changes for 100ms before pushing the
// reparsed features.
func (s *UIServer) watchLoop() {
	var (
		mu      sync.Mutex
		timer   *time.Timer
		changed = make(map[string]bool)
	)
	trigger := func(path string) {
		mu.Lock()
		defer mu.Unlock()
		changed[path] = true
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(100*time.Millisecond, func() {
			mu.Lock()
			files := make([]string, 0, len(changed))
			for f := range changed {
				files = append(files, f)
			}
			changed = make(map[string]bool)
			mu.Unlock()

			sort.Strings(files)
			s.broadcastUpdate(files)
		})
	}

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = s.watcher.Add(event.Name)
				}
			}
			if strings.HasSuffix(event.Name, ".feature") &&
				(event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)) {
				trigger(event.Name)
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("feature watcher error")
		}
	}
}

func (s *UIServer) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Warn().Err(err).Str("type", msg.Type).Msg("encoding websocket message")
		return
	}

	s.clientsMux.Lock()
	defer s.clientsMux.Unlock()
	for client := range s.clients {
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Debug().Err(err).Msg("dropping websocket client")
			client.Close()
			delete(s.clients, client)
		}
	}
}

func (s *UIServer) broadcastUpdate(changedFiles []string) {
	features, err := s.loadFeatures()
	if err != nil {
		s.broadcast(WSMessage{Type: "error", Error: err.Error()})
		return
	}
	s.broadcast(WSMessage{Type: "update", Features: features, ChangedFiles: changedFiles})
}

func (s *UIServer) broadcastRuns() {
	runs, err := runlog.ListRuns(s.reportsDir)
	if err != nil {
		return
	}
	s.broadcast(WSMessage{Type: "runs_update", Runs: runs})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *UIServer) handleFeatures(w http.ResponseWriter, r *http.Request) {
	features, err := s.loadFeatures()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, features)
}

func (s *UIServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	content, err := os.ReadFile(s.configPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to read config: %v", err), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"path":    s.configPath,
		"profile": s.profile,
		"content": string(content),
	})
}

func (s *UIServer) handleRun(w http.ResponseWriter, r *http.Request) {
	s.runningMux.Lock()
	if s.isRunning {
		s.runningMux.Unlock()
		http.Error(w, "Tests already running", http.StatusConflict)
		return
	}
	s.isRunning = true
	s.runningMux.Unlock()

	go s.runTests(r.URL.Query().Get("scenario"))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *UIServer) handleStop(w http.ResponseWriter, r *http.Request) {
	s.runningMux.Lock()
	cmd := s.runningCmd
	s.runningMux.Unlock()
	if cmd == nil {
		http.Error(w, "No tests running", http.StatusConflict)
		return
	}
	_ = cmd.Process.Kill()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *UIServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := runlog.ListRuns(s.reportsDir)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *UIServer) handleRunLog(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	content, err := runlog.ReadLog(s.reportsDir, vars["run"], vars["log"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, content)
}

func (s *UIServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade")
		return
	}

	features, _ := s.loadFeatures()
	runs, _ := runlog.ListRuns(s.reportsDir)
	data, _ := json.Marshal(WSMessage{Type: "init", Features: features, Runs: runs})

	s.clientsMux.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	if err == nil {
		s.clients[conn] = true
	}
	s.clientsMux.Unlock()
	if err != nil {
		conn.Close()
		return
	}

	// Reads only detect the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.clientsMux.Lock()
	delete(s.clients, conn)
	s.clientsMux.Unlock()
	conn.Close()
}

func (s *UIServer) loadFeatures() ([]FeatureJSON, error) {
	features := []FeatureJSON{}
	for _, path := range s.featurePaths {
		files, err := findFeatureFiles(path)
		if err != nil {
			continue
		}
		for _, file := range files {
			doc, _, err := parseFeature(file)
			if err != nil || doc.Feature == nil {
				continue
			}
			features = append(features, *featureJSON(file, doc))
		}
	}
	return features, nil
}

func (s *UIServer) runTests(scenario string) {
	defer func() {
		s.runningMux.Lock()
		s.isRunning = false
		s.runningCmd = nil
		s.runningMux.Unlock()
	}()

	s.broadcast(WSMessage{Type: "run_started"})

	args := []string{"run", "--config", s.configPath, "--profile", s.profile, "--format", "stream"}
	if scenario != "" {
		args = append(args, "--scenario", "^"+regexp.QuoteMeta(scenario)+"$")
	}

	cmd, err := s.command(args...)
	if err != nil {
		s.broadcast(WSMessage{Type: "run_finished", Status: "failed", Error: err.Error()})
		return
	}
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		s.broadcast(WSMessage{Type: "run_finished", Status: "failed", Error: err.Error()})
		return
	}
	s.runningMux.Lock()
	s.runningCmd = cmd
	s.runningMux.Unlock()

	done := make(chan struct{})
	go func() {
		s.relay(pr)
		close(done)
	}()
	err = cmd.Wait()
	pw.Close()
	<-done

	if err != nil {
		s.broadcast(WSMessage{Type: "run_finished", Status: "failed", Error: err.Error()})
	} else {
		s.broadcast(WSMessage{Type: "run_finished", Status: "passed"})
	}
	s.broadcastRuns()
}

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)

// relay turns the output of a run into websocket messages. Event lines
// become status updates; everything else is forwarded as plain output.
func (s *UIServer) relay(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(ansiEscape.ReplaceAllString(scanner.Text(), ""))
		if line == "" {
			continue
		}

		payload, ok := strings.CutPrefix(line, formatter.EventPrefix)
		if !ok {
			s.broadcast(WSMessage{Type: "run_output", Output: line})
			continue
		}

		var event formatter.Event
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			continue
		}
		switch event.Type {
		case formatter.EventScenarioStart:
			s.broadcast(WSMessage{Type: "scenario_running", Feature: event.Feature, Scenario: event.Scenario, Status: "running"})
		case formatter.EventScenarioEnd:
			s.broadcast(WSMessage{
				Type:     "scenario_" + event.Status,
				Feature:  event.Feature,
				Scenario: event.Scenario,
				Status:   event.Status,
				Error:    event.Error,
			})
		case formatter.EventStepEnd:
			if event.Status == "failed" {
				s.broadcast(WSMessage{Type: "step_failed", Scenario: event.Scenario, Status: "failed", Output: event.Step, Error: event.Error})
			}
		case formatter.EventSummary:
			summary := event
			s.broadcast(WSMessage{Type: "summary", Summary: &summary})
		}
	}
}

func openBrowser(url string) {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
		args = []string{url}
	case "linux":
		cmd = "xdg-open"
		args = []string{url}
	case "windows":
		cmd = "rundll32"
		args = []string{"url.dll,FileProtocolHandler", url}
	default:
		return
	}

	_ = exec.Command(cmd, args...).Start()
}
