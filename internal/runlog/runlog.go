// Package runlog manages the per-run artifact directory: failure screenshots,
// the greenhouse log and container logs.
package runlog

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RunsDir is the directory under the reports dir that holds one
// sub-directory per run.
const RunsDir = "runs"

// Run holds information about the current test run
type Run struct {
	ID        string    // Short unique identifier (8 chars)
	Timestamp time.Time // When the run started
	Dir       string    // Full path to the run directory
}

// New creates the run directory under reportsDir.
// Format: reports/runs/2025-01-15_143052_a1b2c3d4/
func New(reportsDir string) (*Run, error) {
	now := time.Now()
	shortID := uuid.New().String()[:8]

	dir := filepath.Join(reportsDir, RunsDir, fmt.Sprintf("%s_%s", now.Format("2006-01-02_150405"), shortID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating run directory: %w", err)
	}

	return &Run{ID: shortID, Timestamp: now, Dir: dir}, nil
}

// LogPath returns the full path for a log file
func (r *Run) LogPath(name string) string {
	return filepath.Join(r.Dir, name+".log")
}

// CreateLogFile creates a log file and returns the file handle
func (r *Run) CreateLogFile(name string) (*os.File, error) {
	f, err := os.Create(r.LogPath(name))
	if err != nil {
		return nil, fmt.Errorf("creating log file: %w", err)
	}
	return f, nil
}

// AppendLog appends content to a log file
func (r *Run) AppendLog(name string, content []byte) error {
	f, err := os.OpenFile(r.LogPath(name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(content)
	return err
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ScreenshotPath returns a unique PNG path for a scenario name.
func (r *Run) ScreenshotPath(scenario string) string {
	name := strings.Trim(unsafeChars.ReplaceAllString(scenario, "_"), "_")
	if name == "" {
		name = "scenario"
	}
	if len(name) > 80 {
		name = name[:80]
	}
	return filepath.Join(r.Dir, "screenshots", fmt.Sprintf("%s_%s.png", name, uuid.New().String()[:8]))
}

// RunInfo contains information about a stored run
type RunInfo struct {
	Name        string    `json:"name"`
	Dir         string    `json:"dir"`
	Timestamp   time.Time `json:"timestamp"`
	Logs        []string  `json:"logs"`
	Screenshots int       `json:"screenshots"`
}

// ListRuns returns the runs under reportsDir, newest first.
func ListRuns(reportsDir string) ([]RunInfo, error) {
	runsDir := filepath.Join(reportsDir, RunsDir)

	entries, err := os.ReadDir(runsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunInfo{}, nil
		}
		return nil, err
	}

	runs := []RunInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		dir := filepath.Join(runsDir, entry.Name())
		logs, _ := filepath.Glob(filepath.Join(dir, "*.log"))
		for i, l := range logs {
			logs[i] = strings.TrimSuffix(filepath.Base(l), ".log")
		}
		shots, _ := filepath.Glob(filepath.Join(dir, "screenshots", "*.png"))
		runs = append(runs, RunInfo{
			Name:        entry.Name(),
			Dir:         dir,
			Timestamp:   info.ModTime(),
			Logs:        logs,
			Screenshots: len(shots),
		})
	}

	// Directory names start with the timestamp.
	sort.Slice(runs, func(i, j int) bool { return runs[i].Name > runs[j].Name })
	return runs, nil
}

// ReadLog returns the content of a log file of a stored run.
func ReadLog(reportsDir, runName, logName string) (string, error) {
	if unsafeChars.MatchString(runName) || unsafeChars.MatchString(logName) || strings.HasPrefix(runName, ".") {
		return "", fmt.Errorf("invalid log reference %s/%s", runName, logName)
	}
	content, err := os.ReadFile(filepath.Join(reportsDir, RunsDir, runName, logName+".log"))
	if err != nil {
		return "", err
	}
	return string(content), nil
}
