// Package container starts the application under test, and anything it
// depends on, with testcontainers-go.
package container

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/testcontainers/testcontainers-go"
	tcexec "github.com/testcontainers/testcontainers-go/exec"
	"github.com/testcontainers/testcontainers-go/network"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/greenhouse-qa/greenhouse/internal/config"
	"github.com/greenhouse-qa/greenhouse/internal/runlog"
)

// CheckDockerAvailable verifies that Docker daemon is running and accessible
func CheckDockerAvailable() error {
	cmd := exec.Command("docker", "info")
	if err := cmd.Run(); err != nil {
		return &DockerNotRunningError{}
	}
	return nil
}

// DockerNotRunningError explains how to start Docker on the current OS
type DockerNotRunningError struct{}

func (e *DockerNotRunningError) Error() string {
	switch runtime.GOOS {
	case "darwin", "windows":
		return `Docker is not running. Containers are configured in greenhouse.yml,
so Docker Desktop must be started before running the suite.

  Start Docker Desktop, wait until it reports it is running, then
  run greenhouse again. To test an already deployed nursery instead,
  remove the "containers" and "target" sections.`

	case "linux":
		return `Docker is not running. Containers are configured in greenhouse.yml.

  Start the daemon:
      sudo systemctl start docker

  If it is running, make sure your user is in the docker group:
      sudo usermod -aG docker $USER

  To test an already deployed nursery instead, remove the
  "containers" and "target" sections.`

	default:
		return "Docker is not running. Please start Docker and try again."
	}
}

// Manager handles the lifecycle of the containers declared in greenhouse.yml
type Manager struct {
	configs     map[string]config.Container
	containers  map[string]testcontainers.Container
	order       []string // startup order based on dependencies
	mu          sync.RWMutex
	run         *runlog.Run
	logFiles    map[string]*os.File
	network     *testcontainers.DockerNetwork
	networkName string
}

// NewManager creates a new container manager
func NewManager(configs map[string]config.Container) (*Manager, error) {
	m := &Manager{
		configs:     configs,
		containers:  make(map[string]testcontainers.Container),
		logFiles:    make(map[string]*os.File),
		networkName: fmt.Sprintf("greenhouse-%s", uuid.New().String()[:8]),
	}

	order, err := m.calculateStartOrder()
	if err != nil {
		return nil, fmt.Errorf("calculating start order: %w", err)
	}
	m.order = order

	return m, nil
}

// SetRun makes the manager copy container logs into the run directory
func (m *Manager) SetRun(run *runlog.Run) {
	m.run = run
}

// Order returns the container names in start order
func (m *Manager) Order() []string {
	return append([]string(nil), m.order...)
}

func (m *Manager) createNetwork(ctx context.Context) error {
	if m.network != nil {
		return nil
	}

	net, err := network.New(ctx, network.WithDriver("bridge"))
	if err != nil {
		return fmt.Errorf("creating network: %w", err)
	}

	m.network = net
	m.networkName = net.Name

	log.Debug().Str("network", m.networkName).Msg("docker network created")
	return nil
}

// calculateStartOrder sorts containers so dependencies start first (Kahn).
func (m *Manager) calculateStartOrder() ([]string, error) {
	inDegree := make(map[string]int)
	dependents := make(map[string][]string)

	for name := range m.configs {
		inDegree[name] = 0
	}

	for name, cfg := range m.configs {
		for _, dep := range cfg.DependsOn {
			if _, ok := m.configs[dep]; !ok {
				return nil, fmt.Errorf("container %q depends on unknown container %q", name, dep)
			}
			inDegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var queue []string
	for name, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	var order []string
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		order = append(order, name)

		for _, dep := range dependents[name] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
				sort.Strings(queue)
			}
		}
	}

	if len(order) != len(m.configs) {
		return nil, fmt.Errorf("circular dependency detected in container configuration")
	}

	return order, nil
}

// StartAll starts all containers in dependency order on a shared network
func (m *Manager) StartAll(ctx context.Context) error {
	if len(m.order) == 0 {
		return nil
	}
	if err := m.createNetwork(ctx); err != nil {
		return err
	}

	for _, name := range m.order {
		if err := m.Start(ctx, name); err != nil {
			return fmt.Errorf("starting container %s: %w", name, err)
		}
	}
	return nil
}

// Start starts a single container
func (m *Manager) Start(ctx context.Context, name string) error {
	cfg, ok := m.configs[name]
	if !ok {
		return fmt.Errorf("unknown container: %s", name)
	}

	log.Info().Str("container", name).Str("image", cfg.Image).Msg("starting container")
	startTime := time.Now()

	req := testcontainers.ContainerRequest{
		Image:        cfg.Image,
		Env:          cfg.Env,
		ExposedPorts: append([]string(nil), cfg.Ports...),
		WaitingFor:   m.buildWaitStrategy(cfg.WaitFor),
	}

	// Reachable from the other containers under its config name.
	if m.network != nil {
		req.Networks = []string{m.networkName}
		req.NetworkAliases = map[string][]string{m.networkName: {name}}
	}

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return fmt.Errorf("creating container: %w", err)
	}

	m.mu.Lock()
	m.containers[name] = c
	m.mu.Unlock()

	log.Debug().
		Str("container", name).
		Dur("duration", time.Since(startTime)).
		Msg("container ready")

	if m.run != nil {
		m.captureLogs(ctx, name, c)
	}

	return nil
}

// captureLogs streams container output to container-<name>.log in the run dir
func (m *Manager) captureLogs(ctx context.Context, name string, c testcontainers.Container) {
	logFile, err := m.run.CreateLogFile("container-" + name)
	if err != nil {
		log.Warn().Err(err).Str("container", name).Msg("failed to create container log file")
		return
	}

	m.mu.Lock()
	m.logFiles[name] = logFile
	m.mu.Unlock()

	logs, err := c.Logs(ctx)
	if err != nil {
		log.Warn().Err(err).Str("container", name).Msg("failed to get container logs")
		return
	}

	go func() {
		defer logs.Close()
		_, _ = io.Copy(logFile, logs)
	}()
}

func (m *Manager) buildWaitStrategy(ws config.WaitStrategy) wait.Strategy {
	timeout := ws.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	switch ws.Type {
	case "port":
		return wait.ForListeningPort(nat.Port(ws.Target)).WithStartupTimeout(timeout)
	case "log":
		return wait.ForLog(ws.Target).WithStartupTimeout(timeout)
	case "http":
		strategy := wait.ForHTTP(ws.Path).WithPort(nat.Port(ws.Target)).WithStartupTimeout(timeout)
		if ws.Method != "" {
			strategy = strategy.WithMethod(ws.Method)
		}
		return strategy
	case "exec":
		return wait.ForExec([]string{"sh", "-c", ws.Target}).WithStartupTimeout(timeout)
	default:
		return wait.ForLog("").WithStartupTimeout(timeout)
	}
}

// Get returns a running container by name
func (m *Manager) Get(name string) (testcontainers.Container, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.containers[name]
	if !ok {
		return nil, fmt.Errorf("container not found: %s", name)
	}
	return c, nil
}

// GetHost returns the host address for a container
func (m *Manager) GetHost(ctx context.Context, name string) (string, error) {
	c, err := m.Get(name)
	if err != nil {
		return "", err
	}
	return c.Host(ctx)
}

// GetPort returns the mapped port for a container
func (m *Manager) GetPort(ctx context.Context, name, port string) (string, error) {
	c, err := m.Get(name)
	if err != nil {
		return "", err
	}
	mapped, err := c.MappedPort(ctx, nat.Port(port))
	if err != nil {
		return "", err
	}
	return mapped.Port(), nil
}

// GetConnectionString returns host:port for a container port
func (m *Manager) GetConnectionString(ctx context.Context, name, port string) (string, error) {
	host, err := m.GetHost(ctx, name)
	if err != nil {
		return "", err
	}
	mapped, err := m.GetPort(ctx, name, port)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%s", host, mapped), nil
}

// ResolveTarget points the API and UI base URLs at the mapped address of
// the target container.
func (m *Manager) ResolveTarget(ctx context.Context, target *config.Target, env *config.Env) error {
	if target == nil {
		return nil
	}
	addr, err := m.GetConnectionString(ctx, target.Container, target.Port)
	if err != nil {
		return fmt.Errorf("resolving target %s: %w", target.Container, err)
	}

	scheme := target.Scheme
	if scheme == "" {
		scheme = "http"
	}
	base := scheme + "://" + addr
	env.APIBaseURL = base
	env.UIBaseURL = base

	log.Info().Str("container", target.Container).Str("url", base).Msg("testing against container")
	return nil
}

// StopAll terminates all containers in reverse start order
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.order) - 1; i >= 0; i-- {
		name := m.order[i]
		if c, ok := m.containers[name]; ok {
			log.Debug().Str("container", name).Msg("stopping container")
			if err := c.Terminate(ctx); err != nil {
				log.Warn().Err(err).Str("container", name).Msg("failed to stop container")
			}
			delete(m.containers, name)
		}
	}
}

// Cleanup stops all containers, closes log files and removes the network
func (m *Manager) Cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	m.StopAll(ctx)

	m.mu.Lock()
	for _, f := range m.logFiles {
		f.Close()
	}
	m.logFiles = make(map[string]*os.File)
	m.mu.Unlock()

	if m.network != nil {
		log.Debug().Str("network", m.networkName).Msg("removing docker network")
		if err := m.network.Remove(ctx); err != nil {
			log.Warn().Err(err).Str("network", m.networkName).Msg("failed to remove network")
		}
		m.network = nil
	}
}

// WriteConnectionInfo lists the mapped ports of every running container
func (m *Manager) WriteConnectionInfo(ctx context.Context, w io.Writer) {
	for _, name := range m.order {
		c, err := m.Get(name)
		if err != nil {
			continue
		}

		host, _ := c.Host(ctx)
		ports, _ := c.Ports(ctx)

		keys := make([]string, 0, len(ports))
		for p := range ports {
			keys = append(keys, string(p))
		}
		sort.Strings(keys)

		fmt.Fprintf(w, "  %s:\n", name)
		for _, k := range keys {
			if bindings := ports[nat.Port(k)]; len(bindings) > 0 {
				fmt.Fprintf(w, "    %s -> %s:%s\n", nat.Port(k).Port(), host, bindings[0].HostPort)
			}
		}
	}
}

// Exec runs cmd in a container and returns its exit code and combined output
func (m *Manager) Exec(ctx context.Context, name string, cmd []string) (int, string, error) {
	c, err := m.Get(name)
	if err != nil {
		return 0, "", err
	}

	exitCode, reader, err := c.Exec(ctx, cmd, tcexec.Multiplexed())
	if err != nil {
		return 0, "", fmt.Errorf("exec in %s: %w", name, err)
	}

	var out []byte
	if reader != nil {
		out, err = io.ReadAll(reader)
		if err != nil {
			return exitCode, "", fmt.Errorf("reading exec output: %w", err)
		}
	}

	return exitCode, strings.TrimSpace(string(out)), nil
}
