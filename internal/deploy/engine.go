package deploy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/abanicaisse/dockhand/internal/constants"
	"github.com/abanicaisse/dockhand/internal/security"
	"github.com/abanicaisse/dockhand/internal/ssh"
)

// Engine builds and starts the release on the remote host and waits until
// the instance reports running.
type Engine struct {
	exec ssh.Executor

	retries      int
	initialDelay time.Duration
	maxDelay     time.Duration
	deadline     time.Duration
}

// NewEngine creates an engine with the default readiness policy.
func NewEngine(exec ssh.Executor) *Engine {
	return &Engine{
		exec:         exec,
		retries:      constants.ReadinessAttempts,
		initialDelay: constants.ReadinessInitialDelay,
		maxDelay:     constants.ReadinessMaxDelay,
		deadline:     constants.ReadinessDeadline,
	}
}

// SetRetries sets the number of readiness poll attempts
func (e *Engine) SetRetries(retries int) {
	e.retries = retries
}

// SetDelays sets the initial and maximum poll delay
func (e *Engine) SetDelays(initial, max time.Duration) {
	e.initialDelay = initial
	e.maxDelay = max
}

// SetDeadline sets the overall readiness deadline
func (e *Engine) SetDeadline(deadline time.Duration) {
	e.deadline = deadline
}

// Result describes the instance the engine left running.
type Result struct {
	Method          Method
	ContainerStatus string
}

// DeployError reports a failed deployment together with the log tail that
// explains it.
type DeployError struct {
	Reason string
	Logs   string
}

func (e *DeployError) Error() string {
	if e.Logs != "" {
		return fmt.Sprintf("%s\nrecent logs:\n%s", e.Reason, e.Logs)
	}
	return e.Reason
}

// Deploy replaces whatever instance of the project is running with one
// built from the release at path. Teardown of the previous instance
// tolerates absence, so first deploys and redeploys take the same path.
func (e *Engine) Deploy(ctx context.Context, project string, method Method, path string, port int) (*Result, error) {
	tearPath := ""
	if method == MethodMultiService {
		tearPath = path
	}
	if err := e.Teardown(ctx, project, tearPath); err != nil {
		return nil, err
	}

	switch method {
	case MethodSingleContainer:
		if err := e.buildAndRun(ctx, project, path, port); err != nil {
			return nil, err
		}
	case MethodMultiService:
		if err := e.composeUp(ctx, path); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported deployment method")
	}

	ready, lastState, err := e.waitReady(ctx, project, method, path)
	if err != nil {
		return nil, err
	}
	if !ready {
		return nil, &DeployError{
			Reason: fmt.Sprintf("instance never reached running state (last state: %s)", lastState),
			Logs:   e.logTail(ctx, project, method, path),
		}
	}

	status, err := e.instanceStatus(ctx, project, method, path)
	if err != nil {
		return nil, err
	}
	return &Result{Method: method, ContainerStatus: status}, nil
}

// Teardown stops and removes any previous instance of the project. Every
// command tolerates the instance being absent. A non-empty path also tears
// down compose services defined there.
func (e *Engine) Teardown(ctx context.Context, project, path string) error {
	esc := security.ShellEscape(project)
	commands := []string{
		fmt.Sprintf("sudo docker stop %s 2>/dev/null || true", esc),
		fmt.Sprintf("sudo docker rm %s 2>/dev/null || true", esc),
	}
	if path != "" {
		commands = append(commands, fmt.Sprintf("cd %s && sudo docker compose down --remove-orphans 2>/dev/null || true", security.ShellEscape(path)))
	}

	for _, c := range commands {
		if _, err := e.exec.Exec(ctx, c); err != nil {
			return fmt.Errorf("teardown failed: %w", err)
		}
	}
	return nil
}

func (e *Engine) buildAndRun(ctx context.Context, project, path string, port int) error {
	build := fmt.Sprintf("sudo docker build -t %s %s",
		security.ShellEscape(project+":latest"), security.ShellEscape(path))
	res, err := e.exec.Exec(ctx, build)
	if err != nil {
		return fmt.Errorf("image build failed: %w", err)
	}
	if res.ExitCode != 0 {
		return &DeployError{
			Reason: fmt.Sprintf("image build failed (exit %d)", res.ExitCode),
			Logs:   tailLines(combinedOutput(res), constants.DefaultLogTail),
		}
	}

	run := fmt.Sprintf("sudo docker run -d --name %s --restart unless-stopped -p %d:%d %s",
		security.ShellEscape(project), port, port, security.ShellEscape(project+":latest"))
	res, err = e.exec.Exec(ctx, run)
	if err != nil {
		return fmt.Errorf("container start failed: %w", err)
	}
	if res.ExitCode != 0 {
		return &DeployError{
			Reason: fmt.Sprintf("container start failed (exit %d)", res.ExitCode),
			Logs:   tailLines(combinedOutput(res), constants.DefaultLogTail),
		}
	}
	return nil
}

func (e *Engine) composeUp(ctx context.Context, path string) error {
	up := fmt.Sprintf("cd %s && sudo docker compose up -d --build", security.ShellEscape(path))
	res, err := e.exec.Exec(ctx, up)
	if err != nil {
		return fmt.Errorf("compose up failed: %w", err)
	}
	if res.ExitCode != 0 {
		return &DeployError{
			Reason: fmt.Sprintf("compose up failed (exit %d)", res.ExitCode),
			Logs:   tailLines(combinedOutput(res), constants.DefaultLogTail),
		}
	}
	return nil
}

// waitReady polls the instance state with exponential backoff until it is
// running, the attempts run out, the deadline passes, or the instance has
// already exited.
func (e *Engine) waitReady(ctx context.Context, project string, method Method, path string) (bool, string, error) {
	deadline := time.Now().Add(e.deadline)
	delay := e.initialDelay
	lastState := "unknown"

	for attempt := 1; attempt <= e.retries; attempt++ {
		if time.Now().After(deadline) {
			break
		}

		state, err := e.instanceState(ctx, project, method, path)
		if err != nil {
			return false, lastState, err
		}
		if state == "running" {
			return true, state, nil
		}
		lastState = state

		// a dead container will not come back; stop polling and grab logs
		if state == "exited" || state == "dead" {
			break
		}

		select {
		case <-ctx.Done():
			return false, lastState, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > e.maxDelay {
			delay = e.maxDelay
		}
	}

	return false, lastState, nil
}

// instanceState reduces the instance to one word: running, exited, dead,
// absent, or whatever docker reports.
func (e *Engine) instanceState(ctx context.Context, project string, method Method, path string) (string, error) {
	if method == MethodMultiService {
		cmd := fmt.Sprintf("cd %s && sudo docker compose ps --format '{{.Name}} {{.State}}'", security.ShellEscape(path))
		res, err := e.exec.Exec(ctx, cmd)
		if err != nil {
			return "", fmt.Errorf("failed to read compose state: %w", err)
		}
		return composeState(res.Stdout), nil
	}

	cmd := fmt.Sprintf("sudo docker inspect -f '{{.State.Status}}' %s", security.ShellEscape(project))
	res, err := e.exec.Exec(ctx, cmd)
	if err != nil {
		return "", fmt.Errorf("failed to inspect container: %w", err)
	}
	if res.ExitCode != 0 {
		return "absent", nil
	}
	return strings.TrimSpace(res.Stdout), nil
}

// composeState summarizes compose ps output: running when at least one
// service runs and none exited.
func composeState(psOutput string) string {
	lines := nonEmptyLines(psOutput)
	if len(lines) == 0 {
		return "absent"
	}
	running := 0
	for _, line := range lines {
		if strings.Contains(line, "exited") || strings.Contains(line, "dead") {
			return "exited"
		}
		if strings.Contains(line, "running") {
			running++
		}
	}
	if running > 0 {
		return "running"
	}
	return "starting"
}

func (e *Engine) instanceStatus(ctx context.Context, project string, method Method, path string) (string, error) {
	return InstanceStatus(ctx, e.exec, project, method, path)
}

// InstanceStatus is the human-facing status line for the project's
// instance: the docker ps status for a single container, the joined
// per-service summary for a compose deployment.
func InstanceStatus(ctx context.Context, exec ssh.Executor, project string, method Method, path string) (string, error) {
	if method == MethodMultiService {
		cmd := fmt.Sprintf("cd %s && sudo docker compose ps --format '{{.Name}}: {{.Status}}'", security.ShellEscape(path))
		out, err := ssh.Output(ctx, exec, cmd)
		if err != nil {
			return "", fmt.Errorf("failed to read compose status: %w", err)
		}
		return strings.Join(nonEmptyLines(out), "; "), nil
	}
	return ContainerStatus(ctx, exec, project)
}

// ContainerStatus returns the docker ps status line for the project
// container, empty when no such container exists.
func ContainerStatus(ctx context.Context, exec ssh.Executor, project string) (string, error) {
	cmd := fmt.Sprintf("sudo docker ps --filter name=%s --format '{{.Status}}'",
		security.ShellEscape("^"+project+"$"))
	out, err := ssh.Output(ctx, exec, cmd)
	if err != nil {
		return "", fmt.Errorf("failed to read container status: %w", err)
	}
	return out, nil
}

// logTail grabs the recent instance logs for error reporting; failures
// here must not mask the deployment error itself.
func (e *Engine) logTail(ctx context.Context, project string, method Method, path string) string {
	var cmd string
	if method == MethodMultiService {
		cmd = fmt.Sprintf("cd %s && sudo docker compose logs --tail %d 2>&1",
			security.ShellEscape(path), constants.DefaultLogTail)
	} else {
		cmd = fmt.Sprintf("sudo docker logs --tail %d %s 2>&1",
			constants.DefaultLogTail, security.ShellEscape(project))
	}

	res, err := e.exec.Exec(ctx, cmd)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(combinedOutput(res))
}

func combinedOutput(res *ssh.ExecResult) string {
	out := strings.TrimSpace(res.Stdout)
	errOut := strings.TrimSpace(res.Stderr)
	switch {
	case out == "":
		return errOut
	case errOut == "":
		return out
	default:
		return out + "\n" + errOut
	}
}

func nonEmptyLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines
}

func tailLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) <= n {
		return strings.TrimSpace(s)
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
