package deploy

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/abanicaisse/dockhand/internal/ssh"
)

func testEngine(mock *ssh.MockExecutor) *Engine {
	e := NewEngine(mock)
	e.SetRetries(3)
	e.SetDelays(time.Millisecond, 2*time.Millisecond)
	e.SetDeadline(time.Second)
	return e
}

func findCommand(commands []string, substr string) int {
	for i, c := range commands {
		if strings.Contains(c, substr) {
			return i
		}
	}
	return -1
}

func countCommands(commands []string, substr string) int {
	n := 0
	for _, c := range commands {
		if strings.Contains(c, substr) {
			n++
		}
	}
	return n
}

func TestDeploy_SingleContainer(t *testing.T) {
	mock := &ssh.MockExecutor{
		ExecFunc: func(_ context.Context, command string) (*ssh.ExecResult, error) {
			switch {
			case strings.Contains(command, "docker inspect"):
				return &ssh.ExecResult{Stdout: "running\n"}, nil
			case strings.Contains(command, "docker ps"):
				return &ssh.ExecResult{Stdout: "Up 2 seconds\n"}, nil
			default:
				return &ssh.ExecResult{}, nil
			}
		},
	}

	res, err := testEngine(mock).Deploy(context.Background(), "shop-api", MethodSingleContainer, "/opt/dockhand/apps/shop-api", 3000)
	if err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}

	if res.Method != MethodSingleContainer {
		t.Errorf("Method = %v", res.Method)
	}
	if res.ContainerStatus != "Up 2 seconds" {
		t.Errorf("ContainerStatus = %q", res.ContainerStatus)
	}

	stopIdx := findCommand(mock.Commands, "sudo docker stop 'shop-api' 2>/dev/null || true")
	rmIdx := findCommand(mock.Commands, "sudo docker rm 'shop-api' 2>/dev/null || true")
	buildIdx := findCommand(mock.Commands, "sudo docker build -t 'shop-api:latest' '/opt/dockhand/apps/shop-api'")
	runIdx := findCommand(mock.Commands, "sudo docker run -d --name 'shop-api' --restart unless-stopped -p 3000:3000 'shop-api:latest'")

	if stopIdx == -1 || rmIdx == -1 || buildIdx == -1 || runIdx == -1 {
		t.Fatalf("missing deploy commands, got: %v", mock.Commands)
	}
	if !(stopIdx < rmIdx && rmIdx < buildIdx && buildIdx < runIdx) {
		t.Errorf("deploy commands out of order: stop=%d rm=%d build=%d run=%d", stopIdx, rmIdx, buildIdx, runIdx)
	}
	if findCommand(mock.Commands, "compose") != -1 {
		t.Error("compose command issued for a single-container deploy")
	}
}

func TestDeploy_MultiService(t *testing.T) {
	mock := &ssh.MockExecutor{
		ExecFunc: func(_ context.Context, command string) (*ssh.ExecResult, error) {
			switch {
			case strings.Contains(command, "{{.Name}} {{.State}}"):
				return &ssh.ExecResult{Stdout: "web running\ndb running\n"}, nil
			case strings.Contains(command, "{{.Name}}: {{.Status}}"):
				return &ssh.ExecResult{Stdout: "web: Up 5 seconds\ndb: Up 5 seconds\n"}, nil
			default:
				return &ssh.ExecResult{}, nil
			}
		},
	}

	res, err := testEngine(mock).Deploy(context.Background(), "shop", MethodMultiService, "/opt/dockhand/apps/shop", 3000)
	if err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}

	if res.ContainerStatus != "web: Up 5 seconds; db: Up 5 seconds" {
		t.Errorf("ContainerStatus = %q", res.ContainerStatus)
	}

	downIdx := findCommand(mock.Commands, "sudo docker compose down --remove-orphans 2>/dev/null || true")
	upIdx := findCommand(mock.Commands, "cd '/opt/dockhand/apps/shop' && sudo docker compose up -d --build")
	if downIdx == -1 || upIdx == -1 {
		t.Fatalf("missing compose commands, got: %v", mock.Commands)
	}
	if upIdx < downIdx {
		t.Error("compose up ran before the teardown")
	}
	if findCommand(mock.Commands, "docker build") != -1 {
		t.Error("direct build issued for a compose deploy")
	}
}

func TestDeploy_ReadinessTimeoutCapturesLogs(t *testing.T) {
	mock := &ssh.MockExecutor{
		ExecFunc: func(_ context.Context, command string) (*ssh.ExecResult, error) {
			switch {
			case strings.Contains(command, "docker inspect"):
				return &ssh.ExecResult{Stdout: "restarting\n"}, nil
			case strings.Contains(command, "docker logs"):
				return &ssh.ExecResult{Stdout: "panic: boom\n"}, nil
			default:
				return &ssh.ExecResult{}, nil
			}
		},
	}

	_, err := testEngine(mock).Deploy(context.Background(), "shop-api", MethodSingleContainer, "/opt/dockhand/apps/shop-api", 3000)
	if err == nil {
		t.Fatal("Deploy() expected error")
	}

	var deployErr *DeployError
	if !errors.As(err, &deployErr) {
		t.Fatalf("error type = %T, want *DeployError", err)
	}
	if !strings.Contains(deployErr.Reason, "restarting") {
		t.Errorf("Reason = %q, want last observed state", deployErr.Reason)
	}
	if !strings.Contains(deployErr.Logs, "panic: boom") {
		t.Errorf("Logs = %q, want captured log tail", deployErr.Logs)
	}
	if got := countCommands(mock.Commands, "docker inspect"); got != 3 {
		t.Errorf("inspect polls = %d, want 3", got)
	}
}

func TestDeploy_ExitedContainerStopsPolling(t *testing.T) {
	mock := &ssh.MockExecutor{
		ExecFunc: func(_ context.Context, command string) (*ssh.ExecResult, error) {
			switch {
			case strings.Contains(command, "docker inspect"):
				return &ssh.ExecResult{Stdout: "exited\n"}, nil
			case strings.Contains(command, "docker logs"):
				return &ssh.ExecResult{Stdout: "config error: missing env\n"}, nil
			default:
				return &ssh.ExecResult{}, nil
			}
		},
	}

	_, err := testEngine(mock).Deploy(context.Background(), "shop-api", MethodSingleContainer, "/opt/dockhand/apps/shop-api", 3000)
	if err == nil {
		t.Fatal("Deploy() expected error")
	}

	var deployErr *DeployError
	if !errors.As(err, &deployErr) {
		t.Fatalf("error type = %T, want *DeployError", err)
	}
	if !strings.Contains(deployErr.Logs, "config error") {
		t.Errorf("Logs = %q", deployErr.Logs)
	}
	if got := countCommands(mock.Commands, "docker inspect"); got != 1 {
		t.Errorf("inspect polls = %d, want 1 for an exited container", got)
	}
}

func TestDeploy_BuildFailure(t *testing.T) {
	mock := &ssh.MockExecutor{
		ExecFunc: func(_ context.Context, command string) (*ssh.ExecResult, error) {
			if strings.Contains(command, "docker build") {
				return &ssh.ExecResult{Stderr: "ERROR: unknown instruction: RUUN\n", ExitCode: 1}, nil
			}
			return &ssh.ExecResult{}, nil
		},
	}

	_, err := testEngine(mock).Deploy(context.Background(), "shop-api", MethodSingleContainer, "/opt/dockhand/apps/shop-api", 3000)
	if err == nil {
		t.Fatal("Deploy() expected error")
	}

	var deployErr *DeployError
	if !errors.As(err, &deployErr) {
		t.Fatalf("error type = %T, want *DeployError", err)
	}
	if !strings.Contains(deployErr.Reason, "build failed") {
		t.Errorf("Reason = %q", deployErr.Reason)
	}
	if !strings.Contains(deployErr.Logs, "unknown instruction") {
		t.Errorf("Logs = %q", deployErr.Logs)
	}
	if findCommand(mock.Commands, "docker run") != -1 {
		t.Error("container started despite a failed build")
	}
}

func TestTeardown(t *testing.T) {
	t.Run("without compose path", func(t *testing.T) {
		mock := &ssh.MockExecutor{}
		if err := NewEngine(mock).Teardown(context.Background(), "shop", ""); err != nil {
			t.Fatalf("Teardown() error = %v", err)
		}
		if len(mock.Commands) != 2 {
			t.Fatalf("commands = %v", mock.Commands)
		}
		for _, c := range mock.Commands {
			if !strings.Contains(c, "2>/dev/null || true") {
				t.Errorf("teardown command does not tolerate absence: %q", c)
			}
		}
	})

	t.Run("with compose path", func(t *testing.T) {
		mock := &ssh.MockExecutor{}
		if err := NewEngine(mock).Teardown(context.Background(), "shop", "/opt/dockhand/apps/shop"); err != nil {
			t.Fatalf("Teardown() error = %v", err)
		}
		if len(mock.Commands) != 3 {
			t.Fatalf("commands = %v", mock.Commands)
		}
		if !strings.Contains(mock.Commands[2], "docker compose down --remove-orphans") {
			t.Errorf("compose down missing: %q", mock.Commands[2])
		}
	})
}

func TestContainerStatus(t *testing.T) {
	mock := &ssh.MockExecutor{
		ExecFunc: func(_ context.Context, _ string) (*ssh.ExecResult, error) {
			return &ssh.ExecResult{Stdout: "Up 3 days\n"}, nil
		},
	}

	status, err := ContainerStatus(context.Background(), mock, "shop")
	if err != nil {
		t.Fatalf("ContainerStatus() error = %v", err)
	}
	if status != "Up 3 days" {
		t.Errorf("ContainerStatus() = %q", status)
	}
	if !strings.Contains(mock.Commands[0], "--filter name='^shop$'") {
		t.Errorf("filter not anchored: %q", mock.Commands[0])
	}
}

func TestComposeState(t *testing.T) {
	tests := []struct {
		name     string
		output   string
		expected string
	}{
		{"no services", "", "absent"},
		{"all running", "web running\ndb running\n", "running"},
		{"one exited", "web running\ndb exited\n", "exited"},
		{"still creating", "web created\n", "starting"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := composeState(tt.output); got != tt.expected {
				t.Errorf("composeState(%q) = %q, want %q", tt.output, got, tt.expected)
			}
		})
	}
}

func TestTailLines(t *testing.T) {
	in := "one\ntwo\nthree\nfour\n"
	if got := tailLines(in, 2); got != "three\nfour" {
		t.Errorf("tailLines() = %q", got)
	}
	if got := tailLines("one\n", 5); got != "one" {
		t.Errorf("tailLines() = %q", got)
	}
}
