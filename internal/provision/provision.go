package provision

import (
	"context"
	"fmt"
	"strings"

	"github.com/abanicaisse/dockhand/internal/constants"
	"github.com/abanicaisse/dockhand/internal/security"
	"github.com/abanicaisse/dockhand/internal/ssh"
)

// Provisioner brings a bare host to the state deployments need: git, curl,
// nginx, a container runtime with the compose plugin, and both services
// running.
type Provisioner struct {
	exec ssh.Executor
}

// NewProvisioner creates a provisioner that acts through the given executor.
func NewProvisioner(exec ssh.Executor) *Provisioner {
	return &Provisioner{exec: exec}
}

// StepResult reports one provisioning step. Changed is true when the step
// had to act rather than short-circuit on its check.
type StepResult struct {
	Name    string
	Changed bool
	Detail  string
}

// Result lists every completed step in order.
type Result struct {
	Steps []StepResult
}

// StepError reports a provisioning step that failed on the remote host.
type StepError struct {
	Step     string
	ExitCode int
	Output   string
}

func (e *StepError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("provisioning step %q failed (exit %d): %s", e.Step, e.ExitCode, e.Output)
	}
	return fmt.Sprintf("provisioning step %q failed (exit %d)", e.Step, e.ExitCode)
}

type step struct {
	name   string
	check  string // exit 0 short-circuits the act; empty means always act
	act    string
	verify string // must exit 0 afterwards; its output becomes Detail
}

var steps = []step{
	{
		name: "package-index",
		act:  "sudo apt-get update -y",
	},
	{
		name:   "base-packages",
		check:  "command -v git >/dev/null && command -v curl >/dev/null && command -v nginx >/dev/null",
		act:    "sudo DEBIAN_FRONTEND=noninteractive apt-get install -y -qq ca-certificates curl git nginx",
		verify: "git --version && nginx -v 2>&1",
	},
	{
		name:   "container-runtime",
		check:  "command -v docker >/dev/null",
		act:    "curl -fsSL https://get.docker.com | sudo sh",
		verify: "sudo docker --version",
	},
	{
		name:   "compose-plugin",
		check:  "sudo docker compose version >/dev/null 2>&1",
		act:    "sudo DEBIAN_FRONTEND=noninteractive apt-get install -y -qq docker-compose-plugin",
		verify: "sudo docker compose version",
	},
	{
		name:   "services",
		check:  "systemctl is-active docker >/dev/null 2>&1 && systemctl is-active nginx >/dev/null 2>&1",
		act:    "sudo systemctl enable --now docker nginx",
		verify: "systemctl is-active docker nginx",
	},
}

// Ensure runs every provisioning step in order. Each step checks before it
// acts, so a host that is already provisioned sees no installs. The first
// failing step aborts the run; completed steps stay applied.
func (p *Provisioner) Ensure(ctx context.Context) (*Result, error) {
	result := &Result{}
	for _, s := range steps {
		sr, err := p.runStep(ctx, s)
		if err != nil {
			return result, err
		}
		result.Steps = append(result.Steps, sr)
	}
	return result, nil
}

func (p *Provisioner) runStep(ctx context.Context, s step) (StepResult, error) {
	changed := true
	if s.check != "" {
		res, err := p.exec.Exec(ctx, s.check)
		if err != nil {
			return StepResult{}, fmt.Errorf("provisioning step %q: %w", s.name, err)
		}
		changed = res.ExitCode != 0
	}

	if changed {
		res, err := p.exec.Exec(ctx, s.act)
		if err != nil {
			return StepResult{}, fmt.Errorf("provisioning step %q: %w", s.name, err)
		}
		if res.ExitCode != 0 {
			return StepResult{}, &StepError{Step: s.name, ExitCode: res.ExitCode, Output: output(res)}
		}
	}

	detail := ""
	if s.verify != "" {
		res, err := p.exec.Exec(ctx, s.verify)
		if err != nil {
			return StepResult{}, fmt.Errorf("provisioning step %q: %w", s.name, err)
		}
		if res.ExitCode != 0 {
			return StepResult{}, &StepError{Step: s.name, ExitCode: res.ExitCode, Output: output(res)}
		}
		detail = output(res)
	}

	return StepResult{Name: s.name, Changed: changed, Detail: detail}, nil
}

// EnsureWorkspace creates the application root and hands it to the deploy
// user so later git operations run unprivileged.
func EnsureWorkspace(ctx context.Context, exec ssh.Executor, user string) error {
	cmd := fmt.Sprintf("sudo mkdir -p %s && sudo chown -R %s %s",
		security.ShellEscape(constants.AppsDir),
		security.ShellEscape(user+":"+user),
		security.ShellEscape(constants.BasePath))

	res, err := exec.Exec(ctx, cmd)
	if err != nil {
		return fmt.Errorf("provisioning step %q: %w", "workspace", err)
	}
	if res.ExitCode != 0 {
		return &StepError{Step: "workspace", ExitCode: res.ExitCode, Output: output(res)}
	}
	return nil
}

func output(res *ssh.ExecResult) string {
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
