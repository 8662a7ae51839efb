package deploy

import (
	"context"
	"fmt"

	"github.com/abanicaisse/dockhand/internal/security"
	"github.com/abanicaisse/dockhand/internal/ssh"
)

// Method is how a release gets deployed, decided by the build descriptors
// found in it.
type Method int

const (
	MethodUnsupported Method = iota
	MethodSingleContainer
	MethodMultiService
)

func (m Method) String() string {
	switch m {
	case MethodSingleContainer:
		return "single-container"
	case MethodMultiService:
		return "multi-service"
	default:
		return "unsupported"
	}
}

// DetectMethod inspects the release directory with a single remote script.
// A Dockerfile wins over compose files; a compose file alone means
// multi-service; neither means the project cannot be deployed.
func DetectMethod(ctx context.Context, exec ssh.Executor, path string) (Method, error) {
	esc := security.ShellEscape(path)
	script := fmt.Sprintf(
		"if [ -f %[1]s/Dockerfile ]; then echo single; "+
			"elif [ -f %[1]s/docker-compose.yml ] || [ -f %[1]s/docker-compose.yaml ] || [ -f %[1]s/compose.yml ] || [ -f %[1]s/compose.yaml ]; then echo multi; "+
			"else echo none; fi", esc)

	out, err := ssh.Output(ctx, exec, script)
	if err != nil {
		return MethodUnsupported, fmt.Errorf("failed to inspect build descriptors: %w", err)
	}

	switch out {
	case "single":
		return MethodSingleContainer, nil
	case "multi":
		return MethodMultiService, nil
	case "none":
		return MethodUnsupported, nil
	default:
		return MethodUnsupported, fmt.Errorf("unexpected detection output: %q", out)
	}
}
