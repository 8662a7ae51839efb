package nginx

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/abanicaisse/dockhand/internal/constants"
	"github.com/abanicaisse/dockhand/internal/security"
	"github.com/abanicaisse/dockhand/internal/ssh"
)

// Route is one public-port-to-application mapping rendered into a server
// block. A project owns exactly one route; applying again overwrites it.
type Route struct {
	PublicPort int
	TargetPort int
	ServerName string
}

const routeTemplate = `# managed by dockhand - {{ .Project }}
server {
    listen {{ .PublicPort }};
    server_name {{ .ServerName }};

    location / {
        proxy_pass http://127.0.0.1:{{ .TargetPort }};
        proxy_http_version 1.1;
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;
        proxy_set_header Upgrade $http_upgrade;
        proxy_set_header Connection "upgrade";
    }
}
`

// Configurer installs and removes per-project nginx server blocks.
type Configurer struct {
	exec ssh.Executor
}

// NewConfigurer creates a configurer that acts through the given executor.
func NewConfigurer(exec ssh.Executor) *Configurer {
	return &Configurer{exec: exec}
}

// Result reports where the route landed.
type Result struct {
	ConfigPath string
	Reloaded   bool
}

// ProxyConfigError reports a configuration nginx refused to load. The
// previously active configuration stays in place.
type ProxyConfigError struct {
	Output string
}

func (e *ProxyConfigError) Error() string {
	return fmt.Sprintf("nginx rejected the configuration: %s", e.Output)
}

// Render produces the server block for the project's route.
func (c *Configurer) Render(project string, route Route) (string, error) {
	t, err := template.New("route").Parse(routeTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse route template: %w", err)
	}

	serverName := route.ServerName
	if serverName == "" {
		serverName = "_"
	}
	publicPort := route.PublicPort
	if publicPort == 0 {
		publicPort = 80
	}

	data := struct {
		Project    string
		PublicPort int
		TargetPort int
		ServerName string
	}{project, publicPort, route.TargetPort, serverName}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render route: %w", err)
	}
	return buf.String(), nil
}

// Apply installs the route for the project: stage, back up any previous
// route, move into place, enable, validate with nginx -t, then reload.
// A rejected configuration is rolled back and nginx is left untouched on
// the previous configuration, never reloaded into a broken state.
func (c *Configurer) Apply(ctx context.Context, project string, route Route) (*Result, error) {
	content, err := c.Render(project, route)
	if err != nil {
		return nil, err
	}

	availablePath := constants.NginxAvailablePath(project)
	enabledPath := constants.NginxEnabledPath(project)
	backupPath := availablePath + ".prev"
	stagePath := fmt.Sprintf("/tmp/dockhand-%s.conf.staged", project)

	if err := ssh.UploadContent(ctx, c.exec, content, stagePath); err != nil {
		return nil, fmt.Errorf("failed to stage proxy config: %w", err)
	}

	hadPrevious, err := ssh.FileExists(ctx, c.exec, availablePath)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect existing proxy config: %w", err)
	}
	if hadPrevious {
		backup := fmt.Sprintf("sudo cp -p %s %s",
			security.ShellEscape(availablePath), security.ShellEscape(backupPath))
		if err := c.run(ctx, "failed to back up proxy config", backup); err != nil {
			return nil, err
		}
	}

	install := fmt.Sprintf("sudo mv %s %s",
		security.ShellEscape(stagePath), security.ShellEscape(availablePath))
	if err := c.run(ctx, "failed to install proxy config", install); err != nil {
		return nil, err
	}

	enable := fmt.Sprintf("sudo ln -sf %s %s",
		security.ShellEscape(availablePath), security.ShellEscape(enabledPath))
	if err := c.run(ctx, "failed to enable proxy config", enable); err != nil {
		return nil, err
	}

	// the stock catch-all on port 80 would shadow the route
	dropDefault := fmt.Sprintf("sudo rm -f %s", security.ShellEscape(constants.NginxDefaultSite))
	if err := c.run(ctx, "failed to remove default site", dropDefault); err != nil {
		return nil, err
	}

	res, err := c.exec.Exec(ctx, "sudo nginx -t")
	if err != nil {
		return nil, fmt.Errorf("failed to test proxy config: %w", err)
	}
	if res.ExitCode != 0 {
		c.rollback(ctx, hadPrevious, availablePath, backupPath, enabledPath)
		return nil, &ProxyConfigError{Output: combined(res)}
	}

	if err := c.run(ctx, "failed to reload proxy", "sudo systemctl reload nginx"); err != nil {
		return nil, err
	}

	return &Result{ConfigPath: availablePath, Reloaded: true}, nil
}

// rollback undoes a rejected install: restore the backup when there was a
// previous route, otherwise remove the new files entirely.
func (c *Configurer) rollback(ctx context.Context, hadPrevious bool, availablePath, backupPath, enabledPath string) {
	if hadPrevious {
		restore := fmt.Sprintf("sudo mv %s %s",
			security.ShellEscape(backupPath), security.ShellEscape(availablePath))
		_, _ = c.exec.Exec(ctx, restore)
		return
	}
	remove := fmt.Sprintf("sudo rm -f %s %s",
		security.ShellEscape(enabledPath), security.ShellEscape(availablePath))
	_, _ = c.exec.Exec(ctx, remove)
}

// Remove deletes the project's route, tolerating files that are already
// gone, then validates and reloads. A failed validation skips the reload.
func (c *Configurer) Remove(ctx context.Context, project string) error {
	availablePath := constants.NginxAvailablePath(project)
	enabledPath := constants.NginxEnabledPath(project)
	backupPath := availablePath + ".prev"

	remove := fmt.Sprintf("sudo rm -f %s %s %s",
		security.ShellEscape(enabledPath), security.ShellEscape(availablePath), security.ShellEscape(backupPath))
	if err := c.run(ctx, "failed to remove proxy config", remove); err != nil {
		return err
	}

	res, err := c.exec.Exec(ctx, "sudo nginx -t")
	if err != nil {
		return fmt.Errorf("failed to test proxy config: %w", err)
	}
	if res.ExitCode != 0 {
		return &ProxyConfigError{Output: combined(res)}
	}

	return c.run(ctx, "failed to reload proxy", "sudo systemctl reload nginx")
}

func (c *Configurer) run(ctx context.Context, verb, command string) error {
	res, err := c.exec.Exec(ctx, command)
	if err != nil {
		return fmt.Errorf("%s: %w", verb, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%s (exit %d): %s", verb, res.ExitCode, combined(res))
	}
	return nil
}

func combined(res *ssh.ExecResult) string {
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
