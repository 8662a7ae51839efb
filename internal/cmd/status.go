package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abanicaisse/dockhand/internal/constants"
	"github.com/abanicaisse/dockhand/internal/deploy"
	"github.com/abanicaisse/dockhand/internal/security"
	"github.com/abanicaisse/dockhand/internal/ssh"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the deployed instance, proxy, and route state",
	Long: `Inspects the server without changing anything: the deployed revision,
the container or compose service state, whether nginx is active, whether
the project's route is installed, and whether the proxy answers locally.

Example:
  dockhand status
  dockhand status --host 203.0.113.10`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	addTargetFlags(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	req, err := resolveRequest()
	if err != nil {
		return err
	}

	exec, err := connectRequest(ctx, req)
	if err != nil {
		return err
	}
	defer exec.Close()

	project := req.ProjectName()
	appPath := constants.AppPath(project)

	deployed, err := ssh.DirectoryExists(ctx, exec, appPath)
	if err != nil {
		return fmt.Errorf("failed to inspect %s: %w", appPath, err)
	}
	if !deployed {
		PrintInfo("%s is not deployed on %s", project, req.RemoteHost)
		return nil
	}

	revision, err := ssh.Output(ctx, exec,
		fmt.Sprintf("cd %s && git rev-parse --short HEAD", security.ShellEscape(appPath)))
	if err != nil {
		revision = "unknown"
	}

	method, err := deploy.DetectMethod(ctx, exec, appPath)
	if err != nil {
		return err
	}

	instance := "not running"
	if method != deploy.MethodUnsupported {
		status, err := deploy.InstanceStatus(ctx, exec, project, method, appPath)
		if err != nil {
			return err
		}
		if status != "" {
			instance = status
		}
	}

	proxyRes, err := exec.Exec(ctx, "systemctl is-active nginx")
	if err != nil {
		return fmt.Errorf("failed to read nginx status: %w", err)
	}
	proxy := strings.TrimSpace(proxyRes.Stdout)
	if proxy == "" {
		proxy = "unknown"
	}

	routed, err := ssh.FileExists(ctx, exec, constants.NginxAvailablePath(project))
	if err != nil {
		return fmt.Errorf("failed to inspect proxy route: %w", err)
	}
	route := "missing"
	if routed {
		route = constants.NginxAvailablePath(project)
	}

	fmt.Printf("Project:  %s\n", project)
	fmt.Printf("Server:   %s\n", req.RemoteHost)
	fmt.Printf("Revision: %s\n", revision)
	fmt.Printf("Method:   %s\n", method)
	fmt.Printf("Instance: %s\n", instance)
	fmt.Printf("Nginx:    %s\n", proxy)
	fmt.Printf("Route:    %s\n", route)

	return nil
}
