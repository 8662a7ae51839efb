package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abanicaisse/dockhand/internal/constants"
	"github.com/abanicaisse/dockhand/internal/deploy"
	"github.com/abanicaisse/dockhand/internal/nginx"
	"github.com/abanicaisse/dockhand/internal/ssh"
)

var undeployCmd = &cobra.Command{
	Use:   "undeploy",
	Short: "Stop the application and remove its proxy route",
	Long: `Removes the deployment from the server: stops and removes the
containers, deletes the project's nginx route, and reloads nginx. Every
step tolerates pieces that are already gone, so running it twice is safe.

The release directory stays on the server unless --purge is given.`,
	Args: cobra.NoArgs,
	RunE: runUndeploy,
}

var undeployPurge bool

func init() {
	rootCmd.AddCommand(undeployCmd)
	addTargetFlags(undeployCmd)
	undeployCmd.Flags().BoolVar(&undeployPurge, "purge", false, "Also remove the release directory from the server")
}

func runUndeploy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	req, err := resolveRequest()
	if err != nil {
		return err
	}
	project := req.ProjectName()

	if IsInteractive() && !PromptConfirm(fmt.Sprintf("Remove %s from %s?", project, req.RemoteHost)) {
		PrintInfo("Aborted")
		return nil
	}

	exec, err := connectRequest(ctx, req)
	if err != nil {
		return err
	}
	defer exec.Close()

	appPath := constants.AppPath(project)

	// compose services are only torn down when the release still says the
	// project is multi-service
	composePath := ""
	if deployed, err := ssh.DirectoryExists(ctx, exec, appPath); err == nil && deployed {
		if method, err := deploy.DetectMethod(ctx, exec, appPath); err == nil && method == deploy.MethodMultiService {
			composePath = appPath
		}
	}

	PrintInfo("Stopping %s...", project)
	if err := deploy.NewEngine(exec).Teardown(ctx, project, composePath); err != nil {
		return err
	}

	PrintInfo("Removing proxy route...")
	if err := nginx.NewConfigurer(exec).Remove(ctx, project); err != nil {
		return err
	}

	// a stale deployment lock has nothing left to protect
	_ = ssh.RemoveDirectory(ctx, exec, constants.LockPath(project))

	if undeployPurge {
		PrintInfo("Removing release directory...")
		if err := ssh.RemoveDirectory(ctx, exec, appPath); err != nil {
			return err
		}
	}

	PrintSuccess("%s removed from %s", project, req.RemoteHost)
	return nil
}
