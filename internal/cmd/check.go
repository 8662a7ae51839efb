package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abanicaisse/dockhand/internal/config"
	"github.com/abanicaisse/dockhand/internal/ssh"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the deployment request and probe the server",
	Long: `Runs the preflight for a deployment without changing anything: every
request field is validated, the SSH connection is opened, and a probe
command confirms the server executes commands.

Example:
  dockhand check
  dockhand check --host 203.0.113.10 --user deploy`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	addTargetFlags(checkCmd)
	checkCmd.Flags().IntVarP(&deployPort, "port", "p", 0, "Port the application listens on inside the container")
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	req, err := resolveRequest()
	if err != nil {
		return err
	}
	if deployPort > 0 {
		req.ApplicationPort = deployPort
	}

	if errs := config.Validate(req); errs.HasErrors() {
		for _, e := range errs {
			PrintError("%s", e.Error())
		}
		return fmt.Errorf("%d validation failure(s)", len(errs))
	}
	PrintSuccess("Request valid (project %q)", req.ProjectName())

	PrintInfo("Connecting to %s@%s...", req.RemoteUser, req.RemoteHost)
	exec, err := connectRequest(ctx, req)
	if err != nil {
		return err
	}
	defer exec.Close()

	if err := ssh.Probe(ctx, exec); err != nil {
		return fmt.Errorf("connectivity probe failed: %w", err)
	}
	PrintSuccess("Server reachable and executing commands")

	return nil
}
