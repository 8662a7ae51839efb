package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/abanicaisse/dockhand/internal/constants"
	"github.com/abanicaisse/dockhand/internal/deploy"
	"github.com/abanicaisse/dockhand/internal/security"
	"github.com/abanicaisse/dockhand/internal/ssh"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the deployed application logs",
	Long: `Displays logs from the deployed container, or from every compose
service for a multi-service deployment.

Example:
  dockhand logs
  dockhand logs --tail 50
  dockhand logs --since 2h
  dockhand logs -f`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

var (
	logsFollow bool
	logsTail   string
	logsSince  string
)

func init() {
	rootCmd.AddCommand(logsCmd)
	addTargetFlags(logsCmd)
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output")
	logsCmd.Flags().StringVar(&logsTail, "tail", "100", "Number of lines to show")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show logs since duration (e.g. 2h, 30m)")
}

func runLogs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if err := security.ValidateLogTail(logsTail); err != nil {
		return fmt.Errorf("invalid --tail value: %w", err)
	}
	if err := security.ValidateLogSince(logsSince); err != nil {
		return fmt.Errorf("invalid --since value: %w", err)
	}

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
		return fmt.Errorf("%s is not deployed on %s", project, req.RemoteHost)
	}

	method, err := deploy.DetectMethod(ctx, exec, appPath)
	if err != nil {
		return err
	}

	// tail and since are validated above, safe to splice
	logArgs := fmt.Sprintf("--tail %s", logsTail)
	if logsSince != "" {
		logArgs += fmt.Sprintf(" --since %s", logsSince)
	}
	if logsFollow {
		logArgs += " -f"
	}

	var command string
	if method == deploy.MethodMultiService {
		command = fmt.Sprintf("cd %s && sudo docker compose logs %s",
			security.ShellEscape(appPath), logArgs)
	} else {
		command = fmt.Sprintf("sudo docker logs %s %s",
			logArgs, security.ShellEscape(project))
	}
	PrintVerboseCommand(command)

	if logsFollow {
		return exec.ExecStream(ctx, command)
	}

	res, err := exec.Exec(ctx, command)
	if err != nil {
		return fmt.Errorf("failed to get logs: %w", err)
	}
	fmt.Print(res.Stdout)
	if res.Stderr != "" {
		fmt.Fprint(os.Stderr, res.Stderr)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("docker logs exited with status %d", res.ExitCode)
	}

	return nil
}
