package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/abanicaisse/dockhand/internal/config"
	"github.com/abanicaisse/dockhand/internal/logging"
	"github.com/abanicaisse/dockhand/internal/pipeline"
	"github.com/abanicaisse/dockhand/internal/ssh"
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy the application to the server",
	Long: `Runs the full deployment:

1. Validates the request
2. Connects to the server and takes the deployment lock
3. Installs Docker and Nginx if they are missing
4. Clones or updates the repository
5. Builds and starts the containers
6. Routes port 80 to the application
7. Verifies the application answers

Values resolve in order: flags, DOCKHAND_* environment variables (.env is
loaded if present), dockhand.yaml, interactive prompts. In non-interactive
sessions missing values fail validation instead of prompting.

The access token is read from DOCKHAND_ACCESS_TOKEN, --token-stdin, or a
hidden prompt. It is never logged and never written to the server.`,
	Args: cobra.NoArgs,
	RunE: runDeploy,
}

var (
	deployPort       int
	deployServerName string
	deployLogDir     string
	deployTokenStdin bool
)

func init() {
	rootCmd.AddCommand(deployCmd)
	addTargetFlags(deployCmd)
	deployCmd.Flags().IntVarP(&deployPort, "port", "p", 0, "Port the application listens on inside the container")
	deployCmd.Flags().StringVar(&deployServerName, "server-name", "", "Nginx server_name for the route (default: catch-all)")
	deployCmd.Flags().StringVar(&deployLogDir, "log-dir", "", "Directory for the run log file (default: current directory)")
	deployCmd.Flags().BoolVar(&deployTokenStdin, "token-stdin", false, "Read the access token from stdin (CI/CD)")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	req, err := resolveRequest()
	if err != nil {
		return err
	}
	if deployPort > 0 {
		req.ApplicationPort = deployPort
	}
	if deployServerName != "" {
		req.ServerName = deployServerName
	}

	if deployTokenStdin {
		token, err := readTokenStdin()
		if err != nil {
			return err
		}
		req.AccessToken = token
	}

	fillInteractive(req)

	if errs := config.Validate(req); errs.HasErrors() {
		for _, e := range errs {
			PrintError("%s", e.Error())
		}
		return fmt.Errorf("invalid deployment request")
	}

	warnInsecure(req)

	run, err := logging.Setup(deployLogDir, "deploy")
	if err != nil {
		return err
	}
	defer run.Close()
	PrintVerbose("Run log: %s", run.Path)

	p := pipeline.New(req)
	p.OnMessage(func(msg string) {
		PrintInfo("%s", msg)
	})

	outcome, err := p.Run(ctx)
	if err != nil {
		PrintError("Deployment failed at stage %q: %s", outcome.FailedStage, outcome.ErrorDetail)
		var stageErr *pipeline.StageError
		if errors.As(err, &stageErr) && stageErr.Output != "" {
			fmt.Fprintln(os.Stderr, stageErr.Output)
		}
		return fmt.Errorf("deployment failed")
	}

	printSummary(req, outcome)
	return nil
}

// fillInteractive prompts for whatever is still missing. Non-interactive
// sessions skip every prompt; validation reports the gaps instead.
func fillInteractive(req *config.Request) {
	if !IsInteractive() {
		return
	}

	if req.RepositoryURL == "" {
		req.RepositoryURL = PromptString("Repository URL (https)", "")
	}
	if req.RemoteHost == "" {
		req.RemoteHost = PromptString("Server hostname or IPv4", "")
	}
	if req.RemoteUser == "" {
		req.RemoteUser = PromptString("SSH user", "root")
	}
	if req.SSHKeyPath == "" {
		req.SSHKeyPath = pickSSHKey()
	}
	if req.ApplicationPort == 0 {
		if port, err := strconv.Atoi(PromptString("Application port", "3000")); err == nil {
			req.ApplicationPort = port
		}
	}
	if req.AccessToken == "" {
		req.AccessToken = PromptSecret("Git access token (input hidden)")
	}
}

// pickSSHKey offers the discovered local keys, falling back to a free-form
// path when none are found or the selection is skipped.
func pickSSHKey() string {
	keys, err := ssh.DiscoverKeys()
	if err == nil && len(keys) > 0 {
		options := make([]string, len(keys))
		for i, k := range keys {
			label := fmt.Sprintf("%s (%s)", k.Name, k.Type)
			if k.IsEncrypted {
				label += " [passphrase-protected]"
			}
			options[i] = label
		}
		if idx := PromptSelect("Which SSH key should dockhand use?", options); idx >= 0 {
			return keys[idx].Path
		}
	}
	return PromptString("SSH key path", "~/.ssh/id_ed25519")
}

func readTokenStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read token from stdin: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("no token received on stdin")
	}
	return token, nil
}

func printSummary(req *config.Request, outcome *pipeline.Outcome) {
	PrintSuccess("Deployment complete!")
	fmt.Println()
	fmt.Printf("Application deployed: %s\n", outcome.Project)
	fmt.Printf("  Revision: %s\n", outcome.Revision)
	fmt.Printf("  Method:   %s\n", outcome.Method)
	fmt.Printf("  Instance: %s\n", outcome.ContainerStatus)
	fmt.Printf("  URL:      http://%s/\n", req.RemoteHost)
	if outcome.Warning != "" {
		PrintWarning("%s", outcome.Warning)
	}
	PrintVerbose("Finished in %s", outcome.Duration.Round(time.Millisecond))
}
