package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abanicaisse/dockhand/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create dockhand.yaml for this project",
	Long: `Writes the project configuration file. The repository URL is taken
from the local git origin when it is an https remote; everything else is
asked interactively, with sensible defaults.

In non-interactive sessions (--yes or no terminal) a skeleton file is
written for manual editing.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

var initForce bool

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite existing configuration")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := GetConfigFile()
	if path == "" {
		path = config.DefaultFileName
	}
	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	f := &config.File{
		Repository: detectOriginURL(),
		Branch:     config.DefaultBranch,
		Server: config.ServerConfig{
			User:    "root",
			SSHPort: 22,
			KeyPath: "~/.ssh/id_ed25519",
		},
		App: config.AppConfig{
			Port: 3000,
		},
	}

	if IsInteractive() {
		f.Repository = PromptString("Repository URL (https)", f.Repository)
		f.Branch = PromptString("Branch", f.Branch)
		f.Server.Host = PromptString("Server hostname or IPv4", "")
		f.Server.User = PromptString("SSH user", f.Server.User)
		f.Server.KeyPath = PromptString("SSH key path", f.Server.KeyPath)
		if port, err := strconv.Atoi(PromptString("Application port", strconv.Itoa(f.App.Port))); err == nil {
			f.App.Port = port
		}
		f.App.ServerName = PromptString("Nginx server_name (empty for catch-all)", "")
	}

	if err := config.Save(f, path); err != nil {
		return err
	}
	PrintSuccess("Created %s", path)

	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Printf("  1. Review %s and fill in anything missing\n", path)
	fmt.Println("  2. Export DOCKHAND_ACCESS_TOKEN (never goes in the file)")
	fmt.Println("  3. Run 'dockhand check' to validate and probe the server")
	fmt.Println("  4. Run 'dockhand deploy'")

	return nil
}

// detectOriginURL suggests the local git origin when it is already in the
// https form a deployment needs.
func detectOriginURL() string {
	out, err := exec.Command("git", "config", "--get", "remote.origin.url").Output()
	if err != nil {
		return ""
	}
	origin := strings.TrimSpace(string(out))
	if strings.HasPrefix(origin, "http://") || strings.HasPrefix(origin, "https://") {
		return origin
	}
	return ""
}
