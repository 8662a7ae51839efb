package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/abanicaisse/dockhand/internal/security"
)

var (
	// Version is set at build time
	Version = "dev"

	// Global flags
	verbose bool
	cfgFile string
	yesFlag bool // CI/CD: skip prompts and confirmations
)

var rootCmd = &cobra.Command{
	Use:   "dockhand",
	Short: "Deploy containerized applications to a VPS over SSH",
	Long: `Dockhand deploys a git-hosted application to a bare VPS: it installs
Docker and Nginx if they are missing, clones or updates the repository,
builds and starts the containers, and routes port 80 to the application.

Quick start:
  dockhand init      # Write dockhand.yaml for this project
  dockhand check     # Validate the request and probe the server
  dockhand deploy    # Run the full deployment
  dockhand status    # Inspect the deployed instance

Commands:
  init          Create dockhand.yaml interactively
  check         Validate the request and probe SSH connectivity
  deploy        Provision, fetch, build, run, and route the application
  status        Show instance, proxy, and route state
  logs          Show the deployed container logs
  undeploy      Stop the instance and remove its proxy route

CI/CD Environment Variables:
  DOCKHAND_ACCESS_TOKEN        Git access token (never logged)
  DOCKHAND_SSH_KEY             SSH private key content
  DOCKHAND_KNOWN_HOSTS         SSH known_hosts content
  DOCKHAND_SKIP_HOST_KEY_CHECK Skip host key verification (true/false)`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and reports failure on stderr.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command; cancelling the context aborts any
// in-flight remote work.
func ExecuteContext(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		PrintError("%v", err)
	}
	return err
}

// GetRootCmd exposes the root command for documentation generation.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: dockhand.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&yesFlag, "yes", "y", false, "Skip prompts and confirmations (CI/CD mode)")

	rootCmd.SetVersionTemplate(`Dockhand {{.Version}}
`)
}

// IsVerbose returns true if verbose mode is enabled
func IsVerbose() bool {
	return verbose
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// IsYesMode returns true if --yes flag is set (CI/CD mode)
func IsYesMode() bool {
	return yesFlag
}

// PrintError prints a formatted error message
func PrintError(msg string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "❌ "+msg+"\n", args...)
}

// PrintSuccess prints a success message
func PrintSuccess(msg string, args ...interface{}) {
	fmt.Printf("✅ "+msg+"\n", args...)
}

// PrintInfo prints an info message
func PrintInfo(msg string, args ...interface{}) {
	fmt.Printf("ℹ️  "+msg+"\n", args...)
}

// PrintWarning prints a warning message
func PrintWarning(msg string, args ...interface{}) {
	fmt.Printf("⚠️  "+msg+"\n", args...)
}

// PrintVerbose prints a message only in verbose mode
func PrintVerbose(msg string, args ...interface{}) {
	if verbose {
		fmt.Printf("   "+msg+"\n", args...)
	}
}

// PrintVerboseCommand prints a command in verbose mode with credentials masked
func PrintVerboseCommand(command string) {
	if verbose {
		fmt.Printf("   Running: %s\n", security.MaskURLCredentials(command))
	}
}
