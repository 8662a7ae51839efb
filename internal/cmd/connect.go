package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/abanicaisse/dockhand/internal/config"
	"github.com/abanicaisse/dockhand/internal/pipeline"
	"github.com/abanicaisse/dockhand/internal/ssh"
)

// Target flags shared by every command that talks to the server. One command
// runs per invocation, so the bindings can be package-level like the global
// flags.
var (
	flagRepo          string
	flagBranch        string
	flagHost          string
	flagUser          string
	flagKeyPath       string
	flagSSHPort       int
	flagSSHTimeout    time.Duration
	flagHostKeyPolicy string
	flagInsecure      bool
)

func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagRepo, "repo", "", "Repository URL (https)")
	cmd.Flags().StringVar(&flagBranch, "branch", "", "Branch to deploy (default: main)")
	cmd.Flags().StringVar(&flagHost, "host", "", "Server hostname or IPv4 address")
	cmd.Flags().StringVar(&flagUser, "user", "", "SSH user on the server")
	cmd.Flags().StringVar(&flagKeyPath, "key", "", "SSH private key path")
	cmd.Flags().IntVar(&flagSSHPort, "ssh-port", 0, "SSH port (default: 22)")
	cmd.Flags().DurationVar(&flagSSHTimeout, "ssh-timeout", 0, "SSH connection timeout (default: 10s)")
	cmd.Flags().StringVar(&flagHostKeyPolicy, "host-key-policy", "", "Host key policy: strict, known-hosts-env, or insecure")
	cmd.Flags().BoolVar(&flagInsecure, "insecure-host-key", false, "Accept any host key (shorthand for --host-key-policy=insecure)")
}

// resolveRequest layers the sources into a request: defaults, dockhand.yaml,
// DOCKHAND_* environment (with .env loaded best-effort), then flags.
func resolveRequest() (*config.Request, error) {
	_ = godotenv.Load()

	file, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, err
	}

	ov := config.Overrides{
		Repository:    flagRepo,
		Branch:        flagBranch,
		Host:          flagHost,
		User:          flagUser,
		KeyPath:       flagKeyPath,
		HostKeyPolicy: flagHostKeyPolicy,
		SSHPort:       flagSSHPort,
		SSHTimeout:    flagSSHTimeout,
	}
	if flagInsecure {
		ov.HostKeyPolicy = string(ssh.HostKeyInsecure)
	}

	return config.Build(file, ov), nil
}

// connectRequest validates the connection fields and opens the remote
// channel. The caller must defer Close.
func connectRequest(ctx context.Context, req *config.Request) (ssh.Executor, error) {
	if errs := config.ValidateConnect(req); errs.HasErrors() {
		for _, e := range errs {
			PrintError("%s", e.Error())
		}
		return nil, fmt.Errorf("invalid request")
	}

	warnInsecure(req)

	PrintVerbose("Connecting to %s@%s:%d", req.RemoteUser, req.RemoteHost, req.SSHPort)
	exec, err := pipeline.Connect(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return exec, nil
}

func warnInsecure(req *config.Request) {
	if req.HostKeyPolicy == string(ssh.HostKeyInsecure) {
		PrintWarning("Host key verification is disabled; the server identity is not checked")
	}
}
