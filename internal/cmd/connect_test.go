package cmd

import (
	"testing"
	"time"
)

func resetTargetFlags() {
	flagRepo = ""
	flagBranch = ""
	flagHost = ""
	flagUser = ""
	flagKeyPath = ""
	flagSSHPort = 0
	flagSSHTimeout = 0
	flagHostKeyPolicy = ""
	flagInsecure = false
}

func clearDockhandEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DOCKHAND_REPOSITORY", "DOCKHAND_BRANCH", "DOCKHAND_HOST", "DOCKHAND_USER",
		"DOCKHAND_KEY_PATH", "DOCKHAND_SERVER_NAME", "DOCKHAND_ACCESS_TOKEN",
		"DOCKHAND_HOST_KEY_POLICY", "DOCKHAND_APP_PORT", "DOCKHAND_SSH_PORT",
		"DOCKHAND_SKIP_HOST_KEY_CHECK",
	} {
		t.Setenv(key, "")
	}
}

func TestResolveRequest_Defaults(t *testing.T) {
	resetTargetFlags()
	defer resetTargetFlags()
	clearDockhandEnv(t)

	req, err := resolveRequest()
	if err != nil {
		t.Fatal(err)
	}

	if req.Branch != "main" {
		t.Errorf("Branch = %q, want main", req.Branch)
	}
	if req.SSHPort != 22 {
		t.Errorf("SSHPort = %d, want 22", req.SSHPort)
	}
	if req.SSHTimeout != 10*time.Second {
		t.Errorf("SSHTimeout = %s, want 10s", req.SSHTimeout)
	}
	if req.HostKeyPolicy != "strict" {
		t.Errorf("HostKeyPolicy = %q, want strict", req.HostKeyPolicy)
	}
}

func TestResolveRequest_FlagsBeatEnvironment(t *testing.T) {
	resetTargetFlags()
	defer resetTargetFlags()
	clearDockhandEnv(t)

	t.Setenv("DOCKHAND_REPOSITORY", "https://github.com/acme/from-env.git")
	t.Setenv("DOCKHAND_HOST", "env.example.com")
	t.Setenv("DOCKHAND_USER", "enver")

	flagRepo = "https://github.com/acme/from-flag.git"
	flagHost = "flag.example.com"

	req, err := resolveRequest()
	if err != nil {
		t.Fatal(err)
	}

	if req.RepositoryURL != "https://github.com/acme/from-flag.git" {
		t.Errorf("RepositoryURL = %q, flag should win over environment", req.RepositoryURL)
	}
	if req.RemoteHost != "flag.example.com" {
		t.Errorf("RemoteHost = %q, flag should win over environment", req.RemoteHost)
	}
	// the environment still fills what no flag set
	if req.RemoteUser != "enver" {
		t.Errorf("RemoteUser = %q, want enver from environment", req.RemoteUser)
	}
}

func TestResolveRequest_InsecureFlag(t *testing.T) {
	resetTargetFlags()
	defer resetTargetFlags()
	clearDockhandEnv(t)

	flagInsecure = true

	req, err := resolveRequest()
	if err != nil {
		t.Fatal(err)
	}
	if req.HostKeyPolicy != "insecure" {
		t.Errorf("HostKeyPolicy = %q, want insecure", req.HostKeyPolicy)
	}
}
