package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestSetup(t *testing.T) {
	dir := t.TempDir()

	run, err := Setup(dir, "deploy")
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	defer run.Close()

	if run.ID == "" {
		t.Error("expected a non-empty run ID")
	}

	base := filepath.Base(run.Path)
	if !strings.HasPrefix(base, "dockhand-deploy-") || !strings.HasSuffix(base, ".log") {
		t.Errorf("unexpected log file name %q", base)
	}

	run.Logger.Info("deployment started", zap.String("project", "shop"))
	run.Logger.Debug("detail line")
	if err := run.Logger.Sync(); err != nil {
		t.Logf("sync: %v", err)
	}

	data, err := os.ReadFile(run.Path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	content := string(data)

	if !strings.Contains(content, "deployment started") {
		t.Errorf("log file missing info line:\n%s", content)
	}
	if !strings.Contains(content, "detail line") {
		t.Errorf("log file missing debug line:\n%s", content)
	}
	if !strings.Contains(content, run.ID) {
		t.Errorf("log lines should carry the run ID:\n%s", content)
	}
}

func TestSetup_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")

	run, err := Setup(dir, "check")
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	defer run.Close()

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("expected log directory to exist: %v", err)
	}
}

func TestSetup_InstallsGlobal(t *testing.T) {
	run, err := Setup(t.TempDir(), "status")
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	defer run.Close()

	zap.L().Info("via global")
	_ = zap.L().Sync()

	data, err := os.ReadFile(run.Path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "via global") {
		t.Error("global logger should write to the run file")
	}
}
