package ssh

import (
	"context"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/abanicaisse/dockhand/internal/security"
)

// UploadContent writes content to a remote file.
// SECURITY: content travels base64-encoded so no byte of it is interpreted
// by the remote shell.
func UploadContent(ctx context.Context, e Executor, content, remotePath string) error {
	encoded := base64.StdEncoding.EncodeToString([]byte(content))

	cmd := fmt.Sprintf("mkdir -p %s && echo '%s' | base64 -d > %s",
		security.ShellEscape(filepath.Dir(remotePath)), encoded, security.ShellEscape(remotePath))

	result, err := e.Exec(ctx, cmd)
	if err != nil {
		return fmt.Errorf("failed to upload content: %w", err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("failed to write %s: %s", remotePath, strings.TrimSpace(result.Stderr))
	}
	return nil
}

// FileExists checks if a file exists on the remote host
func FileExists(ctx context.Context, e Executor, remotePath string) (bool, error) {
	result, err := e.Exec(ctx, fmt.Sprintf("test -f %s && echo 'exists'", security.ShellEscape(remotePath)))
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(result.Stdout) == "exists", nil
}

// DirectoryExists checks if a directory exists on the remote host
func DirectoryExists(ctx context.Context, e Executor, remotePath string) (bool, error) {
	result, err := e.Exec(ctx, fmt.Sprintf("test -d %s && echo 'exists'", security.ShellEscape(remotePath)))
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(result.Stdout) == "exists", nil
}

// RemoveFile removes a file from the remote host, tolerating absence.
func RemoveFile(ctx context.Context, e Executor, remotePath string) error {
	result, err := e.Exec(ctx, fmt.Sprintf("rm -f %s", security.ShellEscape(remotePath)))
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("failed to remove %s: %s", remotePath, strings.TrimSpace(result.Stderr))
	}
	return nil
}

// RemoveDirectory removes a directory tree from the remote host, tolerating
// absence.
func RemoveDirectory(ctx context.Context, e Executor, remotePath string) error {
	result, err := e.Exec(ctx, fmt.Sprintf("rm -rf %s", security.ShellEscape(remotePath)))
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("failed to remove %s: %s", remotePath, strings.TrimSpace(result.Stderr))
	}
	return nil
}
