package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/abanicaisse/dockhand/internal/constants"
	"github.com/abanicaisse/dockhand/internal/security"
	"github.com/abanicaisse/dockhand/internal/ssh"
)

// Lock is the per-project mutual-exclusion lock on the remote host. The
// host holds shared mutable state (one container, one proxy route, one
// package set), so two deployments of the same project must never overlap.
type Lock struct {
	exec       ssh.Executor
	project    string
	path       string
	staleAfter time.Duration
}

// NewLock creates the lock for a project with the default staleness window.
func NewLock(exec ssh.Executor, project string) *Lock {
	return &Lock{
		exec:       exec,
		project:    project,
		path:       constants.LockPath(project),
		staleAfter: constants.LockStaleAfter,
	}
}

// SetStaleAfter sets how old a held lock must be before it is stolen
func (l *Lock) SetStaleAfter(d time.Duration) {
	l.staleAfter = d
}

// LockError reports a lock held by another deployment still in progress.
type LockError struct {
	Project string
	Path    string
	Age     time.Duration
}

func (e *LockError) Error() string {
	return fmt.Sprintf("another deployment of %s appears to be in progress (lock %s held for %s)",
		e.Project, e.Path, e.Age.Round(time.Second))
}

// Acquire takes the lock. mkdir is atomic on the remote filesystem, so
// exactly one contender wins. A lock older than the staleness window is
// assumed abandoned (a crashed run never releases) and is stolen once.
func (l *Lock) Acquire(ctx context.Context) error {
	acquired, err := l.tryAcquire(ctx)
	if err != nil {
		return err
	}
	if acquired {
		return nil
	}

	age, err := l.heldFor(ctx)
	if err != nil {
		return err
	}
	if age < l.staleAfter {
		return &LockError{Project: l.project, Path: l.path, Age: age}
	}

	if err := ssh.RemoveDirectory(ctx, l.exec, l.path); err != nil {
		return fmt.Errorf("failed to clear stale lock: %w", err)
	}
	acquired, err = l.tryAcquire(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		// someone else won the re-acquire race
		return &LockError{Project: l.project, Path: l.path, Age: 0}
	}
	return nil
}

// Release drops the lock, tolerating absence. Failures are returned but a
// caller may ignore them: a lock left behind goes stale and is stolen by
// the next run.
func (l *Lock) Release(ctx context.Context) error {
	return ssh.RemoveDirectory(ctx, l.exec, l.path)
}

func (l *Lock) tryAcquire(ctx context.Context) (bool, error) {
	esc := security.ShellEscape(l.path)
	cmd := fmt.Sprintf("mkdir %s 2>/dev/null && date +%%s > %s/started", esc, esc)
	res, err := l.exec.Exec(ctx, cmd)
	if err != nil {
		return false, fmt.Errorf("failed to acquire deployment lock: %w", err)
	}
	return res.ExitCode == 0, nil
}

// heldFor reads the lock age from the remote clock. A missing or unreadable
// started file reads as epoch zero, which makes the lock maximally old and
// therefore stale.
func (l *Lock) heldFor(ctx context.Context) (time.Duration, error) {
	esc := security.ShellEscape(l.path)
	cmd := fmt.Sprintf("echo $(( $(date +%%s) - $(cat %s/started 2>/dev/null || echo 0) ))", esc)
	out, err := ssh.Output(ctx, l.exec, cmd)
	if err != nil {
		return 0, fmt.Errorf("failed to read deployment lock age: %w", err)
	}
	seconds, err := strconv.ParseInt(out, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected lock age %q: %w", out, err)
	}
	return time.Duration(seconds) * time.Second, nil
}
