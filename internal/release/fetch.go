package release

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/abanicaisse/dockhand/internal/config"
	"github.com/abanicaisse/dockhand/internal/constants"
	"github.com/abanicaisse/dockhand/internal/security"
	"github.com/abanicaisse/dockhand/internal/ssh"
)

// Fetcher materializes the requested branch of the repository on the
// remote host, under the application directory for the project.
type Fetcher struct {
	exec ssh.Executor
}

// NewFetcher creates a fetcher that runs git through the given executor.
func NewFetcher(exec ssh.Executor) *Fetcher {
	return &Fetcher{exec: exec}
}

// Result describes the release left on the remote host after a fetch.
type Result struct {
	Path     string
	Revision string
	Updated  bool
}

// Fetch clones the repository on the first run and fast-forwards the
// existing clone on later runs. The access token appears only inside the
// remote git commands; the origin URL is reset to its clean form before
// Fetch returns, whether the fetch succeeded or not, so the token is never
// left behind in the remote git config.
func (f *Fetcher) Fetch(ctx context.Context, req *config.Request) (*Result, error) {
	project := req.ProjectName()
	appPath := constants.AppPath(project)
	red := security.NewRedactor(req.AccessToken)

	authURL, err := authenticatedURL(req.RepositoryURL, req.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("invalid repository URL: %w", err)
	}

	hasRepo, err := ssh.DirectoryExists(ctx, f.exec, path.Join(appPath, ".git"))
	if err != nil {
		return nil, fmt.Errorf("failed to inspect release directory: %s", red.Redact(err.Error()))
	}

	if hasRepo {
		if err := f.update(ctx, red, appPath, authURL, req); err != nil {
			return nil, err
		}
	} else {
		hasDir, err := ssh.DirectoryExists(ctx, f.exec, appPath)
		if err != nil {
			return nil, fmt.Errorf("failed to inspect release directory: %s", red.Redact(err.Error()))
		}
		if hasDir {
			// leftover from an interrupted clone
			if err := ssh.RemoveDirectory(ctx, f.exec, appPath); err != nil {
				return nil, fmt.Errorf("failed to clear stale release directory: %s", red.Redact(err.Error()))
			}
		}
		if err := f.clone(ctx, red, appPath, authURL, req); err != nil {
			return nil, err
		}
	}

	revision, err := ssh.Output(ctx, f.exec, fmt.Sprintf("cd %s && git rev-parse --short HEAD", security.ShellEscape(appPath)))
	if err != nil {
		return nil, fmt.Errorf("failed to read release revision: %s", red.Redact(err.Error()))
	}

	return &Result{Path: appPath, Revision: revision, Updated: hasRepo}, nil
}

func (f *Fetcher) update(ctx context.Context, red *security.Redactor, appPath, authURL string, req *config.Request) error {
	escBranch := security.ShellEscape(req.Branch)

	if err := f.git(ctx, red, appPath, "failed to point origin at the repository",
		fmt.Sprintf("git remote set-url origin %s", security.ShellEscape(authURL))); err != nil {
		return err
	}

	var failure error
	steps := []struct {
		verb    string
		command string
	}{
		{"failed to fetch updates", fmt.Sprintf("git fetch origin %s", escBranch)},
		{"failed to check out branch", fmt.Sprintf("git checkout %s", escBranch)},
		{"failed to reset working tree", fmt.Sprintf("git reset --hard origin/%s", escBranch)},
	}
	for _, step := range steps {
		if err := f.git(ctx, red, appPath, step.verb, step.command); err != nil {
			failure = err
			break
		}
	}

	// scrub the token from origin no matter how the update went
	if err := f.git(ctx, red, appPath, "failed to restore origin URL",
		fmt.Sprintf("git remote set-url origin %s", security.ShellEscape(req.RepositoryURL))); err != nil && failure == nil {
		failure = err
	}

	return failure
}

func (f *Fetcher) clone(ctx context.Context, red *security.Redactor, appPath, authURL string, req *config.Request) error {
	mkdir := fmt.Sprintf("mkdir -p %s", security.ShellEscape(constants.AppsDir))
	if res, err := f.exec.Exec(ctx, mkdir); err != nil {
		return fmt.Errorf("failed to prepare release directory: %s", red.Redact(err.Error()))
	} else if res.ExitCode != 0 {
		return fmt.Errorf("failed to prepare release directory (exit %d): %s", res.ExitCode, red.Redact(trimmedOutput(res)))
	}

	cloneCmd := fmt.Sprintf("git clone --branch %s --single-branch %s %s",
		security.ShellEscape(req.Branch), security.ShellEscape(authURL), security.ShellEscape(appPath))
	if res, err := f.exec.Exec(ctx, cloneCmd); err != nil {
		return fmt.Errorf("failed to clone repository: %s", red.Redact(err.Error()))
	} else if res.ExitCode != 0 {
		// a partial clone must not survive into the next run
		_ = ssh.RemoveDirectory(ctx, f.exec, appPath)
		return fmt.Errorf("failed to clone repository (exit %d): %s", res.ExitCode, red.Redact(trimmedOutput(res)))
	}

	return f.git(ctx, red, appPath, "failed to restore origin URL",
		fmt.Sprintf("git remote set-url origin %s", security.ShellEscape(req.RepositoryURL)))
}

// git runs a single git command inside the application directory.
func (f *Fetcher) git(ctx context.Context, red *security.Redactor, appPath, verb, command string) error {
	full := fmt.Sprintf("cd %s && %s", security.ShellEscape(appPath), command)
	res, err := f.exec.Exec(ctx, full)
	if err != nil {
		return fmt.Errorf("%s: %s", verb, red.Redact(err.Error()))
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%s (exit %d): %s", verb, res.ExitCode, red.Redact(trimmedOutput(res)))
	}
	return nil
}

// authenticatedURL injects the access token into the authority section of
// the repository URL, the form git accepts for token-based HTTP auth.
func authenticatedURL(repoURL, token string) (string, error) {
	u, err := url.Parse(repoURL)
	if err != nil {
		return "", err
	}
	u.User = url.User(token)
	return u.String(), nil
}

func trimmedOutput(res *ssh.ExecResult) string {
	if s := strings.TrimSpace(res.Stderr); s != "" {
		return s
	}
	return strings.TrimSpace(res.Stdout)
}
