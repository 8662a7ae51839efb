package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/abanicaisse/dockhand/internal/security"
	"github.com/abanicaisse/dockhand/internal/ssh"
)

// ValidationError represents one rejected request field
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors holds every validation failure of a request
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validate checks every field a deployment needs and collects all failures
// instead of stopping at the first. A request that fails validation causes
// no remote connection.
func Validate(req *Request) ValidationErrors {
	errors := ValidateConnect(req)

	if req.AccessToken == "" {
		errors = append(errors, ValidationError{
			Field:   "access_token",
			Message: "access token is required (set DOCKHAND_ACCESS_TOKEN or use --token-stdin)",
		})
	}

	if err := security.ValidateBranch(req.Branch); err != nil {
		errors = append(errors, ValidationError{
			Field:   "branch",
			Message: err.Error(),
		})
	}

	if req.ApplicationPort < 1 || req.ApplicationPort > 65535 {
		errors = append(errors, ValidationError{
			Field:   "port",
			Message: "application port must be between 1 and 65535",
		})
	}

	if req.ServerName != "" && req.ServerName != "_" {
		if err := security.ValidateHostname(req.ServerName); err != nil {
			errors = append(errors, ValidationError{
				Field:   "server_name",
				Message: err.Error(),
			})
		}
	}

	return errors
}

// ValidateConnect checks only the fields needed to name the project and
// reach the host. Commands that inspect or tear down an existing deployment
// validate against this subset; they have no use for a token or an
// application port.
func ValidateConnect(req *Request) ValidationErrors {
	var errors ValidationErrors

	if req.RepositoryURL == "" {
		errors = append(errors, ValidationError{
			Field:   "repository",
			Message: "repository URL is required",
		})
	} else if !strings.HasPrefix(req.RepositoryURL, "http://") && !strings.HasPrefix(req.RepositoryURL, "https://") {
		errors = append(errors, ValidationError{
			Field:   "repository",
			Message: "repository URL must begin with http:// or https://",
		})
	} else if u, err := url.Parse(req.RepositoryURL); err != nil || u.Host == "" || strings.Trim(u.Path, "/") == "" {
		errors = append(errors, ValidationError{
			Field:   "repository",
			Message: "repository URL must name a host and a repository path",
		})
	} else if err := security.ValidateProjectName(req.ProjectName()); err != nil {
		errors = append(errors, ValidationError{
			Field:   "repository",
			Message: fmt.Sprintf("derived project name %q is invalid: %v", req.ProjectName(), err),
		})
	}

	if req.RemoteHost == "" {
		errors = append(errors, ValidationError{
			Field:   "host",
			Message: "remote host is required",
		})
	} else if ip := net.ParseIP(req.RemoteHost); ip != nil {
		if ip.To4() == nil {
			errors = append(errors, ValidationError{
				Field:   "host",
				Message: "IPv6 addresses are not supported; use IPv4 or a hostname",
			})
		}
	} else if looksLikeIPv4(req.RemoteHost) {
		errors = append(errors, ValidationError{
			Field:   "host",
			Message: "malformed IPv4 address",
		})
	} else if err := security.ValidateHostname(req.RemoteHost); err != nil {
		errors = append(errors, ValidationError{
			Field:   "host",
			Message: err.Error(),
		})
	}

	if err := security.ValidateUnixUser(req.RemoteUser); err != nil {
		errors = append(errors, ValidationError{
			Field:   "user",
			Message: err.Error(),
		})
	}

	if req.SSHPort < 1 || req.SSHPort > 65535 {
		errors = append(errors, ValidationError{
			Field:   "ssh_port",
			Message: "ssh port must be between 1 and 65535",
		})
	}

	// DOCKHAND_SSH_KEY carries the key inline (CI/CD); no file to check then
	if os.Getenv("DOCKHAND_SSH_KEY") == "" {
		if err := validateKeyPath(req.SSHKeyPath); err != nil {
			errors = append(errors, ValidationError{
				Field:   "key_path",
				Message: err.Error(),
			})
		}
	}

	if _, err := ssh.ParseHostKeyPolicy(req.HostKeyPolicy); err != nil {
		errors = append(errors, ValidationError{
			Field:   "host_key_policy",
			Message: err.Error(),
		})
	}

	return errors
}

// validateKeyPath requires an existing, readable, regular file.
func validateKeyPath(keyPath string) error {
	if keyPath == "" {
		return fmt.Errorf("SSH key path is required")
	}

	expanded, err := ssh.ExpandPath(keyPath)
	if err != nil {
		return err
	}

	info, err := os.Stat(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("SSH key file does not exist: %s", expanded)
		}
		return fmt.Errorf("cannot access SSH key file: %v", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("SSH key path is not a regular file: %s", expanded)
	}

	f, err := os.Open(expanded)
	if err != nil {
		return fmt.Errorf("SSH key file is not readable: %s", expanded)
	}
	f.Close()

	return nil
}

// looksLikeIPv4 reports whether the host was clearly meant to be a
// dotted-quad address, so "999.1.1.1" fails as a bad IP rather than
// passing as a hostname.
func looksLikeIPv4(host string) bool {
	parts := strings.Split(host, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
		for _, c := range p {
			if c < '0' || c > '9' {
				return false
			}
		}
	}
	return true
}
