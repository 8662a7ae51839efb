package security

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// projectNameRegex validates project names (DNS-compatible)
	// Allows: lowercase letters, numbers, hyphens (not at start/end)
	// Length: 1-63 characters; the name doubles as the container name
	projectNameRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

	// unixUserRegex validates Unix usernames
	// Standard POSIX username rules
	// Length: 1-32 characters
	unixUserRegex = regexp.MustCompile(`^[a-z_][a-z0-9_-]{0,31}$`)

	// branchRegex validates git branch names
	// Allows: letters, numbers, dots, slashes, underscores, hyphens
	// Length: 1-128 characters, must not start with a dash or dot
	branchRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._/-]{0,127}$`)

	// hostnameRegex validates RFC 1123 hostnames (labels joined by dots)
	hostnameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

	// logTailRegex validates --tail argument for docker logs
	// Allows: positive integers or "all"
	logTailRegex = regexp.MustCompile(`^([0-9]+|all)$`)

	// logSinceRegex validates --since argument for docker logs
	// Allows: durations (e.g., "2h", "30m", "1h30m") or timestamps
	logSinceRegex = regexp.MustCompile(`^([0-9]+[smhd])+$|^[0-9]{4}-[0-9]{2}-[0-9]{2}(T[0-9]{2}:[0-9]{2}:[0-9]{2})?$`)

	// urlCredentialsRegex matches userinfo embedded in http(s) URLs,
	// which is always credential material here
	urlCredentialsRegex = regexp.MustCompile(`(https?://)[^/@\s]+@`)
)

// ValidateProjectName validates a project name derived from a repository URL.
// Project names must be DNS-compatible because they become container names
// and reverse-proxy config file names.
func ValidateProjectName(name string) error {
	if name == "" {
		return fmt.Errorf("project name cannot be empty")
	}
	if len(name) > 63 {
		return fmt.Errorf("project name too long (max 63 characters)")
	}
	if !projectNameRegex.MatchString(name) {
		return fmt.Errorf("project name must contain only lowercase letters, numbers, and hyphens (not at start/end)")
	}
	return nil
}

// ValidateUnixUser validates a Unix username
func ValidateUnixUser(user string) error {
	if user == "" {
		return fmt.Errorf("username cannot be empty")
	}
	if len(user) > 32 {
		return fmt.Errorf("username too long (max 32 characters)")
	}
	if !unixUserRegex.MatchString(user) {
		return fmt.Errorf("username must start with a lowercase letter or underscore, followed by lowercase letters, numbers, underscores, or hyphens")
	}
	return nil
}

// ValidateBranch validates a git branch name before it is embedded in a
// remote command line.
func ValidateBranch(branch string) error {
	if branch == "" {
		return fmt.Errorf("branch cannot be empty")
	}
	if strings.Contains(branch, "..") {
		return fmt.Errorf("branch cannot contain '..'")
	}
	if !branchRegex.MatchString(branch) {
		return fmt.Errorf("branch must contain only letters, numbers, dots, slashes, underscores, and hyphens")
	}
	return nil
}

// ValidateHostname validates an RFC 1123 hostname
func ValidateHostname(host string) error {
	if host == "" {
		return fmt.Errorf("hostname cannot be empty")
	}
	if len(host) > 253 {
		return fmt.Errorf("hostname too long (max 253 characters)")
	}
	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("hostname must be a valid RFC 1123 name")
	}
	return nil
}

// ValidateLogTail validates the --tail argument for docker logs
func ValidateLogTail(tail string) error {
	if tail == "" {
		return nil // Empty defaults to "100"
	}
	if !logTailRegex.MatchString(tail) {
		return fmt.Errorf("tail must be a positive integer or 'all'")
	}
	if tail != "all" {
		n, err := strconv.Atoi(tail)
		if err != nil {
			return fmt.Errorf("invalid tail value: %w", err)
		}
		if n > 100000 {
			return fmt.Errorf("tail value too large (max 100000)")
		}
	}
	return nil
}

// ValidateLogSince validates the --since argument for docker logs
func ValidateLogSince(since string) error {
	if since == "" {
		return nil // Empty means no --since filter
	}
	if len(since) > 64 {
		return fmt.Errorf("since value too long")
	}
	if !logSinceRegex.MatchString(since) {
		return fmt.Errorf("since must be a duration (e.g., '2h', '30m') or timestamp (e.g., '2024-01-15')")
	}
	return nil
}

// ShellEscape escapes a string for safe use in shell commands by wrapping it
// in single quotes and escaping any internal single quotes using the POSIX
// pattern: ' → '\''
func ShellEscape(s string) string {
	escaped := strings.ReplaceAll(s, "'", "'\\''")
	return "'" + escaped + "'"
}

// MaskURLCredentials replaces any userinfo component of http(s) URLs in s
// with a mask. Authenticated clone URLs carry the access token there.
func MaskURLCredentials(s string) string {
	return urlCredentialsRegex.ReplaceAllString(s, "${1}****@")
}

// Redactor masks known secret values in free-form text before it reaches a
// log line or an error message.
type Redactor struct {
	secrets []string
}

// NewRedactor builds a Redactor for the given secret values. Empty values
// are ignored so an unset secret never turns into a no-op mask.
func NewRedactor(secrets ...string) *Redactor {
	r := &Redactor{}
	for _, s := range secrets {
		if s != "" {
			r.secrets = append(r.secrets, s)
		}
	}
	return r
}

// Redact replaces every registered secret with a mask and strips URL
// userinfo. Safe to call on any output destined for logs or errors.
func (r *Redactor) Redact(s string) string {
	for _, secret := range r.secrets {
		s = strings.ReplaceAll(s, secret, "****")
	}
	return MaskURLCredentials(s)
}
