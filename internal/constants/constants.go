package constants

import (
	"path/filepath"
	"time"
)

// Base paths for dockhand on the remote host
const (
	BasePath = "/opt/dockhand"
	AppsDir  = BasePath + "/apps"
	LockDir  = "/tmp"
)

// Nginx paths on the remote host
const (
	NginxAvailableDir = "/etc/nginx/sites-available"
	NginxEnabledDir   = "/etc/nginx/sites-enabled"
	NginxDefaultSite  = NginxEnabledDir + "/default"
)

// Connection defaults
const (
	DefaultSSHPort    = 22
	DefaultSSHTimeout = 10 * time.Second
)

// Readiness poll defaults
const (
	ReadinessAttempts     = 8
	ReadinessInitialDelay = 1 * time.Second
	ReadinessMaxDelay     = 8 * time.Second
	ReadinessDeadline     = 60 * time.Second
)

// Probe defaults
const (
	ProbeTimeout   = 10 * time.Second
	DefaultLogTail = 50
)

// Lock defaults
const (
	LockStaleAfter = 20 * time.Minute
)

// AppPath returns the project directory on the remote host.
func AppPath(project string) string {
	return filepath.Join(AppsDir, project)
}

// LockPath returns the per-project deployment lock directory.
func LockPath(project string) string {
	return filepath.Join(LockDir, "dockhand-"+project+".lock")
}

// NginxAvailablePath returns the sites-available config path for a project.
func NginxAvailablePath(project string) string {
	return filepath.Join(NginxAvailableDir, project+".conf")
}

// NginxEnabledPath returns the sites-enabled symlink path for a project.
func NginxEnabledPath(project string) string {
	return filepath.Join(NginxEnabledDir, project+".conf")
}
