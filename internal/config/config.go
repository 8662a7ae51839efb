package config

import (
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultFileName is the default project config filename
	DefaultFileName = "dockhand.yaml"

	// DefaultBranch is deployed when no branch is given
	DefaultBranch = "main"
)

// Request describes one deployment. It is built once from config file,
// environment, and flags, validated, and then passed unchanged through
// every pipeline stage.
type Request struct {
	RepositoryURL string
	// AccessToken authenticates the clone/fetch. It is used exactly once
	// to build the authenticated URL and never written to logs, errors,
	// or any file, local or remote.
	AccessToken     string
	Branch          string
	RemoteUser      string
	RemoteHost      string
	SSHPort         int
	SSHKeyPath      string
	ApplicationPort int
	ServerName      string
	SSHTimeout      time.Duration
	HostKeyPolicy   string
}

// ProjectName derives the project identifier from the repository URL:
// the last path element with a trailing .git removed. It names the remote
// directory, the container, and the proxy route.
func (r *Request) ProjectName() string {
	trimmed := strings.TrimSuffix(r.RepositoryURL, "/")
	base := path.Base(trimmed)
	return strings.TrimSuffix(base, ".git")
}

// ServerConfig is the remote host section of dockhand.yaml
type ServerConfig struct {
	Host    string `yaml:"host"`
	User    string `yaml:"user"`
	SSHPort int    `yaml:"ssh_port,omitempty"`
	KeyPath string `yaml:"key_path,omitempty"`
}

// AppConfig is the application section of dockhand.yaml
type AppConfig struct {
	Port       int    `yaml:"port"`
	ServerName string `yaml:"server_name,omitempty"`
}

// File is the on-disk project configuration
type File struct {
	Repository string       `yaml:"repository"`
	Branch     string       `yaml:"branch,omitempty"`
	Server     ServerConfig `yaml:"server"`
	App        AppConfig    `yaml:"app"`
}

// Load reads the project configuration. A missing file is only an error
// when the path was given explicitly; the default file is optional because
// every value can come from flags or the environment.
func Load(configPath string) (*File, error) {
	explicit := configPath != ""
	if !explicit {
		configPath = DefaultFileName
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			if explicit {
				return nil, fmt.Errorf("configuration file not found: %s", configPath)
			}
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &f, nil
}

// Save writes the project configuration.
func Save(f *File, configPath string) error {
	if configPath == "" {
		configPath = DefaultFileName
	}

	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Overrides carries flag-level values. Zero values mean "not set".
type Overrides struct {
	Repository    string
	Branch        string
	User          string
	Host          string
	KeyPath       string
	ServerName    string
	HostKeyPolicy string
	Port          int
	SSHPort       int
	SSHTimeout    time.Duration
}

// Build layers the sources into a Request: defaults, then the config file,
// then DOCKHAND_* environment variables, then flag overrides. The access
// token comes from the environment only; the CLI may fill it afterwards
// from stdin or a prompt.
func Build(file *File, ov Overrides) *Request {
	req := &Request{
		Branch:        DefaultBranch,
		SSHPort:       22,
		SSHTimeout:    10 * time.Second,
		HostKeyPolicy: "strict",
	}

	if file != nil {
		setStr(&req.RepositoryURL, file.Repository)
		setStr(&req.Branch, file.Branch)
		setStr(&req.RemoteHost, file.Server.Host)
		setStr(&req.RemoteUser, file.Server.User)
		setStr(&req.SSHKeyPath, file.Server.KeyPath)
		setStr(&req.ServerName, file.App.ServerName)
		setInt(&req.SSHPort, file.Server.SSHPort)
		setInt(&req.ApplicationPort, file.App.Port)
	}

	setStr(&req.RepositoryURL, os.Getenv("DOCKHAND_REPOSITORY"))
	setStr(&req.Branch, os.Getenv("DOCKHAND_BRANCH"))
	setStr(&req.RemoteHost, os.Getenv("DOCKHAND_HOST"))
	setStr(&req.RemoteUser, os.Getenv("DOCKHAND_USER"))
	setStr(&req.SSHKeyPath, os.Getenv("DOCKHAND_KEY_PATH"))
	setStr(&req.ServerName, os.Getenv("DOCKHAND_SERVER_NAME"))
	setStr(&req.AccessToken, os.Getenv("DOCKHAND_ACCESS_TOKEN"))
	setStr(&req.HostKeyPolicy, os.Getenv("DOCKHAND_HOST_KEY_POLICY"))
	setInt(&req.ApplicationPort, envInt("DOCKHAND_APP_PORT"))
	setInt(&req.SSHPort, envInt("DOCKHAND_SSH_PORT"))
	if os.Getenv("DOCKHAND_SKIP_HOST_KEY_CHECK") == "true" {
		req.HostKeyPolicy = "insecure"
	}

	setStr(&req.RepositoryURL, ov.Repository)
	setStr(&req.Branch, ov.Branch)
	setStr(&req.RemoteHost, ov.Host)
	setStr(&req.RemoteUser, ov.User)
	setStr(&req.SSHKeyPath, ov.KeyPath)
	setStr(&req.ServerName, ov.ServerName)
	setStr(&req.HostKeyPolicy, ov.HostKeyPolicy)
	setInt(&req.ApplicationPort, ov.Port)
	setInt(&req.SSHPort, ov.SSHPort)
	if ov.SSHTimeout > 0 {
		req.SSHTimeout = ov.SSHTimeout
	}

	return req
}

func setStr(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// envInt reads an integer environment variable; malformed values read as
// unset and are caught by validation.
func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
