package ssh

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Connection defaults
const (
	DefaultTimeout      = 10 * time.Second
	DefaultMaxRetries   = 3
	DefaultInitialDelay = 1 * time.Second
	DefaultMaxDelay     = 10 * time.Second
)

// HostKeyPolicy selects how the remote host key is verified.
type HostKeyPolicy string

const (
	// HostKeyStrict verifies against ~/.ssh/known_hosts and refuses
	// unknown hosts. This is the default.
	HostKeyStrict HostKeyPolicy = "strict"
	// HostKeyEnv verifies against known_hosts content provided in the
	// DOCKHAND_KNOWN_HOSTS environment variable (CI/CD).
	HostKeyEnv HostKeyPolicy = "known-hosts-env"
	// HostKeyInsecure accepts any host key. Explicit opt-in only.
	HostKeyInsecure HostKeyPolicy = "insecure"
)

// ParseHostKeyPolicy maps a user-supplied policy name to a HostKeyPolicy.
func ParseHostKeyPolicy(s string) (HostKeyPolicy, error) {
	switch HostKeyPolicy(s) {
	case HostKeyStrict, HostKeyEnv, HostKeyInsecure:
		return HostKeyPolicy(s), nil
	case "":
		return HostKeyStrict, nil
	}
	return "", fmt.Errorf("unknown host key policy %q (want strict, known-hosts-env, or insecure)", s)
}

type clientOptions struct {
	timeout       time.Duration
	maxRetries    int
	initialDelay  time.Duration
	maxDelay      time.Duration
	hostKeyPolicy HostKeyPolicy
}

// ClientOption configures a Client.
type ClientOption func(*clientOptions)

// WithTimeout sets the per-attempt connection timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithRetries sets how many connection attempts are made before giving up.
func WithRetries(n int) ClientOption {
	return func(o *clientOptions) {
		if n > 0 {
			o.maxRetries = n
		}
	}
}

// WithInitialDelay sets the delay before the second connection attempt.
func WithInitialDelay(d time.Duration) ClientOption {
	return func(o *clientOptions) {
		if d > 0 {
			o.initialDelay = d
		}
	}
}

// WithMaxDelay caps the exponential backoff between connection attempts.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(o *clientOptions) {
		if d > 0 {
			o.maxDelay = d
		}
	}
}

// WithHostKeyPolicy sets the host key verification policy.
func WithHostKeyPolicy(p HostKeyPolicy) ClientOption {
	return func(o *clientOptions) {
		if p != "" {
			o.hostKeyPolicy = p
		}
	}
}

// Client is an SSH connection to one remote host, authenticated by key.
type Client struct {
	Host    string
	User    string
	Port    int
	KeyPath string

	opts   clientOptions
	config *ssh.ClientConfig
	client *ssh.Client
}

// NewClient creates a client for user@host:port using the private key at
// keyPath. A zero port means 22; an empty keyPath falls back to
// DOCKHAND_SSH_KEY and then the default key locations.
func NewClient(host, user string, port int, keyPath string, opts ...ClientOption) *Client {
	if port == 0 {
		port = 22
	}
	options := clientOptions{
		timeout:       DefaultTimeout,
		maxRetries:    DefaultMaxRetries,
		initialDelay:  DefaultInitialDelay,
		maxDelay:      DefaultMaxDelay,
		hostKeyPolicy: HostKeyStrict,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Client{
		Host:    host,
		User:    user,
		Port:    port,
		KeyPath: keyPath,
		opts:    options,
	}
}

// Connect establishes the SSH connection, retrying transient failures with
// exponential backoff.
func (c *Client) Connect() error {
	signer, err := c.loadPrivateKey()
	if err != nil {
		return fmt.Errorf("failed to load private key: %w", err)
	}

	hostKeyCallback, err := c.hostKeyCallback()
	if err != nil {
		return fmt.Errorf("host key verification failed: %w", err)
	}

	c.config = &ssh.ClientConfig{
		User: c.User,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.opts.timeout,
	}

	return c.dial()
}

// Reconnect re-dials using the configuration from a previous Connect.
func (c *Client) Reconnect() error {
	if c.config == nil {
		return fmt.Errorf("cannot reconnect: no previous connection")
	}
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
	return c.dial()
}

func (c *Client) dial() error {
	addr := net.JoinHostPort(c.Host, strconv.Itoa(c.Port))

	var lastErr error
	for attempt := 1; attempt <= c.opts.maxRetries; attempt++ {
		client, err := ssh.Dial("tcp", addr, c.config)
		if err == nil {
			c.client = client
			return nil
		}
		lastErr = err
		if !isRetryable(err) {
			break
		}
		if attempt < c.opts.maxRetries {
			time.Sleep(c.backoffDelay(attempt))
		}
	}

	return fmt.Errorf("failed to connect to %s: %w", addr, lastErr)
}

// backoffDelay returns the delay after the given 1-based attempt:
// initialDelay doubled per attempt, capped at maxDelay.
func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.opts.initialDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.opts.maxDelay {
			return c.opts.maxDelay
		}
	}
	if delay > c.opts.maxDelay {
		return c.opts.maxDelay
	}
	return delay
}

// isRetryable reports whether a dial error could succeed on retry.
// Authentication and host key failures are deterministic.
func isRetryable(err error) bool {
	msg := err.Error()
	if strings.Contains(msg, "unable to authenticate") {
		return false
	}
	if strings.Contains(msg, "knownhosts:") || strings.Contains(msg, "host key") {
		return false
	}
	return true
}

// Close closes the SSH connection
func (c *Client) Close() error {
	if c.client != nil {
		err := c.client.Close()
		c.client = nil
		return err
	}
	return nil
}

// IsConnected returns true if the client is connected
func (c *Client) IsConnected() bool {
	return c.client != nil
}

// NewSession creates a new SSH session
func (c *Client) NewSession() (*ssh.Session, error) {
	if c.client == nil {
		return nil, fmt.Errorf("not connected")
	}
	return c.client.NewSession()
}

// loadPrivateKey loads the SSH private key
func (c *Client) loadPrivateKey() (ssh.Signer, error) {
	// CI/CD: key content in the environment takes precedence
	if envKey := os.Getenv("DOCKHAND_SSH_KEY"); envKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(envKey))
		if err != nil {
			return nil, fmt.Errorf("failed to parse DOCKHAND_SSH_KEY: %w", err)
		}
		return signer, nil
	}

	keyPath := c.KeyPath
	if keyPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		for _, p := range []string{
			filepath.Join(homeDir, ".ssh", "id_ed25519"),
			filepath.Join(homeDir, ".ssh", "id_rsa"),
		} {
			if _, err := os.Stat(p); err == nil {
				keyPath = p
				break
			}
		}
		if keyPath == "" {
			return nil, fmt.Errorf("no SSH key found (set DOCKHAND_SSH_KEY for CI/CD)")
		}
	}

	keyPath, err := ExpandPath(keyPath)
	if err != nil {
		return nil, err
	}

	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		if isPassphraseError(err) {
			return nil, fmt.Errorf("key %s is passphrase-protected; use an unencrypted deploy key or DOCKHAND_SSH_KEY", keyPath)
		}
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return signer, nil
}

// hostKeyCallback builds the verification callback for the configured
// policy. Strict verification needs a populated ~/.ssh/known_hosts; the
// error message tells the user how to seed it.
func (c *Client) hostKeyCallback() (ssh.HostKeyCallback, error) {
	switch c.opts.hostKeyPolicy {
	case HostKeyInsecure:
		return ssh.InsecureIgnoreHostKey(), nil

	case HostKeyEnv:
		content := os.Getenv("DOCKHAND_KNOWN_HOSTS")
		if content == "" {
			return nil, fmt.Errorf("host key policy %q requires DOCKHAND_KNOWN_HOSTS to be set", HostKeyEnv)
		}
		// knownhosts.New wants a file; parse happens eagerly so the
		// temp file can be removed right after
		tmpFile, err := os.CreateTemp("", "known_hosts")
		if err != nil {
			return nil, fmt.Errorf("failed to create temp known_hosts: %w", err)
		}
		defer os.Remove(tmpFile.Name())

		if _, err := tmpFile.WriteString(content); err != nil {
			tmpFile.Close()
			return nil, fmt.Errorf("failed to write temp known_hosts: %w", err)
		}
		tmpFile.Close()

		callback, err := knownhosts.New(tmpFile.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to parse DOCKHAND_KNOWN_HOSTS: %w", err)
		}
		return callback, nil

	default: // HostKeyStrict
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot determine home directory: %w", err)
		}

		knownHostsPath := filepath.Join(homeDir, ".ssh", "known_hosts")
		if _, err := os.Stat(knownHostsPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("known_hosts file not found at %s. "+
				"Connect to the server manually first with: ssh %s@%s -p %d\n"+
				"For CI/CD, set DOCKHAND_KNOWN_HOSTS or use --insecure-host-key",
				knownHostsPath, c.User, c.Host, c.Port)
		}

		callback, err := knownhosts.New(knownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read known_hosts: %w", err)
		}
		return callback, nil
	}
}
