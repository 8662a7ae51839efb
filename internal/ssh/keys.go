package ssh

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/crypto/ssh"
)

// KeyInfo describes a local SSH private key
type KeyInfo struct {
	Path        string // Full path to the key file
	Name        string // Key filename (e.g., "id_ed25519")
	Type        string // Key type (e.g., "ed25519", "rsa", "ecdsa")
	IsEncrypted bool   // True if key is passphrase-protected
}

// ExpandPath expands a leading ~/ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if len(path) >= 2 && path[:2] == "~/" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(homeDir, path[2:]), nil
	}
	return path, nil
}

// DiscoverKeys scans ~/.ssh/ for private keys.
// Returns keys sorted by preference: ed25519 first, then rsa, then others.
func DiscoverKeys() ([]KeyInfo, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}

	sshDir := filepath.Join(homeDir, ".ssh")
	entries, err := os.ReadDir(sshDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read .ssh directory: %w", err)
	}

	var keys []KeyInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if strings.HasSuffix(name, ".pub") ||
			name == "known_hosts" ||
			name == "authorized_keys" ||
			name == "config" {
			continue
		}
		if !strings.HasPrefix(name, "id_") && !strings.HasSuffix(name, ".pem") {
			continue
		}

		info, err := InspectKey(filepath.Join(sshDir, name))
		if err != nil {
			// Not a parseable private key; skip it
			continue
		}
		keys = append(keys, *info)
	}

	sort.Slice(keys, func(i, j int) bool {
		return keyTypePriority(keys[i].Type) < keyTypePriority(keys[j].Type)
	})

	return keys, nil
}

// keyTypePriority returns sort priority for key types (lower is better)
func keyTypePriority(keyType string) int {
	switch keyType {
	case "ed25519":
		return 1
	case "rsa":
		return 2
	case "ecdsa":
		return 3
	default:
		return 4
	}
}

// InspectKey reads a key file and reports its type and whether it needs a
// passphrase.
func InspectKey(path string) (*KeyInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	info := &KeyInfo{
		Path: path,
		Name: filepath.Base(path),
	}

	if _, err := ssh.ParsePrivateKey(data); err != nil {
		if isPassphraseError(err) {
			info.IsEncrypted = true
			info.Type = detectKeyType(data)
			return info, nil
		}
		return nil, fmt.Errorf("invalid SSH key: %w", err)
	}

	info.Type = detectKeyType(data)
	return info, nil
}

// isPassphraseError checks if the error indicates a passphrase-protected key
func isPassphraseError(err error) bool {
	errStr := err.Error()
	return strings.Contains(errStr, "passphrase") ||
		strings.Contains(errStr, "encrypted") ||
		strings.Contains(errStr, "ENCRYPTED")
}

// detectKeyType attempts to detect the key type from the key data
func detectKeyType(data []byte) string {
	content := string(data)

	if strings.Contains(content, "OPENSSH PRIVATE KEY") {
		if strings.Contains(strings.ToLower(content), "ed25519") {
			return "ed25519"
		}
		// Modern OpenSSH format without a hint; ed25519 is the default
		return "ed25519"
	}
	if strings.Contains(content, "RSA PRIVATE KEY") {
		return "rsa"
	}
	if strings.Contains(content, "EC PRIVATE KEY") {
		return "ecdsa"
	}
	if strings.Contains(content, "DSA PRIVATE KEY") {
		return "dsa"
	}

	return "unknown"
}
