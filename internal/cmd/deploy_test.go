package cmd

import (
	"os"
	"testing"

	"github.com/abanicaisse/dockhand/internal/config"
)

func TestFillInteractive_NonInteractiveNeverPrompts(t *testing.T) {
	yesFlag = true
	defer func() { yesFlag = false }()

	req := &config.Request{}
	fillInteractive(req)

	if req.RepositoryURL != "" || req.RemoteHost != "" || req.AccessToken != "" || req.ApplicationPort != 0 {
		t.Errorf("request was filled without a terminal: %+v", req)
	}
}

func TestReadTokenStdin(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	old := os.Stdin
	os.Stdin = r
	defer func() { os.Stdin = old }()

	go func() {
		_, _ = w.WriteString("  ghp_exampletoken\n")
		w.Close()
	}()

	token, err := readTokenStdin()
	if err != nil {
		t.Fatalf("readTokenStdin() error = %v", err)
	}
	if token != "ghp_exampletoken" {
		t.Errorf("token = %q, want surrounding whitespace trimmed", token)
	}
}

func TestReadTokenStdin_EmptyInputFails(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	old := os.Stdin
	os.Stdin = r
	defer func() { os.Stdin = old }()
	w.Close()

	if _, err := readTokenStdin(); err == nil {
		t.Error("readTokenStdin() expected an error for empty stdin")
	}
}
