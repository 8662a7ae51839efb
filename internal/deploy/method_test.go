package deploy

import (
	"context"
	"strings"
	"testing"

	"github.com/abanicaisse/dockhand/internal/ssh"
)

func TestDetectMethod(t *testing.T) {
	tests := []struct {
		name     string
		output   string
		expected Method
		wantErr  bool
	}{
		{"dockerfile wins", "single\n", MethodSingleContainer, false},
		{"compose only", "multi\n", MethodMultiService, false},
		{"no descriptor", "none\n", MethodUnsupported, false},
		{"garbage output", "wat\n", MethodUnsupported, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &ssh.MockExecutor{
				ExecFunc: func(_ context.Context, _ string) (*ssh.ExecResult, error) {
					return &ssh.ExecResult{Stdout: tt.output}, nil
				},
			}

			method, err := DetectMethod(context.Background(), mock, "/opt/dockhand/apps/shop-api")
			if (err != nil) != tt.wantErr {
				t.Errorf("DetectMethod() error = %v, wantErr %v", err, tt.wantErr)
			}
			if method != tt.expected {
				t.Errorf("DetectMethod() = %v, want %v", method, tt.expected)
			}
		})
	}
}

func TestDetectMethod_DockerfileCheckedFirst(t *testing.T) {
	mock := &ssh.MockExecutor{
		ExecFunc: func(_ context.Context, _ string) (*ssh.ExecResult, error) {
			return &ssh.ExecResult{Stdout: "single\n"}, nil
		},
	}

	if _, err := DetectMethod(context.Background(), mock, "/opt/dockhand/apps/shop-api"); err != nil {
		t.Fatalf("DetectMethod() error = %v", err)
	}

	if len(mock.Commands) != 1 {
		t.Fatalf("commands = %d, want one detection script", len(mock.Commands))
	}
	script := mock.Commands[0]
	dockerfileIdx := strings.Index(script, "Dockerfile")
	composeIdx := strings.Index(script, "docker-compose.yml")
	if dockerfileIdx == -1 || composeIdx == -1 {
		t.Fatalf("script misses a descriptor check: %q", script)
	}
	if dockerfileIdx > composeIdx {
		t.Error("Dockerfile must take precedence over compose files")
	}
	for _, candidate := range []string{"docker-compose.yml", "docker-compose.yaml", "compose.yml", "compose.yaml"} {
		if !strings.Contains(script, candidate) {
			t.Errorf("script does not check %q", candidate)
		}
	}
}

func TestMethodString(t *testing.T) {
	tests := []struct {
		method   Method
		expected string
	}{
		{MethodSingleContainer, "single-container"},
		{MethodMultiService, "multi-service"},
		{MethodUnsupported, "unsupported"},
	}

	for _, tt := range tests {
		if got := tt.method.String(); got != tt.expected {
			t.Errorf("String() = %q, want %q", got, tt.expected)
		}
	}
}
