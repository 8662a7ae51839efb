package nginx

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/abanicaisse/dockhand/internal/ssh"
)

func findCommand(commands []string, substr string) int {
	for i, c := range commands {
		if strings.Contains(c, substr) {
			return i
		}
	}
	return -1
}

func TestRender(t *testing.T) {
	c := NewConfigurer(nil)

	t.Run("defaults", func(t *testing.T) {
		content, err := c.Render("shop", Route{TargetPort: 3000})
		if err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		for _, want := range []string{
			"listen 80;",
			"server_name _;",
			"proxy_pass http://127.0.0.1:3000;",
			"proxy_http_version 1.1;",
			"proxy_set_header Host $host;",
			"proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;",
			"proxy_set_header Upgrade $http_upgrade;",
			`proxy_set_header Connection "upgrade";`,
		} {
			if !strings.Contains(content, want) {
				t.Errorf("rendered config misses %q:\n%s", want, content)
			}
		}
	})

	t.Run("custom server name", func(t *testing.T) {
		content, err := c.Render("shop", Route{TargetPort: 8080, ServerName: "shop.example.com"})
		if err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		if !strings.Contains(content, "server_name shop.example.com;") {
			t.Errorf("server_name not rendered:\n%s", content)
		}
		if !strings.Contains(content, "proxy_pass http://127.0.0.1:8080;") {
			t.Errorf("target port not rendered:\n%s", content)
		}
	})
}

func TestApply_FreshInstall(t *testing.T) {
	mock := &ssh.MockExecutor{
		ExecFunc: func(_ context.Context, command string) (*ssh.ExecResult, error) {
			if strings.Contains(command, "test -f") {
				return &ssh.ExecResult{Stdout: ""}, nil
			}
			return &ssh.ExecResult{}, nil
		},
	}

	res, err := NewConfigurer(mock).Apply(context.Background(), "shop", Route{TargetPort: 3000})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if res.ConfigPath != "/etc/nginx/sites-available/shop.conf" {
		t.Errorf("ConfigPath = %q", res.ConfigPath)
	}
	if !res.Reloaded {
		t.Error("Reloaded = false")
	}

	stageIdx := findCommand(mock.Commands, "base64 -d > '/tmp/dockhand-shop.conf.staged'")
	mvIdx := findCommand(mock.Commands, "sudo mv '/tmp/dockhand-shop.conf.staged' '/etc/nginx/sites-available/shop.conf'")
	lnIdx := findCommand(mock.Commands, "sudo ln -sf '/etc/nginx/sites-available/shop.conf' '/etc/nginx/sites-enabled/shop.conf'")
	dropIdx := findCommand(mock.Commands, "sudo rm -f '/etc/nginx/sites-enabled/default'")
	testIdx := findCommand(mock.Commands, "sudo nginx -t")
	reloadIdx := findCommand(mock.Commands, "sudo systemctl reload nginx")

	if stageIdx == -1 || mvIdx == -1 || lnIdx == -1 || dropIdx == -1 || testIdx == -1 || reloadIdx == -1 {
		t.Fatalf("missing install commands, got: %v", mock.Commands)
	}
	if !(stageIdx < mvIdx && mvIdx < lnIdx && lnIdx < dropIdx && dropIdx < testIdx && testIdx < reloadIdx) {
		t.Errorf("install commands out of order: %v", mock.Commands)
	}
	if findCommand(mock.Commands, "cp -p") != -1 {
		t.Error("backup taken when no previous config existed")
	}
}

func TestApply_OverwriteBacksUpPrevious(t *testing.T) {
	mock := &ssh.MockExecutor{
		ExecFunc: func(_ context.Context, command string) (*ssh.ExecResult, error) {
			if strings.Contains(command, "test -f") {
				return &ssh.ExecResult{Stdout: "exists\n"}, nil
			}
			return &ssh.ExecResult{}, nil
		},
	}

	if _, err := NewConfigurer(mock).Apply(context.Background(), "shop", Route{TargetPort: 3000}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	backupIdx := findCommand(mock.Commands, "sudo cp -p '/etc/nginx/sites-available/shop.conf' '/etc/nginx/sites-available/shop.conf.prev'")
	mvIdx := findCommand(mock.Commands, "sudo mv '/tmp/dockhand-shop.conf.staged'")
	if backupIdx == -1 {
		t.Fatalf("previous config not backed up, got: %v", mock.Commands)
	}
	if mvIdx < backupIdx {
		t.Error("new config installed before the backup was taken")
	}
}

func TestApply_RejectedConfigRestoresPrevious(t *testing.T) {
	mock := &ssh.MockExecutor{
		ExecFunc: func(_ context.Context, command string) (*ssh.ExecResult, error) {
			switch {
			case strings.Contains(command, "test -f"):
				return &ssh.ExecResult{Stdout: "exists\n"}, nil
			case command == "sudo nginx -t":
				return &ssh.ExecResult{Stderr: "nginx: [emerg] invalid port in upstream\n", ExitCode: 1}, nil
			default:
				return &ssh.ExecResult{}, nil
			}
		},
	}

	_, err := NewConfigurer(mock).Apply(context.Background(), "shop", Route{TargetPort: 3000})
	if err == nil {
		t.Fatal("Apply() expected error")
	}

	var proxyErr *ProxyConfigError
	if !errors.As(err, &proxyErr) {
		t.Fatalf("error type = %T, want *ProxyConfigError", err)
	}
	if !strings.Contains(proxyErr.Output, "emerg") {
		t.Errorf("Output = %q", proxyErr.Output)
	}

	if findCommand(mock.Commands, "sudo mv '/etc/nginx/sites-available/shop.conf.prev' '/etc/nginx/sites-available/shop.conf'") == -1 {
		t.Error("previous config was not restored")
	}
	if findCommand(mock.Commands, "systemctl reload nginx") != -1 {
		t.Error("nginx reloaded despite a rejected configuration")
	}
}

func TestApply_RejectedConfigRemovedWhenNoPrevious(t *testing.T) {
	mock := &ssh.MockExecutor{
		ExecFunc: func(_ context.Context, command string) (*ssh.ExecResult, error) {
			switch {
			case strings.Contains(command, "test -f"):
				return &ssh.ExecResult{Stdout: ""}, nil
			case command == "sudo nginx -t":
				return &ssh.ExecResult{Stderr: "nginx: configuration file test failed\n", ExitCode: 1}, nil
			default:
				return &ssh.ExecResult{}, nil
			}
		},
	}

	_, err := NewConfigurer(mock).Apply(context.Background(), "shop", Route{TargetPort: 3000})
	if err == nil {
		t.Fatal("Apply() expected error")
	}

	if findCommand(mock.Commands, "sudo rm -f '/etc/nginx/sites-enabled/shop.conf' '/etc/nginx/sites-available/shop.conf'") == -1 {
		t.Error("rejected first-time config was not removed")
	}
	if findCommand(mock.Commands, "systemctl reload nginx") != -1 {
		t.Error("nginx reloaded despite a rejected configuration")
	}
}

func TestRemove(t *testing.T) {
	mock := &ssh.MockExecutor{}

	if err := NewConfigurer(mock).Remove(context.Background(), "shop"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	rmIdx := findCommand(mock.Commands, "sudo rm -f '/etc/nginx/sites-enabled/shop.conf' '/etc/nginx/sites-available/shop.conf' '/etc/nginx/sites-available/shop.conf.prev'")
	testIdx := findCommand(mock.Commands, "sudo nginx -t")
	reloadIdx := findCommand(mock.Commands, "sudo systemctl reload nginx")

	if rmIdx == -1 || testIdx == -1 || reloadIdx == -1 {
		t.Fatalf("missing remove commands, got: %v", mock.Commands)
	}
	if !(rmIdx < testIdx && testIdx < reloadIdx) {
		t.Errorf("remove commands out of order: %v", mock.Commands)
	}
}

func TestRemove_FailedTestSkipsReload(t *testing.T) {
	mock := &ssh.MockExecutor{
		ExecFunc: func(_ context.Context, command string) (*ssh.ExecResult, error) {
			if command == "sudo nginx -t" {
				return &ssh.ExecResult{Stderr: "nginx: test failed\n", ExitCode: 1}, nil
			}
			return &ssh.ExecResult{}, nil
		},
	}

	err := NewConfigurer(mock).Remove(context.Background(), "shop")
	if err == nil {
		t.Fatal("Remove() expected error")
	}
	if findCommand(mock.Commands, "systemctl reload nginx") != -1 {
		t.Error("nginx reloaded despite a failed test")
	}
}
