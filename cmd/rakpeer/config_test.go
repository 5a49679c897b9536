package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/raknet/internal/testutil/testlog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rakpeer.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadRuntimeConfigDurationOverlay(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `name = "edge"
listen = "127.0.0.1:0"
dial_timeout = "3s"

[session]
resend_ms = 900
resend = "750ms"
timeout = "4s"

[backoff]
initial = "100ms"
max = "1s"
multiplier = 1.5
jitter = false
`)
	rc, err := loadRuntimeConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg := rc.File
	if cfg.Name != "edge" || rc.Raw.Name != "edge" {
		t.Fatalf("unexpected name: %q", cfg.Name)
	}
	if cfg.DialTimeout != 3*time.Second {
		t.Fatalf("unexpected dial timeout: %v", cfg.DialTimeout)
	}
	if cfg.Session.ResendInterval != 750*time.Millisecond {
		t.Fatalf("expected duration string to win, got %v", cfg.Session.ResendInterval)
	}
	if cfg.Session.SessionTimeout != 4*time.Second {
		t.Fatalf("unexpected timeout: %v", cfg.Session.SessionTimeout)
	}
	b := cfg.Session.Backoff
	if b.InitialDelay != 100*time.Millisecond || b.MaxDelay != time.Second || b.Multiplier != 1.5 || b.Jitter {
		t.Fatalf("unexpected backoff: %+v", b)
	}
}

func TestLoadRuntimeConfigMillisOnly(t *testing.T) {
	testlog.Start(t)
	rc, err := loadRuntimeConfig(writeConfig(t, `listen = "127.0.0.1:0"

[session]
update_ms = 20
`))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if rc.File.Session.UpdateInterval != 20*time.Millisecond {
		t.Fatalf("unexpected update interval: %v", rc.File.Session.UpdateInterval)
	}
	if !rc.File.Session.Backoff.Jitter {
		t.Fatalf("expected default jitter")
	}
}

func TestLoadRuntimeConfigRejects(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"bad duration":   "listen = \"127.0.0.1:0\"\n[session]\ntimeout = \"soon\"\n",
		"bad multiplier": "listen = \"127.0.0.1:0\"\n[backoff]\nmultiplier = 0.5\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := loadRuntimeConfig(writeConfig(t, body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
	_, err := loadRuntimeConfig(writeConfig(t, "listen = \"127.0.0.1:0\"\n[session]\ntimeout = \"soon\"\n"))
	if err == nil || !strings.Contains(err.Error(), "session.timeout") {
		t.Fatalf("expected key in error, got %v", err)
	}
}
