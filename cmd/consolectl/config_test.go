package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/conswire/internal/protocol/messages"
	"github.com/danmuck/conswire/internal/testutil/testlog"
	"github.com/spf13/pflag"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "consolectl.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadClientConfigDefaultsAndOverrides(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
addr = "10.0.0.5:2200"
secure = true
heartbeat_interval = "2s"
max_frame_bytes = 65536
skip_corrupt_frames = true
poll_initial_ms = 5
write_timeout_ms = 1500
tls_ca_file = "/etc/conswire/ca.crt"
tls_server_name = "console.local"
`)
	cfg, err := loadClientConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Transport != transportTCP || cfg.TCP.Address != "10.0.0.5:2200" {
		t.Fatalf("unexpected transport %q addr %q", cfg.Transport, cfg.TCP.Address)
	}
	if !cfg.Secure {
		t.Fatalf("expected secure")
	}
	if cfg.Session.HeartbeatInterval != 2*time.Second {
		t.Fatalf("unexpected heartbeat interval %v", cfg.Session.HeartbeatInterval)
	}
	if cfg.Session.MaxFrameBytes != 65536 || !cfg.Session.SkipCorruptFrames {
		t.Fatalf("unexpected session config %+v", cfg.Session)
	}
	if cfg.WebSocket.MaxMessageBytes != 65536 {
		t.Fatalf("websocket read limit should follow max_frame_bytes, got %d", cfg.WebSocket.MaxMessageBytes)
	}
	if cfg.Session.Poll.InitialDelay != 5*time.Millisecond {
		t.Fatalf("unexpected poll delay %v", cfg.Session.Poll.InitialDelay)
	}
	if cfg.Session.Poll.MaxDelay != defaultClientConfig().Session.Poll.MaxDelay {
		t.Fatalf("poll max delay should keep its default")
	}
	if cfg.TCP.WriteTimeout != 1500*time.Millisecond || cfg.WebSocket.WriteTimeout != 1500*time.Millisecond {
		t.Fatalf("unexpected write timeouts %v %v", cfg.TCP.WriteTimeout, cfg.WebSocket.WriteTimeout)
	}
	if cfg.TCP.ConnectTimeout != defaultClientConfig().TCP.ConnectTimeout {
		t.Fatalf("connect timeout should keep its default")
	}
	if cfg.WebSocket.TLS.CAFile != "/etc/conswire/ca.crt" || cfg.TCP.TLS.ServerName != "console.local" {
		t.Fatalf("tls settings not applied: %+v", cfg.TCP.TLS)
	}
}

func TestLoadClientConfigWebSocketRequiresURL(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
transport = "websocket"
token = "s3cret"
`)
	if _, err := loadClientConfig(path); err == nil || !strings.Contains(err.Error(), "url is required") {
		t.Fatalf("expected url validation error, got %v", err)
	}
}

func TestLoadClientConfigRejectsUnknownTransport(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `transport = "serial"`)
	if _, err := loadClientConfig(path); err == nil || !strings.Contains(err.Error(), "unsupported transport") {
		t.Fatalf("expected transport validation error, got %v", err)
	}
}

func TestLoadClientConfigBadDuration(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `heartbeat_interval = "soon"`)
	if _, err := loadClientConfig(path); err == nil || !strings.Contains(err.Error(), "heartbeat_interval") {
		t.Fatalf("expected duration error, got %v", err)
	}
}

func TestApplyFlagsSelectsTransport(t *testing.T) {
	testlog.Start(t)
	cfg := defaultClientConfig()
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flagSet.String("url", "", "")
	flagSet.String("ca", "", "")
	if err := flagSet.Parse([]string{"--url", "wss://console.local/ws", "--ca", "ca.crt"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	applyFlags(&cfg, flagSet, "", "wss://console.local/ws", "ca.crt", false)
	if cfg.Transport != transportWebSocket || cfg.WebSocket.URL != "wss://console.local/ws" {
		t.Fatalf("expected websocket transport, got %q %q", cfg.Transport, cfg.WebSocket.URL)
	}
	if cfg.WebSocket.TLS.CAFile != "ca.crt" {
		t.Fatalf("ca flag not applied")
	}
	if cfg.Secure {
		t.Fatalf("secure flag was not set")
	}
}

func TestPrinterSkipsHeartbeats(t *testing.T) {
	testlog.Start(t)
	var out bytes.Buffer
	h := printer(&out)
	ctx := context.Background()
	if err := h.HandleMessage(ctx, messages.NewHeartbeat()); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if err := h.HandleMessage(ctx, messages.NewReadOnly("SYS", "BOOT OK", "more")); err != nil {
		t.Fatalf("read-only: %v", err)
	}
	if got := out.String(); got != ">>SYS*BOOT OK\n" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestSetToken(t *testing.T) {
	testlog.Start(t)
	cfg := defaultClientConfig()
	setToken(&cfg.WebSocket, "  ")
	if cfg.WebSocket.Header != nil {
		t.Fatalf("blank token should not add headers")
	}
	setToken(&cfg.WebSocket, "s3cret")
	if got := cfg.WebSocket.Header.Get("Authorization"); got != "Bearer s3cret" {
		t.Fatalf("unexpected authorization header %q", got)
	}
}
