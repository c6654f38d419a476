package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/conswire/internal/auth"
	"github.com/danmuck/conswire/internal/console"
	"github.com/danmuck/conswire/internal/transport"
)

// consoled config.toml key mapping to server settings.
type fileConfig struct {
	Addr                string `toml:"addr"`
	HTTPAddr            string `toml:"http_addr"`
	MetricsEnabled      bool   `toml:"metrics_enabled"`
	Source              string `toml:"source"`
	WebSocketToken      string `toml:"ws_token"`
	MaxReplyLength      uint32 `toml:"max_reply_length"`
	WriteTimeoutMS      int64  `toml:"write_timeout_ms"`
	HeartbeatInterval   string `toml:"heartbeat_interval"`
	HeartbeatIntervalMS int64  `toml:"heartbeat_interval_ms"`
	MaxFrameBytes       uint32 `toml:"max_frame_bytes"`
	SkipCorruptFrames   bool   `toml:"skip_corrupt_frames"`
	TLSSecurityMode     string `toml:"tls_security_mode"`
	TLSEnabled          bool   `toml:"tls_enabled"`
	TLSMutual           bool   `toml:"tls_mutual"`
	TLSCertFile         string `toml:"tls_cert_file"`
	TLSKeyFile          string `toml:"tls_key_file"`
	TLSCAFile           string `toml:"tls_ca_file"`
}

type serverConfig struct {
	Console        console.Config
	HTTPAddr       string
	MetricsEnabled bool
	Source         string
	MaxReplyLength uint32
}

func defaultServerConfig() serverConfig {
	return serverConfig{
		Console:        console.DefaultConfig(),
		Source:         "SYS",
		MaxReplyLength: 80,
	}
}

func loadServerConfig(path string) (serverConfig, error) {
	cfg := defaultServerConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return serverConfig{}, fmt.Errorf("load consoled config: %w", err)
	}

	if meta.IsDefined("addr") {
		cfg.Console.Address = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("http_addr") {
		cfg.HTTPAddr = strings.TrimSpace(raw.HTTPAddr)
	}
	if meta.IsDefined("metrics_enabled") {
		cfg.MetricsEnabled = raw.MetricsEnabled
	}
	if meta.IsDefined("source") {
		cfg.Source = strings.TrimSpace(raw.Source)
	}
	if meta.IsDefined("ws_token") {
		if token := strings.TrimSpace(raw.WebSocketToken); token != "" {
			cfg.Console.Auth = auth.StaticToken{Token: token}
		}
	}
	if meta.IsDefined("max_reply_length") {
		cfg.MaxReplyLength = raw.MaxReplyLength
	}
	if meta.IsDefined("write_timeout_ms") {
		cfg.Console.WriteTimeout = time.Duration(raw.WriteTimeoutMS) * time.Millisecond
	}
	if meta.IsDefined("heartbeat_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.HeartbeatInterval))
		if err != nil {
			return serverConfig{}, fmt.Errorf("parse heartbeat_interval: %w", err)
		}
		cfg.Console.Session.HeartbeatInterval = d
	}
	if meta.IsDefined("heartbeat_interval_ms") {
		cfg.Console.Session.HeartbeatInterval = time.Duration(raw.HeartbeatIntervalMS) * time.Millisecond
	}
	if meta.IsDefined("max_frame_bytes") {
		cfg.Console.Session.MaxFrameBytes = raw.MaxFrameBytes
	}
	if meta.IsDefined("skip_corrupt_frames") {
		cfg.Console.Session.SkipCorruptFrames = raw.SkipCorruptFrames
	}

	tls := &cfg.Console.TLS
	if meta.IsDefined("tls_security_mode") {
		tls.Mode = transport.SecurityMode(strings.TrimSpace(raw.TLSSecurityMode))
	}
	if meta.IsDefined("tls_enabled") {
		tls.Enabled = raw.TLSEnabled
	}
	if meta.IsDefined("tls_mutual") {
		tls.Mutual = raw.TLSMutual
	}
	if meta.IsDefined("tls_cert_file") {
		tls.CertFile = strings.TrimSpace(raw.TLSCertFile)
	}
	if meta.IsDefined("tls_key_file") {
		tls.KeyFile = strings.TrimSpace(raw.TLSKeyFile)
	}
	if meta.IsDefined("tls_ca_file") {
		tls.CAFile = strings.TrimSpace(raw.TLSCAFile)
	}

	if err := cfg.Console.TLS.ValidateServer(); err != nil {
		return serverConfig{}, fmt.Errorf("load consoled config: %w", err)
	}
	if cfg.MetricsEnabled && cfg.HTTPAddr == "" {
		return serverConfig{}, fmt.Errorf("load consoled config: http_addr is required when metrics_enabled=true")
	}
	return cfg, nil
}
