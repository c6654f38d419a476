package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/conswire/internal/protocol/session"
	"github.com/danmuck/conswire/internal/transport"
)

const (
	transportTCP       = "tcp"
	transportWebSocket = "websocket"
)

// consolectl config.toml key mapping to client settings.
type fileConfig struct {
	Transport             string `toml:"transport"`
	Addr                  string `toml:"addr"`
	URL                   string `toml:"url"`
	Token                 string `toml:"token"`
	Secure                bool   `toml:"secure"`
	ConnectTimeoutMS      int64  `toml:"connect_timeout_ms"`
	HandshakeTimeoutMS    int64  `toml:"handshake_timeout_ms"`
	WriteTimeoutMS        int64  `toml:"write_timeout_ms"`
	HeartbeatInterval     string `toml:"heartbeat_interval"`
	HeartbeatIntervalMS   int64  `toml:"heartbeat_interval_ms"`
	MaxFrameBytes         uint32 `toml:"max_frame_bytes"`
	SkipCorruptFrames     bool   `toml:"skip_corrupt_frames"`
	PollInitialMS         int64  `toml:"poll_initial_ms"`
	PollMaxMS             int64  `toml:"poll_max_ms"`
	TLSSecurityMode       string `toml:"tls_security_mode"`
	TLSMutual             bool   `toml:"tls_mutual"`
	TLSCertFile           string `toml:"tls_cert_file"`
	TLSKeyFile            string `toml:"tls_key_file"`
	TLSCAFile             string `toml:"tls_ca_file"`
	TLSServerName         string `toml:"tls_server_name"`
	TLSInsecureSkipVerify bool   `toml:"tls_insecure_skip_verify"`
}

type clientConfig struct {
	Transport string
	Secure    bool
	TCP       transport.TCPConfig
	WebSocket transport.WebSocketConfig
	Session   session.Config
}

func defaultClientConfig() clientConfig {
	tcp := transport.DefaultTCPConfig()
	tcp.Address = "127.0.0.1:2200"
	return clientConfig{
		Transport: transportTCP,
		TCP:       tcp,
		WebSocket: transport.DefaultWebSocketConfig(),
		Session:   session.DefaultConfig(),
	}
}

func loadClientConfig(path string) (clientConfig, error) {
	cfg := defaultClientConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return clientConfig{}, fmt.Errorf("load consolectl config: %w", err)
	}

	if meta.IsDefined("transport") {
		cfg.Transport = strings.ToLower(strings.TrimSpace(raw.Transport))
	}
	if meta.IsDefined("addr") {
		cfg.TCP.Address = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("url") {
		cfg.WebSocket.URL = strings.TrimSpace(raw.URL)
	}
	if meta.IsDefined("token") {
		setToken(&cfg.WebSocket, raw.Token)
	}
	if meta.IsDefined("secure") {
		cfg.Secure = raw.Secure
	}
	if meta.IsDefined("connect_timeout_ms") {
		cfg.TCP.ConnectTimeout = millis(raw.ConnectTimeoutMS)
	}
	if meta.IsDefined("handshake_timeout_ms") {
		cfg.TCP.HandshakeTimeout = millis(raw.HandshakeTimeoutMS)
		cfg.WebSocket.HandshakeTimeout = millis(raw.HandshakeTimeoutMS)
	}
	if meta.IsDefined("write_timeout_ms") {
		cfg.TCP.WriteTimeout = millis(raw.WriteTimeoutMS)
		cfg.WebSocket.WriteTimeout = millis(raw.WriteTimeoutMS)
	}
	if meta.IsDefined("heartbeat_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.HeartbeatInterval))
		if err != nil {
			return clientConfig{}, fmt.Errorf("parse heartbeat_interval: %w", err)
		}
		cfg.Session.HeartbeatInterval = d
	}
	if meta.IsDefined("heartbeat_interval_ms") {
		cfg.Session.HeartbeatInterval = millis(raw.HeartbeatIntervalMS)
	}
	if meta.IsDefined("max_frame_bytes") {
		cfg.Session.MaxFrameBytes = raw.MaxFrameBytes
	}
	if meta.IsDefined("skip_corrupt_frames") {
		cfg.Session.SkipCorruptFrames = raw.SkipCorruptFrames
	}
	if meta.IsDefined("poll_initial_ms") {
		cfg.Session.Poll.InitialDelay = millis(raw.PollInitialMS)
	}
	if meta.IsDefined("poll_max_ms") {
		cfg.Session.Poll.MaxDelay = millis(raw.PollMaxMS)
	}

	tls := &cfg.TCP.TLS
	if meta.IsDefined("tls_security_mode") {
		tls.Mode = transport.SecurityMode(strings.TrimSpace(raw.TLSSecurityMode))
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
	if meta.IsDefined("tls_server_name") {
		tls.ServerName = strings.TrimSpace(raw.TLSServerName)
	}
	if meta.IsDefined("tls_insecure_skip_verify") {
		tls.InsecureSkipVerify = raw.TLSInsecureSkipVerify
	}
	cfg.WebSocket.TLS = cfg.TCP.TLS
	cfg.WebSocket.MaxMessageBytes = int64(cfg.Session.WithDefaults().MaxFrameBytes)

	if err := cfg.validate(); err != nil {
		return clientConfig{}, err
	}
	return cfg, nil
}

func (c clientConfig) validate() error {
	switch c.Transport {
	case transportTCP:
		if c.TCP.Address == "" {
			return fmt.Errorf("load consolectl config: addr is required for the tcp transport")
		}
	case transportWebSocket:
		if c.WebSocket.URL == "" {
			return fmt.Errorf("load consolectl config: url is required for the websocket transport")
		}
	default:
		return fmt.Errorf("load consolectl config: unsupported transport %q (expected tcp or websocket)", c.Transport)
	}
	return nil
}

func (c clientConfig) newTransport() (transport.Transport, error) {
	if c.Transport == transportWebSocket {
		return transport.NewWebSocket(c.WebSocket)
	}
	return transport.NewTCP(c.TCP)
}

// setToken sends token as a bearer credential on the WebSocket handshake.
func setToken(ws *transport.WebSocketConfig, token string) {
	token = strings.TrimSpace(token)
	if token == "" {
		return
	}
	if ws.Header == nil {
		ws.Header = http.Header{}
	}
	ws.Header.Set("Authorization", "Bearer "+token)
}

func millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
