package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/conswire/internal/protocol/frame"
	"github.com/gorilla/websocket"
)

// WebSocketConfig configures a dialing WebSocket transport. Frames travel as
// binary WebSocket messages; message boundaries carry no meaning.
type WebSocketConfig struct {
	URL              string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// MaxMessageBytes caps one inbound message; larger messages close the
	// connection. Size it to the receiver's MaxFrameBytes.
	MaxMessageBytes int64
	Header          http.Header
	TLS             TLSConfig
}

func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     15 * time.Second,
		MaxMessageBytes:  int64(frame.DefaultLimits().MaxFrameBytes),
	}
}

// WebSocket dials a console endpoint over ws:// or wss://.
type WebSocket struct {
	cfg WebSocketConfig
	mu  sync.Mutex
	c   *WebSocketConn
}

func NewWebSocket(cfg WebSocketConfig) (*WebSocket, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, ErrAddressRequired
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("transport: parse websocket url: %w", err)
	}
	return &WebSocket{cfg: cfg}, nil
}

func (w *WebSocket) Connect(ctx context.Context) error {
	return w.open(ctx, false)
}

// SecureConnect dials over wss, upgrading a ws URL.
func (w *WebSocket) SecureConnect(ctx context.Context) error {
	return w.open(ctx, true)
}

func (w *WebSocket) open(ctx context.Context, secure bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.c != nil {
		return ErrAlreadyConnected
	}

	u, err := url.Parse(w.cfg.URL)
	if err != nil {
		return fmt.Errorf("transport: parse websocket url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: w.cfg.HandshakeTimeout,
	}
	if secure {
		u.Scheme = "wss"
		sec := w.cfg.TLS
		sec.Enabled = true
		if err := sec.ValidateClient(); err != nil {
			return err
		}
		host := u.Host
		if _, _, err := net.SplitHostPort(host); err != nil {
			host = net.JoinHostPort(host, "443")
		}
		tlsCfg, err := sec.ClientConfig(host)
		if err != nil {
			return err
		}
		dialer.TLSClientConfig = tlsCfg
	}

	conn, resp, err := dialer.DialContext(ctx, u.String(), w.cfg.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return err
	}
	w.c = NewWebSocketConn(conn, w.cfg.WriteTimeout, w.cfg.MaxMessageBytes)
	return nil
}

func (w *WebSocket) current() (*WebSocketConn, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.c == nil {
		return nil, ErrNotConnected
	}
	return w.c, nil
}

func (w *WebSocket) ReadChunk() ([]byte, error) {
	c, err := w.current()
	if err != nil {
		return nil, err
	}
	return c.ReadChunk()
}

func (w *WebSocket) Ready() <-chan struct{} {
	c, err := w.current()
	if err != nil {
		return nil
	}
	return c.Ready()
}

func (w *WebSocket) Write(b []byte) error {
	c, err := w.current()
	if err != nil {
		return err
	}
	return c.Write(b)
}

func (w *WebSocket) Disconnect() error {
	w.mu.Lock()
	c := w.c
	w.c = nil
	w.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.Disconnect()
}

// WebSocketConn wraps an established *websocket.Conn, dialed or upgraded.
type WebSocketConn struct {
	conn         *websocket.Conn
	pump         *pump
	writeMu      sync.Mutex
	writeTimeout time.Duration
	closed       sync.Once
}

// NewWebSocketConn starts reading conn. readLimit bounds each inbound message;
// a non-positive value applies the default frame limit.
func NewWebSocketConn(conn *websocket.Conn, writeTimeout time.Duration, readLimit int64) *WebSocketConn {
	if readLimit <= 0 {
		readLimit = int64(frame.DefaultLimits().MaxFrameBytes)
	}
	conn.SetReadLimit(readLimit)
	read := func() ([]byte, error) {
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return nil, err
			}
			if mt == websocket.BinaryMessage {
				return data, nil
			}
		}
	}
	return &WebSocketConn{
		conn:         conn,
		pump:         startPump(read),
		writeTimeout: writeTimeout,
	}
}

func (c *WebSocketConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *WebSocketConn) Connect(context.Context) error       { return ErrAlreadyConnected }
func (c *WebSocketConn) SecureConnect(context.Context) error { return ErrAlreadyConnected }

func (c *WebSocketConn) ReadChunk() ([]byte, error) {
	return c.pump.next()
}

func (c *WebSocketConn) Ready() <-chan struct{} {
	return c.pump.Ready()
}

func (c *WebSocketConn) Write(b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, b)
}

func (c *WebSocketConn) Disconnect() error {
	var err error
	c.closed.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()
		c.pump.stop()
		err = c.conn.Close()
	})
	return err
}
