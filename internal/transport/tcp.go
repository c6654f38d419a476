package transport

import (
	"context"
	"crypto/tls"
	"net"
	"strings"
	"sync"
	"time"
)

// TCPConfig configures a dialing TCP or TLS transport.
type TCPConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadBufferBytes  int
	TLS              TLSConfig
}

func DefaultTCPConfig() TCPConfig {
	return TCPConfig{
		ConnectTimeout:   5 * time.Second,
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     15 * time.Second,
		ReadBufferBytes:  defaultReadBufferBytes,
	}
}

// TCP dials a console endpoint over plain TCP or TLS.
type TCP struct {
	cfg TCPConfig
	mu  sync.Mutex
	s   *stream
}

func NewTCP(cfg TCPConfig) (*TCP, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, ErrAddressRequired
	}
	return &TCP{cfg: cfg}, nil
}

func (t *TCP) Connect(ctx context.Context) error {
	return t.open(ctx, false)
}

func (t *TCP) SecureConnect(ctx context.Context) error {
	return t.open(ctx, true)
}

func (t *TCP) open(ctx context.Context, secure bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.s != nil {
		return ErrAlreadyConnected
	}

	var tlsCfg *tls.Config
	if secure {
		sec := t.cfg.TLS
		sec.Enabled = true
		if err := sec.ValidateClient(); err != nil {
			return err
		}
		cfg, err := sec.ClientConfig(t.cfg.Address)
		if err != nil {
			return err
		}
		tlsCfg = cfg
	}

	dialer := net.Dialer{Timeout: t.cfg.ConnectTimeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", t.cfg.Address)
	if err != nil {
		return err
	}
	conn := rawConn
	if secure {
		tlsConn := tls.Client(rawConn, tlsCfg)
		handshakeCtx := ctx
		if t.cfg.HandshakeTimeout > 0 {
			var cancel context.CancelFunc
			handshakeCtx, cancel = context.WithTimeout(ctx, t.cfg.HandshakeTimeout)
			defer cancel()
		}
		if err := tlsConn.HandshakeContext(handshakeCtx); err != nil {
			_ = rawConn.Close()
			return err
		}
		conn = tlsConn
	}
	t.s = newStream(conn, t.cfg.ReadBufferBytes, t.cfg.WriteTimeout)
	return nil
}

func (t *TCP) current() (*stream, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.s == nil {
		return nil, ErrNotConnected
	}
	return t.s, nil
}

func (t *TCP) ReadChunk() ([]byte, error) {
	s, err := t.current()
	if err != nil {
		return nil, err
	}
	return s.pump.next()
}

// Ready is signalled when bytes arrive. It returns nil before Connect.
func (t *TCP) Ready() <-chan struct{} {
	s, err := t.current()
	if err != nil {
		return nil
	}
	return s.pump.Ready()
}

func (t *TCP) Write(b []byte) error {
	s, err := t.current()
	if err != nil {
		return err
	}
	return s.write(b)
}

func (t *TCP) Disconnect() error {
	t.mu.Lock()
	s := t.s
	t.s = nil
	t.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.close()
}
