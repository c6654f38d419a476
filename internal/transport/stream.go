package transport

import (
	"context"
	"net"
	"sync"
	"time"
)

const defaultReadBufferBytes = 32 * 1024

// stream is a connected net.Conn with a read pump.
type stream struct {
	conn         net.Conn
	pump         *pump
	writeMu      sync.Mutex
	writeTimeout time.Duration
}

func newStream(conn net.Conn, readBufferBytes int, writeTimeout time.Duration) *stream {
	if readBufferBytes <= 0 {
		readBufferBytes = defaultReadBufferBytes
	}
	buf := make([]byte, readBufferBytes)
	read := func() ([]byte, error) {
		n, err := conn.Read(buf)
		if n == 0 {
			return nil, err
		}
		out := make([]byte, n)
		copy(out, buf[:n])
		return out, err
	}
	return &stream{
		conn:         conn,
		pump:         startPump(read),
		writeTimeout: writeTimeout,
	}
}

func (s *stream) write(b []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.writeTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	_, err := s.conn.Write(b)
	return err
}

func (s *stream) close() error {
	s.pump.stop()
	return s.conn.Close()
}

// Conn adapts an accepted server-side connection. It is connected from birth,
// so Connect and SecureConnect report ErrAlreadyConnected.
type Conn struct {
	*stream
	closed sync.Once
}

func NewConn(conn net.Conn, writeTimeout time.Duration) *Conn {
	return &Conn{stream: newStream(conn, 0, writeTimeout)}
}

func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *Conn) Connect(context.Context) error       { return ErrAlreadyConnected }
func (c *Conn) SecureConnect(context.Context) error { return ErrAlreadyConnected }

func (c *Conn) ReadChunk() ([]byte, error) {
	return c.pump.next()
}

func (c *Conn) Ready() <-chan struct{} {
	return c.pump.Ready()
}

func (c *Conn) Write(b []byte) error {
	return c.write(b)
}

func (c *Conn) Disconnect() error {
	var err error
	c.closed.Do(func() { err = c.close() })
	return err
}
