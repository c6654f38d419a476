// Package console serves console traffic to any number of connected clients.
// Every client receives every broadcast; a client whose write fails is
// dropped. Each client also runs its own receive loop for inbound frames.
package console

import (
	"cmp"
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/conswire/internal/auth"
	"github.com/danmuck/conswire/internal/logging"
	"github.com/danmuck/conswire/internal/observability"
	"github.com/danmuck/conswire/internal/protocol"
	"github.com/danmuck/conswire/internal/protocol/messages"
	"github.com/danmuck/conswire/internal/protocol/registry"
	"github.com/danmuck/conswire/internal/protocol/session"
	"github.com/danmuck/conswire/internal/transport"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const DefaultAddress = ":2200"

var ErrServerClosed = errors.New("console: server closed")

// Peer is a connected client transport.
type Peer interface {
	transport.Transport
	session.Notifier
	RemoteAddr() string
}

// MessageFunc observes messages decoded from a client.
type MessageFunc func(remote string, msg protocol.Message)

type Config struct {
	Address      string
	TLS          transport.TLSConfig
	WriteTimeout time.Duration
	Session      session.Config
	OnMessage    MessageFunc
	// Auth guards the WebSocket endpoint. Nil accepts every request.
	Auth auth.Validator
}

func DefaultConfig() Config {
	cfg := session.DefaultConfig()
	cfg.Role = "server"
	return Config{
		Address:      DefaultAddress,
		WriteTimeout: 5 * time.Second,
		Session:      cfg,
	}
}

type client struct {
	id     uint64
	peer   Peer
	sender *session.Sender
}

type Server struct {
	cfg     Config
	reg     *registry.Registry
	logger  zerolog.Logger
	pending *pendingReplies
	nextMsg atomic.Uint32

	// replayMu orders read-reply broadcasts against attach replays so a
	// client gets each read-reply exactly once.
	replayMu sync.Mutex

	mu        sync.Mutex
	clients   map[uint64]*client
	listeners map[net.Listener]struct{}
	nextID    uint64
	closed    bool
	wg        sync.WaitGroup
}

// NewServer builds a server decoding with the built-in and extended console
// variants.
func NewServer(cfg Config) (*Server, error) {
	reg := messages.NewRegistry()
	if err := messages.RegisterConsoleExtensions(reg); err != nil {
		return nil, err
	}
	if cfg.Session.Role == "" {
		cfg.Session.Role = "server"
	}
	return &Server{
		cfg:       cfg,
		reg:       reg,
		logger:    logging.Component("console"),
		pending:   newPendingReplies(),
		clients:   make(map[uint64]*client),
		listeners: make(map[net.Listener]struct{}),
	}, nil
}

// Registry is the server's decode registry. Extensions may be added at any
// time.
func (s *Server) Registry() *registry.Registry {
	return s.reg
}

// ListenAndServe listens on cfg.Address, over TLS when cfg.TLS.Enabled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.cfg.TLS.ValidateServer(); err != nil {
		return err
	}
	addr := s.cfg.Address
	if addr == "" {
		addr = DefaultAddress
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if s.cfg.TLS.Enabled {
		tlsCfg, err := s.cfg.TLS.ServerConfig()
		if err != nil {
			_ = ln.Close()
			return err
		}
		ln = tls.NewListener(ln, tlsCfg)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done or Close is called. It
// waits for every client goroutine before returning.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if err := s.track(ln); err != nil {
		_ = ln.Close()
		return err
	}
	defer s.untrack(ln)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("console listening")

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	var err error
	for {
		conn, acceptErr := ln.Accept()
		if acceptErr != nil {
			if ctx.Err() != nil || s.isClosed() {
				err = nil
			} else {
				err = acceptErr
			}
			break
		}
		peer := transport.NewConn(conn, s.cfg.WriteTimeout)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			_ = s.Attach(ctx, peer)
		}()
	}
	cancel()
	_ = ln.Close()
	s.wg.Wait()
	return err
}

// WebSocketHandler upgrades HTTP requests and attaches them as clients. The
// handler blocks until the client is gone. Requests failing cfg.Auth get 401.
func (s *Server) WebSocketHandler(ctx context.Context) http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	return auth.Require(s.cfg.Auth, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
			return
		}
		peer := transport.NewWebSocketConn(ws, s.cfg.WriteTimeout, int64(s.cfg.Session.WithDefaults().MaxFrameBytes))
		reqCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(r.Context(), cancel)
		defer stop()
		_ = s.Attach(reqCtx, peer)
	}))
}

// Attach registers peer as a client and runs its receive and heartbeat loops
// until ctx is done, the peer disconnects or a fatal frame arrives. The peer
// is disconnected on return.
func (s *Server) Attach(ctx context.Context, peer Peer) error {
	c, err := s.attach(peer)
	if c == nil {
		_ = peer.Disconnect()
		return err
	}
	defer s.drop(c)

	log := s.logger.With().Str("remote", peer.RemoteAddr()).Uint64("client", c.id).Logger()
	if err != nil {
		log.Warn().Err(err).Msg("replay pending read-reply failed")
		return err
	}
	log.Info().Msg("client attached")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hbDone := make(chan error, 1)
	go func() {
		err := session.RunHeartbeats(ctx, c.sender, s.cfg.Session.HeartbeatInterval)
		if err != nil && ctx.Err() == nil {
			cancel()
		}
		hbDone <- err
	}()

	handler := session.HandlerFunc(func(_ context.Context, msg protocol.Message) error {
		log.Debug().Str("category", msg.Category().String()).Uint32("type", uint32(msg.Type())).Msg("client message")
		if s.cfg.OnMessage != nil {
			s.cfg.OnMessage(peer.RemoteAddr(), msg)
		}
		return nil
	})
	err = session.NewReceiver(peer, s.reg, handler, s.cfg.Session).Run(ctx)
	cancel()
	<-hbDone

	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil && !errors.Is(err, transport.ErrClosed) {
		log.Warn().Err(err).Msg("client receive loop ended")
	} else {
		log.Info().Msg("client detached")
	}
	return err
}

// attach adds peer and replays pending read-replies to it. A non-nil client
// with an error means the replay failed and the client must be dropped.
func (s *Server) attach(peer Peer) (*client, error) {
	s.replayMu.Lock()
	defer s.replayMu.Unlock()
	c, err := s.add(peer)
	if err != nil {
		return nil, err
	}
	for _, item := range s.pending.list() {
		if err := c.sender.Send(item.message()); err != nil {
			return c, err
		}
		s.pending.markDelivered(item.MessageID, time.Now(), 1)
	}
	return c, nil
}

func (s *Server) add(peer Peer) (*client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrServerClosed
	}
	s.nextID++
	c := &client{
		id:     s.nextID,
		peer:   peer,
		sender: session.NewSender(peer, s.cfg.Session.Role),
	}
	s.clients[c.id] = c
	observability.SetConsoleClients(len(s.clients))
	return c, nil
}

func (s *Server) drop(c *client) {
	s.mu.Lock()
	_, ok := s.clients[c.id]
	delete(s.clients, c.id)
	observability.SetConsoleClients(len(s.clients))
	s.mu.Unlock()
	if ok {
		s.logger.Info().Str("remote", c.peer.RemoteAddr()).Msg("removing client")
	}
	_ = c.peer.Disconnect()
}

func (s *Server) snapshot() []*client {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b *client) int {
		return cmp.Compare(a.id, b.id)
	})
	return out
}

func (s *Server) track(ln net.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrServerClosed
	}
	s.listeners[ln] = struct{}{}
	return nil
}

func (s *Server) untrack(ln net.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, ln)
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Broadcast encodes msg once and writes it to every client, dropping clients
// whose write fails. It returns the number of clients written.
func (s *Server) Broadcast(msg protocol.Message) (int, error) {
	b, err := msg.Encode()
	if err != nil {
		return 0, err
	}
	delivered := 0
	for _, c := range s.snapshot() {
		if err := c.sender.SendFrame(msg.Category(), msg.Type(), b); err != nil {
			s.logger.Warn().Err(err).Str("remote", c.peer.RemoteAddr()).Msg("broadcast write failed")
			s.drop(c)
			continue
		}
		delivered++
	}
	return delivered, nil
}

func (s *Server) SendReadOnly(source string, lines ...string) (int, error) {
	return s.Broadcast(messages.NewReadOnly(source, lines...))
}

// SendReadReply broadcasts a read-reply and keeps it pending until cleared.
// Clients attaching later receive every pending read-reply on attach.
func (s *Server) SendReadReply(source string, maxReplyLength uint32, lines ...string) (uint32, error) {
	id := s.nextMsg.Add(1)
	now := time.Now()
	item := PendingReply{
		MessageID:      id,
		Source:         source,
		Lines:          lines,
		MaxReplyLength: maxReplyLength,
		QueuedAt:       now,
	}
	s.replayMu.Lock()
	defer s.replayMu.Unlock()
	s.pending.upsert(item)
	n, err := s.Broadcast(item.message())
	if err != nil {
		s.pending.remove(id)
		return 0, err
	}
	s.pending.markDelivered(id, now, n)
	return id, nil
}

// ClearReadReply marks a read-reply as no longer outstanding.
func (s *Server) ClearReadReply(id uint32) bool {
	return s.pending.remove(id)
}

func (s *Server) PendingReadReply(id uint32) (PendingReply, bool) {
	return s.pending.get(id)
}

func (s *Server) PendingReadReplies() []PendingReply {
	return s.pending.list()
}

func (s *Server) SendStatus(line1, line2 string) (int, error) {
	return s.Broadcast(messages.NewStatus(line1, line2))
}

// Reset drops every pending read-reply.
func (s *Server) Reset() {
	s.pending.clear()
}

// Clients lists connected remote addresses in attach order.
func (s *Server) Clients() []string {
	cs := s.snapshot()
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.peer.RemoteAddr())
	}
	return out
}

// Close stops every listener, disconnects every client and rejects new ones.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	listeners := make([]net.Listener, 0, len(s.listeners))
	for ln := range s.listeners {
		listeners = append(listeners, ln)
	}
	s.mu.Unlock()

	var errs []error
	for _, ln := range listeners {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	for _, c := range s.snapshot() {
		s.drop(c)
	}
	return errors.Join(errs...)
}
