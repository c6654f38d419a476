package console

import (
	"context"
	"errors"

	"github.com/danmuck/conswire/internal/logging"
	"github.com/danmuck/conswire/internal/protocol/messages"
	"github.com/danmuck/conswire/internal/protocol/registry"
	"github.com/danmuck/conswire/internal/protocol/session"
	"github.com/danmuck/conswire/internal/transport"
)

// Client connects one transport to a console server and feeds every decoded
// message to a handler.
type Client struct {
	tr     transport.Transport
	reg    *registry.Registry
	cfg    session.Config
	sender *session.Sender
}

func NewClient(tr transport.Transport, cfg session.Config) (*Client, error) {
	reg := messages.NewRegistry()
	if err := messages.RegisterConsoleExtensions(reg); err != nil {
		return nil, err
	}
	if cfg.Role == "" {
		cfg.Role = "client"
	}
	return &Client{
		tr:     tr,
		reg:    reg,
		cfg:    cfg,
		sender: session.NewSender(tr, cfg.Role),
	}, nil
}

func (c *Client) Registry() *registry.Registry {
	return c.reg
}

// Sender writes to the server. Valid once Run has connected.
func (c *Client) Sender() *session.Sender {
	return c.sender
}

// Run connects, then receives until ctx is done or the stream fails. The
// transport is disconnected on return. Cancellation returns nil.
func (c *Client) Run(ctx context.Context, secure bool, h session.Handler) error {
	logger := logging.Component("console.client")
	if err := transport.Open(ctx, c.tr, secure); err != nil {
		return err
	}
	defer c.tr.Disconnect()
	logger.Info().Bool("secure", secure).Msg("connected")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var hbErr error
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		if err := session.RunHeartbeats(ctx, c.sender, c.cfg.HeartbeatInterval); err != nil && ctx.Err() == nil {
			logger.Warn().Err(err).Msg("heartbeat failed")
			hbErr = err
			cancel()
		}
	}()

	err := session.NewReceiver(c.tr, c.reg, h, c.cfg).Run(ctx)
	cancel()
	<-hbDone
	if errors.Is(err, context.Canceled) {
		return hbErr
	}
	return err
}
