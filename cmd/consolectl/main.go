// consolectl connects to a console server and prints every message it
// receives, one rendered line per message.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/conswire/internal/console"
	"github.com/danmuck/conswire/internal/logging"
	"github.com/danmuck/conswire/internal/protocol"
	"github.com/danmuck/conswire/internal/protocol/session"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "consolectl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	logging.ConfigureRuntime()

	var (
		configPath string
		addr       string
		url        string
		caFile     string
		token      string
		secure     bool
	)
	flagSet := pflag.NewFlagSet("consolectl", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to consolectl TOML config")
	flagSet.StringVar(&addr, "addr", "", "console server address (host:port)")
	flagSet.StringVar(&url, "url", "", "console websocket url; selects the websocket transport")
	flagSet.StringVar(&caFile, "ca", "", "CA bundle used to verify the server")
	flagSet.StringVar(&token, "token", "", "bearer token for the websocket endpoint")
	flagSet.BoolVar(&secure, "secure", false, "connect over TLS")
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	cfg := defaultClientConfig()
	if configPath != "" {
		loaded, err := loadClientConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	applyFlags(&cfg, flagSet, addr, url, caFile, secure)
	if flagSet.Changed("token") {
		setToken(&cfg.WebSocket, token)
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	tr, err := cfg.newTransport()
	if err != nil {
		return err
	}
	client, err := console.NewClient(tr, cfg.Session)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return client.Run(ctx, cfg.Secure, printer(out))
}

func applyFlags(cfg *clientConfig, flagSet *pflag.FlagSet, addr, url, caFile string, secure bool) {
	if flagSet.Changed("addr") {
		cfg.Transport = transportTCP
		cfg.TCP.Address = addr
	}
	if flagSet.Changed("url") {
		cfg.Transport = transportWebSocket
		cfg.WebSocket.URL = url
	}
	if flagSet.Changed("ca") {
		cfg.TCP.TLS.CAFile = caFile
		cfg.WebSocket.TLS.CAFile = caFile
	}
	if flagSet.Changed("secure") {
		cfg.Secure = secure
	}
}

// printer writes the rendered form of every non-heartbeat message.
func printer(out io.Writer) session.Handler {
	return session.HandlerFunc(func(_ context.Context, msg protocol.Message) error {
		if msg.Category() == protocol.CategorySystem && msg.Type() == protocol.TypeHeartbeat {
			return nil
		}
		_, err := fmt.Fprintln(out, msg)
		return err
	})
}
