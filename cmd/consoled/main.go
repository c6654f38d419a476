// consoled serves a console endpoint on TCP (optionally TLS) and WebSocket
// and broadcasts operator input from stdin to every connected client.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/conswire/internal/console"
	"github.com/danmuck/conswire/internal/logging"
	"github.com/danmuck/conswire/internal/observability"
	"github.com/danmuck/conswire/internal/protocol"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "consoled: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	logging.ConfigureRuntime()

	var (
		configPath string
		addr       string
		httpAddr   string
		metrics    bool
	)
	flagSet := pflag.NewFlagSet("consoled", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to consoled TOML config")
	flagSet.StringVar(&addr, "addr", "", "console listen address (default :2200)")
	flagSet.StringVar(&httpAddr, "http-addr", "", "HTTP listen address for /ws and /metrics")
	flagSet.BoolVar(&metrics, "metrics", false, "serve Prometheus metrics on /metrics")
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	cfg := defaultServerConfig()
	if configPath != "" {
		loaded, err := loadServerConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if flagSet.Changed("addr") {
		cfg.Console.Address = addr
	}
	if flagSet.Changed("http-addr") {
		cfg.HTTPAddr = httpAddr
	}
	if flagSet.Changed("metrics") {
		cfg.MetricsEnabled = metrics
	}

	cfg.Console.OnMessage = func(remote string, msg protocol.Message) {
		if isHeartbeat(msg) {
			return
		}
		log.Info().Str("remote", remote).Stringer("category", msg.Category()).Msg(fmt.Sprint(msg))
	}
	srv, err := console.NewServer(cfg.Console)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.ListenAndServe(ctx)
	})
	if cfg.HTTPAddr != "" {
		httpSrv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           httpMux(ctx, srv, cfg.MetricsEnabled),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		})
	}
	go func() {
		report := func(s string) { fmt.Fprintln(os.Stderr, s) }
		if err := pumpInput(ctx, os.Stdin, srv, cfg.Source, cfg.MaxReplyLength, report); err != nil {
			log.Warn().Err(err).Msg("stdin closed")
		}
	}()

	err = g.Wait()
	_ = srv.Close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func httpMux(ctx context.Context, srv *console.Server, metrics bool) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", srv.WebSocketHandler(ctx))
	if metrics {
		mux.Handle("/metrics", observability.Handler())
	}
	return mux
}

// isHeartbeat matches only the system heartbeat; other categories may reuse
// type code 1.
func isHeartbeat(msg protocol.Message) bool {
	return msg.Category() == protocol.CategorySystem && msg.Type() == protocol.TypeHeartbeat
}
