package main

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/robert-cronin/kvrpc/config"
	"github.com/robert-cronin/kvrpc/internal/demo"
	"github.com/robert-cronin/kvrpc/middleware"
	"github.com/robert-cronin/kvrpc/registry"
	"github.com/robert-cronin/kvrpc/server"
	"github.com/robert-cronin/kvrpc/telemetry"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the address book",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "listen address (overrides server.addr)"},
			&cli.StringFlag{Name: "advertise", Usage: "address published to discovery (overrides server.advertise)"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if c.IsSet("addr") {
				cfg.Server.Addr = c.String("addr")
			}
			if c.IsSet("advertise") {
				cfg.Server.Advertise = c.String("advertise")
			}
			return serve(c.Context, cfg)
		},
	}
}

// newServer builds the address book server with the middlewares cfg enables.
// Order, outermost first: telemetry, logging, rate limit, timeout.
func newServer(cfg config.Config, logger zerolog.Logger) (*server.Server, error) {
	reg, err := demo.NewRegistry()
	if err != nil {
		return nil, err
	}
	svr := server.NewServer(
		server.WithLogger(logger),
		server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		server.WithReadTimeout(cfg.Server.ReadTimeout),
		server.WithInstance(cfg.Server.Weight, cfg.Server.Version),
		server.WithTTL(cfg.Server.TTL),
	)
	if cfg.Telemetry.Enabled {
		svr.Use(telemetry.ServerMiddleware(telemetry.DefaultConfig()))
	}
	svr.Use(middleware.LoggingMiddleware(logger))
	if cfg.RateLimit.Rate > 0 {
		svr.Use(middleware.RateLimitMiddleware(cfg.RateLimit.Rate, cfg.RateLimit.Burst))
	}
	if cfg.Server.Timeout > 0 {
		svr.Use(middleware.TimeOutMiddleware(cfg.Server.Timeout))
	}
	if err := svr.Register(reg, demo.NewBook()); err != nil {
		return nil, err
	}
	return svr, nil
}

// advertiseAddr derives a routable URL from the listen address when none is configured.
func advertiseAddr(cfg config.ServerConfig) (string, error) {
	if cfg.Advertise != "" {
		return cfg.Advertise, nil
	}
	host, port, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		return "", fmt.Errorf("server.addr: %w", err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port), nil
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := setupLogging(cfg)
	shutdownTelemetry, err := setupTelemetry(cfg)
	if err != nil {
		return err
	}
	defer shutdownTelemetry(context.Background())

	svr, err := newServer(cfg, logger)
	if err != nil {
		return err
	}
	advertise, err := advertiseAddr(cfg.Server)
	if err != nil {
		return err
	}

	var d registry.Discovery
	if len(cfg.Etcd.Endpoints) > 0 {
		etcd, err := registry.NewEtcdDiscovery(cfg.Etcd.Endpoints, cfg.Etcd.DialTimeout)
		if err != nil {
			return fmt.Errorf("connect etcd: %w", err)
		}
		defer etcd.Close()
		d = etcd
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	served := make(chan error, 1)
	go func() {
		served <- svr.Serve("tcp", cfg.Server.Addr, advertise, d)
	}()

	select {
	case err := <-served:
		return err
	case <-ctx.Done():
	}
	logger.Info().Msg("shutting down")
	if err := svr.Shutdown(cfg.Server.ShutdownTimeout); err != nil {
		return err
	}
	return <-served
}
