// Command kvrpc serves and calls the demo address book over kvrpc.
//
//	kvrpc serve --addr :8080
//	kvrpc call Add '{"name":"Amy","city":"Perth"}'
//	kvrpc call List
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/robert-cronin/kvrpc/config"
	"github.com/robert-cronin/kvrpc/logging"
	"github.com/robert-cronin/kvrpc/telemetry"
)

func main() {
	app := cli.NewApp()
	app.Name = "kvrpc"
	app.Usage = "Serve and call the address book service over HTTP"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "TOML configuration file",
			EnvVars: []string{"KVRPC_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "trace, debug, info, warn or error (overrides log.level)",
		},
		&cli.StringSliceFlag{
			Name:  "etcd",
			Usage: "etcd endpoints for discovery (overrides etcd.endpoints)",
		},
	}
	app.Commands = []*cli.Command{
		serveCommand(),
		callCommand(),
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "kvrpc:", err)
		os.Exit(1)
	}
}

// loadConfig reads --config and applies global flag overrides.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return config.Config{}, err
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("etcd") {
		cfg.Etcd.Endpoints = c.StringSlice("etcd")
	}
	return cfg, nil
}

func setupLogging(cfg config.Config) zerolog.Logger {
	lc := logging.DefaultConfig()
	if lvl, ok := logging.ParseLevel(cfg.Log.Level); ok {
		lc.Level = lvl
	}
	lc.JSON = cfg.Log.JSON
	lc.NoColor = cfg.Log.NoColor
	return logging.Configure(lc, "kvrpc")
}

// setupTelemetry installs stdout exporters when enabled. The returned func is
// always safe to call.
func setupTelemetry(cfg config.Config) (func(context.Context) error, error) {
	if !cfg.Telemetry.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	return telemetry.Setup(os.Stderr, "kvrpc", cfg.Telemetry.MetricInterval)
}
