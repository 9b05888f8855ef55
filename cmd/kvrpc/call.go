package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"reflect"

	jsoniter "github.com/json-iterator/go"
	"github.com/urfave/cli/v2"

	"github.com/robert-cronin/kvrpc/client"
	"github.com/robert-cronin/kvrpc/codec"
	"github.com/robert-cronin/kvrpc/config"
	"github.com/robert-cronin/kvrpc/internal/demo"
	"github.com/robert-cronin/kvrpc/loadbalance"
	"github.com/robert-cronin/kvrpc/middleware"
	"github.com/robert-cronin/kvrpc/registry"
	"github.com/robert-cronin/kvrpc/telemetry"
	"github.com/robert-cronin/kvrpc/transport"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func callCommand() *cli.Command {
	return &cli.Command{
		Name:      "call",
		Usage:     "Call one address book operation",
		ArgsUsage: "<operation> [json param...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Usage: "server base URL (overrides client.base_url)"},
			&cli.StringFlag{Name: "codec", Usage: "json or binary (overrides client.codec)"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return cli.Exit("missing operation", 2)
			}
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if c.IsSet("url") {
				cfg.Client.BaseURL = c.String("url")
			}
			if c.IsSet("codec") {
				cfg.Client.Codec = c.String("codec")
			}
			return call(c.Context, cfg, c.Args().First(), c.Args().Tail(), os.Stdout)
		},
	}
}

// newClient builds an address book client from cfg. It uses etcd discovery when
// endpoints are configured and the base URL otherwise.
func newClient(cfg config.Config, reg *registry.Registry) (*client.Client, func() error, error) {
	codecType, ok := codec.ParseCodecType(cfg.Client.Codec)
	if !ok {
		return nil, nil, fmt.Errorf("client.codec: unknown codec %q", cfg.Client.Codec)
	}
	opts := []client.Option{
		client.WithCodec(codecType),
		client.WithHTTPClient(transport.NewHTTPClient(cfg.Client.PoolSize, cfg.Client.Timeout)),
	}
	var mws []middleware.Middleware
	if cfg.Telemetry.Enabled {
		mws = append(mws, telemetry.ClientMiddleware(telemetry.DefaultConfig()))
	}
	if cfg.Client.Retries > 0 {
		mws = append(mws, middleware.RetryMiddleware(cfg.Client.Retries, cfg.Client.RetryDelay))
	}
	opts = append(opts, client.WithMiddleware(mws...))

	cleanup := func() error { return nil }
	if len(cfg.Etcd.Endpoints) > 0 {
		etcd, err := registry.NewEtcdDiscovery(cfg.Etcd.Endpoints, cfg.Etcd.DialTimeout)
		if err != nil {
			return nil, nil, fmt.Errorf("connect etcd: %w", err)
		}
		balancer, err := loadbalance.New(cfg.Client.Balancer)
		if err != nil {
			etcd.Close()
			return nil, nil, err
		}
		opts = append(opts, client.WithDiscovery(etcd, balancer))
		cleanup = etcd.Close
	} else {
		opts = append(opts, client.WithBaseURL(cfg.Client.BaseURL))
	}

	c, err := client.NewClient(reg, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return c, cleanup, nil
}

// parseParams decodes one JSON value per parameter of op. "null" is accepted
// for optional parameters only.
func parseParams(reg *registry.Registry, op string, raw []string) ([]any, error) {
	b, ok := reg.Lookup(op)
	if !ok {
		return nil, fmt.Errorf("unknown operation %q", op)
	}
	desc := b.Operation
	if len(raw) != desc.ParamCount() {
		return nil, fmt.Errorf("%s takes %d params, got %d", op, desc.ParamCount(), len(raw))
	}
	args := make([]any, len(raw))
	for i, s := range raw {
		v, err := codec.DecodeValue([]byte(s), desc.Params[i])
		if err != nil {
			return nil, fmt.Errorf("param %d: %w", i, err)
		}
		args[i] = v.Interface()
	}
	return args, nil
}

func call(ctx context.Context, cfg config.Config, op string, rawParams []string, out io.Writer) error {
	setupLogging(cfg)
	shutdownTelemetry, err := setupTelemetry(cfg)
	if err != nil {
		return err
	}
	defer shutdownTelemetry(context.Background())

	reg, err := demo.NewRegistry()
	if err != nil {
		return err
	}
	args, err := parseParams(reg, op, rawParams)
	if err != nil {
		return err
	}
	c, cleanup, err := newClient(cfg, reg)
	if err != nil {
		return err
	}
	defer cleanup()
	defer c.Close()

	b, _ := reg.Lookup(op)
	reply := reflect.New(b.Operation.Result)
	if err := c.Invoke(ctx, op, args, reply.Interface()); err != nil {
		return err
	}
	data, err := json.MarshalIndent(reply.Elem().Interface(), "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
