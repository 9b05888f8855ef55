// Package config loads kvrpc settings from a TOML file.
//
// Every key is optional; keys that are absent keep their default.
//
//	[server]
//	addr = ":8080"
//	advertise = "http://10.0.0.5:8080"
//	max_body_bytes = 4194304
//	timeout = "5s"
//
//	[client]
//	codec = "binary"
//	balancer = "consistent_hash"
//	retries = 2
//
//	[rate_limit]
//	rate = 100.0
//	burst = 20
//
//	[etcd]
//	endpoints = ["127.0.0.1:2379"]
//
//	[log]
//	level = "debug"
//
//	[telemetry]
//	enabled = true
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server    ServerConfig
	Client    ClientConfig
	RateLimit RateLimitConfig
	Etcd      EtcdConfig
	Log       LogConfig
	Telemetry TelemetryConfig
}

type ServerConfig struct {
	Addr            string
	Advertise       string // published to discovery; derived from Addr when empty
	MaxBodyBytes    int64
	ReadTimeout     time.Duration
	Timeout         time.Duration // per call; 0 disables the timeout middleware
	ShutdownTimeout time.Duration
	Weight          int
	Version         string
	TTL             int64 // discovery lease, seconds
}

type ClientConfig struct {
	BaseURL    string
	Codec      string // "json" or "binary"
	Balancer   string
	Timeout    time.Duration
	PoolSize   int // idle connections kept per server
	Retries    int
	RetryDelay time.Duration
}

type RateLimitConfig struct {
	Rate  float64 // calls per second; 0 disables rate limiting
	Burst int
}

type EtcdConfig struct {
	Endpoints   []string // empty means in-process discovery only
	DialTimeout time.Duration
}

type LogConfig struct {
	Level   string
	JSON    bool
	NoColor bool
}

type TelemetryConfig struct {
	Enabled        bool
	MetricInterval time.Duration
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			MaxBodyBytes:    4 << 20,
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Weight:          1,
			TTL:             10,
		},
		Client: ClientConfig{
			BaseURL:    "http://127.0.0.1:8080",
			Codec:      "json",
			Balancer:   "round_robin",
			Timeout:    30 * time.Second,
			PoolSize:   4,
			RetryDelay: 100 * time.Millisecond,
		},
		RateLimit: RateLimitConfig{Burst: 1},
		Etcd:      EtcdConfig{DialTimeout: 5 * time.Second},
		Log:       LogConfig{Level: "info"},
		Telemetry: TelemetryConfig{MetricInterval: time.Minute},
	}
}

type fileConfig struct {
	Server struct {
		Addr            string `toml:"addr"`
		Advertise       string `toml:"advertise"`
		MaxBodyBytes    int64  `toml:"max_body_bytes"`
		ReadTimeout     string `toml:"read_timeout"`
		Timeout         string `toml:"timeout"`
		ShutdownTimeout string `toml:"shutdown_timeout"`
		Weight          int    `toml:"weight"`
		Version         string `toml:"version"`
		TTL             int64  `toml:"ttl"`
	} `toml:"server"`
	Client struct {
		BaseURL    string `toml:"base_url"`
		Codec      string `toml:"codec"`
		Balancer   string `toml:"balancer"`
		Timeout    string `toml:"timeout"`
		PoolSize   int    `toml:"pool_size"`
		Retries    int    `toml:"retries"`
		RetryDelay string `toml:"retry_delay"`
	} `toml:"client"`
	RateLimit struct {
		Rate  float64 `toml:"rate"`
		Burst int     `toml:"burst"`
	} `toml:"rate_limit"`
	Etcd struct {
		Endpoints   []string `toml:"endpoints"`
		DialTimeout string   `toml:"dial_timeout"`
	} `toml:"etcd"`
	Log struct {
		Level   string `toml:"level"`
		JSON    bool   `toml:"json"`
		NoColor bool   `toml:"no_color"`
	} `toml:"log"`
	Telemetry struct {
		Enabled        bool   `toml:"enabled"`
		MetricInterval string `toml:"metric_interval"`
	} `toml:"telemetry"`
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load kvrpc config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load kvrpc config: unknown key %s", undecoded[0])
	}

	o := overlay{meta: meta}
	o.str(&cfg.Server.Addr, raw.Server.Addr, "server", "addr")
	o.str(&cfg.Server.Advertise, raw.Server.Advertise, "server", "advertise")
	o.set(func() { cfg.Server.MaxBodyBytes = raw.Server.MaxBodyBytes }, "server", "max_body_bytes")
	o.dur(&cfg.Server.ReadTimeout, raw.Server.ReadTimeout, "server", "read_timeout")
	o.dur(&cfg.Server.Timeout, raw.Server.Timeout, "server", "timeout")
	o.dur(&cfg.Server.ShutdownTimeout, raw.Server.ShutdownTimeout, "server", "shutdown_timeout")
	o.set(func() { cfg.Server.Weight = raw.Server.Weight }, "server", "weight")
	o.str(&cfg.Server.Version, raw.Server.Version, "server", "version")
	o.set(func() { cfg.Server.TTL = raw.Server.TTL }, "server", "ttl")

	o.str(&cfg.Client.BaseURL, raw.Client.BaseURL, "client", "base_url")
	o.str(&cfg.Client.Codec, raw.Client.Codec, "client", "codec")
	o.str(&cfg.Client.Balancer, raw.Client.Balancer, "client", "balancer")
	o.dur(&cfg.Client.Timeout, raw.Client.Timeout, "client", "timeout")
	o.set(func() { cfg.Client.PoolSize = raw.Client.PoolSize }, "client", "pool_size")
	o.set(func() { cfg.Client.Retries = raw.Client.Retries }, "client", "retries")
	o.dur(&cfg.Client.RetryDelay, raw.Client.RetryDelay, "client", "retry_delay")

	o.set(func() { cfg.RateLimit.Rate = raw.RateLimit.Rate }, "rate_limit", "rate")
	o.set(func() { cfg.RateLimit.Burst = raw.RateLimit.Burst }, "rate_limit", "burst")

	o.set(func() { cfg.Etcd.Endpoints = normalizeList(raw.Etcd.Endpoints) }, "etcd", "endpoints")
	o.dur(&cfg.Etcd.DialTimeout, raw.Etcd.DialTimeout, "etcd", "dial_timeout")

	o.str(&cfg.Log.Level, raw.Log.Level, "log", "level")
	o.set(func() { cfg.Log.JSON = raw.Log.JSON }, "log", "json")
	o.set(func() { cfg.Log.NoColor = raw.Log.NoColor }, "log", "no_color")

	o.set(func() { cfg.Telemetry.Enabled = raw.Telemetry.Enabled }, "telemetry", "enabled")
	o.dur(&cfg.Telemetry.MetricInterval, raw.Telemetry.MetricInterval, "telemetry", "metric_interval")

	if o.err != nil {
		return Config{}, o.err
	}
	return cfg, cfg.Validate()
}

// Validate rejects values no component can run with.
func (c Config) Validate() error {
	switch {
	case c.Server.MaxBodyBytes <= 0:
		return fmt.Errorf("server.max_body_bytes must be positive")
	case c.Server.TTL <= 0:
		return fmt.Errorf("server.ttl must be positive")
	case c.RateLimit.Rate < 0:
		return fmt.Errorf("rate_limit.rate must not be negative")
	case c.RateLimit.Rate > 0 && c.RateLimit.Burst <= 0:
		return fmt.Errorf("rate_limit.burst must be positive")
	case c.Client.Retries < 0:
		return fmt.Errorf("client.retries must not be negative")
	}
	return nil
}

// overlay copies keys that are defined in the file; the first parse error sticks.
type overlay struct {
	meta toml.MetaData
	err  error
}

func (o *overlay) set(apply func(), key ...string) {
	if o.meta.IsDefined(key...) {
		apply()
	}
}

func (o *overlay) str(dst *string, v string, key ...string) {
	if o.meta.IsDefined(key...) {
		*dst = strings.TrimSpace(v)
	}
}

func (o *overlay) dur(dst *time.Duration, v string, key ...string) {
	if o.err != nil || !o.meta.IsDefined(key...) {
		return
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		o.err = fmt.Errorf("parse %s: %w", strings.Join(key, "."), err)
		return
	}
	*dst = d
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
