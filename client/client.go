// Package client turns local calls into HTTP requests against a registry's bindings.
//
// A Client is created from the same *registry.Registry the server uses. Calls are
// made either untyped through Invoke and Go, or through typed stubs built with
// Func0 .. Func5, whose parameter and result types are checked once against the
// operation descriptor:
//
//	add, err := client.Func1[demo.Address, int](c, "Add")
//	id, err := add(ctx, demo.Address{Name: "Amy"})
//
// The target server comes from a fixed base URL (WithBaseURL) or from service
// discovery plus a load balancer (WithDiscovery).
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robert-cronin/kvrpc/codec"
	"github.com/robert-cronin/kvrpc/errors"
	"github.com/robert-cronin/kvrpc/loadbalance"
	"github.com/robert-cronin/kvrpc/message"
	"github.com/robert-cronin/kvrpc/middleware"
	"github.com/robert-cronin/kvrpc/registry"
	"github.com/robert-cronin/kvrpc/transport"
)

type Option func(*Client)

// WithBaseURL sends every call to one server, e.g. "http://127.0.0.1:8080".
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithDiscovery finds servers through d and picks one per call with b.
func WithDiscovery(d registry.Discovery, b loadbalance.Balancer) Option {
	return func(c *Client) {
		c.discovery = d
		c.balancer = b
	}
}

// WithCodec selects the request content type. JSON is the default.
func WithCodec(t codec.CodecType) Option {
	return func(c *Client) {
		c.codecType = t
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithMiddleware wraps the HTTP round trip of every call. The first middleware
// is outermost.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(c *Client) {
		c.middlewares = append(c.middlewares, mws...)
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client calls the operations of one registry.
type Client struct {
	reg         *registry.Registry
	baseURL     string
	discovery   registry.Discovery
	balancer    loadbalance.Balancer
	codecType   codec.CodecType
	httpClient  *http.Client
	middlewares []middleware.Middleware
	logger      zerolog.Logger

	transport *transport.ClientTransport
	handler   middleware.HandlerFunc

	mu          sync.RWMutex
	instances   []registry.ServiceInstance // latest list from Watch
	watched     bool                       // instances is kept current by Watch
	cancelWatch context.CancelFunc
}

// NewClient creates a client for reg. Exactly one of WithBaseURL and
// WithDiscovery must be given.
func NewClient(reg *registry.Registry, opts ...Option) (*Client, error) {
	c := &Client{
		reg:       reg,
		codecType: codec.CodecTypeJSON,
		logger:    log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	switch {
	case c.baseURL == "" && c.discovery == nil:
		return nil, fmt.Errorf("client: a base URL or a discovery backend is required")
	case c.baseURL != "" && c.discovery != nil:
		return nil, fmt.Errorf("client: base URL and discovery are mutually exclusive")
	}
	if c.discovery != nil && c.balancer == nil {
		c.balancer = &loadbalance.RoundRobinBalancer{}
	}

	cdc := codec.GetCodec(c.codecType)
	if cdc == nil {
		return nil, fmt.Errorf("client: unknown codec %d", c.codecType)
	}
	c.transport = transport.NewClientTransport(c.httpClient, cdc)
	c.handler = middleware.Chain(c.middlewares...)(c.roundTrip)

	if c.discovery != nil {
		c.watch()
	}
	return c, nil
}

// watch keeps the instance list current until Close.
func (c *Client) watch() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelWatch = cancel
	updates := c.discovery.Watch(ctx, c.reg.Service())
	go func() {
		for list := range updates {
			c.mu.Lock()
			c.instances = list
			c.watched = true
			c.mu.Unlock()
			c.logger.Debug().Str("service", c.reg.Service()).Int("instances", len(list)).Msg("instances updated")
		}
	}()
}

// Registry returns the registry the client calls.
func (c *Client) Registry() *registry.Registry {
	return c.reg
}

// Invoke calls operation op with args and decodes the result into reply, which
// must be a pointer to the operation's result type (or nil to discard it).
// Arguments are checked against the operation descriptor before any I/O.
// Every failure is returned as an *errors.Error.
func (c *Client) Invoke(ctx context.Context, op string, args []any, reply any) error {
	b, ok := c.reg.Lookup(op)
	if !ok {
		return errors.BadRequest(errors.IDClient, fmt.Sprintf("unknown operation %s.%s", c.reg.Service(), op))
	}
	params, err := encodeArgs(b, args)
	if err != nil {
		return err
	}
	if reply != nil {
		if rt := reflect.TypeOf(reply); rt.Kind() != reflect.Pointer || rt.Elem() != b.Operation.Result {
			return errors.BadRequest(errors.IDClient,
				fmt.Sprintf("%s: reply must be *%v, got %T", b.ServiceMethod(), b.Operation.Result, reply))
		}
	}

	req := &message.Request{
		ID:     c.transport.NextID(),
		Method: b.ServiceMethod(),
		Params: params,
		Header: make(map[string]string),
	}
	resp := c.handler(ctx, req)
	if resp.Error != nil {
		return resp.Error
	}
	if reply == nil {
		return nil
	}
	if err := codec.DecodeInto(resp.Result, reply); err != nil {
		return errors.InternalServerError(errors.IDClient, "decode result: "+err.Error())
	}
	return nil
}

func encodeArgs(b *registry.Binding, args []any) ([]json.RawMessage, error) {
	op := b.Operation
	if len(args) != op.ParamCount() {
		return nil, errors.BadRequest(errors.IDClient,
			fmt.Sprintf("%s expects %d params, got %d", b.ServiceMethod(), op.ParamCount(), len(args)))
	}
	params := make([]json.RawMessage, len(args))
	for i, arg := range args {
		if arg == nil {
			if !op.Optional(i) {
				return nil, errors.BadRequest(errors.IDClient, fmt.Sprintf("%s: param %d is required", b.ServiceMethod(), i))
			}
			params[i] = json.RawMessage("null")
			continue
		}
		if t := reflect.TypeOf(arg); !t.AssignableTo(op.Params[i]) {
			return nil, errors.BadRequest(errors.IDClient,
				fmt.Sprintf("%s: param %d must be %v, got %v", b.ServiceMethod(), i, op.Params[i], t))
		}
		raw, err := codec.EncodeValue(arg)
		if err != nil {
			return nil, errors.BadRequest(errors.IDClient, err.Error())
		}
		params[i] = raw
	}
	return params, nil
}

// roundTrip is the innermost handler: pick a server and send the request.
func (c *Client) roundTrip(ctx context.Context, req *message.Request) *message.Response {
	_, op, _ := message.SplitServiceMethod(req.Method)
	b, ok := c.reg.Lookup(op)
	if !ok {
		return message.ErrorResponse(req.ID, errors.BadRequest(errors.IDClient, "unknown operation "+req.Method))
	}
	target, err := c.target(ctx, b)
	if err != nil {
		return message.ErrorResponse(req.ID, errors.ServiceUnavailable(errors.IDTransport, err.Error()))
	}
	return c.transport.RoundTrip(ctx, target, b, req)
}

// target returns the base URL of the server that should serve b.
func (c *Client) target(ctx context.Context, b *registry.Binding) (string, error) {
	if c.discovery == nil {
		return c.baseURL, nil
	}

	c.mu.RLock()
	instances, watched := c.instances, c.watched
	c.mu.RUnlock()
	if !watched {
		var err error
		if instances, err = c.discovery.Discover(ctx, c.reg.Service()); err != nil {
			return "", fmt.Errorf("discover %s: %w", c.reg.Service(), err)
		}
	}

	// Skip instances that publish endpoints but not this one, e.g. older versions.
	pattern := b.Pattern()
	candidates := make([]registry.ServiceInstance, 0, len(instances))
	for _, inst := range instances {
		if len(inst.Endpoints) == 0 || contains(inst.Endpoints, pattern) {
			candidates = append(candidates, inst)
		}
	}
	inst, err := c.balancer.Pick(candidates, b.Path)
	if err != nil {
		return "", fmt.Errorf("%s: %w", pattern, err)
	}
	if !strings.Contains(inst.Addr, "://") {
		return "http://" + inst.Addr, nil
	}
	return inst.Addr, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Pending returns the number of calls in flight.
func (c *Client) Pending() int {
	return c.transport.Pending()
}

// Close stops watching discovery and cancels every call in flight.
func (c *Client) Close() error {
	if c.cancelWatch != nil {
		c.cancelWatch()
	}
	return c.transport.Close()
}
