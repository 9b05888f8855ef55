// Package server dispatches HTTP requests to implementations of service contracts.
//
// Every binding of a registry becomes one http.ServeMux pattern "<VERB> <path>".
// Request processing pipeline:
//
//	net/http (one goroutine per request) → handle(binding)
//	  → pick codec by Content-Type → read body (size capped) → Codec.Decode
//	  → Middleware Chain → businessHandler (decode params, reflect.Call, encode result)
//	  → Codec.Encode → write response with the status of the error code
package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robert-cronin/kvrpc/codec"
	"github.com/robert-cronin/kvrpc/errors"
	"github.com/robert-cronin/kvrpc/message"
	"github.com/robert-cronin/kvrpc/middleware"
	"github.com/robert-cronin/kvrpc/registry"
)

const (
	DefaultMaxBodyBytes = 4 << 20
	DefaultTTL          = 10 // seconds, renewed by the discovery backend
)

type Option func(*Server)

// WithMaxBodyBytes caps request bodies; larger bodies are answered with 413.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		s.maxBody = n
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithInstance sets the weight and version published to discovery.
func WithInstance(weight int, version string) Option {
	return func(s *Server) {
		s.weight = weight
		s.version = version
	}
}

// WithTTL sets the discovery lease TTL in seconds.
func WithTTL(ttl int64) Option {
	return func(s *Server) {
		s.ttl = ttl
	}
}

// WithReadTimeout bounds reading a whole request, headers and body.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.readTimeout = d
	}
}

// Server serves registered services over HTTP.
type Server struct {
	mux         *http.ServeMux
	serviceMap  map[string]*service // "address" → *service
	routes      map[string]string   // pattern → "service.Operation"
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc // middleware(middleware(...(businessHandler)))
	buildOnce   sync.Once

	httpServer *http.Server
	wg         sync.WaitGroup // in-flight HTTP handlers
	calls      callTracker    // in-flight method calls
	shutdown   atomic.Bool

	discovery     registry.Discovery
	instances     map[string]string // service → published instance ID
	advertiseAddr string

	maxBody     int64
	readTimeout time.Duration
	ttl         int64
	weight      int
	version     string
	logger      zerolog.Logger
	mu          sync.Mutex
}

func NewServer(opts ...Option) *Server {
	s := &Server{
		mux:        http.NewServeMux(),
		serviceMap: make(map[string]*service),
		routes:     make(map[string]string),
		instances:  make(map[string]string),
		maxBody:    DefaultMaxBodyBytes,
		ttl:        DefaultTTL,
		weight:     1,
		logger:     log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register installs one handler per binding of reg, dispatching to impl.
// impl must implement the registry's contract interface.
func (s *Server) Register(reg *registry.Registry, impl any) error {
	svc, err := newService(reg, impl)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.serviceMap[svc.name]; dup {
		return fmt.Errorf("rpc: service already registered: %s", svc.name)
	}
	for _, b := range reg.Bindings() {
		if other, taken := s.routes[b.Pattern()]; taken {
			return fmt.Errorf("%w: %s by %s", registry.ErrRouteConflict, b.Pattern(), other)
		}
	}
	for _, b := range reg.Bindings() {
		s.routes[b.Pattern()] = b.ServiceMethod()
		s.mux.Handle(b.Pattern(), s.handle(b))
	}
	s.serviceMap[svc.name] = svc
	s.logger.Debug().Str("service", svc.name).Strs("endpoints", reg.Endpoints()).Msg("service registered")
	return nil
}

// Use adds a middleware. Middlewares run in the order added, and must be added
// before Handler or Serve is first called.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// Handler returns the HTTP handler serving all registered bindings.
func (s *Server) Handler() http.Handler {
	s.buildOnce.Do(func() {
		// Recovery is innermost so panics still pass through the other middlewares
		// as a 500 response.
		chain := append(append([]middleware.Middleware(nil), s.middlewares...), middleware.RecoveryMiddleware())
		s.handler = middleware.Chain(chain...)(s.businessHandler)
	})
	return s.mux
}

// Serve listens on address and serves until Shutdown.
//
//   - advertiseAddr: the address published to discovery (e.g. "http://10.0.0.5:8080").
//     It differs from the listen address because ":8080" is not routable.
//   - d: the discovery backend. Pass nil to skip publishing.
func (s *Server) Serve(network, address, advertiseAddr string, d registry.Discovery) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	return s.ServeListener(listener, advertiseAddr, d)
}

// ServeListener is Serve on an existing listener.
func (s *Server) ServeListener(listener net.Listener, advertiseAddr string, d registry.Discovery) error {
	s.mu.Lock()
	if s.shutdown.Load() {
		s.mu.Unlock()
		listener.Close()
		return nil
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.readTimeout,
	}
	s.advertiseAddr = advertiseAddr
	s.discovery = d
	s.mu.Unlock()

	if d != nil {
		if err := s.publish(); err != nil {
			listener.Close()
			return err
		}
	}

	s.logger.Info().Str("addr", listener.Addr().String()).Msg("kvrpc server listening")
	err := s.httpServer.Serve(listener)
	if stderrors.Is(err, http.ErrServerClosed) && s.shutdown.Load() {
		return nil
	}
	return err
}

// publish registers one instance per service with its endpoint patterns.
func (s *Server) publish() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown.Load() {
		return nil
	}
	for name, svc := range s.serviceMap {
		id := uuid.NewString()
		err := s.discovery.Register(ctx, name, registry.ServiceInstance{
			ID:        id,
			Addr:      s.advertiseAddr,
			Weight:    s.weight,
			Version:   s.version,
			Endpoints: svc.reg.Endpoints(),
		}, s.ttl)
		if err != nil {
			return fmt.Errorf("publish %s: %w", name, err)
		}
		s.instances[name] = id
	}
	return nil
}

// Shutdown performs graceful shutdown:
//  1. Deregister all services (clients stop routing to this server)
//  2. Stop accepting requests and wait for in-flight ones (with timeout)
//  3. Wait for method calls that outlived their request
//
// A Serve that has not started yet returns nil without serving.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Deregister first, so clients stop sending new requests.
	s.mu.Lock()
	s.shutdown.Store(true)
	var errs []error
	for name, id := range s.instances {
		if err := s.discovery.Deregister(ctx, name, id); err != nil {
			errs = append(errs, fmt.Errorf("deregister %s: %w", name, err))
		}
		delete(s.instances, name)
	}
	httpServer := s.httpServer
	s.mu.Unlock()

	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("timeout waiting for ongoing requests to finish"))
		return stderrors.Join(errs...)
	}
	select {
	case <-s.calls.drain():
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("timeout waiting for abandoned calls to finish"))
	}
	return stderrors.Join(errs...)
}

// handle returns the HTTP handler of one binding.
func (s *Server) handle(b *registry.Binding) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.wg.Add(1)
		defer s.wg.Done()

		c, req, rerr := s.readRequest(w, r, b)
		if rerr != nil {
			s.writeResponse(w, c, message.ErrorResponse(req.ID, rerr))
			return
		}
		s.writeResponse(w, c, s.handler(r.Context(), req))
	}
}

// readRequest decodes the envelope of r. The returned codec is the one the
// reply must be written with, even when decoding fails.
func (s *Server) readRequest(w http.ResponseWriter, r *http.Request, b *registry.Binding) (codec.Codec, *message.Request, *errors.Error) {
	req := &message.Request{Header: make(map[string]string, len(r.Header))}
	for k, v := range r.Header {
		if len(v) > 0 {
			req.Header[strings.ToLower(k)] = v[0]
		}
	}

	if b.Verb == registry.GET {
		c, ok := codec.ForContentType(r.Header.Get("Accept"))
		if !ok {
			c = codec.GetCodec(codec.CodecTypeJSON)
		}
		if raw := r.Header.Get(message.HeaderRequestID); raw != "" {
			id, err := strconv.ParseUint(raw, 10, 32)
			if err != nil {
				return c, req, errors.BadRequest(errors.IDServer, "invalid "+message.HeaderRequestID+" header")
			}
			req.ID = uint32(id)
		}
		req.Method = b.ServiceMethod()
		return c, req, nil
	}

	c, ok := codec.ForContentType(r.Header.Get("Content-Type"))
	if !ok {
		return codec.GetCodec(codec.CodecTypeJSON), req,
			errors.UnsupportedMediaType(errors.IDServer, "unsupported content type "+r.Header.Get("Content-Type"))
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return c, req, errors.RequestEntityTooLarge(errors.IDServer, fmt.Sprintf("request body exceeds %d bytes", s.maxBody))
		}
		return c, req, errors.BadRequest(errors.IDServer, "read body: "+err.Error())
	}

	header := req.Header
	if err := c.Decode(body, req); err != nil {
		return c, req, errors.BadRequest(errors.IDServer, "decode request: "+err.Error())
	}
	req.Header = header
	if req.Method == "" {
		req.Method = b.ServiceMethod()
	}
	if req.Method != b.ServiceMethod() {
		return c, req, errors.BadRequest(errors.IDServer,
			fmt.Sprintf("method %q does not match endpoint %s", req.Method, b.ServiceMethod()))
	}
	return c, req, nil
}

func (s *Server) writeResponse(w http.ResponseWriter, c codec.Codec, resp *message.Response) {
	data, err := c.Encode(resp)
	if err != nil {
		s.logger.Error().Err(err).Uint32("id", resp.ID).Msg("failed to encode response")
		resp = message.ErrorResponse(resp.ID, errors.InternalServerError(errors.IDServer, "encode response: "+err.Error()))
		if data, err = c.Encode(resp); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	w.Header().Set("Content-Type", c.ContentType())
	w.WriteHeader(resp.StatusCode())
	if _, err := w.Write(data); err != nil {
		s.logger.Debug().Err(err).Uint32("id", resp.ID).Msg("failed to write response")
	}
}

// businessHandler dispatches a decoded request to the service implementation.
// It is wrapped by the middleware chain.
//
// Flow: parse "Service.Operation" → find service → find method →
// decode each param into its declared type → reflect.Call → encode result
func (s *Server) businessHandler(ctx context.Context, req *message.Request) *message.Response {
	if !s.calls.enter() {
		return message.ErrorResponse(req.ID, errors.ServiceUnavailable(errors.IDServer, "server is shutting down"))
	}
	defer s.calls.leave()

	serviceName, opName, ok := message.SplitServiceMethod(req.Method)
	if !ok {
		return message.ErrorResponse(req.ID, errors.BadRequest(errors.IDServer, "invalid service method format: "+req.Method))
	}

	s.mu.Lock()
	svc := s.serviceMap[serviceName]
	s.mu.Unlock()
	if svc == nil {
		return message.ErrorResponse(req.ID, errors.NotFound(errors.IDServer, "unknown service "+serviceName))
	}
	method := svc.method[opName]
	if method == nil {
		return message.ErrorResponse(req.ID, errors.NotFound(errors.IDServer, "unknown operation "+req.Method))
	}

	op := method.op
	if len(req.Params) != op.ParamCount() {
		return message.ErrorResponse(req.ID, errors.BadRequest(errors.IDServer,
			fmt.Sprintf("%s expects %d params, got %d", req.Method, op.ParamCount(), len(req.Params))))
	}
	args := make([]reflect.Value, op.ParamCount())
	for i, raw := range req.Params {
		v, err := codec.DecodeValue(raw, op.Params[i])
		if err != nil {
			return message.ErrorResponse(req.ID, errors.BadRequest(errors.IDServer, fmt.Sprintf("param %d: %v", i, err)))
		}
		args[i] = v
	}

	result, err := svc.call(ctx, method, args)
	if err != nil {
		return message.ErrorResponse(req.ID, errors.FromError(errors.IDServer, err))
	}

	// A nil slice goes out as [] so the reply is never null.
	if result.Kind() == reflect.Slice && result.IsNil() {
		result = reflect.MakeSlice(result.Type(), 0, 0)
	}
	payload, err := codec.EncodeValue(result.Interface())
	if err != nil {
		return message.ErrorResponse(req.ID, errors.InternalServerError(errors.IDServer, err.Error()))
	}
	return &message.Response{ID: req.ID, Result: payload}
}
