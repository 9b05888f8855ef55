// Package registry maps the operations of a service contract to HTTP endpoints.
//
// A Registry is assembled once with a Builder during process start and is
// immutable afterwards. Server routing and client call sites share the same
// *Registry and only ever read it.
//
//	b, err := registry.NewBuilder[AddressService]("address")
//	b.Bind("List", registry.WithVerb(registry.GET))
//	b.Bind("Add", registry.WithPath("address/new"))
//	b.BindAll()
//	reg, err := b.Build()
//
// Every path lives under Prefix.
package registry

import (
	"errors"
	"fmt"
	"net/http"
	"path"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/robert-cronin/kvrpc/contract"
	"github.com/robert-cronin/kvrpc/message"
)

// Prefix namespaces every endpoint so bindings never collide with application routes.
const Prefix = "/kv/"

// Verb is the HTTP method of a binding.
type Verb string

const (
	GET    Verb = http.MethodGet
	POST   Verb = http.MethodPost
	PUT    Verb = http.MethodPut
	DELETE Verb = http.MethodDelete
)

var (
	ErrInvalidService   = errors.New("registry: invalid service name")
	ErrUnknownOperation = errors.New("registry: unknown operation")
	ErrDuplicateBinding = errors.New("registry: operation already bound")
	ErrGetWithParams    = errors.New("registry: GET is only allowed for operations without parameters")
	ErrUnsupportedVerb  = errors.New("registry: unsupported verb")
	ErrInvalidPath      = errors.New("registry: invalid path")
	ErrRouteConflict    = errors.New("registry: route already in use")
	ErrUnbound          = errors.New("registry: operation not bound")
	ErrBuilt            = errors.New("registry: builder already built")
)

var (
	serviceNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)
	pathRe        = regexp.MustCompile(`^[A-Za-z0-9._~-]+(/[A-Za-z0-9._~-]+)*$`)
)

// Binding associates one operation with a verb and a path.
type Binding struct {
	Service   string
	Operation *contract.Operation
	Verb      Verb
	Path      string // always starts with Prefix
}

// ServiceMethod returns "Service.Operation", the envelope method name.
func (b *Binding) ServiceMethod() string {
	return message.ServiceMethod(b.Service, b.Operation.Name)
}

// Pattern returns the http.ServeMux pattern for the binding.
func (b *Binding) Pattern() string {
	return string(b.Verb) + " " + b.Path
}

func (b *Binding) clone() *Binding {
	op := *b.Operation
	op.Params = slices.Clone(op.Params)
	c := *b
	c.Operation = &op
	return &c
}

type bindOptions struct {
	verb Verb
	path string
}

type BindOption func(*bindOptions)

// WithVerb overrides the default POST verb.
func WithVerb(v Verb) BindOption {
	return func(o *bindOptions) {
		o.verb = v
	}
}

// WithPath overrides the default "<service>/<Operation>" path. The path is
// joined under Prefix.
func WithPath(p string) BindOption {
	return func(o *bindOptions) {
		o.path = p
	}
}

// Builder collects bindings for one service.
type Builder struct {
	service  string
	contract *contract.Contract
	bindings map[string]*Binding
	routes   map[string]string // pattern → operation
	built    bool
}

// NewBuilder validates contract C and starts a registry for service.
// An empty service name defaults to the interface name.
func NewBuilder[C any](service string) (*Builder, error) {
	c, err := contract.For[C]()
	if err != nil {
		return nil, err
	}
	return NewBuilderFor(service, c)
}

// NewBuilderFor starts a registry for an already described contract.
func NewBuilderFor(service string, c *contract.Contract) (*Builder, error) {
	if service == "" {
		service = c.Name()
	}
	if !serviceNameRe.MatchString(service) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidService, service)
	}
	return &Builder{
		service:  service,
		contract: c,
		bindings: make(map[string]*Binding),
		routes:   make(map[string]string),
	}, nil
}

// Bind records the endpoint for operation op.
func (b *Builder) Bind(op string, opts ...BindOption) error {
	if b.built {
		return ErrBuilt
	}
	operation, ok := b.contract.Operation(op)
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownOperation, b.contract.Name(), op)
	}
	if _, dup := b.bindings[op]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateBinding, op)
	}

	o := bindOptions{verb: POST}
	for _, opt := range opts {
		opt(&o)
	}

	switch o.verb {
	case POST, PUT, DELETE:
	case GET:
		if operation.ParamCount() != 0 {
			return fmt.Errorf("%w: %s has %d", ErrGetWithParams, op, operation.ParamCount())
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedVerb, o.verb)
	}

	rest := b.service + "/" + op
	if o.path != "" {
		rest = strings.TrimPrefix(o.path, "/")
	}
	// "." and ".." segments would resolve outside Prefix.
	if !pathRe.MatchString(rest) || path.Clean(Prefix+rest) != Prefix+rest {
		return fmt.Errorf("%w: %q", ErrInvalidPath, o.path)
	}

	binding := &Binding{
		Service:   b.service,
		Operation: operation,
		Verb:      o.verb,
		Path:      Prefix + rest,
	}
	if other, taken := b.routes[binding.Pattern()]; taken {
		return fmt.Errorf("%w: %s by %s", ErrRouteConflict, binding.Pattern(), other)
	}
	b.routes[binding.Pattern()] = op
	b.bindings[op] = binding
	return nil
}

// BindAll binds every operation that is still unbound with the defaults.
func (b *Builder) BindAll() error {
	for _, op := range b.contract.Operations() {
		if _, ok := b.bindings[op.Name]; ok {
			continue
		}
		if err := b.Bind(op.Name); err != nil {
			return err
		}
	}
	return nil
}

// Build freezes the bindings. Every contract operation must be bound.
func (b *Builder) Build() (*Registry, error) {
	if b.built {
		return nil, ErrBuilt
	}
	var missing []string
	for _, op := range b.contract.Operations() {
		if _, ok := b.bindings[op.Name]; !ok {
			missing = append(missing, op.Name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnbound, strings.Join(missing, ", "))
	}
	b.built = true

	r := &Registry{
		service:  b.service,
		contract: b.contract,
		bindings: make([]*Binding, 0, len(b.bindings)),
		byOp:     make(map[string]*Binding, len(b.bindings)),
	}
	for op, binding := range b.bindings {
		r.bindings = append(r.bindings, binding)
		r.byOp[op] = binding
	}
	sort.Slice(r.bindings, func(i, j int) bool {
		return r.bindings[i].Operation.Name < r.bindings[j].Operation.Name
	})
	return r, nil
}

// Registry is the immutable set of bindings for one service.
type Registry struct {
	service  string
	contract *contract.Contract
	bindings []*Binding
	byOp     map[string]*Binding
}

func (r *Registry) Service() string {
	return r.service
}

func (r *Registry) Contract() *contract.Contract {
	return r.contract
}

// Bindings returns copies of the bindings sorted by operation name.
func (r *Registry) Bindings() []*Binding {
	out := make([]*Binding, len(r.bindings))
	for i, b := range r.bindings {
		out[i] = b.clone()
	}
	return out
}

// Lookup returns a copy of the binding of operation op.
func (r *Registry) Lookup(op string) (*Binding, bool) {
	b, ok := r.byOp[op]
	if !ok {
		return nil, false
	}
	return b.clone(), true
}

// Endpoints lists the patterns of all bindings, as published to discovery.
func (r *Registry) Endpoints() []string {
	out := make([]string, len(r.bindings))
	for i, b := range r.bindings {
		out[i] = b.Pattern()
	}
	return out
}
