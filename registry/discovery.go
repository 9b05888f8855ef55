package registry

import "context"

// ServiceInstance is one running server that serves a service.
type ServiceInstance struct {
	ID        string
	Addr      string
	Weight    int // Weight for load balancing
	Version   string
	Endpoints []string // binding patterns, e.g. "POST /kv/address/Add"
}

// Discovery publishes and finds service instances.
type Discovery interface {
	Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error
	Deregister(ctx context.Context, serviceName string, id string) error
	Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error)
	// Watch emits the full instance list after every change until ctx is done.
	Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance
}
