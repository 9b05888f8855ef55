package loadbalance

import (
	"sync/atomic"

	"github.com/robert-cronin/kvrpc/registry"
)

// RoundRobinBalancer cycles through the candidate list in order. The key is
// ignored, so consecutive calls to the same endpoint spread across servers.
type RoundRobinBalancer struct {
	next atomic.Uint64
}

func (b *RoundRobinBalancer) Pick(instances []registry.ServiceInstance, _ string) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}
	i := (b.next.Add(1) - 1) % uint64(len(instances))
	return &instances[i], nil
}

func (b *RoundRobinBalancer) Name() string {
	return "RoundRobin"
}
