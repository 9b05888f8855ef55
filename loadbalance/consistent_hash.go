package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"
	"strings"
	"sync"

	"github.com/robert-cronin/kvrpc/registry"
)

// ConsistentHashBalancer maps keys to instances using a hash ring.
// The same key always maps to the same instance (until the ring changes),
// providing cache affinity for stateful services.
//
// Virtual nodes: each real instance is mapped to N virtual nodes on the ring,
// so a few instances do not cluster together on it.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	              ╱       ╲
//	         B ●               ● A
//	           │    key ◆──►   │   (clockwise to nearest node → A)
//	         C ●               ● A' (virtual node of A)
//	              ╲       ╱
//	                ╲   ╱
type ConsistentHashBalancer struct {
	mu       sync.RWMutex
	replicas int                                 // Virtual nodes per real instance
	ring     []uint32                            // Sorted hash values on the ring
	nodes    map[uint32]registry.ServiceInstance // Hash value → instance
	members  string                              // Identity of the instance set on the ring
}

// NewConsistentHashBalancer creates a hash ring with 100 virtual nodes per instance.
func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		replicas: 100,
		nodes:    make(map[uint32]registry.ServiceInstance),
	}
}

func nodeName(instance registry.ServiceInstance) string {
	if instance.ID != "" {
		return instance.ID
	}
	return instance.Addr
}

// Add places an instance onto the hash ring with N virtual nodes hashed from
// "{id}#{i}".
func (b *ConsistentHashBalancer) Add(instance registry.ServiceInstance) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addLocked(instance)
	b.members = ""
}

func (b *ConsistentHashBalancer) addLocked(instance registry.ServiceInstance) {
	for i := 0; i < b.replicas; i++ {
		hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", nodeName(instance), i)))
		if _, taken := b.nodes[hash]; !taken {
			b.ring = append(b.ring, hash)
		}
		b.nodes[hash] = instance
	}
	// Keep the ring sorted for binary search in Get().
	sort.Slice(b.ring, func(i, j int) bool {
		return b.ring[i] < b.ring[j]
	})
}

// Get finds the instance responsible for key: the first node clockwise from
// the key's hash, wrapping around past the largest hash.
func (b *ConsistentHashBalancer) Get(key string) (*registry.ServiceInstance, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.getLocked(key)
}

func (b *ConsistentHashBalancer) getLocked(key string) (*registry.ServiceInstance, error) {
	if len(b.ring) == 0 {
		return nil, ErrNoInstances
	}
	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}
	inst := b.nodes[b.ring[idx]]
	return &inst, nil
}

// Pick rebuilds the ring when the instance set changed, then maps key onto it.
func (b *ConsistentHashBalancer) Pick(instances []registry.ServiceInstance, key string) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}
	members := membership(instances)

	b.mu.RLock()
	if b.members == members {
		defer b.mu.RUnlock()
		return b.getLocked(key)
	}
	b.mu.RUnlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.members != members {
		b.ring = b.ring[:0]
		b.nodes = make(map[uint32]registry.ServiceInstance, len(instances)*b.replicas)
		for _, inst := range instances {
			b.addLocked(inst)
		}
		b.members = members
	}
	return b.getLocked(key)
}

func membership(instances []registry.ServiceInstance) string {
	names := make([]string, len(instances))
	for i, inst := range instances {
		names[i] = nodeName(inst) + "@" + inst.Addr
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
