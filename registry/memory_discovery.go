package registry

import (
	"context"
	"sort"
	"sync"
)

// MemoryDiscovery is an in-process Discovery. TTLs are ignored; instances stay
// until deregistered.
type MemoryDiscovery struct {
	mu       sync.RWMutex
	services map[string]map[string]ServiceInstance
	watchers map[string][]chan []ServiceInstance
}

func NewMemoryDiscovery() *MemoryDiscovery {
	return &MemoryDiscovery{
		services: make(map[string]map[string]ServiceInstance),
		watchers: make(map[string][]chan []ServiceInstance),
	}
}

func (m *MemoryDiscovery) Register(_ context.Context, serviceName string, instance ServiceInstance, _ int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.services[serviceName] == nil {
		m.services[serviceName] = make(map[string]ServiceInstance)
	}
	m.services[serviceName][instance.ID] = instance
	m.notifyLocked(serviceName)
	return nil
}

func (m *MemoryDiscovery) Deregister(_ context.Context, serviceName string, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.services[serviceName], id)
	m.notifyLocked(serviceName)
	return nil
}

func (m *MemoryDiscovery) Discover(_ context.Context, serviceName string) ([]ServiceInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(serviceName), nil
}

func (m *MemoryDiscovery) Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)
	m.mu.Lock()
	m.watchers[serviceName] = append(m.watchers[serviceName], ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		ws := m.watchers[serviceName]
		for i, w := range ws {
			if w == ch {
				m.watchers[serviceName] = append(ws[:i], ws[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

// listLocked returns instances sorted by ID so balancers see a stable order.
func (m *MemoryDiscovery) listLocked(serviceName string) []ServiceInstance {
	instances := make([]ServiceInstance, 0, len(m.services[serviceName]))
	for _, inst := range m.services[serviceName] {
		instances = append(instances, inst)
	}
	sort.Slice(instances, func(i, j int) bool { return instances[i].ID < instances[j].ID })
	return instances
}

// notifyLocked sends the latest list to every watcher, replacing a stale
// undelivered list if the watcher has not caught up.
func (m *MemoryDiscovery) notifyLocked(serviceName string) {
	list := m.listLocked(serviceName)
	for _, ch := range m.watchers[serviceName] {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- list:
		default:
		}
	}
}
