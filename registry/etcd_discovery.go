package registry

// etcd is used as the service phonebook:
//
//	Key:   /kvrpc/{ServiceName}/{InstanceID}
//	Value: JSON-encoded ServiceInstance
//
// Registration uses TTL leases: if the server dies, the lease expires and the
// entry disappears with it.

import (
	"context"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const etcdKeyRoot = "/kvrpc/"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// EtcdDiscovery implements Discovery on etcd v3.
type EtcdDiscovery struct {
	client *clientv3.Client // thread-safe, shared across goroutines

	mu     sync.Mutex
	leases map[string]clientv3.LeaseID // key → lease, so Deregister can revoke
}

// NewEtcdDiscovery connects to the given etcd endpoints.
func NewEtcdDiscovery(endpoints []string, dialTimeout time.Duration) (*EtcdDiscovery, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdDiscovery{client: c, leases: make(map[string]clientv3.LeaseID)}, nil
}

func instanceKey(serviceName, id string) string {
	return etcdKeyRoot + serviceName + "/" + id
}

func servicePrefix(serviceName string) string {
	return etcdKeyRoot + serviceName + "/"
}

// Register puts the instance under a TTL lease and keeps the lease alive until
// Deregister or Close.
func (r *EtcdDiscovery) Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error {
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	key := instanceKey(serviceName, instance.ID)
	if _, err = r.client.Put(ctx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return err
	}

	// The keepalive must outlive the registration call, so it is not tied to ctx.
	ch, err := r.client.KeepAlive(context.Background(), lease.ID)
	if err != nil {
		return err
	}
	go func() {
		for range ch {
		}
		log.Debug().Str("key", key).Msg("etcd keepalive stopped")
	}()

	r.mu.Lock()
	r.leases[key] = lease.ID
	r.mu.Unlock()
	return nil
}

// Deregister removes an instance and revokes its lease.
func (r *EtcdDiscovery) Deregister(ctx context.Context, serviceName string, id string) error {
	key := instanceKey(serviceName, id)

	r.mu.Lock()
	leaseID, ok := r.leases[key]
	delete(r.leases, key)
	r.mu.Unlock()

	if _, err := r.client.Delete(ctx, key); err != nil {
		return err
	}
	if ok {
		if _, err := r.client.Revoke(ctx, leaseID); err != nil {
			return err
		}
	}
	return nil
}

// Watch emits the instance list whenever keys under the service prefix change.
func (r *EtcdDiscovery) Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)

	go func() {
		defer close(ch)
		watchChan := r.client.Watch(ctx, servicePrefix(serviceName), clientv3.WithPrefix())
		for range watchChan {
			// Re-fetch the full list instead of applying individual events.
			instances, err := r.Discover(ctx, serviceName)
			if err != nil {
				log.Warn().Err(err).Str("service", serviceName).Msg("etcd rediscover failed")
				continue
			}
			select {
			case ch <- instances:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

// Discover returns all instances currently registered for a service.
func (r *EtcdDiscovery) Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error) {
	resp, err := r.client.Get(ctx, servicePrefix(serviceName), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance ServiceInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			log.Warn().Err(err).Bytes("key", kv.Key).Msg("skipping malformed instance")
			continue
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

// Close releases the etcd client. Leases expire on their own after their TTL.
func (r *EtcdDiscovery) Close() error {
	return r.client.Close()
}
