package registry

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

// newTestEtcd connects to KVRPC_ETCD_ENDPOINTS or skips the test.
func newTestEtcd(t *testing.T) *EtcdDiscovery {
	t.Helper()
	endpoints := os.Getenv("KVRPC_ETCD_ENDPOINTS")
	if endpoints == "" {
		t.Skip("KVRPC_ETCD_ENDPOINTS not set")
	}
	d, err := NewEtcdDiscovery(strings.Split(endpoints, ","), 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestEtcdRegisterAndDiscover(t *testing.T) {
	d := newTestEtcd(t)
	ctx := context.Background()
	service := "address-" + uuid.NewString()

	inst1 := ServiceInstance{ID: uuid.NewString(), Addr: "127.0.0.1:8001", Weight: 10, Version: "1.0"}
	inst2 := ServiceInstance{ID: uuid.NewString(), Addr: "127.0.0.1:8002", Weight: 5, Version: "1.0",
		Endpoints: []string{"POST /kv/address/Add"}}

	if err := d.Register(ctx, service, inst1, 10); err != nil {
		t.Fatal(err)
	}
	if err := d.Register(ctx, service, inst2, 10); err != nil {
		t.Fatal(err)
	}

	instances, err := d.Discover(ctx, service)
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 2 {
		t.Fatalf("expect 2 instances, got %d", len(instances))
	}

	if err := d.Deregister(ctx, service, inst1.ID); err != nil {
		t.Fatal(err)
	}

	instances, err = d.Discover(ctx, service)
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 1 {
		t.Fatalf("expect 1 instance after deregister, got %d", len(instances))
	}
	if instances[0].Addr != inst2.Addr || len(instances[0].Endpoints) != 1 {
		t.Fatalf("expect %+v, got %+v", inst2, instances[0])
	}

	d.Deregister(ctx, service, inst2.ID)
}

func TestEtcdWatch(t *testing.T) {
	d := newTestEtcd(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	service := "address-" + uuid.NewString()

	updates := d.Watch(ctx, service)
	inst := ServiceInstance{ID: uuid.NewString(), Addr: "127.0.0.1:8003", Weight: 1}
	if err := d.Register(ctx, service, inst, 10); err != nil {
		t.Fatal(err)
	}
	defer d.Deregister(context.Background(), service, inst.ID)

	select {
	case list := <-updates:
		if len(list) != 1 || list[0].ID != inst.ID {
			t.Fatalf("unexpected watch update: %+v", list)
		}
	case <-ctx.Done():
		t.Fatal("no watch update")
	}
}
