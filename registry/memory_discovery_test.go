package registry

import (
	"context"
	"testing"
	"time"
)

func TestMemoryDiscovery(t *testing.T) {
	d := NewMemoryDiscovery()
	ctx := context.Background()

	d.Register(ctx, "address", ServiceInstance{ID: "b", Addr: ":8002"}, 10)
	d.Register(ctx, "address", ServiceInstance{ID: "a", Addr: ":8001"}, 10)
	d.Register(ctx, "other", ServiceInstance{ID: "c", Addr: ":8003"}, 10)

	instances, err := d.Discover(ctx, "address")
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 2 || instances[0].ID != "a" || instances[1].ID != "b" {
		t.Fatalf("expect [a b] sorted by ID, got %+v", instances)
	}

	d.Deregister(ctx, "address", "a")
	instances, _ = d.Discover(ctx, "address")
	if len(instances) != 1 || instances[0].ID != "b" {
		t.Fatalf("expect [b], got %+v", instances)
	}

	instances, _ = d.Discover(ctx, "missing")
	if len(instances) != 0 {
		t.Fatalf("expect no instances, got %+v", instances)
	}
}

func TestMemoryDiscoveryWatch(t *testing.T) {
	d := NewMemoryDiscovery()
	ctx, cancel := context.WithCancel(context.Background())

	updates := d.Watch(ctx, "address")
	d.Register(ctx, "address", ServiceInstance{ID: "a"}, 10)
	d.Register(ctx, "address", ServiceInstance{ID: "b"}, 10)

	// Only the latest list is kept for a slow watcher.
	select {
	case list := <-updates:
		if len(list) != 2 {
			t.Fatalf("expect latest list with 2 instances, got %+v", list)
		}
	case <-time.After(time.Second):
		t.Fatal("no watch update")
	}

	cancel()
	select {
	case _, ok := <-updates:
		if ok {
			t.Fatal("expect channel closed after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("watch channel not closed")
	}
}
