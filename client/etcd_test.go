package client

import (
	"context"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robert-cronin/kvrpc/internal/demo"
	"github.com/robert-cronin/kvrpc/loadbalance"
	"github.com/robert-cronin/kvrpc/registry"
	"github.com/robert-cronin/kvrpc/server"
)

// TestMultiServerWithEtcd publishes two servers to etcd, calls through
// discovery, then stops one and expects calls to keep succeeding.
func TestMultiServerWithEtcd(t *testing.T) {
	endpoints := os.Getenv("KVRPC_ETCD_ENDPOINTS")
	if endpoints == "" {
		t.Skip("KVRPC_ETCD_ENDPOINTS not set")
	}
	etcd, err := registry.NewEtcdDiscovery(strings.Split(endpoints, ","), 2*time.Second)
	require.NoError(t, err)
	defer etcd.Close()

	reg, err := demo.NewRegistry()
	require.NoError(t, err)

	start := func() *server.Server {
		svr := server.NewServer(server.WithTTL(5))
		require.NoError(t, svr.Register(reg, demo.NewBook()))
		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		go svr.ServeListener(l, "http://"+l.Addr().String(), etcd)
		return svr
	}
	svr1, svr2 := start(), start()
	defer svr2.Shutdown(3 * time.Second)

	ctx := context.Background()
	require.Eventually(t, func() bool {
		list, err := etcd.Discover(ctx, demo.ServiceName)
		return err == nil && len(list) >= 2
	}, 5*time.Second, 50*time.Millisecond)

	c, err := NewClient(reg, WithDiscovery(etcd, &loadbalance.RoundRobinBalancer{}))
	require.NoError(t, err)
	defer c.Close()

	msg := "hello"
	for i := 0; i < 4; i++ {
		var reply string
		require.NoError(t, c.Invoke(ctx, "Ping", []any{&msg}, &reply))
	}

	require.NoError(t, svr1.Shutdown(3*time.Second))
	require.Eventually(t, func() bool {
		for i := 0; i < 4; i++ {
			var reply string
			if err := c.Invoke(ctx, "Ping", []any{&msg}, &reply); err != nil {
				return false
			}
		}
		return true
	}, 5*time.Second, 100*time.Millisecond)
}
