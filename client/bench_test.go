package client

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/robert-cronin/kvrpc/codec"
	"github.com/robert-cronin/kvrpc/internal/demo"
	"github.com/robert-cronin/kvrpc/server"
)

func newBenchClient(b *testing.B, codecType codec.CodecType) *Client {
	b.Helper()
	reg, err := demo.NewRegistry()
	if err != nil {
		b.Fatal(err)
	}
	svr := server.NewServer()
	if err := svr.Register(reg, demo.NewBook()); err != nil {
		b.Fatal(err)
	}
	ts := httptest.NewServer(svr.Handler())
	b.Cleanup(ts.Close)

	c, err := NewClient(reg, WithBaseURL(ts.URL), WithCodec(codecType))
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { c.Close() })
	return c
}

func benchPing(b *testing.B, c *Client) func(context.Context, *string) (string, error) {
	b.Helper()
	ping, err := Func1[*string, string](c, "Ping")
	if err != nil {
		b.Fatal(err)
	}
	return ping
}

func benchmarkSerialCall(b *testing.B, codecType codec.CodecType) {
	c := newBenchClient(b, codecType)
	ping := benchPing(b, c)
	msg := "bench"
	ctx := context.Background()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := ping(ctx, &msg); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSerialCallJSON(b *testing.B)   { benchmarkSerialCall(b, codec.CodecTypeJSON) }
func BenchmarkSerialCallBinary(b *testing.B) { benchmarkSerialCall(b, codec.CodecTypeBinary) }

func BenchmarkConcurrentCall(b *testing.B) {
	c := newBenchClient(b, codec.CodecTypeJSON)
	ping := benchPing(b, c)
	ctx := context.Background()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		msg := "bench"
		for pb.Next() {
			if _, err := ping(ctx, &msg); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
