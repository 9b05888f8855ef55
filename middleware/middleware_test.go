package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/robert-cronin/kvrpc/errors"
	"github.com/robert-cronin/kvrpc/message"
)

// echoHandler answers every call successfully.
func echoHandler(ctx context.Context, req *message.Request) *message.Response {
	return &message.Response{ID: req.ID, Result: json.RawMessage(`"ok"`)}
}

// slowHandler takes 200ms.
func slowHandler(ctx context.Context, req *message.Request) *message.Response {
	time.Sleep(200 * time.Millisecond)
	return echoHandler(ctx, req)
}

func newRequest() *message.Request {
	return &message.Request{ID: 1, Method: "address.Add"}
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	handler := LoggingMiddleware(logger)(echoHandler)
	resp := handler(context.Background(), newRequest())
	if resp == nil || string(resp.Result) != `"ok"` {
		t.Fatalf("expect result \"ok\", got %+v", resp)
	}
	if !strings.Contains(buf.String(), `"level":"debug"`) || !strings.Contains(buf.String(), `"method":"address.Add"`) {
		t.Fatalf("unexpected log line: %s", buf.String())
	}

	buf.Reset()
	failing := LoggingMiddleware(logger)(func(ctx context.Context, req *message.Request) *message.Response {
		return message.ErrorResponse(req.ID, errors.InternalServerError("test", "boom"))
	})
	failing(context.Background(), newRequest())
	if !strings.Contains(buf.String(), `"level":"error"`) || !strings.Contains(buf.String(), `"status":500`) {
		t.Fatalf("expect error level for 500, got: %s", buf.String())
	}
}

func TestTimeoutPass(t *testing.T) {
	handler := TimeOutMiddleware(500 * time.Millisecond)(echoHandler)

	resp := handler(context.Background(), newRequest())
	if resp.Error != nil {
		t.Fatalf("expect no error, got %v", resp.Error)
	}
}

func TestTimeoutExceeded(t *testing.T) {
	handler := TimeOutMiddleware(50 * time.Millisecond)(slowHandler)

	resp := handler(context.Background(), newRequest())
	if resp.Error == nil || resp.Error.Code != http.StatusGatewayTimeout {
		t.Fatalf("expect 504, got %+v", resp.Error)
	}
	if resp.ID != 1 {
		t.Fatalf("expect response id 1, got %d", resp.ID)
	}
}

func TestRateLimit(t *testing.T) {
	// rate=1 per second, burst=2: the first 2 pass, the 3rd is rejected.
	handler := RateLimitMiddleware(1, 2)(echoHandler)

	for i := 0; i < 2; i++ {
		resp := handler(context.Background(), newRequest())
		if resp.Error != nil {
			t.Fatalf("request %d should pass, got error: %v", i, resp.Error)
		}
	}

	resp := handler(context.Background(), newRequest())
	if resp.Error == nil || resp.Error.Code != http.StatusTooManyRequests {
		t.Fatalf("request 3 should be rate limited, got: %+v", resp.Error)
	}
}

func TestRetry(t *testing.T) {
	var calls atomic.Int32
	flaky := func(ctx context.Context, req *message.Request) *message.Response {
		if calls.Add(1) < 3 {
			return message.ErrorResponse(req.ID, errors.ServiceUnavailable(errors.IDTransport, "connection refused"))
		}
		return echoHandler(ctx, req)
	}

	resp := RetryMiddleware(3, time.Millisecond)(flaky)(context.Background(), newRequest())
	if resp.Error != nil {
		t.Fatalf("expect success after retries, got %v", resp.Error)
	}
	if calls.Load() != 3 {
		t.Fatalf("expect 3 calls, got %d", calls.Load())
	}
}

func TestRetrySkipsPermanentErrors(t *testing.T) {
	var calls atomic.Int32
	bad := func(ctx context.Context, req *message.Request) *message.Response {
		calls.Add(1)
		return message.ErrorResponse(req.ID, errors.BadRequest(errors.IDServer, "bad param"))
	}

	resp := RetryMiddleware(3, time.Millisecond)(bad)(context.Background(), newRequest())
	if resp.Error == nil || resp.Error.Code != http.StatusBadRequest {
		t.Fatalf("expect 400, got %+v", resp.Error)
	}
	if calls.Load() != 1 {
		t.Fatalf("expect 1 call, got %d", calls.Load())
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	down := func(ctx context.Context, req *message.Request) *message.Response {
		return message.ErrorResponse(req.ID, errors.ServiceUnavailable(errors.IDTransport, "down"))
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	resp := RetryMiddleware(5, time.Second)(down)(ctx, newRequest())
	if resp.Error == nil {
		t.Fatal("expect error")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("retry did not stop on cancelled context")
	}
}

func TestRecovery(t *testing.T) {
	panicky := func(ctx context.Context, req *message.Request) *message.Response {
		panic("boom")
	}

	resp := RecoveryMiddleware()(panicky)(context.Background(), newRequest())
	if resp.Error == nil || resp.Error.Code != http.StatusInternalServerError {
		t.Fatalf("expect 500, got %+v", resp.Error)
	}
	if !strings.Contains(resp.Error.Detail, "boom") {
		t.Fatalf("expect panic value in detail, got %q", resp.Error.Detail)
	}
}

func TestChain(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *message.Request) *message.Response {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}

	handler := Chain(mark("a"), mark("b"), TimeOutMiddleware(500*time.Millisecond))(echoHandler)
	resp := handler(context.Background(), newRequest())
	if resp.Error != nil {
		t.Fatalf("expect no error, got %v", resp.Error)
	}
	if strings.Join(order, ",") != "a,b" {
		t.Fatalf("expect order a,b, got %v", order)
	}
}
