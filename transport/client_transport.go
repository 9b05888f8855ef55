// Package transport carries kvrpc envelopes over HTTP on the client side.
//
// A ClientTransport is shared by all calls of a client. Each call gets a unique
// request ID and registers its cancel func in a pending map, so Close can abort
// every call still in flight:
//
//	goroutine-1 ──Send(id=1)──┐
//	goroutine-2 ──Send(id=2)──┼──→ http.Client (pooled keep-alive conns) ──→ Server
//	goroutine-3 ──Send(id=3)──┘
//
//	pending: {1: cancel, 2: cancel, 3: cancel}, removed as each reply arrives
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robert-cronin/kvrpc/codec"
	"github.com/robert-cronin/kvrpc/errors"
	"github.com/robert-cronin/kvrpc/message"
	"github.com/robert-cronin/kvrpc/protocol"
	"github.com/robert-cronin/kvrpc/registry"
)

// NewHTTPClient returns an http.Client keeping up to poolSize idle
// connections per server.
func NewHTTPClient(poolSize int, timeout time.Duration) *http.Client {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConnsPerHost = poolSize
	return &http.Client{Transport: t, Timeout: timeout}
}

// ClientTransport sends envelopes to bound endpoints.
type ClientTransport struct {
	httpClient *http.Client
	codec      codec.Codec
	seq        atomic.Uint32
	pending    sync.Map // map[uint32]context.CancelFunc, one entry per call in flight
	closed     atomic.Bool
}

// NewClientTransport creates a transport encoding requests with c.
func NewClientTransport(httpClient *http.Client, c codec.Codec) *ClientTransport {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if c == nil {
		c = codec.GetCodec(codec.CodecTypeJSON)
	}
	return &ClientTransport{httpClient: httpClient, codec: c}
}

// NextID returns a fresh request ID. IDs are never 0.
func (t *ClientTransport) NextID() uint32 {
	for {
		if id := t.seq.Add(1); id != 0 {
			return id
		}
	}
}

// Codec returns the codec used for request bodies.
func (t *ClientTransport) Codec() codec.Codec {
	return t.codec
}

// Send performs the call asynchronously. The returned channel receives exactly
// one response; failures arrive as error responses, never as a closed channel.
// A request with ID 0 is assigned a fresh ID.
func (t *ClientTransport) Send(ctx context.Context, target string, b *registry.Binding, req *message.Request) <-chan *message.Response {
	if req.ID == 0 {
		req.ID = t.NextID()
	}
	ch := make(chan *message.Response, 1)
	go func() {
		ch <- t.RoundTrip(ctx, target, b, req)
	}()
	return ch
}

// RoundTrip performs the call and waits for the reply. target is the server base
// URL, e.g. "http://127.0.0.1:8080".
func (t *ClientTransport) RoundTrip(ctx context.Context, target string, b *registry.Binding, req *message.Request) *message.Response {
	if req.ID == 0 {
		req.ID = t.NextID()
	}
	if t.closed.Load() {
		return message.ErrorResponse(req.ID, errors.ServiceUnavailable(errors.IDTransport, "transport closed"))
	}

	ctx, cancel := context.WithCancel(ctx)
	t.pending.Store(req.ID, cancel)
	defer func() {
		t.pending.Delete(req.ID)
		cancel()
	}()

	httpReq, err := t.newHTTPRequest(ctx, target, b, req)
	if err != nil {
		return message.ErrorResponse(req.ID, errors.InternalServerError(errors.IDClient, err.Error()))
	}

	httpResp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return message.ErrorResponse(req.ID, transportError(ctx, err))
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, protocol.MaxFrameBody+1))
	if err != nil {
		return message.ErrorResponse(req.ID, transportError(ctx, err))
	}
	return t.decodeResponse(req.ID, httpResp, body)
}

func (t *ClientTransport) newHTTPRequest(ctx context.Context, target string, b *registry.Binding, req *message.Request) (*http.Request, error) {
	url := strings.TrimSuffix(target, "/") + b.Path

	var body io.Reader
	if b.Verb != registry.GET {
		data, err := t.codec.Encode(req)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, string(b.Verb), url, body)
	if err != nil {
		return nil, err
	}
	for k, v := range req.Header {
		httpReq.Header.Set(k, v)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", t.codec.ContentType())
	}
	httpReq.Header.Set("Accept", t.codec.ContentType())
	httpReq.Header.Set(message.HeaderRequestID, strconv.FormatUint(uint64(req.ID), 10))
	return httpReq, nil
}

func (t *ClientTransport) decodeResponse(id uint32, httpResp *http.Response, body []byte) *message.Response {
	if len(body) > protocol.MaxFrameBody {
		return message.ErrorResponse(id, errors.InternalServerError(errors.IDClient, "response body too large"))
	}

	c, ok := codec.ForContentType(httpResp.Header.Get("Content-Type"))
	resp := new(message.Response)
	if ok {
		if err := c.Decode(body, resp); err != nil {
			ok = false
		}
	}
	if !ok {
		// Not an envelope: a proxy error page, or a route the server does not know.
		if httpResp.StatusCode >= http.StatusBadRequest {
			detail := strings.TrimSpace(string(body))
			if detail == "" {
				detail = http.StatusText(httpResp.StatusCode)
			}
			return message.ErrorResponse(id, errors.New(errors.IDTransport, detail, int32(httpResp.StatusCode)))
		}
		return message.ErrorResponse(id, errors.InternalServerError(errors.IDClient, "undecodable response"))
	}

	if resp.ID != id {
		return message.ErrorResponse(id, errors.InternalServerError(errors.IDClient,
			fmt.Sprintf("response id %d does not match request id %d", resp.ID, id)))
	}
	if resp.Error == nil && httpResp.StatusCode != http.StatusOK {
		resp.Error = errors.New(errors.IDClient, "non-success status without error", int32(httpResp.StatusCode))
	}
	return resp
}

func transportError(ctx context.Context, err error) *errors.Error {
	if ctx.Err() == context.DeadlineExceeded {
		return errors.GatewayTimeout(errors.IDTransport, err.Error())
	}
	return errors.ServiceUnavailable(errors.IDTransport, err.Error())
}

// Pending returns the number of calls in flight.
func (t *ClientTransport) Pending() int {
	n := 0
	t.pending.Range(func(key, value any) bool {
		n++
		return true
	})
	return n
}

// Close cancels every call in flight and rejects new ones. Cancelled calls
// complete with a transport error.
func (t *ClientTransport) Close() error {
	t.closed.Store(true)
	t.pending.Range(func(key, value any) bool {
		value.(context.CancelFunc)()
		return true
	})
	t.httpClient.CloseIdleConnections()
	return nil
}
