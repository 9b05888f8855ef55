package client

import (
	"context"
	"fmt"
	"reflect"
)

// Call is an asynchronous call in progress.
type Call struct {
	Op    string
	Args  []any
	Reply any
	Error error      // set when the call completes
	Done  chan *Call // receives the call itself when it completes
}

// Go starts the call and returns immediately. The Call is sent on its Done
// channel when it completes. If done is nil a new channel is allocated; if it
// is not nil it must be buffered.
func (c *Client) Go(ctx context.Context, op string, args []any, reply any, done chan *Call) *Call {
	if done == nil {
		done = make(chan *Call, 1)
	} else if cap(done) == 0 {
		panic("client: done channel is unbuffered")
	}
	call := &Call{Op: op, Args: args, Reply: reply, Done: done}
	go func() {
		call.Error = c.Invoke(ctx, op, args, reply)
		call.Done <- call
	}()
	return call
}

// checkSignature verifies that the stub types match operation op exactly.
func checkSignature(c *Client, op string, result reflect.Type, params ...reflect.Type) error {
	b, ok := c.reg.Lookup(op)
	if !ok {
		return fmt.Errorf("client: unknown operation %s.%s", c.reg.Service(), op)
	}
	desc := b.Operation
	if len(params) != desc.ParamCount() {
		return fmt.Errorf("client: %s takes %d params, stub has %d", b.ServiceMethod(), desc.ParamCount(), len(params))
	}
	for i, p := range params {
		if p != desc.Params[i] {
			return fmt.Errorf("client: %s param %d is %v, stub has %v", b.ServiceMethod(), i, desc.Params[i], p)
		}
	}
	if result != desc.Result {
		return fmt.Errorf("client: %s returns %v, stub has %v", b.ServiceMethod(), desc.Result, result)
	}
	return nil
}

// Func0 returns a typed stub for an operation without parameters.
func Func0[R any](c *Client, op string) (func(context.Context) (R, error), error) {
	if err := checkSignature(c, op, reflect.TypeFor[R]()); err != nil {
		return nil, err
	}
	return func(ctx context.Context) (R, error) {
		var r R
		err := c.Invoke(ctx, op, []any{}, &r)
		return r, err
	}, nil
}

func Func1[P1, R any](c *Client, op string) (func(context.Context, P1) (R, error), error) {
	if err := checkSignature(c, op, reflect.TypeFor[R](), reflect.TypeFor[P1]()); err != nil {
		return nil, err
	}
	return func(ctx context.Context, p1 P1) (R, error) {
		var r R
		err := c.Invoke(ctx, op, []any{p1}, &r)
		return r, err
	}, nil
}

func Func2[P1, P2, R any](c *Client, op string) (func(context.Context, P1, P2) (R, error), error) {
	if err := checkSignature(c, op, reflect.TypeFor[R](), reflect.TypeFor[P1](), reflect.TypeFor[P2]()); err != nil {
		return nil, err
	}
	return func(ctx context.Context, p1 P1, p2 P2) (R, error) {
		var r R
		err := c.Invoke(ctx, op, []any{p1, p2}, &r)
		return r, err
	}, nil
}

func Func3[P1, P2, P3, R any](c *Client, op string) (func(context.Context, P1, P2, P3) (R, error), error) {
	if err := checkSignature(c, op, reflect.TypeFor[R](),
		reflect.TypeFor[P1](), reflect.TypeFor[P2](), reflect.TypeFor[P3]()); err != nil {
		return nil, err
	}
	return func(ctx context.Context, p1 P1, p2 P2, p3 P3) (R, error) {
		var r R
		err := c.Invoke(ctx, op, []any{p1, p2, p3}, &r)
		return r, err
	}, nil
}

func Func4[P1, P2, P3, P4, R any](c *Client, op string) (func(context.Context, P1, P2, P3, P4) (R, error), error) {
	if err := checkSignature(c, op, reflect.TypeFor[R](),
		reflect.TypeFor[P1](), reflect.TypeFor[P2](), reflect.TypeFor[P3](), reflect.TypeFor[P4]()); err != nil {
		return nil, err
	}
	return func(ctx context.Context, p1 P1, p2 P2, p3 P3, p4 P4) (R, error) {
		var r R
		err := c.Invoke(ctx, op, []any{p1, p2, p3, p4}, &r)
		return r, err
	}, nil
}

// Func5 covers the largest operations a contract allows.
func Func5[P1, P2, P3, P4, P5, R any](c *Client, op string) (func(context.Context, P1, P2, P3, P4, P5) (R, error), error) {
	if err := checkSignature(c, op, reflect.TypeFor[R](),
		reflect.TypeFor[P1](), reflect.TypeFor[P2](), reflect.TypeFor[P3](), reflect.TypeFor[P4](), reflect.TypeFor[P5]()); err != nil {
		return nil, err
	}
	return func(ctx context.Context, p1 P1, p2 P2, p3 P3, p4 P4, p5 P5) (R, error) {
		var r R
		err := c.Invoke(ctx, op, []any{p1, p2, p3, p4, p5}, &r)
		return r, err
	}, nil
}
