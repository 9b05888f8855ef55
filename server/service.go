package server

import (
	"context"
	"fmt"
	"reflect"

	"github.com/robert-cronin/kvrpc/contract"
	"github.com/robert-cronin/kvrpc/registry"
)

type methodType struct {
	op *contract.Operation
	fn reflect.Value // method bound to the receiver
}

type service struct {
	name   string
	reg    *registry.Registry
	rcvr   reflect.Value
	method map[string]*methodType
}

// newService binds every operation of reg's contract to the matching method of impl.
func newService(reg *registry.Registry, impl any) (*service, error) {
	if err := reg.Contract().Implements(impl); err != nil {
		return nil, err
	}
	rcvr := reflect.ValueOf(impl)
	svc := &service{
		name:   reg.Service(),
		reg:    reg,
		rcvr:   rcvr,
		method: make(map[string]*methodType),
	}
	for _, op := range reg.Contract().Operations() {
		fn := rcvr.MethodByName(op.Name)
		if !fn.IsValid() {
			return nil, fmt.Errorf("rpc: %T has no method %s", impl, op.Name)
		}
		svc.method[op.Name] = &methodType{op: op, fn: fn}
	}
	return svc, nil
}

// call invokes the method with already decoded arguments.
func (s *service) call(ctx context.Context, mType *methodType, args []reflect.Value) (reflect.Value, error) {
	in := make([]reflect.Value, 0, len(args)+1)
	in = append(in, reflect.ValueOf(ctx))
	in = append(in, args...)
	results := mType.fn.Call(in)
	if errv := results[1]; !errv.IsNil() {
		return reflect.Value{}, errv.Interface().(error)
	}
	return results[0], nil
}
