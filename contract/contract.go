// Package contract turns a Go interface into the set of remotely callable
// operations it declares.
//
// Every method of a contract interface must have the shape
//
//	func(ctx context.Context, p1 P1, ..., pn Pn) (R, error)
//
// with at most MaxParams parameters after the context. Parameters and the result
// must belong to the supported type set (see Supported). A parameter may be a
// pointer, which makes it optional on the wire; the result may not, and it may not
// be unit-equivalent (a bare error return or an empty struct).
package contract

import (
	"context"
	"errors"
	"fmt"
	"reflect"
)

// MaxParams is the largest number of parameters an operation may declare,
// not counting the leading context.Context.
const MaxParams = 5

var (
	ErrNotInterface    = errors.New("contract: not an interface type")
	ErrNoOperations    = errors.New("contract: interface declares no operations")
	ErrSignature       = errors.New("contract: invalid operation signature")
	ErrTooManyParams   = errors.New("contract: too many parameters")
	ErrUnsupportedType = errors.New("contract: unsupported type")
	ErrNullableResult  = errors.New("contract: result must not be nullable")
	ErrUnitResult      = errors.New("contract: result must carry a value")
)

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

// Operation describes one remotely callable method.
type Operation struct {
	Name   string
	Params []reflect.Type // excludes the leading context.Context
	Result reflect.Type
	index  int
}

// ParamCount returns the number of wire parameters.
func (o *Operation) ParamCount() int {
	return len(o.Params)
}

// Optional reports whether parameter i is a pointer and may be sent as null.
func (o *Operation) Optional(i int) bool {
	return o.Params[i].Kind() == reflect.Pointer
}

// Index is the method index inside the contract interface.
func (o *Operation) Index() int {
	return o.index
}

func (o *Operation) String() string {
	return fmt.Sprintf("%s%v %v", o.Name, o.Params, o.Result)
}

// Contract is a validated service interface.
type Contract struct {
	typ    reflect.Type
	ops    []*Operation
	byName map[string]*Operation
}

// For describes the interface type C.
func For[C any]() (*Contract, error) {
	return Describe(reflect.TypeFor[C]())
}

// Describe validates an interface type and builds its operation descriptors.
// All violations are reported, joined into one error.
func Describe(t reflect.Type) (*Contract, error) {
	if t == nil || t.Kind() != reflect.Interface {
		return nil, fmt.Errorf("%w: %v", ErrNotInterface, t)
	}
	if t.NumMethod() == 0 {
		return nil, fmt.Errorf("%w: %v", ErrNoOperations, t)
	}

	c := &Contract{
		typ:    t,
		ops:    make([]*Operation, 0, t.NumMethod()),
		byName: make(map[string]*Operation, t.NumMethod()),
	}
	var errs []error
	// Interface methods are already sorted by name.
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		op, err := DescribeFunc(m.Name, m.Type)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s.%s: %w", t.Name(), m.Name, err))
			continue
		}
		op.index = i
		c.ops = append(c.ops, op)
		c.byName[op.Name] = op
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return c, nil
}

// DescribeFunc validates a single function type as an operation named name.
func DescribeFunc(name string, fn reflect.Type) (*Operation, error) {
	if fn == nil || fn.Kind() != reflect.Func {
		return nil, fmt.Errorf("%w: %v is not a function", ErrSignature, fn)
	}
	if fn.IsVariadic() {
		return nil, fmt.Errorf("%w: variadic operations are not supported", ErrSignature)
	}
	if fn.NumIn() == 0 || fn.In(0) != contextType {
		return nil, fmt.Errorf("%w: first parameter must be context.Context", ErrSignature)
	}
	if n := fn.NumIn() - 1; n > MaxParams {
		return nil, fmt.Errorf("%w: %d declared, at most %d allowed", ErrTooManyParams, n, MaxParams)
	}

	switch {
	case fn.NumOut() == 1 && fn.Out(0) == errorType:
		return nil, fmt.Errorf("%w: operation returns only error", ErrUnitResult)
	case fn.NumOut() != 2 || fn.Out(1) != errorType:
		return nil, fmt.Errorf("%w: results must be (R, error)", ErrSignature)
	}

	result := fn.Out(0)
	if result.Kind() == reflect.Pointer {
		return nil, fmt.Errorf("%w: %v", ErrNullableResult, result)
	}
	if result.Kind() == reflect.Struct && result.NumField() == 0 {
		return nil, fmt.Errorf("%w: %v has no fields", ErrUnitResult, result)
	}
	if err := Supported(result); err != nil {
		return nil, fmt.Errorf("result: %w", err)
	}

	op := &Operation{
		Name:   name,
		Params: make([]reflect.Type, 0, fn.NumIn()-1),
		Result: result,
	}
	for i := 1; i < fn.NumIn(); i++ {
		p := fn.In(i)
		if err := Supported(p); err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		op.Params = append(op.Params, p)
	}
	return op, nil
}

// Type returns the interface type of the contract.
func (c *Contract) Type() reflect.Type {
	return c.typ
}

// Name returns the interface type name.
func (c *Contract) Name() string {
	return c.typ.Name()
}

// Operations returns the operations sorted by name.
func (c *Contract) Operations() []*Operation {
	out := make([]*Operation, len(c.ops))
	copy(out, c.ops)
	return out
}

// Operation looks up an operation by method name.
func (c *Contract) Operation(name string) (*Operation, bool) {
	op, ok := c.byName[name]
	return op, ok
}

// Implements checks that impl satisfies the contract interface.
func (c *Contract) Implements(impl any) error {
	if impl == nil {
		return fmt.Errorf("contract: nil implementation of %s", c.Name())
	}
	if t := reflect.TypeOf(impl); !t.Implements(c.typ) {
		return fmt.Errorf("contract: %v does not implement %s", t, c.Name())
	}
	return nil
}
