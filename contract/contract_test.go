package contract

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type Level int

type Color string

type Point struct {
	X, Y  float64
	Label *string
	When  time.Time
	Tags  []Color
	Next  *Point
	skip  chan int
}

type Calculator interface {
	Add(ctx context.Context, a, b int) (int, error)
	Echo(ctx context.Context, msg *string) (string, error)
	Points(ctx context.Context) ([]Point, error)
	Shift(ctx context.Context, p Point, dx, dy float64, lvl Level, c Color) (Point, error)
}

type calc struct{}

func (calc) Add(_ context.Context, a, b int) (int, error)       { return a + b, nil }
func (calc) Echo(_ context.Context, msg *string) (string, error) { return *msg, nil }
func (calc) Points(context.Context) ([]Point, error)            { return nil, nil }
func (calc) Shift(_ context.Context, p Point, dx, dy float64, _ Level, _ Color) (Point, error) {
	p.X += dx
	p.Y += dy
	return p, nil
}

func TestDescribeCalculator(t *testing.T) {
	c, err := For[Calculator]()
	require.NoError(t, err)
	require.Equal(t, "Calculator", c.Name())

	ops := c.Operations()
	require.Len(t, ops, 4)
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = op.Name
	}
	require.Equal(t, []string{"Add", "Echo", "Points", "Shift"}, names)

	add, ok := c.Operation("Add")
	require.True(t, ok)
	require.Equal(t, 2, add.ParamCount())
	require.Equal(t, reflect.TypeFor[int](), add.Result)

	echo, _ := c.Operation("Echo")
	require.True(t, echo.Optional(0))

	shift, _ := c.Operation("Shift")
	require.Equal(t, 5, shift.ParamCount())

	require.NoError(t, c.Implements(calc{}))
	require.Error(t, c.Implements(struct{}{}))
	require.Error(t, c.Implements(nil))
}

func TestDescribeRejects(t *testing.T) {
	type tooMany interface {
		Op(ctx context.Context, a, b, c, d, e, f int) (int, error)
	}
	type noContext interface {
		Op(a int) (int, error)
	}
	type onlyError interface {
		Op(ctx context.Context) error
	}
	type emptyStruct interface {
		Op(ctx context.Context) (struct{}, error)
	}
	type nullable interface {
		Op(ctx context.Context) (*int, error)
	}
	type mapParam interface {
		Op(ctx context.Context, m map[string]int) (int, error)
	}
	type chanResult interface {
		Op(ctx context.Context) ([]chan int, error)
	}
	type noError interface {
		Op(ctx context.Context) int
	}
	type doublePointer interface {
		Op(ctx context.Context, p **int) (int, error)
	}
	type nestedIface interface {
		Op(ctx context.Context, v struct{ Any any }) (int, error)
	}

	cases := []struct {
		name string
		typ  reflect.Type
		want error
	}{
		{"too many params", reflect.TypeFor[tooMany](), ErrTooManyParams},
		{"missing context", reflect.TypeFor[noContext](), ErrSignature},
		{"error only", reflect.TypeFor[onlyError](), ErrUnitResult},
		{"empty struct result", reflect.TypeFor[emptyStruct](), ErrUnitResult},
		{"pointer result", reflect.TypeFor[nullable](), ErrNullableResult},
		{"map param", reflect.TypeFor[mapParam](), ErrUnsupportedType},
		{"chan element", reflect.TypeFor[chanResult](), ErrUnsupportedType},
		{"missing error", reflect.TypeFor[noError](), ErrSignature},
		{"pointer to pointer", reflect.TypeFor[doublePointer](), ErrUnsupportedType},
		{"interface field", reflect.TypeFor[nestedIface](), ErrUnsupportedType},
		{"not an interface", reflect.TypeFor[calc](), ErrNotInterface},
		{"no methods", reflect.TypeFor[any](), ErrNoOperations},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Describe(tc.typ)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestDescribeFuncParamCount(t *testing.T) {
	for n := 0; n <= MaxParams+2; n++ {
		in := []reflect.Type{contextType}
		for i := 0; i < n; i++ {
			in = append(in, reflect.TypeFor[string]())
		}
		fn := reflect.FuncOf(in, []reflect.Type{reflect.TypeFor[bool](), errorType}, false)

		op, err := DescribeFunc("Op", fn)
		if n > MaxParams {
			require.ErrorIs(t, err, ErrTooManyParams, "n=%d", n)
			continue
		}
		require.NoError(t, err, "n=%d", n)
		require.Equal(t, n, op.ParamCount())
	}
}

func TestSupported(t *testing.T) {
	ok := []reflect.Type{
		reflect.TypeFor[bool](),
		reflect.TypeFor[uint16](),
		reflect.TypeFor[Level](),
		reflect.TypeFor[[]byte](),
		reflect.TypeFor[[3]Color](),
		reflect.TypeFor[*Point](),
		reflect.TypeFor[time.Time](),
		reflect.TypeFor[[]*string](),
	}
	for _, typ := range ok {
		require.NoError(t, Supported(typ), "%v", typ)
	}

	bad := []reflect.Type{
		reflect.TypeFor[uintptr](),
		reflect.TypeFor[complex128](),
		reflect.TypeFor[func()](),
		reflect.TypeFor[map[string]string](),
		reflect.TypeFor[any](),
	}
	for _, typ := range bad {
		require.ErrorIs(t, Supported(typ), ErrUnsupportedType, "%v", typ)
	}
}
