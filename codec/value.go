package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
)

// ErrNull is returned when a null value arrives for a non-optional type.
var ErrNull = errors.New("codec: null value for non-optional type")

var nullValue = []byte("null")

// EncodeValue encodes one parameter or result value. NaN and infinite floats
// have no JSON form and fail here.
func EncodeValue(v any) (json.RawMessage, error) {
	b, err := jsonAPI.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: encode %T: %w", v, err)
	}
	return b, nil
}

// DecodeValue decodes data into a new value of type t.
// Null (or an absent value) is accepted only when t is a pointer or a slice;
// both decode to nil, so a nil slice survives the round trip.
func DecodeValue(data []byte, t reflect.Type) (reflect.Value, error) {
	if IsNull(data) {
		if k := t.Kind(); k != reflect.Pointer && k != reflect.Slice {
			return reflect.Value{}, fmt.Errorf("%w: %v", ErrNull, t)
		}
		return reflect.Zero(t), nil
	}
	ptr := reflect.New(t)
	if err := jsonAPI.Unmarshal(data, ptr.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("codec: decode %v: %w", t, err)
	}
	return ptr.Elem(), nil
}

// DecodeInto decodes data into the value pointed to by out.
func DecodeInto(data []byte, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("codec: decode target must be a non-nil pointer, got %T", out)
	}
	v, err := DecodeValue(data, rv.Type().Elem())
	if err != nil {
		return err
	}
	rv.Elem().Set(v)
	return nil
}

// IsNull reports whether data is empty or the JSON literal null.
func IsNull(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, nullValue)
}
