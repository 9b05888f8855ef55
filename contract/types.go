package contract

import (
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

var (
	jsonMarshalerType   = reflect.TypeFor[json.Marshaler]()
	jsonUnmarshalerType = reflect.TypeFor[json.Unmarshaler]()
	textMarshalerType   = reflect.TypeFor[encoding.TextMarshaler]()
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
)

// Supported checks that t belongs to the supported type set:
//
//   - scalars: bool, integers, floats, string, and named types of those kinds
//   - enumerations: named scalars, or types with MarshalText/UnmarshalText
//   - aggregates: structs of supported exported fields, or types with
//     MarshalJSON/UnmarshalJSON
//   - sequences: slices and arrays of a supported element
//   - optionals: a pointer to any of the above
func Supported(t reflect.Type) error {
	return supported(t, make(map[reflect.Type]bool))
}

func supported(t reflect.Type, seen map[reflect.Type]bool) error {
	if seen[t] {
		return nil
	}
	if t.Kind() == reflect.Pointer {
		if t.Elem().Kind() == reflect.Pointer {
			return fmt.Errorf("%w: %v (pointer to pointer)", ErrUnsupportedType, t)
		}
		return supported(t.Elem(), seen)
	}
	if codes(t, jsonMarshalerType, jsonUnmarshalerType) || codes(t, textMarshalerType, textUnmarshalerType) {
		return nil
	}

	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return nil
	case reflect.Slice, reflect.Array:
		if err := supported(t.Elem(), seen); err != nil {
			return fmt.Errorf("element of %v: %w", t, err)
		}
		return nil
	case reflect.Struct:
		seen[t] = true
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() || jsonName(f) == "-" {
				continue
			}
			if err := supported(f.Type, seen); err != nil {
				return fmt.Errorf("field %s.%s: %w", t.Name(), f.Name, err)
			}
		}
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnsupportedType, t)
}

// codes reports whether values of t can be encoded with m and decoded with u.
func codes(t, m, u reflect.Type) bool {
	pt := reflect.PointerTo(t)
	return (t.Implements(m) || pt.Implements(m)) && pt.Implements(u)
}

func jsonName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	name, _, _ := strings.Cut(tag, ",")
	return name
}
