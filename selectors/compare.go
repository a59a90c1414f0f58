package selectors

import (
	"math"
	"reflect"
)

// Identity is the default comparison. It reports whether a and b are the same value in the
// reference sense:
//   - pointers, maps, channels: same address
//   - slices: same backing array start and same length
//   - strings, numbers, booleans: equal values (NaN is identical to NaN)
//   - structs, arrays: every field / element identical
//   - interfaces: same dynamic type and identical dynamic values
//   - funcs: identical only when both are nil
func Identity[V any](a, b V) bool {
	return identical(reflect.ValueOf(&a).Elem(), reflect.ValueOf(&b).Elem())
}

// Shallow compares one container level: slices and arrays element by element, maps key by key,
// structs field by field, and pointers by the identity of their pointee's fields.
// The elements themselves are compared with Identity.
func Shallow[V any](a, b V) bool {
	return shallowEqual(reflect.ValueOf(&a).Elem(), reflect.ValueOf(&b).Elem())
}

// Equal compares comparable values with ==.
func Equal[V comparable](a, b V) bool {
	return a == b
}

// Deep compares values with reflect.DeepEqual. It is the most expensive strategy.
func Deep[V any](a, b V) bool {
	return reflect.DeepEqual(a, b)
}

func identical(a, b reflect.Value) bool {
	if a.Kind() == reflect.Interface {
		if a.IsNil() || b.IsNil() {
			return a.IsNil() && b.IsNil()
		}

		a, b = a.Elem(), b.Elem()
		if a.Type() != b.Type() {
			return false
		}
	}

	switch a.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.UnsafePointer:
		return a.Pointer() == b.Pointer()

	case reflect.Slice:
		return a.Pointer() == b.Pointer() && a.Len() == b.Len() && a.IsNil() == b.IsNil()

	case reflect.Func:
		return a.IsNil() && b.IsNil()

	case reflect.Bool:
		return a.Bool() == b.Bool()

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return a.Int() == b.Int()

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return a.Uint() == b.Uint()

	case reflect.Float32, reflect.Float64:
		x, y := a.Float(), b.Float()
		return x == y || (math.IsNaN(x) && math.IsNaN(y))

	case reflect.Complex64, reflect.Complex128:
		return a.Complex() == b.Complex()

	case reflect.String:
		return a.String() == b.String()

	case reflect.Struct:
		for i := 0; i < a.NumField(); i++ {
			if !identical(a.Field(i), b.Field(i)) {
				return false
			}
		}
		return true

	case reflect.Array:
		for i := 0; i < a.Len(); i++ {
			if !identical(a.Index(i), b.Index(i)) {
				return false
			}
		}
		return true

	case reflect.Invalid:
		return !b.IsValid()

	default:
		return false
	}
}

func shallowEqual(a, b reflect.Value) bool {
	if identical(a, b) {
		return true
	}

	if a.Kind() == reflect.Interface {
		if a.IsNil() || b.IsNil() {
			return false
		}

		a, b = a.Elem(), b.Elem()
		if a.Type() != b.Type() {
			return false
		}
	}

	switch a.Kind() {
	case reflect.Slice, reflect.Array:
		if a.Len() != b.Len() {
			return false
		}
		for i := 0; i < a.Len(); i++ {
			if !identical(a.Index(i), b.Index(i)) {
				return false
			}
		}
		return true

	case reflect.Map:
		if a.IsNil() != b.IsNil() || a.Len() != b.Len() {
			return false
		}
		iter := a.MapRange()
		for iter.Next() {
			other := b.MapIndex(iter.Key())
			if !other.IsValid() || !identical(iter.Value(), other) {
				return false
			}
		}
		return true

	case reflect.Pointer:
		if a.IsNil() || b.IsNil() {
			return false
		}
		return identical(a.Elem(), b.Elem())

	default:
		return false
	}
}
