package schema

import "reflect"

// Optional represents a value that may be absent (spec.md §3,
// "Optional<T>"). Its wire layout is a 1-byte present flag, padding to
// align(T), then T; when absent every byte (flag, pad, value) is zero,
// which is what gives two independently-constructed absent Optionals of
// the same T byte-identical output (spec.md §8, "Absent optional
// determinism").
type Optional[T any] struct {
	Present bool
	Value   T
}

// NewOptional returns a present Optional wrapping value.
func NewOptional[T any](value T) Optional[T] {
	return Optional[T]{Present: true, Value: value}
}

// isOptionalType reports whether t is an instantiation of Optional[_], by
// structural shape: exactly two exported fields, "Present" (bool) followed
// by "Value", declared in this package. Go's reflect does not expose
// generic type identity directly, so classification keys off shape rather
// than name-matching reflect.Type.Name().
func isOptionalType(t reflect.Type) bool {
	if t.Kind() != reflect.Struct || t.NumField() != 2 {
		return false
	}

	f0, f1 := t.Field(0), t.Field(1)

	return t.PkgPath() == reflect.TypeOf(Optional[bool]{}).PkgPath() && f0.Name == "Present" && f0.Type.Kind() == reflect.Bool && f1.Name == "Value"
}
