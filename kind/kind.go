// Package kind defines ZMEM's closed set of field kinds.
//
// Every layout, sizing, encoding and decoding code path branches on a Kind
// rather than on a type hierarchy (spec.md §9, "Polymorphism over field
// kind"): a kind enum with a payload, not virtual dispatch, keeps the
// layout algebra legible and avoids heap-allocated dispatch on the hot
// path — the same reason the teacher's format.EncodingType /
// format.CompressionType are plain enums with a String() method rather
// than interfaces.
package kind

// Kind classifies a single field (or a whole type, at the top level) into
// one of the closed set of shapes spec.md §9 names.
type Kind uint8

const (
	// Invalid is the zero value; a Kind should never be left as Invalid
	// past classification.
	Invalid Kind = iota

	// Primitive is a fixed-size scalar: bool, int8/16/32/64, uint8/16/32/64,
	// float32/64, or a 128-bit integer pair.
	Primitive

	// FixedString is a string stored in a fixed-size, null-terminated byte
	// region (zmem:"strlen=N" struct tag).
	FixedString

	// FixedArray is a Go array type [N]T where T is fixed.
	FixedArray

	// FixedAggregate is a struct all of whose fields are fixed.
	FixedAggregate

	// OptionalFixed is zmem.Optional[T] where T is fixed.
	OptionalFixed

	// VectorFixed is a Go slice []T where T is fixed.
	VectorFixed

	// VectorVariable is a Go slice []T where T is variable.
	VectorVariable

	// VariableString is a Go string field with no strlen tag.
	VariableString

	// MapFixed is a Go map[K]V where V is fixed.
	MapFixed

	// MapVariable is a Go map[K]V where V is variable.
	MapVariable

	// VariableAggregate is a struct with at least one variable field.
	VariableAggregate

	// FixedUnion is a struct with zmem:"tag" / zmem:"variant=N" field tags
	// where every variant is fixed.
	FixedUnion

	// VariableUnion is a struct with zmem:"tag" / zmem:"variant=N" field
	// tags where at least one variant is variable.
	VariableUnion
)

// String implements fmt.Stringer for diagnostics and test failure messages.
func (k Kind) String() string {
	switch k {
	case Primitive:
		return "primitive"
	case FixedString:
		return "fixed-string"
	case FixedArray:
		return "fixed-array"
	case FixedAggregate:
		return "fixed-aggregate"
	case OptionalFixed:
		return "optional-fixed"
	case VectorFixed:
		return "vector-fixed"
	case VectorVariable:
		return "vector-variable"
	case VariableString:
		return "variable-string"
	case MapFixed:
		return "map-fixed"
	case MapVariable:
		return "map-variable"
	case VariableAggregate:
		return "variable-aggregate"
	case FixedUnion:
		return "fixed-union"
	case VariableUnion:
		return "variable-union"
	default:
		return "invalid"
	}
}

// IsFixed reports whether values of this kind have a compile-time-constant
// encoded size (spec.md §4.1).
func (k Kind) IsFixed() bool {
	switch k {
	case Primitive, FixedString, FixedArray, FixedAggregate, OptionalFixed, FixedUnion:
		return true
	default:
		return false
	}
}

// IsVariable reports the complement of IsFixed for a classified Kind.
func (k Kind) IsVariable() bool {
	return k != Invalid && !k.IsFixed()
}
