package schema

import "reflect"

// Int128 and UInt128 are ZMEM's 128-bit primitive types (spec.md §3,
// "Fixed primitive: 1/2/4/8/16 bytes"). Go has no native 128-bit integer,
// so ZMEM represents one as a little-endian pair of 64-bit halves, wire
// size 16 and wire alignment 16 (spec.md §5 calls out hosts must align
// mappings "up to 16 for types containing 128-bit integers").
type Int128 struct {
	Lo uint64 // low 64 bits
	Hi uint64 // high 64 bits
}

// UInt128 is the unsigned counterpart of Int128. Both share the same wire
// shape; the distinction only matters to application code that interprets
// the bits.
type UInt128 struct {
	Lo uint64
	Hi uint64
}

var (
	int128Type  = reflect.TypeOf(Int128{})
	uint128Type = reflect.TypeOf(UInt128{})
)

// primitiveLayout returns (size, align, ok) for a reflect.Kind that maps
// directly onto one of ZMEM's fixed primitives, per the size/alignment
// table in spec.md §3.
func primitiveLayout(t reflect.Type) (size, align int, ok bool) {
	switch t {
	case int128Type, uint128Type:
		return 16, 16, true
	}

	switch t.Kind() {
	case reflect.Bool, reflect.Int8, reflect.Uint8:
		return 1, 1, true
	case reflect.Int16, reflect.Uint16:
		return 2, 2, true
	case reflect.Int32, reflect.Uint32, reflect.Float32:
		return 4, 4, true
	case reflect.Int64, reflect.Uint64, reflect.Float64:
		return 8, 8, true
	case reflect.Int, reflect.Uint:
		// Not wire-portable (host word size varies); ZMEM treats these as
		// 64-bit on the wire, matching the "target hosts are little-endian,
		// trivially-copyable" assumption of spec.md §1 for the common
		// 64-bit deployment target.
		return 8, 8, true
	default:
		return 0, 0, false
	}
}

// isPrimitiveKind reports whether t's reflect.Kind (or exact type, for the
// 128-bit pairs) is one of ZMEM's fixed primitives. Enums (named integer
// types) also satisfy this — classification keys off the underlying kind,
// not the declared type identity, per spec.md §4.1 ("Primitive, fixed
// string, enum → fixed").
func isPrimitiveKind(t reflect.Type) bool {
	_, _, ok := primitiveLayout(t)
	return ok
}
