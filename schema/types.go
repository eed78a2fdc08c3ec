// Package schema implements ZMEM's type classifier (spec.md §4.1): given a
// Go type, it decides whether values of that type are fixed or variable,
// and for fixed types reports their inline size and alignment. It is
// ZMEM's realization of the "external reflection collaborator" spec.md §9
// treats as an out-of-scope capability — here backed by the standard
// reflect package plus zmem struct tags, with a registration escape hatch
// for callers who want to bypass reflection.
package schema

import (
	"reflect"
	"sync"

	"github.com/zmem-org/ZMEM/internal/hash"
	"github.com/zmem-org/ZMEM/kind"
)

// TypeInfo is the classifier's verdict for one Go type: its Kind, its
// inline size/alignment (meaningful for fixed kinds, and for the inline
// section of a variable aggregate), and enough structural detail for the
// predictor, writer, reader and view to walk it without re-deriving
// anything from reflect.Type a second time.
type TypeInfo struct {
	GoType reflect.Type
	Kind   kind.Kind

	// Size is the fixed inline size in bytes: the full size for a fixed
	// type, and 16 (the inline reference footprint) for vectors, variable
	// strings and maps. It is 0 for VariableAggregate and VariableUnion,
	// whose inline section size lives in InlineSize / Union.InlineSize.
	Size int
	// Align is the type's wire alignment.
	Align int

	// Elem describes the element type for FixedArray, VectorFixed,
	// VectorVariable, OptionalFixed and MapFixed/MapVariable's value.
	Elem *TypeInfo
	// Key describes the key type for MapFixed/MapVariable.
	Key *TypeInfo
	// ArrayLen is the fixed array length for FixedArray.
	ArrayLen int
	// StrLen is the fixed string length for FixedString.
	StrLen int

	// Fields lists the ordered fields of a FixedAggregate or
	// VariableAggregate, in Go struct declaration order.
	Fields []Field
	// FieldOffsets holds each Fields entry's byte offset within the
	// inline section (the full layout for a FixedAggregate, or the
	// fixed-prefix-plus-inline-reference layout for a VariableAggregate).
	FieldOffsets []int
	// InlineSize is the padded-to-8 inline section size of a
	// VariableAggregate (the region addressed by byte-8-relative
	// offsets, before the variable section begins). Unused for
	// FixedAggregate, whose full size already lives in Size.
	InlineSize int

	// Union holds the variant table for FixedUnion/VariableUnion.
	Union *UnionInfo

	// Fingerprint is the xxHash64 of this type's field signature, used as
	// the optional on-wire schema guard (codec.WithSchemaCheck on the
	// writer, codec.WithVerifySchema on the reader). The schema cache is
	// keyed by reflect.Type, not by Fingerprint.
	Fingerprint uint64
}

// Field is one named, ordered field of an aggregate type.
type Field struct {
	Name    string
	Type    *TypeInfo
	GoIndex []int // reflect.Value.FieldByIndex path
}

var (
	cacheMu sync.RWMutex
	cache   = map[reflect.Type]*TypeInfo{}
)

// Of classifies t, consulting and populating a process-wide cache keyed by
// reflect.Type. Manifests registered via Register take priority over
// reflection.
func Of(t reflect.Type) (*TypeInfo, error) {
	cacheMu.RLock()
	info, ok := cache[t]
	cacheMu.RUnlock()
	if ok {
		return info, nil
	}

	info, err := classify(t, map[reflect.Type]*TypeInfo{})
	if err != nil {
		return nil, err
	}

	cacheMu.Lock()
	cache[t] = info
	cacheMu.Unlock()

	return info, nil
}

// Register inserts a precomputed TypeInfo into the classifier's cache,
// bypassing reflection for t. This is ZMEM's manifest escape hatch
// (spec.md §9: "An implementation that lacks compile-time reflection can
// require per-type manifests to be registered by the user, preserving
// all other contracts"); Go has reflection, so in this codec Register is
// an optional override rather than a requirement — useful for a type
// classify cannot infer correctly, or to skip classification cost for a
// hot-path type known ahead of time.
func Register(t reflect.Type, info *TypeInfo) {
	cacheMu.Lock()
	cache[t] = info
	cacheMu.Unlock()
}

// signatureFingerprint hashes a type's field signature string into the
// xxHash64 used by the optional wire guard.
func signatureFingerprint(sig string) uint64 {
	return hash.Fingerprint(sig)
}
