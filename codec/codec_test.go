package codec

import (
	"math"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zmem-org/ZMEM/endian"
	"github.com/zmem-org/ZMEM/errs"
	"github.com/zmem-org/ZMEM/predict"
	"github.com/zmem-org/ZMEM/schema"
)

func classify(t *testing.T, v any) *schema.TypeInfo {
	t.Helper()

	info, err := schema.Of(reflect.TypeOf(v))
	require.NoError(t, err)

	return info
}

func roundTrip[T any](t *testing.T, value T) T {
	t.Helper()

	info := classify(t, value)

	buf, err := Encode(reflect.ValueOf(value), info)
	require.NoError(t, err)

	var out T
	dst := reflect.ValueOf(&out).Elem()
	require.NoError(t, Decode(buf, dst, info))

	return out
}

// =============================================================================
// spec.md §8 scenario 1: fixed 2-float struct
// =============================================================================

type specPoint struct {
	X float32
	Y float32
}

func TestEncode_SpecScenario1_FixedPoint(t *testing.T) {
	info := classify(t, specPoint{})

	buf, err := Encode(reflect.ValueOf(specPoint{X: 1.0, Y: 2.0}), info)
	require.NoError(t, err)

	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x3F, 0x00, 0x00, 0x00, 0x40}, buf)
}

// =============================================================================
// spec.md §8 scenario 2: variable struct with an inner vector
// =============================================================================

type specEntity struct {
	ID      uint64
	Weights []float64
}

func TestEncode_SpecScenario2_EntityWithWeights(t *testing.T) {
	info := classify(t, specEntity{})

	buf, err := Encode(reflect.ValueOf(specEntity{ID: 123, Weights: []float64{1, 2, 3}}), info)
	require.NoError(t, err)

	require.Len(t, buf, 56)
	assert.Equal(t, uint64(48), endian.Little.Uint64(buf[0:8]), "total content size")
	assert.Equal(t, uint64(123), endian.Little.Uint64(buf[8:16]), "id")
	assert.Equal(t, uint64(24), endian.Little.Uint64(buf[16:24]), "weights offset, relative to byte 8")
	assert.Equal(t, uint64(3), endian.Little.Uint64(buf[24:32]), "weights count")
	assert.Equal(t, 1.0, math.Float64frombits(endian.Little.Uint64(buf[32:40])))
	assert.Equal(t, 2.0, math.Float64frombits(endian.Little.Uint64(buf[40:48])))
	assert.Equal(t, 3.0, math.Float64frombits(endian.Little.Uint64(buf[48:56])))
}

func TestDecode_SpecScenario2_EntityWithWeights(t *testing.T) {
	out := roundTrip(t, specEntity{ID: 123, Weights: []float64{1, 2, 3}})

	assert.Equal(t, uint64(123), out.ID)
	assert.Equal(t, []float64{1, 2, 3}, out.Weights)
}

// =============================================================================
// spec.md §8 scenario 3: vector of variable elements, each self-contained
// =============================================================================

func TestRoundTrip_VectorOfVariableElements(t *testing.T) {
	type holder struct {
		Items []specEntity
	}

	in := holder{Items: []specEntity{
		{ID: 1, Weights: []float64{0.5}},
		{ID: 2, Weights: []float64{0.1, 0.2}},
	}}

	out := roundTrip(t, in)

	require.Len(t, out.Items, 2)
	assert.Equal(t, uint64(1), out.Items[0].ID)
	assert.Equal(t, []float64{0.5}, out.Items[0].Weights)
	assert.Equal(t, uint64(2), out.Items[1].ID)
	assert.Equal(t, []float64{0.1, 0.2}, out.Items[1].Weights)
}

func TestEncode_VectorOfVariableElements_EachCarriesOwnHeader(t *testing.T) {
	type holder struct {
		Items []specEntity
	}

	info := classify(t, holder{})
	buf, err := Encode(reflect.ValueOf(holder{Items: []specEntity{{ID: 9, Weights: []float64{1}}}}), info)
	require.NoError(t, err)

	// content starts at byte 8; field ref at inline offset 0 points to the
	// variable section, which opens with (count+1) byte-offsets followed
	// by a parallel table of count true element counts/lengths.
	refOffset := endian.Little.Uint64(buf[8:16])
	elementsBase := 8 + refOffset
	tableLen := uint64((1+1)*8 + 1*8) // (count=1 + 1) offsets, plus count=1 lengths

	elemStart := endian.Little.Uint64(buf[elementsBase : elementsBase+8])
	assert.Equal(t, uint64(0), elemStart)

	elemBuf := buf[elementsBase+tableLen:]
	elemSize := endian.Little.Uint64(elemBuf[0:8])
	assert.Greater(t, elemSize, uint64(0), "each vector-of-variable element carries its own size header")
}

// =============================================================================
// Fixed arrays, strings, optionals
// =============================================================================

func TestRoundTrip_FixedArray(t *testing.T) {
	type withArray struct {
		Matrix [4]int32
	}

	out := roundTrip(t, withArray{Matrix: [4]int32{1, 2, 3, 4}})
	assert.Equal(t, [4]int32{1, 2, 3, 4}, out.Matrix)
}

type withFixedStr struct {
	Name string `zmem:"strlen=8"`
}

func TestRoundTrip_FixedString(t *testing.T) {
	out := roundTrip(t, withFixedStr{Name: "abc"})
	assert.Equal(t, "abc", out.Name)
}

func TestEncode_FixedString_TooLongRejected(t *testing.T) {
	info := classify(t, withFixedStr{})

	_, err := Encode(reflect.ValueOf(withFixedStr{Name: "this name is way too long"}), info)
	assert.Error(t, err)
}

type withOptional struct {
	Count schema.Optional[int32]
}

func TestRoundTrip_OptionalPresent(t *testing.T) {
	out := roundTrip(t, withOptional{Count: schema.NewOptional(int32(42))})

	assert.True(t, out.Count.Present)
	assert.Equal(t, int32(42), out.Count.Value)
}

func TestRoundTrip_OptionalAbsent(t *testing.T) {
	out := roundTrip(t, withOptional{})

	assert.False(t, out.Count.Present)
	assert.Equal(t, int32(0), out.Count.Value)
}

func TestEncode_AbsentOptional_IsAllZero(t *testing.T) {
	info := classify(t, withOptional{})

	buf, err := Encode(reflect.ValueOf(withOptional{}), info)
	require.NoError(t, err)

	for _, b := range buf {
		assert.Zero(t, b, "an absent optional must be all-zero bytes, including padding")
	}
}

// =============================================================================
// Unions
// =============================================================================

type shapeUnion struct {
	Tag    uint8   `zmem:"tag"`
	Circle float64 `zmem:"variant=0"`
	Square float64 `zmem:"variant=1"`
}

func TestRoundTrip_FixedUnion(t *testing.T) {
	out := roundTrip(t, shapeUnion{Tag: 1, Square: 9.5})

	assert.Equal(t, uint8(1), out.Tag)
	assert.Equal(t, 9.5, out.Square)
	assert.Zero(t, out.Circle)
}

type variableUnion struct {
	Tag  uint8   `zmem:"tag"`
	N    int64   `zmem:"variant=0"`
	Nums []int64 `zmem:"variant=1"`
}

func TestRoundTrip_VariableUnion_FixedVariantActive(t *testing.T) {
	out := roundTrip(t, variableUnion{Tag: 0, N: 7})

	assert.Equal(t, int64(7), out.N)
	assert.Empty(t, out.Nums)
}

func TestRoundTrip_VariableUnion_VariableVariantActive(t *testing.T) {
	out := roundTrip(t, variableUnion{Tag: 1, Nums: []int64{1, 2, 3}})

	assert.Equal(t, []int64{1, 2, 3}, out.Nums)
}

// =============================================================================
// Maps
// =============================================================================

func TestRoundTrip_MapFixed(t *testing.T) {
	type withMap struct {
		Scores map[string]int64
	}

	out := roundTrip(t, withMap{Scores: map[string]int64{"b": 2, "a": 1, "c": 3}})
	assert.Equal(t, map[string]int64{"a": 1, "b": 2, "c": 3}, out.Scores)
}

func TestEncode_MapFixed_SortedByKey(t *testing.T) {
	type withMap struct {
		Scores map[uint32]uint32
	}

	info := classify(t, withMap{})
	buf, err := Encode(reflect.ValueOf(withMap{Scores: map[uint32]uint32{3: 30, 1: 10, 2: 20}}), info)
	require.NoError(t, err)

	// inline ref -> variable section: u64 count, then sorted (key,value) pairs.
	refOffset := endian.Little.Uint64(buf[8:16])
	section := buf[8+refOffset:]
	count := endian.Little.Uint64(section[0:8])
	require.Equal(t, uint64(3), count)

	k0 := endian.Little.Uint32(section[8:12])
	k1 := endian.Little.Uint32(section[16:20])
	k2 := endian.Little.Uint32(section[24:28])
	assert.Equal(t, []uint32{1, 2, 3}, []uint32{k0, k1, k2})
}

func TestRoundTrip_MapVariable(t *testing.T) {
	type withMap struct {
		Lists map[uint32][]int64
	}

	out := roundTrip(t, withMap{Lists: map[uint32][]int64{
		2: {4, 5},
		1: {1, 2, 3},
	}})

	assert.Equal(t, map[uint32][]int64{1: {1, 2, 3}, 2: {4, 5}}, out.Lists)
}

func TestDecode_MapFixed_RejectsUnsortedInput(t *testing.T) {
	type withMap struct {
		Scores map[uint32]uint32
	}

	info := classify(t, withMap{})
	buf, err := Encode(reflect.ValueOf(withMap{Scores: map[uint32]uint32{1: 10, 2: 20}}), info)
	require.NoError(t, err)

	// Swap the two sorted entries (each entry is 4+4=8 bytes) to desync order.
	refOffset := endian.Little.Uint64(buf[8:16])
	entriesStart := 8 + refOffset + 8
	entry0 := append([]byte(nil), buf[entriesStart:entriesStart+8]...)
	entry1 := append([]byte(nil), buf[entriesStart+8:entriesStart+16]...)
	copy(buf[entriesStart:entriesStart+8], entry1)
	copy(buf[entriesStart+8:entriesStart+16], entry0)

	var out withMap
	err = Decode(buf, reflect.ValueOf(&out).Elem(), info)
	assert.Error(t, err)
}

// =============================================================================
// Determinism and preallocated vs. growing parity
// =============================================================================

func TestEncode_Deterministic(t *testing.T) {
	info := classify(t, specEntity{})
	v := specEntity{ID: 5, Weights: []float64{1, 2}}

	a, err := Encode(reflect.ValueOf(v), info)
	require.NoError(t, err)
	b, err := Encode(reflect.ValueOf(v), info)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestEncodePreallocated_MatchesGrowing(t *testing.T) {
	info := classify(t, specEntity{})
	v := specEntity{ID: 5, Weights: []float64{1, 2, 3, 4}}

	grown, err := Encode(reflect.ValueOf(v), info)
	require.NoError(t, err)

	prealloc, err := EncodePreallocated(reflect.ValueOf(v), info)
	require.NoError(t, err)

	assert.Equal(t, grown, prealloc)
}

func TestEncode_WithMaxSize_RejectsOversized(t *testing.T) {
	info := classify(t, specEntity{})
	v := specEntity{ID: 1, Weights: []float64{1, 2, 3, 4, 5, 6, 7, 8}}

	_, err := Encode(reflect.ValueOf(v), info, WithMaxSize(16))
	assert.Error(t, err)
}

// =============================================================================
// Nested aggregates, empty vectors
// =============================================================================

func TestRoundTrip_NestedVariableAggregate(t *testing.T) {
	type outer struct {
		Label string
		Inner specEntity
	}

	out := roundTrip(t, outer{Label: "n", Inner: specEntity{ID: 1, Weights: []float64{9}}})

	assert.Equal(t, "n", out.Label)
	assert.Equal(t, uint64(1), out.Inner.ID)
	assert.Equal(t, []float64{9}, out.Inner.Weights)
}

func TestRoundTrip_EmptyVector(t *testing.T) {
	out := roundTrip(t, specEntity{ID: 0, Weights: []float64{}})

	assert.Equal(t, uint64(0), out.ID)
	assert.Empty(t, out.Weights)
}

// =============================================================================
// VariableUnion's active variant narrower than MaxSlot must still be
// zero-padded to MaxSlot, keeping Encode's output exactly predict.Value
// bytes long (spec.md §8's size-exactness invariant).
// =============================================================================

func TestEncode_VariableUnion_FixedVariantActive_MatchesPredictedSize(t *testing.T) {
	info := classify(t, variableUnion{})
	v := variableUnion{Tag: 0, N: 7}

	predicted, err := predict.Value(reflect.ValueOf(v), info)
	require.NoError(t, err)

	buf, err := Encode(reflect.ValueOf(v), info)
	require.NoError(t, err)

	assert.Len(t, buf, predicted)
}

func TestEncodePreallocated_VariableUnion_FixedVariantActive_DoesNotPanic(t *testing.T) {
	info := classify(t, variableUnion{})
	v := variableUnion{Tag: 0, N: 7}

	assert.NotPanics(t, func() {
		_, err := EncodePreallocated(reflect.ValueOf(v), info)
		require.NoError(t, err)
	})
}

// =============================================================================
// A vector of variable elements whose own element kind is itself a
// vector (VectorFixed/VectorVariable) is not self-describing: its true
// element count must survive the outer offset table's parallel lengths,
// not be recovered from the element's byte span.
// =============================================================================

func TestRoundTrip_NestedVectorOfFixedVectors(t *testing.T) {
	type withMatrix struct {
		Rows [][]int64
	}

	out := roundTrip(t, withMatrix{Rows: [][]int64{{1, 2, 3}, {4, 5}, {}}})

	assert.Equal(t, [][]int64{{1, 2, 3}, {4, 5}, {}}, out.Rows)
}

func TestRoundTrip_NestedVectorOfVariableVectors(t *testing.T) {
	type withCube struct {
		Blocks [][][]int64
	}

	out := roundTrip(t, withCube{Blocks: [][][]int64{{{1}, {2, 3}}, {{4, 5, 6}}}})

	assert.Equal(t, [][][]int64{{{1}, {2, 3}}, {{4, 5, 6}}}, out.Blocks)
}

// =============================================================================
// Schema-fingerprint guard
// =============================================================================

func TestEncode_SchemaCheck_PrefixesFingerprint(t *testing.T) {
	info := classify(t, specPoint{})
	v := specPoint{X: 1, Y: 2}

	plain, err := Encode(reflect.ValueOf(v), info)
	require.NoError(t, err)

	checked, err := Encode(reflect.ValueOf(v), info, WithSchemaCheck())
	require.NoError(t, err)

	require.Len(t, checked, len(plain)+8)
	assert.Equal(t, info.Fingerprint, endian.Little.Uint64(checked[:8]))
	assert.Equal(t, plain, checked[8:])
}

func TestDecode_VerifySchema_RoundTrip(t *testing.T) {
	info := classify(t, specEntity{})
	v := specEntity{ID: 1, Weights: []float64{1, 2}}

	buf, err := Encode(reflect.ValueOf(v), info, WithSchemaCheck())
	require.NoError(t, err)

	var out specEntity
	dst := reflect.ValueOf(&out).Elem()
	require.NoError(t, Decode(buf, dst, info, WithVerifySchema()))
	assert.Equal(t, v, out)
}

func TestDecode_VerifySchema_RejectsMismatchedType(t *testing.T) {
	entityInfo := classify(t, specEntity{})
	pointInfo := classify(t, specPoint{})

	buf, err := Encode(reflect.ValueOf(specEntity{ID: 1}), entityInfo, WithSchemaCheck())
	require.NoError(t, err)

	var out specPoint
	dst := reflect.ValueOf(&out).Elem()
	err = Decode(buf, dst, pointInfo, WithVerifySchema())
	assert.Error(t, err)
}

// =============================================================================
// Header validation
// =============================================================================

func TestDecode_RejectsHeaderSizeNotMultipleOf8(t *testing.T) {
	info := classify(t, specEntity{})

	buf, err := Encode(reflect.ValueOf(specEntity{ID: 1, Weights: []float64{1}}), info)
	require.NoError(t, err)

	endian.Little.PutUint64(buf[:8], 13)

	var out specEntity
	dst := reflect.ValueOf(&out).Elem()
	assert.Error(t, Decode(buf, dst, info))
}

// =============================================================================
// MapVariable duplicate and unsorted key rejection
// =============================================================================

func TestDecode_MapVariable_RejectsDuplicateKey(t *testing.T) {
	type withMap struct {
		Lists map[uint32][]int64
	}

	info := classify(t, withMap{})

	buf, err := Encode(reflect.ValueOf(withMap{Lists: map[uint32][]int64{1: {1}, 2: {2}}}), info)
	require.NoError(t, err)

	// Layout: buf[0:8] root size header, buf[8:24] field ref (offset=16,
	// len=2), buf[24:32] the map's own self-contained size header,
	// buf[32:40] entry count, buf[40:44] key0=1, buf[44:60] ref0,
	// buf[60:64] key1=2, buf[64:80] ref1. Duplicate key1 onto key0.
	endian.Little.PutUint32(buf[60:64], 1)

	var out withMap
	dst := reflect.ValueOf(&out).Elem()
	err = Decode(buf, dst, info)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrMapDuplicateKey)
}
