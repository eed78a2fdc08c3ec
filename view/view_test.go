package view

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zmem-org/ZMEM/codec"
	"github.com/zmem-org/ZMEM/schema"
)

type innerPoint struct {
	X float32
	Y float32
}

type viewEntity struct {
	ID      uint64
	Pos     innerPoint
	Weights []float64
	Name    string
	Tags    []string
}

func encode(t *testing.T, v viewEntity) []byte {
	t.Helper()

	info, err := schema.Of(reflect.TypeOf(v))
	require.NoError(t, err)

	buf, err := codec.Encode(reflect.ValueOf(v), info)
	require.NoError(t, err)

	return buf
}

func openView(t *testing.T, buf []byte) *View {
	t.Helper()

	info, err := schema.Of(reflect.TypeOf(viewEntity{}))
	require.NoError(t, err)

	v, err := Open(buf, info)
	require.NoError(t, err)

	return v
}

func TestOpen_VariableAggregate(t *testing.T) {
	buf := encode(t, viewEntity{ID: 7, Weights: []float64{1, 2}, Name: "n"})
	v := openView(t, buf)

	assert.Equal(t, 5, v.NumField())
	assert.Equal(t, "ID", v.FieldName(0))
}

func TestGet_PrimitiveField(t *testing.T) {
	buf := encode(t, viewEntity{ID: 99})
	v := openView(t, buf)

	got, err := v.Get(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(99), got)
}

func TestGetByName(t *testing.T) {
	buf := encode(t, viewEntity{ID: 5, Name: "hello"})
	v := openView(t, buf)

	got, err := v.GetByName("Name")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestGetByName_Unknown(t *testing.T) {
	buf := encode(t, viewEntity{})
	v := openView(t, buf)

	_, err := v.GetByName("Nope")
	assert.Error(t, err)
}

func TestNested_FixedAggregateField(t *testing.T) {
	buf := encode(t, viewEntity{Pos: innerPoint{X: 1, Y: 2}})
	v := openView(t, buf)

	nested, err := v.Nested(1)
	require.NoError(t, err)

	x, err := nested.Get(0)
	require.NoError(t, err)
	assert.Equal(t, float32(1), x)

	y, err := nested.Get(1)
	require.NoError(t, err)
	assert.Equal(t, float32(2), y)
}

func TestString(t *testing.T) {
	buf := encode(t, viewEntity{Name: "a rather long string value"})
	v := openView(t, buf)

	s, err := v.String(3)
	require.NoError(t, err)
	assert.Equal(t, "a rather long string value", s)
}

func TestString_WrongFieldKind(t *testing.T) {
	buf := encode(t, viewEntity{})
	v := openView(t, buf)

	_, err := v.String(0)
	assert.Error(t, err)
}

func TestVectorLen(t *testing.T) {
	buf := encode(t, viewEntity{Weights: []float64{1, 2, 3}})
	v := openView(t, buf)

	n, err := v.VectorLen(2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestVectorSpan_FixedElements(t *testing.T) {
	buf := encode(t, viewEntity{Weights: []float64{1, 2, 3}})
	v := openView(t, buf)

	span, err := v.VectorSpan(2)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, span)
}

func TestVectorSpan_Empty(t *testing.T) {
	buf := encode(t, viewEntity{Weights: []float64{}})
	v := openView(t, buf)

	span, err := v.VectorSpan(2)
	require.NoError(t, err)
	assert.Equal(t, []float64{}, span)
}

func TestVectorElement_VariableElements(t *testing.T) {
	buf := encode(t, viewEntity{Tags: []string{"one", "two", "three"}})
	v := openView(t, buf)

	e0, err := v.VectorElement(4, 0)
	require.NoError(t, err)
	assert.Equal(t, "one", e0)

	e2, err := v.VectorElement(4, 2)
	require.NoError(t, err)
	assert.Equal(t, "three", e2)
}

func TestVectorElement_OutOfRange(t *testing.T) {
	buf := encode(t, viewEntity{Tags: []string{"one"}})
	v := openView(t, buf)

	_, err := v.VectorElement(4, 5)
	assert.Error(t, err)
}

func TestOpen_RejectsNonAggregateRoot(t *testing.T) {
	info, err := schema.Of(reflect.TypeOf([]int64{}))
	require.NoError(t, err)

	_, err = Open([]byte{0, 0, 0, 0, 0, 0, 0, 0}, info)
	assert.Error(t, err)
}

func TestOpen_TruncatedBuffer(t *testing.T) {
	buf := encode(t, viewEntity{ID: 1, Weights: []float64{1, 2}})

	info, err := schema.Of(reflect.TypeOf(viewEntity{}))
	require.NoError(t, err)

	_, err = Open(buf[:4], info)
	assert.Error(t, err)
}
