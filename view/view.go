// Package view implements ZMEM's lazy zero-copy accessor (spec.md §4.6): a
// non-owning, position-addressed handle that resolves fields from a
// buffer on demand instead of materializing an owning container.
package view

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/zmem-org/ZMEM/codec"
	"github.com/zmem-org/ZMEM/endian"
	"github.com/zmem-org/ZMEM/errs"
	"github.com/zmem-org/ZMEM/kind"
	"github.com/zmem-org/ZMEM/schema"
)

// View borrows buf for its entire lifetime; the caller must keep the
// backing buffer (or memory map) alive for at least as long as the View
// and any nested views or spans derived from it are in use.
type View struct {
	content []byte // the aggregate's content region: itself for a fixed root, bytes[8:8+size] for a variable one
	info    *schema.TypeInfo
}

// Open roots a View at buf, which must hold a FixedAggregate or
// VariableAggregate (spec.md's view contract only defines accessors for
// aggregates, their fields, and the vectors/strings reachable from them).
func Open(buf []byte, info *schema.TypeInfo) (*View, error) {
	switch info.Kind {
	case kind.FixedAggregate:
		if len(buf) < info.Size {
			return nil, errs.ErrUnexpectedEnd
		}

		return &View{content: buf[:info.Size], info: info}, nil
	case kind.VariableAggregate:
		if len(buf) < 8 {
			return nil, errs.AtOffset(0, errs.ErrUnexpectedEnd)
		}

		size := endian.Little.Uint64(buf[:8])
		if size%8 != 0 {
			return nil, errs.AtOffset(0, errs.ErrInvalidHeaderSize)
		}
		if uint64(len(buf)) < 8+size {
			return nil, errs.AtOffset(8, errs.ErrSizeHeaderMismatch)
		}

		return &View{content: buf[8 : 8+size], info: info}, nil
	default:
		return nil, fmt.Errorf("%w: view root must be a fixed or variable aggregate, got %s", errs.ErrUnsupportedType, info.Kind)
	}
}

// NumField reports the view's field count.
func (v *View) NumField() int {
	return len(v.info.Fields)
}

// FieldName returns the i-th field's name, for callers resolving by
// index who want diagnostics.
func (v *View) FieldName(i int) string {
	return v.info.Fields[i].Name
}

func (v *View) indexOf(name string) (int, error) {
	for i, f := range v.info.Fields {
		if f.Name == name {
			return i, nil
		}
	}

	return 0, fmt.Errorf("%w: no field named %q", errs.ErrUnsupportedType, name)
}

// Get returns the i-th field's value as a freshly decoded Go value. For
// fixed fields this is the only way to read them (decoding 8 bytes into
// an int64 is not itself an allocation, but the returned `any` boxes it).
// For variable fields, prefer VectorSpan/VectorElement/String/Nested below to stay
// allocation-free; Get on a variable field falls back to a full decode.
func (v *View) Get(i int) (any, error) {
	f := v.info.Fields[i]
	if f.Type.Kind.IsVariable() {
		return v.decodeVariableField(i)
	}

	off := v.info.FieldOffsets[i]
	dst := reflect.New(f.Type.GoType).Elem()
	if err := codec.DecodeFixed(v.content[off:off+f.Type.Size], dst, f.Type, false); err != nil {
		return nil, fmt.Errorf("field %s: %w", f.Name, err)
	}

	return dst.Interface(), nil
}

// GetByName is Get resolved by field name.
func (v *View) GetByName(name string) (any, error) {
	i, err := v.indexOf(name)
	if err != nil {
		return nil, err
	}

	return v.Get(i)
}

func (v *View) decodeVariableField(i int) (any, error) {
	f := v.info.Fields[i]
	off := v.info.FieldOffsets[i]

	dst := reflect.New(f.Type.GoType).Elem()
	refOffset := endian.Little.Uint64(v.content[off : off+8])
	countOrLen := endian.Little.Uint64(v.content[off+8 : off+16])

	if err := codec.DecodePayload(v.content[refOffset:], countOrLen, dst, f.Type, false); err != nil {
		return nil, fmt.Errorf("field %s: %w", f.Name, err)
	}

	return dst.Interface(), nil
}

// Nested returns a View rooted at the i-th field, which must be a
// FixedAggregate or VariableAggregate.
func (v *View) Nested(i int) (*View, error) {
	f := v.info.Fields[i]

	switch f.Type.Kind {
	case kind.FixedAggregate:
		off := v.info.FieldOffsets[i]

		return &View{content: v.content[off : off+f.Type.Size], info: f.Type}, nil
	case kind.VariableAggregate:
		off := v.info.FieldOffsets[i]
		refOffset := endian.Little.Uint64(v.content[off : off+8])

		return Open(v.content[refOffset:], f.Type)
	default:
		return nil, fmt.Errorf("%w: field %s is not an aggregate", errs.ErrUnsupportedType, f.Name)
	}
}

// String returns the i-th field's borrowed string bytes without copying
// the view's input buffer (the returned Go string still copies once, as
// Go strings are always immutable snapshots of their backing bytes).
func (v *View) String(i int) (string, error) {
	f := v.info.Fields[i]
	if f.Type.Kind != kind.VariableString {
		return "", fmt.Errorf("%w: field %s is not a variable string", errs.ErrUnsupportedType, f.Name)
	}

	off := v.info.FieldOffsets[i]
	refOffset := endian.Little.Uint64(v.content[off : off+8])
	length := endian.Little.Uint64(v.content[off+8 : off+16])

	return string(v.content[refOffset : refOffset+length]), nil
}

// VectorLen returns the i-th field's element count without decoding any
// elements.
func (v *View) VectorLen(i int) (int, error) {
	f := v.info.Fields[i]
	if f.Type.Kind != kind.VectorFixed && f.Type.Kind != kind.VectorVariable {
		return 0, fmt.Errorf("%w: field %s is not a vector", errs.ErrUnsupportedType, f.Name)
	}

	off := v.info.FieldOffsets[i]

	return int(endian.Little.Uint64(v.content[off+8 : off+16])), nil
}

// VectorSpan returns a typed, non-owning slice over the i-th field, which
// must be VectorFixed. On a little-endian host, the element type's wire
// layout and Go memory layout coincide, so the span aliases the view's
// buffer directly via unsafe.Slice; on a big-endian host (never the
// case for this codec's stated targets, but checked anyway) it falls
// back to a decoded, owned copy.
func (v *View) VectorSpan(i int) (any, error) {
	f := v.info.Fields[i]
	if f.Type.Kind != kind.VectorFixed {
		return nil, fmt.Errorf("%w: field %s is not a vector of fixed elements", errs.ErrUnsupportedType, f.Name)
	}

	off := v.info.FieldOffsets[i]
	refOffset := endian.Little.Uint64(v.content[off : off+8])
	count := int(endian.Little.Uint64(v.content[off+8 : off+16]))

	elem := f.Type.Elem
	data := v.content[refOffset : int(refOffset)+count*elem.Size]

	if span, ok := reinterpretSpan(data, elem, count); ok {
		return span, nil
	}

	out := reflect.MakeSlice(f.Type.GoType, count, count)
	for j := 0; j < count; j++ {
		eoff := j * elem.Size
		if err := codec.DecodeFixed(data[eoff:eoff+elem.Size], out.Index(j), elem, false); err != nil {
			return nil, fmt.Errorf("element %d: %w", j, err)
		}
	}

	return out.Interface(), nil
}

// reinterpretSpan aliases data as a []T without copying when the host is
// little-endian and T is one of the primitive kinds whose wire layout is
// byte-identical to its Go in-memory layout.
func reinterpretSpan(data []byte, elem *schema.TypeInfo, count int) (any, bool) {
	if !endian.IsNativeLittleEndian() || elem.Kind != kind.Primitive || count == 0 {
		return emptySpan(elem, count)
	}

	ptr := unsafe.Pointer(&data[0])

	switch elem.GoType.Kind() {
	case reflect.Int8:
		return unsafe.Slice((*int8)(ptr), count), true
	case reflect.Uint8:
		return unsafe.Slice((*uint8)(ptr), count), true
	case reflect.Int16:
		return unsafe.Slice((*int16)(ptr), count), true
	case reflect.Uint16:
		return unsafe.Slice((*uint16)(ptr), count), true
	case reflect.Int32:
		return unsafe.Slice((*int32)(ptr), count), true
	case reflect.Uint32:
		return unsafe.Slice((*uint32)(ptr), count), true
	case reflect.Float32:
		return unsafe.Slice((*float32)(ptr), count), true
	case reflect.Int64:
		return unsafe.Slice((*int64)(ptr), count), true
	case reflect.Uint64:
		return unsafe.Slice((*uint64)(ptr), count), true
	case reflect.Float64:
		return unsafe.Slice((*float64)(ptr), count), true
	default:
		return nil, false
	}
}

func emptySpan(elem *schema.TypeInfo, count int) (any, bool) {
	if count != 0 {
		return nil, false
	}

	switch elem.GoType.Kind() {
	case reflect.Int8:
		return []int8{}, true
	case reflect.Uint8:
		return []uint8{}, true
	case reflect.Int16:
		return []int16{}, true
	case reflect.Uint16:
		return []uint16{}, true
	case reflect.Int32:
		return []int32{}, true
	case reflect.Uint32:
		return []uint32{}, true
	case reflect.Float32:
		return []float32{}, true
	case reflect.Int64:
		return []int64{}, true
	case reflect.Uint64:
		return []uint64{}, true
	case reflect.Float64:
		return []float64{}, true
	default:
		return nil, false
	}
}

// VectorElement resolves the i-th field's j-th element in O(1) via the
// offset table, returning a nested View when the element is an
// aggregate and a decoded value otherwise.
func (v *View) VectorElement(i, j int) (any, error) {
	f := v.info.Fields[i]
	if f.Type.Kind != kind.VectorVariable {
		return nil, fmt.Errorf("%w: field %s is not a vector of variable elements", errs.ErrUnsupportedType, f.Name)
	}

	off := v.info.FieldOffsets[i]
	refOffset := endian.Little.Uint64(v.content[off : off+8])
	count := int(endian.Little.Uint64(v.content[off+8 : off+16]))

	if j < 0 || j >= count {
		return nil, fmt.Errorf("%w: element index %d out of range [0,%d)", errs.ErrOffsetOutOfRange, j, count)
	}

	data := v.content[refOffset:]
	tableLen := (count+1)*8 + count*8
	start := endian.Little.Uint64(data[j*8 : j*8+8])
	end := endian.Little.Uint64(data[(j+1)*8 : (j+1)*8+8])
	elemLen := endian.Little.Uint64(data[(count+1)*8+j*8 : (count+1)*8+j*8+8])

	elemBuf := data[int(tableLen)+int(start) : int(tableLen)+int(end)]

	switch f.Type.Elem.Kind {
	case kind.VariableAggregate:
		return Open(elemBuf, f.Type.Elem)
	default:
		dst := reflect.New(f.Type.Elem.GoType).Elem()
		if err := codec.DecodePayload(elemBuf, elemLen, dst, f.Type.Elem, false); err != nil {
			return nil, fmt.Errorf("element %d: %w", j, err)
		}

		return dst.Interface(), nil
	}
}
