package codec

import (
	"fmt"
	"math"
	"reflect"

	"github.com/zmem-org/ZMEM/endian"
	"github.com/zmem-org/ZMEM/errs"
	"github.com/zmem-org/ZMEM/kind"
	"github.com/zmem-org/ZMEM/schema"
)

// emitFixed renders v, a value of a fixed-kind type, into a freshly
// allocated info.Size-byte slice. It never touches a variable section: a
// fixed value's bytes are wholly determined by its own fields, which is
// what lets this same function serve a top-level fixed root, a fixed
// field nested inside any aggregate, and the inline section of a variable
// aggregate or union.
func emitFixed(v reflect.Value, info *schema.TypeInfo) ([]byte, error) {
	buf := make([]byte, info.Size)

	switch info.Kind {
	case kind.Primitive:
		writePrimitive(buf, v)
	case kind.FixedString:
		s := v.String()
		if len(s) >= info.StrLen {
			return nil, fmt.Errorf("%w: string %q does not fit in a %d-byte fixed field (needs a trailing null)", errs.ErrUnsupportedType, s, info.StrLen)
		}
		copy(buf, s)
	case kind.FixedArray:
		elemSize := info.Elem.Size
		for i := 0; i < info.ArrayLen; i++ {
			eb, err := emitFixed(v.Index(i), info.Elem)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			copy(buf[i*elemSize:], eb)
		}
	case kind.FixedAggregate:
		for i, f := range info.Fields {
			fb, err := emitFixed(v.FieldByIndex(f.GoIndex), f.Type)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
			copy(buf[info.FieldOffsets[i]:], fb)
		}
	case kind.OptionalFixed:
		if v.Field(0).Bool() {
			buf[0] = 1
			vb, err := emitFixed(v.Field(1), info.Elem)
			if err != nil {
				return nil, err
			}
			copy(buf[info.Align:], vb)
		}
	case kind.FixedUnion:
		if err := emitFixedUnion(buf, v, info); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %s cannot be emitted by value", errs.ErrUnsupportedType, info.Kind)
	}

	return buf, nil
}

func emitFixedUnion(buf []byte, v reflect.Value, info *schema.TypeInfo) error {
	u := info.Union

	variant, variantValue, err := selectVariant(v, u)
	if err != nil {
		return err
	}

	tagBuf, err := emitFixed(v.FieldByIndex(u.TagGoIndex), u.TagType)
	if err != nil {
		return err
	}
	copy(buf[u.TagOffset:], tagBuf)

	vb, err := emitFixed(variantValue, variant.Type)
	if err != nil {
		return fmt.Errorf("union variant %s: %w", variant.Name, err)
	}
	copy(buf[u.SlotOffset:], vb)

	return nil
}

// selectVariant resolves the active variant of a union value from its tag
// field, shared by both the fixed and variable union writers.
func selectVariant(v reflect.Value, u *schema.UnionInfo) (*schema.UnionVariant, reflect.Value, error) {
	tag, err := tagAsUint64(v.FieldByIndex(u.TagGoIndex))
	if err != nil {
		return nil, reflect.Value{}, err
	}

	for i := range u.Variants {
		if u.Variants[i].Tag == tag {
			return &u.Variants[i], v.FieldByIndex(u.Variants[i].GoIndex), nil
		}
	}

	return nil, reflect.Value{}, fmt.Errorf("%w: union tag %d matches no registered variant", errs.ErrUnsupportedType, tag)
}

func tagAsUint64(v reflect.Value) (uint64, error) {
	switch v.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return uint64(v.Int()), nil
	default:
		return 0, fmt.Errorf("%w: union tag field of kind %s", errs.ErrUnsupportedType, v.Kind())
	}
}

func writePrimitive(buf []byte, v reflect.Value) {
	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			buf[0] = 1
		}
	case reflect.Int8:
		buf[0] = byte(v.Int())
	case reflect.Uint8:
		buf[0] = byte(v.Uint())
	case reflect.Int16:
		endian.Little.PutUint16(buf, uint16(v.Int()))
	case reflect.Uint16:
		endian.Little.PutUint16(buf, uint16(v.Uint()))
	case reflect.Int32:
		endian.Little.PutUint32(buf, uint32(v.Int()))
	case reflect.Uint32:
		endian.Little.PutUint32(buf, uint32(v.Uint()))
	case reflect.Float32:
		endian.Little.PutUint32(buf, math.Float32bits(float32(v.Float())))
	case reflect.Int64:
		endian.Little.PutUint64(buf, uint64(v.Int()))
	case reflect.Uint64:
		endian.Little.PutUint64(buf, v.Uint())
	case reflect.Int:
		endian.Little.PutUint64(buf, uint64(v.Int()))
	case reflect.Uint:
		endian.Little.PutUint64(buf, v.Uint())
	case reflect.Float64:
		endian.Little.PutUint64(buf, math.Float64bits(v.Float()))
	case reflect.Struct: // Int128 / UInt128
		endian.Little.PutUint64(buf[0:8], v.FieldByName("Lo").Uint())
		endian.Little.PutUint64(buf[8:16], v.FieldByName("Hi").Uint())
	}
}

// DecodeFixed decodes a fixed-kind value's bytes into dst. Exported so the
// view package's on-demand field accessors can reuse the same decode
// logic as the owning reader without duplicating it.
func DecodeFixed(buf []byte, dst reflect.Value, info *schema.TypeInfo, strict bool) error {
	return readFixed(buf, dst, info, strict)
}

// readFixed decodes info.Size bytes from buf into dst, the mirror of
// emitFixed. dst must be addressable (settable). strict enables the
// policy checks spec.md §7 category 3 reserves for untrusted input.
func readFixed(buf []byte, dst reflect.Value, info *schema.TypeInfo, strict bool) error {
	if len(buf) < info.Size {
		return errs.ErrUnexpectedEnd
	}

	switch info.Kind {
	case kind.Primitive:
		if dst.Kind() == reflect.Bool && strict && buf[0] > 1 {
			return errs.ErrNonCanonicalBoolean
		}
		readPrimitive(buf, dst)
	case kind.FixedString:
		n := 0
		for n < len(buf) && buf[n] != 0 {
			n++
		}
		dst.SetString(string(buf[:n]))
	case kind.FixedArray:
		elemSize := info.Elem.Size
		for i := 0; i < info.ArrayLen; i++ {
			if err := readFixed(buf[i*elemSize:(i+1)*elemSize], dst.Index(i), info.Elem, strict); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
	case kind.FixedAggregate:
		for i, f := range info.Fields {
			off := info.FieldOffsets[i]
			if err := readFixed(buf[off:off+f.Type.Size], dst.FieldByIndex(f.GoIndex), f.Type, strict); err != nil {
				return fmt.Errorf("field %s: %w", f.Name, err)
			}
		}
	case kind.OptionalFixed:
		flag := buf[0]
		if strict && flag > 1 {
			return errs.ErrOptionalInvalidFlag
		}
		if flag != 0 {
			dst.Field(0).SetBool(true)
			if err := readFixed(buf[info.Align:], dst.Field(1), info.Elem, strict); err != nil {
				return err
			}
		}
	case kind.FixedUnion:
		if err := readFixedUnion(buf, dst, info, strict); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %s cannot be decoded by value", errs.ErrUnsupportedType, info.Kind)
	}

	return nil
}

func readFixedUnion(buf []byte, dst reflect.Value, info *schema.TypeInfo, strict bool) error {
	u := info.Union

	tagDst := dst.FieldByIndex(u.TagGoIndex)
	if err := readFixed(buf[u.TagOffset:u.TagOffset+u.TagType.Size], tagDst, u.TagType, strict); err != nil {
		return err
	}

	tag, err := tagAsUint64(tagDst)
	if err != nil {
		return err
	}

	for _, variant := range u.Variants {
		if variant.Tag != tag {
			continue
		}

		return readFixed(buf[u.SlotOffset:u.SlotOffset+variant.Type.Size], dst.FieldByIndex(variant.GoIndex), variant.Type, strict)
	}

	return fmt.Errorf("%w: decoded union tag %d matches no registered variant", errs.ErrUnsupportedType, tag)
}

func readPrimitive(buf []byte, dst reflect.Value) {
	switch dst.Kind() {
	case reflect.Bool:
		dst.SetBool(buf[0] != 0)
	case reflect.Int8:
		dst.SetInt(int64(int8(buf[0])))
	case reflect.Uint8:
		dst.SetUint(uint64(buf[0]))
	case reflect.Int16:
		dst.SetInt(int64(int16(endian.Little.Uint16(buf))))
	case reflect.Uint16:
		dst.SetUint(uint64(endian.Little.Uint16(buf)))
	case reflect.Int32:
		dst.SetInt(int64(int32(endian.Little.Uint32(buf))))
	case reflect.Uint32:
		dst.SetUint(uint64(endian.Little.Uint32(buf)))
	case reflect.Float32:
		dst.SetFloat(float64(math.Float32frombits(endian.Little.Uint32(buf))))
	case reflect.Int64:
		dst.SetInt(int64(endian.Little.Uint64(buf)))
	case reflect.Uint64:
		dst.SetUint(endian.Little.Uint64(buf))
	case reflect.Int:
		dst.SetInt(int64(endian.Little.Uint64(buf)))
	case reflect.Uint:
		dst.SetUint(endian.Little.Uint64(buf))
	case reflect.Float64:
		dst.SetFloat(math.Float64frombits(endian.Little.Uint64(buf)))
	case reflect.Struct: // Int128 / UInt128
		dst.FieldByName("Lo").SetUint(endian.Little.Uint64(buf[0:8]))
		dst.FieldByName("Hi").SetUint(endian.Little.Uint64(buf[8:16]))
	}
}
