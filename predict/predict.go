// Package predict computes the exact byte length the writer will produce
// for a value (spec.md §4.2), so the preallocated writer path can size its
// buffer once instead of growing it.
package predict

import (
	"fmt"
	"reflect"

	"github.com/zmem-org/ZMEM/errs"
	"github.com/zmem-org/ZMEM/kind"
	"github.com/zmem-org/ZMEM/layout"
	"github.com/zmem-org/ZMEM/schema"
)

// Value returns the total number of bytes Write will produce for v,
// including the 8-byte size header when info is variable (spec.md §4.2
// step 4) or the round-up-to-8 padding when info is fixed (step 1).
func Value(v reflect.Value, info *schema.TypeInfo) (int, error) {
	if !info.Kind.IsVariable() {
		return layout.RoundUp8(info.Size), nil
	}
	if info.Kind != kind.VariableAggregate && info.Kind != kind.VariableUnion {
		return 0, fmt.Errorf("%w: %s is not a valid root type (root must be an aggregate or union)", errs.ErrUnsupportedType, info.Kind)
	}

	content, err := Content(v, info)
	if err != nil {
		return 0, err
	}

	return 8 + content, nil
}

// Content returns the padded content length of a variable value: for a
// VariableAggregate or VariableUnion, the inline section plus every
// variable field/variant's payload, rounded up to 8; for the other
// variable kinds it is the same as Payload.
func Content(v reflect.Value, info *schema.TypeInfo) (int, error) {
	switch info.Kind {
	case kind.VariableAggregate:
		return aggregateContent(v, info)
	case kind.VariableUnion:
		return unionContent(v, info)
	default:
		return Payload(v, info)
	}
}

func aggregateContent(v reflect.Value, info *schema.TypeInfo) (int, error) {
	cursor := info.InlineSize

	for i, f := range info.Fields {
		if !f.Type.Kind.IsVariable() {
			continue
		}

		cursor = layout.RoundUp8(cursor)
		fv := v.FieldByIndex(f.GoIndex)

		sz, err := Payload(fv, f.Type)
		if err != nil {
			return 0, fmt.Errorf("field %s: %w", f.Name, err)
		}

		cursor += sz
		_ = i
	}

	return layout.RoundUp8(cursor), nil
}

func unionContent(v reflect.Value, info *schema.TypeInfo) (int, error) {
	u := info.Union
	cursor := u.InlineSize

	activeVariant, activeValue, err := activeVariant(v, u)
	if err != nil {
		return 0, err
	}
	if activeVariant != nil && activeVariant.Type.Kind.IsVariable() {
		cursor = layout.RoundUp8(cursor)

		sz, err := Payload(activeValue, activeVariant.Type)
		if err != nil {
			return 0, fmt.Errorf("union variant %s: %w", activeVariant.Name, err)
		}

		cursor += sz
	}

	return layout.RoundUp8(cursor), nil
}

// activeVariant resolves which union variant is selected by the value in
// v's tag field, returning the matching UnionVariant (nil if the tag
// matches nothing, which the caller should reject) and its Go field value.
func activeVariant(v reflect.Value, u *schema.UnionInfo) (*schema.UnionVariant, reflect.Value, error) {
	tagValue := v.FieldByIndex(u.TagGoIndex)

	tag, err := asUint64(tagValue)
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

func asUint64(v reflect.Value) (uint64, error) {
	switch v.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return uint64(v.Int()), nil
	default:
		return 0, fmt.Errorf("%w: union tag field of kind %s", errs.ErrUnsupportedType, v.Kind())
	}
}

// Payload returns the size of v's contribution to a variable section: the
// bare bytes for kinds whose length the surrounding structure already
// bounds (offset table, map count), or 8 plus Content for the kinds that
// carry their own total-size header wherever they appear (spec.md §3's
// "Variable aggregate", "Map<K,V> (variable V)" and "Tagged union" rows).
func Payload(v reflect.Value, info *schema.TypeInfo) (int, error) {
	switch info.Kind {
	case kind.VariableAggregate, kind.VariableUnion:
		c, err := Content(v, info)
		if err != nil {
			return 0, err
		}

		return 8 + c, nil
	case kind.VectorFixed:
		return v.Len() * info.Elem.Size, nil
	case kind.VectorVariable:
		return vectorVariablePayload(v, info)
	case kind.VariableString:
		return len(v.String()), nil
	case kind.MapFixed:
		return mapFixedPayload(v, info)
	case kind.MapVariable:
		c, err := mapVariableContent(v, info)
		if err != nil {
			return 0, err
		}

		return 8 + c, nil
	default:
		return 0, fmt.Errorf("%w: %s is not a variable-section payload kind", errs.ErrUnsupportedType, info.Kind)
	}
}

func vectorVariablePayload(v reflect.Value, info *schema.TypeInfo) (int, error) {
	n := v.Len()
	cursor := 0

	for i := 0; i < n; i++ {
		cursor = layout.RoundUp8(cursor)

		sz, err := Payload(v.Index(i), info.Elem)
		if err != nil {
			return 0, fmt.Errorf("element %d: %w", i, err)
		}

		cursor += sz
	}

	// (n+1) byte-offsets plus a parallel table of n true element
	// counts/lengths, matching codec.Writer.writeVectorVariable.
	return (n+1)*8+n*8 + cursor, nil
}

func mapFixedPayload(v reflect.Value, info *schema.TypeInfo) (int, error) {
	total := 8 // u64 count

	iter := v.MapRange()
	for iter.Next() {
		keySize, err := mapKeySize(iter.Key(), info.Key)
		if err != nil {
			return 0, err
		}

		total += keySize + info.Elem.Size
	}

	return total, nil
}

func mapVariableContent(v reflect.Value, info *schema.TypeInfo) (int, error) {
	n := v.Len()
	entrySize := info.Key.Size + 16
	cursor := 8 + n*entrySize // u64 count + fixed-width entries
	cursor = layout.RoundUp8(cursor)

	iter := v.MapRange()
	for iter.Next() {
		sz, err := Payload(iter.Value(), info.Elem)
		if err != nil {
			return 0, err
		}

		cursor += sz
	}

	return layout.RoundUp8(cursor), nil
}

func mapKeySize(key reflect.Value, keyInfo *schema.TypeInfo) (int, error) {
	if keyInfo.Kind == kind.VariableString {
		return 4 + len(key.String()), nil
	}

	return keyInfo.Size, nil
}
