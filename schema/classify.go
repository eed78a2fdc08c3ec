package schema

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/zmem-org/ZMEM/errs"
	"github.com/zmem-org/ZMEM/kind"
	"github.com/zmem-org/ZMEM/layout"
)

// classify dispatches on t's shape to the matching classification rule
// from spec.md §4.1. inProgress guards against unbounded recursion on a
// self-referential type: the type is not supported (ZMEM requires finite
// schemas, as any offset-table format must) and classification fails
// cleanly rather than looping or miscomputing a size.
func classify(t reflect.Type, inProgress map[reflect.Type]*TypeInfo) (*TypeInfo, error) {
	if _, ok := inProgress[t]; ok {
		return nil, fmt.Errorf("%w: recursive type %s is not supported", errs.ErrUnsupportedType, t)
	}

	if t == int128Type || t == uint128Type {
		return classifyPrimitive(t)
	}

	if isOptionalType(t) {
		return classifyOptional(t, inProgress)
	}

	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return classifyPrimitive(t)
	case reflect.Struct:
		if hasUnionTags(t) {
			return classifyUnion(t, inProgress)
		}

		return classifyAggregate(t, inProgress)
	case reflect.Array:
		return classifyArray(t, inProgress)
	case reflect.Slice:
		return classifyVector(t, inProgress)
	case reflect.String:
		return classifyVariableString(t)
	case reflect.Map:
		return classifyMap(t, inProgress)
	default:
		return nil, fmt.Errorf("%w: %s", errs.ErrUnsupportedType, t)
	}
}

func classifyPrimitive(t reflect.Type) (*TypeInfo, error) {
	size, align, ok := primitiveLayout(t)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errs.ErrUnsupportedType, t)
	}

	return &TypeInfo{
		GoType:      t,
		Kind:        kind.Primitive,
		Size:        size,
		Align:       align,
		Fingerprint: signatureFingerprint("prim:" + t.Kind().String()),
	}, nil
}

func classifyArray(t reflect.Type, inProgress map[reflect.Type]*TypeInfo) (*TypeInfo, error) {
	elemInfo, err := classify(t.Elem(), inProgress)
	if err != nil {
		return nil, err
	}
	if elemInfo.Kind.IsVariable() {
		return nil, fmt.Errorf("%w: fixed array element must be fixed, %s is %s", errs.ErrUnsupportedType, t.Elem(), elemInfo.Kind)
	}

	n := t.Len()

	return &TypeInfo{
		GoType:      t,
		Kind:        kind.FixedArray,
		Elem:        elemInfo,
		ArrayLen:    n,
		Size:        n * elemInfo.Size,
		Align:       elemInfo.Align,
		Fingerprint: signatureFingerprint(fmt.Sprintf("[%d]%d", n, elemInfo.Fingerprint)),
	}, nil
}

func classifyVector(t reflect.Type, inProgress map[reflect.Type]*TypeInfo) (*TypeInfo, error) {
	elemInfo, err := classify(t.Elem(), inProgress)
	if err != nil {
		return nil, err
	}

	k := kind.VectorFixed
	if elemInfo.Kind.IsVariable() {
		k = kind.VectorVariable
	}

	return &TypeInfo{
		GoType:      t,
		Kind:        k,
		Elem:        elemInfo,
		Align:       8, // inline reference alignment (spec.md §3)
		Size:        16,
		Fingerprint: signatureFingerprint(fmt.Sprintf("[]%d", elemInfo.Fingerprint)),
	}, nil
}

func classifyVariableString(t reflect.Type) (*TypeInfo, error) {
	return &TypeInfo{
		GoType:      t,
		Kind:        kind.VariableString,
		Align:       8,
		Size:        16,
		Fingerprint: signatureFingerprint("string"),
	}, nil
}

func classifyMap(t reflect.Type, inProgress map[reflect.Type]*TypeInfo) (*TypeInfo, error) {
	keyInfo, err := classify(t.Key(), inProgress)
	if err != nil {
		return nil, err
	}
	valInfo, err := classify(t.Elem(), inProgress)
	if err != nil {
		return nil, err
	}

	if keyInfo.Kind != kind.Primitive && keyInfo.Kind != kind.VariableString {
		return nil, fmt.Errorf("%w: map key type %s has no defined wire ordering", errs.ErrMapKeyUnsortable, t.Key())
	}

	info := &TypeInfo{
		GoType: t,
		Key:    keyInfo,
		Elem:   valInfo,
		Align:  8,
		Size:   16,
		Fingerprint: signatureFingerprint(fmt.Sprintf("map[%d]%d", keyInfo.Fingerprint, valInfo.Fingerprint)),
	}

	if valInfo.Kind.IsVariable() {
		if keyInfo.Kind != kind.Primitive {
			return nil, fmt.Errorf("%w: a variable-value map requires a fixed primitive key, got %s", errs.ErrMapKeyUnsortable, t.Key())
		}
		info.Kind = kind.MapVariable
	} else {
		info.Kind = kind.MapFixed
	}

	return info, nil
}

func classifyOptional(t reflect.Type, inProgress map[reflect.Type]*TypeInfo) (*TypeInfo, error) {
	valueField := t.Field(1)

	elemInfo, err := classify(valueField.Type, inProgress)
	if err != nil {
		return nil, err
	}
	if elemInfo.Kind.IsVariable() {
		return nil, fmt.Errorf("%w: Optional[T] requires T fixed, got %s", errs.ErrUnsupportedType, elemInfo.Kind)
	}

	return &TypeInfo{
		GoType:      t,
		Kind:        kind.OptionalFixed,
		Elem:        elemInfo,
		Align:       elemInfo.Align,
		Size:        elemInfo.Align + elemInfo.Size, // spec.md §4.1: align(T) + size(T)
		Fingerprint: signatureFingerprint("Optional<" + fmt.Sprint(elemInfo.Fingerprint) + ">"),
	}, nil
}

func classifyUnion(t reflect.Type, inProgress map[reflect.Type]*TypeInfo) (*TypeInfo, error) {
	info := &TypeInfo{GoType: t}
	inProgress[t] = info
	defer delete(inProgress, t)

	var tagIdx []int
	var tagType *TypeInfo
	var variants []UnionVariant
	variable := false

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}

		ft, err := parseFieldTag(sf.Tag.Get("zmem"))
		if err != nil {
			return nil, err
		}

		switch {
		case ft.isTag:
			tagInfo, err := classify(sf.Type, inProgress)
			if err != nil {
				return nil, err
			}
			if tagInfo.Kind != kind.Primitive {
				return nil, fmt.Errorf("%w: union tag field %q must be a primitive integer", errs.ErrInvalidFixedTag, sf.Name)
			}
			tagIdx = sf.Index
			tagType = tagInfo
		case ft.isVariant:
			variantInfo, err := classify(sf.Type, inProgress)
			if err != nil {
				return nil, err
			}
			if variantInfo.Kind.IsVariable() {
				variable = true
			}
			variants = append(variants, UnionVariant{Tag: ft.variant, Name: sf.Name, GoIndex: sf.Index, Type: variantInfo})
		case ft.skip:
			continue
		default:
			return nil, fmt.Errorf(`%w: union field %q needs a zmem:"tag" or zmem:"variant=N" tag`, errs.ErrInvalidFixedTag, sf.Name)
		}
	}

	if tagIdx == nil {
		return nil, fmt.Errorf(`%w: union struct %s has no zmem:"tag" field`, errs.ErrInvalidFixedTag, t)
	}
	if len(variants) == 0 {
		return nil, fmt.Errorf(`%w: union struct %s has no zmem:"variant=N" fields`, errs.ErrInvalidFixedTag, t)
	}

	maxSlot, slotAlign := 0, 1
	sig := strings.Builder{}
	for _, v := range variants {
		slotSize := v.Type.Size
		if v.Type.Kind.IsVariable() {
			slotSize = 16 // inline reference footprint, not the payload itself
		}
		if slotSize > maxSlot {
			maxSlot = slotSize
		}
		if v.Type.Align > slotAlign {
			slotAlign = v.Type.Align
		}
		fmt.Fprintf(&sig, "%d:%s;", v.Tag, v.Type.Kind)
	}

	union := &UnionInfo{TagGoIndex: tagIdx, TagType: tagType, Variants: variants, MaxSlot: maxSlot, SlotAlign: slotAlign}
	info.Union = union
	info.Fingerprint = signatureFingerprint(t.String() + "{union:" + sig.String() + "}")

	entries := []layout.Entry{{Size: tagType.Size, Align: tagType.Align}, {Size: maxSlot, Align: slotAlign}}

	if variable {
		offsets, cursor, _ := layout.Place(entries)
		union.TagOffset, union.SlotOffset = offsets[0], offsets[1]
		union.InlineSize = layout.RoundUp8(cursor)
		info.Kind = kind.VariableUnion
		info.Align = 8

		return info, nil
	}

	offsets, size, align := layout.PlaceAggregate(entries, 1)
	union.TagOffset, union.SlotOffset = offsets[0], offsets[1]
	union.InlineSize = size
	info.Kind = kind.FixedUnion
	info.Size = size
	info.Align = align

	return info, nil
}

func classifyAggregate(t reflect.Type, inProgress map[reflect.Type]*TypeInfo) (*TypeInfo, error) {
	info := &TypeInfo{GoType: t}
	inProgress[t] = info
	defer delete(inProgress, t)

	var fields []Field
	variable := false
	sig := strings.Builder{}

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}

		ft, err := parseFieldTag(sf.Tag.Get("zmem"))
		if err != nil {
			return nil, err
		}
		if ft.skip {
			continue
		}

		var fieldInfo *TypeInfo
		if sf.Type.Kind() == reflect.String && ft.hasStrlen {
			fieldInfo = &TypeInfo{
				GoType:      sf.Type,
				Kind:        kind.FixedString,
				Size:        ft.strlen,
				Align:       1,
				StrLen:      ft.strlen,
				Fingerprint: signatureFingerprint(fmt.Sprintf("strlen:%d", ft.strlen)),
			}
		} else {
			fieldInfo, err = classify(sf.Type, inProgress)
			if err != nil {
				return nil, err
			}
		}

		if fieldInfo.Kind.IsVariable() {
			variable = true
		}

		fields = append(fields, Field{Name: sf.Name, Type: fieldInfo, GoIndex: sf.Index})
		fmt.Fprintf(&sig, "%s:%s;", sf.Name, fieldInfo.Kind)
	}

	info.Fields = fields
	info.Fingerprint = signatureFingerprint(t.String() + "{" + sig.String() + "}")

	entries := make([]layout.Entry, len(fields))
	for i, f := range fields {
		size := f.Type.Size
		align := f.Type.Align
		if f.Type.Kind.IsVariable() {
			size, align = 16, 8 // inline reference footprint
		}
		entries[i] = layout.Entry{Size: size, Align: align}
	}

	if variable {
		offsets, cursor, _ := layout.Place(entries)
		info.FieldOffsets = offsets
		info.InlineSize = layout.RoundUp8(cursor)
		info.Kind = kind.VariableAggregate
		info.Align = 8

		return info, nil
	}

	offsets, size, align := layout.PlaceAggregate(entries, 1)
	info.FieldOffsets = offsets
	info.Kind = kind.FixedAggregate
	info.Size = size
	info.Align = align

	return info, nil
}
