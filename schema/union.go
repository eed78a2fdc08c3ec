package schema

import "reflect"

// UnionInfo describes a tagged union (spec.md §3, "Tagged union : Tag").
// ZMEM cannot discover a union's variant set by structural reflection
// alone — Go has no sum types — so a union is always a plain struct whose
// fields carry explicit `zmem:"tag"` / `zmem:"variant=N"` tags (spec.md
// §9's manifest fallback, applied at the field-tag granularity instead of
// a separate registration call).
type UnionInfo struct {
	TagGoIndex []int        // reflect index path to the Tag field
	TagType    *TypeInfo    // the Tag field's primitive TypeInfo
	Variants   []UnionVariant
	// MaxSlot is the byte size of the shared variant slot: max(size) over
	// fixed variants, or max(inline size) over all variants for a
	// variable union (spec.md §4.4, "max_variant_payload"/"max_inline").
	MaxSlot int
	// SlotAlign is the alignment of the shared variant slot.
	SlotAlign int
	// TagOffset and SlotOffset are the tag and slot byte offsets within
	// the union's inline section.
	TagOffset  int
	SlotOffset int
	// InlineSize is the inline section size: for a FixedUnion this equals
	// TypeInfo.Size (rounded to the union's alignment, not to 8); for a
	// VariableUnion it's the tag-plus-slot prefix padded to 8, before the
	// variable section begins.
	InlineSize int
}

// UnionVariant is one tagged alternative of a union.
type UnionVariant struct {
	Tag     uint64
	Name    string
	GoIndex []int
	Type    *TypeInfo
}

// hasUnionTags reports whether t (a struct) carries any `zmem:"variant=N"`
// field tag, which is what triggers union classification instead of plain
// aggregate classification.
func hasUnionTags(t reflect.Type) bool {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}

		ft, err := parseFieldTag(f.Tag.Get("zmem"))
		if err == nil && ft.isVariant {
			return true
		}
	}

	return false
}
