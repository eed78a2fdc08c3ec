// Package layout implements the field placement algorithm shared by the
// predictor, writer and reader (spec.md §4.3): given an ordered list of
// (size, align) pairs, compute each field's byte offset and the
// aggregate's total size, inserting zero-padding exactly where the
// alignment rules require it.
package layout

// Entry is one field's size and alignment, the minimal input the
// placement algorithm needs. The schema package supplies these from a
// classified TypeInfo; callers outside schema never construct one
// directly.
type Entry struct {
	Size  int
	Align int
}

// RoundUp rounds n up to the next multiple of align. An align of 1 or
// less returns n unchanged.
func RoundUp(n, align int) int {
	if align <= 1 {
		return n
	}
	if n%align == 0 {
		return n
	}

	return n + (align - n%align)
}

// RoundUp8 rounds n up to the next multiple of 8, the content-region
// padding rule every variable aggregate obeys (spec.md §3).
func RoundUp8(n int) int {
	return RoundUp(n, 8)
}

// Place computes the byte offset of each entry under the rule from
// spec.md §4.3:
//
//	cursor = 0
//	for each field f:
//	    pad = (−cursor) mod align(f)
//	    field_offset(f) = cursor + pad
//	    cursor = cursor + pad + size(f)
//	aggregate_size = round_up(cursor, aggregate_alignment)
//
// It returns each entry's offset, the content cursor before final
// rounding, and the maximum field alignment observed (the aggregate's
// natural alignment before any floor is applied).
func Place(entries []Entry) (offsets []int, contentSize int, maxAlign int) {
	offsets = make([]int, len(entries))
	cursor := 0
	maxAlign = 1

	for i, e := range entries {
		align := e.Align
		if align < 1 {
			align = 1
		}

		pad := RoundUp(cursor, align) - cursor
		cursor += pad
		offsets[i] = cursor
		cursor += e.Size

		if align > maxAlign {
			maxAlign = align
		}
	}

	return offsets, cursor, maxAlign
}

// PlaceAggregate places entries and rounds the final size up to a
// multiple of the aggregate's alignment, which is the maximum field
// alignment with floorAlign as a lower bound (spec.md §4.3: "Aggregate
// alignment is the maximum field alignment, with a floor of 8 for
// variable aggregates"). Pass floorAlign=1 for fixed aggregates.
func PlaceAggregate(entries []Entry, floorAlign int) (offsets []int, size int, align int) {
	offsets, cursor, maxAlign := Place(entries)
	align = maxAlign
	if floorAlign > align {
		align = floorAlign
	}

	return offsets, RoundUp(cursor, align), align
}
