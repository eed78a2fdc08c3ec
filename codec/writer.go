// Package codec implements ZMEM's writer and reader (spec.md §4.4, §4.5):
// the two-phase walk that places an inline section with provisional
// offsets, then places variable payloads and patches those offsets.
package codec

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/zmem-org/ZMEM/endian"
	"github.com/zmem-org/ZMEM/errs"
	"github.com/zmem-org/ZMEM/internal/options"
	"github.com/zmem-org/ZMEM/internal/pool"
	"github.com/zmem-org/ZMEM/kind"
	"github.com/zmem-org/ZMEM/predict"
	"github.com/zmem-org/ZMEM/schema"
)

// Writer accumulates encoded bytes in a pooled, growable buffer. The zero
// value is not usable; construct one with NewGrowing (EncodePreallocated
// builds its own pre-sized Writer internally).
type Writer struct {
	bb          *pool.ByteBuffer
	maxSize     int // 0 = unbounded; growing mode only
	schemaCheck bool
}

// Option configures a Writer.
type Option = options.Option[*Writer]

// WithMaxSize bounds a growing Writer: once the encoded length would
// exceed n bytes, Encode returns errs.ErrBufferTooSmall instead of
// growing further (spec.md §7 category 2).
func WithMaxSize(n int) Option {
	return options.NoError(func(w *Writer) { w.maxSize = n })
}

// WithSchemaCheck prefixes the encoded output with an 8-byte xxHash64
// fingerprint of the root type's field signature (schema.TypeInfo.
// Fingerprint). Only a Reader built with WithVerifySchema strips this
// header; a plain Read takes its first 8 bytes as the size header and does
// not decode the buffer correctly. Paired with WithVerifySchema it catches
// a reader built against the wrong Go type before it manifests as a
// corrupted field read.
func WithSchemaCheck() Option {
	return options.NoError(func(w *Writer) { w.schemaCheck = true })
}

// NewGrowing returns a Writer backed by a pooled buffer that grows with
// bounds checks on every emit (spec.md §4.4, "growing" mode).
func NewGrowing(opts ...Option) (*Writer, error) {
	w := &Writer{bb: pool.Default.Get()}
	if err := options.Apply(w, opts...); err != nil {
		return nil, err
	}

	return w, nil
}

// Release returns the Writer's buffer to the pool. Call after copying out
// Bytes(); the Writer must not be used afterward.
func (w *Writer) Release() {
	pool.Default.Put(w.bb)
}

// Bytes returns the buffer's contents so far.
func (w *Writer) Bytes() []byte {
	return w.bb.Bytes()
}

func (w *Writer) reserve(n int) error {
	if w.maxSize > 0 && w.bb.Len()+n > w.maxSize {
		return errs.ErrBufferTooSmall
	}

	return nil
}

func (w *Writer) appendZeros(n int) (int, error) {
	if err := w.reserve(n); err != nil {
		return 0, err
	}

	return w.bb.AppendZeros(n), nil
}

func (w *Writer) appendBytes(b []byte) (int, error) {
	if err := w.reserve(len(b)); err != nil {
		return 0, err
	}

	return w.bb.Append(b), nil
}

func (w *Writer) patch(offset int, b []byte) {
	copy(w.bb.B[offset:], b)
}

// Encode writes v (classified by info) into a growing Writer and returns a
// copy of the produced bytes.
func Encode(v reflect.Value, info *schema.TypeInfo, opts ...Option) ([]byte, error) {
	w, err := NewGrowing(opts...)
	if err != nil {
		return nil, err
	}
	defer w.Release()

	if w.schemaCheck {
		fp := make([]byte, 8)
		endian.Little.PutUint64(fp, info.Fingerprint)
		if _, err := w.appendBytes(fp); err != nil {
			return nil, err
		}
	}

	if err := w.writeRoot(v, info); err != nil {
		return nil, err
	}

	out := make([]byte, w.bb.Len())
	copy(out, w.bb.Bytes())

	return out, nil
}

// EncodePreallocated sizes a buffer exactly via predict.Value, then writes
// into it without ever growing (spec.md §4.4, "preallocated" mode). A
// final length mismatch is a size-predictor bug, not caller-facing input
// error, and is reported as a panic per spec.md §7 category 2.
func EncodePreallocated(v reflect.Value, info *schema.TypeInfo) ([]byte, error) {
	size, err := predict.Value(v, info)
	if err != nil {
		return nil, err
	}

	w := &Writer{bb: pool.NewByteBuffer(size)}
	if err := w.writeRoot(v, info); err != nil {
		return nil, err
	}

	if w.bb.Len() != size {
		panic(fmt.Sprintf("zmem: preallocated size mismatch: predicted %d, wrote %d", size, w.bb.Len()))
	}

	return w.bb.Bytes(), nil
}

func (w *Writer) writeRoot(v reflect.Value, info *schema.TypeInfo) error {
	if !info.Kind.IsVariable() {
		fb, err := emitFixed(v, info)
		if err != nil {
			return err
		}
		if _, err := w.appendBytes(fb); err != nil {
			return err
		}

		pad := roundUp8(len(fb)) - len(fb)
		_, err = w.appendZeros(pad)

		return err
	}

	switch info.Kind {
	case kind.VariableAggregate:
		return w.writeSelfContained(v, info, w.writeAggregateContent)
	case kind.VariableUnion:
		return w.writeSelfContained(v, info, w.writeUnionContent)
	default:
		return fmt.Errorf("%w: %s is not a valid root type (root must be an aggregate or union)", errs.ErrUnsupportedType, info.Kind)
	}
}

// writeSelfContained reserves the 8-byte total-size header, invokes body
// to emit the content, then patches the header with the content's length
// (spec.md §4.4 steps 1 and 7).
func (w *Writer) writeSelfContained(v reflect.Value, info *schema.TypeInfo, body func(reflect.Value, *schema.TypeInfo) error) error {
	headerAt, err := w.appendZeros(8)
	if err != nil {
		return err
	}

	contentStart := w.bb.Len()

	if err := body(v, info); err != nil {
		return err
	}

	contentLen := w.bb.Len() - contentStart
	pad := roundUp8(contentLen) - contentLen
	if _, err := w.appendZeros(pad); err != nil {
		return err
	}

	sizeBuf := make([]byte, 8)
	endian.Little.PutUint64(sizeBuf, uint64(contentLen+pad))
	w.patch(headerAt, sizeBuf)

	return nil
}

// writeAggregateContent emits a VariableAggregate's inline section
// (fixed fields direct, variable fields as zero-filled placeholders) and
// then its variable-section payloads, patching each inline reference in
// turn (spec.md §4.4 steps 2-5).
func (w *Writer) writeAggregateContent(v reflect.Value, info *schema.TypeInfo) error {
	inlineBase := w.bb.Len()

	refSlots := make([]int, len(info.Fields))

	for i, f := range info.Fields {
		off := info.FieldOffsets[i]
		if pad := off - (w.bb.Len() - inlineBase); pad > 0 {
			if _, err := w.appendZeros(pad); err != nil {
				return err
			}
		}

		if f.Type.Kind.IsVariable() {
			slot, err := w.appendZeros(16)
			if err != nil {
				return err
			}
			refSlots[i] = slot

			continue
		}

		fb, err := emitFixed(v.FieldByIndex(f.GoIndex), f.Type)
		if err != nil {
			return fmt.Errorf("field %s: %w", f.Name, err)
		}
		if _, err := w.appendBytes(fb); err != nil {
			return err
		}
	}

	if pad := roundUp8(w.bb.Len()-inlineBase) - (w.bb.Len() - inlineBase); pad > 0 {
		if _, err := w.appendZeros(pad); err != nil {
			return err
		}
	}

	for i, f := range info.Fields {
		if !f.Type.Kind.IsVariable() {
			continue
		}

		if pad := roundUp8(w.bb.Len()-inlineBase) - (w.bb.Len() - inlineBase); pad > 0 {
			if _, err := w.appendZeros(pad); err != nil {
				return err
			}
		}

		payloadOffset := w.bb.Len() - inlineBase
		fv := v.FieldByIndex(f.GoIndex)

		countOrLen, err := w.writePayload(fv, f.Type)
		if err != nil {
			return fmt.Errorf("field %s: %w", f.Name, err)
		}

		refBuf := make([]byte, 16)
		endian.Little.PutUint64(refBuf[0:8], uint64(payloadOffset))
		endian.Little.PutUint64(refBuf[8:16], countOrLen)
		w.patch(refSlots[i], refBuf)
	}

	return nil
}

// writeUnionContent emits a union's tag, the shared variant slot, and (for
// a variable active variant) the variant's payload in the variable
// section beyond the slot.
func (w *Writer) writeUnionContent(v reflect.Value, info *schema.TypeInfo) error {
	u := info.Union
	inlineBase := w.bb.Len()

	variant, variantValue, err := selectVariant(v, u)
	if err != nil {
		return err
	}

	if pad := u.TagOffset - (w.bb.Len() - inlineBase); pad > 0 {
		if _, err := w.appendZeros(pad); err != nil {
			return err
		}
	}

	tagBuf, err := emitFixed(v.FieldByIndex(u.TagGoIndex), u.TagType)
	if err != nil {
		return err
	}
	if _, err := w.appendBytes(tagBuf); err != nil {
		return err
	}

	if pad := u.SlotOffset - (w.bb.Len() - inlineBase); pad > 0 {
		if _, err := w.appendZeros(pad); err != nil {
			return err
		}
	}

	if variant.Type.Kind.IsVariable() {
		slot, err := w.appendZeros(u.MaxSlot)
		if err != nil {
			return err
		}

		if pad := roundUp8(w.bb.Len()-inlineBase) - (w.bb.Len() - inlineBase); pad > 0 {
			if _, err := w.appendZeros(pad); err != nil {
				return err
			}
		}

		payloadOffset := w.bb.Len() - inlineBase

		countOrLen, err := w.writePayload(variantValue, variant.Type)
		if err != nil {
			return fmt.Errorf("union variant %s: %w", variant.Name, err)
		}

		refBuf := make([]byte, 16)
		endian.Little.PutUint64(refBuf[0:8], uint64(payloadOffset))
		endian.Little.PutUint64(refBuf[8:16], countOrLen)
		w.patch(slot, refBuf)

		return nil
	}

	vb, err := emitFixed(variantValue, variant.Type)
	if err != nil {
		return fmt.Errorf("union variant %s: %w", variant.Name, err)
	}

	slotBuf := make([]byte, u.MaxSlot)
	copy(slotBuf, vb)

	_, err = w.appendBytes(slotBuf)

	return err
}

// writePayload emits one variable value's payload bytes and returns the
// count-or-length word its inline reference should carry.
func (w *Writer) writePayload(v reflect.Value, info *schema.TypeInfo) (uint64, error) {
	switch info.Kind {
	case kind.VariableAggregate:
		return 1, w.writeSelfContained(v, info, w.writeAggregateContent)
	case kind.VariableUnion:
		return 1, w.writeSelfContained(v, info, w.writeUnionContent)
	case kind.VectorFixed:
		return w.writeVectorFixed(v, info)
	case kind.VectorVariable:
		return w.writeVectorVariable(v, info)
	case kind.VariableString:
		return w.writeVariableString(v)
	case kind.MapFixed:
		return w.writeMapFixed(v, info)
	case kind.MapVariable:
		count := uint64(v.Len())

		return count, w.writeSelfContained(v, info, w.writeMapVariableContent)
	default:
		return 0, fmt.Errorf("%w: %s is not a variable-section payload kind", errs.ErrUnsupportedType, info.Kind)
	}
}

func (w *Writer) writeVectorFixed(v reflect.Value, info *schema.TypeInfo) (uint64, error) {
	n := v.Len()
	for i := 0; i < n; i++ {
		eb, err := emitFixed(v.Index(i), info.Elem)
		if err != nil {
			return 0, fmt.Errorf("element %d: %w", i, err)
		}
		if _, err := w.appendBytes(eb); err != nil {
			return 0, err
		}
	}

	return uint64(n), nil
}

// writeVectorVariable emits an offset table of (count+1) byte-offsets
// (spec.md §3's "Vector of variable T" row), followed by a parallel table
// of count true element counts/lengths. The byte-offset table alone
// bounds each element's byte range, but that range is only a valid count
// or length for self-describing element kinds (VariableAggregate,
// VariableUnion, MapFixed, MapVariable carry their own header or count);
// VectorFixed and VectorVariable elements need the true value
// writePayload returns, not the byte span, so it is carried alongside.
func (w *Writer) writeVectorVariable(v reflect.Value, info *schema.TypeInfo) (uint64, error) {
	n := v.Len()
	tableStart := w.bb.Len()
	tableSize := (n+1)*8 + n*8

	if _, err := w.appendZeros(tableSize); err != nil {
		return 0, err
	}

	dataStart := w.bb.Len()
	offsets := make([]uint64, n+1)
	lens := make([]uint64, n)

	for i := 0; i < n; i++ {
		if pad := roundUp8(w.bb.Len()-dataStart) - (w.bb.Len() - dataStart); pad > 0 {
			if _, err := w.appendZeros(pad); err != nil {
				return 0, err
			}
		}

		offsets[i] = uint64(w.bb.Len() - dataStart)

		countOrLen, err := w.writePayload(v.Index(i), info.Elem)
		if err != nil {
			return 0, fmt.Errorf("element %d: %w", i, err)
		}
		lens[i] = countOrLen
	}
	offsets[n] = uint64(w.bb.Len() - dataStart)

	tableBuf := make([]byte, tableSize)
	for i, off := range offsets {
		endian.Little.PutUint64(tableBuf[i*8:], off)
	}
	for i, l := range lens {
		endian.Little.PutUint64(tableBuf[(n+1)*8+i*8:], l)
	}
	w.patch(tableStart, tableBuf)

	return uint64(n), nil
}

func (w *Writer) writeVariableString(v reflect.Value) (uint64, error) {
	s := v.String()
	_, err := w.appendBytes([]byte(s))

	return uint64(len(s)), err
}

type mapEntry struct {
	key   reflect.Value
	value reflect.Value
}

func sortedMapEntries(v reflect.Value, keyInfo *schema.TypeInfo) []mapEntry {
	entries := make([]mapEntry, 0, v.Len())

	iter := v.MapRange()
	for iter.Next() {
		entries = append(entries, mapEntry{key: iter.Key(), value: iter.Value()})
	}

	sort.Slice(entries, func(i, j int) bool {
		return mapKeyLess(entries[i].key, entries[j].key, keyInfo)
	})

	return entries
}

func mapKeyLess(a, b reflect.Value, keyInfo *schema.TypeInfo) bool {
	if keyInfo.Kind == kind.VariableString {
		return a.String() < b.String()
	}

	switch a.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return a.Int() < b.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return a.Uint() < b.Uint()
	case reflect.Float32, reflect.Float64:
		return a.Float() < b.Float()
	case reflect.Bool:
		return !a.Bool() && b.Bool()
	default:
		return false
	}
}

// checkMapOrder reports whether key strictly follows prev in wire order,
// distinguishing an exact duplicate from a merely out-of-order entry.
func checkMapOrder(prev, key reflect.Value, keyInfo *schema.TypeInfo) error {
	if mapKeyLess(key, prev, keyInfo) {
		return errs.ErrMapUnsorted
	}
	if !mapKeyLess(prev, key, keyInfo) {
		return errs.ErrMapDuplicateKey
	}

	return nil
}

func (w *Writer) writeMapFixed(v reflect.Value, info *schema.TypeInfo) (uint64, error) {
	entries := sortedMapEntries(v, info.Key)

	countBuf := make([]byte, 8)
	endian.Little.PutUint64(countBuf, uint64(len(entries)))
	if _, err := w.appendBytes(countBuf); err != nil {
		return 0, err
	}

	for _, e := range entries {
		if err := w.writeMapKey(e.key, info.Key); err != nil {
			return 0, err
		}

		vb, err := emitFixed(e.value, info.Elem)
		if err != nil {
			return 0, err
		}
		if _, err := w.appendBytes(vb); err != nil {
			return 0, err
		}
	}

	return uint64(len(entries)), nil
}

func (w *Writer) writeMapVariableContent(v reflect.Value, info *schema.TypeInfo) error {
	entries := sortedMapEntries(v, info.Key)

	countBuf := make([]byte, 8)
	endian.Little.PutUint64(countBuf, uint64(len(entries)))
	if _, err := w.appendBytes(countBuf); err != nil {
		return err
	}

	entriesStart := w.bb.Len()
	refSlots := make([]int, len(entries))

	for i, e := range entries {
		if err := w.writeMapKey(e.key, info.Key); err != nil {
			return err
		}

		slot, err := w.appendZeros(16)
		if err != nil {
			return err
		}
		refSlots[i] = slot
	}

	sectionBase := w.bb.Len()
	if pad := roundUp8(w.bb.Len()-entriesStart) - (w.bb.Len() - entriesStart); pad > 0 {
		if _, err := w.appendZeros(pad); err != nil {
			return err
		}
		sectionBase = w.bb.Len()
	}

	for i, e := range entries {
		offset := w.bb.Len() - sectionBase

		countOrLen, err := w.writePayload(e.value, info.Elem)
		if err != nil {
			return err
		}

		refBuf := make([]byte, 16)
		endian.Little.PutUint64(refBuf[0:8], uint64(offset))
		endian.Little.PutUint64(refBuf[8:16], countOrLen)
		w.patch(refSlots[i], refBuf)
	}

	return nil
}

func (w *Writer) writeMapKey(key reflect.Value, keyInfo *schema.TypeInfo) error {
	if keyInfo.Kind == kind.VariableString {
		s := key.String()
		lenBuf := make([]byte, 4)
		endian.Little.PutUint32(lenBuf, uint32(len(s)))
		if _, err := w.appendBytes(lenBuf); err != nil {
			return err
		}
		_, err := w.appendBytes([]byte(s))

		return err
	}

	kb, err := emitFixed(key, keyInfo)
	if err != nil {
		return err
	}
	_, err = w.appendBytes(kb)

	return err
}

func roundUp8(n int) int {
	if n%8 == 0 {
		return n
	}

	return n + (8 - n%8)
}
