package codec

import (
	"fmt"
	"reflect"

	"github.com/zmem-org/ZMEM/endian"
	"github.com/zmem-org/ZMEM/errs"
	"github.com/zmem-org/ZMEM/internal/options"
	"github.com/zmem-org/ZMEM/kind"
	"github.com/zmem-org/ZMEM/schema"
)

// Reader decodes ZMEM bytes into Go values, mirroring Writer (spec.md
// §4.5). The zero value is ready to use; Strict defaults to false, the
// zero-cost-read default spec.md §7 category 3 describes.
type Reader struct {
	strict      bool
	schemaCheck bool
}

// ReaderOption configures a Reader.
type ReaderOption = options.Option[*Reader]

// WithStrict enables the policy checks spec.md §7 category 3 reserves for
// decoding untrusted input: optional presence flags and boolean bytes
// other than 0 or 1 are rejected.
func WithStrict() ReaderOption {
	return options.NoError(func(r *Reader) { r.strict = true })
}

// WithVerifySchema expects buf to begin with the 8-byte fingerprint
// header a Writer built with WithSchemaCheck prefixes its output with,
// and verifies it against dst's own schema.TypeInfo.Fingerprint before
// decoding the remainder, returning errs.ErrSchemaMismatch on a mismatch.
func WithVerifySchema() ReaderOption {
	return options.NoError(func(r *Reader) { r.schemaCheck = true })
}

// Decode decodes buf into dst (addressable, classified by info).
func Decode(buf []byte, dst reflect.Value, info *schema.TypeInfo, opts ...ReaderOption) error {
	r := &Reader{}
	if err := options.Apply(r, opts...); err != nil {
		return err
	}

	if r.schemaCheck {
		if len(buf) < 8 {
			return errs.ErrUnexpectedEnd
		}
		if got := endian.Little.Uint64(buf[:8]); got != info.Fingerprint {
			return errs.ErrSchemaMismatch
		}
		buf = buf[8:]
	}

	return r.decodeRoot(buf, dst, info)
}

func (r *Reader) decodeRoot(buf []byte, dst reflect.Value, info *schema.TypeInfo) error {
	if !info.Kind.IsVariable() {
		needed := roundUp8(info.Size)
		if len(buf) < needed {
			return errs.ErrUnexpectedEnd
		}

		return readFixed(buf[:info.Size], dst, info, r.strict)
	}

	switch info.Kind {
	case kind.VariableAggregate:
		return r.decodeSelfContained(buf, dst, info, r.decodeAggregateContent)
	case kind.VariableUnion:
		return r.decodeSelfContained(buf, dst, info, r.decodeUnionContent)
	default:
		return fmt.Errorf("%w: %s is not a valid root type (root must be an aggregate or union)", errs.ErrUnsupportedType, info.Kind)
	}
}

func (r *Reader) decodeSelfContained(buf []byte, dst reflect.Value, info *schema.TypeInfo, body func([]byte, reflect.Value, *schema.TypeInfo) error) error {
	if len(buf) < 8 {
		return errs.AtOffset(0, errs.ErrUnexpectedEnd)
	}

	size := endian.Little.Uint64(buf[:8])
	if size%8 != 0 {
		return errs.AtOffset(0, errs.ErrInvalidHeaderSize)
	}
	if uint64(len(buf)) < 8+size {
		return errs.AtOffset(8, errs.ErrSizeHeaderMismatch)
	}

	return body(buf[8:8+size], dst, info)
}

func (r *Reader) decodeAggregateContent(content []byte, dst reflect.Value, info *schema.TypeInfo) error {
	for i, f := range info.Fields {
		off := info.FieldOffsets[i]

		if f.Type.Kind.IsVariable() {
			if off+16 > len(content) {
				return errs.AtOffset(off, errs.ErrUnexpectedEnd)
			}

			refOffset := endian.Little.Uint64(content[off : off+8])
			countOrLen := endian.Little.Uint64(content[off+8 : off+16])

			if err := r.decodePayloadRef(content, refOffset, countOrLen, dst.FieldByIndex(f.GoIndex), f.Type); err != nil {
				return fmt.Errorf("field %s: %w", f.Name, err)
			}

			continue
		}

		if off+f.Type.Size > len(content) {
			return errs.AtOffset(off, errs.ErrUnexpectedEnd)
		}
		if err := readFixed(content[off:off+f.Type.Size], dst.FieldByIndex(f.GoIndex), f.Type, r.strict); err != nil {
			return fmt.Errorf("field %s: %w", f.Name, err)
		}
	}

	return nil
}

func (r *Reader) decodeUnionContent(content []byte, dst reflect.Value, info *schema.TypeInfo) error {
	u := info.Union

	if u.TagOffset+u.TagType.Size > len(content) {
		return errs.AtOffset(u.TagOffset, errs.ErrUnexpectedEnd)
	}

	tagDst := dst.FieldByIndex(u.TagGoIndex)
	if err := readFixed(content[u.TagOffset:u.TagOffset+u.TagType.Size], tagDst, u.TagType, r.strict); err != nil {
		return err
	}

	tag, err := tagAsUint64(tagDst)
	if err != nil {
		return err
	}

	var variant *schema.UnionVariant
	for i := range u.Variants {
		if u.Variants[i].Tag == tag {
			variant = &u.Variants[i]

			break
		}
	}
	if variant == nil {
		return fmt.Errorf("%w: decoded union tag %d matches no registered variant", errs.ErrUnsupportedType, tag)
	}

	variantDst := dst.FieldByIndex(variant.GoIndex)

	if !variant.Type.Kind.IsVariable() {
		if u.SlotOffset+variant.Type.Size > len(content) {
			return errs.AtOffset(u.SlotOffset, errs.ErrUnexpectedEnd)
		}

		return readFixed(content[u.SlotOffset:u.SlotOffset+variant.Type.Size], variantDst, variant.Type, r.strict)
	}

	if u.SlotOffset+16 > len(content) {
		return errs.AtOffset(u.SlotOffset, errs.ErrUnexpectedEnd)
	}

	refOffset := endian.Little.Uint64(content[u.SlotOffset : u.SlotOffset+8])
	countOrLen := endian.Little.Uint64(content[u.SlotOffset+8 : u.SlotOffset+16])

	return r.decodePayloadRef(content, refOffset, countOrLen, variantDst, variant.Type)
}

// DecodePayload decodes a variable value's payload bytes into dst, given
// the count-or-length word its inline reference carried. Exported so the
// view package can resolve vector elements and variable fields with the
// same logic the owning reader uses.
func DecodePayload(buf []byte, countOrLen uint64, dst reflect.Value, info *schema.TypeInfo, strict bool) error {
	r := &Reader{strict: strict}

	return r.decodePayload(buf, countOrLen, dst, info)
}

// decodePayloadRef locates a variable payload at refOffset (relative to
// the start of content, i.e. the enclosing aggregate's byte 8) and
// decodes it into dst.
func (r *Reader) decodePayloadRef(content []byte, refOffset, countOrLen uint64, dst reflect.Value, info *schema.TypeInfo) error {
	if refOffset > uint64(len(content)) {
		return errs.AtOffset(int(refOffset), errs.ErrOffsetOutOfRange)
	}

	return r.decodePayload(content[refOffset:], countOrLen, dst, info)
}

func (r *Reader) decodePayload(buf []byte, countOrLen uint64, dst reflect.Value, info *schema.TypeInfo) error {
	switch info.Kind {
	case kind.VariableAggregate:
		return r.decodeSelfContained(buf, dst, info, r.decodeAggregateContent)
	case kind.VariableUnion:
		return r.decodeSelfContained(buf, dst, info, r.decodeUnionContent)
	case kind.VectorFixed:
		return r.decodeVectorFixed(buf, countOrLen, dst, info)
	case kind.VectorVariable:
		return r.decodeVectorVariable(buf, countOrLen, dst, info)
	case kind.VariableString:
		return r.decodeVariableString(buf, countOrLen, dst)
	case kind.MapFixed:
		return r.decodeMapFixed(buf, countOrLen, dst, info)
	case kind.MapVariable:
		return r.decodeSelfContained(buf, dst, info, r.decodeMapVariableContent)
	default:
		return fmt.Errorf("%w: %s is not a decodable variable-section payload", errs.ErrUnsupportedType, info.Kind)
	}
}

func (r *Reader) decodeVectorFixed(buf []byte, count uint64, dst reflect.Value, info *schema.TypeInfo) error {
	n := int(count)
	need := n * info.Elem.Size
	if need > len(buf) {
		return errs.ErrVectorCountOverflow
	}

	out := reflect.MakeSlice(info.GoType, n, n)
	for i := 0; i < n; i++ {
		off := i * info.Elem.Size
		if err := readFixed(buf[off:off+info.Elem.Size], out.Index(i), info.Elem, r.strict); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}

	dst.Set(out)

	return nil
}

func (r *Reader) decodeVectorVariable(buf []byte, count uint64, dst reflect.Value, info *schema.TypeInfo) error {
	n := int(count)
	tableLen := (n+1)*8 + n*8
	if tableLen > len(buf) {
		return errs.ErrVectorCountOverflow
	}

	offsets := make([]uint64, n+1)
	for i := range offsets {
		offsets[i] = endian.Little.Uint64(buf[i*8 : i*8+8])
	}

	lens := make([]uint64, n)
	for i := range lens {
		lens[i] = endian.Little.Uint64(buf[(n+1)*8+i*8 : (n+1)*8+i*8+8])
	}

	dataStart := tableLen
	out := reflect.MakeSlice(info.GoType, n, n)

	for i := 0; i < n; i++ {
		start, end := offsets[i], offsets[i+1]
		if end < start || int(dataStart)+int(end) > len(buf) {
			return errs.AtOffset(int(start), errs.ErrOffsetOutOfRange)
		}

		elemBuf := buf[int(dataStart)+int(start) : int(dataStart)+int(end)]
		if err := r.decodePayload(elemBuf, lens[i], out.Index(i), info.Elem); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}

	dst.Set(out)

	return nil
}

func (r *Reader) decodeVariableString(buf []byte, length uint64, dst reflect.Value) error {
	if length > uint64(len(buf)) {
		return errs.ErrUnexpectedEnd
	}

	dst.SetString(string(buf[:length]))

	return nil
}

func (r *Reader) decodeMapFixed(buf []byte, _ uint64, dst reflect.Value, info *schema.TypeInfo) error {
	if len(buf) < 8 {
		return errs.ErrUnexpectedEnd
	}

	count := endian.Little.Uint64(buf[:8])
	cursor := 8

	out := reflect.MakeMapWithSize(info.GoType, int(count))

	var prevKey reflect.Value
	for i := uint64(0); i < count; i++ {
		key, n, err := r.readMapKey(buf[cursor:], info.Key)
		if err != nil {
			return err
		}
		cursor += n

		if cursor+info.Elem.Size > len(buf) {
			return errs.AtOffset(cursor, errs.ErrUnexpectedEnd)
		}

		val := reflect.New(info.Elem.GoType).Elem()
		if err := readFixed(buf[cursor:cursor+info.Elem.Size], val, info.Elem, r.strict); err != nil {
			return err
		}
		cursor += info.Elem.Size

		if i > 0 {
			if err := checkMapOrder(prevKey, key, info.Key); err != nil {
				return err
			}
		}
		prevKey = key

		out.SetMapIndex(key, val)
	}

	dst.Set(out)

	return nil
}

func (r *Reader) decodeMapVariableContent(content []byte, dst reflect.Value, info *schema.TypeInfo) error {
	if len(content) < 8 {
		return errs.ErrUnexpectedEnd
	}

	count := endian.Little.Uint64(content[:8])
	entrySize := info.Key.Size + 16
	entriesStart := 8
	entriesEnd := entriesStart + int(count)*entrySize

	if entriesEnd > len(content) {
		return errs.ErrUnexpectedEnd
	}

	sectionBase := roundUp8(entriesEnd)

	out := reflect.MakeMapWithSize(info.GoType, int(count))

	var prevKey reflect.Value
	for i := uint64(0); i < count; i++ {
		entryOff := entriesStart + int(i)*entrySize

		key := reflect.New(info.Key.GoType).Elem()
		if err := readFixed(content[entryOff:entryOff+info.Key.Size], key, info.Key, r.strict); err != nil {
			return err
		}

		refOff := entryOff + info.Key.Size
		refOffset := endian.Little.Uint64(content[refOff : refOff+8])
		countOrLen := endian.Little.Uint64(content[refOff+8 : refOff+16])

		if sectionBase+int(refOffset) > len(content) {
			return errs.AtOffset(sectionBase+int(refOffset), errs.ErrOffsetOutOfRange)
		}

		val := reflect.New(info.Elem.GoType).Elem()
		if err := r.decodePayload(content[sectionBase+int(refOffset):], countOrLen, val, info.Elem); err != nil {
			return err
		}

		if i > 0 {
			if err := checkMapOrder(prevKey, key, info.Key); err != nil {
				return err
			}
		}
		prevKey = key

		out.SetMapIndex(key, val)
	}

	dst.Set(out)

	return nil
}

func (r *Reader) readMapKey(buf []byte, keyInfo *schema.TypeInfo) (reflect.Value, int, error) {
	if keyInfo.Kind == kind.VariableString {
		if len(buf) < 4 {
			return reflect.Value{}, 0, errs.ErrUnexpectedEnd
		}

		n := endian.Little.Uint32(buf[:4])
		if uint64(4+n) > uint64(len(buf)) {
			return reflect.Value{}, 0, errs.ErrUnexpectedEnd
		}

		key := reflect.New(keyInfo.GoType).Elem()
		key.SetString(string(buf[4 : 4+n]))

		return key, 4 + int(n), nil
	}

	if len(buf) < keyInfo.Size {
		return reflect.Value{}, 0, errs.ErrUnexpectedEnd
	}

	key := reflect.New(keyInfo.GoType).Elem()
	if err := readFixed(buf[:keyInfo.Size], key, keyInfo, r.strict); err != nil {
		return reflect.Value{}, 0, err
	}

	return key, keyInfo.Size, nil
}
