package zmem

import (
	"fmt"
	"reflect"

	"github.com/zmem-org/ZMEM/codec"
	"github.com/zmem-org/ZMEM/errs"
	"github.com/zmem-org/ZMEM/predict"
	"github.com/zmem-org/ZMEM/schema"
	"github.com/zmem-org/ZMEM/view"
)

// Optional represents a value that may be absent (spec.md §3,
// "Optional<T>"). See schema.Optional for the wire layout it realizes.
type Optional[T any] = schema.Optional[T]

// NewOptional returns a present Optional wrapping value.
func NewOptional[T any](value T) Optional[T] {
	return schema.NewOptional(value)
}

// Int128 and UInt128 are ZMEM's 128-bit fixed primitives.
type (
	Int128  = schema.Int128
	UInt128 = schema.UInt128
)

// WriteOption configures Write.
type WriteOption = codec.Option

// WithMaxSize bounds a growing Write: once the encoded length would
// exceed n bytes, Write returns an error wrapping ErrBufferTooSmall
// instead of growing further.
func WithMaxSize(n int) WriteOption {
	return codec.WithMaxSize(n)
}

// WithSchemaCheck prefixes Write's output with an 8-byte fingerprint of
// value's type, which a Read call given the matching ReadOption verifies
// before decoding. A debug aid for catching "read into the wrong Go
// type" mistakes, not a wire format feature.
func WithSchemaCheck() WriteOption {
	return codec.WithSchemaCheck()
}

// ReadOption configures Read.
type ReadOption = codec.ReaderOption

// WithStrict enables the decode-time policy checks spec.md §7 category 3
// reserves for untrusted input: rejecting a non-canonical optional
// presence flag byte or boolean byte instead of treating any nonzero
// byte as present / true.
func WithStrict() ReadOption {
	return codec.WithStrict()
}

// WithVerifySchema verifies the 8-byte fingerprint header a Write call
// given the matching WithSchemaCheck WriteOption prefixed the buffer
// with, returning an error wrapping ErrSchemaMismatch if out does not
// match the buffer's recorded type.
func WithVerifySchema() ReadOption {
	return codec.WithVerifySchema()
}

// Size returns the number of bytes Write(value) would produce.
func Size(value any) (int, error) {
	v := reflect.ValueOf(value)

	info, err := schema.Of(v.Type())
	if err != nil {
		return 0, err
	}

	return predict.Value(v, info)
}

// Write encodes value into a growing, pooled buffer and returns a copy of
// the result.
func Write(value any, opts ...WriteOption) ([]byte, error) {
	v := reflect.ValueOf(value)

	info, err := schema.Of(v.Type())
	if err != nil {
		return nil, err
	}

	return codec.Encode(v, info, opts...)
}

// WritePreallocated sizes a buffer exactly via Size, then encodes value
// into it without ever growing (spec.md §4.4's preallocated mode).
func WritePreallocated(value any) ([]byte, error) {
	v := reflect.ValueOf(value)

	info, err := schema.Of(v.Type())
	if err != nil {
		return nil, err
	}

	return codec.EncodePreallocated(v, info)
}

// Read decodes buf into *out, which must be a non-nil pointer to a type
// previously classifiable by Write.
func Read(buf []byte, out any, opts ...ReadOption) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("%w: Read requires a non-nil pointer, got %T", errs.ErrUnsupportedType, out)
	}

	elem := rv.Elem()

	info, err := schema.Of(elem.Type())
	if err != nil {
		return err
	}

	return codec.Decode(buf, elem, info, opts...)
}

// View opens a lazy, non-owning accessor over buf for type T, which must
// be a FixedAggregate or VariableAggregate. The returned *view.View
// borrows buf for its entire lifetime.
func View[T any](buf []byte) (*view.View, error) {
	var zero T

	info, err := schema.Of(reflect.TypeOf(zero))
	if err != nil {
		return nil, err
	}

	return view.Open(buf, info)
}

// Register installs a precomputed schema.TypeInfo for T, bypassing
// reflection-based classification (spec.md §9's manifest escape hatch).
func Register[T any](info *schema.TypeInfo) {
	var zero T

	schema.Register(reflect.TypeOf(zero), info)
}
