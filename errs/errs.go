// Package errs collects the sentinel errors the ZMEM codec returns.
//
// Call sites wrap a sentinel with fmt.Errorf("%w: ...", errs.ErrX, ...) to
// add context, and errors.Is against the sentinel to classify the failure.
// Some decode-path errors (size-header checks, inline-section bounds,
// offset-table and map-reference ranges) additionally carry byte-offset
// context via OffsetError; the rest, such as bounds failures inside a
// fixed value, vector count overflows, map ordering errors and schema
// mismatches, are returned without an offset.
package errs

import (
	"errors"
	"strconv"
)

// Input-shape errors (spec.md §7 category 1): untrusted decoder input.
var (
	ErrUnexpectedEnd       = errors.New("zmem: unexpected end of buffer")
	ErrSizeHeaderMismatch  = errors.New("zmem: size header does not match buffer length")
	ErrOffsetOutOfRange    = errors.New("zmem: offset or span falls outside the declared content region")
	ErrVectorCountOverflow = errors.New("zmem: vector count would overflow available data")
	ErrMapUnsorted         = errors.New("zmem: map entries are not sorted ascending by key")
	ErrMapDuplicateKey     = errors.New("zmem: map contains a duplicate key")
	ErrOptionalInvalidFlag = errors.New("zmem: optional presence flag byte is neither 0 nor 1")
	ErrNonCanonicalBoolean = errors.New("zmem: boolean byte is neither 0 nor 1")
	ErrInvalidHeaderSize   = errors.New("zmem: total-size header is not a multiple of 8")
	ErrSchemaMismatch      = errors.New("zmem: decoded schema fingerprint does not match the target type")
)

// Resource errors (spec.md §7 category 2): trusted encoder path, growing mode.
var (
	ErrBufferTooSmall = errors.New("zmem: sink declined to grow to accommodate the write")
)

// Classification / registration errors: raised by the schema package, not
// the wire codec, but surfaced through the same error taxonomy.
var (
	ErrUnsupportedType  = errors.New("zmem: type cannot be classified as fixed or variable")
	ErrNotRegistered    = errors.New("zmem: type has no registered or reflectable schema")
	ErrInvalidFixedTag  = errors.New("zmem: invalid zmem struct tag for a fixed field")
	ErrMapKeyUnsortable = errors.New("zmem: map key type has no defined ordering for wire sorting")
)

// OffsetError wraps an error with the byte offset at which the violation
// was detected. The offset is relative to the region being decoded at
// that point (a value's size header or its content region), not to the
// start of the whole buffer.
type OffsetError struct {
	Offset int
	Err    error
}

// Error implements the error interface.
func (e *OffsetError) Error() string {
	return e.Err.Error() + ": at byte offset " + strconv.Itoa(e.Offset)
}

// Unwrap allows errors.Is/errors.As to see through to the wrapped sentinel.
func (e *OffsetError) Unwrap() error {
	return e.Err
}

// AtOffset wraps err with the byte offset at which it was detected. A nil
// err returns nil, so it can be used as a pass-through in call chains.
func AtOffset(offset int, err error) error {
	if err == nil {
		return nil
	}

	return &OffsetError{Offset: offset, Err: err}
}
