// Package endian provides the byte-order primitives ZMEM uses to read and
// write multi-byte values on the wire.
//
// ZMEM's wire format is little-endian only (see spec.md §9, "Endian
// scope"): target hosts are assumed little-endian and no byte-swap shims
// are implemented for big-endian hosts. The EndianEngine abstraction is
// kept anyway, combining encoding/binary's ByteOrder and AppendByteOrder
// the way the teacher's endian package does, so call sites read the same
// regardless of which concrete engine backs them and so tests can probe
// byte order mechanically without hand-rolling shifts.
package endian

import (
	"encoding/binary"
	"unsafe"
)

// EndianEngine combines ByteOrder and AppendByteOrder from encoding/binary
// into one interface. binary.LittleEndian and binary.BigEndian both satisfy
// it already.
type EndianEngine interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// Little is the engine ZMEM encodes and decodes with. It is the only engine
// the codec and view packages use; callers never choose an alternative.
var Little EndianEngine = binary.LittleEndian

// IsNativeLittleEndian reports whether the running host is little-endian.
// Used by the view package to decide whether a vector of fixed elements can
// be reinterpreted in place with unsafe.Slice or must be copied field by
// field.
func IsNativeLittleEndian() bool {
	var i uint16 = 0x0001
	b := (*[2]byte)(unsafe.Pointer(&i))

	return b[0] == 0x01
}
