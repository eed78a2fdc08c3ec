// Package hash computes the xxHash64 fingerprint ZMEM uses, optionally,
// to guard decoding against a mismatched target type. Adapted from mebo's internal/hash package, which hashes
// metric name strings the same way to derive a metric ID; here the
// hashed string is a type's classified field signature instead of a
// metric name.
package hash

import "github.com/cespare/xxhash/v2"

// Fingerprint computes the xxHash64 of a type's field signature string,
// used as the optional on-wire schema guard.
func Fingerprint(signature string) uint64 {
	return xxhash.Sum64String(signature)
}
