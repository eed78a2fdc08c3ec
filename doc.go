// Package zmem is a binary serialization codec that encodes structured
// Go values into a byte layout mirroring their in-memory representation
// for fixed-size aggregates, and a disciplined offset-table layout for
// aggregates containing variable-length fields (vectors, strings, maps).
//
// Fixed values are written and read by direct field copy; variable
// values carry an 8-byte total-size header, an inline section of fixed
// fields and inline references, and a variable section holding the
// referenced payloads. See the schema package for type classification,
// predict for exact size computation, codec for the writer and reader,
// and view for the lazy zero-copy accessor.
//
// A type is classified automatically through reflection plus `zmem:"..."`
// struct tags:
//
//	type Entity struct {
//	    ID      uint64
//	    Weights []float64
//	}
//
// Root values passed to Write/Read may be of any fixed kind, or a variable
// aggregate or tagged union; bare vectors, maps, or variable strings are
// not valid documents on their own. View accepts only a fixed or variable
// aggregate as its root.
package zmem
