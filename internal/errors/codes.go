// Package errors provides the structured error taxonomy shared by every
// component of the vector engine: metric/codec validation, the segmented
// store, the write-ahead log, the HNSW index, and replication.
package errors

// Code identifies one of the error classes a public operation can return.
type Code string

const (
	// InvalidInput covers dimension mismatch, NaN coordinates, or a point
	// outside the metric's valid manifold. Never retried.
	InvalidInput Code = "INVALID_INPUT"
	// NotFound covers an unknown external id or collection name.
	NotFound Code = "NOT_FOUND"
	// AlreadyExists covers CreateCollection against an existing name.
	AlreadyExists Code = "ALREADY_EXISTS"
	// OutOfRange covers an internal id beyond the store's current allocation.
	OutOfRange Code = "OUT_OF_RANGE"
	// IoError covers a failed store or WAL read/write.
	IoError Code = "IO_ERROR"
	// Corruption covers a bad WAL CRC or an inconsistent snapshot.
	Corruption Code = "CORRUPTION"
	// Cancelled covers an operation that hit its caller-supplied deadline.
	Cancelled Code = "CANCELLED"
	// Unavailable covers a follower unable to reach its leader.
	Unavailable Code = "UNAVAILABLE"
	// DurabilityDowngrade covers an fsync failure that forced an ack at a
	// weaker durability level than requested.
	DurabilityDowngrade Code = "DURABILITY_DOWNGRADE"
)

// retryable reports whether a Code is worth retrying without caller
// intervention. InvalidInput and AlreadyExists never are.
func retryable(c Code) bool {
	switch c {
	case IoError, Unavailable:
		return true
	default:
		return false
	}
}

// fatalCode reports whether a Code should mark the owning collection
// read-only until restart. Only Corruption is fatal from its code alone;
// IoError is not marked fatal here.
func fatalCode(c Code) bool {
	switch c {
	case Corruption:
		return true
	default:
		return false
	}
}
