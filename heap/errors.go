package heap

import "errors"

// Sentinel errors this package can return. Callers (vm) map these onto the
// pre-allocated exception objects from §7 rather than allocating a new
// exception for them, since raising NoMemoryError/arena-overflow must
// never itself allocate.
var (
	errArenaOverflow = errors.New("heap: arena overflow")
	ErrArenaOverflow = errArenaOverflow
	ErrOutOfMemory   = errors.New("heap: out of memory")
)
