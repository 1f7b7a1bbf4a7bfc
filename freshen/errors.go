package freshen

import "errors"

// Engine-layer sentinels. The rowfresh package may translate these into its
// public error contract.
var (
	// ErrPoolClosed is returned when submitting to or checking out of a
	// closed pool.
	ErrPoolClosed = errors.New("freshen: pool closed")
)
