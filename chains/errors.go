package chains

import "errors"

var (
	// ErrRejected means the chain refused the transaction. Final.
	ErrRejected = errors.New("rejected by chain")

	// ErrUnavailable means the chain endpoint could not be reached or timed
	// out. The submission may be retried.
	ErrUnavailable = errors.New("chain unavailable")
)
