package mavftp

import "errors"

// Sentinel errors surfaced to callers per spec.md §7's error-kind taxonomy.
var (
	// ErrBusy is returned when a command is issued while another
	// high-level command is already outstanding (spec.md §5: "put-while-put
	// is reported and refused").
	ErrBusy = errors.New("mavftp: a command is already in progress")

	// ErrCanceled marks a transfer torn down by Cancel; GetParameters also
	// reports it when the underlying Get ends without a result. Get
	// callbacks receive nil and Put callbacks receive -1 in this case.
	ErrCanceled = errors.New("mavftp: operation canceled")

	// ErrOpenFailed indicates the local file for Get/Put could not be
	// opened.
	ErrOpenFailed = errors.New("mavftp: local open failed")

	// ErrRemoteFailure indicates a Nack reply to a request (Open/Create/
	// Write/Rename/...).
	ErrRemoteFailure = errors.New("mavftp: remote returned an error")

	// ErrTimeout indicates Execute's timeout budget elapsed before the
	// pending command completed, or that OpenFileRO went unanswered through
	// all of its retries.
	ErrTimeout = errors.New("mavftp: operation timed out")
)
