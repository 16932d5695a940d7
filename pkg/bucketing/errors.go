package bucketing

import "errors"

var (
	// ErrInputInvalid marks failures caused by the job input: missing source
	// file, missing column or an empty taxonomy. These are never retried.
	ErrInputInvalid = errors.New("invalid input")

	// ErrStreamFailed marks a fatal failure while streaming the source file.
	ErrStreamFailed = errors.New("stream failed")

	// ErrCancelled is returned when the job was cancelled at a checkpoint.
	ErrCancelled = errors.New("job cancelled")

	// ErrInvalidResponse marks a classifier response without the expected structure.
	ErrInvalidResponse = errors.New("invalid classifier response")
)
