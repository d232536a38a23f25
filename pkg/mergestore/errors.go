package mergestore

import "github.com/cockroachdb/errors"

// Sentinel errors for the mergestore package, one per row of spec.md's
// error-kind table (§7) that applies to the writer side.
var (
	// ErrPairTooLarge indicates a key or value of length >= 1<<16.
	ErrPairTooLarge = errors.New("mergestore: key or value length must be < 65536 bytes")

	// ErrFileIO wraps any create/open/write/close/rename/remove failure.
	ErrFileIO = errors.New("mergestore: file I/O failed")

	// ErrCompression wraps any gzip codec failure.
	ErrCompression = errors.New("mergestore: compression failed")

	// ErrWorkerFailed wraps a predecessor task's captured failure,
	// rethrown at the join boundary that first observes it.
	ErrWorkerFailed = errors.New("mergestore: predecessor task failed")
)

// wrapFileIO marks err as ErrFileIO with additional context.
func wrapFileIO(err error, format string, args ...any) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrFileIO)
}

// wrapCompression marks err as ErrCompression with additional context.
func wrapCompression(err error, format string, args ...any) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrCompression)
}
