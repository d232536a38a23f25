package dumpsource

import "github.com/cockroachdb/errors"

// Sentinel errors for the dumpsource package. Each corresponds to one row
// of spec.md's error-kind table (§7).
var (
	// ErrPipeOpenFailed indicates the dump-restore subprocess could not be spawned.
	ErrPipeOpenFailed = errors.New("dumpsource: failed to open subprocess pipe")

	// ErrPipeReadFailed indicates a read error from the subprocess pipe,
	// distinct from a clean end-of-file.
	ErrPipeReadFailed = errors.New("dumpsource: pipe read failed")

	// ErrDumpHeaderMissing indicates the stream ended before any line
	// began with "COPY ".
	ErrDumpHeaderMissing = errors.New("dumpsource: stream ended before COPY header")

	// ErrDumpHeaderMalformed indicates a "COPY " line that failed to parse
	// against the expected grammar.
	ErrDumpHeaderMalformed = errors.New("dumpsource: COPY header did not match expected grammar")

	// ErrDumpHeaderEmpty indicates a COPY header whose column list parsed
	// but contained zero columns.
	ErrDumpHeaderEmpty = errors.New("dumpsource: COPY header has an empty column list")
)
