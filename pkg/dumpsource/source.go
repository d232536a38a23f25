// Package dumpsource implements the ingest front end that feeds the
// mergestore writer: a subprocess byte source, a line framer, and a COPY
// section filter, per spec.md §4.1-§4.3.
package dumpsource

import (
	"io"
	"os/exec"

	"github.com/cockroachdb/errors"
)

// Source supplies raw bytes from an external process pipe. Read returns
// the number of bytes read; n == 0 with a nil error denotes clean
// end-of-stream.
type Source interface {
	Read(buf []byte) (n int, err error)
	// Close releases the underlying resources. Failure to close cleanly
	// is fatal to the process: the data already read is untrustworthy.
	Close() error
}

// ProcessSource is a Source backed by the standard output of a child
// process, e.g. `pg_restore -a -t <table> <dump_file>`.
type ProcessSource struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
}

// OpenProcess starts name with args and returns a Source reading its
// standard output. Returns ErrPipeOpenFailed if the process cannot be
// started.
func OpenProcess(name string, args ...string) (*ProcessSource, error) {
	cmd := exec.Command(name, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "dumpsource: creating stdout pipe for %s", name), ErrPipeOpenFailed)
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "dumpsource: starting %s", name), ErrPipeOpenFailed)
	}

	return &ProcessSource{cmd: cmd, stdout: stdout}, nil
}

// Read implements Source. Any error other than io.EOF is wrapped as
// ErrPipeReadFailed; io.EOF is translated into the (0, nil) convention
// used throughout this package.
func (p *ProcessSource) Read(buf []byte) (int, error) {
	n, err := p.stdout.Read(buf)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		return n, errors.Mark(errors.Wrapf(err, "dumpsource: reading subprocess output"), ErrPipeReadFailed)
	}
	return n, nil
}

// Close closes the pipe and waits for the child process to exit. A
// non-zero exit status or close error is returned; the caller should
// treat it as fatal, since the bytes already consumed cannot be
// re-validated against a process that failed after producing them.
func (p *ProcessSource) Close() error {
	closeErr := p.stdout.Close()
	waitErr := p.cmd.Wait()
	if closeErr != nil {
		return errors.Wrapf(closeErr, "dumpsource: closing subprocess pipe")
	}
	if waitErr != nil {
		return errors.Wrapf(waitErr, "dumpsource: subprocess exited with error")
	}
	return nil
}
