package dumpsource

import "bytes"

// lineBufferSize is the fixed internal buffer size of a LineReader,
// spec.md §4.2.
const lineBufferSize = 1 << 20 // 1 MiB

// LineReader splits a byte Source into newline-terminated records. It
// holds a fixed internal buffer, refilled from the source as it empties.
type LineReader struct {
	src Source

	buf      []byte
	pos, end int

	// eof is set once the source has reported end-of-stream (n == 0).
	eof bool
}

// NewLineReader wraps src with a fixed 1 MiB line buffer.
func NewLineReader(src Source) *LineReader {
	return &LineReader{
		src: src,
		buf: make([]byte, lineBufferSize),
	}
}

// ReadLine scans for the next '\n'-terminated line, appending the bytes
// preceding the newline (not including it) to *out, which is reset to
// zero length first. Returns true if a line was read, false at clean
// end-of-stream. A trailing unterminated line at end-of-stream is
// discarded without error, per spec.md §4.2. A non-nil error is a wrapped
// ErrPipeReadFailed surfaced from the underlying Source.
func (r *LineReader) ReadLine(out *[]byte) (bool, error) {
	*out = (*out)[:0]

	for {
		if r.pos >= r.end {
			ok, err := r.refill()
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}

		nl := bytes.IndexByte(r.buf[r.pos:r.end], '\n')
		if nl < 0 {
			*out = append(*out, r.buf[r.pos:r.end]...)
			r.pos = r.end
			continue
		}

		*out = append(*out, r.buf[r.pos:r.pos+nl]...)
		r.pos += nl + 1
		return true, nil
	}
}

// refill fully refills the buffer from the source, tolerating short reads
// by accumulating them, until the buffer is full or the source is
// exhausted. Returns (false, nil) only when the source is exhausted and
// no bytes were read.
func (r *LineReader) refill() (bool, error) {
	if r.eof {
		return false, nil
	}

	n := 0
	for n < len(r.buf) {
		got, err := r.src.Read(r.buf[n:])
		if err != nil {
			return false, err
		}
		if got == 0 {
			r.eof = true
			break
		}
		n += got
	}

	r.pos, r.end = 0, n
	return n > 0, nil
}
