package mergestore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// stage prefixes, spec.md §3's "Block identity".
const (
	stagePart  = "part"
	stagePart2 = "part2"
	stagePart3 = "part3"
	stageFinal = "final"
)

// blockPath renders a block's file name: {subdir}/{stage}_{block:08x}.data,
// spec.md §3/§6.
func blockPath(subdir, stage string, block uint32) string {
	return filepath.Join(subdir, fmt.Sprintf("%s_%08x.data", stage, block))
}

// blockWriter is a scoped resource tied to one spill file: a fresh file
// with a gzip level-1 compressor stacked over it, spec.md §4.4.
type blockWriter struct {
	f  *os.File
	gz *gzip.Writer

	lenBuf [4]byte
}

// newBlockWriter removes any pre-existing file at path, creates it fresh,
// and stacks a gzip level-1 compressor over it.
func newBlockWriter(path string) (*blockWriter, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, wrapFileIO(err, "removing pre-existing spill file %s", path)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, wrapFileIO(err, "creating spill file %s", path)
	}

	gz, err := gzip.NewWriterLevel(f, gzip.BestSpeed)
	if err != nil {
		f.Close()
		return nil, wrapCompression(err, "initializing gzip writer for %s", path)
	}

	return &blockWriter{f: f, gz: gz}, nil
}

// write emits one pair as u16 key_len, u16 val_len, key bytes, value
// bytes, all little-endian, spec.md §3/§6. Rejects any component whose
// length is >= 1<<16 with ErrPairTooLarge.
func (w *blockWriter) write(p Pair) error {
	if err := ValidatePair(p.Key, p.Value); err != nil {
		return err
	}

	putUint16(w.lenBuf[0:2], uint16(len(p.Key)))
	putUint16(w.lenBuf[2:4], uint16(len(p.Value)))

	if _, err := w.gz.Write(w.lenBuf[:]); err != nil {
		return wrapCompression(err, "writing pair length header")
	}
	if _, err := w.gz.Write(p.Key); err != nil {
		return wrapCompression(err, "writing key bytes")
	}
	if _, err := w.gz.Write(p.Value); err != nil {
		return wrapCompression(err, "writing value bytes")
	}
	return nil
}

// close closes the compressor then the file. Both are fatal to the
// caller if they fail, per spec.md §4.4 ("close errors are fatal").
func (w *blockWriter) close() error {
	if err := w.gz.Close(); err != nil {
		w.f.Close()
		return wrapCompression(err, "closing gzip writer")
	}
	if err := w.f.Close(); err != nil {
		return wrapFileIO(err, "closing spill file")
	}
	return nil
}

// blockReader is a scoped resource streaming (key, value) pairs out of a
// compressed spill file one at a time, spec.md §4.5.
type blockReader struct {
	path string
	f    *os.File
	gz   *gzip.Reader

	current Pair
	atEnd   bool

	lenBuf [4]byte
}

// newBlockReader opens path and stacks a gzip decompressor over it,
// leaving current positioned at the first pair (atEnd is false iff the
// file was non-empty).
func newBlockReader(path string) (*blockReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapFileIO(err, "opening spill file %s", path)
	}

	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, wrapCompression(err, "initializing gzip reader for %s", path)
	}

	r := &blockReader{path: path, f: f, gz: gz}
	r.advance()
	return r, nil
}

// atEndOf reports whether the reader has no more pairs to yield.
func (r *blockReader) atEndOf() bool { return r.atEnd }

// value returns the current pair. Only valid when atEndOf() is false.
func (r *blockReader) value() Pair { return r.current }

// advance reads the next pair into current. Any short read anywhere in
// the four-field record — including at the very first field — is treated
// as clean end-of-file, per spec.md §3 ("the format trusts its own
// writer").
func (r *blockReader) advance() {
	if !r.readFull(r.lenBuf[0:2]) {
		r.atEnd = true
		return
	}
	keyLen := getUint16(r.lenBuf[0:2])

	if !r.readFull(r.lenBuf[2:4]) {
		r.atEnd = true
		return
	}
	valLen := getUint16(r.lenBuf[2:4])

	key := make([]byte, keyLen)
	if !r.readFull(key) {
		r.atEnd = true
		return
	}

	val := make([]byte, valLen)
	if !r.readFull(val) {
		r.atEnd = true
		return
	}

	r.current = Pair{Key: key, Value: val}
}

// readFull reads exactly len(buf) bytes, reporting false on any short
// read (including immediate EOF).
func (r *blockReader) readFull(buf []byte) bool {
	n := 0
	for n < len(buf) {
		got, err := r.gz.Read(buf[n:])
		n += got
		if err != nil || got == 0 {
			return n == len(buf)
		}
	}
	return true
}

// close releases the reader's resources without removing the file; the
// caller (a merge worker) is responsible for removing consumed spill
// files, per spec.md §4.6.
func (r *blockReader) close() error {
	if err := r.gz.Close(); err != nil {
		r.f.Close()
		return wrapCompression(err, "closing gzip reader for %s", r.path)
	}
	if err := r.f.Close(); err != nil {
		return wrapFileIO(err, "closing spill file %s", r.path)
	}
	return nil
}

func putUint16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func getUint16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}
