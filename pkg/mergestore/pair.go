// Package mergestore is THE CORE of this repository: an external
// merge-sort storage writer. It accepts an unbounded stream of (key,
// value) byte-string pairs, buffers them in bounded memory, spills sorted
// gzip-compressed blocks to disk, and k-way merges those blocks in a
// staged tree of worker goroutines so the final output is one sorted
// file. See spec.md §3-§4, §7-§9 for the full contract.
package mergestore

import "github.com/cockroachdb/errors"

// maxPairComponent is the largest length a key or value may have: each of
// the two length fields is an unsigned 16-bit integer, spec.md §3.
const maxPairComponent = 1<<16 - 1

// Pair is an opaque (key, value) byte-string pair. Ordering is
// lexicographic over unsigned byte values of Key.
type Pair struct {
	Key   []byte
	Value []byte
}

// size returns the on-disk footprint of p in the spill-file format: two
// u16 length prefixes plus the raw bytes, spec.md §3's "In-memory batch"
// accounting rule.
func (p Pair) size() int {
	return 4 + len(p.Key) + len(p.Value)
}

// ValidatePair enforces the length bound spec.md §3 places on every pair:
// each of key and value has length strictly less than 1<<16 bytes.
func ValidatePair(key, value []byte) error {
	if len(key) > maxPairComponent {
		return errors.Mark(errors.Newf("mergestore: key length %d exceeds %d", len(key), maxPairComponent), ErrPairTooLarge)
	}
	if len(value) > maxPairComponent {
		return errors.Mark(errors.Newf("mergestore: value length %d exceeds %d", len(value), maxPairComponent), ErrPairTooLarge)
	}
	return nil
}

// lessPair implements unsigned lexicographic ordering over keys, matching
// the C++ original's byte-by-byte unsigned char comparison exactly
// (shorter-but-a-prefix sorts first).
func lessPair(a, b Pair) bool {
	return lessBytes(a.Key, b.Key)
}

func lessBytes(a, b []byte) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
