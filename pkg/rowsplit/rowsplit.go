// Package rowsplit supplies concrete row-to-pair splitters. Per spec.md
// §1's Non-goals, deriving a (key, value) pair from a parsed row is
// explicitly outside the core's scope, specified only by its interface —
// this package exists so cmd/tablestore has something runnable without
// inventing per-table schema knowledge.
package rowsplit

import "bytes"

// Splitter derives one (key, value) pair from a raw COPY data row. The
// returned slices may alias row and must be copied by the caller before
// row is reused.
type Splitter interface {
	Split(row []byte) (key, value []byte)
}

// FirstColumnKey treats a tab-separated COPY row's first column as the
// key and the remaining columns, rejoined with the original delimiter, as
// the value. A row with no tab yields the whole row as the key and an
// empty value.
type FirstColumnKey struct{}

// Split implements Splitter.
func (FirstColumnKey) Split(row []byte) (key, value []byte) {
	i := bytes.IndexByte(row, '\t')
	if i < 0 {
		return row, nil
	}
	return row[:i], row[i+1:]
}
