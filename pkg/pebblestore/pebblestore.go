// Package pebblestore is the alternate storage backend named in spec.md
// §1's Purpose section: "a pre-existing sorted key/value database (when
// such a library is linked in)". Where pkg/mergestore builds a sorted
// store from scratch by spilling and merging, pebblestore hands every
// pair straight to a Pebble LSM tree and lets Pebble do the sorting,
// adapted from the teacher's db.PebbleDB.
package pebblestore

import (
	"fmt"
	"runtime"

	"github.com/cockroachdb/pebble"

	"github.com/relstore/tablestore/pkg/logger"
)

// Backend is the interface cmd/tablestore drives when the pebble backend
// is selected. It has the same Put/Finish shape as
// mergestore.Coordinator.
type Backend interface {
	Put(key, value []byte) error
	Finish() error
}

// batchFlushBytes bounds how much a single Pebble batch accumulates
// before it is committed and a fresh one started, mirroring the
// teacher's memtable-sizing philosophy of trading memory for fewer,
// larger commits.
const batchFlushBytes = 4 << 20 // 4 MiB

// Config holds tunable Pebble parameters, adapted from the teacher's
// db.Config down to the knobs a sequential bulk-load writer needs.
type Config struct {
	CacheSize    int64
	MemTableSize uint64
	Logger       logger.Logger
}

// DefaultConfig returns production-ready defaults tuned for a bulk,
// append-only load: a large memtable to absorb sequential writes with
// few flushes.
func DefaultConfig() *Config {
	return &Config{
		CacheSize:    256 << 20,
		MemTableSize: 128 << 20,
	}
}

// Option is a functional option applied to Config during Open.
type Option func(*Config)

// WithCacheSize sets the shared block-cache capacity in bytes.
func WithCacheSize(size int64) Option {
	return func(c *Config) { c.CacheSize = size }
}

// WithMemTableSize sets the memtable size in bytes.
func WithMemTableSize(size uint64) Option {
	return func(c *Config) { c.MemTableSize = size }
}

// WithLogger sets a custom logger for the store. Defaults to
// logger.Default().
func WithLogger(l logger.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Store is a Backend backed by a real Pebble instance.
type Store struct {
	db     *pebble.DB
	batch  *pebble.Batch
	pend   int
	path   string
	logger logger.Logger
}

// compile-time interface check.
var _ Backend = (*Store)(nil)

// Open creates or opens a Pebble database at path, ready to accept
// sequential Put calls.
func Open(path string, opts ...Option) (*Store, error) {
	cfg := DefaultConfig()
	for _, o := range opts {
		o(cfg)
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	log = log.With("component", "pebblestore", "path", path)

	cache := pebble.NewCache(cfg.CacheSize)
	defer cache.Unref()

	db, err := pebble.Open(path, &pebble.Options{
		Cache:                    cache,
		MemTableSize:             cfg.MemTableSize,
		MaxConcurrentCompactions: func() int { return runtime.NumCPU() },
	})
	if err != nil {
		return nil, fmt.Errorf("pebblestore: opening %s: %w", path, err)
	}

	log.Info("pebble backend opened")
	return &Store{db: db, batch: db.NewBatch(), path: path, logger: log}, nil
}

// Put stages a key/value write, flushing the current batch to Pebble
// once it has accumulated roughly batchFlushBytes of staged data. Unlike
// mergestore.Coordinator.Put there is no length limit on key or value —
// Pebble imposes none, so mergestore.ValidatePair does not apply.
func (s *Store) Put(key, value []byte) error {
	if err := s.batch.Set(key, value, nil); err != nil {
		return fmt.Errorf("pebblestore: staging put: %w", err)
	}
	s.pend += len(key) + len(value)

	if s.pend >= batchFlushBytes {
		if err := s.commitBatch(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) commitBatch() error {
	if err := s.batch.Commit(pebble.NoSync); err != nil {
		return fmt.Errorf("pebblestore: committing batch: %w", err)
	}
	s.batch = s.db.NewBatch()
	s.pend = 0
	return nil
}

// Finish commits any staged writes, flushes the memtable to disk, and
// runs a full compaction so the store settles into its final sorted
// on-disk shape — the Pebble analogue of mergestore's final merge.
func (s *Store) Finish() error {
	if err := s.commitBatch(); err != nil {
		return err
	}
	if err := s.db.Flush(); err != nil {
		return fmt.Errorf("pebblestore: flush: %w", err)
	}
	if err := s.db.Compact(nil, nil, true); err != nil {
		return fmt.Errorf("pebblestore: compact: %w", err)
	}

	s.logger.Info("finish complete")
	return s.db.Close()
}
