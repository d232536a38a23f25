// Package tablestore is the public facade of spec.md §4.8: it wires the
// dumpsource ingest front end to the mergestore writer coordinator and
// exposes the operations a caller needs — construct, read column names,
// forward rows for splitting, forward key/value pairs to the writer, and
// finish the writer.
package tablestore

import (
	"github.com/cockroachdb/errors"

	"github.com/relstore/tablestore/pkg/dumpsource"
	"github.com/relstore/tablestore/pkg/logger"
	"github.com/relstore/tablestore/pkg/mergestore"
)

// Store is the assembled pipeline: byte source -> line framer -> COPY
// filter -> writer coordinator.
type Store struct {
	source  *dumpsource.ProcessSource
	filter  *dumpsource.CopyFilter
	coord   *mergestore.Coordinator
	columns []string
	logger  logger.Logger
}

// Option configures a Store at construction time.
type Option func(*options)

type options struct {
	logger        logger.Logger
	maxBlockBytes int
	fanIn         int
	pgRestoreBin  string
}

// WithLogger sets the Store's logger. Defaults to logger.Default().
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMaxBlockBytes overrides mergestore.DefaultMaxBlockBytes, mainly for
// tests that want to force spills with small inputs.
func WithMaxBlockBytes(n int) Option {
	return func(o *options) { o.maxBlockBytes = n }
}

// WithFanIn overrides mergestore.DefaultFanIn, mainly for tests that want
// to force multi-stage merges with small inputs.
func WithFanIn(n int) Option {
	return func(o *options) { o.fanIn = n }
}

// WithPgRestoreBinary overrides the "pg_restore" executable name used by
// Open, e.g. to point at a full path.
func WithPgRestoreBinary(path string) Option {
	return func(o *options) { o.pgRestoreBin = path }
}

// Open constructs the subprocess command `pg_restore -a -t <table>
// <dumpFile>`, wires the pipeline, and runs the COPY header parse to
// capture column names, per spec.md §4.8 and §6. The output directory is
// the table name, relative to the working directory, per spec.md §6.
func Open(table, dumpFile string, opts ...Option) (*Store, error) {
	o := &options{
		logger:        logger.Default(),
		maxBlockBytes: mergestore.DefaultMaxBlockBytes,
		fanIn:         mergestore.DefaultFanIn,
		pgRestoreBin:  "pg_restore",
	}
	for _, opt := range opts {
		opt(o)
	}
	log := o.logger.With("component", "tablestore", "table", table)

	src, err := dumpsource.OpenProcess(o.pgRestoreBin, "-a", "-t", table, dumpFile)
	if err != nil {
		return nil, errors.Wrapf(err, "tablestore: opening dump source for table %s", table)
	}

	filter := dumpsource.NewCopyFilter(dumpsource.NewLineReader(src))
	columns, err := filter.Init()
	if err != nil {
		_ = src.Close()
		return nil, errors.Wrapf(err, "tablestore: parsing COPY header for table %s", table)
	}

	coord, err := mergestore.NewCoordinator(table,
		mergestore.WithMaxBlockBytes(o.maxBlockBytes),
		mergestore.WithFanIn(o.fanIn),
		mergestore.WithLogger(log),
	)
	if err != nil {
		_ = src.Close()
		return nil, errors.Wrapf(err, "tablestore: creating writer coordinator for table %s", table)
	}

	log.Info("dump reader ready", "columns", columns)

	return &Store{
		source:  src,
		filter:  filter,
		coord:   coord,
		columns: columns,
		logger:  log,
	}, nil
}

// ColumnNames returns the ordered column list recovered from the COPY
// header.
func (s *Store) ColumnNames() []string {
	return s.columns
}

// ReadRow returns the next data row of the table's COPY section into
// *out. Returns false at the `\.` terminator or end of stream.
func (s *Store) ReadRow(out *[]byte) (bool, error) {
	ok, err := s.filter.ReadRow(out)
	if err != nil {
		return false, errors.Wrapf(err, "tablestore: reading row")
	}
	return ok, nil
}

// Put forwards one (key, value) pair to the writer coordinator.
func (s *Store) Put(key, value []byte) error {
	return s.coord.Put(key, value)
}

// Finish drains the writer coordinator and closes the dump source. The
// output directory contains exactly one final_00000000.data file on
// success.
func (s *Store) Finish() error {
	finishErr := s.coord.Finish()
	closeErr := s.Close()

	if finishErr != nil {
		return finishErr
	}
	return closeErr
}

// Close releases the dump source's subprocess pipe without driving the
// mergestore coordinator, for callers that read rows through Store but
// write pairs to a different backend (e.g. pkg/pebblestore) instead of
// calling Put/Finish. Per spec.md §4.1's scoped-acquisition contract for
// the byte source, the pipe must still be closed and the child reaped
// even when the mergestore side of the Store is never driven; Close also
// best-effort joins any coordinator tasks that were started regardless.
func (s *Store) Close() error {
	s.coord.Close()
	if err := s.source.Close(); err != nil {
		return errors.Wrapf(err, "tablestore: closing dump source")
	}
	return nil
}
