package mergestore

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
	"github.com/rcrowley/go-metrics"

	"github.com/relstore/tablestore/pkg/logger"
)

// DefaultMaxBlockBytes is MAX_BLOCK_BYTES from spec.md §3: the byte
// budget bounding one in-memory batch.
const DefaultMaxBlockBytes = 64 << 20 // 64 MiB

// DefaultFanIn is the stage fan-in constant of spec.md §3/§9.
const DefaultFanIn = 16

// Coordinator is the writer coordinator of spec.md §4.7: it accepts
// Put(k, v), manages the bounded in-memory batch, spawns sort/merge
// workers, maintains the staged merge tree, and produces one final sorted
// file via Finish.
type Coordinator struct {
	subdir string

	maxBlockBytes int
	fanIn         int

	blockCounter   uint32
	batch          []Pair
	bytesThisBlock int

	l1, l2, l3 []*task

	finished bool

	logger  logger.Logger
	metrics *taskMetrics
}

// Option configures a Coordinator at construction time.
type Option func(*Coordinator)

// WithMaxBlockBytes overrides DefaultMaxBlockBytes.
func WithMaxBlockBytes(n int) Option {
	return func(c *Coordinator) { c.maxBlockBytes = n }
}

// WithFanIn overrides DefaultFanIn.
func WithFanIn(n int) Option {
	return func(c *Coordinator) { c.fanIn = n }
}

// WithLogger sets the Coordinator's logger. Defaults to logger.Default().
func WithLogger(l logger.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithMetricsRegistry sets the rcrowley/go-metrics registry the
// Coordinator records into. Defaults to a private, unregistered registry.
func WithMetricsRegistry(r metrics.Registry) Option {
	return func(c *Coordinator) { c.metrics = newTaskMetrics(r) }
}

// NewCoordinator creates a Coordinator writing spill and final files under
// subdir, which is created if it does not already exist, per spec.md §6's
// "Directory layout".
func NewCoordinator(subdir string, opts ...Option) (*Coordinator, error) {
	if err := os.MkdirAll(subdir, 0o755); err != nil {
		return nil, wrapFileIO(err, "creating output directory %s", subdir)
	}

	c := &Coordinator{
		subdir:        subdir,
		maxBlockBytes: DefaultMaxBlockBytes,
		fanIn:         DefaultFanIn,
		logger:        logger.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = newTaskMetrics(metrics.NewRegistry())
	}
	c.logger = c.logger.With("component", "mergestore", "table", subdir)

	return c, nil
}

// Put validates and appends one pair to the current batch, spec.md §4.7.
// If adding it would push the running byte count above maxBlockBytes, the
// current batch is spilled first.
func (c *Coordinator) Put(key, value []byte) error {
	if err := ValidatePair(key, value); err != nil {
		return err
	}

	size := Pair{Key: key, Value: value}.size()
	if c.bytesThisBlock+size > c.maxBlockBytes {
		c.flushBlock()
	}

	k := append([]byte(nil), key...)
	v := append([]byte(nil), value...)
	c.batch = append(c.batch, Pair{Key: k, Value: v})
	c.bytesThisBlock += size
	return nil
}

// flushBlock implements spec.md §4.7's flush_block algorithm exactly: it
// spawns a stage-1 worker for the current batch, and — if the resulting
// stage list has reached fanIn — spawns the next stage's merge worker,
// cascading up to three levels. The block-number counter is incremented
// once per call regardless of how many stages spawn.
func (c *Coordinator) flushBlock() {
	n := c.blockCounter

	t1 := &task{subdir: c.subdir, stage: stagePart, block: n, batch: c.batch, metrics: c.metrics}
	c.metrics.blocksSpilled.Inc(1)
	c.metrics.bytesSpilled.Inc(int64(c.bytesThisBlock))
	t1.spawn()
	c.batch = nil
	c.bytesThisBlock = 0

	c.l1 = append(c.l1, t1)

	if len(c.l1) >= c.fanIn {
		t2 := &task{subdir: c.subdir, stage: stagePart2, block: n, preds: c.l1, metrics: c.metrics}
		t2.spawn()
		c.l1 = nil
		c.l2 = append(c.l2, t2)

		if len(c.l2) >= c.fanIn {
			t3 := &task{subdir: c.subdir, stage: stagePart3, block: n, preds: c.l2, metrics: c.metrics}
			t3.spawn()
			c.l2 = nil
			c.l3 = append(c.l3, t3)
		}
	}

	c.blockCounter++
}

// Finish flushes any pending batch, then joins every remaining task
// across all three stages into one final merge, spec.md §4.7. After
// Finish returns successfully, the output directory contains exactly one
// final_00000000.data.
func (c *Coordinator) Finish() error {
	if len(c.batch) > 0 {
		c.flushBlock()
	}

	preds := make([]*task, 0, len(c.l1)+len(c.l2)+len(c.l3))
	preds = append(preds, c.l1...)
	preds = append(preds, c.l2...)
	preds = append(preds, c.l3...)
	c.l1, c.l2, c.l3 = nil, nil, nil

	final := &task{subdir: c.subdir, stage: stageFinal, block: 0, preds: preds, metrics: c.metrics}
	final.spawn()

	err := final.join()
	c.finished = err == nil
	c.logSummary()
	if err != nil {
		return errors.Wrapf(err, "mergestore: finish failed")
	}
	return nil
}

// Close performs best-effort cleanup of any tasks Finish never joined —
// e.g. because Put or an earlier flushBlock's caller aborted. It joins
// every outstanding task and aggregates their errors with
// hashicorp/go-multierror purely for a single diagnostic log line; per
// spec.md §4.7/§9 the swallowed errors are not surfaced, only Finish's
// return value is a correctness signal. Close is a no-op after a
// successful Finish.
func (c *Coordinator) Close() {
	if c.finished {
		return
	}

	var merr *multierror.Error
	for _, t := range append(append(append([]*task{}, c.l1...), c.l2...), c.l3...) {
		if err := t.join(); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	c.l1, c.l2, c.l3 = nil, nil, nil

	if merr != nil {
		c.logger.Warn("cleanup joined outstanding tasks with errors", "error", merr.ErrorOrNil())
	}
}

// logSummary logs the accumulated operational counters at Finish, per
// SPEC_FULL.md §6's metrics requirement.
func (c *Coordinator) logSummary() {
	c.logger.Info("finish complete",
		"blocks_spilled", c.metrics.blocksSpilled.Count(),
		"bytes_spilled", c.metrics.bytesSpilled.Count(),
		"stage1_tasks", c.metrics.mergesByStage[stagePart].Count(),
		"stage2_tasks", c.metrics.mergesByStage[stagePart2].Count(),
		"stage3_tasks", c.metrics.mergesByStage[stagePart3].Count(),
	)
}
