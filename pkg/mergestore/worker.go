package mergestore

import (
	"os"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rcrowley/go-metrics"
	"golang.org/x/sync/errgroup"
)

// task is a pending or running unit of work, spec.md §3's "Worker task":
// either sort-and-write one in-memory batch, or k-way merge a set of
// predecessor tasks' outputs into one file. The state machine is
// pending -> running -> (completed | failed); done is closed exactly
// once by the goroutine running the task, and err is written only before
// done closes and read only after done is observed closed — the "shared
// cell written once by worker, read by joiner" of spec.md §9.
type task struct {
	subdir string
	stage  string
	block  uint32

	batch []Pair  // owned; non-nil only for a sort-and-write task
	preds []*task // non-nil only for a merge task

	done chan struct{}
	err  error

	metrics *taskMetrics
}

// path returns this task's spill-file path.
func (t *task) path() string {
	return blockPath(t.subdir, t.stage, t.block)
}

// spawn starts t running on its own goroutine and returns immediately.
func (t *task) spawn() {
	t.done = make(chan struct{})
	go func() {
		defer close(t.done)
		start := time.Now()
		if len(t.preds) > 0 {
			t.err = t.runMerge()
		} else {
			t.err = t.runSortWrite()
		}
		t.metrics.observe(t.stage, t.err, time.Since(start))
	}()
}

// join blocks until t has completed and returns its captured failure, if
// any, wrapped as ErrWorkerFailed.
func (t *task) join() error {
	<-t.done
	if t.err != nil {
		return errors.Mark(errors.Wrapf(t.err, "mergestore: task %s failed", t.path()), ErrWorkerFailed)
	}
	return nil
}

// runSortWrite sorts the owned batch in place by unsigned lexicographic
// key order (a stable sort, so equal keys keep their original put order
// within the batch) and streams it through a blockWriter, spec.md §4.6.
func (t *task) runSortWrite() error {
	sort.SliceStable(t.batch, func(i, j int) bool {
		return lessPair(t.batch[i], t.batch[j])
	})

	w, err := newBlockWriter(t.path())
	if err != nil {
		return err
	}
	for _, p := range t.batch {
		if err := w.write(p); err != nil {
			w.close()
			return err
		}
	}
	if err := w.close(); err != nil {
		return err
	}

	t.batch = nil
	return nil
}

// runMerge joins every predecessor concurrently. If any predecessor
// failed, that failure is rethrown before any file is touched. With
// exactly one predecessor the predecessor's file is renamed into place —
// no re-read, no recompression (spec.md §4.6/§4.9's "rename fast path").
// Otherwise it performs a k-way merge: repeatedly pick the reader whose
// current key is minimum (ties broken by earliest position in preds),
// write that pair, advance that reader, and remove+release readers as
// they're exhausted.
func (t *task) runMerge() error {
	g := new(errgroup.Group)
	for _, p := range t.preds {
		p := p
		g.Go(func() error { return p.join() })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if len(t.preds) == 1 {
		src := t.preds[0].path()
		if err := os.Rename(src, t.path()); err != nil {
			return wrapFileIO(err, "renaming %s to %s", src, t.path())
		}
		return nil
	}

	readers := make([]*blockReader, len(t.preds))
	remaining := 0
	for i, p := range t.preds {
		r, err := newBlockReader(p.path())
		if err != nil {
			closeReaders(readers)
			return err
		}
		if r.atEndOf() {
			// An empty input is exhausted from the start: release and
			// remove it now, like any other consumed input.
			err := r.close()
			if err == nil {
				err = os.Remove(p.path())
			}
			if err != nil {
				closeReaders(readers)
				return wrapFileIO(err, "releasing empty spill file %s", p.path())
			}
			continue
		}
		readers[i] = r
		remaining++
	}

	w, err := newBlockWriter(t.path())
	if err != nil {
		closeReaders(readers)
		return err
	}

	for remaining > 0 {
		minIdx := -1
		for i, r := range readers {
			if r == nil || r.atEndOf() {
				continue
			}
			if minIdx == -1 || lessPair(r.value(), readers[minIdx].value()) {
				minIdx = i
			}
		}

		winner := readers[minIdx]
		if err := w.write(winner.value()); err != nil {
			w.close()
			closeReaders(readers)
			return err
		}
		winner.advance()

		if winner.atEndOf() {
			path := t.preds[minIdx].path()
			if err := winner.close(); err != nil {
				readers[minIdx] = nil
				w.close()
				closeReaders(readers)
				return err
			}
			readers[minIdx] = nil
			if err := os.Remove(path); err != nil {
				w.close()
				closeReaders(readers)
				return wrapFileIO(err, "removing consumed spill file %s", path)
			}
			remaining--
		}
	}

	if err := w.close(); err != nil {
		return err
	}

	t.preds = nil
	return nil
}

// closeReaders closes every non-nil reader, best-effort, used on the
// error path where partial cleanup still matters for file descriptors
// even though the operation as a whole is failing.
func closeReaders(readers []*blockReader) {
	for _, r := range readers {
		if r != nil {
			_ = r.close()
		}
	}
}

// taskMetrics accumulates the coordinator's rcrowley/go-metrics counters
// and timers across every task, keyed by stage.
type taskMetrics struct {
	blocksSpilled  metrics.Counter
	bytesSpilled   metrics.Counter
	mergesByStage  map[string]metrics.Counter
	mergeDurations map[string]metrics.Timer
}

func newTaskMetrics(registry metrics.Registry) *taskMetrics {
	tm := &taskMetrics{
		blocksSpilled:  metrics.NewRegisteredCounter("mergestore.blocks_spilled", registry),
		bytesSpilled:   metrics.NewRegisteredCounter("mergestore.bytes_spilled", registry),
		mergesByStage:  make(map[string]metrics.Counter),
		mergeDurations: make(map[string]metrics.Timer),
	}
	for _, stage := range []string{stagePart, stagePart2, stagePart3, stageFinal} {
		tm.mergesByStage[stage] = metrics.NewRegisteredCounter("mergestore.tasks_completed."+stage, registry)
		tm.mergeDurations[stage] = metrics.NewRegisteredTimer("mergestore.task_duration."+stage, registry)
	}
	return tm
}

func (tm *taskMetrics) observe(stage string, err error, d time.Duration) {
	if tm == nil {
		return
	}
	if err == nil {
		tm.mergesByStage[stage].Inc(1)
		tm.mergeDurations[stage].Update(d)
	}
}
