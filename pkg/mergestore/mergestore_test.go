package mergestore

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/rcrowley/go-metrics"
)

func TestValidatePairBoundary(t *testing.T) {
	ok := bytes.Repeat([]byte{'a'}, maxPairComponent)
	tooBig := bytes.Repeat([]byte{'a'}, maxPairComponent+1)

	cases := []struct {
		name       string
		key, value []byte
		wantErr    bool
	}{
		{name: "max length key and value", key: ok, value: ok},
		{name: "zero length key and value", key: nil, value: nil},
		{name: "oversized key", key: tooBig, value: nil, wantErr: true},
		{name: "oversized value", key: nil, value: tooBig, wantErr: true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := ValidatePair(c.key, c.value)
			if c.wantErr {
				if !errors.Is(err, ErrPairTooLarge) {
					t.Fatalf("got %v, want ErrPairTooLarge", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestLessBytesPrefixOrdering(t *testing.T) {
	cases := []struct {
		name string
		a, b []byte
		want bool
	}{
		{"shorter prefix sorts first", []byte("a"), []byte("ab"), true},
		{"longer extension sorts after its prefix", []byte("ab"), []byte("a"), false},
		{"equal empty strings are not less", []byte(""), []byte(""), false},
		{"differing byte within common length decides order", []byte("abc"), []byte("abd"), true},
		{"unsigned comparison: 0xff is not less than 0x00", []byte{0xff}, []byte{0x00}, false},
		{"unsigned comparison: 0x00 is less than 0xff", []byte{0x00}, []byte{0xff}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := lessBytes(c.a, c.b); got != c.want {
				t.Errorf("lessBytes(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
			}
		})
	}
}

func TestBlockWriterReaderRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "part_00000000.data")

	pairs := []Pair{
		{Key: []byte("k1"), Value: []byte("v1")},
		{Key: nil, Value: []byte("v-empty-key")},
		{Key: []byte("k-empty-value"), Value: nil},
		{Key: bytes.Repeat([]byte{'z'}, maxPairComponent), Value: []byte("big-key")},
	}

	w, err := newBlockWriter(path)
	if err != nil {
		t.Fatalf("newBlockWriter: %v", err)
	}
	for _, p := range pairs {
		if err := w.write(p); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := w.close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r, err := newBlockReader(path)
	if err != nil {
		t.Fatalf("newBlockReader: %v", err)
	}
	defer r.close()

	for i, want := range pairs {
		if r.atEndOf() {
			t.Fatalf("pair %d: reader ended early", i)
		}
		got := r.value()
		if !bytes.Equal(got.Key, want.Key) || !bytes.Equal(got.Value, want.Value) {
			t.Fatalf("pair %d: got %+v, want %+v", i, got, want)
		}
		r.advance()
	}
	if !r.atEndOf() {
		t.Fatalf("expected reader to be exhausted")
	}
}

func TestBlockWriterRejectsOversizedPair(t *testing.T) {
	dir := t.TempDir()
	w, err := newBlockWriter(filepath.Join(dir, "part_00000000.data"))
	if err != nil {
		t.Fatalf("newBlockWriter: %v", err)
	}
	defer w.close()

	oversized := bytes.Repeat([]byte{'a'}, maxPairComponent+1)
	if err := w.write(Pair{Key: oversized}); !errors.Is(err, ErrPairTooLarge) {
		t.Fatalf("got %v, want ErrPairTooLarge", err)
	}
}

func TestCoordinatorPutRejectsOversizedPair(t *testing.T) {
	c, err := NewCoordinator(t.TempDir())
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	defer c.Close()

	oversized := bytes.Repeat([]byte{'a'}, maxPairComponent+1)
	if err := c.Put(oversized, nil); !errors.Is(err, ErrPairTooLarge) {
		t.Fatalf("got %v, want ErrPairTooLarge", err)
	}
}

func TestCoordinatorEmptyFinishProducesEmptySortedFile(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCoordinator(dir)
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}

	if err := c.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	final := blockPath(dir, stageFinal, 0)
	r, err := newBlockReader(final)
	if err != nil {
		t.Fatalf("newBlockReader: %v", err)
	}
	defer r.close()

	if !r.atEndOf() {
		t.Fatalf("expected an empty final file, got a pair: %+v", r.value())
	}
}

// TestCoordinatorSortsAndPreservesMultiset forces several spilled blocks
// with a tiny byte budget, then checks the final file is both fully
// sorted and holds exactly the multiset of pairs that were put in.
func TestCoordinatorSortsAndPreservesMultiset(t *testing.T) {
	dir := t.TempDir()

	// One key/value pair of this shape costs exactly 4+2+2 = 8 bytes;
	// a budget of 8 forces every Put after the first to spill the
	// previous batch as its own singleton block.
	c, err := NewCoordinator(dir, WithMaxBlockBytes(8), WithFanIn(2))
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}

	input := []Pair{
		{Key: []byte("05"), Value: []byte("e5")},
		{Key: []byte("02"), Value: []byte("e2")},
		{Key: []byte("04"), Value: []byte("e4")},
		{Key: []byte("01"), Value: []byte("e1")},
		{Key: []byte("03"), Value: []byte("e3")},
	}
	for _, p := range input {
		if err := c.Put(p.Key, p.Value); err != nil {
			t.Fatalf("Put(%q): %v", p.Key, err)
		}
	}

	if err := c.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	// spec.md's fan-in cascade: 5 stage-1 blocks with fan-in 2 produces
	// exactly 2 stage-2 merges and 1 stage-3 merge before the final join.
	if got := c.metrics.mergesByStage[stagePart].Count(); got != 5 {
		t.Errorf("stage-1 tasks completed: got %d, want 5", got)
	}
	if got := c.metrics.mergesByStage[stagePart2].Count(); got != 2 {
		t.Errorf("stage-2 tasks completed: got %d, want 2", got)
	}
	if got := c.metrics.mergesByStage[stagePart3].Count(); got != 1 {
		t.Errorf("stage-3 tasks completed: got %d, want 1", got)
	}
	if got := c.metrics.mergesByStage[stageFinal].Count(); got != 1 {
		t.Errorf("final task completed: got %d, want 1", got)
	}

	final := blockPath(dir, stageFinal, 0)
	r, err := newBlockReader(final)
	if err != nil {
		t.Fatalf("newBlockReader: %v", err)
	}
	defer r.close()

	var got []Pair
	for !r.atEndOf() {
		got = append(got, r.value())
		r.advance()
	}

	if len(got) != len(input) {
		t.Fatalf("got %d pairs, want %d", len(got), len(input))
	}
	for i := 1; i < len(got); i++ {
		if !lessPair(got[i-1], got[i]) {
			t.Fatalf("output not sorted at index %d: %q >= %q", i, got[i-1].Key, got[i].Key)
		}
	}

	wantKeys := make([]string, len(input))
	for i, p := range input {
		wantKeys[i] = string(p.Key)
	}
	sort.Strings(wantKeys)
	for i, p := range got {
		if string(p.Key) != wantKeys[i] {
			t.Fatalf("key %d: got %q, want %q", i, p.Key, wantKeys[i])
		}
	}

	// Every intermediate spill file should have been removed by the
	// merge tree; only the final file remains.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != filepath.Base(final) {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Fatalf("expected only the final file to remain, got %v", names)
	}
}

// TestCoordinatorStableSortWithinBatch checks that pairs sharing a key
// keep their Put order after the in-batch stable sort, matching spec.md
// §5's stability requirement.
func TestCoordinatorStableSortWithinBatch(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCoordinator(dir)
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}

	for i := 0; i < 4; i++ {
		if err := c.Put([]byte("same"), []byte(fmt.Sprintf("v%d", i))); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	if err := c.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	r, err := newBlockReader(blockPath(dir, stageFinal, 0))
	if err != nil {
		t.Fatalf("newBlockReader: %v", err)
	}
	defer r.close()

	for i := 0; i < 4; i++ {
		if r.atEndOf() {
			t.Fatalf("pair %d: reader ended early", i)
		}
		want := fmt.Sprintf("v%d", i)
		if string(r.value().Value) != want {
			t.Fatalf("pair %d: got %q, want %q", i, r.value().Value, want)
		}
		r.advance()
	}
}

func TestCoordinatorCloseIsNoopAfterFinish(t *testing.T) {
	c, err := NewCoordinator(t.TempDir())
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	if err := c.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	c.Close() // must not panic or block
}

func TestCoordinatorCloseJoinsOutstandingTasks(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCoordinator(dir, WithMetricsRegistry(metrics.NewRegistry()))
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}

	if err := c.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	c.flushBlock()

	// Finish was never called; Close must still join the outstanding
	// stage-1 task rather than leaking its goroutine.
	c.Close()
}
