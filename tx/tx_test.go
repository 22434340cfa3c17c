package tx

import (
	"errors"
	"io"
	"math"
	"os"
	"testing"

	"github.com/jrwynneiii/nbfmtx/guard"
)

type fakeSource struct {
	blocks [][]float64
	calls  int
	err    error
	closed int
}

func (f *fakeSource) Samples(block []float64) error {
	f.calls++
	if len(f.blocks) == 0 {
		if f.err != nil {
			return f.err
		}
		return io.EOF
	}
	copy(block, f.blocks[0])
	f.blocks = f.blocks[1:]
	return nil
}

func (f *fakeSource) Close() error {
	f.closed++
	return nil
}

type fakeSink struct {
	submitted [][]float64
	failAt    int
	released  int
}

func (f *fakeSink) Submit(block []float64) error {
	if f.failAt > 0 && len(f.submitted)+1 == f.failAt {
		return errors.New("hardware gone")
	}
	f.submitted = append(f.submitted, append([]float64(nil), block...))
	return nil
}

func (f *fakeSink) Release() error {
	f.released++
	return nil
}

type fakeLifecycle struct {
	codes  []int
	fatals []string
}

func (f *fakeLifecycle) Teardown(code int) { f.codes = append(f.codes, code) }

func (f *fakeLifecycle) Fatalf(format string, args ...any) {
	f.fatals = append(f.fatals, format)
	f.codes = append(f.codes, 1)
}

type nopNotifier struct{}

func (nopNotifier) Notify(chan<- os.Signal, ...os.Signal) {}
func (nopNotifier) Stop(chan<- os.Signal)                 {}

func TestScaleFactor(t *testing.T) {
	tests := []struct {
		deviation, span, want float64
	}{
		{6250, 10, 625},
		{2500, 10, 250},
		{75000, 10, 7500},
		{0, 10, 0},
		{-6250, 10, -625},
	}
	for _, tt := range tests {
		if got := ScaleFactor(tt.deviation, tt.span); got != tt.want {
			t.Fatalf("ScaleFactor(%v, %v) = %v, want %v", tt.deviation, tt.span, got, tt.want)
		}
	}
}

func TestRunScalesBlocks(t *testing.T) {
	src := &fakeSource{blocks: [][]float64{{10, -10, 0, 5}}}
	sink := &fakeSink{}
	lc := &fakeLifecycle{}

	tr := New(src, sink, ScaleFactor(6250, 10), 4, lc)
	tr.Run()

	if len(sink.submitted) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(sink.submitted))
	}
	want := []float64{6250, -6250, 0, 3125}
	for i, v := range sink.submitted[0] {
		if math.Abs(v-want[i]) > 1e-9 {
			t.Fatalf("sample %d = %v, want %v", i, v, want[i])
		}
	}
	if tr.Peak() != 6250 {
		t.Fatalf("peak = %v", tr.Peak())
	}
}

func TestRunPreservesOrderAndLength(t *testing.T) {
	const d, a = 2500.0, 10.0
	var blocks [][]float64
	for b := 0; b < 8; b++ {
		block := make([]float64, 16)
		for i := range block {
			block[i] = -a + 2*a*float64(b*16+i)/127
		}
		blocks = append(blocks, block)
	}
	src := &fakeSource{blocks: append([][]float64(nil), blocks...)}
	sink := &fakeSink{}

	tr := New(src, sink, ScaleFactor(d, a), 16, &fakeLifecycle{})
	tr.Run()

	if len(sink.submitted) != len(blocks) {
		t.Fatalf("submitted %d blocks, want %d", len(sink.submitted), len(blocks))
	}
	for b, got := range sink.submitted {
		if len(got) != 16 {
			t.Fatalf("block %d length %d", b, len(got))
		}
		for i, v := range got {
			want := blocks[b][i] * d / a
			if math.Abs(v-want) > 1e-9 {
				t.Fatalf("block %d sample %d = %v, want %v", b, i, v, want)
			}
		}
	}
	if tr.Blocks() != uint64(len(blocks)) {
		t.Fatalf("Blocks() = %d", tr.Blocks())
	}
}

func TestRunPassesOutOfRangeSamplesThrough(t *testing.T) {
	src := &fakeSource{blocks: [][]float64{{20, -35}}}
	sink := &fakeSink{}

	New(src, sink, 625, 2, &fakeLifecycle{}).Run()

	if sink.submitted[0][0] != 12500 || sink.submitted[0][1] != -21875 {
		t.Fatalf("expected unclamped deviation, got %v", sink.submitted[0])
	}
}

func TestRunExhaustionTerminatesWithoutRetry(t *testing.T) {
	src := &fakeSource{blocks: [][]float64{{1}, {2}}}
	sink := &fakeSink{}
	lc := &fakeLifecycle{}

	tr := New(src, sink, 1, 1, lc)
	tr.Run()

	if src.calls != 3 {
		t.Fatalf("expected 3 retrievals, got %d", src.calls)
	}
	if len(lc.codes) != 1 || lc.codes[0] != 0 {
		t.Fatalf("expected a single neutral teardown, got %v", lc.codes)
	}
	if tr.State() != Terminating {
		t.Fatalf("state = %v", tr.State())
	}
}

func TestRunSourceFailureIsFatal(t *testing.T) {
	src := &fakeSource{err: errors.New("device unplugged")}
	lc := &fakeLifecycle{}

	New(src, &fakeSink{}, 1, 1, lc).Run()

	if len(lc.fatals) != 1 || lc.codes[0] != 1 {
		t.Fatalf("expected fatal teardown, got %v", lc.codes)
	}
}

func TestRunSubmitFailureIsFatal(t *testing.T) {
	src := &fakeSource{blocks: [][]float64{{1}, {2}, {3}}}
	sink := &fakeSink{failAt: 2}
	lc := &fakeLifecycle{}

	tr := New(src, sink, 1, 1, lc)
	tr.Run()

	if len(sink.submitted) != 1 {
		t.Fatalf("expected 1 accepted block, got %d", len(sink.submitted))
	}
	if len(lc.fatals) != 1 {
		t.Fatalf("expected fatal teardown, got %v", lc.codes)
	}
	if src.calls != 2 {
		t.Fatalf("source read after failed submit: %d calls", src.calls)
	}
}

func TestExhaustionOnThirdIterationReleasesEverything(t *testing.T) {
	src := &fakeSource{blocks: [][]float64{{1, 2}, {3, 4}}}
	sink := &fakeSink{}

	var exits []int
	g := guard.New(guard.WithExit(func(code int) { exits = append(exits, code) }), guard.WithNotifier(nopNotifier{}))
	var order []string
	g.Add("radio", func() error { order = append(order, "radio"); return sink.Release() })
	g.Add("mpx", func() error { order = append(order, "mpx"); return src.Close() })
	g.Arm()

	New(src, sink, 625, 2, g).Run()

	if len(sink.submitted) != 2 {
		t.Fatalf("expected exactly 2 submissions, got %d", len(sink.submitted))
	}
	if sink.released != 1 || src.closed != 1 {
		t.Fatalf("released %d, closed %d", sink.released, src.closed)
	}
	if len(order) != 2 || order[0] != "radio" {
		t.Fatalf("teardown order = %v", order)
	}
	if len(exits) != 1 || exits[0] != 0 {
		t.Fatalf("exit codes = %v", exits)
	}
}

func TestSnapshot(t *testing.T) {
	src := &fakeSource{blocks: [][]float64{{1, 2, 3}}}
	tr := New(src, &fakeSink{}, 2, 3, &fakeLifecycle{})

	dst := make([]float64, 3)
	if n := tr.Snapshot(dst); n != 0 {
		t.Fatalf("snapshot before enable copied %d", n)
	}

	tr.EnableSnapshots()
	tr.Run()

	if n := tr.Snapshot(dst); n != 3 || dst[2] != 6 {
		t.Fatalf("snapshot = %v (%d)", dst, n)
	}
}
