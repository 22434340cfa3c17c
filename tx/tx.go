package tx

import (
	"errors"
	"io"
	"math"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/floats"
)

type State int32

const (
	Armed State = iota
	Streaming
	Terminating
)

func (s State) String() string {
	switch s {
	case Armed:
		return "armed"
	case Streaming:
		return "streaming"
	case Terminating:
		return "terminating"
	}
	return "unknown"
}

// Source fills a block of baseband samples. It returns io.EOF once no more
// samples can be produced.
type Source interface {
	Samples(block []float64) error
}

// Sink accepts deviation blocks in Hz. Submit blocks until the hardware can
// take the block.
type Sink interface {
	Submit(block []float64) error
}

// Lifecycle is the process teardown. Neither method returns in production.
type Lifecycle interface {
	Teardown(code int)
	Fatalf(format string, args ...any)
}

type Transmitter struct {
	source Source
	sink   Sink
	lc     Lifecycle
	scale  float64

	samples   []float64
	deviation []float64

	state  atomic.Int32
	blocks atomic.Uint64
	peak   atomic.Uint64

	snapMu sync.Mutex
	snap   []float64
}

func New(source Source, sink Sink, scale float64, blockSize int, lc Lifecycle) *Transmitter {
	t := &Transmitter{
		source:    source,
		sink:      sink,
		lc:        lc,
		scale:     scale,
		samples:   make([]float64, blockSize),
		deviation: make([]float64, blockSize),
	}
	t.state.Store(int32(Armed))
	return t
}

// EnableSnapshots keeps a copy of the last submitted block for Snapshot.
func (t *Transmitter) EnableSnapshots() {
	t.snapMu.Lock()
	t.snap = make([]float64, len(t.deviation))
	t.snapMu.Unlock()
}

// Run streams until the source is exhausted or a block fails, then hands
// over to the lifecycle. It only returns if the lifecycle does.
func (t *Transmitter) Run() {
	t.state.Store(int32(Streaming))
	log.Debugf("[tx] Streaming %d sample blocks, scale factor %g", len(t.samples), t.scale)

	for {
		if err := t.source.Samples(t.samples); err != nil {
			t.state.Store(int32(Terminating))
			if errors.Is(err, io.EOF) {
				log.Info("Baseband source exhausted, stopping")
				t.lc.Teardown(0)
				return
			}
			t.lc.Fatalf("Could not read baseband samples: %v", err)
			return
		}

		floats.ScaleTo(t.deviation, t.scale, t.samples)

		if err := t.sink.Submit(t.deviation); err != nil {
			t.state.Store(int32(Terminating))
			t.lc.Fatalf("Could not submit deviation block: %v", err)
			return
		}

		t.blocks.Add(1)
		t.record()
	}
}

func (t *Transmitter) record() {
	peak := math.Max(math.Abs(floats.Max(t.deviation)), math.Abs(floats.Min(t.deviation)))
	t.peak.Store(math.Float64bits(peak))

	if t.snapMu.TryLock() {
		if t.snap != nil {
			copy(t.snap, t.deviation)
		}
		t.snapMu.Unlock()
	}
}

func (t *Transmitter) State() State {
	return State(t.state.Load())
}

// Blocks is the number of blocks accepted by the sink.
func (t *Transmitter) Blocks() uint64 {
	return t.blocks.Load()
}

// Peak is the largest absolute deviation (Hz) of the last submitted block.
func (t *Transmitter) Peak() float64 {
	return math.Float64frombits(t.peak.Load())
}

// Snapshot copies the last recorded block into dst and returns the number of
// samples copied. It returns 0 unless EnableSnapshots was called.
func (t *Transmitter) Snapshot(dst []float64) int {
	t.snapMu.Lock()
	defer t.snapMu.Unlock()
	return copy(dst, t.snap)
}

func (t *Transmitter) BlockSize() int {
	return len(t.samples)
}
