package radio

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jrwynneiii/nbfmtx/config"
	"hz.tools/rf"
	"hz.tools/sdr"
	"hz.tools/sdr/mock"
)

type fakeWriter struct {
	format sdr.SampleFormat

	// when set, Write reports on entered and waits for proceed
	entered chan struct{}
	proceed chan struct{}

	mu      sync.Mutex
	events  []string
	lengths []int
	formats []sdr.SampleFormat
}

func (f *fakeWriter) Write(s sdr.Samples) (int, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.proceed
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, "write")
	f.lengths = append(f.lengths, s.Length())
	f.formats = append(f.formats, s.Format())
	return s.Length(), nil
}

func (f *fakeWriter) SampleFormat() sdr.SampleFormat { return f.format }
func (f *fakeWriter) SampleRate() uint               { return 0 }

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, "close tx")
	return nil
}

func (f *fakeWriter) history() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

// device records Close on top of the mock SDR.
type device struct {
	sdr.Transceiver
	w *fakeWriter
}

func (d device) Close() error {
	d.w.mu.Lock()
	defer d.w.mu.Unlock()
	d.w.events = append(d.w.events, "close device")
	return nil
}

type txGain struct{}

func (txGain) Range() [2]float32       { return [2]float32{0, 47} }
func (txGain) Type() sdr.GainStageType { return sdr.GainStageTypeTransmit | sdr.GainStageTypeBB }
func (txGain) String() string          { return "TXVGA" }

type fixture struct {
	w      *fakeWriter
	dev    sdr.Transceiver
	opens  int
	conf   config.RadioConf
	radio  *Transmitter
	stages sdr.GainStages
}

func newFixture(format sdr.SampleFormat) *fixture {
	f := &fixture{
		w:    &fakeWriter{format: format},
		conf: config.RadioConf{Driver: "mock", Gain: 20},
	}
	open := func(config.RadioConf) (sdr.Transmitter, error) {
		f.opens++
		f.dev = mock.New(mock.Config{
			SampleFormat: format,
			Tx:           mock.ThisTx(f.w),
			GainStages:   f.stages,
		})
		return device{Transceiver: f.dev, w: f.w}, nil
	}
	f.radio = New(f.conf, open, 144500*rf.KHz, 1000, 4, 10)
	return f
}

func TestConnectTunesDevice(t *testing.T) {
	f := newFixture(sdr.SampleFormatC64)
	f.stages = sdr.GainStages{txGain{}}
	if err := f.radio.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}

	if freq, _ := f.dev.GetCenterFrequency(); freq != 144500*rf.KHz {
		t.Fatalf("center frequency = %v, want 144.5 MHz", freq)
	}
	if rate, _ := f.dev.GetSampleRate(); rate != 4000 {
		t.Fatalf("sample rate = %d, want 4000", rate)
	}
	if gain, err := f.dev.GetGain(txGain{}); err != nil || gain != 20 {
		t.Fatalf("tx gain = %v (%v), want 20", gain, err)
	}
}

func TestConnectWithoutGainControl(t *testing.T) {
	f := newFixture(sdr.SampleFormatC64)
	if err := f.radio.Connect(); err != nil {
		t.Fatalf("a device without gain stages should still connect: %v", err)
	}
}

func TestConnectReportsOpenFailure(t *testing.T) {
	gone := errors.New("no such device")
	r := New(config.RadioConf{Driver: "mock"}, func(config.RadioConf) (sdr.Transmitter, error) {
		return nil, gone
	}, rf.MHz, 1000, 1, 10)

	if err := r.Connect(); !errors.Is(err, gone) {
		t.Fatalf("expected the open error, got %v", err)
	}
	if err := r.Release(); err != nil {
		t.Fatalf("releasing an unopened radio: %v", err)
	}
}

func TestSubmitBeforeConnect(t *testing.T) {
	f := newFixture(sdr.SampleFormatC64)
	if err := f.radio.Submit(make([]float64, 10)); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestSubmitWritesOversampledIQ(t *testing.T) {
	f := newFixture(sdr.SampleFormatC64)
	if err := f.radio.Connect(); err != nil {
		t.Fatal(err)
	}
	if err := f.radio.Submit([]float64{100, -100, 0, 50, 25, 0, 0, 0, 0, 0}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if len(f.w.lengths) != 1 || f.w.lengths[0] != 40 {
		t.Fatalf("wrote %v IQ samples, want one write of 40", f.w.lengths)
	}
	if f.w.formats[0] != sdr.SampleFormatC64 {
		t.Fatalf("wrote %s, want complex64", f.w.formats[0])
	}
}

func TestSubmitConvertsToDeviceFormat(t *testing.T) {
	f := newFixture(sdr.SampleFormatI8)
	if err := f.radio.Connect(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := f.radio.Submit(make([]float64, 10)); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	for i, format := range f.w.formats {
		if format != sdr.SampleFormatI8 {
			t.Fatalf("write %d was %s, want int8", i, format)
		}
		if f.w.lengths[i] != 40 {
			t.Fatalf("write %d had %d samples, want 40", i, f.w.lengths[i])
		}
	}
}

func TestSubmitAfterRelease(t *testing.T) {
	f := newFixture(sdr.SampleFormatC64)
	if err := f.radio.Connect(); err != nil {
		t.Fatal(err)
	}
	if err := f.radio.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	if err := f.radio.Submit(make([]float64, 10)); !errors.Is(err, ErrReleased) {
		t.Fatalf("expected ErrReleased, got %v", err)
	}
	if got := f.w.history(); len(got) != 2 || got[0] != "close tx" || got[1] != "close device" {
		t.Fatalf("release history = %v, want the stream stopped then the device closed", got)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	f := newFixture(sdr.SampleFormatC64)
	if err := f.radio.Connect(); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.radio.Release(); err != nil {
				t.Errorf("release: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := f.w.history(); len(got) != 2 {
		t.Fatalf("release ran more than once: %v", got)
	}
}

func TestReleaseWaitsForInFlightWrite(t *testing.T) {
	f := newFixture(sdr.SampleFormatC64)
	if err := f.radio.Connect(); err != nil {
		t.Fatal(err)
	}
	f.w.entered = make(chan struct{})
	f.w.proceed = make(chan struct{})

	submitted := make(chan error, 1)
	go func() { submitted <- f.radio.Submit(make([]float64, 10)) }()
	<-f.w.entered

	released := make(chan error, 1)
	go func() { released <- f.radio.Release() }()

	select {
	case <-released:
		t.Fatalf("release returned while a write was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(f.w.proceed)
	if err := <-submitted; err != nil {
		t.Fatalf("in-flight submit: %v", err)
	}
	if err := <-released; err != nil {
		t.Fatalf("release: %v", err)
	}

	got := f.w.history()
	if len(got) != 3 || got[0] != "write" || got[1] != "close tx" {
		t.Fatalf("history = %v, want the write to finish before the stream stops", got)
	}
}

func TestConnectAfterReleaseDoesNotOpen(t *testing.T) {
	f := newFixture(sdr.SampleFormatC64)
	if err := f.radio.Release(); err != nil {
		t.Fatal(err)
	}
	if err := f.radio.Connect(); !errors.Is(err, ErrReleased) {
		t.Fatalf("expected ErrReleased, got %v", err)
	}
	if f.opens != 0 {
		t.Fatalf("device was opened %d times after release", f.opens)
	}
}
