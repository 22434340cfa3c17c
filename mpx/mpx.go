// Package mpx generates the baseband the transmitter modulates: audio from a
// file, stdin or a test tone, band limited, resampled to the output rate and
// optionally mixed with a CTCSS sub-audible tone.
//
// Samples are emitted in [-Amplitude, Amplitude].
package mpx

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/jrwynneiii/nbfmtx/config"
	"github.com/racerxdl/segdsp/dsp"
)

// Amplitude is the peak value of a full scale baseband sample.
const Amplitude = 10.0

var ErrUnsupportedSource = errors.New("unsupported baseband source")

type Generator struct {
	Source     string
	OutputRate float64

	audio      audioReader
	loop       bool
	audioLevel float64

	lowpass *dsp.FirFilter
	chunk   []float64
	filtIn  []complex64
	pending []complex64
	readErr error

	// linear interpolation state between two filtered input samples
	step      float64
	frac      float64
	prev, cur float64
	primed    bool

	ctcssStep  float64
	ctcssPhase float64
	ctcssLevel float64

	exhausted bool
	closeOnce sync.Once
	closeErr  error
}

// Open prepares a generator for source:
//
//	""          silence
//	"-"         raw s16le mono PCM on stdin at conf.InputRate
//	"tone:<hz>" a test tone
//	<path>      a PCM WAV file
func Open(source string, blockSize int, conf config.MpxConf) (*Generator, error) {
	log.Debugf("Found mpx definition: %##v", conf)

	g := &Generator{
		Source:     source,
		OutputRate: conf.OutputRate,
		loop:       conf.Loop,
		audioLevel: conf.AudioLevel,
		ctcssLevel: conf.CTCSSLevel,
		chunk:      make([]float64, blockSize),
		filtIn:     make([]complex64, blockSize),
	}
	if conf.CTCSSHz > 0 {
		g.ctcssStep = 2 * math.Pi * conf.CTCSSHz / conf.OutputRate
	}

	var err error
	switch {
	case source == "":
		log.Info("No audio source, transmitting an unmodulated carrier")
	case source == "-":
		g.audio = newPCMReader(stdin, conf.InputRate)
	case strings.HasPrefix(source, "tone:"):
		freq, perr := strconv.ParseFloat(strings.TrimPrefix(source, "tone:"), 64)
		if perr != nil || freq <= 0 {
			return nil, fmt.Errorf("%q: %w: bad tone frequency", source, ErrUnsupportedSource)
		}
		g.audio = &toneReader{freq: freq, rate: conf.InputRate}
	default:
		if g.audio, err = openWAV(source); err != nil {
			return nil, err
		}
	}

	if g.audio != nil {
		inRate := g.audio.Rate()
		if inRate <= 0 {
			g.audio.Close()
			return nil, fmt.Errorf("%q: %w: sample rate %v", source, ErrUnsupportedSource, inRate)
		}
		cutoff := math.Min(conf.CutoffHz, 0.45*inRate)
		transition := math.Min(conf.Transition, inRate/2-cutoff)
		g.lowpass = dsp.MakeFirFilter(dsp.MakeLowPass(1, inRate, cutoff, transition))
		g.step = inRate / conf.OutputRate
		log.Debugf("[mpx] %s: %v Hz in, %v Hz out, low-pass at %v Hz", source, inRate, conf.OutputRate, cutoff)
	}

	return g, nil
}

// Samples fills block. When the audio runs out the rest of the block is
// zero-filled and the next call returns io.EOF.
func (g *Generator) Samples(block []float64) error {
	if g.exhausted {
		return io.EOF
	}

	for i := range block {
		var a float64
		if g.audio != nil {
			var err error
			if a, err = g.next(); err != nil {
				if !errors.Is(err, io.EOF) {
					return fmt.Errorf("reading %s: %w", g.Source, err)
				}
				g.exhausted = true
				if i == 0 {
					return io.EOF
				}
				clear(block[i:])
				return nil
			}
		}

		s := g.audioLevel * a
		if g.ctcssStep != 0 {
			s += g.ctcssLevel * math.Sin(g.ctcssPhase)
			g.ctcssPhase = math.Mod(g.ctcssPhase+g.ctcssStep, 2*math.Pi)
		}
		block[i] = Amplitude * s
	}
	return nil
}

// next returns the following output-rate audio sample.
func (g *Generator) next() (float64, error) {
	if !g.primed {
		first, err := g.input()
		if err != nil {
			return 0, err
		}
		second, err := g.input()
		if err != nil {
			return 0, err
		}
		g.prev, g.cur, g.primed = first, second, true
	}

	for g.frac >= 1 {
		in, err := g.input()
		if err != nil {
			return 0, err
		}
		g.prev, g.cur = g.cur, in
		g.frac--
	}

	out := g.prev + (g.cur-g.prev)*g.frac
	g.frac += g.step
	return out, nil
}

// input returns the next low-passed input-rate sample.
func (g *Generator) input() (float64, error) {
	for len(g.pending) == 0 {
		// an error that came with a short read surfaces once its samples are used
		if g.readErr != nil {
			return 0, g.readErr
		}

		n, err := g.audio.Read(g.chunk)
		if n == 0 && errors.Is(err, io.EOF) && g.loop {
			if rerr := g.audio.Rewind(); rerr == nil {
				log.Debugf("[mpx] Rewinding %s", g.Source)
				n, err = g.audio.Read(g.chunk)
			}
		}
		if n == 0 {
			if err == nil {
				err = io.EOF
			}
			return 0, err
		}

		if err != nil && !errors.Is(err, io.EOF) {
			g.readErr = err
		}

		for i := 0; i < n; i++ {
			g.filtIn[i] = complex(float32(g.chunk[i]), 0)
		}
		g.pending = g.lowpass.Work(g.filtIn[:n])
	}

	s := float64(real(g.pending[0]))
	g.pending = g.pending[1:]
	return s, nil
}

// Close releases the audio source. Only the first call does anything.
func (g *Generator) Close() error {
	g.closeOnce.Do(func() {
		if g.audio != nil {
			g.closeErr = g.audio.Close()
		}
	})
	return g.closeErr
}
