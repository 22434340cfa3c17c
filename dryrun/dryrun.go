// Package dryrun is a stand-in for the SDR: it modulates every block exactly
// like the radio would, throws the IQ away and paces the caller with the wall
// clock instead of a hardware sample clock.
package dryrun

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jrwynneiii/nbfmtx/modulate"
)

var ErrReleased = errors.New("dryrun: sink released")

type Sink struct {
	mod *modulate.FM

	now   func() time.Time
	sleep func(time.Duration)

	start    time.Time
	samples  atomic.Uint64
	released atomic.Bool
}

func New(sampleRate float64, oversampling, blockSize int) *Sink {
	return &Sink{
		mod:   modulate.NewFM(sampleRate, oversampling, blockSize),
		now:   time.Now,
		sleep: time.Sleep,
	}
}

// Submit returns once the wall clock has caught up with the end of block.
func (s *Sink) Submit(block []float64) error {
	if s.released.Load() {
		return ErrReleased
	}
	if s.start.IsZero() {
		s.start = s.now()
	}

	s.mod.Modulate(block)
	s.samples.Add(uint64(len(block)))

	due := s.start.Add(s.Elapsed())
	if wait := due.Sub(s.now()); wait > 0 {
		s.sleep(wait)
	}
	return nil
}

// Release is idempotent.
func (s *Sink) Release() error {
	if s.released.CompareAndSwap(false, true) {
		log.Debugf("[dryrun] Released after %d samples", s.samples.Load())
	}
	return nil
}

// Elapsed is the stream time submitted so far.
func (s *Sink) Elapsed() time.Duration {
	return time.Duration(float64(s.samples.Load()) * float64(time.Second) / s.mod.SampleRate)
}
