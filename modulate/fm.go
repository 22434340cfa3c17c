// Package modulate turns frequency deviation samples into complex baseband
// IQ, ready to be handed to an SDR centered on the carrier.
package modulate

import (
	"math"

	"hz.tools/rf"
	"hz.tools/sdr"
)

const tau = math.Pi * 2

// FM is a phase accumulating frequency modulator. Each deviation sample is
// held for Oversampling IQ samples, so the IQ rate is SampleRate times
// Oversampling.
type FM struct {
	// SampleRate is the rate of the incoming deviation samples.
	SampleRate float64

	// Oversampling is the number of IQ samples emitted per deviation sample.
	Oversampling int

	phase float64
	buf   sdr.SamplesC64
}

// NewFM allocates a modulator with room for blocks of blockSize deviation
// samples.
func NewFM(sampleRate float64, oversampling, blockSize int) *FM {
	if oversampling < 1 {
		oversampling = 1
	}
	return &FM{
		SampleRate:   sampleRate,
		Oversampling: oversampling,
		buf:          make(sdr.SamplesC64, blockSize*oversampling),
	}
}

// DeviceRate is the IQ sample rate the SDR must be configured for.
func (m *FM) DeviceRate() float64 {
	return m.SampleRate * float64(m.Oversampling)
}

// Phase is the carrier phase after the last emitted sample, in [-pi, pi].
func (m *FM) Phase() float64 {
	return m.phase
}

// Modulate returns the IQ for deviation, a block of offsets from the carrier.
// The returned slice aliases an internal buffer and is only valid until the
// next call. Phase carries over between calls.
func (m *FM) Modulate(deviation []float64) sdr.SamplesC64 {
	n := len(deviation) * m.Oversampling
	if cap(m.buf) < n {
		m.buf = make(sdr.SamplesC64, n)
	}
	out := m.buf[:n]

	rate := m.DeviceRate()
	phase := m.phase
	idx := 0
	for _, dev := range deviation {
		step := tau * dev / rate
		for j := 0; j < m.Oversampling; j++ {
			phase += step
			if phase > math.Pi || phase < -math.Pi {
				phase = math.Remainder(phase, tau)
			}
			s, c := math.Sincos(phase)
			out[idx] = complex(float32(c), float32(s))
			idx++
		}
	}
	m.phase = phase
	return out
}

// Bandwidth is Carson's rule for the occupied bandwidth of a signal with the
// given peak deviation and highest modulating frequency.
func Bandwidth(deviation, audio rf.Hz) rf.Hz {
	return 2 * (deviation + audio)
}
