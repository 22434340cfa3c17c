package modulate

import (
	"math"
	"math/cmplx"
	"testing"

	"hz.tools/rf"
)

func phaseStep(a, b complex64) float64 {
	return cmplx.Phase(complex128(b) * cmplx.Conj(complex128(a)))
}

func TestModulateConstantDeviation(t *testing.T) {
	m := NewFM(228000, 4, 16)
	dev := make([]float64, 16)
	for i := range dev {
		dev[i] = 6250
	}

	iq := m.Modulate(dev)
	if len(iq) != 64 {
		t.Fatalf("expected 64 IQ samples, got %d", len(iq))
	}

	want := 2 * math.Pi * 6250 / m.DeviceRate()
	for i := 1; i < len(iq); i++ {
		if mag := cmplx.Abs(complex128(iq[i])); math.Abs(mag-1) > 1e-5 {
			t.Fatalf("sample %d magnitude %f", i, mag)
		}
		if got := phaseStep(iq[i-1], iq[i]); math.Abs(got-want) > 1e-5 {
			t.Fatalf("sample %d phase step %f, want %f", i, got, want)
		}
	}
}

func TestModulateZeroDeviationHoldsPhase(t *testing.T) {
	m := NewFM(228000, 2, 8)
	iq := m.Modulate(make([]float64, 8))
	for i, s := range iq {
		if math.Abs(float64(real(s))-1) > 1e-6 || math.Abs(float64(imag(s))) > 1e-6 {
			t.Fatalf("sample %d = %v, want 1+0i", i, s)
		}
	}
}

func TestModulatePhaseIsContinuousAcrossBlocks(t *testing.T) {
	m := NewFM(1000, 1, 4)
	first := m.Modulate([]float64{100, 100, 100, 100})
	last := first[len(first)-1]
	second := m.Modulate([]float64{100, 100, 100, 100})

	want := 2 * math.Pi * 100 / 1000
	if got := phaseStep(last, second[0]); math.Abs(got-want) > 1e-5 {
		t.Fatalf("phase jumped by %f between blocks, want %f", got, want)
	}
	if p := m.Phase(); p > math.Pi || p < -math.Pi {
		t.Fatalf("phase %f was not wrapped", p)
	}
}

func TestModulateNegativeDeviation(t *testing.T) {
	m := NewFM(1000, 1, 2)
	iq := m.Modulate([]float64{-50, -50})
	if got := phaseStep(iq[0], iq[1]); got >= 0 {
		t.Fatalf("negative deviation produced phase step %f", got)
	}
}

func TestDeviceRate(t *testing.T) {
	if rate := NewFM(228000, 10, 1).DeviceRate(); rate != 2280000 {
		t.Fatalf("device rate = %v", rate)
	}
	if m := NewFM(228000, 0, 1); m.Oversampling != 1 {
		t.Fatalf("oversampling not clamped to 1: %d", m.Oversampling)
	}
}

func TestBandwidth(t *testing.T) {
	if bw := Bandwidth(5*rf.KHz, 3*rf.KHz); bw != 16*rf.KHz {
		t.Fatalf("bandwidth = %v", float64(bw))
	}
}
