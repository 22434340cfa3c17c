package tui

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

// deviationPercent is peak as a share of the configured deviation.
func deviationPercent(peak, deviation float64) float64 {
	if deviation == 0 {
		return 0
	}
	return 100 * peak / math.Abs(deviation)
}

// decimate reduces block to at most bins points, keeping the largest
// magnitude sample of each bin so peaks stay visible.
func decimate(block []float64, bins int) []float64 {
	if bins <= 0 || len(block) == 0 {
		return nil
	}
	if len(block) <= bins {
		return append([]float64(nil), block...)
	}
	out := make([]float64, bins)
	for i := range out {
		lo := i * len(block) / bins
		hi := (i + 1) * len(block) / bins
		chunk := block[lo:hi]
		hiVal, loVal := floats.Max(chunk), floats.Min(chunk)
		if math.Abs(loVal) > math.Abs(hiVal) {
			out[i] = loVal
		} else {
			out[i] = hiVal
		}
	}
	return out
}

// spectrum is the magnitude spectrum of block in dB, folded into bins.
func spectrum(fft *fourier.FFT, block []float64, bins int) []float64 {
	if fft == nil || fft.Len() != len(block) {
		fft = fourier.NewFFT(len(block))
	}
	coeff := fft.Coefficients(nil, block)

	mags := make([]float64, len(coeff))
	for i, c := range coeff {
		mags[i] = cmplx.Abs(c)
	}
	mags = decimate(mags, bins)
	for i, m := range mags {
		mags[i] = 20 * math.Log10(math.Abs(m)+1e-12)
	}
	return mags
}
