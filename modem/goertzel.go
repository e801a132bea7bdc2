/*
NAME
  goertzel.go

DESCRIPTION
  goertzel.go implements the per-symbol narrow discrete Fourier
  evaluation: for each channel, a precomputed sine and cosine reference
  vector of length W is dotted against a window of samples to produce a
  magnitude. References are precomputed once per channel at
  construction.
*/

package modem

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// referenceTables holds the precomputed sin/cos reference vectors for a
// fixed set of channel frequencies, sample rate and window size.
type referenceTables struct {
	sin [][]float64
	cos [][]float64
}

// newReferenceTables builds one sin/cos pair per frequency in freqs, each
// of length windowSize, sampled at sampleRate Hz.
func newReferenceTables(freqs []float64, windowSize, sampleRate int) *referenceTables {
	rt := &referenceTables{
		sin: make([][]float64, len(freqs)),
		cos: make([][]float64, len(freqs)),
	}
	for ch, f := range freqs {
		sin := make([]float64, windowSize)
		cos := make([]float64, windowSize)
		for k := 0; k < windowSize; k++ {
			angle := 2 * math.Pi * f * float64(k) / float64(sampleRate)
			sin[k] = math.Sin(angle)
			cos[k] = math.Cos(angle)
		}
		rt.sin[ch] = sin
		rt.cos[ch] = cos
	}
	return rt
}

// magnitude computes sqrt(a^2+b^2) for a = Σ sin·x, b = Σ cos·x over one
// window of samples on channel ch, accumulating in float64 even though
// the samples themselves stay float32.
func (rt *referenceTables) magnitude(ch int, window []float32) float64 {
	x := make([]float64, len(window))
	for i, s := range window {
		x[i] = float64(s)
	}
	a := floats.Dot(rt.sin[ch], x)
	b := floats.Dot(rt.cos[ch], x)
	return math.Hypot(a, b)
}

// symbolMagnitudes slices samples into consecutive windows of windowSize
// and returns one magnitude per window for channel ch.
func (rt *referenceTables) symbolMagnitudes(ch int, samples []float32, windowSize int) []float64 {
	n := len(samples) / windowSize
	mags := make([]float64, n)
	for i := 0; i < n; i++ {
		mags[i] = rt.magnitude(ch, samples[i*windowSize:(i+1)*windowSize])
	}
	return mags
}
