/*
NAME
  spectrum.go

DESCRIPTION
  spectrum.go provides an offline spectral view of a captured audio
  buffer via github.com/mjibson/go-dsp/fft, useful for confirming carrier
  placement and channel spacing when a link isn't decoding cleanly. It is
  explicitly a diagnostic tool, never called from the modem's per-symbol
  decode path.
*/

package diag

import (
	"math"

	"github.com/mjibson/go-dsp/fft"
)

// Bin is one frequency/magnitude pair from a Spectrum call.
type Bin struct {
	Hz        float64
	Magnitude float64
}

// Spectrum computes the magnitude spectrum of samples sampled at
// sampleRate Hz, returning one Bin per non-negative frequency bin.
func Spectrum(samples []float32, sampleRate int) []Bin {
	in := make([]float64, len(samples))
	for i, s := range samples {
		in[i] = float64(s)
	}
	out := fft.FFTReal(in)

	n := len(out)/2 + 1
	bins := make([]Bin, n)
	for i := 0; i < n; i++ {
		bins[i] = Bin{
			Hz:        float64(i) * float64(sampleRate) / float64(len(out)),
			Magnitude: cabs(out[i]),
		}
	}
	return bins
}

// PeakFrequencies returns the n bins with the highest magnitude, sorted
// descending by magnitude, skipping the DC bin.
func PeakFrequencies(bins []Bin, n int) []Bin {
	candidates := append([]Bin{}, bins[1:]...)
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			if candidates[j].Magnitude > candidates[i].Magnitude {
				candidates[i], candidates[j] = candidates[j], candidates[i]
			}
		}
	}
	if n > len(candidates) {
		n = len(candidates)
	}
	return candidates[:n]
}

func cabs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}
