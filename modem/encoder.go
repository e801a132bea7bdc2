/*
NAME
  encoder.go

DESCRIPTION
  encoder.go implements MessageEncoder.Encode: payload framing, bit-level
  demultiplexing across the send carrier set, per-channel parity
  insertion, on-off-keyed carrier synthesis and peak normalization.
*/

package modem

import (
	"math"

	"github.com/pkg/errors"

	"github.com/elgarvdzande/beepmission/params"
)

// ErrPayloadTooLarge indicates a payload exceeding the configured
// MaxPayload was passed to Encode.
var ErrPayloadTooLarge = errors.New("modem: payload too large")

// Encoder turns application payloads into PCM samples carrying one
// on-off-keyed tone per send channel.
type Encoder struct {
	params *params.TransmissionParameters
	freqs  []float64
}

// NewEncoder builds an Encoder for the send carrier subset of p.
func NewEncoder(p *params.TransmissionParameters) *Encoder {
	return &Encoder{params: p, freqs: p.SendFrequencies()}
}

// Encode builds the framed, multi-carrier PCM waveform for payload. The
// returned samples are in [-1, 1], the whole waveform scaled by its own
// peak magnitude.
func (e *Encoder) Encode(payload []byte) ([]float32, error) {
	if len(payload) > e.params.MaxPayload {
		return nil, ErrPayloadTooLarge
	}

	frame := buildFrame(payload)
	bits := bytesToBits(frame)

	nchannels := len(e.freqs)
	if pad := (-len(bits)) % nchannels; pad > 0 {
		bits = append(bits, make([]int, pad)...)
	}

	windowSize := e.params.WindowSize()
	sampleRate := e.params.SampleRate

	var audio []float32
	for ch, freq := range e.freqs {
		chBits := demux(bits, ch, nchannels)
		symbols := append(append([]int{}, StartSeq...), addParity(chBits)...)
		chAudio := modulate(symbols, freq, windowSize, sampleRate)
		if audio == nil {
			audio = chAudio
			continue
		}
		for i, s := range chAudio {
			audio[i] += s
		}
	}

	normalize(audio)
	return audio, nil
}

// bytesToBits unpacks data into its big-endian bit sequence, most
// significant bit first.
func bytesToBits(data []byte) []int {
	bits := make([]int, 0, 8*len(data))
	for _, b := range data {
		for i := 7; i >= 0; i-- {
			bits = append(bits, int((b>>uint(i))&1))
		}
	}
	return bits
}

// demux extracts every nchannels-th bit starting at offset ch, the
// per-channel interleave of the transmitted bitstream.
func demux(bits []int, ch, nchannels int) []int {
	out := make([]int, 0, len(bits)/nchannels+1)
	for i := ch; i < len(bits); i += nchannels {
		out = append(out, bits[i])
	}
	return out
}

// modulate synthesizes one on-off-keyed carrier at freq, one window of
// windowSize samples per symbol in symbols.
func modulate(symbols []int, freq float64, windowSize, sampleRate int) []float32 {
	out := make([]float32, len(symbols)*windowSize)
	for s, bit := range symbols {
		if bit == 0 {
			continue
		}
		base := s * windowSize
		for k := 0; k < windowSize; k++ {
			t := float64(base+k) / float64(sampleRate)
			out[base+k] = float32(math.Cos(2 * math.Pi * freq * t))
		}
	}
	return out
}

// normalize scales audio in place so its peak absolute value is 1. A
// silent buffer (all zero) is left untouched.
func normalize(audio []float32) {
	var peak float32
	for _, s := range audio {
		if abs := float32(math.Abs(float64(s))); abs > peak {
			peak = abs
		}
	}
	if peak == 0 {
		return
	}
	for i := range audio {
		audio[i] /= peak
	}
}
