/*
NAME
  wav.go

DESCRIPTION
  wav.go dumps raw PCM float32 samples to a 16-bit mono WAV file for
  offline inspection, following exp/flac/decode.go's use of
  github.com/go-audio/wav and github.com/go-audio/audio.
*/

// Package diag provides offline-only instrumentation for the modem and
// link packages: WAV capture dumps and spectrum snapshots. Nothing here
// is on the hot encode/decode path.
package diag

import (
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavFormat = 1 // PCM.
const bitDepth = 16

// DumpWAV writes samples (expected in [-1, 1]) to path as a 16-bit mono
// WAV file at sampleRate Hz.
func DumpWAV(path string, samples []float32, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, bitDepth, 1, wavFormat)
	defer enc.Close()

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s * 32767.0)
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	return enc.Write(buf)
}
