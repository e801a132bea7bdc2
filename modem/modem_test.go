/*
NAME
  modem_test.go

DESCRIPTION
  modem_test.go exercises the parity/checksum/frame primitives in
  isolation and the encoder/decoder as a loopback pair.
*/

package modem

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/elgarvdzande/beepmission/params"
)

const decodeTimeout = 2 * time.Second

// dumbLogger discards everything; used wherever a logging.Logger is
// required but its output isn't under test.
type dumbLogger struct{}

func (dumbLogger) Log(l int8, m string, a ...interface{})  {}
func (dumbLogger) SetLevel(l int8)                         {}
func (dumbLogger) Debug(msg string, args ...interface{})   {}
func (dumbLogger) Info(msg string, args ...interface{})    {}
func (dumbLogger) Warning(msg string, args ...interface{}) {}
func (dumbLogger) Error(msg string, args ...interface{})   {}
func (dumbLogger) Fatal(msg string, args ...interface{})   {}

func TestAddRemoveParity(t *testing.T) {
	cases := [][]int{
		{0, 0, 0, 0, 0, 0, 0, 0},
		{1, 0, 1, 0, 1, 0, 1, 0},
		{1, 1, 1, 1, 1, 1, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0},
		{1, 0, 1},
		{1, 1, 1, 1, 1, 1, 1, 1, 1, 0, 1},
	}
	for _, bits := range cases {
		withParity := addParity(bits)
		got := removeParity(withParity)
		if !cmp.Equal(got, bits) {
			t.Errorf("removeParity(addParity(%v)) = %v, want %v", bits, got, bits)
		}
	}
}

func TestParityForcesTransitionOnAllZero(t *testing.T) {
	bits := make([]int, 8)
	withParity := addParity(bits)
	if withParity[8] != 1 {
		t.Errorf("parity bit for all-zero group = %d, want 1", withParity[8])
	}
}

func TestParityNoBitOnPartialGroup(t *testing.T) {
	bits := []int{1, 0, 1}
	withParity := addParity(bits)
	if len(withParity) != len(bits) {
		t.Errorf("addParity on partial group changed length: got %d, want %d", len(withParity), len(bits))
	}
}

func TestChecksumRoundTrip(t *testing.T) {
	payloads := [][]byte{
		nil,
		[]byte("a"),
		[]byte("hello, beepmission"),
		{0x00, 0xff, 0x00, 0xff, 0x00},
	}
	for _, p := range payloads {
		frame := buildFrame(p)
		if !verifyChecksum(frame) {
			t.Errorf("verifyChecksum(buildFrame(%v)) = false, want true", p)
		}
		frame[len(frame)-1] ^= 0xff
		if verifyChecksum(frame) {
			t.Errorf("verifyChecksum on corrupted frame = true, want false")
		}
	}
}

func TestBuildParseFrameRoundTrip(t *testing.T) {
	payload := []byte("round trip")
	frame := buildFrame(payload)
	got, err := parseFrame(frame)
	if err != nil {
		t.Fatalf("parseFrame: %v", err)
	}
	if !cmp.Equal(got, payload) {
		t.Errorf("parseFrame(buildFrame(%q)) = %q, want %q", payload, got, payload)
	}
}

func TestParseFrameTruncated(t *testing.T) {
	if _, err := parseFrame([]byte{0, 1}); err != ErrTruncatedFrame {
		t.Errorf("parseFrame on 2-byte input: got %v, want ErrTruncatedFrame", err)
	}
	frame := buildFrame([]byte("abc"))
	if _, err := parseFrame(frame[:len(frame)-1]); err != ErrTruncatedFrame {
		t.Errorf("parseFrame on truncated frame: got %v, want ErrTruncatedFrame", err)
	}
}

func newTestParams(t *testing.T, isMaster bool) *params.TransmissionParameters {
	t.Helper()
	p, err := params.New(
		params.WithChannels(4),
		params.WithSeqMax(3),
		params.WithMaxPayload(8),
		params.WithMaster(isMaster),
	)
	if err != nil {
		t.Fatalf("params.New: %v", err)
	}
	return p
}

// mirror swaps IsMaster so a decoder can be built for the other side of
// the link: the master's send frequencies are the slave's receive
// frequencies and vice versa.
func mirror(p *params.TransmissionParameters) *params.TransmissionParameters {
	mirrored := *p
	mirrored.IsMaster = !mirrored.IsMaster
	return &mirrored
}

func TestEncodeDecodeLoopback(t *testing.T) {
	p := newTestParams(t, true)
	enc := NewEncoder(p)
	dec := NewDecoder(mirror(p), dumbLogger{})
	defer dec.Stop()

	payload := []byte("hi")
	audio, err := enc.Encode(payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// The decoder never attempts a decode until its buffer holds at
	// least one maximum-size frame's worth of samples, so a single
	// short frame needs trailing silence to push past that gate.
	trailer := make([]float32, mirror(p).MaxFrameSamples())
	dec.Write(append(audio, trailer...))
	select {
	case got := <-dec.Messages():
		if !cmp.Equal(got, payload) {
			t.Errorf("decoded payload = %q, want %q", got, payload)
		}
	case <-time.After(decodeTimeout):
		t.Fatalf("no message decoded from loopback audio")
	}
}

func TestEncodeDecodeSegmentedInput(t *testing.T) {
	p := newTestParams(t, true)
	enc := NewEncoder(p)
	dec := NewDecoder(mirror(p), dumbLogger{})
	defer dec.Stop()

	payload := []byte("segment8")
	audio, err := enc.Encode(payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// Trailing silence pushes the decode buffer past the gate that
	// requires at least one maximum-size frame's worth of samples.
	audio = append(audio, make([]float32, mirror(p).MaxFrameSamples())...)

	for i := 0; i < len(audio); i += 37 {
		end := i + 37
		if end > len(audio) {
			end = len(audio)
		}
		dec.Write(audio[i:end])
	}

	select {
	case got := <-dec.Messages():
		if !cmp.Equal(got, payload) {
			t.Errorf("decoded payload = %q, want %q", got, payload)
		}
	case <-time.After(decodeTimeout):
		t.Fatalf("no message decoded from segmented loopback audio")
	}
}

func TestEncodeDecodeLeadingSilence(t *testing.T) {
	p := newTestParams(t, true)
	enc := NewEncoder(p)
	dec := NewDecoder(mirror(p), dumbLogger{})
	defer dec.Stop()

	payload := []byte("silence8")
	audio, err := enc.Encode(payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	leadingSilence := make([]float32, p.WindowSize()*5)
	trailer := make([]float32, mirror(p).MaxFrameSamples())
	dec.Write(append(append(leadingSilence, audio...), trailer...))

	select {
	case got := <-dec.Messages():
		if !cmp.Equal(got, payload) {
			t.Errorf("decoded payload = %q, want %q", got, payload)
		}
	case <-time.After(decodeTimeout):
		t.Fatalf("no message decoded after leading silence")
	}
}

func TestEncodePayloadTooLarge(t *testing.T) {
	p := newTestParams(t, true)
	enc := NewEncoder(p)
	_, err := enc.Encode(make([]byte, p.MaxPayload+1))
	if err != ErrPayloadTooLarge {
		t.Errorf("Encode with oversized payload: got %v, want ErrPayloadTooLarge", err)
	}
}

func TestFrameSamplesMatchesActualEncodeLength(t *testing.T) {
	p := newTestParams(t, true)
	enc := NewEncoder(p)
	payload := []byte("exact")
	audio, err := enc.Encode(payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := params.FrameSamples(p.WindowSize(), len(payload), len(p.SendFrequencies()))
	if len(audio) != want {
		t.Errorf("len(audio) = %d, want %d", len(audio), want)
	}
}
