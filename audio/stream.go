/*
NAME
  stream.go

DESCRIPTION
  stream.go defines Stream, the full-duplex PCM collaborator the link
  layer plays outgoing audio to and records incoming audio from, plus two
  in-process implementations: BufferedStream, a mutex-guarded FIFO pair
  whose receive side drops its oldest samples once it exceeds a fixed
  cap, and
  LoopbackStream, which cross-connects a pair of BufferedStreams so that
  one's playback lands in the other's recording, for self-contained
  two-peer demos and tests without real hardware.
*/

// Package audio provides the Stream collaborator that the link package
// plays outgoing modem waveforms to and records incoming waveforms from.
// Real hardware access lives in the audio/alsa subpackage; this package
// only provides in-process implementations.
package audio

import (
	"sync"

	"github.com/ausocean/utils/logging"
)

// maxRecvBufSize caps the unread-recording backlog at roughly 1 MiB of
// float32 samples before old samples are dropped.
const maxRecvBufSize = 1024 * 1024 / 4

// Stream is the audio collaborator a link.Link drives once per tick:
// Play enqueues samples for output, Record drains whatever has been
// captured since the last call.
type Stream interface {
	// Play enqueues samples for playback. It must not block.
	Play(samples []float32)

	// Record returns and clears whatever has been captured since the
	// last call. It must not block and may return an empty slice.
	Record() []float32

	// Stop releases any resources held by the stream.
	Stop()
}

// BufferedStream is an in-process Stream backed by two plain slices
// protected by a mutex. It has no hardware of its own: something else
// (a test, a LoopbackStream, a hardware adapter) must move samples out
// of its send buffer and into its recv buffer.
type BufferedStream struct {
	log logging.Logger

	mu         sync.Mutex
	sendBuf    []float32
	recvBuf    []float32
	isDropping bool
}

// NewBufferedStream returns a BufferedStream. l may be nil, in which
// case overflow warnings are discarded.
func NewBufferedStream(l logging.Logger) *BufferedStream {
	if l == nil {
		l = nopLogger{}
	}
	return &BufferedStream{log: l}
}

// Play appends samples to the send buffer.
func (s *BufferedStream) Play(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendBuf = append(s.sendBuf, samples...)
}

// Record returns and clears the recv buffer.
func (s *BufferedStream) Record() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.recvBuf
	s.recvBuf = nil
	return data
}

// Stop is a no-op for BufferedStream: it owns no goroutine or hardware
// handle of its own.
func (s *BufferedStream) Stop() {}

// deliver appends samples to the recv buffer, truncating to the most
// recent maxRecvBufSize samples on overflow and logging exactly once per
// overflow episode, matching audio_stream.py's is_dropping flag.
func (s *BufferedStream) deliver(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recvBuf = append(s.recvBuf, samples...)
	if len(s.recvBuf) > maxRecvBufSize {
		if !s.isDropping {
			s.log.Warning("audio: recv buffer overflow, dropping oldest samples", "size", len(s.recvBuf))
		}
		s.isDropping = true
		s.recvBuf = append([]float32{}, s.recvBuf[len(s.recvBuf)-maxRecvBufSize:]...)
	} else {
		s.isDropping = false
	}
}

// drainSend removes and returns up to n samples from the send buffer,
// zero-padding the result to exactly n samples, mirroring
// audio_stream.py's write-available handling.
func (s *BufferedStream) drainSend(n int) []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	take := n
	if take > len(s.sendBuf) {
		take = len(s.sendBuf)
	}
	out := make([]float32, n)
	copy(out, s.sendBuf[:take])
	s.sendBuf = s.sendBuf[take:]
	return out
}

// LoopbackStream is a Stream whose played samples are delivered to a
// peer LoopbackStream's recv buffer instead of its own, wiring two
// endpoints into a lossless in-memory acoustic channel for demos and
// tests that need a working full-duplex link without real hardware.
// A LoopbackStream with no peer is not usable on its own; construct a
// pair with NewLoopbackPair.
type LoopbackStream struct {
	*BufferedStream
	peer *BufferedStream
}

// NewLoopbackPair returns two LoopbackStreams cross-connected so that
// whatever one plays, the other records. Either l may be nil, in which
// case that endpoint's overflow warnings are discarded.
func NewLoopbackPair(l1, l2 logging.Logger) (*LoopbackStream, *LoopbackStream) {
	a := NewBufferedStream(l1)
	b := NewBufferedStream(l2)
	return &LoopbackStream{BufferedStream: a, peer: b}, &LoopbackStream{BufferedStream: b, peer: a}
}

// Play both enqueues samples as BufferedStream.Play would and delivers
// them immediately to the peer's recv side.
func (s *LoopbackStream) Play(samples []float32) {
	s.BufferedStream.Play(samples)
	cp := make([]float32, len(samples))
	copy(cp, samples)
	s.peer.deliver(cp)
}

type nopLogger struct{}

func (nopLogger) SetLevel(int8)                                 {}
func (nopLogger) Log(lvl int8, msg string, args ...interface{}) {}
func (nopLogger) Debug(msg string, args ...interface{})         {}
func (nopLogger) Info(msg string, args ...interface{})          {}
func (nopLogger) Warning(msg string, args ...interface{})       {}
func (nopLogger) Error(msg string, args ...interface{})         {}
func (nopLogger) Fatal(msg string, args ...interface{})         {}
