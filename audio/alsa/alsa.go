//go:build linux

/*
NAME
  alsa.go

DESCRIPTION
  alsa.go provides a full-duplex audio.Stream backed by a real ALSA
  device via github.com/yobert/alsa. It follows device/alsa's device
  negotiation sequence (channels, rate, format, period and buffer size,
  then Prepare), but unlike that capture-only adapter it opens and drives
  both a playback and a capture device to support the link layer's
  simultaneous send/receive use of the acoustic channel.
*/

// Package alsa adapts a pair of ALSA PCM devices to the audio.Stream
// interface for real hardware use of the modem and link layers.
package alsa

import (
	"fmt"
	"sync"
	"time"

	yalsa "github.com/yobert/alsa"

	"github.com/ausocean/utils/logging"
	"github.com/ausocean/utils/pool"
)

const (
	rbLen       = 200
	rbTimeout   = 100 * time.Millisecond
	pollPeriod  = 10 * time.Millisecond
	wantPeriod  = 0.05 // seconds
	bufferBytes = 1 << 20
)

// Stream is a full-duplex audio.Stream backed by ALSA playback and
// capture devices negotiated to a common sample rate and mono format.
type Stream struct {
	l logging.Logger

	playDev *yalsa.Device
	capDev  *yalsa.Device
	rate    int

	mu      sync.Mutex
	sendBuf []float32
	recvBuf *pool.Buffer

	quit chan struct{}
	wg   sync.WaitGroup
}

// Open negotiates playback and capture devices at sampleRate and starts
// the background I/O goroutine. cardTitle selects PCM devices whose
// device title matches it; an empty string uses the first usable devices.
func Open(l logging.Logger, cardTitle string, sampleRate int) (*Stream, error) {
	cards, err := yalsa.OpenCards()
	if err != nil {
		return nil, fmt.Errorf("alsa: open cards: %w", err)
	}
	defer yalsa.CloseCards(cards)

	var playDev, capDev *yalsa.Device
	for _, card := range cards {
		devices, err := card.Devices()
		if err != nil {
			continue
		}
		for _, dev := range devices {
			if dev.Type != yalsa.PCM {
				continue
			}
			if cardTitle != "" && dev.Title != cardTitle {
				continue
			}
			if dev.Play && playDev == nil {
				playDev = dev
			}
			if dev.Record && capDev == nil {
				capDev = dev
			}
		}
	}
	if playDev == nil || capDev == nil {
		return nil, fmt.Errorf("alsa: no usable playback/capture device pair found")
	}

	rate, err := negotiate(l, playDev, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("alsa: negotiate playback device: %w", err)
	}
	if _, err := negotiate(l, capDev, rate); err != nil {
		return nil, fmt.Errorf("alsa: negotiate capture device: %w", err)
	}

	s := &Stream{
		l:       l,
		playDev: playDev,
		capDev:  capDev,
		rate:    rate,
		recvBuf: pool.NewBuffer(rbLen, 4096, rbTimeout),
		quit:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s, nil
}

// negotiate applies the same channels/rate/format/period/buffer-size
// sequence device/alsa's open() uses, specialized to mono little-endian
// integer PCM: 16-bit samples, or 32-bit if 16-bit is not available.
func negotiate(l logging.Logger, dev *yalsa.Device, wantRate int) (int, error) {
	if err := dev.Open(); err != nil {
		return 0, err
	}
	channels, err := dev.NegotiateChannels(1)
	if err != nil {
		return 0, err
	}
	rate, err := dev.NegotiateRate(wantRate)
	if err != nil {
		return 0, err
	}
	format, err := dev.NegotiateFormat(yalsa.S16_LE)
	if err != nil {
		format, err = dev.NegotiateFormat(yalsa.S32_LE)
	}
	if err != nil {
		return 0, err
	}
	bitdepth := 16
	if format == yalsa.S32_LE {
		bitdepth = 32
	}
	bytesPerSecond := rate * channels * (bitdepth / 8)
	periodSize, err := dev.NegotiatePeriodSize(int(float64(bytesPerSecond) * wantPeriod))
	if err != nil {
		return 0, err
	}
	if _, err := dev.NegotiateBufferSize(periodSize * 4); err != nil {
		return 0, err
	}
	if err := dev.Prepare(); err != nil {
		return 0, err
	}
	l.Debug("alsa: negotiated device", "title", dev.Title, "rate", rate, "bitdepth", bitdepth)
	return rate, nil
}

// Play appends samples to the send buffer for the background goroutine
// to write out.
func (s *Stream) Play(samples []float32) {
	s.mu.Lock()
	s.sendBuf = append(s.sendBuf, samples...)
	s.mu.Unlock()
}

// Record drains whatever capture audio has accumulated in the ring
// buffer since the last call.
func (s *Stream) Record() []float32 {
	var out []float32
	for {
		chunk, err := s.recvBuf.Next(0)
		if err != nil {
			return out
		}
		out = append(out, bytesToFloat32(chunk.Bytes())...)
		chunk.Close()
	}
}

// Stop halts the background goroutine and closes both devices.
func (s *Stream) Stop() {
	close(s.quit)
	s.wg.Wait()
	s.playDev.Close()
	s.capDev.Close()
}

func (s *Stream) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(pollPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
		}
		s.writeAvailable()
		s.readAvailable()
	}
}

func (s *Stream) writeAvailable() {
	s.mu.Lock()
	n := len(s.sendBuf)
	chunk := s.sendBuf
	s.sendBuf = nil
	s.mu.Unlock()
	if n == 0 {
		return
	}
	if err := s.playDev.Write(float32ToBytes(chunk)); err != nil {
		s.l.Warning("alsa: write failed", "error", err.Error())
	}
}

func (s *Stream) readAvailable() {
	buf := s.capDev.NewBufferDuration(pollPeriod)
	if err := s.capDev.Read(buf.Data); err != nil {
		s.l.Warning("alsa: read failed", "error", err.Error())
		return
	}
	if err := s.recvBuf.Write(buf.Data); err != nil {
		s.l.Warning("alsa: recv ring buffer write failed", "error", err.Error())
	}
}

// bytesToFloat32 unpacks little-endian 16-bit PCM into [-1, 1] float32
// samples.
func bytesToFloat32(raw []byte) []float32 {
	out := make([]float32, len(raw)/2)
	for i := range out {
		v := int16(uint16(raw[2*i]) | uint16(raw[2*i+1])<<8)
		out[i] = float32(v) / 32768.0
	}
	return out
}

// float32ToBytes packs [-1, 1] float32 samples into little-endian 16-bit
// PCM.
func float32ToBytes(samples []float32) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		v := int16(s * 32767.0)
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}
	return out
}
