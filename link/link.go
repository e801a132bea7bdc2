/*
NAME
  link.go

DESCRIPTION
  link.go implements Link, the Go-Back-N sliding-window data-link layer
  riding on top of the modem codec and an audio.Stream. Link is driven by
  repeated calls to Tick, following the polling shape of
  sliding_window.py's tick() method, with Go's callback-attachment idiom
  (OnSendComplete/OnDataAvailable) replacing Python's attach_on_* setters.
*/

// Package link implements the Go-Back-N sliding-window protocol that
// turns the modem package's unreliable point-to-point frames into an
// ordered, flow-controlled byte stream between exactly two peers.
package link

import (
	"sync"
	"time"

	"github.com/ausocean/utils/logging"
	"gonum.org/v1/gonum/stat"

	"github.com/elgarvdzande/beepmission/audio"
	"github.com/elgarvdzande/beepmission/modem"
	"github.com/elgarvdzande/beepmission/params"
)

// Stats reports link health counters accumulated since the Link was
// created.
type Stats struct {
	FramesSent      int
	FramesResent    int
	FramesReceived  int
	FramesDuplicate int
	FramesDropped   int

	// AckLatencyMean and AckLatencyVariance summarize, in seconds, how
	// long each data frame took to be acknowledged.
	AckLatencyMean     float64
	AckLatencyVariance float64
}

// Link is a single Go-Back-N peer. Construct with New, drive it with
// repeated Tick calls at roughly the rate TickPeriod reports, and read
// or write application data with Recv and Send.
type Link struct {
	params  *params.TransmissionParameters
	stream  audio.Stream
	encoder *modem.Encoder
	decoder *modem.Decoder
	log     logging.Logger

	mu         sync.Mutex
	sendBuffer []byte
	recvBuffer []byte

	sendFrames [][]byte
	sendAck    int
	sendSeq    int
	recvSeq    int
	timeout    time.Time

	onSendComplete  func()
	onDataAvailable func()

	ackSentAt map[int]time.Time
	latencies []float64

	stats Stats
}

// New builds a Link for p, communicating over stream. l may be nil, in
// which case the link logs nothing.
func New(p *params.TransmissionParameters, stream audio.Stream, l logging.Logger) *Link {
	if l == nil {
		l = nopLogger{}
	}
	return &Link{
		params:          p,
		stream:          stream,
		encoder:         modem.NewEncoder(p),
		decoder:         modem.NewDecoder(p, l),
		log:             l,
		sendFrames:      make([][]byte, p.SeqMax+1),
		onSendComplete:  func() {},
		onDataAvailable: func() {},
		ackSentAt:       make(map[int]time.Time),
	}
}

// OnSendComplete registers fn to be called when every byte handed to
// Send has been sent and acknowledged.
func (l *Link) OnSendComplete(fn func()) { l.onSendComplete = fn }

// OnDataAvailable registers fn to be called whenever Recv would return a
// non-empty slice.
func (l *Link) OnDataAvailable(fn func()) { l.onDataAvailable = fn }

// Send enqueues data for transmission. It returns immediately; the data
// is sent across subsequent Tick calls.
func (l *Link) Send(data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sendBuffer = append(l.sendBuffer, data...)
}

// Recv returns and clears whatever application data has been received
// and reassembled in order since the last call.
func (l *Link) Recv() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	data := l.recvBuffer
	l.recvBuffer = nil
	return data
}

// Stats returns a snapshot of this Link's health counters.
func (l *Link) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.stats
	if len(l.latencies) > 0 {
		s.AckLatencyMean, s.AckLatencyVariance = stat.MeanVariance(l.latencies, nil)
	}
	return s
}

// Stop releases the Link's modem decoder and audio stream.
func (l *Link) Stop() {
	l.decoder.Stop()
	l.stream.Stop()
}

// Tick drives one iteration of the protocol: it records and decodes
// inbound audio, processes every fully decoded frame, tries to send new
// data within the window, and retransmits on timeout. Callers should
// invoke Tick at roughly l.params.TickPeriod(), passing the current
// time.
func (l *Link) Tick(now time.Time) {
	l.decoder.Write(l.stream.Record())
	l.drainDecoded(now)
	l.sendNew(now)
	l.retransmitIfTimedOut(now)
}

func (l *Link) drainDecoded(now time.Time) {
	for {
		select {
		case message, ok := <-l.decoder.Messages():
			if !ok {
				return
			}
			l.handleMessage(now, message)
		default:
			return
		}
	}
}

func (l *Link) handleMessage(now time.Time, message []byte) {
	if len(message) == 0 {
		l.log.Warning("link: received empty message, dropping")
		return
	}
	p := parsePDU(message)
	if p.isMaster == l.params.IsMaster {
		l.log.Debug("link: triggered on own transmission, ignoring")
		return
	}

	if p.ack {
		l.handleAck(now, p.seq)
		return
	}
	l.handleData(p.seq, p.data)
}

func (l *Link) handleAck(now time.Time, seq int) {
	l.mu.Lock()
	// seq is cumulative: it acknowledges every frame from the old sendAck
	// up to, but not including, seq.
	windowMod := l.params.SeqMax + 1
	for s := l.sendAck; s != seq; s = (s + 1) % windowMod {
		if sentAt, ok := l.ackSentAt[s]; ok {
			l.latencies = append(l.latencies, now.Sub(sentAt).Seconds())
			delete(l.ackSentAt, s)
		}
	}
	l.sendAck = seq
	done := l.sendAck == l.sendSeq && len(l.sendBuffer) == 0
	l.mu.Unlock()
	if done {
		l.onSendComplete()
	}
}

func (l *Link) handleData(seq int, data []byte) {
	l.mu.Lock()
	windowMod := l.params.SeqMax + 1
	newData := l.recvSeq == seq
	if newData {
		l.recvBuffer = append(l.recvBuffer, data...)
		l.recvSeq = (l.recvSeq + 1) % windowMod
		l.stats.FramesReceived++
	} else {
		l.stats.FramesDuplicate++
	}
	l.mu.Unlock()

	l.sendAckMessage()
	if newData {
		l.onDataAvailable()
	}
}

func (l *Link) sendAckMessage() {
	l.mu.Lock()
	message := encodeAck(l.params.IsMaster, l.recvSeq)
	l.mu.Unlock()
	l.transmit(message)
}

func (l *Link) sendNew(now time.Time) {
	windowSize := l.params.SeqMax
	for {
		l.mu.Lock()
		if len(l.sendBuffer) == 0 {
			l.mu.Unlock()
			return
		}
		diff := (l.sendSeq - l.sendAck + windowSize + 1) % (windowSize + 1)
		if windowSize-diff <= 0 {
			l.mu.Unlock()
			return
		}

		maxChunk := l.params.MaxPayload - 1
		if maxChunk > len(l.sendBuffer) {
			maxChunk = len(l.sendBuffer)
		}
		chunk := append([]byte{}, l.sendBuffer[:maxChunk]...)
		l.sendBuffer = l.sendBuffer[maxChunk:]

		message := encodeData(l.params.IsMaster, l.sendSeq, chunk)
		l.sendFrames[l.sendSeq] = message
		l.ackSentAt[l.sendSeq] = now
		seq := l.sendSeq
		l.sendSeq = (l.sendSeq + 1) % (windowSize + 1)
		l.timeout = now.Add(l.params.Timeout())
		l.stats.FramesSent++
		l.mu.Unlock()

		l.log.Debug("link: sending data frame", "seq", seq, "len", len(chunk))
		l.transmit(message)
	}
}

func (l *Link) retransmitIfTimedOut(now time.Time) {
	l.mu.Lock()
	if l.timeout.IsZero() || now.Before(l.timeout) {
		l.mu.Unlock()
		return
	}
	windowSize := l.params.SeqMax
	start, end := l.sendAck, l.sendSeq
	var frames [][]byte
	for (end-start+windowSize+1)%(windowSize+1) != 0 {
		frames = append(frames, l.sendFrames[start])
		start = (start + 1) % (windowSize + 1)
	}
	l.timeout = now.Add(l.params.Timeout())
	l.stats.FramesResent += len(frames)
	l.mu.Unlock()

	for _, f := range frames {
		l.log.Debug("link: retransmitting frame after timeout")
		l.transmit(f)
	}
}

func (l *Link) transmit(message []byte) {
	audioData, err := l.encoder.Encode(message)
	if err != nil {
		l.log.Error("link: failed to encode outgoing message", "error", err.Error())
		return
	}
	l.stream.Play(audioData)
}

// nopLogger discards every log call; it is the default used when New is
// given a nil logging.Logger.
type nopLogger struct{}

func (nopLogger) SetLevel(int8)                                 {}
func (nopLogger) Log(lvl int8, msg string, args ...interface{}) {}
func (nopLogger) Debug(msg string, args ...interface{})         {}
func (nopLogger) Info(msg string, args ...interface{})          {}
func (nopLogger) Warning(msg string, args ...interface{})       {}
func (nopLogger) Error(msg string, args ...interface{})         {}
func (nopLogger) Fatal(msg string, args ...interface{})         {}
