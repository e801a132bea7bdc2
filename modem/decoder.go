/*
NAME
  decoder.go

DESCRIPTION
  decoder.go implements Decoder: a streaming demodulator that accepts PCM
  samples via Write, runs start-of-frame search and adaptive-threshold
  symbol decisions on a background goroutine, and exposes completed
  payloads through the channel returned by Messages. The background
  goroutine, its quit channel and its sync.WaitGroup follow the same
  shape as protocol/rtcp's send/recv goroutines, with a condition
  variable's wait/notify replaced by a buffered signal channel.
*/

package modem

import (
	"sync"

	"github.com/ausocean/utils/logging"

	"github.com/elgarvdzande/beepmission/params"
)

// Decoder demultiplexes and demodulates the receive carrier subset of a
// TransmissionParameters, delivering payloads in the order their start
// sequences were found.
type Decoder struct {
	params     *params.TransmissionParameters
	refs       *referenceTables
	freqs      []float64
	windowSize int
	maxSamples int
	log        logging.Logger

	mu     sync.Mutex
	inbox  []float32
	buffer []float32

	signal   chan struct{}
	quit     chan struct{}
	wg       sync.WaitGroup
	messages chan []byte
}

// NewDecoder starts a Decoder's background demodulation goroutine for
// the receive carrier subset of p. l may be nil, in which case decode
// warnings are discarded.
func NewDecoder(p *params.TransmissionParameters, l logging.Logger) *Decoder {
	if l == nil {
		l = nopLogger{}
	}
	freqs := p.RecvFrequencies()
	windowSize := p.WindowSize()
	d := &Decoder{
		params:     p,
		refs:       newReferenceTables(freqs, windowSize, p.SampleRate),
		freqs:      freqs,
		windowSize: windowSize,
		maxSamples: p.MaxFrameSamples(),
		log:        l,
		signal:     make(chan struct{}, 1),
		quit:       make(chan struct{}),
		messages:   make(chan []byte, 16),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Write appends samples to the decoder's input queue. It never blocks.
func (d *Decoder) Write(samples []float32) {
	d.mu.Lock()
	d.inbox = append(d.inbox, samples...)
	d.mu.Unlock()
	select {
	case d.signal <- struct{}{}:
	default:
	}
}

// Messages returns the channel completed payloads are delivered on. It
// is closed once Stop has fully drained the background goroutine.
func (d *Decoder) Messages() <-chan []byte { return d.messages }

// Stop halts the background goroutine and waits for it to exit, then
// closes the Messages channel.
func (d *Decoder) Stop() {
	close(d.quit)
	d.wg.Wait()
	close(d.messages)
}

func (d *Decoder) run() {
	defer d.wg.Done()
	for {
		select {
		case <-d.quit:
			return
		case <-d.signal:
		}

		d.mu.Lock()
		d.buffer = append(d.buffer, d.inbox...)
		d.inbox = d.inbox[:0]
		d.mu.Unlock()

		processed := d.process()
		d.buffer = d.buffer[processed:]

		if len(d.buffer) > d.maxSamples {
			d.log.Warning("modem: decode buffer too large, dropping oldest samples", "size", len(d.buffer))
			keep := 2 * d.maxSamples
			if keep > len(d.buffer) {
				keep = len(d.buffer)
			}
			d.buffer = append([]float32{}, d.buffer[len(d.buffer)-keep:]...)
		}
	}
}

// process consumes as much of the decode buffer as it can, emitting any
// fully decoded payloads onto d.messages, and returns the number of
// leading samples that can be dropped.
func (d *Decoder) process() int {
	cursor := 0
	for cursor+d.maxSamples <= len(d.buffer) {
		offset := findStart(d.refs, d.buffer[cursor:], d.windowSize)
		if offset == -1 {
			return len(d.buffer)
		}
		cursor += offset

		if cursor+d.maxSamples > len(d.buffer) {
			return cursor
		}

		payload, size, err := d.decodeOne(d.buffer[cursor:])
		if err != nil {
			d.log.Debug("modem: discarding candidate frame", "error", err.Error())
			size = maxInt(1, d.windowSize/10)
		} else {
			d.messages <- payload
		}
		cursor += size
	}
	return cursor
}

// decodeOne demodulates a single frame starting at the beginning of
// data, which must hold at least maxFrameSamples samples. It returns the
// decoded payload and the number of samples the frame actually occupied.
func (d *Decoder) decodeOne(data []float32) ([]byte, int, error) {
	usable := len(data) - len(data)%d.windowSize
	if usable > d.maxSamples {
		usable = d.maxSamples
	}
	data = data[:usable]

	nchannels := len(d.freqs)
	chSymbols := make([][]int, nchannels)
	for ch := range d.freqs {
		chSymbols[ch] = adaptiveThreshold(d.refs.symbolMagnitudes(ch, data, d.windowSize))
	}

	chBits := make([][]int, nchannels)
	for ch := range chSymbols {
		chBits[ch] = removeParity(chSymbols[ch][len(StartSeq):])
	}

	bits := remux(chBits)
	frame := bitsToBytes(bits)

	payload, err := parseFrame(frame)
	if err != nil {
		return nil, 0, err
	}
	return payload, params.FrameSamples(d.windowSize, len(payload), nchannels), nil
}

// findStart searches data for the literal start sequence on channel 0,
// stepping by windowSize/4 samples, and returns the sample offset of its
// first symbol, or -1 if none was found.
func findStart(refs *referenceTables, data []float32, windowSize int) int {
	startLen := len(StartSeq) * windowSize
	step := windowSize / 4
	if step == 0 {
		step = 1
	}
	for cursor := 0; cursor+startLen <= len(data); cursor += step {
		mags := refs.symbolMagnitudes(0, data[cursor:cursor+startLen], windowSize)
		threshold := (mags[0] + mags[1]) / 2
		if matchesStart(mags, threshold) {
			return cursor
		}
	}
	return -1
}

func matchesStart(mags []float64, threshold float64) bool {
	for i, want := range StartSeq {
		got := 0
		if mags[i] > threshold {
			got = 1
		}
		if got != want {
			return false
		}
	}
	return true
}

// adaptiveThreshold converts a sequence of per-symbol magnitudes into
// bits using a running high/low envelope: the threshold is always the
// midpoint of the two most recent decided extremes, updated with
// whichever of hi/lo the new bit corresponds to.
func adaptiveThreshold(mags []float64) []int {
	bits := make([]int, len(mags))
	lo, hi := mags[0], mags[1]
	for i, v := range mags {
		threshold := (lo + hi) / 2
		if v > threshold {
			bits[i] = 1
			hi = v
		} else {
			bits[i] = 0
			lo = v
		}
	}
	return bits
}

// remux interleaves nchannels per-channel bit slices back into a single
// bitstream, channel 0's bit first in each group.
func remux(chBits [][]int) []int {
	if len(chBits) == 0 {
		return nil
	}
	n := len(chBits[0])
	bits := make([]int, 0, n*len(chBits))
	for i := 0; i < n; i++ {
		for ch := range chBits {
			bits = append(bits, chBits[ch][i])
		}
	}
	return bits
}

// bitsToBytes packs complete groups of 8 bits, most significant bit
// first, dropping any trailing partial group.
func bitsToBytes(bits []int) []byte {
	out := make([]byte, len(bits)/8)
	for i := range out {
		var b byte
		for k := 0; k < 8; k++ {
			b = b<<1 | byte(bits[i*8+k])
		}
		out[i] = b
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// nopLogger discards every log call; it is the default used when
// NewDecoder is given a nil logging.Logger.
type nopLogger struct{}

func (nopLogger) SetLevel(int8)                                  {}
func (nopLogger) Log(lvl int8, msg string, args ...interface{})  {}
func (nopLogger) Debug(msg string, args ...interface{})          {}
func (nopLogger) Info(msg string, args ...interface{})           {}
func (nopLogger) Warning(msg string, args ...interface{})        {}
func (nopLogger) Error(msg string, args ...interface{})          {}
func (nopLogger) Fatal(msg string, args ...interface{})          {}
