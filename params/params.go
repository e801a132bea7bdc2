/*
NAME
  params.go

DESCRIPTION
  params.go defines TransmissionParameters, the immutable per-session
  configuration shared by the modem and link packages, along with the
  quantities derived from it.

LICENSE
  See repository root.
*/

// Package params provides TransmissionParameters, the configuration value
// object that the modem and link layers are built against: carrier
// frequencies, window length, payload limits and the master/slave role
// that separates the two peers' send and receive carrier subsets.
package params

import (
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"
)

// Default values, matching the original protocol's reference parameters.
const (
	DefaultBaseFreq     = 2000.0
	DefaultNumChannels  = 8
	DefaultSampleRate   = 44100
	DefaultWindowLength = 0.1
	DefaultSeqMax       = 3
	DefaultMaxPayload   = 12
	DefaultIsMaster     = true
)

// Hard limits imposed by the wire format.
const (
	// MaxPayloadLimit is the largest MaxPayload allowed: the modem frame's
	// length field is six bits wide.
	MaxPayloadLimit = 63

	// MaxSeqLimit is the largest SeqMax allowed: the link PDU header's
	// sequence field is four bits wide.
	MaxSeqLimit = 15

	// MinChannels is the smallest NumChannels that still allows duplex
	// operation (at least one send and one receive carrier per side).
	MinChannels = 2
)

// startSeqLen is the length, in symbols, of the modem start sequence.
// Declared here because it participates in the timeout and frame-size
// formulas; the literal pattern itself lives in the modem package, which
// owns the wire format.
const startSeqLen = 11

// tickPeriod is the mandatory link tick cadence: ~10Hz.
const tickPeriod = 100 * time.Millisecond

// MultiError collects every validation failure found while checking a
// TransmissionParameters, in the style of device.MultiError from the
// teacher repo's device package.
type MultiError []error

func (me MultiError) Error() string {
	if len(me) == 0 {
		panic("params: invalid use of MultiError")
	}
	return fmt.Sprintf("%v", []error(me))
}

// TransmissionParameters is the immutable, per-session configuration
// shared by both peers of a link. Construct with New; once constructed,
// a TransmissionParameters is safe to share read-only across goroutines
// for the lifetime of the link.
type TransmissionParameters struct {
	BaseFreq     float64 // Hz, lowest carrier frequency.
	NumChannels  int     // Total physical channels, split across directions.
	SampleRate   int     // Hz, PCM sample rate.
	WindowLength float64 // Seconds, symbol duration.
	SeqMax       int     // Maximum sequence number; window size is SeqMax+1.
	MaxPayload   int     // Maximum modem payload bytes.
	IsMaster     bool    // Role: selects which carrier subset is send vs recv.
}

// Option configures a TransmissionParameters during New.
type Option func(*TransmissionParameters)

// WithBaseFreq sets the lowest carrier frequency in Hz.
func WithBaseFreq(hz float64) Option { return func(p *TransmissionParameters) { p.BaseFreq = hz } }

// WithChannels sets the total number of physical channels.
func WithChannels(n int) Option { return func(p *TransmissionParameters) { p.NumChannels = n } }

// WithSampleRate sets the PCM sample rate in Hz.
func WithSampleRate(hz int) Option { return func(p *TransmissionParameters) { p.SampleRate = hz } }

// WithWindowLength sets the symbol duration in seconds.
func WithWindowLength(sec float64) Option {
	return func(p *TransmissionParameters) { p.WindowLength = sec }
}

// WithSeqMax sets the maximum sequence number (window size is SeqMax+1).
func WithSeqMax(n int) Option { return func(p *TransmissionParameters) { p.SeqMax = n } }

// WithMaxPayload sets the maximum modem payload size in bytes.
func WithMaxPayload(n int) Option { return func(p *TransmissionParameters) { p.MaxPayload = n } }

// WithMaster configures this peer as the master (even-indexed send
// carriers) or slave (odd-indexed send carriers).
func WithMaster(isMaster bool) Option {
	return func(p *TransmissionParameters) { p.IsMaster = isMaster }
}

// New builds a TransmissionParameters from the package defaults, applies
// opts, and validates the result.
func New(opts ...Option) (*TransmissionParameters, error) {
	p := &TransmissionParameters{
		BaseFreq:     DefaultBaseFreq,
		NumChannels:  DefaultNumChannels,
		SampleRate:   DefaultSampleRate,
		WindowLength: DefaultWindowLength,
		SeqMax:       DefaultSeqMax,
		MaxPayload:   DefaultMaxPayload,
		IsMaster:     DefaultIsMaster,
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks every configuration constraint that is fatal at
// construction, accumulating all violations into a MultiError rather
// than stopping at the first.
func (p *TransmissionParameters) Validate() error {
	var errs MultiError
	if p.MaxPayload <= 0 || p.MaxPayload > MaxPayloadLimit {
		errs = append(errs, errors.Errorf("max payload size must be in (0, %d], got %d", MaxPayloadLimit, p.MaxPayload))
	}
	if p.NumChannels < MinChannels {
		errs = append(errs, errors.Errorf("num channels must be >= %d, got %d", MinChannels, p.NumChannels))
	}
	if p.SeqMax < 0 || p.SeqMax > MaxSeqLimit {
		errs = append(errs, errors.Errorf("seq max must be in [0, %d], got %d", MaxSeqLimit, p.SeqMax))
	}
	if p.SampleRate <= 0 {
		errs = append(errs, errors.Errorf("sample rate must be positive, got %d", p.SampleRate))
	}
	if p.WindowLength <= 0 {
		errs = append(errs, errors.Errorf("window length must be positive, got %g", p.WindowLength))
	}
	if p.BaseFreq <= 0 {
		errs = append(errs, errors.Errorf("base freq must be positive, got %g", p.BaseFreq))
	}
	if len(errs) != 0 {
		return errs
	}
	return nil
}

// WindowSize is the symbol sample count W = round(fs * W_sec).
func (p *TransmissionParameters) WindowSize() int {
	return int(math.Round(float64(p.SampleRate) * p.WindowLength))
}

// ChannelFrequencies returns f_i = f0 * (1 + 0.2*i) for i in [0, NumChannels).
func (p *TransmissionParameters) ChannelFrequencies() []float64 {
	freqs := make([]float64, p.NumChannels)
	for i := range freqs {
		freqs[i] = p.BaseFreq * (1 + 0.2*float64(i))
	}
	return freqs
}

// SendFrequencies returns the carrier subset this peer transmits on: even
// indices for the master, odd indices for the slave.
func (p *TransmissionParameters) SendFrequencies() []float64 {
	return subset(p.ChannelFrequencies(), p.IsMaster)
}

// RecvFrequencies returns the carrier subset this peer receives on: the
// mirror image of SendFrequencies.
func (p *TransmissionParameters) RecvFrequencies() []float64 {
	return subset(p.ChannelFrequencies(), !p.IsMaster)
}

// subset picks even-indexed entries when master is true, odd-indexed
// otherwise.
func subset(freqs []float64, master bool) []float64 {
	start := 1
	if master {
		start = 0
	}
	out := make([]float64, 0, (len(freqs)+1)/2)
	for i := start; i < len(freqs); i += 2 {
		out = append(out, freqs[i])
	}
	return out
}

// FrameSamples predicts the modem frame's total sample count for a
// payload of length payloadLen carried over channels carriers. The
// decoder uses it to size frames; the encoder does not call it, but the
// length of its output agrees with it.
func FrameSamples(windowSize, payloadLen, channels int) int {
	bitsPerChannel := ceilDiv(8*(payloadLen+3), channels)
	parityAdded := bitsPerChannel / 8
	channelSymbols := bitsPerChannel + parityAdded
	totalSymbols := startSeqLen + channelSymbols
	return windowSize * totalSymbols
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// MaxFrameSamples is FrameSamples evaluated at the configured MaxPayload
// over this peer's receive carrier count — the upper bound on any
// admissible inbound frame.
func (p *TransmissionParameters) MaxFrameSamples() int {
	return FrameSamples(p.WindowSize(), p.MaxPayload, len(p.RecvFrequencies()))
}

// MaxBitRate is the maximum application-level bit rate achievable with
// these parameters, following original_source's get_max_bps: the number
// of send channels is rounded differently for master (ceil of half) and
// slave (floor of half), since the two sides may see an odd total channel
// count split unevenly.
func (p *TransmissionParameters) MaxBitRate() float64 {
	var channels int
	if p.IsMaster {
		channels = int(math.Ceil(float64(p.NumChannels) / 2))
	} else {
		channels = int(math.Floor(float64(p.NumChannels) / 2))
	}
	transmissionTime := float64(startSeqLen+ceilDivF(9*(p.MaxPayload+3), channels)) * p.WindowLength
	return 8 * float64(p.MaxPayload-1) / transmissionTime
}

func ceilDivF(a, b int) int {
	return int(math.Ceil(float64(a) / float64(b)))
}

// Timeout is the worst-case round-trip estimate used to drive Go-Back-N
// retransmission, following original_source's get_timeout exactly: it
// assumes a window's worth of maximum-payload frames must round-trip,
// plus a fixed scheduling slack for tick jitter.
func (p *TransmissionParameters) Timeout() time.Duration {
	nchannels := float64(p.NumChannels) / 2
	dataTimeCh := float64(p.SeqMax) * 9 * float64(p.MaxPayload+3) / nchannels
	timeout := p.WindowLength * (startSeqLen + dataTimeCh)
	const latency = 3.0
	secs := math.Max(1.5*timeout, 1.0) + latency
	return time.Duration(secs * float64(time.Second))
}

// TickPeriod is the mandatory link tick cadence: callers driving
// Link.Tick in production should do so at roughly this interval.
func (p *TransmissionParameters) TickPeriod() time.Duration { return tickPeriod }
