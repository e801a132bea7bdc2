/*
NAME
  main.go

DESCRIPTION
  beepmission is a CLI demo for the modem and link packages: encode a
  payload to a WAV file, decode a WAV file back to a payload, dump a
  diagnostic spectrum, or run a two-peer loopback demo over an in-process
  audio.LoopbackStream.

LICENSE
  See repository root.
*/

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-audio/wav"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/ausocean/utils/logging"

	"github.com/elgarvdzande/beepmission/audio"
	"github.com/elgarvdzande/beepmission/diag"
	"github.com/elgarvdzande/beepmission/link"
	"github.com/elgarvdzande/beepmission/modem"
	"github.com/elgarvdzande/beepmission/params"
)

const (
	logPath      = "beepmission.log"
	logMaxSize   = 10 // MB
	logMaxBackup = 3
	logMaxAge    = 28 // days
	logVerbosity = logging.Debug
	logSuppress  = false
)

func newLogger() logging.Logger {
	fileLog := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    logMaxSize,
		MaxBackups: logMaxBackup,
		MaxAge:     logMaxAge,
	}
	return logging.New(logVerbosity, io.MultiWriter(fileLog, os.Stderr), logSuppress)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "encode":
		runEncode(os.Args[2:])
	case "decode":
		runDecode(os.Args[2:])
	case "spectrum":
		runSpectrum(os.Args[2:])
	case "demo":
		runDemo(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: beepmission <encode|decode|spectrum|demo> [flags]")
}

func baseParams(fs *flag.FlagSet) *params.TransmissionParameters {
	master := fs.Bool("master", true, "encode/decode as the master peer")
	channels := fs.Int("channels", params.DefaultNumChannels, "total carrier channels")
	payload := fs.Int("max-payload", params.DefaultMaxPayload, "maximum modem payload bytes")
	seqMax := fs.Int("seq-max", params.DefaultSeqMax, "maximum link sequence number")
	return mustParams(master, channels, payload, seqMax)
}

func mustParams(master *bool, channels, payload, seqMax *int) *params.TransmissionParameters {
	p, err := params.New(
		params.WithMaster(*master),
		params.WithChannels(*channels),
		params.WithMaxPayload(*payload),
		params.WithSeqMax(*seqMax),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid parameters:", err)
		os.Exit(1)
	}
	return p
}

func runEncode(args []string) {
	fs := flag.NewFlagSet("encode", flag.ExitOnError)
	out := fs.String("out", "out.wav", "output WAV file path")
	message := fs.String("message", "", "payload text to encode")
	p := baseParams(fs)
	fs.Parse(args)

	enc := modem.NewEncoder(p)
	audioData, err := enc.Encode([]byte(*message))
	if err != nil {
		fmt.Fprintln(os.Stderr, "encode failed:", err)
		os.Exit(1)
	}
	if err := diag.DumpWAV(*out, audioData, p.SampleRate); err != nil {
		fmt.Fprintln(os.Stderr, "wav dump failed:", err)
		os.Exit(1)
	}
}

func runDecode(args []string) {
	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	in := fs.String("in", "in.wav", "input WAV file path")
	p := baseParams(fs)
	fs.Parse(args)

	samples, err := readWAV(*in)
	if err != nil {
		fmt.Fprintln(os.Stderr, "wav read failed:", err)
		os.Exit(1)
	}

	log := newLogger()
	dec := modem.NewDecoder(p, log)
	defer dec.Stop()
	dec.Write(samples)

	select {
	case payload := <-dec.Messages():
		fmt.Printf("%s\n", payload)
	case <-time.After(5 * time.Second):
		fmt.Fprintln(os.Stderr, "no frame decoded within timeout")
		os.Exit(1)
	}
}

func runSpectrum(args []string) {
	fs := flag.NewFlagSet("spectrum", flag.ExitOnError)
	in := fs.String("in", "in.wav", "input WAV file path")
	top := fs.Int("top", 10, "number of peak bins to print")
	fs.Parse(args)

	samples, err := readWAV(*in)
	if err != nil {
		fmt.Fprintln(os.Stderr, "wav read failed:", err)
		os.Exit(1)
	}

	bins := diag.Spectrum(samples, params.DefaultSampleRate)
	for _, b := range diag.PeakFrequencies(bins, *top) {
		fmt.Printf("%8.1f Hz  %.4f\n", b.Hz, b.Magnitude)
	}
}

func runDemo(args []string) {
	fs := flag.NewFlagSet("demo", flag.ExitOnError)
	message := fs.String("message", "hello over the air", "payload text for the master to send")
	fs.Parse(args)

	log := newLogger()

	masterParams, _ := params.New(params.WithMaster(true))
	slaveParams, _ := params.New(params.WithMaster(false))

	masterStream, slaveStream := audio.NewLoopbackPair(log, log)

	masterLink := link.New(masterParams, masterStream, log)
	slaveLink := link.New(slaveParams, slaveStream, log)
	defer masterLink.Stop()
	defer slaveLink.Stop()

	masterLink.Send([]byte(*message))

	now := time.Now()
	for i := 0; i < 500; i++ {
		now = now.Add(masterParams.TickPeriod())
		masterLink.Tick(now)
		slaveLink.Tick(now)
		if got := slaveLink.Recv(); len(got) > 0 {
			fmt.Printf("slave received: %s\n", got)
			return
		}
	}
	fmt.Fprintln(os.Stderr, "demo timed out without a successful delivery")
	os.Exit(1)
}

func readWAV(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	floatBuf := buf.AsFloatBuffer()
	samples := make([]float32, len(floatBuf.Data))
	for i, v := range floatBuf.Data {
		samples[i] = float32(v)
	}
	return samples, nil
}
