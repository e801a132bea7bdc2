package link

import (
	"testing"
	"time"

	"github.com/elgarvdzande/beepmission/audio"
	"github.com/elgarvdzande/beepmission/params"
)

func testParams(t *testing.T, isMaster bool) *params.TransmissionParameters {
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

func runTicks(t *testing.T, n int, now time.Time, links ...*Link) time.Time {
	t.Helper()
	for i := 0; i < n; i++ {
		now = now.Add(20 * time.Millisecond)
		for _, l := range links {
			l.Tick(now)
		}
	}
	return now
}

func TestLinkSendRecvRoundTrip(t *testing.T) {
	masterParams := testParams(t, true)
	slaveParams := testParams(t, false)

	masterStream, slaveStream := audio.NewLoopbackPair(nil, nil)

	master := New(masterParams, masterStream, nil)
	slave := New(slaveParams, slaveStream, nil)
	defer master.Stop()
	defer slave.Stop()

	message := []byte("hello over the wire")
	master.Send(message)

	// Send splits the message into MaxPayload-1 byte frames and Recv
	// returns only what has arrived since the previous call, so the
	// received bytes are accumulated across ticks.
	var got []byte
	now := time.Now()
	for i := 0; i < 200; i++ {
		now = runTicks(t, 1, now, master, slave)
		got = append(got, slave.Recv()...)
		if len(got) >= len(message) {
			if string(got) != string(message) {
				t.Fatalf("slave.Recv() accumulated = %q, want %q", got, message)
			}
			return
		}
	}
	t.Fatalf("slave received %q within the tick budget, want %q", got, message)
}

func TestLinkDuplicateSuppression(t *testing.T) {
	p := testParams(t, false)
	stream := audio.NewBufferedStream(nil)
	l := New(p, stream, nil)
	defer l.Stop()

	l.handleData(0, []byte("a"))
	l.handleData(0, []byte("a"))
	l.handleData(1, []byte("b"))

	got := l.Recv()
	if string(got) != "ab" {
		t.Errorf("Recv() = %q, want %q", got, "ab")
	}
	stats := l.Stats()
	if stats.FramesDuplicate != 1 {
		t.Errorf("FramesDuplicate = %d, want 1", stats.FramesDuplicate)
	}
}

func TestLinkSelfEchoIgnored(t *testing.T) {
	p := testParams(t, true)
	stream := audio.NewBufferedStream(nil)
	l := New(p, stream, nil)
	defer l.Stop()

	l.handleMessage(time.Now(), encodeData(true, 0, []byte("x")))
	if got := l.Recv(); len(got) != 0 {
		t.Errorf("Recv() after self-echoed frame = %q, want empty", got)
	}
}
