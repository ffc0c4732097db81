package interceptor

import (
	"testing"
	"time"

	"github.com/lanikai/webrtc/internal/rtcp"
	"github.com/lanikai/webrtc/internal/rtp"
)

func TestSenderReportGeneratorEmitsOnInterval(t *testing.T) {
	start := time.Unix(1000, 0)
	g := NewSenderReportGenerator(start)

	pkt := &rtp.Packet{Header: rtp.Header{SSRC: 42, Timestamp: 9000}, Payload: make([]byte, 100)}
	g.WriteRTP(pkt, start)

	if _, ok := g.PollRTCP(); ok {
		t.Fatal("did not expect a report before the interval elapses")
	}

	deadline, ok := g.NextTimeout()
	if !ok || !deadline.Equal(start.Add(senderReportInterval)) {
		t.Fatalf("NextTimeout = %v, %v", deadline, ok)
	}

	g.HandleTimeout(deadline)
	pkt2, ok := g.PollRTCP()
	if !ok {
		t.Fatal("expected a sender report")
	}
	sr, ok := pkt2.(*rtcp.SenderReport)
	if !ok {
		t.Fatalf("got %T, want *rtcp.SenderReport", pkt2)
	}
	if sr.SSRC != 42 || sr.PacketCount != 1 || sr.OctetCount != 100 {
		t.Fatalf("unexpected report: %#v", sr)
	}
	if _, ok := g.PollRTCP(); ok {
		t.Fatal("expected only one pending report")
	}
}

func TestSenderReportGeneratorSkipsSilentStreams(t *testing.T) {
	start := time.Unix(0, 0)
	g := NewSenderReportGenerator(start)
	g.HandleTimeout(start.Add(senderReportInterval))
	if _, ok := g.PollRTCP(); ok {
		t.Fatal("expected no report for a stream that never sent a packet")
	}
}
