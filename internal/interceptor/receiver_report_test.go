package interceptor

import (
	"testing"
	"time"

	"github.com/lanikai/webrtc/internal/rtcp"
	"github.com/lanikai/webrtc/internal/rtp"
)

func TestReceiverReportGeneratorTracksSequenceAndLoss(t *testing.T) {
	start := time.Unix(2000, 0)
	g := NewReceiverReportGenerator(1, start)

	base := start
	for _, seq := range []uint16{0, 1, 3, 4} { // sequence 2 never arrives
		g.ReadRTP(&rtp.Packet{Header: rtp.Header{SSRC: 7, Sequence: seq, Timestamp: uint32(seq) * 3000}}, base)
		base = base.Add(33 * time.Millisecond)
	}

	g.HandleTimeout(start.Add(receiverReportInterval))
	pkt, ok := g.PollRTCP()
	if !ok {
		t.Fatal("expected a receiver report")
	}
	rr, ok := pkt.(*rtcp.ReceiverReport)
	if !ok {
		t.Fatalf("got %T, want *rtcp.ReceiverReport", pkt)
	}
	if rr.SSRC != 1 {
		t.Fatalf("SSRC = %d, want 1", rr.SSRC)
	}
	if len(rr.Reports) != 1 {
		t.Fatalf("got %d report blocks, want 1", len(rr.Reports))
	}
	rb := rr.Reports[0]
	if rb.SSRC != 7 {
		t.Fatalf("report SSRC = %d, want 7", rb.SSRC)
	}
	if rb.TotalLost != 1 {
		t.Fatalf("TotalLost = %d, want 1", rb.TotalLost)
	}
	if rb.LastSequenceNumber != 4 {
		t.Fatalf("LastSequenceNumber = %d, want 4", rb.LastSequenceNumber)
	}
}

func TestReceiverReportGeneratorPopulatesLastSR(t *testing.T) {
	start := time.Unix(3000, 0)
	g := NewReceiverReportGenerator(1, start)
	g.ReadRTP(&rtp.Packet{Header: rtp.Header{SSRC: 7, Sequence: 0}}, start)

	sr := &rtcp.SenderReport{SSRC: 7, NTPTime: toNTP(start)}
	g.ReadRTCP(sr, start)

	g.HandleTimeout(start.Add(receiverReportInterval))
	pkt, _ := g.PollRTCP()
	rr := pkt.(*rtcp.ReceiverReport)
	if rr.Reports[0].LastSenderReport != ntpMiddle32(sr.NTPTime) {
		t.Fatalf("LastSenderReport = %d, want %d", rr.Reports[0].LastSenderReport, ntpMiddle32(sr.NTPTime))
	}
}

func TestReceiverReportGeneratorSkipsUntouchedStreams(t *testing.T) {
	start := time.Unix(0, 0)
	g := NewReceiverReportGenerator(1, start)
	g.HandleTimeout(start.Add(receiverReportInterval))
	if _, ok := g.PollRTCP(); ok {
		t.Fatal("expected no report when nothing was received")
	}
}
