package interceptor

import (
	"reflect"
	"testing"
	"time"

	"github.com/lanikai/webrtc/internal/rtcp"
	"github.com/lanikai/webrtc/internal/rtp"
)

func TestNackReceiveLogMissing(t *testing.T) {
	l := newNackReceiveLog(64)
	for _, seq := range []uint16{10, 11, 13, 14, 16} {
		l.add(seq)
	}
	got := l.missing(0)
	want := []uint16{12, 15}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("missing = %v, want %v", got, want)
	}
}

func TestNackReceiveLogRespectsSkipLastN(t *testing.T) {
	l := newNackReceiveLog(64)
	for _, seq := range []uint16{0, 2} {
		l.add(seq)
	}
	if got := l.missing(2); len(got) != 0 {
		t.Fatalf("missing with grace period = %v, want none yet", got)
	}
}

func TestPackNackPairsCoalescesIntoBitmask(t *testing.T) {
	pairs := packNackPairs([]uint16{10, 11, 13, 30})
	want := []rtcp.NackPair{
		{PacketID: 10, LostPackets: 0b101}, // 11 (bit0), 13 (bit2)
		{PacketID: 30, LostPackets: 0},
	}
	if !reflect.DeepEqual(pairs, want) {
		t.Fatalf("pairs = %#v, want %#v", pairs, want)
	}
}

func TestNackGeneratorEmitsForWatchedStreamOnly(t *testing.T) {
	start := time.Unix(0, 0)
	g := NewNackGenerator(99, start)
	g.skipLastN = 0
	g.Watch(7)

	for _, seq := range []uint16{0, 1, 3} {
		g.ReadRTP(&rtp.Packet{Header: rtp.Header{SSRC: 7, Sequence: seq}}, start)
	}
	// Unwatched stream: must never produce a NACK.
	g.ReadRTP(&rtp.Packet{Header: rtp.Header{SSRC: 8, Sequence: 0}}, start)

	g.HandleTimeout(start.Add(nackGeneratorInterval))
	pkt, ok := g.PollRTCP()
	if !ok {
		t.Fatal("expected a NACK for the gap on SSRC 7")
	}
	nack := pkt.(*rtcp.TransportLayerNack)
	if nack.Sender != 99 || nack.Media != 7 {
		t.Fatalf("unexpected NACK addressing: %#v", nack)
	}
	if len(nack.Nacks) != 1 || nack.Nacks[0].PacketID != 2 {
		t.Fatalf("unexpected NACK contents: %#v", nack.Nacks)
	}
	if _, ok := g.PollRTCP(); ok {
		t.Fatal("expected no NACK for unwatched SSRC 8")
	}
}
