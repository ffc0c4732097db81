package interceptor

import (
	"testing"
	"time"

	"github.com/lanikai/webrtc/internal/rtcp"
	"github.com/lanikai/webrtc/internal/rtp"
)

// recordingStage counts how many times each hook ran, to verify a Chain
// visits every stage and in the right direction.
type recordingStage struct {
	baseStage
	name  string
	trace *[]string
}

func (s *recordingStage) WriteRTP(pkt *rtp.Packet, now time.Time) bool {
	*s.trace = append(*s.trace, "write:"+s.name)
	return true
}

func (s *recordingStage) ReadRTP(pkt *rtp.Packet, now time.Time) {
	*s.trace = append(*s.trace, "read:"+s.name)
}

func TestChainWriteRTPGoesWireLast(t *testing.T) {
	var trace []string
	wire := &recordingStage{name: "wire", trace: &trace}
	app := &recordingStage{name: "app", trace: &trace}
	chain := NewChain(wire, app)

	chain.WriteRTP(&rtp.Packet{}, time.Unix(0, 0))

	want := []string{"write:app", "write:wire"}
	if len(trace) != len(want) || trace[0] != want[0] || trace[1] != want[1] {
		t.Fatalf("trace = %v, want %v", trace, want)
	}
}

func TestChainReadRTPGoesWireFirst(t *testing.T) {
	var trace []string
	wire := &recordingStage{name: "wire", trace: &trace}
	app := &recordingStage{name: "app", trace: &trace}
	chain := NewChain(wire, app)

	chain.ReadRTP(&rtp.Packet{}, time.Unix(0, 0))

	want := []string{"read:wire", "read:app"}
	if len(trace) != len(want) || trace[0] != want[0] || trace[1] != want[1] {
		t.Fatalf("trace = %v, want %v", trace, want)
	}
}

func TestChainComposesReportersAndRetransmission(t *testing.T) {
	start := time.Unix(0, 0)
	responder := NewNackResponder()
	sr := NewSenderReportGenerator(start)
	chain := NewChain(responder, sr) // responder closer to wire, reporter closer to app

	pkt := &rtp.Packet{Header: rtp.Header{SSRC: 1, Sequence: 0, Timestamp: 100}, Payload: []byte("x")}
	if !chain.WriteRTP(pkt, start) {
		t.Fatal("expected the packet to pass through both stages")
	}

	deadline, ok := chain.NextTimeout()
	if !ok {
		t.Fatal("expected a pending timeout from the sender report generator")
	}
	chain.HandleTimeout(deadline)

	found := false
	for {
		p, ok := chain.PollRTCP()
		if !ok {
			break
		}
		if _, isSR := p.(*rtcp.SenderReport); isSR {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a sender report to surface through the chain")
	}
}
