// Package interceptor implements a chain of RTP/RTCP processing stages
// inserted between a media track and the wire: retransmission buffering,
// loss detection, and periodic sender/receiver report generation. Like the
// rest of this engine, a Chain owns no socket and no timer of its own; the
// peer connection driver feeds it packets and wall-clock time and drains
// whatever packets or deadlines fall out.
package interceptor

import (
	"time"

	"github.com/lanikai/webrtc/internal/rtcp"
	"github.com/lanikai/webrtc/internal/rtp"
)

// Interceptor is one stage of the chain. Every method is mandatory, but most
// stages only care about a subset of them; the rest are no-ops.
type Interceptor interface {
	// WriteRTP is called for each outbound RTP packet before it reaches the
	// wire, in wire-closest-last order. Returning ok=false drops the packet
	// (e.g. it was absorbed into a retransmission buffer and re-sent later
	// instead of now).
	WriteRTP(pkt *rtp.Packet, now time.Time) (ok bool)

	// ReadRTP is called for each inbound RTP packet, in wire-closest-first
	// order, after SRTP has already removed protection.
	ReadRTP(pkt *rtp.Packet, now time.Time)

	// ReadRTCP is called for each inbound RTCP packet.
	ReadRTCP(pkt rtcp.Packet, now time.Time)

	// HandleTimeout drives periodic work: generating a report, expiring a
	// loss-detection window, and so on. Called whenever now has reached the
	// deadline most recently returned by NextTimeout.
	HandleTimeout(now time.Time)

	// NextTimeout reports when this stage next needs HandleTimeout called.
	NextTimeout() (time.Time, bool)

	// PollRTCP drains one RTCP packet this stage wants sent (e.g. a
	// generated RR/SR/NACK), if any is pending.
	PollRTCP() (rtcp.Packet, bool)

	// PollRTP drains one RTP packet this stage wants (re-)sent, if any is
	// pending (e.g. a NACK responder's retransmission).
	PollRTP() (*rtp.Packet, bool)
}

// Chain composes stages in wire-to-application order: Chain.stages[0] is
// closest to the wire, Chain.stages[len-1] is closest to the application.
// Retransmission/loss-detection stages belong near the front; report
// generators belong near the back, so a NACK generator sees a packet before
// the receiver report generator does, and a NACK responder's retransmission
// buffering happens last on the way out.
type Chain struct {
	stages []Interceptor
}

// NewChain builds a chain from stages already in wire-to-application order.
func NewChain(stages ...Interceptor) *Chain {
	return &Chain{stages: stages}
}

// WriteRTP runs pkt through each stage from application to wire. It returns
// false if any stage dropped the packet, in which case the caller must not
// put the (possibly now-stale) packet on the wire itself.
func (c *Chain) WriteRTP(pkt *rtp.Packet, now time.Time) bool {
	for i := len(c.stages) - 1; i >= 0; i-- {
		if !c.stages[i].WriteRTP(pkt, now) {
			return false
		}
	}
	return true
}

// ReadRTP runs pkt through each stage from wire to application.
func (c *Chain) ReadRTP(pkt *rtp.Packet, now time.Time) {
	for _, s := range c.stages {
		s.ReadRTP(pkt, now)
	}
}

// ReadRTCP fans an inbound RTCP packet out to every stage.
func (c *Chain) ReadRTCP(pkt rtcp.Packet, now time.Time) {
	for _, s := range c.stages {
		s.ReadRTCP(pkt, now)
	}
}

// HandleTimeout fires HandleTimeout on every stage whose deadline has
// elapsed.
func (c *Chain) HandleTimeout(now time.Time) {
	for _, s := range c.stages {
		if deadline, ok := s.NextTimeout(); ok && !now.Before(deadline) {
			s.HandleTimeout(now)
		}
	}
}

// NextTimeout returns the earliest deadline among all stages.
func (c *Chain) NextTimeout() (time.Time, bool) {
	var best time.Time
	found := false
	for _, s := range c.stages {
		if deadline, ok := s.NextTimeout(); ok {
			if !found || deadline.Before(best) {
				best = deadline
				found = true
			}
		}
	}
	return best, found
}

// PollRTCP drains one pending RTCP packet from the first stage that has
// one, checked closest-to-wire first (NACKs are more time-sensitive than
// reports).
func (c *Chain) PollRTCP() (rtcp.Packet, bool) {
	for _, s := range c.stages {
		if pkt, ok := s.PollRTCP(); ok {
			return pkt, true
		}
	}
	return nil, false
}

// PollRTP drains one pending retransmission from the first stage that has
// one.
func (c *Chain) PollRTP() (*rtp.Packet, bool) {
	for _, s := range c.stages {
		if pkt, ok := s.PollRTP(); ok {
			return pkt, true
		}
	}
	return nil, false
}

// baseStage gives every concrete interceptor the no-op defaults for methods
// it doesn't care about, so each one only needs to override what it uses.
type baseStage struct{}

func (baseStage) WriteRTP(*rtp.Packet, time.Time) bool       { return true }
func (baseStage) ReadRTP(*rtp.Packet, time.Time)             {}
func (baseStage) ReadRTCP(rtcp.Packet, time.Time)            {}
func (baseStage) HandleTimeout(time.Time)                    {}
func (baseStage) NextTimeout() (time.Time, bool)              { return time.Time{}, false }
func (baseStage) PollRTCP() (rtcp.Packet, bool)               { return nil, false }
func (baseStage) PollRTP() (*rtp.Packet, bool)                 { return nil, false }

// ntpEpochOffset is the number of seconds between the NTP epoch (1900) and
// the Unix epoch (1970), used to convert wall-clock time to the 64-bit NTP
// timestamp format RFC 3550 sender reports carry.
const ntpEpochOffset = 2208988800

func toNTP(t time.Time) uint64 {
	secs := uint64(t.Unix()) + ntpEpochOffset
	frac := uint64(t.Nanosecond()) * (uint64(1) << 32) / 1e9
	return secs<<32 | frac
}

// ntpMiddle32 extracts the middle 32 bits of a 64-bit NTP timestamp, the
// form a Sender Report's "last SR" field stores (RFC 3550 §6.4.1).
func ntpMiddle32(ntp uint64) uint32 {
	return uint32(ntp >> 16)
}
