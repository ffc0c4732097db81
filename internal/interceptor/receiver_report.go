package interceptor

import (
	"time"

	"github.com/lanikai/webrtc/internal/rtcp"
	"github.com/lanikai/webrtc/internal/rtp"
)

// receiverReportInterval is the default spacing between generated Receiver
// Reports (RFC 3550 §6.4.2).
const receiverReportInterval = time.Second

// defaultClockRate is assumed for a stream whose clock rate hasn't been
// registered via SetClockRate. 90000 Hz is the common case (video, and
// several audio codecs); callers negotiating a different rate from SDP
// should call SetClockRate before packets for that SSRC arrive.
const defaultClockRate = 90000

// receiverStream tracks what's needed to build one ReportBlock (RFC 3550
// §6.4.1) for a single remote SSRC.
type receiverStream struct {
	clockRate uint32

	packetsReceived uint32
	baseSequence    uint16
	maxSequence     uint16
	seqInitialized  bool
	cycles          uint32 // count of sequence number wraparounds
	expectedPrior   uint32
	receivedPrior   uint32

	// transit and jitter implement RFC 3550 Appendix A.8's running
	// estimate, both expressed in RTP timestamp ticks.
	transit    int64
	haveTransit bool
	jitter     float64

	lastSR      uint32 // middle 32 bits of the NTP time from the last SR
	lastSRWhen  time.Time
	haveLastSR  bool
}

func (s *receiverStream) update(pkt *rtp.Packet, arrival time.Time) {
	s.packetsReceived++

	seq := pkt.Header.Sequence
	if !s.seqInitialized {
		s.baseSequence = seq
		s.maxSequence = seq
		s.seqInitialized = true
	} else if seq < s.maxSequence && s.maxSequence-seq > 0x8000 {
		s.cycles++
		s.maxSequence = seq
	} else if seq > s.maxSequence || seq-s.maxSequence < 0x8000 {
		s.maxSequence = seq
	}

	rate := s.clockRate
	if rate == 0 {
		rate = defaultClockRate
	}
	arrivalTicks := int64(arrival.Unix())*int64(rate) + int64(arrival.Nanosecond())*int64(rate)/1e9
	transit := arrivalTicks - int64(pkt.Header.Timestamp)
	if s.haveTransit {
		d := transit - s.transit
		if d < 0 {
			d = -d
		}
		s.jitter += (float64(d) - s.jitter) / 16
	}
	s.transit = transit
	s.haveTransit = true
}

func (s *receiverStream) extendedMaxSequence() uint32 {
	return uint32(s.cycles)<<16 | uint32(s.maxSequence)
}

func (s *receiverStream) report(ssrc uint32, now time.Time) rtcp.ReportBlock {
	expected := s.extendedMaxSequence() - uint32(s.baseSequence) + 1
	lost := uint32(0)
	if expected > s.packetsReceived {
		lost = expected - s.packetsReceived
	}

	expectedInterval := expected - s.expectedPrior
	receivedInterval := s.packetsReceived - s.receivedPrior
	s.expectedPrior = expected
	s.receivedPrior = s.packetsReceived

	lostInterval := int64(expectedInterval) - int64(receivedInterval)
	var fraction uint8
	if expectedInterval != 0 && lostInterval > 0 {
		fraction = uint8((lostInterval << 8) / int64(expectedInterval))
	}

	var delay uint32
	if s.haveLastSR {
		delay = uint32(now.Sub(s.lastSRWhen).Seconds() * 65536)
	}

	return rtcp.ReportBlock{
		SSRC:               ssrc,
		FractionLost:       fraction,
		TotalLost:          lost & 0xffffff,
		LastSequenceNumber: s.extendedMaxSequence(),
		Jitter:             uint32(s.jitter),
		LastSenderReport:   s.lastSR,
		Delay:              delay,
	}
}

// ReceiverReportGenerator tracks reception statistics per remote SSRC and
// emits one ReceiverReport, bundling a ReportBlock per tracked stream, on
// every interval (RFC 3550 §6.4.2).
type ReceiverReportGenerator struct {
	baseStage

	localSSRC uint32
	interval  time.Time
	period    time.Duration

	streams map[uint32]*receiverStream
	pending []rtcp.Packet
}

// NewReceiverReportGenerator returns a generator reporting as localSSRC,
// firing its first report one interval after start.
func NewReceiverReportGenerator(localSSRC uint32, start time.Time) *ReceiverReportGenerator {
	return &ReceiverReportGenerator{
		localSSRC: localSSRC,
		period:    receiverReportInterval,
		interval:  start.Add(receiverReportInterval),
		streams:   make(map[uint32]*receiverStream),
	}
}

// SetPeriod overrides the default report cadence (the rr_interval
// configuration option). Takes effect on the next scheduled report.
func (g *ReceiverReportGenerator) SetPeriod(d time.Duration) {
	g.period = d
}

// SetClockRate registers the RTP clock rate for ssrc, used to convert
// arrival wall-clock time into the same units as the RTP timestamp for
// jitter computation. Must be called before the first packet for ssrc
// arrives to take effect for that packet.
func (g *ReceiverReportGenerator) SetClockRate(ssrc uint32, rate uint32) {
	g.stream(ssrc).clockRate = rate
}

func (g *ReceiverReportGenerator) stream(ssrc uint32) *receiverStream {
	s, ok := g.streams[ssrc]
	if !ok {
		s = &receiverStream{}
		g.streams[ssrc] = s
	}
	return s
}

func (g *ReceiverReportGenerator) ReadRTP(pkt *rtp.Packet, now time.Time) {
	g.stream(pkt.Header.SSRC).update(pkt, now)
}

func (g *ReceiverReportGenerator) ReadRTCP(pkt rtcp.Packet, now time.Time) {
	sr, ok := pkt.(*rtcp.SenderReport)
	if !ok {
		return
	}
	s := g.stream(sr.SSRC)
	s.lastSR = ntpMiddle32(sr.NTPTime)
	s.lastSRWhen = now
	s.haveLastSR = true
}

func (g *ReceiverReportGenerator) HandleTimeout(now time.Time) {
	for !now.Before(g.interval) {
		if len(g.streams) > 0 {
			rr := &rtcp.ReceiverReport{SSRC: g.localSSRC}
			for ssrc, s := range g.streams {
				if !s.seqInitialized {
					continue
				}
				rr.Reports = append(rr.Reports, s.report(ssrc, now))
			}
			if len(rr.Reports) > 0 {
				g.pending = append(g.pending, rr)
			}
		}
		g.interval = g.interval.Add(g.period)
	}
}

func (g *ReceiverReportGenerator) NextTimeout() (time.Time, bool) {
	return g.interval, true
}

func (g *ReceiverReportGenerator) PollRTCP() (rtcp.Packet, bool) {
	if len(g.pending) == 0 {
		return nil, false
	}
	pkt := g.pending[0]
	g.pending = g.pending[1:]
	return pkt, true
}
