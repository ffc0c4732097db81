package interceptor

import (
	"time"

	"github.com/lanikai/webrtc/internal/rtcp"
	"github.com/lanikai/webrtc/internal/rtp"
)

// senderReportInterval is the default spacing between generated Sender
// Reports (RFC 3550 §6.2 recommends scaling this with session size; this
// engine defaults to a fixed 1s, which SetPeriod can override).
const senderReportInterval = time.Second

// senderStream tracks the running counters for one local SSRC that this
// endpoint is sending RTP on.
type senderStream struct {
	packetCount uint32
	octetCount  uint32

	lastTimestamp uint32
	lastWallClock time.Time
	haveLast      bool
}

// SenderReportGenerator emits one Sender Report per locally-originated SSRC
// on every interval, carrying that stream's packet/octet counts and an
// NTP/RTP timestamp pair mapping wall-clock time to the RTP media clock
// (RFC 3550 §6.4.1).
type SenderReportGenerator struct {
	baseStage

	interval time.Time
	period   time.Duration

	streams map[uint32]*senderStream
	pending []rtcp.Packet
}

// NewSenderReportGenerator returns a generator that fires its first report
// one interval after start.
func NewSenderReportGenerator(start time.Time) *SenderReportGenerator {
	return &SenderReportGenerator{
		period:   senderReportInterval,
		interval: start.Add(senderReportInterval),
		streams:  make(map[uint32]*senderStream),
	}
}

// SetPeriod overrides the default report cadence (the sr_interval
// configuration option). Takes effect on the next scheduled report.
func (g *SenderReportGenerator) SetPeriod(d time.Duration) {
	g.period = d
}

func (g *SenderReportGenerator) WriteRTP(pkt *rtp.Packet, now time.Time) bool {
	s, ok := g.streams[pkt.Header.SSRC]
	if !ok {
		s = &senderStream{}
		g.streams[pkt.Header.SSRC] = s
	}
	s.packetCount++
	s.octetCount += uint32(len(pkt.Payload))
	s.lastTimestamp = pkt.Header.Timestamp
	s.lastWallClock = now
	s.haveLast = true
	return true
}

func (g *SenderReportGenerator) HandleTimeout(now time.Time) {
	for !now.Before(g.interval) {
		for ssrc, s := range g.streams {
			if !s.haveLast {
				continue
			}
			g.pending = append(g.pending, &rtcp.SenderReport{
				SSRC:        ssrc,
				NTPTime:     toNTP(now),
				RTPTime:     s.lastTimestamp,
				PacketCount: s.packetCount,
				OctetCount:  s.octetCount,
			})
		}
		g.interval = g.interval.Add(g.period)
	}
}

func (g *SenderReportGenerator) NextTimeout() (time.Time, bool) {
	return g.interval, true
}

func (g *SenderReportGenerator) PollRTCP() (rtcp.Packet, bool) {
	if len(g.pending) == 0 {
		return nil, false
	}
	pkt := g.pending[0]
	g.pending = g.pending[1:]
	return pkt, true
}
