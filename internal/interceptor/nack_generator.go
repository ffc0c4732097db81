package interceptor

import (
	"time"

	"github.com/lanikai/webrtc/internal/rtcp"
	"github.com/lanikai/webrtc/internal/rtp"
)

// nackGeneratorInterval is how often the generator scans its receive logs
// for gaps and emits NACKs.
const nackGeneratorInterval = 100 * time.Millisecond

// defaultReceiveLogSize is the number of recent sequence numbers a receive
// log remembers, per spec.
const defaultReceiveLogSize = 512

// defaultSkipLastN is the number of most-recently-received sequence numbers
// a gap must clear before it's NACKed, giving a reordered-but-not-lost
// packet time to still arrive.
const defaultSkipLastN = 5

// nackReceiveLog remembers which of the last N sequence numbers seen on a
// stream have actually arrived, so gaps can be told apart from packets not
// yet due.
type nackReceiveLog struct {
	size uint16

	received map[uint16]bool
	// highest is the largest sequence number seen (comparing with wraparound
	// via the signed difference between uint16s).
	highest     uint16
	haveHighest bool

	// earliest is the first sequence number ever added, so missing() never
	// reports a gap further back than tracking actually started.
	earliest    uint16
	haveEarliest bool
}

func newNackReceiveLog(size uint16) *nackReceiveLog {
	return &nackReceiveLog{size: size, received: make(map[uint16]bool)}
}

func seqLess(a, b uint16) bool {
	return int16(a-b) < 0
}

func (l *nackReceiveLog) add(seq uint16) {
	l.received[seq] = true
	if !l.haveEarliest {
		l.earliest = seq
		l.haveEarliest = true
	}
	if !l.haveHighest || seqLess(l.highest, seq) {
		l.highest = seq
		l.haveHighest = true
	}
	// Forget anything that has fallen out of the trailing window.
	for s := range l.received {
		if seqLess(s, l.highest-l.size) {
			delete(l.received, s)
		}
	}
}

// missing returns sequence numbers in [l.highest-size, l.highest-skipLastN]
// that were never marked received, starting no earlier than the first
// sequence number added.
func (l *nackReceiveLog) missing(skipLastN uint16) []uint16 {
	if !l.haveHighest || uint32(l.highest) < uint32(skipLastN) {
		return nil
	}
	var out []uint16
	cutoff := l.highest - skipLastN
	start := l.highest - l.size
	if l.haveEarliest && seqLess(start, l.earliest) {
		start = l.earliest
	}
	for seq := start; seqLess(seq, cutoff) || seq == cutoff; seq++ {
		if !l.received[seq] {
			out = append(out, seq)
		}
		if seq == cutoff {
			break
		}
	}
	return out
}

// nackStream is one remote SSRC the generator is watching.
type nackStream struct {
	log *nackReceiveLog
}

// NackGenerator watches inbound RTP sequence numbers for streams whose SDP
// media section advertised `a=rtcp-fb:<pt> nack`, and periodically emits
// generic NACK RTCP packets (RFC 4585 §6.2.1) for sequence gaps old enough
// to treat as lost rather than merely reordered.
type NackGenerator struct {
	baseStage

	senderSSRC uint32
	skipLastN  uint16
	logSize    uint16

	streams  map[uint32]*nackStream
	interval time.Time
	period   time.Duration
	pending  []rtcp.Packet
}

// NewNackGenerator returns a generator reporting as senderSSRC. Streams must
// be registered with Watch before their packets are tracked; packets on
// unregistered SSRCs are ignored, matching streams that didn't negotiate
// nack feedback.
func NewNackGenerator(senderSSRC uint32, start time.Time) *NackGenerator {
	return &NackGenerator{
		senderSSRC: senderSSRC,
		skipLastN:  defaultSkipLastN,
		logSize:    defaultReceiveLogSize,
		streams:    make(map[uint32]*nackStream),
		period:     nackGeneratorInterval,
		interval:   start.Add(nackGeneratorInterval),
	}
}

// SetSkipLastN overrides the default delayed-arrival grace window (the
// nack_skip_last_n configuration option).
func (g *NackGenerator) SetSkipLastN(n uint16) {
	g.skipLastN = n
}

// Watch begins loss tracking for ssrc. Call this only for streams whose
// negotiated RTCP feedback includes "nack".
func (g *NackGenerator) Watch(ssrc uint32) {
	if _, ok := g.streams[ssrc]; ok {
		return
	}
	g.streams[ssrc] = &nackStream{log: newNackReceiveLog(g.logSize)}
}

func (g *NackGenerator) ReadRTP(pkt *rtp.Packet, now time.Time) {
	s, ok := g.streams[pkt.Header.SSRC]
	if !ok {
		return
	}
	s.log.add(pkt.Header.Sequence)
}

func (g *NackGenerator) HandleTimeout(now time.Time) {
	for !now.Before(g.interval) {
		for ssrc, s := range g.streams {
			missing := s.log.missing(g.skipLastN)
			for _, nack := range packNackPairs(missing) {
				g.pending = append(g.pending, &rtcp.TransportLayerNack{
					Sender: g.senderSSRC,
					Media:  ssrc,
					Nacks:  []rtcp.NackPair{nack},
				})
			}
		}
		g.interval = g.interval.Add(g.period)
	}
}

func (g *NackGenerator) NextTimeout() (time.Time, bool) {
	return g.interval, true
}

func (g *NackGenerator) PollRTCP() (rtcp.Packet, bool) {
	if len(g.pending) == 0 {
		return nil, false
	}
	pkt := g.pending[0]
	g.pending = g.pending[1:]
	return pkt, true
}

// packNackPairs folds a sorted-ascending (mod wraparound) list of missing
// sequence numbers into the fewest NackPairs, each covering a base sequence
// plus up to 16 later ones via bitmask (RFC 4585 §6.2.1).
func packNackPairs(missing []uint16) []rtcp.NackPair {
	var pairs []rtcp.NackPair
	i := 0
	for i < len(missing) {
		base := missing[i]
		var mask uint16
		j := i + 1
		for j < len(missing) {
			offset := missing[j] - base - 1
			if offset >= 16 {
				break
			}
			mask |= 1 << offset
			j++
		}
		pairs = append(pairs, rtcp.NackPair{PacketID: base, LostPackets: mask})
		i = j
	}
	return pairs
}
