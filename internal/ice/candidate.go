// Package ice implements the sans-I/O half of Interactive Connectivity
// Establishment (RFC 8445): candidate bookkeeping, pair priority and
// sorting, the checklist state machine, and nomination. Socket ownership,
// candidate gathering (binding local ports, querying STUN/TURN servers) and
// timers belong to the host embedding this package; the Agent here only
// reacts to handle_read/handle_timeout and produces outbound STUN
// transactions via poll_write, mirroring the rest of the engine's sans-I/O
// contract. Candidate and priority math is ported from the teacher's
// internal/ice/candidate.go, generalized to drop its direct net.PacketConn
// coupling.
package ice

import (
	"fmt"
	"hash/fnv"
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// CandidateType is one of the four RFC 8445 §5.1.1 candidate types.
type CandidateType int

const (
	TypeHost CandidateType = iota
	TypeServerReflexive
	TypePeerReflexive
	TypeRelay
)

func (t CandidateType) String() string {
	switch t {
	case TypeHost:
		return "host"
	case TypeServerReflexive:
		return "srflx"
	case TypePeerReflexive:
		return "prflx"
	case TypeRelay:
		return "relay"
	default:
		return "unknown"
	}
}

func parseCandidateType(s string) (CandidateType, error) {
	switch s {
	case "host":
		return TypeHost, nil
	case "srflx":
		return TypeServerReflexive, nil
	case "prflx":
		return TypePeerReflexive, nil
	case "relay":
		return TypeRelay, nil
	default:
		return 0, errors.Errorf("ice: unknown candidate type %q", s)
	}
}

// Candidate is a transport address an agent offers, or learns of from the
// peer (RFC 8445 §5.1).
type Candidate struct {
	Foundation string
	Component  int
	Protocol   string // "udp" or "tcp"
	Priority   uint32
	IP         net.IP
	Port       int
	Type       CandidateType

	// RelatedAddress/RelatedPort are set for srflx/relay/prflx candidates
	// (RFC 8445 §5.1.1); required by some implementations even when zeroed.
	RelatedAddress net.IP
	RelatedPort    int

	// BaseID identifies the local base (listening socket) this candidate
	// was gathered from. Only meaningful for local candidates; the host
	// assigns these, the ice package treats them as opaque.
	BaseID int
}

// NewHostCandidate builds a host candidate for a local base listening at
// addr with the given component (1 = RTP, 2 = RTCP).
func NewHostCandidate(baseID, component int, addr *net.UDPAddr) Candidate {
	return Candidate{
		Foundation: computeFoundation(TypeHost, addr.IP, "udp", ""),
		Component:  component,
		Protocol:   "udp",
		Priority:   ComputePriority(TypeHost, component),
		IP:         addr.IP,
		Port:       addr.Port,
		Type:       TypeHost,
		BaseID:     baseID,
	}
}

// NewServerReflexiveCandidate builds a srflx candidate from a STUN Binding
// response's XOR-MAPPED-ADDRESS.
func NewServerReflexiveCandidate(baseID, component int, mapped *net.UDPAddr, base *net.UDPAddr, stunServer string) Candidate {
	return Candidate{
		Foundation:     computeFoundation(TypeServerReflexive, base.IP, "udp", stunServer),
		Component:      component,
		Protocol:       "udp",
		Priority:       ComputePriority(TypeServerReflexive, component),
		IP:             mapped.IP,
		Port:           mapped.Port,
		Type:           TypeServerReflexive,
		RelatedAddress: base.IP,
		RelatedPort:    base.Port,
		BaseID:         baseID,
	}
}

// NewPeerReflexiveCandidate builds a prflx candidate discovered from an
// unexpected-but-valid connectivity check source address (RFC 8445
// §7.3.1.3/§7.3.1.4).
func NewPeerReflexiveCandidate(baseID, component int, addr *net.UDPAddr, priority uint32) Candidate {
	return Candidate{
		Foundation: computeFoundation(TypePeerReflexive, addr.IP, "udp", ""),
		Component:  component,
		Protocol:   "udp",
		Priority:   priority,
		IP:         addr.IP,
		Port:       addr.Port,
		Type:       TypePeerReflexive,
		BaseID:     baseID,
	}
}

// ComputePriority implements RFC 8445 §5.1.2's candidate priority formula.
func ComputePriority(typ CandidateType, component int) uint32 {
	var typePref int
	switch typ {
	case TypeHost:
		typePref = 126
	case TypeServerReflexive, TypePeerReflexive:
		typePref = 110
	case TypeRelay:
		typePref = 0
	}
	const localPref = 65535
	return uint32(typePref<<24) + uint32(localPref<<8) + uint32(256-component)
}

// computeFoundation implements RFC 8445 §5.1.1.3: candidates sharing type,
// base IP, protocol, and (if applicable) STUN/TURN server share a
// foundation.
func computeFoundation(typ CandidateType, baseIP net.IP, protocol, stunServer string) string {
	key := fmt.Sprintf("%s/%s/%s", typ, protocol, baseIP.String())
	if stunServer != "" {
		key += "/" + stunServer
	}
	h := fnv.New64()
	h.Write([]byte(key))
	return fmt.Sprintf("%x", h.Sum64())[:8]
}

// PeerPriority returns the priority this candidate would carry if it had
// been learned as peer-reflexive, used when encoding PRIORITY on a
// connectivity check (RFC 8445 §7.1.1).
func (c Candidate) PeerPriority() uint32 {
	return ComputePriority(TypePeerReflexive, c.Component)
}

func (c Candidate) Addr() *net.UDPAddr {
	return &net.UDPAddr{IP: c.IP, Port: c.Port}
}

// SDPString formats the candidate as an SDP a=candidate attribute value
// (draft-ietf-mmusic-ice-sip-sdp §4.1), excluding the "a=candidate:" prefix.
func (c Candidate) SDPString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d %s %d %s %d typ %s",
		c.Foundation, c.Component, c.Protocol, c.Priority, c.IP.String(), c.Port, c.Type)
	if c.Type != TypeHost {
		ra := c.RelatedAddress
		if ra == nil {
			ra = net.IPv4zero
		}
		fmt.Fprintf(&b, " raddr %s rport %d", ra.String(), c.RelatedPort)
	}
	return b.String()
}

func (c Candidate) String() string { return c.SDPString() }

// ParseCandidate parses an SDP candidate-attribute value (without the
// "candidate:" prefix already stripped by the caller, matching the form
// produced by SDPString).
func ParseCandidate(s string) (Candidate, error) {
	fields := strings.Fields(s)
	if len(fields) < 8 || fields[6] != "typ" {
		return Candidate{}, errors.Errorf("ice: malformed candidate line %q", s)
	}
	component, err := strconv.Atoi(fields[1])
	if err != nil {
		return Candidate{}, errors.Wrap(err, "ice: parsing component")
	}
	priority, err := strconv.ParseUint(fields[3], 10, 32)
	if err != nil {
		return Candidate{}, errors.Wrap(err, "ice: parsing priority")
	}
	port, err := strconv.Atoi(fields[5])
	if err != nil {
		return Candidate{}, errors.Wrap(err, "ice: parsing port")
	}
	typ, err := parseCandidateType(fields[7])
	if err != nil {
		return Candidate{}, err
	}
	c := Candidate{
		Foundation: fields[0],
		Component:  component,
		Protocol:   strings.ToLower(fields[2]),
		Priority:   uint32(priority),
		IP:         net.ParseIP(fields[4]),
		Port:       port,
		Type:       typ,
	}
	for i := 8; i+1 < len(fields); i += 2 {
		switch fields[i] {
		case "raddr":
			c.RelatedAddress = net.ParseIP(fields[i+1])
		case "rport":
			if p, err := strconv.Atoi(fields[i+1]); err == nil {
				c.RelatedPort = p
			}
		}
	}
	return c, nil
}
