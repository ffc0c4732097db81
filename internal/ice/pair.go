package ice

// PairState is a candidate pair's position in the checklist state machine
// (RFC 8445 §6.1.2.6).
type PairState int

const (
	PairFrozen PairState = iota
	PairWaiting
	PairInProgress
	PairSucceeded
	PairFailed
)

func (s PairState) String() string {
	switch s {
	case PairFrozen:
		return "frozen"
	case PairWaiting:
		return "waiting"
	case PairInProgress:
		return "in-progress"
	case PairSucceeded:
		return "succeeded"
	case PairFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CandidatePair is one (local, remote) candidate combination under
// consideration by a checklist.
type CandidatePair struct {
	ID     uint64
	Local  Candidate
	Remote Candidate

	State     PairState
	Nominated bool

	// transactionID/retransmitN track the in-flight connectivity check, if
	// any, so a STUN response can be matched back to this pair.
	transactionID [12]byte
	retransmitN   int
}

func newCandidatePair(id uint64, local, remote Candidate) *CandidatePair {
	return &CandidatePair{ID: id, Local: local, Remote: remote, State: PairFrozen}
}

// pairPriority computes the pair priority per RFC 8445 §6.1.2.3 from the
// (controlling, controlled) priorities G and D:
//
//	pair_priority = 2^32 * min(G, D) + 2 * max(G, D) + (G > D ? 1 : 0)
func pairPriority(controllingPriority, controlledPriority uint32) uint64 {
	g := uint64(controllingPriority)
	d := uint64(controlledPriority)
	lo, hi := g, d
	if d < g {
		lo, hi = d, g
	}
	var bit uint64
	if g > d {
		bit = 1
	}
	return (lo << 32) + (hi << 1) + bit
}

// Priority returns this pair's priority, given whether the local agent is
// the controlling side (the formula is defined over the controlling side's
// candidate priority as G, the controlled side's as D, regardless of which
// one is "local").
func (p *CandidatePair) Priority(localIsControlling bool) uint64 {
	if localIsControlling {
		return pairPriority(p.Local.Priority, p.Remote.Priority)
	}
	return pairPriority(p.Remote.Priority, p.Local.Priority)
}

func (p *CandidatePair) String() string {
	return p.Local.String() + " <-> " + p.Remote.String() + " [" + p.State.String() + "]"
}

// isRedundant reports whether p is redundant with other per RFC 8445
// §6.1.2.4: same remote candidate and same local base.
func (p *CandidatePair) isRedundant(other *CandidatePair) bool {
	return p.Remote.IP.Equal(other.Remote.IP) &&
		p.Remote.Port == other.Remote.Port &&
		p.Local.BaseID == other.Local.BaseID
}
