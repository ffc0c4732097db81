package ice

import (
	"net"
	"sort"
	"time"
)

// ChecklistState is the checklist's overall progress (RFC 8445 §6.1.2.1).
type ChecklistState int

const (
	ChecklistRunning ChecklistState = iota
	ChecklistCompleted
	ChecklistFailed
)

// Checklist holds every candidate pair under consideration for one media
// stream and drives RFC 8445's ordinary/triggered check scheduling. It is
// sans-I/O: NextCheck/TriggerCheck hand back a *CandidatePair the Agent
// should send a Binding request to; nothing here touches a socket.
type Checklist struct {
	State ChecklistState

	username       string
	localPassword  string
	remotePassword string

	controlling bool

	nextPairID uint64
	pairs      []*CandidatePair

	triggeredQueue []*CandidatePair
	valid          []*CandidatePair
	selected       *CandidatePair

	nextToCheck int
}

// NewChecklist creates an empty checklist for the given short-term
// credentials (RFC 8445 §16).
func NewChecklist(username, localPassword, remotePassword string) *Checklist {
	return &Checklist{username: username, localPassword: localPassword, remotePassword: remotePassword}
}

// AddCandidatePairs pairs every local candidate with every compatible
// remote candidate, sorts, prunes, and unfreezes into Waiting (§6.1.2.2-4).
func (cl *Checklist) AddCandidatePairs(locals, remotes []Candidate) {
	for _, local := range locals {
		for _, remote := range remotes {
			if canBePaired(local, remote) {
				p := newCandidatePair(cl.nextPairID, local, remote)
				cl.nextPairID++
				cl.pairs = append(cl.pairs, p)
			}
		}
	}
	cl.pairs = sortAndPrune(cl.pairs, cl.localIsControlling())
	for _, p := range cl.pairs {
		if p.State == PairFrozen {
			p.State = PairWaiting
		}
	}
}

// localIsControlling reports the role used for pair priority ordering.
func (cl *Checklist) localIsControlling() bool { return cl.controlling }

// SetControlling sets the ICE role used to order pair priorities and
// resolves nomination semantics; the Agent calls this once the role is
// known (from the offer/answer or an ICE role conflict resolution).
func (cl *Checklist) SetControlling(controlling bool) { cl.controlling = controlling }

// canBePaired enforces RFC 8445 §6.1.2.2: only same-component,
// same-protocol candidates may be paired (address family compatibility is
// the host's concern when it gathers candidates).
func canBePaired(local, remote Candidate) bool {
	return local.Component == remote.Component && local.Protocol == remote.Protocol
}

// sortAndPrune sorts pairs from highest to lowest priority and removes
// redundant pairs (RFC 8445 §6.1.2.3-4), preserving pairs with a check
// already in flight or resolved.
func sortAndPrune(pairs []*CandidatePair, controlling bool) []*CandidatePair {
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].Priority(controlling) > pairs[j].Priority(controlling)
	})

	out := pairs[:0:0]
	for i, p := range pairs {
		if p.State == PairInProgress || p.State == PairSucceeded || p.State == PairFailed {
			out = append(out, p)
			continue
		}
		redundant := false
		for j := 0; j < i; j++ {
			if p.isRedundant(pairs[j]) {
				redundant = true
				break
			}
		}
		if !redundant {
			out = append(out, p)
		}
	}
	return out
}

// NextCheck returns the next pair that should receive an ordinary or
// triggered connectivity check, per the Ta timer (§6.1.4.2), or nil if
// nothing is due.
func (cl *Checklist) NextCheck() *CandidatePair {
	if len(cl.triggeredQueue) > 0 {
		p := cl.triggeredQueue[0]
		cl.triggeredQueue = cl.triggeredQueue[1:]
		return p
	}
	n := len(cl.pairs)
	for i := 0; i < n; i++ {
		k := (cl.nextToCheck + i) % n
		p := cl.pairs[k]
		if p.State == PairWaiting {
			cl.nextToCheck = (k + 1) % n
			return p
		}
	}
	return nil
}

// RTO computes the connectivity-check retransmission timeout (RFC 8445
// §14.3): 50ms times the number of pairs still in Waiting or InProgress.
func (cl *Checklist) RTO() time.Duration {
	n := 0
	for _, p := range cl.pairs {
		if p.State == PairWaiting || p.State == PairInProgress {
			n++
		}
	}
	if n == 0 {
		n = 1
	}
	return time.Duration(n) * 50 * time.Millisecond
}

// MarkInProgress transitions p to InProgress as its check is sent.
func (cl *Checklist) MarkInProgress(p *CandidatePair) { p.State = PairInProgress }

// MarkRetryWaiting reverts p to Waiting after its RTO elapses unanswered.
func (cl *Checklist) MarkRetryWaiting(p *CandidatePair) {
	if p.State == PairInProgress {
		p.State = PairWaiting
	}
}

// HandleSuccess records a successful connectivity check response,
// appending p to the valid list and recomputing selection.
func (cl *Checklist) HandleSuccess(p *CandidatePair) {
	p.State = PairSucceeded
	cl.valid = append(cl.valid, p)
	cl.updateState()
}

// HandleFailure records a failed connectivity check response.
func (cl *Checklist) HandleFailure(p *CandidatePair) {
	p.State = PairFailed
	cl.updateState()
}

// Nominate marks p nominated (aggressive nomination: the controlling agent
// calls this once it has a succeeded pair it wants to use).
func (cl *Checklist) Nominate(p *CandidatePair) {
	if p.State == PairFrozen {
		p.State = PairWaiting
	}
	p.Nominated = true
	cl.updateState()
}

// TriggerCheck enqueues p for an immediate (triggered) check (RFC 8445
// §7.3.1.4), e.g. in response to an incoming Binding request for a pair
// that hasn't succeeded yet.
func (cl *Checklist) TriggerCheck(p *CandidatePair) {
	if p.State == PairFrozen || p.State == PairWaiting {
		cl.triggeredQueue = append(cl.triggeredQueue, p)
	}
}

// Selected returns the nominated, succeeded pair in use, if any.
func (cl *Checklist) Selected() (*CandidatePair, bool) {
	return cl.selected, cl.selected != nil
}

func (cl *Checklist) updateState() {
	if cl.State != ChecklistRunning {
		return
	}
	for _, p := range cl.valid {
		if p.Nominated {
			cl.selected = p
			cl.State = ChecklistCompleted
			return
		}
	}
}

// FindPair returns the first pair whose local candidate matches localAddr
// and whose remote candidate matches remoteAddr, or nil.
func (cl *Checklist) FindPair(localAddr, remoteAddr *net.UDPAddr) *CandidatePair {
	for _, p := range cl.pairs {
		if p.Local.IP.Equal(localAddr.IP) && p.Local.Port == localAddr.Port &&
			p.Remote.IP.Equal(remoteAddr.IP) && p.Remote.Port == remoteAddr.Port {
			return p
		}
	}
	return nil
}

// AdoptPeerReflexive adds a new pair learned from an unexpected-but-valid
// connectivity check source address (RFC 8445 §7.3.1.3-4): a host
// candidate for our side (identified by baseID) paired against a new
// peer-reflexive remote candidate.
func (cl *Checklist) AdoptPeerReflexive(local Candidate, remoteAddr *net.UDPAddr, priority uint32) *CandidatePair {
	remote := NewPeerReflexiveCandidate(0, local.Component, remoteAddr, priority)
	p := newCandidatePair(cl.nextPairID, local, remote)
	cl.nextPairID++
	p.State = PairWaiting
	cl.pairs = append(cl.pairs, p)
	cl.pairs = sortAndPrune(cl.pairs, cl.localIsControlling())
	return p
}

// Pairs returns every pair currently tracked, for diagnostics/tests.
func (cl *Checklist) Pairs() []*CandidatePair { return cl.pairs }
