package ice

import (
	"net"
	"time"

	"github.com/lanikai/webrtc/internal/logging"
	"github.com/lanikai/webrtc/internal/stun"
)

// Role is which ICE role (RFC 8445 §4) a local agent plays. The role
// decides pair priority ordering and who nominates.
type Role int

const (
	Controlling Role = iota
	Controlled
)

// taInterval is the default ordinary-check pacing interval (RFC 8445 §14.1
// Ta, assuming a single checklist).
const taInterval = 50 * time.Millisecond

// keepaliveInterval is Tr, the interval between STUN binding indications
// sent to the selected pair to keep NAT bindings alive (RFC 8445 §11).
const keepaliveInterval = 30 * time.Second

// outboundTransaction is one datagram the host must send, paired with its
// destination address.
type outboundTransaction struct {
	Dest *net.UDPAddr
	Data []byte
}

// Agent is the sans-I/O ICE agent for one media stream: candidate
// bookkeeping, a Checklist, and connectivity-check scheduling. The host
// feeds it inbound STUN datagrams via HandleRead and drains PollWrite for
// datagrams to actually send over its sockets; HandleTimeout/PollTimeout
// drive the Ta/Tr timers like the rest of the engine's sans-I/O components.
// Ported from the teacher's select-loop-based agent (loop/handleStun), with
// socket ownership and candidate gathering left to the host.
type Agent struct {
	role Role
	mid  string

	localUfrag, localPassword   string
	remoteUfrag, remotePassword string

	checklist *Checklist

	localCandidates  []Candidate
	remoteCandidates []Candidate

	// pendingChecks maps an outstanding connectivity-check transaction ID to
	// the pair it was sent for, so a response can be matched back.
	pendingChecks map[string]*CandidatePair

	nextBaseID int

	nextTaDeadline time.Time
	nextTrDeadline time.Time

	outbox []outboundTransaction
	log    *logging.Logger
}

// NewAgent creates an agent for the given media identifier and role, using
// the caller-supplied local short-term credentials.
func NewAgent(mid string, role Role, localUfrag, localPassword string) *Agent {
	return &Agent{
		role:          role,
		mid:           mid,
		localUfrag:    localUfrag,
		localPassword: localPassword,
		pendingChecks: make(map[string]*CandidatePair),
		log:           logging.DefaultLogger.WithTag("ice"),
	}
}

// SetRemoteCredentials configures the remote ufrag/password carried in the
// peer's SDP and (re)builds the checklist's credential context.
func (a *Agent) SetRemoteCredentials(ufrag, password string) {
	a.remoteUfrag = ufrag
	a.remotePassword = password
	username := a.remoteUfrag + ":" + a.localUfrag
	a.checklist = NewChecklist(username, a.localPassword, a.remotePassword)
	a.checklist.SetControlling(a.role == Controlling)
	a.checklist.AddCandidatePairs(a.localCandidates, a.remoteCandidates)
}

// NextBaseID allocates an opaque identifier for a new local listening
// socket (base), used to detect redundant candidate pairs.
func (a *Agent) NextBaseID() int {
	id := a.nextBaseID
	a.nextBaseID++
	return id
}

// AddLocalCandidate registers a candidate gathered by the host (host,
// server-reflexive, or relay) and pairs it against every known remote
// candidate.
func (a *Agent) AddLocalCandidate(c Candidate) {
	a.localCandidates = append(a.localCandidates, c)
	if a.checklist != nil {
		a.checklist.AddCandidatePairs([]Candidate{c}, a.remoteCandidates)
	}
}

// AddRemoteCandidate registers a candidate learned from the peer's SDP or a
// trickle-ICE candidate message, and pairs it against every known local
// candidate.
func (a *Agent) AddRemoteCandidate(c Candidate) {
	a.remoteCandidates = append(a.remoteCandidates, c)
	if a.checklist != nil {
		a.checklist.AddCandidatePairs(a.localCandidates, []Candidate{c})
	}
}

// SelectedPair returns the nominated, succeeded pair in use, if any.
func (a *Agent) SelectedPair() (*CandidatePair, bool) {
	if a.checklist == nil {
		return nil, false
	}
	return a.checklist.Selected()
}

// State returns the checklist's overall progress.
func (a *Agent) State() ChecklistState {
	if a.checklist == nil {
		return ChecklistRunning
	}
	return a.checklist.State
}

// PollWrite pops the next datagram the host should send.
func (a *Agent) PollWrite() (*net.UDPAddr, []byte, bool) {
	if len(a.outbox) == 0 {
		return nil, nil, false
	}
	t := a.outbox[0]
	a.outbox = a.outbox[1:]
	return t.Dest, t.Data, true
}

// PollTimeout reports the next time HandleTimeout should run.
func (a *Agent) PollTimeout() (time.Time, bool) {
	var next time.Time
	if !a.nextTaDeadline.IsZero() {
		next = a.nextTaDeadline
	}
	if !a.nextTrDeadline.IsZero() && (next.IsZero() || a.nextTrDeadline.Before(next)) {
		next = a.nextTrDeadline
	}
	return next, !next.IsZero()
}

// HandleTimeout drives the ordinary connectivity check cadence (Ta) and the
// selected-pair keepalive cadence (Tr).
func (a *Agent) HandleTimeout(now time.Time) {
	if a.checklist == nil {
		return
	}
	if a.nextTaDeadline.IsZero() {
		a.nextTaDeadline = now
	}
	if !now.Before(a.nextTaDeadline) {
		if a.checklist.State == ChecklistRunning {
			if p := a.checklist.NextCheck(); p != nil {
				a.sendCheck(p)
			}
		}
		a.nextTaDeadline = now.Add(taInterval)
	}

	if selected, ok := a.checklist.Selected(); ok {
		if a.nextTrDeadline.IsZero() {
			a.nextTrDeadline = now.Add(keepaliveInterval)
		}
		if !now.Before(a.nextTrDeadline) {
			ind := stun.NewBindingIndication()
			a.queue(selected.Remote.Addr(), ind.Bytes())
			a.nextTrDeadline = now.Add(keepaliveInterval)
		}
	}
}

// sendCheck issues a Binding request for pair p (RFC 8445 §7.2.2/§7.2.4):
// USERNAME, PRIORITY, the role attribute, and MESSAGE-INTEGRITY/FINGERPRINT
// for authentication.
func (a *Agent) sendCheck(p *CandidatePair) {
	req := stun.NewBindingRequest("")
	req.AddUsername(a.checklist.username)
	req.AddPriority(p.Local.PeerPriority())
	if a.role == Controlling {
		req.AddIceControlling(0)
	} else {
		req.AddIceControlled(0)
	}
	req.AddMessageIntegrity(a.checklist.remotePassword)
	req.AddFingerprint()

	p.transactionID = transactionIDArray(req.TransactionID)
	a.pendingChecks[req.TransactionID] = p

	a.checklist.MarkInProgress(p)
	a.queue(p.Remote.Addr(), req.Bytes())
}

func (a *Agent) queue(dest *net.UDPAddr, data []byte) {
	a.outbox = append(a.outbox, outboundTransaction{Dest: dest, Data: data})
}

// HandleRead processes one inbound STUN datagram received from addr. The
// host's protocol classifier (§4.L) is responsible for routing only
// STUN-shaped datagrams here.
func (a *Agent) HandleRead(now time.Time, data []byte, from *net.UDPAddr) error {
	msg, err := stun.Parse(data)
	if err != nil {
		return err
	}
	if msg == nil {
		return errSTUNInvalidMessage
	}
	switch msg.Class {
	case stun.ClassRequest:
		return a.handleRequest(msg, from)
	case stun.ClassSuccessResponse, stun.ClassErrorResponse:
		return a.handleResponse(msg, from)
	}
	return nil // indications (keepalives) need no action
}

// handleRequest implements RFC 8445 §7.3: validate, possibly learn a new
// peer-reflexive candidate, nominate if requested, and respond.
func (a *Agent) handleRequest(req *stun.Message, from *net.UDPAddr) error {
	if err := stun.CheckMessage(req, a.localPassword); err != nil {
		return err
	}
	if a.checklist == nil {
		return nil
	}

	p := a.findOrAdoptPair(req, from)
	if req.HasUseCandidate() && !p.Nominated {
		a.checklist.Nominate(p)
	}

	resp := stun.NewBindingSuccessResponse(req.TransactionID, from, a.localPassword)
	a.queue(from, resp.Bytes())

	a.checklist.TriggerCheck(p)
	return nil
}

func (a *Agent) findOrAdoptPair(req *stun.Message, from *net.UDPAddr) *CandidatePair {
	for _, p := range a.checklist.Pairs() {
		if p.Remote.IP.Equal(from.IP) && p.Remote.Port == from.Port {
			return p
		}
	}
	priority, _ := req.Priority()
	local := a.localCandidates[0] // component 1's primary base; a multi-base host refines this via BaseID matching on the receiving socket
	return a.checklist.AdoptPeerReflexive(local, from, priority)
}

// handleResponse implements RFC 8445 §7.2.5: match the transaction to a
// pending check and record success/failure.
func (a *Agent) handleResponse(resp *stun.Message, from *net.UDPAddr) error {
	p, ok := a.pendingChecks[resp.TransactionID]
	if !ok {
		return nil
	}
	delete(a.pendingChecks, resp.TransactionID)

	if resp.Class == stun.ClassSuccessResponse {
		a.checklist.HandleSuccess(p)
		if a.role == Controlling && !p.Nominated {
			a.checklist.Nominate(p)
			a.sendNomination(p)
		}
	} else {
		a.checklist.HandleFailure(p)
	}
	return nil
}

// sendNomination sends a fresh Binding request carrying USE-CANDIDATE on an
// already-succeeded pair, so the controlled peer learns which pair the
// controlling side has chosen (RFC 8445 §8.1.1's aggressive nomination).
func (a *Agent) sendNomination(p *CandidatePair) {
	req := stun.NewBindingRequest("")
	req.AddUsername(a.checklist.username)
	req.AddPriority(p.Local.PeerPriority())
	req.AddIceControlling(0)
	req.AddUseCandidate()
	req.AddMessageIntegrity(a.checklist.remotePassword)
	req.AddFingerprint()

	p.transactionID = transactionIDArray(req.TransactionID)
	a.pendingChecks[req.TransactionID] = p
	a.queue(p.Remote.Addr(), req.Bytes())
}

// Restart resets the agent for an ICE restart (RFC 8445 §4), discarding all
// candidates and pair state but keeping the role.
func (a *Agent) Restart(localUfrag, localPassword string) {
	a.localUfrag = localUfrag
	a.localPassword = localPassword
	a.localCandidates = nil
	a.remoteCandidates = nil
	a.checklist = nil
	a.pendingChecks = make(map[string]*CandidatePair)
	a.outbox = nil
	a.nextTaDeadline = time.Time{}
	a.nextTrDeadline = time.Time{}
}

func transactionIDArray(s string) (out [12]byte) {
	copy(out[:], s)
	return out
}
