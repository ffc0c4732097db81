package ice

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func cand(baseID int, priority uint32, ip string, port int) Candidate {
	return Candidate{
		Foundation: ip,
		Component:  1,
		Protocol:   "udp",
		Priority:   priority,
		IP:         net.ParseIP(ip),
		Port:       port,
		Type:       TypeHost,
		BaseID:     baseID,
	}
}

func TestSortAndPruneOrdersByPriority(t *testing.T) {
	pairs := []*CandidatePair{
		newCandidatePair(1, cand(1, 100, "1.1.1.1", 1000), cand(10, 100, "9.9.9.9", 9000)),
		newCandidatePair(2, cand(2, 99, "2.2.2.2", 2000), cand(11, 99, "8.8.8.8", 8000)),
		newCandidatePair(3, cand(3, 101, "3.3.3.3", 3000), cand(12, 101, "7.7.7.7", 7000)),
	}

	sorted := sortAndPrune(pairs, true)
	assert.Len(t, sorted, 3)
	assert.Equal(t, uint32(101), sorted[0].Local.Priority)
	assert.Equal(t, uint32(100), sorted[1].Local.Priority)
	assert.Equal(t, uint32(99), sorted[2].Local.Priority)
}

func TestSortAndPrunePrunesRedundant(t *testing.T) {
	hostCand := cand(1, 100, "1.1.1.1", 1000)
	srflxCand := cand(1, 99, "1.2.3.4", 1234) // same BaseID as hostCand: redundant with it

	remote := cand(5, 50, "5.5.5.5", 5555)
	pairs := []*CandidatePair{
		newCandidatePair(1, hostCand, remote),
		newCandidatePair(2, srflxCand, remote),
	}

	pruned := sortAndPrune(pairs, true)
	assert.Len(t, pruned, 1)
	assert.Equal(t, uint32(100), pruned[0].Local.Priority)
}

func TestSortAndPruneKeepsInProgressPairs(t *testing.T) {
	hostCand := cand(1, 100, "1.1.1.1", 1000)
	srflxCand := cand(1, 99, "1.2.3.4", 1234)
	remote := cand(5, 50, "5.5.5.5", 5555)

	pairs := []*CandidatePair{
		newCandidatePair(1, hostCand, remote),
		newCandidatePair(2, srflxCand, remote),
	}
	pairs[1].State = PairInProgress

	kept := sortAndPrune(pairs, true)
	assert.Len(t, kept, 2, "a redundant pair with a check already in flight must not be pruned")
}

func TestChecklistNominationSelectsPair(t *testing.T) {
	cl := NewChecklist("user", "localpw", "remotepw")
	cl.SetControlling(true)

	local := []Candidate{cand(1, 100, "1.1.1.1", 1000)}
	remote := []Candidate{cand(0, 100, "2.2.2.2", 2000)}
	cl.AddCandidatePairs(local, remote)
	assert.Len(t, cl.pairs, 1)
	assert.Equal(t, PairWaiting, cl.pairs[0].State)

	p := cl.NextCheck()
	assert.NotNil(t, p)
	cl.MarkInProgress(p)
	cl.HandleSuccess(p)
	cl.Nominate(p)

	selected, ok := cl.Selected()
	assert.True(t, ok)
	assert.Equal(t, p, selected)
	assert.Equal(t, ChecklistCompleted, cl.State)
}

func TestChecklistRTOScalesWithOutstandingPairs(t *testing.T) {
	cl := NewChecklist("user", "localpw", "remotepw")
	cl.AddCandidatePairs(
		[]Candidate{cand(1, 100, "1.1.1.1", 1000), cand(2, 90, "1.1.1.2", 1001)},
		[]Candidate{cand(0, 100, "2.2.2.2", 2000)},
	)
	assert.Equal(t, 100*time.Millisecond, cl.RTO())
}

func TestAdoptPeerReflexiveAddsWaitingPair(t *testing.T) {
	cl := NewChecklist("user", "localpw", "remotepw")
	local := cand(1, 100, "1.1.1.1", 1000)
	remoteAddr := &net.UDPAddr{IP: net.ParseIP("3.3.3.3"), Port: 3000}

	p := cl.AdoptPeerReflexive(local, remoteAddr, 555)
	assert.Equal(t, PairWaiting, p.State)
	assert.Equal(t, TypePeerReflexive, p.Remote.Type)
	assert.EqualValues(t, 555, p.Remote.Priority)
}
