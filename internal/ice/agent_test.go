package ice

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pumpAgents exchanges datagrams between two agents until both have a
// selected pair, or maxRounds is exceeded.
func pumpAgents(t *testing.T, a, b *Agent, addrA, addrB *net.UDPAddr) {
	t.Helper()
	now := time.Unix(0, 0)
	for round := 0; round < 200; round++ {
		now = now.Add(10 * time.Millisecond)
		a.HandleTimeout(now)
		b.HandleTimeout(now)

		for {
			dest, data, ok := a.PollWrite()
			if !ok {
				break
			}
			_ = dest
			require.NoError(t, b.HandleRead(now, data, addrA))
		}
		for {
			dest, data, ok := b.PollWrite()
			if !ok {
				break
			}
			_ = dest
			require.NoError(t, a.HandleRead(now, data, addrB))
		}

		if _, ok := a.SelectedPair(); ok {
			if _, ok := b.SelectedPair(); ok {
				return
			}
		}
	}
	t.Fatal("agents never converged on a selected pair")
}

func TestAgentConnectivityCheckSelectsPair(t *testing.T) {
	addrA := &net.UDPAddr{IP: net.ParseIP("10.0.0.1"), Port: 1000}
	addrB := &net.UDPAddr{IP: net.ParseIP("10.0.0.2"), Port: 2000}

	a := NewAgent("0", Controlling, "ufragA", "pwA")
	b := NewAgent("0", Controlled, "ufragB", "pwB")

	a.SetRemoteCredentials("ufragB", "pwB")
	b.SetRemoteCredentials("ufragA", "pwA")

	hostA := NewHostCandidate(a.NextBaseID(), 1, addrA)
	hostB := NewHostCandidate(b.NextBaseID(), 1, addrB)

	a.AddLocalCandidate(hostA)
	a.AddRemoteCandidate(hostB)
	b.AddLocalCandidate(hostB)
	b.AddRemoteCandidate(hostA)

	pumpAgents(t, a, b, addrA, addrB)

	pa, ok := a.SelectedPair()
	require.True(t, ok)
	pb, ok := b.SelectedPair()
	require.True(t, ok)

	assert.Equal(t, addrB.IP.String(), pa.Remote.IP.String())
	assert.Equal(t, addrA.IP.String(), pb.Remote.IP.String())
}
