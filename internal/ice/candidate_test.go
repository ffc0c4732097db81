package ice

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCandidateRoundTrips(t *testing.T) {
	desc := "0 1 udp 123456789 192.168.1.1 12345 typ host"
	c, err := ParseCandidate(desc)
	assert.NoError(t, err)

	assert.Equal(t, "0", c.Foundation)
	assert.Equal(t, 1, c.Component)
	assert.Equal(t, "udp", c.Protocol)
	assert.Equal(t, "192.168.1.1", c.IP.String())
	assert.Equal(t, 12345, c.Port)
	assert.EqualValues(t, 123456789, c.Priority)
	assert.Equal(t, TypeHost, c.Type)
	assert.Equal(t, desc, c.SDPString())
}

func TestParseCandidateWithRelatedAddress(t *testing.T) {
	desc := "a1b2c3d4 1 udp 100 203.0.113.4 4000 typ srflx raddr 192.168.1.1 rport 5000"
	c, err := ParseCandidate(desc)
	assert.NoError(t, err)
	assert.Equal(t, TypeServerReflexive, c.Type)
	assert.Equal(t, "192.168.1.1", c.RelatedAddress.String())
	assert.Equal(t, 5000, c.RelatedPort)
	assert.Equal(t, desc, c.SDPString())
}

func TestComputePriorityOrdersTypesCorrectly(t *testing.T) {
	host := ComputePriority(TypeHost, 1)
	srflx := ComputePriority(TypeServerReflexive, 1)
	relay := ComputePriority(TypeRelay, 1)
	assert.Greater(t, host, srflx)
	assert.Greater(t, srflx, relay)
}

func TestComputePriorityPrefersLowerComponent(t *testing.T) {
	rtp := ComputePriority(TypeHost, 1)
	rtcp := ComputePriority(TypeHost, 2)
	assert.Greater(t, rtp, rtcp)
}

func TestNewHostCandidateFoundationStableForSameBase(t *testing.T) {
	addr := &net.UDPAddr{IP: net.ParseIP("10.0.0.5"), Port: 1000}
	c1 := NewHostCandidate(1, 1, addr)
	c2 := NewHostCandidate(1, 2, addr)
	assert.Equal(t, c1.Foundation, c2.Foundation, "same base and type should share a foundation regardless of component")
}

func TestPeerPriorityMatchesPeerReflexiveFormula(t *testing.T) {
	addr := &net.UDPAddr{IP: net.ParseIP("10.0.0.5"), Port: 1000}
	host := NewHostCandidate(1, 1, addr)
	assert.Equal(t, ComputePriority(TypePeerReflexive, 1), host.PeerPriority())
}
