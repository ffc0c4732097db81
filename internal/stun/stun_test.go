package stun

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindingRequestRoundTrip(t *testing.T) {
	req := NewBindingRequest("")
	req.AddUsername("BOB:ALICE")
	req.AddPriority(12345)
	req.AddIceControlling(0xdeadbeef)
	req.AddMessageIntegrity("pwd")
	req.AddFingerprint()

	parsed, err := Parse(req.Bytes())
	require.NoError(t, err)
	require.NotNil(t, parsed)

	assert.Equal(t, ClassRequest, parsed.Class)
	assert.Equal(t, BindingMethod, parsed.Method)
	assert.Equal(t, "BOB:ALICE", parsed.Username())
	p, ok := parsed.Priority()
	require.True(t, ok)
	assert.EqualValues(t, 12345, p)
	assert.True(t, parsed.IsIceControlling())
	assert.True(t, parsed.VerifyMessageIntegrity("pwd"))
}

func TestCheckMessageRequiresUsernameAndPriority(t *testing.T) {
	msg := NewBindingRequest("")
	msg.AddIceControlling(1)
	msg.AddMessageIntegrity("pwd")

	err := CheckMessage(msg, "pwd")
	require.Error(t, err)
}

func TestCheckMessageRejectsBothControllingAndControlled(t *testing.T) {
	msg := NewBindingRequest("")
	msg.AddUsername("u")
	msg.AddPriority(1)
	msg.AddIceControlling(1)
	msg.AddIceControlled(2)
	msg.AddMessageIntegrity("pwd")

	err := CheckMessage(msg, "pwd")
	require.Error(t, err)
}

func TestCheckMessageRejectsControlledWithUseCandidate(t *testing.T) {
	msg := NewBindingRequest("")
	msg.AddUsername("u")
	msg.AddPriority(1)
	msg.AddIceControlled(1)
	msg.AddUseCandidate()
	msg.AddMessageIntegrity("pwd")

	err := CheckMessage(msg, "pwd")
	require.Error(t, err)
}

func TestCheckMessageAccepts(t *testing.T) {
	msg := NewBindingRequest("")
	msg.AddUsername("u")
	msg.AddPriority(1)
	msg.AddIceControlling(1)
	msg.AddMessageIntegrity("pwd")

	require.NoError(t, CheckMessage(msg, "pwd"))
}

func TestXorMappedAddressRoundTrip(t *testing.T) {
	msg := NewBindingRequest("")
	addr := &net.UDPAddr{IP: net.ParseIP("192.168.1.5").To4(), Port: 54321}
	msg.SetXorMappedAddress(addr)

	parsed, err := Parse(msg.Bytes())
	require.NoError(t, err)
	mapped := parsed.MappedAddress()
	require.NotNil(t, mapped)
	assert.Equal(t, addr.Port, mapped.Port)
	assert.True(t, addr.IP.Equal(mapped.IP))
}

func TestParseRejectsNonStunData(t *testing.T) {
	msg, err := Parse([]byte{0xff, 0xff, 0, 0})
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestIsMessage(t *testing.T) {
	req := NewBindingRequest("")
	assert.True(t, IsMessage(req.Bytes()))
	assert.False(t, IsMessage([]byte{0x80, 0, 0, 0}))
}
