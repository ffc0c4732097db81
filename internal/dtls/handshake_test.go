package dtls

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pumpHandshake exchanges datagrams between a client and server Connection
// until both report the handshake complete, or the round budget is
// exhausted.
func pumpHandshake(t *testing.T, client, server *Connection) {
	t.Helper()
	now := time.Now()
	for round := 0; round < 20; round++ {
		progressed := false
		for {
			d, ok := client.PollTransmit()
			if !ok {
				break
			}
			progressed = true
			require.NoError(t, server.HandleRecord(now, d))
		}
		for {
			d, ok := server.PollTransmit()
			if !ok {
				break
			}
			progressed = true
			require.NoError(t, client.HandleRecord(now, d))
		}
		if client.IsHandshakeComplete() && server.IsHandshakeComplete() {
			return
		}
		if !progressed {
			now = now.Add(70 * time.Second) // force retransmit backoff past the 60s ceiling
			require.NoError(t, client.HandleTimeout(now))
			require.NoError(t, server.HandleTimeout(now))
		}
	}
	t.Fatal("handshake did not complete within round budget")
}

func TestHandshakeCompletesAndDerivesMatchingKeyingMaterial(t *testing.T) {
	clientCfg := &Config{SRTPProfiles: []uint16{1}}
	serverCfg := &Config{SRTPProfiles: []uint16{1}}

	client, err := NewClient(clientCfg)
	require.NoError(t, err)
	server, err := NewServer(serverCfg)
	require.NoError(t, err)

	require.NoError(t, client.Start(time.Now()))
	pumpHandshake(t, client, server)

	assert.True(t, client.IsHandshakeComplete())
	assert.True(t, server.IsHandshakeComplete())
	assert.EqualValues(t, 1, client.NegotiatedSRTPProfile())
	assert.EqualValues(t, 1, server.NegotiatedSRTPProfile())

	clientKM, err := client.ExportKeyingMaterial(60)
	require.NoError(t, err)
	serverKM, err := server.ExportKeyingMaterial(60)
	require.NoError(t, err)
	assert.Equal(t, clientKM, serverKM)
}

func TestApplicationDataRoundTripsAfterHandshake(t *testing.T) {
	client, err := NewClient(&Config{})
	require.NoError(t, err)
	server, err := NewServer(&Config{})
	require.NoError(t, err)

	require.NoError(t, client.Start(time.Now()))
	pumpHandshake(t, client, server)

	require.NoError(t, client.Write([]byte("hello server")))
	d, ok := client.PollTransmit()
	require.True(t, ok)
	require.NoError(t, server.HandleRecord(time.Now(), d))

	got, ok := server.Read()
	require.True(t, ok)
	assert.Equal(t, "hello server", string(got))
}

func TestWriteBeforeHandshakeCompletesIsRejected(t *testing.T) {
	client, err := NewClient(&Config{})
	require.NoError(t, err)
	err = client.Write([]byte("too early"))
	assert.Error(t, err)
}

func TestSequenceOverflowIsAHardError(t *testing.T) {
	var c Connection
	c.writeSeq = map[uint16]uint64{0: MaxSequenceNumber}
	c.writeCiph = map[uint16]CipherSuite{0: nullCipherSuite{}}
	_, err := c.encryptRecord(ContentTypeApplicationData, []byte("x"))
	assert.Equal(t, errSequenceOverflow, err)
}
