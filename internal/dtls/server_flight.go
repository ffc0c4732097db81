package dtls

import (
	"crypto/rand"
	"time"
)

// serverHandle dispatches one reassembled handshake message according to
// the server's current flight (§4.E). The server is idle (FlightPreparing,
// currentFlight unset) until the client's first ClientHello arrives.
func (c *Connection) serverHandle(now time.Time, msgType HandshakeType, msgSeq uint16, body []byte) error {
	if c.cookie == nil && msgType == HandshakeTypeClientHello {
		return c.serverReceiveInitialClientHello(now, body)
	}

	switch c.currentFlight {
	case Flight0:
		if msgType != HandshakeTypeClientHello {
			return nil
		}
		ch, err := UnmarshalClientHello(body)
		if err != nil {
			return nil
		}
		if string(ch.Cookie) != string(c.cookie) {
			return nil // stale or forged retry; keep waiting
		}
		cr := make([]byte, 32)
		cr[0] = byte(ch.Random.unixTime >> 24)
		cr[1] = byte(ch.Random.unixTime >> 16)
		cr[2] = byte(ch.Random.unixTime >> 8)
		cr[3] = byte(ch.Random.unixTime)
		copy(cr[4:], ch.Random.bytes[:])
		c.clientRandom = cr
		// This ClientHello (the one carrying the cookie) does contribute
		// to the transcript, unlike the initial cookie-less one.
		c.cache.Push(HandshakeTypeClientHello, msgSeq, body)
		return c.serverSendFlight2(now)

	case Flight2:
		switch msgType {
		case HandshakeTypeCertificate:
			c.peerCertDER = body
		case HandshakeTypeClientKeyExchange:
			secret, err := c.cfg.KeyAgreement.DeriveMasterSecret(body, c.clientRandom, c.serverRandom)
			if err != nil {
				return err
			}
			c.peerPublicKey = body
			c.masterSecret = secret
			if err := c.pendingSuite.Init(c.masterSecret, c.clientRandom, c.serverRandom, false); err != nil {
				return err
			}
		case HandshakeTypeCertificateVerify:
			// Not cryptographically verified (Non-goal); retained only as
			// an opaque transcript contribution.
		case HandshakeTypeFinished:
			f := UnmarshalFinished(body)
			if !c.verifyFinished("client finished", f.VerifyData) {
				return &AlertError{Alert: Alert{Level: AlertLevelFatal, Description: AlertDecryptError}}
			}
			c.cache.Push(HandshakeTypeFinished, msgSeq, f.VerifyData)
			if err := c.sendFinishFlight(now, Flight4, nil, "server finished"); err != nil {
				return err
			}
			c.handshakeDone = true
			c.flightState = FlightFinished
			return nil
		}
		return nil
	}
	return nil
}

// serverReceiveInitialClientHello handles the very first, cookie-less
// ClientHello: generates a stateless cookie and replies with
// HelloVerifyRequest (Flight0). Neither message contributes to the
// transcript hash (RFC 6347 §4.2.1).
func (c *Connection) serverReceiveInitialClientHello(now time.Time, body []byte) error {
	if _, err := UnmarshalClientHello(body); err != nil {
		return nil
	}
	cookie := make([]byte, 16)
	if _, err := rand.Read(cookie); err != nil {
		return err
	}
	c.cookie = cookie
	hvr := &HelloVerifyRequest{Cookie: cookie}
	return c.sendFlight(now, Flight0, []handshakeOut{{HandshakeTypeHelloVerifyRequest, hvr.Marshal()}})
}

// serverSendFlight2 builds ServerHello, optional Certificate,
// ServerKeyExchange, and ServerHelloDone.
func (c *Connection) serverSendFlight2(now time.Time) error {
	serverRandomBytes := newRandomBytes()
	c.serverRandom = serverRandomBytes
	srvRandom := randomFromBytes(serverRandomBytes)

	c.negotiatedSRTPProfile = 0
	if len(c.cfg.SRTPProfiles) > 0 {
		c.negotiatedSRTPProfile = c.cfg.SRTPProfiles[0]
	}

	sh := &ServerHello{
		Random:            srvRandom,
		CipherSuite:       c.cfg.CipherSuite.ID(),
		CompressionMethod: 0,
		UseSRTPProfile:    c.negotiatedSRTPProfile,
	}

	messages := []handshakeOut{{HandshakeTypeServerHello, sh.Marshal()}}
	if c.cfg.CertificateDER != nil {
		messages = append(messages, handshakeOut{HandshakeTypeCertificate, c.cfg.CertificateDER})
	}
	pub, err := c.cfg.KeyAgreement.PublicKeyMessage()
	if err != nil {
		return err
	}
	messages = append(messages, handshakeOut{HandshakeTypeServerKeyExchange, pub})
	messages = append(messages, handshakeOut{HandshakeTypeServerHelloDone, nil})

	return c.sendFlight(now, Flight2, messages)
}
