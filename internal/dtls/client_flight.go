package dtls

import "time"

// clientHandle dispatches one reassembled handshake message according to
// the client's current flight (§4.E).
func (c *Connection) clientHandle(now time.Time, msgType HandshakeType, msgSeq uint16, body []byte) error {
	switch c.currentFlight {
	case Flight1:
		if msgType != HandshakeTypeHelloVerifyRequest {
			return nil
		}
		hvr, err := UnmarshalHelloVerifyRequest(body)
		if err != nil {
			return nil
		}
		c.cookie = hvr.Cookie
		ch := NewClientHello([]uint16{c.cfg.CipherSuite.ID()}, c.cfg.SRTPProfiles)
		ch.Random = randomFromBytes(c.clientRandom)
		ch.Cookie = c.cookie
		return c.sendFlight(now, Flight3, []handshakeOut{{HandshakeTypeClientHello, ch.Marshal()}})

	case Flight3:
		switch msgType {
		case HandshakeTypeServerHello:
			sh, err := UnmarshalServerHello(body)
			if err != nil {
				return nil
			}
			serverRandom := make([]byte, 32)
			serverRandom[0] = byte(sh.Random.unixTime >> 24)
			serverRandom[1] = byte(sh.Random.unixTime >> 16)
			serverRandom[2] = byte(sh.Random.unixTime >> 8)
			serverRandom[3] = byte(sh.Random.unixTime)
			copy(serverRandom[4:], sh.Random.bytes[:])
			c.serverRandom = serverRandom
			c.negotiatedSRTPProfile = sh.UseSRTPProfile
		case HandshakeTypeCertificate:
			c.peerCertDER = body
		case HandshakeTypeServerKeyExchange:
			c.peerPublicKey = body
		case HandshakeTypeCertificateRequest:
			// Client certificate request: honored opportunistically in
			// Flight5 if cfg.CertificateDER/Signer are set; otherwise
			// ignored (anonymous ECDHE remains legal under RFC 6347).
		case HandshakeTypeServerHelloDone:
			return c.clientFinishFlight2(now)
		}
		return nil

	case Flight5:
		if msgType != HandshakeTypeFinished {
			return nil
		}
		f := UnmarshalFinished(body)
		if !c.verifyFinished("server finished", f.VerifyData) {
			return &AlertError{Alert: Alert{Level: AlertLevelFatal, Description: AlertDecryptError}}
		}
		c.cache.Push(HandshakeTypeFinished, msgSeq, f.VerifyData)
		c.handshakeDone = true
		c.flightState = FlightFinished
		return nil
	}
	return nil
}

// clientFinishFlight2 computes the master secret now that both hello
// randoms and the peer's ephemeral public key are known, then sends
// Flight5: optional client Certificate, ClientKeyExchange, optional
// CertificateVerify, ChangeCipherSpec, Finished.
func (c *Connection) clientFinishFlight2(now time.Time) error {
	secret, err := c.cfg.KeyAgreement.DeriveMasterSecret(c.peerPublicKey, c.clientRandom, c.serverRandom)
	if err != nil {
		return err
	}
	c.masterSecret = secret
	if err := c.pendingSuite.Init(c.masterSecret, c.clientRandom, c.serverRandom, true); err != nil {
		return err
	}

	var pre []handshakeOut
	if c.cfg.CertificateDER != nil {
		pre = append(pre, handshakeOut{HandshakeTypeCertificate, c.cfg.CertificateDER})
	}
	pub, err := c.cfg.KeyAgreement.PublicKeyMessage()
	if err != nil {
		return err
	}
	pre = append(pre, handshakeOut{HandshakeTypeClientKeyExchange, pub})
	if c.cfg.Signer != nil {
		sessionHash := c.cache.SessionHash()
		sig, err := c.cfg.Signer.Sign(sessionHash[:])
		if err != nil {
			return err
		}
		pre = append(pre, handshakeOut{HandshakeTypeCertificateVerify, sig})
	}
	return c.sendFinishFlight(now, Flight5, pre, "client finished")
}
