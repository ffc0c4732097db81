package srtp

// ExtractKeys splits the keying material exported from a completed DTLS
// handshake (RFC 5764 §4.2, export label "EXTRACTOR-dtls_srtp") into the
// client and server SRTP master key/salt pairs:
//
//	client_write_SRTP_master_key
//	server_write_SRTP_master_key
//	client_write_SRTP_master_salt
//	server_write_SRTP_master_salt
//
// isClient selects which pair is "local" (used to protect outbound packets)
// versus "remote" (used to unprotect inbound packets).
func ExtractKeys(profile Profile, keyingMaterial []byte, isClient bool) (localKey, localSalt, remoteKey, remoteSalt []byte, err error) {
	keyLen := profile.KeyLength()
	saltLen := profile.SaltLength()
	want := 2*keyLen + 2*saltLen
	if len(keyingMaterial) < want {
		return nil, nil, nil, nil, ErrPacketTooShort
	}

	clientKey := keyingMaterial[0:keyLen]
	serverKey := keyingMaterial[keyLen : 2*keyLen]
	clientSalt := keyingMaterial[2*keyLen : 2*keyLen+saltLen]
	serverSalt := keyingMaterial[2*keyLen+saltLen : 2*keyLen+2*saltLen]

	if isClient {
		return clientKey, clientSalt, serverKey, serverSalt, nil
	}
	return serverKey, serverSalt, clientKey, clientSalt, nil
}
