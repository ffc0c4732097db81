package srtp

import (
	"crypto/aes"
	"crypto/cipher"
)

// SRTP key derivation labels (RFC 3711 §4.3, Table 2).
const (
	labelRTPEncryption  byte = 0x00
	labelRTPAuth        byte = 0x01
	labelRTPSalt        byte = 0x02
	labelRTCPEncryption byte = 0x03
	labelRTCPAuth       byte = 0x04
	labelRTCPSalt       byte = 0x05
)

// deriveKey implements the SRTP key derivation function (RFC 3711 §4.3): the
// session key is PRF_n(master_key, key_id XOR master_salt), where key_id
// encodes the label and the key-derivation-rate counter r (r is 0 here,
// since this engine does not use periodic re-keying).
func deriveKey(masterKey, masterSalt []byte, label byte, n int) []byte {
	x := append([]byte(nil), masterSalt...)
	x[len(x)-7] ^= label

	block, err := aes.NewCipher(masterKey)
	if err != nil {
		panic(err) // invalid master key length, a caller bug
	}
	iv := padRight(x, aes.BlockSize)
	stream := cipher.NewCTR(block, iv)

	key := make([]byte, n)
	stream.XORKeyStream(key, key)
	return key
}

// padRight pads b with zeros on the right up to the desired size, without
// mutating the input.
func padRight(b []byte, n int) []byte {
	if len(b) >= n {
		return b
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}
