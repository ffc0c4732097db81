package dtls

import (
	"crypto/rand"
	"crypto/sha256"

	"github.com/pkg/errors"
	"golang.org/x/crypto/curve25519"
)

// KeyAgreement is the external key-exchange capability a Connection uses to
// turn ServerKeyExchange/ClientKeyExchange into a shared pre-master secret.
// Certificate-based authentication of the exchanged public key is a
// Non-goal here (DTLS-SRTP endpoints authenticate out of band, by comparing
// the peer certificate's fingerprint against the one carried in SDP) — this
// interface only concerns itself with producing a shared secret.
type KeyAgreement interface {
	// PublicKeyMessage returns this side's ephemeral public key, to be
	// carried as the body of ServerKeyExchange or ClientKeyExchange.
	PublicKeyMessage() ([]byte, error)

	// DeriveMasterSecret combines our private scalar with the peer's
	// public key bytes into the RFC 5246 §8.1 master secret.
	DeriveMasterSecret(peerPublic, clientRandom, serverRandom []byte) ([]byte, error)
}

// X25519KeyAgreement implements KeyAgreement using Curve25519 ECDHE
// (RFC 7748), the key-exchange group WebRTC stacks commonly negotiate for
// DTLS 1.2.
type X25519KeyAgreement struct {
	private [32]byte
	public  [32]byte
}

// NewX25519KeyAgreement generates a fresh ephemeral key pair.
func NewX25519KeyAgreement() (*X25519KeyAgreement, error) {
	var kx X25519KeyAgreement
	if _, err := rand.Read(kx.private[:]); err != nil {
		return nil, errors.Wrap(err, "dtls: generating x25519 scalar")
	}
	// Clamp per RFC 7748 §5.
	kx.private[0] &= 248
	kx.private[31] &= 127
	kx.private[31] |= 64

	pub, err := curve25519.X25519(kx.private[:], curve25519.Basepoint)
	if err != nil {
		return nil, errors.Wrap(err, "dtls: computing x25519 public key")
	}
	copy(kx.public[:], pub)
	return &kx, nil
}

func (kx *X25519KeyAgreement) PublicKeyMessage() ([]byte, error) {
	return append([]byte{}, kx.public[:]...), nil
}

func (kx *X25519KeyAgreement) DeriveMasterSecret(peerPublic, clientRandom, serverRandom []byte) ([]byte, error) {
	if len(peerPublic) != 32 {
		return nil, errors.Errorf("dtls: invalid x25519 peer public key length %d", len(peerPublic))
	}
	preMasterSecret, err := curve25519.X25519(kx.private[:], peerPublic)
	if err != nil {
		return nil, errors.Wrap(err, "dtls: x25519 shared secret")
	}
	seed := append(append([]byte{}, clientRandom...), serverRandom...)
	return prf(preMasterSecret, "master secret", seed, 48), nil
}

// fingerprint computes the SHA-256 fingerprint of a DER-encoded certificate,
// formatted as colon-separated uppercase hex octets (the format carried in
// SDP's a=fingerprint line), for comparison against the remote description.
func fingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	const hexDigits = "0123456789ABCDEF"
	out := make([]byte, 0, len(sum)*3-1)
	for i, b := range sum {
		if i > 0 {
			out = append(out, ':')
		}
		out = append(out, hexDigits[b>>4], hexDigits[b&0xf])
	}
	return string(out)
}
