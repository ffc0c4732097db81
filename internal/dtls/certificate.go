package dtls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"time"

	"github.com/pkg/errors"
)

// certificateLifetime matches the short validity window WebRTC endpoints
// conventionally use for their self-signed DTLS certificates: identity is
// carried by the SDP fingerprint, not by chain-of-trust expiry.
const certificateLifetime = 30 * 24 * time.Hour

// GenerateSelfSigned creates a fresh ECDSA P-256 self-signed certificate
// suitable for Config.CertificateDER, along with the private key needed to
// sign a CertificateVerify via ECDSASigner.
func GenerateSelfSigned() (der []byte, priv *ecdsa.PrivateKey, err error) {
	priv, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, errors.Wrap(err, "dtls: generating certificate key")
	}

	serialLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, err := rand.Int(rand.Reader, serialLimit)
	if err != nil {
		return nil, nil, errors.Wrap(err, "dtls: generating certificate serial number")
	}

	notBefore := time.Now()
	template := x509.Certificate{
		SerialNumber:       serial,
		Subject:            pkix.Name{CommonName: "WebRTC"},
		NotBefore:          notBefore,
		NotAfter:           notBefore.Add(certificateLifetime),
		SignatureAlgorithm: x509.ECDSAWithSHA256,
	}

	der, err = x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return nil, nil, errors.Wrap(err, "dtls: creating self-signed certificate")
	}
	return der, priv, nil
}

// Fingerprint computes the SHA-256 fingerprint of a DER-encoded certificate
// in the colon-separated uppercase hex form carried by SDP's a=fingerprint
// attribute (RFC 8122).
func Fingerprint(der []byte) string {
	return fingerprint(der)
}

// FingerprintsMatch compares a received peer certificate fingerprint against
// the one advertised in the remote description's a=fingerprint attribute.
// WebRTC authenticates the DTLS peer this way rather than by certificate
// chain validation (see Signer's doc comment).
func FingerprintsMatch(der []byte, sdpFingerprint string) bool {
	return fingerprint(der) == sdpFingerprint
}

// ECDSASigner signs CertificateVerify transcript hashes with an ECDSA
// private key, for a Config that wants to present one (most WebRTC stacks
// skip this and rely on SDP fingerprint comparison instead, but the
// interface exists for peers that verify CertificateVerify strictly).
type ECDSASigner struct {
	PrivateKey *ecdsa.PrivateKey
}

func (s *ECDSASigner) Sign(transcriptHash []byte) ([]byte, error) {
	digest := sha256.Sum256(transcriptHash)
	return ecdsa.SignASN1(rand.Reader, s.PrivateKey, digest[:])
}
