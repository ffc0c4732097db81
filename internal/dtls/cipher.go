package dtls

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"
)

// CipherSuite is the external crypto capability a DTLS connection is built
// around (Non-goal: "DTLS cryptographic primitives beyond the CipherSuite
// capability contract"). Everything above this interface — flights, epochs,
// record framing — is this package's concern; everything below it
// (AEAD construction, key agreement, certificate verification) belongs to
// the concrete implementation supplied in Config.CipherSuite.
type CipherSuite interface {
	// ID is the two-byte IANA cipher suite identifier.
	ID() uint16

	// IsInitialized reports whether key material has been derived yet
	// (false before the handshake's key exchange completes).
	IsInitialized() bool

	// Init derives the read/write keys for this suite from the negotiated
	// master secret and client/server randoms (RFC 5246 §6.3).
	Init(masterSecret, clientRandom, serverRandom []byte, isClient bool) error

	// Encrypt seals a plaintext record fragment for transmission at the
	// given epoch/sequence number, returning ciphertext ready to follow
	// the 13-byte record header on the wire.
	Encrypt(epoch uint16, seq uint64, contentType ContentType, plaintext []byte) ([]byte, error)

	// Decrypt opens a ciphertext record fragment, verifying any embedded
	// integrity check is valid for the given epoch/sequence number.
	Decrypt(epoch uint16, seq uint64, contentType ContentType, ciphertext []byte) ([]byte, error)
}

// nullCipherSuite is the epoch-0 identity "cipher": records are sent and
// received in the clear, used for the ClientHello/HelloVerifyRequest
// exchange before any keys exist.
type nullCipherSuite struct{}

func (nullCipherSuite) ID() uint16            { return 0x0000 }
func (nullCipherSuite) IsInitialized() bool   { return true }
func (nullCipherSuite) Init(_, _, _ []byte, _ bool) error { return nil }
func (nullCipherSuite) Encrypt(_ uint16, _ uint64, _ ContentType, p []byte) ([]byte, error) {
	return p, nil
}
func (nullCipherSuite) Decrypt(_ uint16, _ uint64, _ ContentType, c []byte) ([]byte, error) {
	return c, nil
}

// AEADCipherSuite is a CipherSuite built on an AES-GCM style AEAD keyed by a
// TLS 1.2 key block derived from the master secret (RFC 5246 §6.3). This is
// the concrete suite NewAEADCipherSuite128GCM returns; applications needing a
// different key agreement (e.g. an HSM-backed suite) implement CipherSuite
// directly instead.
type AEADCipherSuite struct {
	id         uint16
	keyLen     int
	saltLen    int
	writeKey   []byte
	readKey    []byte
	writeSalt  []byte
	readSalt   []byte
	writeAEAD  cipher.AEAD
	readAEAD   cipher.AEAD
	initialized bool
}

// NewAEADCipherSuite128GCM returns the TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256
// suite (IANA 0xC02B), the AEAD suite WebRTC implementations commonly
// negotiate for DTLS-SRTP.
func NewAEADCipherSuite128GCM() *AEADCipherSuite {
	return &AEADCipherSuite{id: 0xC02B, keyLen: 16, saltLen: 4}
}

func (s *AEADCipherSuite) ID() uint16          { return s.id }
func (s *AEADCipherSuite) IsInitialized() bool { return s.initialized }

func (s *AEADCipherSuite) Init(masterSecret, clientRandom, serverRandom []byte, isClient bool) error {
	// RFC 5246 §6.3 key_block: seed is server_random || client_random for
	// the key-expansion PRF (note the order reversal from the client/server
	// hello randoms themselves).
	seed := append(append([]byte{}, serverRandom...), clientRandom...)
	need := 2 * (s.keyLen + s.saltLen)
	block := prf(masterSecret, "key expansion", seed, need)

	clientWriteKey := block[0:s.keyLen]
	serverWriteKey := block[s.keyLen : 2*s.keyLen]
	off := 2 * s.keyLen
	clientWriteSalt := block[off : off+s.saltLen]
	serverWriteSalt := block[off+s.saltLen : off+2*s.saltLen]

	var writeKey, readKey, writeSalt, readSalt []byte
	if isClient {
		writeKey, readKey = clientWriteKey, serverWriteKey
		writeSalt, readSalt = clientWriteSalt, serverWriteSalt
	} else {
		writeKey, readKey = serverWriteKey, clientWriteKey
		writeSalt, readSalt = serverWriteSalt, clientWriteSalt
	}

	writeBlock, err := aes.NewCipher(writeKey)
	if err != nil {
		return errors.Wrap(err, "dtls: aes key schedule")
	}
	readBlock, err := aes.NewCipher(readKey)
	if err != nil {
		return errors.Wrap(err, "dtls: aes key schedule")
	}
	s.writeAEAD, err = cipher.NewGCM(writeBlock)
	if err != nil {
		return errors.Wrap(err, "dtls: gcm init")
	}
	s.readAEAD, err = cipher.NewGCM(readBlock)
	if err != nil {
		return errors.Wrap(err, "dtls: gcm init")
	}
	s.writeKey, s.readKey, s.writeSalt, s.readSalt = writeKey, readKey, writeSalt, readSalt
	s.initialized = true
	return nil
}

// nonce builds the 12-byte GCM nonce per RFC 5288 §3: 4-byte salt || 8-byte
// explicit part (here, epoch||sequence, matching the DTLS record counter).
func gcmNonce(salt []byte, epoch uint16, seq uint64) []byte {
	n := make([]byte, 12)
	copy(n[0:4], salt)
	n[4] = byte(epoch >> 8)
	n[5] = byte(epoch)
	n[6] = byte(seq >> 40)
	n[7] = byte(seq >> 32)
	n[8] = byte(seq >> 24)
	n[9] = byte(seq >> 16)
	n[10] = byte(seq >> 8)
	n[11] = byte(seq)
	return n
}

func (s *AEADCipherSuite) Encrypt(epoch uint16, seq uint64, ct ContentType, plaintext []byte) ([]byte, error) {
	if !s.initialized {
		return nil, errors.New("dtls: cipher suite not initialized")
	}
	nonce := gcmNonce(s.writeSalt, epoch, seq)
	aad := associatedData(epoch, seq, ct, len(plaintext))
	return s.writeAEAD.Seal(nil, nonce, plaintext, aad), nil
}

func (s *AEADCipherSuite) Decrypt(epoch uint16, seq uint64, ct ContentType, ciphertext []byte) ([]byte, error) {
	if !s.initialized {
		return nil, errors.New("dtls: cipher suite not initialized")
	}
	nonce := gcmNonce(s.readSalt, epoch, seq)
	aad := associatedData(epoch, seq, ct, len(ciphertext)-s.readAEAD.Overhead())
	return s.readAEAD.Open(nil, nonce, ciphertext, aad)
}

// associatedData mirrors TLS's additional authenticated data for the
// explicit-nonce AEAD record: seq_num || type || version || length.
func associatedData(epoch uint16, seq uint64, ct ContentType, plaintextLen int) []byte {
	ad := make([]byte, 13)
	ad[0] = byte(epoch >> 8)
	ad[1] = byte(epoch)
	ad[2] = byte(seq >> 40)
	ad[3] = byte(seq >> 32)
	ad[4] = byte(seq >> 24)
	ad[5] = byte(seq >> 16)
	ad[6] = byte(seq >> 8)
	ad[7] = byte(seq)
	ad[8] = byte(ct)
	ad[9] = byte(DTLS1_2 >> 8)
	ad[10] = byte(DTLS1_2)
	ad[11] = byte(plaintextLen >> 8)
	ad[12] = byte(plaintextLen)
	return ad
}

// prf implements the TLS 1.2 pseudo-random function (RFC 5246 §5): a single
// HMAC-SHA256-based P_hash expansion, P_hash(secret, label || seed).
func prf(secret []byte, label string, seed []byte, length int) []byte {
	ls := append([]byte(label), seed...)
	out := make([]byte, 0, length)
	a := hmacSum(secret, ls)
	for len(out) < length {
		out = append(out, hmacSum(secret, append(a, ls...))...)
		a = hmacSum(secret, a)
	}
	return out[:length]
}

func hmacSum(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// exporterLabel is the DTLS-SRTP keying material export label (RFC 5764
// §4.2), used by the peer connection driver to derive SRTP session keys
// once the handshake completes.
const exporterLabel = "EXTRACTOR-dtls_srtp"

// ExportKeyingMaterial derives `length` bytes of keying material from the
// master secret, per RFC 5705's keying-material exporter. The export is an
// HKDF expansion (RFC 5869) over the master secret, with the handshake
// randoms and export label folded into the HKDF info parameter; HKDF is the
// standard substitute this engine uses wherever an RFC calls for a
// TLS-exporter-shaped "extract fixed secret, expand to N bytes" primitive.
func ExportKeyingMaterial(masterSecret, clientRandom, serverRandom []byte, length int) []byte {
	info := append(append([]byte(exporterLabel), clientRandom...), serverRandom...)
	kdf := hkdf.Expand(sha256.New, masterSecret, info)
	out := make([]byte, length)
	if _, err := io.ReadFull(kdf, out); err != nil {
		panic(err) // hkdf.Expand only errors if length exceeds 255*hash size
	}
	return out
}
