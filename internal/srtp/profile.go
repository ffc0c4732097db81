package srtp

// Profile is a DTLS-SRTP protection profile identifier, as carried in the
// use_srtp extension (RFC 5764 §4.1.1) and registered in RFC 7714 §14.2 for
// the AEAD profiles.
type Profile uint16

const (
	ProfileAES128CMHMACSHA1_80 Profile = 0x0001
	ProfileAES128CMHMACSHA1_32 Profile = 0x0002
	ProfileAEADAES128GCM       Profile = 0x0007
	ProfileAEADAES256GCM       Profile = 0x0008
)

// IsAEAD reports whether the profile uses an AEAD cipher (RFC 7714) rather
// than AES-CM encryption with a separate HMAC-SHA1 authentication tag
// (RFC 3711 §4).
func (p Profile) IsAEAD() bool {
	return p == ProfileAEADAES128GCM || p == ProfileAEADAES256GCM
}

// KeyLength returns the master key length in bytes for the profile.
func (p Profile) KeyLength() int {
	if p == ProfileAEADAES256GCM {
		return 32
	}
	return 16
}

// SaltLength returns the master salt length in bytes. AEAD profiles use a
// 96-bit salt sized to match the GCM nonce directly; the legacy CM profiles
// use a 112-bit salt that gets left-shifted by 16 bits when forming the
// 128-bit AES-CM counter block (RFC 3711 §4.1.1, RFC 7714 §8.1).
func (p Profile) SaltLength() int {
	if p.IsAEAD() {
		return 12
	}
	return 14
}

// AuthTagLength returns the length in bytes of the authentication tag
// appended to protected packets.
func (p Profile) AuthTagLength() int {
	switch p {
	case ProfileAES128CMHMACSHA1_32:
		return 4
	case ProfileAEADAES128GCM, ProfileAEADAES256GCM:
		return 16
	default:
		return 10
	}
}
