package classify

import "testing"

func TestClassifyBoundaries(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want Protocol
	}{
		{"stun low", []byte{0x00, 0, 0, 0}, STUN},
		{"stun high", []byte{0x03, 0, 0, 0}, STUN},
		{"dtls low", []byte{0x14}, DTLS},
		{"dtls high", []byte{0x19}, DTLS},
		{"turn channel", []byte{0x40}, TURNChannel},
		{"turn channel high", []byte{0x5F}, TURNChannel},
		{"srtcp", []byte{0x80, 200}, SRTCP},
		{"srtcp boundary low", []byte{0x81, 64}, SRTCP},
		{"srtcp boundary high", []byte{0x81, 95 | 0x80}, SRTCP},
		{"srtp", []byte{0x80, 96}, SRTP},
		{"srtp boundary", []byte{0x81, 63}, SRTP},
		{"empty", []byte{}, Discard},
		{"gap", []byte{0x10}, Discard},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Classify(c.data); got != c.want {
				t.Errorf("Classify(%v) = %v, want %v", c.data, got, c.want)
			}
		})
	}
}
