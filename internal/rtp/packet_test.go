package rtp

import (
	"bytes"
	"reflect"
	"testing"
)

func TestPacketMarshalUnmarshalRoundTrip(t *testing.T) {
	p := Packet{
		Header: Header{
			Marker:      true,
			PayloadType: 96,
			Sequence:    42,
			Timestamp:   12345,
			SSRC:        0x1234,
		},
		Payload: []byte("some opus frame bytes"),
	}

	data, err := p.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	decoded, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(decoded.Header, p.Header) {
		t.Fatalf("header = %#v, want %#v", decoded.Header, p.Header)
	}
	if !bytes.Equal(decoded.Payload, p.Payload) {
		t.Fatalf("payload = %q, want %q", decoded.Payload, p.Payload)
	}
}
