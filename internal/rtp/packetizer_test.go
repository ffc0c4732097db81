package rtp

import "testing"

func TestPacketizeSmallFrameYieldsOnePacket(t *testing.T) {
	pz := NewPacketizer(1, 96)
	pz.MTU = 1200
	packets := pz.Packetize([]byte("small payload"), 1000)
	if len(packets) != 1 {
		t.Fatalf("got %d packets, want 1", len(packets))
	}
	if !packets[0].Header.Marker {
		t.Fatal("expected marker bit set on the only packet")
	}
}

func TestPacketizeLargeFrameSplitsAcrossPackets(t *testing.T) {
	pz := NewPacketizer(1, 96)
	pz.MTU = 100
	payload := make([]byte, 250)
	for i := range payload {
		payload[i] = byte(i)
	}
	packets := pz.Packetize(payload, 2000)
	if len(packets) != 3 {
		t.Fatalf("got %d packets, want 3", len(packets))
	}
	for i, p := range packets {
		wantMarker := i == len(packets)-1
		if p.Header.Marker != wantMarker {
			t.Errorf("packet %d: marker = %v, want %v", i, p.Header.Marker, wantMarker)
		}
		if p.Header.Timestamp != 2000 {
			t.Errorf("packet %d: timestamp = %d, want 2000", i, p.Header.Timestamp)
		}
	}

	reassembled := append(append([]byte{}, packets[0].Payload...), packets[1].Payload...)
	reassembled = append(reassembled, packets[2].Payload...)
	if len(reassembled) != len(payload) {
		t.Fatalf("reassembled length = %d, want %d", len(reassembled), len(payload))
	}
}

func TestPacketizeSequenceNumbersIncrement(t *testing.T) {
	pz := NewPacketizer(1, 96)
	first := pz.Packetize([]byte("a"), 0)[0].Header.Sequence
	second := pz.Packetize([]byte("b"), 1)[0].Header.Sequence
	if second != first+1 {
		t.Fatalf("sequence did not increment: %d -> %d", first, second)
	}
}
