package rtcp

import (
	"reflect"
	"testing"
)

func roundTrip(t *testing.T, name string, p Packet, decoded Packet) {
	t.Helper()
	data, err := p.Marshal()
	if err != nil {
		t.Fatalf("%s: Marshal: %v", name, err)
	}
	if err := decoded.Unmarshal(data); err != nil {
		t.Fatalf("%s: Unmarshal: %v", name, err)
	}
	if got, want := decoded, p; !reflect.DeepEqual(got, want) {
		t.Fatalf("%s: round trip: got %#v, want %#v", name, got, want)
	}
}

func TestReceiverReportRoundTrip(t *testing.T) {
	rr := &ReceiverReport{
		SSRC: 0x01020304,
		Reports: []ReportBlock{
			{SSRC: 0x05060708, FractionLost: 10, TotalLost: 100, LastSequenceNumber: 5000, Jitter: 42, LastSenderReport: 77, Delay: 99},
		},
	}
	roundTrip(t, "ReceiverReport", rr, new(ReceiverReport))
}

func TestSenderReportRoundTrip(t *testing.T) {
	sr := &SenderReport{
		SSRC:        0xaabbccdd,
		NTPTime:     1234567890123,
		RTPTime:     4242,
		PacketCount: 10,
		OctetCount:  1500,
		Reports: []ReportBlock{
			{SSRC: 0x11223344, FractionLost: 1, TotalLost: 2, LastSequenceNumber: 3, Jitter: 4, LastSenderReport: 5, Delay: 6},
		},
	}
	roundTrip(t, "SenderReport", sr, new(SenderReport))
}

func TestSourceDescriptionRoundTrip(t *testing.T) {
	sdes := &SourceDescription{
		Chunks: []SourceDescriptionChunk{
			{
				Source: 0x11111111,
				Items: []SourceDescriptionItem{
					{Type: SDESCNAME, Text: "alice@example.com"},
				},
			},
			{
				Source: 0x22222222,
				Items: []SourceDescriptionItem{
					{Type: SDESCNAME, Text: "b"},
					{Type: SDESNote, Text: "screen share"},
				},
			},
		},
	}
	roundTrip(t, "SourceDescription", sdes, new(SourceDescription))
}

func TestGoodbyeRoundTrip(t *testing.T) {
	bye := &Goodbye{Sources: []uint32{1, 2, 3}, Reason: "camera switched off"}
	roundTrip(t, "Goodbye", bye, new(Goodbye))
}

func TestGoodbyeNoReasonRoundTrip(t *testing.T) {
	bye := &Goodbye{Sources: []uint32{42}}
	roundTrip(t, "Goodbye/no-reason", bye, new(Goodbye))
}

func TestTransportLayerNackRoundTrip(t *testing.T) {
	nack := &TransportLayerNack{
		Sender: 1,
		Media:  2,
		Nacks: []NackPair{
			{PacketID: 100, LostPackets: 0x0003},
			{PacketID: 200, LostPackets: 0},
		},
	}
	roundTrip(t, "TransportLayerNack", nack, new(TransportLayerNack))
}

func TestNackPairPacketList(t *testing.T) {
	n := NackPair{PacketID: 10, LostPackets: 0b101}
	got := n.PacketList()
	want := []uint16{10, 11, 13}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("PacketList: got %v, want %v", got, want)
	}
}

func TestPictureLossIndicationRoundTrip(t *testing.T) {
	pli := &PictureLossIndication{Sender: 7, Media: 8}
	roundTrip(t, "PictureLossIndication", pli, new(PictureLossIndication))
}

func TestFullIntraRequestRoundTrip(t *testing.T) {
	fir := &FullIntraRequest{
		Sender: 1,
		Media:  2,
		Entries: []FIREntry{
			{SSRC: 3, SequenceNumber: 1},
			{SSRC: 4, SequenceNumber: 2},
		},
	}
	roundTrip(t, "FullIntraRequest", fir, new(FullIntraRequest))
}

func TestReceiverEstimatedMaximumBitrateRoundTrip(t *testing.T) {
	remb := &ReceiverEstimatedMaximumBitrate{
		Sender:  1,
		Bitrate: 1000000,
		SSRCs:   []uint32{2, 3},
	}
	roundTrip(t, "REMB", remb, new(ReceiverEstimatedMaximumBitrate))
}

func TestUnmarshalDispatchesByType(t *testing.T) {
	rr := &ReceiverReport{SSRC: 1}
	data, err := rr.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	p, h, err := Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if h.Type != TypeReceiverReport {
		t.Fatalf("got type %v, want ReceiverReport", h.Type)
	}
	if _, ok := p.(*ReceiverReport); !ok {
		t.Fatalf("got %T, want *ReceiverReport", p)
	}
}
