package console

import "testing"

func TestEncodeDecodeFrameRoundTripMixedValues(t *testing.T) {
	raw, err := EncodeFrame(FrameREQ, 5,
		DValue{Kind: DInt, Int: 40},
		DValue{Kind: DString, Str: "hello world"},
		DValue{Kind: DBool, Bool: true},
		DValue{Kind: DNumber, Num: 3.5},
	)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	marker, opcode, values, err := DecodeFrame(raw)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if marker != FrameREQ || opcode != 5 {
		t.Fatalf("unexpected marker/opcode: %v %v", marker, opcode)
	}
	if values[0].Int != 40 || values[1].Str != "hello world" || !values[2].Bool || values[3].Num != 3.5 {
		t.Fatalf("round trip mismatch: %+v", values)
	}
}

func TestEncodeIntPicksSmallIntForLowValues(t *testing.T) {
	raw, err := EncodeFrame(FrameREQ, 0, DValue{Kind: DInt, Int: 10})
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	// marker, opcode, tag byte (small-int), EOM
	if len(raw) != 4 {
		t.Fatalf("expected 4-byte frame for small-int encoding, got %d: %x", len(raw), raw)
	}
}

func TestEncodeIntPicksWideIntForMidValues(t *testing.T) {
	raw, err := EncodeFrame(FrameREQ, 0, DValue{Kind: DInt, Int: 1000})
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	// marker, id, two-byte wide int, EOM
	if len(raw) != 5 || raw[2] < wideIntLo {
		t.Fatalf("expected 1000 as a two-byte wide int, got frame % x", raw)
	}
	_, _, values, err := DecodeFrame(raw)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if values[0].Int != 1000 {
		t.Fatalf("expected 1000, got %d", values[0].Int)
	}
}

func TestEncodeBufferRoundTrip(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5}
	raw, err := EncodeFrame(FrameNFY, 1, DValue{Kind: DBuffer, Buf: data})
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	_, _, values, err := DecodeFrame(raw)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if len(values[0].Buf) != 5 || values[0].Buf[4] != 5 {
		t.Fatalf("buffer round trip mismatch: %+v", values[0])
	}
}

func TestDecodeFrameRejectsMissingEOM(t *testing.T) {
	raw := []byte{FrameREQ, smallIntLo}
	if _, _, _, err := DecodeFrame(raw); err == nil {
		t.Fatalf("expected error for frame missing EOM")
	}
}

func TestEncodeObjectRefRoundTrip(t *testing.T) {
	raw, err := EncodeFrame(FrameREP, 2, DValue{Kind: DObjectRef, Class: 7, Buf: []byte{0xAA, 0xBB}})
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	_, _, values, err := DecodeFrame(raw)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if values[0].Class != 7 || len(values[0].Buf) != 2 {
		t.Fatalf("object ref round trip mismatch: %+v", values[0])
	}
}
