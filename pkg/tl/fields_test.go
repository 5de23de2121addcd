package tl

import "testing"

func TestUncompressedRequestFieldRoundTrip(t *testing.T) {
	f := UncompressedRequestField{
		Cmd:      0x2A,
		Vchan:    2,
		Asi:      1,
		Tag:      0x5AA,
		Pool:     true,
		Attr:     0x7F,
		Len:      0x33,
		Metadata: 0x99,
		Addr:     0x1FFFFFFFFFFFFF,
		Srcaccid: 0x3AA,
		Dstaccid: 0x155,
		Cload:    true,
		Cway:     1,
		Numbeats: 2,
	}
	enc, err := EncodeUncompressedRequestField(f)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(enc) != 16 {
		t.Fatalf("encoded length = %d, want 16", len(enc))
	}
	dec, err := DecodeUncompressedRequestField(enc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if dec != f {
		t.Fatalf("round trip mismatch: got %+v, want %+v", dec, f)
	}
}

func TestUncompressedResponseFieldRoundTrip(t *testing.T) {
	f := UncompressedResponseField{
		Vchan:    1,
		Tag:      0x6AA,
		Pool:     false,
		Len:      2,
		Offset:   1,
		Status:   0xC,
		RdWr:     true,
		Last:     true,
		Srcaccid: 0x2AA,
		Dstaccid: 0x1AA,
		Spares:   0xBEEF,
	}
	enc, err := EncodeUncompressedResponseField(f)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(enc) != 8 {
		t.Fatalf("encoded length = %d, want 8", len(enc))
	}
	dec, err := DecodeUncompressedResponseField(enc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if dec != f {
		t.Fatalf("round trip mismatch: got %+v, want %+v", dec, f)
	}
}

func TestCompressedRequestFieldRoundTrip(t *testing.T) {
	f := CompressedRequestField{
		Cmd:      5,
		Vchan:    2,
		Asi:      1,
		Tag:      0x6AA,
		Pool:     true,
		Len:      3,
		Metadata: 5,
		Addr:     0x3AAA,
		Srcaccid: 0x2AA,
		Dstaccid: 0x1AA,
		Cway:     2,
	}
	enc, err := EncodeCompressedRequestField(f)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(enc) != 8 {
		t.Fatalf("encoded length = %d, want 8", len(enc))
	}
	dec, err := DecodeCompressedRequestField(enc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if dec != f {
		t.Fatalf("round trip mismatch: got %+v, want %+v", dec, f)
	}
}

func TestCompressedSingleBeatReadResponseFieldRoundTrip(t *testing.T) {
	f := CompressedSingleBeatReadResponseField{
		Vchan:    3,
		Tag:      0x4AA,
		Pool:     true,
		Dstaccid: 0x2AA,
		Offset:   2,
		Last:     true,
	}
	enc, err := EncodeCompressedSingleBeatReadResponseField(f)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(enc) != 4 {
		t.Fatalf("encoded length = %d, want 4", len(enc))
	}
	dec, err := DecodeCompressedSingleBeatReadResponseField(enc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if dec != f {
		t.Fatalf("round trip mismatch: got %+v, want %+v", dec, f)
	}
}

func TestCompressedWriteOrMultiBeatReadResponseFieldRoundTrip(t *testing.T) {
	f := CompressedWriteOrMultiBeatReadResponseField{
		Vchan:    1,
		Tag:      0x3AA,
		Pool:     false,
		Dstaccid: 0x155,
		Len:      3,
		RdWr:     true,
	}
	enc, err := EncodeCompressedWriteOrMultiBeatReadResponseField(f)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(enc) != 4 {
		t.Fatalf("encoded length = %d, want 4", len(enc))
	}
	dec, err := DecodeCompressedWriteOrMultiBeatReadResponseField(enc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if dec != f {
		t.Fatalf("round trip mismatch: got %+v, want %+v", dec, f)
	}
}

func TestFlowControlNopFieldRoundTrip(t *testing.T) {
	f := FlowControlNopField{
		ReqCmd:  0x2A,
		RspCmd:  0x15,
		ReqData: 0xAA,
		RspData: 0x55,
	}
	enc, err := EncodeFlowControlNopField(f)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(enc) != 4 {
		t.Fatalf("encoded length = %d, want 4", len(enc))
	}
	dec, err := DecodeFlowControlNopField(enc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if dec != f {
		t.Fatalf("round trip mismatch: got %+v, want %+v", dec, f)
	}
}

func TestUncompressedRequestFieldRejectsOutOfRangeValue(t *testing.T) {
	f := UncompressedRequestField{Cmd: 0xFF} // cmd is 6 bits, max 0x3F
	if _, err := EncodeUncompressedRequestField(f); err == nil {
		t.Fatal("expected error for out-of-range cmd field")
	}
}
