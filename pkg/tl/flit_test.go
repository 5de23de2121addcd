package tl

import "testing"

func TestRequestHeaderRoundTrip(t *testing.T) {
	h := RequestHeader{
		Opcode:   OpReadRequest,
		HalfFlit: true,
		Size:     0x2A,
		Tag:      0xAAA,
		Address:  0x3FFFFFFFFFF, // 42 bits
	}
	enc, err := EncodeRequestHeader(h)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(enc) != 8 {
		t.Fatalf("encoded length = %d, want 8", len(enc))
	}
	dec, err := DecodeRequestHeader(enc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if dec != h {
		t.Fatalf("round trip mismatch: got %+v, want %+v", dec, h)
	}
}

func TestResponseHeaderRoundTrip(t *testing.T) {
	h := ResponseHeader{
		Opcode:    OpWriteCompletion,
		HalfFlit:  false,
		Status:    0xA,
		Tag:       0x555,
		DataValid: true,
	}
	enc, err := EncodeResponseHeader(h)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(enc) != 4 {
		t.Fatalf("encoded length = %d, want 4", len(enc))
	}
	dec, err := DecodeResponseHeader(enc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if dec != h {
		t.Fatalf("round trip mismatch: got %+v, want %+v", dec, h)
	}
}

func TestReadRequestFlitRoundTrip(t *testing.T) {
	req := ReadRequest{Header: RequestHeader{
		Opcode:  OpReadRequest,
		Size:    16,
		Tag:     0x123,
		Address: 0xABCDE,
	}}
	flit, err := EncodeReadRequest(req)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	dec, err := DecodeReadRequest(flit)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if dec.Header != req.Header {
		t.Fatalf("round trip mismatch: got %+v, want %+v", dec.Header, req.Header)
	}
	for i := 8; i < FlitBytes; i++ {
		if flit[i] != 0 {
			t.Fatalf("byte %d = %#x, want zero-fill beyond header", i, flit[i])
		}
	}
}

func TestWriteRequestFlitRoundTrip(t *testing.T) {
	data := make([]byte, 56)
	for i := range data {
		data[i] = byte(i)
	}
	req := WriteRequest{
		Header: RequestHeader{Opcode: OpWriteRequest, Size: 56, Tag: 0x42, Address: 0x1000},
		Data:   data,
	}
	flit, err := EncodeWriteRequest(req)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	dec, err := DecodeWriteRequest(flit)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if dec.Header != req.Header {
		t.Fatalf("header mismatch: got %+v, want %+v", dec.Header, req.Header)
	}
	for i, b := range data {
		if dec.Data[i] != b {
			t.Fatalf("data byte %d = %#x, want %#x", i, dec.Data[i], b)
		}
	}
}

func TestWriteRequestRejectsOversizedData(t *testing.T) {
	req := WriteRequest{Data: make([]byte, 57)}
	if _, err := EncodeWriteRequest(req); err != ErrDataTooLarge {
		t.Fatalf("expected ErrDataTooLarge, got %v", err)
	}
}

func TestReadResponseFlitRoundTrip(t *testing.T) {
	data := make([]byte, 60)
	for i := range data {
		data[i] = byte(i * 3)
	}
	rsp := ReadResponse{
		Header: ResponseHeader{Opcode: OpReadResponse, Status: 0, Tag: 0x77, DataValid: true},
		Data:   data,
	}
	flit, err := EncodeReadResponse(rsp)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	dec, err := DecodeReadResponse(flit)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if dec.Header != rsp.Header {
		t.Fatalf("header mismatch: got %+v, want %+v", dec.Header, rsp.Header)
	}
	for i, b := range data {
		if dec.Data[i] != b {
			t.Fatalf("data byte %d = %#x, want %#x", i, dec.Data[i], b)
		}
	}
}

func TestWriteCompletionFlitRoundTrip(t *testing.T) {
	c := WriteCompletion{Header: ResponseHeader{Opcode: OpWriteCompletion, Status: 0, Tag: 0x99}}
	flit, err := EncodeWriteCompletion(c)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	dec, err := DecodeWriteCompletion(flit)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if dec != c {
		t.Fatalf("round trip mismatch: got %+v, want %+v", dec, c)
	}
	for i := 4; i < FlitBytes; i++ {
		if flit[i] != 0 {
			t.Fatalf("byte %d = %#x, want zero-fill beyond header", i, flit[i])
		}
	}
}

func TestMessageFieldRoundTrip(t *testing.T) {
	for _, m := range []MessageType{MessageNone, MessageStart, MessageContinue, MessageEnd} {
		field := MessageTypeToField(m)
		if got := MessageFieldToType(field); got != m {
			t.Fatalf("MessageFieldToType(%d) = %v, want %v", field, got, m)
		}
	}
}

func TestMessageFieldToTypeDefaultsOnOutOfRange(t *testing.T) {
	if got := MessageFieldToType(7); got != MessageNone {
		t.Fatalf("MessageFieldToType(7) = %v, want MessageNone", got)
	}
}
