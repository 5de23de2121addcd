package dlmsg

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTlRateNotificationRoundTrip(t *testing.T) {
	want := TlRateNotification{Rate: 4000, Ack: true}
	dw, err := EncodeTlRateNotification(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	common, err := PeekCommon(dw)
	if err != nil {
		t.Fatalf("PeekCommon: %v", err)
	}
	if common.MClass != ClassBasic || common.MType != MTypeTlRateNotification {
		t.Fatalf("unexpected common: %+v", common)
	}
	got, err := DecodeTlRateNotification(dw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestDeviceIdRoundTrip(t *testing.T) {
	want := DeviceId{Valid: true, Type: 2, Id: 777, Ack: true}
	dw, err := EncodeDeviceId(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := DecodeDeviceId(dw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestPortIdRoundTrip(t *testing.T) {
	want := PortId{Valid: true, PortNumber: 3000, Ack: false}
	dw, err := EncodePortId(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := DecodePortId(dw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestChannelNegotiationRoundTrip(t *testing.T) {
	want := ChannelNegotiation{ChannelResponse: 0xA, ChannelCommand: ChannelCmdAck, ChannelTarget: 0x3}
	dw, err := EncodeChannelNegotiation(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	common, err := PeekCommon(dw)
	if err != nil {
		t.Fatalf("PeekCommon: %v", err)
	}
	if common.MClass != ClassControl || common.MType != MTypeChannelNegotiation {
		t.Fatalf("unexpected common: %+v", common)
	}
	got, err := DecodeChannelNegotiation(dw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestUartStreamResetRoundTrip(t *testing.T) {
	req := UartStreamResetRequest{AllStreams: false, StreamId: 5}
	dw, err := EncodeUartStreamResetRequest(req)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	gotReq, err := DecodeUartStreamResetRequest(dw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if gotReq != req {
		t.Fatalf("got %+v, want %+v", gotReq, req)
	}

	rsp := UartStreamResetResponse{Status: 2, AllStreams: true, StreamId: 5}
	dw2, err := EncodeUartStreamResetResponse(rsp)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	gotRsp, err := DecodeUartStreamResetResponse(dw2)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if gotRsp != rsp {
		t.Fatalf("got %+v, want %+v", gotRsp, rsp)
	}
}

func TestUartStreamCreditUpdateRoundTrip(t *testing.T) {
	want := UartStreamCreditUpdate{DataFcSeq: 0xABC, StreamId: 3}
	dw, err := EncodeUartStreamCreditUpdate(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := DecodeUartStreamCreditUpdate(dw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestUartStreamTransportEncodesHeaderPlusPayload(t *testing.T) {
	msg := UartStreamTransport{StreamId: 2, Payload: []uint32{0x11223344, 0x55667788, 0x99AABBCC}}
	dwords, err := EncodeUartStreamTransport(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(dwords) != 4 {
		t.Fatalf("len(dwords) = %d, want 4 (1 header + 3 payload)", len(dwords))
	}
	streamId, payloadDwords, err := DecodeUartTransportHeader(dwords[0])
	if err != nil {
		t.Fatalf("DecodeUartTransportHeader: %v", err)
	}
	if streamId != 2 || payloadDwords != 3 {
		t.Fatalf("header = (%d,%d), want (2,3)", streamId, payloadDwords)
	}
	got := uint32(dwords[1][0])<<24 | uint32(dwords[1][1])<<16 | uint32(dwords[1][2])<<8 | uint32(dwords[1][3])
	if got != msg.Payload[0] {
		t.Fatalf("payload[0] = %#x, want %#x", got, msg.Payload[0])
	}
}

func TestUartStreamTransportRoundTripMatchesOriginal(t *testing.T) {
	want := UartStreamTransport{StreamId: 5, Payload: []uint32{0xDEADBEEF, 0x01020304, 0xFFEEDDCC}}
	dwords, err := EncodeUartStreamTransport(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	streamId, payloadDwords, err := DecodeUartTransportHeader(dwords[0])
	if err != nil {
		t.Fatalf("DecodeUartTransportHeader: %v", err)
	}

	got := UartStreamTransport{StreamId: streamId, Payload: make([]uint32, payloadDwords)}
	for i := 0; i < payloadDwords; i++ {
		dw := dwords[i+1]
		got.Payload[i] = uint32(dw[0])<<24 | uint32(dw[1])<<16 | uint32(dw[2])<<8 | uint32(dw[3])
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestUartStreamTransportRejectsEmptyPayload(t *testing.T) {
	if _, err := EncodeUartStreamTransport(UartStreamTransport{StreamId: 1}); err == nil {
		t.Fatal("expected an error for an empty payload")
	}
}

func TestUartStreamTransportRejectsOversizedPayload(t *testing.T) {
	big := make([]uint32, MaxTransportPayloadDwords+1)
	if _, err := EncodeUartStreamTransport(UartStreamTransport{StreamId: 1, Payload: big}); err == nil {
		t.Fatal("expected an error for an oversized payload")
	}
}

func TestNoOpRoundTrip(t *testing.T) {
	dw, err := EncodeNoOp()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	common, err := PeekCommon(dw)
	if err != nil {
		t.Fatalf("PeekCommon: %v", err)
	}
	if common.MClass != ClassBasic || common.MType != MTypeNoOp {
		t.Fatalf("unexpected common: %+v", common)
	}
}
