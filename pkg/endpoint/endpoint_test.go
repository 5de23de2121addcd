package endpoint

import (
	"testing"

	"github.com/rosslwheeler/ualink-go/pkg/dl"
	"github.com/rosslwheeler/ualink-go/pkg/dlinject"
	"github.com/rosslwheeler/ualink-go/pkg/tl"
)

func TestSendReadRequestTransmitsFlit(t *testing.T) {
	e := New(DefaultConfig())
	var sent []dl.Flit
	e.SetTransmitCallback(func(f dl.Flit) { sent = append(sent, f) })

	tag, err := e.SendReadRequest(0x1000, 16)
	if err != nil {
		t.Fatalf("SendReadRequest: %v", err)
	}
	if tag != 0 {
		t.Fatalf("first tag = %d, want 0", tag)
	}
	if len(sent) != 1 {
		t.Fatalf("expected 1 transmitted flit, got %d", len(sent))
	}
	if e.Stats().TxReadRequests != 1 {
		t.Fatalf("TxReadRequests = %d, want 1", e.Stats().TxReadRequests)
	}

	tag2, err := e.SendReadRequest(0x2000, 16)
	if err != nil {
		t.Fatalf("SendReadRequest: %v", err)
	}
	if tag2 != 1 {
		t.Fatalf("second tag = %d, want 1", tag2)
	}
}

func TestSendReadRequestReportsReplayBufferFull(t *testing.T) {
	e := New(DefaultConfig())
	e.SetTransmitCallback(func(dl.Flit) {})

	for i := 0; i < dl.ReplayBufferCapacity; i++ {
		if _, err := e.SendReadRequest(0x1000, 16); err != nil {
			t.Fatalf("SendReadRequest %d: %v", i, err)
		}
	}

	if _, err := e.SendReadRequest(0x1000, 16); err != ErrReplayBufferFull {
		t.Fatalf("SendReadRequest on a full buffer = %v, want ErrReplayBufferFull", err)
	}
	if _, err := e.SendWriteRequest(0x1000, 4, []byte{1, 2, 3, 4}); err != ErrReplayBufferFull {
		t.Fatalf("SendWriteRequest on a full buffer = %v, want ErrReplayBufferFull", err)
	}
}

func TestReceiveFlitDispatchesReadCompletion(t *testing.T) {
	e := New(DefaultConfig())
	var gotTag uint16
	var gotStatus uint8
	var gotData []byte
	e.SetReadCompletionCallback(func(tag uint16, status uint8, data []byte) {
		gotTag, gotStatus, gotData = tag, status, data
	})

	rsp := tl.ReadResponse{
		Header: tl.ResponseHeader{Opcode: tl.OpReadResponse, Status: 0, Tag: 42, DataValid: true},
		Data:   []byte{1, 2, 3, 4},
	}
	tlBytes, err := tl.EncodeReadResponse(rsp)
	if err != nil {
		t.Fatalf("EncodeReadResponse: %v", err)
	}
	tagged := dl.TaggedTlFlit{}
	copy(tagged.Data[:], tlBytes[:])

	flit, _, err := dl.Pack(dl.ExplicitFlitHeader{FlitSeqNo: 1}, []dl.TaggedTlFlit{tagged})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	e.ReceiveFlit(flit)

	if gotTag != 42 || gotStatus != 0 {
		t.Fatalf("completion tag/status = %d/%d, want 42/0", gotTag, gotStatus)
	}
	if gotData[0] != 1 || gotData[1] != 2 {
		t.Fatalf("completion data = %v, want prefix [1 2 ...]", gotData)
	}
	if e.Stats().RxReadResponses != 1 {
		t.Fatalf("RxReadResponses = %d, want 1", e.Stats().RxReadResponses)
	}
}

func TestReceiveFlitSendsAckOnExpectedSequence(t *testing.T) {
	e := New(DefaultConfig())
	var sent []dl.Flit
	e.SetTransmitCallback(func(f dl.Flit) { sent = append(sent, f) })

	req := tl.ReadRequest{Header: tl.RequestHeader{Opcode: tl.OpReadRequest, Size: 1, Tag: 1, Address: 0}}
	tlBytes, err := tl.EncodeReadRequest(req)
	if err != nil {
		t.Fatalf("EncodeReadRequest: %v", err)
	}
	tagged := dl.TaggedTlFlit{}
	copy(tagged.Data[:], tlBytes[:])
	flit, _, err := dl.Pack(dl.ExplicitFlitHeader{FlitSeqNo: 1}, []dl.TaggedTlFlit{tagged})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	e.ReceiveFlit(flit)

	if len(sent) != 1 {
		t.Fatalf("expected an Ack flit to be sent back, got %d flits", len(sent))
	}
	hdr, err := dl.DecodeCommandHeader(sent[0].FlitHeader[:])
	if err != nil {
		t.Fatalf("DecodeCommandHeader: %v", err)
	}
	if hdr.Op != dl.OpAck || hdr.AckReqSeq != 1 {
		t.Fatalf("unexpected ack header: %+v", hdr)
	}
	if e.Stats().TxAcksSent != 1 {
		t.Fatalf("TxAcksSent = %d, want 1", e.Stats().TxAcksSent)
	}
}

func TestCrcCorruptionInjectedOnTransmit(t *testing.T) {
	e := New(DefaultConfig())
	e.SetErrorPolicy(func() dlinject.ErrorType { return dlinject.ErrCrcCorruption })
	e.EnableErrorInjection()

	var sent []dl.Flit
	e.SetTransmitCallback(func(f dl.Flit) { sent = append(sent, f) })

	if _, err := e.SendReadRequest(0, 1); err != nil {
		t.Fatalf("SendReadRequest: %v", err)
	}
	if len(sent) != 1 {
		t.Fatalf("expected 1 transmitted flit, got %d", len(sent))
	}
	if _, err := dl.DecodeWithCRCCheck(sent[0]); err == nil {
		t.Fatal("expected corrupted CRC to fail verification")
	}
}

func TestPacketDropInjectionSuppressesTransmit(t *testing.T) {
	e := New(DefaultConfig())
	e.SetErrorPolicy(func() dlinject.ErrorType { return dlinject.ErrPacketDrop })
	e.EnableErrorInjection()

	var sent []dl.Flit
	e.SetTransmitCallback(func(f dl.Flit) { sent = append(sent, f) })

	if _, err := e.SendReadRequest(0, 1); err != nil {
		t.Fatalf("SendReadRequest: %v", err)
	}
	if len(sent) != 0 {
		t.Fatalf("expected dropped flit to never reach the transmit callback, got %d", len(sent))
	}
	if e.Stats().TxDroppedByErrInjection != 1 {
		t.Fatalf("TxDroppedByErrInjection = %d, want 1", e.Stats().TxDroppedByErrInjection)
	}
}

func TestReplayFromRetransmitsBufferedFlits(t *testing.T) {
	e := New(DefaultConfig())
	var sent []dl.Flit
	e.SetTransmitCallback(func(f dl.Flit) { sent = append(sent, f) })

	for i := 0; i < 3; i++ {
		if _, err := e.SendReadRequest(uint64(i), 1); err != nil {
			t.Fatalf("SendReadRequest: %v", err)
		}
	}
	sent = nil // discard the original sends

	e.ReplayFrom(1)

	if len(sent) != 3 {
		t.Fatalf("expected replay to resend 3 flits, got %d", len(sent))
	}
	if e.Stats().Retransmissions != 3 {
		t.Fatalf("Retransmissions = %d, want 3", e.Stats().Retransmissions)
	}
}
