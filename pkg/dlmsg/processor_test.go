package dlmsg

import "testing"

func dwordOf(t *testing.T, dw [4]byte, err error) [4]byte {
	t.Helper()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return dw
}

func TestProcessorDispatchesNoOp(t *testing.T) {
	p := NewProcessor(ProcessorConfig{})
	fired := false
	p.SetNoOpCallback(func(NoOp) { fired = true })
	noOpBytes, noOpErr := EncodeNoOp()
	dw := dwordOf(t, noOpBytes, noOpErr)
	if !p.ProcessDWord(dw, 0) {
		t.Fatal("ProcessDWord should succeed")
	}
	if !fired {
		t.Fatal("NoOp callback did not fire")
	}
	if p.Stats().BasicReceived != 1 {
		t.Fatalf("BasicReceived = %d, want 1", p.Stats().BasicReceived)
	}
}

// TestChannelNegotiationAckHandshake mirrors the Offline -> RequestSent
// -> Online handshake scenario.
func TestChannelNegotiationAckHandshake(t *testing.T) {
	p := NewProcessor(ProcessorConfig{})
	if p.ChannelState() != ChannelOffline {
		t.Fatalf("initial state = %v, want Offline", p.ChannelState())
	}

	reqBytes, reqErr := EncodeChannelNegotiation(ChannelNegotiation{ChannelCommand: ChannelCmdRequest})
	req := dwordOf(t, reqBytes, reqErr)
	if !p.ProcessDWord(req, 0) {
		t.Fatal("ProcessDWord(request) failed")
	}
	if p.ChannelState() != ChannelRequestSent {
		t.Fatalf("state after request = %v, want RequestSent", p.ChannelState())
	}

	ackBytes, ackErr := EncodeChannelNegotiation(ChannelNegotiation{ChannelCommand: ChannelCmdAck})
	ack := dwordOf(t, ackBytes, ackErr)
	if !p.ProcessDWord(ack, 1) {
		t.Fatal("ProcessDWord(ack) failed")
	}
	if p.ChannelState() != ChannelOnline {
		t.Fatalf("state after ack = %v, want Online", p.ChannelState())
	}
}

func TestBasicTimeoutIsPolledNotInternal(t *testing.T) {
	p := NewProcessor(ProcessorConfig{})
	p.StartBasicTimeout(7, 100)
	if r := p.CheckBasicTimeout(105, 10); r != NoTimeout {
		t.Fatalf("CheckBasicTimeout early = %v, want NoTimeout", r)
	}
	if r := p.CheckBasicTimeout(111, 10); r != TimeoutExpired {
		t.Fatalf("CheckBasicTimeout after elapsed = %v, want TimeoutExpired", r)
	}
	if p.Stats().Timeouts != 1 {
		t.Fatalf("Timeouts = %d, want 1", p.Stats().Timeouts)
	}
	if r := p.CheckBasicTimeout(200, 10); r != NoTimeout {
		t.Fatal("timeout should not re-fire once cleared")
	}
}

func TestDeviceIdAckCancelsTimeout(t *testing.T) {
	p := NewProcessor(ProcessorConfig{})
	p.StartBasicTimeout(1, 0)
	dwBytes, dwErr := EncodeDeviceId(DeviceId{Valid: true, Ack: true})
	dw := dwordOf(t, dwBytes, dwErr)
	p.ProcessDWord(dw, 0)
	if r := p.CheckBasicTimeout(1000, 10); r != NoTimeout {
		t.Fatal("timeout should have been cancelled by the Ack response")
	}
}

func TestTlRateNotificationAckCancelsTimeout(t *testing.T) {
	p := NewProcessor(ProcessorConfig{})
	p.StartBasicTimeout(1, 0)
	dwBytes, dwErr := EncodeTlRateNotification(TlRateNotification{Rate: 100, Ack: true})
	dw := dwordOf(t, dwBytes, dwErr)
	p.ProcessDWord(dw, 0)
	if r := p.CheckBasicTimeout(1000, 10); r != NoTimeout {
		t.Fatal("timeout should have been cancelled by the Ack response")
	}
}

func TestTlRateNotificationWithoutAckDoesNotCancelTimeout(t *testing.T) {
	p := NewProcessor(ProcessorConfig{})
	p.StartBasicTimeout(1, 0)
	dwBytes, dwErr := EncodeTlRateNotification(TlRateNotification{Rate: 100, Ack: false})
	dw := dwordOf(t, dwBytes, dwErr)
	p.ProcessDWord(dw, 0)
	if r := p.CheckBasicTimeout(1000, 10); r != TimeoutExpired {
		t.Fatal("a non-ack TlRateNotification should not cancel the outstanding timeout")
	}
}

func TestUartTransportReassembly(t *testing.T) {
	p := NewProcessor(ProcessorConfig{})
	var got UartStreamTransport
	p.SetUartTransportCallback(func(m UartStreamTransport) { got = m })

	dwords, err := EncodeUartStreamTransport(UartStreamTransport{StreamId: 4, Payload: []uint32{10, 20, 30}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for i, dw := range dwords {
		if !p.ProcessDWord(dw, uint64(i)) {
			t.Fatalf("ProcessDWord(%d) failed", i)
		}
		if i < len(dwords)-1 && !p.IsUartReassemblyInProgress() {
			t.Fatalf("reassembly should still be in progress after DWord %d", i)
		}
	}
	if p.IsUartReassemblyInProgress() {
		t.Fatal("reassembly should be complete")
	}
	if got.StreamId != 4 || len(got.Payload) != 3 || got.Payload[2] != 30 {
		t.Fatalf("reassembled message = %+v", got)
	}
}

func TestUartTransportReassemblyDoesNotConsumeFollowingMessage(t *testing.T) {
	p := NewProcessor(ProcessorConfig{})
	var transportFired, noOpFired bool
	p.SetUartTransportCallback(func(UartStreamTransport) { transportFired = true })
	p.SetNoOpCallback(func(NoOp) { noOpFired = true })

	dwords, _ := EncodeUartStreamTransport(UartStreamTransport{StreamId: 1, Payload: []uint32{1}})
	for _, dw := range dwords {
		p.ProcessDWord(dw, 0)
	}
	noopBytes, noopErr := EncodeNoOp()
	noop := dwordOf(t, noopBytes, noopErr)
	p.ProcessDWord(noop, 0)

	if !transportFired {
		t.Fatal("transport callback should have fired once the header's length DWords arrived")
	}
	if !noOpFired {
		t.Fatal("NoOp after a completed transport should dispatch normally")
	}
}

func TestLegacyReassemblyTriggerCompletesOnNonTransportDword(t *testing.T) {
	p := NewProcessor(ProcessorConfig{LegacyReassemblyTrigger: true})
	var got UartStreamTransport
	var gotCount int
	p.SetUartTransportCallback(func(m UartStreamTransport) { got = m; gotCount++ })

	headerBytes, headerErr := func() ([4]byte, error) {
		dws, err := EncodeUartStreamTransport(UartStreamTransport{StreamId: 5, Payload: []uint32{0}})
		return dws[0], err
	}()
	header := dwordOf(t, headerBytes, headerErr)
	p.ProcessDWord(header, 0)
	if !p.IsUartReassemblyInProgress() {
		t.Fatal("reassembly should start on the header DWord")
	}

	// A following NoOp is itself a valid non-transport message, so the
	// legacy heuristic declares the transport complete (with whatever
	// it has accumulated so far) and dispatches the NoOp normally.
	noopBytes, noopErr := EncodeNoOp()
	noop := dwordOf(t, noopBytes, noopErr)
	p.ProcessDWord(noop, 0)
	if gotCount != 1 {
		t.Fatalf("transport callback fired %d times, want 1", gotCount)
	}
	if got.StreamId != 5 {
		t.Fatalf("got.StreamId = %d, want 5", got.StreamId)
	}
	if p.IsUartReassemblyInProgress() {
		t.Fatal("reassembly should be cleared")
	}
}

func TestDeserializationErrorOnReservedMclass(t *testing.T) {
	p := NewProcessor(ProcessorConfig{})
	var dw [4]byte
	dw[3] = 0b00001100 // mclass bits [5:2] = 0b0011, a class none of Basic/Uart/Control use
	if p.ProcessDWord(dw, 0) {
		t.Fatal("ProcessDWord should reject an unrecognized message class")
	}
	if p.Stats().DeserializationErrors != 1 {
		t.Fatalf("DeserializationErrors = %d, want 1", p.Stats().DeserializationErrors)
	}
}
