// Package endpoint composes the Data Link and Transaction Layer
// packages into a single high-level API: applications call
// SendReadRequest/SendWriteRequest and ReceiveFlit, and the endpoint
// handles TL<->DL framing, replay buffering, pacing, and error
// injection underneath.
package endpoint

import (
	"errors"

	"github.com/rosslwheeler/ualink-go/pkg/dl"
	"github.com/rosslwheeler/ualink-go/pkg/dlinject"
	"github.com/rosslwheeler/ualink-go/pkg/dlpacing"
	"github.com/rosslwheeler/ualink-go/pkg/tl"
)

// ReadCompletionFunc is invoked when a read response flit arrives,
// carrying its matching tag, status, and whatever data the response
// flit held.
type ReadCompletionFunc func(tag uint16, status uint8, data []byte)

// WriteCompletionFunc is invoked when a write completion flit arrives.
type WriteCompletionFunc func(tag uint16, status uint8)

// TransmitFunc is called with every DL flit the endpoint produces, for
// the host to place on the wire.
type TransmitFunc func(flit dl.Flit)

// Config configures an Endpoint's optional pacing and error-injection
// hooks, plus its CRC/Ack-Nak behavior.
type Config struct {
	TxPacing      dlpacing.TxPacingFunc
	RxRate        dlpacing.RxRateFunc
	ErrorPolicy   dlinject.Policy
	EnableCrcCheck bool
	EnableAckNak   bool
	AckEveryNFlits int
}

// DefaultConfig returns the configuration an Endpoint uses unless
// overridden: CRC checking and Ack/Nak both on, acking every flit.
func DefaultConfig() Config {
	return Config{EnableCrcCheck: true, EnableAckNak: true}
}

// Stats mirrors the transmit/receive counters an application polls for
// diagnostics.
type Stats struct {
	TxReadRequests         uint64
	TxWriteRequests        uint64
	TxDlFlits              uint64
	TxDroppedByPacing      uint64
	TxDroppedByErrInjection uint64
	TxAcksSent             uint64
	TxNaksSent             uint64

	RxReadResponses    uint64
	RxWriteCompletions uint64
	RxDlFlits          uint64
	RxCrcErrors        uint64
	RxFlitsWithPacing  uint64
	RxAcksReceived     uint64
	RxNaksReceived     uint64

	Retransmissions uint64
}

// Endpoint is the high-level UALink protocol stack entry point.
type Endpoint struct {
	nextTag uint16

	replayBuffer *dl.ReplayBuffer
	txController *dl.TxController
	cmdProcessor *dl.CmdProcessor
	ackReqManager *dl.AckReqManager
	pacing       *dlpacing.Controller
	injector     *dlinject.Injector

	cfg Config

	transmit         TransmitFunc
	readCompletion   ReadCompletionFunc
	writeCompletion  WriteCompletionFunc

	stats Stats
}

// New constructs an Endpoint from cfg.
func New(cfg Config) *Endpoint {
	e := &Endpoint{
		replayBuffer:  dl.NewReplayBuffer(),
		txController:  dl.NewTxController(),
		cmdProcessor:  dl.NewCmdProcessor(),
		ackReqManager: dl.NewAckReqManager(),
		pacing:        dlpacing.NewController(),
		injector:      dlinject.NewInjector(),
		cfg:           cfg,
	}
	e.ackReqManager.SetAckEveryN(cfg.AckEveryNFlits)
	if cfg.TxPacing != nil {
		e.pacing.SetTxCallback(cfg.TxPacing)
	}
	if cfg.RxRate != nil {
		e.pacing.SetRxCallback(cfg.RxRate)
	}
	if cfg.ErrorPolicy != nil {
		e.injector.SetPolicy(cfg.ErrorPolicy)
		e.injector.Enable()
	}
	e.cmdProcessor.SetAckCallback(func(ackSeq uint16) {
		e.stats.RxAcksReceived++
		retired := e.replayBuffer.RetireThrough(ackSeq)
		_ = retired
	})
	e.cmdProcessor.SetReplayRequestCallback(func(replaySeq uint16) {
		e.stats.RxNaksReceived++
		e.ReplayFrom(replaySeq)
	})
	return e
}

// SetTransmitCallback installs the function called with every outgoing
// DL flit. Must be set before calling any Send* method.
func (e *Endpoint) SetTransmitCallback(fn TransmitFunc) { e.transmit = fn }

// SetReadCompletionCallback installs the read-completion handler.
func (e *Endpoint) SetReadCompletionCallback(fn ReadCompletionFunc) { e.readCompletion = fn }

// SetWriteCompletionCallback installs the write-completion handler.
func (e *Endpoint) SetWriteCompletionCallback(fn WriteCompletionFunc) { e.writeCompletion = fn }

// EnableErrorInjection turns on error injection using whatever policy
// was last set.
func (e *Endpoint) EnableErrorInjection() { e.injector.Enable() }

// DisableErrorInjection turns off error injection.
func (e *Endpoint) DisableErrorInjection() { e.injector.Disable() }

// SetErrorPolicy overrides the error-injection policy.
func (e *Endpoint) SetErrorPolicy(p dlinject.Policy) { e.injector.SetPolicy(p) }

// SetTxPacingCallback overrides the transmit pacing hook.
func (e *Endpoint) SetTxPacingCallback(fn dlpacing.TxPacingFunc) { e.pacing.SetTxCallback(fn) }

// SetRxRateCallback overrides the receive rate hook.
func (e *Endpoint) SetRxRateCallback(fn dlpacing.RxRateFunc) { e.pacing.SetRxCallback(fn) }

// ClearPacingCallbacks removes both pacing hooks.
func (e *Endpoint) ClearPacingCallbacks() { e.pacing.ClearCallbacks() }

// GetTxSeq returns the most recently allocated transmit sequence
// number.
func (e *Endpoint) GetTxSeq() uint16 { return e.txController.LastSeq() }

// OldestBufferedSeq returns the sequence number of the oldest unacked
// flit still held in the replay buffer, for a host that wants to replay
// its whole outstanding window after reconnecting to a peer that may
// have missed traffic during an outage.
func (e *Endpoint) OldestBufferedSeq() (uint16, bool) { return e.replayBuffer.OldestSeq() }

// Stats returns a snapshot of the endpoint's lifetime counters.
func (e *Endpoint) Stats() Stats { return e.stats }

// ResetStats zeros the endpoint's lifetime counters.
func (e *Endpoint) ResetStats() { e.stats = Stats{} }

func (e *Endpoint) allocateTag() uint16 {
	tag := e.nextTag
	e.nextTag = (e.nextTag + 1) & 0xFFF
	return tag
}

// SendReadRequest encodes a read request into a DL flit and hands it to
// the transmit callback (subject to pacing and error injection),
// returning the transaction tag assigned for matching with its eventual
// completion.
func (e *Endpoint) SendReadRequest(address uint64, size uint8) (uint16, error) {
	tag := e.allocateTag()
	req := tl.ReadRequest{Header: tl.RequestHeader{
		Opcode:  tl.OpReadRequest,
		Size:    size,
		Tag:     tag,
		Address: address,
	}}
	flitData, err := tl.EncodeReadRequest(req)
	if err != nil {
		return tag, err
	}
	e.stats.TxReadRequests++
	return tag, e.sendTlFlit(flitData)
}

// SendWriteRequest encodes a write request carrying data into a DL flit
// and transmits it, returning the assigned transaction tag.
func (e *Endpoint) SendWriteRequest(address uint64, size uint8, data []byte) (uint16, error) {
	tag := e.allocateTag()
	req := tl.WriteRequest{
		Header: tl.RequestHeader{Opcode: tl.OpWriteRequest, Size: size, Tag: tag, Address: address},
		Data:   data,
	}
	flitData, err := tl.EncodeWriteRequest(req)
	if err != nil {
		return tag, err
	}
	e.stats.TxWriteRequests++
	return tag, e.sendTlFlit(flitData)
}

// ErrReplayBufferFull is returned by SendReadRequest/SendWriteRequest when
// the transmit replay buffer has no room for a new payload flit. The
// caller must backpressure (stop generating new payloads) until an
// incoming Ack retires space.
var ErrReplayBufferFull = errors.New("endpoint: replay buffer full")

func (e *Endpoint) sendTlFlit(data [tl.FlitBytes]byte) error {
	seq, shouldBuffer := e.txController.NextPayloadSeq()
	tagged := dl.TaggedTlFlit{Message: uint8(tl.MessageNone)}
	copy(tagged.Data[:], data[:])

	flit, _, err := dl.Pack(dl.ExplicitFlitHeader{FlitSeqNo: seq}, []dl.TaggedTlFlit{tagged})
	if err != nil {
		return err
	}
	if shouldBuffer {
		if !e.replayBuffer.Add(seq, flit) {
			return ErrReplayBufferFull
		}
	}
	e.transmitFlit(flit)
	return nil
}

// transmitFlit runs flit through pacing and error injection before
// handing it to the transmit callback, updating stats along the way.
func (e *Endpoint) transmitFlit(flit dl.Flit) {
	if e.pacing.HasTxCallback() {
		if e.pacing.CheckTxPacing(1, dl.FlitBytes) == dlpacing.Drop {
			e.stats.TxDroppedByPacing++
			return
		}
	}
	if e.injector.IsEnabled() {
		errType := e.injector.GetNextError()
		if errType == dlinject.ErrPacketDrop {
			e.stats.TxDroppedByErrInjection++
			return
		}
		if errType == dlinject.ErrCrcCorruption {
			flit = e.injector.InjectError(flit, errType)
		}
	}
	e.stats.TxDlFlits++
	if e.transmit != nil {
		e.transmit(flit)
	}
}

// ProcessAck removes flits through ackSeq from the replay buffer, as if
// an Ack command flit naming ackSeq had just been received.
func (e *Endpoint) ProcessAck(ackSeq uint16) {
	e.replayBuffer.RetireThrough(ackSeq)
}

// ReplayFrom re-transmits every buffered flit from sequence seq
// (inclusive) onward, in response to a Replay Request.
func (e *Endpoint) ReplayFrom(seq uint16) {
	span, ok := e.replayBuffer.ReplaySpan(seq)
	if !ok {
		return
	}
	e.txController.StartReplay()
	defer e.txController.FinishReplay()
	for _, flit := range span {
		e.stats.Retransmissions++
		e.transmitFlit(flit)
	}
}

// ReceiveFlit processes one DL flit arriving from the wire: command
// flits (Ack/Replay Request) are dispatched to the buffered callbacks,
// payload flits are CRC-checked, acked or replay-requested via
// AckReqManager, and their TL flits are unpacked and dispatched to the
// completion callbacks.
func (e *Endpoint) ReceiveFlit(flit dl.Flit) {
	e.stats.RxDlFlits++
	if e.pacing.HasRxCallback() {
		_, crcErr := dl.DecodeWithCRCCheck(flit)
		e.pacing.NotifyRx(1, dl.FlitBytes, crcErr == nil)
		e.stats.RxFlitsWithPacing++
	}

	if e.cmdProcessor.Process(flit) {
		return
	}

	var tlFlits []dl.TaggedTlFlit
	if e.cfg.EnableCrcCheck {
		var err error
		tlFlits, err = dl.DecodeWithCRCCheck(flit)
		if err != nil {
			e.stats.RxCrcErrors++
			return
		}
	} else {
		tlFlits = dl.Unpack(flit)
	}

	if e.cfg.EnableAckNak {
		header, err := dl.DecodeExplicitHeader(flit.FlitHeader[:])
		if err == nil {
			if respFlit, ok, err := e.ackReqManager.ProcessReceived(header.FlitSeqNo, uint8(e.txController.LastSeq())); err == nil && ok {
				respHeader, decErr := dl.DecodeCommandHeader(respFlit.FlitHeader[:])
				if decErr == nil {
					switch respHeader.Op {
					case dl.OpAck:
						e.stats.TxAcksSent++
					case dl.OpReplayRequest:
						e.stats.TxNaksSent++
					}
				}
				e.transmitFlit(respFlit)
			}
		}
	}

	for _, tagged := range tlFlits {
		e.handleTlFlit(tagged)
	}
}

func (e *Endpoint) handleTlFlit(tagged dl.TaggedTlFlit) {
	opcode := tl.Opcode(tagged.Data[0] >> 5)
	switch opcode {
	case tl.OpReadResponse:
		var data [tl.FlitBytes]byte
		copy(data[:], tagged.Data[:])
		rsp, err := tl.DecodeReadResponse(data)
		if err != nil {
			return
		}
		e.stats.RxReadResponses++
		if e.readCompletion != nil {
			e.readCompletion(rsp.Header.Tag, rsp.Header.Status, rsp.Data)
		}
	case tl.OpWriteCompletion:
		var data [tl.FlitBytes]byte
		copy(data[:], tagged.Data[:])
		c, err := tl.DecodeWriteCompletion(data)
		if err != nil {
			return
		}
		e.stats.RxWriteCompletions++
		if e.writeCompletion != nil {
			e.writeCompletion(c.Header.Tag, c.Header.Status)
		}
	}
}
