package dl

import "github.com/rosslwheeler/ualink-go/pkg/crc"

// CmdProcessorStats counts command flits observed on receive.
type CmdProcessorStats struct {
	AcksReceived          uint64
	ReplayRequestsReceived uint64
}

// AckCallback is invoked when a valid Ack command flit is received.
type AckCallback func(ackSeq uint16)

// ReplayRequestCallback is invoked when a valid Replay-Request command
// flit is received.
type ReplayRequestCallback func(replaySeq uint16)

// CmdProcessor classifies received flits as command or payload and
// dispatches Ack/Replay-Request flits to registered callbacks.
type CmdProcessor struct {
	ackCallback         AckCallback
	replayReqCallback   ReplayRequestCallback
	stats               CmdProcessorStats
}

// NewCmdProcessor returns an empty CmdProcessor with no callbacks bound.
func NewCmdProcessor() *CmdProcessor {
	return &CmdProcessor{}
}

// SetAckCallback binds (or, with nil, clears) the Ack callback.
func (p *CmdProcessor) SetAckCallback(cb AckCallback) { p.ackCallback = cb }

// SetReplayRequestCallback binds (or, with nil, clears) the
// Replay-Request callback.
func (p *CmdProcessor) SetReplayRequestCallback(cb ReplayRequestCallback) {
	p.replayReqCallback = cb
}

// ClearCallbacks drops both callbacks.
func (p *CmdProcessor) ClearCallbacks() {
	p.ackCallback = nil
	p.replayReqCallback = nil
}

// Stats returns a snapshot of the processor's lifetime counters.
func (p *CmdProcessor) Stats() CmdProcessorStats { return p.stats }

// ResetStats zeros the lifetime counters.
func (p *CmdProcessor) ResetStats() { p.stats = CmdProcessorStats{} }

// Process attempts to interpret flit as a command flit.
//
// It returns false when the flit is not a command at all — payload_bit
// set, or an unrecognized op — so the caller may fall back to treating it
// as a payload flit. It returns true when the flit was consumed as a
// command, whether or not its CRC validated: a CRC mismatch on a command
// flit is silently dropped (consumed, not reinterpreted as payload).
func (p *CmdProcessor) Process(flit Flit) bool {
	header, err := DecodeCommandHeader(flit.FlitHeader[:])
	if err != nil {
		return false
	}
	if IsPayloadBit(flit.FlitHeader[0]) {
		return false
	}

	switch header.Op {
	case OpAck:
		if !verifyCommandCRC(flit) {
			return true
		}
		p.stats.AcksReceived++
		if p.ackCallback != nil {
			p.ackCallback(header.AckReqSeq)
		}
		return true
	case OpReplayRequest:
		if !verifyCommandCRC(flit) {
			return true
		}
		p.stats.ReplayRequestsReceived++
		if p.replayReqCallback != nil {
			p.replayReqCallback(header.AckReqSeq)
		}
		return true
	default:
		return false
	}
}

func verifyCommandCRC(flit Flit) bool {
	return crc.Verify(flit.coveredRegion(), flit.Crc)
}

// AckReqManager watches the receive sequence stream and synthesises the
// Ack or Replay-Request command flit the peer should be sent in response.
type AckReqManager struct {
	tracker        *SeqTracker
	ackEveryN      int
	flitsSinceAck  int
}

// NewAckReqManager returns an AckReqManager with expected_seq at 1 and
// ack_every_n = 0 (ack every flit).
func NewAckReqManager() *AckReqManager {
	return &AckReqManager{tracker: NewSeqTracker()}
}

// ExpectedRxSeq returns the currently expected receive sequence.
func (m *AckReqManager) ExpectedRxSeq() uint16 { return m.tracker.ExpectedSeq() }

// ResetRxState resets the receive sequence tracker and batching counter.
func (m *AckReqManager) ResetRxState() {
	m.tracker.Reset()
	m.flitsSinceAck = 0
}

// SetAckEveryN configures Ack batching: 0 means ack every flit, N>0 acks
// once every N accepted flits.
func (m *AckReqManager) SetAckEveryN(n int) { m.ackEveryN = n }

// AckEveryN returns the current batching configuration.
func (m *AckReqManager) AckEveryN() int { return m.ackEveryN }

// ProcessReceived classifies seq against the tracker and returns the
// command flit (if any) that should be sent in response: an Ack on an
// expected arrival (subject to batching), nothing on a duplicate, or a
// Replay Request naming the still-expected sequence on a gap.
func (m *AckReqManager) ProcessReceived(seq uint16, ourTxSeqLo uint8) (Flit, bool, error) {
	switch {
	case m.tracker.IsExpected(seq):
		m.tracker.Advance()
		m.flitsSinceAck++
		if m.ackEveryN == 0 || m.flitsSinceAck >= m.ackEveryN {
			m.flitsSinceAck = 0
			flit, err := makeCommand(OpAck, seq, ourTxSeqLo)
			return flit, err == nil, err
		}
		return Flit{}, false, nil
	case m.tracker.IsDuplicate(seq):
		return Flit{}, false, nil
	default:
		flit, err := makeCommand(OpReplayRequest, m.tracker.ExpectedSeq(), ourTxSeqLo)
		return flit, err == nil, err
	}
}

func makeCommand(op uint8, ackReqSeq uint16, flitSeqLo uint8) (Flit, error) {
	return PackCommand(CommandFlitHeader{
		Op:        op,
		AckReqSeq: ackReqSeq,
		FlitSeqLo: flitSeqLo & 0x7,
	})
}
