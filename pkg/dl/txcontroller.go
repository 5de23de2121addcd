package dl

// TxControllerStats counts lifetime events for diagnostics. Plain
// counters, not atomics: the reliability engine is single-threaded by
// contract, so there is nothing to guard against here.
type TxControllerStats struct {
	PayloadFlitsSent  uint64
	NopFlitsSent      uint64
	AckFlitsSent      uint64
	ReplayReqFlitsSent uint64
	ReplaySequences   uint64
}

// TxController allocates transmit sequence numbers and decides when a
// command-flit opportunity (an inlined Ack) should preempt the next
// payload.
type TxController struct {
	lastSeq       uint16 // 0 means "no payload sent yet"
	explicitCount uint8  // counts down from 0x1F
	inReplay      bool
	firstReplay   bool
	stats         TxControllerStats
}

// NewTxController returns a TxController in its initial state.
func NewTxController() *TxController {
	t := &TxController{}
	t.Reset()
	return t
}

// LastSeq returns the most recently allocated payload sequence number (0
// before the first payload).
func (t *TxController) LastSeq() uint16 { return t.lastSeq }

// IsReplaying reports whether the controller is currently in replay mode.
func (t *TxController) IsReplaying() bool { return t.inReplay }

// NextPayloadSeq allocates the next sequence number for an outgoing
// payload flit. shouldBuffer is true when the caller should add the flit
// to the ReplayBuffer — false while replaying, since replayed flits are
// re-emitted verbatim from the buffer rather than newly allocated.
func (t *TxController) NextPayloadSeq() (seq uint16, shouldBuffer bool) {
	seq = wrapSeq(t.lastSeq)
	t.lastSeq = seq
	shouldBuffer = !t.inReplay
	t.stats.PayloadFlitsSent++
	return seq, shouldBuffer
}

// NopSeq returns last_seq unchanged; NOP flits do not consume a new
// sequence number.
func (t *TxController) NopSeq() uint16 {
	t.stats.NopFlitsSent++
	return t.lastSeq
}

// StartReplay enters replay mode ahead of re-emitting buffered flits for a
// Replay Request.
func (t *TxController) StartReplay() {
	t.inReplay = true
	t.firstReplay = true
	t.stats.ReplaySequences++
}

// FinishReplay exits replay mode once buffered flits have been drained.
func (t *TxController) FinishReplay() {
	t.inReplay = false
	t.firstReplay = false
}

// TickExplicitCount advances the explicit/command alternation counter.
// The first tick after StartReplay always reports a command-flit
// opportunity and resets the counter; otherwise the counter decrements,
// and reaching zero reports an opportunity and resets to 0x1F.
func (t *TxController) TickExplicitCount() bool {
	if t.firstReplay {
		t.firstReplay = false
		t.explicitCount = 0x1F
		return true
	}
	if t.explicitCount > 0 {
		t.explicitCount--
	}
	if t.explicitCount == 0 {
		t.explicitCount = 0x1F
		return true
	}
	return false
}

// MakeAck builds an Ack command flit for ackSeq, stamped with
// flit_seq_lo from the controller's own last_seq.
func (t *TxController) MakeAck(ackSeq uint16) (Flit, error) {
	t.stats.AckFlitsSent++
	return PackCommand(CommandFlitHeader{
		Op:        OpAck,
		AckReqSeq: ackSeq,
		FlitSeqLo: uint8(t.lastSeq & 0x7),
	})
}

// MakeReplayRequest builds a Replay-Request command flit for r.
func (t *TxController) MakeReplayRequest(r uint16) (Flit, error) {
	t.stats.ReplayReqFlitsSent++
	return PackCommand(CommandFlitHeader{
		Op:        OpReplayRequest,
		AckReqSeq: r,
		FlitSeqLo: uint8(t.lastSeq & 0x7),
	})
}

// Stats returns a snapshot of the controller's lifetime counters.
func (t *TxController) Stats() TxControllerStats { return t.stats }

// ResetStats zeros the lifetime counters without touching sequencing
// state.
func (t *TxController) ResetStats() { t.stats = TxControllerStats{} }

// Reset restores last_seq, explicit_count, in_replay and first_replay to
// their initial values, leaving stats untouched.
func (t *TxController) Reset() {
	t.lastSeq = 0
	t.explicitCount = 0x1F
	t.inReplay = false
	t.firstReplay = false
}
