package dl

const (
	// ReplayBufferCapacity is the fixed ring size of the transmit replay
	// buffer.
	ReplayBufferCapacity = 512
	// SequenceSpace is the modulus of the sequence-number ring: valid
	// sequence numbers are 1..510 plus the wraparound value 511, which
	// wraps back to 1; 0 is reserved and never assigned.
	SequenceSpace = 511
)

// wrapSeq advances a sequence number through the modulo-511 space: 0 is
// reserved, 511 wraps to 1. This is the single source of truth for
// sequence advancement; SeqTracker.Advance and TxController both go
// through it rather than a raw modulo, which would incorrectly produce 0
// when advancing from 511.
func wrapSeq(seq uint16) uint16 {
	if seq >= 511 {
		return 1
	}
	return seq + 1
}

// WrapSeq is the exported form of wrapSeq, for callers outside this
// package (error injection, pacing simulators) that need to advance a
// sequence number through the same modulo-511 space as the rest of the
// DL layer rather than rolling their own modulus.
func WrapSeq(seq uint16) uint16 { return wrapSeq(seq) }

// forwardDistance is the modulo-511 distance from 'from' to 'to', moving
// forward through the sequence space.
func forwardDistance(from, to uint16) uint16 {
	return uint16((int(to) - int(from) + SequenceSpace) % SequenceSpace)
}

// withinHalfWindow reports whether a forward distance falls within the
// half-open half-window used to distinguish "already passed" from
// "still ahead": dist*2 < 511, equivalent to dist < 511/2 without
// resorting to floating point (511 is odd, so the boundary sits at 255).
func withinHalfWindow(dist uint16) bool {
	return int(dist)*2 < SequenceSpace
}

type replayEntry struct {
	seq   uint16
	flit  Flit
	valid bool
}

// ReplayBuffer is the transmit-side bounded FIFO of (seq, flit) pairs,
// retired on receipt of a cumulative Ack and replayed on receipt of a
// Replay Request.
type ReplayBuffer struct {
	entries [ReplayBufferCapacity]replayEntry
	head    int
	tail    int
	count   int
}

// NewReplayBuffer constructs an empty ReplayBuffer.
func NewReplayBuffer() *ReplayBuffer {
	return &ReplayBuffer{}
}

// Add appends a flit under sequence number seq. It returns false (and
// does not modify the buffer) if the buffer is already full; the caller
// must backpressure rather than generate new payloads in that case.
func (b *ReplayBuffer) Add(seq uint16, flit Flit) bool {
	if b.count == ReplayBufferCapacity {
		return false
	}
	b.entries[b.tail] = replayEntry{seq: seq, flit: flit, valid: true}
	b.tail = (b.tail + 1) % ReplayBufferCapacity
	b.count++
	return true
}

// isAcked reports whether oldest is covered by a cumulative ack of
// ackSeq, using the half-window forward-distance rule.
func isAcked(ackSeq, oldest uint16) bool {
	if ackSeq == oldest {
		return true
	}
	return withinHalfWindow(forwardDistance(oldest, ackSeq))
}

// RetireThrough removes every entry from the head with sequence <= ackSeq
// in modulo-511 order, stopping exactly after the entry whose seq equals
// ackSeq. It returns the number of entries retired.
func (b *ReplayBuffer) RetireThrough(ackSeq uint16) int {
	retired := 0
	for b.count > 0 {
		oldest := b.entries[b.head]
		if !isAcked(ackSeq, oldest.seq) {
			break
		}
		b.entries[b.head] = replayEntry{}
		b.head = (b.head + 1) % ReplayBufferCapacity
		b.count--
		retired++
		if oldest.seq == ackSeq {
			break
		}
	}
	return retired
}

// Size returns the number of buffered entries.
func (b *ReplayBuffer) Size() int { return b.count }

// IsEmpty reports whether the buffer holds no entries.
func (b *ReplayBuffer) IsEmpty() bool { return b.count == 0 }

// IsFull reports whether the buffer is at capacity.
func (b *ReplayBuffer) IsFull() bool { return b.count == ReplayBufferCapacity }

// OldestSeq returns the sequence number of the oldest buffered entry and
// true, or false if the buffer is empty.
func (b *ReplayBuffer) OldestSeq() (uint16, bool) {
	if b.count == 0 {
		return 0, false
	}
	return b.entries[b.head].seq, true
}

// NewestSeq returns the sequence number of the newest buffered entry and
// true, or false if the buffer is empty.
func (b *ReplayBuffer) NewestSeq() (uint16, bool) {
	if b.count == 0 {
		return 0, false
	}
	idx := (b.tail - 1 + ReplayBufferCapacity) % ReplayBufferCapacity
	return b.entries[idx].seq, true
}

// Clear drops all buffered entries.
func (b *ReplayBuffer) Clear() {
	b.head = 0
	b.tail = 0
	b.count = 0
	b.entries = [ReplayBufferCapacity]replayEntry{}
}

// ReplaySpan returns, in order, the flits from the entry whose sequence
// equals from through the newest entry — the retransmission contract for
// a Replay Request. It returns (nil, false) if no entry with that
// sequence is currently buffered.
//
// This is the real implementation of the retransmission span that the
// original reference left unimplemented: it is an ordered walk of the
// ring, not a fixed-size lookahead, so it works whether 'from' is the
// oldest buffered entry or anywhere after it.
func (b *ReplayBuffer) ReplaySpan(from uint16) ([]Flit, bool) {
	if b.count == 0 {
		return nil, false
	}
	startIdx := -1
	for i := 0; i < b.count; i++ {
		idx := (b.head + i) % ReplayBufferCapacity
		if b.entries[idx].seq == from {
			startIdx = i
			break
		}
	}
	if startIdx < 0 {
		return nil, false
	}
	out := make([]Flit, 0, b.count-startIdx)
	for i := startIdx; i < b.count; i++ {
		idx := (b.head + i) % ReplayBufferCapacity
		out = append(out, b.entries[idx].flit)
	}
	return out, true
}

// SeqTracker classifies received sequence numbers as expected, duplicate,
// or a gap, and tracks the next expected sequence.
type SeqTracker struct {
	expectedSeq uint16
}

// NewSeqTracker returns a SeqTracker with expected_seq initialized to 1,
// per the canonical rule that 0 is reserved and is never assigned.
func NewSeqTracker() *SeqTracker {
	return &SeqTracker{expectedSeq: 1}
}

// ExpectedSeq returns the currently expected sequence number.
func (t *SeqTracker) ExpectedSeq() uint16 { return t.expectedSeq }

// IsExpected reports whether seq is exactly the expected sequence.
func (t *SeqTracker) IsExpected(seq uint16) bool { return seq == t.expectedSeq }

// IsDuplicate reports whether seq is behind the expected sequence by the
// half-window modulo-511 distance rule (a re-delivery of something
// already consumed).
func (t *SeqTracker) IsDuplicate(seq uint16) bool {
	if seq == t.expectedSeq {
		return false
	}
	return withinHalfWindow(forwardDistance(seq, t.expectedSeq))
}

// Advance moves expected_seq forward by one, wrapping 511 to 1.
func (t *SeqTracker) Advance() {
	t.expectedSeq = wrapSeq(t.expectedSeq)
}

// Reset restores expected_seq to 1.
func (t *SeqTracker) Reset() {
	t.expectedSeq = 1
}
