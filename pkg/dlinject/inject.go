// Package dlinject provides pluggable fault-injection policies for
// negative testing of the DL layer: CRC corruption, packet drop, and
// sequence-number duplication/skip.
package dlinject

import "github.com/rosslwheeler/ualink-go/pkg/dl"

// ErrorType names a kind of fault an injection policy can request.
type ErrorType int

const (
	ErrNone ErrorType = iota
	ErrCrcCorruption
	ErrPacketDrop
	ErrSequenceDup
	ErrSequenceSkip
)

// Policy decides the next error to inject, called once per flit.
type Policy func() ErrorType

// Injector gates a Policy behind an enable/disable switch and applies
// the errors it reports to flits and sequence numbers.
type Injector struct {
	enabled bool
	policy  Policy
	lastSeq uint16
}

// NewInjector returns a disabled Injector with no policy installed.
func NewInjector() *Injector { return &Injector{} }

// Enable turns on error injection.
func (in *Injector) Enable() { in.enabled = true }

// Disable turns off error injection; GetNextError then always reports
// ErrNone.
func (in *Injector) Disable() { in.enabled = false }

// IsEnabled reports whether injection is currently on.
func (in *Injector) IsEnabled() bool { return in.enabled }

// SetPolicy installs the policy consulted by GetNextError.
func (in *Injector) SetPolicy(p Policy) { in.policy = p }

// GetNextError asks the installed policy for the next error, or
// ErrNone if disabled or no policy is installed.
func (in *Injector) GetNextError() ErrorType {
	if !in.enabled || in.policy == nil {
		return ErrNone
	}
	return in.policy()
}

// InjectError applies errorType to flit, returning a corrupted copy.
// Only CrcCorruption mutates the flit directly; PacketDrop and the
// sequence errors are surfaced through ShouldDropFlit and
// ModifySequence instead, since they change whether/what gets sent
// rather than the flit's bytes.
func (in *Injector) InjectError(flit dl.Flit, errorType ErrorType) dl.Flit {
	if errorType != ErrCrcCorruption {
		return flit
	}
	corrupted := flit
	corrupted.Crc[0] ^= 0xFF
	corrupted.Crc[1] ^= 0xFF
	return corrupted
}

// ShouldDropFlit reports whether the policy's next error is a packet
// drop.
func (in *Injector) ShouldDropFlit() bool {
	if !in.enabled {
		return false
	}
	return in.GetNextError() == ErrPacketDrop
}

// ModifySequence applies a sequence error to seqNo: a duplicate repeats
// the last sequence seen, a skip returns the sequence after seqNo so
// seqNo itself is never observed on the wire. Any other error type
// passes seqNo through unchanged while still recording it as the
// last-seen sequence.
func (in *Injector) ModifySequence(seqNo uint16, errorType ErrorType) uint16 {
	switch errorType {
	case ErrSequenceDup:
		return in.lastSeq
	case ErrSequenceSkip:
		in.lastSeq = seqNo
		return dl.WrapSeq(seqNo)
	default:
		in.lastSeq = seqNo
		return seqNo
	}
}

// PeriodicPolicy returns errorType every period-th call, and ErrNone
// otherwise.
type PeriodicPolicy struct {
	period    int
	errorType ErrorType
	counter   int
}

// NewPeriodicPolicy returns a Policy firing errorType every period calls.
func NewPeriodicPolicy(period int, errorType ErrorType) *PeriodicPolicy {
	return &PeriodicPolicy{period: period, errorType: errorType}
}

// Next implements Policy.
func (p *PeriodicPolicy) Next() ErrorType {
	p.counter++
	if p.period > 0 && p.counter%p.period == 0 {
		return p.errorType
	}
	return ErrNone
}

// Reset zeroes the call counter.
func (p *PeriodicPolicy) Reset() { p.counter = 0 }

// BurstPolicy returns errorType for a contiguous run of calls
// [burstStart, burstStart+burstLength), and ErrNone outside it.
type BurstPolicy struct {
	burstStart  int
	burstLength int
	errorType   ErrorType
	counter     int
}

// NewBurstPolicy returns a Policy firing errorType for burstLength
// consecutive calls starting at call number burstStart.
func NewBurstPolicy(burstStart, burstLength int, errorType ErrorType) *BurstPolicy {
	return &BurstPolicy{burstStart: burstStart, burstLength: burstLength, errorType: errorType}
}

// Next implements Policy.
func (p *BurstPolicy) Next() ErrorType {
	p.counter++
	if p.counter >= p.burstStart && p.counter < p.burstStart+p.burstLength {
		return p.errorType
	}
	return ErrNone
}

// Reset zeroes the call counter.
func (p *BurstPolicy) Reset() { p.counter = 0 }
