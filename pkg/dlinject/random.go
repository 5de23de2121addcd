package dlinject

import "math/rand/v2"

// RandomPolicy injects errors probabilistically: crc corruption, packet
// drop, and sequence errors each get an independent probability, in
// that priority order; a sequence error is then a coin flip between
// duplicate and skip. No third-party RNG is used here — math/rand/v2
// is the only source of randomness anywhere in this project's corpus,
// so there is no ecosystem library to reach for instead.
type RandomPolicy struct {
	crcCorruptionProb float64
	packetDropProb    float64
	sequenceErrorProb float64
}

// NewRandomPolicy returns a RandomPolicy with all three error
// categories set to the same probability.
func NewRandomPolicy(errorProbability float64) *RandomPolicy {
	return &RandomPolicy{
		crcCorruptionProb: errorProbability,
		packetDropProb:    errorProbability,
		sequenceErrorProb: errorProbability,
	}
}

// Next implements Policy.
func (p *RandomPolicy) Next() ErrorType {
	r := rand.Float64()
	if r < p.crcCorruptionProb {
		return ErrCrcCorruption
	}
	if r < p.crcCorruptionProb+p.packetDropProb {
		return ErrPacketDrop
	}
	if r < p.crcCorruptionProb+p.packetDropProb+p.sequenceErrorProb {
		if rand.Float64() < 0.5 {
			return ErrSequenceDup
		}
		return ErrSequenceSkip
	}
	return ErrNone
}

// SetCrcCorruptionProbability overrides the crc-corruption probability.
func (p *RandomPolicy) SetCrcCorruptionProbability(prob float64) { p.crcCorruptionProb = prob }

// SetPacketDropProbability overrides the packet-drop probability.
func (p *RandomPolicy) SetPacketDropProbability(prob float64) { p.packetDropProb = prob }

// SetSequenceErrorProbability overrides the sequence-error probability.
func (p *RandomPolicy) SetSequenceErrorProbability(prob float64) { p.sequenceErrorProb = prob }
