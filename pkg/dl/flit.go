// Package dl implements the UALink Data Link layer: flit framing and CRC,
// the replay/sequencing reliability engine, and the Ack/Replay-Request
// command protocol. Every component here is single-threaded and
// non-reentrant by design — no locking, no goroutines, no internal
// timers. Hosts drive timeouts by polling and supply timestamps as plain
// integers.
package dl

import (
	"errors"

	"github.com/rosslwheeler/ualink-go/pkg/bitcodec"
	"github.com/rosslwheeler/ualink-go/pkg/crc"
)

const (
	// FlitBytes is the total size of a DlFlit on the wire.
	FlitBytes = 640
	// PayloadBytes is the size of the segmented TL-flit payload region.
	PayloadBytes = 628
	// TlFlitBytes is the size of one TL flit.
	TlFlitBytes = 64
	// SegmentCount is the number of fixed-size payload segments.
	SegmentCount = 5
	// CrcCoverageBytes is the number of leading bytes (header + segment
	// headers + payload) covered by the trailing CRC.
	CrcCoverageBytes = 3 + SegmentCount + PayloadBytes
)

// segmentSizes and segmentOffsets describe the fixed payload layout.
var (
	segmentSizes   = [SegmentCount]int{128, 128, 128, 124, 120}
	segmentOffsets = [SegmentCount]int{0, 128, 256, 384, 508}
)

// slot identifies one addressable 64-byte TL-flit position within the
// payload: segment index k and slot s (0 or 1).
type slot struct {
	segment int
	index   int // 0 or 1 within the segment
	offset  int // absolute payload offset
}

// slots enumerates, in segment order, every 64-byte position the payload
// layout can address. Segments 0-2 hold two slots (size >= 128); segments
// 3-4 hold one each.
var slots = buildSlots()

func buildSlots() []slot {
	var out []slot
	for k := 0; k < SegmentCount; k++ {
		out = append(out, slot{segment: k, index: 0, offset: segmentOffsets[k]})
		if segmentSizes[k] >= 2*TlFlitBytes {
			out = append(out, slot{segment: k, index: 1, offset: segmentOffsets[k] + TlFlitBytes})
		}
	}
	return out
}

// MaxTlFlitsPerDlFlit is the number of TL-flit slots the payload layout
// can address.
var MaxTlFlitsPerDlFlit = len(slots)

// Explicit flit header op value: explicit (payload-carrying) flits.
const ExplicitOp = 0

// Command flit opcodes.
const (
	OpAck          = 0b010
	OpReplayRequest = 0b011
)

var explicitHeaderFormat = bitcodec.Format{
	{Name: "op", Bits: 3},
	{Name: "payload_bit", Bits: 1},
	{Name: "reserved", Bits: 3},
	{Name: "flit_seq_no", Bits: 9},
	{Name: "reserved2", Bits: 8},
}

var commandHeaderFormat = bitcodec.Format{
	{Name: "op", Bits: 3},
	{Name: "payload_bit", Bits: 1},
	{Name: "ack_req_seq", Bits: 9},
	{Name: "flit_seq_lo", Bits: 3},
	{Name: "reserved", Bits: 8},
}

var segmentHeaderFormat = bitcodec.Format{
	{Name: "tl_flit1", Bits: 1},
	{Name: "message1", Bits: 2},
	{Name: "tl_flit0", Bits: 1},
	{Name: "message0", Bits: 2},
	{Name: "reserved", Bits: 1},
	{Name: "dl_alt_sector", Bits: 1},
}

// ExplicitFlitHeader is the 3-byte header of a payload-carrying DL flit.
type ExplicitFlitHeader struct {
	FlitSeqNo uint16
}

// EncodeExplicitHeader packs an ExplicitFlitHeader to 3 bytes.
func EncodeExplicitHeader(h ExplicitFlitHeader) ([]byte, error) {
	return bitcodec.Pack(explicitHeaderFormat, map[string]uint64{
		"op":          ExplicitOp,
		"payload_bit": 1,
		"flit_seq_no": uint64(h.FlitSeqNo),
	})
}

// DecodeExplicitHeader unpacks an ExplicitFlitHeader from its 3 bytes.
func DecodeExplicitHeader(data []byte) (ExplicitFlitHeader, error) {
	fields, err := bitcodec.Unpack(explicitHeaderFormat, data)
	if err != nil {
		return ExplicitFlitHeader{}, err
	}
	return ExplicitFlitHeader{FlitSeqNo: uint16(fields["flit_seq_no"])}, nil
}

// CommandFlitHeader is the 3-byte header of an Ack/Replay-Request flit.
type CommandFlitHeader struct {
	Op         uint8
	AckReqSeq  uint16
	FlitSeqLo  uint8
}

// EncodeCommandHeader packs a CommandFlitHeader to 3 bytes.
func EncodeCommandHeader(h CommandFlitHeader) ([]byte, error) {
	return bitcodec.Pack(commandHeaderFormat, map[string]uint64{
		"op":          uint64(h.Op),
		"payload_bit": 0,
		"ack_req_seq": uint64(h.AckReqSeq),
		"flit_seq_lo": uint64(h.FlitSeqLo),
	})
}

// DecodeCommandHeader unpacks a CommandFlitHeader from its 3 bytes.
func DecodeCommandHeader(data []byte) (CommandFlitHeader, error) {
	fields, err := bitcodec.Unpack(commandHeaderFormat, data)
	if err != nil {
		return CommandFlitHeader{}, err
	}
	return CommandFlitHeader{
		Op:        uint8(fields["op"]),
		AckReqSeq: uint16(fields["ack_req_seq"]),
		FlitSeqLo: uint8(fields["flit_seq_lo"]),
	}, nil
}

// IsPayloadBit reports the payload_bit carried in the first byte of any
// 3-byte flit header, without committing to either header shape.
func IsPayloadBit(headerByte0 byte) bool {
	return headerByte0&0x10 != 0
}

// SegmentHeader is the 1-byte per-segment header.
type SegmentHeader struct {
	TlFlit0      bool
	Message0     uint8
	TlFlit1      bool
	Message1     uint8
	DlAltSector  bool
}

func encodeSegmentHeader(h SegmentHeader) (byte, error) {
	packed, err := bitcodec.Pack(segmentHeaderFormat, map[string]uint64{
		"tl_flit1":      boolToU64(h.TlFlit1),
		"message1":      uint64(h.Message1),
		"tl_flit0":      boolToU64(h.TlFlit0),
		"message0":      uint64(h.Message0),
		"dl_alt_sector": boolToU64(h.DlAltSector),
	})
	if err != nil {
		return 0, err
	}
	return packed[0], nil
}

func decodeSegmentHeader(b byte) SegmentHeader {
	fields, _ := bitcodec.Unpack(segmentHeaderFormat, []byte{b})
	return SegmentHeader{
		TlFlit1:     fields["tl_flit1"] != 0,
		Message1:    uint8(fields["message1"]),
		TlFlit0:     fields["tl_flit0"] != 0,
		Message0:    uint8(fields["message0"]),
		DlAltSector: fields["dl_alt_sector"] != 0,
	}
}

func boolToU64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// Flit is a fully assembled 640-byte DL flit.
type Flit struct {
	FlitHeader     [3]byte
	SegmentHeaders [SegmentCount]byte
	Payload        [PayloadBytes]byte
	Crc            [4]byte
}

// Bytes concatenates the flit into its wire representation.
func (f Flit) Bytes() []byte {
	out := make([]byte, 0, FlitBytes)
	out = append(out, f.FlitHeader[:]...)
	out = append(out, f.SegmentHeaders[:]...)
	out = append(out, f.Payload[:]...)
	out = append(out, f.Crc[:]...)
	return out
}

// FlitFromBytes parses a 640-byte wire buffer into a Flit, without
// validating its CRC.
func FlitFromBytes(data []byte) (Flit, error) {
	if len(data) != FlitBytes {
		return Flit{}, errors.New("dl: flit must be exactly 640 bytes")
	}
	var f Flit
	copy(f.FlitHeader[:], data[0:3])
	copy(f.SegmentHeaders[:], data[3:8])
	copy(f.Payload[:], data[8:636])
	copy(f.Crc[:], data[636:640])
	return f, nil
}

func (f Flit) coveredRegion() []byte {
	region := make([]byte, 0, CrcCoverageBytes)
	region = append(region, f.FlitHeader[:]...)
	region = append(region, f.SegmentHeaders[:]...)
	region = append(region, f.Payload[:]...)
	return region
}

// ErrCrc is returned by DecodeWithCRCCheck when the trailing CRC does not
// match the covered region.
var ErrCrc = errors.New("dl: crc mismatch")

// TaggedTlFlit pairs a 64-byte TL flit with its 2-bit message field, which
// travels in the owning segment header slot rather than inside the TL
// flit itself.
type TaggedTlFlit struct {
	Data    [TlFlitBytes]byte
	Message uint8 // 2 bits
}

// Pack assembles a Flit from up to MaxTlFlitsPerDlFlit TL flits and an
// explicit header, returning the flit and the number of TL flits actually
// packed.
func Pack(header ExplicitFlitHeader, tlFlits []TaggedTlFlit) (Flit, int, error) {
	headerBytes, err := EncodeExplicitHeader(header)
	if err != nil {
		return Flit{}, 0, err
	}
	return packWithHeaderBytes(headerBytes, tlFlits)
}

// PackCommand wraps a command header (Ack/Replay-Request) with an empty
// payload into a CRC-guarded Flit.
func PackCommand(header CommandFlitHeader) (Flit, error) {
	headerBytes, err := EncodeCommandHeader(header)
	if err != nil {
		return Flit{}, err
	}
	flit, _, err := packWithHeaderBytes(headerBytes, nil)
	return flit, err
}

func packWithHeaderBytes(headerBytes []byte, tlFlits []TaggedTlFlit) (Flit, int, error) {
	var f Flit
	copy(f.FlitHeader[:], headerBytes)

	packedCount := len(tlFlits)
	if packedCount > MaxTlFlitsPerDlFlit {
		packedCount = MaxTlFlitsPerDlFlit
	}

	segHeaders := make([]SegmentHeader, SegmentCount)
	for i := 0; i < packedCount; i++ {
		s := slots[i]
		copy(f.Payload[s.offset:s.offset+TlFlitBytes], tlFlits[i].Data[:])
		if s.index == 0 {
			segHeaders[s.segment].TlFlit0 = true
			segHeaders[s.segment].Message0 = tlFlits[i].Message & 0x3
		} else {
			segHeaders[s.segment].TlFlit1 = true
			segHeaders[s.segment].Message1 = tlFlits[i].Message & 0x3
		}
	}
	for k := 0; k < SegmentCount; k++ {
		b, err := encodeSegmentHeader(segHeaders[k])
		if err != nil {
			return Flit{}, 0, err
		}
		f.SegmentHeaders[k] = b
	}

	f.Crc = crc.Compute(f.coveredRegion())
	return f, packedCount, nil
}

// Unpack extracts, in segment/slot order, every TL flit present in f.
func Unpack(f Flit) []TaggedTlFlit {
	var out []TaggedTlFlit
	for k := 0; k < SegmentCount; k++ {
		h := decodeSegmentHeader(f.SegmentHeaders[k])
		off := segmentOffsets[k]
		if h.TlFlit0 {
			var tagged TaggedTlFlit
			copy(tagged.Data[:], f.Payload[off:off+TlFlitBytes])
			tagged.Message = h.Message0
			out = append(out, tagged)
		}
		if h.TlFlit1 && segmentSizes[k] >= 2*TlFlitBytes {
			var tagged TaggedTlFlit
			copy(tagged.Data[:], f.Payload[off+TlFlitBytes:off+2*TlFlitBytes])
			tagged.Message = h.Message1
			out = append(out, tagged)
		}
	}
	return out
}

// DecodeWithCRCCheck verifies f's CRC before unpacking. On mismatch it
// returns ErrCrc and the caller must not consume any TL flits from f.
func DecodeWithCRCCheck(f Flit) ([]TaggedTlFlit, error) {
	if !crc.Verify(f.coveredRegion(), f.Crc) {
		return nil, ErrCrc
	}
	return Unpack(f), nil
}
