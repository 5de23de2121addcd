// Package dlmsg implements the UALink DL-message codec, the three-class
// round-robin multiplexing queue, and the receive-side processor that
// dispatches DWords to typed callbacks.
package dlmsg

import (
	"errors"
	"fmt"

	"github.com/rosslwheeler/ualink-go/pkg/bitcodec"
)

// Message classes (mclass, 4 bits).
const (
	ClassBasic   = 0b0000
	ClassUart    = 0b0001
	ClassControl = 0b1000
)

// Basic message types (mtype, 3 bits).
const (
	MTypeNoOp             = 0b000
	MTypeTlRateNotification = 0b100
	MTypeDeviceId         = 0b101
	MTypePortId           = 0b110
)

// Control message types.
const MTypeChannelNegotiation = 0b100

// UART message types.
const (
	MTypeUartStreamTransport     = 0b000
	MTypeUartStreamCreditUpdate  = 0b001
	MTypeUartStreamResetRequest  = 0b110
	MTypeUartStreamResetResponse = 0b111
)

// Common is the class/type framing shared by every DL message header
// DWord.
type Common struct {
	MClass uint8
	MType  uint8
}

// ErrCompressedFlagSet is returned when a decoded header's compressed bit
// is set; compressed DL messages are not modeled here.
var ErrCompressedFlagSet = errors.New("dlmsg: compressed flag set")

// trailerFields is shared by every format below: the low 9 bits of
// the 32-bit DWord hold mtype[8:6], mclass[5:2], reserved[1], compressed[0].
// Each message format spells these out as its own trailing fields rather
// than composing formats, so Pack/Unpack always see one coherent 32-bit
// MSB-first bit stream.
func trailerFields(mtype, mclass uint8) map[string]uint64 {
	return map[string]uint64{
		"mtype":      uint64(mtype),
		"mclass":     uint64(mclass),
		"reserved":   0,
		"compressed": 0,
	}
}

var peekFormat = bitcodec.Format{
	{Name: "specific", Bits: 23},
	{Name: "mtype", Bits: 3},
	{Name: "mclass", Bits: 4},
	{Name: "reserved", Bits: 1},
	{Name: "compressed", Bits: 1},
}

// PeekCommon decodes just the class/type framing from a 4-byte DWord,
// without interpreting message-specific fields. It is used to route a
// DWord to the right full decoder.
func PeekCommon(dword [4]byte) (Common, error) {
	fields, err := bitcodec.Unpack(peekFormat, dword[:])
	if err != nil {
		return Common{}, err
	}
	if fields["compressed"] != 0 {
		return Common{}, ErrCompressedFlagSet
	}
	return Common{MClass: uint8(fields["mclass"]), MType: uint8(fields["mtype"])}, nil
}

// --- Basic messages ---

var noOpFormat = bitcodec.Format{
	{Name: "reserved_hi", Bits: 23},
	{Name: "mtype", Bits: 3},
	{Name: "mclass", Bits: 4},
	{Name: "reserved", Bits: 1},
	{Name: "compressed", Bits: 1},
}

// NoOp carries no information beyond its framing.
type NoOp struct{}

// EncodeNoOp packs a NoOp message.
func EncodeNoOp() ([4]byte, error) {
	return pack32(noOpFormat, trailerFields(MTypeNoOp, ClassBasic))
}

var tlRateFormat = bitcodec.Format{
	{Name: "rate", Bits: 16},
	{Name: "reserved_hi", Bits: 3},
	{Name: "ack", Bits: 1},
	{Name: "reserved_mid", Bits: 3},
	{Name: "mtype", Bits: 3},
	{Name: "mclass", Bits: 4},
	{Name: "reserved", Bits: 1},
	{Name: "compressed", Bits: 1},
}

// TlRateNotification advertises (or acknowledges) a TL rate.
type TlRateNotification struct {
	Rate uint16
	Ack  bool
}

// EncodeTlRateNotification packs a TlRateNotification message.
func EncodeTlRateNotification(m TlRateNotification) ([4]byte, error) {
	values := trailerFields(MTypeTlRateNotification, ClassBasic)
	values["rate"] = uint64(m.Rate)
	values["ack"] = boolBit(m.Ack)
	return pack32(tlRateFormat, values)
}

// DecodeTlRateNotification unpacks a TlRateNotification message body
// (caller has already confirmed class/type via PeekCommon).
func DecodeTlRateNotification(dword [4]byte) (TlRateNotification, error) {
	fields, err := bitcodec.Unpack(tlRateFormat, dword[:])
	if err != nil {
		return TlRateNotification{}, err
	}
	return TlRateNotification{Rate: uint16(fields["rate"]), Ack: fields["ack"] != 0}, nil
}

var deviceIdFormat = bitcodec.Format{
	{Name: "valid", Bits: 1},
	{Name: "type", Bits: 2},
	{Name: "reserved_hi", Bits: 3},
	{Name: "id", Bits: 10},
	{Name: "reserved_mid", Bits: 3},
	{Name: "ack", Bits: 1},
	{Name: "reserved_lo", Bits: 3},
	{Name: "mtype", Bits: 3},
	{Name: "mclass", Bits: 4},
	{Name: "reserved", Bits: 1},
	{Name: "compressed", Bits: 1},
}

// DeviceId reports (or requests, when Valid is false) a device identity.
type DeviceId struct {
	Valid bool
	Type  uint8
	Id    uint16
	Ack   bool
}

// EncodeDeviceId packs a DeviceId message.
func EncodeDeviceId(m DeviceId) ([4]byte, error) {
	values := trailerFields(MTypeDeviceId, ClassBasic)
	values["valid"] = boolBit(m.Valid)
	values["type"] = uint64(m.Type)
	values["id"] = uint64(m.Id)
	values["ack"] = boolBit(m.Ack)
	return pack32(deviceIdFormat, values)
}

// DecodeDeviceId unpacks a DeviceId message body.
func DecodeDeviceId(dword [4]byte) (DeviceId, error) {
	fields, err := bitcodec.Unpack(deviceIdFormat, dword[:])
	if err != nil {
		return DeviceId{}, err
	}
	return DeviceId{
		Valid: fields["valid"] != 0,
		Type:  uint8(fields["type"]),
		Id:    uint16(fields["id"]),
		Ack:   fields["ack"] != 0,
	}, nil
}

var portIdFormat = bitcodec.Format{
	{Name: "valid", Bits: 1},
	{Name: "reserved_hi", Bits: 3},
	{Name: "port_number", Bits: 12},
	{Name: "reserved_mid", Bits: 3},
	{Name: "ack", Bits: 1},
	{Name: "reserved_lo", Bits: 3},
	{Name: "mtype", Bits: 3},
	{Name: "mclass", Bits: 4},
	{Name: "reserved", Bits: 1},
	{Name: "compressed", Bits: 1},
}

// PortId reports (or requests) a port number.
type PortId struct {
	Valid      bool
	PortNumber uint16
	Ack        bool
}

// EncodePortId packs a PortId message.
func EncodePortId(m PortId) ([4]byte, error) {
	values := trailerFields(MTypePortId, ClassBasic)
	values["valid"] = boolBit(m.Valid)
	values["port_number"] = uint64(m.PortNumber)
	values["ack"] = boolBit(m.Ack)
	return pack32(portIdFormat, values)
}

// DecodePortId unpacks a PortId message body.
func DecodePortId(dword [4]byte) (PortId, error) {
	fields, err := bitcodec.Unpack(portIdFormat, dword[:])
	if err != nil {
		return PortId{}, err
	}
	return PortId{
		Valid:      fields["valid"] != 0,
		PortNumber: uint16(fields["port_number"]),
		Ack:        fields["ack"] != 0,
	}, nil
}

// --- Control messages ---

var channelNegotiationFormat = bitcodec.Format{
	{Name: "reserved_hi", Bits: 4},
	{Name: "channel_response", Bits: 4},
	{Name: "channel_command", Bits: 4},
	{Name: "channel_target", Bits: 4},
	{Name: "reserved_mid", Bits: 7},
	{Name: "mtype", Bits: 3},
	{Name: "mclass", Bits: 4},
	{Name: "reserved", Bits: 1},
	{Name: "compressed", Bits: 1},
}

// Channel-negotiation command/response codes.
const (
	ChannelCmdRequest = 0b0000
	ChannelCmdAck     = 0b0001
	ChannelCmdNAck    = 0b0010
	ChannelCmdPending = 0b0011
)

// ChannelNegotiation drives the per-port online/offline handshake.
type ChannelNegotiation struct {
	ChannelResponse uint8
	ChannelCommand  uint8
	ChannelTarget   uint8
}

// EncodeChannelNegotiation packs a ChannelNegotiation message.
func EncodeChannelNegotiation(m ChannelNegotiation) ([4]byte, error) {
	values := trailerFields(MTypeChannelNegotiation, ClassControl)
	values["channel_response"] = uint64(m.ChannelResponse)
	values["channel_command"] = uint64(m.ChannelCommand)
	values["channel_target"] = uint64(m.ChannelTarget)
	return pack32(channelNegotiationFormat, values)
}

// DecodeChannelNegotiation unpacks a ChannelNegotiation message body.
func DecodeChannelNegotiation(dword [4]byte) (ChannelNegotiation, error) {
	fields, err := bitcodec.Unpack(channelNegotiationFormat, dword[:])
	if err != nil {
		return ChannelNegotiation{}, err
	}
	return ChannelNegotiation{
		ChannelResponse: uint8(fields["channel_response"]),
		ChannelCommand:  uint8(fields["channel_command"]),
		ChannelTarget:   uint8(fields["channel_target"]),
	}, nil
}

// --- UART messages ---

var uartResetRequestFormat = bitcodec.Format{
	{Name: "reserved_hi", Bits: 19},
	{Name: "all_streams", Bits: 1},
	{Name: "stream_id", Bits: 3},
	{Name: "mtype", Bits: 3},
	{Name: "mclass", Bits: 4},
	{Name: "reserved", Bits: 1},
	{Name: "compressed", Bits: 1},
}

// UartStreamResetRequest requests a reset of one (or all) UART streams.
type UartStreamResetRequest struct {
	AllStreams bool
	StreamId   uint8
}

// EncodeUartStreamResetRequest packs a UartStreamResetRequest message.
func EncodeUartStreamResetRequest(m UartStreamResetRequest) ([4]byte, error) {
	values := trailerFields(MTypeUartStreamResetRequest, ClassUart)
	values["all_streams"] = boolBit(m.AllStreams)
	values["stream_id"] = uint64(m.StreamId)
	return pack32(uartResetRequestFormat, values)
}

// DecodeUartStreamResetRequest unpacks a UartStreamResetRequest body.
func DecodeUartStreamResetRequest(dword [4]byte) (UartStreamResetRequest, error) {
	fields, err := bitcodec.Unpack(uartResetRequestFormat, dword[:])
	if err != nil {
		return UartStreamResetRequest{}, err
	}
	return UartStreamResetRequest{AllStreams: fields["all_streams"] != 0, StreamId: uint8(fields["stream_id"])}, nil
}

var uartResetResponseFormat = bitcodec.Format{
	{Name: "reserved_hi", Bits: 16},
	{Name: "status", Bits: 3},
	{Name: "all_streams", Bits: 1},
	{Name: "stream_id", Bits: 3},
	{Name: "mtype", Bits: 3},
	{Name: "mclass", Bits: 4},
	{Name: "reserved", Bits: 1},
	{Name: "compressed", Bits: 1},
}

// UartStreamResetResponse answers a UartStreamResetRequest.
type UartStreamResetResponse struct {
	Status     uint8
	AllStreams bool
	StreamId   uint8
}

// EncodeUartStreamResetResponse packs a UartStreamResetResponse message.
func EncodeUartStreamResetResponse(m UartStreamResetResponse) ([4]byte, error) {
	values := trailerFields(MTypeUartStreamResetResponse, ClassUart)
	values["status"] = uint64(m.Status)
	values["all_streams"] = boolBit(m.AllStreams)
	values["stream_id"] = uint64(m.StreamId)
	return pack32(uartResetResponseFormat, values)
}

// DecodeUartStreamResetResponse unpacks a UartStreamResetResponse body.
func DecodeUartStreamResetResponse(dword [4]byte) (UartStreamResetResponse, error) {
	fields, err := bitcodec.Unpack(uartResetResponseFormat, dword[:])
	if err != nil {
		return UartStreamResetResponse{}, err
	}
	return UartStreamResetResponse{
		Status:     uint8(fields["status"]),
		AllStreams: fields["all_streams"] != 0,
		StreamId:   uint8(fields["stream_id"]),
	}, nil
}

var uartTransportHeaderFormat = bitcodec.Format{
	{Name: "length", Bits: 5},
	{Name: "reserved_hi", Bits: 15},
	{Name: "stream_id", Bits: 3},
	{Name: "mtype", Bits: 3},
	{Name: "mclass", Bits: 4},
	{Name: "reserved", Bits: 1},
	{Name: "compressed", Bits: 1},
}

// MinTransportPayloadDwords and MaxTransportPayloadDwords bound the
// number of payload DWords a single UartStreamTransport message may
// carry: at least one, and at most what the 5-bit length field (encoded
// as count-1) can express.
const (
	MinTransportPayloadDwords = 1
	MaxTransportPayloadDwords = 32
)

// UartStreamTransport carries an arbitrary-length UART byte stream as a
// sequence of big-endian DWords; it is the only multi-DWord DL message.
type UartStreamTransport struct {
	StreamId uint8
	Payload  []uint32 // 1..32 DWords
}

// EncodeUartStreamTransport packs a UartStreamTransport message into its
// header DWord followed by its payload DWords.
func EncodeUartStreamTransport(m UartStreamTransport) ([][4]byte, error) {
	n := len(m.Payload)
	if n < MinTransportPayloadDwords || n > MaxTransportPayloadDwords {
		return nil, &bitcodec.FieldOutOfRange{Name: "length", Value: uint64(n), Bits: 5}
	}
	values := trailerFields(MTypeUartStreamTransport, ClassUart)
	values["length"] = uint64(n - 1)
	values["stream_id"] = uint64(m.StreamId)
	header, err := pack32(uartTransportHeaderFormat, values)
	if err != nil {
		return nil, err
	}
	out := make([][4]byte, 0, n+1)
	out = append(out, header)
	for _, dw := range m.Payload {
		var b [4]byte
		b[0] = byte(dw >> 24)
		b[1] = byte(dw >> 16)
		b[2] = byte(dw >> 8)
		b[3] = byte(dw)
		out = append(out, b)
	}
	return out, nil
}

// DecodeUartTransportHeader unpacks the header DWord of a
// UartStreamTransport, returning the stream id and the number of payload
// DWords that follow (length+1).
func DecodeUartTransportHeader(dword [4]byte) (streamId uint8, payloadDwords int, err error) {
	fields, err := bitcodec.Unpack(uartTransportHeaderFormat, dword[:])
	if err != nil {
		return 0, 0, err
	}
	return uint8(fields["stream_id"]), int(fields["length"]) + 1, nil
}

var uartCreditUpdateFormat = bitcodec.Format{
	{Name: "data_fc_seq", Bits: 12},
	{Name: "reserved_hi", Bits: 8},
	{Name: "stream_id", Bits: 3},
	{Name: "mtype", Bits: 3},
	{Name: "mclass", Bits: 4},
	{Name: "reserved", Bits: 1},
	{Name: "compressed", Bits: 1},
}

// UartStreamCreditUpdate advances the flow-control sequence for a stream.
type UartStreamCreditUpdate struct {
	DataFcSeq uint16
	StreamId  uint8
}

// EncodeUartStreamCreditUpdate packs a UartStreamCreditUpdate message.
func EncodeUartStreamCreditUpdate(m UartStreamCreditUpdate) ([4]byte, error) {
	values := trailerFields(MTypeUartStreamCreditUpdate, ClassUart)
	values["data_fc_seq"] = uint64(m.DataFcSeq)
	values["stream_id"] = uint64(m.StreamId)
	return pack32(uartCreditUpdateFormat, values)
}

// DecodeUartStreamCreditUpdate unpacks a UartStreamCreditUpdate body.
func DecodeUartStreamCreditUpdate(dword [4]byte) (UartStreamCreditUpdate, error) {
	fields, err := bitcodec.Unpack(uartCreditUpdateFormat, dword[:])
	if err != nil {
		return UartStreamCreditUpdate{}, err
	}
	return UartStreamCreditUpdate{
		DataFcSeq: uint16(fields["data_fc_seq"]),
		StreamId:  uint8(fields["stream_id"]),
	}, nil
}

func pack32(format bitcodec.Format, values map[string]uint64) ([4]byte, error) {
	b, err := bitcodec.Pack(format, values)
	if err != nil {
		return [4]byte{}, err
	}
	var out [4]byte
	copy(out[:], b)
	return out, nil
}

func boolBit(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// Group identifies which of the three round-robin queues a message
// belongs to.
type Group int

const (
	GroupNone Group = iota
	GroupBasic
	GroupControl
	GroupUart
)

func (g Group) String() string {
	switch g {
	case GroupBasic:
		return "basic"
	case GroupControl:
		return "control"
	case GroupUart:
		return "uart"
	default:
		return "none"
	}
}

// Message is any value that can be enqueued on a DlMessageQueue: one of
// the Basic, Control or UART message structs defined in this file.
type Message interface {
	group() Group
}

func (NoOp) group() Group                    { return GroupBasic }
func (TlRateNotification) group() Group      { return GroupBasic }
func (DeviceId) group() Group                { return GroupBasic }
func (PortId) group() Group                  { return GroupBasic }
func (ChannelNegotiation) group() Group      { return GroupControl }
func (UartStreamResetRequest) group() Group  { return GroupUart }
func (UartStreamResetResponse) group() Group { return GroupUart }
func (UartStreamTransport) group() Group     { return GroupUart }
func (UartStreamCreditUpdate) group() Group  { return GroupUart }

// GroupOf returns the round-robin group a Message belongs to.
func GroupOf(msg Message) Group { return msg.group() }

// EncodeMessage serializes any Message into its wire DWord(s). Every
// message is one DWord except UartStreamTransport, which is 1+len(Payload).
func EncodeMessage(msg Message) ([][4]byte, error) {
	switch m := msg.(type) {
	case NoOp:
		dw, err := EncodeNoOp()
		return [][4]byte{dw}, err
	case TlRateNotification:
		dw, err := EncodeTlRateNotification(m)
		return [][4]byte{dw}, err
	case DeviceId:
		dw, err := EncodeDeviceId(m)
		return [][4]byte{dw}, err
	case PortId:
		dw, err := EncodePortId(m)
		return [][4]byte{dw}, err
	case ChannelNegotiation:
		dw, err := EncodeChannelNegotiation(m)
		return [][4]byte{dw}, err
	case UartStreamResetRequest:
		dw, err := EncodeUartStreamResetRequest(m)
		return [][4]byte{dw}, err
	case UartStreamResetResponse:
		dw, err := EncodeUartStreamResetResponse(m)
		return [][4]byte{dw}, err
	case UartStreamTransport:
		return EncodeUartStreamTransport(m)
	case UartStreamCreditUpdate:
		dw, err := EncodeUartStreamCreditUpdate(m)
		return [][4]byte{dw}, err
	default:
		return nil, fmt.Errorf("dlmsg: unknown message type %T", msg)
	}
}
