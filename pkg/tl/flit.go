package tl

import (
	"errors"

	"github.com/rosslwheeler/ualink-go/pkg/bitcodec"
)

// FlitBytes is the fixed size of a Transaction Layer flit.
const FlitBytes = 64

// HalfFlitBytes is half of a Transaction Layer flit, the unit addressed
// by RequestHeader/ResponseHeader's half_flit bit.
const HalfFlitBytes = 32

// Opcode identifies the kind of transaction a TL flit carries.
type Opcode uint8

const (
	OpReadRequest    Opcode = 0
	OpReadResponse   Opcode = 1
	OpWriteRequest   Opcode = 2
	OpWriteCompletion Opcode = 3
	OpMessage        Opcode = 4
	OpAtomicRequest  Opcode = 5
	OpAtomicResponse Opcode = 6
	OpReserved       Opcode = 7
)

// MessageType is the 2-bit "message" field carried in a DL segment
// header, used to reassemble a TL flit split across multiple segments.
type MessageType uint8

const (
	MessageNone     MessageType = 0
	MessageStart    MessageType = 1
	MessageContinue MessageType = 2
	MessageEnd      MessageType = 3
)

// MessageTypeToField returns the 2-bit segment-header encoding of m.
func MessageTypeToField(m MessageType) uint8 { return uint8(m) }

// MessageFieldToType decodes a 2-bit segment-header field into a
// MessageType. Any value beyond the 2-bit range defaults to MessageNone.
func MessageFieldToType(field uint8) MessageType {
	if field > 3 {
		return MessageNone
	}
	return MessageType(field)
}

var requestHeaderFormat = bitcodec.Format{
	{Name: "opcode", Bits: 3},
	{Name: "half_flit", Bits: 1},
	{Name: "size", Bits: 6},
	{Name: "tag", Bits: 12},
	{Name: "address_hi", Bits: 16},
	{Name: "address_lo", Bits: 26},
}

// RequestHeader is the 8-byte header common to read and write requests.
type RequestHeader struct {
	Opcode   Opcode
	HalfFlit bool
	Size     uint8
	Tag      uint16
	Address  uint64 // 42 bits: address_hi(16) << 26 | address_lo(26)
}

// EncodeRequestHeader packs h into its 8-byte wire form.
func EncodeRequestHeader(h RequestHeader) ([]byte, error) {
	addrHi := uint64(h.Address>>26) & 0xFFFF
	addrLo := h.Address & 0x3FFFFFF
	values := map[string]uint64{
		"opcode":     uint64(h.Opcode),
		"half_flit":  boolBit(h.HalfFlit),
		"size":       uint64(h.Size),
		"tag":        uint64(h.Tag),
		"address_hi": addrHi,
		"address_lo": addrLo,
	}
	return bitcodec.Pack(requestHeaderFormat, values)
}

// DecodeRequestHeader unpacks an 8-byte wire form into a RequestHeader.
func DecodeRequestHeader(data []byte) (RequestHeader, error) {
	fields, err := bitcodec.Unpack(requestHeaderFormat, data)
	if err != nil {
		return RequestHeader{}, err
	}
	return RequestHeader{
		Opcode:   Opcode(fields["opcode"]),
		HalfFlit: fields["half_flit"] != 0,
		Size:     uint8(fields["size"]),
		Tag:      uint16(fields["tag"]),
		Address:  fields["address_hi"]<<26 | fields["address_lo"],
	}, nil
}

var responseHeaderFormat = bitcodec.Format{
	{Name: "opcode", Bits: 3},
	{Name: "half_flit", Bits: 1},
	{Name: "status", Bits: 4},
	{Name: "tag", Bits: 12},
	{Name: "data_valid", Bits: 1},
	{Name: "reserved", Bits: 11},
}

// ResponseHeader is the 4-byte header common to read and write
// responses.
type ResponseHeader struct {
	Opcode    Opcode
	HalfFlit  bool
	Status    uint8
	Tag       uint16
	DataValid bool
}

// EncodeResponseHeader packs h into its 4-byte wire form.
func EncodeResponseHeader(h ResponseHeader) ([]byte, error) {
	values := map[string]uint64{
		"opcode":     uint64(h.Opcode),
		"half_flit":  boolBit(h.HalfFlit),
		"status":     uint64(h.Status),
		"tag":        uint64(h.Tag),
		"data_valid": boolBit(h.DataValid),
		"reserved":   0,
	}
	return bitcodec.Pack(responseHeaderFormat, values)
}

// DecodeResponseHeader unpacks a 4-byte wire form into a ResponseHeader.
func DecodeResponseHeader(data []byte) (ResponseHeader, error) {
	fields, err := bitcodec.Unpack(responseHeaderFormat, data)
	if err != nil {
		return ResponseHeader{}, err
	}
	return ResponseHeader{
		Opcode:    Opcode(fields["opcode"]),
		HalfFlit:  fields["half_flit"] != 0,
		Status:    uint8(fields["status"]),
		Tag:       uint16(fields["tag"]),
		DataValid: fields["data_valid"] != 0,
	}, nil
}

// ErrDataTooLarge is returned when a transaction's data payload would
// overflow the space remaining in a 64-byte flit after its header.
var ErrDataTooLarge = errors.New("tl: data payload exceeds flit capacity")

// ReadRequest is a read transaction: an 8-byte header with no data
// payload of its own, occupying a single flit.
type ReadRequest struct {
	Header RequestHeader
}

// EncodeReadRequest renders req as a 64-byte flit, header first and the
// remainder zero-filled.
func EncodeReadRequest(req ReadRequest) ([FlitBytes]byte, error) {
	var flit [FlitBytes]byte
	hdr, err := EncodeRequestHeader(req.Header)
	if err != nil {
		return flit, err
	}
	copy(flit[:len(hdr)], hdr)
	return flit, nil
}

// DecodeReadRequest parses the header of a 64-byte flit as a read
// request.
func DecodeReadRequest(flit [FlitBytes]byte) (ReadRequest, error) {
	hdr, err := DecodeRequestHeader(flit[:8])
	if err != nil {
		return ReadRequest{}, err
	}
	return ReadRequest{Header: hdr}, nil
}

// ReadResponse is a read completion: a 4-byte header followed by up to
// 60 bytes of data.
type ReadResponse struct {
	Header ResponseHeader
	Data   []byte // up to 60 bytes
}

// EncodeReadResponse renders rsp as a 64-byte flit.
func EncodeReadResponse(rsp ReadResponse) ([FlitBytes]byte, error) {
	var flit [FlitBytes]byte
	if len(rsp.Data) > FlitBytes-4 {
		return flit, ErrDataTooLarge
	}
	hdr, err := EncodeResponseHeader(rsp.Header)
	if err != nil {
		return flit, err
	}
	copy(flit[:4], hdr)
	copy(flit[4:], rsp.Data)
	return flit, nil
}

// DecodeReadResponse parses a 64-byte flit as a read response. The
// returned Data slice is the full 60-byte remainder; callers that know
// the transaction's size should trim it themselves.
func DecodeReadResponse(flit [FlitBytes]byte) (ReadResponse, error) {
	hdr, err := DecodeResponseHeader(flit[:4])
	if err != nil {
		return ReadResponse{}, err
	}
	data := make([]byte, FlitBytes-4)
	copy(data, flit[4:])
	return ReadResponse{Header: hdr, Data: data}, nil
}

// WriteRequest is a write transaction: an 8-byte header followed by up
// to 56 bytes of data.
type WriteRequest struct {
	Header RequestHeader
	Data   []byte // up to 56 bytes
}

// EncodeWriteRequest renders req as a 64-byte flit.
func EncodeWriteRequest(req WriteRequest) ([FlitBytes]byte, error) {
	var flit [FlitBytes]byte
	if len(req.Data) > FlitBytes-8 {
		return flit, ErrDataTooLarge
	}
	hdr, err := EncodeRequestHeader(req.Header)
	if err != nil {
		return flit, err
	}
	copy(flit[:8], hdr)
	copy(flit[8:], req.Data)
	return flit, nil
}

// DecodeWriteRequest parses a 64-byte flit as a write request. The
// returned Data slice is the full 56-byte remainder.
func DecodeWriteRequest(flit [FlitBytes]byte) (WriteRequest, error) {
	hdr, err := DecodeRequestHeader(flit[:8])
	if err != nil {
		return WriteRequest{}, err
	}
	data := make([]byte, FlitBytes-8)
	copy(data, flit[8:])
	return WriteRequest{Header: hdr, Data: data}, nil
}

// WriteCompletion is a write acknowledgment: a bare 4-byte header, no
// data payload.
type WriteCompletion struct {
	Header ResponseHeader
}

// EncodeWriteCompletion renders c as a 64-byte flit, header first and
// the remainder zero-filled.
func EncodeWriteCompletion(c WriteCompletion) ([FlitBytes]byte, error) {
	var flit [FlitBytes]byte
	hdr, err := EncodeResponseHeader(c.Header)
	if err != nil {
		return flit, err
	}
	copy(flit[:4], hdr)
	return flit, nil
}

// DecodeWriteCompletion parses the header of a 64-byte flit as a write
// completion.
func DecodeWriteCompletion(flit [FlitBytes]byte) (WriteCompletion, error) {
	hdr, err := DecodeResponseHeader(flit[:4])
	if err != nil {
		return WriteCompletion{}, err
	}
	return WriteCompletion{Header: hdr}, nil
}
