// Package tl implements the Transaction Layer's field dictionary and
// per-opcode flit encoding: the uncompressed/compressed request and
// response field layouts, and the read/write request, read response and
// write completion flits.
package tl

import "github.com/rosslwheeler/ualink-go/pkg/bitcodec"

// FieldType identifies which TL field layout a flit carries.
type FieldType uint8

const (
	FieldFlowControlNop                      FieldType = 0x0
	FieldUncompressedRequest                 FieldType = 0x1
	FieldUncompressedResponse                FieldType = 0x2
	FieldCompressedRequest                   FieldType = 0x3
	FieldCompressedResponseSingleBeatRead     FieldType = 0x4
	FieldCompressedResponseWriteOrMultiBeatRead FieldType = 0x5
)

var uncompressedRequestFormat = bitcodec.Format{
	{Name: "ftype", Bits: 4},
	{Name: "cmd", Bits: 6},
	{Name: "vchan", Bits: 2},
	{Name: "asi", Bits: 2},
	{Name: "tag", Bits: 11},
	{Name: "pool", Bits: 1},
	{Name: "attr", Bits: 8},
	{Name: "len", Bits: 6},
	{Name: "metadata", Bits: 8},
	{Name: "addr", Bits: 55},
	{Name: "srcaccid", Bits: 10},
	{Name: "dstaccid", Bits: 10},
	{Name: "cload", Bits: 1},
	{Name: "cway", Bits: 2},
	{Name: "numbeats", Bits: 2},
}

// UncompressedRequestField is the 128-bit uncompressed request field set.
type UncompressedRequestField struct {
	Cmd       uint8
	Vchan     uint8
	Asi       uint8
	Tag       uint16
	Pool      bool
	Attr      uint8
	Len       uint8
	Metadata  uint8
	Addr      uint64 // 55 bits
	Srcaccid  uint16
	Dstaccid  uint16
	Cload     bool
	Cway      uint8
	Numbeats  uint8
}

// EncodeUncompressedRequestField packs f into its 16-byte wire form.
func EncodeUncompressedRequestField(f UncompressedRequestField) ([]byte, error) {
	values := map[string]uint64{
		"ftype":    uint64(FieldUncompressedRequest),
		"cmd":      uint64(f.Cmd),
		"vchan":    uint64(f.Vchan),
		"asi":      uint64(f.Asi),
		"tag":      uint64(f.Tag),
		"pool":     boolBit(f.Pool),
		"attr":     uint64(f.Attr),
		"len":      uint64(f.Len),
		"metadata": uint64(f.Metadata),
		"addr":     f.Addr,
		"srcaccid": uint64(f.Srcaccid),
		"dstaccid": uint64(f.Dstaccid),
		"cload":    boolBit(f.Cload),
		"cway":     uint64(f.Cway),
		"numbeats": uint64(f.Numbeats),
	}
	return bitcodec.Pack(uncompressedRequestFormat, values)
}

// DecodeUncompressedRequestField unpacks a 16-byte wire form into f.
func DecodeUncompressedRequestField(data []byte) (UncompressedRequestField, error) {
	fields, err := bitcodec.Unpack(uncompressedRequestFormat, data)
	if err != nil {
		return UncompressedRequestField{}, err
	}
	return UncompressedRequestField{
		Cmd:      uint8(fields["cmd"]),
		Vchan:    uint8(fields["vchan"]),
		Asi:      uint8(fields["asi"]),
		Tag:      uint16(fields["tag"]),
		Pool:     fields["pool"] != 0,
		Attr:     uint8(fields["attr"]),
		Len:      uint8(fields["len"]),
		Metadata: uint8(fields["metadata"]),
		Addr:     fields["addr"],
		Srcaccid: uint16(fields["srcaccid"]),
		Dstaccid: uint16(fields["dstaccid"]),
		Cload:    fields["cload"] != 0,
		Cway:     uint8(fields["cway"]),
		Numbeats: uint8(fields["numbeats"]),
	}, nil
}

var uncompressedResponseFormat = bitcodec.Format{
	{Name: "ftype", Bits: 4},
	{Name: "vchan", Bits: 2},
	{Name: "tag", Bits: 11},
	{Name: "pool", Bits: 1},
	{Name: "len", Bits: 2},
	{Name: "offset", Bits: 2},
	{Name: "status", Bits: 4},
	{Name: "rd_wr", Bits: 1},
	{Name: "last", Bits: 1},
	{Name: "srcaccid", Bits: 10},
	{Name: "dstaccid", Bits: 10},
	{Name: "spares", Bits: 16},
}

// UncompressedResponseField is the 64-bit uncompressed response field set.
type UncompressedResponseField struct {
	Vchan    uint8
	Tag      uint16
	Pool     bool
	Len      uint8
	Offset   uint8
	Status   uint8
	RdWr     bool
	Last     bool
	Srcaccid uint16
	Dstaccid uint16
	Spares   uint16
}

// EncodeUncompressedResponseField packs f into its 8-byte wire form.
func EncodeUncompressedResponseField(f UncompressedResponseField) ([]byte, error) {
	values := map[string]uint64{
		"ftype":    uint64(FieldUncompressedResponse),
		"vchan":    uint64(f.Vchan),
		"tag":      uint64(f.Tag),
		"pool":     boolBit(f.Pool),
		"len":      uint64(f.Len),
		"offset":   uint64(f.Offset),
		"status":   uint64(f.Status),
		"rd_wr":    boolBit(f.RdWr),
		"last":     boolBit(f.Last),
		"srcaccid": uint64(f.Srcaccid),
		"dstaccid": uint64(f.Dstaccid),
		"spares":   uint64(f.Spares),
	}
	return bitcodec.Pack(uncompressedResponseFormat, values)
}

// DecodeUncompressedResponseField unpacks an 8-byte wire form into f.
func DecodeUncompressedResponseField(data []byte) (UncompressedResponseField, error) {
	fields, err := bitcodec.Unpack(uncompressedResponseFormat, data)
	if err != nil {
		return UncompressedResponseField{}, err
	}
	return UncompressedResponseField{
		Vchan:    uint8(fields["vchan"]),
		Tag:      uint16(fields["tag"]),
		Pool:     fields["pool"] != 0,
		Len:      uint8(fields["len"]),
		Offset:   uint8(fields["offset"]),
		Status:   uint8(fields["status"]),
		RdWr:     fields["rd_wr"] != 0,
		Last:     fields["last"] != 0,
		Srcaccid: uint16(fields["srcaccid"]),
		Dstaccid: uint16(fields["dstaccid"]),
		Spares:   uint16(fields["spares"]),
	}, nil
}

var compressedRequestFormat = bitcodec.Format{
	{Name: "ftype", Bits: 4},
	{Name: "cmd", Bits: 3},
	{Name: "vchan", Bits: 2},
	{Name: "asi", Bits: 2},
	{Name: "tag", Bits: 11},
	{Name: "pool", Bits: 1},
	{Name: "len", Bits: 2},
	{Name: "metadata", Bits: 3},
	{Name: "addr", Bits: 14},
	{Name: "srcaccid", Bits: 10},
	{Name: "dstaccid", Bits: 10},
	{Name: "cway", Bits: 2},
}

// CompressedRequestField is the 64-bit compressed request field set.
type CompressedRequestField struct {
	Cmd      uint8
	Vchan    uint8
	Asi      uint8
	Tag      uint16
	Pool     bool
	Len      uint8
	Metadata uint8
	Addr     uint16
	Srcaccid uint16
	Dstaccid uint16
	Cway     uint8
}

// EncodeCompressedRequestField packs f into its 8-byte wire form.
func EncodeCompressedRequestField(f CompressedRequestField) ([]byte, error) {
	values := map[string]uint64{
		"ftype":    uint64(FieldCompressedRequest),
		"cmd":      uint64(f.Cmd),
		"vchan":    uint64(f.Vchan),
		"asi":      uint64(f.Asi),
		"tag":      uint64(f.Tag),
		"pool":     boolBit(f.Pool),
		"len":      uint64(f.Len),
		"metadata": uint64(f.Metadata),
		"addr":     uint64(f.Addr),
		"srcaccid": uint64(f.Srcaccid),
		"dstaccid": uint64(f.Dstaccid),
		"cway":     uint64(f.Cway),
	}
	return bitcodec.Pack(compressedRequestFormat, values)
}

// DecodeCompressedRequestField unpacks an 8-byte wire form into f.
func DecodeCompressedRequestField(data []byte) (CompressedRequestField, error) {
	fields, err := bitcodec.Unpack(compressedRequestFormat, data)
	if err != nil {
		return CompressedRequestField{}, err
	}
	return CompressedRequestField{
		Cmd:      uint8(fields["cmd"]),
		Vchan:    uint8(fields["vchan"]),
		Asi:      uint8(fields["asi"]),
		Tag:      uint16(fields["tag"]),
		Pool:     fields["pool"] != 0,
		Len:      uint8(fields["len"]),
		Metadata: uint8(fields["metadata"]),
		Addr:     uint16(fields["addr"]),
		Srcaccid: uint16(fields["srcaccid"]),
		Dstaccid: uint16(fields["dstaccid"]),
		Cway:     uint8(fields["cway"]),
	}, nil
}

var compressedSingleBeatReadResponseFormat = bitcodec.Format{
	{Name: "ftype", Bits: 4},
	{Name: "vchan", Bits: 2},
	{Name: "tag", Bits: 11},
	{Name: "pool", Bits: 1},
	{Name: "dstaccid", Bits: 10},
	{Name: "offset", Bits: 2},
	{Name: "last", Bits: 1},
	{Name: "spare", Bits: 1},
}

// CompressedSingleBeatReadResponseField is the 32-bit compressed
// single-beat read response field set.
type CompressedSingleBeatReadResponseField struct {
	Vchan    uint8
	Tag      uint16
	Pool     bool
	Dstaccid uint16
	Offset   uint8
	Last     bool
}

// EncodeCompressedSingleBeatReadResponseField packs f into its 4-byte
// wire form.
func EncodeCompressedSingleBeatReadResponseField(f CompressedSingleBeatReadResponseField) ([]byte, error) {
	values := map[string]uint64{
		"ftype":    uint64(FieldCompressedResponseSingleBeatRead),
		"vchan":    uint64(f.Vchan),
		"tag":      uint64(f.Tag),
		"pool":     boolBit(f.Pool),
		"dstaccid": uint64(f.Dstaccid),
		"offset":   uint64(f.Offset),
		"last":     boolBit(f.Last),
	}
	return bitcodec.Pack(compressedSingleBeatReadResponseFormat, values)
}

// DecodeCompressedSingleBeatReadResponseField unpacks a 4-byte wire form.
func DecodeCompressedSingleBeatReadResponseField(data []byte) (CompressedSingleBeatReadResponseField, error) {
	fields, err := bitcodec.Unpack(compressedSingleBeatReadResponseFormat, data)
	if err != nil {
		return CompressedSingleBeatReadResponseField{}, err
	}
	return CompressedSingleBeatReadResponseField{
		Vchan:    uint8(fields["vchan"]),
		Tag:      uint16(fields["tag"]),
		Pool:     fields["pool"] != 0,
		Dstaccid: uint16(fields["dstaccid"]),
		Offset:   uint8(fields["offset"]),
		Last:     fields["last"] != 0,
	}, nil
}

var compressedWriteOrMultiBeatReadResponseFormat = bitcodec.Format{
	{Name: "ftype", Bits: 4},
	{Name: "vchan", Bits: 2},
	{Name: "tag", Bits: 11},
	{Name: "pool", Bits: 1},
	{Name: "dstaccid", Bits: 10},
	{Name: "len", Bits: 2},
	{Name: "rd_wr", Bits: 1},
	{Name: "spare", Bits: 1},
}

// CompressedWriteOrMultiBeatReadResponseField is the 32-bit compressed
// write/multi-beat-read response field set.
type CompressedWriteOrMultiBeatReadResponseField struct {
	Vchan    uint8
	Tag      uint16
	Pool     bool
	Dstaccid uint16
	Len      uint8
	RdWr     bool
}

// EncodeCompressedWriteOrMultiBeatReadResponseField packs f into its
// 4-byte wire form.
func EncodeCompressedWriteOrMultiBeatReadResponseField(f CompressedWriteOrMultiBeatReadResponseField) ([]byte, error) {
	values := map[string]uint64{
		"ftype":    uint64(FieldCompressedResponseWriteOrMultiBeatRead),
		"vchan":    uint64(f.Vchan),
		"tag":      uint64(f.Tag),
		"pool":     boolBit(f.Pool),
		"dstaccid": uint64(f.Dstaccid),
		"len":      uint64(f.Len),
		"rd_wr":    boolBit(f.RdWr),
	}
	return bitcodec.Pack(compressedWriteOrMultiBeatReadResponseFormat, values)
}

// DecodeCompressedWriteOrMultiBeatReadResponseField unpacks a 4-byte
// wire form.
func DecodeCompressedWriteOrMultiBeatReadResponseField(data []byte) (CompressedWriteOrMultiBeatReadResponseField, error) {
	fields, err := bitcodec.Unpack(compressedWriteOrMultiBeatReadResponseFormat, data)
	if err != nil {
		return CompressedWriteOrMultiBeatReadResponseField{}, err
	}
	return CompressedWriteOrMultiBeatReadResponseField{
		Vchan:    uint8(fields["vchan"]),
		Tag:      uint16(fields["tag"]),
		Pool:     fields["pool"] != 0,
		Dstaccid: uint16(fields["dstaccid"]),
		Len:      uint8(fields["len"]),
		RdWr:     fields["rd_wr"] != 0,
	}, nil
}

var flowControlNopFormat = bitcodec.Format{
	{Name: "ftype", Bits: 4},
	{Name: "req_cmd", Bits: 6},
	{Name: "rsp_cmd", Bits: 6},
	{Name: "req_data", Bits: 8},
	{Name: "rsp_data", Bits: 8},
}

// FlowControlNopField is the 32-bit flow-control/no-op field set.
type FlowControlNopField struct {
	ReqCmd  uint8
	RspCmd  uint8
	ReqData uint8
	RspData uint8
}

// EncodeFlowControlNopField packs f into its 4-byte wire form.
func EncodeFlowControlNopField(f FlowControlNopField) ([]byte, error) {
	values := map[string]uint64{
		"ftype":    uint64(FieldFlowControlNop),
		"req_cmd":  uint64(f.ReqCmd),
		"rsp_cmd":  uint64(f.RspCmd),
		"req_data": uint64(f.ReqData),
		"rsp_data": uint64(f.RspData),
	}
	return bitcodec.Pack(flowControlNopFormat, values)
}

// DecodeFlowControlNopField unpacks a 4-byte wire form.
func DecodeFlowControlNopField(data []byte) (FlowControlNopField, error) {
	fields, err := bitcodec.Unpack(flowControlNopFormat, data)
	if err != nil {
		return FlowControlNopField{}, err
	}
	return FlowControlNopField{
		ReqCmd:  uint8(fields["req_cmd"]),
		RspCmd:  uint8(fields["rsp_cmd"]),
		ReqData: uint8(fields["req_data"]),
		RspData: uint8(fields["rsp_data"]),
	}, nil
}

func boolBit(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
