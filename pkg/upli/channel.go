// Package upli implements the UPLI accelerator-port channel encoding:
// the request, originator-data, read-response, write-response and
// credit-return channel formats, and the per-port/per-VC credit manager
// that gates sends on them.
package upli

import (
	"errors"

	"github.com/rosslwheeler/ualink-go/pkg/bitcodec"
)

// MaxPorts is the number of TDM-routed accelerator ports a channel
// multiplexes.
const MaxPorts = 4

// DataBeatBytes is the size of a single data beat on the originator-data
// or read-response channel.
const DataBeatBytes = 64

// ErrDataBeatSize is returned when a data payload does not match
// DataBeatBytes exactly.
var ErrDataBeatSize = errors.New("upli: data payload must be exactly DataBeatBytes")

var requestFormat = bitcodec.Format{
	{Name: "req_vld", Bits: 1},
	{Name: "req_port_id", Bits: 2},
	{Name: "req_src_phys_acc_id", Bits: 10},
	{Name: "req_dst_phys_acc_id", Bits: 10},
	{Name: "req_tag", Bits: 11},
	{Name: "req_addr", Bits: 57},
	{Name: "req_cmd", Bits: 6},
	{Name: "req_len", Bits: 6},
	{Name: "req_num_beats", Bits: 2},
	{Name: "req_attr", Bits: 8},
	{Name: "req_meta_data", Bits: 8},
	{Name: "req_vc", Bits: 2},
	{Name: "req_auth_tag", Bits: 64},
}

// RequestFields is the UPLI request channel's control fields. A data
// payload, if any, travels separately on the originator-data channel.
type RequestFields struct {
	Valid           bool
	PortId          uint8
	SrcPhysAccId    uint16
	DstPhysAccId    uint16
	Tag             uint16
	Addr            uint64 // 57 bits
	Cmd             uint8
	Len             uint8
	NumBeats        uint8
	Attr            uint8
	MetaData        uint8
	Vc              uint8
	AuthTag         uint64
}

// EncodeRequest packs f into its wire form.
func EncodeRequest(f RequestFields) ([]byte, error) {
	values := map[string]uint64{
		"req_vld":             boolBit(f.Valid),
		"req_port_id":         uint64(f.PortId),
		"req_src_phys_acc_id": uint64(f.SrcPhysAccId),
		"req_dst_phys_acc_id": uint64(f.DstPhysAccId),
		"req_tag":             uint64(f.Tag),
		"req_addr":            f.Addr,
		"req_cmd":             uint64(f.Cmd),
		"req_len":             uint64(f.Len),
		"req_num_beats":       uint64(f.NumBeats),
		"req_attr":            uint64(f.Attr),
		"req_meta_data":       uint64(f.MetaData),
		"req_vc":              uint64(f.Vc),
		"req_auth_tag":        f.AuthTag,
	}
	return bitcodec.Pack(requestFormat, values)
}

// DecodeRequest unpacks a request channel wire form.
func DecodeRequest(data []byte) (RequestFields, error) {
	fields, err := bitcodec.Unpack(requestFormat, data)
	if err != nil {
		return RequestFields{}, err
	}
	return RequestFields{
		Valid:        fields["req_vld"] != 0,
		PortId:       uint8(fields["req_port_id"]),
		SrcPhysAccId: uint16(fields["req_src_phys_acc_id"]),
		DstPhysAccId: uint16(fields["req_dst_phys_acc_id"]),
		Tag:          uint16(fields["req_tag"]),
		Addr:         fields["req_addr"],
		Cmd:          uint8(fields["req_cmd"]),
		Len:          uint8(fields["req_len"]),
		NumBeats:     uint8(fields["req_num_beats"]),
		Attr:         uint8(fields["req_attr"]),
		MetaData:     uint8(fields["req_meta_data"]),
		Vc:           uint8(fields["req_vc"]),
		AuthTag:      fields["req_auth_tag"],
	}, nil
}

var origDataControlFormat = bitcodec.Format{
	{Name: "orig_data_vld", Bits: 1},
	{Name: "orig_data_port_id", Bits: 2},
	{Name: "orig_data_error", Bits: 1},
	{Name: "reserved", Bits: 4},
}

// OrigDataFields is one beat of the originator-data channel: a 1-byte
// control header followed by a fixed 64-byte payload.
type OrigDataFields struct {
	Valid  bool
	PortId uint8
	Error  bool
	Data   [DataBeatBytes]byte
}

// EncodeOrigData packs f into its wire form: 1 control byte + 64 data
// bytes.
func EncodeOrigData(f OrigDataFields) ([]byte, error) {
	ctrl, err := bitcodec.Pack(origDataControlFormat, map[string]uint64{
		"orig_data_vld":     boolBit(f.Valid),
		"orig_data_port_id": uint64(f.PortId),
		"orig_data_error":   boolBit(f.Error),
	})
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(ctrl)+DataBeatBytes)
	copy(out, ctrl)
	copy(out[len(ctrl):], f.Data[:])
	return out, nil
}

// DecodeOrigData unpacks a control byte + 64-byte payload wire form.
func DecodeOrigData(data []byte) (OrigDataFields, error) {
	ctrlLen := origDataControlFormat.Bytes()
	if len(data) != ctrlLen+DataBeatBytes {
		return OrigDataFields{}, ErrDataBeatSize
	}
	fields, err := bitcodec.Unpack(origDataControlFormat, data[:ctrlLen])
	if err != nil {
		return OrigDataFields{}, err
	}
	out := OrigDataFields{
		Valid:  fields["orig_data_vld"] != 0,
		PortId: uint8(fields["orig_data_port_id"]),
		Error:  fields["orig_data_error"] != 0,
	}
	copy(out.Data[:], data[ctrlLen:])
	return out, nil
}

var rdRspFormat = bitcodec.Format{
	{Name: "rd_rsp_vld", Bits: 1},
	{Name: "rd_rsp_port_id", Bits: 2},
	{Name: "rd_rsp_tag", Bits: 11},
	{Name: "rd_rsp_status", Bits: 4},
	{Name: "rd_rsp_attr", Bits: 8},
	{Name: "rd_rsp_data_error", Bits: 1},
	{Name: "rd_rsp_auth_tag", Bits: 64},
	{Name: "reserved", Bits: 5},
}

// RdRspFields is the UPLI read-response channel: a control header plus
// a 64-byte read-data payload.
type RdRspFields struct {
	Valid     bool
	PortId    uint8
	Tag       uint16
	Status    uint8
	Attr      uint8
	DataError bool
	AuthTag   uint64
	Data      [DataBeatBytes]byte
}

// EncodeRdRsp packs f into its wire form.
func EncodeRdRsp(f RdRspFields) ([]byte, error) {
	ctrl, err := bitcodec.Pack(rdRspFormat, map[string]uint64{
		"rd_rsp_vld":        boolBit(f.Valid),
		"rd_rsp_port_id":    uint64(f.PortId),
		"rd_rsp_tag":        uint64(f.Tag),
		"rd_rsp_status":     uint64(f.Status),
		"rd_rsp_attr":       uint64(f.Attr),
		"rd_rsp_data_error": boolBit(f.DataError),
		"rd_rsp_auth_tag":   f.AuthTag,
	})
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(ctrl)+DataBeatBytes)
	copy(out, ctrl)
	copy(out[len(ctrl):], f.Data[:])
	return out, nil
}

// DecodeRdRsp unpacks a read-response wire form.
func DecodeRdRsp(data []byte) (RdRspFields, error) {
	ctrlLen := rdRspFormat.Bytes()
	if len(data) != ctrlLen+DataBeatBytes {
		return RdRspFields{}, ErrDataBeatSize
	}
	fields, err := bitcodec.Unpack(rdRspFormat, data[:ctrlLen])
	if err != nil {
		return RdRspFields{}, err
	}
	out := RdRspFields{
		Valid:     fields["rd_rsp_vld"] != 0,
		PortId:    uint8(fields["rd_rsp_port_id"]),
		Tag:       uint16(fields["rd_rsp_tag"]),
		Status:    uint8(fields["rd_rsp_status"]),
		Attr:      uint8(fields["rd_rsp_attr"]),
		DataError: fields["rd_rsp_data_error"] != 0,
		AuthTag:   fields["rd_rsp_auth_tag"],
	}
	copy(out.Data[:], data[ctrlLen:])
	return out, nil
}

var wrRspFormat = bitcodec.Format{
	{Name: "wr_rsp_vld", Bits: 1},
	{Name: "wr_rsp_port_id", Bits: 2},
	{Name: "wr_rsp_tag", Bits: 11},
	{Name: "wr_rsp_status", Bits: 4},
	{Name: "wr_rsp_attr", Bits: 8},
	{Name: "wr_rsp_auth_tag", Bits: 64},
	{Name: "reserved", Bits: 6},
}

// WrRspFields is the UPLI write-response channel: no data payload.
type WrRspFields struct {
	Valid   bool
	PortId  uint8
	Tag     uint16
	Status  uint8
	Attr    uint8
	AuthTag uint64
}

// EncodeWrRsp packs f into its wire form.
func EncodeWrRsp(f WrRspFields) ([]byte, error) {
	return bitcodec.Pack(wrRspFormat, map[string]uint64{
		"wr_rsp_vld":     boolBit(f.Valid),
		"wr_rsp_port_id": uint64(f.PortId),
		"wr_rsp_tag":     uint64(f.Tag),
		"wr_rsp_status":  uint64(f.Status),
		"wr_rsp_attr":    uint64(f.Attr),
		"wr_rsp_auth_tag": f.AuthTag,
	})
}

// DecodeWrRsp unpacks a write-response wire form.
func DecodeWrRsp(data []byte) (WrRspFields, error) {
	fields, err := bitcodec.Unpack(wrRspFormat, data)
	if err != nil {
		return WrRspFields{}, err
	}
	return WrRspFields{
		Valid:   fields["wr_rsp_vld"] != 0,
		PortId:  uint8(fields["wr_rsp_port_id"]),
		Tag:     uint16(fields["wr_rsp_tag"]),
		Status:  uint8(fields["wr_rsp_status"]),
		Attr:    uint8(fields["wr_rsp_attr"]),
		AuthTag: fields["wr_rsp_auth_tag"],
	}, nil
}

var creditPortFormat = bitcodec.Format{
	{Name: "credit_vld", Bits: 1},
	{Name: "credit_pool", Bits: 1},
	{Name: "credit_vc", Bits: 2},
	{Name: "credit_num", Bits: 2},
	{Name: "credit_init_done", Bits: 1},
	{Name: "reserved", Bits: 1},
}

// CreditPortFields is one port's slot within a credit-return message.
// CreditNum is the 0-3 encoding of actual credits returned (actual =
// CreditNum + 1).
type CreditPortFields struct {
	Valid     bool
	Pool      bool
	Vc        uint8
	CreditNum uint8
	InitDone  bool
}

// CreditReturn is the full credit-return message across all MaxPorts
// ports, packed one byte per port.
type CreditReturn struct {
	Ports [MaxPorts]CreditPortFields
}

// EncodeCreditReturn packs c into its wire form: one byte per port, in
// port order.
func EncodeCreditReturn(c CreditReturn) ([]byte, error) {
	out := make([]byte, 0, MaxPorts)
	for _, p := range c.Ports {
		b, err := bitcodec.Pack(creditPortFormat, map[string]uint64{
			"credit_vld":       boolBit(p.Valid),
			"credit_pool":      boolBit(p.Pool),
			"credit_vc":        uint64(p.Vc),
			"credit_num":       uint64(p.CreditNum),
			"credit_init_done": boolBit(p.InitDone),
		})
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// DecodeCreditReturn unpacks a MaxPorts-byte credit-return wire form.
func DecodeCreditReturn(data []byte) (CreditReturn, error) {
	if len(data) != MaxPorts {
		return CreditReturn{}, ErrDataBeatSize
	}
	var out CreditReturn
	for i := 0; i < MaxPorts; i++ {
		fields, err := bitcodec.Unpack(creditPortFormat, data[i:i+1])
		if err != nil {
			return CreditReturn{}, err
		}
		out.Ports[i] = CreditPortFields{
			Valid:     fields["credit_vld"] != 0,
			Pool:      fields["credit_pool"] != 0,
			Vc:        uint8(fields["credit_vc"]),
			CreditNum: uint8(fields["credit_num"]),
			InitDone:  fields["credit_init_done"] != 0,
		}
	}
	return out, nil
}

func boolBit(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
