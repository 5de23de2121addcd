// Package security implements the Security IV (Table 9-3) field layout:
// a 96-bit initialization vector whose top 64 bits are a fixed,
// always-zero field and whose bottom 32 bits are a per-message
// invocation counter.
package security

import (
	"errors"

	"github.com/rosslwheeler/ualink-go/pkg/bitcodec"
)

// Iv96Bytes is the wire size of an Iv96.
const Iv96Bytes = 12

var ivFormat = bitcodec.Format{
	{Name: "fixed", Bits: 64},
	{Name: "invocation", Bits: 32},
}

// Iv96 is a 96-bit security IV: a reserved fixed field that must decode
// as zero, plus a 32-bit invocation counter.
type Iv96 struct {
	Invocation uint32
}

// ErrNonZeroFixed is returned by DecodeIv96 when the fixed field is not
// all-zero, per Table 9-3's reserved-field contract.
var ErrNonZeroFixed = errors.New("security: iv96 fixed field is non-zero")

// EncodeIv96 packs iv into its 12-byte wire form, the fixed field
// always zero.
func EncodeIv96(iv Iv96) ([Iv96Bytes]byte, error) {
	var out [Iv96Bytes]byte
	b, err := bitcodec.Pack(ivFormat, map[string]uint64{
		"fixed":      0,
		"invocation": uint64(iv.Invocation),
	})
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

// DecodeIv96 unpacks a 12-byte wire form into an Iv96, rejecting any
// value whose fixed field is not all-zero.
func DecodeIv96(bytes [Iv96Bytes]byte) (Iv96, error) {
	fields, err := bitcodec.Unpack(ivFormat, bytes[:])
	if err != nil {
		return Iv96{}, err
	}
	if fields["fixed"] != 0 {
		return Iv96{}, ErrNonZeroFixed
	}
	return Iv96{Invocation: uint32(fields["invocation"])}, nil
}
