package bch

import (
	"encoding/binary"
	"fmt"
)

const (
	OP_0             = 0x00
	OP_PUSHDATA1     = 0x4c
	OP_PUSHDATA2     = 0x4d
	OP_PUSHDATA4     = 0x4e
	OP_1             = 0x51
	OP_16            = 0x60
	OP_RETURN        = 0x6a
	OP_DUP           = 0x76
	OP_EQUAL         = 0x87
	OP_EQUALVERIFY   = 0x88
	OP_HASH160       = 0xa9
	OP_CHECKSIG      = 0xac
	OP_CHECKMULTISIG = 0xae
)

// Script types, inferred from ScriptPubKey templates.
type ScriptType string

const (
	ScriptTypeP2PKH    ScriptType = "p2pkh"
	ScriptTypeP2SH     ScriptType = "p2sh"
	ScriptTypeNullData ScriptType = "nulldata"
	ScriptTypeCustom   ScriptType = "custom"
)

func ClassifyScript(script []byte) ScriptType {
	L := len(script)
	// P2PKH: OP_DUP OP_HASH160 <pubKeyHash:20> OP_EQUALVERIFY OP_CHECKSIG (25)
	if L == 25 && script[0] == OP_DUP && script[1] == OP_HASH160 && script[2] == 20 &&
		script[23] == OP_EQUALVERIFY && script[24] == OP_CHECKSIG {
		return ScriptTypeP2PKH
	}
	// P2SH: OP_HASH160 0x14 <hash> OP_EQUAL
	if L == 23 && script[0] == OP_HASH160 && script[1] == 20 && script[22] == OP_EQUAL {
		return ScriptTypeP2SH
	}
	if L > 0 && script[0] == OP_RETURN {
		return ScriptTypeNullData
	}
	return ScriptTypeCustom
}

// NullDataPushes returns the data pushes following OP_RETURN.
// Every element after OP_RETURN must be a data push; OP_0 and
// OP_1..OP_16 are rejected since they are not byte pushes.
func NullDataPushes(script []byte) ([][]byte, error) {
	if len(script) == 0 || script[0] != OP_RETURN {
		return nil, fmt.Errorf("script is not OP_RETURN")
	}
	s := NewStream(script[1:])
	var pushes [][]byte
	for !s.Complete() {
		op := s.Uint8()
		var size uint64
		switch {
		case op >= 0x01 && op < OP_PUSHDATA1:
			size = uint64(op)
		case op == OP_PUSHDATA1:
			size = uint64(s.Uint8())
		case op == OP_PUSHDATA2:
			size = uint64(s.Uint16le())
		case op == OP_PUSHDATA4:
			size = uint64(s.Uint32le())
		default:
			return nil, fmt.Errorf("non-push opcode 0x%02x in OP_RETURN", op)
		}
		data := s.Bytes(size)
		if !s.Valid() {
			return nil, fmt.Errorf("push of %d bytes overruns script", size)
		}
		pushes = append(pushes, data)
	}
	return pushes, nil
}

// NullDataScript builds an OP_RETURN script from pushes, using the
// smallest push opcode; empty pushes are encoded as OP_PUSHDATA1 0x00.
func NullDataScript(pushes ...[]byte) []byte {
	b := []byte{OP_RETURN}
	for _, p := range pushes {
		n := len(p)
		switch {
		case n > 0 && n < OP_PUSHDATA1:
			b = append(b, byte(n))
		case n <= 0xff:
			b = append(b, OP_PUSHDATA1, byte(n))
		case n <= 0xffff:
			b = binary.LittleEndian.AppendUint16(append(b, OP_PUSHDATA2), uint16(n))
		default:
			b = binary.LittleEndian.AppendUint32(append(b, OP_PUSHDATA4), uint32(n))
		}
		b = append(b, p...)
	}
	return b
}
