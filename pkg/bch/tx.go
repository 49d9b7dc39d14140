package bch

import (
	"encoding/binary"
	"fmt"
)

const CoinbaseVOut = 0xffffffff

type Tx struct {
	Version  uint32
	Inputs   []TxIn
	Outputs  []TxOut
	LockTime uint32
	TxID     string // hex, computed from tx data
}

type TxIn struct {
	PrevTxID string // display-order hex of the spent transaction
	PrevVOut uint32
	Script   []byte // varied length
	Sequence uint32
}

type TxOut struct {
	Value  int64 // satoshis
	Script []byte
}

func (in TxIn) IsCoinbase() bool {
	return in.PrevVOut == CoinbaseVOut && in.PrevTxID == nullHashHex
}

var nullHashHex = HexEncode(make([]byte, 32))

// DecodeTx parses a serialized (non-segwit) transaction.
func DecodeTx(txBytes []byte) (Tx, error) {
	s := NewStream(txBytes)
	tx := readTx(s)
	if !s.Valid() {
		return Tx{}, fmt.Errorf("DecodeTx: truncated transaction (%d bytes)", len(txBytes))
	}
	if !s.Complete() {
		return Tx{}, fmt.Errorf("DecodeTx: %d trailing bytes after transaction", uint64(len(txBytes))-s.Pos())
	}
	return tx, nil
}

func readTx(s *Stream) (tx Tx) {
	start := s.p
	tx.Version = s.Uint32le()
	numIn := s.VarUint()
	for i := uint64(0); i < numIn && s.Valid(); i++ {
		tx.Inputs = append(tx.Inputs, readTxIn(s))
	}
	numOut := s.VarUint()
	for i := uint64(0); i < numOut && s.Valid(); i++ {
		tx.Outputs = append(tx.Outputs, readTxOut(s))
	}
	tx.LockTime = s.Uint32le()
	if s.Valid() {
		// Compute TX hash from transaction bytes.
		tx.TxID = TxHashHex(s.b[start:s.p])
	}
	return
}

func readTxIn(s *Stream) (in TxIn) {
	in.PrevTxID = HexEncodeReversed(s.Bytes(32))
	in.PrevVOut = s.Uint32le()
	scriptLen := s.VarUint()
	in.Script = s.Bytes(scriptLen)
	in.Sequence = s.Uint32le()
	return
}

func readTxOut(s *Stream) (out TxOut) {
	out.Value = int64(s.Uint64le())
	scriptLen := s.VarUint()
	out.Script = s.Bytes(scriptLen)
	return
}

// EncodeTx serializes a transaction in wire format.
func EncodeTx(tx Tx) ([]byte, error) {
	var b []byte
	b = binary.LittleEndian.AppendUint32(b, tx.Version)
	b = appendVarUint(b, uint64(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		prev, err := HexDecodeReversed(in.PrevTxID)
		if err != nil || len(prev) != 32 {
			return nil, fmt.Errorf("EncodeTx: bad input txid %q", in.PrevTxID)
		}
		b = append(b, prev...)
		b = binary.LittleEndian.AppendUint32(b, in.PrevVOut)
		b = appendVarUint(b, uint64(len(in.Script)))
		b = append(b, in.Script...)
		b = binary.LittleEndian.AppendUint32(b, in.Sequence)
	}
	b = appendVarUint(b, uint64(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		b = binary.LittleEndian.AppendUint64(b, uint64(out.Value))
		b = appendVarUint(b, uint64(len(out.Script)))
		b = append(b, out.Script...)
	}
	b = binary.LittleEndian.AppendUint32(b, tx.LockTime)
	return b, nil
}

func appendVarUint(b []byte, v uint64) []byte {
	switch {
	case v < 253:
		return append(b, byte(v))
	case v <= 0xffff:
		return binary.LittleEndian.AppendUint16(append(b, 253), uint16(v))
	case v <= 0xffffffff:
		return binary.LittleEndian.AppendUint32(append(b, 254), uint32(v))
	default:
		return binary.LittleEndian.AppendUint64(append(b, 255), v)
	}
}
