package slp

import (
	"encoding/binary"
	"math/big"

	"github.com/shopspring/decimal"
	slpg "github.com/simpleledger/slpgraph/pkg"
	"github.com/simpleledger/slpgraph/pkg/bch"
)

var (
	twoPow32  = decimal.NewFromInt(1 << 32)
	maxAmount = new(big.Int).SetUint64(^uint64(0))
)

// DecodeAmount decodes an 8-byte big-endian quantity given as hex,
// ie: "0000000100000000" is 4294967296.
func DecodeAmount(hexAmount string) (slpg.TokenAmount, error) {
	b, err := bch.HexDecode(hexAmount)
	if err != nil {
		return slpg.ZeroTokens, slpg.WrapErr(slpg.MalformedAmount, err, "amount %q is not hex", hexAmount)
	}
	return AmountFromBytes(b)
}

// AmountFromBytes combines the two big-endian 32-bit words as hi*2^32 + lo.
func AmountFromBytes(b []byte) (slpg.TokenAmount, error) {
	if len(b) != 8 {
		return slpg.ZeroTokens, slpg.NewErr(slpg.MalformedAmount, "amount must be 8 bytes, got %d", len(b))
	}
	hi := decimal.NewFromInt(int64(binary.BigEndian.Uint32(b[:4])))
	lo := decimal.NewFromInt(int64(binary.BigEndian.Uint32(b[4:])))
	return hi.Mul(twoPow32).Add(lo), nil
}

// EncodeAmount is the inverse of DecodeAmount.
func EncodeAmount(amount slpg.TokenAmount) (string, error) {
	b, err := AmountBytes(amount)
	if err != nil {
		return "", err
	}
	return bch.HexEncode(b), nil
}

func AmountBytes(amount slpg.TokenAmount) ([]byte, error) {
	if !amount.IsInteger() {
		return nil, slpg.NewErr(slpg.MalformedAmount, "amount %s is not an integer", amount)
	}
	n := amount.BigInt()
	if n.Sign() < 0 || n.Cmp(maxAmount) > 0 {
		return nil, slpg.NewErr(slpg.MalformedAmount, "amount %s out of range", amount)
	}
	return binary.BigEndian.AppendUint64(nil, n.Uint64()), nil
}
