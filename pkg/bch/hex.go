package bch

import (
	"bytes"
	"encoding/hex"
)

func HexEncode(bytes []byte) string {
	return hex.EncodeToString(bytes)
}

func HexEncodeReversed(data []byte) string {
	b := bytes.Clone(data)
	reverseInPlace(b)
	return hex.EncodeToString(b)
}

func HexDecode(str string) ([]byte, error) {
	return hex.DecodeString(str)
}

// HexDecodeReversed decodes a display-order hash (txid) into wire order.
func HexDecodeReversed(str string) ([]byte, error) {
	b, err := hex.DecodeString(str)
	if err != nil {
		return nil, err
	}
	reverseInPlace(b)
	return b, nil
}

func IsValidHex(hex string) bool {
	// eh, this will do.
	_, err := HexDecode(hex)
	return err == nil
}

// IsValidTxID checks for a 64-character hex hash.
func IsValidTxID(txid string) bool {
	return len(txid) == 64 && IsValidHex(txid)
}

func reverseInPlace(a []byte) {
	// https://github.com/golang/go/wiki/SliceTricks#reversing
	for left, right := 0, len(a)-1; left < right; left, right = left+1, right-1 {
		a[left], a[right] = a[right], a[left]
	}
}
