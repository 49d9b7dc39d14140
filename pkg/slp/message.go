package slp

import (
	"fmt"

	slpg "github.com/simpleledger/slpgraph/pkg"
	"github.com/simpleledger/slpgraph/pkg/bch"
)

// SLP token type 1 envelope, carried in the OP_RETURN of output 0.
//
//	OP_RETURN <lokad "SLP\x00"> <token_type> <tx_type> <fields...>
const (
	TokenTypeFungible = 1
	MaxSendOutputs    = 19
	MaxDecimals       = 9
)

var lokadID = []byte("SLP\x00")

// MessageError reports an SLP envelope that is present but malformed.
// Such a transaction is a token transaction, and invalid.
type MessageError struct {
	Reason string
}

func (e MessageError) Error() string {
	return "slp: " + e.Reason
}

func malformed(format string, args ...any) error {
	return MessageError{Reason: fmt.Sprintf(format, args...)}
}

// ParseMessage decodes the SLP envelope of a transaction's output 0.
// Transactions without the lokad prefix fail with NotTokenTransaction;
// a malformed envelope fails with a MessageError.
func ParseMessage(tx bch.Tx) (slpg.TokenDetails, error) {
	if len(tx.Outputs) == 0 || bch.ClassifyScript(tx.Outputs[0].Script) != bch.ScriptTypeNullData {
		return slpg.TokenDetails{}, slpg.NewErr(slpg.NotTokenTransaction, "tx %s: output 0 is not OP_RETURN", tx.TxID)
	}
	pushes, err := bch.NullDataPushes(tx.Outputs[0].Script)
	if err != nil || len(pushes) == 0 || string(pushes[0]) != string(lokadID) {
		return slpg.TokenDetails{}, slpg.NewErr(slpg.NotTokenTransaction, "tx %s: no SLP envelope", tx.TxID)
	}
	d, err := parsePushes(pushes[1:])
	if err == nil && d.Type == slpg.TxIssuance {
		d.TokenID = slpg.TokenIDFromGenesis(tx.TxID)
	}
	return d, err
}

func parsePushes(p [][]byte) (slpg.TokenDetails, error) {
	d := slpg.TokenDetails{BatonVOut: -1, Quantity: slpg.ZeroTokens}
	if len(p) < 2 {
		return d, malformed("missing token type or transaction type")
	}
	if len(p[0]) < 1 || len(p[0]) > 2 {
		return d, malformed("token type must be 1 or 2 bytes")
	}
	tokenType := 0
	for _, b := range p[0] {
		tokenType = tokenType<<8 | int(b)
	}
	if tokenType != TokenTypeFungible {
		return d, malformed("unsupported token type %d", tokenType)
	}
	fields := p[2:]
	switch string(p[1]) {
	case "GENESIS":
		return parseGenesis(d, fields)
	case "MINT":
		return parseMint(d, fields)
	case "SEND":
		return parseSend(d, fields)
	}
	return d, malformed("unknown transaction type %q", p[1])
}

func parseGenesis(d slpg.TokenDetails, f [][]byte) (slpg.TokenDetails, error) {
	if len(f) != 7 {
		return d, malformed("GENESIS needs 7 fields, got %d", len(f))
	}
	d.Type = slpg.TxIssuance
	d.Ticker = string(f[0])
	d.Name = string(f[1])
	d.DocumentURI = string(f[2])
	if len(f[3]) != 0 && len(f[3]) != 32 {
		return d, malformed("document hash must be 0 or 32 bytes")
	}
	d.DocumentHash = bch.HexEncode(f[3])
	if len(f[4]) != 1 || f[4][0] > MaxDecimals {
		return d, malformed("decimals must be one byte in 0..%d", MaxDecimals)
	}
	d.Decimals = int(f[4][0])
	baton, err := parseBaton(f[5])
	if err != nil {
		return d, err
	}
	d.BatonVOut = baton
	qty, err := AmountFromBytes(f[6])
	if err != nil {
		return d, malformed("initial quantity: %v", err)
	}
	d.Quantity = qty
	return d, nil
}

func parseMint(d slpg.TokenDetails, f [][]byte) (slpg.TokenDetails, error) {
	if len(f) != 3 {
		return d, malformed("MINT needs 3 fields, got %d", len(f))
	}
	d.Type = slpg.TxMint
	if len(f[0]) != 32 {
		return d, malformed("token id must be 32 bytes")
	}
	d.TokenID = bch.HexEncode(f[0])
	baton, err := parseBaton(f[1])
	if err != nil {
		return d, err
	}
	d.BatonVOut = baton
	qty, err := AmountFromBytes(f[2])
	if err != nil {
		return d, malformed("mint quantity: %v", err)
	}
	d.Quantity = qty
	return d, nil
}

func parseSend(d slpg.TokenDetails, f [][]byte) (slpg.TokenDetails, error) {
	if len(f) < 2 {
		return d, malformed("SEND needs a token id and at least one amount")
	}
	if len(f)-1 > MaxSendOutputs {
		return d, malformed("SEND lists %d amounts, max %d", len(f)-1, MaxSendOutputs)
	}
	d.Type = slpg.TxTransfer
	if len(f[0]) != 32 {
		return d, malformed("token id must be 32 bytes")
	}
	d.TokenID = bch.HexEncode(f[0])
	// index 0 is the OP_RETURN output itself
	d.SendOutputs = []slpg.TokenAmount{slpg.ZeroTokens}
	for i, raw := range f[1:] {
		qty, err := AmountFromBytes(raw)
		if err != nil {
			return d, malformed("amount %d: %v", i+1, err)
		}
		d.SendOutputs = append(d.SendOutputs, qty)
	}
	return d, nil
}

func parseBaton(b []byte) (int, error) {
	switch len(b) {
	case 0:
		return -1, nil
	case 1:
		if b[0] < 2 {
			return -1, malformed("mint baton vout must be >= 2")
		}
		return int(b[0]), nil
	}
	return -1, malformed("mint baton vout must be 0 or 1 bytes")
}

// Messages for building token transactions, used by tests and tools.

func GenesisScript(ticker, name, uri string, docHash []byte, decimals byte, baton int, qty slpg.TokenAmount) ([]byte, error) {
	q, err := AmountBytes(qty)
	if err != nil {
		return nil, err
	}
	return bch.NullDataScript(lokadID, []byte{TokenTypeFungible}, []byte("GENESIS"),
		[]byte(ticker), []byte(name), []byte(uri), docHash, []byte{decimals}, batonBytes(baton), q), nil
}

func MintScript(tokenID string, baton int, qty slpg.TokenAmount) ([]byte, error) {
	id, err := bch.HexDecode(tokenID)
	if err != nil {
		return nil, err
	}
	q, err := AmountBytes(qty)
	if err != nil {
		return nil, err
	}
	return bch.NullDataScript(lokadID, []byte{TokenTypeFungible}, []byte("MINT"), id, batonBytes(baton), q), nil
}

func SendScript(tokenID string, amounts ...slpg.TokenAmount) ([]byte, error) {
	id, err := bch.HexDecode(tokenID)
	if err != nil {
		return nil, err
	}
	pushes := [][]byte{lokadID, {TokenTypeFungible}, []byte("SEND"), id}
	for _, a := range amounts {
		q, err := AmountBytes(a)
		if err != nil {
			return nil, err
		}
		pushes = append(pushes, q)
	}
	return bch.NullDataScript(pushes...), nil
}

func batonBytes(vout int) []byte {
	if vout < 0 {
		return nil
	}
	return []byte{byte(vout)}
}
