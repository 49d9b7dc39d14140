package slpg

import (
	"context"
	"time"

	"github.com/simpleledger/slpgraph/pkg/bch"
)

// NodeClient represents access to a full node.
//
// Calls may time out; implementations retry transient failures
// a bounded number of times before returning an error.
type NodeClient interface {
	GetRawTransaction(ctx context.Context, txid string) ([]byte, error)
	// GetTxOut reports whether the output is in the node's UTXO set.
	// Spent, pruned, and unknown outputs all report Unspent=false.
	GetTxOut(ctx context.Context, txid string, vout uint32) (TxOutStatus, error)
	// GetTxInfo reports where a transaction was mined, if it was.
	GetTxInfo(ctx context.Context, txid string) (TxInfo, error)
	GetBlockCount(ctx context.Context) (int64, error)
}

type TxInfo struct {
	BlockHash     string
	BlockTime     time.Time // zero while unconfirmed
	Confirmations int64
}

type TxOutStatus struct {
	Unspent       bool
	Satoshis      int64
	Confirmations int64
}

// SpendQuery is the remote indexed-query service: it finds transactions
// whose inputs reference an outpoint, including spends the node pruned.
type SpendQuery interface {
	FindSpendingTxns(ctx context.Context, out Outpoint) ([]SpendMatch, error)
}

// SpendMatch is one transaction returned by a SpendQuery.
type SpendMatch struct {
	TxID        string
	TokenID     string
	BlockHeight int64 // 0 when unconfirmed
	BlockTime   time.Time
	Outputs     []SpentOutput // index 0 is the OP_RETURN output
}

type SpentOutput struct {
	Satoshis int64
	Quantity TokenAmount
}

type SpendState int

const (
	SpendUnknown SpendState = iota // this source cannot tell
	SpendUnspent
	SpendSpent
)

// SpendOutcome is the reconciled answer for one outpoint.
type SpendOutcome struct {
	State       SpendState
	SpendTxID   string
	BlockHeight int64
	BlockTime   time.Time
	Outputs     []SpentOutput
}

// SpendFinder is one source of spend information. Finders are
// composed into a fallback chain; SpendUnknown passes to the next.
type SpendFinder interface {
	FindSpend(ctx context.Context, out Outpoint) (SpendOutcome, error)
}

// RawTxProvider fetches raw transaction bytes on demand.
type RawTxProvider func(ctx context.Context, txid string) ([]byte, error)

// TokenDetails are the decoded protocol fields of a token transaction.
type TokenDetails struct {
	Type         TxType        `json:"type"`
	TokenID      string        `json:"token_id"`
	Ticker       string        `json:"ticker,omitempty"`
	Name         string        `json:"name,omitempty"`
	DocumentURI  string        `json:"document_uri,omitempty"`
	DocumentHash string        `json:"document_hash,omitempty"`
	Decimals     int           `json:"decimals"`
	Quantity     TokenAmount   `json:"quantity"`   // GENESIS or MINT quantity
	BatonVOut    int           `json:"baton_vout"` // -1 when there is no mint baton
	SendOutputs  []TokenAmount `json:"send_outputs,omitempty"`
}

// OutputQuantity returns the token quantity carried by output vout.
func (d TokenDetails) OutputQuantity(vout uint32) TokenAmount {
	switch d.Type {
	case TxIssuance, TxMint:
		if vout == 1 {
			return d.Quantity
		}
	case TxTransfer:
		if int(vout) < len(d.SendOutputs) {
			return d.SendOutputs[vout]
		}
	}
	return ZeroTokens
}

// ValidationResult is the validator's verdict for one transaction.
type ValidationResult struct {
	TxID          string
	Details       TokenDetails
	Valid         bool
	InvalidReason string
	Tx            bch.Tx
}

// Validator proves whether a transaction follows the token protocol.
type Validator interface {
	Validate(ctx context.Context, txid string) (ValidationResult, error)
}
