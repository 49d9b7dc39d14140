package slpg

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TokenAmount is an arbitrary-precision token quantity in base units.
type TokenAmount = decimal.Decimal

var ZeroTokens = decimal.Zero

// TxType is the protocol-level classification of a transaction.
type TxType string

const (
	TxIssuance TxType = "issuance" // SLP GENESIS
	TxMint     TxType = "mint"     // SLP MINT
	TxTransfer TxType = "transfer" // SLP SEND
	TxOther    TxType = "other"
)

// Outpoint identifies one transaction output.
type Outpoint struct {
	TxID string `json:"txid"`
	VOut uint32 `json:"vout"`
}

func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID, o.VOut)
}

// TokenMetadata is the immutable issuance record of a token.
type TokenMetadata struct {
	TokenID      string      `json:"token_id"`
	GenesisTxID  string      `json:"genesis_txid"`
	Type         TxType      `json:"type"`
	Ticker       string      `json:"ticker"`
	Name         string      `json:"name"`
	DocumentURI  string      `json:"document_uri"`
	DocumentHash string      `json:"document_hash"`
	Decimals     int         `json:"decimals"`
	Quantity     TokenAmount `json:"quantity"` // issued at genesis
}

// TokenIDFromGenesis derives the token id from its issuance txid.
// For SLP the token id is the genesis txid itself.
func TokenIDFromGenesis(genesisTxID string) string {
	return genesisTxID
}

type OutputStatus string

const (
	OutputUnspent OutputStatus = "unspent"
	OutputSpent   OutputStatus = "spent"
	// spend lookup failed: recorded as unspent until a later run resolves it
	OutputPending OutputStatus = "pending"
)

// OutputRecord is one token-carrying output of a GraphNode.
// SpendTxID is empty while the output is unspent (or pending).
type OutputRecord struct {
	VOut      uint32       `json:"vout"`
	Satoshis  int64        `json:"satoshis"`
	Quantity  TokenAmount  `json:"quantity"`
	SpendTxID string       `json:"spend_txid,omitempty"`
	Status    OutputStatus `json:"status"`
}

func (o OutputRecord) IsSpent() bool {
	return o.SpendTxID != ""
}

// GraphNode records one visited transaction of a token lineage.
type GraphNode struct {
	TxID          string         `json:"txid"`
	Type          TxType         `json:"type"`
	Valid         bool           `json:"valid"`
	InvalidReason string         `json:"invalid_reason,omitempty"`
	BlockHeight   int64          `json:"block_height,omitempty"`
	BlockTime     time.Time      `json:"block_time"`
	Outputs       []OutputRecord `json:"outputs"`
	Baton         *BatonRecord   `json:"baton,omitempty"`
}

// BatonRecord follows the mint baton of an issuance or mint. The baton
// carries no tokens and is never part of the unspent token outputs.
type BatonRecord struct {
	VOut      uint32       `json:"vout"`
	SpendTxID string       `json:"spend_txid,omitempty"`
	Status    OutputStatus `json:"status"`
}

// TokenStats summarises a token graph.
type TokenStats struct {
	LastActiveSend        time.Time   `json:"date_last_active_send"`
	LastActiveMint        time.Time   `json:"date_last_active_mint"`
	ValidTxnsSinceGenesis int         `json:"qty_valid_txns_since_genesis"`
	UnspentOutputs        int         `json:"qty_utxos_holding_valid_tokens"`
	UnspentSatoshis       int64       `json:"qty_satoshis_holding_valid_tokens"`
	Minted                TokenAmount `json:"qty_token_minted"`
	Burned                TokenAmount `json:"qty_token_burned"`
	Unburned              TokenAmount `json:"qty_token_unburned"`
	Complete              bool        `json:"complete"`
}

// GraphSnapshot is a point-in-time copy of a token graph, as persisted
// by a Store. Only Complete snapshots are safe to treat as checkpoints.
type GraphSnapshot struct {
	Token    TokenMetadata `json:"token"`
	Nodes    []GraphNode   `json:"nodes"`
	Unspent  []Outpoint    `json:"unspent"`
	Complete bool          `json:"complete"`
	Updated  time.Time     `json:"updated"`
}
