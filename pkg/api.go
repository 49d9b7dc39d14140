package slpg

import (
	"github.com/simpleledger/slpgraph/pkg/bch"
)

// GraphSource is the token graph service as seen by the API:
// read access to the latest graph state plus a refresh trigger.
type GraphSource interface {
	Snapshot(tokenID string) (GraphSnapshot, error)
	Stats(tokenID string) (TokenStats, error)
	// Refresh schedules a traversal from the token's issuance.
	Refresh(tokenID string) error
}

type API struct {
	Graphs GraphSource
}

func NewAPI(graphs GraphSource) API {
	return API{graphs}
}

type TokenResponse struct {
	Token    TokenMetadata `json:"token"`
	Stats    TokenStats    `json:"stats"`
	Nodes    int           `json:"nodes"`
	Complete bool          `json:"complete"`
}

type UnspentOutput struct {
	TxID     string      `json:"txid"`
	VOut     uint32      `json:"vout"`
	Satoshis int64       `json:"satoshis"`
	Quantity TokenAmount `json:"quantity"`
}

func (a API) GetToken(tokenID string) (TokenResponse, error) {
	snap, err := a.snapshot(tokenID)
	if err != nil {
		return TokenResponse{}, err
	}
	stats, err := a.Graphs.Stats(tokenID)
	if err != nil {
		return TokenResponse{}, err
	}
	return TokenResponse{
		Token:    snap.Token,
		Stats:    stats,
		Nodes:    len(snap.Nodes),
		Complete: snap.Complete,
	}, nil
}

func (a API) GetGraph(tokenID string) ([]GraphNode, error) {
	snap, err := a.snapshot(tokenID)
	if err != nil {
		return nil, err
	}
	if snap.Nodes == nil {
		return []GraphNode{}, nil // encoded as '[]' in JSON
	}
	return snap.Nodes, nil
}

// GetUnspent lists the unspent token outputs with their quantities.
func (a API) GetUnspent(tokenID string) ([]UnspentOutput, error) {
	snap, err := a.snapshot(tokenID)
	if err != nil {
		return nil, err
	}
	byTx := make(map[string]GraphNode, len(snap.Nodes))
	for _, n := range snap.Nodes {
		byTx[n.TxID] = n
	}
	items := []UnspentOutput{}
	for _, o := range snap.Unspent {
		item := UnspentOutput{TxID: o.TxID, VOut: o.VOut, Quantity: ZeroTokens}
		for _, rec := range byTx[o.TxID].Outputs {
			if rec.VOut == o.VOut {
				item.Satoshis = rec.Satoshis
				item.Quantity = rec.Quantity
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// GetNode returns one graph node; the token id is accepted as an
// alias for the issuance transaction.
func (a API) GetNode(tokenID string, txID string) (GraphNode, error) {
	if !bch.IsValidTxID(txID) {
		return GraphNode{}, NewErr(BadRequest, "invalid txid: %s", txID)
	}
	snap, err := a.snapshot(tokenID)
	if err != nil {
		return GraphNode{}, err
	}
	if txID == snap.Token.TokenID {
		txID = snap.Token.GenesisTxID
	}
	for _, n := range snap.Nodes {
		if n.TxID == txID {
			return n, nil
		}
	}
	return GraphNode{}, NewErr(NotFound, "transaction %s is not in the graph of %s", txID, tokenID)
}

func (a API) RefreshToken(tokenID string) error {
	if !bch.IsValidTxID(tokenID) {
		return NewErr(BadRequest, "invalid token id: %s", tokenID)
	}
	return a.Graphs.Refresh(tokenID)
}

func (a API) snapshot(tokenID string) (GraphSnapshot, error) {
	if !bch.IsValidTxID(tokenID) {
		return GraphSnapshot{}, NewErr(BadRequest, "invalid token id: %s", tokenID)
	}
	return a.Graphs.Snapshot(tokenID)
}
