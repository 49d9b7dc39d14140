package spend

import (
	"context"
	"errors"
	"log"

	slpg "github.com/simpleledger/slpgraph/pkg"
)

// NodeFinder asks the full node whether an output is in its UTXO set.
// The node cannot name the spender, so anything other than "unspent"
// is reported as SpendUnknown for the next finder in the chain.
type NodeFinder struct {
	Node slpg.NodeClient
}

func (f NodeFinder) FindSpend(ctx context.Context, out slpg.Outpoint) (slpg.SpendOutcome, error) {
	st, err := f.Node.GetTxOut(ctx, out.TxID, out.VOut)
	if err != nil {
		if ctx.Err() != nil {
			return slpg.SpendOutcome{}, ctx.Err()
		}
		// the client already retried; let the remote service answer
		log.Printf("NodeFinder: gettxout %s failed, falling back: %v\n", out, err)
		return slpg.SpendOutcome{State: slpg.SpendUnknown}, nil
	}
	if st.Unspent {
		return slpg.SpendOutcome{State: slpg.SpendUnspent}, nil
	}
	return slpg.SpendOutcome{State: slpg.SpendUnknown}, nil
}

// RemoteFinder asks the indexed query service which transaction spent
// an output. Exactly one match is required.
type RemoteFinder struct {
	Query slpg.SpendQuery
}

func (f RemoteFinder) FindSpend(ctx context.Context, out slpg.Outpoint) (slpg.SpendOutcome, error) {
	matches, err := f.Query.FindSpendingTxns(ctx, out)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return slpg.SpendOutcome{}, err
		}
		return slpg.SpendOutcome{}, slpg.WrapErr(slpg.SpendResolutionFailed, err, "remote query for %s", out)
	}
	if len(matches) != 1 {
		return slpg.SpendOutcome{}, slpg.NewErr(slpg.SpendResolutionAmbiguous,
			"%s is not unspent but the remote query found %d spending transactions", out, len(matches))
	}
	m := matches[0]
	return slpg.SpendOutcome{
		State:       slpg.SpendSpent,
		SpendTxID:   m.TxID,
		BlockHeight: m.BlockHeight,
		BlockTime:   m.BlockTime,
		Outputs:     m.Outputs,
	}, nil
}

// Chain tries each finder in order until one gives a definite answer.
type Chain []slpg.SpendFinder

func (c Chain) FindSpend(ctx context.Context, out slpg.Outpoint) (slpg.SpendOutcome, error) {
	for _, f := range c {
		res, err := f.FindSpend(ctx, out)
		if err != nil {
			return slpg.SpendOutcome{}, err
		}
		if res.State != slpg.SpendUnknown {
			return res, nil
		}
	}
	return slpg.SpendOutcome{}, slpg.NewErr(slpg.SpendResolutionFailed, "no source could resolve %s", out)
}

// NewResolver is the standard chain: the full node first, then the
// remote query service for outputs the node no longer has.
func NewResolver(node slpg.NodeClient, query slpg.SpendQuery) Chain {
	return Chain{NodeFinder{Node: node}, RemoteFinder{Query: query}}
}
