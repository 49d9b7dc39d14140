package tokengraph

import (
	slpg "github.com/simpleledger/slpgraph/pkg"
)

// ComputeStatistics summarises a state. Totals from an incomplete state
// are provisional, as reported by the Complete flag.
//
// Minted is the issuance quantity plus every valid mint. Unburned is what
// the unspent token outputs hold, and Burned is the difference: tokens
// sent to no output, or spent by transactions outside the token.
func ComputeStatistics(st *State) slpg.TokenStats {
	st.lock.RLock()
	defer st.lock.RUnlock()

	stats := slpg.TokenStats{
		Minted:   st.token.Quantity,
		Unburned: slpg.ZeroTokens,
		Complete: st.complete,
	}
	for _, n := range st.arena {
		if !n.Valid {
			continue
		}
		stats.ValidTxnsSinceGenesis++
		switch n.Type {
		case slpg.TxTransfer:
			if n.BlockTime.After(stats.LastActiveSend) {
				stats.LastActiveSend = n.BlockTime
			}
		case slpg.TxIssuance, slpg.TxMint:
			if n.BlockTime.After(stats.LastActiveMint) {
				stats.LastActiveMint = n.BlockTime
			}
			if n.Type == slpg.TxMint {
				for _, out := range n.Outputs {
					stats.Minted = stats.Minted.Add(out.Quantity)
				}
			}
		}
		for _, out := range n.Outputs {
			if !out.IsSpent() {
				stats.UnspentOutputs++
				stats.UnspentSatoshis += out.Satoshis
				stats.Unburned = stats.Unburned.Add(out.Quantity)
			}
		}
	}
	stats.Burned = stats.Minted.Sub(stats.Unburned)
	return stats
}
