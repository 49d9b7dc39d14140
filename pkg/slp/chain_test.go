package slp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	slpg "github.com/simpleledger/slpgraph/pkg"
	"github.com/simpleledger/slpgraph/pkg/bch"
)

// testChain is an in-memory raw transaction provider.
type testChain struct {
	lock    sync.Mutex
	txs     map[string][]byte
	fetches map[string]int
}

func newTestChain() *testChain {
	return &testChain{txs: map[string][]byte{}, fetches: map[string]int{}}
}

func (c *testChain) Fetch(ctx context.Context, txid string) ([]byte, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.fetches[txid]++
	raw, ok := c.txs[txid]
	if !ok {
		return nil, fmt.Errorf("tx %s not found", txid)
	}
	return raw, nil
}

// add serializes a transaction spending ins, with an OP_RETURN script
// at output 0 (when non-nil) followed by dust outputs.
func (c *testChain) add(t *testing.T, opReturn []byte, outputs int, ins ...slpg.Outpoint) string {
	tx := bch.Tx{Version: 1}
	for _, in := range ins {
		tx.Inputs = append(tx.Inputs, bch.TxIn{PrevTxID: in.TxID, PrevVOut: in.VOut, Sequence: 0xffffffff})
	}
	if opReturn != nil {
		tx.Outputs = append(tx.Outputs, bch.TxOut{Value: 0, Script: opReturn})
	}
	for i := 0; i < outputs; i++ {
		tx.Outputs = append(tx.Outputs, bch.TxOut{Value: 546, Script: p2pkh(byte(i))})
	}
	raw, err := bch.EncodeTx(tx)
	if err != nil {
		t.Fatalf("EncodeTx: %v", err)
	}
	txid := bch.TxHashHex(raw)
	c.lock.Lock()
	c.txs[txid] = raw
	c.lock.Unlock()
	return txid
}

// drop forgets txid, as a node that pruned it would.
func (c *testChain) drop(txid string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	delete(c.txs, txid)
}

func (c *testChain) fetched(txid string) int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.fetches[txid]
}

func p2pkh(tag byte) []byte {
	s := []byte{bch.OP_DUP, bch.OP_HASH160, 20}
	s = append(s, make([]byte, 20)...)
	s[3] = tag
	return append(s, bch.OP_EQUALVERIFY, bch.OP_CHECKSIG)
}

// coinbase inputs fund test transactions without a parent to fetch
var coinbase = slpg.Outpoint{TxID: strings.Repeat("00", 32), VOut: bch.CoinbaseVOut}

func qty(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

func mustScript(t *testing.T) func([]byte, error) []byte {
	return func(b []byte, err error) []byte {
		if err != nil {
			t.Fatalf("build script: %v", err)
		}
		return b
	}
}
