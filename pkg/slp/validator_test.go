package slp

import (
	"context"
	"sync"
	"testing"

	slpg "github.com/simpleledger/slpgraph/pkg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tokenFixture issues 1000 tokens with a mint baton at output 2.
type tokenFixture struct {
	chain   *testChain
	v       *Validator
	genesis string
}

func newTokenFixture(t *testing.T) tokenFixture {
	c := newTestChain()
	g := c.add(t, mustScript(t)(GenesisScript("TST", "Test", "", nil, 0, 2, qty(1000))), 2, coinbase)
	v, err := NewValidator(c.Fetch, 100)
	require.NoError(t, err)
	return tokenFixture{chain: c, v: v, genesis: g}
}

func TestValidateGenesis(t *testing.T) {
	f := newTokenFixture(t)
	res, err := f.v.Validate(context.Background(), f.genesis)
	require.NoError(t, err)
	require.True(t, res.Valid)
	require.Equal(t, slpg.TxIssuance, res.Details.Type)
	require.Equal(t, f.genesis, res.Details.TokenID)
	require.True(t, res.Details.Quantity.Equal(qty(1000)))
	require.Len(t, res.Tx.Outputs, 3)
}

func TestValidateSend(t *testing.T) {
	ctx := context.Background()
	f := newTokenFixture(t)
	send := f.chain.add(t, mustScript(t)(SendScript(f.genesis, qty(600), qty(400))), 2,
		slpg.Outpoint{TxID: f.genesis, VOut: 1})

	res, err := f.v.Validate(ctx, send)
	require.NoError(t, err)
	require.True(t, res.Valid, res.InvalidReason)
	require.Equal(t, slpg.TxTransfer, res.Details.Type)
	require.True(t, res.Details.OutputQuantity(1).Equal(qty(600)))
	require.True(t, res.Details.OutputQuantity(2).Equal(qty(400)))

	// spending the baton output carries no tokens
	wrong := f.chain.add(t, mustScript(t)(SendScript(f.genesis, qty(1))), 1,
		slpg.Outpoint{TxID: f.genesis, VOut: 2})
	res, err = f.v.Validate(ctx, wrong)
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.Contains(t, res.InvalidReason, "exceed inputs")
}

func TestValidateSendOverspend(t *testing.T) {
	f := newTokenFixture(t)
	send := f.chain.add(t, mustScript(t)(SendScript(f.genesis, qty(1001))), 1,
		slpg.Outpoint{TxID: f.genesis, VOut: 1})
	res, err := f.v.Validate(context.Background(), send)
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.Equal(t, slpg.TxTransfer, res.Details.Type)
}

func TestValidateSendChain(t *testing.T) {
	ctx := context.Background()
	f := newTokenFixture(t)
	s1 := f.chain.add(t, mustScript(t)(SendScript(f.genesis, qty(1000))), 1, slpg.Outpoint{TxID: f.genesis, VOut: 1})
	s2 := f.chain.add(t, mustScript(t)(SendScript(f.genesis, qty(999))), 1, slpg.Outpoint{TxID: s1, VOut: 1})
	extra := f.chain.add(t, mustScript(t)(SendScript(f.genesis, qty(1))), 1, slpg.Outpoint{TxID: s1, VOut: 1}, slpg.Outpoint{TxID: s2, VOut: 5})

	res, err := f.v.Validate(ctx, s2)
	require.NoError(t, err)
	require.True(t, res.Valid)
	// s1 and the genesis were validated as ancestors
	require.Equal(t, 3, f.v.Cached())

	res, err = f.v.Validate(ctx, extra)
	require.NoError(t, err)
	require.True(t, res.Valid, "a valid input is enough, extra inputs add nothing")
}

func TestValidateSendWrongToken(t *testing.T) {
	ctx := context.Background()
	f := newTokenFixture(t)
	other := f.chain.add(t, mustScript(t)(GenesisScript("OTH", "Other", "", nil, 0, -1, qty(5000))), 1, coinbase)
	send := f.chain.add(t, mustScript(t)(SendScript(f.genesis, qty(10))), 1, slpg.Outpoint{TxID: other, VOut: 1})
	res, err := f.v.Validate(ctx, send)
	require.NoError(t, err)
	require.False(t, res.Valid)
}

func TestValidateSendTooManyOutputs(t *testing.T) {
	f := newTokenFixture(t)
	send := f.chain.add(t, mustScript(t)(SendScript(f.genesis, qty(1), qty(1), qty(1))), 1,
		slpg.Outpoint{TxID: f.genesis, VOut: 1})
	res, err := f.v.Validate(context.Background(), send)
	require.NoError(t, err)
	require.False(t, res.Valid)
}

func TestValidateMint(t *testing.T) {
	ctx := context.Background()
	f := newTokenFixture(t)
	mint := f.chain.add(t, mustScript(t)(MintScript(f.genesis, 2, qty(500))), 2, slpg.Outpoint{TxID: f.genesis, VOut: 2})
	res, err := f.v.Validate(ctx, mint)
	require.NoError(t, err)
	require.True(t, res.Valid, res.InvalidReason)
	require.Equal(t, slpg.TxMint, res.Details.Type)

	// the baton moved on to the mint's output 2
	again := f.chain.add(t, mustScript(t)(MintScript(f.genesis, -1, qty(1))), 1, slpg.Outpoint{TxID: mint, VOut: 2})
	res, err = f.v.Validate(ctx, again)
	require.NoError(t, err)
	require.True(t, res.Valid, res.InvalidReason)

	noBaton := f.chain.add(t, mustScript(t)(MintScript(f.genesis, -1, qty(7))), 1, slpg.Outpoint{TxID: f.genesis, VOut: 1})
	res, err = f.v.Validate(ctx, noBaton)
	require.NoError(t, err)
	require.False(t, res.Valid)
}

func TestValidateNotToken(t *testing.T) {
	f := newTokenFixture(t)
	plain := f.chain.add(t, nil, 2, coinbase)
	res, err := f.v.Validate(context.Background(), plain)
	require.True(t, slpg.IsError(err, slpg.NotTokenTransaction), "got %v", err)
	require.Equal(t, slpg.TxOther, res.Details.Type)
	require.False(t, res.Valid)
}

func TestValidateMalformedIsInvalid(t *testing.T) {
	f := newTokenFixture(t)
	bad := f.chain.add(t, mustScript(t)(SendScript(f.genesis[:62])), 1, slpg.Outpoint{TxID: f.genesis, VOut: 1})
	res, err := f.v.Validate(context.Background(), bad)
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.NotEmpty(t, res.InvalidReason)
}

func TestValidateUnavailable(t *testing.T) {
	f := newTokenFixture(t)
	_, err := f.v.Validate(context.Background(), "ff00000000000000000000000000000000000000000000000000000000000000")
	require.True(t, slpg.IsError(err, slpg.ValidationUnavailable), "got %v", err)
	require.Equal(t, 0, f.v.Cached(), "failures are not cached")
}

func TestValidateCachedOnce(t *testing.T) {
	ctx := context.Background()
	f := newTokenFixture(t)
	send := f.chain.add(t, mustScript(t)(SendScript(f.genesis, qty(1000))), 1, slpg.Outpoint{TxID: f.genesis, VOut: 1})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.v.Validate(ctx, send)
			assert.NoError(t, err)
			assert.True(t, res.Valid)
		}()
	}
	wg.Wait()
	_, err := f.v.Validate(ctx, f.genesis)
	require.NoError(t, err)
	require.Equal(t, 1, f.chain.fetches[send])
	require.Equal(t, 1, f.chain.fetches[f.genesis])
}

func TestValidateSendIgnoresForeignHistory(t *testing.T) {
	ctx := context.Background()
	f := newTokenFixture(t)
	og := f.chain.add(t, mustScript(t)(GenesisScript("OTH", "Other", "", nil, 0, -1, qty(5000))), 1, coinbase)
	f1 := f.chain.add(t, mustScript(t)(SendScript(og, qty(5000))), 1, slpg.Outpoint{TxID: og, VOut: 1})
	f2 := f.chain.add(t, mustScript(t)(SendScript(og, qty(5000))), 1, slpg.Outpoint{TxID: f1, VOut: 1})
	send := f.chain.add(t, mustScript(t)(SendScript(f.genesis, qty(1000))), 1,
		slpg.Outpoint{TxID: f.genesis, VOut: 1}, slpg.Outpoint{TxID: f2, VOut: 1})
	f.chain.drop(og)

	res, err := f.v.Validate(ctx, send)
	require.NoError(t, err)
	require.True(t, res.Valid, res.InvalidReason)
	require.Equal(t, 1, f.chain.fetched(f2), "the foreign parent is only parsed")
	require.Equal(t, 0, f.chain.fetched(f1))
	require.Equal(t, 0, f.chain.fetched(og))
	require.Equal(t, 2, f.v.Cached(), "only our lineage gets verdicts")
}

func TestValidateCacheIsBounded(t *testing.T) {
	ctx := context.Background()
	c := newTestChain()
	g := c.add(t, mustScript(t)(GenesisScript("TST", "Test", "", nil, 0, -1, qty(1000))), 1, coinbase)
	s1 := c.add(t, mustScript(t)(SendScript(g, qty(1000))), 1, slpg.Outpoint{TxID: g, VOut: 1})
	s2 := c.add(t, mustScript(t)(SendScript(g, qty(1000))), 1, slpg.Outpoint{TxID: s1, VOut: 1})
	v, err := NewValidator(c.Fetch, 2)
	require.NoError(t, err)

	res, err := v.Validate(ctx, s2)
	require.NoError(t, err)
	require.True(t, res.Valid, res.InvalidReason)
	require.Equal(t, 2, v.Cached())

	// an evicted verdict is recomputed from the node
	_, err = v.Validate(ctx, g)
	require.NoError(t, err)
	require.Equal(t, 2, c.fetched(g))
}
