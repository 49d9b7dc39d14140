package tokengraph

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	slpg "github.com/simpleledger/slpgraph/pkg"
	"github.com/simpleledger/slpgraph/pkg/bch"
	"github.com/stretchr/testify/require"
)

// fakeLedger is an in-memory chain answering both validation and
// spend lookups for the builder.
type fakeLedger struct {
	lock        sync.Mutex
	results     map[string]slpg.ValidationResult
	failures    map[string]error
	spends      map[slpg.Outpoint]slpg.SpendOutcome
	spendErrs   map[slpg.Outpoint]error
	validations map[string]int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		results:     map[string]slpg.ValidationResult{},
		failures:    map[string]error{},
		spends:      map[slpg.Outpoint]slpg.SpendOutcome{},
		spendErrs:   map[slpg.Outpoint]error{},
		validations: map[string]int{},
	}
}

func (l *fakeLedger) Validate(ctx context.Context, txid string) (slpg.ValidationResult, error) {
	if err := ctx.Err(); err != nil {
		return slpg.ValidationResult{}, err
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	l.validations[txid]++
	if err, found := l.failures[txid]; found {
		return slpg.ValidationResult{}, err
	}
	res, found := l.results[txid]
	if !found {
		return slpg.ValidationResult{}, slpg.NewErr(slpg.ValidationUnavailable, "tx %s not found", txid)
	}
	return res, nil
}

func (l *fakeLedger) FindSpend(ctx context.Context, out slpg.Outpoint) (slpg.SpendOutcome, error) {
	if err := ctx.Err(); err != nil {
		return slpg.SpendOutcome{}, err
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	if err, found := l.spendErrs[out]; found {
		return slpg.SpendOutcome{}, err
	}
	if res, found := l.spends[out]; found {
		return res, nil
	}
	return slpg.SpendOutcome{State: slpg.SpendUnspent}, nil
}

func (l *fakeLedger) visits(txid string) int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.validations[txid]
}

func (l *fakeLedger) put(res slpg.ValidationResult) string {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.results[res.TxID] = res
	return res.TxID
}

// genesis issues qty tokens at output 1, with a mint baton at output
// baton unless it is negative.
func (l *fakeLedger) genesis(txid string, qty int64, baton int) string {
	return l.put(slpg.ValidationResult{
		TxID:  txid,
		Valid: true,
		Tx:    txOutputs(txid, 3),
		Details: slpg.TokenDetails{
			Type:      slpg.TxIssuance,
			TokenID:   txid,
			Ticker:    "TST",
			Name:      "Test Token",
			Decimals:  2,
			Quantity:  decimal.NewFromInt(qty),
			BatonVOut: baton,
		},
	})
}

func (l *fakeLedger) mint(txid, tokenID string, qty int64, baton int) string {
	return l.put(slpg.ValidationResult{
		TxID:  txid,
		Valid: true,
		Tx:    txOutputs(txid, 3),
		Details: slpg.TokenDetails{
			Type:      slpg.TxMint,
			TokenID:   tokenID,
			Quantity:  decimal.NewFromInt(qty),
			BatonVOut: baton,
		},
	})
}

// send transfers amounts to outputs 1.. of txid.
func (l *fakeLedger) send(txid, tokenID string, amounts ...int64) string {
	outs := []slpg.TokenAmount{slpg.ZeroTokens}
	for _, a := range amounts {
		outs = append(outs, decimal.NewFromInt(a))
	}
	return l.put(slpg.ValidationResult{
		TxID:  txid,
		Valid: true,
		Tx:    txOutputs(txid, len(outs)),
		Details: slpg.TokenDetails{
			Type:        slpg.TxTransfer,
			TokenID:     tokenID,
			BatonVOut:   -1,
			SendOutputs: outs,
		},
	})
}

func (l *fakeLedger) invalidate(txid, reason string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	res := l.results[txid]
	res.Valid = false
	res.InvalidReason = reason
	l.results[txid] = res
}

func (l *fakeLedger) spend(txid string, vout uint32, by string, when time.Time) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.spends[slpg.Outpoint{TxID: txid, VOut: vout}] = slpg.SpendOutcome{
		State:     slpg.SpendSpent,
		SpendTxID: by,
		BlockTime: when,
	}
}

func txOutputs(txid string, n int) bch.Tx {
	tx := bch.Tx{TxID: txid}
	for i := 0; i < n; i++ {
		tx.Outputs = append(tx.Outputs, bch.TxOut{Value: 546})
	}
	return tx
}

func txid(n int) string {
	return strings.Repeat(fmt.Sprintf("%02x", n), 32)
}

func blockTime(n int) time.Time {
	return time.Unix(1570000000+int64(n)*600, 0).UTC()
}

func tokens(n int64) slpg.TokenAmount {
	return decimal.NewFromInt(n)
}

func newTestBuilder(t *testing.T, l *fakeLedger, genesis string, opts ...Option) *Builder {
	b, err := NewBuilder(context.Background(), genesis, l, l, opts...)
	require.NoError(t, err)
	return b
}

type sentEvent struct {
	t   slpg.EventType
	msg any
}

// recordingBus keeps what is sent and delivers nothing.
type recordingBus struct {
	slpg.MessageBus

	lock sync.Mutex
	sent []sentEvent
}

func (b *recordingBus) Send(t slpg.EventType, msg any, msgID ...string) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.sent = append(b.sent, sentEvent{t, msg})
	return nil
}

func (b *recordingBus) types() []slpg.EventType {
	b.lock.Lock()
	defer b.lock.Unlock()
	var res []slpg.EventType
	for _, e := range b.sent {
		res = append(res, e.t)
	}
	return res
}
