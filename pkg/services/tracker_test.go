package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	slpg "github.com/simpleledger/slpgraph/pkg"
	"github.com/simpleledger/slpgraph/pkg/bch"
	"github.com/simpleledger/slpgraph/pkg/store"
	"github.com/simpleledger/slpgraph/pkg/tokengraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var genesis = strings.Repeat("0a", 32)

// issuanceOnly validates one issuance whose outputs are never spent.
type issuanceOnly struct {
	lock  sync.Mutex
	calls int
}

func (v *issuanceOnly) Validate(ctx context.Context, txid string) (slpg.ValidationResult, error) {
	v.lock.Lock()
	defer v.lock.Unlock()
	v.calls++
	if txid != genesis {
		return slpg.ValidationResult{}, slpg.NewErr(slpg.ValidationUnavailable, "unknown tx %s", txid)
	}
	return slpg.ValidationResult{
		TxID:  txid,
		Valid: true,
		Tx:    bch.Tx{TxID: txid, Outputs: []bch.TxOut{{}, {Value: 546}}},
		Details: slpg.TokenDetails{
			Type:      slpg.TxIssuance,
			TokenID:   txid,
			Ticker:    "TST",
			Quantity:  decimal.NewFromInt(1000),
			BatonVOut: -1,
		},
	}, nil
}

func (v *issuanceOnly) validations() int {
	v.lock.Lock()
	defer v.lock.Unlock()
	return v.calls
}

type allUnspent struct{}

func (allUnspent) FindSpend(ctx context.Context, out slpg.Outpoint) (slpg.SpendOutcome, error) {
	return slpg.SpendOutcome{State: slpg.SpendUnspent}, nil
}

type recordingBus struct {
	slpg.MessageBus

	lock sync.Mutex
	sent []slpg.EventType
}

func (b *recordingBus) Send(t slpg.EventType, msg any, msgID ...string) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.sent = append(b.sent, t)
	return nil
}

func (b *recordingBus) saw(t slpg.EventType) bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	for _, s := range b.sent {
		if s == t {
			return true
		}
	}
	return false
}

type fakeEmitter struct {
	ch chan<- slpg.NodeEvent
}

func (e *fakeEmitter) Subscribe(ch chan<- slpg.NodeEvent) {
	e.ch = ch
}

type trackerFixture struct {
	tracker   *TokenTracker
	store     *store.Mock
	bus       *recordingBus
	emitter   *fakeEmitter
	validator *issuanceOnly
	stop      chan context.Context
	stopped   chan bool
}

func startTracker(t *testing.T, tokens []string, st *store.Mock) trackerFixture {
	conf := slpg.TestConfig()
	conf.Graph.Tokens = tokens
	conf.Graph.RefreshDelay = 0
	f := trackerFixture{
		store:     st,
		bus:       &recordingBus{},
		emitter:   &fakeEmitter{},
		validator: &issuanceOnly{},
		stop:      make(chan context.Context, 1),
		stopped:   make(chan bool, 1),
	}
	factory := func(ctx context.Context, id string) (*tokengraph.Builder, error) {
		return tokengraph.NewBuilder(ctx, id, f.validator, allUnspent{}, tokengraph.WithBus(f.bus))
	}
	f.tracker = NewTokenTracker(st, f.bus, f.emitter, conf, factory)
	started := make(chan bool, 1)
	require.NoError(t, f.tracker.Run(started, f.stopped, f.stop))
	<-started
	t.Cleanup(func() {
		f.stop <- context.Background()
		<-f.stopped
	})
	return f
}

func TestTrackerBuildsAndCheckpoints(t *testing.T) {
	f := startTracker(t, []string{genesis}, store.NewMock())

	require.Eventually(t, func() bool {
		_, err := f.store.LoadSnapshot(genesis)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	snap, err := f.tracker.Snapshot(genesis)
	require.NoError(t, err)
	require.True(t, snap.Complete)
	require.Len(t, snap.Nodes, 1)
	require.Equal(t, []slpg.Outpoint{{TxID: genesis, VOut: 1}}, snap.Unspent)

	stats, err := f.tracker.Stats(genesis)
	require.NoError(t, err)
	assert.True(t, stats.Unburned.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, 1, stats.ValidTxnsSinceGenesis)
}

func TestTrackerUnknownToken(t *testing.T) {
	f := startTracker(t, nil, store.NewMock())
	_, err := f.tracker.Snapshot(strings.Repeat("0b", 32))
	require.True(t, slpg.IsNotFoundError(err), "got %v", err)
	_, err = f.tracker.Stats(strings.Repeat("0b", 32))
	require.True(t, slpg.IsNotFoundError(err), "got %v", err)
}

func TestTrackerServesCheckpoint(t *testing.T) {
	st := store.NewMock()
	require.NoError(t, st.SaveSnapshot(slpg.GraphSnapshot{
		Token: slpg.TokenMetadata{TokenID: genesis, GenesisTxID: genesis, Type: slpg.TxIssuance, Quantity: decimal.NewFromInt(1000)},
		Nodes: []slpg.GraphNode{{TxID: genesis, Type: slpg.TxIssuance, Valid: true, Outputs: []slpg.OutputRecord{
			{VOut: 1, Satoshis: 546, Quantity: decimal.NewFromInt(1000), Status: slpg.OutputUnspent},
		}}},
		Unspent:  []slpg.Outpoint{{TxID: genesis, VOut: 1}},
		Complete: true,
		Updated:  time.Unix(1600000000, 0).UTC(),
	}))

	// read straight from the checkpoint before any traversal
	stats, err := (&TokenTracker{store: st}).Stats(genesis)
	require.NoError(t, err)
	require.True(t, stats.Minted.Equal(decimal.NewFromInt(1000)))

	// checkpoints are tracked even when not configured
	f := startTracker(t, nil, st)
	require.Eventually(t, func() bool { return f.bus.saw(slpg.GRAPH_LOADED) }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return f.bus.saw(slpg.GRAPH_UPDATED) }, 2*time.Second, 5*time.Millisecond)
}

func TestTrackerRefreshesOnBlock(t *testing.T) {
	f := startTracker(t, []string{genesis}, store.NewMock())
	require.Eventually(t, func() bool { return len(f.tracker.tracked()) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return f.validator.validations() >= 2 }, 2*time.Second, 5*time.Millisecond)

	before := f.validator.validations()
	f.emitter.ch <- slpg.NodeEvent{Type: slpg.TX, ID: strings.Repeat("0c", 32)}
	f.emitter.ch <- slpg.NodeEvent{Type: slpg.Block, ID: strings.Repeat("0d", 32)}
	require.Eventually(t, func() bool { return f.validator.validations() > before }, 2*time.Second, 5*time.Millisecond)
}

func TestTrackerUntrackableToken(t *testing.T) {
	f := startTracker(t, nil, store.NewMock())
	other := strings.Repeat("0e", 32)
	require.NoError(t, f.tracker.Refresh(other))
	require.Eventually(t, func() bool { return f.bus.saw(slpg.SYS_ERR) }, 2*time.Second, 5*time.Millisecond)
	require.Empty(t, f.tracker.tracked())
}
