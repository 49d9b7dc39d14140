package services

import (
	"context"
	"log"
	"sync"
	"time"

	slpg "github.com/simpleledger/slpgraph/pkg"
	"github.com/simpleledger/slpgraph/pkg/tokengraph"
)

const (
	RETRY_DELAY   = 30 * time.Second // before retrying a token whose builder could not be created
	REFRESH_QUEUE = 100              // pending refresh requests
)

// BuilderFactory creates the graph builder for a token issuance.
type BuilderFactory func(ctx context.Context, genesisTxID string) (*tokengraph.Builder, error)

// interface guard ensures TokenTracker implements slpg.GraphSource
var _ slpg.GraphSource = &TokenTracker{}

// TokenTracker keeps the graphs of the tracked tokens up to date. It
// restores each token from its last checkpoint, rebuilds it from the
// issuance, and rebuilds again shortly after every new block. Complete
// graphs are saved back to the store as the next checkpoint.
type TokenTracker struct {
	store      slpg.Store
	bus        slpg.MessageBus
	newBuilder BuilderFactory
	tokens     []string
	delay      time.Duration
	retry      time.Duration

	lock     sync.RWMutex
	builders map[string]*tokengraph.Builder // by token id
	queued   map[string]bool
	stopping bool

	refresh chan string
	events  chan slpg.NodeEvent
}

func NewTokenTracker(store slpg.Store, bus slpg.MessageBus, emitter slpg.NodeEmitter, conf slpg.Config, newBuilder BuilderFactory) *TokenTracker {
	t := &TokenTracker{
		store:      store,
		bus:        bus,
		newBuilder: newBuilder,
		tokens:     conf.Graph.Tokens,
		delay:      conf.RefreshDelay(),
		retry:      RETRY_DELAY,
		builders:   map[string]*tokengraph.Builder{},
		queued:     map[string]bool{},
		refresh:    make(chan string, REFRESH_QUEUE),
		events:     make(chan slpg.NodeEvent, 10),
	}
	if emitter != nil {
		emitter.Subscribe(t.events)
	}
	return t
}

// Implements conductor.Service
func (t *TokenTracker) Run(started, stopped chan bool, stop chan context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool)
	go func() {
		defer close(done)
		for id := range t.refresh {
			t.update(ctx, id)
		}
	}()
	go func() {
		started <- true
		checkpoints, err := t.store.ListTokens()
		if err != nil {
			log.Println("TokenTracker: ListTokens:", err)
		}
		for _, id := range t.tokens {
			t.Refresh(id)
		}
		for _, id := range checkpoints {
			t.Refresh(id)
		}
		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-stop:
				if timer != nil {
					timer.Stop()
				}
				cancel()
				t.lock.Lock()
				t.stopping = true
				close(t.refresh)
				t.lock.Unlock()
				<-done
				stopped <- true
				return
			case e := <-t.events:
				if e.Type != slpg.Block || fire != nil {
					continue
				}
				// wait for the remote index to see the block as well
				timer = time.NewTimer(t.delay)
				fire = timer.C
			case <-fire:
				fire = nil
				for _, id := range t.tracked() {
					t.Refresh(id)
				}
			}
		}
	}()
	return nil
}

// Refresh schedules a rebuild of the token's graph, tracking the token
// from now on if it was not already.
func (t *TokenTracker) Refresh(tokenID string) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.stopping {
		return slpg.NewErr(slpg.NotAvailable, "token tracker is shutting down")
	}
	if t.queued[tokenID] {
		return nil
	}
	select {
	case t.refresh <- tokenID:
		t.queued[tokenID] = true
		return nil
	default:
		return slpg.NewErr(slpg.NotAvailable, "refresh queue is full, try again later")
	}
}

// Snapshot serves the latest graph, or the stored checkpoint until the
// token's first traversal has finished.
func (t *TokenTracker) Snapshot(tokenID string) (slpg.GraphSnapshot, error) {
	if b := t.builder(tokenID); b != nil && !b.State().Updated().IsZero() {
		return b.State().Snapshot(), nil
	}
	return t.store.LoadSnapshot(tokenID)
}

func (t *TokenTracker) Stats(tokenID string) (slpg.TokenStats, error) {
	if b := t.builder(tokenID); b != nil && !b.State().Updated().IsZero() {
		return b.ComputeStatistics(), nil
	}
	snap, err := t.store.LoadSnapshot(tokenID)
	if err != nil {
		return slpg.TokenStats{}, err
	}
	st, err := tokengraph.RestoreState(snap)
	if err != nil {
		return slpg.TokenStats{}, err
	}
	return tokengraph.ComputeStatistics(st), nil
}

func (t *TokenTracker) builder(tokenID string) *tokengraph.Builder {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.builders[tokenID]
}

func (t *TokenTracker) tracked() []string {
	t.lock.RLock()
	defer t.lock.RUnlock()
	ids := make([]string, 0, len(t.builders))
	for id := range t.builders {
		ids = append(ids, id)
	}
	return ids
}

// update rebuilds one token's graph and checkpoints it when complete.
func (t *TokenTracker) update(ctx context.Context, tokenID string) {
	t.lock.Lock()
	delete(t.queued, tokenID)
	t.lock.Unlock()

	b := t.builder(tokenID)
	if b == nil {
		var err error
		b, err = t.start(ctx, tokenID)
		if err != nil {
			log.Printf("TokenTracker: [!] cannot track %s: %v\n", tokenID, err)
			t.bus.Send(slpg.SYS_ERR, err.Error())
			if slpg.IsError(err, slpg.ValidationUnavailable) || slpg.IsError(err, slpg.NotAvailable) {
				time.AfterFunc(t.retry, func() { t.Refresh(tokenID) })
			}
			return
		}
	}
	err := b.Extend(ctx, tokenID)
	if ctx.Err() != nil {
		return
	}
	st := b.State()
	if !st.Complete() {
		log.Printf("TokenTracker: %s left incomplete, keeping the previous checkpoint: %v\n", tokenID, err)
		return
	}
	if err := t.store.SaveSnapshot(st.Snapshot()); err != nil {
		log.Printf("TokenTracker: [!] SaveSnapshot %s: %v\n", tokenID, err)
	}
}

// start creates the builder for a token and restores its checkpoint.
func (t *TokenTracker) start(ctx context.Context, tokenID string) (*tokengraph.Builder, error) {
	b, err := t.newBuilder(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	snap, err := t.store.LoadSnapshot(tokenID)
	switch {
	case err == nil:
		if err := b.Restore(snap); err != nil {
			log.Printf("TokenTracker: ignoring checkpoint of %s: %v\n", tokenID, err)
			break
		}
		t.bus.Send(slpg.GRAPH_LOADED, slpg.GraphEvent{
			TokenID: tokenID,
			Nodes:   len(snap.Nodes),
			Stats:   b.ComputeStatistics(),
		})
	case !slpg.IsNotFoundError(err):
		log.Printf("TokenTracker: LoadSnapshot %s: %v\n", tokenID, err)
	}
	t.lock.Lock()
	t.builders[tokenID] = b
	t.lock.Unlock()
	return b, nil
}
