package tokengraph

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	slpg "github.com/simpleledger/slpgraph/pkg"
	"golang.org/x/sync/errgroup"
)

// Phase of a transaction within one traversal.
type Phase int

const (
	Unvisited Phase = iota
	Validating
	Invalid // terminal, nothing recorded beyond an invalid node
	OutputsResolved
	Committed
	Done // terminal, every discovered child has finished
)

var phaseNames = [...]string{"unvisited", "validating", "invalid", "outputs-resolved", "committed", "done"}

func (p Phase) String() string {
	return phaseNames[p]
}

type Option func(*Builder)

// WithWorkers bounds the number of transactions visited concurrently.
func WithWorkers(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithBus reports node and graph events on the message bus.
func WithBus(bus slpg.MessageBus) Option {
	return func(b *Builder) {
		b.bus = bus
	}
}

// WithTxInfo looks up block times the spend lookups did not supply.
func WithTxInfo(node slpg.NodeClient) Option {
	return func(b *Builder) {
		b.node = node
	}
}

// Builder builds and refreshes the graph of one token, starting from
// its issuance. Readers see the State published by the last traversal;
// a traversal works on its own copy and publishes it when it finishes.
type Builder struct {
	token     slpg.TokenMetadata
	validator slpg.Validator
	spends    slpg.SpendFinder
	node      slpg.NodeClient
	bus       slpg.MessageBus
	workers   int

	run   sync.Mutex // one traversal per token at a time
	lock  sync.RWMutex
	state *State
}

// NewBuilder validates the issuance transaction and records the token
// metadata. It fails with NotIssuance for any other transaction.
func NewBuilder(ctx context.Context, genesisTxID string, validator slpg.Validator, spends slpg.SpendFinder, opts ...Option) (*Builder, error) {
	res, err := validator.Validate(ctx, genesisTxID)
	if err != nil {
		return nil, err
	}
	if res.Details.Type != slpg.TxIssuance {
		return nil, slpg.NewErr(slpg.NotIssuance, "tx %s is a %s transaction, not an issuance", genesisTxID, res.Details.Type)
	}
	if !res.Valid {
		return nil, slpg.NewErr(slpg.InvalidLineage, "issuance %s is invalid: %s", genesisTxID, res.InvalidReason)
	}
	d := res.Details
	token := slpg.TokenMetadata{
		TokenID:      slpg.TokenIDFromGenesis(genesisTxID),
		GenesisTxID:  genesisTxID,
		Type:         d.Type,
		Ticker:       d.Ticker,
		Name:         d.Name,
		DocumentURI:  d.DocumentURI,
		DocumentHash: d.DocumentHash,
		Decimals:     d.Decimals,
		Quantity:     d.Quantity,
	}
	b := &Builder{
		token:     token,
		validator: validator,
		spends:    spends,
		workers:   4,
		state:     NewState(token),
	}
	for _, o := range opts {
		o(b)
	}
	return b, nil
}

func (b *Builder) Token() slpg.TokenMetadata {
	return b.token
}

// State returns the last published state. Do not commit to it.
func (b *Builder) State() *State {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.state
}

// Restore publishes a stored snapshot, ie: to serve reads after a
// restart until the first traversal finishes.
func (b *Builder) Restore(snap slpg.GraphSnapshot) error {
	if snap.Token.TokenID != b.token.TokenID {
		return slpg.NewErr(slpg.BadRequest, "snapshot is for token %s, not %s", snap.Token.TokenID, b.token.TokenID)
	}
	st, err := RestoreState(snap)
	if err != nil {
		return err
	}
	b.lock.Lock()
	b.state = st
	b.lock.Unlock()
	return nil
}

func (b *Builder) ComputeStatistics() slpg.TokenStats {
	return ComputeStatistics(b.State())
}

// Extend visits txid and, transitively, every transaction spending its
// token outputs. Extending from the issuance (or token id) rebuilds the
// whole graph; any other txid extends a copy of the current graph.
//
// Errors on one branch do not stop sibling branches. All of them are
// returned joined, and the published state is then marked incomplete.
func (b *Builder) Extend(ctx context.Context, txid string) error {
	b.run.Lock()
	defer b.run.Unlock()

	var working *State
	baseComplete := true
	if txid == b.token.GenesisTxID || txid == b.token.TokenID {
		txid = b.token.GenesisTxID
		working = NewState(b.token)
	} else {
		working = b.State().clone()
		baseComplete = working.Complete()
	}

	start := time.Now()
	visited, err := b.traverse(ctx, working, txid)
	if ierr := working.CheckInvariants(); ierr != nil {
		err = errors.Join(err, fmt.Errorf("graph invariant: %w", ierr))
	}
	working.finish(baseComplete && err == nil)

	b.lock.Lock()
	b.state = working
	b.lock.Unlock()

	if err != nil {
		log.Printf("Builder: [!] %s: traversal from %s incomplete after %d txns: %v\n", b.token.TokenID, txid, visited, err)
	} else {
		log.Printf("Builder: %s: traversal from %s visited %d txns in %v\n", b.token.TokenID, txid, visited, time.Since(start))
	}
	b.report(working, err)
	return err
}

type blockHint struct {
	height int64
	time   time.Time
}

type workItem struct {
	txid     string
	parent   *workItem
	hint     blockHint
	viaBaton bool // only reached by spending a mint baton
	phase    Phase

	// owned by the dispatcher
	dispatched bool
	pending    int // scheduled children not yet finished
}

type child struct {
	txid     string
	hint     blockHint
	viaBaton bool
}

type visitResult struct {
	item     *workItem
	phase    Phase
	children []child
	err      error
}

// traverse runs an explicit work queue over a bounded worker pool.
// The dispatcher loop below is the only owner of the queue and of the
// per-run bookkeeping; workers only visit and commit.
func (b *Builder) traverse(ctx context.Context, st *State, root string) (int, error) {
	jobs := make(chan *workItem)
	results := make(chan visitResult)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < b.workers; i++ {
		g.Go(func() error {
			for it := range jobs {
				res := b.visit(gctx, st, it)
				select {
				case results <- res:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	var errs []error
	items := map[string]*workItem{}
	rootItem := &workItem{txid: root}
	items[root] = rootItem
	pending := []*workItem{rootItem}
	inflight := 0
loop:
	for len(pending) > 0 || inflight > 0 {
		var next *workItem
		var out chan *workItem
		if len(pending) > 0 {
			next, out = pending[0], jobs
		}
		select {
		case out <- next:
			next.dispatched = true
			pending = pending[1:]
			inflight++
		case res := <-results:
			inflight--
			it := res.item
			it.phase = res.phase
			if res.err != nil {
				errs = append(errs, res.err)
			}
			for _, c := range res.children {
				if err := reentrant(it, c.txid); err != nil {
					errs = append(errs, err)
					continue
				}
				if seen, found := items[c.txid]; found {
					// reached again by another path: at most one visit per run
					if !c.viaBaton && !seen.dispatched {
						seen.viaBaton = false
					}
					continue
				}
				ci := &workItem{txid: c.txid, parent: it, hint: c.hint, viaBaton: c.viaBaton}
				items[c.txid] = ci
				it.pending++
				pending = append(pending, ci)
			}
			if it.pending == 0 {
				markDone(it)
			}
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
			break loop
		}
	}
	close(jobs)
	g.Wait()
	return len(items), errors.Join(errs...)
}

// reentrant reports a child that is its own ancestor: the traversal
// would re-enter a transaction still being visited.
func reentrant(parent *workItem, txid string) error {
	for a := parent; a != nil; a = a.parent {
		if a.txid == txid {
			return slpg.NewErr(slpg.ReentrantTraversal, "tx %s re-entered from its descendant %s", txid, parent.txid)
		}
	}
	return nil
}

// markDone finishes an item with no outstanding children, then each
// ancestor whose last child this was.
func markDone(it *workItem) {
	for it != nil {
		if it.phase == Committed {
			it.phase = Done
		}
		p := it.parent
		if p == nil {
			return
		}
		p.pending--
		if p.pending > 0 {
			return
		}
		it = p
	}
}

// visit validates one transaction, resolves the spends of its token
// outputs, and commits its node. It runs on a worker.
func (b *Builder) visit(ctx context.Context, st *State, it *workItem) visitResult {
	it.phase = Validating
	fail := func(err error) visitResult {
		return visitResult{item: it, phase: Invalid, err: err}
	}
	res, err := b.validator.Validate(ctx, it.txid)
	if err != nil {
		if it.viaBaton && slpg.IsError(err, slpg.NotTokenTransaction) {
			log.Printf("Builder: %s: mint baton burned by %s\n", b.token.TokenID, it.txid)
			return visitResult{item: it, phase: Invalid}
		}
		return fail(err)
	}
	d := res.Details
	if it.viaBaton && d.TokenID != b.token.TokenID {
		log.Printf("Builder: %s: mint baton burned by %s\n", b.token.TokenID, it.txid)
		return visitResult{item: it, phase: Invalid}
	}

	node := slpg.GraphNode{
		TxID:          it.txid,
		Type:          d.Type,
		Valid:         res.Valid,
		InvalidReason: res.InvalidReason,
		Outputs:       []slpg.OutputRecord{},
	}
	b.stamp(ctx, &node, it.hint)
	if node.Valid && d.TokenID != b.token.TokenID {
		node.Valid = false
		node.InvalidReason = fmt.Sprintf("spends %s outputs as token %s", b.token.TokenID, d.TokenID)
	}
	if !node.Valid {
		// recorded without outputs so no tokens appear out of nothing
		st.commit(node)
		b.send(slpg.NODE_INVALID, node)
		return fail(slpg.NewErr(slpg.InvalidLineage, "tx %s is not a valid %s transaction: %s", it.txid, b.token.TokenID, node.InvalidReason))
	}

	vouts := tokenOutputs(d)
	batonVOut := -1
	if (d.Type == slpg.TxIssuance || d.Type == slpg.TxMint) && d.BatonVOut >= 0 && d.BatonVOut < len(res.Tx.Outputs) {
		batonVOut = d.BatonVOut
	}
	if len(vouts) == 0 && !(d.Type == slpg.TxMint && batonVOut >= 0) {
		return fail(slpg.NewErr(slpg.NoTokenOutputs, "%s tx %s has no token outputs", d.Type, it.txid))
	}

	var errs []error
	var children []child
	for _, vout := range vouts {
		if int(vout) >= len(res.Tx.Outputs) {
			errs = append(errs, slpg.NewErr(slpg.NoTokenOutputs, "tx %s: token output %d does not exist", it.txid, vout))
			continue
		}
		rec := slpg.OutputRecord{
			VOut:     vout,
			Satoshis: res.Tx.Outputs[vout].Value,
			Quantity: d.OutputQuantity(vout),
			Status:   slpg.OutputUnspent,
		}
		outcome, err := b.spends.FindSpend(ctx, slpg.Outpoint{TxID: it.txid, VOut: vout})
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return fail(ctx.Err())
			}
			// stays in the unspent set until a later run resolves it
			rec.Status = slpg.OutputPending
			errs = append(errs, err)
		case outcome.State == slpg.SpendSpent:
			rec.SpendTxID = outcome.SpendTxID
			rec.Status = slpg.OutputSpent
			children = append(children, child{txid: outcome.SpendTxID, hint: hintOf(outcome)})
		}
		node.Outputs = append(node.Outputs, rec)
	}

	if batonVOut >= 0 {
		baton := &slpg.BatonRecord{VOut: uint32(batonVOut), Status: slpg.OutputUnspent}
		outcome, err := b.spends.FindSpend(ctx, slpg.Outpoint{TxID: it.txid, VOut: baton.VOut})
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return fail(ctx.Err())
			}
			baton.Status = slpg.OutputPending
			errs = append(errs, err)
		case outcome.State == slpg.SpendSpent:
			baton.SpendTxID = outcome.SpendTxID
			baton.Status = slpg.OutputSpent
			children = append(children, child{txid: outcome.SpendTxID, hint: hintOf(outcome), viaBaton: true})
		}
		node.Baton = baton
	}

	it.phase = OutputsResolved
	st.commit(node)
	b.send(slpg.NODE_ADDED, node)
	return visitResult{item: it, phase: Committed, children: children, err: errors.Join(errs...)}
}

func tokenOutputs(d slpg.TokenDetails) []uint32 {
	switch d.Type {
	case slpg.TxIssuance, slpg.TxMint:
		if d.Quantity.IsPositive() {
			return []uint32{1}
		}
	case slpg.TxTransfer:
		var res []uint32
		for i, q := range d.SendOutputs {
			if q.IsPositive() {
				res = append(res, uint32(i))
			}
		}
		return res
	}
	return nil
}

func hintOf(o slpg.SpendOutcome) blockHint {
	return blockHint{height: o.BlockHeight, time: o.BlockTime}
}

// stamp sets the block height and time of a node: from the spend
// lookup that found it, from the published graph, or from the full node.
func (b *Builder) stamp(ctx context.Context, node *slpg.GraphNode, hint blockHint) {
	if hint.time.IsZero() {
		if prev, found := b.State().Node(node.TxID); found && !prev.BlockTime.IsZero() {
			hint = blockHint{height: prev.BlockHeight, time: prev.BlockTime}
		}
	}
	if hint.time.IsZero() && b.node != nil {
		info, err := b.node.GetTxInfo(ctx, node.TxID)
		if err != nil {
			log.Printf("Builder: no block time for %s: %v\n", node.TxID, err)
		}
		hint.time = info.BlockTime
	}
	node.BlockHeight = hint.height
	node.BlockTime = hint.time
}

func (b *Builder) send(t slpg.EventType, node slpg.GraphNode) {
	if b.bus == nil {
		return
	}
	b.bus.Send(t, slpg.GraphNodeEvent{TokenID: b.token.TokenID, Node: node})
}

func (b *Builder) report(st *State, err error) {
	if b.bus == nil {
		return
	}
	ev := slpg.GraphEvent{TokenID: b.token.TokenID, Nodes: st.NodeCount(), Stats: ComputeStatistics(st)}
	if err != nil {
		ev.Error = err.Error()
		b.bus.Send(slpg.GRAPH_INCOMPLETE, ev)
		return
	}
	b.bus.Send(slpg.GRAPH_UPDATED, ev)
}
