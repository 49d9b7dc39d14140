package tokengraph

import (
	"fmt"
	"sort"
	"sync"
	"time"

	slpg "github.com/simpleledger/slpgraph/pkg"
)

// State is the token graph: the issuance metadata, every committed
// GraphNode, and the set of unspent token outputs.
//
// Nodes live in an arena; the index maps txids (and the token id alias
// of the issuance) to arena slots, so an alias never copies a node.
// State is safe for concurrent use.
type State struct {
	lock     sync.RWMutex
	token    slpg.TokenMetadata
	arena    []*slpg.GraphNode
	index    map[string]int
	unspent  slpg.UnspentSet
	complete bool
	updated  time.Time
}

func NewState(token slpg.TokenMetadata) *State {
	return &State{
		token:   token,
		index:   map[string]int{},
		unspent: slpg.NewUnspentSet(),
	}
}

// RestoreState rebuilds a State from a stored snapshot.
func RestoreState(snap slpg.GraphSnapshot) (*State, error) {
	s := NewState(snap.Token)
	for _, n := range snap.Nodes {
		s.commit(n)
	}
	s.complete = snap.Complete
	s.updated = snap.Updated
	if err := s.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("snapshot of %s: %w", snap.Token.TokenID, err)
	}
	return s, nil
}

func (s *State) Token() slpg.TokenMetadata {
	return s.token
}

// Complete is false when the traversal that produced this state failed
// on any branch; such a state must not be trusted as a checkpoint.
func (s *State) Complete() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.complete
}

func (s *State) Updated() time.Time {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.updated
}

// commit stores a node, replacing any earlier node for the same txid
// wholesale, and brings the unspent set in line with its outputs.
func (s *State) commit(node slpg.GraphNode) {
	s.lock.Lock()
	defer s.lock.Unlock()
	n := copyNode(&node)
	if slot, found := s.index[node.TxID]; found {
		s.arena[slot] = &n
		s.unspent.RemoveTx(node.TxID)
	} else {
		s.arena = append(s.arena, &n)
		slot = len(s.arena) - 1
		s.index[node.TxID] = slot
		if node.TxID == s.token.GenesisTxID && s.token.TokenID != node.TxID {
			s.index[s.token.TokenID] = slot
		}
	}
	for _, out := range node.Outputs {
		if !out.IsSpent() {
			s.unspent.Add(node.TxID, out.VOut)
		}
	}
}

// Node looks up a committed node by txid, or by token id for the issuance.
func (s *State) Node(txid string) (slpg.GraphNode, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	slot, found := s.index[txid]
	if !found {
		return slpg.GraphNode{}, false
	}
	return copyNode(s.arena[slot]), true
}

// NodeCount counts distinct nodes; the token id alias is not a node.
func (s *State) NodeCount() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.arena)
}

// Nodes returns every distinct node, issuance first, then by txid.
func (s *State) Nodes() []slpg.GraphNode {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.nodesLocked()
}

func (s *State) nodesLocked() []slpg.GraphNode {
	res := make([]slpg.GraphNode, 0, len(s.arena))
	for _, n := range s.arena {
		res = append(res, copyNode(n))
	}
	genesis := s.token.GenesisTxID
	sort.Slice(res, func(i, j int) bool {
		if (res[i].TxID == genesis) != (res[j].TxID == genesis) {
			return res[i].TxID == genesis
		}
		return res[i].TxID < res[j].TxID
	})
	return res
}

func (s *State) Unspent() []slpg.Outpoint {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.unspent.List()
}

func (s *State) IsUnspent(out slpg.Outpoint) bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.unspent.Includes(out.TxID, out.VOut)
}

func (s *State) Snapshot() slpg.GraphSnapshot {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return slpg.GraphSnapshot{
		Token:    s.token,
		Nodes:    s.nodesLocked(),
		Unspent:  s.unspent.List(),
		Complete: s.complete,
		Updated:  s.updated,
	}
}

// CheckInvariants verifies that an output is in the unspent set
// exactly when its record names no spending transaction.
func (s *State) CheckInvariants() error {
	s.lock.RLock()
	defer s.lock.RUnlock()
	records := 0
	for _, n := range s.arena {
		for _, out := range n.Outputs {
			in := s.unspent.Includes(n.TxID, out.VOut)
			if in == out.IsSpent() {
				return fmt.Errorf("output %s:%d spent by %q but unspent-set=%v", n.TxID, out.VOut, out.SpendTxID, in)
			}
			if in {
				records++
			}
		}
	}
	if records != s.unspent.Len() {
		return fmt.Errorf("unspent set holds %d outputs, graph records %d", s.unspent.Len(), records)
	}
	return nil
}

// clone copies the state for a traversal that extends it.
func (s *State) clone() *State {
	s.lock.RLock()
	defer s.lock.RUnlock()
	c := NewState(s.token)
	for _, n := range s.arena {
		node := copyNode(n)
		c.arena = append(c.arena, &node)
	}
	for k, v := range s.index {
		c.index[k] = v
	}
	c.unspent = s.unspent.Clone()
	c.complete = s.complete
	c.updated = s.updated
	return c
}

func (s *State) finish(complete bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.complete = complete
	s.updated = time.Now().UTC()
}

func copyNode(n *slpg.GraphNode) slpg.GraphNode {
	c := *n
	c.Outputs = append([]slpg.OutputRecord(nil), n.Outputs...)
	if n.Baton != nil {
		b := *n.Baton
		c.Baton = &b
	}
	return c
}
