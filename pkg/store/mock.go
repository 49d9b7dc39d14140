package store

import (
	"sort"
	"sync"

	slpg "github.com/simpleledger/slpgraph/pkg"
)

// interface guard ensures Mock implements slpg.Store
var _ slpg.Store = &Mock{}

type Mock struct {
	lock      sync.Mutex
	snapshots map[string]slpg.GraphSnapshot
}

// NewMock returns a slpg.Store that keeps snapshots in memory
func NewMock() *Mock {
	return &Mock{snapshots: make(map[string]slpg.GraphSnapshot, 10)}
}

func (m *Mock) SaveSnapshot(snap slpg.GraphSnapshot) error {
	if !snap.Complete {
		return slpg.NewErr(slpg.BadRequest, "Mock: refusing incomplete snapshot of %s", snap.Token.TokenID)
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	m.snapshots[snap.Token.TokenID] = snap
	return nil
}

func (m *Mock) LoadSnapshot(tokenID string) (slpg.GraphSnapshot, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	v, ok := m.snapshots[tokenID]
	if !ok {
		return slpg.GraphSnapshot{}, slpg.NewErr(slpg.NotFound, "no snapshot for token %s", tokenID)
	}
	return v, nil
}

func (m *Mock) ListTokens() ([]string, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	ids := make([]string, 0, len(m.snapshots))
	for id := range m.snapshots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Mock) Close() {}
