package slpg

import "sort"

// UnspentSet is the set of token outputs currently believed unspent.
// It is not safe for concurrent use; the token graph guards it.
type UnspentSet struct {
	outs map[Outpoint]bool
}

func NewUnspentSet() UnspentSet {
	return UnspentSet{
		outs: map[Outpoint]bool{},
	}
}

func (u *UnspentSet) Add(txID string, vOut uint32) {
	u.outs[Outpoint{TxID: txID, VOut: vOut}] = true
}

func (u *UnspentSet) Remove(txID string, vOut uint32) {
	delete(u.outs, Outpoint{TxID: txID, VOut: vOut})
}

// RemoveTx drops every outpoint belonging to txID.
func (u *UnspentSet) RemoveTx(txID string) {
	for o := range u.outs {
		if o.TxID == txID {
			delete(u.outs, o)
		}
	}
}

func (u *UnspentSet) Includes(txID string, vOut uint32) bool {
	return u.outs[Outpoint{TxID: txID, VOut: vOut}]
}

func (u *UnspentSet) Len() int {
	return len(u.outs)
}

// List returns the outpoints ordered by txid then vout.
func (u *UnspentSet) List() []Outpoint {
	res := make([]Outpoint, 0, len(u.outs))
	for o := range u.outs {
		res = append(res, o)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].TxID != res[j].TxID {
			return res[i].TxID < res[j].TxID
		}
		return res[i].VOut < res[j].VOut
	})
	return res
}

func (u *UnspentSet) Clone() UnspentSet {
	c := NewUnspentSet()
	for o := range u.outs {
		c.outs[o] = true
	}
	return c
}
