package slp

import (
	"context"
	"errors"
	"log"

	lru "github.com/hashicorp/golang-lru/v2"
	slpg "github.com/simpleledger/slpgraph/pkg"
	"github.com/simpleledger/slpgraph/pkg/bch"
	"golang.org/x/sync/singleflight"
)

// Validator is the local SLP validation engine behind a verdict cache.
// It implements slpg.Validator.
//
// A transaction is validated together with the inputs of its own token
// it spends: those ancestors are validated through the same cache, so
// walking a lineage from its issuance validates each transaction once.
// Inputs of other tokens are parsed but never followed.
type Validator struct {
	fetch slpg.RawTxProvider
	cache *lru.Cache[string, verdict]
	group singleflight.Group
}

type verdict struct {
	res      slpg.ValidationResult
	envelope bool // carries an SLP envelope, even a malformed one
}

// parsed is a decoded transaction whose envelope has not been checked
// against its inputs yet.
type parsed struct {
	res      slpg.ValidationResult
	envelope bool
	err      error // why the envelope could not be parsed
}

// NewValidator keeps at most cacheSize verdicts. Raw bytes are not
// kept: fetch is expected to cache them.
func NewValidator(fetch slpg.RawTxProvider, cacheSize int) (*Validator, error) {
	if cacheSize <= 0 {
		cacheSize = 1
	}
	cache, err := lru.New[string, verdict](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Validator{fetch: fetch, cache: cache}, nil
}

// Validate returns the cached or freshly computed verdict for txid.
// It fails with ValidationUnavailable when raw data cannot be fetched,
// and NotTokenTransaction when the transaction has no SLP envelope.
func (v *Validator) Validate(ctx context.Context, txid string) (slpg.ValidationResult, error) {
	vd, err := v.verdict(ctx, txid, nil)
	if err != nil {
		return slpg.ValidationResult{}, err
	}
	if !vd.envelope {
		return vd.res, slpg.NewErr(slpg.NotTokenTransaction, "tx %s carries no SLP envelope", txid)
	}
	return vd.res, nil
}

// Cached reports the number of transactions with a verdict.
func (v *Validator) Cached() int {
	return v.cache.Len()
}

// verdict computes txid once for all concurrent callers. A caller that
// already parsed the transaction passes it as pre.
func (v *Validator) verdict(ctx context.Context, txid string, pre *parsed) (verdict, error) {
	if vd, found := v.cache.Get(txid); found {
		return vd, nil
	}
	ch := v.group.DoChan(txid, func() (any, error) {
		if vd, found := v.cache.Get(txid); found {
			return vd, nil
		}
		p := pre
		if p == nil {
			fresh, err := v.parse(ctx, txid)
			if err != nil {
				return verdict{}, err
			}
			p = &fresh
		}
		vd, err := v.compute(ctx, *p)
		if err != nil {
			return verdict{}, err
		}
		v.cache.Add(txid, vd)
		return vd, nil
	})
	select {
	case <-ctx.Done():
		return verdict{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return verdict{}, r.Err
		}
		return r.Val.(verdict), nil
	}
}

// parse fetches and decodes txid and reads its SLP envelope.
func (v *Validator) parse(ctx context.Context, txid string) (parsed, error) {
	raw, err := v.fetch(ctx, txid)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return parsed{}, err
		}
		return parsed{}, slpg.WrapErr(slpg.ValidationUnavailable, err, "fetch tx %s", txid)
	}
	tx, err := bch.DecodeTx(raw)
	if err != nil {
		return parsed{}, slpg.WrapErr(slpg.ValidationUnavailable, err, "decode tx %s", txid)
	}
	p := parsed{res: slpg.ValidationResult{TxID: txid, Tx: tx}}
	p.res.Details, p.err = ParseMessage(tx)
	if p.err != nil {
		var me MessageError
		p.envelope = errors.As(p.err, &me)
		return p, nil
	}
	p.envelope = true
	return p, nil
}

func (v *Validator) compute(ctx context.Context, p parsed) (verdict, error) {
	res := p.res
	if p.err != nil {
		res.Details.Type = slpg.TxOther
		res.InvalidReason = p.err.Error()
		return verdict{res: res, envelope: p.envelope}, nil
	}
	reason, err := v.check(ctx, res.Tx, res.Details)
	if err != nil {
		return verdict{}, err
	}
	res.Valid = reason == ""
	res.InvalidReason = reason
	if !res.Valid {
		log.Printf("Validator: %s %s invalid: %s\n", res.Details.Type, res.TxID, reason)
	}
	return verdict{res: res, envelope: true}, nil
}

// check applies the token type 1 rules, returning the reason a
// transaction is invalid or "" when it is valid.
func (v *Validator) check(ctx context.Context, tx bch.Tx, d slpg.TokenDetails) (string, error) {
	switch d.Type {
	case slpg.TxIssuance:
		return "", nil

	case slpg.TxMint:
		for _, in := range tx.Inputs {
			parent, ok, err := v.tokenInput(ctx, in, d.TokenID)
			if err != nil {
				return "", err
			}
			if !ok {
				continue
			}
			pd := parent.Details
			if (pd.Type == slpg.TxIssuance || pd.Type == slpg.TxMint) && pd.BatonVOut == int(in.PrevVOut) {
				return "", nil
			}
		}
		return "no input spends a valid mint baton", nil

	case slpg.TxTransfer:
		if len(d.SendOutputs) > len(tx.Outputs) {
			return "SEND lists more outputs than the transaction has", nil
		}
		in := slpg.ZeroTokens
		for _, txin := range tx.Inputs {
			parent, ok, err := v.tokenInput(ctx, txin, d.TokenID)
			if err != nil {
				return "", err
			}
			if ok {
				in = in.Add(parent.Details.OutputQuantity(txin.PrevVOut))
			}
		}
		out := slpg.ZeroTokens
		for _, q := range d.SendOutputs {
			out = out.Add(q)
		}
		if in.LessThan(out) {
			return "outputs " + out.String() + " exceed inputs " + in.String(), nil
		}
		return "", nil
	}
	return "unsupported transaction type", nil
}

// tokenInput reports whether in spends a valid transaction of tokenID.
// A parent of another token, or of no token, is parsed but not
// validated, and its own inputs are never fetched.
func (v *Validator) tokenInput(ctx context.Context, in bch.TxIn, tokenID string) (slpg.ValidationResult, bool, error) {
	if in.IsCoinbase() {
		return slpg.ValidationResult{}, false, nil
	}
	parent, found := v.cache.Get(in.PrevTxID)
	if !found {
		p, err := v.parse(ctx, in.PrevTxID)
		if err != nil {
			return slpg.ValidationResult{}, false, err
		}
		if p.err != nil || p.res.Details.TokenID != tokenID {
			return p.res, false, nil
		}
		parent, err = v.verdict(ctx, in.PrevTxID, &p)
		if err != nil {
			return slpg.ValidationResult{}, false, err
		}
	}
	ok := parent.envelope && parent.res.Valid && parent.res.Details.TokenID == tokenID
	return parent.res, ok, nil
}
