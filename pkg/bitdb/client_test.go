package bitdb

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	slpg "github.com/simpleledger/slpgraph/pkg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	spentTx = strings.Repeat("aa", 32)
	spender = strings.Repeat("bb", 32)
	tokenID = strings.Repeat("cc", 32)
)

func newTestClient(t *testing.T, handler func(q Query) (int, string)) *Client {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(r.URL.Path, "/q/"))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var q Query
		if err := json.Unmarshal(raw, &q); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		status, body := handler(q)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	conf := slpg.TestConfig()
	conf.BitDB.URL = srv.URL + "/q/"
	return NewClient(conf)
}

func TestSpendQueryShape(t *testing.T) {
	q, err := json.Marshal(SpendQuery(slpg.Outpoint{TxID: spentTx, VOut: 2}))
	require.NoError(t, err)
	s := string(q)
	require.Contains(t, s, `"v":3`)
	require.Contains(t, s, `{"in":{"$elemMatch":{"e.h":"`+spentTx+`","e.i":2}}}`)
	require.Contains(t, rowFilter, "slp19: .out[0].h23")
	require.Contains(t, rowFilter, "bch19: .out[19].e.v")
}

func TestFindSpendingTxns(t *testing.T) {
	c := newTestClient(t, func(q Query) (int, string) {
		in := q.Q.Find["in"].(map[string]any)["$elemMatch"].(map[string]any)
		assert.Equal(t, spentTx, in["e.h"])
		assert.Equal(t, float64(1), in["e.i"])
		return 200, `{"c":[{"txid":"` + spender + `","block":600000,"timestamp":1570000000,"tokenid":"` + tokenID + `",` +
			`"slp1":"00000000000003e8","slp2":"0000000100000000","slp3":null,"bch0":0,"bch1":546,"bch2":1000,"bch3":5000}],"u":[]}`
	})
	matches, err := c.FindSpendingTxns(context.Background(), slpg.Outpoint{TxID: spentTx, VOut: 1})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	m := matches[0]
	require.Equal(t, spender, m.TxID)
	require.Equal(t, tokenID, m.TokenID)
	require.Equal(t, int64(600000), m.BlockHeight)
	require.Equal(t, int64(1570000000), m.BlockTime.Unix())
	require.Len(t, m.Outputs, 3)
	require.True(t, m.Outputs[0].Quantity.IsZero())
	require.Equal(t, "1000", m.Outputs[1].Quantity.String())
	require.Equal(t, int64(546), m.Outputs[1].Satoshis)
	require.Equal(t, "4294967296", m.Outputs[2].Quantity.String())
	require.Equal(t, int64(1000), m.Outputs[2].Satoshis)
}

func TestFindSpendingTxnsUnconfirmedAndMany(t *testing.T) {
	c := newTestClient(t, func(q Query) (int, string) {
		return 200, `{"c":[{"txid":"` + spender + `","bch0":0}],"u":[{"txid":"` + spentTx + `","block":null,"bch0":0}]}`
	})
	matches, err := c.FindSpendingTxns(context.Background(), slpg.Outpoint{TxID: spentTx, VOut: 1})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, int64(0), matches[1].BlockHeight)
	require.True(t, matches[1].BlockTime.IsZero())
}

func TestFindSpendingTxnsErrors(t *testing.T) {
	c := newTestClient(t, func(q Query) (int, string) {
		return 200, `{"errors":["bad query"]}`
	})
	_, err := c.FindSpendingTxns(context.Background(), slpg.Outpoint{TxID: spentTx, VOut: 1})
	require.Error(t, err)

	c = newTestClient(t, func(q Query) (int, string) {
		return 502, `bad gateway`
	})
	_, err = c.FindSpendingTxns(context.Background(), slpg.Outpoint{TxID: spentTx, VOut: 1})
	require.Error(t, err)
}

func TestFindSpendingTxnsMalformedAmount(t *testing.T) {
	c := newTestClient(t, func(q Query) (int, string) {
		return 200, `{"c":[{"txid":"` + spender + `","slp1":"03e8","bch0":0,"bch1":546}],"u":[]}`
	})
	_, err := c.FindSpendingTxns(context.Background(), slpg.Outpoint{TxID: spentTx, VOut: 1})
	require.True(t, slpg.IsError(err, slpg.MalformedAmount), "got %v", err)
}
