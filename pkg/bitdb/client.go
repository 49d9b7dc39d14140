package bitdb

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	slpg "github.com/simpleledger/slpgraph/pkg"
	"github.com/simpleledger/slpgraph/pkg/slp"
)

// interface guard ensures Client implements slpg.SpendQuery
var _ slpg.SpendQuery = &Client{}

// Client queries a BitDB compatible indexer for the transactions
// spending an outpoint. Both the confirmed (c) and unconfirmed (u)
// collections are searched.
type Client struct {
	http *resty.Client
}

func NewClient(config slpg.Config) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(config.BitDB.URL, "/")).
		SetTimeout(time.Duration(config.BitDB.Timeout) * time.Second).
		SetHeader("Accept", "application/json")
	if config.BitDB.APIKey != "" {
		c.SetHeader("key", config.BitDB.APIKey)
	}
	return &Client{http: c}
}

type Query struct {
	V int        `json:"v"`
	Q QueryFind  `json:"q"`
	R QueryReply `json:"r"`
}

type QueryFind struct {
	Find map[string]any `json:"find"`
}

type QueryReply struct {
	F string `json:"f"`
}

// SpendQuery builds the query matching any transaction with an input
// spending txid:vout. The jq filter flattens each match into a Row.
func SpendQuery(out slpg.Outpoint) Query {
	return Query{
		V: 3,
		Q: QueryFind{Find: map[string]any{
			"in": map[string]any{
				"$elemMatch": map[string]any{
					"e.h": out.TxID,
					"e.i": out.VOut,
				},
			},
		}},
		R: QueryReply{F: rowFilter},
	}
}

var rowFilter = buildRowFilter()

func buildRowFilter() string {
	fields := []string{
		"txid: .tx.h",
		"block: (if .blk? then .blk.i else null end)",
		"timestamp: (if .blk? then .blk.t else null end)",
		"tokenid: .out[0].h4",
	}
	for i := 1; i <= slp.MaxSendOutputs; i++ {
		fields = append(fields, fmt.Sprintf("slp%d: .out[0].h%d", i, i+4))
	}
	for i := 0; i <= slp.MaxSendOutputs; i++ {
		fields = append(fields, fmt.Sprintf("bch%d: .out[%d].e.v", i, i))
	}
	return "[ .[] | { " + strings.Join(fields, ", ") + " } ]"
}

// Row is one match, as shaped by rowFilter. The slpN/bchN columns are
// kept raw and decoded by Outputs.
type Row map[string]json.RawMessage

type Response struct {
	C      []Row `json:"c"`
	U      []Row `json:"u"`
	Errors any   `json:"errors"`
}

func (c *Client) FindSpendingTxns(ctx context.Context, out slpg.Outpoint) ([]slpg.SpendMatch, error) {
	q, err := json.Marshal(SpendQuery(out))
	if err != nil {
		return nil, err
	}
	var res Response
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&res).
		Get("/" + base64.StdEncoding.EncodeToString(q))
	if err != nil {
		return nil, fmt.Errorf("bitdb query %s: %v", out, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("bitdb query %s: status %s", out, resp.Status())
	}
	if res.Errors != nil {
		return nil, fmt.Errorf("bitdb query %s: %v", out, res.Errors)
	}
	rows := append(res.C, res.U...)
	matches := make([]slpg.SpendMatch, 0, len(rows))
	for _, row := range rows {
		m, err := row.Match()
		if err != nil {
			return nil, fmt.Errorf("bitdb query %s: %w", out, err)
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// Match decodes a row. Outputs[0] is the OP_RETURN output, carrying no
// tokens; token quantities are decoded with the SLP amount codec.
func (r Row) Match() (slpg.SpendMatch, error) {
	var m slpg.SpendMatch
	if err := r.field("txid", &m.TxID); err != nil || m.TxID == "" {
		return m, fmt.Errorf("row without txid")
	}
	var tokenID *string
	var block, ts *int64
	if err := r.field("tokenid", &tokenID); err != nil {
		return m, err
	}
	if err := r.field("block", &block); err != nil {
		return m, err
	}
	if err := r.field("timestamp", &ts); err != nil {
		return m, err
	}
	if tokenID != nil {
		m.TokenID = *tokenID
	}
	if block != nil {
		m.BlockHeight = *block
	}
	if ts != nil {
		m.BlockTime = time.Unix(*ts, 0).UTC()
	}
	var sats0 int64
	if err := r.field("bch0", &sats0); err != nil {
		return m, err
	}
	m.Outputs = []slpg.SpentOutput{{Satoshis: sats0, Quantity: slpg.ZeroTokens}}
	for i := 1; i <= slp.MaxSendOutputs; i++ {
		var qtyHex *string
		if err := r.field(fmt.Sprintf("slp%d", i), &qtyHex); err != nil {
			return m, err
		}
		if qtyHex == nil || *qtyHex == "" {
			break
		}
		qty, err := slp.DecodeAmount(*qtyHex)
		if err != nil {
			return m, err
		}
		var sats int64
		if err := r.field(fmt.Sprintf("bch%d", i), &sats); err != nil {
			return m, err
		}
		m.Outputs = append(m.Outputs, slpg.SpentOutput{Satoshis: sats, Quantity: qty})
	}
	return m, nil
}

// field decodes a column, leaving v untouched when absent or null.
func (r Row) field(name string, v any) error {
	raw, ok := r[name]
	if !ok || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("column %s: %v", name, err)
	}
	return nil
}
