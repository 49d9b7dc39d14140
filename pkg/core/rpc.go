package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shopspring/decimal"
	slpg "github.com/simpleledger/slpgraph/pkg"
	"github.com/simpleledger/slpgraph/pkg/bch"
)

// interface guard ensures NodeRPC implements slpg.NodeClient
var _ slpg.NodeClient = &NodeRPC{}

// NewNodeRPC returns a slpg.NodeClient that uses the full node's JSON-RPC
// interface (Bitcoin Cash Node, BCHD, or compatible).
func NewNodeRPC(config slpg.Config) (*NodeRPC, error) {
	addr := fmt.Sprintf("http://%s:%d", config.Core.RPCHost, config.Core.RPCPort)
	size := config.Core.RawTxCacheSize
	if size <= 0 {
		size = 1
	}
	cache, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	return &NodeRPC{
		url:         addr,
		user:        config.Core.RPCUser,
		pass:        config.Core.RPCPass,
		client:      &http.Client{Timeout: config.RPCTimeout()},
		maxRetries:  config.Core.MaxRetries,
		retryDelay:  config.RetryDelay(),
		maxDelay:    config.MaxRetryDelay(),
		backoffMult: 2,
		rawTxs:      cache,
	}, nil
}

type NodeRPC struct {
	url    string
	user   string
	pass   string
	id     atomic.Uint64
	client *http.Client

	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64

	// raw transactions are immutable once mined, so cache freely
	rawTxs *lru.Cache[string, []byte]
}

type rpcRequest struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
	Id     uint64 `json:"id"`
}
type rpcResponse struct {
	Id     uint64           `json:"id"`
	Result *json.RawMessage `json:"result"`
	Error  *RPCError        `json:"error"`
}

// RPCError is an error returned by the node itself. These are not retried.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("json-rpc error %d: %s", e.Code, e.Message)
}

// RPC_INVALID_ADDRESS_OR_KEY, returned for unknown transactions
const rpcNotFound = -5

var errNullResult = errors.New("json-rpc null result")

// request performs one call, retrying transport failures with
// exponential backoff up to maxRetries times.
func (l *NodeRPC) request(ctx context.Context, method string, params []any, result any) error {
	delay := l.retryDelay
	var lastErr error
	for attempt := 0; attempt <= l.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * l.backoffMult)
			if delay > l.maxDelay {
				delay = l.maxDelay
			}
		}
		retry, err := l.attempt(ctx, method, params, result)
		if err == nil || !retry {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		log.Printf("NodeRPC: %s attempt %d failed: %v\n", method, attempt+1, err)
	}
	return slpg.WrapErr(slpg.NotAvailable, lastErr, "%s: max retries exceeded", method)
}

func (l *NodeRPC) attempt(ctx context.Context, method string, params []any, result any) (retry bool, err error) {
	body := rpcRequest{
		Method: method,
		Params: params,
		Id:     l.id.Add(1), // each request should use a unique ID
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return false, fmt.Errorf("json-rpc marshal request: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.url, bytes.NewBuffer(payload))
	if err != nil {
		return false, fmt.Errorf("json-rpc request: %v", err)
	}
	req.SetBasicAuth(l.user, l.pass)
	req.Header.Set("Content-Type", "application/json")
	res, err := l.client.Do(req)
	if err != nil {
		return true, fmt.Errorf("json-rpc transport: %v", err)
	}
	// we MUST read all of res.Body and call res.Close,
	// otherwise the underlying connection cannot be re-used.
	defer res.Body.Close()
	resBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return true, fmt.Errorf("json-rpc read response: %v", err)
	}
	// the node reports RPC errors with status 500 and a JSON body,
	// so decode before looking at the status code.
	var rpcres rpcResponse
	jsonErr := json.Unmarshal(resBytes, &rpcres)
	if jsonErr == nil && rpcres.Error != nil {
		return false, rpcres.Error
	}
	if res.StatusCode != http.StatusOK {
		retry := res.StatusCode >= 500 || res.StatusCode == http.StatusTooManyRequests
		return retry, fmt.Errorf("json-rpc status code: %s", res.Status)
	}
	if jsonErr != nil {
		return true, fmt.Errorf("json-rpc unmarshal response: %v", jsonErr)
	}
	if rpcres.Id != body.Id {
		return false, fmt.Errorf("json-rpc wrong ID returned: %v vs %v", rpcres.Id, body.Id)
	}
	if rpcres.Result == nil {
		return false, errNullResult
	}
	err = json.Unmarshal(*rpcres.Result, result)
	if err != nil {
		return false, fmt.Errorf("json-rpc unmarshal result: %v | %v", err, string(*rpcres.Result))
	}
	return false, nil
}

func (l *NodeRPC) GetRawTransaction(ctx context.Context, txid string) ([]byte, error) {
	if raw, ok := l.rawTxs.Get(txid); ok {
		return raw, nil
	}
	var txHex string
	err := l.request(ctx, "getrawtransaction", []any{txid, false}, &txHex)
	if err != nil {
		return nil, notFound(err, "getrawtransaction %s", txid)
	}
	raw, err := bch.HexDecode(txHex)
	if err != nil {
		return nil, fmt.Errorf("getrawtransaction %s: bad hex: %v", txid, err)
	}
	if got := bch.TxHashHex(raw); got != txid {
		return nil, fmt.Errorf("getrawtransaction %s: node returned tx %s", txid, got)
	}
	l.rawTxs.Add(txid, raw)
	return raw, nil
}

type txOutResult struct {
	Value         json.Number `json:"value"` // in BCH
	Confirmations int64       `json:"confirmations"`
}

// GetTxOut uses `gettxout` including the mempool: a null result means
// the output is spent, pruned, or never existed.
func (l *NodeRPC) GetTxOut(ctx context.Context, txid string, vout uint32) (slpg.TxOutStatus, error) {
	var out txOutResult
	err := l.request(ctx, "gettxout", []any{txid, vout, true}, &out)
	if errors.Is(err, errNullResult) {
		return slpg.TxOutStatus{Unspent: false}, nil
	}
	if err != nil {
		return slpg.TxOutStatus{}, err
	}
	sats, err := coinsToSatoshis(out.Value)
	if err != nil {
		return slpg.TxOutStatus{}, fmt.Errorf("gettxout %s:%d: %v", txid, vout, err)
	}
	return slpg.TxOutStatus{Unspent: true, Satoshis: sats, Confirmations: out.Confirmations}, nil
}

type txInfoResult struct {
	BlockHash     string `json:"blockhash"`
	BlockTime     int64  `json:"blocktime"`
	Confirmations int64  `json:"confirmations"`
}

func (l *NodeRPC) GetTxInfo(ctx context.Context, txid string) (slpg.TxInfo, error) {
	var info txInfoResult
	err := l.request(ctx, "getrawtransaction", []any{txid, true}, &info)
	if err != nil {
		return slpg.TxInfo{}, notFound(err, "getrawtransaction %s", txid)
	}
	res := slpg.TxInfo{BlockHash: info.BlockHash, Confirmations: info.Confirmations}
	if info.BlockTime > 0 {
		res.BlockTime = time.Unix(info.BlockTime, 0).UTC()
	}
	return res, nil
}

func (l *NodeRPC) GetBlockCount(ctx context.Context) (blockCount int64, err error) {
	err = l.request(ctx, "getblockcount", []any{}, &blockCount)
	return
}

func notFound(err error, format string, args ...any) error {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) && rpcErr.Code == rpcNotFound {
		return slpg.WrapErr(slpg.NotFound, err, format, args...)
	}
	return err
}

var satoshisPerCoin = decimal.New(1, 8)

func coinsToSatoshis(n json.Number) (int64, error) {
	d, err := decimal.NewFromString(string(n))
	if err != nil {
		return 0, err
	}
	return d.Mul(satoshisPerCoin).IntPart(), nil
}
