package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	slpg "github.com/simpleledger/slpgraph/pkg"
)

/*
	extend runs a one-off traversal in-process; stats and refresh are
	convenience CLI tools that call the REST API of a running server.
*/

// Extend builds a token graph from scratch and prints its statistics,
// or the whole graph. An incomplete graph is printed all the same,
// followed by the errors that left it incomplete.
func Extend(ctx context.Context, c slpg.Config, genesisTxID string, printGraph bool) error {
	l, err := newLedger(c)
	if err != nil {
		return err
	}
	b, err := l.newBuilder(c, nil)(ctx, genesisTxID)
	if err != nil {
		return err
	}
	start := time.Now()
	extendErr := b.Extend(ctx, genesisTxID)
	fmt.Fprintf(os.Stderr, "visited %d transactions in %v\n", b.State().NodeCount(), time.Since(start))

	var out any = b.ComputeStatistics()
	if printGraph {
		out = b.State().Snapshot()
	}
	if err := printJSON(out); err != nil {
		return err
	}
	if extendErr != nil {
		return fmt.Errorf("graph is incomplete: %w", extendErr)
	}
	return nil
}

// GetStats prints the statistics a running server holds for a token.
func GetStats(c slpg.Config, remote string, tokenID string) error {
	var res slpg.TokenResponse
	var apiErr apiError
	resp, err := apiClient(c, remote).R().
		SetResult(&res).
		SetError(&apiErr).
		Get("/token/" + tokenID)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return apiErr.err(resp.StatusCode())
	}
	fmt.Printf("%s (%s), %d nodes\n", res.Token.Name, res.Token.Ticker, res.Nodes)
	return printJSON(res.Stats)
}

// Refresh asks a running server to rebuild a token's graph.
func Refresh(c slpg.Config, remote string, tokenID string) error {
	var apiErr apiError
	resp, err := apiClient(c, remote).R().
		SetError(&apiErr).
		Post("/token/" + tokenID + "/refresh")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return apiErr.err(resp.StatusCode())
	}
	fmt.Println("refresh scheduled for", tokenID)
	return nil
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e apiError) err(status int) error {
	return slpg.NewErr(slpg.ErrorCode(e.Error.Code), "server returned %d: %s", status, e.Error.Message)
}

// work out the server URL from args or config
func apiClient(c slpg.Config, remote string) *resty.Client {
	base := remote
	if base == "" {
		host := c.WebAPI.Bind
		if host == "" || host == "0.0.0.0" {
			host = "localhost"
		}
		base = fmt.Sprintf("http://%s:%s", host, c.WebAPI.Port)
	}
	return resty.New().
		SetBaseURL(strings.TrimRight(base, "/")).
		SetTimeout(30 * time.Second)
}

func printJSON(v any) error {
	o, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(o))
	return nil
}
