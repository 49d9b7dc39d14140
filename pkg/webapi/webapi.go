package webapi

import (
	"context"
	"log"
	"net/http"

	"github.com/julienschmidt/httprouter"
	slpg "github.com/simpleledger/slpgraph/pkg"
	"github.com/simpleledger/slpgraph/pkg/conductor"
)

// WebAPI implements conductor.Service
type WebAPI struct {
	api    slpg.API
	config slpg.Config
}

// interface guard ensures WebAPI implements conductor.Service
var _ conductor.Service = WebAPI{}

func NewWebAPI(config slpg.Config, api slpg.API) (WebAPI, error) {
	return WebAPI{api: api, config: config}, nil
}

func (t WebAPI) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		addr := t.config.WebAPI.Bind + ":" + t.config.WebAPI.Port
		server := &http.Server{Addr: addr, Handler: t.createRouter()}
		log.Printf("WebAPI: listening on %s\n", addr)
		go func() {
			if err := server.ListenAndServe(); err != http.ErrServerClosed {
				log.Fatalf("WebAPI: ListenAndServe: %v", err)
			}
		}()

		started <- true
		ctx := <-stop
		server.Shutdown(ctx)
		stopped <- true
	}()
	return nil
}

func (t WebAPI) createRouter() *httprouter.Router {
	mux := httprouter.New()

	// GET /token/:tokenID -> { token, stats } issuance metadata and statistics
	mux.GET("/token/:tokenID", t.getToken)

	// GET /token/:tokenID/graph -> [ node, .. ] every transaction of the lineage
	mux.GET("/token/:tokenID/graph", t.getGraph)

	// GET /token/:tokenID/utxos -> [ {txid, vout, quantity}, .. ] unspent token outputs
	mux.GET("/token/:tokenID/utxos", t.getUnspent)

	// GET /token/:tokenID/tx/:txID -> { node } one transaction of the lineage
	mux.GET("/token/:tokenID/tx/:txID", t.getNode)

	// POST /token/:tokenID/refresh -> 202 schedules a rebuild, tracking the token if new
	mux.POST("/token/:tokenID/refresh", t.refresh)

	return mux
}

func (t WebAPI) getToken(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	res, err := t.api.GetToken(p.ByName("tokenID"))
	if err != nil {
		sendError(w, "GetToken", err)
		return
	}
	sendResponse(w, res)
}

func (t WebAPI) getGraph(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	nodes, err := t.api.GetGraph(p.ByName("tokenID"))
	if err != nil {
		sendError(w, "GetGraph", err)
		return
	}
	sendResponse(w, nodes)
}

func (t WebAPI) getUnspent(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	items, err := t.api.GetUnspent(p.ByName("tokenID"))
	if err != nil {
		sendError(w, "GetUnspent", err)
		return
	}
	sendResponse(w, items)
}

func (t WebAPI) getNode(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	node, err := t.api.GetNode(p.ByName("tokenID"), p.ByName("txID"))
	if err != nil {
		sendError(w, "GetNode", err)
		return
	}
	sendResponse(w, node)
}

type RefreshResponse struct {
	TokenID string `json:"token_id"`
	Status  string `json:"status"`
}

func (t WebAPI) refresh(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	id := p.ByName("tokenID")
	if err := t.api.RefreshToken(id); err != nil {
		sendError(w, "RefreshToken", err)
		return
	}
	sendResponseStatus(w, http.StatusAccepted, RefreshResponse{TokenID: id, Status: "scheduled"})
}
