package main

import (
	"context"
	"log"

	slpg "github.com/simpleledger/slpgraph/pkg"
	"github.com/simpleledger/slpgraph/pkg/bitdb"
	"github.com/simpleledger/slpgraph/pkg/chaintracker"
	"github.com/simpleledger/slpgraph/pkg/conductor"
	"github.com/simpleledger/slpgraph/pkg/core"
	"github.com/simpleledger/slpgraph/pkg/receivers"
	"github.com/simpleledger/slpgraph/pkg/services"
	"github.com/simpleledger/slpgraph/pkg/slp"
	"github.com/simpleledger/slpgraph/pkg/spend"
	"github.com/simpleledger/slpgraph/pkg/store"
	"github.com/simpleledger/slpgraph/pkg/tokengraph"
	"github.com/simpleledger/slpgraph/pkg/webapi"
)

// ledger bundles the clients every graph builder shares.
type ledger struct {
	node      *core.NodeRPC
	validator *slp.Validator
	spends    spend.Chain
}

func newLedger(conf slpg.Config) (ledger, error) {
	node, err := core.NewNodeRPC(conf)
	if err != nil {
		return ledger{}, err
	}
	validator, err := slp.NewValidator(node.GetRawTransaction, conf.Graph.ValidationCacheSize)
	if err != nil {
		return ledger{}, err
	}
	return ledger{
		node:      node,
		validator: validator,
		spends:    spend.NewResolver(node, bitdb.NewClient(conf)),
	}, nil
}

func (l ledger) newBuilder(conf slpg.Config, bus slpg.MessageBus) services.BuilderFactory {
	return func(ctx context.Context, genesisTxID string) (*tokengraph.Builder, error) {
		opts := []tokengraph.Option{
			tokengraph.WithWorkers(conf.Graph.Workers),
			tokengraph.WithTxInfo(l.node),
		}
		if bus != nil {
			opts = append(opts, tokengraph.WithBus(bus))
		}
		return tokengraph.NewBuilder(ctx, genesisTxID, l.validator, l.spends, opts...)
	}
}

func openStore(conf slpg.Config) (slpg.Store, error) {
	if conf.Store.PostgresDSN != "" {
		return store.NewPostgresStore(conf.Store.PostgresDSN)
	}
	return store.NewSQLite(conf.Store.DBFile)
}

func Server(conf slpg.Config) {

	c := conductor.NewConductor(
		conductor.HookSignals(),
		conductor.Noisy(),
	)

	// Start the MessageBus Service
	bus := slpg.NewMessageBus()
	c.Service("MessageBus", bus)

	// Set up all configured receivers
	receivers.SetUpReceivers(c, bus, conf)

	// Set up the full node and remote index clients
	l, err := newLedger(conf)
	if err != nil {
		panic(err)
	}

	// Setup a Store
	db, err := openStore(conf)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	// The Core listener service (ZMQ) and the TipChaser drive refreshes
	corez, err := core.NewCoreReceiver(bus, conf)
	if err != nil {
		panic(err)
	}
	c.Service("ZMQ Listener", corez)
	chaser := chaintracker.StartTipChaser(c, conf, l.node, corez)

	// Start the Token Tracker
	tracker := services.NewTokenTracker(db, bus, chaser, conf, l.newBuilder(conf, bus))
	c.Service("Token Tracker", tracker)

	// Start the Graph API
	api := slpg.NewAPI(tracker)
	p, err := webapi.NewWebAPI(conf, api)
	if err != nil {
		panic(err)
	}
	c.Service("Graph API", p)

	bus.Send(slpg.SYS_STARTUP, "slpgraph started")
	<-c.Start()
	log.Println("slpgraph stopped")
}
