package receivers

import (
	slpg "github.com/simpleledger/slpgraph/pkg"
	"github.com/simpleledger/slpgraph/pkg/conductor"
)

// Sets up standard receivers.
func SetUpReceivers(cond *conductor.Conductor, bus slpg.MessageBus, conf slpg.Config) {
	// Set up configured loggers
	SetupLoggers(cond, bus, conf)
}
