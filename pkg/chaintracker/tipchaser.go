package chaintracker

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	slpg "github.com/simpleledger/slpgraph/pkg"
	"github.com/simpleledger/slpgraph/pkg/conductor"
)

// interface guard ensures TipChaser implements slpg.NodeEmitter
var _ slpg.NodeEmitter = &TipChaser{}

// BlockCounter is the part of the full node the TipChaser polls.
type BlockCounter interface {
	GetBlockCount(ctx context.Context) (int64, error)
}

/*
 * TipChaser turns full node notifications into one Block event per new
 * chain tip. It receives NodeEvents from the CoreReceiver ZMQ listener,
 * drops repeats, and passes each new block on to its listeners.
 * If it doesn't receive a ZMQ block for a while, it polls the node's
 * block count instead and reports a change as a block event.
 */
type TipChaser struct {
	node            BlockCounter
	interval        time.Duration
	ReceiveFromCore chan slpg.NodeEvent
	lock            sync.Mutex
	listeners       []chan<- slpg.NodeEvent
}

func NewTipChaser(conf slpg.Config, node BlockCounter) *TipChaser {
	return &TipChaser{
		node:            node,
		interval:        conf.TipPollInterval(),
		ReceiveFromCore: make(chan slpg.NodeEvent, 1000),
	}
}

// StartTipChaser adds a TipChaser fed by the given ZMQ emitter.
func StartTipChaser(c *conductor.Conductor, conf slpg.Config, node BlockCounter, zmq slpg.NodeEmitter) *TipChaser {
	tc := NewTipChaser(conf, node)
	zmq.Subscribe(tc.ReceiveFromCore)
	c.Service("TipChaser", tc)
	return tc
}

func (c *TipChaser) Subscribe(ch chan<- slpg.NodeEvent) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.listeners = append(c.listeners, ch)
}

func (c *TipChaser) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		started <- true
		var lastid string
		var height int64 = -1
		poll := time.NewTimer(c.interval)
		defer poll.Stop()
		for {
			select {
			case <-stop:
				stopped <- true
				return
			case e := <-c.ReceiveFromCore:
				if e.Type != slpg.Block || e.ID == lastid {
					continue
				}
				lastid = e.ID
				c.sendEvent(e)
				if !poll.Stop() {
					<-poll.C
				}
				poll.Reset(c.interval)
			case <-poll.C:
				log.Println("TipChaser: no ZMQ block lately, falling back to getblockcount")
				ctx, cancel := context.WithTimeout(context.Background(), c.interval)
				n, err := c.node.GetBlockCount(ctx)
				cancel()
				if err != nil {
					log.Println("TipChaser: core RPC request failed: getblockcount:", err)
				} else if n != height {
					if height >= 0 {
						lastid = ""
						c.sendEvent(slpg.NodeEvent{Type: slpg.Block, ID: "height:" + strconv.FormatInt(n, 10)})
					}
					height = n
				}
				poll.Reset(c.interval)
			}
		}
	}()
	return nil
}

// sendEvent never blocks; a busy listener will catch up on the next block.
func (c *TipChaser) sendEvent(e slpg.NodeEvent) {
	log.Println("TipChaser: discovered new best block:", e.ID)
	c.lock.Lock()
	defer c.lock.Unlock()
	for _, ch := range c.listeners {
		select {
		case ch <- e:
		default:
		}
	}
}
