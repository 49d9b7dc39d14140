package core

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"sync"
	"syscall"
	"time"

	"github.com/pebbe/zmq4"
	slpg "github.com/simpleledger/slpgraph/pkg"
)

// interface guard ensures CoreReceiver implements slpg.NodeEmitter
var _ slpg.NodeEmitter = &CoreReceiver{}

// CoreReceiver receives ZMQ notifications from the full node.
// CAUTION: the protocol is not authenticated!
// Subscribers treat events as hints to refresh, never as data.
type CoreReceiver struct {
	bus         slpg.MessageBus
	lock        sync.Mutex
	listeners   []chan<- slpg.NodeEvent
	nodeAddress string
}

func (e *CoreReceiver) Subscribe(ch chan<- slpg.NodeEvent) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.listeners = append(e.listeners, ch)
}

func NewCoreReceiver(bus slpg.MessageBus, config slpg.Config) (*CoreReceiver, error) {
	return &CoreReceiver{
		bus:         bus,
		listeners:   make([]chan<- slpg.NodeEvent, 0, 10),
		nodeAddress: fmt.Sprintf("tcp://%s:%d", config.Core.RPCHost, config.Core.ZMQPort),
	}, nil
}

func (z *CoreReceiver) Run(started, stopped chan bool, stop chan context.Context) error {
	sock, err := zmq4.NewSocket(zmq4.SUB)
	if err != nil {
		return err
	}
	sock.SetRcvtimeo(2 * time.Second)
	z.bus.Send(slpg.SYS_STARTUP, fmt.Sprintf("ZMQ: connecting to: %s", z.nodeAddress))
	err = sock.Connect(z.nodeAddress)
	if err != nil {
		return err
	}
	err = subscribeAll(sock, "hashtx", "hashblock")
	if err != nil {
		return err
	}
	go func() {
		started <- true

		for {
			// Handle shutdown
			select {
			case <-stop:
				sock.Close()
				stopped <- true
				return
			default:
				// fall through to zmq recv
			}

			msg, err := sock.RecvMessageBytes(0)
			if err != nil {
				if zerr, ok := err.(zmq4.Errno); ok && (zerr == zmq4.Errno(syscall.ETIMEDOUT) || zerr == zmq4.Errno(syscall.EAGAIN)) {
					// handle timeouts by looping again
					continue
				}
				z.bus.Send(slpg.SYS_ERR, fmt.Sprintf("ZMQ err: %s", err))
				continue
			}
			if len(msg) < 2 {
				continue
			}
			tag := string(msg[0])
			switch tag {
			case "hashtx":
				z.notify(slpg.TX, toHex(msg[1]))
			case "hashblock":
				id := toHex(msg[1])
				log.Printf("ZMQ=> BLOCK id=%s\n", id)
				z.notify(slpg.Block, id)
			default:
				log.Printf("ZMQ=> %s ??\n", tag)
			}
		}
	}()
	return nil
}

// notify never blocks the receive loop; a busy listener misses the
// event, which is fine for refresh hints.
func (z *CoreReceiver) notify(tag slpg.NodeEventType, id string) {
	e := slpg.NodeEvent{Type: tag, ID: id}
	z.lock.Lock()
	defer z.lock.Unlock()
	for _, ch := range z.listeners {
		select {
		case ch <- e:
		default:
		}
	}
}

func toHex(b []byte) string {
	return hex.EncodeToString(b)
}

func subscribeAll(sock *zmq4.Socket, topics ...string) error {
	for _, topic := range topics {
		err := sock.SetSubscribe(topic)
		if err != nil {
			return err
		}
	}
	return nil
}
