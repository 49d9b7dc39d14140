package slpg

/*
The message subsystem gives integrations event-based access to token
graph activity: a traversal finishing, a node being added or found
invalid, a checkpoint being restored.

A simple internal 'message bus' is passed around as a singleton, with
an internal goroutine and a 'send' method for sending 'messages'.

Outbound destinations are created in config (log files today) and are
managed by MessageSubscribers: each registers its own channel with the
bus along with the list of EventTypes it wants.
*/

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"sync"
)

// MessageSubscribers are things that subscribe to the bus and handle
// messages, ie: log files.
type MessageSubscriber interface {
	GetChan() chan Message
}

// Created by the bus, wraps message sent with Send
type Message struct {
	EventType EventType
	Message   []byte
	ID        string // optional
}

type Subscription struct {
	dest  MessageSubscriber
	types []EventType
}

func (s *Subscription) wants(t EventType) bool {
	for _, st := range s.types {
		if st.Type() == "ALL" || st.Type() == t.Type() {
			return true
		}
	}
	return false
}

func NewMessageBus() MessageBus {
	return &messageBus{
		receivers: make(map[*Subscription]bool),
		inbound:   make(chan Message, 1000),
	}
}

// MessageBus is shared by every service that reports events.
type MessageBus interface {
	Send(t EventType, msg any, msgID ...string) error
	Register(m MessageSubscriber, types ...EventType) *Subscription
	Unregister(sub *Subscription)
	Run(started, stopped chan bool, stop chan context.Context) error
}

type messageBus struct {
	lock sync.Mutex
	// Registered MessageSubscribers.
	receivers map[*Subscription]bool

	// Messages from Send(), destined for MessageSubscribers
	inbound chan Message
}

// Send a message to the bus with a specific EventType
// msg can be anything JSON serialisable, this will be
// turned into a Message and delivered to any interested MessageSubscribers.
// Send never blocks: when the bus is backed up the message is dropped.
func (b *messageBus) Send(t EventType, msg any, msgID ...string) error {
	j, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	m := Message{t, j, generateID()}
	if len(msgID) > 0 {
		m.ID = msgID[0]
	}
	select {
	case b.inbound <- m:
	default:
		log.Printf("MessageBus: inbound queue full, dropping %s:%s\n", t.Type(), t)
	}
	return nil
}

func (b *messageBus) Register(m MessageSubscriber, types ...EventType) *Subscription {
	sub := &Subscription{m, types}
	b.lock.Lock()
	b.receivers[sub] = true
	b.lock.Unlock()
	return sub
}

func (b *messageBus) Unregister(sub *Subscription) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.unregisterLocked(sub)
}

func (b *messageBus) unregisterLocked(sub *Subscription) {
	if b.receivers[sub] {
		delete(b.receivers, sub)
		close(sub.dest.GetChan())
	}
}

func (b *messageBus) deliver(message Message) {
	b.lock.Lock()
	defer b.lock.Unlock()
	for sub := range b.receivers {
		if !sub.wants(message.EventType) {
			continue
		}
		select {
		case sub.dest.GetChan() <- message:
		default:
			// if we are unable to send, cancel the sub
			log.Println("MessageBus: receiver failed to handle msg, closing")
			b.unregisterLocked(sub)
		}
	}
}

// Implements conductor Service
func (b *messageBus) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		stopBus := make(chan bool)
		go func() {
			for {
				select {
				case <-stopBus:
					return
				case message := <-b.inbound:
					b.deliver(message)
				}
			}
		}()

		started <- true
		// wait for shutdown.
		<-stop
		close(stopBus)
		stopped <- true
	}()
	return nil
}

// create a short random ID for msgs that have none
func generateID() string {
	bytes := make([]byte, 4)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)[:8]
}
