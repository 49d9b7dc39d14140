package receivers

import (
	"context"
	"fmt"
	"io"
	"log"

	slpg "github.com/simpleledger/slpgraph/pkg"
	"github.com/simpleledger/slpgraph/pkg/conductor"
	"gopkg.in/natefinch/lumberjack.v2"
)

// MessageLogger writes bus events to a rotated log file,
// one line per event: CATEGORY:EVENT (id): json
type MessageLogger struct {
	// MessageLogger receives slpg.Message via Rec
	Rec chan slpg.Message
	// and logs them via Log
	Log *log.Logger
	out io.Closer
	bus slpg.MessageBus
	sub *slpg.Subscription
}

// Implements slpg.MessageSubscriber
func (l *MessageLogger) GetChan() chan slpg.Message {
	return l.Rec
}

// Implements conductor.Service
func (l *MessageLogger) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		started <- true
		rec := l.Rec
		for {
			select {
			// handle stopping the service
			case <-stop:
				if l.sub != nil {
					// the bus closes Rec
					l.bus.Unregister(l.sub)
				}
				l.out.Close()
				stopped <- true
				return
			case msg, ok := <-rec:
				if !ok {
					// dropped by the bus for falling behind
					l.Log.Println("SYS:ERR: logger unsubscribed, no further events")
					rec = nil
					continue
				}
				l.Log.Printf("%s:%s (%s): %s\n",
					msg.EventType.Type(),
					msg.EventType,
					msg.ID,
					msg.Message)
			}
		}
	}()
	return nil
}

func NewMessageLogger(c slpg.LoggersConfig) *MessageLogger {
	out := &lumberjack.Logger{
		Filename:   c.Path,
		MaxSize:    c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		Compress:   true,
	}
	return &MessageLogger{
		Rec: make(chan slpg.Message, 1000),
		Log: log.New(out, "", log.Ldate|log.Ltime|log.Lmicroseconds),
		out: out,
	}
}

// subscribe registers the logger for the named event categories.
// Unknown names are reported and skipped.
func (l *MessageLogger) subscribe(bus slpg.MessageBus, name string, names []string) {
	types := []slpg.EventType{}
	for _, t := range names {
		x, ok := slpg.EventTypeByName(t)
		if !ok {
			fmt.Printf("⚠️  Logger %s: ignoring invalid message type: %s\n", name, t)
			continue
		}
		types = append(types, x)
	}
	if len(types) == 0 {
		types = append(types, slpg.EVENT_ALL("ALL"))
	}
	l.bus = bus
	l.sub = bus.Register(l, types...)
}

// Reads config and sets up any configured loggers
func SetupLoggers(cond *conductor.Conductor, bus slpg.MessageBus, conf slpg.Config) {
	for name, c := range conf.Loggers {
		l := NewMessageLogger(c)
		cond.Service(fmt.Sprintf("Logger %s", c.Path), l)
		l.subscribe(bus, name, c.Types)
	}
}
