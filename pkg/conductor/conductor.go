package conductor

import (
	"context"
	"log"
	"sync"
	"time"
)

const (
	startupTimeout  time.Duration = 5 * time.Second
	shutdownTimeout time.Duration = 10 * time.Second // a traversal may be mid-flight
)

// Service is anything the conductor starts and stops: the message bus,
// the ZMQ receiver, the token tracker, the web API, loggers.
//
// Run must return promptly, signal 'started' once running, and
// signal 'stopped' after receiving on the stop channel.
type Service interface {
	Run(started, stopped chan bool, stop chan context.Context) error
}

type serviceState struct {
	name     string
	service  Service
	ready    chan bool
	stopped  chan bool
	shutdown chan context.Context
	running  bool
}

type Conductor struct {
	lock         sync.Mutex
	started      bool          // Have we been started yet?
	noisy        bool          // Should we log?
	startTimeout time.Duration // per service, then everything is stopped
	stopTimeout  time.Duration // for all services together
	shutdown     chan bool     // closed once everything has stopped, returned from Start()
	stopOnce     sync.Once
	services     []*serviceState
}

/* Create a new conductor instance, accepts Option funcs for
changing default behaviours */
func NewConductor(opts ...func(*Conductor)) *Conductor {
	c := Conductor{
		startTimeout: startupTimeout,
		stopTimeout:  shutdownTimeout,
		shutdown:     make(chan bool),
	}
	for _, optFn := range opts {
		optFn(&c)
	}
	return &c
}

/* Add a Service with a name to be started in order when Start is called */
func (c *Conductor) Service(name string, service Service) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.started {
		panic("Cannot call Conductor.Service after Conductor.Start")
	}
	c.services = append(c.services, &serviceState{
		name:     name,
		service:  service,
		ready:    make(chan bool, 1),
		stopped:  make(chan bool, 1),
		shutdown: make(chan context.Context, 1),
	})
}

/* Start each service in turn, in the order they were added, so later
services can depend on earlier ones. A service failing to start stops
everything already running. */
func (c *Conductor) Start() chan bool {
	c.lock.Lock()
	c.started = true
	services := c.services
	c.lock.Unlock()

	for _, srv := range services {
		c.logf("🔧 Starting '%s'", srv.name)
		if err := srv.service.Run(srv.ready, srv.stopped, srv.shutdown); err != nil {
			c.logf("⚠️  '%s' exited with: %s", srv.name, err)
			go c.Stop()
			break
		}
		select {
		case <-time.After(c.startTimeout):
			c.logf("⚠️  timed-out during startup '%s'", srv.name)
			go c.Stop()
			return c.shutdown
		case <-srv.ready:
			c.lock.Lock()
			srv.running = true
			c.lock.Unlock()
			c.logf(".. '%s' ok", srv.name)
		}
	}
	return c.shutdown
}

// Stop shuts the running services down, latest first, and closes the
// channel returned by Start. Calling it again has no effect.
func (c *Conductor) Stop() {
	c.stopOnce.Do(c.stop)
}

func (c *Conductor) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), c.stopTimeout)
	defer cancel()

	c.lock.Lock()
	var running []*serviceState
	for i := len(c.services) - 1; i >= 0; i-- {
		if c.services[i].running {
			running = append(running, c.services[i])
		}
	}
	c.lock.Unlock()

	for _, s := range running {
		log.Printf("Conductor: requesting shutdown: %s\n", s.name)
		s.shutdown <- ctx
		select {
		case <-s.stopped:
			c.logf("shutdown complete: %s", s.name)
		case <-ctx.Done():
			log.Printf("Conductor: timeout exceeded waiting for '%s' to stop, shutting down\n", s.name)
			close(c.shutdown)
			return
		}
	}
	log.Println("Conductor: 👋 all services stopped, goodbye!")
	close(c.shutdown)
}

func (c *Conductor) logf(s string, v ...interface{}) {
	if c.noisy {
		log.Printf("Conductor: "+s+"\n", v...)
	}
}
