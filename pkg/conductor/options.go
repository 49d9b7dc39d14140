package conductor

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Sets the time allowed for a service to start before timing out
func StartupTimeout(d time.Duration) func(*Conductor) {
	return func(c *Conductor) {
		c.startTimeout = d
	}
}

// Sets the time allowed for a service to stop before timing out
func ShutdownTimeout(d time.Duration) func(*Conductor) {
	return func(c *Conductor) {
		c.stopTimeout = d
	}
}

// tells the Conductor to log output
func Noisy() func(*Conductor) {
	return func(c *Conductor) {
		c.noisy = true
	}
}

// HookSignals shuts the Conductor down on SIGTERM or SIGINT.
// A second signal while services are stopping exits immediately.
func HookSignals() func(*Conductor) {
	return func(c *Conductor) {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		go func() {
			stopping := false
			for {
				select {
				case sig := <-sigCh:
					if stopping {
						log.Printf("Conductor: caught %v again, exiting now\n", sig)
						os.Exit(1)
					}
					log.Printf("Conductor: caught %v, shutting down\n", sig)
					stopping = true
					go c.Stop()
				case <-c.shutdown:
					signal.Stop(sigCh)
					return
				}
			}
		}()
	}
}
