package transport

import (
	"os"
	"sync"

	"github.com/ecucore/coreem/internal/logging"
)

var (
	processMu      sync.Mutex
	processBus     = NewBus()
	processBinding *Binding
)

// Init is idempotent per process: the first call creates the binding
// under appName, starts its dispatch goroutine, and applies any
// SOMEIP_REQUEST_EVENTS pre-requests. Subsequent calls with the same
// name are no-ops returning the existing binding; calls with a
// different name log and return the existing binding unchanged.
func Init(appName string) *Binding {
	processMu.Lock()
	defer processMu.Unlock()

	if processBinding != nil {
		if processBinding.appName != appName {
			log := logging.For("transport")
			log.Warn().
				Str("active", processBinding.appName).
				Str("requested", appName).
				Msg("transport already initialized under a different name, ignoring")
		}
		return processBinding
	}

	b := NewBinding(appName, processBus)
	b.applyEnvPreRequests(os.Getenv(EnvRequestEvents))
	processBinding = b
	log := logging.For("transport")
	log.Info().Str("app", appName).Msg("transport binding initialized")
	return b
}

// Current returns the process-wide binding, or nil if Init has not
// been called.
func Current() *Binding {
	processMu.Lock()
	defer processMu.Unlock()
	return processBinding
}

// CurrentBus returns the process-wide Bus so a second application
// identity can attach alongside the singleton binding (via NewBinding)
// within the same process, e.g. for integration tests exercising
// cross-app fan-out without real child processes.
func CurrentBus() *Bus {
	processMu.Lock()
	defer processMu.Unlock()
	return processBus
}

// Shutdown stops and clears the process-wide binding. Further calls to
// Init start a fresh binding; this is intended for tests and for the
// Execution Manager's own clean-shutdown path.
func Shutdown() {
	processMu.Lock()
	b := processBinding
	processBinding = nil
	processMu.Unlock()

	if b != nil {
		b.Shutdown()
	}
}
