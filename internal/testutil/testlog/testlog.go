package testlog

import (
	"testing"

	"github.com/ecucore/coreem/internal/logging"
)

// Start configures the test logging profile once per process and tags
// the test name into the log stream. Call at the top of every test.
func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	log := logging.For("test")
	log.Debug().Str("test", t.Name()).Msg("start")
}
