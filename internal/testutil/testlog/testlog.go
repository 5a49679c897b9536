package testlog

import (
	"testing"

	"github.com/danmuck/raknet/internal/logging"
	"github.com/rs/zerolog/log"
)

// Start configures test logging once and tags the test in the log stream.
func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	log.Info().Str("test", t.Name()).Msg("start")
}
