// Package observability carries the node's logging bootstrap, the
// prometheus metric set, and the gin middleware that feeds both.
package observability

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger installs the process-wide console logger. The level can be
// lowered or raised through ROSLINK_LOG_LEVEL without a config file.
func InitLogger(proc string) zerolog.Logger {
	level := zerolog.InfoLevel
	if raw := strings.TrimSpace(os.Getenv("ROSLINK_LOG_LEVEL")); raw != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(raw)); err == nil && parsed != zerolog.NoLevel {
			level = parsed
		}
	}
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	logger := zerolog.New(output).Level(level).With().
		Timestamp().
		Str("proc", proc).
		Logger()
	log.Logger = logger
	return logger
}
