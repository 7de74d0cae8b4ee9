package cliconfig

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/bft-labs/filaswitch/pkg/log"
)

// NewLogger returns the console logger used by the CLI at the given level.
func NewLogger(level string) (*log.ZerologAdapter, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("%w: log level %q", err, level)
	}
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger()
	return log.NewZerologAdapterWithLogger(zl), nil
}
