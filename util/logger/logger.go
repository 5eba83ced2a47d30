// Package logger builds the zerolog loggers used across walletfactory.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options controls logger output.
type Options struct {
	// Level is a zerolog level name; empty means info.
	Level string
	// Console switches to human readable output.
	Console bool
	// Out defaults to stderr.
	Out io.Writer
}

// New returns a logger tagged with component.
func New(component string, opts Options) (zerolog.Logger, error) {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	level := zerolog.InfoLevel
	if opts.Level != "" {
		var err error
		level, err = zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return zerolog.Nop(), err
		}
	}
	if opts.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("component", component).Logger(), nil
}
