package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// AppLogOptions configure the process logger.
type AppLogOptions struct {
	// Level is one of: debug, info, warn, error, fatal, panic.
	Level string

	// File, if set, receives JSON lines and is rotated. Otherwise human readable lines go to stderr.
	File string

	Rotation LogFileSystemImpl
}

// NewAppLogger creates the logger that every component receives.
func NewAppLogger(opts AppLogOptions) (logger zerolog.Logger, err error) {
	return newAppLogger(opts, os.Stderr)
}

func newAppLogger(opts AppLogOptions, console io.Writer) (logger zerolog.Logger, err error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		level, err = zerolog.ParseLevel(opts.Level)
		if err != nil {
			err = fmt.Errorf("parsing log level %q: %w", opts.Level, err)
			return
		}
	}

	var out io.Writer = zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339}
	if opts.File != "" {
		out = opts.Rotation.rotator(opts.File)
	}

	logger = zerolog.New(out).Level(level).With().Timestamp().Caller().Logger()
	return
}
