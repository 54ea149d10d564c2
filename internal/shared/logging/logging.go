package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New builds the process logger. Development gets a human-readable console
// writer; everything else logs JSON lines. Logs go to stderr so stdout stays
// free for report output.
func New(level string, dev bool) zerolog.Logger {
	return newWithWriter(os.Stderr, level, dev)
}

func newWithWriter(out io.Writer, level string, dev bool) zerolog.Logger {
	if dev {
		out = zerolog.ConsoleWriter{Out: out}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Str("service", "aimsreport").Logger()
}
