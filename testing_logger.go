package guestws

import (
	"io"

	"github.com/rs/zerolog"
)

// newTestLogger creates a logger that writes human readable lines to writer.
func newTestLogger(writer io.Writer) Logger {
	return NewZerologLogger(zerolog.New(zerolog.ConsoleWriter{
		Out:        writer,
		NoColor:    true,
		TimeFormat: "15:04:05.000",
	}).With().Timestamp().Logger().Level(zerolog.DebugLevel))
}
