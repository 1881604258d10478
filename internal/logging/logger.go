// Package logging builds the process-wide zerolog.Logger: structured
// JSON by default, a pretty console writer for local development,
// level gated via zerolog.SetGlobalLevel.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a logger configured by levelName/formatName, which come
// straight from Config.LogLevel/Config.LogFormat.
func New(levelName, formatName string) zerolog.Logger {
	var output io.Writer = os.Stdout

	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if formatName == "pretty" {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	return zerolog.New(output).
		With().
		Timestamp().
		Str("service", "taskd").
		Logger()
}
