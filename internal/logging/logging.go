// Package logging builds the service loggers.
package logging

import (
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
)

// Options controls logger construction
type Options struct {
	Name   string
	Level  string
	JSON   bool
	Output io.Writer
}

// New creates the root logger. Unknown levels fall back to info.
func New(opts Options) hclog.Logger {
	level := hclog.LevelFromString(opts.Level)
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       opts.Name,
		Level:      level,
		Output:     out,
		JSONFormat: opts.JSON,
	})
}

// AccessWriter adapts a logger to the io.Writer expected by access log
// middleware; every line is logged at info.
func AccessWriter(logger hclog.Logger) io.Writer {
	return logger.StandardWriter(&hclog.StandardLoggerOptions{
		ForceLevel: hclog.Info,
	})
}
