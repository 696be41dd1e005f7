// Package logging builds the hclog loggers used across wshealth.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// Options configures New.
type Options struct {
	Name  string
	Level string // trace, debug, info, warn, error
	// Format is "text" or "json".
	Format string
	Output io.Writer
}

// New creates a logger. Unknown levels fall back to info and a nil output
// writes to stderr so reports on stdout stay clean.
func New(opts Options) hclog.Logger {
	if opts.Name == "" {
		opts.Name = "wshealth"
	}
	if opts.Output == nil {
		opts.Output = os.Stderr
	}

	level := hclog.LevelFromString(opts.Level)
	if level == hclog.NoLevel {
		level = hclog.Info
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       opts.Name,
		Level:      level,
		Output:     opts.Output,
		JSONFormat: strings.EqualFold(opts.Format, "json"),
	})
}
