package booknotify

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LoggerConfig configures NewLogger.
type LoggerConfig struct {
	// Level is a zerolog level name (debug, info, warn, error). Defaults to info.
	Level string

	// Format is "json" (default) or "console".
	Format string

	// Service is added to every line as the "service" field when set.
	Service string

	// Output defaults to os.Stdout.
	Output io.Writer
}

// NewLogger builds the structured logger used across the pipeline.
// Library components default to zerolog.Nop() and only log when given one.
//
// Example:
//
//	logger := booknotify.NewLogger(booknotify.LoggerConfig{
//	    Level:   "debug",
//	    Format:  "console",
//	    Service: "notification-service",
//	})
func NewLogger(cfg LoggerConfig) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	return ctx.Logger()
}
