// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer

	// Service is added as a "service" field to every entry when set.
	Service string
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:   LevelInfo,
		Pretty:  false,
		Output:  os.Stderr,
		Service: "proxy-cache",
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.DurationFieldUnit = time.Millisecond

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	logger := ctx.Logger()

	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// AccessLog returns middleware that attaches logger to each request context
// and writes one access entry per request. The entry carries the
// X-Proxy-Cache outcome when the handler set one.
func AccessLog(logger zerolog.Logger) func(http.Handler) http.Handler {
	access := hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("uri", r.URL.RequestURI()).
			Int("status_code", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	})

	return func(next http.Handler) http.Handler {
		return hlog.NewHandler(logger)(
			hlog.RemoteAddrHandler("remote_addr")(
				access(next),
			),
		)
	}
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache lookups (hit, miss and the miss reason)
//   - Store decisions (identifier, ttl, tags, rejection reason)
//   - Conditional placeholders (304, 412)
//
// Info: Normal operation events
//   - Access log entries
//   - Tag invalidations
//   - Server startup/shutdown
//   - Loaded cache-control rules
//
// Warn: Warning conditions that don't prevent operation
//   - Backend errors during fetch (request forwarded to origin)
//   - Backend errors during store (response still served)
//   - Expired entry purge failures
//
// Error: Error conditions requiring attention
//   - Backend unreachable at startup
//   - Invalid rules file
//   - Origin unavailable
//
// Context Fields:
//   - component: Subsystem name (proxy-cache, proxy, cache-control, server)
//   - identifier: Cache entry identifier
//   - uri: Canonical request URI
//   - reason: Miss or rejection reason
//   - ttl: Cache entry TTL
//   - tags: Tags attached to a stored entry
//   - rule: Name of the matched cache-control rule
//   - status_code: HTTP status code
//   - duration: Request duration
