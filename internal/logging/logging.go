// Package logging builds the journal's zerolog logger and carries it through
// request contexts.
package logging

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig is the [log] section of config.toml.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

// DefaultLogConfig logs info to the console and to a rotated file next to the config.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       true,
		FilePath:   filepath.Join(home, ".config", "trade-journal", "logs", "journal.log"),
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	}
}

// NewLogger creates a logger with DefaultLogConfig.
func NewLogger() zerolog.Logger {
	return NewLoggerWithConfig(DefaultLogConfig())
}

// NewLoggerWithConfig creates a logger writing to the sinks enabled in cfg.
// Console output goes to stderr so --json command output stays parseable.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	var sinks []io.Writer
	if cfg.Console {
		sinks = append(sinks, consoleSink(os.Stderr))
	}
	if cfg.File && cfg.FilePath != "" {
		if sink, ok := fileSink(cfg); ok {
			sinks = append(sinks, sink)
		}
	}

	var out io.Writer = os.Stderr
	if len(sinks) == 1 {
		out = sinks[0]
	} else if len(sinks) > 1 {
		out = zerolog.MultiLevelWriter(sinks...)
	}

	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))
	return zerolog.New(out).With().Timestamp().Caller().Logger()
}

var levelLabels = map[string]string{
	"trace": color.New(color.FgHiBlack).Sprint("TRC"),
	"debug": color.New(color.FgCyan).Sprint("DBG"),
	"info":  color.New(color.FgGreen).Sprint("INF"),
	"warn":  color.New(color.FgYellow).Sprint("WRN"),
	"error": color.New(color.FgRed).Sprint("ERR"),
	"fatal": color.New(color.FgRed, color.Bold).Sprint("FTL"),
}

func consoleSink(w io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		FormatLevel: func(i interface{}) string {
			name, ok := i.(string)
			if !ok {
				return "???"
			}
			if label, ok := levelLabels[name]; ok {
				return label
			}
			return strings.ToUpper(name)
		},
	}
}

func fileSink(cfg LogConfig) (io.Writer, bool) {
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
		return nil, false
	}
	return &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   true,
	}, true
}

// ParseLevel maps a config level name to a zerolog level. Empty or unknown
// names fall back to info; "warning" is accepted as an alias of "warn".
func ParseLevel(level string) zerolog.Level {
	name := strings.ToLower(strings.TrimSpace(level))
	if name == "warning" {
		name = "warn"
	}
	if name == "" {
		return zerolog.InfoLevel
	}
	parsed, err := zerolog.ParseLevel(name)
	if err != nil {
		return zerolog.InfoLevel
	}
	return parsed
}

// SetDebugLevel lowers the global level for --debug.
func SetDebugLevel() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

// ContextKey is the type for context keys.
type ContextKey string

const (
	// LoggerKey is the context key for the logger.
	LoggerKey ContextKey = "logger"
	// RequestIDKey is the context key for request ID.
	RequestIDKey ContextKey = "request_id"
)

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger from context, or a no-op logger.
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(zerolog.Logger); ok {
		return logger
	}
	return zerolog.Nop()
}

// WithRequestID stores the request id on the context and tags the context logger with it.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	ctx = context.WithValue(ctx, RequestIDKey, requestID)
	logger := FromContext(ctx).With().Str("request_id", requestID).Logger()
	return WithLogger(ctx, logger)
}

// RequestID returns the request id stored on the context, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// WithTrade returns a child logger tagged with trade_id. The pointer lets
// callers chain level methods directly.
func WithTrade(logger zerolog.Logger, tradeID int64) *zerolog.Logger {
	l := logger.With().Int64("trade_id", tradeID).Logger()
	return &l
}

// WithSnapshot returns a child logger tagged with snapshot_id.
func WithSnapshot(logger zerolog.Logger, snapshotID int64) *zerolog.Logger {
	l := logger.With().Int64("snapshot_id", snapshotID).Logger()
	return &l
}

// LogEnrichment records one live enrichment pass. Provider failures are
// logged at warn since the caller only sees null live fields.
func LogEnrichment(logger zerolog.Logger, kind string, id int64, tickers, quoted int, quoteErr, masterErr string) {
	event := logger.Debug()
	if quoteErr != "" || masterErr != "" {
		event = logger.Warn()
	}
	event.
		Str("event", "enrichment").
		Str("kind", kind).
		Int64("id", id).
		Int("tickers", tickers).
		Int("quoted", quoted).
		Str("quote_error", quoteErr).
		Str("master_error", masterErr).
		Msg("Live enrichment")
}

// LogProviderCall records a market-data provider round trip.
func LogProviderCall(logger zerolog.Logger, provider string, symbols int, duration time.Duration, err error) {
	event := logger.Debug().
		Str("event", "provider_call").
		Str("provider", provider).
		Int("symbols", symbols).
		Dur("duration", duration)

	if err != nil {
		event.Err(err).Msg("Provider call failed")
		return
	}
	event.Msg("Provider call completed")
}
