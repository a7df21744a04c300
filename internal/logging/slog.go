package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// stdout indirection so tests can capture console output.
var (
	osStdout io.Writer = os.Stdout
	osPipe             = os.Pipe
)

// SlogManager manages slog-based logging with optional GELF and OTel
// integration. Console output is used until a session log file exists; the
// dynamic callbacks let every record carry the active run context without
// threading loggers through the whole tree.
type SlogManager struct {
	logger *slog.Logger

	// OTel provider for flushing
	logProvider *sdklog.LoggerProvider

	// optional GELF writer for Graylog forwarding
	gelfWriter io.Writer

	// Dynamic state callbacks, set once at startup. Nil callbacks add
	// nothing to the record.
	GetRunID       func() uint
	GetTrackKind   func() string
	IsUsingLocalDB func() bool
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetGelfWriter forwards all records to a GELF endpoint on the next Setup.
func (m *SlogManager) SetGelfWriter(w io.Writer) {
	m.gelfWriter = w
}

// Setup initializes the logging system. When file is nil, records go to the
// console; once a session log file is available, Setup is called again and
// the console falls silent. provider enables the OTel log bridge when
// non-nil.
func (m *SlogManager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider) {
	lvl := parseLevel(level)
	m.logProvider = provider

	handlerOpts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}

	var handlers []slog.Handler

	if file != nil {
		handlers = append(handlers, slog.NewTextHandler(file, handlerOpts))
	} else {
		handlers = append(handlers, slog.NewTextHandler(osStdout, handlerOpts))
	}

	if m.gelfWriter != nil {
		handlers = append(handlers, slog.NewTextHandler(m.gelfWriter, handlerOpts))
	}

	if provider != nil {
		otelHandler := otelslog.NewHandler("phantomjam-engine", otelslog.WithLoggerProvider(provider))
		handlers = append(handlers, otelHandler)
	}

	multi := NewMultiHandler(handlers...)
	m.logger = slog.New(NewContextHandler(multi, m.contextAttrs))
	m.logger.Info("Logging initialized", "level", level)
}

// contextAttrs collects the dynamic run attributes for one record.
func (m *SlogManager) contextAttrs() []slog.Attr {
	var attrs []slog.Attr
	if m.GetRunID != nil {
		if id := m.GetRunID(); id != 0 {
			attrs = append(attrs, slog.Uint64("runId", uint64(id)))
		}
	}
	if m.GetTrackKind != nil {
		if kind := m.GetTrackKind(); kind != "" {
			attrs = append(attrs, slog.String("track", kind))
		}
	}
	if m.IsUsingLocalDB != nil && m.IsUsingLocalDB() {
		attrs = append(attrs, slog.Bool("localDb", true))
	}
	return attrs
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		// Return a default logger if Setup hasn't been called
		return slog.Default()
	}
	return m.logger
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider != nil {
		return m.logProvider.ForceFlush(ctx)
	}
	return nil
}

// WriteLog writes a log entry with the specified function name, data, and
// level. This provides backward compatibility with the old Manager interface.
func (m *SlogManager) WriteLog(functionName, data, level string) {
	if m.logger == nil {
		return
	}

	switch parseLevel(level) {
	case slog.LevelDebug:
		m.logger.Debug(data, "function", functionName)
	case slog.LevelWarn:
		m.logger.Warn(data, "function", functionName)
	case slog.LevelError:
		m.logger.Error(data, "function", functionName)
	default:
		m.logger.Info(data, "function", functionName)
	}
}
