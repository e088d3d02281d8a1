// Package logging builds the process logger: a console zap logger whose
// entries are also formatted as "[LEVEL] message" lines and forwarded to a
// registered web sink, so the browser UI sees the same system log the
// operator sees on the terminal.
package logging

import (
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// WebSink receives every log line that passes the level filter, already
// formatted as "[LEVEL] message". Implementations must not block.
type WebSink func(line string)

var webSink atomic.Pointer[WebSink]

// SetWebSink registers the sink that forwards system log lines to the
// browser UI. Passing nil detaches the sink.
func SetWebSink(sink WebSink) {
	if sink == nil {
		webSink.Store(nil)
		return
	}
	webSink.Store(&sink)
}

// ParseLevel maps the config log_level strings onto zap levels. Unknown
// strings fall back to INFO.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return zapcore.DebugLevel
	case "INFO", "":
		return zapcore.InfoLevel
	case "WARN", "WARNING":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	case "FATAL", "CRITICAL":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// levelTag renders the bracketed level names the UI shows. WARNING and
// CRITICAL collapse to the short forms.
func levelTag(l zapcore.Level) string {
	switch l {
	case zapcore.DebugLevel:
		return "DEBUG"
	case zapcore.InfoLevel:
		return "INFO"
	case zapcore.WarnLevel:
		return "WARN"
	case zapcore.ErrorLevel:
		return "ERROR"
	case zapcore.FatalLevel, zapcore.PanicLevel, zapcore.DPanicLevel:
		return "FATAL"
	default:
		return strings.ToUpper(l.String())
	}
}

// FormatLine renders a log line the way both the console and the web panel
// display it.
func FormatLine(level zapcore.Level, msg string) string {
	return fmt.Sprintf("[%s] %s", levelTag(level), msg)
}

// webCore tees formatted lines into the registered web sink.
type webCore struct {
	level zapcore.LevelEnabler
}

func (c *webCore) Enabled(l zapcore.Level) bool { return c.level.Enabled(l) }

func (c *webCore) With(fields []zapcore.Field) zapcore.Core { return c }

func (c *webCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *webCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	sink := webSink.Load()
	if sink == nil {
		return nil
	}
	msg := ent.Message
	if len(fields) > 0 {
		enc := zapcore.NewMapObjectEncoder()
		for _, f := range fields {
			f.AddTo(enc)
		}
		parts := make([]string, 0, len(fields))
		for _, f := range fields {
			parts = append(parts, fmt.Sprintf("%s=%v", f.Key, enc.Fields[f.Key]))
		}
		msg = msg + " " + strings.Join(parts, " ")
	}
	(*sink)(FormatLine(ent.Level, msg))
	return nil
}

func (c *webCore) Sync() error { return nil }

// New builds the process logger at the given minimum level. Console output
// goes to stderr; the web core mirrors every entry to the registered sink.
func New(level zapcore.Level) (*zap.Logger, error) {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    encCfg,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := consoleCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	web := &webCore{level: level}
	logger = logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, web)
	}))
	return logger, nil
}
