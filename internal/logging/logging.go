// Package logging builds the zap logger used for diagnostics. Diagnostics go
// to stderr so stdout carries only summaries and reports.
package logging

import (
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a console logger writing to w at the given level. An empty
// level means info.
func New(level string, w io.Writer) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if strings.TrimSpace(level) != "" {
		parsed, err := zapcore.ParseLevel(strings.TrimSpace(level))
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		lvl = parsed
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.CallerKey = ""
	encCfg.StacktraceKey = ""

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(zapcore.AddSync(w)),
		lvl,
	)
	return zap.New(core).Named("kvcrank"), nil
}

// FailureLogger reports failed operations at warn level.
type FailureLogger struct {
	log *zap.Logger
}

// NewFailureLogger adapts log for per-operation failure reporting.
func NewFailureLogger(log *zap.Logger) *FailureLogger {
	if log == nil {
		log = zap.NewNop()
	}
	return &FailureLogger{log: log}
}

func (f *FailureLogger) LogFailure(op string, err error) {
	if err == nil {
		return
	}
	f.log.Warn("request failed", zap.String("operation", op), zap.Error(err))
}
