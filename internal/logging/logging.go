package logging

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New constructs a zap logger configured for human-readable console output
// on stderr. Request traces of verbose calls are logged at Info; Debug
// additionally shows the traces of every call.
func New(debug bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Encoding = "console"
	config.Level = zap.NewAtomicLevelAt(level(debug))
	config.DisableCaller = true
	config.DisableStacktrace = true
	config.Sampling = nil
	config.EncoderConfig = encoderConfig()
	return config.Build()
}

// NewForWriter builds the same logger writing to w.
func NewForWriter(w io.Writer, debug bool) *zap.Logger {
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig()),
		zapcore.AddSync(w),
		level(debug),
	)
	return zap.New(core)
}

func level(debug bool) zapcore.Level {
	if debug {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}

func encoderConfig() zapcore.EncoderConfig {
	config := zap.NewProductionEncoderConfig()
	config.EncodeLevel = zapcore.CapitalLevelEncoder
	config.TimeKey = ""
	config.LevelKey = ""
	config.NameKey = ""
	config.CallerKey = ""
	config.MessageKey = "message"
	config.StacktraceKey = ""
	return config
}
