package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// InitLoggerProvider installs a global OTLP logger provider and returns a
// slog.Logger bridged to it, so records carry the active span context.
func InitLoggerProvider(ctx context.Context, s Settings) (*sdklog.LoggerProvider, *slog.Logger, error) {
	conn, err := dialCollector(s)
	if err != nil {
		return nil, nil, err
	}

	exporter, err := otlploggrpc.New(ctx, otlploggrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create log exporter: %w", err)
	}

	res, err := newResource(s)
	if err != nil {
		return nil, nil, err
	}

	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(lp)

	return lp, otelslog.NewLogger(s.ServiceName), nil
}

// LocalLogger writes JSON records to stdout and, when a file is configured,
// to a size-rotated log file.
type LocalLogger struct {
	*slog.Logger
	file *lumberjack.Logger
}

// NewLocalLogger returns the process logger used before, or instead of, the
// OTLP bridge. An empty logFile logs to stdout only.
func NewLocalLogger(logFile string, level slog.Level) *LocalLogger {
	return newLocalLogger(os.Stdout, logFile, level)
}

func newLocalLogger(stdout io.Writer, logFile string, level slog.Level) *LocalLogger {
	l := &LocalLogger{}
	w := stdout
	if logFile != "" {
		l.file = &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		w = io.MultiWriter(stdout, l.file)
	}
	l.Logger = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	return l
}

// Close flushes and closes the log file, if any.
func (l *LocalLogger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
