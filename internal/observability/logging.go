// Package observability provides OpenTelemetry tracing and structured logging
// with trace correlation for the adaptive learning application.
package observability

import (
	"context"

	"aprenda/internal/config"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap with trace correlation and map-style fields
type Logger struct {
	*zap.Logger
}

// NewLogger builds the application logger. A nil config or disabled logging
// yields a no-op logger.
func NewLogger(cfg *config.OpenTelemetryConfig) *Logger {
	if cfg == nil || !cfg.EnableLogging {
		return &Logger{Logger: zap.NewNop()}
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.TimeKey = "timestamp"
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zapLogger, err := zapConfig.Build()
	if err != nil {
		zapLogger = zap.NewExample()
	}

	// A broken collector must not take logging down with it
	if cfg.Endpoint != "" {
		core, exportErr := newOTLPCore(cfg)
		if exportErr != nil {
			zapLogger.Warn("OTLP log export unavailable, logging to stdout only",
				zap.Error(exportErr), zap.String("endpoint", cfg.Endpoint))
		} else {
			zapLogger = zap.New(zapcore.NewTee(zapLogger.Core(), core))
		}
	}

	return &Logger{Logger: zapLogger}
}

// newOTLPCore builds a zap core that ships log records to the OTLP collector
func newOTLPCore(cfg *config.OpenTelemetryConfig) (zapcore.Core, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlploggrpc.WithHeaders(cfg.Headers))
	}
	exporter, err := otlploggrpc.New(context.Background(), opts...)
	if err != nil {
		return nil, err
	}

	provider := log.NewLoggerProvider(
		log.WithProcessor(log.NewBatchProcessor(exporter)),
		log.WithResource(res),
	)
	return otelzap.NewCore(cfg.ServiceName, otelzap.WithLoggerProvider(provider)), nil
}

// Debug logs a debug message with context
func (l *Logger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.logWithContext(ctx, zapcore.DebugLevel, msg, fields...)
}

// Info logs an info message with context
func (l *Logger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.logWithContext(ctx, zapcore.InfoLevel, msg, fields...)
}

// Warn logs a warning message with context
func (l *Logger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.logWithContext(ctx, zapcore.WarnLevel, msg, fields...)
}

// Error logs an error message with context, folding err into the fields
func (l *Logger) Error(ctx context.Context, msg string, err error, fields ...map[string]interface{}) {
	allFields := mergeFields(fields...)
	if err != nil {
		allFields["error"] = err.Error()
	}
	l.logWithContext(ctx, zapcore.ErrorLevel, msg, allFields)
}

// logWithContext stamps the active span's trace and span ids onto the entry
// so log lines can be joined to traces
func (l *Logger) logWithContext(ctx context.Context, level zapcore.Level, msg string, fields ...map[string]interface{}) {
	allFields := mergeFields(fields...)

	if spanContext := trace.SpanFromContext(ctx).SpanContext(); spanContext.IsValid() {
		allFields["trace_id"] = spanContext.TraceID().String()
		allFields["span_id"] = spanContext.SpanID().String()
	}

	zapFields := make([]zap.Field, 0, len(allFields))
	for k, v := range allFields {
		zapFields = append(zapFields, zap.Any(k, v))
	}

	switch level {
	case zapcore.DebugLevel:
		l.Logger.Debug(msg, zapFields...)
	case zapcore.WarnLevel:
		l.Logger.Warn(msg, zapFields...)
	case zapcore.ErrorLevel:
		l.Logger.Error(msg, zapFields...)
	default:
		l.Logger.Info(msg, zapFields...)
	}
}

func mergeFields(fields ...map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{})
	for _, fieldMap := range fields {
		for k, v := range fieldMap {
			merged[k] = v
		}
	}
	return merged
}

// Sync flushes any buffered log entries
func (l *Logger) Sync() error {
	return l.Logger.Sync()
}
