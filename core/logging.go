package core

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type loggerKey struct{}

type requestIDKey struct{}

var base atomic.Pointer[zap.Logger]

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	base.Store(l)
}

// InitLogger replaces the process logger. Level is one of debug, info, warn
// or error.
func InitLogger(level string, development bool) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	l, err := cfg.Build()
	if err != nil {
		return err
	}
	base.Store(l)
	return nil
}

// SetLogger installs an already built logger, used by tests.
func SetLogger(l *zap.Logger) {
	base.Store(l)
}

// BaseLogger returns the process logger.
func BaseLogger() *zap.Logger {
	return base.Load()
}

// WithDefaultLogger attaches a request scoped logger to ctx.
func WithDefaultLogger(parent context.Context, reqId string) context.Context {
	l := base.Load().Sugar().With("req_id", reqId)
	ctx := context.WithValue(parent, requestIDKey{}, reqId)
	return context.WithValue(ctx, loggerKey{}, l)
}

// Logger returns the logger attached to ctx or the process logger.
func Logger(ctx context.Context) *zap.SugaredLogger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*zap.SugaredLogger); ok {
			return l
		}
	}
	return base.Load().Sugar()
}

func Infof(ctx context.Context, tpl string, args ...any) {
	Logger(ctx).Infof(tpl, args...)
}

func Warnf(ctx context.Context, tpl string, args ...any) {
	Logger(ctx).Warnf(tpl, args...)
}

func Errorf(ctx context.Context, tpl string, args ...any) {
	Logger(ctx).Errorf(tpl, args...)
}

func Debugf(ctx context.Context, tpl string, args ...any) {
	Logger(ctx).Debugf(tpl, args...)
}

// GetRequestID returns the id given to WithDefaultLogger.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
