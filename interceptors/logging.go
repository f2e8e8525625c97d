// Package interceptors provides ready-made weft.Interceptor implementations
// for structured logging and tracing.
package interceptors

import (
	"log/slog"
	"time"

	"github.com/weftrun/weft"
)

// Logging returns an Interceptor that logs the start and end of every
// intercepted segment at debug level, and any panic that escapes it at
// error level, using logger.
func Logging(logger *slog.Logger) weft.Interceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return &loggingInterceptor{logger: logger}
}

type loggingInterceptor struct {
	logger *slog.Logger
}

func (l *loggingInterceptor) Intercept(execType weft.ExecType, continuation func()) {
	logger := l.logger
	if e, ok := weft.CurrentOpt(); ok {
		logger = logger.With("weft.execution_id", e.ID())
	}

	start := time.Now()
	logger.Debug("segment starting", "execType", execType.String())
	defer func() {
		if r := recover(); r != nil {
			logger.Error("segment panicked", "execType", execType.String(), "elapsed", time.Since(start), "panic", r)
			panic(r)
		}
		logger.Debug("segment finished", "execType", execType.String(), "elapsed", time.Since(start))
	}()
	continuation()
}
