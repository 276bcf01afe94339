package app

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// jobGuard gives one periodic job single-flight semantics: an invocation that
// overlaps a still-running one is skipped, not queued. Advisory and
// single-process only.
type jobGuard struct {
	running atomic.Bool
}

func (g *jobGuard) tryAcquire() bool {
	return g.running.CompareAndSwap(false, true)
}

func (g *jobGuard) release() {
	g.running.Store(false)
}

// runPeriodic drives fn on a fixed interval until ctx is cancelled. Each job
// catches panics and logs errors at its own boundary; no cycle failure may
// take down the process. When immediate is set the first pass runs before the
// first tick.
func runPeriodic(ctx context.Context, logger *zap.Logger, name string, interval time.Duration, immediate bool, fn func(context.Context) error) {
	guard := &jobGuard{}

	runOnce := func() {
		if !guard.tryAcquire() {
			logger.Warn("job still running, skipping cycle", zap.String("job", name))
			return
		}
		defer guard.release()
		defer func() {
			if r := recover(); r != nil {
				logger.Error("job panicked", zap.String("job", name), zap.Any("panic", r))
			}
		}()

		start := time.Now()
		if err := fn(ctx); err != nil {
			logger.Error("job cycle failed",
				zap.String("job", name),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err))
		}
	}

	if immediate {
		runOnce()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("job stopped", zap.String("job", name))
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
