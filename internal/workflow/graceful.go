package workflow

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/imtaco/liveroom/internal/log"
)

// ShutdownStep is one named part of the shutdown sequence.
type ShutdownStep struct {
	Name string
	Run  func(ctx context.Context) error
}

// WaitGracefulShutdown blocks until ctx ends or SIGINT/SIGTERM arrives, then
// runs steps in order under one timeout. A failed step is logged and the
// sequence continues.
func WaitGracefulShutdown(
	ctx context.Context,
	logger *log.Logger,
	timeout time.Duration,
	steps ...ShutdownStep,
) {
	logger.Info("Graceful shutdown handler registered")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	if !Shutdown(context.Background(), logger, timeout, steps...) {
		logger.Warn("Shutdown timeout exceeded, forcing exit")
		return
	}
	logger.Info("Graceful shutdown completed")
}

// Shutdown runs steps in order and reports whether they finished in time.
func Shutdown(ctx context.Context, logger *log.Logger, timeout time.Duration, steps ...ShutdownStep) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic during graceful shutdown", log.Any("error", r))
			}
		}()
		logger.Info("Starting graceful shutdown")
		for _, step := range steps {
			if err := step.Run(ctx); err != nil {
				logger.Error("Shutdown step failed", log.String("step", step.Name), log.Error(err))
			}
		}
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
