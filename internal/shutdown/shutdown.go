package shutdown

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

func CreateGracefulShutdownChannel() chan os.Signal {
	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGTERM, syscall.SIGINT)

	return gracefulShutdown
}

// ListenForShutdown blocks until SIGTERM/SIGINT, runs signalHandler, then waits up to timeToWait
// for in-flight work to report done before returning.
func ListenForShutdown(
	signalChan chan os.Signal,
	drained <-chan struct{},
	signalHandler func(),
	timeToWait time.Duration,
	l *zap.Logger,
) {
	sig := <-signalChan
	l.Sugar().Infow("Caught signal, shutting down", zap.String("signal", sig.String()))

	signalHandler()

	select {
	case <-drained:
		l.Sugar().Infow("In-flight work drained")
	case <-time.After(timeToWait):
		l.Sugar().Warnw("Timed out waiting for in-flight work", zap.Duration("waited", timeToWait))
	}
	l.Sugar().Infow("Exiting")
}
