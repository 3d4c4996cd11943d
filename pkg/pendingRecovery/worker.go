package pendingRecovery

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type ISweeper interface {
	Sweep(ctx context.Context) (*SweepResult, error)
}

// Worker runs a recovery sweep at start and then on a cron schedule.
type Worker struct {
	sweeper  ISweeper
	schedule string
	cron     *cron.Cron
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
}

func NewWorker(sweeper ISweeper, schedule string, l *zap.Logger) *Worker {
	return &Worker{
		sweeper:  sweeper,
		schedule: schedule,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:   l,
	}
}

func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	if _, err := w.sweeper.Sweep(ctx); err != nil {
		w.logger.Sugar().Errorw("Startup recovery sweep failed", zap.Error(err))
	}

	_, err := w.cron.AddFunc(w.schedule, func() {
		if _, err := w.sweeper.Sweep(ctx); err != nil {
			w.logger.Sugar().Errorw("Scheduled recovery sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	w.cron.Start()
	w.running = true
	w.logger.Sugar().Infow("Recovery worker started", zap.String("schedule", w.schedule))
	return nil
}

func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	<-w.cron.Stop().Done()
	w.running = false
	w.logger.Sugar().Infow("Recovery worker stopped")
}
