package cmd

import (
	"context"
	"time"

	"github.com/inclawbate/staking-engine/internal/metrics/prometheus"
	"github.com/inclawbate/staking-engine/internal/shutdown"
	"github.com/inclawbate/staking-engine/pkg/pendingRecovery"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the engine: recovery sweeps and scheduled distribution runs",
	Run: func(cmd *cobra.Command, args []string) {
		bindCommandFlags(cmd)
		e, _ := mustEngine(true)
		defer e.close()
		l := e.logger

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go e.actions.Process()

		var promServer *prometheus.PrometheusServer
		if e.cfg.PrometheusConfig.Enabled {
			promServer = prometheus.NewPrometheusServer(&prometheus.PrometheusServerConfig{
				Port: e.cfg.PrometheusConfig.Port,
			}, l)
			promServer.Start()
		}

		// sweeps go through the action queue so they never overlap a distribution or unstake settlement
		worker := pendingRecovery.NewWorker(e.actions, e.cfg.RecoveryConfig.SweepSchedule, l)
		if err := worker.Start(ctx); err != nil {
			l.Sugar().Fatalw("Failed to start recovery worker", zap.Error(err))
		}

		scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
		if e.cfg.DistributionConfig.Schedule != "" {
			_, err := scheduler.AddFunc(e.cfg.DistributionConfig.Schedule, func() {
				result, err := e.actions.Distribute(ctx)
				if err != nil {
					l.Sugar().Errorw("Scheduled distribution failed", zap.Error(err))
					return
				}
				l.Sugar().Infow("Scheduled distribution finished",
					zap.String("txHash", result.TxHash),
					zap.String("status", string(result.Status)),
				)
				if _, err := e.actions.Settle(ctx); err != nil {
					l.Sugar().Errorw("Scheduled unstake settlement failed", zap.Error(err))
				}
			})
			if err != nil {
				l.Sugar().Fatalw("Invalid distribution schedule", zap.String("schedule", e.cfg.DistributionConfig.Schedule), zap.Error(err))
			}
			scheduler.Start()
			l.Sugar().Infow("Distribution scheduled", zap.String("schedule", e.cfg.DistributionConfig.Schedule))
		}

		l.Sugar().Infow("Started staking engine", zap.String("operator", e.chain.OperatorAddress()))

		gracefulShutdown := shutdown.CreateGracefulShutdownChannel()

		drained := make(chan struct{})
		shutdown.ListenForShutdown(gracefulShutdown, drained, func() {
			l.Sugar().Info("Shutting down...")
			go func() {
				<-scheduler.Stop().Done()
				worker.Stop()
				cancel()
				if promServer != nil {
					shutdownCtx, done := context.WithTimeout(context.Background(), time.Second*2)
					defer done()
					promServer.Shutdown(shutdownCtx)
				}
				close(drained)
			}()
		}, time.Second*10, l)
	},
}
