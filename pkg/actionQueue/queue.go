package actionQueue

import (
	"context"

	"github.com/inclawbate/staking-engine/pkg/distribution"
	"github.com/inclawbate/staking-engine/pkg/pendingRecovery"
	"github.com/inclawbate/staking-engine/pkg/unstakeQueue"
	"go.uber.org/zap"
)

// NewActionQueue creates a new ActionQueue. Call Process in its own goroutine.
func NewActionQueue(d IDistributor, u IUnstakeSettler, s pendingRecovery.ISweeper, logger *zap.Logger) *ActionQueue {
	return &ActionQueue{
		logger:      logger,
		distributor: d,
		unstakes:    u,
		sweeper:     s,
		// allow the queue to buffer up to 100 messages
		queue: make(chan *ActionMessage, 100),
		done:  make(chan struct{}),
	}
}

// Enqueue adds a new message to the queue and returns immediately
func (aq *ActionQueue) Enqueue(payload *ActionMessage) {
	aq.logger.Sugar().Infow("Enqueueing action", "action", payload.Data.ActionType)
	aq.queue <- payload
}

// EnqueueAndWait adds a new message to the queue and waits for a response or returns if the context is done
func (aq *ActionQueue) EnqueueAndWait(ctx context.Context, data ActionData) (*ActionResponseData, error) {
	// buffered so the processor never blocks on a caller that gave up
	responseChan := make(chan *ActionResponse, 1)

	payload := &ActionMessage{
		Ctx:          ctx,
		Data:         data,
		ResponseChan: responseChan,
	}
	aq.Enqueue(payload)

	aq.logger.Sugar().Debugw("Waiting for action response", "action", data.ActionType)

	select {
	case response := <-responseChan:
		return response.Data, response.Error
	case <-ctx.Done():
		aq.logger.Sugar().Infow("Received context.Done()", "action", data.ActionType)
		return nil, ctx.Err()
	}
}

func (aq *ActionQueue) Distribute(ctx context.Context) (*distribution.RunResult, error) {
	res, err := aq.EnqueueAndWait(ctx, ActionData{ActionType: ActionType_Distribute})
	if res == nil {
		return nil, err
	}
	return res.Distribution, err
}

func (aq *ActionQueue) Settle(ctx context.Context) ([]*unstakeQueue.GroupResult, error) {
	res, err := aq.EnqueueAndWait(ctx, ActionData{ActionType: ActionType_SettleUnstakes})
	if res == nil {
		return nil, err
	}
	return res.Unstakes, err
}

// Sweep makes the queue usable as the recovery worker's sweeper.
func (aq *ActionQueue) Sweep(ctx context.Context) (*pendingRecovery.SweepResult, error) {
	res, err := aq.EnqueueAndWait(ctx, ActionData{ActionType: ActionType_Sweep})
	if res == nil {
		return nil, err
	}
	return res.Sweep, err
}

func (aq *ActionQueue) Close() {
	aq.logger.Sugar().Infow("Closing action queue")
	close(aq.done)
}
