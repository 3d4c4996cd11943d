package actionQueue

import (
	"context"
	"fmt"
)

func (aq *ActionQueue) Process() {
	for {
		select {
		case <-aq.done:
			aq.logger.Sugar().Infow("Action queue stopped")
			return
		case msg := <-aq.queue:
			aq.logger.Sugar().Infow("Processing action", "action", msg.Data.ActionType)
			response := aq.processMessage(msg)

			if msg.ResponseChan != nil {
				select {
				case msg.ResponseChan <- response:
					aq.logger.Sugar().Debugw("Sent action response", "action", msg.Data.ActionType)
				default:
					aq.logger.Sugar().Infow("No receiver for response, dropping", "action", msg.Data.ActionType)
				}
			} else if response.Error != nil {
				aq.logger.Sugar().Errorw("Action failed", "action", msg.Data.ActionType, "error", response.Error)
			}
		}
	}
}

func (aq *ActionQueue) processMessage(msg *ActionMessage) *ActionResponse {
	ctx := msg.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return &ActionResponse{Error: err}
	}

	response := &ActionResponse{Data: &ActionResponseData{}}
	switch msg.Data.ActionType {
	case ActionType_Distribute:
		response.Data.Distribution, response.Error = aq.distributor.Run(ctx)
	case ActionType_SettleUnstakes:
		response.Data.Unstakes, response.Error = aq.unstakes.Settle(ctx)
	case ActionType_Sweep:
		response.Data.Sweep, response.Error = aq.sweeper.Sweep(ctx)
	default:
		response.Error = fmt.Errorf("unknown action type %s", msg.Data.ActionType)
	}
	return response
}
