package actionQueue

import (
	"context"

	"github.com/inclawbate/staking-engine/pkg/distribution"
	"github.com/inclawbate/staking-engine/pkg/pendingRecovery"
	"github.com/inclawbate/staking-engine/pkg/unstakeQueue"
	"go.uber.org/zap"
)

type ActionType string

var (
	ActionType_Distribute     ActionType = "distribute"
	ActionType_SettleUnstakes ActionType = "settleUnstakes"
	ActionType_Sweep          ActionType = "sweep"
)

type IDistributor interface {
	Run(ctx context.Context) (*distribution.RunResult, error)
}

type IUnstakeSettler interface {
	Settle(ctx context.Context) ([]*unstakeQueue.GroupResult, error)
}

type ActionData struct {
	ActionType ActionType
}

type ActionMessage struct {
	Ctx          context.Context
	Data         ActionData
	ResponseChan chan *ActionResponse
}

type ActionResponseData struct {
	Distribution *distribution.RunResult
	Unstakes     []*unstakeQueue.GroupResult
	Sweep        *pendingRecovery.SweepResult
}

type ActionResponse struct {
	Data  *ActionResponseData
	Error error
}

// ActionQueue runs scheduled mutating actions one at a time.
type ActionQueue struct {
	logger      *zap.Logger
	distributor IDistributor
	unstakes    IUnstakeSettler
	sweeper     pendingRecovery.ISweeper
	queue       chan *ActionMessage
	done        chan struct{}
}
