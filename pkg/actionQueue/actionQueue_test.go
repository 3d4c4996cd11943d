package actionQueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/inclawbate/staking-engine/pkg/distribution"
	"github.com/inclawbate/staking-engine/pkg/pendingRecovery"
	"github.com/inclawbate/staking-engine/pkg/settlement"
	"github.com/inclawbate/staking-engine/pkg/unstakeQueue"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// tracker fails the test if two actions overlap.
type tracker struct {
	active  int32
	overlap int32
	calls   int32
	delay   time.Duration
	err     error
}

func (tr *tracker) enter() {
	atomic.AddInt32(&tr.calls, 1)
	if atomic.AddInt32(&tr.active, 1) > 1 {
		atomic.StoreInt32(&tr.overlap, 1)
	}
	time.Sleep(tr.delay)
	atomic.AddInt32(&tr.active, -1)
}

func (tr *tracker) Run(ctx context.Context) (*distribution.RunResult, error) {
	tr.enter()
	return &distribution.RunResult{TxHash: "0xabc", Status: settlement.Status_Recorded}, tr.err
}

func (tr *tracker) Settle(ctx context.Context) ([]*unstakeQueue.GroupResult, error) {
	tr.enter()
	return []*unstakeQueue.GroupResult{}, tr.err
}

func (tr *tracker) Sweep(ctx context.Context) (*pendingRecovery.SweepResult, error) {
	tr.enter()
	return &pendingRecovery.SweepResult{Recorded: 1}, tr.err
}

func setup(t *testing.T, tr *tracker) *ActionQueue {
	q := NewActionQueue(tr, tr, tr, zap.NewNop())
	go q.Process()
	t.Cleanup(q.Close)
	return q
}

func Test_ActionQueue(t *testing.T) {
	t.Run("Should route each action to its handler", func(t *testing.T) {
		q := setup(t, &tracker{})

		run, err := q.Distribute(context.Background())
		assert.Nil(t, err)
		assert.Equal(t, "0xabc", run.TxHash)

		groups, err := q.Settle(context.Background())
		assert.Nil(t, err)
		assert.NotNil(t, groups)

		sweep, err := q.Sweep(context.Background())
		assert.Nil(t, err)
		assert.Equal(t, 1, sweep.Recorded)
	})
	t.Run("Should never run two actions at once", func(t *testing.T) {
		tr := &tracker{delay: 5 * time.Millisecond}
		q := setup(t, tr)

		var wg sync.WaitGroup
		for i := 0; i < 6; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				switch i % 3 {
				case 0:
					_, _ = q.Distribute(context.Background())
				case 1:
					_, _ = q.Settle(context.Background())
				default:
					_, _ = q.Sweep(context.Background())
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, int32(6), atomic.LoadInt32(&tr.calls))
		assert.Equal(t, int32(0), atomic.LoadInt32(&tr.overlap))
	})
	t.Run("Should return handler errors to the caller", func(t *testing.T) {
		boom := errors.New("boom")
		q := setup(t, &tracker{err: boom})

		_, err := q.Distribute(context.Background())
		assert.ErrorIs(t, err, boom)
	})
	t.Run("Should stop waiting when the caller's context ends", func(t *testing.T) {
		q := setup(t, &tracker{delay: 100 * time.Millisecond})
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err := q.Sweep(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
	t.Run("Should reject unknown actions", func(t *testing.T) {
		q := setup(t, &tracker{})
		_, err := q.EnqueueAndWait(context.Background(), ActionData{ActionType: "rebalance"})
		assert.NotNil(t, err)
	})
}
