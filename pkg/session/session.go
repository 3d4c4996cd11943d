package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/inclawbate/staking-engine/internal/utils"
	"go.uber.org/zap"
)

var (
	ErrActionInFlight = errors.New("another action is in flight")
	ErrSessionClosed  = errors.New("session is closed")
)

type Action string

const (
	Action_Stake          Action = "stake"
	Action_Unstake        Action = "unstake"
	Action_Distribute     Action = "distribute"
	Action_SettleUnstakes Action = "settle_unstakes"
	Action_Sweep          Action = "sweep"
)

// Session is the state of one connected wallet. It is created on connect, closed on disconnect,
// and admits a single mutating action at a time.
type Session struct {
	Id          string
	Wallet      string
	ConnectedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	mu       sync.Mutex
	inFlight Action
	closed   bool
}

func NewSession(parent context.Context, wallet string, l *zap.Logger) (*Session, error) {
	w, err := utils.NormalizeAddress(wallet)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		Id:          uuid.NewString(),
		Wallet:      w,
		ConnectedAt: time.Now(),
		ctx:         ctx,
		cancel:      cancel,
		logger:      l.With(zap.String("wallet", w)),
	}
	s.logger.Sugar().Infow("Session opened", zap.String("sessionId", s.Id))
	return s, nil
}

// Context is cancelled when the session closes. Waits started inside an action end with it;
// their pending entries remain for recovery.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Begin claims the session for action. The returned release must be called when the action ends.
func (s *Session) Begin(action Action) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.inFlight != "" {
		return nil, fmt.Errorf("%w: %s", ErrActionInFlight, s.inFlight)
	}
	s.inFlight = action
	s.logger.Sugar().Debugw("Action started", zap.String("action", string(action)))

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.inFlight = ""
			s.logger.Sugar().Debugw("Action finished", zap.String("action", string(action)))
		})
	}, nil
}

// InFlight reports the running action, if any.
func (s *Session) InFlight() (Action, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight, s.inFlight != ""
}

// Run executes fn as action under the session guard.
func (s *Session) Run(action Action, fn func(ctx context.Context) error) error {
	release, err := s.Begin(action)
	if err != nil {
		return err
	}
	defer release()
	return fn(s.ctx)
}

func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
	s.logger.Sugar().Infow("Session closed", zap.String("sessionId", s.Id))
}
