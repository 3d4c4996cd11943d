package eventBusTypes

import (
	"context"
	"sync"
)

type Event struct {
	Name string
	Data any
}

const (
	Event_SettlementResolved = "settlement_resolved"
	Event_DistributionRun    = "distribution_run"
	Event_UnstakeRequested   = "unstake_requested"
	Event_DepositStaked      = "deposit_staked"
)

type ConsumerId string

type Consumer struct {
	Id      ConsumerId
	Context context.Context
	Channel chan *Event
}

type ConsumerList struct {
	mu        sync.Mutex
	consumers []*Consumer
}

func NewConsumerList() *ConsumerList {
	return &ConsumerList{
		consumers: make([]*Consumer, 0),
	}
}

func (cl *ConsumerList) Add(consumer *Consumer) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.consumers = append(cl.consumers, consumer)
}

func (cl *ConsumerList) Remove(consumer *Consumer) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	for i, c := range cl.consumers {
		if c.Id == consumer.Id {
			cl.consumers = append(cl.consumers[:i], cl.consumers[i+1:]...)
			break
		}
	}
}

// GetAll returns a snapshot of the current consumers.
func (cl *ConsumerList) GetAll() []*Consumer {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	out := make([]*Consumer, len(cl.consumers))
	copy(out, cl.consumers)
	return out
}

type IEventBus interface {
	Subscribe(consumer *Consumer)
	Unsubscribe(consumer *Consumer)
	Publish(event *Event)
}

// SettlementResolvedData is published once a submitted funding transaction reaches a final
// status from the engine's point of view.
type SettlementResolvedData struct {
	TxHash string
	Kind   string
	Token  string
	Status string
	Total  string
}

type DistributionRunData struct {
	RunNumber   uint64
	Pool        string
	Transferred string
	Retained    string
	Compounded  string
	Status      string
	TxHash      string
}

type UnstakeRequestedData struct {
	StakeId string
	Wallet  string
	Token   string
	Amount  string
}

type DepositStakedData struct {
	TxHash  string
	StakeId string
	Wallet  string
	Token   string
	Amount  string
	Result  string
}
