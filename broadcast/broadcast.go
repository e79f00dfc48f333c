package broadcast

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/wfunc/arenaledger/models"
	"github.com/wfunc/arenaledger/network"
	"github.com/wfunc/arenaledger/platform"
	"github.com/wfunc/arenaledger/session"
)

// 广播接口
type Broadcaster interface {
	BroadcastToAll(msgID uint16, data []byte) int
	BroadcastToPlayer(player models.Address, msgID uint16, data []byte) int
}

// Counter receives delivery outcomes. monitor.Monitor satisfies it.
type Counter interface {
	IncEventsPublished()
	IncEventsDropped()
}

type nopCounter struct{}

func (nopCounter) IncEventsPublished() {}
func (nopCounter) IncEventsDropped()   {}

// EventBroadcaster fans committed platform events out to feed sessions.
// Delivery never blocks: a subscriber whose queue is full misses the event.
type EventBroadcaster struct {
	sessionManager *session.Manager
	counter        Counter
	log            *zap.SugaredLogger
}

func NewEventBroadcaster(sessionManager *session.Manager, counter Counter, log *zap.SugaredLogger) *EventBroadcaster {
	if counter == nil {
		counter = nopCounter{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &EventBroadcaster{
		sessionManager: sessionManager,
		counter:        counter,
		log:            log,
	}
}

// Publish implements platform.Observer.
func (b *EventBroadcaster) Publish(ev models.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		b.log.Errorw("encode event", "kind", ev.Kind, "error", err)
		return
	}
	b.counter.IncEventsPublished()

	for _, s := range b.sessionManager.All() {
		if !s.Wants(ev) {
			continue
		}
		if !s.Enqueue(network.MsgTypeEvent, data) {
			b.counter.IncEventsDropped()
			b.log.Debugw("event dropped", "session", s.ID, "kind", ev.Kind)
		}
	}
}

func (b *EventBroadcaster) BroadcastToAll(msgID uint16, data []byte) int {
	delivered := 0
	for _, s := range b.sessionManager.All() {
		if s.Enqueue(msgID, data) {
			delivered++
		}
	}
	return delivered
}

func (b *EventBroadcaster) BroadcastToPlayer(player models.Address, msgID uint16, data []byte) int {
	delivered := 0
	for _, s := range b.sessionManager.GetByPlayer(player) {
		if s.Enqueue(msgID, data) {
			delivered++
		}
	}
	return delivered
}

var _ platform.Observer = (*EventBroadcaster)(nil)
