package store

import (
	"sync"

	"github.com/cbodonnell/trustecho/pkg/log"
)

type EventType string

const (
	EventTypeInsert EventType = "INSERT"
	EventTypeUpdate EventType = "UPDATE"
)

type Table string

const (
	TableGames   Table = "games"
	TablePlayers Table = "players"
	TableRounds  Table = "rounds"
	TableChoices Table = "choices"
)

const (
	// SubscriptionBufferSize is the per-subscription event buffer.
	SubscriptionBufferSize = 64
)

// ChangeEvent notifies subscribers that a row changed. The row is a
// snapshot of the new value; consumers must not rely on event ordering
// across tables.
type ChangeEvent struct {
	Type   EventType
	Table  Table
	GameID string
	Row    interface{}
}

// Subscription is one consumer's change feed for a single game. Close
// it when the owning session ends.
type Subscription struct {
	C <-chan ChangeEvent

	hub        *eventHub
	ch         chan ChangeEvent
	gameID     string
	eventTypes map[EventType]bool
	closeOnce  sync.Once
}

// Close detaches the subscription from the store and closes its
// channel. Safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.hub.remove(s)
		close(s.ch)
	})
}

func (s *Subscription) wants(e ChangeEvent) bool {
	if e.GameID != s.gameID {
		return false
	}
	if len(s.eventTypes) == 0 {
		return true
	}
	return s.eventTypes[e.Type]
}

// eventHub fans change events out to subscriptions. Shared by all
// store backends; SQL backends publish after commit.
type eventHub struct {
	lock sync.Mutex
	subs map[*Subscription]struct{}
}

func newEventHub() *eventHub {
	return &eventHub{
		subs: make(map[*Subscription]struct{}),
	}
}

func (h *eventHub) subscribe(gameID string, eventTypes ...EventType) *Subscription {
	types := make(map[EventType]bool, len(eventTypes))
	for _, t := range eventTypes {
		types[t] = true
	}
	ch := make(chan ChangeEvent, SubscriptionBufferSize)
	sub := &Subscription{
		C:          ch,
		hub:        h,
		ch:         ch,
		gameID:     gameID,
		eventTypes: types,
	}
	h.lock.Lock()
	defer h.lock.Unlock()
	h.subs[sub] = struct{}{}
	return sub
}

func (h *eventHub) remove(sub *Subscription) {
	h.lock.Lock()
	defer h.lock.Unlock()
	delete(h.subs, sub)
}

// publish delivers an event to every matching subscription. Sends
// never block: a subscriber with a full buffer misses the event and is
// expected to resync.
func (h *eventHub) publish(e ChangeEvent) {
	h.lock.Lock()
	defer h.lock.Unlock()
	for sub := range h.subs {
		if !sub.wants(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			log.Warn("Dropping %s event on %s for slow subscriber of game %s", e.Type, e.Table, e.GameID)
		}
	}
}
