package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cbodonnell/trustecho/pkg/game"
	"github.com/cbodonnell/trustecho/pkg/log"
	"github.com/cbodonnell/trustecho/pkg/messages"
	"github.com/cbodonnell/trustecho/pkg/queue"
	"github.com/cbodonnell/trustecho/pkg/session"
	"github.com/cbodonnell/trustecho/pkg/store"
	"nhooyr.io/websocket"
)

// clientSession ties one websocket connection to one session handle.
// All outbound messages pass through a queue drained by a single
// writer goroutine.
type clientSession struct {
	store store.Store
	pool  *game.SituationPool
	conn  *websocket.Conn

	coord *session.Coordinator

	lock   sync.Mutex
	handle *session.Handle

	outbound *queue.InMemoryQueue
	kick     chan struct{}
}

func newClientSession(s store.Store, pool *game.SituationPool, conn *websocket.Conn) *clientSession {
	return &clientSession{
		store:    s,
		pool:     pool,
		conn:     conn,
		coord:    session.NewCoordinator(s, pool),
		outbound: queue.NewInMemoryQueue(messages.MessageBufferSize),
		kick:     make(chan struct{}, 1),
	}
}

func (c *clientSession) close() {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.handle != nil {
		c.handle.Close()
		c.handle = nil
	}
}

func (c *clientSession) readLoop(ctx context.Context) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			log.Debug("Websocket read ended: %v", err)
			return
		}

		msg := &messages.Message{}
		if err := json.Unmarshal(data, msg); err != nil {
			c.sendError(messages.ErrorCodeBadRequest, fmt.Sprintf("failed to parse message: %v", err), false)
			continue
		}
		c.handleMessage(ctx, msg)
	}
}

func (c *clientSession) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.kick:
			for _, item := range c.outbound.ReadAllMessages() {
				data, ok := item.([]byte)
				if !ok {
					log.Error("Failed to cast outbound message")
					continue
				}
				if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
					log.Debug("Websocket write ended: %v", err)
					return
				}
			}
		}
	}
}

func (c *clientSession) send(msgType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error("Failed to marshal %s payload: %v", msgType, err)
		return
	}
	msg, err := json.Marshal(&messages.Message{Type: msgType, Payload: data})
	if err != nil {
		log.Error("Failed to marshal message: %v", err)
		return
	}
	if err := c.outbound.Enqueue(msg); err != nil {
		log.Warn("Dropping %s message for slow connection: %v", msgType, err)
		return
	}
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

func (c *clientSession) sendError(code, message string, retryable bool) {
	c.send(messages.MessageTypeServerErrorNotice, &messages.ServerErrorNotice{
		Code:      code,
		Message:   message,
		Retryable: retryable,
	})
}

// sendOperationError maps the session error taxonomy onto wire
// notices. Anything unrecognized is treated as a transient store
// problem: non-fatal, retryable.
func (c *clientSession) sendOperationError(err error) {
	switch {
	case session.IsNameInvalid(err):
		c.sendError(messages.ErrorCodeNameInvalid, err.Error(), true)
	case session.IsRoomNotFound(err):
		c.sendError(messages.ErrorCodeRoomNotFound, err.Error(), true)
	case session.IsRoomFull(err):
		c.sendError(messages.ErrorCodeRoomFull, err.Error(), true)
	default:
		log.Warn("Session operation failed: %v", err)
		c.sendError(messages.ErrorCodeStoreUnavailable, "temporary problem, please retry", true)
	}
}

func (c *clientSession) handleMessage(ctx context.Context, msg *messages.Message) {
	switch msg.Type {
	case messages.MessageTypeClientCreateRoom:
		payload := &messages.ClientCreateRoom{}
		if err := json.Unmarshal(msg.Payload, payload); err != nil {
			c.sendError(messages.ErrorCodeBadRequest, fmt.Sprintf("failed to parse create room: %v", err), false)
			return
		}
		if _, err := c.coord.CreateRoom(ctx, payload.PlayerName); err != nil {
			c.sendOperationError(err)
			return
		}
		c.bindHandle(ctx)
	case messages.MessageTypeClientJoinRoom:
		payload := &messages.ClientJoinRoom{}
		if err := json.Unmarshal(msg.Payload, payload); err != nil {
			c.sendError(messages.ErrorCodeBadRequest, fmt.Sprintf("failed to parse join room: %v", err), false)
			return
		}
		if _, err := c.coord.JoinRoom(ctx, payload.RoomCode, payload.PlayerName); err != nil {
			c.sendOperationError(err)
			return
		}
		c.bindHandle(ctx)
	case messages.MessageTypeClientSubmitChoice:
		payload := &messages.ClientSubmitChoice{}
		if err := json.Unmarshal(msg.Payload, payload); err != nil {
			c.sendError(messages.ErrorCodeBadRequest, fmt.Sprintf("failed to parse submit choice: %v", err), false)
			return
		}
		if err := c.coord.SubmitChoice(ctx, payload.Choice, payload.DecisionTimeMS); err != nil {
			c.sendOperationError(err)
		}
	case messages.MessageTypeClientAdvanceRound:
		if err := c.coord.AdvanceRound(ctx); err != nil {
			c.sendOperationError(err)
		}
	case messages.MessageTypeClientResync:
		payload := &messages.ClientResync{}
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, payload); err != nil {
				c.sendError(messages.ErrorCodeBadRequest, fmt.Sprintf("failed to parse resync: %v", err), false)
				return
			}
		}
		if payload.GameID != "" && payload.PlayerID != "" {
			c.rebind(payload.GameID, payload.PlayerID)
		}
		snap, phase, err := c.coord.Resync(ctx)
		if err != nil {
			c.sendOperationError(err)
			return
		}
		c.bindHandle(ctx)
		c.sendSessionState(phase, snap)
	default:
		c.sendError(messages.ErrorCodeBadRequest, fmt.Sprintf("unknown message type: %s", msg.Type), false)
	}
}

// rebind points the session at another game and player. A handle
// bound to a different game is torn down first, so the new binding
// gets its own subscription instead of inheriting a feed for the old
// game.
func (c *clientSession) rebind(gameID, playerID string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.handle != nil && c.coord.GameID() != gameID {
		c.handle.Close()
		c.handle = nil
	}
	c.coord.Rebind(gameID, playerID)
}

// bindHandle opens the session handle after the coordinator binds to a
// game. Idempotent: reconnect resyncs reuse the existing handle.
func (c *clientSession) bindHandle(ctx context.Context) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.handle != nil {
		return
	}

	handle := session.NewHandle(c.coord, c.store, session.HandleOptions{AutoSubmit: true})
	if err := handle.Bind(ctx); err != nil {
		log.Error("Failed to bind session handle: %v", err)
		return
	}
	c.handle = handle

	go func() {
		for update := range handle.Updates() {
			c.sendSessionState(update.Phase, update.Snapshot)
		}
	}()
}

func (c *clientSession) sendSessionState(phase session.Phase, snap *session.Snapshot) {
	state := &messages.ServerSessionState{
		Phase:    phase,
		PlayerID: c.coord.PlayerID(),
		Snapshot: snap,
	}

	if snap.Round != nil {
		situation, err := c.pool.ByID(snap.Round.SituationID)
		if err != nil {
			log.Error("Failed to look up situation %s: %v", snap.Round.SituationID, err)
		} else {
			state.Situation = situation
		}
	}

	if phase == session.PhaseResult {
		mine := snap.ChoiceOf(c.coord.PlayerID())
		opponent := snap.Opponent(c.coord.PlayerID())
		if mine != nil && opponent != nil {
			if theirs := snap.ChoiceOf(opponent.ID); theirs != nil {
				state.Reflection = game.Reflection(mine.Choice, theirs.Choice)
			}
		}
	}

	if phase == session.PhaseFinal {
		state.Final = buildFinalSummary(snap)
	}

	c.send(messages.MessageTypeServerSessionState, state)
}

// buildFinalSummary classifies both players and applies the forfeit
// rule. A score tie is a split: no payer is assigned.
func buildFinalSummary(snap *session.Snapshot) *messages.FinalSummary {
	if len(snap.Players) != 2 {
		return nil
	}

	final := &messages.FinalSummary{
		Archetypes: make(map[string]game.Archetype, 2),
	}
	for _, p := range snap.Players {
		final.Archetypes[p.ID] = game.ArchetypeOf(p)
	}

	a, b := snap.Players[0], snap.Players[1]
	if a.Score == b.Score {
		final.Split = true
		return final
	}

	winner, loser := a, b
	if b.Score > a.Score {
		winner, loser = b, a
	}
	outcome := game.DecideForfeit(winner, loser)
	final.PayerID = outcome.Payer.ID
	final.Reason = outcome.Reason
	return final
}
