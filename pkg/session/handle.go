package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cbodonnell/trustecho/pkg/game"
	"github.com/cbodonnell/trustecho/pkg/game/constants"
	"github.com/cbodonnell/trustecho/pkg/log"
	"github.com/cbodonnell/trustecho/pkg/store"
	"github.com/jinzhu/copier"
)

const (
	// UpdateBufferSize is the handle's outbound update buffer.
	UpdateBufferSize = 16
)

// Update is one reconciliation result: a freshly derived phase and the
// snapshot it was derived from. Consumers receive copies and may hold
// them as long as they like.
type Update struct {
	Phase    Phase
	Snapshot *Snapshot
}

type HandleOptions struct {
	// AutoSubmit enables the decision timer: when the bound player has
	// not decided within DecisionTimeout of a round appearing, a
	// random choice is submitted on their behalf.
	AutoSubmit bool
	// DecisionTimeout overrides the default decision deadline.
	DecisionTimeout time.Duration
}

// Handle owns one subscription for one bound session. Its
// reconciliation loop is the only consumer of the change feed: every
// event triggers a full snapshot refetch and phase re-derivation,
// never an incremental patch, so event loss and reordering are
// harmless. Opened on session bind, closed on teardown.
type Handle struct {
	coord           *Coordinator
	store           store.Store
	autoSubmit      bool
	decisionTimeout time.Duration

	sub     *store.Subscription
	updates chan Update
	cancel  context.CancelFunc

	timerLock    sync.Mutex
	timer        *time.Timer
	armedRoundID string
}

func NewHandle(coord *Coordinator, s store.Store, opts HandleOptions) *Handle {
	timeout := opts.DecisionTimeout
	if timeout <= 0 {
		timeout = constants.DecisionTimeout
	}
	return &Handle{
		coord:           coord,
		store:           s,
		autoSubmit:      opts.AutoSubmit,
		decisionTimeout: timeout,
		updates:         make(chan Update, UpdateBufferSize),
	}
}

// Bind opens the handle's subscription and starts the reconciliation
// loop. The coordinator must already be bound to a game.
func (h *Handle) Bind(ctx context.Context) error {
	if h.coord.GameID() == "" {
		return fmt.Errorf("no session bound")
	}
	if h.sub != nil {
		return fmt.Errorf("handle is already bound")
	}

	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.sub = h.store.Subscribe(h.coord.GameID())

	// Emit the starting state before any events arrive.
	h.reconcile(ctx)

	go h.loop(ctx)
	return nil
}

// Updates returns the stream of reconciliation results. The channel
// closes when the handle closes.
func (h *Handle) Updates() <-chan Update {
	return h.updates
}

// Close tears the session down: the subscription detaches, the
// decision timer stops, and the update channel closes.
func (h *Handle) Close() {
	if h.cancel != nil {
		h.cancel()
	}
	if h.sub != nil {
		h.sub.Close()
	}
	h.disarmTimer()
}

func (h *Handle) loop(ctx context.Context) {
	defer close(h.updates)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-h.sub.C:
			if !ok {
				return
			}
			h.reconcile(ctx)
		}
	}
}

// reconcile refetches the full snapshot, re-derives the phase, and
// pushes an update. A full update buffer drops the oldest pending
// update; every update already carries complete state, so only the
// newest matters.
func (h *Handle) reconcile(ctx context.Context) {
	snap, phase, err := h.coord.Resync(ctx)
	if err != nil {
		log.Warn("Failed to reconcile session for game %s: %v", h.coord.GameID(), err)
		return
	}

	h.updateTimer(ctx, snap, phase)

	out := &Snapshot{}
	if err := copier.CopyWithOption(out, snap, copier.Option{DeepCopy: true}); err != nil {
		log.Error("Failed to copy snapshot: %v", err)
		return
	}

	update := Update{Phase: phase, Snapshot: out}
	for {
		select {
		case h.updates <- update:
			return
		default:
			select {
			case <-h.updates:
			default:
			}
		}
	}
}

// updateTimer arms the decision timer when a new unresolved round
// appears for the bound player and disarms it once they have decided
// or the round resolved. A stale fire after the player has already
// submitted is absorbed by ledger idempotence.
func (h *Handle) updateTimer(ctx context.Context, snap *Snapshot, phase Phase) {
	if !h.autoSubmit {
		return
	}

	if phase != PhaseSituationReveal || snap.Round == nil {
		h.disarmTimer()
		return
	}

	h.timerLock.Lock()
	defer h.timerLock.Unlock()
	if h.armedRoundID == snap.Round.ID {
		return
	}
	if h.timer != nil {
		h.timer.Stop()
	}
	h.armedRoundID = snap.Round.ID
	h.timer = time.AfterFunc(h.decisionTimeout, func() {
		if ctx.Err() != nil {
			return
		}
		log.Debug("Decision timer expired for player %s, auto-submitting", h.coord.PlayerID())
		if err := h.coord.SubmitChoice(ctx, game.RandomDecision(), h.decisionTimeout.Milliseconds()); err != nil {
			log.Warn("Failed to auto-submit choice: %v", err)
		}
	})
}

func (h *Handle) disarmTimer() {
	h.timerLock.Lock()
	defer h.timerLock.Unlock()
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.armedRoundID = ""
}
