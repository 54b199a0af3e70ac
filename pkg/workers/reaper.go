package workers

import (
	"context"
	"time"

	"github.com/cbodonnell/trustecho/pkg/log"
	"github.com/cbodonnell/trustecho/pkg/store"
)

// RoomReaperWorker periodically closes out waiting rooms whose second
// player never arrived, freeing their room codes for reuse.
type RoomReaperWorker struct {
	store    store.Store
	interval time.Duration
	maxAge   time.Duration
}

type NewRoomReaperWorkerOptions struct {
	Store    store.Store
	Interval time.Duration
	MaxAge   time.Duration
}

func NewRoomReaperWorker(opts NewRoomReaperWorkerOptions) *RoomReaperWorker {
	return &RoomReaperWorker{
		store:    opts.Store,
		interval: opts.Interval,
		maxAge:   opts.MaxAge,
	}
}

func (w *RoomReaperWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			closed, err := w.store.FinishStaleWaitingGames(ctx, w.maxAge)
			if err != nil {
				log.Error("Failed to reap stale waiting rooms: %v", err)
				continue
			}
			if closed > 0 {
				log.Info("Closed %d stale waiting rooms", closed)
			}
		}
	}
}
