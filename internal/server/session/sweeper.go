package session

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically reclaims abandoned upload sessions: the in-memory
// record and the on-disk part files both go.
type Sweeper struct {
	store    *Store
	interval time.Duration
	done     chan struct{}
}

// NewSweeper creates a sweeper over the given store.
func NewSweeper(store *Store, interval time.Duration) *Sweeper {
	return &Sweeper{
		store:    store,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins the sweep loop in a background goroutine.
func (sw *Sweeper) Start(ctx context.Context) {
	slog.Info("session sweeper started", "interval", sw.interval)

	go func() {
		ticker := time.NewTicker(sw.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if n := sw.store.SweepExpired(); n > 0 {
					slog.Info("swept abandoned upload sessions",
						"reclaimed", n,
						"remaining", sw.store.Len(),
					)
				}
			case <-ctx.Done():
				slog.Info("session sweeper stopping")
				close(sw.done)
				return
			}
		}
	}()
}

// Wait blocks until the sweeper has fully stopped.
func (sw *Sweeper) Wait() {
	<-sw.done
}
