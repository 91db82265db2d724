package image

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/pixvault/service/internal/storage"
)

// SweepResult summarises one retention sweep.
type SweepResult struct {
	Deleted int
	Failed  int
}

// ErrSweepRunning is returned when a sweep is invoked while a previous one
// is still in flight.
var ErrSweepRunning = errors.New("sweep already running")

// Sweeper removes images older than the retention window. The stored bytes
// are deleted before the metadata row, so a failed blob delete leaves the
// row discoverable and the image is retried on the next run.
type Sweeper struct {
	store     Store
	blobs     storage.Storage
	retention time.Duration
	running   atomic.Bool
	now       func() time.Time
}

// NewSweeper creates a Sweeper with the given retention window.
func NewSweeper(store Store, blobs storage.Storage, retention time.Duration) *Sweeper {
	return &Sweeper{
		store:     store,
		blobs:     blobs,
		retention: retention,
		now:       time.Now,
	}
}

// Run invokes Sweep on every tick until ctx is cancelled. Ticks that arrive
// while a sweep is still in flight are skipped.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("cleanup: sweeping every %s, retention window %s", interval, s.retention)
	for {
		select {
		case <-ctx.Done():
			log.Println("cleanup: stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && !errors.Is(err, ErrSweepRunning) {
				log.Printf("cleanup: sweep failed: %v", err)
			}
		}
	}
}

// Sweep deletes every image created before now minus the retention window,
// working from a snapshot of the expired set so a run always terminates.
// Per-image failures are counted and logged but never abort the sweep. At
// most one sweep is active at a time; an overlapping call returns
// ErrSweepRunning without touching the stores.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return SweepResult{}, ErrSweepRunning
	}
	defer s.running.Store(false)

	cutoff := s.now().Add(-s.retention)
	expired, err := s.store.FindOlderThan(ctx, cutoff)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list expired images: %w", err)
	}
	if len(expired) == 0 {
		log.Println("cleanup: no expired images found")
		return SweepResult{}, nil
	}

	var res SweepResult
	for _, img := range expired {
		if err := s.deleteOne(ctx, img); err != nil {
			res.Failed++
			log.Printf("cleanup: failed to delete image %s: %v", img.StorageKey, err)
			continue
		}
		res.Deleted++
		log.Printf("cleanup: deleted expired image %s (original: %s)", img.StorageKey, img.OriginalName)
	}

	log.Printf("cleanup complete: %d image(s) deleted, %d error(s)", res.Deleted, res.Failed)
	return res, nil
}

// deleteOne removes the blob, then the row.
func (s *Sweeper) deleteOne(ctx context.Context, img Image) error {
	if err := s.blobs.Delete(ctx, img.StorageKey); err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	if err := s.store.Delete(ctx, img.ID); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}
