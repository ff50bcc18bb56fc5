package workqueue

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/distribution/layersvc/pkg/diffengine"
	"github.com/distribution/layersvc/pkg/imagestore"
)

// popTimeout bounds each worker's blocking pop so the loop can notice
// context cancellation between iterations rather than blocking forever.
const popTimeout = 5 * time.Second

// Worker pool drains the diff queue, taking the per-id lock before
// invoking the diff engine so two workers racing on the same id don't
// compute it twice. Mirrors original_source/scripts/diff-worker.py's
// main loop, parallelized with errgroup running N concurrent pop loops.
type Worker struct {
	queue  *Queue
	lock   *Lock
	images *imagestore.Store
}

func NewWorker(queue *Queue, lock *Lock, images *imagestore.Store) *Worker {
	return &Worker{queue: queue, lock: lock, images: images}
}

// Run drives n concurrent loop iterations until ctx is cancelled, each
// popping from the shared queue and racing independently for per-id
// locks. Returns nil on clean cancellation.
func (w *Worker) Run(ctx context.Context, concurrency int) error {
	eg, egCtx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		eg.Go(func() error {
			return w.loop(egCtx)
		})
	}
	if err := eg.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func (w *Worker) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		imageID, ok, err := w.queue.Pop(ctx, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("diffworker: pop failed: %v", err)
			continue
		}
		if !ok {
			continue
		}
		w.processOne(ctx, imageID)
	}
}

func (w *Worker) processOne(ctx context.Context, imageID string) {
	release, err := w.lock.TryAcquire(ctx, imageID, LockExpiry, 0)
	if err == ErrLockBusy {
		// Another worker already holds the lock: log and skip this round.
		log.Printf("diffworker: %s locked by another worker, skipping", imageID)
		return
	}
	if err != nil {
		log.Printf("diffworker: lock acquire failed for %s: %v", imageID, err)
		return
	}
	defer release()

	_, cached, err := w.images.GetDiff(ctx, imageID)
	if err != nil {
		log.Printf("diffworker: diff cache lookup failed for %s: %v", imageID, err)
		return
	}
	if cached {
		return
	}

	result, err := diffengine.Compute(ctx, w.images, imageID)
	if err != nil {
		log.Printf("diffworker: diff computation failed for %s: %v", imageID, err)
		return
	}
	if err := w.images.PutDiff(ctx, imageID, result); err != nil {
		log.Printf("diffworker: diff persist failed for %s: %v", imageID, err)
	}
}
