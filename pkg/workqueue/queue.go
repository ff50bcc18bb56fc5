// Package workqueue implements the capped diff job queue and the
// per-key lock the worker uses to dedup concurrent pops of the same
// image id. Grounded on original_source/scripts/diff-worker.py and its
// rqueue module (CappedCollection, Lock), backed here by
// github.com/redis/go-redis/v9, the coordination client the broader
// corpus (operator-registry, oc-mirror) wires in for the same
// enqueue/lock shape.
package workqueue

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Capacity and lock parameters: a capped list of 1024 under key
// "diff-worker", a lock namespace "diff-worker-lock", 5 minute expiry,
// 0 wait.
const (
	QueueKey      = "diff-worker"
	QueueCapacity = 1024
	lockNamespace = "diff-worker-lock"
	LockExpiry    = 5 * time.Minute
)

// ErrLockBusy is returned by Lock.TryAcquire when another holder has
// the key; the worker loop treats this as "skip, another worker has
// it" rather than an error.
var ErrLockBusy = errors.New("lock busy")

// Queue is a capped FIFO over a Redis list: Push drops the oldest
// entry on overflow (LPUSH + LTRIM), Pop blocks via BRPOP.
type Queue struct {
	rdb *redis.Client
	key string
	cap int64
}

func NewQueue(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb, key: QueueKey, cap: QueueCapacity}
}

// Push enqueues imageID, trimming the list back down to capacity if it
// grew past it: an overflow silently drops the oldest pending id.
func (q *Queue) Push(ctx context.Context, imageID string) error {
	pipe := q.rdb.TxPipeline()
	pipe.LPush(ctx, q.key, imageID)
	pipe.LTrim(ctx, q.key, 0, q.cap-1)
	_, err := pipe.Exec(ctx)
	return err
}

// Pop blocks up to timeout for an entry, returning ("", false, nil) on
// timeout with no error (the normal idle case for a polling worker
// loop).
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (string, bool, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	// BRPop returns [key, value].
	return res[1], true, nil
}

// Lock is a try-acquire mutex over a Redis key with a bounded expiry,
// namespaced so it cannot collide with the queue's own keys.
type Lock struct {
	rdb *redis.Client
}

func NewLock(rdb *redis.Client) *Lock {
	return &Lock{rdb: rdb}
}

// TryAcquire attempts to set the lock for key with SET NX EX, waiting
// up to timeout by retrying briefly. timeout=0 (the worker's usage)
// means a single immediate attempt: ErrLockBusy on failure.
func (l *Lock) TryAcquire(ctx context.Context, key string, expires, timeout time.Duration) (func(), error) {
	deadline := time.Now().Add(timeout)
	lockKey := lockNamespace + ":" + key
	for {
		ok, err := l.rdb.SetNX(ctx, lockKey, "1", expires).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() { l.rdb.Del(context.Background(), lockKey) }, nil
		}
		if timeout <= 0 || time.Now().After(deadline) {
			return nil, ErrLockBusy
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}
