package workqueue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// These tests exercise the real Redis wire protocol and are skipped
// unless a coordinator is reachable at WORKQUEUE_TEST_REDIS_ADDR, the
// same opt-in pattern the corpus's integration suites use for
// service-backed tests that can't run against a fake.
func testClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("WORKQUEUE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("WORKQUEUE_TEST_REDIS_ADDR not set, skipping Redis-backed workqueue test")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("coordinator at %s not reachable: %v", addr, err)
	}
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestQueuePushPopFIFO(t *testing.T) {
	rdb := testClient(t)
	ctx := context.Background()
	q := &Queue{rdb: rdb, key: "workqueue-test-" + t.Name(), cap: QueueCapacity}
	t.Cleanup(func() { rdb.Del(ctx, q.key) })

	if err := q.Push(ctx, "first"); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := q.Push(ctx, "second"); err != nil {
		t.Fatalf("Push: %v", err)
	}

	id, ok, err := q.Pop(ctx, time.Second)
	if err != nil || !ok || id != "first" {
		t.Fatalf("Pop: id=%q ok=%v err=%v", id, ok, err)
	}
}

func TestQueuePopTimesOutEmpty(t *testing.T) {
	rdb := testClient(t)
	ctx := context.Background()
	q := &Queue{rdb: rdb, key: "workqueue-test-empty-" + t.Name(), cap: QueueCapacity}

	_, ok, err := q.Pop(ctx, 200*time.Millisecond)
	if err != nil || ok {
		t.Fatalf("expected a timeout with no error: ok=%v err=%v", ok, err)
	}
}

func TestLockExcludesSecondAcquirer(t *testing.T) {
	rdb := testClient(t)
	ctx := context.Background()
	lock := NewLock(rdb)
	key := "lock-test-" + t.Name()
	t.Cleanup(func() { rdb.Del(ctx, lockNamespace+":"+key) })

	release, err := lock.TryAcquire(ctx, key, LockExpiry, 0)
	if err != nil {
		t.Fatalf("first TryAcquire: %v", err)
	}
	defer release()

	_, err = lock.TryAcquire(ctx, key, LockExpiry, 0)
	if err != ErrLockBusy {
		t.Fatalf("expected ErrLockBusy for a held lock, got %v", err)
	}
}
