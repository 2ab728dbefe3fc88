package shared

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
)

// TestInMemoryQueuePublishReceive verifies messages flow through in order.
func TestInMemoryQueuePublishReceive(t *testing.T) {
	ctx := context.Background()
	q := NewInMemoryQueue(4)
	defer q.Close()

	for _, id := range []string{"a", "b"} {
		if err := q.Publish(ctx, JobMessage{JobID: id, Kind: JobKindChordDetection}); err != nil {
			t.Fatalf("publish %s: %v", id, err)
		}
	}
	if q.Len() != 2 {
		t.Fatalf("len = %d, want 2", q.Len())
	}

	for _, want := range []string{"a", "b"} {
		msg, err := q.Receive(ctx)
		if err != nil {
			t.Fatalf("receive: %v", err)
		}
		if msg.JobID != want {
			t.Fatalf("message = %s, want %s", msg.JobID, want)
		}
	}

	cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if _, err := q.Receive(cctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("receive on empty queue error = %v, want deadline exceeded", err)
	}
}

// TestInMemoryQueueFullAndClosed checks the non-blocking publish errors.
func TestInMemoryQueueFullAndClosed(t *testing.T) {
	ctx := context.Background()
	q := NewInMemoryQueue(1)
	if err := q.Publish(ctx, JobMessage{JobID: "a"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := q.Publish(ctx, JobMessage{JobID: "b"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("publish to full queue error = %v, want ErrQueueFull", err)
	}

	q.Close()
	q.Close()
	if err := q.Publish(ctx, JobMessage{JobID: "c"}); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("publish after close error = %v, want ErrQueueClosed", err)
	}
	if msg, err := q.Receive(ctx); err != nil || msg.JobID != "a" {
		t.Fatalf("buffered message after close = %+v, %v", msg, err)
	}
	if _, err := q.Receive(ctx); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("receive after close error = %v, want ErrQueueClosed", err)
	}
}

// TestRedisQueueDeliversOnce verifies consumer-group reads hand each
// message to exactly one of several consumers.
func TestRedisQueueDeliversOnce(t *testing.T) {
	_, client := newTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	producer := NewRedisQueue(client, "test:jobs", 0, "producer")
	consumers := []*RedisQueue{
		NewRedisQueue(client, "test:jobs", 0, "c1").WithBlock(50 * time.Millisecond),
		NewRedisQueue(client, "test:jobs", 0, "c2").WithBlock(50 * time.Millisecond),
	}

	const n = 10
	for i := 0; i < n; i++ {
		msg := JobMessage{
			JobID:    string(rune('a' + i)),
			Kind:     JobKindStemSeparation,
			FilePath: "/tmp/x.wav",
			Params:   map[string]string{ParamStemType: "drums"},
		}
		if err := producer.Publish(ctx, msg); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	var mu sync.Mutex
	seen := map[string]int{}
	var wg sync.WaitGroup
	for _, c := range consumers {
		wg.Add(1)
		go func(c *RedisQueue) {
			defer wg.Done()
			for {
				msg, err := c.Receive(ctx)
				if err != nil {
					return
				}
				if msg.Params[ParamStemType] != "drums" {
					t.Errorf("params not preserved: %+v", msg)
				}
				mu.Lock()
				seen[msg.JobID]++
				total := 0
				for _, v := range seen {
					total += v
				}
				mu.Unlock()
				if total == n {
					cancel()
				}
			}
		}(c)
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for messages")
	}

	if len(seen) != n {
		t.Fatalf("distinct messages = %d, want %d", len(seen), n)
	}
	for id, count := range seen {
		if count != 1 {
			t.Fatalf("message %s delivered %d times", id, count)
		}
	}
}

// TestRedisQueueBusyConsumerLeavesEntries checks that a consumer which is
// not asking for work does not hold entries other consumers could run.
func TestRedisQueueBusyConsumerLeavesEntries(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()

	producer := NewRedisQueue(client, "test:jobs", 0, "producer")
	busy := NewRedisQueue(client, "test:jobs", 0, "busy").WithBlock(20 * time.Millisecond)
	idle := NewRedisQueue(client, "test:jobs", 0, "idle").WithBlock(20 * time.Millisecond)

	if err := producer.Publish(ctx, JobMessage{JobID: "job-0"}); err != nil {
		t.Fatal(err)
	}
	if msg, err := busy.Receive(ctx); err != nil || msg.JobID != "job-0" {
		t.Fatalf("busy receive = %+v, %v", msg, err)
	}

	// busy is now running job-0 and does not receive again.
	if err := producer.Publish(ctx, JobMessage{JobID: "job-1"}); err != nil {
		t.Fatal(err)
	}
	rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	msg, err := idle.Receive(rctx)
	if err != nil || msg.JobID != "job-1" {
		t.Fatalf("idle receive = %+v, %v; want job-1", msg, err)
	}

	pending, err := client.XPending(ctx, "test:jobs", DefaultConsumerGroup).Result()
	if err != nil {
		t.Fatal(err)
	}
	if pending.Count != 0 {
		t.Fatalf("pending entries = %d, want 0", pending.Count)
	}
}

// TestRedisQueueStoppedConsumerKeepsNothing checks that cancelling a
// receiver leaves later entries for the next consumer.
func TestRedisQueueStoppedConsumerKeepsNothing(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()

	producer := NewRedisQueue(client, "test:jobs", 0, "producer")
	stopping := NewRedisQueue(client, "test:jobs", 0, "stopping").WithBlock(20 * time.Millisecond)
	restarted := NewRedisQueue(client, "test:jobs", 0, "restarted").WithBlock(20 * time.Millisecond)

	sctx, stop := context.WithCancel(ctx)
	errc := make(chan error, 1)
	go func() {
		_, err := stopping.Receive(sctx)
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	stop()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("stopped receive error = %v, want canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("receive did not return after cancel")
	}

	if err := producer.Publish(ctx, JobMessage{JobID: "job-1"}); err != nil {
		t.Fatal(err)
	}
	rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if msg, err := restarted.Receive(rctx); err != nil || msg.JobID != "job-1" {
		t.Fatalf("restarted receive = %+v, %v; want job-1", msg, err)
	}
}
