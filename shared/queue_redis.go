package shared

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	redis "github.com/redis/go-redis/v9"
)

const (
	DefaultConsumerGroup = "workers"
	redisReadBlock       = 5 * time.Second
	redisReadBackoff     = time.Second
)

// RedisQueue implements MessageQueueClient using a Redis stream read through
// a consumer group. An entry is read only when a worker slot is free and is
// acknowledged as soon as it is read, so each job is handed to exactly one
// worker that can run it.
type RedisQueue struct {
	client   *redis.Client
	name     string
	group    string
	consumer string
	maxLen   int
	block    time.Duration

	groupMu    sync.Mutex
	groupReady bool
}

func NewRedisQueue(client *redis.Client, name string, maxLen int, consumer string) *RedisQueue {
	return &RedisQueue{
		client:   client,
		name:     name,
		group:    DefaultConsumerGroup,
		consumer: consumer,
		maxLen:   maxLen,
		block:    redisReadBlock,
	}
}

// WithBlock overrides how long a single XREADGROUP waits for new entries.
func (q *RedisQueue) WithBlock(d time.Duration) *RedisQueue {
	q.block = d
	return q
}

func (q *RedisQueue) Publish(ctx context.Context, message JobMessage) error {
	if q.client == nil {
		return errors.New("redis client is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b, err := json.Marshal(message)
	if err != nil {
		return errors.Wrapf(err, "encode job %s", message.JobID)
	}
	args := &redis.XAddArgs{Stream: q.name, Values: map[string]any{"data": string(b)}}
	if q.maxLen > 0 {
		args.MaxLen = int64(q.maxLen)
		args.Approx = true
	}
	if err := q.client.XAdd(ctx, args).Err(); err != nil {
		return errors.Wrapf(err, "publish job %s", message.JobID)
	}
	return nil
}

func (q *RedisQueue) ensureGroup(ctx context.Context) error {
	q.groupMu.Lock()
	defer q.groupMu.Unlock()
	if q.groupReady {
		return nil
	}
	// "0" lets a new group pick up entries published before any worker started.
	err := q.client.XGroupCreateMkStream(ctx, q.name, q.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return errors.Wrapf(err, "create consumer group %s on %s", q.group, q.name)
	}
	q.groupReady = true
	return nil
}

// Receive reads one entry for this consumer. The read is issued only when
// the caller asks for a message, so entries stay in the stream for other
// consumers while this one is busy. A read that is already blocking is not
// interrupted by ctx; an entry it returns is handed back even if ctx was
// cancelled meanwhile, since the group has already assigned it here.
func (q *RedisQueue) Receive(ctx context.Context) (JobMessage, error) {
	if q.client == nil {
		return JobMessage{}, errors.New("redis client is nil")
	}
	if err := q.ensureGroup(ctx); err != nil {
		return JobMessage{}, err
	}

	readCtx := context.WithoutCancel(ctx)
	for ctx.Err() == nil {
		res, err := q.client.XReadGroup(readCtx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: q.consumer,
			Streams:  []string{q.name, ">"},
			Count:    1,
			Block:    q.block,
		}).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			log.Printf("ERROR: Queue: read from %s failed: %v", q.name, err)
			select {
			case <-time.After(redisReadBackoff):
			case <-ctx.Done():
			}
			continue
		}
		for _, stream := range res {
			for _, msg := range stream.Messages {
				if err := q.client.XAck(readCtx, q.name, q.group, msg.ID).Err(); err != nil {
					log.Printf("WARN: Queue: ack %s failed: %v", msg.ID, err)
				}
				jm, err := decodeStreamMessage(msg)
				if err != nil {
					log.Printf("ERROR: Queue: dropping malformed entry %s: %v", msg.ID, err)
					continue
				}
				return jm, nil
			}
		}
	}
	return JobMessage{}, ctx.Err()
}

func decodeStreamMessage(msg redis.XMessage) (JobMessage, error) {
	var jm JobMessage
	raw, ok := msg.Values["data"].(string)
	if !ok {
		return jm, errors.New("missing data field")
	}
	if err := json.Unmarshal([]byte(raw), &jm); err != nil {
		return jm, errors.Wrap(err, "decode job message")
	}
	return jm, nil
}

// Close is a no-op; the Redis client is owned by the caller.
func (q *RedisQueue) Close() error { return nil }
