package shared

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	redis "github.com/redis/go-redis/v9"
)

const redisUpdateRetries = 3

// RedisDB implements JobStore using Redis as a key-value store
// Keys: <prefix>job:<id> => JSON(Job), expiring after ttl (0 keeps them forever)
type RedisDB struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisDB(client *redis.Client, prefix string, ttl time.Duration) *RedisDB {
	return &RedisDB{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisDB) jobKey(id string) string { return fmt.Sprintf("%sjob:%s", r.prefix, id) }

func (r *RedisDB) CreateJob(ctx context.Context, job *Job) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b, err := json.Marshal(job)
	if err != nil {
		return errors.Wrapf(err, "encode job %s", job.ID)
	}
	ok, err := r.client.SetNX(ctx, r.jobKey(job.ID), b, r.ttl).Result()
	if err != nil {
		return errors.Wrapf(err, "create job %s", job.ID)
	}
	if !ok {
		return errors.Errorf("job with ID %s already exists", job.ID)
	}
	return nil
}

func (r *RedisDB) GetJob(ctx context.Context, jobID string) (*Job, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.get(ctx, r.client, jobID)
}

func (r *RedisDB) get(ctx context.Context, c redis.Cmdable, jobID string) (*Job, error) {
	val, err := c.Get(ctx, r.jobKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, errors.Wrapf(ErrUnknownJob, "job %s", jobID)
		}
		return nil, errors.Wrapf(err, "get job %s", jobID)
	}
	var j Job
	if err := json.Unmarshal(val, &j); err != nil {
		return nil, errors.Wrapf(err, "decode job %s", jobID)
	}
	return &j, nil
}

// UpdateJob checks the state transition and writes the job inside a
// WATCH/MULTI transaction on the job key.
func (r *RedisDB) UpdateJob(ctx context.Context, job *Job) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b, err := json.Marshal(job)
	if err != nil {
		return errors.Wrapf(err, "encode job %s", job.ID)
	}
	key := r.jobKey(job.ID)
	txf := func(tx *redis.Tx) error {
		current, err := r.get(ctx, tx, job.ID)
		if err != nil {
			return err
		}
		if current.State.Terminal() || (current.State != job.State && !CanTransition(current.State, job.State)) {
			return errors.Wrapf(ErrInvalidTransition, "job %s: %s -> %s", job.ID, current.State, job.State)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, r.ttl)
			return nil
		})
		return err
	}
	for i := 0; i < redisUpdateRetries; i++ {
		err = r.client.Watch(ctx, txf, key)
		if err != redis.TxFailedErr {
			return err
		}
	}
	return errors.Wrapf(err, "update job %s", job.ID)
}
