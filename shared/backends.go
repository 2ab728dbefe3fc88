package shared

import (
	"log"

	"github.com/pkg/errors"
	redis "github.com/redis/go-redis/v9"
)

// Backends bundles the job store and work queue selected by Config.
// It is constructed once per process and passed explicitly to the
// dispatcher and worker pool.
type Backends struct {
	Store JobStore
	Queue MessageQueueClient
	// Redis is the result backend client when one is configured; the
	// rate limiter shares it.
	Redis *redis.Client

	clients []*redis.Client
}

// OpenBackends connects the store and queue described by cfg. consumer
// names this process inside the Redis consumer group.
func OpenBackends(cfg *Config, consumer string) (*Backends, error) {
	b := &Backends{}

	if IsMemoryURL(cfg.BackendURL) {
		b.Store = NewInMemoryDB()
		log.Println("INFO: Using in-memory result backend (state is lost on restart).")
	} else {
		client, err := b.connect(cfg.BackendURL)
		if err != nil {
			b.Close()
			return nil, errors.Wrap(err, "result backend")
		}
		b.Redis = client
		b.Store = NewRedisDB(client, "kmusic:", cfg.ResultTTL)
		log.Println("INFO: Using Redis result backend.")
	}

	if IsMemoryURL(cfg.BrokerURL) {
		b.Queue = NewInMemoryQueue(cfg.QueueBuffer)
		log.Println("INFO: Using in-memory broker; workers must run in this process.")
	} else {
		client, err := b.connect(cfg.BrokerURL)
		if err != nil {
			b.Close()
			return nil, errors.Wrap(err, "broker")
		}
		b.Queue = NewRedisQueue(client, cfg.QueueName, cfg.QueueMaxLength, consumer)
		log.Printf("INFO: Using Redis broker stream %s.", cfg.QueueName)
	}
	return b, nil
}

func (b *Backends) connect(url string) (*redis.Client, error) {
	client, err := NewRedisClient(url)
	if err != nil {
		return nil, err
	}
	b.clients = append(b.clients, client)
	if err := PingRedis(client); err != nil {
		return nil, errors.Wrap(err, "ping redis")
	}
	return client, nil
}

// InProcessBroker reports whether jobs can only be consumed by workers in this process.
func (b *Backends) InProcessBroker() bool {
	_, ok := b.Queue.(*InMemoryQueue)
	return ok
}

// Close releases the queue and any Redis connections.
func (b *Backends) Close() error {
	var firstErr error
	if b.Queue != nil {
		if err := b.Queue.Close(); err != nil {
			firstErr = err
		}
	}
	for _, c := range b.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
