package locks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sitetour/backend/pkg/logger"
)

// Manager serializes ingestions per site. Two concurrent ingestions for the
// same site must not interleave (both touch the one-per-site settings record
// and the same floor registry rows); different sites are independent.
type Manager interface {
	Acquire(ctx context.Context, siteID string) (release func(), err error)
}

// LocalManager is the single-process implementation.
type LocalManager struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLocalManager() *LocalManager {
	return &LocalManager{locks: make(map[string]*sync.Mutex)}
}

func (m *LocalManager) Acquire(ctx context.Context, siteID string) (func(), error) {
	m.mu.Lock()
	lock, ok := m.locks[siteID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[siteID] = lock
	}
	m.mu.Unlock()

	acquired := make(chan struct{})
	go func() {
		lock.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return lock.Unlock, nil
	case <-ctx.Done():
		// The goroutine will eventually grab the mutex; release it again
		// so the next waiter is not blocked forever.
		go func() {
			<-acquired
			lock.Unlock()
		}()
		return nil, ctx.Err()
	}
}

// RedisManager coordinates ingestion locks across processes with SET NX and
// a fenced release: the lock value is a random token checked before DEL so a
// slow holder cannot release someone else's lock.
type RedisManager struct {
	client *redis.Client
	ttl    time.Duration
	poll   time.Duration
}

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

func NewRedisManager(host string, port int, password string, db int, ttl time.Duration) (*RedisManager, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if ttl == 0 {
		ttl = 15 * time.Minute
	}

	logger.Info("Redis lock manager initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &RedisManager{client: client, ttl: ttl, poll: 500 * time.Millisecond}, nil
}

func (m *RedisManager) Close() error {
	return m.client.Close()
}

func (m *RedisManager) Acquire(ctx context.Context, siteID string) (func(), error) {
	key := fmt.Sprintf("ingest-lock:%s", siteID)
	token := uuid.NewString()

	for {
		ok, err := m.client.SetNX(ctx, key, token, m.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire ingestion lock: %w", err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.poll):
		}
	}

	logger.Debug("Ingestion lock acquired", zap.String("site_id", siteID))

	release := func() {
		if err := m.client.Eval(context.Background(), releaseScript, []string{key}, token).Err(); err != nil {
			logger.Warn("Failed to release ingestion lock",
				zap.String("site_id", siteID),
				zap.Error(err),
			)
		}
	}
	return release, nil
}
