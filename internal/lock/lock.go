// Package lock serializes fixes per workspace.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned when another holder owns the lock.
var ErrLocked = errors.New("lock is held by another process")

// Unlock releases an acquired lock.
type Unlock func(ctx context.Context) error

// Locker hands out exclusive locks by key. Lock never waits: it returns
// ErrLocked when the key is taken.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// Local is an in-process Locker.
type Local struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLocal creates an in-process locker.
func NewLocal() *Local {
	return &Local{held: make(map[string]bool)}
}

// Lock takes key if it is free.
func (l *Local) Lock(_ context.Context, key string) (Unlock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[key] {
		return nil, fmt.Errorf("%w: %s", ErrLocked, key)
	}
	l.held[key] = true

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
		return nil
	}, nil
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript pushes the expiry forward only while the key still holds
// our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Redis is a Locker shared by every process using the same Redis server.
// Locks expire after ttl so a crashed holder cannot block a workspace
// forever. A live holder extends its lock every ttl/3 until it unlocks or
// the context passed to Lock is done.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger hclog.Logger
}

// NewRedis creates a Redis locker. Keys are stored under prefix.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration, logger hclog.Logger) *Redis {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl, logger: logger.Named("lock")}
}

// Lock sets key with a random token if it does not exist yet.
func (r *Redis) Lock(ctx context.Context, key string) (Unlock, error) {
	name := r.prefix + key
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, name, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, name)
	}

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		err := keepAlive(ctx, r.ttl/3, done, func(ctx context.Context) (bool, error) {
			n, err := extendScript.Run(ctx, r.client, []string{name}, token, r.ttl.Milliseconds()).Int64()
			return n == 1, err
		})
		if err != nil {
			r.logger.Warn("lock renewal stopped", "lock", name, "error", err)
		}
	}()

	var once sync.Once
	return func(ctx context.Context) error {
		once.Do(func() { close(done) })
		<-stopped
		if err := releaseScript.Run(ctx, r.client, []string{name}, token).Err(); err != nil {
			return fmt.Errorf("failed to release lock %s: %w", name, err)
		}
		return nil
	}, nil
}

// errLockLost is reported when the key expired or changed hands before
// it could be extended.
var errLockLost = errors.New("lock no longer held")

// keepAlive calls extend every interval until done is closed or ctx ends.
// It gives up on the first failed extension.
func keepAlive(ctx context.Context, interval time.Duration, done <-chan struct{}, extend func(context.Context) (bool, error)) error {
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			held, err := extend(ctx)
			if err != nil {
				return err
			}
			if !held {
				return errLockLost
			}
		}
	}
}

// NewRedisClient connects to a Redis server and checks it answers.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}
