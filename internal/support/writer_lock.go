package support

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultWriterLockKey = "fwblock:writer"
	DefaultWriterLockTTL = 45 * time.Second
	lockRetryDelay       = 500 * time.Millisecond
	lockCallTimeout      = 5 * time.Second
	minRenewalInterval   = time.Second
	renewalFraction      = 3
)

// ErrLockLost is reported by WriterLock.Err once a renewal found the key
// owned by somebody else.
var ErrLockLost = errors.New("support: writer lock lost")

var (
	lockCounter atomic.Uint64

	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)
)

// WriterLock serialises processes that mutate the block list. It is held
// until Release is called and renewed in the background meanwhile.
type WriterLock struct {
	client    redis.Scripter
	key       string
	value     string
	ttl       time.Duration
	stopRenew chan struct{}
	done      chan struct{}
	lost      atomic.Bool
	closeOnce sync.Once
}

// AcquireWriterLock blocks until the lock at key is free or ctx is done.
func AcquireWriterLock(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (*WriterLock, error) {
	if client == nil {
		return nil, errors.New("support: writer lock needs a redis client")
	}
	if key == "" {
		key = DefaultWriterLockKey
	}
	if ttl <= 0 {
		ttl = DefaultWriterLockTTL
	}

	value := generateLockID()
	waiting := false

	for {
		ok, err := client.SetNX(ctx, key, value, ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("support: writer lock setnx: %w", err)
		}

		if ok {
			lock := &WriterLock{
				client:    client,
				key:       key,
				value:     value,
				ttl:       ttl,
				stopRenew: make(chan struct{}),
				done:      make(chan struct{}),
			}
			go lock.renewLoop()
			log.Debug("writer lock: acquired", "key", key)
			return lock, nil
		}

		if !waiting {
			log.Info("writer lock: held by another process, waiting", "key", key)
			waiting = true
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
}

// Err returns ErrLockLost if a renewal failed.
func (l *WriterLock) Err() error {
	if l.lost.Load() {
		return ErrLockLost
	}
	return nil
}

// Release stops renewal and deletes the key if this process still owns it.
func (l *WriterLock) Release() {
	l.closeOnce.Do(func() {
		close(l.stopRenew)
		<-l.done
		if err := l.release(); err != nil {
			log.Warn("writer lock: release failed", "key", l.key, "error", err)
			return
		}
		log.Debug("writer lock: released", "key", l.key)
	})
}

func (l *WriterLock) renewLoop() {
	defer close(l.done)

	interval := renewalInterval(l.ttl)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopRenew:
			return
		case <-ticker.C:
			if err := l.renew(); err != nil {
				log.Warn("writer lock: renewal failed", "key", l.key, "error", err)
				l.lost.Store(true)
				return
			}
		}
	}
}

func (l *WriterLock) renew() error {
	ctx, cancel := context.WithTimeout(context.Background(), lockCallTimeout)
	defer cancel()

	res, err := renewScript.Run(ctx, l.client, []string{l.key}, l.value, l.ttl.Milliseconds()).Result()
	if err != nil {
		return err
	}
	if updated, ok := res.(int64); ok && updated == 0 {
		return ErrLockLost
	}
	return nil
}

func (l *WriterLock) release() error {
	ctx, cancel := context.WithTimeout(context.Background(), lockCallTimeout)
	defer cancel()

	_, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.value).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

func renewalInterval(ttl time.Duration) time.Duration {
	interval := ttl / renewalFraction
	if interval < minRenewalInterval {
		interval = minRenewalInterval
	}
	return interval
}

func generateLockID() string {
	host, _ := os.Hostname()
	counter := lockCounter.Add(1)
	return fmt.Sprintf("%s-%d-%d-%d", host, os.Getpid(), time.Now().UnixNano(), counter)
}
