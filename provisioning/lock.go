package provisioning

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
)

// Lease is a held lock. Refresh returns ErrLeaseLost once another holder
// may have taken the key.
type Lease interface {
	Refresh(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

// Locker grants at most one holder per key. Obtain returns ErrProvisioningInProgress
// when the key is already held.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

func routeLockKey(routeId int, w Window) string {
	return fmt.Sprintf("la-provision:%d:%s", routeId, w.String())
}

// RedisLocker serializes provisioning across instances.
type RedisLocker struct {
	client *redislock.Client
}

func NewRedisLocker(client *redislock.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	if l.client == nil {
		return nil, errors.New("redis lock not initialized")
	}
	lock, err := l.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrProvisioningInProgress
	}
	if err != nil {
		return nil, err
	}
	return &redisLease{lock: lock}, nil
}

type redisLease struct {
	lock *redislock.Lock
}

func (le *redisLease) Refresh(ctx context.Context, ttl time.Duration) error {
	err := le.lock.Refresh(ctx, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return ErrLeaseLost
	}
	return err
}

func (le *redisLease) Release(ctx context.Context) error {
	err := le.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return nil
	}
	return err
}

// LocalLocker serializes provisioning inside one process. Used when the job
// runs as a single instance without Redis.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]*localLease
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: map[string]*localLease{}}
}

func (l *LocalLocker) Obtain(_ context.Context, key string, ttl time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.held[key]; ok && time.Now().Before(cur.expires) {
		return nil, ErrProvisioningInProgress
	}
	lease := &localLease{locker: l, key: key, expires: time.Now().Add(ttl)}
	l.held[key] = lease
	return lease, nil
}

type localLease struct {
	locker  *LocalLocker
	key     string
	expires time.Time
}

func (le *localLease) Refresh(_ context.Context, ttl time.Duration) error {
	le.locker.mu.Lock()
	defer le.locker.mu.Unlock()
	if le.locker.held[le.key] != le || time.Now().After(le.expires) {
		return ErrLeaseLost
	}
	le.expires = time.Now().Add(ttl)
	return nil
}

func (le *localLease) Release(context.Context) error {
	le.locker.mu.Lock()
	defer le.locker.mu.Unlock()
	// An expired lease must not release a newer holder.
	if le.locker.held[le.key] == le {
		delete(le.locker.held, le.key)
	}
	return nil
}

// heldLease refreshes a lease in the background until stopped. A failed
// refresh is kept and reported by Err.
type heldLease struct {
	lease Lease
	stop  chan struct{}
	done  chan struct{}

	mu  sync.Mutex
	err error
}

func keepAlive(ctx context.Context, lease Lease, ttl time.Duration) *heldLease {
	h := &heldLease{lease: lease, stop: make(chan struct{}), done: make(chan struct{})}
	interval := ttl / 3
	if interval <= 0 {
		interval = ttl
	}
	go func() {
		defer close(h.done)
		if interval <= 0 {
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-h.stop:
				return
			case <-ticker.C:
				if err := lease.Refresh(context.WithoutCancel(ctx), ttl); err != nil {
					h.mu.Lock()
					h.err = err
					h.mu.Unlock()
					return
				}
			}
		}
	}()
	return h
}

func (h *heldLease) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Release stops refreshing and releases the lease.
func (h *heldLease) Release(ctx context.Context) error {
	close(h.stop)
	<-h.done
	return h.lease.Release(ctx)
}
