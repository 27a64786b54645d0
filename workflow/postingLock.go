package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
)

// Locker serializes finance postings that must not interleave.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

type LockFunc func(ctx context.Context, key string) (func(), error)

func (f LockFunc) Acquire(ctx context.Context, key string) (func(), error) {
	return f(ctx, key)
}

// RedisLocker takes a redis lock on a best-effort basis. When redis is missing
// or the lock cannot be obtained it logs and proceeds; the database lock in the
// chain is what actually serializes.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	logger *logrus.Logger
}

func NewRedisLocker(client *redislock.Client, ttl time.Duration, logger *logrus.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl, logger: logger}
}

func (l *RedisLocker) warn(key, msg string) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.WithFields(logrus.Fields{
		"field":    "RedisLocker",
		"lock_key": key,
	}).Warn(msg)
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	if l == nil || l.client == nil {
		l.warn(key, "redis lock not ready; proceeding without redis lock")
		return func() {}, nil
	}
	lock, err := l.client.Obtain(ctx, "lock:"+key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		l.warn(key, "could not obtain redis lock; proceeding without redis lock")
		return func() {}, nil
	} else if err != nil {
		l.warn(key, "error obtaining redis lock; proceeding without redis lock: "+err.Error())
		return func() {}, nil
	}
	return func() {
		if releaseErr := lock.Release(context.Background()); releaseErr != nil {
			l.warn(key, "failed to release redis lock: "+releaseErr.Error())
		}
	}, nil
}

// ChainLockers acquires every locker in order and releases them in reverse.
func ChainLockers(lockers ...Locker) Locker {
	return LockFunc(func(ctx context.Context, key string) (func(), error) {
		releases := make([]func(), 0, len(lockers))
		releaseAll := func() {
			for i := len(releases) - 1; i >= 0; i-- {
				releases[i]()
			}
		}
		for _, l := range lockers {
			if l == nil {
				continue
			}
			release, err := l.Acquire(ctx, key)
			if err != nil {
				releaseAll()
				return nil, err
			}
			releases = append(releases, release)
		}
		return releaseAll, nil
	})
}
