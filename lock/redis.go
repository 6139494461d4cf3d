package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "storefront:lock:"

// release deletes the key only while it still holds our token, so an expired
// lock taken over by another holder is left alone.
var release = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// extend pushes the expiry out only while the key still holds our token.
var extend = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// Redis holds locks as keys set with NX and a TTL. The TTL is extended while
// the holder is alive, so it only bounds how long a crashed holder blocks the
// key.
type Redis struct {
	client *redis.Client
	log    logrus.FieldLogger
	TTL    time.Duration
	Retry  time.Duration
}

func NewRedis(client *redis.Client, log logrus.FieldLogger, ttl time.Duration) *Redis {
	return &Redis{
		client: client,
		log:    log,
		TTL:    ttl,
		Retry:  50 * time.Millisecond,
	}
}

// Lock polls until the key is free or ctx is done.
func (l *Redis) Lock(ctx context.Context, key string) (func(), error) {
	k := keyPrefix + key
	token := uuid.NewString()

	t := time.NewTicker(l.Retry)
	defer t.Stop()

	for {
		ok, err := l.client.SetNX(ctx, k, token, l.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquiring lock %s: %w", key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquiring lock %s: %w: %v", key, ErrNotAcquired, ctx.Err())
		case <-t.C:
		}
	}

	done := make(chan struct{})
	go l.keepAlive(key, token, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := release.Run(ctx, l.client, []string{k}, token).Err(); err != nil {
				l.log.WithFields(logrus.Fields{
					"lock":  key,
					"error": err,
				}).Warn("releasing lock")
			}
		})
	}, nil
}

// keepAlive renews the TTL every third of it until done is closed.
func (l *Redis) keepAlive(key, token string, done <-chan struct{}) {
	every := l.TTL / 3
	if every < time.Millisecond {
		return
	}

	t := time.NewTicker(every)
	defer t.Stop()

	log := l.log.WithField("lock", key)
	for {
		select {
		case <-done:
			return
		case <-t.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), every)
		n, err := extend.Run(ctx, l.client, []string{keyPrefix + key}, token, l.TTL.Milliseconds()).Int()
		cancel()

		switch {
		case err != nil:
			log.WithField("error", err).Warn("extending lock")
		case n == 0:
			log.Error("lock expired while held")
			return
		}
	}
}
