package redis

import (
	"context"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	InflightTTL       = 10 * time.Second
	InflightKeyPrefix = "lock:membership:"
)

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`)

// InflightLock marks a membership change as outstanding across server
// instances. The TTL bounds how long a crashed holder blocks the key.
type InflightLock struct {
	RDB *redis.Client
	TTL time.Duration
}

func NewInflightLock(rdb *redis.Client) *InflightLock {
	return &InflightLock{RDB: rdb, TTL: InflightTTL}
}

// TryAcquire sets the key only if absent. ok is false when another holder has it.
func (l *InflightLock) TryAcquire(ctx context.Context, key string) (func(), bool, error) {
	k := InflightKeyPrefix + key
	token := uuid.NewString()
	ok, err := l.RDB.SetNX(ctx, k, token, l.TTL).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	return func() {
		// release must run even when the request context is gone
		if err := releaseScript.Run(context.Background(), l.RDB, []string{k}, token).Err(); err != nil {
			glog.Warningf("inflight lock: release %s: %v", k, err)
		}
	}, true, nil
}
