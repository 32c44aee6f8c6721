package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"cinemoa/internal/pkg/logger"
	"cinemoa/internal/pkg/redis"
	"cinemoa/internal/service/funding/domain"
	"cinemoa/internal/service/funding/domain/port"
)

const (
	acquireScriptName   = "seat_acquire"
	releaseScriptName   = "seat_release"
	reconcileScriptName = "seat_reconcile"
	confirmScriptName   = "seat_confirm"
	restoreScriptName   = "seat_restore"
)

// RedisHoldStore implements port.SeatHoldStore on Redis. The counter, the
// holder set and the per-hold TTL key are mutated together inside Lua
// scripts, which is what makes acquire/release indivisible under
// contention. Seat conservation is restorable from Redis alone:
// counter + SCARD(holder set) == target seats.
type RedisHoldStore struct {
	client *redis.Client
}

// NewRedisHoldStore loads the seat scripts and enables expired-key
// notifications. A store that cannot deliver expiry notifications would
// leak seats, so that failure is fatal here.
func NewRedisHoldStore(ctx context.Context, client *redis.Client) (*RedisHoldStore, error) {
	scripts := map[string]string{
		acquireScriptName:   acquireScript,
		releaseScriptName:   releaseScript,
		reconcileScriptName: reconcileScript,
		confirmScriptName:   confirmScript,
		restoreScriptName:   restoreScript,
	}
	for name, content := range scripts {
		if err := client.LoadScriptFromContent(name, content); err != nil {
			return nil, errors.Wrapf(err, "load script %s", name)
		}
	}
	if err := client.EnableExpiryNotifications(ctx); err != nil {
		return nil, errors.Wrap(err, "enable keyspace notifications")
	}
	return &RedisHoldStore{client: client}, nil
}

func counterKey(campaignID string) string {
	return fmt.Sprintf("funding:seats:{%s}", campaignID)
}

func holdersKey(campaignID string) string {
	return fmt.Sprintf("funding:holders:{%s}", campaignID)
}

// InitCampaign seeds the counter and clears holder state from any previous
// run of the same campaign ID.
func (s *RedisHoldStore) InitCampaign(ctx context.Context, campaignID string, targetSeats int64) error {
	pipe := s.client.GetClient().Pipeline()
	pipe.Set(ctx, counterKey(campaignID), targetSeats, 0)
	pipe.Del(ctx, holdersKey(campaignID))
	_, err := pipe.Exec(ctx)
	if err != nil {
		return errors.Wrapf(err, "init campaign %s", campaignID)
	}
	return nil
}

func (s *RedisHoldStore) Acquire(ctx context.Context, campaignID, userID string, ttl time.Duration) (port.AcquireResult, error) {
	keys := []string{counterKey(campaignID), holdersKey(campaignID), domain.HoldKey(campaignID, userID)}
	result, err := s.client.RunScript(ctx, acquireScriptName, keys, userID, int(ttl.Seconds()))
	if err != nil {
		return 0, errors.Wrap(err, "run acquire script")
	}
	code, ok := result.(int64)
	if !ok {
		return 0, errors.Errorf("unexpected result type from acquire script: %T", result)
	}
	switch code {
	case 1:
		return port.AcquireOK, nil
	case 0:
		return port.AcquireSoldOut, nil
	case 2:
		return port.AcquireAlreadyHolding, nil
	default:
		return 0, errors.Errorf("unknown result code from acquire script: %d", code)
	}
}

func (s *RedisHoldStore) Release(ctx context.Context, campaignID, userID string) (port.ReleaseResult, error) {
	keys := []string{counterKey(campaignID), holdersKey(campaignID), domain.HoldKey(campaignID, userID)}
	result, err := s.client.RunScript(ctx, releaseScriptName, keys, userID)
	if err != nil {
		return 0, errors.Wrap(err, "run release script")
	}
	code, ok := result.(int64)
	if !ok {
		return 0, errors.Errorf("unexpected result type from release script: %T", result)
	}
	if code == 0 {
		return port.ReleaseNotHolding, nil
	}
	return port.ReleaseOK, nil
}

func (s *RedisHoldStore) Reconcile(ctx context.Context, campaignID, userID string) (bool, int64, error) {
	keys := []string{counterKey(campaignID), holdersKey(campaignID)}
	result, err := s.client.RunScript(ctx, reconcileScriptName, keys, userID)
	if err != nil {
		return false, 0, errors.Wrap(err, "run reconcile script")
	}
	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return false, 0, errors.Errorf("unexpected result shape from reconcile script: %T", result)
	}
	reconciled, ok := values[0].(int64)
	if !ok {
		return false, 0, errors.Errorf("unexpected reconciled flag type: %T", values[0])
	}
	remaining, ok := values[1].(int64)
	if !ok {
		return false, 0, errors.Errorf("unexpected remaining type: %T", values[1])
	}
	return reconciled == 1, remaining, nil
}

func (s *RedisHoldStore) Confirm(ctx context.Context, campaignID, userID string) (bool, error) {
	keys := []string{counterKey(campaignID), holdersKey(campaignID), domain.HoldKey(campaignID, userID)}
	result, err := s.client.RunScript(ctx, confirmScriptName, keys, userID)
	if err != nil {
		return false, errors.Wrap(err, "run confirm script")
	}
	code, ok := result.(int64)
	if !ok {
		return false, errors.Errorf("unexpected result type from confirm script: %T", result)
	}
	return code == 1, nil
}

func (s *RedisHoldStore) Restore(ctx context.Context, campaignID, userID string, ttl time.Duration) error {
	keys := []string{counterKey(campaignID), holdersKey(campaignID), domain.HoldKey(campaignID, userID)}
	if _, err := s.client.RunScript(ctx, restoreScriptName, keys, userID, int(ttl.Seconds())); err != nil {
		return errors.Wrap(err, "run restore script")
	}
	return nil
}

func (s *RedisHoldStore) Remaining(ctx context.Context, campaignID string) (int64, error) {
	value, err := s.client.GetClient().Get(ctx, counterKey(campaignID)).Int64()
	if err != nil {
		return 0, errors.Wrapf(err, "read seat counter for %s", campaignID)
	}
	return value, nil
}

func (s *RedisHoldStore) ActiveHoldCount(ctx context.Context, campaignID string) (int64, error) {
	count, err := s.client.GetClient().SCard(ctx, holdersKey(campaignID)).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "count holders for %s", campaignID)
	}
	return count, nil
}

// SubscribeExpirations forwards expired-key names from the Redis keyspace
// notification channel. The goroutine exits when ctx is cancelled.
func (s *RedisHoldStore) SubscribeExpirations(ctx context.Context) (<-chan string, error) {
	pubsub := s.client.SubscribeExpired(ctx)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, errors.Wrap(err, "subscribe to expiry notifications")
	}

	out := make(chan string, 64)
	go func() {
		defer close(out)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					logger.Ctx(ctx).Warn().Msg("expiry notification channel closed")
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

var acquireScript = `
-- KEYS[1]: remaining-seat counter, e.g. funding:seats:{camp_42}
-- KEYS[2]: holder set, e.g. funding:holders:{camp_42}
-- KEYS[3]: per-hold TTL key, e.g. seat:camp_42:user_7
-- ARGV[1]: user ID
-- ARGV[2]: hold TTL in seconds

if redis.call('sismember', KEYS[2], ARGV[1]) == 1 then
    return 2 -- user already holds a seat
end

local seats = tonumber(redis.call('get', KEYS[1]))
if not seats or seats <= 0 then
    return 0 -- sold out
end

redis.call('decr', KEYS[1])
redis.call('sadd', KEYS[2], ARGV[1])
redis.call('set', KEYS[3], ARGV[1], 'EX', tonumber(ARGV[2]))
return 1
`

var releaseScript = `
-- Explicit release. The holder set decides whether the increment happens,
-- so a release racing an expiry increments the counter exactly once.
if redis.call('srem', KEYS[2], ARGV[1]) == 0 then
    return 0 -- no active hold
end
redis.call('del', KEYS[3])
redis.call('incr', KEYS[1])
return 1
`

var reconcileScript = `
-- Compensating increment after TTL expiry. The hold key is already gone;
-- holder-set membership is the source of truth for "was still active".
-- Replayed notifications find no membership and change nothing.
if redis.call('srem', KEYS[2], ARGV[1]) == 0 then
    return {0, tonumber(redis.call('get', KEYS[1]) or '0')}
end
local remaining = redis.call('incr', KEYS[1])
return {1, remaining}
`

var confirmScript = `
-- Payment confirmation: drop the hold without returning the seat.
if redis.call('srem', KEYS[2], ARGV[1]) == 0 then
    return 0
end
redis.call('del', KEYS[3])
return 1
`

var restoreScript = `
-- Compensation for a confirm whose payment persistence failed: put the
-- holder membership and the TTL key back. The counter is untouched, so
-- conservation holds again with the seat held, not sold.
redis.call('sadd', KEYS[2], ARGV[1])
redis.call('set', KEYS[3], ARGV[1], 'EX', tonumber(ARGV[2]))
return 1
`
