package ads

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kruthika/companion/internal/timeutil"
)

const (
	deviceKeyPrefix  = "ads:device:"
	sessionKeyPrefix = "ads:session:"
	deviceKeyTTL     = 7 * 24 * time.Hour
)

// KEYS: device hash, session hash.
// ARGV: day, session cap, daily cap, device ttl, session ttl (seconds).
var reserveScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'daily_date') ~= ARGV[1] then
  redis.call('HSET', KEYS[1], 'daily_date', ARGV[1], 'daily_count', '0')
end
if redis.call('HGET', KEYS[2], 'day') ~= ARGV[1] then
  redis.call('HSET', KEYS[2], 'day', ARGV[1], 'count', '0')
end
local daily = tonumber(redis.call('HGET', KEYS[1], 'daily_count') or '0')
local session = tonumber(redis.call('HGET', KEYS[2], 'count') or '0')
local last = redis.call('HGET', KEYS[1], 'last_network') or ''
redis.call('EXPIRE', KEYS[1], ARGV[4])
redis.call('EXPIRE', KEYS[2], ARGV[5])
if session >= tonumber(ARGV[2]) then
  return {daily, session, last, 'session_cap'}
end
if daily >= tonumber(ARGV[3]) then
  return {daily, session, last, 'daily_cap'}
end
redis.call('HINCRBY', KEYS[1], 'daily_count', '1')
redis.call('HINCRBY', KEYS[2], 'count', '1')
return {daily, session, last, ''}
`)

// KEYS: device hash, session hash. ARGV: day.
var releaseScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'daily_date') == ARGV[1] then
  if tonumber(redis.call('HGET', KEYS[1], 'daily_count') or '0') > 0 then
    redis.call('HINCRBY', KEYS[1], 'daily_count', '-1')
  end
end
if redis.call('HGET', KEYS[2], 'day') == ARGV[1] then
  if tonumber(redis.call('HGET', KEYS[2], 'count') or '0') > 0 then
    redis.call('HINCRBY', KEYS[2], 'count', '-1')
  end
end
return 1
`)

// RedisCounterStore keeps daily counters in a per-device hash and session
// counters in a separate key that expires after the session TTL. Cap checks
// run inside Lua scripts so replicas sharing the server cannot overshoot.
type RedisCounterStore struct {
	client     *redis.Client
	sessionTTL time.Duration
}

func NewRedisCounterStore(client *redis.Client, sessionTTL time.Duration) *RedisCounterStore {
	if sessionTTL <= 0 {
		sessionTTL = 12 * time.Hour
	}
	return &RedisCounterStore{client: client, sessionTTL: sessionTTL}
}

func (s *RedisCounterStore) Load(ctx context.Context, ref DeviceRef) (CounterState, error) {
	pipe := s.client.Pipeline()
	device := pipe.HGetAll(ctx, deviceKey(ref))
	session := pipe.HGetAll(ctx, sessionKey(ref))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return CounterState{}, fmt.Errorf("load ad counters: %w", err)
	}

	fields := device.Val()
	var state CounterState
	if raw := fields["daily_date"]; raw != "" {
		day, err := timeutil.ParseDay(raw)
		if err != nil {
			return CounterState{}, fmt.Errorf("load ad counters: %w", err)
		}
		state.DailyDate = day
	}
	state.DailyCount, _ = strconv.Atoi(fields["daily_count"])
	state.LastNetwork = Network(fields["last_network"])
	// Session counts recorded on an earlier day are stale.
	if sf := session.Val(); sf["day"] == fields["daily_date"] {
		state.SessionCount, _ = strconv.Atoi(sf["count"])
	}
	return state, nil
}

func (s *RedisCounterStore) Save(ctx context.Context, ref DeviceRef, state CounterState) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, deviceKey(ref), map[string]interface{}{
		"daily_count":  state.DailyCount,
		"daily_date":   state.DailyDate.String(),
		"last_network": string(state.LastNetwork),
	})
	pipe.Expire(ctx, deviceKey(ref), deviceKeyTTL)
	pipe.HSet(ctx, sessionKey(ref), map[string]interface{}{
		"count": state.SessionCount,
		"day":   state.DailyDate.String(),
	})
	pipe.Expire(ctx, sessionKey(ref), s.sessionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save ad counters: %w", err)
	}
	return nil
}

func (s *RedisCounterStore) Reserve(ctx context.Context, ref DeviceRef, day timeutil.Day, caps Caps) (CounterState, string, error) {
	res, err := reserveScript.Run(ctx, s.client,
		[]string{deviceKey(ref), sessionKey(ref)},
		day.String(), caps.PerSession, caps.PerDay,
		int64(deviceKeyTTL/time.Second), int64(s.sessionTTL/time.Second),
	).Slice()
	if err != nil {
		return CounterState{}, "", fmt.Errorf("reserve ad slot: %w", err)
	}
	if len(res) != 4 {
		return CounterState{}, "", fmt.Errorf("reserve ad slot: unexpected reply %v", res)
	}
	daily, _ := res[0].(int64)
	session, _ := res[1].(int64)
	last, _ := res[2].(string)
	reason, _ := res[3].(string)
	return CounterState{
		DailyCount:   int(daily),
		DailyDate:    day,
		SessionCount: int(session),
		LastNetwork:  Network(last),
	}, reason, nil
}

func (s *RedisCounterStore) Release(ctx context.Context, ref DeviceRef, day timeutil.Day) error {
	if err := releaseScript.Run(ctx, s.client, []string{deviceKey(ref), sessionKey(ref)}, day.String()).Err(); err != nil {
		return fmt.Errorf("release ad slot: %w", err)
	}
	return nil
}

func (s *RedisCounterStore) Commit(ctx context.Context, ref DeviceRef, network Network) error {
	if err := s.client.HSet(ctx, deviceKey(ref), "last_network", string(network)).Err(); err != nil {
		return fmt.Errorf("commit ad network: %w", err)
	}
	return nil
}

func deviceKey(ref DeviceRef) string {
	return deviceKeyPrefix + ref.DeviceID
}

func sessionKey(ref DeviceRef) string {
	return sessionKeyPrefix + ref.DeviceID + ":" + ref.SessionID
}
