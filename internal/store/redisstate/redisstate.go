// Package redisstate guards room codes and per-room slots across
// processes. A single-instance deployment works without it.
package redisstate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/calldeck/calldeck/internal/domain"
)

type Client struct {
	rdb *redis.Client
}

func Open(ctx context.Context, addr string) (*Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

func (c *Client) Close() error { return c.rdb.Close() }

// Redis returns the underlying client for collaborators (asynq shares
// the same instance).
func (c *Client) Redis() *redis.Client { return c.rdb }

func codeKey(code domain.RoomCode) string {
	return "calldeck:roomcode:" + string(code)
}

// Reserve claims a room code until Release or TTL expiry. The TTL
// prevents leaked codes when a process dies mid-call.
func (c *Client) Reserve(ctx context.Context, code domain.RoomCode, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, codeKey(code), 1, ttl).Result()
}

func (c *Client) Release(ctx context.Context, code domain.RoomCode) error {
	return c.rdb.Del(ctx, codeKey(code)).Err()
}

var slotAcquireScript = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
else
  if redis.call('PTTL', KEYS[1]) < 0 then
    redis.call('PEXPIRE', KEYS[1], ARGV[2])
  end
end

if current > tonumber(ARGV[1]) then
  redis.call('DECR', KEYS[1])
  return 0
end
return 1
`)

var slotReleaseScript = redis.NewScript(`
local current = redis.call('DECR', KEYS[1])
if current <= 0 then
  redis.call('DEL', KEYS[1])
end
return 1
`)

func slotKey(code domain.RoomCode) string {
	return "calldeck:roomslots:" + string(code)
}

// AcquireSlot atomically claims one participant slot in a room, up to
// limit. The TTL bounds leakage if a process crashes holding slots.
func (c *Client) AcquireSlot(ctx context.Context, code domain.RoomCode, limit int, ttl time.Duration) (bool, error) {
	if limit <= 0 {
		return false, fmt.Errorf("limit must be > 0")
	}
	res, err := slotAcquireScript.Run(ctx, c.rdb, []string{slotKey(code)}, limit, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (c *Client) ReleaseSlot(ctx context.Context, code domain.RoomCode) error {
	_, err := slotReleaseScript.Run(ctx, c.rdb, []string{slotKey(code)}).Result()
	return err
}

// ResetSlots drops the whole slot counter, used when a room is torn
// down with members still counted.
func (c *Client) ResetSlots(ctx context.Context, code domain.RoomCode) error {
	return c.rdb.Del(ctx, slotKey(code)).Err()
}
