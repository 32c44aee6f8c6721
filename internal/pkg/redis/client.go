package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Client wraps go-redis with a named Lua script registry. Scripts are loaded
// once at adapter construction and executed by name afterwards.
type Client struct {
	rdb *redis.Client
	db  int

	mu      sync.RWMutex
	scripts map[string]*redis.Script
}

func NewClient(addr string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, errors.Wrapf(err, "ping redis at %s", addr)
	}
	return &Client{
		rdb:     rdb,
		db:      db,
		scripts: make(map[string]*redis.Script),
	}, nil
}

// LoadScriptFromContent registers a Lua script under the given name.
func (c *Client) LoadScriptFromContent(name, content string) error {
	if content == "" {
		return errors.Errorf("script %q is empty", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[name] = redis.NewScript(content)
	return nil
}

// RunScript executes a previously registered script. go-redis handles the
// EVALSHA/EVAL fallback internally.
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...interface{}) (interface{}, error) {
	c.mu.RLock()
	script, ok := c.scripts[name]
	c.mu.RUnlock()
	if !ok {
		return nil, errors.Errorf("script %q not loaded", name)
	}
	return script.Run(ctx, c.rdb, keys, args...).Result()
}

// GetClient exposes the underlying go-redis client for plain commands.
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// SubscribeExpired subscribes to the key-expiration event channel of the
// client's database. Callers own the returned PubSub and must close it.
func (c *Client) SubscribeExpired(ctx context.Context) *redis.PubSub {
	channel := fmt.Sprintf("__keyevent@%d__:expired", c.db)
	return c.rdb.Subscribe(ctx, channel)
}

// EnableExpiryNotifications turns on keyspace notifications for expired keys.
// Managed Redis offerings often have this preset, so failure is returned to
// the caller to decide whether it is fatal.
func (c *Client) EnableExpiryNotifications(ctx context.Context) error {
	return c.rdb.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
