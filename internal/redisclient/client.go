package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/reserve_stock.lua
var reserveStockScript string

//go:embed scripts/release_stock.lua
var releaseStockScript string

//go:embed scripts/commit_stock.lua
var commitStockScript string

type Client struct {
	rdb           *redis.Client
	reserveScript *redis.Script
	releaseScript *redis.Script
	commitScript  *redis.Script
}

// Snapshot is the cached quantity view kept in a per-product hash.
type Snapshot struct {
	Total     int
	Reserved  int
	Available int
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:           rdb,
		reserveScript: redis.NewScript(reserveStockScript),
		releaseScript: redis.NewScript(releaseStockScript),
		commitScript:  redis.NewScript(commitStockScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func inventoryKey(productID int64) string {
	return fmt.Sprintf("inventory:%d", productID)
}

// RoomChannel is the pub/sub channel carrying one store's room events.
func RoomChannel(storeID int64) string {
	return fmt.Sprintf("store:%d:events", storeID)
}

// RoomChannelPattern matches every store's room channel.
const RoomChannelPattern = "store:*:events"

// MirrorReserve applies a reservation to the cached hash, guarded the same
// way as the database update. The cache is advisory; a miss or failure here
// never blocks the ledger.
func (c *Client) MirrorReserve(ctx context.Context, productID int64, quantity int) (bool, error) {
	result, err := c.reserveScript.Run(ctx, c.rdb, []string{inventoryKey(productID)}, quantity).Result()
	if err != nil {
		return false, fmt.Errorf("reserve stock script failed: %w", err)
	}

	status, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}
	return status == 1, nil
}

// MirrorRelease returns reserved units to the cached hash, clamped at zero.
func (c *Client) MirrorRelease(ctx context.Context, productID int64, quantity int) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{inventoryKey(productID)}, quantity).Result()
	if err != nil {
		return fmt.Errorf("release stock script failed: %w", err)
	}
	return nil
}

// MirrorCommit removes sold units from the cached hash.
func (c *Client) MirrorCommit(ctx context.Context, productID int64, quantity int) error {
	_, err := c.commitScript.Run(ctx, c.rdb, []string{inventoryKey(productID)}, quantity).Result()
	if err != nil {
		return fmt.Errorf("commit stock script failed: %w", err)
	}
	return nil
}

// SetSnapshot overwrites the cached hash from authoritative ledger values.
func (c *Client) SetSnapshot(ctx context.Context, productID int64, total, reserved int) error {
	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, inventoryKey(productID), "total", total)
	pipe.HSet(ctx, inventoryKey(productID), "reserved", reserved)
	pipe.HSet(ctx, inventoryKey(productID), "available", total-reserved)

	_, err := pipe.Exec(ctx)
	return err
}

// GetSnapshot retrieves the cached quantity view. A cache miss returns
// (nil, nil); callers fall back to the ledger.
func (c *Client) GetSnapshot(ctx context.Context, productID int64) (*Snapshot, error) {
	result, err := c.rdb.HGetAll(ctx, inventoryKey(productID)).Result()
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, nil
	}

	snap := &Snapshot{}
	snap.Total, _ = strconv.Atoi(result["total"])
	snap.Reserved, _ = strconv.Atoi(result["reserved"])
	snap.Available, _ = strconv.Atoi(result["available"])
	return snap, nil
}

// PublishRoomEvent fans a serialized event out to everyone subscribed to the
// store's channel, on this instance or any other.
func (c *Client) PublishRoomEvent(ctx context.Context, storeID int64, payload []byte) error {
	return c.rdb.Publish(ctx, RoomChannel(storeID), payload).Err()
}

// SubscribeRooms opens a pattern subscription over all store room channels.
func (c *Client) SubscribeRooms(ctx context.Context) *redis.PubSub {
	return c.rdb.PSubscribe(ctx, RoomChannelPattern)
}

// SetIdempotencyKey stores an idempotency key with TTL
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("idempotency:%s", key), value, ttl).Err()
}

// CheckIdempotencyKey checks if an idempotency key exists
func (c *Client) CheckIdempotencyKey(ctx context.Context, key string) (bool, error) {
	result, err := c.rdb.Exists(ctx, fmt.Sprintf("idempotency:%s", key)).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}
