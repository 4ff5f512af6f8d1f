package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key formats and TTLs for cached prices
const (
	liveKeyFormat = "stock:live:%s"
	prevKeyFormat = "stock:prev:%s"

	LivePriceTTL     = 300 * time.Second
	PreviousCloseTTL = 24 * time.Hour
)

// Cache is a Redis-backed market data cache. Every operation is fail-soft:
// Redis errors degrade to cache misses for readers and logged warnings for
// writers, so a cache outage never takes down an evaluation tick.
type Cache struct {
	client *redis.Client

	mu           sync.RWMutex
	healthy      bool
	failureCount int
	maxFailures  int
}

// NewCache creates a cache and verifies connectivity. A failed initial ping
// returns a cache in degraded mode rather than an error.
func NewCache(addr, password string, db, poolSize int) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     poolSize,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	c := &Cache{
		client:      client,
		healthy:     true,
		maxFailures: 3,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("[CACHE] Redis unreachable at startup, running degraded: %v", err)
		c.healthy = false
	}

	return c
}

// SetLivePrice stores the live price for a symbol with a 300s TTL
func (c *Cache) SetLivePrice(ctx context.Context, symbol string, price float64) {
	c.set(ctx, fmt.Sprintf(liveKeyFormat, symbol), price, LivePriceTTL)
}

// GetLivePrice returns the cached live price for a symbol
func (c *Cache) GetLivePrice(ctx context.Context, symbol string) (float64, bool) {
	return c.get(ctx, fmt.Sprintf(liveKeyFormat, symbol))
}

// SetPreviousClose stores the previous close for a symbol with a 24h TTL
func (c *Cache) SetPreviousClose(ctx context.Context, symbol string, price float64) {
	c.set(ctx, fmt.Sprintf(prevKeyFormat, symbol), price, PreviousCloseTTL)
}

// GetPreviousClose returns the cached previous close for a symbol
func (c *Cache) GetPreviousClose(ctx context.Context, symbol string) (float64, bool) {
	return c.get(ctx, fmt.Sprintf(prevKeyFormat, symbol))
}

// GetLivePrices fetches live prices for many symbols with a single MGET.
// Symbols that are absent, expired, or unparsable are omitted from the result.
func (c *Cache) GetLivePrices(ctx context.Context, symbols []string) map[string]float64 {
	prices := make(map[string]float64, len(symbols))
	if len(symbols) == 0 {
		return prices
	}

	keys := make([]string, len(symbols))
	for i, s := range symbols {
		keys[i] = fmt.Sprintf(liveKeyFormat, s)
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.recordFailure(err)
		return prices
	}
	c.recordSuccess()

	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		price, err := strconv.ParseFloat(s, 64)
		if err != nil {
			continue
		}
		prices[symbols[i]] = price
	}
	return prices
}

// Ping checks Redis connectivity
func (c *Cache) Ping(ctx context.Context) error {
	err := c.client.Ping(ctx).Err()
	if err != nil {
		c.recordFailure(err)
	} else {
		c.recordSuccess()
	}
	return err
}

// Healthy reports whether Redis has been reachable recently
func (c *Cache) Healthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthy
}

// Close releases the Redis client
func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) set(ctx context.Context, key string, price float64, ttl time.Duration) {
	value := strconv.FormatFloat(price, 'f', -1, 64)
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.recordFailure(err)
		log.Printf("[CACHE] Failed to set %s: %v", key, err)
		return
	}
	c.recordSuccess()
}

func (c *Cache) get(ctx context.Context, key string) (float64, bool) {
	value, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.recordFailure(err)
		}
		return 0, false
	}
	c.recordSuccess()

	price, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	return price, true
}

func (c *Cache) recordFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failureCount++
	if c.failureCount >= c.maxFailures && c.healthy {
		c.healthy = false
		log.Printf("[CACHE] Marking Redis unhealthy after %d failures: %v", c.failureCount, err)
	}
}

func (c *Cache) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.healthy {
		log.Printf("[CACHE] Redis recovered")
	}
	c.healthy = true
	c.failureCount = 0
}
