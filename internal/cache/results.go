// Package cache keeps tabulated results of closed elections. Closed elections
// never change, so entries are never invalidated, only expired.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ballotbox/election-service/internal/domain"
)

// ResultsCache stores results by election id.
type ResultsCache interface {
	Get(ctx context.Context, electionID string) (*domain.ElectionResults, bool)
	Set(ctx context.Context, results *domain.ElectionResults)
}

// RedisResultsCache shares results across replicas.
type RedisResultsCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisResultsCache(client *redis.Client, ttl time.Duration) *RedisResultsCache {
	return &RedisResultsCache{client: client, ttl: ttl}
}

func (c *RedisResultsCache) key(electionID string) string {
	return "results:" + electionID
}

func (c *RedisResultsCache) Get(ctx context.Context, electionID string) (*domain.ElectionResults, bool) {
	raw, err := c.client.Get(ctx, c.key(electionID)).Bytes()
	if err != nil {
		return nil, false
	}
	var results domain.ElectionResults
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, false
	}
	return &results, true
}

// Set is best effort; a failed write only costs a recount.
func (c *RedisResultsCache) Set(ctx context.Context, results *domain.ElectionResults) {
	payload, err := json.Marshal(results)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, c.key(results.ElectionID), payload, c.ttl).Err()
}

// MemoryResultsCache is the single-process fallback.
type MemoryResultsCache struct {
	mu      sync.RWMutex
	results map[string]domain.ElectionResults
}

func NewMemoryResultsCache() *MemoryResultsCache {
	return &MemoryResultsCache{results: map[string]domain.ElectionResults{}}
}

func (c *MemoryResultsCache) Get(_ context.Context, electionID string) (*domain.ElectionResults, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.results[electionID]
	if !ok {
		return nil, false
	}
	return &r, true
}

func (c *MemoryResultsCache) Set(_ context.Context, results *domain.ElectionResults) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[results.ElectionID] = *results
}
