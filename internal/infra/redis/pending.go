package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PendingCheck records a transaction whose single automatic confirmation
// check did not reach the confirmed state. Confirmation is never retried
// automatically; this queue exists so an operator (cmd/admin) can re-invoke
// the check explicitly.
type PendingCheck struct {
	Hash        string `json:"hash"`
	ProviderID  string `json:"provider_id"`
	Error       string `json:"error_msg,omitempty"`
	Attempts    int    `json:"attempts"`
	LastAttempt int64  `json:"last_attempt"`
}

// PendingCheckQueue implements the queue on Redis.
type PendingCheckQueue struct {
	rdb *redis.Client
}

// NewPendingCheckQueue creates a Redis-backed pending check queue.
func NewPendingCheckQueue(client *Client) *PendingCheckQueue {
	return &PendingCheckQueue{rdb: client.rdb}
}

// Key helpers
func (q *PendingCheckQueue) queueKey() string {
	return "pending_checks"
}

func (q *PendingCheckQueue) checkKey(hash string) string {
	return fmt.Sprintf("pending_check:%s", hash)
}

// Add records a pending check.
func (q *PendingCheckQueue) Add(ctx context.Context, pc *PendingCheck) error {
	data, err := json.Marshal(pc)
	if err != nil {
		return fmt.Errorf("failed to marshal pending check: %w", err)
	}

	if err := q.rdb.Set(ctx, q.checkKey(pc.Hash), data, 7*24*time.Hour).Err(); err != nil {
		return fmt.Errorf("failed to set pending check: %w", err)
	}

	// Sorted set ordered by last attempt time, oldest first.
	if err := q.rdb.ZAdd(ctx, q.queueKey(), redis.Z{
		Score:  float64(pc.LastAttempt),
		Member: pc.Hash,
	}).Err(); err != nil {
		return fmt.Errorf("failed to add to queue: %w", err)
	}
	return nil
}

// Next returns the oldest pending check, or nil when the queue is empty.
func (q *PendingCheckQueue) Next(ctx context.Context) (*PendingCheck, error) {
	results, err := q.rdb.ZRange(ctx, q.queueKey(), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}
	hash := results[0]

	data, err := q.rdb.Get(ctx, q.checkKey(hash)).Bytes()
	if err == redis.Nil {
		// Data expired but hash still queued, drop it.
		q.rdb.ZRem(ctx, q.queueKey(), hash)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending check: %w", err)
	}

	var pc PendingCheck
	if err := json.Unmarshal(data, &pc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending check: %w", err)
	}
	return &pc, nil
}

// Remove deletes a pending check after it has been resolved.
func (q *PendingCheckQueue) Remove(ctx context.Context, hash string) error {
	if err := q.rdb.ZRem(ctx, q.queueKey(), hash).Err(); err != nil {
		return fmt.Errorf("zrem failed: %w", err)
	}
	return q.rdb.Del(ctx, q.checkKey(hash)).Err()
}

// Len returns the number of queued checks.
func (q *PendingCheckQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.ZCard(ctx, q.queueKey()).Result()
}
