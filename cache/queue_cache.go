package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-redis/redis/v8"
)

// QueueItem is one entry in a device's stream queue.
type QueueItem struct {
	TrackID  int64  `json:"trackId,omitempty"` // local library track id
	CardID   string `json:"cardId,omitempty"`  // Yoto card id for catalogue content
	Title    string `json:"title"`
	Artist   string `json:"artist,omitempty"`
	Cover    string `json:"cover,omitempty"`    // cover art URL
	Duration int    `json:"duration,omitempty"` // seconds
	Source   string `json:"source,omitempty"`   // library, card
	Position int    `json:"position"`           // position in the queue
	AddedBy  int64  `json:"addedBy,omitempty"`  // user id
	AddedAt  int64  `json:"addedAt,omitempty"`  // unix millis
}

// GetQueueKey builds the Redis key of a device's stream queue.
func GetQueueKey(deviceID string) string {
	return fmt.Sprintf("stream:queue:%s", deviceID)
}

// AddToQueue appends an item to the end of a device's stream queue.
func AddToQueue(ctx context.Context, deviceID string, item QueueItem) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	queueKey := GetQueueKey(deviceID)

	// Fetch the current queue to determine the new item's position.
	items, err := GetQueue(ctx, deviceID)
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to get current queue: %w", err)
	}

	if len(items) == 0 || err == redis.Nil {
		item.Position = 0
	} else {
		maxPos := 0
		for _, existing := range items {
			if existing.Position > maxPos {
				maxPos = existing.Position
			}
		}
		item.Position = maxPos + 1
	}
	item.AddedAt = time.Now().UnixMilli()

	itemJSON, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal queue item: %w", err)
	}

	// Sorted set keyed by position keeps the queue ordered.
	err = RedisClient.ZAdd(ctx, queueKey, &redis.Z{
		Score:  float64(item.Position),
		Member: itemJSON,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to add item to queue: %w", err)
	}

	err = RedisClient.Expire(ctx, queueKey, 24*time.Hour).Err()
	if err != nil {
		return fmt.Errorf("failed to set queue expiration: %w", err)
	}

	return nil
}

// RemoveFromQueue removes the item at the given position from a device's
// queue and rebases the positions of the items behind it.
func RemoveFromQueue(ctx context.Context, deviceID string, position int) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	queueKey := GetQueueKey(deviceID)

	items, err := GetQueue(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("failed to get queue: %w", err)
	}

	for i, item := range items {
		if item.Position == position {
			itemJSON, err := json.Marshal(item)
			if err != nil {
				return fmt.Errorf("failed to marshal queue item: %w", err)
			}

			err = RedisClient.ZRem(ctx, queueKey, itemJSON).Err()
			if err != nil {
				return fmt.Errorf("failed to remove item from queue: %w", err)
			}

			// Rebase trailing positions if we removed from the middle.
			if i < len(items)-1 {
				if err := rebaseQueue(ctx, deviceID); err != nil {
					return fmt.Errorf("failed to rebase queue: %w", err)
				}
			}

			return nil
		}
	}

	return fmt.Errorf("item not found in queue at position %d", position)
}

// GetQueue returns a device's stream queue in playback order.
func GetQueue(ctx context.Context, deviceID string) ([]QueueItem, error) {
	if RedisClient == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	queueKey := GetQueueKey(deviceID)

	result, err := RedisClient.ZRangeByScore(ctx, queueKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "+inf",
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return []QueueItem{}, nil
		}
		return nil, fmt.Errorf("failed to get queue: %w", err)
	}

	var queue []QueueItem
	for _, itemJSON := range result {
		var item QueueItem
		if err := json.Unmarshal([]byte(itemJSON), &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal queue item: %w", err)
		}
		queue = append(queue, item)
	}

	return queue, nil
}

// ClearQueue empties a device's stream queue.
func ClearQueue(ctx context.Context, deviceID string) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	queueKey := GetQueueKey(deviceID)
	err := RedisClient.Del(ctx, queueKey).Err()
	if err != nil {
		return fmt.Errorf("failed to clear queue: %w", err)
	}

	return nil
}

// UpdateQueueOrder rewrites a device's queue in the given order. The order
// is a permutation of current positions, as produced by the dashboard's
// drag-and-drop editor.
func UpdateQueueOrder(ctx context.Context, deviceID string, positions []int) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	items, err := GetQueue(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("failed to get queue: %w", err)
	}

	itemsByPos := make(map[int]QueueItem, len(items))
	for _, item := range items {
		itemsByPos[item.Position] = item
	}

	if err := ClearQueue(ctx, deviceID); err != nil {
		return fmt.Errorf("failed to clear queue before reordering: %w", err)
	}

	queueKey := GetQueueKey(deviceID)
	for i, pos := range positions {
		item, exists := itemsByPos[pos]
		if !exists {
			continue
		}
		item.Position = i
		itemJSON, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal queue item: %w", err)
		}

		err = RedisClient.ZAdd(ctx, queueKey, &redis.Z{
			Score:  float64(i),
			Member: itemJSON,
		}).Err()
		if err != nil {
			return fmt.Errorf("failed to add item to reordered queue: %w", err)
		}
	}

	err = RedisClient.Expire(ctx, queueKey, 24*time.Hour).Err()
	if err != nil {
		return fmt.Errorf("failed to set queue expiration: %w", err)
	}

	return nil
}

// ShuffleQueue randomizes the order of a device's stream queue.
func ShuffleQueue(ctx context.Context, deviceID string) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	items, err := GetQueue(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("failed to get queue: %w", err)
	}

	if len(items) <= 1 {
		return nil
	}

	positions := make([]int, len(items))
	for i, item := range items {
		positions[i] = item.Position
	}

	// Fisher-Yates shuffle.
	for i := len(positions) - 1; i > 0; i-- {
		j := rand.Intn(i + 1)
		positions[i], positions[j] = positions[j], positions[i]
	}

	return UpdateQueueOrder(ctx, deviceID, positions)
}

// rebaseQueue rewrites positions to 0..n-1 after a removal.
func rebaseQueue(ctx context.Context, deviceID string) error {
	items, err := GetQueue(ctx, deviceID)
	if err != nil {
		return err
	}

	queueKey := GetQueueKey(deviceID)
	err = RedisClient.Del(ctx, queueKey).Err()
	if err != nil {
		return err
	}

	for i, item := range items {
		item.Position = i
		itemJSON, err := json.Marshal(item)
		if err != nil {
			return err
		}

		err = RedisClient.ZAdd(ctx, queueKey, &redis.Z{
			Score:  float64(i),
			Member: itemJSON,
		}).Err()
		if err != nil {
			return err
		}
	}

	return nil
}
