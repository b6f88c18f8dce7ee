package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/earchibald/yoto-smart-stream-sub004/model"

	"github.com/go-redis/redis/v8"
)

const (
	// deviceStateTTL bounds how long a stale snapshot survives without a
	// refresh from the Yoto API or the MQTT bridge.
	deviceStateTTL = 10 * time.Minute

	// devicePresenceTTL is the online-heartbeat window. A device with no
	// event inside the window is reported offline.
	devicePresenceTTL = 90 * time.Second

	deviceIndexKey = "device:index"
)

// DeviceStateStore is the read/write view of last-known device state shared
// by the status endpoint, the Yoto poller and the MQTT bridge.
type DeviceStateStore interface {
	SaveState(ctx context.Context, state model.DeviceState) error
	GetState(ctx context.Context, deviceID string) (*model.DeviceState, error)
	AllStates(ctx context.Context) ([]model.DeviceState, error)
	TouchPresence(ctx context.Context, deviceID string) error
	IsOnline(ctx context.Context, deviceID string) (bool, error)
	RemoveState(ctx context.Context, deviceID string) error
}

// DeviceCache is the Redis-backed DeviceStateStore.
type DeviceCache struct{}

// NewDeviceCache creates a DeviceCache using the global Redis client.
func NewDeviceCache() *DeviceCache {
	return &DeviceCache{}
}

func deviceStateKey(deviceID string) string {
	return fmt.Sprintf("device:state:%s", deviceID)
}

func devicePresenceKey(deviceID string) string {
	return fmt.Sprintf("device:online:%s", deviceID)
}

// SaveState stores a device snapshot and indexes the device id.
func (c *DeviceCache) SaveState(ctx context.Context, state model.DeviceState) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal device state: %w", err)
	}

	pipe := RedisClient.TxPipeline()
	pipe.Set(ctx, deviceStateKey(state.DeviceID), data, deviceStateTTL)
	pipe.SAdd(ctx, deviceIndexKey, state.DeviceID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save device state: %w", err)
	}

	return nil
}

// GetState returns the last-known snapshot of a device, or nil if none.
func (c *DeviceCache) GetState(ctx context.Context, deviceID string) (*model.DeviceState, error) {
	if RedisClient == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	data, err := RedisClient.Get(ctx, deviceStateKey(deviceID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get device state: %w", err)
	}

	var state model.DeviceState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal device state: %w", err)
	}
	return &state, nil
}

// AllStates returns the snapshots of every indexed device, with the online
// flag refreshed from the presence heartbeat. Devices whose state expired
// are dropped from the index on the way.
func (c *DeviceCache) AllStates(ctx context.Context) ([]model.DeviceState, error) {
	if RedisClient == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	ids, err := RedisClient.SMembers(ctx, deviceIndexKey).Result()
	if err != nil {
		if err == redis.Nil {
			return []model.DeviceState{}, nil
		}
		return nil, fmt.Errorf("failed to read device index: %w", err)
	}

	states := make([]model.DeviceState, 0, len(ids))
	for _, id := range ids {
		state, err := c.GetState(ctx, id)
		if err != nil {
			return nil, err
		}
		if state == nil {
			// State expired; unindex the device.
			if err := RedisClient.SRem(ctx, deviceIndexKey, id).Err(); err != nil {
				return nil, fmt.Errorf("failed to unindex device %s: %w", id, err)
			}
			continue
		}

		online, err := c.IsOnline(ctx, id)
		if err != nil {
			return nil, err
		}
		state.Online = online
		states = append(states, *state)
	}

	return states, nil
}

// TouchPresence refreshes the online heartbeat of a device.
func (c *DeviceCache) TouchPresence(ctx context.Context, deviceID string) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	err := RedisClient.Set(ctx, devicePresenceKey(deviceID), time.Now().UnixMilli(), devicePresenceTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to touch device presence: %w", err)
	}
	return nil
}

// IsOnline reports whether the device heartbeat is still fresh.
func (c *DeviceCache) IsOnline(ctx context.Context, deviceID string) (bool, error) {
	if RedisClient == nil {
		return false, fmt.Errorf("Redis client not initialized")
	}

	n, err := RedisClient.Exists(ctx, devicePresenceKey(deviceID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check device presence: %w", err)
	}
	return n > 0, nil
}

// RemoveState deletes a device snapshot and unindexes the device.
func (c *DeviceCache) RemoveState(ctx context.Context, deviceID string) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	pipe := RedisClient.TxPipeline()
	pipe.Del(ctx, deviceStateKey(deviceID))
	pipe.Del(ctx, devicePresenceKey(deviceID))
	pipe.SRem(ctx, deviceIndexKey, deviceID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove device state: %w", err)
	}
	return nil
}
