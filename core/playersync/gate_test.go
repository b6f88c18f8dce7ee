package playersync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGateBlocked(t *testing.T) {
	now := time.Now()

	active := &gate{state: gateActive}
	assert.True(t, active.blocked(now))
	assert.True(t, active.blocked(now.Add(time.Hour)), "active gates never time out")

	cooling := &gate{state: gateCooldown, until: now.Add(3 * time.Second)}
	assert.True(t, cooling.blocked(now))
	assert.True(t, cooling.blocked(now.Add(3*time.Second-time.Nanosecond)))
	assert.False(t, cooling.blocked(now.Add(3*time.Second)), "deadline itself is not blocked")

	idle := &gate{state: gateIdle}
	assert.False(t, idle.blocked(now))
}

func TestGateExpired(t *testing.T) {
	now := time.Now()

	assert.False(t, (&gate{state: gateActive}).expired(now))
	assert.False(t, (&gate{state: gateIdle}).expired(now))

	cooling := &gate{state: gateCooldown, until: now.Add(time.Second)}
	assert.False(t, cooling.expired(now))
	assert.True(t, cooling.expired(now.Add(time.Second)))
}

func TestDiffFields(t *testing.T) {
	battery := 50
	prev := DeviceSnapshot{DeviceID: "a", Name: "Kitchen", Volume: 8}
	next := DeviceSnapshot{DeviceID: "a", Name: "Kitchen", Volume: 10, Playing: true, BatteryLevel: &battery}

	changed := diffFields(&prev, &next)
	assert.Equal(t, []Field{FieldPlaying, FieldVolume, FieldBattery}, changed)

	same := next
	assert.Empty(t, diffFields(&next, &same))
}
