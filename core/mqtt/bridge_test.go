package mqtt

import (
	"testing"

	"github.com/earchibald/yoto-smart-stream-sub004/model"

	"github.com/stretchr/testify/assert"
)

func TestDeviceIDFromTopic(t *testing.T) {
	assert.Equal(t, "dev-1", deviceIDFromTopic("yoto/dev-1/events"))
	assert.Equal(t, "y0M3", deviceIDFromTopic("yoto/y0M3/status/events"))
	assert.Equal(t, "", deviceIDFromTopic("yoto/dev-1/state"))
	assert.Equal(t, "", deviceIDFromTopic("other/dev-1/events"))
	assert.Equal(t, "", deviceIDFromTopic("yoto/events"))
}

func TestMergeEventPartialUpdate(t *testing.T) {
	battery := 70
	state := &model.DeviceState{
		DeviceID:     "dev-1",
		Name:         "Kitchen",
		Online:       false,
		Playing:      true,
		Volume:       8,
		BatteryLevel: &battery,
	}

	vol := 10
	mergeEvent(state, &eventPayload{Volume: &vol})

	// Only the published field changes; publishing implies reachability.
	assert.Equal(t, 10, state.Volume)
	assert.True(t, state.Online)
	assert.True(t, state.Playing)
	assert.Equal(t, "Kitchen", state.Name)
	assert.Equal(t, 70, *state.BatteryLevel)
}

func TestMergeEventClampsVolume(t *testing.T) {
	state := &model.DeviceState{DeviceID: "dev-1"}

	high := 99
	mergeEvent(state, &eventPayload{Volume: &high})
	assert.Equal(t, model.MaxVolume, state.Volume)

	low := -4
	mergeEvent(state, &eventPayload{Volume: &low})
	assert.Equal(t, 0, state.Volume)
}

func TestMergeEventExplicitOffline(t *testing.T) {
	state := &model.DeviceState{DeviceID: "dev-1", Online: true}

	offline := false
	mergeEvent(state, &eventPayload{Online: &offline})
	assert.False(t, state.Online)
}

func TestMergeEventOptionalFields(t *testing.T) {
	state := &model.DeviceState{DeviceID: "dev-1"}

	card := "card-9"
	track := "Bedtime Story"
	mergeEvent(state, &eventPayload{ActiveCard: &card, TrackTitle: &track})

	assert.Equal(t, "card-9", *state.ActiveCard)
	assert.Equal(t, "Bedtime Story", *state.TrackTitle)
	assert.Nil(t, state.ChapterTitle)
}
