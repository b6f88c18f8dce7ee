package model

import "time"

// Device is a paired Yoto player in the registry.
type Device struct {
	ID         string    `gorm:"primaryKey;size:64" json:"deviceId"`
	Name       string    `gorm:"size:255" json:"name"`
	Family     string    `gorm:"size:64" json:"family"` // hardware family, e.g. v2, mini
	OwnerID    int64     `gorm:"index" json:"ownerId"`
	LastSeenAt time.Time `json:"lastSeenAt"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// TableName maps Device to the devices table.
func (Device) TableName() string {
	return "devices"
}

// DeviceState is the last-known runtime state of a device, assembled from
// the Yoto API and MQTT events. The JSON shape is the status endpoint's
// wire format consumed by the player sync controller.
type DeviceState struct {
	DeviceID     string    `json:"deviceId"`
	Name         string    `json:"name"`
	Online       bool      `json:"online"`
	Playing      bool      `json:"playing"`
	Volume       int       `json:"volume"` // 0..16 per device firmware
	BatteryLevel *int      `json:"batteryLevel,omitempty"`
	ActiveCard   *string   `json:"activeCard,omitempty"`
	ChapterTitle *string   `json:"chapterTitle,omitempty"`
	TrackTitle   *string   `json:"trackTitle,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// MaxVolume is the upper bound of the device volume range.
const MaxVolume = 16
