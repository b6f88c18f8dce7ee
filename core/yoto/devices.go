package yoto

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// DeviceInfo is one player as returned by the device listing endpoint.
type DeviceInfo struct {
	DeviceID    string `json:"deviceId"`
	Name        string `json:"name"`
	Online      bool   `json:"online"`
	DeviceType  string `json:"deviceType"`
	DeviceModel string `json:"deviceModel"`
}

// DeviceStatus is the detailed playback status of one player.
type DeviceStatus struct {
	DeviceID     string  `json:"deviceId"`
	Online       bool    `json:"online"`
	Playing      bool    `json:"playing"`
	Volume       int     `json:"volume"`
	BatteryLevel *int    `json:"batteryLevel,omitempty"`
	ActiveCard   *string `json:"activeCard,omitempty"`
	ChapterTitle *string `json:"chapterTitle,omitempty"`
	TrackTitle   *string `json:"trackTitle,omitempty"`
}

type devicesResponse struct {
	Devices []DeviceInfo `json:"devices"`
}

type deviceStatusResponse struct {
	Device DeviceStatus `json:"device"`
}

// Devices lists all players bound to the account.
func (c *Client) Devices(ctx context.Context) ([]DeviceInfo, error) {
	var resp devicesResponse
	if err := c.doJSON(ctx, "GET", "/device-v2/devices/mine", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return resp.Devices, nil
}

// Status fetches the detailed status of one player.
func (c *Client) Status(ctx context.Context, deviceID string) (*DeviceStatus, error) {
	var resp deviceStatusResponse
	path := "/device-v2/" + url.PathEscape(deviceID) + "/status"
	if err := c.doJSON(ctx, "GET", path, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch status of device %s: %w", deviceID, err)
	}
	resp.Device.DeviceID = deviceID
	return &resp.Device, nil
}

// SendCommand dispatches a control command to a player. Action is one of
// play, pause, stop or volume; volume carries the target level for the
// volume action and is nil otherwise.
func (c *Client) SendCommand(ctx context.Context, deviceID string, action string, volume *int) error {
	payload := map[string]interface{}{
		"command": action,
	}
	if volume != nil {
		payload["volume"] = *volume
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}

	path := "/device-v2/" + url.PathEscape(deviceID) + "/command"
	if err := c.doJSON(ctx, "POST", path, strings.NewReader(string(body)), nil); err != nil {
		return fmt.Errorf("failed to send %s command to device %s: %w", action, deviceID, err)
	}
	return nil
}
