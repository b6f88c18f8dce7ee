package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/earchibald/yoto-smart-stream-sub004/cache"
	"github.com/earchibald/yoto-smart-stream-sub004/config"
	"github.com/earchibald/yoto-smart-stream-sub004/logger"
	"github.com/earchibald/yoto-smart-stream-sub004/model"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// StateBroadcaster receives device states merged from MQTT events. The push
// hub implements it.
type StateBroadcaster interface {
	BroadcastState(state *model.DeviceState)
}

// eventPayload is the device event published on yoto/{deviceId}/events.
// Players publish partial updates; absent fields leave cached state alone.
type eventPayload struct {
	Online       *bool   `json:"online,omitempty"`
	Playing      *bool   `json:"playing,omitempty"`
	Volume       *int    `json:"volume,omitempty"`
	BatteryLevel *int    `json:"batteryLevel,omitempty"`
	ActiveCard   *string `json:"activeCard,omitempty"`
	ChapterTitle *string `json:"chapterTitle,omitempty"`
	TrackTitle   *string `json:"trackTitle,omitempty"`
	Name         *string `json:"name,omitempty"`
}

// Bridge subscribes to player event topics and merges the payloads into the
// device state cache, so dashboards see changes between status polls.
type Bridge struct {
	client      paho.Client
	topic       string
	store       cache.DeviceStateStore
	broadcaster StateBroadcaster
}

// NewBridge creates a Bridge from configuration. Call Start to connect.
func NewBridge(cfg *config.Config, store cache.DeviceStateStore, broadcaster StateBroadcaster) *Bridge {
	b := &Bridge{
		topic:       cfg.MQTTTopic,
		store:       store,
		broadcaster: broadcaster,
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.MQTTBrokerURL).
		SetClientID(cfg.MQTTClientID).
		SetUsername(cfg.MQTTUsername).
		SetPassword(cfg.MQTTPassword).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Second * 5).
		SetKeepAlive(time.Second * 30).
		SetOnConnectHandler(b.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn("mqtt connection lost", logger.ErrorField(err))
		})

	b.client = paho.NewClient(opts)
	return b
}

// Start connects to the broker. Subscription happens in the connect handler
// so it survives reconnects.
func (b *Bridge) Start() error {
	token := b.client.Connect()
	if !token.WaitTimeout(time.Second * 10) {
		return fmt.Errorf("mqtt connect timed out")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect failed: %w", err)
	}
	return nil
}

// Stop disconnects from the broker, allowing in-flight work to finish.
func (b *Bridge) Stop() {
	b.client.Disconnect(250)
}

func (b *Bridge) onConnect(client paho.Client) {
	logger.Info("mqtt connected", logger.String("topic", b.topic))
	token := client.Subscribe(b.topic, 1, b.handleEvent)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			logger.Error("mqtt subscribe failed",
				logger.ErrorField(err),
				logger.String("topic", b.topic))
		}
	}()
}

func (b *Bridge) handleEvent(_ paho.Client, msg paho.Message) {
	deviceID := deviceIDFromTopic(msg.Topic())
	if deviceID == "" {
		logger.Warn("mqtt event on unexpected topic", logger.String("topic", msg.Topic()))
		return
	}

	var payload eventPayload
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		logger.Warn("invalid mqtt event payload",
			logger.ErrorField(err),
			logger.String("device", deviceID))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	state, err := b.store.GetState(ctx, deviceID)
	if err != nil {
		logger.Warn("failed to load cached device state",
			logger.ErrorField(err),
			logger.String("device", deviceID))
		return
	}
	if state == nil {
		state = &model.DeviceState{DeviceID: deviceID}
	}

	mergeEvent(state, &payload)
	state.UpdatedAt = time.Now()

	if err := b.store.SaveState(ctx, *state); err != nil {
		logger.Warn("failed to save device state",
			logger.ErrorField(err),
			logger.String("device", deviceID))
		return
	}
	if err := b.store.TouchPresence(ctx, deviceID); err != nil {
		logger.Warn("failed to touch device presence",
			logger.ErrorField(err),
			logger.String("device", deviceID))
	}

	if b.broadcaster != nil {
		b.broadcaster.BroadcastState(state)
	}
}

func mergeEvent(state *model.DeviceState, payload *eventPayload) {
	if payload.Name != nil {
		state.Name = *payload.Name
	}
	if payload.Online != nil {
		state.Online = *payload.Online
	} else {
		// The device just published, so it is reachable.
		state.Online = true
	}
	if payload.Playing != nil {
		state.Playing = *payload.Playing
	}
	if payload.Volume != nil {
		v := *payload.Volume
		if v < 0 {
			v = 0
		}
		if v > model.MaxVolume {
			v = model.MaxVolume
		}
		state.Volume = v
	}
	if payload.BatteryLevel != nil {
		state.BatteryLevel = payload.BatteryLevel
	}
	if payload.ActiveCard != nil {
		state.ActiveCard = payload.ActiveCard
	}
	if payload.ChapterTitle != nil {
		state.ChapterTitle = payload.ChapterTitle
	}
	if payload.TrackTitle != nil {
		state.TrackTitle = payload.TrackTitle
	}
}

// deviceIDFromTopic extracts the device ID from yoto/{deviceId}/events.
func deviceIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[0] != "yoto" || parts[len(parts)-1] != "events" {
		return ""
	}
	return parts[1]
}
