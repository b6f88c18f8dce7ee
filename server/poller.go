package server

import (
	"context"
	"time"

	"github.com/earchibald/yoto-smart-stream-sub004/cache"
	"github.com/earchibald/yoto-smart-stream-sub004/core/push"
	"github.com/earchibald/yoto-smart-stream-sub004/core/yoto"
	"github.com/earchibald/yoto-smart-stream-sub004/logger"
	"github.com/earchibald/yoto-smart-stream-sub004/model"
	"github.com/earchibald/yoto-smart-stream-sub004/repository"
)

// StatusPoller periodically pulls device status from the Yoto cloud into
// the state cache and the device registry. Between its cycles the MQTT
// bridge keeps the cache fresh from pushed events.
type StatusPoller struct {
	client     *yoto.Client
	store      cache.DeviceStateStore
	deviceRepo repository.DeviceRepository
	hub        *push.Hub
	interval   time.Duration

	stop chan struct{}
	done chan struct{}
}

// NewStatusPoller creates a poller refreshing every interval.
func NewStatusPoller(
	client *yoto.Client,
	store cache.DeviceStateStore,
	deviceRepo repository.DeviceRepository,
	hub *push.Hub,
	interval time.Duration,
) *StatusPoller {
	return &StatusPoller{
		client:     client,
		store:      store,
		deviceRepo: deviceRepo,
		hub:        hub,
		interval:   interval,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start launches the poll loop. The first refresh runs immediately.
func (p *StatusPoller) Start() {
	go p.run()
}

// Stop terminates the poll loop and waits for it to exit.
func (p *StatusPoller) Stop() {
	close(p.stop)
	<-p.done
}

func (p *StatusPoller) run() {
	defer close(p.done)

	p.refresh()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.refresh()
		case <-p.stop:
			return
		}
	}
}

// refresh pulls the device list and per-device status. One failing device
// does not abort the cycle.
func (p *StatusPoller) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), p.interval)
	defer cancel()

	devices, err := p.client.Devices(ctx)
	if err != nil {
		logger.Warn("device list refresh failed", logger.ErrorField(err))
		return
	}

	for _, dev := range devices {
		status, err := p.client.Status(ctx, dev.DeviceID)
		if err != nil {
			logger.Warn("device status refresh failed",
				logger.ErrorField(err),
				logger.String("device", dev.DeviceID))
			continue
		}

		state := model.DeviceState{
			DeviceID:     dev.DeviceID,
			Name:         dev.Name,
			Online:       status.Online,
			Playing:      status.Playing,
			Volume:       status.Volume,
			BatteryLevel: status.BatteryLevel,
			ActiveCard:   status.ActiveCard,
			ChapterTitle: status.ChapterTitle,
			TrackTitle:   status.TrackTitle,
			UpdatedAt:    time.Now(),
		}
		if state.Volume > model.MaxVolume {
			state.Volume = model.MaxVolume
		}

		if err := p.store.SaveState(ctx, state); err != nil {
			logger.Warn("failed to cache device state",
				logger.ErrorField(err),
				logger.String("device", dev.DeviceID))
			continue
		}
		if status.Online {
			if err := p.store.TouchPresence(ctx, dev.DeviceID); err != nil {
				logger.Warn("failed to touch device presence",
					logger.ErrorField(err),
					logger.String("device", dev.DeviceID))
			}
		}

		record := &model.Device{
			ID:     dev.DeviceID,
			Name:   dev.Name,
			Family: dev.DeviceModel,
		}
		if err := p.deviceRepo.UpsertDevice(record); err != nil {
			logger.Warn("failed to upsert device registry entry",
				logger.ErrorField(err),
				logger.String("device", dev.DeviceID))
		} else if status.Online {
			if err := p.deviceRepo.TouchLastSeen(dev.DeviceID, time.Now()); err != nil {
				logger.Warn("failed to update device last-seen",
					logger.ErrorField(err),
					logger.String("device", dev.DeviceID))
			}
		}

		if p.hub != nil {
			p.hub.BroadcastState(&state)
		}
	}
}
