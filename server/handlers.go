package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/earchibald/yoto-smart-stream-sub004/cache"
	"github.com/earchibald/yoto-smart-stream-sub004/config"
	"github.com/earchibald/yoto-smart-stream-sub004/core/push"
	"github.com/earchibald/yoto-smart-stream-sub004/core/yoto"
	"github.com/earchibald/yoto-smart-stream-sub004/logger"
	"github.com/earchibald/yoto-smart-stream-sub004/repository"
)

// CommandDispatcher delivers control commands to the upstream device API.
// The Yoto client implements it; tests substitute a fake.
type CommandDispatcher interface {
	SendCommand(ctx context.Context, deviceID string, action string, volume *int) error
}

// CardCatalog looks up content cards in the upstream account library. The
// Yoto client implements it; tests substitute a fake.
type CardCatalog interface {
	Card(ctx context.Context, cardID string) (*yoto.Card, error)
	Cards(ctx context.Context) ([]yoto.Card, error)
}

// APIHandler carries the dependencies of all HTTP handlers.
type APIHandler struct {
	trackRepo   repository.TrackRepository
	userRepo    repository.UserRepository
	deviceRepo  repository.DeviceRepository
	deviceStore cache.DeviceStateStore
	dispatcher  CommandDispatcher
	catalog     CardCatalog
	hub         *push.Hub
	cfg         *config.Config
}

// NewAPIHandler creates the API handler set.
func NewAPIHandler(
	trackRepo repository.TrackRepository,
	userRepo repository.UserRepository,
	deviceRepo repository.DeviceRepository,
	deviceStore cache.DeviceStateStore,
	dispatcher CommandDispatcher,
	catalog CardCatalog,
	hub *push.Hub,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		trackRepo:   trackRepo,
		userRepo:    userRepo,
		deviceRepo:  deviceRepo,
		deviceStore: deviceStore,
		dispatcher:  dispatcher,
		catalog:     catalog,
		hub:         hub,
		cfg:         cfg,
	}
}

// respondJSON writes a JSON response with the given status.
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to encode response", logger.ErrorField(err))
	}
}

// respondError writes a JSON error body with the given status.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
