package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/earchibald/yoto-smart-stream-sub004/logger"
	"github.com/earchibald/yoto-smart-stream-sub004/model"

	"github.com/gorilla/mux"
)

// validActions are the control actions accepted by the control endpoint.
var validActions = map[string]bool{
	"play":   true,
	"pause":  true,
	"stop":   true,
	"volume": true,
}

// controlRequest is the body of POST /api/players/{id}/control.
type controlRequest struct {
	Action string `json:"action"`
	Volume *int   `json:"volume,omitempty"`
}

// GetPlayersHandler returns the last-known state of every indexed device.
// This is the status endpoint the player sync controller polls.
func (h *APIHandler) GetPlayersHandler(w http.ResponseWriter, r *http.Request) {
	states, err := h.deviceStore.AllStates(r.Context())
	if err != nil {
		logger.Error("failed to read device states", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to read device states")
		return
	}
	if states == nil {
		states = []model.DeviceState{}
	}
	respondJSON(w, http.StatusOK, states)
}

// ControlPlayerHandler validates and dispatches a control command, then
// optimistically updates the cached state and notifies dashboards.
func (h *APIHandler) ControlPlayerHandler(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["id"]
	if deviceID == "" {
		respondError(w, http.StatusBadRequest, "Device ID is required")
		return
	}

	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !validActions[req.Action] {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Unknown action %q", req.Action))
		return
	}

	var volume *int
	if req.Action == "volume" {
		if req.Volume == nil {
			respondError(w, http.StatusBadRequest, "Volume action requires a volume value")
			return
		}
		v := *req.Volume
		if v < 0 {
			v = 0
		}
		if v > model.MaxVolume {
			v = model.MaxVolume
		}
		volume = &v
	}

	if err := h.dispatcher.SendCommand(r.Context(), deviceID, req.Action, volume); err != nil {
		logger.Warn("control command failed",
			logger.ErrorField(err),
			logger.String("device", deviceID),
			logger.String("action", req.Action))
		respondError(w, http.StatusBadGateway, "Failed to deliver command to device")
		return
	}

	// Reflect the command in the cached state so the next status poll shows
	// it even before the device reports back.
	if state, err := h.deviceStore.GetState(r.Context(), deviceID); err == nil && state != nil {
		switch req.Action {
		case "play":
			state.Playing = true
		case "pause", "stop":
			state.Playing = false
		case "volume":
			state.Volume = *volume
		}
		state.UpdatedAt = time.Now()
		if err := h.deviceStore.SaveState(r.Context(), *state); err != nil {
			logger.Warn("failed to update cached state after command",
				logger.ErrorField(err),
				logger.String("device", deviceID))
		} else if h.hub != nil {
			h.hub.BroadcastState(state)
		}
	}

	logger.Info("control command dispatched",
		logger.String("device", deviceID),
		logger.String("action", req.Action))
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
