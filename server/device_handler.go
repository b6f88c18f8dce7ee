package server

import (
	"net/http"

	"github.com/earchibald/yoto-smart-stream-sub004/logger"
	"github.com/earchibald/yoto-smart-stream-sub004/model"

	"github.com/gorilla/mux"
)

// GetDevicesHandler lists the paired-device registry.
func (h *APIHandler) GetDevicesHandler(w http.ResponseWriter, r *http.Request) {
	devices, err := h.deviceRepo.GetAllDevices()
	if err != nil {
		logger.Error("failed to list devices", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to list devices")
		return
	}
	if devices == nil {
		devices = []*model.Device{}
	}
	respondJSON(w, http.StatusOK, devices)
}

// DeleteDeviceHandler unpairs a device: removes it from the registry and
// drops its cached state.
func (h *APIHandler) DeleteDeviceHandler(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["id"]
	if deviceID == "" {
		respondError(w, http.StatusBadRequest, "Device ID is required")
		return
	}

	if err := h.deviceRepo.DeleteDevice(deviceID); err != nil {
		logger.Error("failed to delete device", logger.ErrorField(err), logger.String("device", deviceID))
		respondError(w, http.StatusInternalServerError, "Failed to delete device")
		return
	}
	if err := h.deviceStore.RemoveState(r.Context(), deviceID); err != nil {
		logger.Warn("failed to drop cached device state",
			logger.ErrorField(err),
			logger.String("device", deviceID))
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
