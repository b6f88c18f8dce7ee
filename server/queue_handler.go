package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/earchibald/yoto-smart-stream-sub004/cache"
	"github.com/earchibald/yoto-smart-stream-sub004/core/push"
	"github.com/earchibald/yoto-smart-stream-sub004/logger"

	"github.com/gorilla/mux"
)

// QueueHandler dispatches /api/players/{id}/queue by method:
// GET returns the queue, POST appends, DELETE removes one item or clears
// with ?clear=true, PUT reorders or shuffles with ?shuffle=true.
func (h *APIHandler) QueueHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	deviceID := mux.Vars(r)["id"]
	if deviceID == "" {
		respondError(w, http.StatusBadRequest, "Device ID is required")
		return
	}

	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		h.getQueue(ctx, deviceID, w)
	case http.MethodPost:
		h.addToQueue(ctx, deviceID, userID, w, r)
	case http.MethodDelete:
		if r.URL.Query().Get("clear") == "true" {
			h.clearQueue(ctx, deviceID, w)
		} else {
			h.removeFromQueue(ctx, deviceID, w, r)
		}
	case http.MethodPut:
		if r.URL.Query().Get("shuffle") == "true" {
			h.shuffleQueue(ctx, deviceID, w)
		} else {
			h.reorderQueue(ctx, deviceID, w, r)
		}
	default:
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *APIHandler) getQueue(ctx context.Context, deviceID string, w http.ResponseWriter) {
	queue, err := cache.GetQueue(ctx, deviceID)
	if err != nil {
		logger.Error("failed to get queue", logger.ErrorField(err), logger.String("device", deviceID))
		respondError(w, http.StatusInternalServerError, "Failed to get queue")
		return
	}
	if queue == nil {
		queue = []cache.QueueItem{}
	}
	respondJSON(w, http.StatusOK, queue)
}

func (h *APIHandler) addToQueue(ctx context.Context, deviceID string, userID int64, w http.ResponseWriter, r *http.Request) {
	var item cache.QueueItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if item.Title == "" {
		respondError(w, http.StatusBadRequest, "Title is required")
		return
	}
	item.AddedBy = userID

	// Items referencing the local library must point at an existing track.
	if item.TrackID != 0 {
		track, err := h.trackRepo.GetTrackByID(item.TrackID)
		if err != nil {
			logger.Error("failed to look up track", logger.ErrorField(err))
			respondError(w, http.StatusInternalServerError, "Failed to look up track")
			return
		}
		if track == nil {
			respondError(w, http.StatusNotFound, "Track not found")
			return
		}
	}

	if err := cache.AddToQueue(ctx, deviceID, item); err != nil {
		logger.Error("failed to add to queue", logger.ErrorField(err), logger.String("device", deviceID))
		respondError(w, http.StatusInternalServerError, "Failed to add to queue")
		return
	}
	h.broadcastQueue(ctx, deviceID)
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *APIHandler) removeFromQueue(ctx context.Context, deviceID string, w http.ResponseWriter, r *http.Request) {
	position, err := strconv.Atoi(r.URL.Query().Get("position"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Valid position query parameter is required")
		return
	}

	if err := cache.RemoveFromQueue(ctx, deviceID, position); err != nil {
		logger.Warn("failed to remove from queue",
			logger.ErrorField(err),
			logger.String("device", deviceID),
			logger.Int("position", position))
		respondError(w, http.StatusNotFound, "Item not found in queue")
		return
	}
	h.broadcastQueue(ctx, deviceID)
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *APIHandler) clearQueue(ctx context.Context, deviceID string, w http.ResponseWriter) {
	if err := cache.ClearQueue(ctx, deviceID); err != nil {
		logger.Error("failed to clear queue", logger.ErrorField(err), logger.String("device", deviceID))
		respondError(w, http.StatusInternalServerError, "Failed to clear queue")
		return
	}
	h.broadcastQueue(ctx, deviceID)
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *APIHandler) reorderQueue(ctx context.Context, deviceID string, w http.ResponseWriter, r *http.Request) {
	var req struct {
		Positions []int `json:"positions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Positions) == 0 {
		respondError(w, http.StatusBadRequest, "Positions are required")
		return
	}

	if err := cache.UpdateQueueOrder(ctx, deviceID, req.Positions); err != nil {
		logger.Error("failed to reorder queue", logger.ErrorField(err), logger.String("device", deviceID))
		respondError(w, http.StatusInternalServerError, "Failed to reorder queue")
		return
	}
	h.broadcastQueue(ctx, deviceID)
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *APIHandler) shuffleQueue(ctx context.Context, deviceID string, w http.ResponseWriter) {
	if err := cache.ShuffleQueue(ctx, deviceID); err != nil {
		logger.Error("failed to shuffle queue", logger.ErrorField(err), logger.String("device", deviceID))
		respondError(w, http.StatusInternalServerError, "Failed to shuffle queue")
		return
	}
	h.broadcastQueue(ctx, deviceID)
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// broadcastQueue pushes the updated queue to connected dashboards.
func (h *APIHandler) broadcastQueue(ctx context.Context, deviceID string) {
	if h.hub == nil {
		return
	}
	queueCtx, cancel := context.WithTimeout(ctx, time.Second*2)
	defer cancel()

	queue, err := cache.GetQueue(queueCtx, deviceID)
	if err != nil {
		logger.Warn("failed to read queue for broadcast",
			logger.ErrorField(err),
			logger.String("device", deviceID))
		return
	}
	if err := h.hub.BroadcastMessage(push.MsgTypeQueue, deviceID, queue); err != nil {
		logger.Warn("failed to broadcast queue update",
			logger.ErrorField(err),
			logger.String("device", deviceID))
	}
}
