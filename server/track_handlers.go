package server

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/earchibald/yoto-smart-stream-sub004/logger"
	"github.com/earchibald/yoto-smart-stream-sub004/model"
	"github.com/earchibald/yoto-smart-stream-sub004/storage"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// streamURLExpiry is the lifetime of presigned track download URLs.
const streamURLExpiry = time.Hour

var audioExtensions = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".aac":  true,
	".flac": true,
	".ogg":  true,
	".wav":  true,
}

var coverExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// GetTracksHandler lists the authenticated user's tracks.
func (h *APIHandler) GetTracksHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	tracks, err := h.trackRepo.GetAllTracksByUserID(userID)
	if err != nil {
		logger.Error("failed to list tracks", logger.ErrorField(err), logger.Int64("user", userID))
		respondError(w, http.StatusInternalServerError, "Failed to list tracks")
		return
	}
	if tracks == nil {
		tracks = []*model.Track{}
	}
	respondJSON(w, http.StatusOK, tracks)
}

// UploadTrackHandler handles audio uploads. Expected multipart form fields:
// trackFile (the audio file), title, artist (optional), album (optional),
// coverFile (optional cover art image).
func (h *APIHandler) UploadTrackHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil { // 32MB max memory
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Failed to parse multipart form: %v", err))
		return
	}

	trackFile, trackHeader, err := r.FormFile("trackFile")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Missing 'trackFile' in form")
		return
	}
	defer trackFile.Close()

	ext := strings.ToLower(filepath.Ext(trackHeader.Filename))
	if !audioExtensions[ext] {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Unsupported audio format %q", ext))
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(trackHeader.Filename), ext)
	}

	objectName := fmt.Sprintf("audio/%s%s", uuid.New().String(), ext)
	if _, err := storage.UploadObject(r.Context(), objectName, trackFile, trackHeader.Size, trackHeader.Header.Get("Content-Type")); err != nil {
		logger.Error("failed to upload audio object", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to store audio file")
		return
	}

	track := &model.Track{
		UserID:     userID,
		Title:      title,
		Artist:     strings.TrimSpace(r.FormValue("artist")),
		Album:      strings.TrimSpace(r.FormValue("album")),
		ObjectPath: objectName,
		Status:     model.TrackStatusReady,
	}

	// Optional cover art rides along in the same form.
	if coverFile, coverHeader, err := r.FormFile("coverFile"); err == nil {
		defer coverFile.Close()
		coverExt := strings.ToLower(filepath.Ext(coverHeader.Filename))
		if coverExtensions[coverExt] {
			coverName := fmt.Sprintf("covers/%s%s", uuid.New().String(), coverExt)
			if _, err := storage.UploadObject(r.Context(), coverName, coverFile, coverHeader.Size, coverHeader.Header.Get("Content-Type")); err != nil {
				logger.Warn("failed to upload cover art", logger.ErrorField(err))
			} else {
				track.CoverArtPath = coverName
			}
		}
	}

	trackID, err := h.trackRepo.CreateTrack(track)
	if err != nil {
		logger.Error("failed to create track record", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to register track")
		return
	}
	track.ID = trackID

	logger.Info("track uploaded",
		logger.Int64("track", trackID),
		logger.Int64("user", userID),
		logger.String("title", track.Title))
	respondJSON(w, http.StatusOK, track)
}

// UploadCoverHandler attaches cover art to an existing track.
func (h *APIHandler) UploadCoverHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if err := r.ParseMultipartForm(8 << 20); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Failed to parse multipart form: %v", err))
		return
	}

	trackID, err := strconv.ParseInt(r.FormValue("trackId"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Valid trackId is required")
		return
	}

	track, err := h.trackRepo.GetTrackByID(trackID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to look up track")
		return
	}
	if track == nil || track.UserID != userID {
		respondError(w, http.StatusNotFound, "Track not found")
		return
	}

	coverFile, coverHeader, err := r.FormFile("coverFile")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Missing 'coverFile' in form")
		return
	}
	defer coverFile.Close()

	coverExt := strings.ToLower(filepath.Ext(coverHeader.Filename))
	if !coverExtensions[coverExt] {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Unsupported image format %q", coverExt))
		return
	}

	coverName := fmt.Sprintf("covers/%s%s", uuid.New().String(), coverExt)
	if _, err := storage.UploadObject(r.Context(), coverName, coverFile, coverHeader.Size, coverHeader.Header.Get("Content-Type")); err != nil {
		logger.Error("failed to upload cover art", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to store cover art")
		return
	}

	if err := h.trackRepo.UpdateTrackCoverArtPath(trackID, coverName); err != nil {
		logger.Error("failed to update cover art path", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to update track")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"coverArtPath": coverName})
}

// TrackStreamURLHandler returns a presigned, time-limited URL for streaming
// a track directly from object storage.
func (h *APIHandler) TrackStreamURLHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	trackID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid track ID")
		return
	}

	track, err := h.trackRepo.GetTrackByID(trackID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to look up track")
		return
	}
	if track == nil || track.UserID != userID {
		respondError(w, http.StatusNotFound, "Track not found")
		return
	}

	u, err := storage.PresignedObjectURL(r.Context(), track.ObjectPath, streamURLExpiry)
	if err != nil {
		logger.Error("failed to presign track URL", logger.ErrorField(err), logger.Int64("track", trackID))
		respondError(w, http.StatusInternalServerError, "Failed to generate stream URL")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"url":       u,
		"expiresIn": int(streamURLExpiry.Seconds()),
	})
}

// DeleteTrackHandler removes a track and its stored objects.
func (h *APIHandler) DeleteTrackHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	trackID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid track ID")
		return
	}

	track, err := h.trackRepo.GetTrackByID(trackID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to look up track")
		return
	}
	if track == nil || track.UserID != userID {
		respondError(w, http.StatusNotFound, "Track not found")
		return
	}

	if err := h.trackRepo.DeleteTrack(trackID); err != nil {
		logger.Error("failed to delete track", logger.ErrorField(err), logger.Int64("track", trackID))
		respondError(w, http.StatusInternalServerError, "Failed to delete track")
		return
	}

	// Object cleanup is best effort; the row is already gone.
	if err := storage.RemoveObject(r.Context(), track.ObjectPath); err != nil {
		logger.Warn("failed to remove audio object", logger.ErrorField(err), logger.String("object", track.ObjectPath))
	}
	if track.CoverArtPath != "" {
		if err := storage.RemoveObject(r.Context(), track.CoverArtPath); err != nil {
			logger.Warn("failed to remove cover object", logger.ErrorField(err), logger.String("object", track.CoverArtPath))
		}
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
