package server

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/earchibald/yoto-smart-stream-sub004/logger"
	"github.com/earchibald/yoto-smart-stream-sub004/storage"
)

// StaticObjectHandler streams a stored object (cover art, audio) straight
// from MinIO. Used for card covers embedded in the dashboard; audio playback
// goes through presigned URLs instead.
func (h *APIHandler) StaticObjectHandler(w http.ResponseWriter, r *http.Request) {
	objectPath := strings.TrimPrefix(r.URL.Path, "/static/")
	if objectPath == "" || strings.Contains(objectPath, "..") {
		respondError(w, http.StatusBadRequest, "Invalid object path")
		return
	}

	object, err := storage.GetObject(r.Context(), objectPath)
	if err != nil {
		respondError(w, http.StatusNotFound, "Object not found")
		return
	}
	defer object.Close()

	stat, err := object.Stat()
	if err != nil {
		respondError(w, http.StatusNotFound, "Object not found")
		return
	}

	w.Header().Set("Content-Type", objectContentType(objectPath))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := io.Copy(w, object); err != nil {
		logger.Warn("failed to stream object",
			logger.ErrorField(err),
			logger.String("object", stat.Key))
	}
}

// objectContentType maps an object key to a response content type by
// extension.
func objectContentType(objectPath string) string {
	switch strings.ToLower(filepath.Ext(objectPath)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a", ".aac":
		return "audio/mp4"
	case ".flac":
		return "audio/flac"
	case ".ogg":
		return "audio/ogg"
	case ".wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}
