package model

import "time"

// Track processing states.
const (
	TrackStatusUploading = "uploading"
	TrackStatusReady     = "ready"
	TrackStatusFailed    = "failed"
)

// Track represents an uploaded audio file in the stream library.
type Track struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"userId"`
	Title        string    `json:"title"`
	Artist       string    `json:"artist"`
	Album        string    `json:"album"`
	ObjectPath   string    `json:"-"`            // MinIO object key of the original audio, not exposed in API directly
	CoverArtPath string    `json:"coverArtPath"` // MinIO object key of the cover art
	Duration     float32   `json:"duration"`     // Duration in seconds
	Status       string    `json:"status"`       // uploading, ready, failed
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
