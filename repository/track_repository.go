package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/earchibald/yoto-smart-stream-sub004/db"
	"github.com/earchibald/yoto-smart-stream-sub004/model"
)

// TrackRepository defines the interface for track data operations.
type TrackRepository interface {
	CreateTrack(track *model.Track) (int64, error)
	GetTrackByID(id int64) (*model.Track, error)
	GetAllTracksByUserID(userID int64) ([]*model.Track, error)
	UpdateTrackStatus(trackID int64, status string) error
	UpdateTrackCoverArtPath(trackID int64, coverPath string) error
	GetTrackByUserIDAndObjectPath(userID int64, objectPath string) (*model.Track, error)
	DeleteTrack(trackID int64) error
}

// mysqlTrackRepository implements TrackRepository for MySQL.
type mysqlTrackRepository struct {
	DB *sql.DB
}

// NewMySQLTrackRepository creates a new instance of mysqlTrackRepository.
func NewMySQLTrackRepository() TrackRepository {
	return &mysqlTrackRepository{DB: db.DB}
}

// CreateTrack adds a new track to the database.
func (r *mysqlTrackRepository) CreateTrack(track *model.Track) (int64, error) {
	query := `INSERT INTO tracks (title, artist, album, object_path, cover_art_path, duration, status, user_id, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := r.DB.Prepare(query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement for CreateTrack: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	res, err := stmt.Exec(track.Title, track.Artist, track.Album, track.ObjectPath, track.CoverArtPath, track.Duration, track.Status, track.UserID, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to execute CreateTrack: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for CreateTrack: %w", err)
	}
	return id, nil
}

// GetTrackByID retrieves a track by its ID.
func (r *mysqlTrackRepository) GetTrackByID(id int64) (*model.Track, error) {
	query := `SELECT id, user_id, title, artist, album, object_path, cover_art_path, duration, status, created_at, updated_at
	           FROM tracks WHERE id = ?`
	row := r.DB.QueryRow(query, id)

	track := &model.Track{}
	var coverArtPath sql.NullString
	err := row.Scan(&track.ID, &track.UserID, &track.Title, &track.Artist, &track.Album, &track.ObjectPath,
		&coverArtPath, &track.Duration, &track.Status, &track.CreatedAt, &track.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan track row for ID %d: %w", id, err)
	}
	track.CoverArtPath = coverArtPath.String
	return track, nil
}

// GetAllTracksByUserID retrieves all tracks owned by a user.
func (r *mysqlTrackRepository) GetAllTracksByUserID(userID int64) ([]*model.Track, error) {
	query := `SELECT id, user_id, title, artist, album, object_path, cover_art_path, duration, status, created_at, updated_at
	           FROM tracks WHERE user_id = ? ORDER BY created_at DESC`
	rows, err := r.DB.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks for user %d: %w", userID, err)
	}
	defer rows.Close()

	var tracks []*model.Track
	for rows.Next() {
		track := &model.Track{}
		var coverArtPath sql.NullString
		err := rows.Scan(&track.ID, &track.UserID, &track.Title, &track.Artist, &track.Album, &track.ObjectPath,
			&coverArtPath, &track.Duration, &track.Status, &track.CreatedAt, &track.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track row: %w", err)
		}
		track.CoverArtPath = coverArtPath.String
		tracks = append(tracks, track)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating track rows: %w", err)
	}
	return tracks, nil
}

// UpdateTrackStatus updates the processing status of a track.
func (r *mysqlTrackRepository) UpdateTrackStatus(trackID int64, status string) error {
	query := `UPDATE tracks SET status = ?, updated_at = ? WHERE id = ?`
	_, err := r.DB.Exec(query, status, time.Now(), trackID)
	if err != nil {
		return fmt.Errorf("failed to update status for track %d: %w", trackID, err)
	}
	return nil
}

// UpdateTrackCoverArtPath updates the cover art object path of a track.
func (r *mysqlTrackRepository) UpdateTrackCoverArtPath(trackID int64, coverPath string) error {
	query := `UPDATE tracks SET cover_art_path = ?, updated_at = ? WHERE id = ?`
	_, err := r.DB.Exec(query, coverPath, time.Now(), trackID)
	if err != nil {
		return fmt.Errorf("failed to update cover art for track %d: %w", trackID, err)
	}
	return nil
}

// GetTrackByUserIDAndObjectPath retrieves a track by owner and object path.
func (r *mysqlTrackRepository) GetTrackByUserIDAndObjectPath(userID int64, objectPath string) (*model.Track, error) {
	query := `SELECT id, user_id, title, artist, album, object_path, cover_art_path, duration, status, created_at, updated_at
	           FROM tracks WHERE user_id = ? AND object_path = ?`
	row := r.DB.QueryRow(query, userID, objectPath)

	track := &model.Track{}
	var coverArtPath sql.NullString
	err := row.Scan(&track.ID, &track.UserID, &track.Title, &track.Artist, &track.Album, &track.ObjectPath,
		&coverArtPath, &track.Duration, &track.Status, &track.CreatedAt, &track.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan track row: %w", err)
	}
	track.CoverArtPath = coverArtPath.String
	return track, nil
}

// DeleteTrack removes a track record.
func (r *mysqlTrackRepository) DeleteTrack(trackID int64) error {
	_, err := r.DB.Exec(`DELETE FROM tracks WHERE id = ?`, trackID)
	if err != nil {
		return fmt.Errorf("failed to delete track %d: %w", trackID, err)
	}
	return nil
}
