package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/earchibald/yoto-smart-stream-sub004/db"
	"github.com/earchibald/yoto-smart-stream-sub004/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeviceRepository defines the interface for the paired-device registry.
type DeviceRepository interface {
	UpsertDevice(device *model.Device) error
	GetDeviceByID(id string) (*model.Device, error)
	GetAllDevices() ([]*model.Device, error)
	TouchLastSeen(id string, at time.Time) error
	DeleteDevice(id string) error
}

// gormDeviceRepository implements DeviceRepository with GORM.
type gormDeviceRepository struct {
	db *gorm.DB
}

// NewGormDeviceRepository creates a new gormDeviceRepository.
func NewGormDeviceRepository() DeviceRepository {
	return &gormDeviceRepository{db: db.GormDB}
}

// UpsertDevice inserts a device or updates its descriptive fields. The
// last-seen timestamp is owned by TouchLastSeen so an upsert for an offline
// device cannot clobber it.
func (r *gormDeviceRepository) UpsertDevice(device *model.Device) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "family", "updated_at"}),
	}).Create(device).Error
	if err != nil {
		return fmt.Errorf("failed to upsert device %s: %w", device.ID, err)
	}
	return nil
}

// GetDeviceByID retrieves a device by id, or nil if not registered.
func (r *gormDeviceRepository) GetDeviceByID(id string) (*model.Device, error) {
	var device model.Device
	err := r.db.First(&device, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get device %s: %w", id, err)
	}
	return &device, nil
}

// GetAllDevices lists all registered devices ordered by name.
func (r *gormDeviceRepository) GetAllDevices() ([]*model.Device, error) {
	var devices []*model.Device
	err := r.db.Order("name ASC").Find(&devices).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

// TouchLastSeen updates the last-seen timestamp of a device.
func (r *gormDeviceRepository) TouchLastSeen(id string, at time.Time) error {
	err := r.db.Model(&model.Device{}).Where("id = ?", id).Update("last_seen_at", at).Error
	if err != nil {
		return fmt.Errorf("failed to touch device %s: %w", id, err)
	}
	return nil
}

// DeleteDevice removes a device from the registry.
func (r *gormDeviceRepository) DeleteDevice(id string) error {
	err := r.db.Delete(&model.Device{}, "id = ?", id).Error
	if err != nil {
		return fmt.Errorf("failed to delete device %s: %w", id, err)
	}
	return nil
}
