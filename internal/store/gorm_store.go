package store

import (
	"errors"
	"fmt"

	"github.com/routewise/telemetry-engine/internal/models"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// defaultHistoryLimit bounds history reads when the caller gives none.
const defaultHistoryLimit = 500

// GormStore implements Store on top of a relational database through
// GORM. SQLite is used for development and tests, Postgres in
// deployment.
type GormStore struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// Open connects to the database selected by driver ("sqlite" or
// "postgres"), migrates the engine's tables and returns the store.
func Open(driver, dsn string, logger zerolog.Logger) (*GormStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s store: %w", driver, err)
	}

	err = db.AutoMigrate(
		&models.GPSDevice{},
		&models.DeviceAssignment{},
		&models.CanonicalLocation{},
		&models.LocationSample{},
		&models.SyncLogEntry{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate store schema: %w", err)
	}

	logger.Info().Str("driver", driver).Msg("Records store ready")
	return &GormStore{db: db, logger: logger}, nil
}

// CreateDevice inserts a new device row. Registering an already known
// device_id fails with ErrDuplicateDevice.
func (s *GormStore) CreateDevice(device *models.GPSDevice) error {
	var count int64
	if err := s.db.Model(&models.GPSDevice{}).Where("device_id = ?", device.DeviceID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return models.ErrDuplicateDevice
	}
	return s.db.Create(device).Error
}

// SaveDevice persists mutations to an existing device row.
func (s *GormStore) SaveDevice(device *models.GPSDevice) error {
	return s.db.Save(device).Error
}

// GetDevice looks a device up by its external identifier.
func (s *GormStore) GetDevice(deviceID string) (*models.GPSDevice, error) {
	var device models.GPSDevice
	err := s.db.Where("device_id = ?", deviceID).First(&device).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrDeviceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &device, nil
}

// ListDevices returns all devices, optionally restricted to those with
// a SIM and therefore eligible for the SMS transport.
func (s *GormStore) ListDevices(simOnly bool) ([]models.GPSDevice, error) {
	var devices []models.GPSDevice
	q := s.db.Order("device_id")
	if simOnly {
		q = q.Where("sim_number <> ''")
	}
	if err := q.Find(&devices).Error; err != nil {
		return nil, err
	}
	return devices, nil
}

// SaveAssignment upserts the device assignment keyed by device_id.
func (s *GormStore) SaveAssignment(assignment *models.DeviceAssignment) error {
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}},
		UpdateAll: true,
	}).Create(assignment).Error
}

// GetAssignment returns the assignment for a device, or
// ErrDeviceNotFound when the device has none.
func (s *GormStore) GetAssignment(deviceID string) (*models.DeviceAssignment, error) {
	var assignment models.DeviceAssignment
	err := s.db.Where("device_id = ?", deviceID).First(&assignment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrDeviceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}

// DeviceIDByVehicle resolves a vehicle identifier (the cloud provider's
// registration-number join key) to the local device assigned to it.
func (s *GormStore) DeviceIDByVehicle(vehicleID string) (string, error) {
	var assignment models.DeviceAssignment
	err := s.db.Where("vehicle_id = ?", vehicleID).First(&assignment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", models.ErrDeviceNotFound
	}
	if err != nil {
		return "", err
	}
	return assignment.DeviceID, nil
}

// SaveCanonical upserts the canonical fix keyed by device_id.
func (s *GormStore) SaveCanonical(loc *models.CanonicalLocation) error {
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}},
		UpdateAll: true,
	}).Create(loc).Error
}

// GetCanonical returns the canonical fix for a device, or
// ErrDeviceNotFound when none has been recorded yet.
func (s *GormStore) GetCanonical(deviceID string) (*models.CanonicalLocation, error) {
	var loc models.CanonicalLocation
	err := s.db.Where("device_id = ?", deviceID).First(&loc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrDeviceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

// AppendHistory appends one raw sample to the tracking history.
func (s *GormStore) AppendHistory(sample *models.LocationSample) error {
	return s.db.Create(sample).Error
}

// History returns samples for a device ordered newest first, bounded by
// the filter.
func (s *GormStore) History(deviceID string, filter HistoryFilter) ([]models.LocationSample, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	q := s.db.Where("device_id = ?", deviceID)
	if filter.RouteID != "" {
		q = q.Where("route_id = ?", filter.RouteID)
	}
	if !filter.From.IsZero() {
		q = q.Where("observed_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		q = q.Where("observed_at <= ?", filter.To)
	}

	var samples []models.LocationSample
	if err := q.Order("observed_at desc").Limit(limit).Find(&samples).Error; err != nil {
		return nil, err
	}
	return samples, nil
}

// AppendSyncLog appends one audit entry for a scheduler run.
func (s *GormStore) AppendSyncLog(entry *models.SyncLogEntry) error {
	return s.db.Create(entry).Error
}

// SyncLogs returns recent audit entries, newest first, optionally
// filtered by service name.
func (s *GormStore) SyncLogs(service string, limit int) ([]models.SyncLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	q := s.db.Order("sync_time desc").Limit(limit)
	if service != "" {
		q = q.Where("service = ?", service)
	}
	var entries []models.SyncLogEntry
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// Close releases the underlying database connection.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
