package store

import (
	"time"

	"github.com/routewise/telemetry-engine/internal/models"
)

// HistoryFilter bounds a tracking-history query. Zero time values mean
// no bound on that side; a zero Limit falls back to the store default.
type HistoryFilter struct {
	RouteID string
	From    time.Time
	To      time.Time
	Limit   int
}

// Store is the records-store collaborator. It provides durable,
// queryable storage for devices, assignments, canonical state, tracking
// history and the sync audit log, keyed by stable identifiers. The
// engine imposes no schema beyond the entities in internal/models.
type Store interface {
	CreateDevice(device *models.GPSDevice) error
	SaveDevice(device *models.GPSDevice) error
	GetDevice(deviceID string) (*models.GPSDevice, error)
	ListDevices(simOnly bool) ([]models.GPSDevice, error)

	SaveAssignment(assignment *models.DeviceAssignment) error
	GetAssignment(deviceID string) (*models.DeviceAssignment, error)
	DeviceIDByVehicle(vehicleID string) (string, error)

	SaveCanonical(loc *models.CanonicalLocation) error
	GetCanonical(deviceID string) (*models.CanonicalLocation, error)

	AppendHistory(sample *models.LocationSample) error
	History(deviceID string, filter HistoryFilter) ([]models.LocationSample, error)

	AppendSyncLog(entry *models.SyncLogEntry) error
	SyncLogs(service string, limit int) ([]models.SyncLogEntry, error)

	Close() error
}
