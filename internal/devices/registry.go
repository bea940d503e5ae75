package devices

import (
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/routewise/telemetry-engine/internal/models"
	"github.com/routewise/telemetry-engine/internal/store"
	"github.com/rs/zerolog"
)

// Registry is the authoritative catalog of physical tracking devices.
// All transport adapters consult it; only administrative operations
// mutate it.
type Registry struct {
	store       store.Store
	logger      zerolog.Logger
	minFirmware *semver.Version
}

// NewRegistry creates a device registry. minFirmware is the lowest
// acceptable device firmware version, empty to disable the check.
func NewRegistry(st store.Store, minFirmware string, logger zerolog.Logger) (*Registry, error) {
	r := &Registry{
		store:  st,
		logger: logger.With().Str("component", "device-registry").Logger(),
	}

	if minFirmware != "" {
		v, err := semver.NewVersion(minFirmware)
		if err != nil {
			return nil, fmt.Errorf("invalid minimum firmware version %q: %w", minFirmware, err)
		}
		r.minFirmware = v
	}

	return r, nil
}

// Register creates a new device in the inactive state. Registering an
// already known device_id fails with ErrDuplicateDevice.
func (r *Registry) Register(deviceID, name, model, sim, imei string) (*models.GPSDevice, error) {
	device := &models.GPSDevice{
		DeviceID:   deviceID,
		DeviceName: name,
		Model:      model,
		SIMNumber:  sim,
		IMEI:       imei,
		Status:     models.DeviceInactive,
	}

	if err := r.store.CreateDevice(device); err != nil {
		return nil, err
	}

	r.logger.Info().Str("device_id", deviceID).Msg("Device registered")
	return device, nil
}

// Activate marks a device active. Repeated activation is a no-op
// producing the same terminal state.
func (r *Registry) Activate(deviceID string) (*models.GPSDevice, error) {
	return r.setStatus(deviceID, models.DeviceActive)
}

// Deactivate marks a device inactive. Devices are never deleted while
// referenced by tracking history; deactivation is the soft disable.
func (r *Registry) Deactivate(deviceID string) (*models.GPSDevice, error) {
	return r.setStatus(deviceID, models.DeviceInactive)
}

func (r *Registry) setStatus(deviceID string, status models.DeviceStatus) (*models.GPSDevice, error) {
	device, err := r.store.GetDevice(deviceID)
	if err != nil {
		return nil, err
	}
	if device.Status == status {
		return device, nil
	}

	device.Status = status
	if err := r.store.SaveDevice(device); err != nil {
		return nil, err
	}

	r.logger.Info().Str("device_id", deviceID).Str("status", string(status)).Msg("Device status changed")
	return device, nil
}

// Find looks a device up by its external identifier.
func (r *Registry) Find(deviceID string) (*models.GPSDevice, error) {
	return r.store.GetDevice(deviceID)
}

// List returns all registered devices.
func (r *Registry) List() ([]models.GPSDevice, error) {
	return r.store.ListDevices(false)
}

// ListWithSIM returns devices eligible for the SMS transport.
func (r *Registry) ListWithSIM() ([]models.GPSDevice, error) {
	return r.store.ListDevices(true)
}

// TouchHeartbeat records traffic from a device, on any transport.
// Failures are absorbed; heartbeat bookkeeping must not disturb the
// ingestion path.
func (r *Registry) TouchHeartbeat(deviceID string, at time.Time) {
	device, err := r.store.GetDevice(deviceID)
	if err != nil {
		return
	}
	device.LastHeartbeat = &at
	if err := r.store.SaveDevice(device); err != nil {
		r.logger.Warn().Err(err).Str("device_id", deviceID).Msg("Failed to record device heartbeat")
	}
}

// RecordFirmware stores the firmware version a device reported in its
// login frame or SMS reply, and flags devices below the floor.
func (r *Registry) RecordFirmware(deviceID, version string) {
	device, err := r.store.GetDevice(deviceID)
	if err != nil || version == "" || device.FirmwareVersion == version {
		return
	}
	device.FirmwareVersion = version
	if err := r.store.SaveDevice(device); err != nil {
		r.logger.Warn().Err(err).Str("device_id", deviceID).Msg("Failed to record firmware version")
		return
	}
	if r.FirmwareOutdated(device) {
		r.logger.Warn().
			Str("device_id", deviceID).
			Str("firmware", version).
			Str("minimum", r.minFirmware.String()).
			Msg("Device firmware below supported floor")
	}
}

// FirmwareOutdated reports whether the device firmware is below the
// configured floor. Devices with unknown firmware are not flagged.
func (r *Registry) FirmwareOutdated(device *models.GPSDevice) bool {
	if r.minFirmware == nil || device.FirmwareVersion == "" {
		return false
	}
	v, err := semver.NewVersion(device.FirmwareVersion)
	if err != nil {
		return false
	}
	return v.LessThan(r.minFirmware)
}

// Assign binds a device to a vehicle, driver and route.
func (r *Registry) Assign(deviceID, vehicleID, driverID, routeID string) error {
	if _, err := r.store.GetDevice(deviceID); err != nil {
		return err
	}

	assignment, err := r.store.GetAssignment(deviceID)
	if err != nil {
		assignment = &models.DeviceAssignment{DeviceID: deviceID, SharingEnabled: true}
	}
	assignment.VehicleID = vehicleID
	assignment.DriverID = driverID
	assignment.RouteID = routeID
	assignment.UpdatedAt = time.Now().UTC()

	return r.store.SaveAssignment(assignment)
}

// SetSharing flips the location-sharing consent flag for the entity the
// device reports for. Ingestion and history recording continue either
// way; only the canonical read path is gated.
func (r *Registry) SetSharing(deviceID string, enabled bool) error {
	if _, err := r.store.GetDevice(deviceID); err != nil {
		return err
	}

	assignment, err := r.store.GetAssignment(deviceID)
	if err != nil {
		assignment = &models.DeviceAssignment{DeviceID: deviceID}
	}
	assignment.SharingEnabled = enabled
	assignment.UpdatedAt = time.Now().UTC()

	return r.store.SaveAssignment(assignment)
}
