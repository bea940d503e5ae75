package models

import (
	"time"
)

// DeviceStatus is the lifecycle state of a tracking device.
type DeviceStatus string

const (
	DeviceInactive DeviceStatus = "inactive"
	DeviceActive   DeviceStatus = "active"
	DeviceFaulted  DeviceStatus = "faulted"
)

// GPSDevice is a physical tracking unit installed in a vehicle or carried
// by a driver. Devices are soft-disabled, never deleted, while tracking
// history references them.
type GPSDevice struct {
	ID              uint         `gorm:"primaryKey;autoIncrement" json:"-"`
	DeviceID        string       `gorm:"uniqueIndex;size:64;not null" json:"device_id"`
	DeviceName      string       `gorm:"size:128;not null" json:"device_name"`
	Model           string       `gorm:"size:64" json:"model,omitempty"`
	SIMNumber       string       `gorm:"size:32" json:"sim_number,omitempty"`
	IMEI            string       `gorm:"size:32" json:"imei,omitempty"`
	FirmwareVersion string       `gorm:"size:32" json:"firmware_version,omitempty"`
	Status          DeviceStatus `gorm:"size:16;not null;default:inactive" json:"status"`
	LastHeartbeat   *time.Time   `json:"last_heartbeat,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// DeviceAssignment binds a device to the vehicle, driver and route it
// reports for, and carries the location-sharing consent flag. The
// reconciler resolves sample ownership through it.
type DeviceAssignment struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	DeviceID       string    `gorm:"uniqueIndex;size:64;not null" json:"device_id"`
	VehicleID      string    `gorm:"index;size:64" json:"vehicle_id,omitempty"`
	DriverID       string    `gorm:"index;size:64" json:"driver_id,omitempty"`
	RouteID        string    `gorm:"index;size:64" json:"route_id,omitempty"`
	SharingEnabled bool      `gorm:"not null;default:true" json:"sharing_enabled"`
	UpdatedAt      time.Time `json:"updated_at"`
}
