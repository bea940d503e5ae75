package models

import (
	"time"
)

// TrackingStatus is the freshness classification of a canonical fix.
// Staleness is evaluated on read against the configured age threshold,
// not by a background timer.
type TrackingStatus string

const (
	TrackingInactive TrackingStatus = "inactive"
	TrackingActive   TrackingStatus = "active"
	TrackingStale    TrackingStatus = "stale"
)

// CanonicalLocation is the single current best-known position for a
// device and the vehicle/driver it is assigned to. Only the reconciler
// writes it; it is superseded in place, never versioned.
type CanonicalLocation struct {
	ID             uint           `gorm:"primaryKey;autoIncrement" json:"-"`
	DeviceID       string         `gorm:"uniqueIndex;size:64;not null" json:"device_id"`
	VehicleID      string         `gorm:"index;size:64" json:"vehicle_id,omitempty"`
	DriverID       string         `gorm:"index;size:64" json:"driver_id,omitempty"`
	Latitude       float64        `json:"latitude"`
	Longitude      float64        `json:"longitude"`
	Accuracy       *float64       `json:"accuracy,omitempty"`
	Quality        int            `json:"quality"`
	Source         Source         `gorm:"size:16" json:"source"`
	ObservedAt     time.Time      `json:"observed_at"`
	LastUpdate     time.Time      `json:"last_update"`
	TrackingStatus TrackingStatus `gorm:"size:16;not null;default:inactive" json:"tracking_status"`
	SharingEnabled bool           `gorm:"not null;default:true" json:"sharing_enabled"`
}

// CurrentLocation is the read-side view of a canonical fix. Coordinates
// are nil when the owning entity has sharing disabled.
type CurrentLocation struct {
	DeviceID       string         `json:"device_id"`
	VehicleID      string         `json:"vehicle_id,omitempty"`
	DriverID       string         `json:"driver_id,omitempty"`
	Latitude       *float64       `json:"latitude"`
	Longitude      *float64       `json:"longitude"`
	Accuracy       *float64       `json:"accuracy,omitempty"`
	Source         Source         `json:"source,omitempty"`
	ObservedAt     time.Time      `json:"observed_at"`
	LastUpdate     time.Time      `json:"last_update"`
	TrackingStatus TrackingStatus `json:"tracking_status"`
	SharingEnabled bool           `json:"sharing_enabled"`
	Address        string         `json:"address,omitempty"`
}
