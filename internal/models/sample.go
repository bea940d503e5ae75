package models

import (
	"time"
)

// Source identifies the transport a location sample arrived over.
type Source string

const (
	SourceTCP      Source = "tcp"
	SourceUDP      Source = "udp"
	SourceSMS      Source = "sms"
	SourceHTTPPoll Source = "http_poll"
)

// LocationSample is a single raw observation from any transport. Samples
// are immutable once created and appended to the tracking history
// whether or not they win the canonical tie-break.
type LocationSample struct {
	ID        string   `gorm:"primaryKey;size:36" json:"id"`
	DeviceID  string   `gorm:"index;size:64;not null" json:"device_id"`
	RouteID   string   `gorm:"index;size:64" json:"route_id,omitempty"`
	VehicleID string   `gorm:"size:64" json:"vehicle_id,omitempty"`
	DriverID  string   `gorm:"size:64" json:"driver_id,omitempty"`
	Latitude  float64  `gorm:"not null" json:"latitude"`
	Longitude float64  `gorm:"not null" json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Speed     float64  `json:"speed,omitempty"`
	Heading   float64  `json:"heading,omitempty"`
	Source    Source   `gorm:"size:16;not null" json:"source"`
	// Quality is the source-assigned confidence score. Zero means the
	// source assigned none, which compares as lowest confidence.
	Quality    int       `json:"quality"`
	ObservedAt time.Time `gorm:"index;not null" json:"observed_at"`
	ReceivedAt time.Time `gorm:"not null" json:"received_at"`
}

// AccuracyMeters returns the sample accuracy, with unset accuracy
// treated as unbounded so it can never beat a fix that carries one.
func (s LocationSample) AccuracyMeters() float64 {
	if s.Accuracy == nil {
		return unsetAccuracy
	}
	return *s.Accuracy
}

const unsetAccuracy = 1 << 30
