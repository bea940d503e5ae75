package models

import (
	"time"
)

// SyncStatus is the outcome of a single synchronization run.
type SyncStatus string

const (
	SyncSuccess SyncStatus = "success"
	SyncPartial SyncStatus = "partial"
	SyncError   SyncStatus = "error"
)

// SyncLogEntry is the audit record for one scheduler run. Exactly one
// entry is written per run, whatever the outcome. Append-only.
type SyncLogEntry struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id"`
	Service        string     `gorm:"index;size:64;not null" json:"service"`
	Status         SyncStatus `gorm:"size:16;not null" json:"status"`
	DevicesUpdated int        `json:"devices_updated"`
	ErrorCount     int        `json:"error_count"`
	Errors         []string   `gorm:"serializer:json" json:"errors,omitempty"`
	SyncTime       time.Time  `gorm:"index;not null" json:"sync_time"`
}

// SyncResult is the structured outcome returned to sync trigger callers.
type SyncResult struct {
	Success bool     `json:"success"`
	Updated int      `json:"updated"`
	Errors  []string `json:"errors,omitempty"`
}

// CommandResult is the structured outcome of a fire-and-forget device
// command sent over SMS.
type CommandResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// FixResult is the structured outcome of an on-demand location request.
type FixResult struct {
	Success  bool            `json:"success"`
	Message  string          `json:"message"`
	Location *LocationSample `json:"location,omitempty"`
}
