package models

import "errors"

// Engine error taxonomy. Ingestion-path errors are absorbed into
// counters and log lines at the adapter boundary; administrative-path
// errors are surfaced synchronously to the caller.
var (
	ErrDeviceNotFound       = errors.New("device not found")
	ErrDuplicateDevice      = errors.New("device already registered")
	ErrTransportTimeout     = errors.New("transport timeout")
	ErrTransportUnreachable = errors.New("transport unreachable")
	ErrParse                = errors.New("malformed payload")
	ErrSyncInProgress       = errors.New("sync already in progress")
)
