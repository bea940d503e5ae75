package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/routewise/telemetry-engine/internal/devices"
	"github.com/routewise/telemetry-engine/internal/models"
	"github.com/routewise/telemetry-engine/internal/reconciler"
	"github.com/routewise/telemetry-engine/internal/store"
	"github.com/routewise/telemetry-engine/pkg/fleetcloud"
	"github.com/rs/zerolog"
)

// syncServiceName tags audit entries written by this scheduler.
const syncServiceName = "fleetcloud"

// CloudSyncService periodically pulls the provider's fleet-wide
// location list and reconciles it against local devices. At most one
// run is in flight at a time; every run, whatever the outcome, writes
// exactly one audit entry.
type CloudSyncService struct {
	// Configuration fields
	interval    time.Duration
	callTimeout time.Duration

	// Dependencies
	client     fleetcloud.API
	registry   *devices.Registry
	reconciler *reconciler.Reconciler
	store      store.Store
	logger     zerolog.Logger

	// Internal state management
	autoEnabled atomic.Bool
	syncMu      sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	running     bool
	stateMu     sync.Mutex
}

// NewCloudSyncService creates the sync scheduler. autoEnabled seeds the
// automatic-trigger flag from configuration.
func NewCloudSyncService(client fleetcloud.API, registry *devices.Registry, rec *reconciler.Reconciler,
	st store.Store, interval, callTimeout time.Duration, autoEnabled bool, logger zerolog.Logger) *CloudSyncService {
	if interval <= 0 {
		interval = time.Minute
	}
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	s := &CloudSyncService{
		interval:    interval,
		callTimeout: callTimeout,
		client:      client,
		registry:    registry,
		reconciler:  rec,
		store:       st,
		logger:      logger.With().Str("service", "cloud-sync").Logger(),
	}
	s.autoEnabled.Store(autoEnabled)
	return s
}

// Start launches the cron-style trigger loop.
func (c *CloudSyncService) Start() error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if c.running {
		c.logger.Warn().Msg("Cloud sync service is already running")
		return errors.New("cloud sync service is already running")
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.running = true

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if !c.autoEnabled.Load() {
					continue
				}
				if _, err := c.runSync(); errors.Is(err, models.ErrSyncInProgress) {
					c.logger.Warn().Msg("Scheduled sync skipped, previous run still in flight")
				}
			case <-c.ctx.Done():
				c.logger.Info().Msg("Cloud sync service is stopping")
				return
			}
		}
	}()

	c.logger.Info().
		Dur("interval", c.interval).
		Bool("auto_enabled", c.autoEnabled.Load()).
		Msg("Cloud sync service started")
	return nil
}

// Stop halts the trigger loop. A run already in flight completes; runs
// do not support mid-run cancellation.
func (c *CloudSyncService) Stop() error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if !c.running {
		c.logger.Warn().Msg("Cloud sync service is not running")
		return errors.New("cloud sync service is not running")
	}

	c.cancel()
	c.wg.Wait()
	c.running = false

	c.logger.Info().Msg("Cloud sync service stopped")
	return nil
}

// TriggerManual starts a sync cycle immediately, bypassing the
// automatic-sync flag. Returns ErrSyncInProgress when a run is already
// in flight.
func (c *CloudSyncService) TriggerManual() (models.SyncResult, error) {
	return c.runSync()
}

// SetAutoEnabled toggles whether the scheduled trigger performs work.
func (c *CloudSyncService) SetAutoEnabled(enabled bool) {
	c.autoEnabled.Store(enabled)
	c.logger.Info().Bool("auto_enabled", enabled).Msg("Automatic sync flag changed")
}

// AutoEnabled reports the automatic-sync flag.
func (c *CloudSyncService) AutoEnabled() bool {
	return c.autoEnabled.Load()
}

// TestConnection performs a lightweight auth probe against the provider
// for operator diagnostics. No tracking state is touched.
func (c *CloudSyncService) TestConnection(ctx context.Context) models.CommandResult {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	if err := c.client.Probe(ctx); err != nil {
		return models.CommandResult{Success: false, Message: fmt.Sprintf("provider connection failed: %v", err)}
	}
	return models.CommandResult{Success: true, Message: "provider connection ok"}
}

// runSync executes one sync cycle under the per-service mutex and
// writes its audit entry. Adapter failures are captured in the entry,
// never propagated to the trigger caller.
func (c *CloudSyncService) runSync() (models.SyncResult, error) {
	if !c.syncMu.TryLock() {
		return models.SyncResult{Success: false, Errors: []string{"sync already in progress"}}, models.ErrSyncInProgress
	}
	defer c.syncMu.Unlock()

	started := time.Now().UTC()
	result := c.syncWithLocalDevices()

	entry := &models.SyncLogEntry{
		ID:             uuid.New().String(),
		Service:        syncServiceName,
		DevicesUpdated: result.Updated,
		ErrorCount:     len(result.Errors),
		Errors:         result.Errors,
		SyncTime:       started,
	}
	switch {
	case !result.Success:
		entry.Status = models.SyncError
	case len(result.Errors) > 0:
		entry.Status = models.SyncPartial
	default:
		entry.Status = models.SyncSuccess
	}

	if err := c.store.AppendSyncLog(entry); err != nil {
		c.logger.Error().Err(err).Msg("Failed to append sync audit entry")
	}

	c.logger.Info().
		Str("status", string(entry.Status)).
		Int("devices_updated", entry.DevicesUpdated).
		Int("error_count", entry.ErrorCount).
		Msg("Sync cycle finished")
	return result, nil
}

// syncWithLocalDevices fetches the remote fleet list once and folds
// each resolvable fix into the reconciler. Per-item resolution failures
// are recorded without aborting the batch; only a failure of the batch
// fetch itself makes the run unsuccessful.
func (c *CloudSyncService) syncWithLocalDevices() (result models.SyncResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = models.SyncResult{Success: false, Errors: []string{fmt.Sprintf("sync panic: %v", rec)}}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), c.callTimeout)
	defer cancel()

	fixes, err := c.client.VehicleLocations(ctx)
	if err != nil {
		return models.SyncResult{Success: false, Errors: []string{err.Error()}}
	}

	result.Success = true
	for _, fix := range fixes {
		deviceID, err := c.resolveDevice(fix)
		if err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("no local device for remote unit %s/%s", fix.DeviceID, fix.Registration))
			continue
		}

		now := time.Now().UTC()
		c.registry.TouchHeartbeat(deviceID, now)
		c.reconciler.Ingest(models.LocationSample{
			DeviceID:   deviceID,
			Latitude:   fix.Latitude,
			Longitude:  fix.Longitude,
			Speed:      fix.Speed,
			Heading:    fix.Heading,
			Accuracy:   fix.Accuracy,
			Source:     models.SourceHTTPPoll,
			ObservedAt: fix.GPSTime,
			ReceivedAt: now,
		})
		result.Updated++
	}

	return result
}

// resolveDevice maps a remote fix to a local device: the provider's
// device identifier first, then the vehicle registration number.
func (c *CloudSyncService) resolveDevice(fix fleetcloud.VehicleFix) (string, error) {
	if fix.DeviceID != "" {
		if _, err := c.registry.Find(fix.DeviceID); err == nil {
			return fix.DeviceID, nil
		}
	}
	if fix.Registration != "" {
		if deviceID, err := c.store.DeviceIDByVehicle(fix.Registration); err == nil {
			return deviceID, nil
		}
	}
	return "", models.ErrDeviceNotFound
}
