package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/routewise/telemetry-engine/internal/devices"
	"github.com/routewise/telemetry-engine/internal/models"
	"github.com/routewise/telemetry-engine/internal/reconciler"
	"github.com/routewise/telemetry-engine/pkg/sms"
	"github.com/rs/zerolog"
)

// defaultReplyTimeout bounds the wait for a device's SMS reply when
// configuration leaves it unset.
const defaultReplyTimeout = 45 * time.Second

// smsLocationQuality is the confidence assigned to fixes obtained over
// SMS; device replies carry no satellite count.
const smsLocationQuality = 1

// SMSService commands trackers over their SIM channel: on-demand fixes,
// periodic-reporting enablement and direct-connection reconfiguration.
// Requests to the same device serialize to avoid reply ambiguity;
// different devices proceed in parallel.
type SMSService struct {
	// Configuration fields
	replyTimeout time.Duration
	directIP     string
	directPort   int

	// Dependencies
	gateway    sms.Gateway
	registry   *devices.Registry
	reconciler *reconciler.Reconciler
	logger     zerolog.Logger

	// Internal state management
	deviceLocks cmap.ConcurrentMap[string, *sync.Mutex]
}

// NewSMSService creates the SMS command channel.
func NewSMSService(gateway sms.Gateway, registry *devices.Registry, rec *reconciler.Reconciler,
	replyTimeout time.Duration, directIP string, directPort int, logger zerolog.Logger) *SMSService {
	if replyTimeout <= 0 {
		replyTimeout = defaultReplyTimeout
	}
	return &SMSService{
		replyTimeout: replyTimeout,
		directIP:     directIP,
		directPort:   directPort,
		gateway:      gateway,
		registry:     registry,
		reconciler:   rec,
		logger:       logger.With().Str("service", "sms-channel").Logger(),
		deviceLocks:  cmap.New[*sync.Mutex](),
	}
}

// RequestLocation sends the vendor locate command and waits for the
// device's reply within the configured timeout. All failure modes come
// back as a structured outcome, never an error.
func (s *SMSService) RequestLocation(ctx context.Context, deviceID string) models.FixResult {
	device, result := s.smsDevice(deviceID)
	if device == nil {
		return models.FixResult{Success: false, Message: result}
	}

	lock := s.lockFor(deviceID)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.replyTimeout)
	defer cancel()

	if err := s.gateway.Send(ctx, device.SIMNumber, sms.LocateCommand()); err != nil {
		s.logger.Warn().Err(err).Str("device_id", deviceID).Msg("Locate command not delivered")
		return models.FixResult{Success: false, Message: fmt.Sprintf("sms gateway unreachable: %v", err)}
	}

	reply, err := s.gateway.AwaitReply(ctx, device.SIMNumber)
	if err != nil {
		return models.FixResult{Success: false, Message: fmt.Sprintf("timed out waiting for device reply: %v", err)}
	}

	lat, lon, speed, heading, accuracy, err := sms.ParseLocationReply(reply)
	if err != nil {
		// Keep the raw payload for diagnostics.
		return models.FixResult{Success: false, Message: fmt.Sprintf("unparseable device reply %q: %v", reply, err)}
	}

	now := time.Now().UTC()
	sample := models.LocationSample{
		DeviceID:   deviceID,
		Latitude:   lat,
		Longitude:  lon,
		Speed:      speed,
		Heading:    heading,
		Accuracy:   accuracy,
		Source:     models.SourceSMS,
		Quality:    smsLocationQuality,
		ObservedAt: now,
		ReceivedAt: now,
	}

	s.registry.TouchHeartbeat(deviceID, now)
	s.reconciler.Ingest(sample)

	s.logger.Info().Str("device_id", deviceID).Msg("On-demand SMS fix received")
	return models.FixResult{Success: true, Message: "location received", Location: &sample}
}

// EnableRealtime sends the periodic-reporting configuration command and
// returns without waiting for further replies. Subsequent samples fold
// in through whichever channel the device reports on.
func (s *SMSService) EnableRealtime(ctx context.Context, deviceID string, intervalSeconds int) models.CommandResult {
	device, reason := s.smsDevice(deviceID)
	if device == nil {
		return models.CommandResult{Success: false, Message: reason}
	}
	if intervalSeconds <= 0 {
		return models.CommandResult{Success: false, Message: "reporting interval must be positive"}
	}

	lock := s.lockFor(deviceID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.gateway.Send(ctx, device.SIMNumber, sms.RealtimeCommand(intervalSeconds)); err != nil {
		s.logger.Warn().Err(err).Str("device_id", deviceID).Msg("Realtime command not delivered")
		return models.CommandResult{Success: false, Message: fmt.Sprintf("sms gateway unreachable: %v", err)}
	}

	s.logger.Info().Str("device_id", deviceID).Int("interval_s", intervalSeconds).Msg("Realtime reporting enabled")
	return models.CommandResult{Success: true, Message: fmt.Sprintf("realtime reporting enabled at %ds", intervalSeconds)}
}

// ConfigureDirect points the device's reporting endpoint at the inbound
// socket listener. Fire-and-forget: the subsequent inbound connection
// is the only confirmation.
func (s *SMSService) ConfigureDirect(ctx context.Context, deviceID, ip string, port int) bool {
	if ip == "" {
		ip = s.directIP
	}
	if port <= 0 {
		port = s.directPort
	}

	device, _ := s.smsDevice(deviceID)
	if device == nil || ip == "" || port <= 0 {
		return false
	}

	lock := s.lockFor(deviceID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.gateway.Send(ctx, device.SIMNumber, sms.DirectConnectCommand(ip, port)); err != nil {
		s.logger.Warn().Err(err).Str("device_id", deviceID).Msg("Direct-connect command not delivered")
		return false
	}

	s.logger.Info().
		Str("device_id", deviceID).
		Str("server", fmt.Sprintf("%s:%d", ip, port)).
		Msg("Device reconfigured for direct connection")
	return true
}

// smsDevice resolves a device eligible for the SMS transport, returning
// a human-readable reason when it is not.
func (s *SMSService) smsDevice(deviceID string) (*models.GPSDevice, string) {
	device, err := s.registry.Find(deviceID)
	if err != nil {
		return nil, fmt.Sprintf("device %s not found", deviceID)
	}
	if device.SIMNumber == "" {
		return nil, fmt.Sprintf("device %s has no SIM number", deviceID)
	}
	return device, ""
}

func (s *SMSService) lockFor(deviceID string) *sync.Mutex {
	if lock, ok := s.deviceLocks.Get(deviceID); ok {
		return lock
	}
	s.deviceLocks.SetIfAbsent(deviceID, &sync.Mutex{})
	lock, _ := s.deviceLocks.Get(deviceID)
	return lock
}
