package services

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/routewise/telemetry-engine/internal/devices"
	"github.com/routewise/telemetry-engine/internal/models"
	"github.com/routewise/telemetry-engine/internal/reconciler"
	"github.com/routewise/telemetry-engine/pkg/wire"
	"github.com/rs/zerolog"
)

// frameIngestor is the shared receive path behind both socket
// listeners: decode, gate on known devices, forward to the reconciler.
// Malformed frames and unknown devices are counted and dropped; the
// stream is lossy fire-and-forget telemetry, so nothing propagates back
// to the sender.
type frameIngestor struct {
	source     models.Source
	decoder    wire.Decoder
	registry   *devices.Registry
	reconciler *reconciler.Reconciler
	logger     zerolog.Logger

	framesIngested atomic.Int64
	parseErrors    atomic.Int64
	unknownDevices atomic.Int64
}

// ListenerStatus is the availability and counter snapshot reported by
// the listener status operation.
type ListenerStatus struct {
	Running        bool   `json:"running"`
	Bind           string `json:"bind"`
	FramesIngested int64  `json:"frames_ingested"`
	ParseErrors    int64  `json:"parse_errors"`
	UnknownDevices int64  `json:"unknown_devices"`
}

func newFrameIngestor(source models.Source, decoder wire.Decoder, registry *devices.Registry,
	rec *reconciler.Reconciler, logger zerolog.Logger) *frameIngestor {
	return &frameIngestor{
		source:     source,
		decoder:    decoder,
		registry:   registry,
		reconciler: rec,
		logger:     logger,
	}
}

// handleFrame processes one raw frame line from the wire.
func (f *frameIngestor) handleFrame(raw string) {
	frame, err := f.decoder.Decode(raw)
	if err != nil {
		f.parseErrors.Add(1)
		if errors.Is(err, models.ErrParse) {
			f.logger.Warn().Err(err).Str("source", string(f.source)).Msg("Dropped malformed frame")
		} else {
			f.logger.Error().Err(err).Str("source", string(f.source)).Msg("Frame decode failure")
		}
		return
	}

	device, err := f.registry.Find(frame.DeviceID)
	if err != nil {
		f.unknownDevices.Add(1)
		f.logger.Warn().
			Str("device_id", frame.DeviceID).
			Str("source", string(f.source)).
			Msg("Dropped frame from unknown device")
		return
	}

	now := time.Now().UTC()
	f.registry.TouchHeartbeat(device.DeviceID, now)

	if frame.Login {
		f.registry.RecordFirmware(device.DeviceID, frame.Firmware)
		f.logger.Info().
			Str("device_id", device.DeviceID).
			Str("firmware", frame.Firmware).
			Msg("Device logged in")
		return
	}

	sample := *frame.Sample
	sample.Source = f.source
	sample.ReceivedAt = now
	f.reconciler.Ingest(sample)
	f.framesIngested.Add(1)
}
