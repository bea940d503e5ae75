package services

import (
	"context"
	"net"
	"strings"
	"sync"

	"github.com/routewise/telemetry-engine/internal/devices"
	"github.com/routewise/telemetry-engine/internal/models"
	"github.com/routewise/telemetry-engine/internal/reconciler"
	"github.com/routewise/telemetry-engine/internal/utils"
	"github.com/routewise/telemetry-engine/pkg/wire"
	"github.com/rs/zerolog"
)

// defaultUDPWorkers sizes the datagram worker pool when configuration
// leaves it unset.
const defaultUDPWorkers = 8

// maxDatagramSize bounds a single device beacon.
const maxDatagramSize = 2048

// UDPListenerService receives connectionless periodic beacons. A
// datagram may carry several newline-delimited frames; decoding is
// fanned out over a worker pool so a slow store write cannot stall the
// read loop.
type UDPListenerService struct {
	// Configuration fields
	bind    string
	workers int

	// Dependencies
	ingestor *frameIngestor
	logger   zerolog.Logger

	// Internal state management
	mu      sync.Mutex
	conn    net.PacketConn
	pool    *utils.WorkerPool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewUDPListenerService creates a new UDPListenerService bound to the given address.
func NewUDPListenerService(bind string, workers int, decoder wire.Decoder, registry *devices.Registry,
	rec *reconciler.Reconciler, logger zerolog.Logger) *UDPListenerService {
	if workers <= 0 {
		workers = defaultUDPWorkers
	}
	logger = logger.With().Str("service", "udp-listener").Logger()
	return &UDPListenerService{
		bind:     bind,
		workers:  workers,
		ingestor: newFrameIngestor(models.SourceUDP, decoder, registry, rec, logger),
		logger:   logger,
	}
}

// Start binds the socket and begins reading datagrams. Starting an
// already-running listener is a no-op.
func (u *UDPListenerService) Start() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.running {
		u.logger.Warn().Msg("UDP listener is already running")
		return nil
	}

	conn, err := net.ListenPacket("udp", u.bind)
	if err != nil {
		u.logger.Error().Err(err).Str("bind", u.bind).Msg("Failed to bind UDP socket")
		return err
	}

	u.conn = conn
	u.pool = utils.NewWorkerPool(u.workers)
	u.ctx, u.cancel = context.WithCancel(context.Background())
	u.running = true

	u.wg.Add(1)
	go u.readLoop()

	u.logger.Info().Str("bind", u.bind).Int("workers", u.workers).Msg("UDP listener started")
	return nil
}

// Stop closes the socket, drains the worker pool and waits for the read
// loop. Stopping a stopped listener is a no-op.
func (u *UDPListenerService) Stop() error {
	u.mu.Lock()
	if !u.running {
		u.mu.Unlock()
		u.logger.Warn().Msg("UDP listener is not running")
		return nil
	}
	u.running = false
	u.cancel()
	u.conn.Close()
	pool := u.pool
	u.mu.Unlock()

	u.wg.Wait()
	pool.Shutdown()
	u.logger.Info().Msg("UDP listener stopped")
	return nil
}

// Addr returns the actual bound address, or nil while stopped. Useful
// when the configured bind uses an ephemeral port.
func (u *UDPListenerService) Addr() net.Addr {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.running || u.conn == nil {
		return nil
	}
	return u.conn.LocalAddr()
}

// Status reports availability and the drop counters.
func (u *UDPListenerService) Status() ListenerStatus {
	u.mu.Lock()
	running := u.running
	u.mu.Unlock()

	return ListenerStatus{
		Running:        running,
		Bind:           u.bind,
		FramesIngested: u.ingestor.framesIngested.Load(),
		ParseErrors:    u.ingestor.parseErrors.Load(),
		UnknownDevices: u.ingestor.unknownDevices.Load(),
	}
}

func (u *UDPListenerService) readLoop() {
	defer u.wg.Done()

	buf := make([]byte, maxDatagramSize)
	for {
		n, _, err := u.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-u.ctx.Done():
				return
			default:
				u.logger.Warn().Err(err).Msg("UDP read failure")
				continue
			}
		}

		payload := string(buf[:n])
		u.pool.Submit(func() {
			for _, line := range strings.Split(payload, "\n") {
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				u.ingestor.handleFrame(line)
			}
		})
	}
}
