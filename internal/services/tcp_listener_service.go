package services

import (
	"bufio"
	"context"
	"net"
	"sync"

	"github.com/routewise/telemetry-engine/internal/devices"
	"github.com/routewise/telemetry-engine/internal/models"
	"github.com/routewise/telemetry-engine/internal/reconciler"
	"github.com/routewise/telemetry-engine/pkg/wire"
	"github.com/rs/zerolog"
)

// TCPListenerService accepts device-initiated TCP connections on a
// fixed port and feeds decoded frames into the reconciler. Each
// accepted connection is handled on its own goroutine; a bad frame on
// one connection never affects another.
type TCPListenerService struct {
	// Configuration fields
	bind string

	// Dependencies
	ingestor *frameIngestor
	logger   zerolog.Logger

	// Internal state management
	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  bool
}

// NewTCPListenerService creates a new TCPListenerService bound to the given address.
func NewTCPListenerService(bind string, decoder wire.Decoder, registry *devices.Registry,
	rec *reconciler.Reconciler, logger zerolog.Logger) *TCPListenerService {
	logger = logger.With().Str("service", "tcp-listener").Logger()
	return &TCPListenerService{
		bind:     bind,
		ingestor: newFrameIngestor(models.SourceTCP, decoder, registry, rec, logger),
		logger:   logger,
		conns:    make(map[net.Conn]struct{}),
	}
}

// Start binds the listen port and begins accepting connections.
// Starting an already-running listener is a no-op.
func (t *TCPListenerService) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		t.logger.Warn().Msg("TCP listener is already running")
		return nil
	}

	listener, err := net.Listen("tcp", t.bind)
	if err != nil {
		t.logger.Error().Err(err).Str("bind", t.bind).Msg("Failed to bind TCP listen port")
		return err
	}

	t.listener = listener
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.running = true

	t.wg.Add(1)
	go t.acceptLoop()

	t.logger.Info().Str("bind", t.bind).Msg("TCP listener started")
	return nil
}

// Stop closes the bound port and every active connection, and waits for
// all in-flight handlers. Safe to call from any goroutine; stopping a
// stopped listener is a no-op.
func (t *TCPListenerService) Stop() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		t.logger.Warn().Msg("TCP listener is not running")
		return nil
	}
	t.running = false
	t.cancel()
	t.listener.Close()
	for conn := range t.conns {
		conn.Close()
	}
	t.mu.Unlock()

	t.wg.Wait()
	t.logger.Info().Msg("TCP listener stopped")
	return nil
}

// Addr returns the actual bound address, or nil while stopped. Useful
// when the configured bind uses an ephemeral port.
func (t *TCPListenerService) Addr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running || t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

// Status reports availability and the drop counters.
func (t *TCPListenerService) Status() ListenerStatus {
	t.mu.Lock()
	running := t.running
	t.mu.Unlock()

	return ListenerStatus{
		Running:        running,
		Bind:           t.bind,
		FramesIngested: t.ingestor.framesIngested.Load(),
		ParseErrors:    t.ingestor.parseErrors.Load(),
		UnknownDevices: t.ingestor.unknownDevices.Load(),
	}
}

func (t *TCPListenerService) acceptLoop() {
	defer t.wg.Done()

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.ctx.Done():
				return
			default:
				t.logger.Warn().Err(err).Msg("Accept failure")
				continue
			}
		}

		t.trackConn(conn)
		t.wg.Add(1)
		go t.handleConn(conn)
	}
}

// handleConn reads newline-delimited frames until the peer disconnects
// or the listener stops. Malformed frames are dropped and counted, the
// connection stays open.
func (t *TCPListenerService) handleConn(conn net.Conn) {
	defer t.wg.Done()
	defer t.untrackConn(conn)
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	t.logger.Debug().Str("remote", remote).Msg("Device connected")

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		t.ingestor.handleFrame(line)
	}

	if err := scanner.Err(); err != nil && t.ctx.Err() == nil {
		t.logger.Debug().Err(err).Str("remote", remote).Msg("Connection read ended")
	}
}

func (t *TCPListenerService) trackConn(conn net.Conn) {
	t.mu.Lock()
	t.conns[conn] = struct{}{}
	t.mu.Unlock()
}

func (t *TCPListenerService) untrackConn(conn net.Conn) {
	t.mu.Lock()
	delete(t.conns, conn)
	t.mu.Unlock()
}
