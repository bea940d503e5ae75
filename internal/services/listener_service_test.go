package services

import (
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/routewise/telemetry-engine/internal/devices"
	"github.com/routewise/telemetry-engine/internal/models"
	"github.com/routewise/telemetry-engine/internal/reconciler"
	"github.com/routewise/telemetry-engine/internal/store"
	"github.com/routewise/telemetry-engine/pkg/wire"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	validRMCFrame   = "gps-001|$GPRMC,083015,A,4807.038,N,01131.000,E,022.4,084.4,020326,003.1,W*62"
	loginFrame      = "gps-001|LOGIN,fw=2.4.1"
	malformedFrame  = "gps-001|not a sentence"
	unknownIDFrame  = "gps-999|$GPRMC,083015,A,4807.038,N,01131.000,E,022.4,084.4,020326,003.1,W*62"
	counterWaitTime = 5 * time.Second
)

func newListenerFixture(t *testing.T) (*devices.Registry, *reconciler.Reconciler, store.Store) {
	t.Helper()

	st, err := store.Open("sqlite", filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	registry, err := devices.NewRegistry(st, "", zerolog.Nop())
	require.NoError(t, err)
	_, err = registry.Register("gps-001", "Bus 12", "TK103", "", "")
	require.NoError(t, err)

	return registry, reconciler.New(st, reconciler.Config{}, zerolog.Nop()), st
}

func TestTCPListener_IngestsFrames(t *testing.T) {
	registry, rec, st := newListenerFixture(t)
	svc := NewTCPListenerService("127.0.0.1:0", wire.NewTextDecoder(), registry, rec, zerolog.Nop())

	require.NoError(t, svc.Start())
	defer svc.Stop()

	conn, err := net.Dial("tcp", svc.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	// A malformed frame is dropped without tearing the connection down;
	// the valid frames after it still land.
	fmt.Fprintf(conn, "%s\n", malformedFrame)
	fmt.Fprintf(conn, "%s\n", loginFrame)
	fmt.Fprintf(conn, "%s\n", validRMCFrame)
	fmt.Fprintf(conn, "%s\n", unknownIDFrame)

	assert.Eventually(t, func() bool {
		status := svc.Status()
		return status.FramesIngested == 1 && status.ParseErrors == 1 && status.UnknownDevices == 1
	}, counterWaitTime, 10*time.Millisecond)

	canonical, err := st.GetCanonical("gps-001")
	require.NoError(t, err)
	assert.Equal(t, models.SourceTCP, canonical.Source)

	// Login frame recorded the firmware and heartbeat.
	device, err := registry.Find("gps-001")
	require.NoError(t, err)
	assert.Equal(t, "2.4.1", device.FirmwareVersion)
	assert.NotNil(t, device.LastHeartbeat)
}

func TestTCPListener_StartIdempotentStopReleasesPort(t *testing.T) {
	registry, rec, _ := newListenerFixture(t)
	svc := NewTCPListenerService("127.0.0.1:0", wire.NewTextDecoder(), registry, rec, zerolog.Nop())

	require.NoError(t, svc.Start())
	addr := svc.Addr().String()
	require.NoError(t, svc.Start())
	assert.True(t, svc.Status().Running)

	require.NoError(t, svc.Stop())
	assert.False(t, svc.Status().Running)
	require.NoError(t, svc.Stop())

	// The port is free again once stopped.
	listener, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	listener.Close()
}

func TestTCPListener_StopClosesActiveConnections(t *testing.T) {
	registry, rec, _ := newListenerFixture(t)
	svc := NewTCPListenerService("127.0.0.1:0", wire.NewTextDecoder(), registry, rec, zerolog.Nop())

	require.NoError(t, svc.Start())

	conn, err := net.Dial("tcp", svc.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, svc.Stop())

	conn.SetReadDeadline(time.Now().Add(counterWaitTime))
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	assert.Error(t, err)
}

func TestUDPListener_IngestsDatagrams(t *testing.T) {
	registry, rec, st := newListenerFixture(t)
	svc := NewUDPListenerService("127.0.0.1:0", 2, wire.NewTextDecoder(), registry, rec, zerolog.Nop())

	require.NoError(t, svc.Start())
	defer svc.Stop()

	conn, err := net.Dial("udp", svc.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	// One datagram may carry several newline-delimited frames.
	_, err = fmt.Fprintf(conn, "%s\n%s\n", validRMCFrame, malformedFrame)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		status := svc.Status()
		return status.FramesIngested == 1 && status.ParseErrors == 1
	}, counterWaitTime, 10*time.Millisecond)

	canonical, err := st.GetCanonical("gps-001")
	require.NoError(t, err)
	assert.Equal(t, models.SourceUDP, canonical.Source)
}

func TestUDPListener_Lifecycle(t *testing.T) {
	registry, rec, _ := newListenerFixture(t)
	svc := NewUDPListenerService("127.0.0.1:0", 2, wire.NewTextDecoder(), registry, rec, zerolog.Nop())

	require.NoError(t, svc.Start())
	require.NoError(t, svc.Start())
	assert.True(t, svc.Status().Running)

	require.NoError(t, svc.Stop())
	assert.False(t, svc.Status().Running)
	require.NoError(t, svc.Stop())
	assert.Nil(t, svc.Addr())
}
