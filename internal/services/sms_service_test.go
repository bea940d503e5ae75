package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/routewise/telemetry-engine/internal/devices"
	"github.com/routewise/telemetry-engine/internal/mocks"
	"github.com/routewise/telemetry-engine/internal/models"
	"github.com/routewise/telemetry-engine/internal/reconciler"
	"github.com/routewise/telemetry-engine/internal/store"
	"github.com/routewise/telemetry-engine/pkg/sms"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newSMSFixture(t *testing.T, gateway sms.Gateway) (*SMSService, store.Store) {
	t.Helper()

	st, err := store.Open("sqlite", filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	registry, err := devices.NewRegistry(st, "", zerolog.Nop())
	require.NoError(t, err)
	_, err = registry.Register("gps-001", "Bus 12", "TK103", "+15550001", "")
	require.NoError(t, err)
	_, err = registry.Register("gps-002", "Bus 14", "TK103", "", "")
	require.NoError(t, err)

	rec := reconciler.New(st, reconciler.Config{}, zerolog.Nop())
	svc := NewSMSService(gateway, registry, rec, 2*time.Second, "203.0.113.10", 5023, zerolog.Nop())
	return svc, st
}

func TestRequestLocation_Success(t *testing.T) {
	gateway := new(mocks.SMSGateway)
	gateway.On("Send", mock.Anything, "+15550001", sms.LocateCommand()).Return(nil)
	gateway.On("AwaitReply", mock.Anything, "+15550001").
		Return("lat:12.971599 lon:77.594566 speed:18.0 acc:6.5", nil)

	svc, st := newSMSFixture(t, gateway)

	result := svc.RequestLocation(context.Background(), "gps-001")
	require.True(t, result.Success, result.Message)
	require.NotNil(t, result.Location)
	assert.Equal(t, models.SourceSMS, result.Location.Source)
	assert.InDelta(t, 12.971599, result.Location.Latitude, 1e-9)

	// The fix folds into the canonical state and history like any other
	// transport's sample.
	canonical, err := st.GetCanonical("gps-001")
	require.NoError(t, err)
	assert.Equal(t, models.SourceSMS, canonical.Source)

	history, err := st.History("gps-001", store.HistoryFilter{})
	require.NoError(t, err)
	assert.Len(t, history, 1)

	gateway.AssertExpectations(t)
}

func TestRequestLocation_GatewayUnreachable(t *testing.T) {
	gateway := new(mocks.SMSGateway)
	gateway.On("Send", mock.Anything, "+15550001", sms.LocateCommand()).
		Return(errors.New("modem not responding"))

	svc, st := newSMSFixture(t, gateway)

	result := svc.RequestLocation(context.Background(), "gps-001")
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "sms gateway unreachable")

	history, err := st.History("gps-001", store.HistoryFilter{})
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRequestLocation_ReplyTimeout(t *testing.T) {
	gateway := new(mocks.SMSGateway)
	gateway.On("Send", mock.Anything, "+15550001", sms.LocateCommand()).Return(nil)
	gateway.On("AwaitReply", mock.Anything, "+15550001").
		Return("", context.DeadlineExceeded)

	svc, _ := newSMSFixture(t, gateway)

	result := svc.RequestLocation(context.Background(), "gps-001")
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "timed out")
}

func TestRequestLocation_UnparseableReplyKeepsPayload(t *testing.T) {
	gateway := new(mocks.SMSGateway)
	gateway.On("Send", mock.Anything, "+15550001", sms.LocateCommand()).Return(nil)
	gateway.On("AwaitReply", mock.Anything, "+15550001").
		Return("low battery, shutting down", nil)

	svc, st := newSMSFixture(t, gateway)

	result := svc.RequestLocation(context.Background(), "gps-001")
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "low battery, shutting down")

	history, err := st.History("gps-001", store.HistoryFilter{})
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRequestLocation_IneligibleDevices(t *testing.T) {
	gateway := new(mocks.SMSGateway)
	svc, _ := newSMSFixture(t, gateway)

	result := svc.RequestLocation(context.Background(), "missing")
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "not found")

	result = svc.RequestLocation(context.Background(), "gps-002")
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "no SIM number")

	gateway.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestEnableRealtime(t *testing.T) {
	gateway := new(mocks.SMSGateway)
	gateway.On("Send", mock.Anything, "+15550001", sms.RealtimeCommand(30)).Return(nil)

	svc, _ := newSMSFixture(t, gateway)

	result := svc.EnableRealtime(context.Background(), "gps-001", 30)
	assert.True(t, result.Success, result.Message)

	result = svc.EnableRealtime(context.Background(), "gps-001", 0)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "positive")

	gateway.AssertExpectations(t)
}

func TestConfigureDirect(t *testing.T) {
	gateway := new(mocks.SMSGateway)
	gateway.On("Send", mock.Anything, "+15550001", sms.DirectConnectCommand("198.51.100.7", 6001)).Return(nil)
	gateway.On("Send", mock.Anything, "+15550001", sms.DirectConnectCommand("203.0.113.10", 5023)).Return(nil)

	svc, _ := newSMSFixture(t, gateway)

	// Explicit target.
	assert.True(t, svc.ConfigureDirect(context.Background(), "gps-001", "198.51.100.7", 6001))

	// Falls back to the configured listener endpoint.
	assert.True(t, svc.ConfigureDirect(context.Background(), "gps-001", "", 0))

	assert.False(t, svc.ConfigureDirect(context.Background(), "missing", "198.51.100.7", 6001))

	gateway.AssertExpectations(t)
}

func TestConfigureDirect_SendFailure(t *testing.T) {
	gateway := new(mocks.SMSGateway)
	gateway.On("Send", mock.Anything, "+15550001", mock.Anything).Return(errors.New("modem not responding"))

	svc, _ := newSMSFixture(t, gateway)

	assert.False(t, svc.ConfigureDirect(context.Background(), "gps-001", "198.51.100.7", 6001))
}
