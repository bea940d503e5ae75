package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/routewise/telemetry-engine/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()

	st, err := Open("sqlite", filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestCreateDevice_RejectsDuplicates(t *testing.T) {
	st := newTestStore(t)

	err := st.CreateDevice(&models.GPSDevice{DeviceID: "gps-001", DeviceName: "Bus 12", Status: models.DeviceInactive})
	require.NoError(t, err)

	err = st.CreateDevice(&models.GPSDevice{DeviceID: "gps-001", DeviceName: "Bus 12 again", Status: models.DeviceInactive})
	assert.ErrorIs(t, err, models.ErrDuplicateDevice)
}

func TestGetDevice_NotFound(t *testing.T) {
	st := newTestStore(t)

	_, err := st.GetDevice("missing")
	assert.ErrorIs(t, err, models.ErrDeviceNotFound)
}

func TestListDevices_SIMFilter(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.CreateDevice(&models.GPSDevice{DeviceID: "gps-001", DeviceName: "a", SIMNumber: "+15550001", Status: models.DeviceActive}))
	require.NoError(t, st.CreateDevice(&models.GPSDevice{DeviceID: "gps-002", DeviceName: "b", Status: models.DeviceActive}))

	all, err := st.ListDevices(false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	withSIM, err := st.ListDevices(true)
	require.NoError(t, err)
	require.Len(t, withSIM, 1)
	assert.Equal(t, "gps-001", withSIM[0].DeviceID)
}

func TestSaveCanonical_UpsertsByDevice(t *testing.T) {
	st := newTestStore(t)

	first := &models.CanonicalLocation{DeviceID: "gps-001", Latitude: 1, Longitude: 2, ObservedAt: time.Now().UTC()}
	require.NoError(t, st.SaveCanonical(first))

	second := &models.CanonicalLocation{DeviceID: "gps-001", Latitude: 3, Longitude: 4, ObservedAt: time.Now().UTC()}
	require.NoError(t, st.SaveCanonical(second))

	got, err := st.GetCanonical("gps-001")
	require.NoError(t, err)
	assert.Equal(t, 3.0, got.Latitude)
	assert.Equal(t, 4.0, got.Longitude)
}

func TestHistory_FilterAndOrdering(t *testing.T) {
	st := newTestStore(t)
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		routeID := "route-7"
		if i%2 == 1 {
			routeID = "route-9"
		}
		require.NoError(t, st.AppendHistory(&models.LocationSample{
			ID:         uuid.New().String(),
			DeviceID:   "gps-001",
			RouteID:    routeID,
			Latitude:   float64(i),
			Longitude:  float64(i),
			Source:     models.SourceTCP,
			ObservedAt: base.Add(time.Duration(i) * time.Minute),
			ReceivedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	samples, err := st.History("gps-001", HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, samples, 5)
	// Newest first
	assert.True(t, samples[0].ObservedAt.After(samples[4].ObservedAt))

	routed, err := st.History("gps-001", HistoryFilter{RouteID: "route-9"})
	require.NoError(t, err)
	assert.Len(t, routed, 2)

	windowed, err := st.History("gps-001", HistoryFilter{
		From: base.Add(1 * time.Minute),
		To:   base.Add(3 * time.Minute),
	})
	require.NoError(t, err)
	assert.Len(t, windowed, 3)

	limited, err := st.History("gps-001", HistoryFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestDeviceIDByVehicle(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.SaveAssignment(&models.DeviceAssignment{
		DeviceID:       "gps-001",
		VehicleID:      "KA-01-AB-1234",
		SharingEnabled: true,
	}))

	deviceID, err := st.DeviceIDByVehicle("KA-01-AB-1234")
	require.NoError(t, err)
	assert.Equal(t, "gps-001", deviceID)

	_, err = st.DeviceIDByVehicle("KA-99-ZZ-0000")
	assert.ErrorIs(t, err, models.ErrDeviceNotFound)
}

func TestSyncLogs_NewestFirst(t *testing.T) {
	st := newTestStore(t)
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, st.AppendSyncLog(&models.SyncLogEntry{
			ID:       uuid.New().String(),
			Service:  "fleetcloud",
			Status:   models.SyncSuccess,
			SyncTime: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	entries, err := st.SyncLogs("fleetcloud", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].SyncTime.After(entries[1].SyncTime))
}
