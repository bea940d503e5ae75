package fleetcloud

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/routewise/telemetry-engine/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider emulates the provider's login and fleet-locations
// endpoints with a rotating bearer token.
type fakeProvider struct {
	mux        http.ServeMux
	logins     atomic.Int64
	fetches    atomic.Int64
	token      atomic.Value
	rejectAuth bool
}

func newFakeProvider(t *testing.T) (*fakeProvider, *httptest.Server) {
	t.Helper()

	p := &fakeProvider{}
	p.token.Store("token-1")

	p.mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		p.logins.Add(1)
		if p.rejectAuth {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var creds map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		if creds["username"] != "operator" || creds["password"] != "secret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"token":      p.token.Load(),
			"expires_in": 3600,
		})
	})

	p.mux.HandleFunc("/api/vehicles/locations", func(w http.ResponseWriter, r *http.Request) {
		p.fetches.Add(1)
		if r.Header.Get("Authorization") != "Bearer "+p.token.Load().(string) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"vehicles": []VehicleFix{
				{DeviceID: "gps-001", Registration: "KA-01-AB-1234", Latitude: 12.97, Longitude: 77.59, GPSTime: time.Now().UTC()},
			},
		})
	})

	server := httptest.NewServer(&p.mux)
	t.Cleanup(server.Close)
	return p, server
}

func newTestClient(server *httptest.Server) *Client {
	return NewClient(Config{
		BaseURL:  server.URL,
		Username: "operator",
		Password: "secret",
		Timeout:  5 * time.Second,
	}, zerolog.Nop())
}

func TestVehicleLocations(t *testing.T) {
	provider, server := newFakeProvider(t)
	client := newTestClient(server)

	fixes, err := client.VehicleLocations(context.Background())
	require.NoError(t, err)
	require.Len(t, fixes, 1)
	assert.Equal(t, "gps-001", fixes[0].DeviceID)
	assert.Equal(t, "KA-01-AB-1234", fixes[0].Registration)

	// The cached token is reused on the next call.
	_, err = client.VehicleLocations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), provider.logins.Load())
}

func TestVehicleLocations_ReauthenticatesOn401(t *testing.T) {
	provider, server := newFakeProvider(t)
	client := newTestClient(server)

	_, err := client.VehicleLocations(context.Background())
	require.NoError(t, err)

	// Provider rotates tokens server-side; the stale cached one earns a
	// 401 and a single forced re-login.
	provider.token.Store("token-2")

	fixes, err := client.VehicleLocations(context.Background())
	require.NoError(t, err)
	assert.Len(t, fixes, 1)
	assert.Equal(t, int64(2), provider.logins.Load())
}

func TestVehicleLocations_AuthFailure(t *testing.T) {
	provider, server := newFakeProvider(t)
	provider.rejectAuth = true
	client := newTestClient(server)

	_, err := client.VehicleLocations(context.Background())
	assert.ErrorIs(t, err, models.ErrTransportUnreachable)
}

func TestVehicleLocations_ProviderDown(t *testing.T) {
	provider, server := newFakeProvider(t)
	_ = provider
	server.Close()
	client := newTestClient(server)

	_, err := client.VehicleLocations(context.Background())
	assert.ErrorIs(t, err, models.ErrTransportUnreachable)
}

func TestProbe(t *testing.T) {
	provider, server := newFakeProvider(t)
	client := newTestClient(server)

	require.NoError(t, client.Probe(context.Background()))
	assert.Equal(t, int64(1), provider.logins.Load())

	provider.rejectAuth = true
	assert.Error(t, client.Probe(context.Background()))
}
