package sms

import (
	"testing"

	"github.com/routewise/telemetry-engine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandBodies(t *testing.T) {
	assert.Equal(t, "CMD,LOCATE#", LocateCommand())
	assert.Equal(t, "CMD,REALTIME,30#", RealtimeCommand(30))
	assert.Equal(t, "CMD,SERVER,203.0.113.10,5023#", DirectConnectCommand("203.0.113.10", 5023))
}

func TestParseLocationReply_KeyValue(t *testing.T) {
	lat, lon, speed, heading, accuracy, err := ParseLocationReply("lat:12.971599 lon:77.594566 speed:32.5 acc:8.0 head:120")
	require.NoError(t, err)

	assert.InDelta(t, 12.971599, lat, 1e-9)
	assert.InDelta(t, 77.594566, lon, 1e-9)
	assert.InDelta(t, 32.5, speed, 1e-9)
	assert.InDelta(t, 120.0, heading, 1e-9)
	require.NotNil(t, accuracy)
	assert.InDelta(t, 8.0, *accuracy, 1e-9)
}

func TestParseLocationReply_AliasKeys(t *testing.T) {
	lat, lon, speed, heading, accuracy, err := ParseLocationReply("LAT:1.5 lng:2.5 spd:10 crs:90")
	require.NoError(t, err)

	assert.InDelta(t, 1.5, lat, 1e-9)
	assert.InDelta(t, 2.5, lon, 1e-9)
	assert.InDelta(t, 10.0, speed, 1e-9)
	assert.InDelta(t, 90.0, heading, 1e-9)
	assert.Nil(t, accuracy)
}

func TestParseLocationReply_MapsLink(t *testing.T) {
	lat, lon, speed, heading, accuracy, err := ParseLocationReply("Current position http://maps.google.com/maps?q=12.971599,77.594566")
	require.NoError(t, err)

	assert.InDelta(t, 12.971599, lat, 1e-9)
	assert.InDelta(t, 77.594566, lon, 1e-9)
	assert.Zero(t, speed)
	assert.Zero(t, heading)
	assert.Nil(t, accuracy)
}

func TestParseLocationReply_MapsLinkWithQuery(t *testing.T) {
	lat, lon, _, _, _, err := ParseLocationReply("https://maps.google.com/maps?q=-33.865143,151.209900&z=15")
	require.NoError(t, err)

	assert.InDelta(t, -33.865143, lat, 1e-9)
	assert.InDelta(t, 151.209900, lon, 1e-9)
}

func TestParseLocationReply_Malformed(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"no coordinates", "speed:32.5 head:120"},
		{"lat without lon", "lat:12.97"},
		{"prose", "device will reply shortly"},
		{"maps link missing lon", "http://maps.google.com/maps?q=12.97"},
		{"maps link not numeric", "http://maps.google.com/maps?q=abc,def"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, _, _, _, err := ParseLocationReply(tc.body)
			assert.ErrorIs(t, err, models.ErrParse)
		})
	}
}
