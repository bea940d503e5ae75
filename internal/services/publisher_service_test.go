package services

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/routewise/telemetry-engine/internal/mocks"
	"github.com/routewise/telemetry-engine/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestPublisher_PublishesCanonicalUpdates(t *testing.T) {
	token := new(mocks.MockToken)
	token.On("Wait").Return(true)
	token.On("Error").Return(nil)

	published := make(chan []byte, 1)
	client := new(mocks.MockMQTTClient)
	client.On("Publish", "fleet/locations/gps-001", byte(1), false, mock.Anything).
		Run(func(args mock.Arguments) {
			published <- args.Get(3).([]byte)
		}).
		Return(token)

	svc := NewPublisherService("fleet/locations", 1, client, zerolog.Nop())
	require.NoError(t, svc.Start())
	defer svc.Stop()

	now := time.Now().UTC()
	svc.Enqueue(models.CanonicalLocation{
		DeviceID:   "gps-001",
		Latitude:   12.97,
		Longitude:  77.59,
		Source:     models.SourceTCP,
		ObservedAt: now,
	})

	select {
	case payload := <-published:
		var loc models.CanonicalLocation
		require.NoError(t, json.Unmarshal(payload, &loc))
		assert.Equal(t, "gps-001", loc.DeviceID)
		assert.Equal(t, 12.97, loc.Latitude)
	case <-time.After(5 * time.Second):
		t.Fatal("canonical update was not published")
	}

	client.AssertExpectations(t)
}

func TestPublisher_EnqueueNeverBlocksWhenFull(t *testing.T) {
	client := new(mocks.MockMQTTClient)
	svc := NewPublisherService("fleet/locations", 0, client, zerolog.Nop())

	// Not started: the queue fills and further updates drop silently.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < publishBuffer+50; i++ {
			svc.Enqueue(models.CanonicalLocation{DeviceID: "gps-001"})
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
}

func TestPublisher_Lifecycle(t *testing.T) {
	client := new(mocks.MockMQTTClient)
	svc := NewPublisherService("fleet/locations", 0, client, zerolog.Nop())

	require.NoError(t, svc.Start())
	assert.Error(t, svc.Start())

	require.NoError(t, svc.Stop())
	assert.Error(t, svc.Stop())
}
