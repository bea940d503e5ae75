package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/routewise/telemetry-engine/internal/models"
	"github.com/routewise/telemetry-engine/pkg/mqtt"
	"github.com/rs/zerolog"
)

// publishBuffer bounds the queue between the reconciler hook and the
// broker; the feed is best effort and drops under sustained pressure.
const publishBuffer = 256

// PublisherService pushes every canonical-location overwrite to an MQTT
// topic for live consumers. It subscribes to the reconciler's update
// hook and must never block it.
type PublisherService struct {
	// Configuration fields
	topicPrefix string
	qos         int

	// Dependencies
	mqttClient mqtt.MQTTClient
	logger     zerolog.Logger

	// Internal state management
	updates chan models.CanonicalLocation
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewPublisherService creates a new PublisherService publishing under the given topic prefix.
func NewPublisherService(topicPrefix string, qos int, mqttClient mqtt.MQTTClient, logger zerolog.Logger) *PublisherService {
	return &PublisherService{
		topicPrefix: topicPrefix,
		qos:         qos,
		mqttClient:  mqttClient,
		logger:      logger.With().Str("service", "location-publisher").Logger(),
		updates:     make(chan models.CanonicalLocation, publishBuffer),
	}
}

// Enqueue hands a canonical overwrite to the publisher without
// blocking. Wire this as a reconciler update hook.
func (p *PublisherService) Enqueue(loc models.CanonicalLocation) {
	select {
	case p.updates <- loc:
	default:
		p.logger.Warn().Str("device_id", loc.DeviceID).Msg("Publish queue full, update dropped")
	}
}

// Start launches the publish loop.
func (p *PublisherService) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		p.logger.Warn().Msg("Publisher service is already running")
		return errors.New("publisher service is already running")
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.running = true

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case loc := <-p.updates:
				p.publish(loc)
			case <-p.ctx.Done():
				p.logger.Info().Msg("Publisher service is stopping")
				return
			}
		}
	}()

	p.logger.Info().Str("topic_prefix", p.topicPrefix).Msg("Publisher service started")
	return nil
}

// Stop halts the publish loop. Queued updates not yet published are
// dropped; the feed carries only current state.
func (p *PublisherService) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		p.logger.Warn().Msg("Publisher service is not running")
		return errors.New("publisher service is not running")
	}

	p.cancel()
	p.wg.Wait()
	p.running = false

	p.logger.Info().Msg("Publisher service stopped")
	return nil
}

func (p *PublisherService) publish(loc models.CanonicalLocation) {
	payload, err := json.Marshal(loc)
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to serialize canonical location")
		return
	}

	topic := p.topicPrefix + "/" + loc.DeviceID
	token := p.mqttClient.Publish(topic, byte(p.qos), false, payload)
	if token.Wait() && token.Error() != nil {
		p.logger.Error().Err(token.Error()).Str("topic", topic).Msg("Failed to publish canonical location")
		return
	}

	p.logger.Debug().Str("topic", topic).Str("device_id", loc.DeviceID).Msg("Canonical location published")
}
