package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/routewise/telemetry-engine/internal/api"
	"github.com/routewise/telemetry-engine/internal/devices"
	"github.com/routewise/telemetry-engine/internal/reconciler"
	"github.com/routewise/telemetry-engine/internal/services"
	"github.com/routewise/telemetry-engine/internal/service_registry"
	"github.com/routewise/telemetry-engine/internal/store"
	"github.com/routewise/telemetry-engine/internal/utils"
	"github.com/routewise/telemetry-engine/pkg/file"
	"github.com/routewise/telemetry-engine/pkg/fleetcloud"
	"github.com/routewise/telemetry-engine/pkg/geocode"
	"github.com/routewise/telemetry-engine/pkg/mqtt"
	"github.com/routewise/telemetry-engine/pkg/sms"
	"github.com/routewise/telemetry-engine/pkg/wire"
	"github.com/rs/zerolog"
)

func main() {
	// Set up structured logging with JSON output
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Initialize file operations handler
	fileClient := file.NewFileService()

	// Load configuration from file
	config, err := utils.LoadConfig("configs/config.yaml", fileClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Open the records store
	recordsStore, err := store.Open(config.Store.Driver, config.Store.DSN, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open records store")
	}
	defer recordsStore.Close()

	// Device registry and reconciler are shared by every adapter
	deviceRegistry, err := devices.NewRegistry(recordsStore, config.Registry.MinimumFirmware, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create device registry")
	}

	rec := reconciler.New(recordsStore, reconciler.Config{
		Tolerance:  config.Reconciler.Tolerance.Std(),
		StaleAfter: config.Reconciler.StaleAfter.Std(),
	}, log)

	decoder := wire.NewTextDecoder()

	// Socket listeners
	tcpListener := services.NewTCPListenerService(config.Services.TCPListener.Bind, decoder, deviceRegistry, rec, log)
	udpListener := services.NewUDPListenerService(config.Services.UDPListener.Bind, config.Services.UDPListener.Workers,
		decoder, deviceRegistry, rec, log)

	// SMS command channel
	gateway, err := buildSMSGateway(config, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open SMS gateway")
	}
	defer gateway.Close()

	smsService := services.NewSMSService(gateway, deviceRegistry, rec,
		config.Services.SMS.ReplyTimeout.Std(), config.Services.SMS.DirectIP, config.Services.SMS.DirectPort, log)

	// Cloud poll adapter and sync scheduler
	cloudClient := fleetcloud.NewClient(fleetcloud.Config{
		BaseURL:  config.Services.CloudSync.BaseURL,
		Username: config.Services.CloudSync.Username,
		Password: config.Services.CloudSync.Password,
		Timeout:  config.Services.CloudSync.Timeout.Std(),
	}, log)
	cloudSync := services.NewCloudSyncService(cloudClient, deviceRegistry, rec, recordsStore,
		config.Services.CloudSync.Interval.Std(), config.Services.CloudSync.Timeout.Std(),
		config.Services.CloudSync.AutoEnabled, log)

	// Create a new service registry to manage long-running services
	serviceRegistry := service_registry.NewServiceRegistry(log)
	if config.Services.TCPListener.Enabled {
		serviceRegistry.RegisterService("tcp-listener", tcpListener)
	}
	if config.Services.UDPListener.Enabled {
		serviceRegistry.RegisterService("udp-listener", udpListener)
	}
	if config.Services.CloudSync.Enabled {
		serviceRegistry.RegisterService("cloud-sync", cloudSync)
	}

	// Live canonical-location feed
	var mqttClient *mqtt.MqttService
	if config.Services.Publisher.Enabled {
		mqttClient = mqtt.NewMqttService(fileClient)
		clientID := config.MQTT.ClientID + "-" + uuid.New().String()
		if err := mqttClient.Initialize(config.MQTT.Broker, clientID, config.MQTT.CACertificate); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize MQTT connection")
		}
		publisher := services.NewPublisherService(config.Services.Publisher.Topic,
			config.Services.Publisher.QOS, mqttClient, log)
		rec.OnUpdate(publisher.Enqueue)
		serviceRegistry.RegisterService("location-publisher", publisher)
	}

	// Start all registered services in the registry
	if err := serviceRegistry.StartServices(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start services")
	}
	log.Info().Msg("All services started successfully")

	// Administrative API for the surrounding admin backend
	geocoder := buildGeocoder(config, log)
	adminServer := api.NewServer(deviceRegistry, rec, smsService, tcpListener, udpListener, cloudSync, geocoder, log)
	httpServer := &http.Server{Addr: config.API.Bind, Handler: adminServer.Router()}
	go func() {
		log.Info().Str("bind", config.API.Bind).Msg("Administrative API listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Administrative API failed")
		}
	}()

	// Handle graceful shutdown
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	log.Info().Msg("Shutting down gracefully...")
	httpServer.Close()
	serviceRegistry.StopServices()
	if mqttClient != nil {
		mqttClient.Disconnect(250)
	}
}

// buildSMSGateway selects the configured gateway implementation.
func buildSMSGateway(config *utils.Config, log zerolog.Logger) (sms.Gateway, error) {
	cfg := config.Services.SMS
	if cfg.Gateway == "serial" {
		return sms.OpenSerialModem(cfg.SerialPort, cfg.BaudRate, log)
	}
	return sms.NewHTTPGateway(cfg.SendURL, cfg.ReceiveURL, cfg.APIKey, cfg.ReplyTimeout.Std(), log), nil
}

// buildGeocoder enables reverse geocoding on the read path when an API
// key is configured.
func buildGeocoder(config *utils.Config, log zerolog.Logger) geocode.Resolver {
	if !config.Geocode.Enabled {
		return geocode.NoopResolver{}
	}
	resolver, err := geocode.NewGoogleResolver(config.Geocode.MapsAPIKey)
	if err != nil {
		log.Warn().Err(err).Msg("Reverse geocoding disabled, failed to create Google Maps client")
		return geocode.NoopResolver{}
	}
	return resolver
}
