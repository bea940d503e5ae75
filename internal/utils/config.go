package utils

import (
	"time"

	"github.com/routewise/telemetry-engine/pkg/file"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "45s" or "2m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config represents the structure of the configuration file.
type Config struct {
	Store struct {
		Driver string `yaml:"driver"` // "sqlite" or "postgres"
		DSN    string `yaml:"dsn"`    // Database connection string
	} `yaml:"store"`

	MQTT struct {
		Broker        string `yaml:"broker"`         // MQTT broker address
		ClientID      string `yaml:"client_id"`      // MQTT client ID
		CACertificate string `yaml:"ca_certificate"` // Path to the CA certificate, empty for plaintext
	} `yaml:"mqtt"`

	Registry struct {
		MinimumFirmware string `yaml:"minimum_firmware"` // Lowest supported device firmware version
	} `yaml:"registry"`

	Reconciler struct {
		Tolerance  Duration `yaml:"tolerance"`   // Near-tie window for the canonical tie-break
		StaleAfter Duration `yaml:"stale_after"` // Canonical fix age before tracking reads stale
	} `yaml:"reconciler"`

	Services struct {
		TCPListener struct {
			Enabled bool   `yaml:"enabled"` // Enable/disable the TCP listener
			Bind    string `yaml:"bind"`    // Listen address, e.g. ":5023"
		} `yaml:"tcp_listener"`

		UDPListener struct {
			Enabled bool   `yaml:"enabled"` // Enable/disable the UDP listener
			Bind    string `yaml:"bind"`    // Listen address, e.g. ":5024"
			Workers int    `yaml:"workers"` // Datagram worker pool size
		} `yaml:"udp_listener"`

		SMS struct {
			Gateway      string        `yaml:"gateway"`       // "serial" or "http"
			SerialPort   string        `yaml:"serial_port"`   // Modem serial port (serial gateway)
			BaudRate     int           `yaml:"baud_rate"`     // Modem baud rate (serial gateway)
			SendURL      string        `yaml:"send_url"`      // Outbound endpoint (http gateway)
			ReceiveURL   string        `yaml:"receive_url"`   // Inbound poll endpoint (http gateway)
			APIKey       string   `yaml:"api_key"`       // Gateway API key (http gateway)
			ReplyTimeout Duration `yaml:"reply_timeout"` // Bounded wait for a device reply
			DirectIP     string   `yaml:"direct_ip"`     // Default server IP for direct-connect reconfiguration
			DirectPort   int      `yaml:"direct_port"`   // Default server port for direct-connect reconfiguration
		} `yaml:"sms"`

		CloudSync struct {
			Enabled     bool     `yaml:"enabled"`      // Enable/disable the sync scheduler service
			AutoEnabled bool     `yaml:"auto_enabled"` // Initial state of the automatic-sync flag
			BaseURL     string   `yaml:"base_url"`     // Fleet-tracking provider base URL
			Username    string   `yaml:"username"`     // Provider account
			Password    string   `yaml:"password"`     // Provider credential
			Interval    Duration `yaml:"interval"`     // Scheduled sync interval
			Timeout     Duration `yaml:"timeout"`      // Per-call HTTP timeout
		} `yaml:"cloud_sync"`

		Publisher struct {
			Enabled bool   `yaml:"enabled"` // Enable/disable the live location publisher
			Topic   string `yaml:"topic"`   // MQTT topic prefix for canonical fixes
			QOS     int    `yaml:"qos"`     // MQTT QoS level for published fixes
		} `yaml:"publisher"`
	} `yaml:"services"`

	API struct {
		Bind string `yaml:"bind"` // Administrative HTTP listen address
	} `yaml:"api"`

	Geocode struct {
		Enabled    bool   `yaml:"enabled"`      // Enable reverse geocoding on the read path
		MapsAPIKey string `yaml:"maps_api_key"` // Google Maps API key
	} `yaml:"geocode"`
}

// LoadConfig loads the YAML configuration from the specified file.
// It returns a pointer to the Config struct and an error if loading fails.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	// Use the ReadYamlFile method from fileClient
	var config Config
	err := fileClient.ReadYamlFile(filename, &config)
	if err != nil {
		return nil, err
	}

	return &config, nil
}
