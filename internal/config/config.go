// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Comm      CommConfig      `mapstructure:"comm"`
	Connector ConnectorConfig `mapstructure:"connector"`
	App       AppConfig       `mapstructure:"app"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host" validate:"required"`
	Port         string        `mapstructure:"port" validate:"required"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	TLS          TLSConfig     `mapstructure:"tls"`
}

// TLSConfig represents TLS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"required"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// CommConfig represents communication manager configuration
type CommConfig struct {
	EventBuffer     int                   `mapstructure:"event_buffer"`
	ScanInterval    time.Duration         `mapstructure:"scan_interval"`
	Bluetooth       BluetoothConfig       `mapstructure:"bluetooth"`
	Serial          SerialConfig          `mapstructure:"serial"`
	USB             USBConfig             `mapstructure:"usb"`
	WebsocketDevice WebsocketDeviceConfig `mapstructure:"websocket_device"`
	LovenseConnect  LovenseConnectConfig  `mapstructure:"lovense_connect"`
}

// BluetoothConfig represents BlueZ scanning configuration
type BluetoothConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Adapter      string        `mapstructure:"adapter"`
	NamePrefixes []string      `mapstructure:"name_prefixes"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// SerialConfig represents serial port scanning configuration
type SerialConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	PortPatterns []string      `mapstructure:"port_patterns"`
	USBIDs       []string      `mapstructure:"usb_ids"`
	BaudRate     int           `mapstructure:"baud_rate"`
	DataBits     int           `mapstructure:"data_bits"`
	StopBits     int           `mapstructure:"stop_bits"`
	Parity       string        `mapstructure:"parity"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// USBConfig represents USB dongle scanning configuration
type USBConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	ExtraDevices []string      `mapstructure:"extra_devices"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Debug        bool          `mapstructure:"debug"`
}

// WebsocketDeviceConfig represents the device-side websocket listener
type WebsocketDeviceConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Host             string        `mapstructure:"host"`
	Port             string        `mapstructure:"port"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
}

// LovenseConnectConfig represents the LAN connect service poller
type LovenseConnectConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ConnectorConfig represents the remote connector (client side)
type ConnectorConfig struct {
	Address          string        `mapstructure:"address" validate:"required"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	InboundBuffer    int           `mapstructure:"inbound_buffer"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Version     string `mapstructure:"version" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required"`
	Debug       bool   `mapstructure:"debug"`
}

// Load loads configuration from file and environment variables.
// A missing config file is not an error; defaults and environment apply.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./config", "/etc/haptic-bridge"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	// Environment variable support
	v.SetEnvPrefix("HAPTIC_BRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", "12346")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.tls.enabled", false)

	// Security defaults
	v.SetDefault("security.allowed_origins", []string{})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// Communication manager defaults
	v.SetDefault("comm.event_buffer", 256)
	v.SetDefault("comm.scan_interval", "1s")

	v.SetDefault("comm.bluetooth.enabled", true)
	v.SetDefault("comm.bluetooth.adapter", "")
	v.SetDefault("comm.bluetooth.name_prefixes", []string{"LVS-", "LOVE-", "Lush", "Hush"})
	v.SetDefault("comm.bluetooth.timeout", "10s")

	v.SetDefault("comm.serial.enabled", true)
	v.SetDefault("comm.serial.port_patterns", []string{})
	v.SetDefault("comm.serial.usb_ids", []string{})
	v.SetDefault("comm.serial.baud_rate", 115200)
	v.SetDefault("comm.serial.data_bits", 8)
	v.SetDefault("comm.serial.stop_bits", 1)
	v.SetDefault("comm.serial.parity", "none")
	v.SetDefault("comm.serial.timeout", "1s")

	v.SetDefault("comm.usb.enabled", true)
	v.SetDefault("comm.usb.extra_devices", []string{})
	v.SetDefault("comm.usb.timeout", "5s")
	v.SetDefault("comm.usb.debug", false)

	v.SetDefault("comm.websocket_device.enabled", false)
	v.SetDefault("comm.websocket_device.host", "127.0.0.1")
	v.SetDefault("comm.websocket_device.port", "54817")
	v.SetDefault("comm.websocket_device.handshake_timeout", "10s")

	v.SetDefault("comm.lovense_connect.enabled", false)
	v.SetDefault("comm.lovense_connect.url", "https://api.lovense.com/api/lan/getToys")
	v.SetDefault("comm.lovense_connect.timeout", "5s")

	// Remote connector defaults
	v.SetDefault("connector.address", "ws://127.0.0.1:12345")
	v.SetDefault("connector.handshake_timeout", "10s")
	v.SetDefault("connector.request_timeout", "30s")
	v.SetDefault("connector.inbound_buffer", 256)

	// App defaults
	v.SetDefault("app.name", "haptic-bridge")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if config.Connector.Address == "" {
		return fmt.Errorf("connector.address is required")
	}
	if config.Comm.ScanInterval <= 0 {
		return fmt.Errorf("comm.scan_interval must be positive")
	}
	if config.Comm.EventBuffer < 0 {
		return fmt.Errorf("comm.event_buffer must not be negative")
	}

	// Validate environment
	validEnvs := []string{"development", "staging", "production", "test"}
	isValidEnv := false
	for _, env := range validEnvs {
		if config.App.Environment == env {
			isValidEnv = true
			break
		}
	}
	if !isValidEnv {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	// Validate logging level
	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	isValidLevel := false
	for _, level := range validLevels {
		if config.Logging.Level == level {
			isValidLevel = true
			break
		}
	}
	if !isValidLevel {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	return nil
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// GetWebsocketDeviceAddr returns the device listener address
func (c *Config) GetWebsocketDeviceAddr() string {
	return fmt.Sprintf("%s:%s", c.Comm.WebsocketDevice.Host, c.Comm.WebsocketDevice.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment checks if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.IsDevelopment()
}
