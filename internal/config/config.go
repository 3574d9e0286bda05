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
	App        AppConfig        `mapstructure:"app"`
	Panel      PanelConfig      `mapstructure:"panel"`
	Serial     SerialConfig     `mapstructure:"serial"`
	CodeServer CodeServerConfig `mapstructure:"code_server"`
	Station    StationConfig    `mapstructure:"station"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// PanelConfig represents the operator panel HTTP server configuration
type PanelConfig struct {
	Host           string        `mapstructure:"host"`
	Port           string        `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// SerialConfig represents the UART connection configuration
type SerialConfig struct {
	Device      string        `mapstructure:"device"`
	BaudRate    int           `mapstructure:"baud_rate"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

// CodeServerConfig represents the remote code server configuration
type CodeServerConfig struct {
	Endpoint     string        `mapstructure:"endpoint"`
	APIKey       string        `mapstructure:"api_key"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

// StationConfig represents test procedure tuning
type StationConfig struct {
	CableTimeout time.Duration `mapstructure:"cable_timeout"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// Load loads configuration from file and environment variables.
// A missing config file is not an error; defaults cover a test bench
// with a loopback code server and a socat PTY pair.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/boardtester")

	viper.SetEnvPrefix("BOARDTESTER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// ApplyArgs applies positional command line arguments on top of the
// loaded configuration: [server_url] [api_key] [uart_dev].
func (c *Config) ApplyArgs(args []string) {
	if len(args) > 0 && args[0] != "" {
		c.CodeServer.Endpoint = args[0]
	}
	if len(args) > 1 && args[1] != "" {
		c.CodeServer.APIKey = args[1]
	}
	if len(args) > 2 && args[2] != "" {
		c.Serial.Device = args[2]
	}
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.name", "boardtester")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")

	// Panel defaults; the touchscreen browser runs on the same host
	viper.SetDefault("panel.host", "127.0.0.1")
	viper.SetDefault("panel.port", "8073")
	viper.SetDefault("panel.read_timeout", "15s")
	viper.SetDefault("panel.write_timeout", "15s")
	viper.SetDefault("panel.idle_timeout", "120s")

	// Serial defaults; /tmp/ttyMBT01 pairs with a socat PTY for bench runs
	viper.SetDefault("serial.device", "/tmp/ttyMBT01")
	viper.SetDefault("serial.baud_rate", 115200)
	viper.SetDefault("serial.read_timeout", "200ms")

	// Code server defaults
	viper.SetDefault("code_server.endpoint", "http://localhost:8000")
	viper.SetDefault("code_server.api_key", "")
	viper.SetDefault("code_server.fetch_timeout", "10s")

	// Station defaults
	viper.SetDefault("station.cable_timeout", "60s")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")
	viper.SetDefault("logging.output", "./logs/boardtester.log")
	viper.SetDefault("logging.max_size", 10)
	viper.SetDefault("logging.max_backups", 3)
	viper.SetDefault("logging.max_age", 28)
	viper.SetDefault("logging.compress", true)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Panel.Host == "" {
		return fmt.Errorf("panel.host is required")
	}
	if config.Panel.Port == "" {
		return fmt.Errorf("panel.port is required")
	}
	if config.Serial.Device == "" {
		return fmt.Errorf("serial.device is required")
	}
	if config.Serial.BaudRate <= 0 {
		return fmt.Errorf("serial.baud_rate must be positive")
	}
	if config.CodeServer.Endpoint == "" {
		return fmt.Errorf("code_server.endpoint is required")
	}

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

// GetPanelAddr returns the panel server address
func (c *Config) GetPanelAddr() string {
	return fmt.Sprintf("%s:%s", c.Panel.Host, c.Panel.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}
