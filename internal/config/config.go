// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"serial-commander/internal/executor"
	"serial-commander/internal/protocol"
	"serial-commander/internal/response"
)

const (
	// DefaultFileName is the settings file looked up when no path is given
	DefaultFileName = "esp32_config"
	envPrefix       = "SERIAL_COMMANDER"

	uartKey     = "esp32_uart_config"
	patternsKey = "esp32_response_patterns"
)

// requiredUARTKeys must be present in the UART group. The port may come from
// the command line instead.
var requiredUARTKeys = []string{"baud_rate", "timeout", "line_terminator", "esp32_boot_delay"}

// Config represents the application configuration
type Config struct {
	UART     UARTConfig        `mapstructure:"esp32_uart_config"`
	Patterns map[string]string `mapstructure:"esp32_response_patterns"`
	Retry    RetryConfig       `mapstructure:"retry"`
	Logging  LoggingConfig     `mapstructure:"logging"`
	Server   ServerConfig      `mapstructure:"server"`
}

// UARTConfig mirrors the device settings group. Durations are seconds.
type UARTConfig struct {
	DefaultPort    string  `mapstructure:"default_port"`
	BaudRate       int     `mapstructure:"baud_rate"`
	Timeout        float64 `mapstructure:"timeout"`
	LineTerminator string  `mapstructure:"line_terminator"`
	BootDelay      float64 `mapstructure:"esp32_boot_delay"`
}

// RetryConfig represents the command retry policy
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Delay       time.Duration `mapstructure:"delay"`
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

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           string        `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// Load loads configuration from path, or from esp32_config.json in the
// usual locations when path is empty, then applies SERIAL_COMMANDER_*
// environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("json")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultFileName)
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.serial-commander")
	}

	// Environment variable support
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("config file not found: %w", err)
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := checkRequired(v); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	terminator, err := unescape(config.UART.LineTerminator)
	if err != nil {
		return nil, &protocol.ConfigError{
			Kind:  protocol.InvalidValue,
			Field: uartKey + ".line_terminator",
			Value: config.UART.LineTerminator,
		}
	}
	config.UART.LineTerminator = terminator

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults sets default values for the optional groups only, so that the
// required device groups are reported missing rather than silently filled.
func setDefaults(v *viper.Viper) {
	policy := executor.DefaultRetryPolicy()
	v.SetDefault("retry.max_attempts", policy.MaxAttempts)
	v.SetDefault("retry.delay", policy.Delay.String())

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", "8084")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.allowed_origins", []string{"*"})
}

func checkRequired(v *viper.Viper) error {
	for _, key := range []string{uartKey, patternsKey} {
		if !v.IsSet(key) {
			return &protocol.ConfigError{Kind: protocol.MissingField, Field: key}
		}
	}
	for _, key := range requiredUARTKeys {
		if !v.IsSet(uartKey + "." + key) {
			return &protocol.ConfigError{Kind: protocol.MissingField, Field: uartKey + "." + key}
		}
	}
	return nil
}

// validate validates the configuration
func validate(config *Config) error {
	uart := config.UART
	if uart.BaudRate <= 0 {
		return invalid("esp32_uart_config.baud_rate", uart.BaudRate)
	}
	if uart.Timeout <= 0 || math.IsNaN(uart.Timeout) {
		return invalid("esp32_uart_config.timeout", uart.Timeout)
	}
	if uart.BootDelay < 0 || math.IsNaN(uart.BootDelay) {
		return invalid("esp32_uart_config.esp32_boot_delay", uart.BootDelay)
	}
	if uart.LineTerminator == "" || len(uart.LineTerminator) > protocol.MaxTerminatorLength {
		return invalid("esp32_uart_config.line_terminator", strconv.Quote(uart.LineTerminator))
	}

	if config.Retry.MaxAttempts < 1 {
		return invalid("retry.max_attempts", config.Retry.MaxAttempts)
	}
	if config.Retry.Delay < 0 {
		return invalid("retry.delay", config.Retry.Delay)
	}

	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if !slices.Contains(validLevels, config.Logging.Level) {
		return invalid("logging.level", config.Logging.Level)
	}

	if _, err := config.Registry(); err != nil {
		return fmt.Errorf("invalid %s: %w", patternsKey, err)
	}
	return nil
}

func invalid(field string, value any) error {
	return &protocol.ConfigError{Kind: protocol.InvalidValue, Field: field, Value: value}
}

// unescape turns a terminator written with escapes, such as `\r\n` from an
// environment variable, into its bytes.
func unescape(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	return strconv.Unquote(`"` + s + `"`)
}

// SessionConfig converts the UART group into session settings for port
func (c *Config) SessionConfig(port string) protocol.SessionConfig {
	if port == "" {
		port = c.UART.DefaultPort
	}
	return protocol.SessionConfig{
		Port:        port,
		BaudRate:    c.UART.BaudRate,
		Timeout:     seconds(c.UART.Timeout),
		Terminator:  c.UART.LineTerminator,
		SettleDelay: seconds(c.UART.BootDelay),
	}
}

// RetryPolicy returns the configured executor retry policy
func (c *Config) RetryPolicy() executor.RetryPolicy {
	return executor.RetryPolicy{
		MaxAttempts: c.Retry.MaxAttempts,
		Delay:       c.Retry.Delay,
	}
}

// Registry builds the response registry: built-in templates, with any
// configured pattern replacing the template of its kind.
func (c *Config) Registry() (*response.Registry, error) {
	if len(c.Patterns) == 0 {
		return response.DefaultRegistry(), nil
	}
	overrides := make(map[response.Kind]string, len(c.Patterns))
	for name, expr := range c.Patterns {
		overrides[response.Kind(strings.ToUpper(name))] = expr
	}
	return response.NewRegistry(overrides)
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
