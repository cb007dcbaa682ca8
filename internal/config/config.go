// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides, e.g.
// STAPPLY_BROWSER_HEADLESS.
const EnvPrefix = "STAPPLY"

// CloudAPIKeyEnv names the environment variable holding the cloud browser
// provider's API key. Required when agent.cloud is enabled.
const CloudAPIKeyEnv = "KERNEL_API_KEY"

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Network NetworkConfig `mapstructure:"network" yaml:"network"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	Results ResultsConfig `mapstructure:"results" yaml:"results"`
}

// LoggerConfig controls console and file logging.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig maps log levels to terminal colors for console output.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig controls the local Chrome bootstrap and CDP attachment.
type BrowserConfig struct {
	Headless      bool   `mapstructure:"headless" yaml:"headless"`
	BinaryPath    string `mapstructure:"binary_path" yaml:"binary_path"`
	DebugPort     int    `mapstructure:"debug_port" yaml:"debug_port"`
	UserDataDir   string `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	CDPURL        string `mapstructure:"cdp_url" yaml:"cdp_url"`
	ScreenshotDir string `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
}

// NetworkConfig bounds page waits.
type NetworkConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
}

// AgentConfig configures the evaluation agent harness.
type AgentConfig struct {
	Cloud     bool   `mapstructure:"cloud" yaml:"cloud"`
	Model     string `mapstructure:"model" yaml:"model"`
	TargetURL string `mapstructure:"target_url" yaml:"target_url"`
}

// ResultsConfig controls where evaluation records land.
type ResultsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every configuration parameter.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "stapply-evals")
	v.SetDefault("logger.log_file", "evals.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.debug_port", 9222)
	v.SetDefault("browser.screenshot_dir", "screenshots")

	// -- Network --
	v.SetDefault("network.navigation_timeout", "90s")
	v.SetDefault("network.action_timeout", "120s")

	// -- Agent --
	v.SetDefault("agent.cloud", false)
	v.SetDefault("agent.model", "gpt-4.1-mini")
	v.SetDefault("agent.target_url", "http://localhost:5173/eval/file-upload")

	// -- Results --
	v.SetDefault("results.dir", "results")
}

// BindEnv wires the STAPPLY_* environment variable overrides into viper.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// NewConfigFromViper creates a validated configuration from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Browser.DebugPort <= 0 || c.Browser.DebugPort > 65535 {
		return fmt.Errorf("browser.debug_port must be a valid TCP port")
	}
	if c.Network.NavigationTimeout <= 0 {
		return fmt.Errorf("network.navigation_timeout must be a positive duration")
	}
	if c.Network.ActionTimeout <= 0 {
		return fmt.Errorf("network.action_timeout must be a positive duration")
	}
	if c.Results.Dir == "" {
		return fmt.Errorf("results.dir must not be empty")
	}
	return nil
}
