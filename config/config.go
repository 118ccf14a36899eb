package config

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	secretmanagerpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Manager handles configuration loading, validation, and hot reloading
type Manager struct {
	viper       *viper.Viper
	config      *Config
	configLock  sync.RWMutex
	validate    *validator.Validate
	watchConfig bool
	onChange    []func(config *Config)
}

// Config represents the gateway configuration with validation
type Config struct {
	LogLevel       string           `mapstructure:"logLevel" validate:"required,oneof=debug info warning error fatal"`
	SimulationMode bool             `mapstructure:"simulationMode"`
	SimulationSeed int64            `mapstructure:"simulationSeed"`
	Server         ServerConfig     `mapstructure:"server" validate:"required"`
	Streaming      StreamingConfig  `mapstructure:"streaming" validate:"required"`
	Cache          CacheConfig      `mapstructure:"cache"`
	Exchanges      []ExchangeConfig `mapstructure:"exchanges" validate:"dive"`
	Metrics        struct {
		Namespace string `mapstructure:"namespace"`
	} `mapstructure:"metrics"`
}

// ServerConfig holds WebSocket server settings
type ServerConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	ReadBufferSize  int    `mapstructure:"readBufferSize"`
	WriteBufferSize int    `mapstructure:"writeBufferSize"`
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StreamingConfig holds subscription polling settings
type StreamingConfig struct {
	PollInterval       time.Duration `mapstructure:"pollInterval" validate:"required,gte=100ms"`
	FetchTimeout       time.Duration `mapstructure:"fetchTimeout" validate:"required,gte=100ms"`
	BookDepth          int           `mapstructure:"bookDepth" validate:"gte=0,lte=100"`
	SuppressDuplicates bool          `mapstructure:"suppressDuplicates"`
}

// CacheConfig holds snapshot store settings
type CacheConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	MarketDataTTL   time.Duration `mapstructure:"marketDataTTL"`
	OrderBookTTL    time.Duration `mapstructure:"orderBookTTL"`
	MaxEntries      int           `mapstructure:"maxEntries"`
	CleanupInterval time.Duration `mapstructure:"cleanupInterval"`
}

// ExchangeConfig represents exchange-specific configuration with validation
type ExchangeConfig struct {
	Name       string `mapstructure:"name" validate:"required"`
	APIKey     string `mapstructure:"apiKey"`
	APISecret  string `mapstructure:"apiSecret"`
	Testnet    bool   `mapstructure:"testnet"`
	UseSecrets bool   `mapstructure:"useSecrets"`
	// GCP Secret Manager paths
	APIKeySecretPath    string `mapstructure:"apiKeySecretPath" validate:"required_if=UseSecrets true"`
	APISecretSecretPath string `mapstructure:"apiSecretSecretPath" validate:"required_if=UseSecrets true"`
}

// NewManager creates a new configuration manager
func NewManager(configPath string, watchConfig bool) (*Manager, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetEnvPrefix("GOGATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path: %w", err)
		}

		v.SetConfigFile(absPath)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to load configuration file: %w", err)
		}
	}

	m := &Manager{
		viper:       v,
		validate:    validator.New(),
		watchConfig: watchConfig,
		onChange:    make([]func(config *Config), 0),
	}

	if err := m.loadConfig(); err != nil {
		return nil, err
	}

	if watchConfig {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			if err := m.loadConfig(); err != nil {
				fmt.Printf("Error reloading configuration: %v\n", err)
				return
			}

			m.configLock.RLock()
			defer m.configLock.RUnlock()
			for _, callback := range m.onChange {
				callback(m.config)
			}
		})
	}

	return m, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logLevel", "info")
	v.SetDefault("simulationMode", false)
	v.SetDefault("simulationSeed", 0)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.readBufferSize", 4096)
	v.SetDefault("server.writeBufferSize", 4096)
	v.SetDefault("streaming.pollInterval", "5s")
	v.SetDefault("streaming.fetchTimeout", "5s")
	v.SetDefault("streaming.bookDepth", 10)
	v.SetDefault("streaming.suppressDuplicates", false)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.marketDataTTL", "5s")
	v.SetDefault("cache.orderBookTTL", "2s")
	v.SetDefault("cache.maxEntries", 10000)
	v.SetDefault("cache.cleanupInterval", "1m")
}

// loadConfig loads the configuration from Viper into the config struct
func (m *Manager) loadConfig() error {
	var rawConfig Config

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		Result: &rawConfig,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(m.viper.AllSettings()); err != nil {
		return fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := m.validate.Struct(rawConfig); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	m.configLock.Lock()
	m.config = &rawConfig
	m.configLock.Unlock()

	return nil
}

// GetConfig returns the current configuration
func (m *Manager) GetConfig() *Config {
	m.configLock.RLock()
	defer m.configLock.RUnlock()
	return m.config
}

// RegisterOnChangeCallback registers a callback function to be called when the configuration changes
func (m *Manager) RegisterOnChangeCallback(callback func(config *Config)) {
	m.configLock.Lock()
	defer m.configLock.Unlock()
	m.onChange = append(m.onChange, callback)
}

// ResolveSecrets resolves exchange credentials from GCP Secret Manager
func (m *Manager) ResolveSecrets(ctx context.Context, projectID string) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to create secretmanager client: %w", err)
	}
	defer client.Close()

	m.configLock.Lock()
	defer m.configLock.Unlock()

	for i, exch := range m.config.Exchanges {
		if !exch.UseSecrets {
			continue
		}
		apiKey, err := accessSecret(ctx, client, projectID, exch.APIKeySecretPath)
		if err != nil {
			return fmt.Errorf("failed to access API key secret for exchange %s: %w", exch.Name, err)
		}
		m.config.Exchanges[i].APIKey = apiKey

		apiSecret, err := accessSecret(ctx, client, projectID, exch.APISecretSecretPath)
		if err != nil {
			return fmt.Errorf("failed to access API secret for exchange %s: %w", exch.Name, err)
		}
		m.config.Exchanges[i].APISecret = apiSecret
	}

	return nil
}

// accessSecret accesses a secret version from GCP Secret Manager
func accessSecret(ctx context.Context, client *secretmanager.Client, projectID, secretPath string) (string, error) {
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", projectID, secretPath)

	req := &secretmanagerpb.AccessSecretVersionRequest{
		Name: name,
	}
	result, err := client.AccessSecretVersion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to access secret version: %w", err)
	}

	return string(result.Payload.Data), nil
}
