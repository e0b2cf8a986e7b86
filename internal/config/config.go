// Package config holds the service configuration: defaults, the viper-backed
// loader, environment overrides and a file watcher for hot reloads.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config contains every tunable of the service.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	TTS     TTSConfig     `mapstructure:"tts" yaml:"tts"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Cleanup CleanupConfig `mapstructure:"cleanup" yaml:"cleanup"`
	Engines EnginesConfig `mapstructure:"engines" yaml:"engines"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// ServerConfig contains HTTP boundary settings.
type ServerConfig struct {
	Host          string   `mapstructure:"host" yaml:"host"`
	Port          int      `mapstructure:"port" yaml:"port"`
	CORSOrigins   []string `mapstructure:"cors_origins" yaml:"cors_origins"`
	MaxTextLength int      `mapstructure:"max_text_length" yaml:"max_text_length"`
	// PublicURL overrides the request host when building audio URLs.
	PublicURL string `mapstructure:"public_url" yaml:"public_url"`
	Debug     bool   `mapstructure:"debug" yaml:"debug"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// TTSConfig contains request defaults.
type TTSConfig struct {
	Engine   string `mapstructure:"engine" yaml:"engine"`
	Language string `mapstructure:"language" yaml:"language"`
	Slow     bool   `mapstructure:"slow" yaml:"slow"`

	// FallbackEngine takes over after FallbackAfter consecutive failures of
	// Engine. Empty disables failover.
	FallbackEngine string `mapstructure:"fallback_engine" yaml:"fallback_engine"`
	FallbackAfter  int    `mapstructure:"fallback_after" yaml:"fallback_after"`
}

// StorageConfig locates the two audio stores.
type StorageConfig struct {
	CacheDir  string `mapstructure:"cache_dir" yaml:"cache_dir"`
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`
}

// CleanupConfig controls the opportunistic sweeps.
type CleanupConfig struct {
	Interval        time.Duration `mapstructure:"interval" yaml:"interval"`
	OutputMaxAge    time.Duration `mapstructure:"output_max_age" yaml:"output_max_age"`
	CacheMaxEntries int           `mapstructure:"cache_max_entries" yaml:"cache_max_entries"`
}

// EnginesConfig groups provider specific settings.
type EnginesConfig struct {
	GTTS   GTTSConfig   `mapstructure:"gtts" yaml:"gtts"`
	Yandex YandexConfig `mapstructure:"yandex" yaml:"yandex"`
	Doubao DoubaoConfig `mapstructure:"doubao" yaml:"doubao"`
}

// GTTSConfig configures the gtts-cli engine.
type GTTSConfig struct {
	Binary            string        `mapstructure:"binary" yaml:"binary"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// YandexConfig configures the SpeechKit engine.
type YandexConfig struct {
	APIKey   string `mapstructure:"api_key" yaml:"api_key"`
	FolderID string `mapstructure:"folder_id" yaml:"folder_id"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	// Voices maps a base language ("ru", "en") to a voice name.
	Voices  map[string]string `mapstructure:"voices" yaml:"voices"`
	Timeout time.Duration     `mapstructure:"timeout" yaml:"timeout"`
}

// DoubaoConfig configures the Volcengine websocket engine.
type DoubaoConfig struct {
	AppID       string        `mapstructure:"app_id" yaml:"app_id"`
	AccessToken string        `mapstructure:"access_token" yaml:"access_token"`
	Cluster     string        `mapstructure:"cluster" yaml:"cluster"`
	VoiceType   string        `mapstructure:"voice_type" yaml:"voice_type"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
}

// DefaultConfig returns a Config with the stock values. Storage and log paths
// are left empty and filled from the platform data directory by Resolve.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          5000,
			CORSOrigins:   []string{"*"},
			MaxTextLength: 5000,
		},
		TTS: TTSConfig{
			Engine:        "gtts",
			Language:      "id",
			FallbackAfter: 3,
		},
		Cleanup: CleanupConfig{
			Interval:        time.Hour,
			OutputMaxAge:    time.Hour,
			CacheMaxEntries: 100,
		},
		Engines: EnginesConfig{
			GTTS: GTTSConfig{
				Binary:            "gtts-cli",
				RequestsPerMinute: 50,
				Timeout:           30 * time.Second,
			},
			Yandex: YandexConfig{
				Endpoint: "tts.api.cloud.yandex.net:443",
				Voices: map[string]string{
					"ru": "alena",
					"en": "john",
					"de": "lea",
					"kk": "madi",
					"uz": "nigora",
				},
				Timeout: 30 * time.Second,
			},
			Doubao: DoubaoConfig{
				Cluster:   "volcano_tts",
				VoiceType: "BV700_streaming",
				Endpoint:  "wss://openspeech.bytedance.com/api/v1/tts/ws_binary",
				Timeout:   30 * time.Second,
			},
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 0 and 65535, got %d", c.Server.Port))
	}
	if c.Server.MaxTextLength < 1 {
		errs = append(errs, fmt.Errorf("server.max_text_length must be positive, got %d", c.Server.MaxTextLength))
	}
	if strings.TrimSpace(c.TTS.Language) == "" {
		errs = append(errs, errors.New("tts.language cannot be empty"))
	}
	if c.TTS.FallbackEngine != "" && c.TTS.FallbackAfter < 1 {
		errs = append(errs, fmt.Errorf("tts.fallback_after must be at least 1, got %d", c.TTS.FallbackAfter))
	}
	if c.Storage.CacheDir == "" || c.Storage.OutputDir == "" {
		errs = append(errs, errors.New("storage.cache_dir and storage.output_dir must be set"))
	}
	if c.Cleanup.Interval <= 0 {
		errs = append(errs, fmt.Errorf("cleanup.interval must be positive, got %v", c.Cleanup.Interval))
	}
	if c.Cleanup.OutputMaxAge <= 0 {
		errs = append(errs, fmt.Errorf("cleanup.output_max_age must be positive, got %v", c.Cleanup.OutputMaxAge))
	}
	if c.Cleanup.CacheMaxEntries < 0 {
		errs = append(errs, fmt.Errorf("cleanup.cache_max_entries cannot be negative, got %d", c.Cleanup.CacheMaxEntries))
	}
	if err := c.Engines.GTTS.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("gtts config: %w", err))
	}

	return errors.Join(errs...)
}

// Validate checks the gtts engine settings.
func (c *GTTSConfig) Validate() error {
	if c.Binary == "" {
		return errors.New("gtts binary cannot be empty")
	}
	if c.RequestsPerMinute < 1 {
		return fmt.Errorf("requests_per_minute must be at least 1, got %d", c.RequestsPerMinute)
	}
	if c.Timeout < time.Second {
		return fmt.Errorf("timeout must be at least 1 second, got %v", c.Timeout)
	}
	return nil
}

// Validate checks that the Yandex credentials are present.
func (c *YandexConfig) Validate() error {
	if c.APIKey == "" {
		return errors.New("yandex api_key is required")
	}
	if c.FolderID == "" {
		return errors.New("yandex folder_id is required")
	}
	if c.Endpoint == "" {
		return errors.New("yandex endpoint cannot be empty")
	}
	return nil
}

// Validate checks that the Doubao credentials are present.
func (c *DoubaoConfig) Validate() error {
	if c.AppID == "" || c.AccessToken == "" {
		return errors.New("doubao app_id and access_token are required")
	}
	if c.Endpoint == "" {
		return errors.New("doubao endpoint cannot be empty")
	}
	return nil
}
