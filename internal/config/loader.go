package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Env carries the plain environment variables hosting platforms set. They
// take precedence over the config file and UTERO_* variables.
type Env struct {
	Port              int    `env:"PORT"`
	Debug             *bool  `env:"DEBUG"`
	YandexAPIKey      string `env:"YANDEX_API_KEY"`
	YandexFolderID    string `env:"YANDEX_FOLDER_ID"`
	DoubaoAppID       string `env:"DOUBAO_APP_ID"`
	DoubaoAccessToken string `env:"DOUBAO_ACCESS_TOKEN"`
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (".env" when none are
// given) into the process environment. Missing files are not an error and
// variables already set are left alone.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("unable to load %s: %w", f, err)
		}
	}
	return nil
}

// SetDefaults registers every default value with v and enables UTERO_*
// environment overrides (UTERO_SERVER_PORT, UTERO_TTS_ENGINE, ...).
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("server.max_text_length", d.Server.MaxTextLength)
	v.SetDefault("server.public_url", d.Server.PublicURL)
	v.SetDefault("server.debug", d.Server.Debug)

	v.SetDefault("tts.engine", d.TTS.Engine)
	v.SetDefault("tts.language", d.TTS.Language)
	v.SetDefault("tts.slow", d.TTS.Slow)
	v.SetDefault("tts.fallback_engine", d.TTS.FallbackEngine)
	v.SetDefault("tts.fallback_after", d.TTS.FallbackAfter)

	v.SetDefault("storage.cache_dir", d.Storage.CacheDir)
	v.SetDefault("storage.output_dir", d.Storage.OutputDir)

	v.SetDefault("cleanup.interval", d.Cleanup.Interval.String())
	v.SetDefault("cleanup.output_max_age", d.Cleanup.OutputMaxAge.String())
	v.SetDefault("cleanup.cache_max_entries", d.Cleanup.CacheMaxEntries)

	v.SetDefault("engines.gtts.binary", d.Engines.GTTS.Binary)
	v.SetDefault("engines.gtts.requests_per_minute", d.Engines.GTTS.RequestsPerMinute)
	v.SetDefault("engines.gtts.timeout", d.Engines.GTTS.Timeout.String())

	v.SetDefault("engines.yandex.api_key", d.Engines.Yandex.APIKey)
	v.SetDefault("engines.yandex.folder_id", d.Engines.Yandex.FolderID)
	v.SetDefault("engines.yandex.endpoint", d.Engines.Yandex.Endpoint)
	v.SetDefault("engines.yandex.voices", d.Engines.Yandex.Voices)
	v.SetDefault("engines.yandex.timeout", d.Engines.Yandex.Timeout.String())

	v.SetDefault("engines.doubao.app_id", d.Engines.Doubao.AppID)
	v.SetDefault("engines.doubao.access_token", d.Engines.Doubao.AccessToken)
	v.SetDefault("engines.doubao.cluster", d.Engines.Doubao.Cluster)
	v.SetDefault("engines.doubao.voice_type", d.Engines.Doubao.VoiceType)
	v.SetDefault("engines.doubao.endpoint", d.Engines.Doubao.Endpoint)
	v.SetDefault("engines.doubao.timeout", d.Engines.Doubao.Timeout.String())

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)

	v.SetEnvPrefix("utero")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load builds a Config from v, applies the plain environment overrides,
// fills in platform paths and validates the result.
func Load(v *viper.Viper) (Config, error) {
	cfg := DefaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unable to decode configuration: %w", err)
	}

	e, err := env.ParseAs[Env]()
	if err != nil {
		return cfg, fmt.Errorf("error parsing environment: %w", err)
	}
	cfg.ApplyEnv(e)

	if err := cfg.Resolve(); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile reads the YAML file at path on top of the defaults. It uses its own
// viper instance so it is safe to call from the watcher goroutine.
func LoadFile(path string) (Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("unable to read %s: %w", path, err)
	}
	return Load(v)
}

// ApplyEnv copies the set fields of e over c.
func (c *Config) ApplyEnv(e Env) {
	if e.Port != 0 {
		c.Server.Port = e.Port
	}
	if e.Debug != nil {
		c.Server.Debug = *e.Debug
	}
	if e.YandexAPIKey != "" {
		c.Engines.Yandex.APIKey = e.YandexAPIKey
	}
	if e.YandexFolderID != "" {
		c.Engines.Yandex.FolderID = e.YandexFolderID
	}
	if e.DoubaoAppID != "" {
		c.Engines.Doubao.AppID = e.DoubaoAppID
	}
	if e.DoubaoAccessToken != "" {
		c.Engines.Doubao.AccessToken = e.DoubaoAccessToken
	}
}

// Resolve expands user paths and fills empty storage and log locations with
// their platform defaults.
func (c *Config) Resolve() error {
	var err error
	if c.Storage.CacheDir == "" {
		if c.Storage.CacheDir, err = DataPath("audio_cache"); err != nil {
			return err
		}
	}
	if c.Storage.OutputDir == "" {
		if c.Storage.OutputDir, err = DataPath("audio_output"); err != nil {
			return err
		}
	}
	if c.Log.File == "" {
		if c.Log.File, err = LogFilePath(); err != nil {
			return err
		}
	}

	c.Storage.CacheDir = ExpandPath(c.Storage.CacheDir)
	c.Storage.OutputDir = ExpandPath(c.Storage.OutputDir)
	c.Log.File = ExpandPath(c.Log.File)
	return nil
}
