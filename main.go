// Package main provides the entry point for the utero-tts server and CLI.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/utero-ai/utero-tts/internal/cache"
	"github.com/utero-ai/utero-tts/internal/config"
	"github.com/utero-ai/utero-tts/internal/tts"
	"github.com/utero-ai/utero-tts/internal/tts/engines"
	"github.com/utero-ai/utero-tts/internal/ttypes"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	debug      bool
	engineName string

	// cfg is the configuration resolved in PersistentPreRunE.
	cfg        config.Config
	engineType ttypes.EngineType
	logCloser  = func() error { return nil }

	rootCmd = &cobra.Command{
		Use:   "utero-tts",
		Short: "Cached text-to-speech over HTTP",
		Long: paragraph(
			fmt.Sprintf("\nTurn text into %s, cached on disk and served over HTTP.", keyword("spoken MP3")),
		),
		SilenceErrors:     false,
		SilenceUsage:      true,
		TraverseChildren:  true,
		Args:              cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: runServe,
	}
)

func validateOptions(cmd *cobra.Command) error {
	if cmd.Flags().Changed("config") {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	loaded, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	cfg = loaded

	closer, err := setupLog(cfg.Log, debug || cfg.Server.Debug)
	if err != nil {
		return fmt.Errorf("unable to set up logging: %w", err)
	}
	logCloser = closer

	engineType, err = tts.ValidateEngineSelection(engineName, cfg.TTS.Engine)
	if err != nil {
		return fmt.Errorf("TTS validation failed: %w", err)
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
	}
	return nil
}

// openStores opens the cache and output directories from cfg.
func openStores(logger *log.Logger) (cacheStore, outputStore *cache.Store, err error) {
	cacheLogger := logger.WithPrefix("cache")
	if cacheStore, err = cache.NewStore(cfg.Storage.CacheDir, cacheLogger); err != nil {
		return nil, nil, err
	}
	if outputStore, err = cache.NewStore(cfg.Storage.OutputDir, cacheLogger); err != nil {
		return nil, nil, err
	}
	return cacheStore, outputStore, nil
}

// newService builds the selected engine on top of both stores.
func newService(logger *log.Logger) (*tts.Service, error) {
	cacheStore, outputStore, err := openStores(logger)
	if err != nil {
		return nil, err
	}

	engine, err := newEngine(logger)
	if err != nil {
		return nil, err
	}

	svc, err := tts.NewService(engine, cacheStore, outputStore, logger.WithPrefix("tts"))
	if err != nil {
		_ = engine.Close()
		return nil, err
	}
	return svc, nil
}

// newEngine builds the selected engine, wrapped with the configured fallback.
func newEngine(logger *log.Logger) (ttypes.TTSEngine, error) {
	engine, err := engines.New(engineType, cfg.Engines)
	if err != nil {
		return nil, err
	}
	if cfg.TTS.FallbackEngine == "" {
		return engine, nil
	}

	fallbackType, err := tts.ValidateEngineSelection(cfg.TTS.FallbackEngine, "")
	if err != nil {
		_ = engine.Close()
		return nil, fmt.Errorf("invalid fallback engine: %w", err)
	}
	fallback, err := engines.New(fallbackType, cfg.Engines)
	if err != nil {
		_ = engine.Close()
		return nil, err
	}
	return engines.NewFallbackEngine(engine, fallback, cfg.TTS.FallbackAfter, logger.WithPrefix("fallback")), nil
}

func main() {
	err := rootCmd.Execute()
	_ = logCloser()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", configFile, fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log at debug level")
	rootCmd.PersistentFlags().StringVarP(&engineName, "engine", "e", "", "TTS engine (gtts, yandex, doubao, mock)")
	rootCmd.PersistentFlags().StringP("lang", "l", "", "default language code")

	_ = viper.BindPFlag("tts.language", rootCmd.PersistentFlags().Lookup("lang"))

	rootCmd.AddCommand(serveCmd, sayCmd, cacheCmd, configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	if err := config.LoadDotEnv(); err != nil {
		log.Warn("Could not load .env file", "err", err)
	}

	dirs, err := config.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName(config.AppName)
	viper.SetConfigType("yaml")
	config.SetDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		configFile = used
		return
	}

	configFile = filepath.Join(dirs[0], config.AppName+".yml")
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
