package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/utero-ai/utero-tts/internal/config"
	"github.com/utero-ai/utero-tts/internal/server"
	"github.com/utero-ai/utero-tts/internal/tts"
	"github.com/utero-ai/utero-tts/internal/ttypes"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the HTTP server",
	Long:    paragraph(fmt.Sprintf("\n%s the TTS HTTP server. This is also what running utero-tts without a command does.", keyword("Run"))),
	Example: paragraph("utero-tts serve\nutero-tts serve --port 8080 --engine mock"),
	Args:    cobra.NoArgs,
	RunE:    runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 0, "port to listen on (default 5000, or $PORT)")
	serveCmd.Flags().String("host", "", "interface to bind (default 0.0.0.0)")

	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := log.Default()

	// An explicit flag beats $PORT.
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}

	checkEngine(logger, engineType, cfg.Engines)

	svc, err := newService(logger)
	if err != nil {
		return err
	}
	defer svc.Close() //nolint:errcheck

	janitor := tts.NewJanitor(svc.Output(), svc.Cache(), tts.PolicyFromConfig(cfg.Cleanup), tts.SystemClock{}, logger.WithPrefix("cleanup"))

	srv, err := server.New(server.ConfigFrom(&cfg, Version), svc, janitor, logger)
	if err != nil {
		return err
	}

	if path := viper.ConfigFileUsed(); path != "" {
		watcher, err := config.NewWatcher(path, logger.WithPrefix("config"), func(c *config.Config, err error) {
			if err != nil {
				logger.Warn("Keeping previous configuration", "err", err)
				return
			}
			janitor.SetPolicy(tts.PolicyFromConfig(c.Cleanup))
			if lvl, err := log.ParseLevel(c.Log.Level); err == nil && !debug {
				logger.SetLevel(lvl)
			}
		})
		if err != nil {
			logger.Warn("Config hot reload disabled", "err", err)
		} else {
			defer watcher.Close() //nolint:errcheck
		}
	}

	logger.Info("Starting Utero AI Backend",
		"engine", svc.Engine().Name,
		"cache", cfg.Storage.CacheDir,
		"output", cfg.Storage.OutputDir,
		"addr", cfg.Server.Addr(),
		"debug", cfg.Server.Debug,
	)

	ctx, stop := signal.NotifyContext(runContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}

// runContext returns the command context, or Background when run outside
// Execute.
func runContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// checkEngine warns, with setup instructions, when the engine looks
// unusable. The server still starts; requests fail until it is fixed.
func checkEngine(logger *log.Logger, engine ttypes.EngineType, enginesCfg config.EnginesConfig) bool {
	err := tts.QuickValidation(engine, enginesCfg)
	if err == nil {
		return true
	}
	logger.Warn("Engine may not work", "engine", engine, "err", err)
	if result := tts.ValidateEngine(engine, enginesCfg); result.Guidance != "" {
		logger.Warn(result.Guidance)
	}
	return false
}
