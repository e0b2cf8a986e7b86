package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/utero-ai/utero-tts/internal/config"
)

// setupLog points the default logger at stderr and the rotating log file.
// When stderr is not a terminal, records are written as JSON so hosting
// platforms can ingest them. The returned func closes the log file.
func setupLog(cfg config.LogConfig, debug bool) (func() error, error) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if debug {
		level = log.DebugLevel
	}

	var (
		out    io.Writer = os.Stderr
		closer           = func() error { return nil }
	)
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err == nil { //nolint:gosec
			rotator := &lumberjack.Logger{
				Filename:   cfg.File,
				MaxSize:    cfg.MaxSizeMB,
				MaxBackups: cfg.MaxBackups,
			}
			out = io.MultiWriter(os.Stderr, rotator)
			closer = rotator.Close
		}
		// otherwise file logging is disabled
	}

	log.SetOutput(out)
	log.SetLevel(level)
	log.SetReportTimestamp(true)
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		log.SetFormatter(log.JSONFormatter)
	}
	return closer, nil
}
