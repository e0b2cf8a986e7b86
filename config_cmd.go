package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# HTTP server
server:
  host: "0.0.0.0"
  # $PORT overrides this value
  port: 5000
  cors_origins: ["*"]
  max_text_length: 5000
  # scheme and host used in audio_url; derived from the request when empty
  public_url: ""

# Request defaults
tts:
  # gtts, yandex, doubao or mock
  engine: "gtts"
  language: "id"
  slow: false
  # engine used after fallback_after consecutive failures; empty disables
  fallback_engine: ""
  fallback_after: 3

# Empty paths use the platform data directory
storage:
  cache_dir: ""
  output_dir: ""

# Sweeps run at most once per interval, triggered by /tts requests
cleanup:
  interval: "1h"
  output_max_age: "1h"
  cache_max_entries: 100

engines:
  gtts:
    binary: "gtts-cli"
    requests_per_minute: 50
    timeout: "30s"
  yandex:
    # or $YANDEX_API_KEY / $YANDEX_FOLDER_ID
    api_key: ""
    folder_id: ""
    endpoint: "tts.api.cloud.yandex.net:443"
    voices:
      ru: "alena"
      en: "john"
      de: "lea"
      kk: "madi"
      uz: "nigora"
    timeout: "30s"
  doubao:
    # or $DOUBAO_APP_ID / $DOUBAO_ACCESS_TOKEN
    app_id: ""
    access_token: ""
    cluster: "volcano_tts"
    voice_type: "BV700_streaming"
    endpoint: "wss://openspeech.bytedance.com/api/v1/tts/ws_binary"
    timeout: "30s"

log:
  # debug, info, warn or error
  level: "info"
  # empty uses the platform cache directory
  file: ""
  max_size_mb: 10
  max_backups: 3
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the utero-tts config file",
	Long:    paragraph(fmt.Sprintf("\n%s the utero-tts config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created. A running server picks up cleanup changes without a restart.", keyword("Edit"))),
	Example: paragraph("utero-tts config\nutero-tts config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("utero-tts", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		if err := os.WriteFile(configFile, []byte(defaultConfig), 0o600); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
