package config

import (
	"fmt"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
)

// AppName names the config file, the env prefix and the platform directories.
const AppName = "utero-tts"

// Scope returns the per-user platform directories for the application.
func Scope() *gap.Scope {
	return gap.NewScope(gap.User, AppName)
}

// ConfigDirs returns the directories searched for utero-tts.yml, in order.
// $UTERO_CONFIG_HOME wins over $XDG_CONFIG_HOME, which wins over the platform
// default.
func ConfigDirs() ([]string, error) {
	dirs, err := Scope().ConfigDirs()
	if err != nil {
		return nil, fmt.Errorf("could not find configuration directory: %w", err)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, AppName)}, dirs...)
	}

	if c := os.Getenv("UTERO_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	return dirs, nil
}

// DataPath returns name inside the user data directory.
func DataPath(name string) (string, error) {
	p, err := Scope().DataPath(name)
	if err != nil {
		return "", fmt.Errorf("could not find data directory: %w", err)
	}
	return p, nil
}

// LogFilePath returns the default location of the rotating log file.
func LogFilePath() (string, error) {
	dir, err := Scope().CacheDir()
	if err != nil {
		return "", fmt.Errorf("could not find cache directory: %w", err)
	}
	return filepath.Join(dir, AppName+".log"), nil
}

// ExpandPath expands a leading ~ and any environment variables in path.
func ExpandPath(path string) string {
	s, err := homedir.Expand(path)
	if err == nil {
		return os.ExpandEnv(s)
	}
	return os.ExpandEnv(path)
}
