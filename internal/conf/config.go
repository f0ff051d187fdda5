// Package conf loads and holds the application settings.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"

	"github.com/bedjamahdi/scanpest-go/internal/errors"
)

// Settings holds the full application configuration.
type Settings struct {
	Debug bool // true to enable debug level logging

	Server ServerSettings // remote sync endpoint
	Auth   AuthSettings   // credentials for the sync server
	Output OutputSettings // local database backends
	Media  MediaSettings  // downloaded image storage
	Sync   SyncSettings   // sync orchestration
}

// AuthSettings carries the stored login for the sync server.
type AuthSettings struct {
	UserID int    // server-side user id
	Token  string // API token issued at login
}

// ServerSettings describes the remote sync endpoint.
type ServerSettings struct {
	URL     string // base URL of the sync server, e.g. https://api.example.com/
	Timeout int    // request timeout in seconds
}

// OutputSettings selects and configures the local record store.
type OutputSettings struct {
	SQLite SQLiteSettings
	MySQL  MySQLSettings
}

// SQLiteSettings configures the embedded SQLite store.
type SQLiteSettings struct {
	Enabled bool
	Path    string // path to the database file
}

// MySQLSettings configures an optional MySQL-backed store.
type MySQLSettings struct {
	Enabled  bool
	Username string
	Password string
	Host     string
	Port     string
	Database string
}

// MediaSettings configures where materialized images are kept.
type MediaSettings struct {
	Path string // directory for downloaded detection images
}

// SyncSettings configures the sync orchestrator.
type SyncSettings struct {
	OnStart  bool   // run a sync pass at startup
	Language string // language for user-facing sync messages: en, fr or ar
}

var settingsMutex sync.Mutex

// Load reads the configuration from disk and returns the populated settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	return settings, nil
}

// initViper initializes viper with config paths and default values.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// No config file, run on defaults.
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// ValidateSettings checks settings for configuration errors.
func ValidateSettings(settings *Settings) error {
	if settings.Server.URL == "" {
		return errors.Newf("server.url must be set").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if !settings.Output.SQLite.Enabled && !settings.Output.MySQL.Enabled {
		return errors.Newf("no database backend enabled").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if settings.Output.SQLite.Enabled && settings.Output.SQLite.Path == "" {
		return errors.Newf("output.sqlite.path must be set").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

// GetDefaultConfigPaths returns the directories searched for the config file.
func GetDefaultConfigPaths() ([]string, error) {
	paths := []string{"."}
	if configDir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(configDir, "scanpest"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "scanpest"))
	}
	return paths, nil
}

// GetBasePath expands dir into an absolute directory path, creating it if
// needed, and falls back to the working directory on failure.
func GetBasePath(dir string) string {
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "."
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "."
	}
	return abs
}
