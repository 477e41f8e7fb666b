package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "fieldscan"

// GetConfigDir returns the platform-specific config directory.
// Unix: $XDG_CONFIG_HOME/fieldscan or ~/.config/fieldscan
// Windows: %APPDATA%\fieldscan
func GetConfigDir() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	default:
		base = os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			base = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(base, appName), nil
}

// GetDataDir returns the platform-specific data directory.
// Unix: $XDG_DATA_HOME/fieldscan or ~/.local/share/fieldscan
// Windows: %LOCALAPPDATA%\fieldscan
func GetDataDir() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("LOCALAPPDATA")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Local")
		}
	default:
		base = os.Getenv("XDG_DATA_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			base = filepath.Join(home, ".local", "share")
		}
	}
	return filepath.Join(base, appName), nil
}

// GetConfigPath returns the default config.toml location.
func GetConfigPath() (string, error) {
	cfgDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfgDir, "config.toml"), nil
}

// GetDevicesDir returns the directory scanned for device files.
func GetDevicesDir() (string, error) {
	cfgDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfgDir, "devices"), nil
}

// GetDatabasePath returns the default SQLite sample store.
func GetDatabasePath() (string, error) {
	dataDir, err := GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "samples.db"), nil
}

// GetLogPath returns the log file used while the TUI owns the terminal.
func GetLogPath() (string, error) {
	dataDir, err := GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "fieldscan.log"), nil
}

// GetExceptionLogPath returns the log of failed device reads.
func GetExceptionLogPath() (string, error) {
	dataDir, err := GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "exceptions.log"), nil
}

// ResolvePaths fills empty path settings with their platform defaults.
func (c *Config) ResolvePaths() error {
	if c.DevicesDir == "" {
		dir, err := GetDevicesDir()
		if err != nil {
			return err
		}
		c.DevicesDir = dir
	}
	if c.Storage.Path == "" {
		p, err := GetDatabasePath()
		if err != nil {
			return err
		}
		c.Storage.Path = p
	}
	// A relative heartbeat log lives under the data dir.
	if c.Heartbeat.LogPath != "" && !filepath.IsAbs(c.Heartbeat.LogPath) {
		dataDir, err := GetDataDir()
		if err != nil {
			return err
		}
		c.Heartbeat.LogPath = filepath.Join(dataDir, c.Heartbeat.LogPath)
	}
	return nil
}

// EnsureDirs creates all required directories if they don't exist.
func EnsureDirs() error {
	dirs := []func() (string, error){GetConfigDir, GetDataDir, GetDevicesDir}
	for _, fn := range dirs {
		dir, err := fn()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}
	return nil
}
