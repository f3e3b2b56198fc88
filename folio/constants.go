// Package folio holds project-wide defaults shared by the config layer and the binaries.
package folio

import (
	"os"
	"path/filepath"
)

const (
	DefaultAppName    = "folio"
	DefaultEnvPrefix  = "FOLIO"
	DefaultServerAddr = ":8080"
	DefaultServerURL  = "http://localhost:8080"
	DefaultOwnerName  = "Samarth"
)

var (
	DefaultConfigPath  = filepath.Join(userConfigDir(), DefaultAppName)
	DefaultDataDir     = filepath.Join(userDataDir(), DefaultAppName)
	DefaultDatabaseDSN = filepath.Join(DefaultDataDir, "folio.db")
)

func userConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	return "."
}

func userDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share")
	}
	return "."
}
