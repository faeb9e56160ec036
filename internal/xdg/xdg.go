// Package xdg resolves XDG Base Directory paths for Gatehouse.
package xdg

import (
	"fmt"
	"os"
	"path/filepath"
)

const appName = "gatehouse"

// resolve returns $envVar/gatehouse, or the fallback path segments under
// $HOME when the variable is unset.
func resolve(envVar string, fallback ...string) string {
	base := os.Getenv(envVar)
	if base == "" {
		parts := append([]string{os.Getenv("HOME")}, fallback...)
		base = filepath.Join(parts...)
	}
	return filepath.Join(base, appName)
}

// ConfigDir returns the Gatehouse config directory,
// $XDG_CONFIG_HOME/gatehouse, or ~/.config/gatehouse when the variable
// is unset.
func ConfigDir() string {
	return resolve("XDG_CONFIG_HOME", ".config")
}

// ConfigFile returns the default config file path.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "gatehouse.yaml")
}

// EnsureDir creates path and any missing parents, readable by the owner
// only.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	return nil
}
