package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// PathSource identifies which precedence rule produced a resolved config
// path, surfaced in Loaded.Source for the doctor/status reports.
type PathSource string

const (
	PathSourceFlag PathSource = "flag"
	PathSourceEnv  PathSource = "env"
	PathSourceXDG  PathSource = "xdg"
	PathSourceHome PathSource = "home"
)

// ResolvePath applies CLI/env/XDG/home fallback rules for config.toml
// location, in that precedence order: an explicit --config flag always
// wins, then DICTD_CONFIG (for running multiple daemon instances or
// systemd units side by side without a flag on every invocation), then
// the usual XDG/home defaults.
func ResolvePath(explicit string) (string, PathSource, error) {
	if strings.TrimSpace(explicit) != "" {
		return explicit, PathSourceFlag, nil
	}

	if envPath := strings.TrimSpace(os.Getenv("DICTD_CONFIG")); envPath != "" {
		return envPath, PathSourceEnv, nil
	}

	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "dictd", "config.toml"), PathSourceXDG, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", errors.New("unable to resolve user home for config fallback")
	}

	return filepath.Join(home, ".config", "dictd", "config.toml"), PathSourceHome, nil
}
