package config

import (
	"errors"
	"fmt"
	"os"
)

// Loaded captures resolved config path, parsed values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Source   PathSource
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load resolves, reads, parses, and validates the runtime configuration.
// A config file found with group- or world-writable permissions earns a
// warning rather than a hard failure: the daemon runs every session,
// keystroke emission included, with the settings loaded from this file at
// startup, so a writable config is a local privilege-escalation
// path worth flagging, not silently trusting.
func Load(explicitPath string) (Loaded, error) {
	resolvedPath, source, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	base := Default()
	info, statErr := os.Stat(resolvedPath)
	if statErr != nil {
		if errors.Is(statErr, os.ErrNotExist) {
			return Loaded{
				Path:   resolvedPath,
				Source: source,
				Config: base,
				Warnings: []Warning{{
					Message: fmt.Sprintf("config file %q not found; using defaults", resolvedPath),
				}},
				Exists: false,
			}, nil
		}
		return Loaded{}, fmt.Errorf("stat config %q: %w", resolvedPath, statErr)
	}

	content, err := os.ReadFile(resolvedPath)
	if err != nil {
		return Loaded{}, fmt.Errorf("read config %q: %w", resolvedPath, err)
	}

	cfg, warnings, err := Parse(string(content), base)
	if err != nil {
		return Loaded{}, fmt.Errorf("parse config %q: %w", resolvedPath, err)
	}

	if info.Mode().Perm()&0o022 != 0 {
		warnings = append(warnings, Warning{
			Message: fmt.Sprintf("config file %q is group- or world-writable (mode %s)", resolvedPath, info.Mode().Perm()),
		})
	}

	return Loaded{
		Path:     resolvedPath,
		Source:   source,
		Config:   cfg,
		Warnings: warnings,
		Exists:   true,
	}, nil
}
