package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolvePathPrecedence(t *testing.T) {
	t.Setenv("DICTD_CONFIG", "")

	explicit := "/tmp/custom.toml"
	resolved, source, err := ResolvePath(explicit)
	require.NoError(t, err)
	require.Equal(t, explicit, resolved)
	require.Equal(t, PathSourceFlag, source)

	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	resolved, source, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(xdg, "dictd", "config.toml"), resolved)
	require.Equal(t, PathSourceXDG, source)

	t.Setenv("XDG_CONFIG_HOME", "")
	home := t.TempDir()
	t.Setenv("HOME", home)
	resolved, source, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".config", "dictd", "config.toml"), resolved)
	require.Equal(t, PathSourceHome, source)
}

func TestResolvePathEnvOverrideBeatsXDGButNotExplicit(t *testing.T) {
	envPath := "/tmp/from-env/config.toml"
	t.Setenv("DICTD_CONFIG", envPath)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	resolved, source, err := ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, envPath, resolved)
	require.Equal(t, PathSourceEnv, source)

	resolved, source, err = ResolvePath("/tmp/explicit.toml")
	require.NoError(t, err)
	require.Equal(t, "/tmp/explicit.toml", resolved)
	require.Equal(t, PathSourceFlag, source)
}

func TestLoadMissingConfigUsesDefaultsWithWarning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.toml")

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, path, loaded.Path)
	require.Equal(t, PathSourceFlag, loaded.Source)
	require.False(t, loaded.Exists)
	require.Equal(t, Default(), loaded.Config)
	require.NotEmpty(t, loaded.Warnings)
	require.Contains(t, loaded.Warnings[0].Message, "not found")
}

func TestLoadExistingTOMLParsesAndValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `
[daemon]
asr_endpoint = "10.0.0.5:50051"
audio_device = "builtin-mic"
language = "en-GB"

[vad]
energy_threshold_db = -35.0

[post_processing]
grammar = true
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.True(t, loaded.Exists)
	require.Equal(t, path, loaded.Path)
	require.Equal(t, "10.0.0.5:50051", loaded.Config.Daemon.ASREndpoint)
	require.Equal(t, "builtin-mic", loaded.Config.Daemon.AudioDevice)
	require.Equal(t, "en-GB", loaded.Config.Daemon.Language)
	require.Equal(t, -35.0, loaded.Config.VAD.EnergyThresholdDB)
	require.True(t, loaded.Config.PostProcessing.Grammar)
	// Unset keys keep their defaults.
	require.Equal(t, Default().Daemon.SampleRate, loaded.Config.Daemon.SampleRate)
	require.Empty(t, loaded.Warnings)
}

func TestLoadWarnsOnWorldWritableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("\n"), 0o600))
	require.NoError(t, os.Chmod(path, 0o666))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.True(t, loaded.Exists)
	require.Len(t, loaded.Warnings, 1)
	require.Contains(t, loaded.Warnings[0].Message, "world-writable")
}

func TestLoadParseErrorIncludesPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("daemon = [ not toml"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse config")
	require.Contains(t, err.Error(), path)
}
