package keystroke

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// writeFakeWtype installs a shell script named wtype on a fresh PATH
// directory that appends every argument it receives to a log file, mimicking
// wtype's one-rune-per-invocation contract without shelling out to the
// real binary.
func writeFakeWtype(t *testing.T, logPath string) string {
	t.Helper()

	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "wtype")
	script := "#!/bin/sh\nprintf '%s' \"$1\" >> " + logPath + "\n"
	require.NoError(t, os.WriteFile(scriptPath, []byte(script), 0o755))
	return dir
}

func TestNewEmitterFailsWhenBinaryMissing(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	_, err := NewEmitter(Config{BinaryPath: "wtype"})
	require.ErrorIs(t, err, ErrEmitterUnavailable)
}

func TestEmitTypesEveryCharacterInOrder(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "out.txt")
	dir := writeFakeWtype(t, logPath)
	t.Setenv("PATH", dir)

	emitter, err := NewEmitter(Config{
		BinaryPath:     "wtype",
		InterCharDelay: time.Millisecond,
		InterWordDelay: time.Millisecond,
	})
	require.NoError(t, err)

	require.NoError(t, emitter.Emit(context.Background(), "hi there"))

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.Equal(t, "hi there", string(data))
}

func TestEmitEmptyTextIsNoOp(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "out.txt")
	dir := writeFakeWtype(t, logPath)
	t.Setenv("PATH", dir)

	emitter, err := NewEmitter(Config{BinaryPath: "wtype"})
	require.NoError(t, err)

	require.NoError(t, emitter.Emit(context.Background(), ""))
	_, err = os.Stat(logPath)
	require.True(t, os.IsNotExist(err))
}

func TestEmitRespectsCancellation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "out.txt")
	dir := writeFakeWtype(t, logPath)
	t.Setenv("PATH", dir)

	emitter, err := NewEmitter(Config{
		BinaryPath:     "wtype",
		InterCharDelay: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = emitter.Emit(ctx, "hello")
	require.Error(t, err)
}
