// Package doctor runs the daemon's startup readiness diagnostics: config,
// audio device selection, the keystroke emitter binary, ASR reachability,
// and the Wayland compositor the overlay renderer needs.
package doctor

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/audio"
	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/config"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(cfg config.Loaded) Report {
	checks := []Check{
		checkConfigSource(cfg),
		checkWaylandSession(),
		checkAudioSelection(cfg.Config),
		checkBinary(resolveWtypeBinary(), "keyboard.typing_delay_ms/word_delay_ms take effect once found"),
		checkASREndpoint(cfg.Config),
	}
	return Report{Checks: checks}
}

// checkConfigSource reports where the config file came from (flag/env/XDG/
// home) and surfaces any non-fatal Load warnings, e.g. a world-writable
// config file, as a failing check rather than silent defaults.
func checkConfigSource(cfg config.Loaded) Check {
	if len(cfg.Warnings) > 0 {
		messages := make([]string, len(cfg.Warnings))
		for i, w := range cfg.Warnings {
			messages[i] = w.Message
		}
		return Check{Name: "config", Pass: false, Message: strings.Join(messages, "; ")}
	}
	return Check{Name: "config", Pass: true, Message: fmt.Sprintf("loaded %q (source: %s)", cfg.Path, cfg.Source)}
}

// checkWaylandSession validates the compositor socket the overlay renderer
// dials: XDG_RUNTIME_DIR plus WAYLAND_DISPLAY (or its default) must resolve
// to an existing socket.
func checkWaylandSession() Check {
	runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if runtimeDir == "" {
		return Check{Name: "wayland.session", Pass: false, Message: "XDG_RUNTIME_DIR is not set"}
	}

	display := strings.TrimSpace(os.Getenv("WAYLAND_DISPLAY"))
	if display == "" {
		display = "wayland-0"
	}

	path := display
	if !filepath.IsAbs(path) {
		path = filepath.Join(runtimeDir, display)
	}
	if _, err := os.Stat(path); err != nil {
		return Check{Name: "wayland.session", Pass: false, Message: fmt.Sprintf("compositor socket %q not found: %v", path, err)}
	}
	return Check{Name: "wayland.session", Pass: true, Message: fmt.Sprintf("compositor socket found at %s", path)}
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

func resolveWtypeBinary() string {
	return "wtype"
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(cfg config.Config) Check {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	selection, err := audio.SelectDevice(ctx, cfg.Daemon.AudioDevice, cfg.Daemon.AudioFallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkASREndpoint probes TCP reachability of the configured ASR backend.
// It does not speak the ASR protocol itself: a doctor check should not
// allocate recognizer resources just to verify the daemon can be reached.
func checkASREndpoint(cfg config.Config) Check {
	endpoint := strings.TrimSpace(cfg.Daemon.ASREndpoint)
	if endpoint == "" {
		return Check{Name: "asr.endpoint", Pass: false, Message: "daemon.asr_endpoint is empty"}
	}

	conn, err := net.DialTimeout("tcp", endpoint, 2*time.Second)
	if err != nil {
		return Check{Name: "asr.endpoint", Pass: false, Message: fmt.Sprintf("dial %s: %v", endpoint, err)}
	}
	_ = conn.Close()
	return Check{Name: "asr.endpoint", Pass: true, Message: fmt.Sprintf("reachable at %s", endpoint)}
}
