// Package app wires the daemon's CLI surface together: config loading,
// structured logging, the resident session orchestrator, and thin
// IPC-forwarding implementations of the control-socket commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/asrengine"
	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/audio"
	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/cli"
	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/config"
	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/doctor"
	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/indicator"
	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/ipc"
	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/keystroke"
	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/logging"
	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/overlay"
	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/overlaybus"
	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/postprocess"
	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/session"
	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/vad"
	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/version"
)

// Runner executes one CLI invocation against the given streams.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

// Execute is the package-level entrypoint main calls.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("dictd"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("dictd"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	for _, w := range cfgLoaded.Warnings {
		fmt.Fprintf(r.Stderr, "warning: %s\n", w.Message)
		logger.Warn("config warning", "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDaemon:
		return r.commandDaemon(ctx, cfgLoaded, logRuntime.Path, logger)
	case cli.CommandDoctor:
		report := doctor.Run(cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandOverlay:
		return r.commandOverlay(ctx, cfgLoaded.Config, logger)
	case cli.CommandConfig:
		fmt.Fprintf(r.Stderr, "error: the configuration TUI is a separate tool; edit %s directly\n", cfgLoaded.Path)
		return 1
	case cli.CommandStart:
		return r.forwardVerb(ctx, ipc.VerbStart)
	case cli.CommandStop:
		return r.forwardVerb(ctx, ipc.VerbStop)
	case cli.CommandConfirm:
		return r.forwardVerb(ctx, ipc.VerbConfirm)
	case cli.CommandToggle:
		return r.forwardVerb(ctx, ipc.VerbToggle)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		availability := "yes"
		if !device.Available {
			availability = "no"
		}
		muted := "no"
		if device.Muted {
			muted = "yes"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			availability,
			muted,
		)
	}

	return 0
}

func (r Runner) commandStatus(ctx context.Context) int {
	reply, err := r.sendVerb(ctx, ipc.VerbStatus)
	if err != nil {
		if isUnreachable(err) {
			fmt.Fprintln(r.Stdout, ipc.ReplyIdle)
			return 0
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintln(r.Stdout, reply)
	return 0
}

func (r Runner) forwardVerb(ctx context.Context, verb ipc.Verb) int {
	reply, err := r.sendVerb(ctx, verb)
	if err != nil {
		if isUnreachable(err) {
			fmt.Fprintln(r.Stderr, "error: dictd daemon is not running; start it with `dictd daemon`")
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintln(r.Stdout, reply)
	return 0
}

func (r Runner) sendVerb(ctx context.Context, verb ipc.Verb) (ipc.Reply, error) {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return "", err
	}
	return ipc.Send(ctx, socketPath, verb, 220*time.Millisecond)
}

func isUnreachable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		strings.Contains(err.Error(), "no such file or directory")
}

// commandOverlay runs the layer-shell renderer (C11) in the foreground,
// consuming the daemon's overlaybus sockets until ctx is cancelled.
func (r Runner) commandOverlay(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	audioPath, err := overlaybus.AudioSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	statePath, err := overlaybus.StateSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	err = overlay.Run(ctx, logger, overlay.Options{
		AudioSocketPath: audioPath,
		StateSocketPath: statePath,
		Namespace:       cfg.GUI.Namespace,
		MarginBottom:    cfg.GUI.MarginBottom,
		Width:           cfg.GUI.Width,
		MaxHeight:       cfg.GUI.MaxHeight,
		SampleRate:      cfg.Daemon.SampleRate,
		Elements:        cfg.Elements,
		Animations:      cfg.Animations,
		SpectrumSmooth:  cfg.Animations.SpectrumSmoothing,
	})
	if err != nil && ctx.Err() == nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// commandDaemon acquires the control socket, binds the overlay broadcast
// sockets, and runs the session orchestrator until ctx is cancelled.
func (r Runner) commandDaemon(ctx context.Context, cfgLoaded config.Loaded, logPath string, logger *slog.Logger) int {
	cfg := cfgLoaded.Config

	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8, nil)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			fmt.Fprintln(r.Stderr, "error: dictd daemon is already running")
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	broadcaster, err := acquireOverlayBus(logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer broadcaster.Close()
	go broadcaster.Serve()

	emitter, err := keystroke.NewEmitter(keystroke.Config{
		InterCharDelay: time.Duration(cfg.Keyboard.TypingDelayMS) * time.Millisecond,
		InterWordDelay: time.Duration(cfg.Keyboard.WordDelayMS) * time.Millisecond,
	})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	phrases, _, err := config.BuildSpeechPhrases(cfg)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	debugSink, err := openGRPCDumpSink(cfg, logPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	var debugWriter io.Writer
	if debugSink != nil {
		defer debugSink.Close()
		debugWriter = debugSink
	}

	controller := session.NewController(buildSessionDeps(cfg, logger, logPath, broadcaster, emitter, toASRPhrases(phrases), debugWriter))

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, listener, controller)
	}()

	logger.Info("daemon listening", "socket", socketPath)
	runErr := controller.Run(ctx)
	serverCancel()
	if serveErr := <-serverErrCh; serveErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", serveErr)
		return 1
	}
	if runErr != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", runErr)
		return 1
	}
	return 0
}

// buildSessionDeps resolves a Loaded config into the orchestrator's
// production collaborators.
func buildSessionDeps(
	cfg config.Config,
	logger *slog.Logger,
	logPath string,
	broadcaster *overlaybus.Broadcaster,
	emitter *keystroke.Emitter,
	phrases []asrengine.SpeechPhrase,
	debugSink io.Writer,
) session.Deps {
	previewCfg := asrengine.StreamConfig{
		Endpoint:              cfg.Daemon.ASREndpoint,
		LanguageCode:          cfg.Daemon.Language,
		Model:                 resolveModel(cfg.Daemon.PreviewModel, cfg.Daemon.PreviewModelCustomPath),
		AutomaticPunctuation:  cfg.PostProcessing.Grammar,
		SpeechPhrases:         phrases,
		DebugResponseSinkJSON: debugSink,
	}
	finalCfg := asrengine.StreamConfig{
		Endpoint:              cfg.Daemon.ASREndpoint,
		LanguageCode:          cfg.Daemon.Language,
		Model:                 resolveModel(cfg.Daemon.FinalModel, cfg.Daemon.FinalModelCustomPath),
		AutomaticPunctuation:  cfg.PostProcessing.Grammar,
		SpeechPhrases:         phrases,
		DebugResponseSinkJSON: debugSink,
	}

	vadDefaults := vad.DefaultConfig()

	return session.Deps{
		Logger:        logger,
		AudioSource:   session.NewPulseAudioSource(cfg.Daemon.AudioDevice, cfg.Daemon.AudioFallback),
		PreviewEngine: asrengine.NewStreaming(previewCfg),
		FinalEngine:   asrengine.NewBatch(finalCfg),
		Emitter:       emitter,
		Overlay:       broadcaster,
		Indicator:     indicator.NewPlayer(cfg.Indicator, logger),
		PostOptions: postprocess.Options{
			FoldAcronyms:        cfg.PostProcessing.FoldAcronyms,
			CapitalizeSentences: cfg.PostProcessing.CapitalizeSentences,
			Grammar:             cfg.PostProcessing.Grammar,
			Abbreviations:       config.AbbreviationPhrases(cfg),
		},
		VADConfig: vad.Config{
			EnergyThresholdDB:    cfg.VAD.EnergyThresholdDB,
			SpeechTriggerFrames:  cfg.VAD.SpeechTriggerFrames,
			SilenceTriggerFrames: cfg.VAD.SilenceTriggerFrames,
			PreRollFrames:        vadDefaults.PreRollFrames,
		},
		PreListeningTimeout:   time.Duration(cfg.Animations.PreListeningMS) * time.Millisecond,
		CloseAnimationTimeout: time.Duration(cfg.Animations.CloseAnimationMS) * time.Millisecond,
		Debug: session.DebugOptions{
			EnableAudioDump: cfg.Debug.EnableAudioDump,
			StateDir:        filepath.Join(filepath.Dir(logPath), "debug"),
		},
	}
}

// openGRPCDumpSink opens the JSONL sink backing debug.grpc_dump, a
// supplement to the teacher's Transcriber debug dump: every StreamingRecognize
// response (preview and final) is appended as one JSON line. Returns a nil
// writer, not an error, when the config key is off.
func openGRPCDumpSink(cfg config.Config, logPath string) (*os.File, error) {
	if !cfg.Debug.EnableGRPCDump {
		return nil, nil
	}
	dir := filepath.Join(filepath.Dir(logPath), "debug")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create debug dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "grpc_responses.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open grpc dump sink: %w", err)
	}
	return f, nil
}

// resolveModel returns customPath when model selects the custom variant,
// otherwise the named model as-is.
func resolveModel(model, customPath string) string {
	if strings.EqualFold(strings.TrimSpace(model), "custom") {
		return customPath
	}
	return model
}

func toASRPhrases(phrases []config.SpeechPhrase) []asrengine.SpeechPhrase {
	out := make([]asrengine.SpeechPhrase, len(phrases))
	for i, p := range phrases {
		out[i] = asrengine.SpeechPhrase{Phrase: p.Phrase, Boost: p.Boost}
	}
	return out
}

// acquireOverlayBus binds the overlay broadcast sockets, clearing stale
// socket files left by a prior unclean shutdown. By the time this runs the
// control socket is already held, so no live daemon can own these paths.
func acquireOverlayBus(logger *slog.Logger) (*overlaybus.Broadcaster, error) {
	audioPath, err := overlaybus.AudioSocketPath()
	if err != nil {
		return nil, err
	}
	statePath, err := overlaybus.StateSocketPath()
	if err != nil {
		return nil, err
	}

	audioListener, err := listenRemovingStale(audioPath)
	if err != nil {
		return nil, fmt.Errorf("bind overlay audio socket: %w", err)
	}
	stateListener, err := listenRemovingStale(statePath)
	if err != nil {
		_ = audioListener.Close()
		return nil, fmt.Errorf("bind overlay state socket: %w", err)
	}

	return overlaybus.New(logger, audioListener, stateListener), nil
}

func listenRemovingStale(path string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	listener, err := net.Listen("unix", path)
	if err == nil {
		_ = os.Chmod(path, 0o600)
		return listener, nil
	}
	if !strings.Contains(err.Error(), "address already in use") {
		return nil, err
	}
	if removeErr := os.Remove(path); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
		return nil, removeErr
	}
	listener, err = net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	_ = os.Chmod(path, 0o600)
	return listener, nil
}
