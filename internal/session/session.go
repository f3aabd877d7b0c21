// Package session implements C9, the always-resident session orchestrator.
// A single Controller instance lives for the daemon's whole lifetime and
// serves many sequential dictation sessions; every state mutation happens
// on one goroutine driven by Controller.Run, which processes a queue of
// closures posted by the control socket, audio pump, VAD, and recognizer
// callbacks. This mirrors the teacher's session.Controller in spirit (one
// authoritative owner of session state reached only through its command
// queue) but generalizes it from a one-shot-per-process run to a
// persistent loop, since this daemon serves the control socket for its
// entire resident lifetime instead of exiting after one session.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/asrengine"
	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/audio"
	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/fsm"
	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/ipc"
	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/overlaybus"
	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/postprocess"
	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/ring"
	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/vad"
)

// ringCapacityFrames covers roughly 5s of audio at the pipeline rate
// (16kHz / 512 samples per frame ≈ 31.25 frames/s), matching spec.md's
// RingBuffer capacity note.
const ringCapacityFrames = 160

// AudioSource opens the configured input device and streams frames into
// buf until Stop is called. Production code implements this over
// internal/audio; tests supply a fake that writes synthetic frames.
type AudioSource interface {
	Start(ctx context.Context, buf *ring.Buffer) (AudioHandle, error)
}

// AudioHandle controls one open capture.
type AudioHandle interface {
	Stop() error
}

// Emitter types the final processed text into the focused window. Real
// sessions use *keystroke.Emitter; tests substitute a recording fake.
type Emitter interface {
	Emit(ctx context.Context, text string) error
}

// Indicator plays the audio cues marking session transitions. Real sessions
// use *indicator.Player; it is optional, like Overlay, since cue playback is
// always best-effort.
type Indicator interface {
	CueStart(ctx context.Context)
	CueConfirm(ctx context.Context)
	CueComplete(ctx context.Context)
	CueCancel(ctx context.Context)
}

// pulseAudioSource adapts internal/audio's Pulse-backed capture to
// AudioSource, resolving the device selection once per session start so a
// reconnected or newly-plugged device is picked up on the next `start`.
type pulseAudioSource struct {
	deviceInput string
	fallback    string
}

// NewPulseAudioSource builds the production AudioSource.
func NewPulseAudioSource(deviceInput, fallback string) AudioSource {
	return &pulseAudioSource{deviceInput: deviceInput, fallback: fallback}
}

func (s *pulseAudioSource) Start(ctx context.Context, buf *ring.Buffer) (AudioHandle, error) {
	selection, err := audio.SelectDevice(ctx, s.deviceInput, s.fallback)
	if err != nil {
		return nil, fmt.Errorf("select audio device: %w", err)
	}
	return audio.StartCapture(ctx, selection.Device, buf)
}

// Deps bundles every collaborator the orchestrator drives. All fields are
// required except Overlay, which may be nil if the daemon runs without a
// broadcaster (overlay delivery is always best-effort per spec.md), and
// Indicator, which may be nil to run without audio cues.
type Deps struct {
	Logger        *slog.Logger
	AudioSource   AudioSource
	PreviewEngine asrengine.PreviewEngine
	FinalEngine   asrengine.FinalEngine
	Emitter       Emitter
	Overlay       *overlaybus.Broadcaster
	Indicator     Indicator
	PostOptions   postprocess.Options
	VADConfig     vad.Config

	PreListeningTimeout   time.Duration
	CloseAnimationTimeout time.Duration

	Debug DebugOptions
}

// DebugOptions gates the debug artifact dumps SPEC_FULL.md supplements
// from original_source/'s dictation-engine debug flags.
type DebugOptions struct {
	EnableAudioDump bool
	StateDir        string
}

// Controller is the sole authoritative owner of session state.
type Controller struct {
	deps Deps
	jobs chan func()

	state fsm.State
	gen   uint64 // invalidates timers from a superseded session

	buf           *ring.Buffer
	vadCursor     *ring.Cursor
	overlayCursor *ring.Cursor
	capture       AudioHandle
	gate          *vad.Gate

	sinceStart  []ring.Frame
	lastWindow  []ring.Frame
	lastPreview string

	closingProgress float64

	sessionCtx    context.Context
	sessionCancel context.CancelFunc
}

// closingAnimationFrameInterval paces the Closing collapse-and-fade ramp
// published to the overlay, independent of the overlay's own render rate.
const closingAnimationFrameInterval = 16 * time.Millisecond

// NewController builds a Controller in the Idle state. Call Run to start
// processing commands; Handle enqueues one command and blocks for its reply.
func NewController(deps Deps) *Controller {
	return &Controller{
		deps:  deps,
		jobs:  make(chan func(), 32),
		state: fsm.StateIdle,
	}
}

// Handle implements ipc.Handler by posting req onto the controller's job
// queue and waiting for the single-goroutine loop to process it.
func (c *Controller) Handle(ctx context.Context, req ipc.Request) ipc.Reply {
	reply := make(chan ipc.Reply, 1)
	job := func() { reply <- c.dispatch(req.Verb) }

	select {
	case c.jobs <- job:
	case <-ctx.Done():
		return ipc.ReplyUnknownVerb
	}

	select {
	case r := <-reply:
		return r
	case <-ctx.Done():
		return ipc.ReplyUnknownVerb
	}
}

// Run processes the job queue until ctx is cancelled, tearing down any
// in-flight session before returning.
func (c *Controller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			c.teardownSession()
			return nil
		case job := <-c.jobs:
			job()
		}
	}
}

// post enqueues a job from a non-loop goroutine (audio pump, timers,
// recognizer callbacks) without blocking on a reply.
func (c *Controller) post(job func()) {
	select {
	case c.jobs <- job:
	default:
		// queue saturated: drop rather than block the caller. Only
		// non-authoritative signals (stale timers, audio frames after
		// teardown) are expected to hit this path.
	}
}

func (c *Controller) dispatch(verb ipc.Verb) ipc.Reply {
	switch verb {
	case ipc.VerbStart:
		c.onStart()
	case ipc.VerbConfirm:
		c.onConfirm()
	case ipc.VerbStop:
		c.onStop()
	case ipc.VerbToggle:
		if c.state == fsm.StateIdle {
			c.onStart()
		} else {
			c.onConfirm()
		}
	case ipc.VerbStatus:
		// no-op: falls through to the reply below.
	}
	return c.replyForState()
}

func (c *Controller) replyForState() ipc.Reply {
	switch c.state {
	case fsm.StateIdle:
		return ipc.ReplyIdle
	case fsm.StatePreListening:
		return ipc.ReplyPreListening
	case fsm.StateListening:
		return ipc.ReplyListening
	case fsm.StateProcessing:
		return ipc.ReplyProcessing
	case fsm.StateClosing:
		return ipc.ReplyClosing
	default:
		return ipc.ReplyUnknownVerb
	}
}

// onStart arms capture and VAD and enters PreListening. A second start
// while a session is already active is a documented no-op.
func (c *Controller) onStart() {
	if c.state != fsm.StateIdle {
		return
	}

	next, err := fsm.Transition(c.state, fsm.EventStart)
	if err != nil {
		c.deps.Logger.Warn("session transition rejected", "error", err)
		return
	}

	c.gen++
	gen := c.gen
	c.buf = ring.NewBuffer(ringCapacityFrames)
	c.vadCursor = c.buf.NewCursor()
	c.overlayCursor = c.buf.NewCursor()
	c.gate = vad.NewGate(c.deps.VADConfig)
	c.sinceStart = nil
	c.lastWindow = nil
	c.lastPreview = ""
	c.closingProgress = 0
	c.sessionCtx, c.sessionCancel = context.WithCancel(context.Background())

	handle, err := c.deps.AudioSource.Start(c.sessionCtx, c.buf)
	if err != nil {
		c.deps.Logger.Warn("audio capture unavailable", "error", err)
		c.sessionCancel()
		return
	}
	c.capture = handle

	if err := c.deps.PreviewEngine.Reset(c.sessionCtx); err != nil {
		c.deps.Logger.Warn("preview engine reset failed", "error", err)
	}

	c.state = next
	c.publishState("")
	c.playCue(func(ind Indicator) { ind.CueStart(context.Background()) })

	go c.pumpAudio(gen, c.vadCursor, true)
	go c.pumpAudio(gen, c.overlayCursor, false)

	time.AfterFunc(c.preListeningTimeout(), func() {
		c.post(func() { c.onPreListeningTimeout(gen) })
	})
}

func (c *Controller) preListeningTimeout() time.Duration {
	if c.deps.PreListeningTimeout > 0 {
		return c.deps.PreListeningTimeout
	}
	return 150 * time.Millisecond
}

func (c *Controller) closeAnimationTimeout() time.Duration {
	if c.deps.CloseAnimationTimeout > 0 {
		return c.deps.CloseAnimationTimeout
	}
	return 500 * time.Millisecond
}

func (c *Controller) onPreListeningTimeout(gen uint64) {
	if gen != c.gen || c.state != fsm.StatePreListening {
		return
	}
	c.armListening()
}

func (c *Controller) armListening() {
	next, err := fsm.Transition(c.state, fsm.EventPreListeningTimeout)
	if err != nil {
		return
	}
	c.state = next
	c.publishState(c.lastPreview)
}

// pumpAudio owns one ring.Cursor and posts each observed frame back onto
// the controller's job queue, so frame handling itself stays
// single-writer even though the blocking read happens off-loop. vadPath
// distinguishes the VAD-feeding cursor from the overlay-broadcast cursor:
// both tail the same ring buffer independently, per C1's multi-consumer
// fan-out contract.
func (c *Controller) pumpAudio(gen uint64, cursor *ring.Cursor, vadPath bool) {
	for {
		frame, _, ok := cursor.Next()
		if !ok {
			return
		}
		f := frame
		c.post(func() {
			if gen != c.gen {
				return
			}
			if vadPath {
				c.onVADFrame(f)
			} else {
				c.onOverlayFrame(f)
			}
		})
	}
}

func (c *Controller) onOverlayFrame(frame ring.Frame) {
	if c.deps.Overlay != nil {
		c.deps.Overlay.PublishAudio(frame)
	}
}

func (c *Controller) onVADFrame(frame ring.Frame) {
	if c.state != fsm.StatePreListening && c.state != fsm.StateListening {
		return
	}

	c.sinceStart = append(c.sinceStart, frame)

	if c.state == fsm.StateListening {
		if partial, ok := c.deps.PreviewEngine.Accept(frame); ok {
			c.lastPreview = partial
			c.publishState(c.lastPreview)
		}
	}

	for _, event := range c.gate.Push(frame) {
		switch event.Kind {
		case vad.EventSpeechStart:
			if c.state == fsm.StatePreListening {
				c.armListening()
			}
		case vad.EventSpeechEnd:
			c.lastWindow = event.Window
		}
	}
}

// onConfirm snapshots the final audio window per spec.md's tie-break
// chain (in-progress utterance, else last completed utterance, else
// everything captured since start) and dispatches C5 on a worker.
// Confirm arriving during PreListening takes this same path with
// whatever was captured since Start, which may be nothing at all.
func (c *Controller) onConfirm() {
	if c.state != fsm.StateListening && c.state != fsm.StatePreListening {
		return
	}

	next, err := fsm.Transition(c.state, fsm.EventConfirm)
	if err != nil {
		return
	}

	c.playCue(func(ind Indicator) { ind.CueConfirm(context.Background()) })

	window := c.finalWindow()
	if c.deps.Debug.EnableAudioDump && len(window) > 0 {
		if path, err := dumpAudioWindow(c.deps.Debug.StateDir, window); err != nil {
			c.deps.Logger.Warn("audio dump failed", "error", err)
		} else {
			c.deps.Logger.Debug("wrote audio dump", "path", path)
		}
	}
	c.stopCapture()
	_ = c.deps.PreviewEngine.Close()

	c.state = next
	c.publishState("")

	gen := c.gen
	if len(window) == 0 {
		c.post(func() { c.onFinalResult(gen, "", nil) })
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		text, _, err := c.deps.FinalEngine.Transcribe(ctx, window)
		c.post(func() { c.onFinalResult(gen, text, err) })
	}()
}

func (c *Controller) finalWindow() []ring.Frame {
	if forced := c.gate.Close(); forced != nil {
		return forced.Window
	}
	if len(c.lastWindow) > 0 {
		return c.lastWindow
	}
	return c.sinceStart
}

func (c *Controller) onFinalResult(gen uint64, text string, err error) {
	if gen != c.gen || c.state != fsm.StateProcessing {
		return
	}

	if err != nil {
		c.deps.Logger.Warn("final recognizer failed, using last preview", "error", err)
		text = c.lastPreview
	}

	emitted := false
	if text != "" {
		processed := postprocess.Process([]string{text}, c.deps.PostOptions)
		if processed != "" {
			emitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if emitErr := c.deps.Emitter.Emit(emitCtx, processed); emitErr != nil {
				c.deps.Logger.Warn("keystroke emission failed", "error", emitErr)
			} else {
				emitted = true
			}
			cancel()
		}
	}
	if emitted {
		c.playCue(func(ind Indicator) { ind.CueComplete(context.Background()) })
	} else {
		c.playCue(func(ind Indicator) { ind.CueCancel(context.Background()) })
	}

	next, err := fsm.Transition(c.state, fsm.EventProcessed)
	if err != nil {
		return
	}
	c.state = next
	c.publishState("")
	c.scheduleCloseTimeout()
}

// onStop cancels the active session without emitting anything.
func (c *Controller) onStop() {
	if c.state != fsm.StatePreListening && c.state != fsm.StateListening {
		return
	}

	next, err := fsm.Transition(c.state, fsm.EventStop)
	if err != nil {
		return
	}

	c.stopCapture()
	_ = c.deps.PreviewEngine.Close()

	c.state = next
	c.publishState("")
	c.playCue(func(ind Indicator) { ind.CueCancel(context.Background()) })
	c.scheduleCloseTimeout()
}

// playCue invokes fn with the configured Indicator, a no-op when the daemon
// runs without one.
func (c *Controller) playCue(fn func(Indicator)) {
	if c.deps.Indicator != nil {
		fn(c.deps.Indicator)
	}
}

func (c *Controller) scheduleCloseTimeout() {
	gen := c.gen
	c.closingProgress = 0
	time.AfterFunc(c.closeAnimationTimeout(), func() {
		c.post(func() { c.onCloseTimeout(gen) })
	})
	c.startClosingAnimation(gen)
}

// startClosingAnimation ramps ClosingProgress from 0 to 1 over the
// configured close animation duration, publishing each step so the
// overlay can shrink and fade the surface before it disappears.
func (c *Controller) startClosingAnimation(gen uint64) {
	total := c.closeAnimationTimeout()
	if total <= 0 {
		return
	}
	start := time.Now()
	go func() {
		ticker := time.NewTicker(closingAnimationFrameInterval)
		defer ticker.Stop()
		for range ticker.C {
			elapsed := time.Since(start)
			if elapsed >= total {
				c.post(func() { c.onClosingProgress(gen, 1) })
				return
			}
			progress := float64(elapsed) / float64(total)
			c.post(func() { c.onClosingProgress(gen, progress) })
		}
	}()
}

func (c *Controller) onClosingProgress(gen uint64, progress float64) {
	if gen != c.gen || c.state != fsm.StateClosing {
		return
	}
	c.closingProgress = progress
	c.publishState("")
}

func (c *Controller) onCloseTimeout(gen uint64) {
	if gen != c.gen || c.state != fsm.StateClosing {
		return
	}
	next, err := fsm.Transition(c.state, fsm.EventCloseTimeout)
	if err != nil {
		return
	}
	c.state = next
	c.teardownSession()
	c.publishState("")
}

func (c *Controller) stopCapture() {
	if c.sessionCancel != nil {
		c.sessionCancel()
	}
	if c.capture != nil {
		_ = c.capture.Stop()
		c.capture = nil
	}
}

func (c *Controller) teardownSession() {
	c.stopCapture()
	c.gate = nil
	c.buf = nil
	c.vadCursor = nil
	c.overlayCursor = nil
	c.sinceStart = nil
	c.lastWindow = nil
	c.lastPreview = ""
	c.closingProgress = 0
}

// publishState broadcasts the current OverlayViewModel, deduplicated by
// overlaybus.Broadcaster itself against the previous snapshot.
func (c *Controller) publishState(text string) {
	if c.deps.Overlay == nil {
		return
	}

	vm := overlaybus.ViewModel{Text: text}
	switch c.state {
	case fsm.StateIdle:
		vm.Mode = overlaybus.ModeHidden
	case fsm.StatePreListening:
		vm.Mode = overlaybus.ModeListening
		vm.PreListening = true
		vm.Fade = 1
	case fsm.StateListening:
		vm.Mode = overlaybus.ModeListening
		vm.Fade = 1
	case fsm.StateProcessing:
		vm.Mode = overlaybus.ModeProcessing
		vm.Fade = 1
	case fsm.StateClosing:
		vm.Mode = overlaybus.ModeClosing
		vm.Fade = 1 - c.closingProgress
		vm.ClosingProgress = c.closingProgress
	}
	c.deps.Overlay.PublishState(vm)
}

