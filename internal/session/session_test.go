package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/asrengine"
	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/ipc"
	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/postprocess"
	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/ring"
	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/vad"
)

// fakeAudioSource writes a fixed sequence of frames into the session's
// ring buffer as soon as it starts, then blocks until Stop is called.
type fakeAudioSource struct {
	frames []ring.Frame
}

type fakeAudioHandle struct {
	cancel context.CancelFunc
	buf    *ring.Buffer
	done   chan struct{}
}

func (h *fakeAudioHandle) Stop() error {
	h.cancel()
	<-h.done
	h.buf.Close()
	return nil
}

func (s *fakeAudioSource) Start(ctx context.Context, buf *ring.Buffer) (AudioHandle, error) {
	innerCtx, cancel := innerContext(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, f := range s.frames {
			select {
			case <-innerCtx.Done():
				return
			default:
			}
			buf.Write(f)
		}
		<-innerCtx.Done()
	}()
	return &fakeAudioHandle{cancel: cancel, buf: buf, done: done}, nil
}

func innerContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithCancel(parent)
}

// fakePreview implements asrengine.PreviewEngine and never surfaces a
// partial, keeping tests focused on the FSM rather than ASR text.
type fakePreview struct {
	mu     sync.Mutex
	closed bool
}

func (p *fakePreview) Reset(context.Context) error { return nil }
func (p *fakePreview) Accept(ring.Frame) (string, bool) {
	return "", false
}
func (p *fakePreview) Finalize() string { return "" }
func (p *fakePreview) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// fakeFinal returns a fixed transcript for every call and counts invocations.
type fakeFinal struct {
	mu      sync.Mutex
	text    string
	err     error
	calls   int
	lastLen int
}

func (f *fakeFinal) Transcribe(_ context.Context, frames []ring.Frame) (string, time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastLen = len(frames)
	return f.text, 0, f.err
}

// fakeEmitter records every text it was asked to type.
type fakeEmitter struct {
	mu    sync.Mutex
	texts []string
}

func (e *fakeEmitter) Emit(_ context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.texts = append(e.texts, text)
	return nil
}

func (e *fakeEmitter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.texts)
}

// fakeIndicator counts how many times each cue fires.
type fakeIndicator struct {
	mu                                       sync.Mutex
	starts, confirms, completes, cancels int
}

func (i *fakeIndicator) CueStart(context.Context) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.starts++
}

func (i *fakeIndicator) CueConfirm(context.Context) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.confirms++
}

func (i *fakeIndicator) CueComplete(context.Context) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.completes++
}

func (i *fakeIndicator) CueCancel(context.Context) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.cancels++
}

func (i *fakeIndicator) snapshot() (starts, confirms, completes, cancels int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.starts, i.confirms, i.completes, i.cancels
}

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestController(t *testing.T, frames []ring.Frame, finalText string) (*Controller, *fakeFinal, *fakeEmitter) {
	ctrl, final, emitter, _ := newTestControllerWithIndicator(t, frames, finalText)
	return ctrl, final, emitter
}

func newTestControllerWithIndicator(t *testing.T, frames []ring.Frame, finalText string) (*Controller, *fakeFinal, *fakeEmitter, *fakeIndicator) {
	t.Helper()
	final := &fakeFinal{text: finalText}
	emitter := &fakeEmitter{}
	indicator := &fakeIndicator{}

	deps := Deps{
		Logger:        silentLogger(),
		AudioSource:   &fakeAudioSource{frames: frames},
		PreviewEngine: &fakePreview{},
		FinalEngine:   final,
		Emitter:       emitter,
		Indicator:     indicator,
		PostOptions:   postprocess.Options{CapitalizeSentences: true},
		VADConfig: vad.Config{
			EnergyThresholdDB:    -40,
			SpeechTriggerFrames:  2,
			SilenceTriggerFrames: 3,
			PreRollFrames:        2,
		},
		PreListeningTimeout:   10 * time.Millisecond,
		CloseAnimationTimeout: 10 * time.Millisecond,
	}

	ctrl := NewController(deps)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go ctrl.Run(ctx)
	return ctrl, final, emitter, indicator
}

func loudFrame() ring.Frame {
	f := ring.NewFrame()
	for i := range f {
		if i%2 == 0 {
			f[i] = 0.9
		} else {
			f[i] = -0.9
		}
	}
	return f
}

func silentFrame() ring.Frame {
	return ring.NewFrame()
}

func waitForReply(t *testing.T, ctrl *Controller, verb ipc.Verb) ipc.Reply {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return ctrl.Handle(ctx, ipc.Request{Verb: verb})
}

func TestStartThenConfirmEmitsExactlyOnce(t *testing.T) {
	frames := make([]ring.Frame, 0, 10)
	for i := 0; i < 10; i++ {
		frames = append(frames, loudFrame())
	}
	ctrl, final, emitter := newTestController(t, frames, "hello there")

	reply := waitForReply(t, ctrl, ipc.VerbStart)
	require.Equal(t, ipc.ReplyPreListening, reply)

	require.Eventually(t, func() bool {
		return waitForReply(t, ctrl, ipc.VerbStatus) == ipc.ReplyListening
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return emitter.count() == 0 // sanity: nothing emitted before confirm
	}, 50*time.Millisecond, 5*time.Millisecond)

	reply = waitForReply(t, ctrl, ipc.VerbConfirm)
	require.Equal(t, ipc.ReplyProcessing, reply)

	require.Eventually(t, func() bool {
		return emitter.count() == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, final.calls)
	require.Equal(t, 1, emitter.count())

	require.Eventually(t, func() bool {
		return waitForReply(t, ctrl, ipc.VerbStatus) == ipc.ReplyIdle
	}, time.Second, 5*time.Millisecond)
}

func TestConfirmWithNoAudioSkipsFinalAndEmitter(t *testing.T) {
	ctrl, final, emitter := newTestController(t, nil, "unused")

	waitForReply(t, ctrl, ipc.VerbStart)
	require.Eventually(t, func() bool {
		return waitForReply(t, ctrl, ipc.VerbStatus) == ipc.ReplyListening
	}, time.Second, 5*time.Millisecond)

	reply := waitForReply(t, ctrl, ipc.VerbConfirm)
	require.Equal(t, ipc.ReplyProcessing, reply)

	require.Eventually(t, func() bool {
		return waitForReply(t, ctrl, ipc.VerbStatus) == ipc.ReplyIdle
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, 0, final.calls)
	require.Equal(t, 0, emitter.count())
}

func TestConfirmDuringPreListeningProcessesWithZeroAudio(t *testing.T) {
	ctrl, final, emitter := newTestController(t, nil, "unused")

	startReply := waitForReply(t, ctrl, ipc.VerbStart)
	require.Equal(t, ipc.ReplyPreListening, startReply)

	confirmReply := waitForReply(t, ctrl, ipc.VerbConfirm)
	require.Equal(t, ipc.ReplyProcessing, confirmReply)

	require.Eventually(t, func() bool {
		return waitForReply(t, ctrl, ipc.VerbStatus) == ipc.ReplyIdle
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, 0, final.calls)
	require.Equal(t, 0, emitter.count())
}

func TestStopDuringListeningNeverEmits(t *testing.T) {
	frames := []ring.Frame{loudFrame(), loudFrame(), loudFrame()}
	ctrl, final, emitter := newTestController(t, frames, "should not appear")

	waitForReply(t, ctrl, ipc.VerbStart)
	require.Eventually(t, func() bool {
		return waitForReply(t, ctrl, ipc.VerbStatus) == ipc.ReplyListening
	}, time.Second, 5*time.Millisecond)

	reply := waitForReply(t, ctrl, ipc.VerbStop)
	require.Equal(t, ipc.ReplyClosing, reply)

	require.Eventually(t, func() bool {
		return waitForReply(t, ctrl, ipc.VerbStatus) == ipc.ReplyIdle
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, 0, final.calls)
	require.Equal(t, 0, emitter.count())
}

func TestSecondStartWhileActiveIsNoOp(t *testing.T) {
	ctrl, _, _ := newTestController(t, []ring.Frame{silentFrame()}, "x")

	first := waitForReply(t, ctrl, ipc.VerbStart)
	require.Equal(t, ipc.ReplyPreListening, first)

	second := waitForReply(t, ctrl, ipc.VerbStart)
	require.Equal(t, first, second)
}

func TestToggleStartsThenConfirms(t *testing.T) {
	frames := []ring.Frame{loudFrame(), loudFrame(), loudFrame()}
	ctrl, final, emitter := newTestController(t, frames, "toggled text")

	reply := waitForReply(t, ctrl, ipc.VerbToggle)
	require.Equal(t, ipc.ReplyPreListening, reply)

	require.Eventually(t, func() bool {
		return waitForReply(t, ctrl, ipc.VerbStatus) == ipc.ReplyListening
	}, time.Second, 5*time.Millisecond)

	reply = waitForReply(t, ctrl, ipc.VerbToggle)
	require.Equal(t, ipc.ReplyProcessing, reply)

	require.Eventually(t, func() bool {
		return emitter.count() == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, final.calls)
}

func TestStartConfirmPlaysStartConfirmAndCompleteCues(t *testing.T) {
	frames := []ring.Frame{loudFrame(), loudFrame(), loudFrame()}
	ctrl, _, emitter, ind := newTestControllerWithIndicator(t, frames, "cued text")

	waitForReply(t, ctrl, ipc.VerbStart)
	require.Eventually(t, func() bool {
		starts, _, _, _ := ind.snapshot()
		return starts == 1
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return waitForReply(t, ctrl, ipc.VerbStatus) == ipc.ReplyListening
	}, time.Second, 5*time.Millisecond)

	waitForReply(t, ctrl, ipc.VerbConfirm)

	require.Eventually(t, func() bool {
		return emitter.count() == 1
	}, time.Second, 5*time.Millisecond)

	starts, confirms, completes, cancels := ind.snapshot()
	require.Equal(t, 1, starts)
	require.Equal(t, 1, confirms)
	require.Equal(t, 1, completes)
	require.Equal(t, 0, cancels)
}

func TestStopPlaysCancelCueOnly(t *testing.T) {
	ctrl, _, emitter, ind := newTestControllerWithIndicator(t, []ring.Frame{loudFrame()}, "unused")

	waitForReply(t, ctrl, ipc.VerbStart)
	require.Eventually(t, func() bool {
		return waitForReply(t, ctrl, ipc.VerbStatus) == ipc.ReplyListening
	}, time.Second, 5*time.Millisecond)

	waitForReply(t, ctrl, ipc.VerbStop)

	require.Eventually(t, func() bool {
		_, _, _, cancels := ind.snapshot()
		return cancels == 1
	}, time.Second, 5*time.Millisecond)

	_, confirms, completes, _ := ind.snapshot()
	require.Equal(t, 0, confirms)
	require.Equal(t, 0, completes)
	require.Equal(t, 0, emitter.count())
}

var _ asrengine.FinalEngine = (*fakeFinal)(nil)
