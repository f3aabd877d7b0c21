package asrengine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/ring"
)

// PreviewEngine streams audio continuously during a session and surfaces
// interim partial transcripts for the overlay.
type PreviewEngine interface {
	Reset(ctx context.Context) error
	Accept(frame ring.Frame) (partial string, ok bool)
	Finalize() string
	Close() error
}

// FinalEngine runs one batch recognition pass over a complete captured window.
type FinalEngine interface {
	Transcribe(ctx context.Context, frames []ring.Frame) (string, time.Duration, error)
}

// Streaming implements PreviewEngine by keeping one Stream open per
// utterance, feeding it frames as they arrive and reading back interim text.
type Streaming struct {
	cfg    StreamConfig
	stream *Stream
}

// NewStreaming returns a PreviewEngine bound to cfg. DialStream is deferred
// to Reset so each session gets a fresh connection.
func NewStreaming(cfg StreamConfig) *Streaming {
	return &Streaming{cfg: cfg}
}

// Reset closes any prior stream and opens a new one for the next session.
func (e *Streaming) Reset(ctx context.Context) error {
	if e.stream != nil {
		_ = e.stream.Cancel()
		e.stream = nil
	}
	stream, err := DialStream(ctx, e.cfg)
	if err != nil {
		return fmt.Errorf("reset preview stream: %w", err)
	}
	e.stream = stream
	return nil
}

// Accept sends one frame as PCM and returns the current interim transcript.
func (e *Streaming) Accept(frame ring.Frame) (string, bool) {
	if e.stream == nil {
		return "", false
	}
	if err := e.stream.SendAudio(encodeFrame(frame)); err != nil {
		return "", false
	}
	partial := e.stream.LastInterim()
	return partial, partial != ""
}

// Finalize closes the stream and returns the merged transcript.
func (e *Streaming) Finalize() string {
	if e.stream == nil {
		return ""
	}
	segments, _, err := e.stream.CloseAndCollect(context.Background())
	e.stream = nil
	if err != nil {
		return ""
	}
	return strings.Join(segments, " ")
}

// Close releases any open stream without waiting for a final result.
func (e *Streaming) Close() error {
	if e.stream == nil {
		return nil
	}
	err := e.stream.Cancel()
	e.stream = nil
	return err
}

// Batch implements FinalEngine by opening one stream, sending every frame,
// closing send, and waiting for the merged transcript.
type Batch struct {
	cfg StreamConfig
}

// NewBatch returns a FinalEngine bound to cfg.
func NewBatch(cfg StreamConfig) *Batch {
	return &Batch{cfg: cfg}
}

// Transcribe runs one complete batch recognition pass over frames.
func (e *Batch) Transcribe(ctx context.Context, frames []ring.Frame) (string, time.Duration, error) {
	stream, err := DialStream(ctx, e.cfg)
	if err != nil {
		return "", 0, fmt.Errorf("dial batch stream: %w", err)
	}

	for _, frame := range frames {
		if err := stream.SendAudio(encodeFrame(frame)); err != nil {
			_ = stream.Cancel()
			return "", 0, fmt.Errorf("send audio frame: %w", err)
		}
	}

	segments, latency, err := stream.CloseAndCollect(ctx)
	if err != nil {
		return "", latency, fmt.Errorf("collect final transcript: %w", err)
	}
	return strings.Join(segments, " "), latency, nil
}

// encodeFrame converts a mono float32 frame to little-endian 16-bit PCM,
// the wire format recognitionConfig.Encoding declares.
func encodeFrame(frame ring.Frame) []byte {
	out := make([]byte, len(frame)*2)
	for i, sample := range frame {
		v := int16(clampSample(sample) * 32767)
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}
	return out
}

func clampSample(s float32) float32 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}
