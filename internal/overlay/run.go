package overlay

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"time"

	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/config"
	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/ring"
)

// renderInterval targets the 60Hz cadence spec.md's C11 section calls for.
const renderInterval = time.Second / 60

// Options configures one renderer run.
type Options struct {
	AudioSocketPath string
	StateSocketPath string
	Namespace       string
	MarginBottom    int
	Width           int
	MaxHeight       int
	SampleRate      int
	Elements        config.ElementsConfig
	Animations      config.AnimationsConfig
	SpectrumSmooth  float64
}

// Run connects to a compositor and to the daemon's overlaybus sockets, and
// drives the render loop until ctx is cancelled. Socket disconnects are
// retried silently per spec.md's failure semantics: the overlay is a
// best-effort broadcast consumer, never a session dependency.
func Run(ctx context.Context, logger *slog.Logger, opts Options) error {
	display, err := Dial()
	if err != nil {
		return fmt.Errorf("dial wayland display: %w", err)
	}
	defer display.Close()

	surface, err := NewSurface(display, opts.Namespace, opts.Width, opts.MaxHeight, opts.MarginBottom)
	if err != nil {
		return fmt.Errorf("create layer surface: %w", err)
	}

	buf, err := newShmPool(display, opts.Width, opts.MaxHeight)
	if err != nil {
		return fmt.Errorf("allocate pixel buffer: %w", err)
	}
	defer buf.Release(display)

	stateCh := make(chan UIState, 1)
	audioCh := make(chan ring.Frame, 4)

	go retryConnectLoop(ctx, logger, opts.StateSocketPath, func(conn net.Conn) error {
		return readStateStream(ctx, conn, stateCh)
	})
	go retryConnectLoop(ctx, logger, opts.AudioSocketPath, func(conn net.Conn) error {
		return readAudioStream(ctx, conn, audioCh)
	})

	go func() {
		for {
			if err := display.DispatchOnce(); err != nil {
				return
			}
		}
	}()

	smoother := NewSmoother(opts.SpectrumSmooth, opts.Elements.SpectrumBands)
	ticker := time.NewTicker(renderInterval)
	defer ticker.Stop()

	var latestState UIState
	var latestFrame ring.Frame
	lastHeight := opts.MaxHeight

	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-stateCh:
			latestState = s
		case f := <-audioCh:
			latestFrame = f
		case <-ticker.C:
			drainLatest(stateCh, &latestState)
			drainLatest(audioCh, &latestFrame)

			var samples []float32
			if latestFrame != nil {
				samples = []float32(latestFrame)
			}
			bands := SpectrumBands(samples, opts.SampleRate, opts.Elements.SpectrumBands)
			bands = smoother.Apply(bands)

			if height := collapseHeight(latestState, opts.MaxHeight); height != lastHeight {
				if err := surface.Resize(opts.Width, height); err != nil {
					logger.Warn("overlay resize failed", "error", err)
				} else {
					lastHeight = height
				}
			}

			Render(buf, latestState, bands, opts.Elements, opts.Animations)
			if err := surface.Attach(buf); err != nil {
				logger.Warn("overlay attach failed", "error", err)
			}
		}
	}
}

// collapseHeight computes the surface's target height for the current
// frame: full height while visible, shrinking linearly with
// ClosingProgress during Closing, and zero once Hidden, per spec.md's
// collapse-then-hidden animation.
func collapseHeight(state UIState, maxHeight int) int {
	switch state.Mode {
	case "hidden":
		return 0
	case "closing":
		return int(float64(maxHeight) * clamp01(1-state.ClosingProgress))
	default:
		return maxHeight
	}
}

func drainLatest[T any](ch chan T, dst *T) {
	for {
		select {
		case v := <-ch:
			*dst = v
		default:
			return
		}
	}
}

// retryConnectLoop dials path repeatedly until ctx is cancelled, running
// handler on each successful connection. It backs off between attempts so
// a daemon that hasn't started the broadcaster yet doesn't get hammered.
func retryConnectLoop(ctx context.Context, logger *slog.Logger, path string, handler func(net.Conn) error) {
	backoff := 200 * time.Millisecond
	const maxBackoff = 5 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := net.Dial("unix", path)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = 200 * time.Millisecond

		if err := handler(conn); err != nil && ctx.Err() == nil {
			logger.Debug("overlaybus connection ended", "socket", path, "error", err)
		}
		_ = conn.Close()
	}
}

func readStateStream(ctx context.Context, conn net.Conn, out chan UIState) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		var lenBuf [4]byte
		if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
			return err
		}
		n := binary.LittleEndian.Uint32(lenBuf[:])
		payload := make([]byte, n)
		if _, err := io.ReadFull(conn, payload); err != nil {
			return err
		}
		select {
		case out <- DecodeViewModel(payload):
		case <-ctx.Done():
			return nil
		default:
			// drop stale un-consumed state rather than block the reader
			select {
			case <-out:
			default:
			}
			out <- DecodeViewModel(payload)
		}
	}
}

func readAudioStream(ctx context.Context, conn net.Conn, out chan ring.Frame) error {
	reader := bufio.NewReaderSize(conn, ring.FrameSamples*4)
	for {
		if ctx.Err() != nil {
			return nil
		}
		raw := make([]byte, ring.FrameSamples*4)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return err
		}
		frame := ring.NewFrame()
		for i := range frame {
			bits := binary.LittleEndian.Uint32(raw[i*4:])
			frame[i] = math.Float32frombits(bits)
		}
		select {
		case out <- frame:
		case <-ctx.Done():
			return nil
		default:
			select {
			case <-out:
			default:
			}
			out <- frame
		}
	}
}
