package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"

	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/ring"
)

// pipelineSampleRate is the mono sample rate every Capture normalizes to,
// regardless of the rate Pulse actually negotiates with the device.
const pipelineSampleRate = 16000

const (
	reconnectBackoffMin = time.Second
	reconnectBackoffMax = 10 * time.Second
	// ReconnectWindow is the span after which a still-failing capture gives
	// up and surfaces AudioUnavailable to the caller instead of retrying forever.
	ReconnectWindow = 30 * time.Second
)

// ErrAudioUnavailable is returned once Capture exhausts its reconnect window.
var ErrAudioUnavailable = errors.New("audio device unavailable")

// Capture streams mono float32 frames from one selected Pulse source into a
// ring.Buffer. It asks Pulse for mono s16le at the pipeline rate and does no
// resampling or channel mixing of its own. Only the initial connection is
// retried with backoff; a stream that fails after it has started is not
// reconnected.
type Capture struct {
	device     Device
	buf        *ring.Buffer
	sourceRate int

	client *pulse.Client
	stream *pulse.RecordStream

	mu      sync.Mutex
	pending []byte // residual s16le bytes shorter than one full sample
	acc     []float32
	stopped bool

	stopCh   chan struct{}
	inflight sync.WaitGroup
	bytes    atomic.Int64
}

// StartCapture opens a record stream on selected, retrying with capped
// exponential backoff for up to ReconnectWindow before giving up, and
// writes frames into buf until ctx is cancelled.
func StartCapture(ctx context.Context, selected Device, buf *ring.Buffer) (*Capture, error) {
	c := &Capture{
		device: selected,
		buf:    buf,
		stopCh: make(chan struct{}),
	}

	if err := c.connectWithBackoff(ctx); err != nil {
		return nil, err
	}

	go func() {
		<-ctx.Done()
		_ = c.Stop()
	}()

	return c, nil
}

// connectWithBackoff retries connect, doubling the delay between attempts
// up to reconnectBackoffMax, until it succeeds or ReconnectWindow elapses.
func (c *Capture) connectWithBackoff(ctx context.Context) error {
	deadline := time.Now().Add(ReconnectWindow)
	backoff := reconnectBackoffMin

	for {
		err := c.connect()
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %v", ErrAudioUnavailable, err)
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrAudioUnavailable, ctx.Err())
		}

		backoff *= 2
		if backoff > reconnectBackoffMax {
			backoff = reconnectBackoffMax
		}
	}
}

func (c *Capture) connect() error {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("dictd"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}

	source, err := client.SourceByID(c.device.ID)
	if err != nil {
		client.Close()
		return fmt.Errorf("resolve source %q: %w", c.device.ID, err)
	}

	c.sourceRate = pipelineSampleRate
	writer := pulse.NewWriter(writerFunc(c.onPCM), pulseproto.FormatInt16LE)
	stream, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(pipelineSampleRate),
		pulse.RecordMediaName("dictation capture"),
	)
	if err != nil {
		client.Close()
		return fmt.Errorf("create pulse record stream: %w", err)
	}

	c.mu.Lock()
	c.client = client
	c.stream = stream
	c.mu.Unlock()

	stream.Start()
	return nil
}

// Device returns capture metadata for logging and diagnostics.
func (c *Capture) Device() Device {
	return c.device
}

// BytesCaptured reports total raw bytes accepted from Pulse.
func (c *Capture) BytesCaptured() int64 {
	return c.bytes.Load()
}

// Stop halts the stream and closes the backing ring.Buffer exactly once.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	close(c.stopCh)
	stream := c.stream
	client := c.client
	c.mu.Unlock()

	if stream != nil {
		stream.Stop()
		stream.Close()
	}
	if client != nil {
		client.Close()
	}

	c.inflight.Wait()
	c.buf.Close()
	return nil
}

// onPCM receives raw s16le mono frames from Pulse, accumulates them into
// ring.FrameSamples-sized float32 frames, and writes each full frame to the buffer.
func (c *Capture) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	select {
	case <-c.stopCh:
		return 0, io.EOF
	default:
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return 0, io.EOF
	}
	c.inflight.Add(1)
	c.mu.Unlock()
	defer c.inflight.Done()

	c.bytes.Add(int64(len(buffer)))

	c.mu.Lock()
	c.pending = append(c.pending, buffer...)
	for len(c.pending) >= 2 {
		sample := int16(c.pending[0]) | int16(c.pending[1])<<8
		c.pending = c.pending[2:]
		c.acc = append(c.acc, float32(sample)/32768.0)
	}

	var frames []ring.Frame
	for len(c.acc) >= ring.FrameSamples {
		frame := make(ring.Frame, ring.FrameSamples)
		copy(frame, c.acc[:ring.FrameSamples])
		c.acc = c.acc[ring.FrameSamples:]
		frames = append(frames, frame)
	}
	c.mu.Unlock()

	for _, frame := range frames {
		c.buf.Write(frame)
	}

	return len(buffer), nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
