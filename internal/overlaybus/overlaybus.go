// Package overlaybus implements C10, the daemon's best-effort broadcast of
// session state and raw audio to an out-of-process overlay renderer (C11)
// over two local unix sockets. Neither socket blocks the session
// orchestrator: the audio socket drops frames on backpressure, and the
// state socket buffers a small bounded per-client queue and drops the
// oldest entry once full.
package overlaybus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/ring"
)

// AudioSocketPath and StateSocketPath return the well-known overlay
// broadcast socket paths under $XDG_RUNTIME_DIR, alongside the control
// socket's dictd.sock.
func AudioSocketPath() (string, error) {
	return runtimeSocketPath("dictd-overlay-audio.sock")
}

func StateSocketPath() (string, error) {
	return runtimeSocketPath("dictd-overlay-state.sock")
}

func runtimeSocketPath(name string) (string, error) {
	runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if runtimeDir == "" {
		return "", errors.New("XDG_RUNTIME_DIR is not set")
	}
	return filepath.Join(runtimeDir, name), nil
}

// Mode is the overlay's coarse display mode, mirroring the session FSM
// states the overlay actually needs to render differently for.
type Mode string

const (
	ModeHidden     Mode = "hidden"
	ModeListening  Mode = "listening"
	ModeProcessing Mode = "processing"
	ModeClosing    Mode = "closing"
)

// ViewModel is the C9-produced, C11-consumed overlay state snapshot. The
// spectrum bands are deliberately absent here: C11 computes them itself
// from the raw audio socket, so only the state fields C9 actually knows
// about travel over the state socket.
type ViewModel struct {
	Mode            Mode
	Text            string
	Fade            float64
	ClosingProgress float64
	PreListening    bool
}

// Encode serializes vm as a single-line key=value UTF-8 record. Either a
// per-field record or one serialized object per update satisfies the
// wire contract; this implementation always sends the total snapshot.
func (vm ViewModel) Encode() []byte {
	return []byte(fmt.Sprintf(
		"mode=%s\ttext=%s\tfade=%.4f\tclosing_progress=%.4f\tpre_listening=%t",
		vm.Mode, escapeTabs(vm.Text), vm.Fade, vm.ClosingProgress, vm.PreListening,
	))
}

func escapeTabs(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '\t' || r == '\n' {
			out = append(out, ' ')
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

const stateQueueDepth = 16

// Broadcaster owns the audio and state listeners for one daemon lifetime.
// PublishAudio and PublishState are called from the session orchestrator's
// single event-loop goroutine; both are non-blocking from the caller's
// perspective.
type Broadcaster struct {
	logger *slog.Logger

	audioListener net.Listener
	stateListener net.Listener

	mu           sync.Mutex
	audioClients map[net.Conn]chan []byte
	stateClients map[net.Conn]chan []byte
	lastState    ViewModel
	haveState    bool
}

// New wraps already-bound listeners (acquired the same way C8 acquires its
// control socket, including stale-socket recovery) into a Broadcaster.
func New(logger *slog.Logger, audioListener, stateListener net.Listener) *Broadcaster {
	return &Broadcaster{
		logger:        logger,
		audioListener: audioListener,
		stateListener: stateListener,
		audioClients:  make(map[net.Conn]chan []byte),
		stateClients:  make(map[net.Conn]chan []byte),
	}
}

// Serve accepts audio and state clients until either listener closes.
func (b *Broadcaster) Serve() {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); b.acceptLoop(b.audioListener, b.registerAudioClient) }()
	go func() { defer wg.Done(); b.acceptLoop(b.stateListener, b.registerStateClient) }()
	wg.Wait()
}

func (b *Broadcaster) acceptLoop(listener net.Listener, register func(net.Conn)) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		register(conn)
	}
}

func (b *Broadcaster) registerAudioClient(conn net.Conn) {
	queue := make(chan []byte, stateQueueDepth)
	b.mu.Lock()
	b.audioClients[conn] = queue
	b.mu.Unlock()
	go b.drainClient(conn, queue, b.audioClients)
}

func (b *Broadcaster) registerStateClient(conn net.Conn) {
	queue := make(chan []byte, stateQueueDepth)
	b.mu.Lock()
	b.stateClients[conn] = queue
	snapshot, ok := b.lastState, b.haveState
	b.mu.Unlock()
	if ok {
		enqueueDropOldest(queue, framed(snapshot.Encode()))
	}
	go b.drainClient(conn, queue, b.stateClients)
}

func (b *Broadcaster) drainClient(conn net.Conn, queue chan []byte, table map[net.Conn]chan []byte) {
	defer func() {
		b.mu.Lock()
		delete(table, conn)
		b.mu.Unlock()
		_ = conn.Close()
	}()
	for payload := range queue {
		if _, err := conn.Write(payload); err != nil {
			return
		}
	}
}

// PublishAudio pushes one frame to every connected audio client as raw
// little-endian float32 samples. Each client has a bounded queue of
// stateQueueDepth frames; a frame that doesn't fit is dropped for that
// client rather than blocking: the audio socket has no delivery guarantee.
func (b *Broadcaster) PublishAudio(frame ring.Frame) {
	payload := encodeFrame(frame)

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, queue := range b.audioClients {
		select {
		case queue <- payload:
		default:
			// would-block: drop this frame for this client.
		}
	}
}

// PublishState pushes a length-prefixed state snapshot to every connected
// state client, deduplicating identical consecutive payloads and dropping
// the oldest queued message once a client's bounded queue is full.
func (b *Broadcaster) PublishState(vm ViewModel) {
	b.mu.Lock()
	if b.haveState && b.lastState == vm {
		b.mu.Unlock()
		return
	}
	b.lastState = vm
	b.haveState = true
	clients := make([]chan []byte, 0, len(b.stateClients))
	for _, queue := range b.stateClients {
		clients = append(clients, queue)
	}
	b.mu.Unlock()

	payload := framed(vm.Encode())
	for _, queue := range clients {
		enqueueDropOldest(queue, payload)
	}
}

// Close shuts down both listeners and disconnects every client.
func (b *Broadcaster) Close() {
	_ = b.audioListener.Close()
	_ = b.stateListener.Close()

	b.mu.Lock()
	defer b.mu.Unlock()
	for conn, queue := range b.audioClients {
		close(queue)
		_ = conn.Close()
	}
	for conn, queue := range b.stateClients {
		close(queue)
		_ = conn.Close()
	}
}

func framed(payload []byte) []byte {
	out := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(out, uint32(len(payload)))
	copy(out[4:], payload)
	return out
}

func enqueueDropOldest(queue chan []byte, payload []byte) {
	for {
		select {
		case queue <- payload:
			return
		default:
			select {
			case <-queue:
			default:
			}
		}
	}
}

func encodeFrame(frame ring.Frame) []byte {
	out := make([]byte, len(frame)*4)
	for i, sample := range frame {
		bits := math.Float32bits(sample)
		binary.LittleEndian.PutUint32(out[i*4:], bits)
	}
	return out
}
