package overlay

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
)

// Well-known object ids and opcodes from the stable wayland.xml core
// protocol and the wlr-layer-shell-unstable-v1.xml extension. A real
// client normally generates these bindings from the protocol XML at build
// time; this daemon links against neither, so they're written out by hand.
const (
	displayObjectID uint32 = 1

	opDisplaySync        uint16 = 0
	opDisplayGetRegistry uint16 = 1
	opDisplayError       uint16 = 0 // event
	opDisplayDeleteID    uint16 = 1 // event

	opRegistryBind   uint16 = 0
	opRegistryGlobal uint16 = 0 // event

	opCompositorCreateSurface uint16 = 0

	opShmCreatePool uint16 = 0
	opShmPoolCreateBuffer uint16 = 0
	opShmPoolDestroy      uint16 = 1

	opSurfaceAttach uint16 = 1
	opSurfaceDamage uint16 = 2
	opSurfaceCommit uint16 = 6

	opBufferDestroy uint16 = 0

	opLayerShellGetLayerSurface uint16 = 0

	opLayerSurfaceSetSize                uint16 = 0
	opLayerSurfaceSetAnchor              uint16 = 1
	opLayerSurfaceSetExclusiveZone       uint16 = 2
	opLayerSurfaceSetMargin              uint16 = 3
	opLayerSurfaceSetKeyboardInteractivity uint16 = 4
	opLayerSurfaceAckConfigure           uint16 = 6
	opLayerSurfaceConfigure              uint16 = 0 // event
	opLayerSurfaceClosed                 uint16 = 1 // event
)

// LayerShellLayer selects the compositor stacking layer for the surface.
type LayerShellLayer uint32

const (
	LayerBackground LayerShellLayer = 0
	LayerBottom     LayerShellLayer = 1
	LayerTop        LayerShellLayer = 2
	LayerOverlay    LayerShellLayer = 3
)

// Anchor bits, matching zwlr_layer_surface_v1's anchor enum.
type Anchor uint32

const (
	AnchorTop    Anchor = 1
	AnchorBottom Anchor = 2
	AnchorLeft   Anchor = 4
	AnchorRight  Anchor = 8
)

// KeyboardInteractivity matches zwlr_layer_surface_v1's enum.
type KeyboardInteractivity uint32

const (
	KeyboardInteractivityNone KeyboardInteractivity = 0
)

// Display owns the connection to the compositor and dispatches incoming
// events to per-object handlers registered by id.
type Display struct {
	conn   net.Conn
	writer *bufio.Writer

	mu       sync.Mutex
	nextID   uint32
	handlers map[uint32]func(message)
}

// Dial connects to the compositor named by $WAYLAND_DISPLAY under
// $XDG_RUNTIME_DIR, matching how every Wayland client locates its socket.
func Dial() (*Display, error) {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		return nil, fmt.Errorf("XDG_RUNTIME_DIR not set")
	}
	name := os.Getenv("WAYLAND_DISPLAY")
	if name == "" {
		name = "wayland-0"
	}
	path := name
	if !filepath.IsAbs(name) {
		path = filepath.Join(runtimeDir, name)
	}

	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("dial wayland socket %s: %w", path, err)
	}

	d := &Display{
		conn:     conn,
		writer:   bufio.NewWriter(conn),
		nextID:   2, // 1 is reserved for wl_display
		handlers: make(map[uint32]func(message)),
	}
	return d, nil
}

// Close disconnects from the compositor.
func (d *Display) Close() error {
	return d.conn.Close()
}

// AllocID reserves the next client-side object id.
func (d *Display) AllocID() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	return id
}

// On registers a handler for events addressed to objectID.
func (d *Display) On(objectID uint32, handler func(message)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[objectID] = handler
}

// Forget removes a handler, used once an object is destroyed.
func (d *Display) Forget(objectID uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers, objectID)
}

// send writes one request and flushes it immediately: layer-shell traffic
// is low-rate enough that per-request flushing costs nothing measurable.
func (d *Display) send(objectID uint32, opcode uint16, args []byte) error {
	if err := writeMessage(d.writer, objectID, opcode, args); err != nil {
		return err
	}
	return d.writer.Flush()
}

// DispatchOnce reads and routes exactly one event. It blocks until the
// compositor sends something.
func (d *Display) DispatchOnce() error {
	msg, err := readMessage(d.conn)
	if err != nil {
		return err
	}
	d.mu.Lock()
	handler := d.handlers[msg.Sender]
	d.mu.Unlock()
	if handler != nil {
		handler(msg)
	}
	return nil
}

// Roundtrip blocks until the compositor has processed every request sent
// so far, mirroring wl_display_roundtrip: it issues wl_display.sync and
// waits for the matching done callback.
func (d *Display) Roundtrip() error {
	callbackID := d.AllocID()
	done := make(chan struct{})
	d.On(callbackID, func(message) {
		close(done)
	})
	defer d.Forget(callbackID)

	enc := argEncoder{}
	enc.putNewID(callbackID)
	if err := d.send(displayObjectID, opDisplaySync, enc.bytes()); err != nil {
		return err
	}

	for {
		select {
		case <-done:
			return nil
		default:
		}
		if err := d.DispatchOnce(); err != nil {
			return err
		}
	}
}
