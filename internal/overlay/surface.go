package overlay

import "fmt"

// Surface abstracts the rendering target the overlay draws into, so
// viewmodel/spectrum logic can be exercised in tests without a compositor.
type Surface interface {
	Resize(width, height int) error
	Attach(buf *PixelBuffer) error
	Size() (int, int)
}

// WaylandSurface is the overlay's single concrete Surface: a borderless,
// non-interactive layer-shell panel anchored to the bottom of the output,
// matching the reference implementation's placement (bottom anchor,
// negative exclusive zone, no keyboard focus).
type WaylandSurface struct {
	display      *Display
	surfaceID    uint32
	layerID      uint32
	configured   chan struct{}
	width        int
	height       int
}

var _ Surface = (*WaylandSurface)(nil)

// NewSurface binds wl_compositor and the layer-shell global, creates a
// wl_surface, and requests a layer surface with the given namespace and
// bottom margin. It blocks until the compositor sends the first
// configure event.
func NewSurface(d *Display, namespace string, width, height, marginBottom int) (*WaylandSurface, error) {
	reg, err := GetRegistry(d)
	if err != nil {
		return nil, err
	}

	compositorID, err := reg.Bind("wl_compositor", 4)
	if err != nil {
		return nil, err
	}
	layerShellID, err := reg.Bind("zwlr_layer_shell_v1", 1)
	if err != nil {
		return nil, err
	}

	surfaceID := d.AllocID()
	enc := argEncoder{}
	enc.putNewID(surfaceID)
	if err := d.send(compositorID, opCompositorCreateSurface, enc.bytes()); err != nil {
		return nil, fmt.Errorf("create_surface: %w", err)
	}

	layerID := d.AllocID()
	enc = argEncoder{}
	enc.putNewID(layerID)
	enc.putUint(surfaceID)
	enc.putUint(0) // output: let the compositor pick
	enc.putUint(uint32(LayerOverlay))
	enc.putString(namespace)
	if err := d.send(layerShellID, opLayerShellGetLayerSurface, enc.bytes()); err != nil {
		return nil, fmt.Errorf("get_layer_surface: %w", err)
	}

	s := &WaylandSurface{
		display:    d,
		surfaceID:  surfaceID,
		layerID:    layerID,
		configured: make(chan struct{}, 1),
		width:      width,
		height:     height,
	}

	d.On(layerID, s.handleEvent)

	if err := s.setSize(width, height); err != nil {
		return nil, err
	}
	if err := d.send(layerID, opLayerSurfaceSetAnchor, uint32Args(uint32(AnchorBottom))); err != nil {
		return nil, fmt.Errorf("set_anchor: %w", err)
	}
	if err := d.send(layerID, opLayerSurfaceSetExclusiveZone, int32Args(-1)); err != nil {
		return nil, fmt.Errorf("set_exclusive_zone: %w", err)
	}
	if err := d.send(layerID, opLayerSurfaceSetKeyboardInteractivity, uint32Args(uint32(KeyboardInteractivityNone))); err != nil {
		return nil, fmt.Errorf("set_keyboard_interactivity: %w", err)
	}

	marginEnc := argEncoder{}
	marginEnc.putInt(0)
	marginEnc.putInt(0)
	marginEnc.putInt(int32(marginBottom))
	marginEnc.putInt(0)
	if err := d.send(layerID, opLayerSurfaceSetMargin, marginEnc.bytes()); err != nil {
		return nil, fmt.Errorf("set_margin: %w", err)
	}

	if err := d.send(surfaceID, opSurfaceCommit, nil); err != nil {
		return nil, fmt.Errorf("initial commit: %w", err)
	}

	for {
		select {
		case <-s.configured:
			return s, nil
		default:
		}
		if err := d.DispatchOnce(); err != nil {
			return nil, fmt.Errorf("wait for configure: %w", err)
		}
	}
}

func (s *WaylandSurface) setSize(width, height int) error {
	enc := argEncoder{}
	enc.putUint(uint32(width))
	enc.putUint(uint32(height))
	return s.display.send(s.layerID, opLayerSurfaceSetSize, enc.bytes())
}

func (s *WaylandSurface) handleEvent(msg message) {
	switch msg.Opcode {
	case opLayerSurfaceConfigure:
		dec := newArgDecoder(msg.Args)
		serial := dec.uint()
		width := dec.uint()
		height := dec.uint()
		if width > 0 {
			s.width = int(width)
		}
		if height > 0 {
			s.height = int(height)
		}
		enc := argEncoder{}
		enc.putUint(serial)
		_ = s.display.send(s.layerID, opLayerSurfaceAckConfigure, enc.bytes())
		select {
		case s.configured <- struct{}{}:
		default:
		}
	case opLayerSurfaceClosed:
		s.display.Forget(s.layerID)
	}
}

// Resize requests a new logical size from the compositor. The caller must
// wait for the resulting configure event (delivered on the next
// DispatchOnce) before rendering into a differently-sized buffer.
func (s *WaylandSurface) Resize(width, height int) error {
	return s.setSize(width, height)
}

// Attach hands a rendered buffer to the compositor, marks the whole
// surface damaged, and commits.
func (s *WaylandSurface) Attach(buf *PixelBuffer) error {
	enc := argEncoder{}
	enc.putUint(buf.bufferID)
	enc.putInt(0)
	enc.putInt(0)
	if err := s.display.send(s.surfaceID, opSurfaceAttach, enc.bytes()); err != nil {
		return fmt.Errorf("surface.attach: %w", err)
	}

	damage := argEncoder{}
	damage.putInt(0)
	damage.putInt(0)
	damage.putInt(int32(buf.Width))
	damage.putInt(int32(buf.Height))
	if err := s.display.send(s.surfaceID, opSurfaceDamage, damage.bytes()); err != nil {
		return fmt.Errorf("surface.damage: %w", err)
	}

	return s.display.send(s.surfaceID, opSurfaceCommit, nil)
}

// Size returns the surface's current logical width and height.
func (s *WaylandSurface) Size() (int, int) {
	return s.width, s.height
}

func uint32Args(v uint32) []byte {
	enc := argEncoder{}
	enc.putUint(v)
	return enc.bytes()
}

func int32Args(v int32) []byte {
	enc := argEncoder{}
	enc.putInt(v)
	return enc.bytes()
}
