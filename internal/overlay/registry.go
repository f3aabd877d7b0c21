package overlay

import "fmt"

// global is one wl_registry.global announcement.
type global struct {
	Name      uint32
	Interface string
	Version   uint32
}

// Registry tracks the compositor's advertised globals and binds proxies
// for the ones this overlay needs.
type Registry struct {
	display *Display
	id      uint32
	globals []global
}

// GetRegistry issues wl_display.get_registry and collects every
// wl_registry.global event until the next roundtrip completes.
func GetRegistry(d *Display) (*Registry, error) {
	id := d.AllocID()
	reg := &Registry{display: d, id: id}

	d.On(id, func(msg message) {
		if msg.Opcode != opRegistryGlobal {
			return
		}
		dec := newArgDecoder(msg.Args)
		name := dec.uint()
		iface := dec.string()
		version := dec.uint()
		reg.globals = append(reg.globals, global{Name: name, Interface: iface, Version: version})
	})

	enc := argEncoder{}
	enc.putNewID(id)
	if err := d.send(displayObjectID, opDisplayGetRegistry, enc.bytes()); err != nil {
		return nil, fmt.Errorf("get_registry: %w", err)
	}
	if err := d.Roundtrip(); err != nil {
		return nil, fmt.Errorf("registry roundtrip: %w", err)
	}
	return reg, nil
}

// Bind creates a client-side proxy for the newest global advertising
// iface, returning its object id, or an error if the compositor never
// advertised it.
func (r *Registry) Bind(iface string, version uint32) (uint32, error) {
	var found *global
	for i := range r.globals {
		if r.globals[i].Interface == iface {
			found = &r.globals[i]
		}
	}
	if found == nil {
		return 0, fmt.Errorf("compositor does not advertise %s", iface)
	}

	id := r.display.AllocID()
	enc := argEncoder{}
	enc.putUint(found.Name)
	enc.putString(iface)
	enc.putUint(version)
	enc.putNewID(id)
	if err := r.display.send(r.id, opRegistryBind, enc.bytes()); err != nil {
		return 0, fmt.Errorf("bind %s: %w", iface, err)
	}
	return id, nil
}

// Has reports whether the compositor advertised iface at all.
func (r *Registry) Has(iface string) bool {
	for _, g := range r.globals {
		if g.Interface == iface {
			return true
		}
	}
	return false
}
