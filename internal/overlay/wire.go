package overlay

import (
	"encoding/binary"
	"fmt"
	"io"
)

// message is one decoded Wayland wire protocol frame: a sender object id,
// an opcode local to that object's interface, and the raw argument bytes
// that follow the 8-byte header.
type message struct {
	Sender uint32
	Opcode uint16
	Args   []byte
}

// writeMessage encodes and writes one request frame to w.
func writeMessage(w io.Writer, objectID uint32, opcode uint16, args []byte) error {
	size := uint16(8 + len(args))
	header := make([]byte, 8)
	binary.LittleEndian.PutUint32(header[0:4], objectID)
	binary.LittleEndian.PutUint16(header[4:6], opcode)
	binary.LittleEndian.PutUint16(header[6:8], size)

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write wayland header: %w", err)
	}
	if len(args) > 0 {
		if _, err := w.Write(args); err != nil {
			return fmt.Errorf("write wayland args: %w", err)
		}
	}
	return nil
}

// readMessage reads one frame from r.
func readMessage(r io.Reader) (message, error) {
	header := make([]byte, 8)
	if _, err := io.ReadFull(r, header); err != nil {
		return message{}, err
	}
	sender := binary.LittleEndian.Uint32(header[0:4])
	opcode := binary.LittleEndian.Uint16(header[4:6])
	size := binary.LittleEndian.Uint16(header[6:8])
	if size < 8 {
		return message{}, fmt.Errorf("wayland message size %d smaller than header", size)
	}

	args := make([]byte, size-8)
	if len(args) > 0 {
		if _, err := io.ReadFull(r, args); err != nil {
			return message{}, err
		}
	}
	return message{Sender: sender, Opcode: opcode, Args: args}, nil
}

// argEncoder accumulates the wire-format arguments of one outgoing request.
type argEncoder struct {
	buf []byte
}

func (e *argEncoder) putUint(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *argEncoder) putInt(v int32) {
	e.putUint(uint32(v))
}

func (e *argEncoder) putFixed(v float64) {
	// Wayland fixed-point: 24.8 signed.
	e.putInt(int32(v * 256))
}

func (e *argEncoder) putString(s string) {
	data := append([]byte(s), 0)
	e.putUint(uint32(len(data)))
	e.buf = append(e.buf, data...)
	if pad := (4 - len(data)%4) % 4; pad > 0 {
		e.buf = append(e.buf, make([]byte, pad)...)
	}
}

func (e *argEncoder) putNewID(id uint32) {
	e.putUint(id)
}

func (e *argEncoder) bytes() []byte {
	return e.buf
}

// argDecoder walks the wire-format arguments of one incoming event.
type argDecoder struct {
	buf []byte
	pos int
}

func newArgDecoder(buf []byte) *argDecoder {
	return &argDecoder{buf: buf}
}

func (d *argDecoder) uint() uint32 {
	v := binary.LittleEndian.Uint32(d.buf[d.pos : d.pos+4])
	d.pos += 4
	return v
}

func (d *argDecoder) int() int32 {
	return int32(d.uint())
}

func (d *argDecoder) string() string {
	n := int(d.uint())
	s := string(d.buf[d.pos : d.pos+n-1])
	d.pos += n
	if pad := (4 - n%4) % 4; pad > 0 {
		d.pos += pad
	}
	return s
}
