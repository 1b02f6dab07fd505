//go:build linux

// Wayland and memfd-based shm pools are Linux concepts; wlrelay, like its
// teacher waypipe, targets Linux hosts only.
package fdxlate

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Mirror is a same-size memfd reconstruction of a shared-memory-backed
// descriptor the peer sent across the tunnel (spec.md §1's "fd translation
// map that creates mirror buffers"). wlrelay never forwards the original
// descriptor: the wire carries only damage-interval-bounded byte ranges
// (see the damage package), and each side keeps its own memfd that those
// ranges are written into or read out of.
type Mirror struct {
	Fd   int
	Size int64
	data []byte
}

// NewMirror creates an anonymous close-on-exec memfd of the given size and maps
// it into the process, mirroring the shm_pool size a wl_shm.create_pool
// request declared on the other side.
func NewMirror(name string, size int64) (*Mirror, error) {
	fd, err := unix.MemfdCreate(name, unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("fdxlate: memfd_create: %w", err)
	}
	if err := unix.Ftruncate(fd, size); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("fdxlate: ftruncate: %w", err)
	}
	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("fdxlate: mmap: %w", err)
	}
	return &Mirror{Fd: fd, Size: size, data: data}, nil
}

// Bytes returns the mapped region. Writes to it are visible to any process
// holding the same memfd, including the local Wayland client or compositor
// this mirror was created for.
func (m *Mirror) Bytes() []byte { return m.data }

// ApplyInterval copies src into the mirror at [low, low+len(src)), the
// region a damage.Set bounding box names as changed.
func (m *Mirror) ApplyInterval(low int64, src []byte) error {
	if low < 0 || low+int64(len(src)) > m.Size {
		return fmt.Errorf("fdxlate: interval [%d,%d) out of bounds for mirror of size %d", low, low+int64(len(src)), m.Size)
	}
	copy(m.data[low:], src)
	return nil
}

// Grow extends the descriptor to newSize and replaces the mapping with one
// of the new size; a newSize not larger than Size is a no-op. Translator.Adopt
// calls it when a serial is announced again with a larger size.
func (m *Mirror) Grow(newSize int64) error {
	if newSize <= m.Size {
		return nil
	}
	if err := unix.Ftruncate(m.Fd, newSize); err != nil {
		return fmt.Errorf("fdxlate: ftruncate on grow: %w", err)
	}
	if err := unix.Munmap(m.data); err != nil {
		return fmt.Errorf("fdxlate: munmap before remap: %w", err)
	}
	data, err := unix.Mmap(m.Fd, 0, int(newSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("fdxlate: remap on grow: %w", err)
	}
	m.data = data
	m.Size = newSize
	return nil
}

// OpenMirror wraps a descriptor this side already owns outright (typically
// a wl_shm_pool fd just received over SCM_RIGHTS from the local client or
// compositor) by mapping it directly, instead of allocating a fresh memfd
// the way NewMirror does. This is the "originating side" half of a mirror
// pair: the peer side calls Adopt/NewMirror to reconstruct a logically
// equivalent buffer without the real descriptor ever crossing the tunnel
// (spec.md §1). Mirror takes ownership of fd; Close unmaps and closes it.
func OpenMirror(fd int, size int64) (*Mirror, error) {
	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("fdxlate: mmap local fd: %w", err)
	}
	return &Mirror{Fd: fd, Size: size, data: data}, nil
}

// Close unmaps and closes the memfd.
func (m *Mirror) Close() error {
	if m.data != nil {
		_ = unix.Munmap(m.data)
		m.data = nil
	}
	return unix.Close(m.Fd)
}
