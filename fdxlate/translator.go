//go:build linux

package fdxlate

import "fmt"

// Translator is the "fd translation map that creates mirror buffers"
// spec.md §1 and §6 name as an external collaborator to the dispatcher. It
// maps between a peer's announced mirror serial (carried in a wire.KindFd
// frame) and the local Mirror descriptor substituted for it, on both the
// creating side and the receiving side of a shm pool hand-off.
//
// Not safe for concurrent use: like the object Table it backs, it is
// single-writer, bound to one direction's dispatcher loop.
type Translator struct {
	bySerial   map[uint64]*Mirror
	byFd       map[int]uint64
	nextSerial uint64
}

// NewTranslator returns an empty Translator.
func NewTranslator() *Translator {
	return &Translator{bySerial: make(map[uint64]*Mirror), byFd: make(map[int]uint64)}
}

// Create registers the mirror for a descriptor this side is introducing
// (for example, a wl_shm.create_pool fd just received from the local
// client over SCM_RIGHTS) and assigns it a serial to announce to the peer
// in a KindFd frame, alongside the pool's declared size. fd is mapped
// directly via OpenMirror: this side already owns the real shm memory, so
// there is no need to allocate a second copy.
func (t *Translator) Create(fd int, size int64) (serial uint64, mirror *Mirror, err error) {
	m, err := OpenMirror(fd, size)
	if err != nil {
		return 0, nil, err
	}
	serial = t.nextSerial
	t.nextSerial++
	t.bySerial[serial] = m
	t.byFd[m.Fd] = serial
	return serial, m, nil
}

// Adopt registers (creating if necessary) the local mirror for a serial the
// peer announced, returning the Mirror whose Fd should be substituted into
// this side's object table for the corresponding 'h' argument.
func (t *Translator) Adopt(serial uint64, size int64) (*Mirror, error) {
	if m, ok := t.bySerial[serial]; ok {
		if m.Size < size {
			if err := m.Grow(size); err != nil {
				return nil, err
			}
		}
		return m, nil
	}
	m, err := NewMirror(fmt.Sprintf("wlrelay-mirror-%d", serial), size)
	if err != nil {
		return nil, err
	}
	t.bySerial[serial] = m
	t.byFd[m.Fd] = serial
	return m, nil
}

// Translate implements proto.FdMap: it confirms fd is a descriptor this
// Translator produced (either side of Create/Adopt) before a handler
// substitutes it into an outgoing message, returning ErrNotTracked
// otherwise so a stray descriptor can never be forwarded unchecked.
func (t *Translator) Translate(fd int) (int, error) {
	if _, ok := t.byFd[fd]; !ok {
		return 0, ErrNotTracked
	}
	return fd, nil
}

// Serial reports the announced serial for a tracked local descriptor.
func (t *Translator) Serial(fd int) (uint64, bool) {
	s, ok := t.byFd[fd]
	return s, ok
}

// Mirror looks up the mirror registered for a serial.
func (t *Translator) Mirror(serial uint64) (*Mirror, bool) {
	m, ok := t.bySerial[serial]
	return m, ok
}

// Close releases every mirror this Translator created or adopted.
func (t *Translator) Close() error {
	var firstErr error
	for _, m := range t.bySerial {
		if err := m.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
