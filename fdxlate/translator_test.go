//go:build linux

package fdxlate_test

import (
	"errors"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/wlrelay/wlrelay/fdxlate"
)

// ownedFd simulates a descriptor this side already owns outright, as if it
// had just arrived over SCM_RIGHTS from the local client.
func ownedFd(t *testing.T, size int64) int {
	t.Helper()
	fd, err := unix.MemfdCreate("test-owned-fd", unix.MFD_CLOEXEC)
	if err != nil {
		t.Fatal(err)
	}
	if err := unix.Ftruncate(fd, size); err != nil {
		t.Fatal(err)
	}
	return fd
}

func TestTranslatorCreateThenAdoptShareASerial(t *testing.T) {
	creator := fdxlate.NewTranslator()
	defer creator.Close()
	receiver := fdxlate.NewTranslator()
	defer receiver.Close()

	serial, mirror, err := creator.Create(ownedFd(t, 4096), 4096)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := creator.Translate(mirror.Fd); err != nil {
		t.Fatalf("expected the creator to track its own mirror fd: %v", err)
	}

	adopted, err := receiver.Adopt(serial, 4096)
	if err != nil {
		t.Fatal(err)
	}
	if adopted.Size != 4096 {
		t.Fatalf("expected adopted mirror size 4096, got %d", adopted.Size)
	}
	if got, ok := receiver.Serial(adopted.Fd); !ok || got != serial {
		t.Fatalf("expected receiver to recover serial %d, got %d ok=%v", serial, got, ok)
	}
}

func TestTranslatorAdoptIsIdempotent(t *testing.T) {
	tr := fdxlate.NewTranslator()
	defer tr.Close()

	m1, err := tr.Adopt(7, 1024)
	if err != nil {
		t.Fatal(err)
	}
	m2, err := tr.Adopt(7, 1024)
	if err != nil {
		t.Fatal(err)
	}
	if m1.Fd != m2.Fd {
		t.Fatal("expected Adopt to return the same mirror for a repeated serial")
	}
}

func TestTranslatorAdoptGrowsExistingMirror(t *testing.T) {
	tr := fdxlate.NewTranslator()
	defer tr.Close()

	m1, err := tr.Adopt(3, 64)
	if err != nil {
		t.Fatal(err)
	}
	m2, err := tr.Adopt(3, 8192)
	if err != nil {
		t.Fatal(err)
	}
	if m2.Size != 8192 || m1.Fd != m2.Fd {
		t.Fatalf("expected the same mirror grown to 8192, got size=%d fd changed=%v", m2.Size, m1.Fd != m2.Fd)
	}
}

func TestTranslatorRejectsUntrackedFd(t *testing.T) {
	tr := fdxlate.NewTranslator()
	defer tr.Close()

	if _, err := tr.Translate(99999); !errors.Is(err, fdxlate.ErrNotTracked) {
		t.Fatalf("expected ErrNotTracked, got %v", err)
	}
}
