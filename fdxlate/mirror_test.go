//go:build linux

package fdxlate_test

import (
	"bytes"
	"testing"

	"github.com/wlrelay/wlrelay/fdxlate"
)

func TestMirrorApplyIntervalWritesInPlace(t *testing.T) {
	m, err := fdxlate.NewMirror("test-mirror", 4096)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if err := m.ApplyInterval(100, []byte("damaged region")); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(m.Bytes()[100:100+len("damaged region")], []byte("damaged region")) {
		t.Fatal("expected mirror bytes to reflect the applied interval")
	}
}

func TestMirrorApplyIntervalRejectsOutOfBounds(t *testing.T) {
	m, err := fdxlate.NewMirror("test-mirror", 64)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if err := m.ApplyInterval(60, []byte("too long for this mirror")); err == nil {
		t.Fatal("expected an out-of-bounds error")
	}
}

func TestMirrorGrowPreservesExistingBytes(t *testing.T) {
	m, err := fdxlate.NewMirror("test-mirror", 64)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if err := m.ApplyInterval(0, []byte("kept across grow")); err != nil {
		t.Fatal(err)
	}
	if err := m.Grow(4096); err != nil {
		t.Fatal(err)
	}
	if m.Size != 4096 {
		t.Fatalf("expected size 4096, got %d", m.Size)
	}
	if !bytes.Equal(m.Bytes()[:len("kept across grow")], []byte("kept across grow")) {
		t.Fatal("expected bytes written before Grow to survive")
	}
}
