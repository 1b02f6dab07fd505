//go:build linux

package fdxlate_test

import (
	"net"
	"path/filepath"
	"testing"

	"github.com/wlrelay/wlrelay/fdxlate"
	"golang.org/x/sys/unix"
)

func unixSocketPair(t *testing.T) (*net.UnixConn, *net.UnixConn) {
	t.Helper()
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "wlrelay-test.sock")

	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: sockPath, Net: "unix"})
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	type result struct {
		conn *net.UnixConn
		err  error
	}
	acceptCh := make(chan result, 1)
	go func() {
		c, err := ln.AcceptUnix()
		acceptCh <- result{c, err}
	}()

	client, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: sockPath, Net: "unix"})
	if err != nil {
		t.Fatal(err)
	}
	srv := <-acceptCh
	if srv.err != nil {
		t.Fatal(srv.err)
	}
	return client, srv.conn
}

func TestSendFdThenRecvFdTransfersDescriptor(t *testing.T) {
	a, b := unixSocketPair(t)
	defer a.Close()
	defer b.Close()

	mirror, err := fdxlate.NewMirror("scmrights-test", 4096)
	if err != nil {
		t.Fatal(err)
	}
	defer mirror.Close()

	payload := []byte("fd-announce")
	if err := fdxlate.SendFd(a, payload, mirror.Fd); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 64)
	n, fd, err := fdxlate.RecvFd(b, buf)
	if err != nil {
		t.Fatal(err)
	}
	defer unix.Close(fd)

	if string(buf[:n]) != string(payload) {
		t.Fatalf("got payload %q, want %q", buf[:n], payload)
	}
	if fd < 0 {
		t.Fatal("expected a valid descriptor from RecvFd")
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		t.Fatalf("received fd is not usable: %v", err)
	}
}

func TestRecvFdWithoutRightsReturnsNegativeOne(t *testing.T) {
	a, b := unixSocketPair(t)
	defer a.Close()
	defer b.Close()

	if _, err := a.Write([]byte("no fds here")); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 64)
	_, fd, err := fdxlate.RecvFd(b, buf)
	if err != nil {
		t.Fatal(err)
	}
	if fd != -1 {
		t.Fatalf("expected fd -1 when no control message was sent, got %d", fd)
	}
}
