//go:build linux

package fdxlate

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// SendFd writes payload on conn's underlying socket with fd attached as an
// SCM_RIGHTS ancillary message, the transport-level half of the fd
// translation contract: wlrelay never forwards a descriptor verbatim, but
// it does hand the peer's side a freshly created local one (a Mirror's Fd,
// or a plain pipe for non-shm cases) over the same control-message channel
// waypipe's own client/server use, per original_source/src/client.c's
// send_one_fd.
func SendFd(conn *net.UnixConn, payload []byte, fd int) error {
	rc, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	oob := unix.UnixRights(fd)
	var sendErr error
	ctrlErr := rc.Write(func(s uintptr) bool {
		sendErr = unix.Sendmsg(int(s), payload, oob, nil, 0)
		return sendErr != unix.EAGAIN
	})
	if ctrlErr != nil {
		return ctrlErr
	}
	return sendErr
}

// RecvFd reads one message from conn, returning its payload and the first
// file descriptor carried in an SCM_RIGHTS control message, if any. fd is -1
// when no control message was present. Extra descriptors beyond the first
// are closed immediately: wlrelay's protocol never sends more than one fd
// per message (spec.md §4.4's single 'h' consumption model).
func RecvFd(conn *net.UnixConn, buf []byte) (n int, fd int, err error) {
	fd = -1
	rc, err := conn.SyscallConn()
	if err != nil {
		return 0, -1, err
	}
	oob := make([]byte, unix.CmsgSpace(4))
	var oobn int
	var recvErr error
	ctrlErr := rc.Read(func(s uintptr) bool {
		n, oobn, _, _, recvErr = unix.Recvmsg(int(s), buf, oob, 0)
		return recvErr != unix.EAGAIN
	})
	if ctrlErr != nil {
		return 0, -1, ctrlErr
	}
	if recvErr != nil {
		return 0, -1, recvErr
	}
	if oobn > 0 {
		scms, parseErr := unix.ParseSocketControlMessage(oob[:oobn])
		if parseErr != nil {
			return n, -1, fmt.Errorf("fdxlate: parse control message: %w", parseErr)
		}
		for _, scm := range scms {
			rights, parseErr := unix.ParseUnixRights(&scm)
			if parseErr != nil {
				continue
			}
			for i, r := range rights {
				if i == 0 {
					fd = r
				} else {
					unix.Close(r)
				}
			}
		}
	}
	return n, fd, nil
}
