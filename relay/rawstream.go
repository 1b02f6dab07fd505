package relay

import (
	"io"
	"net"

	"github.com/wlrelay/wlrelay/fdxlate"
	"github.com/wlrelay/wlrelay/proto"
)

// rawStream reads the untunnelled Wayland wire protocol directly off a
// UNIX socket: spec.md §3's framed message (8-byte header, then payload),
// with out-of-band fds carried by SCM_RIGHTS rather than a wire.Kind tag —
// that tag only exists on the tunnel side (wire.Tunnel). It plays the same
// role the teacher's framer.Forwarder buffer-reuse state machine plays for
// length-prefixed frames: grow-on-demand buffers, partial reads left in
// place for the next call.
type rawStream struct {
	conn *net.UnixConn

	data       []byte
	start, end int

	fds            []int
	fdStart, fdEnd int
}

func newRawStream(conn *net.UnixConn) *rawStream {
	return &rawStream{conn: conn, data: make([]byte, 4096)}
}

// fill compacts consumed bytes, grows the buffer if full, and reads one
// more chunk (and at most one fd) from the socket.
func (r *rawStream) fill() error {
	if r.start > 0 {
		n := copy(r.data, r.data[r.start:r.end])
		r.end = n
		r.start = 0
	}
	if r.end == len(r.data) {
		grown := make([]byte, len(r.data)*2)
		copy(grown, r.data)
		r.data = grown
	}
	n, fd, err := fdxlate.RecvFd(r.conn, r.data[r.end:])
	if err != nil {
		return err
	}
	if n == 0 && fd == -1 {
		return io.EOF
	}
	r.end += n
	if fd != -1 {
		if r.fdEnd == len(r.fds) {
			r.fds = append(r.fds, fd)
		} else {
			r.fds[r.fdEnd] = fd
		}
		r.fdEnd++
	}
	return nil
}

// nextMessage blocks until a complete framed message is buffered, and
// returns windows over it plus the message's original on-wire length
// (which consume needs, since a handler may rewrite ctx.MessageLength to a
// different value than what was actually read off the socket).
func (r *rawStream) nextMessage() (proto.ByteWindow, *proto.FdWindow, int, error) {
	for {
		if r.end-r.start >= 8 {
			need := int(proto.PeekMessageSize(r.data[r.start:r.end]))
			if need >= 8 && r.end-r.start >= need {
				bw := proto.ByteWindow{Data: r.data, Start: r.start, End: r.start + need}
				fw := &proto.FdWindow{Data: r.fds, Start: r.fdStart, End: r.fdEnd}
				return bw, fw, need, nil
			}
		}
		if err := r.fill(); err != nil {
			return proto.ByteWindow{}, nil, 0, err
		}
	}
}

// consume drops the just-dispatched message (origLen bytes, the original
// on-wire length) from the buffer and folds fw's post-dispatch state back
// into the stream's own bookkeeping.
func (r *rawStream) consume(origLen int, fw *proto.FdWindow) {
	r.start += origLen
	r.fds = fw.Data
	r.fdStart = fw.Start
	r.fdEnd = fw.End
}
