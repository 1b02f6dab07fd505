// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"
	"io"
	"runtime"
	"time"
)

// Tunnel frames one direction's worth of relay traffic: a sequence of
// kind-tagged, length-prefixed frames multiplexed onto a single byte stream.
// A Tunnel is not safe for concurrent use by multiple goroutines on the same
// side (read state and write state are each single-writer), matching the
// rest of this module's single-writer conventions.
type Tunnel struct {
	rd        io.Reader
	rbo       binary.ByteOrder
	wr        io.Writer
	wbo       binary.ByteOrder
	readLimit int64

	retryDelay time.Duration

	// read state machine
	rheader [frameHeaderMaxLen]byte
	rkind   Kind
	rlength int64
	roffset int64
	rbuf    []byte // reusable payload buffer, grown on demand

	// write state machine
	wheader  [frameHeaderMaxLen]byte
	wkind    Kind
	wlength  int64
	woffset  int64
	whdrSize int64
}

// NewTunnel wraps r and w with frame reading and writing. Either may be nil
// if only one direction is needed.
func NewTunnel(r io.Reader, w io.Writer, opts ...Option) *Tunnel {
	o := defaultOptions
	for _, fn := range opts {
		fn(&o)
	}
	return &Tunnel{
		rd:         r,
		rbo:        o.ReadByteOrder,
		wr:         w,
		wbo:        o.WriteByteOrder,
		readLimit:  int64(o.ReadLimit),
		retryDelay: o.RetryDelay,
	}
}

func (t *Tunnel) resetRead() {
	t.roffset = 0
	t.rlength = 0
}

func (t *Tunnel) resetWrite() {
	t.woffset = 0
	t.wlength = 0
}

func (t *Tunnel) waitOnceOnWouldBlock() bool {
	if t.retryDelay < 0 {
		return false
	}
	if t.retryDelay == 0 {
		runtime.Gosched()
		return true
	}
	time.Sleep(t.retryDelay)
	return true
}

func (t *Tunnel) readOnce(p []byte) (n int, err error) {
	for {
		n, err = t.rd.Read(p)
		if len(p) != 0 && n == 0 && err == nil {
			return 0, io.ErrNoProgress
		}
		if n > 0 {
			return n, err
		}
		if err != ErrWouldBlock {
			return n, err
		}
		if !t.waitOnceOnWouldBlock() {
			return n, err
		}
	}
}

func (t *Tunnel) writeOnce(p []byte) (n int, err error) {
	for {
		n, err = t.wr.Write(p)
		if len(p) != 0 && n == 0 && err == nil {
			return 0, io.ErrShortWrite
		}
		if n > 0 {
			return n, err
		}
		if err != ErrWouldBlock {
			return n, err
		}
		if !t.waitOnceOnWouldBlock() {
			return n, err
		}
	}
}

// ReadFrame reads exactly one frame. On ErrWouldBlock or ErrMore the caller
// must call ReadFrame again on the same Tunnel to resume: partial header or
// payload progress is retained internally.
//
// The returned payload slice is only valid until the next call to ReadFrame;
// callers that need to retain it must copy.
func (t *Tunnel) ReadFrame() (Kind, []byte, error) {
	if t.rd == nil {
		return 0, nil, ErrInvalidArgument
	}

	// 1) Read the kind byte and the length-header byte.
	for t.roffset < kindHeaderBytes+lenHeaderBytes {
		rn, re := t.readOnce(t.rheader[t.roffset : kindHeaderBytes+lenHeaderBytes])
		t.roffset += int64(rn)
		if re != nil {
			if re == io.EOF {
				if t.roffset == 0 {
					return 0, nil, io.EOF
				}
				return 0, nil, io.ErrUnexpectedEOF
			}
			return 0, nil, re
		}
	}

	kind := Kind(t.rheader[0])
	if !kind.valid() {
		return 0, nil, ErrBadKind
	}

	// 2) Determine extended length bytes from the length-header byte.
	exLen := int64(0)
	switch t.rheader[kindHeaderBytes] {
	case lenMaxLen8Bits + 1:
		exLen = 2
	case lenMaxLen8Bits + 2:
		exLen = 7
	}
	hdrSize := kindHeaderBytes + lenHeaderBytes + exLen

	// 3) Read extended length bytes, if any.
	for t.roffset < hdrSize {
		rn, re := t.readOnce(t.rheader[t.roffset:hdrSize])
		t.roffset += int64(rn)
		if re != nil {
			if re == io.EOF {
				return 0, nil, io.ErrUnexpectedEOF
			}
			return 0, nil, re
		}
	}

	// 4) Parse payload length, once.
	if t.rlength == 0 && t.roffset == hdrSize {
		lenOff := kindHeaderBytes + lenHeaderBytes
		switch exLen {
		case 2:
			t.rlength = int64(t.rbo.Uint16(t.rheader[lenOff:hdrSize]))
		case 7:
			// Decode the 7 length bytes through a zero-padded 8-byte
			// buffer: buf8[0] stays zero and buf8[1:] holds the bytes
			// WriteFrame copied out of its own buf8[1:].
			var buf8 [8]byte
			copy(buf8[1:], t.rheader[lenOff:hdrSize])
			u64 := t.rbo.Uint64(buf8[:])
			if t.rbo == binary.LittleEndian {
				t.rlength = int64(u64 >> 8)
			} else {
				t.rlength = int64(u64 & lenMaxLen56)
			}
		default:
			t.rlength = int64(t.rheader[lenOff])
		}
		t.rkind = kind
	}

	if t.rlength < 0 || t.rlength > lenMaxLen56 {
		return 0, nil, ErrTooLong
	}
	if t.readLimit > 0 && t.rlength > t.readLimit {
		return 0, nil, ErrTooLong
	}

	if int64(cap(t.rbuf)) < t.rlength {
		t.rbuf = make([]byte, t.rlength)
	}
	payload := t.rbuf[:t.rlength]

	// 5) Read the payload.
	payloadOff := t.roffset - hdrSize
	for payloadOff < t.rlength {
		rn, re := t.readOnce(payload[payloadOff:])
		payloadOff += int64(rn)
		t.roffset += int64(rn)
		if re != nil {
			if re == io.EOF {
				return 0, nil, io.ErrUnexpectedEOF
			}
			return 0, nil, re
		}
	}

	result := t.rkind
	t.resetRead()
	return result, payload, nil
}

// WriteFrame writes one complete frame. On ErrWouldBlock or ErrMore the
// caller must call WriteFrame again with the SAME kind and payload to
// resume: partial write progress is retained internally.
func (t *Tunnel) WriteFrame(kind Kind, payload []byte) (int, error) {
	if t.wr == nil {
		return 0, ErrInvalidArgument
	}
	if !kind.valid() {
		return 0, ErrBadKind
	}
	if int64(len(payload)) > lenMaxLen56 {
		return 0, ErrTooLong
	}

	if t.woffset == 0 {
		t.wlength = int64(len(payload))
		t.wkind = kind

		t.wheader[0] = byte(kind)
		var exLen int64
		switch {
		case t.wlength <= lenMaxLen8Bits:
			exLen = 0
			t.wheader[kindHeaderBytes] = byte(t.wlength)
		case t.wlength <= lenMaxLen16:
			exLen = 2
			t.wheader[kindHeaderBytes] = lenMaxLen8Bits + 1
			t.wbo.PutUint16(t.wheader[kindHeaderBytes+lenHeaderBytes:kindHeaderBytes+lenHeaderBytes+2], uint16(t.wlength))
		default:
			exLen = 7
			t.wheader[kindHeaderBytes] = lenMaxLen8Bits + 2
			var buf8 [8]byte
			if t.wbo == binary.LittleEndian {
				t.wbo.PutUint64(buf8[:], uint64(t.wlength)<<8)
			} else {
				t.wbo.PutUint64(buf8[:], uint64(t.wlength)&lenMaxLen56)
			}
			copy(t.wheader[kindHeaderBytes+lenHeaderBytes:], buf8[1:])
		}
		t.whdrSize = kindHeaderBytes + lenHeaderBytes + exLen
	}
	if t.wlength != int64(len(payload)) || t.wkind != kind {
		return 0, io.ErrShortWrite
	}

	var n int
	for t.woffset < t.whdrSize {
		wn, we := t.writeOnce(t.wheader[t.woffset:t.whdrSize])
		t.woffset += int64(wn)
		if we != nil {
			return n, we
		}
	}

	for t.woffset < t.whdrSize+t.wlength {
		payloadOff := t.woffset - t.whdrSize
		wn, we := t.writeOnce(payload[payloadOff:])
		t.woffset += int64(wn)
		n += wn
		if we != nil {
			return n, we
		}
	}

	t.resetWrite()
	return n, nil
}
