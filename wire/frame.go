// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package wire frames the byte stream of a tunnel connecting two wlrelay
// processes. Three kinds of frame share one connection: relayed Wayland
// protocol messages, damage-interval announcements, and fd-announcements
// (the out-of-band metadata accompanying a translated file descriptor).
//
// Wire format: a 1-byte kind tag, then a compact length prefix, then the
// payload. Let L be the payload length in bytes:
//   - 0 <= L <= 253: length[0] = L (no extended length)
//   - 254 <= L <= 65535: length[0] = 0xFE; next 2 bytes encode L (configured byte order)
//   - 65536 <= L <= 2^56-1: length[0] = 0xFF; next 7 bytes encode L in the
//     configured byte order
//
// A tunnel is always a byte stream (waypipe's transport is a SOCK_STREAM
// AF_UNIX socket); unlike the teacher's framer, there is no packet-preserving
// mode to adapt to, so that distinction is dropped here.
package wire

import (
	"code.hybscloud.com/iox"
)

// Kind tags the payload carried by one frame.
type Kind uint8

const (
	// KindMessage carries one or more relayed Wayland wire messages,
	// already rewritten by the proto dispatcher for the receiving side.
	KindMessage Kind = 1
	// KindDamage carries one damaged byte range of a shm pool mirror: a
	// 20-byte header (surface id, low, high) followed by the
	// codec-compressed bytes of [low, high), which the peer writes into its
	// own mirror (see relay's flushDamage and applyDamage).
	KindDamage Kind = 2
	// KindFd carries a mirror announcement: the fd-translator serial and
	// the size of a shm pool this side introduced, which the peer adopts
	// by creating its own mirror. No descriptor crosses the tunnel.
	KindFd Kind = 3
)

func (k Kind) valid() bool {
	return k == KindMessage || k == KindDamage || k == KindFd
}

func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindDamage:
		return "damage"
	case KindFd:
		return "fd"
	default:
		return "invalid"
	}
}

const (
	lenHeaderBytes    = 1
	lenMaxLen8Bits    = 1<<8 - 3
	lenMaxLen16       = 1<<16 - 1
	lenMaxLen56       = 1<<56 - 1
	kindHeaderBytes   = 1
	maxLengthPrefix   = 8 // kind(1) + longest length prefix(7)
	frameHeaderMaxLen = kindHeaderBytes + maxLengthPrefix
)

// These are provided as package-level aliases so callers can reference the
// semantic control-flow errors without importing iox directly.
var (
	// ErrWouldBlock means "no further progress without waiting". It is an
	// expected, non-failure control-flow signal for non-blocking I/O. Any
	// returned byte count still represents real progress.
	ErrWouldBlock = iox.ErrWouldBlock

	// ErrMore means "this completion is usable and more completions will
	// follow". The operation remains active; call again for the next chunk.
	ErrMore = iox.ErrMore
)
