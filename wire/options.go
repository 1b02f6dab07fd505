// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"
	"time"

	"github.com/wlrelay/wlrelay/wire/internal/bo"
)

// Options configures a Tunnel.
type Options struct {
	ReadByteOrder  binary.ByteOrder
	WriteByteOrder binary.ByteOrder

	// ReadLimit caps the maximum allowed frame payload size (bytes). Zero
	// means no limit beyond the wire format's own 2^56-1 ceiling.
	ReadLimit int

	// RetryDelay controls how the tunnel handles iox.ErrWouldBlock from the
	// underlying transport:
	//   - negative: nonblock, return ErrWouldBlock immediately
	//   - zero: yield (runtime.Gosched) and retry
	//   - positive: sleep for the duration and retry
	RetryDelay time.Duration
}

var defaultOptions = Options{
	ReadByteOrder:  bo.Native(),
	WriteByteOrder: bo.Native(),
	ReadLimit:      0,
	RetryDelay:     -1,
}

type Option func(*Options)

// WithByteOrder overrides the default (host-native) wire byte order for both
// directions. A relay bridging two different architectures sets this so the
// hop in between agrees on one order regardless of either host's endianness.
func WithByteOrder(order binary.ByteOrder) Option {
	return func(o *Options) {
		o.ReadByteOrder = order
		o.WriteByteOrder = order
	}
}

func WithReadByteOrder(order binary.ByteOrder) Option {
	return func(o *Options) { o.ReadByteOrder = order }
}

func WithWriteByteOrder(order binary.ByteOrder) Option {
	return func(o *Options) { o.WriteByteOrder = order }
}

// WithReadLimit bounds the largest frame payload the tunnel will accept
// before returning ErrTooLong. Protects against a compromised or confused
// peer announcing an enormous frame length.
func WithReadLimit(limit int) Option {
	return func(o *Options) { o.ReadLimit = limit }
}

func WithRetryDelay(d time.Duration) Option {
	return func(o *Options) { o.RetryDelay = d }
}

// WithBlock enables cooperative blocking (yield-and-retry) on iox.ErrWouldBlock.
func WithBlock() Option {
	return func(o *Options) { o.RetryDelay = 0 }
}

// WithNonblock forces non-blocking behavior (return iox.ErrWouldBlock immediately).
func WithNonblock() Option {
	return func(o *Options) { o.RetryDelay = -1 }
}
