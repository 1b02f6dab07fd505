// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wire

import "errors"

var (
	// ErrInvalidArgument reports a nil reader or writer.
	ErrInvalidArgument = errors.New("wire: invalid argument")

	// ErrTooLong reports that a frame length exceeds the configured limit or
	// the wire format's maximum (2^56-1 bytes).
	ErrTooLong = errors.New("wire: message too long")

	// ErrBadKind reports a frame header whose kind byte is not one of
	// KindMessage, KindDamage, or KindFd.
	ErrBadKind = errors.New("wire: unrecognized frame kind")
)
