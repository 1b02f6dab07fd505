//go:build linux

package fdxlate

import "errors"

var (
	// ErrNotTracked reports a Translate call for a descriptor the
	// Translator never registered a mirror for.
	ErrNotTracked = errors.New("fdxlate: descriptor not tracked")

	// ErrNoRights reports that a received message carried payload bytes
	// but no SCM_RIGHTS control message, where one was expected.
	ErrNoRights = errors.New("fdxlate: no file descriptor in control message")
)
