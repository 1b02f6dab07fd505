package proto

import "errors"

var (
	// ErrLengthMismatch reports that the framed message's header length
	// field disagrees with the byte window presented to HandleMessage.
	// This is a hard parse error: callers must tear down the connection.
	ErrLengthMismatch = errors.New("proto: message length disagreement")

	// ErrOverflow reports that decoding a message's argument list ran out
	// of payload bytes or fds mid-argument. The dispatch returns without
	// invoking a handler; callers should treat the message as processed
	// rather than retry it, to avoid looping (spec §7).
	ErrOverflow = errors.New("proto: message parse overflow")

	// ErrDuplicateID reports that Table.Insert was asked to register an
	// object id that is already present.
	ErrDuplicateID = errors.New("proto: duplicate object id")

	// ErrUnknownObject is returned by Table.Remove when asked to destroy
	// an id that is not present.
	ErrUnknownObject = errors.New("proto: unknown object id")
)
