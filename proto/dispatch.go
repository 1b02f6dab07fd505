package proto

import (
	"encoding/binary"
	"fmt"

	"go.uber.org/zap"
)

// Result classifies the outcome of HandleMessage. It is not an error type:
// Unknown and Overflow are both documented, non-fatal outcomes (spec §7).
type Result uint8

const (
	// Known means a handler (if any) was invoked and the windows were
	// advanced normally.
	Known Result = iota
	// Unknown means the object or opcode was not recognized; the byte
	// window must be forwarded verbatim by the caller, and — per the
	// documented limitation in spec §9 — the fd window is not advanced,
	// because the dispatcher cannot know how many descriptors an
	// unrecognized message carried.
	Unknown
	// Overflow means decoding ran out of payload bytes or fds mid
	// argument. The caller should treat the message as processed rather
	// than retry it, to avoid looping (spec §7).
	Overflow
)

func (r Result) String() string {
	switch r {
	case Known:
		return "known"
	case Unknown:
		return "unknown"
	case Overflow:
		return "overflow"
	default:
		return "invalid"
	}
}

// FdMap is the narrow interface the dispatcher uses to reach the fd
// translation map (spec §1's "external collaborator"); fdxlate.Translator
// implements it. Handlers use it to register or look up the mirror buffer
// for a file descriptor they rewrite.
type FdMap interface {
	Translate(fd int) (int, error)
}

// Context is the handler ABI (spec §6): the state a handler can read and
// the advisory side-effects it can request. A handler is free to mutate
// Message in place (bounded by MessageAvailableSpace), set DropThisMsg, or
// rewrite FdWindow itself and set FdsChanged so the dispatcher does not
// also auto-advance it.
type Context struct {
	Table         *Table
	FdMap         FdMap
	Object        Entry
	OnDisplaySide bool

	DropThisMsg bool

	// Message is the full in-out message buffer, header included. A
	// handler may rewrite it in place up to MessageAvailableSpace bytes
	// and adjust MessageLength to match.
	Message               []byte
	MessageLength         uint32
	MessageAvailableSpace uint32

	FdWindow   *FdWindow
	FdsChanged bool

	Logger *zap.Logger
}

// HandlerFunc is the typed handler ABI for one (interface, request|event)
// pair (spec §9's redesign note: one generated dispatcher per interface,
// a typed handler per opcode, replacing the original's call-any-signature
// mechanism).
type HandlerFunc func(ctx *Context, args []Argument)

// PeekMessageSize reads the length field of a framed message header
// without otherwise interpreting it. data must have at least 8 bytes.
func PeekMessageSize(data []byte) uint16 {
	return uint16(binary.LittleEndian.Uint32(data[4:8]) >> 16)
}

// HandleMessage decodes and dispatches exactly one framed message from bw,
// consulting and updating table and fw as described in spec §4.4.
//
//   - Known: a handler (possibly nil, i.e. a no-op passthrough) ran; bw and
//     fw were advanced per the post-dispatch rules in spec §4.4 step 6.
//   - Unknown: object/opcode unrecognized; caller forwards bw verbatim; fw
//     is untouched (see the Unknown doc above).
//   - Overflow: decode ran out of bytes/fds; caller should treat the
//     message as consumed.
//
// A non-nil error is only ever ErrLengthMismatch: a hard parse error the
// caller must treat as fatal to the connection (spec §7).
func HandleMessage(table *Table, fdMap FdMap, fromClient, onDisplaySide bool, bw *ByteWindow, fw *FdWindow, logger *zap.Logger) (Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	zoneLen := bw.Len()
	if zoneLen < 8 {
		return Overflow, nil
	}
	header := bw.Data[bw.Start:bw.End]
	objID := ObjectID(binary.LittleEndian.Uint32(header[0:4]))
	word1 := binary.LittleEndian.Uint32(header[4:8])
	opcode := int(uint16(word1))
	length := int(word1 >> 16)

	if length != zoneLen {
		return Known, fmt.Errorf("%w: header says %d, window has %d", ErrLengthMismatch, length, zoneLen)
	}

	entry, ok := table.Get(objID)
	if !ok || entry.Interface == nil {
		logger.Debug("unidentified object", zap.Uint32("object_id", uint32(objID)))
		return Unknown, nil
	}
	iface := entry.Interface

	var method MethodSignature
	var handler HandlerFunc
	if fromClient {
		if opcode < 0 || opcode >= len(iface.Requests) {
			logger.Debug("unidentified request", zap.String("interface", iface.Name), zap.Int("opcode", opcode))
			return Unknown, nil
		}
		method = iface.Requests[opcode]
		if opcode < len(iface.RequestHandlers) {
			handler = iface.RequestHandlers[opcode]
		}
	} else {
		if opcode < 0 || opcode >= len(iface.Events) {
			logger.Debug("unidentified event", zap.String("interface", iface.Name), zap.Int("opcode", opcode))
			return Unknown, nil
		}
		method = iface.Events[opcode]
		if opcode < len(iface.EventHandlers) {
			handler = iface.EventHandlers[opcode]
		}
	}

	payload := header[8:]
	args, fdsUsed, err := Decode(table, method, payload, fw, fromClient)
	if err != nil {
		logger.Warn("message parse overflow",
			zap.String("interface", iface.Name),
			zap.String("method", method.Name),
			zap.Int("payload_bytes", len(payload)),
		)
		return Overflow, nil
	}

	ctx := &Context{
		Table:                 table,
		FdMap:                 fdMap,
		Object:                entry,
		OnDisplaySide:         onDisplaySide,
		Message:               bw.Data[bw.Start:bw.End],
		MessageLength:         uint32(length),
		MessageAvailableSpace: uint32(len(bw.Data) - bw.Start),
		FdWindow:              fw,
		Logger:                logger,
	}

	if handler != nil {
		handler(ctx, args)
	}

	if ctx.DropThisMsg {
		logger.Debug("dropping message", zap.String("interface", iface.Name), zap.String("method", method.Name), zap.Int("fds", fdsUsed))
		bw.End = bw.Start
		fw.Compact(fdsUsed)
		return Known, nil
	}

	if !ctx.FdsChanged {
		fw.Consume(fdsUsed)
	}
	if fw.End < fw.Start {
		logger.Error("handler left fd window inverted", zap.String("interface", iface.Name), zap.String("method", method.Name))
	}

	bw.End = bw.Start + int(ctx.MessageLength)
	return Known, nil
}
