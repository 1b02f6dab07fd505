package proto

import "encoding/binary"

// ArgKind tags the decoded type of one Argument, mirroring the wire
// signature character it was parsed from.
type ArgKind uint8

const (
	ArgInt ArgKind = iota
	ArgUint
	ArgFixed
	ArgString
	ArgObject
	ArgNewID
	ArgArray
	ArgFd
)

// Argument is one decoded, typed message argument. Only the field matching
// Kind is meaningful. String and Array arguments reference the original
// payload slice directly rather than copying, matching the "pass
// pointer+length" contract of spec §4.4.
type Argument struct {
	Kind ArgKind

	Int   int32
	Uint  uint32
	Fixed int32 // Wayland 24.8 signed fixed-point, as its raw bit pattern
	Bytes []byte

	// Object is set for ArgObject; Entry.Interface is nil if the id was
	// zero (explicit "none") or unresolved.
	Object   Entry
	ObjectID ObjectID

	// NewEntry is the freshly created table entry for an ArgNewID
	// argument. On a client-to-server request the numeric id (ObjectID)
	// is what the handler should act on; on a server-to-client event the
	// entry itself is what the handler should act on (spec §4.4 step 4).
	NewEntry Entry

	Fd int
}

// WordCost reports the number of fixed-size 32-bit payload words a decoded
// argument consumed, for the property-based check in spec §8 #7 that a
// dispatch consumes exactly 2+Σword_cost(arg) words. 's' and 'a' arguments
// are variable-length; their cost is 1 (length word) + the padded word
// count of Bytes. 'h' costs zero payload words (it consumes an fd instead).
func WordCost(a Argument) int {
	switch a.Kind {
	case ArgString, ArgArray:
		return 1 + pad4(len(a.Bytes))/4
	case ArgFd:
		return 0
	default:
		return 1
	}
}

// parsedArg describes one argument slot in a signature after stripping
// version-digit and nullability decoration.
type parsedArg struct {
	kind     byte
	nullable bool
}

// parseSignature splits a wire signature string into its argument kinds,
// skipping leading version digits and the '?' nullability marker ahead of
// each argument character, per spec §3 "Signature string".
func parseSignature(sig string) []parsedArg {
	args := make([]parsedArg, 0, len(sig))
	nullable := false
	for i := 0; i < len(sig); i++ {
		c := sig[i]
		if (c >= '0' && c <= '9') || c == '?' {
			if c == '?' {
				nullable = true
			}
			continue
		}
		args = append(args, parsedArg{kind: c, nullable: nullable})
		nullable = false
	}
	return args
}

func pad4(n int) int { return (n + 3) &^ 3 }

// Decode walks payload (the message body, i.e. everything after the 8-byte
// header, as whole bytes) according to method's signature, consuming fds
// from fw as 'h' arguments are encountered and creating/looking up object
// table entries for 'o'/'n' arguments. Every new_id argument carries both
// its numeric id (ObjectID) and the entry created for it (NewEntry); the
// decoding does not depend on fromClient.
//
// It returns the decoded arguments, the number of fds consumed, and
// ErrOverflow if the payload or fd queue is exhausted mid-argument.
func Decode(table *Table, method MethodSignature, payload []byte, fw *FdWindow, fromClient bool) ([]Argument, int, error) {
	parsed := parseSignature(method.Signature)
	args := make([]Argument, 0, len(parsed))

	byteOff := 0
	fdsUsed := 0

	for k, pa := range parsed {
		switch pa.kind {
		case 'i':
			if byteOff+4 > len(payload) {
				return nil, fdsUsed, ErrOverflow
			}
			args = append(args, Argument{Kind: ArgInt, Int: int32(binary.LittleEndian.Uint32(payload[byteOff:]))})
			byteOff += 4
		case 'u':
			if byteOff+4 > len(payload) {
				return nil, fdsUsed, ErrOverflow
			}
			args = append(args, Argument{Kind: ArgUint, Uint: binary.LittleEndian.Uint32(payload[byteOff:])})
			byteOff += 4
		case 'f':
			if byteOff+4 > len(payload) {
				return nil, fdsUsed, ErrOverflow
			}
			args = append(args, Argument{Kind: ArgFixed, Fixed: int32(binary.LittleEndian.Uint32(payload[byteOff:]))})
			byteOff += 4
		case 'o':
			if byteOff+4 > len(payload) {
				return nil, fdsUsed, ErrOverflow
			}
			id := ObjectID(binary.LittleEndian.Uint32(payload[byteOff:]))
			byteOff += 4
			arg := Argument{Kind: ArgObject, ObjectID: id}
			if id != 0 {
				// id may legitimately fail to resolve if the client is
				// non-compliant; Object.Interface stays nil in that case.
				if e, ok := table.Get(id); ok {
					arg.Object = e
				}
			}
			args = append(args, arg)
		case 'n':
			if byteOff+4 > len(payload) {
				return nil, fdsUsed, ErrOverflow
			}
			id := ObjectID(binary.LittleEndian.Uint32(payload[byteOff:]))
			byteOff += 4
			var typ *InterfaceDescriptor
			if k < len(method.Types) {
				typ = method.Types[k]
			}
			entry := Entry{ID: id, Interface: typ}
			// Create unconditionally, mirroring parsing.c: the table
			// always gains an entry even if a handler later drops the
			// message.
			_ = table.Insert(entry)
			args = append(args, Argument{Kind: ArgNewID, ObjectID: id, NewEntry: entry})
		case 's', 'a':
			if byteOff+4 > len(payload) {
				return nil, fdsUsed, ErrOverflow
			}
			l := int(binary.LittleEndian.Uint32(payload[byteOff:]))
			byteOff += 4
			padded := pad4(l)
			if byteOff+padded > len(payload) {
				return nil, fdsUsed, ErrOverflow
			}
			kind := ArgArray
			if pa.kind == 's' {
				kind = ArgString
			}
			args = append(args, Argument{Kind: kind, Bytes: payload[byteOff : byteOff+l]})
			byteOff += padded
		case 'h':
			fd, ok := fw.Peek(fdsUsed)
			if !ok {
				return nil, fdsUsed, ErrOverflow
			}
			args = append(args, Argument{Kind: ArgFd, Fd: fd})
			fdsUsed++
		default:
			// Unrecognized signature character: matches parsing.c's
			// "unidentified message type" debug path, which simply skips
			// it rather than aborting the whole decode.
		}
	}

	if byteOff != len(payload) {
		return nil, fdsUsed, ErrOverflow
	}
	return args, fdsUsed, nil
}
