package proto_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/wlrelay/wlrelay/proto"
)

func header(objID uint32, opcode uint16, length uint16) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:], objID)
	binary.LittleEndian.PutUint32(buf[4:], uint32(opcode)|uint32(length)<<16)
	return buf
}

// E5: a single "u" request is dispatched with the decoded argument 42, and
// leaves both windows unchanged.
func TestHandleMessageE5(t *testing.T) {
	tbl := proto.NewTable()
	var got int32 = -1
	iface := &proto.InterfaceDescriptor{
		Name:     "wl_display",
		Requests: []proto.MethodSignature{{Name: "ping", Signature: "u"}},
		RequestHandlers: []proto.HandlerFunc{
			func(ctx *proto.Context, args []proto.Argument) { got = int32(args[0].Uint) },
		},
	}
	_ = tbl.Insert(proto.Entry{ID: 1, Interface: iface})

	msg := append(header(1, 0, 12), 0, 0, 0, 0)
	binary.LittleEndian.PutUint32(msg[8:], 42)
	bw := &proto.ByteWindow{Data: msg, Start: 0, End: len(msg)}
	fw := &proto.FdWindow{}

	res, err := proto.HandleMessage(tbl, nil, true, false, bw, fw, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res != proto.Known {
		t.Fatalf("expected Known, got %v", res)
	}
	if got != 42 {
		t.Fatalf("expected handler to see 42, got %d", got)
	}
	if bw.Start != 0 || bw.End != len(msg) {
		t.Fatalf("expected byte zone unchanged, got [%d,%d)", bw.Start, bw.End)
	}
	if fw.Start != 0 || fw.End != 0 {
		t.Fatalf("expected fd zone untouched, got [%d,%d)", fw.Start, fw.End)
	}
}

// E6: an "nh" request grows the object table by one entry, advances the fd
// zone by one, and (when the handler drops the message) compacts both
// windows.
func TestHandleMessageE6Drop(t *testing.T) {
	tbl := proto.NewTable()
	childType := &proto.InterfaceDescriptor{Name: "wl_buffer"}
	iface := &proto.InterfaceDescriptor{
		Name:     "wl_shm_pool",
		Requests: []proto.MethodSignature{{Name: "create_buffer", Signature: "nh", Types: []*proto.InterfaceDescriptor{childType, nil}}},
		RequestHandlers: []proto.HandlerFunc{
			func(ctx *proto.Context, args []proto.Argument) { ctx.DropThisMsg = true },
		},
	}
	_ = tbl.Insert(proto.Entry{ID: 1, Interface: iface})

	msg := append(header(1, 0, 12), 0, 0, 0, 0)
	binary.LittleEndian.PutUint32(msg[8:], 5)
	bw := &proto.ByteWindow{Data: msg, Start: 0, End: len(msg)}
	fw := &proto.FdWindow{Data: []int{77, 88}, Start: 0, End: 2}

	res, err := proto.HandleMessage(tbl, nil, true, false, bw, fw, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res != proto.Known {
		t.Fatalf("expected Known, got %v", res)
	}
	if _, ok := tbl.Get(5); !ok {
		t.Fatal("expected object table to gain id 5")
	}
	if bw.End != bw.Start {
		t.Fatalf("expected byte zone emptied on drop, got [%d,%d)", bw.Start, bw.End)
	}
	if fw.End-fw.Start != 1 || fw.Data[fw.Start] != 88 {
		t.Fatalf("expected fd zone compacted past the consumed fd, got [%d,%d) data=%v", fw.Start, fw.End, fw.Data)
	}
}

func TestHandleMessageE6NoDropAdvancesFdZone(t *testing.T) {
	tbl := proto.NewTable()
	childType := &proto.InterfaceDescriptor{Name: "wl_buffer"}
	iface := &proto.InterfaceDescriptor{
		Name:            "wl_shm_pool",
		Requests:        []proto.MethodSignature{{Name: "create_buffer", Signature: "nh", Types: []*proto.InterfaceDescriptor{childType, nil}}},
		RequestHandlers: []proto.HandlerFunc{func(ctx *proto.Context, args []proto.Argument) {}},
	}
	_ = tbl.Insert(proto.Entry{ID: 1, Interface: iface})

	msg := append(header(1, 0, 12), 0, 0, 0, 0)
	binary.LittleEndian.PutUint32(msg[8:], 5)
	bw := &proto.ByteWindow{Data: msg, Start: 0, End: len(msg)}
	fw := &proto.FdWindow{Data: []int{77, 88}, Start: 0, End: 2}

	if _, err := proto.HandleMessage(tbl, nil, true, false, bw, fw, nil); err != nil {
		t.Fatal(err)
	}
	if fw.Start != 1 {
		t.Fatalf("expected fd zone to advance by 1, got start=%d", fw.Start)
	}
}

func TestHandleMessageLengthMismatchIsHardError(t *testing.T) {
	tbl := proto.NewTable()
	_ = tbl.Insert(proto.Entry{ID: 1, Interface: &proto.InterfaceDescriptor{Name: "wl_display"}})

	msg := header(1, 0, 99) // claims 99 bytes but window only has 8
	bw := &proto.ByteWindow{Data: msg, Start: 0, End: len(msg)}
	fw := &proto.FdWindow{}

	_, err := proto.HandleMessage(tbl, nil, true, false, bw, fw, nil)
	if !errors.Is(err, proto.ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestHandleMessageUnknownObjectLeavesFdZoneUntouched(t *testing.T) {
	tbl := proto.NewTable()
	msg := header(999, 0, 8)
	bw := &proto.ByteWindow{Data: msg, Start: 0, End: len(msg)}
	fw := &proto.FdWindow{Data: []int{1, 2}, Start: 0, End: 2}

	res, err := proto.HandleMessage(tbl, nil, true, false, bw, fw, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res != proto.Unknown {
		t.Fatalf("expected Unknown, got %v", res)
	}
	if fw.Start != 0 {
		t.Fatalf("expected fd zone untouched for unknown message, got start=%d", fw.Start)
	}
}

func TestHandleMessageUnknownOpcodeIsNotAnError(t *testing.T) {
	tbl := proto.NewTable()
	iface := &proto.InterfaceDescriptor{Name: "wl_display", Requests: []proto.MethodSignature{{Name: "sync", Signature: ""}}}
	_ = tbl.Insert(proto.Entry{ID: 1, Interface: iface})

	msg := header(1, 5, 8) // opcode 5, out of range
	bw := &proto.ByteWindow{Data: msg, Start: 0, End: len(msg)}
	fw := &proto.FdWindow{}

	res, err := proto.HandleMessage(tbl, nil, true, false, bw, fw, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res != proto.Unknown {
		t.Fatalf("expected Unknown, got %v", res)
	}
}

func TestHandleMessageOverflowDoesNotPanic(t *testing.T) {
	tbl := proto.NewTable()
	iface := &proto.InterfaceDescriptor{
		Name:     "wl_display",
		Requests: []proto.MethodSignature{{Name: "ping", Signature: "uu"}},
	}
	_ = tbl.Insert(proto.Entry{ID: 1, Interface: iface})

	msg := append(header(1, 0, 12), 0, 0, 0, 0) // only one word of payload for "uu"
	bw := &proto.ByteWindow{Data: msg, Start: 0, End: len(msg)}
	fw := &proto.FdWindow{}

	res, err := proto.HandleMessage(tbl, nil, true, false, bw, fw, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res != proto.Overflow {
		t.Fatalf("expected Overflow, got %v", res)
	}
}
