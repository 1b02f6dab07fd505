package relay

import (
	"encoding/binary"

	"go.uber.org/zap"

	"github.com/wlrelay/wlrelay/damage"
	"github.com/wlrelay/wlrelay/fdxlate"
	"github.com/wlrelay/wlrelay/interval"
	"github.com/wlrelay/wlrelay/proto"
)

// DisplayObjectID is the well-known id of the wl_display singleton: every
// Wayland connection begins with exactly this object already bound, no
// new_id required (the Wayland core protocol's own convention).
const DisplayObjectID proto.ObjectID = 1

// bufferBytesPerPixel is the fixed pixel size assumed when translating a
// wl_surface.damage rectangle into a byte range (spec.md's damage set
// tracks byte ranges, not pixels). wlrelay only ever reads the stride
// declared at wl_shm_pool.create_buffer time and never interprets pixel
// contents, per spec.md §1's "does not interpret buffer contents" — this
// constant exists solely to convert a rectangle's geometry into an offset
// and width, not to decode pixel data.
const bufferBytesPerPixel = 4

// protocolInterfaces builds the minimal, hand-authored set of wl_display /
// wl_registry / wl_shm / wl_shm_pool / wl_buffer / wl_surface interface
// descriptors wlrelay needs to exercise the damage coalescer and the fd
// translator end to end. A full Wayland protocol binding (every core and
// extension interface, generated from the upstream XML) is the "process
// launching and UNIX socket setup" kind of external surface spec.md §1
// scopes out; only these six are hand-authored here.
//
// ps is mutated by the returned handlers and must not be shared between
// directions (each direction's dispatcher owns its own protocolState, same
// as its own proto.Table and damage.Set, per spec §5).
func protocolInterfaces(ps *protocolState, dmg *damage.Set, tr *fdxlate.Translator, logger *zap.Logger) map[string]*proto.InterfaceDescriptor {
	registry := &proto.InterfaceDescriptor{Name: "wl_registry"}
	shmPool := &proto.InterfaceDescriptor{Name: "wl_shm_pool"}
	buffer := &proto.InterfaceDescriptor{Name: "wl_buffer"}
	surface := &proto.InterfaceDescriptor{Name: "wl_surface"}
	shm := &proto.InterfaceDescriptor{Name: "wl_shm"}
	display := &proto.InterfaceDescriptor{Name: "wl_display"}

	display.Requests = []proto.MethodSignature{
		{Name: "sync", Signature: "n", Types: []*proto.InterfaceDescriptor{nil}},
		{Name: "get_registry", Signature: "n", Types: []*proto.InterfaceDescriptor{registry}},
	}
	display.Events = []proto.MethodSignature{
		{Name: "error", Signature: "ous"},
		{Name: "delete_id", Signature: "u"},
	}
	display.EventHandlers = []proto.HandlerFunc{
		nil,
		func(ctx *proto.Context, args []proto.Argument) {
			id := proto.ObjectID(args[0].Uint)
			ps.forget(id)
			_ = ctx.Table.Remove(id)
		},
	}

	// wl_registry.bind's new_id carries a dynamically-named interface the
	// client chooses at runtime; resolving it statically would require the
	// full protocol XML. The bound object is still entered into the table
	// (Decode always inserts a new_id entry) with a nil interface, which
	// proto.HandleMessage's "unknown object/opcode" path already forwards
	// verbatim — the documented, narrower equivalent of real interface
	// resolution.
	registry.Requests = []proto.MethodSignature{
		{Name: "bind", Signature: "usun", Types: []*proto.InterfaceDescriptor{nil, nil, nil, nil}},
	}
	registry.Events = []proto.MethodSignature{
		{Name: "global", Signature: "usu"},
		{Name: "global_remove", Signature: "u"},
	}

	shm.Requests = []proto.MethodSignature{
		{Name: "create_pool", Signature: "nhi", Types: []*proto.InterfaceDescriptor{shmPool, nil, nil}},
	}
	shm.RequestHandlers = []proto.HandlerFunc{
		func(ctx *proto.Context, args []proto.Argument) {
			poolID := args[0].ObjectID
			fd := args[1].Fd
			size := int64(args[2].Int)

			serial, mirror, err := tr.Create(fd, size)
			if err != nil {
				logger.Warn("create_pool: failed to open mirror", zap.Error(err), zap.Int("fd", fd))
				return
			}
			ps.pools[poolID] = &poolState{Serial: serial, Size: size}
			ps.pendingAnnouncements = append(ps.pendingAnnouncements, announcement{Serial: serial, Size: size})
			logger.Debug("create_pool", zap.Uint32("pool", uint32(poolID)), zap.Int64("size", size), zap.Uint64("serial", serial), zap.Int("mirror_fd", mirror.Fd))
		},
	}

	shmPool.Requests = []proto.MethodSignature{
		{Name: "create_buffer", Signature: "niiiiu", Types: []*proto.InterfaceDescriptor{buffer, nil, nil, nil, nil, nil}},
		{Name: "destroy", Signature: ""},
		{Name: "resize", Signature: "i"},
	}
	shmPool.RequestHandlers = []proto.HandlerFunc{
		func(ctx *proto.Context, args []proto.Argument) {
			bufID := args[0].ObjectID
			ps.buffers[bufID] = bufferState{
				PoolID: ctx.Object.ID,
				Offset: args[1].Int,
				Width:  args[2].Int,
				Height: args[3].Int,
				Stride: args[4].Int,
			}
		},
		func(ctx *proto.Context, args []proto.Argument) {
			delete(ps.pools, ctx.Object.ID)
		},
		func(ctx *proto.Context, args []proto.Argument) {
			if p, ok := ps.pools[ctx.Object.ID]; ok {
				p.Size = int64(args[0].Int)
			}
		},
	}

	buffer.Requests = []proto.MethodSignature{{Name: "destroy", Signature: ""}}
	buffer.RequestHandlers = []proto.HandlerFunc{
		func(ctx *proto.Context, args []proto.Argument) {
			delete(ps.buffers, ctx.Object.ID)
		},
	}
	buffer.Events = []proto.MethodSignature{{Name: "release", Signature: ""}}

	surface.Requests = []proto.MethodSignature{
		{Name: "destroy", Signature: ""},
		{Name: "attach", Signature: "?oii", Types: []*proto.InterfaceDescriptor{nil, nil, nil}},
		{Name: "damage", Signature: "iiii"},
		{Name: "commit", Signature: ""},
	}
	surface.RequestHandlers = []proto.HandlerFunc{
		func(ctx *proto.Context, args []proto.Argument) {
			ps.forget(ctx.Object.ID)
		},
		func(ctx *proto.Context, args []proto.Argument) {
			st := ps.surface(ctx.Object.ID)
			st.AttachedBuffer = args[0].ObjectID
		},
		func(ctx *proto.Context, args []proto.Argument) {
			st := ps.surface(ctx.Object.ID)
			buf, ok := ps.buffers[st.AttachedBuffer]
			if !ok {
				return
			}
			x, y, w, h := args[0].Int, args[1].Int, args[2].Int, args[3].Int
			ext := interval.Ext{
				Start:  buf.Offset + y*buf.Stride + x*bufferBytesPerPixel,
				Width:  w * bufferBytesPerPixel,
				Stride: buf.Stride,
				Rep:    h,
			}
			if ext.Rep <= 0 {
				ext.Rep = 1
				ext.Stride = 0
			}
			dmg.Insert([]interval.Ext{ext})
		},
		func(ctx *proto.Context, args []proto.Argument) {
			ps.pendingFlush = append(ps.pendingFlush, ctx.Object.ID)
		},
	}

	return map[string]*proto.InterfaceDescriptor{
		"wl_display":   display,
		"wl_registry":  registry,
		"wl_shm":       shm,
		"wl_shm_pool":  shmPool,
		"wl_buffer":    buffer,
		"wl_surface":   surface,
	}
}

// announcementBytes/parseAnnouncement encode a poolState announcement for a
// wire.KindFd frame: an 8-byte serial followed by an 8-byte size, both
// little-endian, matching the rest of this module's explicit byte-order
// conventions (proto.Decode, wire.Tunnel's default host-native order).
func announcementBytes(a announcement) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:8], a.Serial)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(a.Size))
	return buf
}

func parseAnnouncement(b []byte) (announcement, bool) {
	if len(b) != 16 {
		return announcement{}, false
	}
	return announcement{
		Serial: binary.LittleEndian.Uint64(b[0:8]),
		Size:   int64(binary.LittleEndian.Uint64(b[8:16])),
	}, true
}
