package relay

import "github.com/wlrelay/wlrelay/proto"

// poolState tracks one wl_shm_pool's mirror bookkeeping: the fd-translator
// serial this side assigned (or adopted) for it, and its declared size.
type poolState struct {
	Serial uint64
	Size   int64
}

// bufferState records the geometry a wl_shm_pool.create_buffer request
// declared for one wl_buffer, enough to translate a later
// wl_surface.damage rectangle into a byte range within that pool's mirror.
type bufferState struct {
	PoolID                        proto.ObjectID
	Offset, Width, Height, Stride int32
}

// surfaceState tracks the buffer currently attached to one wl_surface, per
// the attach/damage/commit request sequence of the core Wayland protocol.
type surfaceState struct {
	AttachedBuffer proto.ObjectID
}

// announcement is the payload of a pending wire.KindFd frame: a pool this
// side just created, named by its fd-translator serial and
// declared size, to be matched by the peer's Translator.Adopt.
type announcement struct {
	Serial uint64
	Size   int64
}

// protocolState is the per-direction bookkeeping the handlers in
// protocolInterfaces share: the buffer/surface semantics a real compositor
// or client cares about, which the core dispatcher and damage coalescer
// deliberately do not interpret (spec.md §1). It is not part of proto.Table
// because none of it is wire-protocol bookkeeping — it is interpreted
// application state layered on top.
//
// Like proto.Table and damage.Set, one protocolState belongs to exactly one
// direction's dispatcher loop; it is never shared between directions.
type protocolState struct {
	pools    map[proto.ObjectID]*poolState
	buffers  map[proto.ObjectID]bufferState
	surfaces map[proto.ObjectID]*surfaceState

	// pendingAnnouncements accumulates wire.KindFd frame payloads to send
	// to the peer, produced by handlers (e.g. wl_shm.create_pool) that ran
	// during the most recent dispatch. The direction loop drains this
	// after every HandleMessage call.
	pendingAnnouncements []announcement

	// pendingFlush accumulates wl_surface ids whose wl_surface.commit
	// request or event was just dispatched: the direction loop drains
	// this to emit a wire.KindDamage frame for the shared damage.Set and
	// reset it for the next frame.
	pendingFlush []proto.ObjectID
}

func newProtocolState() *protocolState {
	return &protocolState{
		pools:    make(map[proto.ObjectID]*poolState),
		buffers:  make(map[proto.ObjectID]bufferState),
		surfaces: make(map[proto.ObjectID]*surfaceState),
	}
}

// surface returns the surfaceState for id, creating an empty one on first
// reference (a wl_surface is created via wl_compositor.create_surface,
// which this minimal protocol set does not model explicitly).
func (ps *protocolState) surface(id proto.ObjectID) *surfaceState {
	st, ok := ps.surfaces[id]
	if !ok {
		st = &surfaceState{}
		ps.surfaces[id] = st
	}
	return st
}

// forget drops any interpreted state keyed by a destroyed object id.
func (ps *protocolState) forget(id proto.ObjectID) {
	delete(ps.pools, id)
	delete(ps.buffers, id)
	delete(ps.surfaces, id)
}

// drainAnnouncements returns and clears the pending announcement queue.
func (ps *protocolState) drainAnnouncements() []announcement {
	out := ps.pendingAnnouncements
	ps.pendingAnnouncements = nil
	return out
}

// drainFlush returns and clears the pending commit-flush queue.
func (ps *protocolState) drainFlush() []proto.ObjectID {
	out := ps.pendingFlush
	ps.pendingFlush = nil
	return out
}
