// Package relay is wlrelay's connection-handshake supervisor: the thin,
// real implementation of the "external collaborator" spec.md §1 and §6
// describe but deliberately leave unspecified. Session ties the core
// packages together — proto (object table, dispatcher), damage (the
// coalescer), wire (tunnel framing), codec (compression), and fdxlate (fd
// mirroring) — into the two independent per-direction I/O loops spec.md §5
// describes.
package relay

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wlrelay/wlrelay/codec"
	"github.com/wlrelay/wlrelay/damage"
	"github.com/wlrelay/wlrelay/fdxlate"
	"github.com/wlrelay/wlrelay/proto"
	"github.com/wlrelay/wlrelay/wire"
)

// direction is the single-writer state bound to one I/O loop (spec §5):
// its own object table, damage set, fd translator, and interpreted
// protocol bookkeeping. Forward and backward directions of the same
// Session never share one.
type direction struct {
	name          string
	fromClient    bool
	onDisplaySide bool

	table *proto.Table
	dmg   *damage.Set
	ps    *protocolState
	tr    *fdxlate.Translator
}

func newDirection(name string, fromClient, onDisplaySide bool, margin int32, logger *zap.Logger) *direction {
	d := &direction{
		name:          name,
		fromClient:    fromClient,
		onDisplaySide: onDisplaySide,
		table:         proto.NewTable(),
		dmg:           damage.New(margin),
		ps:            newProtocolState(),
		tr:            fdxlate.NewTranslator(),
	}
	ifaces := protocolInterfaces(d.ps, d.dmg, d.tr, logger)
	_ = d.table.Insert(proto.Entry{ID: DisplayObjectID, Interface: ifaces["wl_display"]})
	return d
}

func (d *direction) close() error { return d.tr.Close() }

// Session bridges one local raw-Wayland UNIX connection (the real client
// app or the real display server, depending on OnDisplaySide) and one
// tunnel connection to a paired wlrelay process.
type Session struct {
	ID     uuid.UUID
	Local  *net.UnixConn
	Tunnel *wire.Tunnel

	Codec   codec.Codec
	Logger  *zap.Logger
	Metrics *Metrics

	forward  *direction
	backward *direction
}

// NewSession constructs a Session from an accepted/dialed local UNIX
// connection and a peer transport (the already-established tunnel
// connection to the paired wlrelay process — process launching and the
// reconnection watcher around it are external to this package, per
// spec.md §1).
func NewSession(local *net.UnixConn, peer io.ReadWriter, cfg *Config, logger *zap.Logger, metrics *Metrics) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cdc, err := codec.New(cfg.codecName())
	if err != nil {
		return nil, fmt.Errorf("relay: %w", err)
	}

	var tunnelOpts []wire.Option
	if cfg.ReadLimit > 0 {
		tunnelOpts = append(tunnelOpts, wire.WithReadLimit(cfg.ReadLimit))
	}

	margin := cfg.mergeMargin()
	return &Session{
		ID:      uuid.New(),
		Local:   local,
		Tunnel:  wire.NewTunnel(peer, peer, tunnelOpts...),
		Codec:   cdc,
		Logger:  logger,
		Metrics: metrics,

		forward:  newDirection("local_to_peer", !cfg.OnDisplaySide, cfg.OnDisplaySide, margin, logger),
		backward: newDirection("peer_to_local", cfg.OnDisplaySide, cfg.OnDisplaySide, margin, logger),
	}, nil
}

// Run drives both direction loops until one exits (peer disconnect, local
// disconnect, or ctx cancellation), closing the fd translators before
// returning. Matches the teacher's Forwarder contract of running until
// either side signals completion, adapted here to two independent
// goroutines via golang.org/x/sync/errgroup rather than one two-phase
// state machine, since decode-dispatch-reencode (not byte-for-byte
// passthrough) means the two directions genuinely don't share progress
// state the way a single Forwarder's read/write phases do.
func (s *Session) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.pumpLocalToPeer(gctx) })
	g.Go(func() error { return s.pumpPeerToLocal(gctx) })

	err := g.Wait()

	if cerr := s.forward.close(); cerr != nil && err == nil {
		err = cerr
	}
	if cerr := s.backward.close(); cerr != nil && err == nil {
		err = cerr
	}
	if cerr := s.Codec.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// pumpLocalToPeer decodes messages arriving from the local raw Wayland
// connection, forwards them (verbatim for Unknown, handler-rewritten for
// Known) to the peer tunnel as wire.KindMessage frames, and announces any
// shm pool mirrors the local side just introduced as wire.KindFd frames
// ahead of the message that needs them.
func (s *Session) pumpLocalToPeer(ctx context.Context) error {
	d := s.forward
	rs := newRawStream(s.Local)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		bw, fw, origLen, err := rs.nextMessage()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("relay: local read: %w", err)
		}

		result, err := proto.HandleMessage(d.table, d.tr, d.fromClient, d.onDisplaySide, &bw, fw, s.Logger)
		if err != nil {
			return fmt.Errorf("relay: %w", err)
		}
		rs.consume(origLen, fw)

		if s.Metrics != nil {
			s.Metrics.ObserveDamage(d.name, d.dmg, d.table)
		}

		for _, a := range d.ps.drainAnnouncements() {
			if _, werr := s.Tunnel.WriteFrame(wire.KindFd, announcementBytes(a)); werr != nil {
				return fmt.Errorf("relay: announce pool: %w", werr)
			}
			s.observeSent(d.name, wire.KindFd)
		}

		if result != proto.Overflow {
			payload := bw.Data[bw.Start:bw.End]
			if _, werr := s.Tunnel.WriteFrame(wire.KindMessage, payload); werr != nil {
				return fmt.Errorf("relay: forward message: %w", werr)
			}
			s.observeSent(d.name, wire.KindMessage)
		}

		for _, surfaceID := range d.ps.drainFlush() {
			if ferr := s.flushDamage(d, surfaceID); ferr != nil {
				return ferr
			}
		}
	}
}

// pumpPeerToLocal decodes frames arriving from the peer tunnel and
// delivers them to the local raw Wayland connection: KindFd frames adopt a
// mirror and stage its fd for the next message that needs it, KindDamage
// frames apply a decompressed byte range directly into the relevant
// mirror, and KindMessage frames are dispatched and written out with any
// staged fd attached via SCM_RIGHTS.
func (s *Session) pumpPeerToLocal(ctx context.Context) error {
	d := s.backward
	pendingFd := -1
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		kind, payload, err := s.Tunnel.ReadFrame()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("relay: tunnel read: %w", err)
		}
		s.observeReceived(d.name, kind)

		switch kind {
		case wire.KindFd:
			a, ok := parseAnnouncement(payload)
			if !ok {
				return fmt.Errorf("relay: malformed fd announcement")
			}
			mirror, aerr := d.tr.Adopt(a.Serial, a.Size)
			if aerr != nil {
				return fmt.Errorf("relay: adopt mirror: %w", aerr)
			}
			pendingFd = mirror.Fd

		case wire.KindDamage:
			if derr := s.applyDamage(d, payload); derr != nil {
				return derr
			}

		case wire.KindMessage:
			msg := append([]byte(nil), payload...)
			bw := proto.ByteWindow{Data: msg, Start: 0, End: len(msg)}
			var fds []int
			if pendingFd >= 0 {
				fds = []int{pendingFd}
			}
			fw := &proto.FdWindow{Data: fds, Start: 0, End: len(fds)}

			result, herr := proto.HandleMessage(d.table, d.tr, d.fromClient, d.onDisplaySide, &bw, fw, s.Logger)
			if herr != nil {
				return fmt.Errorf("relay: %w", herr)
			}
			if s.Metrics != nil {
				s.Metrics.ObserveDamage(d.name, d.dmg, d.table)
			}

			sendFd := -1
			if fw.Start > 0 {
				sendFd = pendingFd
			}
			pendingFd = -1

			if result != proto.Overflow {
				if werr := rawWrite(s.Local, bw.Data[bw.Start:bw.End], sendFd); werr != nil {
					return fmt.Errorf("relay: local write: %w", werr)
				}
			}
			d.ps.drainFlush()
		}
	}
}

func rawWrite(conn *net.UnixConn, payload []byte, fd int) error {
	if fd >= 0 {
		return fdxlate.SendFd(conn, payload, fd)
	}
	_, err := conn.Write(payload)
	return err
}

// flushDamage emits a wire.KindDamage frame for the bytes the forward
// direction's damage set has coalesced since the last flush, by slicing
// them out of the mirror backing the surface's currently attached buffer,
// then resets the set for the next frame.
func (s *Session) flushDamage(d *direction, surfaceID proto.ObjectID) error {
	defer d.dmg.Reset()

	low, high, _ := d.dmg.Bounding()
	if high <= low {
		return nil
	}
	mirror, ok := d.mirrorFor(surfaceID)
	if !ok {
		return nil
	}
	lo, hi := int64(low), int64(high)
	if lo < 0 {
		lo = 0
	}
	if hi > mirror.Size {
		hi = mirror.Size
	}
	if hi <= lo {
		return nil
	}

	header := make([]byte, 20)
	binary.LittleEndian.PutUint32(header[0:4], uint32(surfaceID))
	binary.LittleEndian.PutUint64(header[4:12], uint64(lo))
	binary.LittleEndian.PutUint64(header[12:20], uint64(hi))

	payload, err := s.Codec.Compress(header, mirror.Bytes()[lo:hi])
	if err != nil {
		return fmt.Errorf("relay: compress damage: %w", err)
	}
	if _, err := s.Tunnel.WriteFrame(wire.KindDamage, payload); err != nil {
		return fmt.Errorf("relay: send damage: %w", err)
	}
	s.observeSent(d.name, wire.KindDamage)
	return nil
}

// applyDamage decompresses a received KindDamage frame and writes it into
// the matching mirror on the backward direction.
func (s *Session) applyDamage(d *direction, payload []byte) error {
	if len(payload) < 20 {
		return fmt.Errorf("relay: malformed damage frame")
	}
	surfaceID := proto.ObjectID(binary.LittleEndian.Uint32(payload[0:4]))
	lo := int64(binary.LittleEndian.Uint64(payload[4:12]))
	hi := int64(binary.LittleEndian.Uint64(payload[12:20]))

	raw, err := s.Codec.Decompress(nil, payload[20:])
	if err != nil {
		return fmt.Errorf("relay: decompress damage: %w", err)
	}
	if hi-lo != int64(len(raw)) {
		return fmt.Errorf("relay: damage length mismatch")
	}
	mirror, ok := d.mirrorFor(surfaceID)
	if !ok {
		return nil
	}
	return mirror.ApplyInterval(lo, raw)
}

// mirrorFor resolves the Mirror currently backing a surface's attached
// buffer, or false if any link in that chain (surface, buffer, pool,
// mirror) isn't populated yet.
func (d *direction) mirrorFor(surfaceID proto.ObjectID) (*fdxlate.Mirror, bool) {
	st, ok := d.ps.surfaces[surfaceID]
	if !ok {
		return nil, false
	}
	buf, ok := d.ps.buffers[st.AttachedBuffer]
	if !ok {
		return nil, false
	}
	pool, ok := d.ps.pools[buf.PoolID]
	if !ok {
		return nil, false
	}
	return d.tr.Mirror(pool.Serial)
}

func (s *Session) observeSent(direction string, kind wire.Kind) {
	if s.Metrics != nil {
		s.Metrics.ObserveFrameSent(direction, kind.String())
	}
}

func (s *Session) observeReceived(direction string, kind wire.Kind) {
	if s.Metrics != nil {
		s.Metrics.ObserveFrameReceived(direction, kind.String())
	}
}
