package relay

import (
	"context"
	"encoding/binary"
	"net"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/wlrelay/wlrelay/damage"
	"github.com/wlrelay/wlrelay/fdxlate"
	"github.com/wlrelay/wlrelay/proto"
)

func header(objID uint32, opcode uint16, length uint16) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:], objID)
	binary.LittleEndian.PutUint32(buf[4:], uint32(opcode)|uint32(length)<<16)
	return buf
}

func unixSocketPair(t *testing.T) (*net.UnixConn, *net.UnixConn) {
	t.Helper()
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "wlrelay-test.sock")

	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: sockPath, Net: "unix"})
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	type result struct {
		conn *net.UnixConn
		err  error
	}
	acceptCh := make(chan result, 1)
	go func() {
		c, err := ln.AcceptUnix()
		acceptCh <- result{c, err}
	}()

	client, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: sockPath, Net: "unix"})
	if err != nil {
		t.Fatal(err)
	}
	srv := <-acceptCh
	if srv.err != nil {
		t.Fatal(srv.err)
	}
	return client, srv.conn
}

// ownedFd simulates a descriptor this side already owns outright, as if it
// had just arrived over SCM_RIGHTS from the local client.
func ownedFd(t *testing.T, size int64) int {
	t.Helper()
	fd, err := unix.MemfdCreate("session-test-fd", unix.MFD_CLOEXEC)
	if err != nil {
		t.Fatal(err)
	}
	if err := unix.Ftruncate(fd, size); err != nil {
		t.Fatal(err)
	}
	return fd
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"missing local socket", Config{PeerListen: "x"}, true},
		{"both peer fields set", Config{LocalSocket: "a", PeerListen: "x", PeerDial: "y"}, true},
		{"neither peer field set", Config{LocalSocket: "a"}, true},
		{"listen only", Config{LocalSocket: "a", PeerListen: "x"}, false},
		{"dial only", Config{LocalSocket: "a", PeerDial: "y"}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.cfg.Validate()
			if (err != nil) != c.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, c.wantErr)
			}
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	if got := cfg.mergeMargin(); got != damage.DefaultMergeMargin {
		t.Fatalf("mergeMargin() = %d, want %d", got, damage.DefaultMergeMargin)
	}
	if got := cfg.codecName(); got != "none" {
		t.Fatalf("codecName() = %q, want %q", got, "none")
	}
}

func TestAnnouncementBytesRoundTrip(t *testing.T) {
	want := announcement{Serial: 7, Size: 65536}
	got, ok := parseAnnouncement(announcementBytes(want))
	if !ok {
		t.Fatal("parseAnnouncement reported failure on well-formed bytes")
	}
	if got != want {
		t.Fatalf("round trip: got %+v, want %+v", got, want)
	}
	if _, ok := parseAnnouncement([]byte{1, 2, 3}); ok {
		t.Fatal("parseAnnouncement accepted a short buffer")
	}
}

// End-to-end over the hand-authored interface set: a wl_shm.create_pool
// creates a mirror and queues an announcement, wl_shm_pool.create_buffer
// records buffer geometry, wl_surface.attach/damage/commit coalesce a
// damage rectangle and queue a flush — exercising the full chain
// flushDamage later walks (surface -> buffer -> pool -> mirror).
func TestProtocolInterfacesShmDamageFlow(t *testing.T) {
	tbl := proto.NewTable()
	ps := newProtocolState()
	dmg := damage.New(damage.DefaultMergeMargin)
	tr := fdxlate.NewTranslator()
	defer tr.Close()

	ifaces := protocolInterfaces(ps, dmg, tr, zap.NewNop())
	_ = tbl.Insert(proto.Entry{ID: DisplayObjectID, Interface: ifaces["wl_display"]})
	_ = tbl.Insert(proto.Entry{ID: 2, Interface: ifaces["wl_shm"]})
	_ = tbl.Insert(proto.Entry{ID: 30, Interface: ifaces["wl_surface"]})

	fd := ownedFd(t, 4096)

	// wl_shm.create_pool(new_id=10, fd, size=4096)
	{
		msg := append(header(2, 0, 16), 0, 0, 0, 0, 0, 0, 0, 0)
		binary.LittleEndian.PutUint32(msg[8:], 10)
		binary.LittleEndian.PutUint32(msg[12:], 4096)
		bw := &proto.ByteWindow{Data: msg, Start: 0, End: len(msg)}
		fw := &proto.FdWindow{Data: []int{fd}, Start: 0, End: 1}
		if _, err := proto.HandleMessage(tbl, tr, true, false, bw, fw, zap.NewNop()); err != nil {
			t.Fatalf("create_pool: %v", err)
		}
	}
	pool, ok := ps.pools[10]
	if !ok {
		t.Fatal("expected pool state for object 10")
	}
	if _, ok := tbl.Get(10); !ok {
		t.Fatal("expected object table to gain the pool id via new_id decode")
	}
	anns := ps.drainAnnouncements()
	if len(anns) != 1 || anns[0].Serial != pool.Serial || anns[0].Size != 4096 {
		t.Fatalf("unexpected announcements: %+v", anns)
	}

	// wl_shm_pool.create_buffer(new_id=20, offset=0, width=100, height=50, stride=400, format=0)
	{
		msg := append(header(10, 0, 32), make([]byte, 24)...)
		binary.LittleEndian.PutUint32(msg[8:], 20)
		binary.LittleEndian.PutUint32(msg[12:], 0)   // offset
		binary.LittleEndian.PutUint32(msg[16:], 100) // width
		binary.LittleEndian.PutUint32(msg[20:], 50)  // height
		binary.LittleEndian.PutUint32(msg[24:], 400) // stride
		binary.LittleEndian.PutUint32(msg[28:], 0)   // format
		bw := &proto.ByteWindow{Data: msg, Start: 0, End: len(msg)}
		fw := &proto.FdWindow{}
		if _, err := proto.HandleMessage(tbl, tr, true, false, bw, fw, zap.NewNop()); err != nil {
			t.Fatalf("create_buffer: %v", err)
		}
	}
	if _, ok := ps.buffers[20]; !ok {
		t.Fatal("expected buffer state for object 20")
	}

	// wl_surface.attach(buffer=20, x=0, y=0)
	{
		msg := append(header(30, 1, 20), make([]byte, 12)...)
		binary.LittleEndian.PutUint32(msg[8:], 20)
		bw := &proto.ByteWindow{Data: msg, Start: 0, End: len(msg)}
		fw := &proto.FdWindow{}
		if _, err := proto.HandleMessage(tbl, tr, true, false, bw, fw, zap.NewNop()); err != nil {
			t.Fatalf("attach: %v", err)
		}
	}
	if ps.surfaces[30].AttachedBuffer != 20 {
		t.Fatalf("expected surface 30 to have buffer 20 attached, got %d", ps.surfaces[30].AttachedBuffer)
	}

	// wl_surface.damage(x=0, y=0, width=10, height=5)
	{
		msg := append(header(30, 2, 24), make([]byte, 16)...)
		binary.LittleEndian.PutUint32(msg[16:], 10) // width
		binary.LittleEndian.PutUint32(msg[20:], 5)  // height
		bw := &proto.ByteWindow{Data: msg, Start: 0, End: len(msg)}
		fw := &proto.FdWindow{}
		if _, err := proto.HandleMessage(tbl, tr, true, false, bw, fw, zap.NewNop()); err != nil {
			t.Fatalf("damage: %v", err)
		}
	}
	if dmg.AccCount == 0 {
		t.Fatal("expected damage.Set to record the submission")
	}
	low, high, _ := dmg.Bounding()
	if high <= low {
		t.Fatalf("expected a non-empty bounding box, got [%d,%d)", low, high)
	}

	// wl_surface.commit()
	{
		msg := header(30, 3, 8)
		bw := &proto.ByteWindow{Data: msg, Start: 0, End: len(msg)}
		fw := &proto.FdWindow{}
		if _, err := proto.HandleMessage(tbl, tr, true, false, bw, fw, zap.NewNop()); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}
	flush := ps.drainFlush()
	if len(flush) != 1 || flush[0] != 30 {
		t.Fatalf("expected pending flush for surface 30, got %v", flush)
	}

	mirror, ok := tr.Mirror(pool.Serial)
	if !ok {
		t.Fatal("expected a mirror registered for the pool's serial")
	}
	if mirror.Size != 4096 {
		t.Fatalf("expected mirror size 4096, got %d", mirror.Size)
	}
}

// TestSessionForwardsRawMessageEndToEnd drives two Sessions back to back
// over an in-memory tunnel and a pair of real UNIX sockets, verifying a
// message neither side's hand-authored interface set rewrites (wl_display
// has no request handler for "sync") still arrives byte-identical on the
// far side, exercising rawStream, proto.HandleMessage and wire.Tunnel
// together.
func TestSessionForwardsRawMessageEndToEnd(t *testing.T) {
	clientApp, aLocal := unixSocketPair(t)
	defer clientApp.Close()
	bLocal, compositorApp := unixSocketPair(t)
	defer compositorApp.Close()

	tunA, tunB := net.Pipe()

	metrics := NewMetrics()
	sessA, err := NewSession(aLocal, tunA, &Config{OnDisplaySide: false}, zap.NewNop(), metrics)
	if err != nil {
		t.Fatalf("NewSession A: %v", err)
	}
	sessB, err := NewSession(bLocal, tunB, &Config{OnDisplaySide: true}, zap.NewNop(), metrics)
	if err != nil {
		t.Fatalf("NewSession B: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	doneA := make(chan error, 1)
	doneB := make(chan error, 1)
	go func() { doneA <- sessA.Run(ctx) }()
	go func() { doneB <- sessB.Run(ctx) }()

	// wl_display.sync(new_id=2)
	msg := append(header(DisplayObjectID, 0, 12), 0, 0, 0, 0)
	binary.LittleEndian.PutUint32(msg[8:], 2)
	if _, err := clientApp.Write(msg); err != nil {
		t.Fatalf("write to client socket: %v", err)
	}

	if err := compositorApp.SetReadDeadline(time.Now().Add(3 * time.Second)); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 64)
	n, err := compositorApp.Read(buf)
	if err != nil {
		t.Fatalf("read from compositor socket: %v", err)
	}
	if string(buf[:n]) != string(msg) {
		t.Fatalf("got message %v, want %v", buf[:n], msg)
	}

	cancel()
	clientApp.Close()
	compositorApp.Close()
	aLocal.Close()
	bLocal.Close()
	tunA.Close()
	tunB.Close()
	<-doneA
	<-doneB
}
