package ops

import (
	"context"
	"testing"
	"time"

	"github.com/sandialabs/faodel-sub003/behavior"
	"github.com/sandialabs/faodel-sub003/cmn"
	"github.com/sandialabs/faodel-sub003/iom"
	"github.com/sandialabs/faodel-sub003/ldo"
	"github.com/sandialabs/faodel-sub003/localkv"
	"github.com/sandialabs/faodel-sub003/opengine"
	"github.com/sandialabs/faodel-sub003/transport"
	"github.com/sandialabs/faodel-sub003/wire"
)

// loopbackTransport wires two Contexts' SendMsg/Get/Put calls directly
// into each other's engine/rdma table without any real networking --
// enough to drive a full op state machine round trip in a unit test.
type loopbackTransport struct {
	self  cmn.NodeID
	peers map[cmn.NodeID]*loopbackTransport
	recv  transport.RecvFunc
	rdma  map[uint64]ldo.DataObject
	next  uint64
}

func newLoopback(self cmn.NodeID) *loopbackTransport {
	return &loopbackTransport{self: self, peers: make(map[cmn.NodeID]*loopbackTransport), rdma: make(map[uint64]ldo.DataObject)}
}

func link(a, b *loopbackTransport) {
	a.peers[b.self] = b
	b.peers[a.self] = a
}

func (t *loopbackTransport) Connect(cmn.NodeID, string) error { return nil }

func (t *loopbackTransport) SendMsg(peer cmn.NodeID, raw []byte, done transport.CompletionFunc) {
	dst := t.peers[peer]
	go func() {
		env, err := wire.Decode(raw)
		if err != nil {
			done(err)
			return
		}
		if dst.recv != nil {
			dst.recv(t.self, env)
		}
		done(nil)
	}()
}

func (t *loopbackTransport) Get(peer cmn.NodeID, remote wire.NetBufferRemote, local ldo.DataObject, done transport.CompletionFunc) {
	dst := t.peers[peer]
	src, ok := dst.lookupRdma(remote)
	if !ok {
		done(errNoSuchSegment)
		return
	}
	copy(local.GetBasePtr()[ldo.HeaderSize:], src.GetBasePtr()[ldo.HeaderSize:])
	done(nil)
}

func (t *loopbackTransport) Put(peer cmn.NodeID, local ldo.DataObject, remote wire.NetBufferRemote, done transport.CompletionFunc) {
	dst := t.peers[peer]
	target, ok := dst.lookupRdma(remote)
	if !ok {
		done(errNoSuchSegment)
		return
	}
	copy(target.GetBasePtr()[ldo.HeaderSize:], local.GetBasePtr()[ldo.HeaderSize:])
	done(nil)
}

func (t *loopbackTransport) Atomic(cmn.NodeID, transport.AtomicOp, wire.NetBufferRemote, uint32, uint64, uint64, func(uint64, error)) {
}

func (t *loopbackTransport) NewMessage(size uint32) (ldo.DataObject, error) {
	return ldo.New(0, size, nil, 0)
}

func (t *loopbackTransport) GetRdmaPtr(obj ldo.DataObject) (wire.NetBufferRemote, error) {
	t.next++
	id := t.next
	t.rdma[id] = obj
	var w wire.NetBufferRemote
	for i := 0; i < 8; i++ {
		w[i] = byte(id >> (8 * i))
	}
	return w, nil
}

func (t *loopbackTransport) lookupRdma(nbr wire.NetBufferRemote) (ldo.DataObject, bool) {
	var id uint64
	for i := 0; i < 8; i++ {
		id |= uint64(nbr[i]) << (8 * i)
	}
	obj, ok := t.rdma[id]
	return obj, ok
}

func (t *loopbackTransport) RegisterRecvCallback(fn transport.RecvFunc) { t.recv = fn }

var errNoSuchSegment = cmn.RCENoEnt.Err()

func newTestContext(self cmn.NodeID, tr transport.Transport) (*Context, *localkv.LocalKV) {
	engine := opengine.New(uint32(self))
	store := localkv.New(engine, nil, iom.NewRegistry())
	ctx := &Context{Engine: engine, Transport: tr, Store: store, IOMs: iom.NewRegistry(), Self: self, Computes: NewComputeRegistry()}
	ctx.Register()
	tr.RegisterRecvCallback(func(peer cmn.NodeID, env wire.Envelope) {
		if err := engine.Dispatch(peer, env); err != nil {
			panic(err)
		}
	})
	return ctx, store
}

var _ transport.Transport = (*loopbackTransport)(nil)

func TestPublishRoundTrip(t *testing.T) {
	originT, targetT := newLoopback(1), newLoopback(2)
	link(originT, targetT)

	origin, _ := newTestContext(1, originT)
	_, targetStore := newTestContext(2, targetT)

	obj, err := ldo.New(0, 5, nil, 0)
	if err != nil {
		t.Fatalf("ldo.New: %v", err)
	}
	copy(obj.GetDataPtr(), []byte("hello"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, rc, err := origin.Publish(ctx, 2, 7, cmn.NewKey2("row1", "col1"), obj, behavior.WriteToLocal, 0)
	if err != nil || rc != cmn.RCOk {
		t.Fatalf("Publish: rc=%v err=%v", rc, err)
	}

	got, _, rc := targetStore.Get(7, cmn.NewKey2("row1", "col1"))
	if rc != cmn.RCOk {
		t.Fatalf("target Get: rc=%v", rc)
	}
	if string(got.GetDataPtr()) != "hello" {
		t.Fatalf("target data = %q", got.GetDataPtr())
	}
}

func TestGetUnboundedRoundTrip(t *testing.T) {
	originT, targetT := newLoopback(1), newLoopback(2)
	link(originT, targetT)

	origin, _ := newTestContext(1, originT)
	_, targetStore := newTestContext(2, targetT)

	obj, _ := ldo.New(0, 4, nil, 0)
	copy(obj.GetDataPtr(), []byte("data"))
	if _, rc := targetStore.Put(9, cmn.NewKey2("rowX", "colY"), obj, behavior.WriteToLocal, 0); rc != cmn.RCOk {
		t.Fatalf("seed Put: rc=%v", rc)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	result, _, rc, err := origin.Get(ctx, 2, 9, cmn.NewKey2("rowX", "colY"), behavior.ReadToLocal)
	if err != nil || rc != cmn.RCOk {
		t.Fatalf("Get: rc=%v err=%v", rc, err)
	}
	if string(result.GetDataPtr()) != "data" {
		t.Fatalf("got %q", result.GetDataPtr())
	}
}

func TestInfoRoundTripReportsENoEntForMissingRow(t *testing.T) {
	originT, targetT := newLoopback(1), newLoopback(2)
	link(originT, targetT)
	origin, _ := newTestContext(1, originT)
	newTestContext(2, targetT)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, rc, err := origin.Info(ctx, 2, 3, cmn.NewKey("missing-row"))
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if rc != cmn.RCENoEnt {
		t.Fatalf("expected RCENoEnt, got %v", rc)
	}
}

func TestDropRoundTrip(t *testing.T) {
	originT, targetT := newLoopback(1), newLoopback(2)
	link(originT, targetT)
	origin, _ := newTestContext(1, originT)
	_, targetStore := newTestContext(2, targetT)

	obj, _ := ldo.New(0, 1, nil, 0)
	targetStore.Put(4, cmn.NewKey2("row", "col"), obj, behavior.WriteToLocal, 0)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	rc, err := origin.Drop(ctx, 2, 4, cmn.NewKey2("row", "col"))
	if err != nil || rc != cmn.RCOk {
		t.Fatalf("Drop: rc=%v err=%v", rc, err)
	}
	if _, _, rc := targetStore.Get(4, cmn.NewKey2("row", "col")); rc != cmn.RCENoEnt {
		t.Fatalf("expected row dropped, got rc=%v", rc)
	}
}
