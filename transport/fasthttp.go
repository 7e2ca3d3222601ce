package transport

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"

	"github.com/sandialabs/faodel-sub003/cmn"
	"github.com/sandialabs/faodel-sub003/cmn/nlog"
	"github.com/sandialabs/faodel-sub003/ldo"
	"github.com/sandialabs/faodel-sub003/wire"
)

const (
	pathMsg    = "/kelpie/v1/msg"
	pathRdma   = "/kelpie/v1/rdma/"
	pathAtomic = "/kelpie/v1/atomic/"
)

// FastHTTPTransport simulates the one-sided RDMA verb set over plain
// HTTP: SendMsg is a POST to pathMsg, Get/Put are GET/PUT against
// pathRdma/{nbr}, and Atomic is a POST to pathAtomic/{nbr}. The NBR
// table maps an opaque 56-byte handle to a registered DataObject on
// whichever node called GetRdmaPtr, matching the shape a real RDMA
// verbs registration would have without requiring one (spec §6).
type FastHTTPTransport struct {
	self cmn.NodeID

	mu      sync.RWMutex
	addrs   map[cmn.NodeID]string
	clients map[cmn.NodeID]*fasthttp.HostClient

	rdmaMu    sync.Mutex
	rdmaNext  uint64
	rdmaTable map[uint64]ldo.DataObject

	atomicMu sync.Mutex

	recvMu sync.RWMutex
	recv   RecvFunc
}

var _ Transport = (*FastHTTPTransport)(nil)

// NewFastHTTPTransport builds a transport identifying itself as self.
// Call Serve to start accepting inbound connections.
func NewFastHTTPTransport(self cmn.NodeID) *FastHTTPTransport {
	return &FastHTTPTransport{
		self:      self,
		addrs:     make(map[cmn.NodeID]string),
		clients:   make(map[cmn.NodeID]*fasthttp.HostClient),
		rdmaTable: make(map[uint64]ldo.DataObject),
	}
}

// Serve starts the fasthttp listener handling inbound messages and
// RDMA pulls/pushes from peers. It blocks; run it in a goroutine.
func (t *FastHTTPTransport) Serve(addr string) error {
	return fasthttp.ListenAndServe(addr, t.handle)
}

func (t *FastHTTPTransport) Connect(node cmn.NodeID, addr string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.addrs[node] = addr
	t.clients[node] = &fasthttp.HostClient{Addr: addr}
	return nil
}

func (t *FastHTTPTransport) client(peer cmn.NodeID) (*fasthttp.HostClient, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.clients[peer]
	if !ok {
		return nil, fmt.Errorf("kelpie: transport: no connection to node %s (call Connect first)", peer)
	}
	return c, nil
}

func (t *FastHTTPTransport) SendMsg(peer cmn.NodeID, raw []byte, done CompletionFunc) {
	c, err := t.client(peer)
	if err != nil {
		done(err)
		return
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(pathMsg)
	req.SetBody(raw)

	if err := c.Do(req, resp); err != nil {
		done(errors.Wrapf(err, "kelpie: transport: SendMsg to %s", peer))
		return
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		done(fmt.Errorf("kelpie: transport: SendMsg to %s: status %d", peer, resp.StatusCode()))
		return
	}
	done(nil)
}

func (t *FastHTTPTransport) Get(peer cmn.NodeID, remote wire.NetBufferRemote, local ldo.DataObject, done CompletionFunc) {
	c, err := t.client(peer)
	if err != nil {
		done(err)
		return
	}
	id := binary.LittleEndian.Uint64(remote[:8])

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(pathRdma + strconv.FormatUint(id, 10))

	if err := c.Do(req, resp); err != nil {
		done(errors.Wrapf(err, "kelpie: transport: Get from %s", peer))
		return
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		done(fmt.Errorf("kelpie: transport: Get from %s: status %d", peer, resp.StatusCode()))
		return
	}
	body := resp.Body()
	if uint32(len(body)) > local.GetUserCapacity() {
		done(fmt.Errorf("kelpie: transport: Get from %s: remote segment %d bytes exceeds local capacity %d", peer, len(body), local.GetUserCapacity()))
		return
	}
	copy(local.GetBasePtr()[ldo.HeaderSize:], body)
	done(nil)
}

func (t *FastHTTPTransport) Put(peer cmn.NodeID, local ldo.DataObject, remote wire.NetBufferRemote, done CompletionFunc) {
	c, err := t.client(peer)
	if err != nil {
		done(err)
		return
	}
	id := binary.LittleEndian.Uint64(remote[:8])

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(fasthttp.MethodPut)
	req.SetRequestURI(pathRdma + strconv.FormatUint(id, 10))
	req.SetBody(local.GetBasePtr()[ldo.HeaderSize:])

	if err := c.Do(req, resp); err != nil {
		done(errors.Wrapf(err, "kelpie: transport: Put to %s", peer))
		return
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		done(fmt.Errorf("kelpie: transport: Put to %s: status %d", peer, resp.StatusCode()))
		return
	}
	done(nil)
}

func (t *FastHTTPTransport) Atomic(peer cmn.NodeID, op AtomicOp, remote wire.NetBufferRemote, remoteOffset uint32, operand, compare uint64, done func(result uint64, err error)) {
	c, err := t.client(peer)
	if err != nil {
		done(0, err)
		return
	}
	id := binary.LittleEndian.Uint64(remote[:8])

	var body [24]byte
	body[0] = byte(op)
	binary.LittleEndian.PutUint32(body[4:8], remoteOffset)
	binary.LittleEndian.PutUint64(body[8:16], operand)
	binary.LittleEndian.PutUint64(body[16:24], compare)

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(pathAtomic + strconv.FormatUint(id, 10))
	req.SetBody(body[:])

	if err := c.Do(req, resp); err != nil {
		done(0, errors.Wrapf(err, "kelpie: transport: Atomic on %s", peer))
		return
	}
	if resp.StatusCode() != fasthttp.StatusOK || len(resp.Body()) < 8 {
		done(0, fmt.Errorf("kelpie: transport: Atomic on %s: status %d", peer, resp.StatusCode()))
		return
	}
	done(binary.LittleEndian.Uint64(resp.Body()[:8]), nil)
}

func (t *FastHTTPTransport) NewMessage(size uint32) (ldo.DataObject, error) {
	return ldo.New(0, size, nil, 0)
}

func (t *FastHTTPTransport) GetRdmaPtr(obj ldo.DataObject) (wire.NetBufferRemote, error) {
	t.rdmaMu.Lock()
	t.rdmaNext++
	id := t.rdmaNext
	t.rdmaTable[id] = obj
	t.rdmaMu.Unlock()

	var nbr wire.NetBufferRemote
	binary.LittleEndian.PutUint64(nbr[:8], id)
	return nbr, nil
}

func (t *FastHTTPTransport) RegisterRecvCallback(fn RecvFunc) {
	t.recvMu.Lock()
	defer t.recvMu.Unlock()
	t.recv = fn
}

func (t *FastHTTPTransport) handle(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	switch {
	case path == pathMsg:
		t.handleMsg(ctx)
	case strings.HasPrefix(path, pathRdma):
		t.handleRdma(ctx, strings.TrimPrefix(path, pathRdma))
	case strings.HasPrefix(path, pathAtomic):
		t.handleAtomic(ctx, strings.TrimPrefix(path, pathAtomic))
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

func (t *FastHTTPTransport) handleMsg(ctx *fasthttp.RequestCtx) {
	env, err := wire.Decode(append([]byte(nil), ctx.PostBody()...))
	if err != nil {
		nlog.Warningln("transport: rejecting malformed envelope:", err)
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		return
	}
	t.recvMu.RLock()
	fn := t.recv
	t.recvMu.RUnlock()
	if fn == nil {
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
		return
	}
	fn(env.Header.Src, env)
	ctx.SetStatusCode(fasthttp.StatusOK)
}

func (t *FastHTTPTransport) handleRdma(ctx *fasthttp.RequestCtx, idStr string) {
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		return
	}
	t.rdmaMu.Lock()
	obj, ok := t.rdmaTable[id]
	t.rdmaMu.Unlock()
	if !ok {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}
	switch string(ctx.Method()) {
	case fasthttp.MethodGet:
		ctx.SetBody(obj.GetBasePtr()[ldo.HeaderSize:])
		ctx.SetStatusCode(fasthttp.StatusOK)
	case fasthttp.MethodPut:
		body := ctx.PostBody()
		if uint32(len(body)) > obj.GetUserCapacity() {
			ctx.SetStatusCode(fasthttp.StatusRequestEntityTooLarge)
			return
		}
		copy(obj.GetBasePtr()[ldo.HeaderSize:], body)
		ctx.SetStatusCode(fasthttp.StatusOK)
	default:
		ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
	}
}

func (t *FastHTTPTransport) handleAtomic(ctx *fasthttp.RequestCtx, idStr string) {
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		return
	}
	t.rdmaMu.Lock()
	obj, ok := t.rdmaTable[id]
	t.rdmaMu.Unlock()
	if !ok {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}
	body := ctx.PostBody()
	if len(body) < 24 {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		return
	}
	op := AtomicOp(body[0])
	offset := binary.LittleEndian.Uint32(body[4:8])
	operand := binary.LittleEndian.Uint64(body[8:16])
	compare := binary.LittleEndian.Uint64(body[16:24])

	data := obj.GetDataPtr()
	if uint32(len(data)) < offset+8 {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		return
	}
	word := data[offset : offset+8]

	t.atomicMu.Lock()
	old := binary.LittleEndian.Uint64(word)
	var result uint64
	switch op {
	case AtomicCompareAndSwap:
		result = old
		if old == compare {
			binary.LittleEndian.PutUint64(word, operand)
		}
	case AtomicFetchAndAdd:
		result = old
		binary.LittleEndian.PutUint64(word, old+operand)
	}
	t.atomicMu.Unlock()

	var out [8]byte
	binary.LittleEndian.PutUint64(out[:], result)
	ctx.SetBody(out[:])
	ctx.SetStatusCode(fasthttp.StatusOK)
}
