// Package opengine implements the mailbox-indexed registry of
// in-flight operation state machines described in spec §4.3: it
// dispatches inbound wire events and user triggers to the Op that owns
// the destination mailbox, and instantiates new target-owned Ops via a
// per-op-class factory keyed on the envelope's op_id.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package opengine

import (
	"fmt"
	"sync"

	"github.com/sandialabs/faodel-sub003/cmn"
	"github.com/sandialabs/faodel-sub003/cmn/atomic"
	"github.com/sandialabs/faodel-sub003/cmn/debug"
	"github.com/sandialabs/faodel-sub003/cmn/nlog"
	"github.com/sandialabs/faodel-sub003/wire"
	"github.com/teris-io/shortid"
)

// WaitingType is the suspension state an Op returns from Update: what
// kind of event it expects next.
type WaitingType int

const (
	WaitingOnCQ WaitingType = iota // next event arrives from the network
	WaitOnUser                     // next event arrives via TriggerOp or Timeout
	DoneAndDestroy
	ErrorState
)

// ArgsType enumerates the sum-type discriminant for Args.
type ArgsType int

const (
	ArgsStart ArgsType = iota
	ArgsIncomingMessage
	ArgsSendSuccess
	ArgsSendError
	ArgsPutSuccess
	ArgsPutError
	ArgsGetSuccess
	ArgsGetError
	ArgsAtomicSuccess
	ArgsAtomicError
	ArgsTimeout
	ArgsUserTrigger
)

// Args is the single transition input every Op.Update call receives.
// Only the fields relevant to Type are populated.
type Args struct {
	Type ArgsType

	Msg  *wire.Envelope // ArgsIncomingMessage
	Peer cmn.NodeID      // ArgsIncomingMessage

	Err error // *_error variants

	UserPayload any // ArgsUserTrigger: typically *localkv.TriggerPayload

	// Mailbox is filled in by the engine before every Update call (not
	// by the caller) so a target-side Op -- which never chose its own
	// mailbox -- always has it on hand for a later Engine.Complete.
	Mailbox uint64
}

// Op is one in-flight operation instance: either origin-owned (driving
// a local call to completion) or target-owned (instantiated from an
// inbound command). A single Op's Update calls are serialized by the
// engine via a per-mailbox lock; Op implementations do not need their
// own locking for fields only they touch.
type Op interface {
	// Update drives one state transition and returns the suspension
	// state the engine should now wait for.
	Update(args Args) (WaitingType, error)
	// OpID identifies the op class (stable hash of its name) so the
	// engine can route target-side instantiation.
	OpID() uint32
}

// Factory builds a new target-owned Op to handle an inbound command
// whose destination mailbox is Unspecified.
type Factory func(engine *Engine, peer cmn.NodeID, env wire.Envelope) (Op, error)

const mailboxStripes = 64

type entry struct {
	mu sync.Mutex
	op Op
}

// Engine is the process-wide mailbox -> Op registry. It is meant to be
// constructed once at bootstrap and held behind a dependency-injected
// handle, never as an ambient global (spec §9).
type Engine struct {
	nextMailbox atomic.Uint64
	generation  uint32 // mixed into every minted mailbox to detect stale reuse

	stripes [mailboxStripes]sync.Map // mailbox(uint64) -> *entry

	factoriesMu sync.RWMutex
	factories   map[uint32]Factory

	sid *shortid.Shortid
}

// New constructs an Engine that stamps the caller-supplied generation
// into every mailbox it mints (see NewMailbox). New does not choose or
// randomize the value itself; mailboxes from two Engines built with the
// same generation can collide.
func New(generation uint32) *Engine {
	sid, err := shortid.New(1, shortid.DefaultABC, uint64(generation))
	if err != nil {
		// shortid.New only fails on a bad seed table; DefaultABC is
		// always valid, so this is a contract violation.
		panic(fmt.Sprintf("opengine: shortid.New: %v", err))
	}
	return &Engine{
		generation: generation,
		factories:  make(map[uint32]Factory),
		sid:        sid,
	}
}

// RegisterFactory binds a target-side constructor to an op_id so
// inbound commands with DstMailbox == 0 can be dispatched.
func (e *Engine) RegisterFactory(opID uint32, f Factory) {
	e.factoriesMu.Lock()
	defer e.factoriesMu.Unlock()
	e.factories[opID] = f
}

func (e *Engine) stripeFor(mailbox uint64) *sync.Map { return &e.stripes[mailbox%mailboxStripes] }

// NewMailbox mints a fresh mailbox with generation bits in the high
// 32 bits, so a reused low 32 bits from a prior process can still be
// told apart from the current one (spec §4.3: "mailbox ... with
// generation bits to detect reuse").
func (e *Engine) NewMailbox() uint64 {
	seq := e.nextMailbox.Inc()
	return uint64(e.generation)<<32 | (uint64(seq) & 0xFFFFFFFF)
}

// DiagID returns a short, human-loggable string for diagnostics only;
// it never appears on the wire (spec §4.3.1 / SPEC_FULL.md).
func (e *Engine) DiagID() string {
	id, err := e.sid.Generate()
	if err != nil {
		return "diag-unknown"
	}
	return id
}

// Register installs an origin-owned Op under a freshly minted mailbox
// and returns it.
func (e *Engine) Register(op Op) uint64 {
	mailbox := e.NewMailbox()
	e.stripeFor(mailbox).Store(mailbox, &entry{op: op})
	return mailbox
}

// StartOrigin mints a mailbox, lets makeOp build the Op around it (so
// the Op can stamp its own SrcMailbox into the first message it
// sends), installs it, and immediately drives its ArgsStart
// transition. Used by every origin-side op in package ops since, unlike
// a target-side op, an origin op exists before any envelope names it.
func (e *Engine) StartOrigin(makeOp func(mailbox uint64) Op) uint64 {
	mailbox := e.NewMailbox()
	op := makeOp(mailbox)
	ent := &entry{op: op}
	e.stripeFor(mailbox).Store(mailbox, ent)
	e.drive(mailbox, ent, Args{Type: ArgsStart})
	return mailbox
}

// Unregister removes a mailbox from the table; called once an Op
// reaches DoneAndDestroy or ErrorState.
func (e *Engine) Unregister(mailbox uint64) { e.stripeFor(mailbox).Delete(mailbox) }

func (e *Engine) lookup(mailbox uint64) (*entry, bool) {
	v, ok := e.stripeFor(mailbox).Load(mailbox)
	if !ok {
		return nil, false
	}
	return v.(*entry), true
}

// drive locks the op's per-mailbox lock, calls Update, and retires the
// mailbox on terminal states. Every external entry point funnels
// through here so an op's transitions are strictly serialized.
func (e *Engine) drive(mailbox uint64, ent *entry, args Args) {
	args.Mailbox = mailbox
	ent.mu.Lock()
	wt, err := ent.op.Update(args)
	ent.mu.Unlock()
	if err != nil {
		nlog.Warningln("opengine: op", mailbox, "update error:", err)
	}
	switch wt {
	case DoneAndDestroy, ErrorState:
		e.Unregister(mailbox)
	}
}

// Dispatch routes an inbound envelope to the mailbox named in
// env.Header.DstMailbox, or instantiates a new target-owned Op via the
// registered factory for env.Header.OpID when DstMailbox is
// unspecified (0).
func (e *Engine) Dispatch(peer cmn.NodeID, env wire.Envelope) error {
	if env.Header.DstMailbox == 0 {
		e.factoriesMu.RLock()
		f, ok := e.factories[env.Header.OpID]
		e.factoriesMu.RUnlock()
		if !ok {
			return fmt.Errorf("kelpie: opengine: unknown op_id 0x%x: %w", env.Header.OpID, errUnknownOpID)
		}
		op, err := f(e, peer, env)
		if err != nil {
			return fmt.Errorf("kelpie: opengine: factory for op_id 0x%x: %w", env.Header.OpID, err)
		}
		mailbox := e.Register(op)
		ent, _ := e.lookup(mailbox)
		e.drive(mailbox, ent, Args{Type: ArgsStart, Msg: &env, Peer: peer})
		return nil
	}
	ent, ok := e.lookup(env.Header.DstMailbox)
	if !ok {
		// A reply for an op that already completed (e.g. a duplicate
		// or a very late retry) -- not a protocol violation by itself.
		nlog.Warningln("opengine: no such mailbox", env.Header.DstMailbox, "dropping message")
		return nil
	}
	e.drive(env.Header.DstMailbox, ent, Args{Type: ArgsIncomingMessage, Msg: &env, Peer: peer})
	return nil
}

// Trigger delivers a user_trigger event to an existing mailbox -- the
// API LocalKV's dispatch path uses to wake a stalled target-side Op
// once the underlying cell becomes available.
func (e *Engine) Trigger(mailbox uint64, payload any) error {
	ent, ok := e.lookup(mailbox)
	if !ok {
		return fmt.Errorf("kelpie: opengine: trigger: no such mailbox %d", mailbox)
	}
	e.drive(mailbox, ent, Args{Type: ArgsUserTrigger, UserPayload: payload})
	return nil
}

// Timeout delivers a timeout event to a mailbox.
func (e *Engine) Timeout(mailbox uint64) {
	ent, ok := e.lookup(mailbox)
	if !ok {
		return
	}
	e.drive(mailbox, ent, Args{Type: ArgsTimeout})
}

// Complete delivers a transport completion event (send/put/get/atomic
// success or error) to a mailbox.
func (e *Engine) Complete(mailbox uint64, t ArgsType, err error) {
	debug.Assert(t != ArgsStart && t != ArgsIncomingMessage && t != ArgsUserTrigger && t != ArgsTimeout,
		"Complete used for a non-completion ArgsType")
	ent, ok := e.lookup(mailbox)
	if !ok {
		return
	}
	e.drive(mailbox, ent, Args{Type: t, Err: err})
}

var errUnknownOpID = fmt.Errorf("no factory registered")
