// Package transport implements the network primitives op state
// machines consume, per spec §6: Connect, SendMsg, Get, Put, Atomic,
// NewMessage, GetRdmaPtr, RegisterRecvCallback. The interface models
// one-sided RDMA verbs; FastHTTPTransport (fasthttp.go)
// simulates them over plain HTTP so the rest of the tree never
// special-cases "no RDMA hardware available."
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"github.com/sandialabs/faodel-sub003/cmn"
	"github.com/sandialabs/faodel-sub003/ldo"
	"github.com/sandialabs/faodel-sub003/wire"
)

// AtomicOp selects the operation Atomic performs against the remote
// word (spec §6: "Atomic(peer, op, ...)"; the base spec exposes no
// caller-visible atomic op, so this enumerates the one the core uses
// internally plus room for a real deployment to add more).
type AtomicOp uint8

const (
	AtomicCompareAndSwap AtomicOp = iota
	AtomicFetchAndAdd
)

// CompletionFunc is how an async transport op reports its result; err
// is nil on success. Callers adapt this to an opengine.Engine.Complete
// call with the appropriate ArgsType.
type CompletionFunc func(err error)

// RecvFunc is invoked once per inbound envelope; a real deployment
// wires this to opengine.Engine.Dispatch.
type RecvFunc func(peer cmn.NodeID, env wire.Envelope)

// Transport is the capability set op state machines and Pool need to
// talk to a remote OpEngine.
type Transport interface {
	// Connect establishes (or reuses) a persistent connection to node.
	Connect(node cmn.NodeID, addr string) error

	// SendMsg delivers a wire-exact envelope to peer's OpEngine.
	SendMsg(peer cmn.NodeID, raw []byte, done CompletionFunc)

	// Get performs a one-sided pull of remote's registered memory into
	// local's data segment.
	Get(peer cmn.NodeID, remote wire.NetBufferRemote, local ldo.DataObject, done CompletionFunc)

	// Put performs a one-sided push of local's data segment into
	// remote's registered memory.
	Put(peer cmn.NodeID, local ldo.DataObject, remote wire.NetBufferRemote, done CompletionFunc)

	// Atomic performs a compare-and-swap or fetch-and-add against the
	// word at (remote, remoteOffset).
	Atomic(peer cmn.NodeID, op AtomicOp, remote wire.NetBufferRemote, remoteOffset uint32, operand, compare uint64, done func(result uint64, err error))

	// NewMessage allocates an LDO sized for a landing buffer.
	NewMessage(size uint32) (ldo.DataObject, error)

	// GetRdmaPtr registers obj's wire segment for remote one-sided
	// access and returns the handle to hand to a peer.
	GetRdmaPtr(obj ldo.DataObject) (wire.NetBufferRemote, error)

	// RegisterRecvCallback installs the handler for inbound envelopes.
	RegisterRecvCallback(fn RecvFunc)
}
