// Package ops implements the seven op state machine pairs of spec
// §4.5 -- Publish, Get-Bounded, Get-Unbounded, Info/RowInfo, List,
// Drop, Compute -- as opengine.Op implementations. Each pair shares a
// Context bundling the collaborators every op needs: the engine that
// drives transitions, the transport that moves bytes, and the local
// store the target side reads and writes.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package ops

import (
	"fmt"

	"github.com/sandialabs/faodel-sub003/behavior"
	"github.com/sandialabs/faodel-sub003/cmn"
	"github.com/sandialabs/faodel-sub003/cmn/nlog"
	"github.com/sandialabs/faodel-sub003/iom"
	"github.com/sandialabs/faodel-sub003/ldo"
	"github.com/sandialabs/faodel-sub003/localkv"
	"github.com/sandialabs/faodel-sub003/opengine"
	"github.com/sandialabs/faodel-sub003/stats"
	"github.com/sandialabs/faodel-sub003/transport"
	"github.com/sandialabs/faodel-sub003/wire"
)

// Store is the subset of localkv.LocalKV the target side of every op
// needs.
type Store interface {
	Put(bucket cmn.Bucket, key cmn.Key, obj ldo.DataObject, flags behavior.Flags, iomHash iom.Hash) (cmn.ObjectInfo, cmn.RC)
	Get(bucket cmn.Bucket, key cmn.Key) (ldo.DataObject, cmn.ObjectInfo, cmn.RC)
	GetForOp(bucket cmn.Bucket, key cmn.Key, mailbox uint64) (ldo.DataObject, cmn.ObjectInfo, cmn.RC)
	Info(bucket cmn.Bucket, key cmn.Key) (cmn.ObjectInfo, cmn.RC)
	Drop(bucket cmn.Bucket, key cmn.Key) cmn.RC
	List(bucket cmn.Bucket, key cmn.Key, driver iom.Driver) []localkv.ListEntry
}

// Context bundles every op's collaborators. One Context is built at
// bootstrap and shared by every op instance.
type Context struct {
	Engine    *opengine.Engine
	Transport transport.Transport
	Store     Store
	IOMs      *iom.Registry
	Self      cmn.NodeID
	Computes  *ComputeRegistry
	Stats     *stats.Registry // optional; nil disables op metrics
}

// observeTargetOp records that a target-side op of the given kind
// arrived, a no-op if no stats.Registry was wired in at bootstrap.
func (c *Context) observeTargetOp(opKind string) {
	if c.Stats != nil {
		c.Stats.ObserveOp(opKind, cmn.RCOk)
	}
}

// Register installs the target-side factory for every op class this
// package implements under Context's engine.
func (c *Context) Register() {
	c.Engine.RegisterFactory(wire.OpIDOf("OpKelpiePublish"), c.newPublishTarget)
	c.Engine.RegisterFactory(wire.OpIDOf("OpKelpieGetBounded"), c.newGetBoundedTarget)
	c.Engine.RegisterFactory(wire.OpIDOf("OpKelpieGetUnbounded"), c.newGetUnboundedTarget)
	c.Engine.RegisterFactory(wire.OpIDOf("OpKelpieInfo"), c.newInfoTarget)
	c.Engine.RegisterFactory(wire.OpIDOf("OpKelpieList"), c.newListTarget)
	c.Engine.RegisterFactory(wire.OpIDOf("OpKelpieDrop"), c.newDropTarget)
	c.Engine.RegisterFactory(wire.OpIDOf("OpKelpieCompute"), c.newComputeTarget)
}

// ResultFunc is the user-visible completion callback an origin op
// fires exactly once, on success or failure.
type ResultFunc func(obj ldo.DataObject, info cmn.ObjectInfo, rc cmn.RC, err error)

func sendHeader(self, peer cmn.NodeID, srcMailbox, dstMailbox uint64, opID uint32, cmd wire.Command, canStall bool) wire.Header {
	return wire.Header{
		Src: self, Dst: peer,
		SrcMailbox: srcMailbox, DstMailbox: dstMailbox,
		OpID:      opID,
		UserFlags: wire.MakeCommandFlags(cmd, canStall),
	}
}

func statusHeader(self, peer cmn.NodeID, srcMailbox, dstMailbox uint64, success bool) wire.Header {
	return wire.Header{
		Src: self, Dst: peer,
		SrcMailbox: srcMailbox, DstMailbox: dstMailbox,
		UserFlags: wire.MakeStatusFlags(true, success),
	}
}

func objectInfoToWire(info cmn.ObjectInfo) wire.ObjectInfoWire {
	return wire.ObjectInfoWire{
		RowUserBytes:    info.RowUserBytes,
		ColUserBytes:    info.ColUserBytes,
		RowNumColumns:   info.RowNumColumns,
		ColDependencies: info.ColDependencies,
		ColAvailability: uint8(info.ColAvailability),
	}
}

func wireToObjectInfo(w wire.ObjectInfoWire) cmn.ObjectInfo {
	return cmn.ObjectInfo{
		RowUserBytes:    w.RowUserBytes,
		ColUserBytes:    w.ColUserBytes,
		RowNumColumns:   w.RowNumColumns,
		ColDependencies: w.ColDependencies,
		ColAvailability: cmn.Availability(w.ColAvailability),
	}
}

// logStateError reports an op transition failure the way every op in
// this package does: warn and let the engine retire the mailbox.
func logStateError(opName string, mailbox uint64, err error) {
	if err != nil {
		nlog.Warningln("ops:", opName, "mailbox", mailbox, ":", err)
	}
}

var errUnexpectedArgs = fmt.Errorf("unexpected args for current state")
