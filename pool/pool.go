// Package pool implements the DHT pool described in spec §4.6: an
// ordered membership list and djb2(bucket,row)-mod-|members| key
// placement. A Pool opens no peer connections of its own, at
// construction or later; reaching a member goes entirely through the
// RemoteExecutor it is given. A pool consults the
// local store first, then either serves a call out of it directly or
// routes it to the owning member through a RemoteExecutor.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package pool

import (
	"context"
	"fmt"

	"github.com/sandialabs/faodel-sub003/behavior"
	"github.com/sandialabs/faodel-sub003/cmn"
	"github.com/sandialabs/faodel-sub003/iom"
	"github.com/sandialabs/faodel-sub003/ldo"
)

// LocalStore is the subset of localkv.LocalKV a Pool needs. Accepting
// the interface (rather than the concrete type) keeps this package
// free of a dependency on localkv's backburner/opengine wiring.
type LocalStore interface {
	Put(bucket cmn.Bucket, key cmn.Key, obj ldo.DataObject, flags behavior.Flags, iomHash iom.Hash) (cmn.ObjectInfo, cmn.RC)
	Get(bucket cmn.Bucket, key cmn.Key) (ldo.DataObject, cmn.ObjectInfo, cmn.RC)
	Info(bucket cmn.Bucket, key cmn.Key) (cmn.ObjectInfo, cmn.RC)
	Drop(bucket cmn.Bucket, key cmn.Key) cmn.RC
}

// RemoteExecutor launches the appropriate op state machine against a
// specific member (spec §4.6 step 4) and blocks for its result. The
// ops package provides the concrete implementation, wiring this call
// through opengine and transport; pool only needs to know the shape.
type RemoteExecutor interface {
	Publish(ctx context.Context, target cmn.NodeID, bucket cmn.Bucket, key cmn.Key, obj ldo.DataObject, flags behavior.Flags, iomHash iom.Hash) (cmn.ObjectInfo, cmn.RC, error)
	Get(ctx context.Context, target cmn.NodeID, bucket cmn.Bucket, key cmn.Key, flags behavior.Flags) (ldo.DataObject, cmn.ObjectInfo, cmn.RC, error)
	Info(ctx context.Context, target cmn.NodeID, bucket cmn.Bucket, key cmn.Key) (cmn.ObjectInfo, cmn.RC, error)
	Drop(ctx context.Context, target cmn.NodeID, bucket cmn.Bucket, key cmn.Key) (cmn.RC, error)
}

// Pool is the DHT pool. Constructed once per (bucket, pool-name)
// resource and held behind a dependency-injected handle.
type Pool struct {
	url     cmn.ResourceURL
	members *Membership
	local   LocalStore
	remote  RemoteExecutor
	self    cmn.NodeID
}

// New builds a Pool bound to url, with members already resolved (spec
// §4.6) by the time calls start arriving.
func New(url cmn.ResourceURL, self cmn.NodeID, members *Membership, local LocalStore, remote RemoteExecutor) *Pool {
	return &Pool{url: url, members: members, local: local, remote: remote, self: self}
}

// spot computes the DHT placement index for a row (spec §4.6: "spot =
// djb2(bucket, row) mod |members|"). k2 never participates, so
// wildcard column queries reach a single node per row.
func spot(bucket cmn.Bucket, row string, memberCount int) int {
	if memberCount == 0 {
		return 0
	}
	h := uint32(5381)
	h = (h<<5 + h) + uint32(bucket)>>24&0xff
	h = (h<<5 + h) + uint32(bucket)>>16&0xff
	h = (h<<5 + h) + uint32(bucket)>>8&0xff
	h = (h<<5 + h) + uint32(bucket)&0xff
	for i := 0; i < len(row); i++ {
		h = (h<<5 + h) + uint32(row[i])
	}
	return int(h % uint32(memberCount))
}

// Owner returns the node responsible for row under the pool's current
// membership.
func (p *Pool) Owner(bucket cmn.Bucket, row string) cmn.NodeID {
	members := p.members.Snapshot()
	if len(members) == 0 {
		return p.self
	}
	return members[spot(bucket, row, len(members))]
}

func (p *Pool) isLocal(bucket cmn.Bucket, row string) bool {
	return p.Owner(bucket, row) == p.self
}

// Put implements spec §4.6 step 1-4 for Publish.
func (p *Pool) Put(ctx context.Context, bucket cmn.Bucket, key cmn.Key, obj ldo.DataObject, flags behavior.Flags, iomHash iom.Hash) (cmn.ObjectInfo, cmn.RC) {
	if p.isLocal(bucket, key.K1) || flags.Has(behavior.WriteToLocal) {
		info, rc := p.local.Put(bucket, key, obj, flags, iomHash)
		if p.isLocal(bucket, key.K1) {
			return info, rc
		}
		// WriteToLocal cached a copy here even though another node
		// owns the row; still forward the authoritative write below.
		_ = info
	}
	target := p.Owner(bucket, key.K1)
	info, rc, err := p.remote.Publish(ctx, target, bucket, key, obj, flags.RebaseToRemote(), iomHash)
	if err != nil {
		return cmn.ObjectInfo{}, cmn.RCEIO
	}
	return info, rc
}

// Get implements spec §4.6 step 1-4 for Get.
func (p *Pool) Get(ctx context.Context, bucket cmn.Bucket, key cmn.Key, flags behavior.Flags) (ldo.DataObject, cmn.ObjectInfo, cmn.RC) {
	if obj, info, rc := p.local.Get(bucket, key); rc == cmn.RCOk {
		return obj, info, rc
	}
	if p.isLocal(bucket, key.K1) {
		return ldo.DataObject{}, cmn.ObjectInfo{}, cmn.RCENoEnt
	}
	target := p.Owner(bucket, key.K1)
	obj, info, rc, err := p.remote.Get(ctx, target, bucket, key, flags.RebaseToRemote())
	if err != nil {
		return ldo.DataObject{}, cmn.ObjectInfo{}, cmn.RCEIO
	}
	if rc == cmn.RCOk && flags.Has(behavior.ReadToLocal) {
		p.local.Put(bucket, key, obj.Copy(), behavior.WriteToLocal|behavior.EnableOverwrites, 0)
	}
	return obj, info, rc
}

// Info implements spec §4.6 for Info/RowInfo, routed the same as Get.
func (p *Pool) Info(ctx context.Context, bucket cmn.Bucket, key cmn.Key) (cmn.ObjectInfo, cmn.RC) {
	if p.isLocal(bucket, key.K1) {
		return p.local.Info(bucket, key)
	}
	target := p.Owner(bucket, key.K1)
	info, rc, err := p.remote.Info(ctx, target, bucket, key)
	if err != nil {
		return cmn.ObjectInfo{}, cmn.RCEIO
	}
	info.ChangeAvailabilityFromLocalToRemote()
	return info, rc
}

// Drop implements spec §4.6 for Drop, routed the same as Get/Info.
func (p *Pool) Drop(ctx context.Context, bucket cmn.Bucket, key cmn.Key) cmn.RC {
	p.local.Drop(bucket, key) // always drop any cached local copy
	if p.isLocal(bucket, key.K1) {
		return cmn.RCOk
	}
	target := p.Owner(bucket, key.K1)
	rc, err := p.remote.Drop(ctx, target, bucket, key)
	if err != nil {
		return cmn.RCEIO
	}
	return rc
}

func (p *Pool) String() string {
	return fmt.Sprintf("pool.Pool{url=%s, self=%d, members=%d}", p.url.String(), p.self, len(p.members.Snapshot()))
}
