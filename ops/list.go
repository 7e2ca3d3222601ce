/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package ops

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/sandialabs/faodel-sub003/cmn"
	"github.com/sandialabs/faodel-sub003/iom"
	"github.com/sandialabs/faodel-sub003/localkv"
	"github.com/sandialabs/faodel-sub003/opengine"
	"github.com/sandialabs/faodel-sub003/wire"
)

var listOpID = wire.OpIDOf("OpKelpieList")

// List fans a List query out to every peer (spec §4.5 List: "fan-out
// to all/one pool members, per-target dedup only" -- results are only
// deduplicated within a single target's reply, never merged across
// targets since distinct members never share rows).
func (c *Context) List(ctx context.Context, peers []cmn.NodeID, bucket cmn.Bucket, key cmn.Key) ([]localkv.ListEntry, error) {
	var (
		mu  sync.Mutex
		out []localkv.ListEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, peer := range peers {
		peer := peer
		g.Go(func() error {
			entries, err := c.listOne(gctx, peer, bucket, key)
			if err != nil {
				return err
			}
			mu.Lock()
			out = append(out, entries...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

func (c *Context) listOne(ctx context.Context, peer cmn.NodeID, bucket cmn.Bucket, key cmn.Key) ([]localkv.ListEntry, error) {
	type out struct {
		entries []localkv.ListEntry
		err     error
	}
	done := make(chan out, 1)
	c.Engine.StartOrigin(func(uint64) opengine.Op {
		return &listOrigin{
			ctx: c, peer: peer, bucket: bucket, key: key,
			result: func(entries []localkv.ListEntry, err error) { done <- out{entries, err} },
		}
	})
	select {
	case o := <-done:
		return o.entries, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type listOrigin struct {
	ctx    *Context
	peer   cmn.NodeID
	bucket cmn.Bucket
	key    cmn.Key
	result func(entries []localkv.ListEntry, err error)
}

func (o *listOrigin) OpID() uint32 { return listOpID }

func (o *listOrigin) Update(args opengine.Args) (opengine.WaitingType, error) {
	switch args.Type {
	case opengine.ArgsStart:
		body := wire.SimpleBody{Bucket: uint32(o.bucket), K1: o.key.K1, K2: o.key.K2}
		h := sendHeader(o.ctx.Self, o.peer, args.Mailbox, 0, o.OpID(), wire.CmdList, true)
		raw, err := wire.NewSimple(h, body)
		if err != nil {
			o.result(nil, err)
			return opengine.ErrorState, err
		}
		o.ctx.Transport.SendMsg(o.peer, raw, func(err error) {
			t := opengine.ArgsSendSuccess
			if err != nil {
				t = opengine.ArgsSendError
			}
			o.ctx.Engine.Complete(args.Mailbox, t, err)
		})
		return opengine.WaitingOnCQ, nil

	case opengine.ArgsSendSuccess:
		return opengine.WaitingOnCQ, nil

	case opengine.ArgsSendError:
		o.result(nil, args.Err)
		return opengine.ErrorState, args.Err

	case opengine.ArgsIncomingMessage:
		list, err := wire.UnmarshalListBody(args.Msg.Body)
		if err != nil {
			o.result(nil, err)
			return opengine.ErrorState, err
		}
		entries := make([]localkv.ListEntry, 0, len(list.Entries))
		for _, e := range list.Entries {
			entries = append(entries, localkv.ListEntry{
				Bucket: o.bucket, Key: cmn.Key{K1: e.K1, K2: e.K2},
				Size: e.Size, Availability: cmn.Availability(e.Availability),
			})
		}
		o.result(entries, nil)
		return opengine.DoneAndDestroy, nil

	default:
		return opengine.ErrorState, errUnexpectedArgs
	}
}

// listTarget answers by scanning the local store, de-duplicating
// against the configured IOM's listing the same way LocalKV.List does
// locally.
type listTarget struct {
	ctx     *Context
	peer    cmn.NodeID
	srcMbox uint64
	bucket  cmn.Bucket
	key     cmn.Key
	iomHash uint32
}

func (c *Context) newListTarget(_ *opengine.Engine, peer cmn.NodeID, env wire.Envelope) (opengine.Op, error) {
	c.observeTargetOp("list")
	body, err := wire.UnmarshalSimpleBody(env.Body)
	if err != nil {
		return nil, errors.Wrap(err, "ops: list target")
	}
	return &listTarget{
		ctx: c, peer: peer, srcMbox: env.Header.SrcMailbox,
		bucket: cmn.Bucket(body.Bucket), key: cmn.Key{K1: body.K1, K2: body.K2}, iomHash: body.IomHash,
	}, nil
}

func (o *listTarget) OpID() uint32 { return listOpID }

func (o *listTarget) Update(args opengine.Args) (opengine.WaitingType, error) {
	if args.Type != opengine.ArgsStart {
		return opengine.ErrorState, errUnexpectedArgs
	}
	var driver iom.Driver
	if o.ctx.IOMs != nil {
		driver, _ = o.ctx.IOMs.Lookup(o.iomHash)
	}
	entries := o.ctx.Store.List(o.bucket, o.key, driver)
	wireEntries := make([]wire.ListEntryWire, 0, len(entries))
	for _, e := range entries {
		wireEntries = append(wireEntries, wire.ListEntryWire{
			K1: e.Key.K1, K2: e.Key.K2, Size: e.Size, Availability: uint8(e.Availability),
		})
	}
	h := statusHeader(o.ctx.Self, o.peer, args.Mailbox, o.srcMbox, true)
	raw, err := wire.NewList(h, wire.ListBody{Entries: wireEntries})
	if err != nil {
		return opengine.ErrorState, err
	}
	o.ctx.Transport.SendMsg(o.peer, raw, func(err error) {
		logStateError("list target reply", args.Mailbox, err)
	})
	return opengine.DoneAndDestroy, nil
}
