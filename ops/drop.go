/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package ops

import (
	"context"

	"github.com/pkg/errors"

	"github.com/sandialabs/faodel-sub003/cmn"
	"github.com/sandialabs/faodel-sub003/opengine"
	"github.com/sandialabs/faodel-sub003/wire"
)

var dropOpID = wire.OpIDOf("OpKelpieDrop")

// dropOrigin drives a remote Drop request/reply (spec §4.5 Drop). The
// spec allows a caller to fire-and-forget when it registers no
// callback; Context.Drop always waits, since pool.RemoteExecutor's
// signature is synchronous -- a caller wanting fire-and-forget
// semantics does so by not waiting on Context.Drop's result, not by
// skipping the reply leg of the protocol.
type dropOrigin struct {
	ctx    *Context
	peer   cmn.NodeID
	bucket cmn.Bucket
	key    cmn.Key
	result func(rc cmn.RC, err error)
}

// Drop implements pool.RemoteExecutor.Drop.
func (c *Context) Drop(ctx context.Context, target cmn.NodeID, bucket cmn.Bucket, key cmn.Key) (cmn.RC, error) {
	type out struct {
		rc  cmn.RC
		err error
	}
	done := make(chan out, 1)
	c.Engine.StartOrigin(func(uint64) opengine.Op {
		return &dropOrigin{
			ctx: c, peer: target, bucket: bucket, key: key,
			result: func(rc cmn.RC, err error) { done <- out{rc, err} },
		}
	})
	select {
	case o := <-done:
		return o.rc, o.err
	case <-ctx.Done():
		return cmn.RCETimedOut, ctx.Err()
	}
}

func (o *dropOrigin) OpID() uint32 { return dropOpID }

func (o *dropOrigin) Update(args opengine.Args) (opengine.WaitingType, error) {
	switch args.Type {
	case opengine.ArgsStart:
		body := wire.SimpleBody{Bucket: uint32(o.bucket), K1: o.key.K1, K2: o.key.K2}
		h := sendHeader(o.ctx.Self, o.peer, args.Mailbox, 0, o.OpID(), wire.CmdDrop, true)
		raw, err := wire.NewSimple(h, body)
		if err != nil {
			o.result(cmn.RCEInval, err)
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
		o.result(cmn.RCEBadRPC, args.Err)
		return opengine.ErrorState, args.Err

	case opengine.ArgsIncomingMessage:
		status, err := wire.UnmarshalStatusBody(args.Msg.Body)
		if err != nil {
			o.result(cmn.RCEIO, err)
			return opengine.ErrorState, err
		}
		o.result(cmn.RC(status.RemoteRC), nil)
		return opengine.DoneAndDestroy, nil

	default:
		return opengine.ErrorState, errUnexpectedArgs
	}
}

// dropTarget applies a Drop directly against the local store and acks.
type dropTarget struct {
	ctx     *Context
	peer    cmn.NodeID
	srcMbox uint64
	bucket  cmn.Bucket
	key     cmn.Key
}

func (c *Context) newDropTarget(_ *opengine.Engine, peer cmn.NodeID, env wire.Envelope) (opengine.Op, error) {
	c.observeTargetOp("drop")
	body, err := wire.UnmarshalSimpleBody(env.Body)
	if err != nil {
		return nil, errors.Wrap(err, "ops: drop target")
	}
	return &dropTarget{
		ctx: c, peer: peer, srcMbox: env.Header.SrcMailbox,
		bucket: cmn.Bucket(body.Bucket), key: cmn.Key{K1: body.K1, K2: body.K2},
	}, nil
}

func (o *dropTarget) OpID() uint32 { return dropOpID }

func (o *dropTarget) Update(args opengine.Args) (opengine.WaitingType, error) {
	if args.Type != opengine.ArgsStart {
		return opengine.ErrorState, errUnexpectedArgs
	}
	rc := o.ctx.Store.Drop(o.bucket, o.key)
	h := statusHeader(o.ctx.Self, o.peer, args.Mailbox, o.srcMbox, rc == cmn.RCOk)
	raw := wire.NewStatus(h, wire.StatusBody{RemoteRC: int32(rc)})
	o.ctx.Transport.SendMsg(o.peer, raw, func(err error) {
		logStateError("drop target reply", args.Mailbox, err)
	})
	return opengine.DoneAndDestroy, nil
}
