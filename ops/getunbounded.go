/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package ops

import (
	"context"

	"github.com/pkg/errors"

	"github.com/sandialabs/faodel-sub003/behavior"
	"github.com/sandialabs/faodel-sub003/cmn"
	"github.com/sandialabs/faodel-sub003/ldo"
	"github.com/sandialabs/faodel-sub003/opengine"
	"github.com/sandialabs/faodel-sub003/wire"
)

var getUnboundedOpID = wire.OpIDOf("OpKelpieGetUnbounded")

// getUnboundedOrigin handles the case where the caller has no idea how
// large the value is: it asks first, the target replies with a handle
// to its own registered memory plus the size, and only then does the
// origin allocate a landing buffer and RDMA-pull (spec §4.5
// Get-Unbounded).
type getUnboundedOrigin struct {
	ctx  *Context
	peer cmn.NodeID

	bucket cmn.Bucket
	key    cmn.Key
	flags  behavior.Flags

	landing ldo.DataObject
	result  ResultFunc
}

// Get implements pool.RemoteExecutor.Get with the Get-Unbounded op
// pair: the origin doesn't
// pre-size a buffer, so this always goes through the ask/reply/pull
// sequence even when the caller could have guessed the size.
func (c *Context) Get(ctx context.Context, target cmn.NodeID, bucket cmn.Bucket, key cmn.Key, flags behavior.Flags) (ldo.DataObject, cmn.ObjectInfo, cmn.RC, error) {
	type out struct {
		obj  ldo.DataObject
		info cmn.ObjectInfo
		rc   cmn.RC
		err  error
	}
	done := make(chan out, 1)
	c.Engine.StartOrigin(func(uint64) opengine.Op {
		return &getUnboundedOrigin{
			ctx: c, peer: target, bucket: bucket, key: key, flags: flags,
			result: func(obj ldo.DataObject, info cmn.ObjectInfo, rc cmn.RC, err error) {
				done <- out{obj, info, rc, err}
			},
		}
	})
	select {
	case o := <-done:
		return o.obj, o.info, o.rc, o.err
	case <-ctx.Done():
		return ldo.DataObject{}, cmn.ObjectInfo{}, cmn.RCETimedOut, ctx.Err()
	}
}

func (o *getUnboundedOrigin) OpID() uint32 { return getUnboundedOpID }

func (o *getUnboundedOrigin) Update(args opengine.Args) (opengine.WaitingType, error) {
	switch args.Type {
	case opengine.ArgsStart:
		body := wire.SimpleBody{Bucket: uint32(o.bucket), Behavior: o.flags, K1: o.key.K1, K2: o.key.K2}
		h := sendHeader(o.ctx.Self, o.peer, args.Mailbox, 0, o.OpID(), wire.CmdGetUnbounded, true)
		raw, err := wire.NewSimple(h, body)
		if err != nil {
			o.result(ldo.DataObject{}, cmn.ObjectInfo{}, cmn.RCEInval, err)
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
		o.result(ldo.DataObject{}, cmn.ObjectInfo{}, cmn.RCEBadRPC, args.Err)
		return opengine.ErrorState, args.Err

	case opengine.ArgsIncomingMessage:
		if !args.Msg.Header.IsSuccess() {
			status, err := wire.UnmarshalStatusBody(args.Msg.Body)
			if err != nil {
				o.result(ldo.DataObject{}, cmn.ObjectInfo{}, cmn.RCEIO, err)
				return opengine.ErrorState, err
			}
			o.result(ldo.DataObject{}, cmn.ObjectInfo{}, cmn.RC(status.RemoteRC), nil)
			return opengine.DoneAndDestroy, nil
		}
		buf, err := wire.UnmarshalBufferBody(args.Msg.Body)
		if err != nil {
			o.result(ldo.DataObject{}, cmn.ObjectInfo{}, cmn.RCEIO, err)
			return opengine.ErrorState, err
		}
		landing, err := o.ctx.Transport.NewMessage(uint32(buf.MetaPlusDataSize))
		if err != nil {
			o.result(ldo.DataObject{}, cmn.ObjectInfo{}, cmn.RCEIO, err)
			return opengine.ErrorState, err
		}
		o.landing = landing
		o.ctx.Transport.Get(o.peer, buf.NBR, o.landing, func(err error) {
			t := opengine.ArgsGetSuccess
			if err != nil {
				t = opengine.ArgsGetError
			}
			o.ctx.Engine.Complete(args.Mailbox, t, err)
		})
		return opengine.WaitingOnCQ, nil

	case opengine.ArgsGetSuccess:
		info := cmn.ObjectInfo{ColUserBytes: uint64(o.landing.GetUserSize()), ColAvailability: cmn.InRemoteMemory}
		o.result(o.landing, info, cmn.RCOk, nil)
		return opengine.DoneAndDestroy, nil

	case opengine.ArgsGetError:
		o.result(ldo.DataObject{}, cmn.ObjectInfo{}, cmn.RCEIO, args.Err)
		return opengine.ErrorState, args.Err

	default:
		return opengine.ErrorState, errUnexpectedArgs
	}
}

// getUnboundedTarget replies with a handle to its own copy of the data
// rather than pushing bytes itself, since it doesn't know the origin's
// buffer size either -- that's the whole point of this op pair.
type getUnboundedTarget struct {
	ctx     *Context
	peer    cmn.NodeID
	srcMbox uint64

	bucket cmn.Bucket
	key    cmn.Key
}

func (c *Context) newGetUnboundedTarget(_ *opengine.Engine, peer cmn.NodeID, env wire.Envelope) (opengine.Op, error) {
	c.observeTargetOp("get-unbounded")
	body, err := wire.UnmarshalSimpleBody(env.Body)
	if err != nil {
		return nil, errors.Wrap(err, "ops: get-unbounded target")
	}
	return &getUnboundedTarget{
		ctx: c, peer: peer, srcMbox: env.Header.SrcMailbox,
		bucket: cmn.Bucket(body.Bucket), key: cmn.Key{K1: body.K1, K2: body.K2},
	}, nil
}

func (o *getUnboundedTarget) OpID() uint32 { return getUnboundedOpID }

func (o *getUnboundedTarget) Update(args opengine.Args) (opengine.WaitingType, error) {
	if args.Type != opengine.ArgsStart {
		return opengine.ErrorState, errUnexpectedArgs
	}
	obj, _, rc := o.ctx.Store.Get(o.bucket, o.key)
	if rc != cmn.RCOk {
		h := statusHeader(o.ctx.Self, o.peer, args.Mailbox, o.srcMbox, false)
		raw := wire.NewStatus(h, wire.StatusBody{RemoteRC: int32(rc)})
		o.ctx.Transport.SendMsg(o.peer, raw, func(err error) {
			logStateError("get-unbounded target nak", args.Mailbox, err)
		})
		return opengine.DoneAndDestroy, nil
	}
	nbr, err := o.ctx.Transport.GetRdmaPtr(obj)
	if err != nil {
		return opengine.ErrorState, err
	}
	body := wire.BufferBody{NBR: nbr, MetaPlusDataSize: uint64(obj.GetUserSize()), Bucket: uint32(o.bucket), K1: o.key.K1, K2: o.key.K2}
	h := statusHeader(o.ctx.Self, o.peer, args.Mailbox, o.srcMbox, true)
	raw, err := wire.NewBuffer(h, body)
	if err != nil {
		return opengine.ErrorState, err
	}
	o.ctx.Transport.SendMsg(o.peer, raw, func(err error) {
		logStateError("get-unbounded target reply", args.Mailbox, err)
	})
	return opengine.DoneAndDestroy, nil
}
